package memory

import (
	"context"
	"sync"

	"github.com/linguachat/internal/apperr"
	"github.com/linguachat/internal/model"
	"github.com/linguachat/internal/storage"
)

// Client держит сводки чатов, участников и push-подписки в памяти (режим -dev, тесты).
type Client struct {
	mu           sync.RWMutex
	summaries    map[string][]model.ChatSummary
	participants map[string]model.Participant
	pushSubs     map[string]map[string][]byte
}

func New() *Client {
	return &Client{
		summaries:    make(map[string][]model.ChatSummary),
		participants: make(map[string]model.Participant),
		pushSubs:     make(map[string]map[string][]byte),
	}
}

func (c *Client) Close() error { return nil }

// LoadSummaries возвращает копию коллекции: вызывающий может её менять.
func (c *Client) LoadSummaries(_ context.Context, userID string) ([]model.ChatSummary, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	items := c.summaries[userID]
	if items == nil {
		return nil, nil
	}
	return append([]model.ChatSummary(nil), items...), nil
}

func (c *Client) SaveSummaries(_ context.Context, userID string, items []model.ChatSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.summaries[userID] = append([]model.ChatSummary(nil), items...)
	return nil
}

// ModifySummaries выполняет чтение-изменение-запись под мьютексом.
func (c *Client) ModifySummaries(_ context.Context, userID string, fn storage.SummaryEdit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var items []model.ChatSummary
	if cur := c.summaries[userID]; cur != nil {
		items = append([]model.ChatSummary(nil), cur...)
	}
	out, changed := fn(items)
	if changed {
		c.summaries[userID] = append([]model.ChatSummary(nil), out...)
	}
	return nil
}

// PutParticipant добавляет или заменяет участника.
func (c *Client) PutParticipant(p model.Participant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p.Blocked = append([]string(nil), p.Blocked...)
	c.participants[p.ID] = p
}

// Get реализует каталог участников.
func (c *Client) Get(_ context.Context, id string) (*model.Participant, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.participants[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	p.Blocked = append([]string(nil), p.Blocked...)
	return &p, nil
}

func (c *Client) SavePushSubscription(_ context.Context, userID, endpoint string, raw []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pushSubs[userID] == nil {
		c.pushSubs[userID] = make(map[string][]byte)
	}
	c.pushSubs[userID][endpoint] = append([]byte(nil), raw...)
	return nil
}

func (c *Client) PushSubscriptions(_ context.Context, userID string) ([][]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([][]byte, 0, len(c.pushSubs[userID]))
	for _, raw := range c.pushSubs[userID] {
		out = append(out, raw)
	}
	return out, nil
}

func (c *Client) RemovePushSubscription(_ context.Context, userID, endpoint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pushSubs[userID], endpoint)
	return nil
}
