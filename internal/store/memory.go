package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/linguachat/internal/apperr"
	"github.com/linguachat/internal/feed"
	"github.com/linguachat/internal/model"
)

type memChat struct {
	chat     model.Chat
	messages []model.Message
}

// Memory keeps conversations in process. Used in dev mode and tests.
type Memory struct {
	hub *feed.Hub

	mu    sync.Mutex
	chats map[string]*memChat
}

func NewMemory(hub *feed.Hub) *Memory {
	return &Memory{hub: hub, chats: make(map[string]*memChat)}
}

func (s *Memory) Create(_ context.Context, chat *model.Chat) error {
	if chat.ID == "" || len(chat.Members) != 2 {
		return apperr.Invalid("chat needs an id and two members")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chats[chat.ID]; ok {
		return nil
	}
	c := *chat
	c.Members = append([]string(nil), chat.Members...)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.chats[chat.ID] = &memChat{chat: c}
	return nil
}

func (s *Memory) Chat(_ context.Context, chatID string) (*model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	out := c.chat
	out.Members = append([]string(nil), c.chat.Members...)
	return &out, nil
}

func (s *Memory) Append(_ context.Context, msg model.Message) (model.Message, error) {
	if !msg.Valid() {
		return model.Message{}, apperr.Invalid("message must carry exactly one kind of content")
	}
	s.mu.Lock()
	c, ok := s.chats[msg.ChatID]
	if !ok {
		s.mu.Unlock()
		return model.Message{}, fmt.Errorf("append to chat %s: %w", msg.ChatID, apperr.ErrNotFound)
	}
	msg.ID = uuid.New().String()
	msg.Seq = int64(len(c.messages)) + 1
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	c.messages = append(c.messages, msg)
	snap := c.snapshot()
	s.mu.Unlock()

	s.hub.Publish(snap)
	return msg, nil
}

func (s *Memory) Snapshot(_ context.Context, chatID string) (model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatID]
	if !ok {
		return model.Conversation{}, apperr.ErrNotFound
	}
	return c.snapshot(), nil
}

func (s *Memory) Subscribe(ctx context.Context, chatID string) (*feed.Listener, error) {
	l, err := s.hub.Register(chatID)
	if err != nil {
		return nil, err
	}
	snap, err := s.Snapshot(ctx, chatID)
	if err != nil {
		l.Close()
		return nil, err
	}
	l.Offer(snap)
	closeOnDone(ctx, l)
	return l, nil
}

// snapshot shares the append-only backing array; the capped slice keeps
// readers from writing past their view.
func (c *memChat) snapshot() model.Conversation {
	n := len(c.messages)
	return model.Conversation{
		ChatID:   c.chat.ID,
		Messages: c.messages[:n:n],
		Version:  int64(n),
	}
}
