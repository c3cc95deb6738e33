package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/linguachat/internal/apperr"
	"github.com/linguachat/internal/feed"
	"github.com/linguachat/internal/logger"
	"github.com/linguachat/internal/model"
)

// MessageLog is the durable log (repository.MessageRepository).
type MessageLog interface {
	Append(ctx context.Context, m *model.Message) error
	List(ctx context.Context, chatID string) ([]model.Message, error)
}

// ChatTable stores chat membership (repository.ChatRepository).
type ChatTable interface {
	Create(ctx context.Context, c *model.Chat) error
	GetByID(ctx context.Context, id string) (*model.Chat, error)
}

// Postgres is the durable store. Local listeners are served from the hub;
// other replicas learn about appends through the Notifier.
type Postgres struct {
	messages MessageLog
	chats    ChatTable
	hub      *feed.Hub
	notifier Notifier
}

func NewPostgres(messages MessageLog, chats ChatTable, hub *feed.Hub, notifier Notifier) *Postgres {
	return &Postgres{messages: messages, chats: chats, hub: hub, notifier: notifier}
}

// Run reloads and republishes chats changed on any replica until ctx is done.
func (s *Postgres) Run(ctx context.Context) error {
	return s.notifier.Listen(ctx, func(chatID string) {
		if s.hub.Count(chatID) == 0 {
			return
		}
		s.republish(ctx, chatID)
	})
}

func (s *Postgres) Create(ctx context.Context, chat *model.Chat) error {
	if chat.ID == "" || len(chat.Members) != 2 {
		return apperr.Invalid("chat needs an id and two members")
	}
	c := *chat
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return s.chats.Create(ctx, &c)
}

func (s *Postgres) Chat(ctx context.Context, chatID string) (*model.Chat, error) {
	return s.chats.GetByID(ctx, chatID)
}

func (s *Postgres) Append(ctx context.Context, msg model.Message) (model.Message, error) {
	if !msg.Valid() {
		return model.Message{}, apperr.Invalid("message must carry exactly one kind of content")
	}
	msg.ID = uuid.New().String()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if err := s.messages.Append(ctx, &msg); err != nil {
		return model.Message{}, fmt.Errorf("append to chat %s: %w", msg.ChatID, err)
	}

	s.republish(ctx, msg.ChatID)
	if err := s.notifier.Notify(ctx, msg.ChatID); err != nil {
		logger.Errorf("store: notify chat=%s: %v", msg.ChatID, err)
	}
	return msg, nil
}

func (s *Postgres) Snapshot(ctx context.Context, chatID string) (model.Conversation, error) {
	if _, err := s.chats.GetByID(ctx, chatID); err != nil {
		return model.Conversation{}, err
	}
	msgs, err := s.messages.List(ctx, chatID)
	if err != nil {
		return model.Conversation{}, err
	}
	n := len(msgs)
	return model.Conversation{ChatID: chatID, Messages: msgs[:n:n], Version: int64(n)}, nil
}

func (s *Postgres) Subscribe(ctx context.Context, chatID string) (*feed.Listener, error) {
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

func (s *Postgres) republish(ctx context.Context, chatID string) {
	if s.hub.Count(chatID) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	snap, err := s.Snapshot(ctx, chatID)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			logger.Errorf("store: reload chat=%s: %v", chatID, err)
		}
		return
	}
	s.hub.Publish(snap)
}
