// Package store is the conversation store: an append-only message log per chat
// with live snapshot subscriptions.
package store

import (
	"context"

	"github.com/linguachat/internal/feed"
	"github.com/linguachat/internal/model"
)

// Store is implemented by Memory and Postgres.
type Store interface {
	// Create registers an empty conversation. Creating an existing chat is a no-op.
	Create(ctx context.Context, chat *model.Chat) error
	// Chat returns chat membership.
	Chat(ctx context.Context, chatID string) (*model.Chat, error)
	// Append commits msg at the end of its chat and returns it with ID, Seq and CreatedAt set.
	Append(ctx context.Context, msg model.Message) (model.Message, error)
	// Snapshot returns the current full conversation.
	Snapshot(ctx context.Context, chatID string) (model.Conversation, error)
	// Subscribe returns a listener that first yields the current snapshot, then
	// one snapshot per change. The listener closes when ctx is done.
	Subscribe(ctx context.Context, chatID string) (*feed.Listener, error)
}

// closeOnDone ties the listener lifetime to ctx.
func closeOnDone(ctx context.Context, l *feed.Listener) {
	go func() {
		select {
		case <-ctx.Done():
			l.Close()
		case <-l.Done():
		}
	}()
}
