package store

import (
	"context"
	"sync"
)

// Notifier carries "chat changed" signals between API replicas.
type Notifier interface {
	Notify(ctx context.Context, chatID string) error
	// Listen calls fn for every change signal until ctx is done.
	Listen(ctx context.Context, fn func(chatID string)) error
}

// LocalNotifier delivers signals inside one process.
type LocalNotifier struct {
	mu   sync.RWMutex
	subs []chan string
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{}
}

func (n *LocalNotifier) Notify(_ context.Context, chatID string) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, ch := range n.subs {
		select {
		case ch <- chatID:
		default:
			// listener is behind, signal dropped
		}
	}
	return nil
}

func (n *LocalNotifier) Listen(ctx context.Context, fn func(chatID string)) error {
	ch := make(chan string, 256)
	n.mu.Lock()
	n.subs = append(n.subs, ch)
	n.mu.Unlock()
	defer func() {
		n.mu.Lock()
		for i, c := range n.subs {
			if c == ch {
				n.subs = append(n.subs[:i], n.subs[i+1:]...)
				break
			}
		}
		n.mu.Unlock()
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case id := <-ch:
			fn(id)
		}
	}
}
