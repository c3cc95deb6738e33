package feed

import (
	"sync"

	"github.com/linguachat/internal/model"
)

// Listener receives conversation snapshots through a one-slot mailbox.
// An undelivered snapshot is replaced by a newer one; a snapshot whose version
// is not above the last accepted one is dropped, so the reader never goes back
// in time.
type Listener struct {
	hub    *Hub
	chatID string

	mu     sync.Mutex
	ch     chan model.Conversation
	done   chan struct{}
	last   int64
	closed bool
}

func newListener(h *Hub, chatID string) *Listener {
	return &Listener{
		hub:    h,
		chatID: chatID,
		ch:     make(chan model.Conversation, 1),
		done:   make(chan struct{}),
		last:   -1,
	}
}

func (l *Listener) ChatID() string { return l.chatID }

// C yields snapshots. It is closed by Close.
func (l *Listener) C() <-chan model.Conversation { return l.ch }

// Done is closed by Close.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Offer puts snap in the mailbox. It reports whether the snapshot was accepted.
func (l *Listener) Offer(snap model.Conversation) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || snap.Version <= l.last {
		return false
	}
	select {
	case <-l.ch:
	default:
	}
	// only Offer sends and it holds mu, so the slot is free
	l.ch <- snap
	l.last = snap.Version
	return true
}

// Close detaches the listener. Nothing is delivered after Close returns.
func (l *Listener) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	select {
	case <-l.ch:
	default:
	}
	close(l.ch)
	close(l.done)
	l.mu.Unlock()
	l.hub.unregister(l)
}
