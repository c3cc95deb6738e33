// Package feed fans conversation snapshots out to live listeners of a chat.
package feed

import (
	"errors"
	"sync"

	"github.com/linguachat/internal/logger"
	"github.com/linguachat/internal/model"
)

var ErrTooManyListeners = errors.New("feed: listener limit reached")

// Hub keeps the listeners of every chat. Publish never blocks on a slow listener.
type Hub struct {
	mu        sync.RWMutex
	listeners map[string]map[*Listener]struct{}
	total     int
	max       int
}

func NewHub(maxListeners int) *Hub {
	if maxListeners <= 0 {
		maxListeners = 10000
	}
	return &Hub{
		listeners: make(map[string]map[*Listener]struct{}),
		max:       maxListeners,
	}
}

// Register adds a listener for chatID. The caller delivers the initial snapshot.
func (h *Hub) Register(chatID string) (*Listener, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.total >= h.max {
		logger.Errorf("feed listener limit reached (%d), rejecting chat=%s", h.max, chatID)
		return nil, ErrTooManyListeners
	}
	l := newListener(h, chatID)
	if _, ok := h.listeners[chatID]; !ok {
		h.listeners[chatID] = make(map[*Listener]struct{})
	}
	h.listeners[chatID][l] = struct{}{}
	h.total++
	return l, nil
}

func (h *Hub) unregister(l *Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.listeners[l.chatID]
	if !ok {
		return
	}
	if _, exists := set[l]; !exists {
		return
	}
	delete(set, l)
	h.total--
	if len(set) == 0 {
		delete(h.listeners, l.chatID)
	}
}

// Publish offers snap to every listener of its chat.
func (h *Hub) Publish(snap model.Conversation) {
	h.mu.RLock()
	set := h.listeners[snap.ChatID]
	targets := make([]*Listener, 0, len(set))
	for l := range set {
		targets = append(targets, l)
	}
	h.mu.RUnlock()

	for _, l := range targets {
		l.Offer(snap)
	}
}

// Count returns the number of live listeners of chatID.
func (h *Hub) Count(chatID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners[chatID])
}

// Shutdown closes every listener.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	all := make([]*Listener, 0, h.total)
	for _, set := range h.listeners {
		for l := range set {
			all = append(all, l)
		}
	}
	h.mu.Unlock()

	for _, l := range all {
		l.Close()
	}
}
