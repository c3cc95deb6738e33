package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linguachat/internal/model"
)

func snap(chatID string, n int) model.Conversation {
	msgs := make([]model.Message, n)
	for i := range msgs {
		msgs[i] = model.Message{ChatID: chatID, Seq: int64(i + 1), Text: "m"}
	}
	return model.Conversation{ChatID: chatID, Messages: msgs, Version: int64(n)}
}

func TestPublishReachesOnlyChatListeners(t *testing.T) {
	h := NewHub(0)
	a, err := h.Register("a")
	require.NoError(t, err)
	b, err := h.Register("b")
	require.NoError(t, err)

	h.Publish(snap("a", 1))

	got := <-a.C()
	assert.Equal(t, int64(1), got.Version)
	select {
	case <-b.C():
		t.Fatal("listener of another chat received a snapshot")
	default:
	}
}

func TestSlowListenerSkipsToNewest(t *testing.T) {
	h := NewHub(0)
	l, err := h.Register("c")
	require.NoError(t, err)

	for i := 0; i <= 5; i++ {
		h.Publish(snap("c", i))
	}
	got := <-l.C()
	assert.Equal(t, int64(5), got.Version)
	assert.Len(t, got.Messages, 5)
}

func TestOlderSnapshotNeverFollowsNewer(t *testing.T) {
	h := NewHub(0)
	l, err := h.Register("c")
	require.NoError(t, err)

	assert.True(t, l.Offer(snap("c", 3)))
	<-l.C()
	assert.False(t, l.Offer(snap("c", 2)))
	assert.False(t, l.Offer(snap("c", 3)))
	assert.True(t, l.Offer(snap("c", 4)))
	assert.Equal(t, int64(4), (<-l.C()).Version)
}

func TestEmptySnapshotIsDelivered(t *testing.T) {
	h := NewHub(0)
	l, err := h.Register("c")
	require.NoError(t, err)
	assert.True(t, l.Offer(snap("c", 0)))
	assert.Empty(t, (<-l.C()).Messages)
}

func TestCloseStopsDelivery(t *testing.T) {
	h := NewHub(0)
	l, err := h.Register("c")
	require.NoError(t, err)
	l.Offer(snap("c", 1))

	l.Close()
	l.Close()

	_, ok := <-l.C()
	assert.False(t, ok, "pending snapshot must be dropped on close")
	assert.False(t, l.Offer(snap("c", 2)))
	assert.Equal(t, 0, h.Count("c"))
	<-l.Done()
}

func TestListenerLimit(t *testing.T) {
	h := NewHub(1)
	_, err := h.Register("a")
	require.NoError(t, err)
	_, err = h.Register("b")
	assert.ErrorIs(t, err, ErrTooManyListeners)
}

func TestShutdownClosesAll(t *testing.T) {
	h := NewHub(0)
	a, _ := h.Register("a")
	b, _ := h.Register("a")
	h.Shutdown()
	<-a.Done()
	<-b.Done()
	assert.Equal(t, 0, h.Count("a"))
}
