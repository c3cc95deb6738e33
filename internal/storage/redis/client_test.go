package redis

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linguachat/internal/model"
)

func TestChatChannelRoundTrip(t *testing.T) {
	ch := ChatChannel("c-42")
	assert.Equal(t, "chat:c-42:changed", ch)
	id, ok := ChatIDFromChannel(ch)
	assert.True(t, ok)
	assert.Equal(t, "c-42", id)

	_, ok = ChatIDFromChannel("chat::changed")
	assert.False(t, ok)
	_, ok = ChatIDFromChannel("push:subs:u1")
	assert.False(t, ok)
}

// Needs a live Redis: REDIS_TEST_URL=redis://localhost:6379/15
func newTestClient(t *testing.T) *Client {
	t.Helper()
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	c, err := New(context.Background(), url)
	require.NoError(t, err)
	require.NoError(t, c.FlushDB(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSummariesRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	items, err := c.LoadSummaries(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, items)

	want := []model.ChatSummary{{ChatID: "c1", ReceiverID: "u2", LastMessage: "hi", IsSeen: true, UpdatedAt: time.Now().UTC().Truncate(time.Second)}}
	require.NoError(t, c.SaveSummaries(ctx, "u1", want))
	got, err := c.LoadSummaries(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestNotifyReachesListener(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 1)
	go func() { _ = c.Listen(ctx, func(id string) { got <- id }) }()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, c.Notify(ctx, "c1"))
		select {
		case id := <-got:
			assert.Equal(t, "c1", id)
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
	t.Fatal("no change signal received")
}

func TestPushSubscriptions(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.SavePushSubscription(ctx, "u1", "https://push/a", []byte(`{"endpoint":"https://push/a"}`)))
	require.NoError(t, c.SavePushSubscription(ctx, "u1", "https://push/a", []byte(`{"endpoint":"https://push/a","v":2}`)))
	subs, err := c.PushSubscriptions(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	require.NoError(t, c.RemovePushSubscription(ctx, "u1", "https://push/a"))
	subs, err = c.PushSubscriptions(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestModifySummariesConcurrentAppends(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	const writers = 10
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := c.ModifySummaries(ctx, "u1", func(items []model.ChatSummary) ([]model.ChatSummary, bool) {
				return append(items, model.ChatSummary{ChatID: fmt.Sprintf("c%d", i)}), true
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	items, err := c.LoadSummaries(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, items, writers)

	err = c.ModifySummaries(ctx, "u1", func(items []model.ChatSummary) ([]model.ChatSummary, bool) {
		return nil, false
	})
	require.NoError(t, err)
	items, err = c.LoadSummaries(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, items, writers, "unchanged edit must not write")
}
