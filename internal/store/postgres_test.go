package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linguachat/internal/apperr"
	"github.com/linguachat/internal/feed"
	"github.com/linguachat/internal/model"
)

// fakeDB stands in for the messages and chats tables.
type fakeDB struct {
	mu    sync.Mutex
	chats map[string]model.Chat
	log   map[string][]model.Message
}

func newFakeDB() *fakeDB {
	return &fakeDB{chats: map[string]model.Chat{}, log: map[string][]model.Message{}}
}

func (db *fakeDB) Create(_ context.Context, c *model.Chat) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.chats[c.ID]; !ok {
		db.chats[c.ID] = *c
	}
	return nil
}

func (db *fakeDB) GetByID(_ context.Context, id string) (*model.Chat, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	c, ok := db.chats[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &c, nil
}

func (db *fakeDB) Append(_ context.Context, m *model.Message) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.chats[m.ChatID]; !ok {
		return apperr.ErrNotFound
	}
	m.Seq = int64(len(db.log[m.ChatID])) + 1
	db.log[m.ChatID] = append(db.log[m.ChatID], *m)
	return nil
}

func (db *fakeDB) List(_ context.Context, chatID string) ([]model.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]model.Message(nil), db.log[chatID]...), nil
}

func TestPostgresAppendReachesOtherReplica(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db := newFakeDB()
	notifier := NewLocalNotifier()
	a := NewPostgres(db, db, feed.NewHub(0), notifier)
	b := NewPostgres(db, db, feed.NewHub(0), notifier)

	listening := make(chan struct{})
	go func() {
		close(listening)
		_ = b.Run(ctx)
	}()
	<-listening

	require.NoError(t, a.Create(ctx, newChat("c1")))
	l, err := b.Subscribe(ctx, "c1")
	require.NoError(t, err)
	defer l.Close()
	assert.Equal(t, int64(0), (<-l.C()).Version)

	// Run subscribes asynchronously; keep appending until b sees a change.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, err := a.Append(ctx, textMsg("c1", "hi"))
		require.NoError(t, err)
		select {
		case snap := <-l.C():
			assert.Equal(t, snap.Version, int64(len(snap.Messages)))
			assert.Equal(t, "hi", snap.Messages[len(snap.Messages)-1].Text)
			return
		case <-time.After(20 * time.Millisecond):
		}
	}
	t.Fatal("replica b never saw an append")
}

func TestPostgresLocalSubscriberSeesOwnAppend(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	s := NewPostgres(db, db, feed.NewHub(0), NewLocalNotifier())
	require.NoError(t, s.Create(ctx, newChat("c1")))

	l, err := s.Subscribe(ctx, "c1")
	require.NoError(t, err)
	defer l.Close()
	<-l.C()

	m, err := s.Append(ctx, textMsg("c1", "hello"))
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	snap := waitVersion(t, l, 1)
	assert.Equal(t, m.ID, snap.Messages[0].ID)
}

func TestPostgresUnknownChat(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	s := NewPostgres(db, db, feed.NewHub(0), NewLocalNotifier())

	_, err := s.Append(ctx, textMsg("nope", "x"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.Snapshot(ctx, "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
