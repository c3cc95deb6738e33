package summary

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/linguachat/internal/apperr"
	"github.com/linguachat/internal/model"
	"github.com/linguachat/internal/storage"
	"github.com/linguachat/internal/storage/memory"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newSync(t *testing.T) (*Synchronizer, *memory.Client) {
	t.Helper()
	mem := memory.New()
	s := NewSynchronizer(mem)
	s.now = func() time.Time { return fixedNow }
	return s, mem
}

func seed(t *testing.T, s *Synchronizer, userID, chatID, peer string) {
	t.Helper()
	require.NoError(t, s.Add(context.Background(), userID, model.ChatSummary{ChatID: chatID, ReceiverID: peer, UpdatedAt: fixedNow.Add(-time.Hour)}))
}

func TestSyncAfterSendUpdatesBothSides(t *testing.T) {
	s, _ := newSync(t)
	ctx := context.Background()
	seed(t, s, "alice", "c1", "bob")
	seed(t, s, "bob", "c1", "alice")

	err := s.SyncAfterSend(ctx, SyncInput{SenderID: "alice", ReceiverID: "bob", ChatID: "c1", OriginalText: "hello", TranslatedText: "bonjour"})
	require.NoError(t, err)

	a, err := s.Lookup(ctx, "alice", "c1")
	require.NoError(t, err)
	assert.Equal(t, "hello", a.LastMessage)
	assert.True(t, a.IsSeen)
	assert.Equal(t, fixedNow, a.UpdatedAt)

	b, err := s.Lookup(ctx, "bob", "c1")
	require.NoError(t, err)
	assert.Equal(t, "bonjour", b.LastMessage)
	assert.False(t, b.IsSeen)
	assert.Equal(t, fixedNow, b.UpdatedAt)
}

func TestSyncAfterSendSkipsMissingEntry(t *testing.T) {
	s, mem := newSync(t)
	ctx := context.Background()
	seed(t, s, "alice", "c1", "bob")

	require.NoError(t, s.SyncAfterSend(ctx, SyncInput{SenderID: "alice", ReceiverID: "bob", ChatID: "c1", OriginalText: "x"}))

	items, err := mem.LoadSummaries(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, items, "no entry must be created for the receiver")

	require.NoError(t, s.SyncAfterSend(ctx, SyncInput{SenderID: "alice", ReceiverID: "bob", ChatID: "other"}))
	items, _ = mem.LoadSummaries(ctx, "alice")
	assert.Len(t, items, 1)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) LoadSummaries(ctx context.Context, userID string) ([]model.ChatSummary, error) {
	args := m.Called(ctx, userID)
	items, _ := args.Get(0).([]model.ChatSummary)
	return items, args.Error(1)
}

func (m *mockStore) SaveSummaries(ctx context.Context, userID string, items []model.ChatSummary) error {
	return m.Called(ctx, userID, items).Error(0)
}

func (m *mockStore) ModifySummaries(ctx context.Context, userID string, fn storage.SummaryEdit) error {
	items, err := m.LoadSummaries(ctx, userID)
	if err != nil {
		return err
	}
	out, changed := fn(items)
	if !changed {
		return nil
	}
	return m.SaveSummaries(ctx, userID, out)
}

func TestSyncAfterSendFailureIsPerUser(t *testing.T) {
	st := new(mockStore)
	st.On("LoadSummaries", mock.Anything, "alice").Return([]model.ChatSummary{{ChatID: "c1"}}, nil)
	st.On("SaveSummaries", mock.Anything, "alice", mock.MatchedBy(func(items []model.ChatSummary) bool {
		return len(items) == 1 && items[0].LastMessage == "hello" && items[0].IsSeen
	})).Return(nil)
	st.On("LoadSummaries", mock.Anything, "bob").Return(nil, errors.New("connection reset"))

	err := NewSynchronizer(st).SyncAfterSend(context.Background(), SyncInput{SenderID: "alice", ReceiverID: "bob", ChatID: "c1", OriginalText: "hello", TranslatedText: "bonjour"})

	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindMetadataSync))
	assert.Contains(t, err.Error(), "bob")
	assert.NotContains(t, err.Error(), "alice")
	st.AssertExpectations(t)
}

func TestMarkSeenAndList(t *testing.T) {
	s, _ := newSync(t)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, "bob", model.ChatSummary{ChatID: "old", UpdatedAt: fixedNow.Add(-2 * time.Hour)}))
	require.NoError(t, s.Add(ctx, "bob", model.ChatSummary{ChatID: "new", UpdatedAt: fixedNow.Add(-time.Hour)}))
	require.NoError(t, s.Add(ctx, "bob", model.ChatSummary{ChatID: "new", LastMessage: "dup"}))

	list, err := s.List(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ChatID)
	assert.Empty(t, list[0].LastMessage)

	require.NoError(t, s.MarkSeen(ctx, "bob", "old"))
	e, err := s.Lookup(ctx, "bob", "old")
	require.NoError(t, err)
	assert.True(t, e.IsSeen)

	_, err = s.Lookup(ctx, "bob", "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	empty, err := s.List(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty)
}

// slowStore widens the window between reading and writing a collection so
// that unsynchronized read-modify-write cycles would lose entries.
type slowStore struct {
	*memory.Client
}

func (s slowStore) ModifySummaries(ctx context.Context, userID string, fn storage.SummaryEdit) error {
	return s.Client.ModifySummaries(ctx, userID, func(items []model.ChatSummary) ([]model.ChatSummary, bool) {
		time.Sleep(time.Millisecond)
		return fn(items)
	})
}

func TestAddDuringSyncKeepsEveryEntry(t *testing.T) {
	s := NewSynchronizer(slowStore{memory.New()})
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, "a", model.ChatSummary{ChatID: "c1", ReceiverID: "b"}))
	require.NoError(t, s.Add(ctx, "b", model.ChatSummary{ChatID: "c1", ReceiverID: "a"}))

	const chats = 20
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < chats; i++ {
			_ = s.SyncAfterSend(ctx, SyncInput{SenderID: "b", ReceiverID: "a", ChatID: "c1", OriginalText: "hi", TranslatedText: "salut"})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < chats; i++ {
			assert.NoError(t, s.Add(ctx, "a", model.ChatSummary{ChatID: fmt.Sprintf("new-%d", i), ReceiverID: "x"}))
		}
	}()
	wg.Wait()

	list, err := s.List(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, list, chats+1)
	c1, err := s.Lookup(ctx, "a", "c1")
	require.NoError(t, err)
	assert.Equal(t, "salut", c1.LastMessage)
}
