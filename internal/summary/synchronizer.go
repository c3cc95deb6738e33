// Package summary keeps each user's chat list entries (last message, seen flag)
// in step with sent messages.
package summary

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/linguachat/internal/apperr"
	"github.com/linguachat/internal/logger"
	"github.com/linguachat/internal/model"
	"github.com/linguachat/internal/storage"
)

// SyncInput describes one committed send.
type SyncInput struct {
	SenderID       string
	ReceiverID     string
	ChatID         string
	OriginalText   string
	TranslatedText string
}

type Synchronizer struct {
	store storage.SummaryStore
	now   func() time.Time
}

func NewSynchronizer(store storage.SummaryStore) *Synchronizer {
	return &Synchronizer{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// SyncAfterSend updates the sender's entry (original text, seen) and the
// receiver's entry (translated text, unseen) concurrently. A user without an
// entry for the chat is left untouched. Per-user failures are logged and
// returned joined; they never undo the committed message.
func (s *Synchronizer) SyncAfterSend(ctx context.Context, in SyncInput) error {
	defer logger.DeferLogDuration("summary.SyncAfterSend", time.Now())()

	var (
		wg   sync.WaitGroup
		errs [2]error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = s.update(ctx, in.SenderID, in.ChatID, in.OriginalText, true)
	}()
	go func() {
		defer wg.Done()
		errs[1] = s.update(ctx, in.ReceiverID, in.ChatID, in.TranslatedText, false)
	}()
	wg.Wait()

	users := [2]string{in.SenderID, in.ReceiverID}
	var joined []error
	for i, err := range errs {
		if err == nil {
			continue
		}
		logger.Warnf("summary: chat=%s user=%s: %v", in.ChatID, users[i], err)
		joined = append(joined, apperr.MetadataSync(users[i], err))
	}
	return errors.Join(joined...)
}

func (s *Synchronizer) update(ctx context.Context, userID, chatID, lastMessage string, seen bool) error {
	return s.modify(ctx, userID, chatID, func(e *model.ChatSummary) {
		e.LastMessage = lastMessage
		e.IsSeen = seen
		e.UpdatedAt = s.now()
	})
}

// modify applies fn to the chat entry inside one atomic read-modify-write of
// the user's collection. A missing entry is a no-op.
func (s *Synchronizer) modify(ctx context.Context, userID, chatID string, fn func(*model.ChatSummary)) error {
	err := s.store.ModifySummaries(ctx, userID, func(items []model.ChatSummary) ([]model.ChatSummary, bool) {
		for i := range items {
			if items[i].ChatID == chatID {
				fn(&items[i])
				return items, true
			}
		}
		return items, false
	})
	if err != nil {
		return fmt.Errorf("modify: %w", err)
	}
	return nil
}

// MarkSeen flips the seen flag when userID opens the chat.
func (s *Synchronizer) MarkSeen(ctx context.Context, userID, chatID string) error {
	err := s.modify(ctx, userID, chatID, func(e *model.ChatSummary) { e.IsSeen = true })
	if err != nil {
		return apperr.MetadataSync(userID, err)
	}
	return nil
}

// List returns userID's chat list, most recently updated first.
func (s *Synchronizer) List(ctx context.Context, userID string) ([]model.ChatSummary, error) {
	items, err := s.store.LoadSummaries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("summary.List %s: %w", userID, err)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].UpdatedAt.After(items[j].UpdatedAt) })
	if items == nil {
		items = []model.ChatSummary{}
	}
	return items, nil
}

// Lookup returns userID's entry for chatID.
func (s *Synchronizer) Lookup(ctx context.Context, userID, chatID string) (*model.ChatSummary, error) {
	items, err := s.store.LoadSummaries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("summary.Lookup %s: %w", userID, err)
	}
	for i := range items {
		if items[i].ChatID == chatID {
			return &items[i], nil
		}
	}
	return nil, apperr.ErrNotFound
}

// Add creates userID's entry for a new chat. An existing entry is kept as is.
func (s *Synchronizer) Add(ctx context.Context, userID string, entry model.ChatSummary) error {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = s.now()
	}
	err := s.store.ModifySummaries(ctx, userID, func(items []model.ChatSummary) ([]model.ChatSummary, bool) {
		for i := range items {
			if items[i].ChatID == entry.ChatID {
				return items, false
			}
		}
		return append(items, entry), true
	})
	if err != nil {
		return fmt.Errorf("summary.Add %s: %w", userID, err)
	}
	return nil
}
