package composer

import (
	"strings"
	"sync"

	"github.com/linguachat/internal/capture"
)

// Attachment is an image picked by the user, not yet uploaded.
type Attachment struct {
	Data []byte
	MIME string
}

// Draft is the compose state of one user in one chat.
type Draft struct {
	ChatID     string
	SenderID   string
	ReceiverID string

	Text  string
	Image *Attachment
	Audio *capture.Audio
}

// Empty reports a draft with nothing to send. Whitespace-only text counts as nothing.
func (d *Draft) Empty() bool {
	return strings.TrimSpace(d.Text) == "" && d.Image == nil && d.Audio == nil
}

// Reset clears the content and keeps the addressing.
func (d *Draft) Reset() {
	d.Text = ""
	d.Image = nil
	d.Audio = nil
}

type draftKey struct{ chatID, userID string }

// Drafts keeps recordings finished over the recording socket until the next
// send of the same user in the same chat picks them up.
type Drafts struct {
	mu    sync.Mutex
	audio map[draftKey]*capture.Audio
}

func NewDrafts() *Drafts {
	return &Drafts{audio: make(map[draftKey]*capture.Audio)}
}

// PutAudio replaces any pending recording.
func (d *Drafts) PutAudio(chatID, userID string, a *capture.Audio) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if a == nil {
		delete(d.audio, draftKey{chatID, userID})
		return
	}
	d.audio[draftKey{chatID, userID}] = a
}

// TakeAudio returns and removes the pending recording, or nil.
func (d *Drafts) TakeAudio(chatID, userID string) *capture.Audio {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := draftKey{chatID, userID}
	a := d.audio[k]
	delete(d.audio, k)
	return a
}

// HasAudio reports whether a recording is waiting.
func (d *Drafts) HasAudio(chatID, userID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.audio[draftKey{chatID, userID}]
	return ok
}
