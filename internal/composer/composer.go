// Package composer validates outgoing content and drives it through upload,
// translation, the conversation store and chat list metadata.
package composer

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/linguachat/internal/apperr"
	"github.com/linguachat/internal/logger"
	"github.com/linguachat/internal/model"
	"github.com/linguachat/internal/summary"
	"github.com/linguachat/internal/translate"
)

type Uploader interface {
	Upload(ctx context.Context, data []byte, mimeHint string) (string, error)
}

type Translator interface {
	TranslateText(ctx context.Context, text, source, target string) (string, error)
	TranslateAudio(ctx context.Context, req translate.AudioRequest) error
}

type Appender interface {
	Append(ctx context.Context, msg model.Message) (model.Message, error)
}

type MetadataSyncer interface {
	SyncAfterSend(ctx context.Context, in summary.SyncInput) error
}

type Directory interface {
	Get(ctx context.Context, id string) (*model.Participant, error)
}

// Notifier sends a best-effort push to the receiver. May be nil.
type Notifier interface {
	Notify(ctx context.Context, userID, title, body string, data map[string]string)
}

type Composer struct {
	uploader   Uploader
	translator Translator
	store      Appender
	syncer     MetadataSyncer
	directory  Directory
	notifier   Notifier
}

func New(uploader Uploader, translator Translator, store Appender, syncer MetadataSyncer, directory Directory, notifier Notifier) *Composer {
	return &Composer{
		uploader:   uploader,
		translator: translator,
		store:      store,
		syncer:     syncer,
		directory:  directory,
		notifier:   notifier,
	}
}

// Send delivers the draft. Upload, translation and append failures abort the
// send before anything is written. A metadata failure is logged only. The
// draft content is cleared whenever Send does work, successful or not.
//
// Audio is handed to the translation service, which appends the voice message
// itself; the sender sees it when it arrives through the feed.
func (c *Composer) Send(ctx context.Context, d *Draft) error {
	if d == nil || d.Empty() {
		return nil
	}
	defer d.Reset()
	defer logger.DeferLogDuration("composer.Send", time.Now())()

	sender, receiver, err := c.participants(ctx, d)
	if err != nil {
		return err
	}

	var imgURL string
	if d.Image != nil {
		imgURL, err = c.uploader.Upload(ctx, d.Image.Data, d.Image.MIME)
		if err != nil {
			logger.Errorf("composer: chat=%s image upload: %v", d.ChatID, err)
			return err
		}
	}

	if d.Audio != nil {
		return c.sendAudio(ctx, d, sender, receiver)
	}

	msg := model.Message{ChatID: d.ChatID, SenderID: d.SenderID, ReceiverID: d.ReceiverID}
	var translated string
	if imgURL != "" {
		msg.Img = imgURL
	} else {
		translated, err = c.translator.TranslateText(ctx, d.Text, sender.Language, receiver.Language)
		if err != nil {
			logger.Errorf("composer: chat=%s translate: %v", d.ChatID, err)
			return err
		}
		msg.Text = d.Text
		msg.TranslatedText = translated
	}

	stored, err := c.store.Append(ctx, msg)
	if err != nil {
		logger.Errorf("composer: chat=%s append: %v", d.ChatID, err)
		return err
	}

	// failures are logged by the synchronizer
	_ = c.syncer.SyncAfterSend(ctx, summary.SyncInput{
		SenderID:       d.SenderID,
		ReceiverID:     d.ReceiverID,
		ChatID:         d.ChatID,
		OriginalText:   d.Text,
		TranslatedText: translated,
	})

	c.notify(sender, &stored)
	return nil
}

func (c *Composer) sendAudio(ctx context.Context, d *Draft, sender, receiver *model.Participant) error {
	audioURL, err := c.uploader.Upload(ctx, d.Audio.Data, d.Audio.MIME)
	if err != nil {
		logger.Errorf("composer: chat=%s audio upload: %v", d.ChatID, err)
		return err
	}
	err = c.translator.TranslateAudio(ctx, translate.AudioRequest{
		AudioURL:   audioURL,
		SourceLang: sender.Language,
		TargetLang: receiver.Language,
		ReceiverID: d.ReceiverID,
		SenderID:   d.SenderID,
		ChatID:     d.ChatID,
	})
	if err != nil {
		logger.Errorf("composer: chat=%s translate audio: %v", d.ChatID, err)
		return err
	}
	return nil
}

func (c *Composer) participants(ctx context.Context, d *Draft) (*model.Participant, *model.Participant, error) {
	if d.ChatID == "" || d.SenderID == "" || d.ReceiverID == "" {
		return nil, nil, apperr.Invalid("draft is not addressed")
	}
	sender, err := c.directory.Get(ctx, d.SenderID)
	if err != nil {
		return nil, nil, fmt.Errorf("load sender %s: %w", d.SenderID, err)
	}
	receiver, err := c.directory.Get(ctx, d.ReceiverID)
	if err != nil {
		return nil, nil, fmt.Errorf("load receiver %s: %w", d.ReceiverID, err)
	}
	if !model.CanMessage(sender, receiver) {
		return nil, nil, apperr.ErrBlocked
	}
	return sender, receiver, nil
}

func (c *Composer) notify(sender *model.Participant, m *model.Message) {
	if c.notifier == nil {
		return
	}
	title := sender.Username
	if title == "" {
		title = "New message"
	}
	body := m.TranslatedText
	if m.Kind() == model.ContentImage {
		body = "Image"
	}
	if utf8.RuneCountInString(body) > 120 {
		body = string([]rune(body)[:117]) + "..."
	}
	data := map[string]string{"chat_id": m.ChatID, "message_id": m.ID}
	go c.notifier.Notify(context.Background(), m.ReceiverID, title, body, data)
}
