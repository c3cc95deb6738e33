package model

import "time"

type ContentKind string

const (
	ContentText  ContentKind = "text"
	ContentImage ContentKind = "image"
	ContentAudio ContentKind = "audio"
)

// Message is one immutable entry of a conversation log.
// Exactly one content kind is populated: Text+TranslatedText, Img, or Audio+TranslatedAudio.
// Text always holds the sender's original wording, TranslatedText the receiver's.
type Message struct {
	ID              string    `json:"id"`
	ChatID          string    `json:"chat_id"`
	Seq             int64     `json:"seq"`
	SenderID        string    `json:"sender_id"`
	ReceiverID      string    `json:"receiver_id"`
	Text            string    `json:"text,omitempty"`
	TranslatedText  string    `json:"translated_text,omitempty"`
	Img             string    `json:"img,omitempty"`
	Audio           string    `json:"audio,omitempty"`
	TranslatedAudio string    `json:"translated_audio,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Kind reports which content the message carries. A message with no content reports "".
func (m *Message) Kind() ContentKind {
	switch {
	case m.Audio != "":
		return ContentAudio
	case m.Img != "":
		return ContentImage
	case m.Text != "" || m.TranslatedText != "":
		return ContentText
	}
	return ""
}

// Valid checks content-type exclusivity.
func (m *Message) Valid() bool {
	n := 0
	if m.Text != "" || m.TranslatedText != "" {
		n++
	}
	if m.Img != "" {
		n++
	}
	if m.Audio != "" || m.TranslatedAudio != "" {
		n++
	}
	return n == 1
}

// MessageView is a message as one participant sees it.
type MessageView struct {
	ID        string      `json:"id"`
	Seq       int64       `json:"seq"`
	Own       bool        `json:"own"`
	Kind      ContentKind `json:"kind"`
	Text      string      `json:"text,omitempty"`
	Img       string      `json:"img,omitempty"`
	Audio     string      `json:"audio,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// ViewFor selects the fields the viewer reads: the sender gets the original text and
// recording, everyone else gets the translation.
func (m *Message) ViewFor(viewerID string) MessageView {
	own := m.SenderID == viewerID
	v := MessageView{
		ID:        m.ID,
		Seq:       m.Seq,
		Own:       own,
		Kind:      m.Kind(),
		Img:       m.Img,
		CreatedAt: m.CreatedAt,
	}
	if own {
		v.Text = m.Text
		v.Audio = m.Audio
	} else {
		v.Text = m.TranslatedText
		v.Audio = m.TranslatedAudio
	}
	return v
}
