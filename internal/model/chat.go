package model

import "time"

// Conversation is an immutable snapshot of a chat's message log.
// Version equals len(Messages); a higher version always contains every message of a lower one.
type Conversation struct {
	ChatID   string    `json:"chat_id"`
	Messages []Message `json:"messages"`
	Version  int64     `json:"version"`
}

// ViewFor renders the whole snapshot for one participant.
func (c *Conversation) ViewFor(viewerID string) ConversationView {
	views := make([]MessageView, 0, len(c.Messages))
	for i := range c.Messages {
		views = append(views, c.Messages[i].ViewFor(viewerID))
	}
	return ConversationView{ChatID: c.ChatID, Version: c.Version, Messages: views}
}

type ConversationView struct {
	ChatID   string        `json:"chat_id"`
	Version  int64         `json:"version"`
	Messages []MessageView `json:"messages"`
}

// ChatSummary is the per-user chat list entry for one chat.
type ChatSummary struct {
	ChatID      string    `json:"chat_id"`
	ReceiverID  string    `json:"receiver_id"`
	LastMessage string    `json:"last_message"`
	IsSeen      bool      `json:"is_seen"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Chat is a two-party conversation.
type Chat struct {
	ID        string    `json:"id"`
	Members   []string  `json:"members"`
	CreatedAt time.Time `json:"created_at"`
}

// Peer returns the other member of the chat, or "" if userID is not a member.
func (c *Chat) Peer(userID string) string {
	if len(c.Members) != 2 {
		return ""
	}
	switch userID {
	case c.Members[0]:
		return c.Members[1]
	case c.Members[1]:
		return c.Members[0]
	}
	return ""
}
