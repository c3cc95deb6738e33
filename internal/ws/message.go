package ws

import "github.com/linguachat/internal/model"

type EventType string

const (
	EventSnapshot EventType = "snapshot"
	EventSeen     EventType = "seen"
	EventError    EventType = "error"
)

// IncomingMessage is what the client sends to the server.
type IncomingMessage struct {
	Type EventType `json:"type"`
}

// OutgoingMessage is what the server sends to the client.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

func snapshotMessage(snap *model.Conversation, viewerID string) OutgoingMessage {
	return OutgoingMessage{Type: EventSnapshot, Payload: snap.ViewFor(viewerID)}
}
