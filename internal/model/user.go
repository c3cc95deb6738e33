package model

// Participant is a chat member as the send pipeline needs it. Owned by the profile
// service; read only here.
type Participant struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Language string   `json:"language"`
	Blocked  []string `json:"blocked,omitempty"` // ids this participant has blocked
}

func (p *Participant) HasBlocked(userID string) bool {
	for _, id := range p.Blocked {
		if id == userID {
			return true
		}
	}
	return false
}

// CanMessage reports whether neither side blocked the other.
func CanMessage(sender, receiver *Participant) bool {
	return !sender.HasBlocked(receiver.ID) && !receiver.HasBlocked(sender.ID)
}
