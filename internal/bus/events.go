package bus

import "time"

// MessageRef identifies a transport message, e.g. for read receipts.
type MessageRef struct {
	ID     string
	ChatID string
	Sender string
	At     time.Time
}

type InboundMessage struct {
	Channel   string
	SenderID  string
	ChatID    string
	Content   string
	Timestamp time.Time
	Ref       MessageRef
	Metadata  map[string]any

	// Admissibility markers set by the transport.
	FromSelf     bool
	IsGroup      bool
	IsBroadcast  bool
	IsNewsletter bool
	// IsStatus marks a status update posted to the status broadcast channel.
	IsStatus bool
}

// SessionKey is the conversation identifier used by every per-conversation store.
func (m *InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

// OutboundMessage is either a text to send or, when Receipt is set, a request
// to mark Receipt as observed.
type OutboundMessage struct {
	Channel  string
	ChatID   string
	Content  string
	Receipt  *MessageRef
	Metadata map[string]any
}
