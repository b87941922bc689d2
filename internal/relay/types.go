// Package relay implements the in-memory core of the chat service: the
// pairing registry for 1:1 stranger chats, the global room broadcaster, and
// the standby presence tracker, orchestrated by Service.
package relay

// Envelope is the JSON wire format for every outbound event. Field names are
// fixed for client compatibility.
type Envelope struct {
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Count     int    `json:"count,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// Envelope type discriminators.
const (
	TypeSystem        = "system"
	TypeMessage       = "message"
	TypeGlobalMessage = "global_message"
	TypeUserCount     = "user_count"
)

// System messages sent on pairing lifecycle events.
const (
	msgPartnerConnected    = "Connected to a chat partner!"
	msgPartnerDisconnected = "Chat partner disconnected"
	msgContentFiltered     = "⚠️ Your message contained inappropriate content and was filtered."
)

// Conn is the live send side of one connected peer. Send must fail fast when
// the peer is gone or its buffer is full; it must never block the caller.
type Conn interface {
	Send(v any) error
	Close() error
}

// Attributes is the tuple used for equality-based stranger matching.
type Attributes struct {
	Campus     string
	Preference string
}
