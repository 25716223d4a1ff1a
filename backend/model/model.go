package model

import "encoding/json"

// Role is the part a connection plays inside a room.
type Role string

const (
	RoleHost   Role = "host"
	RoleViewer Role = "viewer"
)

// Connection is one live transport endpoint. RoomID and Role stay empty
// until the connection joins a room.
type Connection struct {
	ID     string
	RoomID string
	Role   Role
}

// Client envelope kinds.
const (
	KindJoinRoom = "join-room"
	KindSignal   = "signal"
	KindPointer  = "pointer"
	KindChat     = "chat-message"
)

// Server-originated envelope kinds.
const (
	KindUserJoined        = "user-joined"
	KindRoomNotFound      = "room-not-found"
	KindRoomAlreadyHosted = "room-already-hosted"
	KindPeerLeft          = "peer-left"
	KindSessionEnded      = "session-ended"
)

// Envelope is one unit of relay traffic. A single struct covers every kind;
// unused fields stay zero and are omitted on the wire. Data holds the
// peer-negotiation payload and is relayed verbatim, never inspected.
type Envelope struct {
	Type   string          `json:"type"`
	RoomID string          `json:"roomId,omitempty"`
	Role   string          `json:"role,omitempty"`
	From   string          `json:"from,omitempty"` // for relayed envelopes server re-assigns this from the sender's connection id
	Data   json.RawMessage `json:"data,omitempty"`
	X      *float64        `json:"x,omitempty"`
	Y      *float64        `json:"y,omitempty"`
	Text   string          `json:"text,omitempty"`
	Ts     int64           `json:"ts,omitempty"`
}

// Valid reports whether a client envelope carries the fields its kind
// requires. Server-originated kinds and unknown kinds are not valid input.
func (e Envelope) Valid() bool {
	switch e.Type {
	case KindJoinRoom:
		return e.RoomID != "" && (Role(e.Role) == RoleHost || Role(e.Role) == RoleViewer)
	case KindSignal:
		return e.RoomID != "" && len(e.Data) > 0
	case KindPointer:
		return e.RoomID != "" && normalized(e.X) && normalized(e.Y)
	case KindChat:
		return e.RoomID != "" && e.Text != ""
	}
	return false
}

func normalized(v *float64) bool {
	return v != nil && *v >= 0 && *v <= 1
}

type Wire struct {
	RX chan Envelope
	TX chan Envelope
}

func NewWire() Wire {
	return Wire{
		RX: make(chan Envelope),
		TX: make(chan Envelope),
	}
}
