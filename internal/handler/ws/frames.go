package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Signaling frame types relayed through call rooms
const (
	FrameCallOffer    = "call-offer"
	FrameCallAnswer   = "call-answer"
	FrameICECandidate = "ice-candidate"
	FrameCallEnd      = "call-end"
	FrameRinging      = "ringing"
)

// Conversation frame types
const (
	FrameMessage = "message"
	FrameRead    = "read"
)

// Keepalive frame types
const (
	FramePing = "ping"
	FramePong = "pong"
)

// Event types pushed to personal channels
const (
	EventIncomingCall  = "incoming-call"
	EventCallCancelled = "call-cancelled"
	EventCallEnded     = "call-ended"
	EventNotification  = "notification"
	EventStatusChanged = "status-changed"
	EventUserJoined    = "user-joined"
	EventUserLeft      = "user-left"
)

// envelope is the minimal shape every inbound frame must satisfy:
// a JSON object with a string type field.
type envelope struct {
	Type string `json:"type"`
}

// signalFrame is an inbound signaling frame. Payload fields are kept opaque:
// SDP and ICE data pass through untouched.
type signalFrame struct {
	Type      string          `json:"type"`
	CallID    string          `json:"call_id,omitempty"`
	CallType  string          `json:"call_type,omitempty"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

// conversationFrame is an inbound direct or group message frame
type conversationFrame struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// userEvent announces room membership changes to other members
type userEvent struct {
	Type     string    `json:"type"`
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
}

// directMessageEvent echoes the fully persisted message record to the room,
// so both members see identical data including the generated id and timestamp.
type directMessageEvent struct {
	Type       string    `json:"type"`
	MessageID  uuid.UUID `json:"message_id"`
	SenderID   uuid.UUID `json:"sender_id"`
	SenderName string    `json:"sender_username"`
	ReceiverID uuid.UUID `json:"receiver_id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// groupMessageEvent is the group-room counterpart of directMessageEvent
type groupMessageEvent struct {
	Type       string    `json:"type"`
	MessageID  uuid.UUID `json:"message_id"`
	SenderID   uuid.UUID `json:"sender_id"`
	SenderName string    `json:"sender_username"`
	GroupID    uuid.UUID `json:"group_id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// readEvent confirms a read receipt to the room
type readEvent struct {
	Type      string    `json:"type"`
	MessageID uuid.UUID `json:"message_id"`
	ReaderID  uuid.UUID `json:"reader_id"`
}

// statusEvent tells followers a user's availability changed
type statusEvent struct {
	Type     string    `json:"type"`
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Status   string    `json:"status"`
}

// errorFrame is sent to the offending sender only, never to the room
type errorFrame struct {
	Error string `json:"error"`
}

func marshalError(message string) []byte {
	payload, _ := json.Marshal(errorFrame{Error: message})
	return payload
}

func marshal(v interface{}) []byte {
	payload, _ := json.Marshal(v)
	return payload
}

// invalidJSON is the reply for unparseable frames
var invalidJSON = marshalError("Invalid JSON")
