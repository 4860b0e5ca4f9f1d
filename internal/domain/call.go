package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CallStatus enumerates the call lifecycle states
type CallStatus string

const (
	CallStatusInitiated CallStatus = "initiated"
	CallStatusRinging   CallStatus = "ringing"
	CallStatusAccepted  CallStatus = "accepted"
	CallStatusRejected  CallStatus = "rejected"
	CallStatusEnded     CallStatus = "ended"
	CallStatusMissed    CallStatus = "missed"
	CallStatusCancelled CallStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusEnded, CallStatusRejected, CallStatusCancelled, CallStatusMissed:
		return true
	}
	return false
}

// CallType enumerates the media kinds of a call
type CallType string

const (
	CallTypeAudio CallType = "audio"
	CallTypeVideo CallType = "video"
)

// Call tracks a call between two users. The room token correlates the call's
// signaling traffic across both parties and never changes after creation.
type Call struct {
	CallID      uuid.UUID  `json:"call_id"`
	CallerID    uuid.UUID  `json:"caller_id"`
	ReceiverID  uuid.UUID  `json:"receiver_id"`
	CallType    CallType   `json:"call_type"`
	Status      CallStatus `json:"status"`
	RoomID      string     `json:"room_id"`
	InitiatedAt time.Time  `json:"initiated_at"`
	RingingAt   *time.Time `json:"ringing_at,omitempty"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	Duration    int        `json:"duration"` // whole seconds
}

// ComputeDuration returns the call duration in whole seconds.
// Non-zero only when both accepted and ended timestamps are set.
func (c *Call) ComputeDuration() int {
	if c.AcceptedAt != nil && c.EndedAt != nil {
		return int(c.EndedAt.Sub(*c.AcceptedAt).Seconds())
	}
	return 0
}

// CallSignal is an append-only diagnostic record of a relayed WebRTC signal
type CallSignal struct {
	SignalID   uuid.UUID       `json:"signal_id"`
	CallID     uuid.UUID       `json:"call_id"`
	SignalType string          `json:"signal_type"` // offer, answer, ice-candidate
	SignalData json.RawMessage `json:"signal_data"`
	SenderID   uuid.UUID       `json:"sender_id"`
	CreatedAt  time.Time       `json:"created_at"`
}
