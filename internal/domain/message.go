package domain

import (
	"time"

	"github.com/google/uuid"
)

// DirectMessage is a message between two users. Immutable once created
// except for the read flag.
type DirectMessage struct {
	MessageID  uuid.UUID `json:"message_id"`
	SenderID   uuid.UUID `json:"sender_id"`
	ReceiverID uuid.UUID `json:"receiver_id"`
	Content    string    `json:"content"`
	IsRead     bool      `json:"is_read"`
	CreatedAt  time.Time `json:"created_at"`
}

// GroupMessage is a message posted to a group
type GroupMessage struct {
	MessageID uuid.UUID `json:"message_id"`
	SenderID  uuid.UUID `json:"sender_id"`
	GroupID   uuid.UUID `json:"group_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
