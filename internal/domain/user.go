package domain

import (
	"github.com/google/uuid"
)

// User is the minimal projection of a user consumed by the signaling core.
// Durable user storage is owned by an external service; the online flag is
// derived from the connection registry, never persisted here.
type User struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
}
