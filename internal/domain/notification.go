package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType enumerates the domain events that produce notifications
type NotificationType string

const (
	NotificationLikePost      NotificationType = "like_post"
	NotificationLikeComment   NotificationType = "like_comment"
	NotificationComment       NotificationType = "comment"
	NotificationFriendRequest NotificationType = "friend_request"
	NotificationFriendAccept  NotificationType = "friend_accept"
	NotificationIncomingCall  NotificationType = "incoming_call"
	NotificationMissedCall    NotificationType = "missed_call"
)

// Notification is a persisted user notification. Real-time delivery is
// at-most-once; undelivered notifications stay queryable for later pull.
type Notification struct {
	NotificationID uuid.UUID              `json:"notification_id"`
	UserID         uuid.UUID              `json:"user_id"`
	ActorID        uuid.UUID              `json:"actor_id"`
	Type           NotificationType       `json:"type"`
	Message        string                 `json:"message"`
	Data           map[string]interface{} `json:"data,omitempty"`
	IsRead         bool                   `json:"is_read"`
	CreatedAt      time.Time              `json:"created_at"`
}

// NotificationCreate holds the data needed to create a notification
type NotificationCreate struct {
	UserID  uuid.UUID
	ActorID uuid.UUID
	Type    NotificationType
	Message string
	Data    map[string]interface{}
}
