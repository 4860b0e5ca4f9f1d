package ws

import (
	"fmt"

	"github.com/google/uuid"
)

// Room naming is reproducible bit-for-bit: both ends of a conversation
// compute the same name independently.

// CallRoom scopes a caller-supplied room token
func CallRoom(token string) string {
	return "call_" + token
}

// PresenceRoom is the personal channel of a user
func PresenceRoom(userID uuid.UUID) string {
	return fmt.Sprintf("user_%s", userID)
}

// DirectRoom is the canonical room for a two-party conversation.
// Participant ids are ordered ascending so room(a,b) == room(b,a).
func DirectRoom(a, b uuid.UUID) string {
	if b.String() < a.String() {
		a, b = b, a
	}
	return fmt.Sprintf("dm_%s_%s", a, b)
}

// GroupRoom is the room for a group conversation
func GroupRoom(groupID uuid.UUID) string {
	return fmt.Sprintf("group_%s", groupID)
}

// NotificationRoom is the notification channel of a user
func NotificationRoom(userID uuid.UUID) string {
	return fmt.Sprintf("notifications_%s", userID)
}

// StatusRoom is the online-status channel of a user
func StatusRoom(userID uuid.UUID) string {
	return fmt.Sprintf("user_status_%s", userID)
}
