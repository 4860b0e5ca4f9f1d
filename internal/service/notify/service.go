package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voicelink-backend/internal/domain"
	"voicelink-backend/internal/handler/ws"
	"voicelink-backend/pkg/errors"
	"voicelink-backend/pkg/logger"
	"voicelink-backend/pkg/metrics"
)

// NotificationRepository persists notification rows
type NotificationRepository interface {
	Create(ctx context.Context, create *domain.NotificationCreate) (*domain.Notification, error)
	GetByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Notification, error)
	GetUnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
	MarkAsRead(ctx context.Context, notificationID, userID uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) error
}

// Pusher delivers a payload to the target's live notification channel.
// Satisfied by the hub.
type Pusher interface {
	SendToIdentity(kind ws.ChannelKind, userID uuid.UUID, payload []byte) error
}

// notificationEvent wraps the persisted row for the WebSocket push
type notificationEvent struct {
	Type         string               `json:"type"`
	Notification *domain.Notification `json:"notification"`
}

// Service is the notification dispatcher. Persist first, then push: live
// delivery is best-effort and a missed push only means the user pulls the
// row over HTTP later.
type Service struct {
	notifications NotificationRepository
	pusher        Pusher
	metrics       *metrics.Metrics
}

// NewService creates a notification service. Metrics may be nil.
func NewService(notifications NotificationRepository, pusher Pusher, m *metrics.Metrics) *Service {
	return &Service{notifications: notifications, pusher: pusher, metrics: m}
}

// Dispatch persists a notification and attempts live delivery
func (s *Service) Dispatch(ctx context.Context, create *domain.NotificationCreate) (*domain.Notification, error) {
	notification, err := s.notifications.Create(ctx, create)
	if err != nil {
		return nil, errors.DatabaseError(err)
	}

	delivery := "live"
	payload, _ := json.Marshal(notificationEvent{
		Type:         ws.EventNotification,
		Notification: notification,
	})
	if err := s.pusher.SendToIdentity(ws.KindNotifications, create.UserID, payload); err != nil {
		delivery = "queued"
		logger.Debug("notification target offline, queued for pull",
			zap.String("user_id", create.UserID.String()),
			zap.String("type", string(create.Type)))
	}

	if s.metrics != nil {
		s.metrics.RecordNotification(string(create.Type), delivery)
	}

	return notification, nil
}

// IncomingCall records an incoming-call notification for an offline receiver
func (s *Service) IncomingCall(ctx context.Context, call *domain.Call, callerName string) error {
	_, err := s.Dispatch(ctx, &domain.NotificationCreate{
		UserID:  call.ReceiverID,
		ActorID: call.CallerID,
		Type:    domain.NotificationIncomingCall,
		Message: fmt.Sprintf("%s is calling you", callerName),
		Data:    callData(call),
	})
	return err
}

// MissedCall records a missed-call notification for the receiver
func (s *Service) MissedCall(ctx context.Context, call *domain.Call) error {
	_, err := s.Dispatch(ctx, &domain.NotificationCreate{
		UserID:  call.ReceiverID,
		ActorID: call.CallerID,
		Type:    domain.NotificationMissedCall,
		Message: "You missed a call",
		Data:    callData(call),
	})
	return err
}

// List retrieves a page of the user's notifications, newest first
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Notification, error) {
	return s.notifications.GetByUserID(ctx, userID, limit, offset)
}

// UnreadCount reports how many notifications the user has not read
func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.notifications.GetUnreadCount(ctx, userID)
}

// MarkRead marks one of the user's notifications as read
func (s *Service) MarkRead(ctx context.Context, notificationID, userID uuid.UUID) error {
	return s.notifications.MarkAsRead(ctx, notificationID, userID)
}

// MarkAllRead marks all of the user's notifications as read
func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	return s.notifications.MarkAllAsRead(ctx, userID)
}

func callData(call *domain.Call) map[string]interface{} {
	return map[string]interface{}{
		"call_id":   call.CallID.String(),
		"call_type": string(call.CallType),
		"room_id":   call.RoomID,
	}
}
