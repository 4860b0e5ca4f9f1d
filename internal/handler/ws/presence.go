package ws

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voicelink-backend/pkg/errors"
	"voicelink-backend/pkg/logger"
	"voicelink-backend/pkg/metrics"
)

// PresenceTracker projects online status into shared storage so components
// outside this process can read it
type PresenceTracker interface {
	SetUserOnline(ctx context.Context, userID uuid.UUID) error
	SetUserOffline(ctx context.Context, userID uuid.UUID) error
	RefreshPresence(ctx context.Context, userID uuid.UUID) error
}

// FollowerSource resolves who should hear about a user's status changes
type FollowerSource interface {
	GetFollowerIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// PresenceChannels manages the personal channels: presence, notifications and
// status. These carry server-pushed events; the only inbound traffic they
// accept is the keepalive ping.
type PresenceChannels struct {
	hub       *Hub
	tracker   PresenceTracker
	followers FollowerSource
	metrics   *metrics.Metrics
}

// NewPresenceChannels creates the personal-channel manager. Tracker,
// followers and metrics may each be nil.
func NewPresenceChannels(hub *Hub, tracker PresenceTracker, followers FollowerSource, m *metrics.Metrics) *PresenceChannels {
	return &PresenceChannels{hub: hub, tracker: tracker, followers: followers, metrics: m}
}

// PresenceHandler returns the frame handler for the presence channel.
// Pings double as heartbeats refreshing the shared presence projection.
func (p *PresenceChannels) PresenceHandler() FrameHandler {
	return func(ctx context.Context, c *Client, frame []byte) {
		if !p.acceptPing(ctx, c, frame) {
			return
		}

		if p.tracker != nil {
			if err := p.tracker.RefreshPresence(ctx, c.userID); err != nil {
				logger.Warn("presence refresh failed",
					zap.String("user_id", c.userID.String()),
					zap.Error(err))
			}
		}
	}
}

// KeepaliveHandler returns the frame handler for push-only channels
// (notifications, status)
func (p *PresenceChannels) KeepaliveHandler() FrameHandler {
	return func(ctx context.Context, c *Client, frame []byte) {
		p.acceptPing(ctx, c, frame)
	}
}

// acceptPing answers pings with pongs and rejects everything else.
// Returns true when the frame was a valid ping.
func (p *PresenceChannels) acceptPing(_ context.Context, c *Client, frame []byte) bool {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		p.recordError(c, errors.ErrCodeMalformedFrame)
		c.Send(invalidJSON)
		return false
	}

	if p.metrics != nil {
		p.metrics.RecordFrame(c.endpoint, env.Type)
	}

	if env.Type != FramePing {
		p.recordError(c, errors.ErrCodeValidation)
		c.Send(marshalError("Unknown frame type"))
		return false
	}

	c.Send(marshal(envelope{Type: FramePong}))
	return true
}

// UserOnline records a user coming online and tells their followers
func (p *PresenceChannels) UserOnline(ctx context.Context, userID uuid.UUID, username string) {
	if p.tracker != nil {
		if err := p.tracker.SetUserOnline(ctx, userID); err != nil {
			logger.Warn("failed to project presence online",
				zap.String("user_id", userID.String()),
				zap.Error(err))
		}
	}

	p.fanOutStatus(ctx, userID, username, "online")
}

// UserOffline records a user going offline and tells their followers
func (p *PresenceChannels) UserOffline(ctx context.Context, userID uuid.UUID, username string) {
	if p.tracker != nil {
		if err := p.tracker.SetUserOffline(ctx, userID); err != nil {
			logger.Warn("failed to project presence offline",
				zap.String("user_id", userID.String()),
				zap.Error(err))
		}
	}

	p.fanOutStatus(ctx, userID, username, "offline")
}

// fanOutStatus delivers a status-changed event to the status channel of every
// follower. Followers listen on their own status room, so each one hears
// about all the users they follow over a single connection.
func (p *PresenceChannels) fanOutStatus(ctx context.Context, userID uuid.UUID, username, status string) {
	if p.followers == nil {
		return
	}

	followerIDs, err := p.followers.GetFollowerIDs(ctx, userID)
	if err != nil {
		logger.Error("failed to resolve followers for status fan-out",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return
	}

	payload := marshal(statusEvent{
		Type:     EventStatusChanged,
		UserID:   userID,
		Username: username,
		Status:   status,
	})
	for _, followerID := range followerIDs {
		p.hub.Deliver(ctx, StatusRoom(followerID), payload)
	}
}

func (p *PresenceChannels) recordError(c *Client, code errors.ErrorCode) {
	if p.metrics != nil {
		p.metrics.RecordFrameError(c.endpoint, string(code))
	}
}
