package ws

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voicelink-backend/internal/domain"
	"voicelink-backend/pkg/errors"
	"voicelink-backend/pkg/logger"
	"voicelink-backend/pkg/metrics"
)

// MessageStore persists conversation messages before they are echoed to the
// room. Persist-then-broadcast: a message a member saw is always on disk.
type MessageStore interface {
	CreateDirect(ctx context.Context, senderID, receiverID uuid.UUID, content string) (*domain.DirectMessage, error)
	CreateGroup(ctx context.Context, senderID, groupID uuid.UUID, content string) (*domain.GroupMessage, error)
	MarkDirectRead(ctx context.Context, messageID, receiverID uuid.UUID) error
}

// GroupMembership answers the per-frame authorization check for group rooms
type GroupMembership interface {
	IsApprovedMember(ctx context.Context, userID, groupID uuid.UUID) (bool, error)
}

// ConversationRelay handles direct and group message traffic. Unlike the
// signaling relay it echoes the persisted record, not the sender's bytes, so
// every member including the sender sees the generated id and timestamp.
type ConversationRelay struct {
	hub      *Hub
	messages MessageStore
	groups   GroupMembership
	metrics  *metrics.Metrics
}

// NewConversationRelay creates a relay. Metrics may be nil.
func NewConversationRelay(hub *Hub, messages MessageStore, groups GroupMembership, m *metrics.Metrics) *ConversationRelay {
	return &ConversationRelay{hub: hub, messages: messages, groups: groups, metrics: m}
}

// DirectHandler returns the frame handler for a two-party conversation room
func (r *ConversationRelay) DirectHandler(room string, peerID uuid.UUID) FrameHandler {
	return func(ctx context.Context, c *Client, frame []byte) {
		r.handleDirect(ctx, room, peerID, c, frame)
	}
}

// GroupHandler returns the frame handler for a group conversation room.
// Membership is checked per frame: a member removed mid-session loses the
// ability to post on the very next message.
func (r *ConversationRelay) GroupHandler(room string, groupID uuid.UUID) FrameHandler {
	return func(ctx context.Context, c *Client, frame []byte) {
		r.handleGroup(ctx, room, groupID, c, frame)
	}
}

func (r *ConversationRelay) handleDirect(ctx context.Context, room string, peerID uuid.UUID, c *Client, frame []byte) {
	var cf conversationFrame
	if err := json.Unmarshal(frame, &cf); err != nil {
		r.recordError(c, errors.ErrCodeMalformedFrame)
		c.Send(invalidJSON)
		return
	}

	r.recordFrame(c, cf.Type)

	switch cf.Type {
	case FrameMessage:
		content := strings.TrimSpace(cf.Content)
		if content == "" {
			r.recordError(c, errors.ErrCodeValidation)
			c.Send(marshalError("Message content is required"))
			return
		}

		msg, err := r.messages.CreateDirect(ctx, c.userID, peerID, content)
		if err != nil {
			logger.Error("failed to persist direct message",
				zap.String("sender_id", c.userID.String()),
				zap.String("receiver_id", peerID.String()),
				zap.Error(err))
			r.recordError(c, errors.ErrCodeDatabase)
			c.Send(marshalError("Message could not be delivered"))
			return
		}

		// echoed to the whole room, sender included
		r.hub.Broadcast(room, marshal(directMessageEvent{
			Type:       FrameMessage,
			MessageID:  msg.MessageID,
			SenderID:   msg.SenderID,
			SenderName: c.username,
			ReceiverID: msg.ReceiverID,
			Content:    msg.Content,
			CreatedAt:  msg.CreatedAt,
		}), nil)

	case FrameRead:
		messageID, err := uuid.Parse(cf.MessageID)
		if err != nil {
			r.recordError(c, errors.ErrCodeValidation)
			c.Send(marshalError("Invalid message_id"))
			return
		}

		if err := r.messages.MarkDirectRead(ctx, messageID, c.userID); err != nil {
			logger.Error("failed to mark message read",
				zap.String("message_id", cf.MessageID),
				zap.Error(err))
			return
		}

		r.hub.Broadcast(room, marshal(readEvent{
			Type:      FrameRead,
			MessageID: messageID,
			ReaderID:  c.userID,
		}), c)

	case FramePing:
		c.Send(marshal(envelope{Type: FramePong}))

	default:
		r.recordError(c, errors.ErrCodeValidation)
		c.Send(marshalError("Unknown frame type"))
	}
}

func (r *ConversationRelay) handleGroup(ctx context.Context, room string, groupID uuid.UUID, c *Client, frame []byte) {
	var cf conversationFrame
	if err := json.Unmarshal(frame, &cf); err != nil {
		r.recordError(c, errors.ErrCodeMalformedFrame)
		c.Send(invalidJSON)
		return
	}

	r.recordFrame(c, cf.Type)

	switch cf.Type {
	case FrameMessage:
		content := strings.TrimSpace(cf.Content)
		if content == "" {
			r.recordError(c, errors.ErrCodeValidation)
			c.Send(marshalError("Message content is required"))
			return
		}

		member, err := r.groups.IsApprovedMember(ctx, c.userID, groupID)
		if err != nil {
			logger.Error("failed to check group membership",
				zap.String("group_id", groupID.String()),
				zap.String("user_id", c.userID.String()),
				zap.Error(err))
			r.recordError(c, errors.ErrCodeDatabase)
			c.Send(marshalError("Message could not be delivered"))
			return
		}
		if !member {
			r.recordError(c, errors.ErrCodeNotAMember)
			c.Send(marshalError(errors.NotAMemberError().Message))
			return
		}

		msg, err := r.messages.CreateGroup(ctx, c.userID, groupID, content)
		if err != nil {
			logger.Error("failed to persist group message",
				zap.String("group_id", groupID.String()),
				zap.String("sender_id", c.userID.String()),
				zap.Error(err))
			r.recordError(c, errors.ErrCodeDatabase)
			c.Send(marshalError("Message could not be delivered"))
			return
		}

		r.hub.Broadcast(room, marshal(groupMessageEvent{
			Type:       FrameMessage,
			MessageID:  msg.MessageID,
			SenderID:   msg.SenderID,
			SenderName: c.username,
			GroupID:    msg.GroupID,
			Content:    msg.Content,
			CreatedAt:  msg.CreatedAt,
		}), nil)

	case FramePing:
		c.Send(marshal(envelope{Type: FramePong}))

	default:
		r.recordError(c, errors.ErrCodeValidation)
		c.Send(marshalError("Unknown frame type"))
	}
}

func (r *ConversationRelay) recordFrame(c *Client, frameType string) {
	if r.metrics != nil {
		r.metrics.RecordFrame(c.endpoint, frameType)
	}
}

func (r *ConversationRelay) recordError(c *Client, code errors.ErrorCode) {
	if r.metrics != nil {
		r.metrics.RecordFrameError(c.endpoint, string(code))
	}
}
