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

// CallSignaler is the slice of the call service the signaling router needs:
// lifecycle transitions driven over the socket, and the append-only record of
// relayed signals.
type CallSignaler interface {
	Ring(ctx context.Context, callID, actorID uuid.UUID) error
	End(ctx context.Context, callID, actorID uuid.UUID) error
	RecordSignal(ctx context.Context, callID uuid.UUID, signalType string, payload json.RawMessage, senderID uuid.UUID) error
}

// SignalingRouter relays WebRTC handshake traffic through a call room. It is
// transport, not negotiation: SDP offers, answers and ICE candidates pass
// through byte-for-byte, and only frames that move the call lifecycle touch
// the database.
type SignalingRouter struct {
	hub     *Hub
	calls   CallSignaler
	metrics *metrics.Metrics
}

// NewSignalingRouter creates a router. Metrics may be nil.
func NewSignalingRouter(hub *Hub, calls CallSignaler, m *metrics.Metrics) *SignalingRouter {
	return &SignalingRouter{hub: hub, calls: calls, metrics: m}
}

// Handler returns the frame handler for a connection joined to the given
// call room.
func (r *SignalingRouter) Handler(room string) FrameHandler {
	return func(ctx context.Context, c *Client, frame []byte) {
		r.handle(ctx, room, c, frame)
	}
}

func (r *SignalingRouter) handle(ctx context.Context, room string, c *Client, frame []byte) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		r.recordError(c, errors.ErrCodeMalformedFrame)
		c.Send(invalidJSON)
		return
	}

	r.recordFrame(c, env.Type)

	switch env.Type {
	case FrameCallOffer:
		r.relaySignal(ctx, room, c, frame, FrameCallOffer)
	case FrameCallAnswer:
		r.relaySignal(ctx, room, c, frame, FrameCallAnswer)
	case FrameICECandidate:
		r.relaySignal(ctx, room, c, frame, FrameICECandidate)
	case FrameRinging:
		r.handleRinging(ctx, room, c, frame)
	case FrameCallEnd:
		r.handleCallEnd(ctx, room, c, frame)
	default:
		// unknown types are rebroadcast verbatim so clients can extend
		// the handshake without a server change
		r.hub.Broadcast(room, frame, c)
	}
}

// relaySignal validates the payload the frame type promises, records the
// signal when it names a call, and rebroadcasts the original bytes.
func (r *SignalingRouter) relaySignal(ctx context.Context, room string, c *Client, frame []byte, frameType string) {
	var sf signalFrame
	if err := json.Unmarshal(frame, &sf); err != nil {
		r.recordError(c, errors.ErrCodeMalformedFrame)
		c.Send(invalidJSON)
		return
	}

	payload := sf.Offer
	switch frameType {
	case FrameCallAnswer:
		payload = sf.Answer
	case FrameICECandidate:
		payload = sf.Candidate
	}
	if len(payload) == 0 {
		r.recordError(c, errors.ErrCodeValidation)
		c.Send(marshalError("Missing " + frameType + " payload"))
		return
	}

	if callID, err := uuid.Parse(sf.CallID); err == nil {
		if err := r.calls.RecordSignal(ctx, callID, frameType, payload, c.userID); err != nil {
			// the relay must not stall on bookkeeping
			logger.Warn("failed to record call signal",
				zap.String("call_id", sf.CallID),
				zap.String("signal_type", frameType),
				zap.Error(err))
		}
	}

	r.hub.Broadcast(room, frame, c)
}

// handleRinging moves the call to ringing and relays the frame. A failed
// transition is reported to the sender only; the relay still happens, so a
// late or duplicate ringing frame cannot break the handshake in flight.
func (r *SignalingRouter) handleRinging(ctx context.Context, room string, c *Client, frame []byte) {
	var sf signalFrame
	if err := json.Unmarshal(frame, &sf); err != nil {
		r.recordError(c, errors.ErrCodeMalformedFrame)
		c.Send(invalidJSON)
		return
	}

	if callID, err := uuid.Parse(sf.CallID); err == nil {
		if err := r.calls.Ring(ctx, callID, c.userID); err != nil {
			r.sendAppError(c, err)
			logger.Debug("ringing transition refused",
				zap.String("call_id", sf.CallID),
				zap.String("user_id", c.userID.String()),
				zap.Error(err))
		}
	}

	r.hub.Broadcast(room, frame, c)
}

// handleCallEnd ends an accepted call and relays the frame so the peer tears
// down its media immediately. When the record refuses the transition (already
// terminal, never accepted) the sender gets the error and the record stays
// unchanged, but the relay still happens.
func (r *SignalingRouter) handleCallEnd(ctx context.Context, room string, c *Client, frame []byte) {
	var sf signalFrame
	if err := json.Unmarshal(frame, &sf); err != nil {
		r.recordError(c, errors.ErrCodeMalformedFrame)
		c.Send(invalidJSON)
		return
	}

	if callID, err := uuid.Parse(sf.CallID); err == nil {
		if err := r.calls.End(ctx, callID, c.userID); err != nil {
			r.sendAppError(c, err)
			logger.Debug("call-end transition refused",
				zap.String("call_id", sf.CallID),
				zap.String("user_id", c.userID.String()),
				zap.Error(err))
		}
	}

	r.hub.Broadcast(room, frame, c)
}

func (r *SignalingRouter) sendAppError(c *Client, err error) {
	appErr := errors.GetAppError(err)
	r.recordError(c, appErr.Code)
	c.Send(marshalError(appErr.Message))
}

func (r *SignalingRouter) recordFrame(c *Client, frameType string) {
	if r.metrics != nil {
		r.metrics.RecordFrame(c.endpoint, frameType)
	}
}

func (r *SignalingRouter) recordError(c *Client, code errors.ErrorCode) {
	if r.metrics != nil {
		r.metrics.RecordFrameError(c.endpoint, string(code))
	}
}
