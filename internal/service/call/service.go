package call

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voicelink-backend/internal/domain"
	"voicelink-backend/internal/handler/ws"
	"voicelink-backend/pkg/constants"
	"voicelink-backend/pkg/errors"
	"voicelink-backend/pkg/logger"
	"voicelink-backend/pkg/metrics"
)

// CallRepository is the storage surface the state machine drives
type CallRepository interface {
	Create(ctx context.Context, call *domain.Call) error
	GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error)
	Transition(ctx context.Context, callID uuid.UUID, from []domain.CallStatus, to domain.CallStatus, at time.Time) (bool, error)
	GetHistory(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Call, error)
	GetActive(ctx context.Context, userID uuid.UUID) ([]*domain.Call, error)
	GetMissed(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Call, error)
	ListStale(ctx context.Context, before time.Time) ([]*domain.Call, error)
}

// SignalRepository stores the append-only diagnostic signal log
type SignalRepository interface {
	Append(ctx context.Context, signal *domain.CallSignal) error
}

// EventPusher delivers call lifecycle events to live connections.
// Satisfied by the hub.
type EventPusher interface {
	SendToIdentity(kind ws.ChannelKind, userID uuid.UUID, payload []byte) error
	Deliver(ctx context.Context, room string, payload []byte)
}

// Notifier records call notifications for users who were not reachable live
type Notifier interface {
	IncomingCall(ctx context.Context, call *domain.Call, callerName string) error
	MissedCall(ctx context.Context, call *domain.Call) error
}

// incomingCallEvent is pushed to the receiver's presence channel on initiate
type incomingCallEvent struct {
	Type           string    `json:"type"`
	CallID         uuid.UUID `json:"call_id"`
	Caller         uuid.UUID `json:"caller"`
	CallerUsername string    `json:"caller_username"`
	CallType       string    `json:"call_type"`
	RoomID         string    `json:"room_id"`
}

// callLifecycleEvent tells the counterparty a call was cancelled or ended
type callLifecycleEvent struct {
	Type     string    `json:"type"`
	CallID   uuid.UUID `json:"call_id"`
	RoomID   string    `json:"room_id"`
	Duration int       `json:"duration,omitempty"`
}

// Service is the call state machine. Every transition is actor-gated and
// applied with a compare-and-swap on status: of two racing transitions
// exactly one wins, the loser observes the winner's state and fails.
type Service struct {
	calls    CallRepository
	signals  SignalRepository
	pusher   EventPusher
	notifier Notifier
	metrics  *metrics.Metrics
}

// NewService creates a call service. Notifier and metrics may be nil.
func NewService(calls CallRepository, signals SignalRepository, pusher EventPusher, notifier Notifier, m *metrics.Metrics) *Service {
	return &Service{
		calls:    calls,
		signals:  signals,
		pusher:   pusher,
		notifier: notifier,
		metrics:  m,
	}
}

// Initiate creates a call record and offers it to the receiver over their
// presence channel. The minted room token is the capability both parties use
// to join the signaling room.
func (s *Service) Initiate(ctx context.Context, callerID uuid.UUID, callerName string, receiverID uuid.UUID, callType domain.CallType) (*domain.Call, error) {
	if callType != domain.CallTypeAudio && callType != domain.CallTypeVideo {
		return nil, errors.ValidationError("call_type must be audio or video")
	}
	if callerID == receiverID {
		return nil, errors.ValidationError("cannot call yourself")
	}

	call := &domain.Call{
		CallID:      uuid.New(),
		CallerID:    callerID,
		ReceiverID:  receiverID,
		CallType:    callType,
		Status:      domain.CallStatusInitiated,
		RoomID:      uuid.New().String(),
		InitiatedAt: time.Now().UTC(),
	}

	if err := s.calls.Create(ctx, call); err != nil {
		if errors.Is(err, errors.ErrCodeUserNotFound) {
			return nil, err
		}
		return nil, errors.DatabaseError(err)
	}

	if s.metrics != nil {
		s.metrics.CallStarted()
	}

	payload := mustMarshal(incomingCallEvent{
		Type:           ws.EventIncomingCall,
		CallID:         call.CallID,
		Caller:         callerID,
		CallerUsername: callerName,
		CallType:       string(callType),
		RoomID:         call.RoomID,
	})
	if err := s.pusher.SendToIdentity(ws.KindPresence, receiverID, payload); err != nil {
		// receiver not connected here: leave a notification they can pull
		if s.notifier != nil {
			if nerr := s.notifier.IncomingCall(ctx, call, callerName); nerr != nil {
				logger.Error("failed to record incoming-call notification",
					zap.String("call_id", call.CallID.String()),
					zap.Error(nerr))
			}
		}
	}

	return call, nil
}

// Ring acknowledges delivery to the receiver's device
func (s *Service) Ring(ctx context.Context, callID, actorID uuid.UUID) error {
	call, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		return err
	}
	if actorID != call.ReceiverID {
		return errors.NotAuthorizedError("only the receiver can ring a call")
	}

	return s.transition(ctx, callID,
		[]domain.CallStatus{domain.CallStatusInitiated},
		domain.CallStatusRinging)
}

// Accept answers the call. Receiver only, from initiated or ringing.
func (s *Service) Accept(ctx context.Context, callID, actorID uuid.UUID) (*domain.Call, error) {
	call, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}
	if actorID != call.ReceiverID {
		return nil, errors.NotAuthorizedError("only the receiver can accept a call")
	}

	err = s.transition(ctx, callID,
		[]domain.CallStatus{domain.CallStatusInitiated, domain.CallStatusRinging},
		domain.CallStatusAccepted)
	if err != nil {
		return nil, err
	}

	return s.calls.GetByID(ctx, callID)
}

// Reject declines the call. Receiver only, from initiated or ringing.
func (s *Service) Reject(ctx context.Context, callID, actorID uuid.UUID) (*domain.Call, error) {
	call, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}
	if actorID != call.ReceiverID {
		return nil, errors.NotAuthorizedError("only the receiver can reject a call")
	}

	err = s.transition(ctx, callID,
		[]domain.CallStatus{domain.CallStatusInitiated, domain.CallStatusRinging},
		domain.CallStatusRejected)
	if err != nil {
		return nil, err
	}

	s.finished(domain.CallStatusRejected, 0)
	s.pushLifecycle(ctx, call, call.CallerID, ws.EventCallEnded, 0)

	return s.calls.GetByID(ctx, callID)
}

// Cancel withdraws the call before it was answered. Caller only.
func (s *Service) Cancel(ctx context.Context, callID, actorID uuid.UUID) (*domain.Call, error) {
	call, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}
	if actorID != call.CallerID {
		return nil, errors.NotAuthorizedError("only the caller can cancel a call")
	}

	err = s.transition(ctx, callID,
		[]domain.CallStatus{domain.CallStatusInitiated, domain.CallStatusRinging},
		domain.CallStatusCancelled)
	if err != nil {
		return nil, err
	}

	s.finished(domain.CallStatusCancelled, 0)
	s.pushLifecycle(ctx, call, call.ReceiverID, ws.EventCallCancelled, 0)

	return s.calls.GetByID(ctx, callID)
}

// End hangs up an accepted call. Either party; the stored duration is the
// whole seconds between accept and end.
func (s *Service) End(ctx context.Context, callID, actorID uuid.UUID) error {
	call, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		return err
	}
	if actorID != call.CallerID && actorID != call.ReceiverID {
		return errors.NotAuthorizedError("only a party to the call can end it")
	}

	err = s.transition(ctx, callID,
		[]domain.CallStatus{domain.CallStatusAccepted},
		domain.CallStatusEnded)
	if err != nil {
		return err
	}

	ended, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		return err
	}

	s.finished(domain.CallStatusEnded, time.Duration(ended.Duration)*time.Second)

	counterparty := call.ReceiverID
	if actorID == call.ReceiverID {
		counterparty = call.CallerID
	}
	s.pushLifecycle(ctx, ended, counterparty, ws.EventCallEnded, ended.Duration)

	return nil
}

// MarkMissed moves an unanswered call to missed and leaves the receiver a
// notification. Used by the sweeper.
func (s *Service) MarkMissed(ctx context.Context, call *domain.Call) error {
	err := s.transition(ctx, call.CallID,
		[]domain.CallStatus{domain.CallStatusInitiated, domain.CallStatusRinging},
		domain.CallStatusMissed)
	if err != nil {
		return err
	}

	s.finished(domain.CallStatusMissed, 0)
	s.pushLifecycle(ctx, call, call.ReceiverID, ws.EventCallEnded, 0)

	if s.notifier != nil {
		if err := s.notifier.MissedCall(ctx, call); err != nil {
			logger.Error("failed to record missed-call notification",
				zap.String("call_id", call.CallID.String()),
				zap.Error(err))
		}
	}

	return nil
}

// SweepStale marks calls stuck in initiated or ringing beyond the ring
// timeout as missed
func (s *Service) SweepStale(ctx context.Context, ringTimeout time.Duration) error {
	stale, err := s.calls.ListStale(ctx, time.Now().UTC().Add(-ringTimeout))
	if err != nil {
		return err
	}

	for _, call := range stale {
		if err := s.MarkMissed(ctx, call); err != nil {
			// another instance may have raced this call to a terminal state
			if errors.Is(err, errors.ErrCodeInvalidTransition) {
				continue
			}
			logger.Error("failed to mark call missed",
				zap.String("call_id", call.CallID.String()),
				zap.Error(err))
		}
	}

	return nil
}

// RecordSignal appends a relayed WebRTC signal to the diagnostic log
func (s *Service) RecordSignal(ctx context.Context, callID uuid.UUID, signalType string, payload json.RawMessage, senderID uuid.UUID) error {
	return s.signals.Append(ctx, &domain.CallSignal{
		CallID:     callID,
		SignalType: signalType,
		SignalData: payload,
		SenderID:   senderID,
	})
}

// GetCall retrieves a single call record
func (s *Service) GetCall(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	return s.calls.GetByID(ctx, callID)
}

// History lists a user's past and in-progress calls, newest first
func (s *Service) History(ctx context.Context, userID uuid.UUID) ([]*domain.Call, error) {
	return s.calls.GetHistory(ctx, userID, constants.CallHistoryLimit)
}

// Active lists a user's calls not yet in a terminal state
func (s *Service) Active(ctx context.Context, userID uuid.UUID) ([]*domain.Call, error) {
	return s.calls.GetActive(ctx, userID)
}

// Missed lists calls the user did not answer
func (s *Service) Missed(ctx context.Context, userID uuid.UUID) ([]*domain.Call, error) {
	return s.calls.GetMissed(ctx, userID, constants.CallHistoryLimit)
}

// transition applies the compare-and-swap. On a lost race or illegal move the
// current state is re-read so the error names what the call actually is now.
func (s *Service) transition(ctx context.Context, callID uuid.UUID, from []domain.CallStatus, to domain.CallStatus) error {
	ok, err := s.calls.Transition(ctx, callID, from, to, time.Now().UTC())
	if err != nil {
		return errors.DatabaseError(err)
	}
	if !ok {
		current, err := s.calls.GetByID(ctx, callID)
		if err != nil {
			return err
		}
		return errors.InvalidTransitionError(string(current.Status))
	}
	return nil
}

// pushLifecycle tells the counterparty's presence channel the call changed
// state, and echoes the event into the signaling room for anyone still joined
func (s *Service) pushLifecycle(ctx context.Context, call *domain.Call, target uuid.UUID, eventType string, duration int) {
	payload := mustMarshal(callLifecycleEvent{
		Type:     eventType,
		CallID:   call.CallID,
		RoomID:   call.RoomID,
		Duration: duration,
	})

	// best-effort: an offline counterparty learns from the record
	_ = s.pusher.SendToIdentity(ws.KindPresence, target, payload)
	s.pusher.Deliver(ctx, ws.CallRoom(call.RoomID), payload)
}

func (s *Service) finished(status domain.CallStatus, duration time.Duration) {
	if s.metrics != nil {
		s.metrics.CallFinished(string(status), duration)
	}
}

func mustMarshal(v interface{}) []byte {
	payload, _ := json.Marshal(v)
	return payload
}
