package call

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"voicelink-backend/internal/domain"
	"voicelink-backend/internal/handler/ws"
	"voicelink-backend/pkg/errors"
)

// fakeCallRepo is an in-memory CallRepository with the same compare-and-swap
// semantics as the SQL implementation, so racing transitions can be tested
// for real.
type fakeCallRepo struct {
	mu        sync.Mutex
	calls     map[uuid.UUID]*domain.Call
	createErr error
}

func newFakeCallRepo() *fakeCallRepo {
	return &fakeCallRepo{calls: make(map[uuid.UUID]*domain.Call)}
}

func (r *fakeCallRepo) Create(_ context.Context, call *domain.Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	stored := *call
	r.calls[call.CallID] = &stored
	return nil
}

func (r *fakeCallRepo) GetByID(_ context.Context, callID uuid.UUID) (*domain.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	call, ok := r.calls[callID]
	if !ok {
		return nil, errors.CallNotFoundError()
	}
	copied := *call
	return &copied, nil
}

func (r *fakeCallRepo) Transition(_ context.Context, callID uuid.UUID, from []domain.CallStatus, to domain.CallStatus, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	call, ok := r.calls[callID]
	if !ok {
		return false, nil
	}

	allowed := false
	for _, s := range from {
		if call.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}

	call.Status = to
	switch to {
	case domain.CallStatusRinging:
		call.RingingAt = &at
	case domain.CallStatusAccepted:
		call.AcceptedAt = &at
	case domain.CallStatusEnded:
		call.EndedAt = &at
		if call.AcceptedAt != nil {
			call.Duration = int(at.Sub(*call.AcceptedAt).Seconds())
		}
	default:
		call.EndedAt = &at
	}

	return true, nil
}

func (r *fakeCallRepo) GetHistory(_ context.Context, userID uuid.UUID, _ int) ([]*domain.Call, error) {
	return r.filter(func(c *domain.Call) bool {
		return (c.CallerID == userID || c.ReceiverID == userID) && c.Status != domain.CallStatusInitiated
	}), nil
}

func (r *fakeCallRepo) GetActive(_ context.Context, userID uuid.UUID) ([]*domain.Call, error) {
	return r.filter(func(c *domain.Call) bool {
		return (c.CallerID == userID || c.ReceiverID == userID) && !c.Status.IsTerminal()
	}), nil
}

func (r *fakeCallRepo) GetMissed(_ context.Context, userID uuid.UUID, _ int) ([]*domain.Call, error) {
	return r.filter(func(c *domain.Call) bool {
		return c.ReceiverID == userID && c.Status == domain.CallStatusMissed
	}), nil
}

func (r *fakeCallRepo) ListStale(_ context.Context, before time.Time) ([]*domain.Call, error) {
	return r.filter(func(c *domain.Call) bool {
		inProgress := c.Status == domain.CallStatusInitiated || c.Status == domain.CallStatusRinging
		return inProgress && c.InitiatedAt.Before(before)
	}), nil
}

func (r *fakeCallRepo) filter(keep func(*domain.Call) bool) []*domain.Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Call
	for _, c := range r.calls {
		if keep(c) {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out
}

type fakeSignalRepo struct {
	mu      sync.Mutex
	signals []*domain.CallSignal
}

func (r *fakeSignalRepo) Append(_ context.Context, signal *domain.CallSignal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, signal)
	return nil
}

// fakePusher records deliveries; identities not marked online report offline
type fakePusher struct {
	mu       sync.Mutex
	online   map[uuid.UUID]bool
	identity map[uuid.UUID][][]byte
	rooms    map[string][][]byte
}

func newFakePusher(online ...uuid.UUID) *fakePusher {
	p := &fakePusher{
		online:   make(map[uuid.UUID]bool),
		identity: make(map[uuid.UUID][][]byte),
		rooms:    make(map[string][][]byte),
	}
	for _, id := range online {
		p.online[id] = true
	}
	return p
}

func (p *fakePusher) SendToIdentity(_ ws.ChannelKind, userID uuid.UUID, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.online[userID] {
		return errors.IdentityOfflineError(userID.String())
	}
	p.identity[userID] = append(p.identity[userID], payload)
	return nil
}

func (p *fakePusher) Deliver(_ context.Context, room string, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rooms[room] = append(p.rooms[room], payload)
}

func (p *fakePusher) sentTo(userID uuid.UUID) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identity[userID]
}

type fakeNotifier struct {
	mu       sync.Mutex
	incoming []uuid.UUID
	missed   []uuid.UUID
}

func (n *fakeNotifier) IncomingCall(_ context.Context, call *domain.Call, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.incoming = append(n.incoming, call.CallID)
	return nil
}

func (n *fakeNotifier) MissedCall(_ context.Context, call *domain.Call) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.missed = append(n.missed, call.CallID)
	return nil
}

func newTestService(online ...uuid.UUID) (*Service, *fakeCallRepo, *fakePusher, *fakeNotifier) {
	repo := newFakeCallRepo()
	pusher := newFakePusher(online...)
	notifier := &fakeNotifier{}
	svc := NewService(repo, &fakeSignalRepo{}, pusher, notifier, nil)
	return svc, repo, pusher, notifier
}

func seedCall(repo *fakeCallRepo, caller, receiver uuid.UUID, status domain.CallStatus) *domain.Call {
	call := &domain.Call{
		CallID:      uuid.New(),
		CallerID:    caller,
		ReceiverID:  receiver,
		CallType:    domain.CallTypeAudio,
		Status:      status,
		RoomID:      uuid.New().String(),
		InitiatedAt: time.Now().UTC(),
	}
	_ = repo.Create(context.Background(), call)
	return call
}

func TestInitiate_PushesIncomingCallToReceiver(t *testing.T) {
	receiverID := uuid.New()
	svc, _, pusher, notifier := newTestService(receiverID)
	callerID := uuid.New()

	call, err := svc.Initiate(context.Background(), callerID, "alice", receiverID, domain.CallTypeVideo)

	assert.NoError(t, err)
	assert.Equal(t, domain.CallStatusInitiated, call.Status)
	assert.NotEmpty(t, call.RoomID)

	sent := pusher.sentTo(receiverID)
	if assert.Len(t, sent, 1) {
		var event map[string]interface{}
		assert.NoError(t, json.Unmarshal(sent[0], &event))
		assert.Equal(t, "incoming-call", event["type"])
		assert.Equal(t, "alice", event["caller_username"])
		assert.Equal(t, call.RoomID, event["room_id"])
	}
	assert.Empty(t, notifier.incoming)
}

func TestInitiate_OfflineReceiverGetsNotification(t *testing.T) {
	svc, _, pusher, notifier := newTestService()
	receiverID := uuid.New()

	call, err := svc.Initiate(context.Background(), uuid.New(), "alice", receiverID, domain.CallTypeAudio)

	assert.NoError(t, err)
	assert.Empty(t, pusher.sentTo(receiverID))
	assert.Equal(t, []uuid.UUID{call.CallID}, notifier.incoming)
}

func TestInitiate_RejectsSelfCallAndBadType(t *testing.T) {
	svc, _, _, _ := newTestService()
	userID := uuid.New()

	_, err := svc.Initiate(context.Background(), userID, "alice", userID, domain.CallTypeAudio)
	assert.True(t, errors.Is(err, errors.ErrCodeValidation))

	_, err = svc.Initiate(context.Background(), userID, "alice", uuid.New(), domain.CallType("screen"))
	assert.True(t, errors.Is(err, errors.ErrCodeValidation))
}

func TestInitiate_UnknownReceiver(t *testing.T) {
	svc, repo, pusher, _ := newTestService()
	repo.createErr = errors.UserNotFoundError()
	receiverID := uuid.New()

	call, err := svc.Initiate(context.Background(), uuid.New(), "alice", receiverID, domain.CallTypeAudio)

	assert.Nil(t, call)
	assert.True(t, errors.Is(err, errors.ErrCodeUserNotFound))
	assert.Empty(t, pusher.sentTo(receiverID))
}

func TestRing_ReceiverOnly(t *testing.T) {
	svc, repo, _, _ := newTestService()
	caller, receiver := uuid.New(), uuid.New()
	call := seedCall(repo, caller, receiver, domain.CallStatusInitiated)

	err := svc.Ring(context.Background(), call.CallID, caller)
	assert.True(t, errors.Is(err, errors.ErrCodeNotAuthorized))

	err = svc.Ring(context.Background(), call.CallID, receiver)
	assert.NoError(t, err)

	stored, _ := repo.GetByID(context.Background(), call.CallID)
	assert.Equal(t, domain.CallStatusRinging, stored.Status)
	assert.NotNil(t, stored.RingingAt)
}

func TestAccept_FromRinging(t *testing.T) {
	svc, repo, _, _ := newTestService()
	caller, receiver := uuid.New(), uuid.New()
	call := seedCall(repo, caller, receiver, domain.CallStatusRinging)

	accepted, err := svc.Accept(context.Background(), call.CallID, receiver)

	assert.NoError(t, err)
	assert.Equal(t, domain.CallStatusAccepted, accepted.Status)
	assert.NotNil(t, accepted.AcceptedAt)
}

func TestAccept_CallerNotAuthorized(t *testing.T) {
	svc, repo, _, _ := newTestService()
	caller, receiver := uuid.New(), uuid.New()
	call := seedCall(repo, caller, receiver, domain.CallStatusRinging)

	_, err := svc.Accept(context.Background(), call.CallID, caller)

	assert.True(t, errors.Is(err, errors.ErrCodeNotAuthorized))
	stored, _ := repo.GetByID(context.Background(), call.CallID)
	assert.Equal(t, domain.CallStatusRinging, stored.Status)
}

func TestAccept_AfterCancelFails(t *testing.T) {
	svc, repo, _, _ := newTestService()
	caller, receiver := uuid.New(), uuid.New()
	call := seedCall(repo, caller, receiver, domain.CallStatusCancelled)

	_, err := svc.Accept(context.Background(), call.CallID, receiver)

	assert.True(t, errors.Is(err, errors.ErrCodeInvalidTransition))
	assert.Contains(t, err.Error(), "cancelled")
}

func TestReject_TerminalWithoutDuration(t *testing.T) {
	svc, repo, _, _ := newTestService()
	caller, receiver := uuid.New(), uuid.New()
	call := seedCall(repo, caller, receiver, domain.CallStatusRinging)

	rejected, err := svc.Reject(context.Background(), call.CallID, receiver)

	assert.NoError(t, err)
	assert.Equal(t, domain.CallStatusRejected, rejected.Status)
	assert.Zero(t, rejected.Duration)
	assert.Nil(t, rejected.AcceptedAt)
}

func TestCancel_CallerOnlyAndNotifiesReceiver(t *testing.T) {
	caller, receiver := uuid.New(), uuid.New()
	svc, repo, pusher, _ := newTestService(receiver)
	call := seedCall(repo, caller, receiver, domain.CallStatusInitiated)

	_, err := svc.Cancel(context.Background(), call.CallID, receiver)
	assert.True(t, errors.Is(err, errors.ErrCodeNotAuthorized))

	cancelled, err := svc.Cancel(context.Background(), call.CallID, caller)
	assert.NoError(t, err)
	assert.Equal(t, domain.CallStatusCancelled, cancelled.Status)

	sent := pusher.sentTo(receiver)
	if assert.Len(t, sent, 1) {
		var event map[string]interface{}
		assert.NoError(t, json.Unmarshal(sent[0], &event))
		assert.Equal(t, "call-cancelled", event["type"])
	}
}

func TestEnd_ComputesWholeSecondDuration(t *testing.T) {
	caller, receiver := uuid.New(), uuid.New()
	svc, repo, _, _ := newTestService()
	call := seedCall(repo, caller, receiver, domain.CallStatusAccepted)

	acceptedAt := time.Now().UTC().Add(-42500 * time.Millisecond)
	repo.mu.Lock()
	repo.calls[call.CallID].AcceptedAt = &acceptedAt
	repo.mu.Unlock()

	err := svc.End(context.Background(), call.CallID, receiver)
	assert.NoError(t, err)

	ended, _ := repo.GetByID(context.Background(), call.CallID)
	assert.Equal(t, domain.CallStatusEnded, ended.Status)
	assert.Equal(t, 42, ended.Duration)
	assert.NotNil(t, ended.EndedAt)
}

func TestEnd_RequiresAccepted(t *testing.T) {
	caller, receiver := uuid.New(), uuid.New()
	svc, repo, _, _ := newTestService()
	call := seedCall(repo, caller, receiver, domain.CallStatusRinging)

	err := svc.End(context.Background(), call.CallID, caller)

	assert.True(t, errors.Is(err, errors.ErrCodeInvalidTransition))
	stored, _ := repo.GetByID(context.Background(), call.CallID)
	assert.Equal(t, domain.CallStatusRinging, stored.Status)
}

func TestEnd_ThirdPartyNotAuthorized(t *testing.T) {
	svc, repo, _, _ := newTestService()
	call := seedCall(repo, uuid.New(), uuid.New(), domain.CallStatusAccepted)

	err := svc.End(context.Background(), call.CallID, uuid.New())

	assert.True(t, errors.Is(err, errors.ErrCodeNotAuthorized))
}

// Two racing transitions must serialize: exactly one side wins and the
// loser's error names the winner's state.
func TestConcurrentAcceptCancel_ExactlyOneWins(t *testing.T) {
	for i := 0; i < 20; i++ {
		caller, receiver := uuid.New(), uuid.New()
		svc, repo, _, _ := newTestService(caller, receiver)
		call := seedCall(repo, caller, receiver, domain.CallStatusRinging)

		var wg sync.WaitGroup
		var acceptErr, cancelErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, acceptErr = svc.Accept(context.Background(), call.CallID, receiver)
		}()
		go func() {
			defer wg.Done()
			_, cancelErr = svc.Cancel(context.Background(), call.CallID, caller)
		}()
		wg.Wait()

		stored, _ := repo.GetByID(context.Background(), call.CallID)
		if acceptErr == nil {
			assert.True(t, errors.Is(cancelErr, errors.ErrCodeInvalidTransition))
			assert.Equal(t, domain.CallStatusAccepted, stored.Status)
		} else {
			assert.NoError(t, cancelErr)
			assert.True(t, errors.Is(acceptErr, errors.ErrCodeInvalidTransition))
			assert.Equal(t, domain.CallStatusCancelled, stored.Status)
		}
	}
}

func TestSweepStale_MarksOnlyOverdueCalls(t *testing.T) {
	svc, repo, _, notifier := newTestService()
	caller, receiver := uuid.New(), uuid.New()

	stale := seedCall(repo, caller, receiver, domain.CallStatusRinging)
	repo.mu.Lock()
	repo.calls[stale.CallID].InitiatedAt = time.Now().UTC().Add(-2 * time.Minute)
	repo.mu.Unlock()

	fresh := seedCall(repo, caller, receiver, domain.CallStatusInitiated)

	err := svc.SweepStale(context.Background(), time.Minute)
	assert.NoError(t, err)

	staleStored, _ := repo.GetByID(context.Background(), stale.CallID)
	assert.Equal(t, domain.CallStatusMissed, staleStored.Status)
	assert.Equal(t, []uuid.UUID{stale.CallID}, notifier.missed)

	freshStored, _ := repo.GetByID(context.Background(), fresh.CallID)
	assert.Equal(t, domain.CallStatusInitiated, freshStored.Status)
}

func TestRecordSignal_AppendsLog(t *testing.T) {
	repo := newFakeCallRepo()
	signals := &fakeSignalRepo{}
	svc := NewService(repo, signals, newFakePusher(), nil, nil)

	callID, senderID := uuid.New(), uuid.New()
	err := svc.RecordSignal(context.Background(), callID, "call-offer", json.RawMessage(`{"sdp":"v=0"}`), senderID)

	assert.NoError(t, err)
	if assert.Len(t, signals.signals, 1) {
		assert.Equal(t, callID, signals.signals[0].CallID)
		assert.Equal(t, "call-offer", signals.signals[0].SignalType)
		assert.Equal(t, senderID, signals.signals[0].SenderID)
	}
}
