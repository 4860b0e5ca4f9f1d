package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"voicelink-backend/pkg/constants"
	"voicelink-backend/pkg/errors"
)

func newTestHub() *Hub {
	return NewHub(NewRegistry(), nil, nil)
}

func newTestClient(h *Hub, username string) *Client {
	return h.NewClient(nil, uuid.New(), username, "test", nil)
}

// recv drains one queued payload without blocking
func recv(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case payload := <-c.send:
		return payload
	default:
		return nil
	}
}

func TestBroadcast_ExcludesSender(t *testing.T) {
	hub := newTestHub()
	sender := newTestClient(hub, "alice")
	peer := newTestClient(hub, "bob")

	hub.Join("room", sender)
	hub.Join("room", peer)

	hub.Broadcast("room", []byte(`{"type":"call-offer"}`), sender)

	assert.Equal(t, []byte(`{"type":"call-offer"}`), recv(t, peer))
	assert.Nil(t, recv(t, sender))
}

func TestJoinLeave_RoomLifecycle(t *testing.T) {
	hub := newTestHub()
	c := newTestClient(hub, "alice")

	assert.Equal(t, 0, hub.RoomSize("room"))

	hub.Join("room", c)
	hub.Join("room", c)
	assert.Equal(t, 1, hub.RoomSize("room"))

	hub.Leave("room", c)
	assert.Equal(t, 0, hub.RoomSize("room"))

	// leaving again is a no-op
	hub.Leave("room", c)
	assert.Equal(t, 0, hub.RoomSize("room"))
}

func TestSendToIdentity(t *testing.T) {
	hub := newTestHub()
	userID := uuid.New()
	c := hub.NewClient(nil, userID, "alice", EndpointNotifications, nil)

	err := hub.SendToIdentity(KindNotifications, userID, []byte(`{}`))
	assert.True(t, errors.Is(err, errors.ErrCodeIdentityOffline))

	hub.Register(KindNotifications, userID, c)
	assert.NoError(t, hub.SendToIdentity(KindNotifications, userID, []byte(`{"type":"notification"}`)))
	assert.Equal(t, []byte(`{"type":"notification"}`), recv(t, c))

	// a presence lookup must not see the notification handle
	err = hub.SendToIdentity(KindPresence, userID, []byte(`{}`))
	assert.True(t, errors.Is(err, errors.ErrCodeIdentityOffline))
}

func TestRegister_DisplacedHandleIsClosed(t *testing.T) {
	hub := newTestHub()
	userID := uuid.New()

	first := hub.NewClient(nil, userID, "alice", EndpointPresence, nil)
	second := hub.NewClient(nil, userID, "alice", EndpointPresence, nil)

	hub.Register(KindPresence, userID, first)
	hub.Join("room", first)

	hub.Register(KindPresence, userID, second)

	// the prior handle is torn down asynchronously
	assert.Eventually(t, func() bool {
		return hub.RoomSize("room") == 0
	}, time.Second, 5*time.Millisecond)

	current, ok := hub.Registry().Lookup(KindPresence, userID)
	assert.True(t, ok)
	assert.Same(t, second, current)
}

func TestClose_CleansUpExactlyOnce(t *testing.T) {
	hub := newTestHub()
	leaving := newTestClient(hub, "alice")
	leaving.announce = true
	staying := newTestClient(hub, "bob")

	closes := 0
	leaving.onClose = func() { closes++ }

	hub.Join("room_a", leaving)
	hub.Join("room_b", leaving)
	hub.Join("room_a", staying)

	leaving.Close()
	leaving.Close()

	assert.Equal(t, 1, closes)
	assert.Equal(t, 1, hub.RoomSize("room_a"))
	assert.Equal(t, 0, hub.RoomSize("room_b"))

	var event userEvent
	assert.NoError(t, json.Unmarshal(recv(t, staying), &event))
	assert.Equal(t, EventUserLeft, event.Type)
	assert.Equal(t, leaving.UserID(), event.UserID)
	assert.Equal(t, "alice", event.Username)

	// send queue is closed after cleanup
	_, open := <-leaving.send
	assert.False(t, open)
}

func TestSendToIdentity_DeliveryRacingDisconnect(t *testing.T) {
	hub := newTestHub()
	userID := uuid.New()
	c := hub.NewClient(nil, userID, "alice", EndpointPresence, nil)
	hub.Register(KindPresence, userID, c)

	// the delivery path resolves the handle first
	current, ok := hub.Registry().Lookup(KindPresence, userID)
	assert.True(t, ok)

	// the connection tears down before the payload is queued
	c.Close()

	assert.NotPanics(t, func() {
		assert.False(t, current.Send([]byte(`{"type":"call-ended"}`)))
	})

	err := hub.SendToIdentity(KindPresence, userID, []byte(`{"type":"call-ended"}`))
	assert.True(t, errors.Is(err, errors.ErrCodeIdentityOffline))
}

func TestSend_ConcurrentWithClose(t *testing.T) {
	for i := 0; i < 100; i++ {
		hub := newTestHub()
		c := newTestClient(hub, "alice")
		hub.Join("room", c)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for j := 0; j < 20; j++ {
				c.Send([]byte(`{}`))
			}
		}()
		c.Close()
		<-done
	}
}

func TestBroadcast_DropsStalledMember(t *testing.T) {
	hub := newTestHub()
	sender := newTestClient(hub, "alice")
	stalled := newTestClient(hub, "bob")

	hub.Join("room", sender)
	hub.Join("room", stalled)

	for i := 0; i < constants.WebSocketSendBuffer; i++ {
		assert.True(t, stalled.Send([]byte(`{}`)))
	}
	assert.False(t, stalled.Send([]byte(`{}`)))

	hub.Broadcast("room", []byte(`{"type":"ping"}`), sender)

	// the stalled member is disconnected, the sender keeps its membership
	assert.Eventually(t, func() bool {
		return hub.RoomSize("room") == 1
	}, time.Second, 5*time.Millisecond)
}
