package ws

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRegistry_RegisterDisplacesPrior(t *testing.T) {
	registry := NewRegistry()
	hub := NewHub(registry, nil, nil)
	userID := uuid.New()

	first := hub.NewClient(nil, userID, "alice", EndpointPresence, nil)
	second := hub.NewClient(nil, userID, "alice", EndpointPresence, nil)

	assert.Nil(t, registry.Register(KindPresence, userID, first))
	assert.Same(t, first, registry.Register(KindPresence, userID, second))

	current, ok := registry.Lookup(KindPresence, userID)
	assert.True(t, ok)
	assert.Same(t, second, current)
}

func TestRegistry_UnregisterOnlyRemovesCurrent(t *testing.T) {
	registry := NewRegistry()
	hub := NewHub(registry, nil, nil)
	userID := uuid.New()

	first := hub.NewClient(nil, userID, "alice", EndpointPresence, nil)
	second := hub.NewClient(nil, userID, "alice", EndpointPresence, nil)

	registry.Register(KindPresence, userID, first)
	registry.Register(KindPresence, userID, second)

	// the displaced handle's cleanup must not evict its replacement
	registry.Unregister(KindPresence, userID, first)
	current, ok := registry.Lookup(KindPresence, userID)
	assert.True(t, ok)
	assert.Same(t, second, current)

	registry.Unregister(KindPresence, userID, second)
	_, ok = registry.Lookup(KindPresence, userID)
	assert.False(t, ok)

	// idempotent
	registry.Unregister(KindPresence, userID, second)
}

func TestRegistry_KindsAreIndependent(t *testing.T) {
	registry := NewRegistry()
	hub := NewHub(registry, nil, nil)
	userID := uuid.New()

	presence := hub.NewClient(nil, userID, "alice", EndpointPresence, nil)
	notifications := hub.NewClient(nil, userID, "alice", EndpointNotifications, nil)

	registry.Register(KindPresence, userID, presence)
	registry.Register(KindNotifications, userID, notifications)

	got, ok := registry.Lookup(KindPresence, userID)
	assert.True(t, ok)
	assert.Same(t, presence, got)

	got, ok = registry.Lookup(KindNotifications, userID)
	assert.True(t, ok)
	assert.Same(t, notifications, got)

	assert.True(t, registry.IsOnline(userID))
	registry.Unregister(KindPresence, userID, presence)
	assert.True(t, registry.IsOnline(userID))
	registry.Unregister(KindNotifications, userID, notifications)
	assert.False(t, registry.IsOnline(userID))
}
