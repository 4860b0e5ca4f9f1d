package ws

import (
	"sync"

	"github.com/google/uuid"
)

// ChannelKind distinguishes the personal channels a user may hold. Each kind
// is single-handle-per-identity: a new registration displaces the old handle.
type ChannelKind string

const (
	KindPresence      ChannelKind = "presence"
	KindNotifications ChannelKind = "notifications"
	KindStatus        ChannelKind = "status"
)

type registryKey struct {
	kind   ChannelKind
	userID uuid.UUID
}

// Registry maps a user identity to its live personal-channel handles.
// Online status is a projection over this map, not a persisted field.
type Registry struct {
	mu      sync.RWMutex
	clients map[registryKey]*Client
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{clients: make(map[registryKey]*Client)}
}

// Register adds a handle for the identity, returning any displaced prior
// handle so the caller can close it.
func (r *Registry) Register(kind ChannelKind, userID uuid.UUID, c *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := registryKey{kind: kind, userID: userID}
	prior := r.clients[key]
	if prior == c {
		return nil
	}
	r.clients[key] = c
	return prior
}

// Unregister removes the handle if it is still the current one.
// Idempotent: a no-op when the handle is already absent or displaced.
func (r *Registry) Unregister(kind ChannelKind, userID uuid.UUID, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := registryKey{kind: kind, userID: userID}
	if r.clients[key] == c {
		delete(r.clients, key)
	}
}

// Lookup returns the live handle for an identity, if any
func (r *Registry) Lookup(kind ChannelKind, userID uuid.UUID) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[registryKey{kind: kind, userID: userID}]
	return c, ok
}

// IsOnline reports whether the identity holds any live personal handle
func (r *Registry) IsOnline(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, kind := range []ChannelKind{KindPresence, KindNotifications, KindStatus} {
		if _, ok := r.clients[registryKey{kind: kind, userID: userID}]; ok {
			return true
		}
	}
	return false
}
