package ws

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	redisrepo "voicelink-backend/internal/repository/redis"
	"voicelink-backend/pkg/constants"
	"voicelink-backend/pkg/errors"
	"voicelink-backend/pkg/logger"
	"voicelink-backend/pkg/metrics"
)

// Hub is the room broker: a named-group multicast primitive every relay is
// built on. Rooms are created implicitly on first join and destroyed when
// membership reaches zero. Delivery to each member is independent; a slow
// member is dropped rather than blocking the fan-out.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]bool

	registry *Registry

	// optional Redis bridge: rooms hosted here also receive payloads
	// published by other instances
	publisher     *redisrepo.RoomPublisher
	bridgeCancels map[string]context.CancelFunc

	metrics *metrics.Metrics
}

// NewHub creates a hub. The publisher and metrics may be nil.
func NewHub(registry *Registry, publisher *redisrepo.RoomPublisher, m *metrics.Metrics) *Hub {
	return &Hub{
		rooms:         make(map[string]map[*Client]bool),
		registry:      registry,
		publisher:     publisher,
		bridgeCancels: make(map[string]context.CancelFunc),
		metrics:       m,
	}
}

// Registry exposes the identity registry backing SendToIdentity
func (h *Hub) Registry() *Registry {
	return h.registry
}

// NewClient creates a connection handle bound to this hub. The caller starts
// the pumps once setup (registration, room joins) is complete.
func (h *Hub) NewClient(conn *websocket.Conn, userID uuid.UUID, username, endpoint string, handler FrameHandler) *Client {
	return &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, constants.WebSocketSendBuffer),
		userID:   userID,
		username: username,
		endpoint: endpoint,
		handler:  handler,
		rooms:    make(map[string]bool),
	}
}

// Start launches the client's read and write pumps
func (h *Hub) Start(c *Client) {
	go c.writePump()
	go c.readPump()
}

// Join adds a client to a room, creating the room on first join. Idempotent.
func (h *Hub) Join(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]bool)
		h.rooms[room] = members
		h.startBridgeLocked(room)
	}
	members[c] = true
	c.rooms[room] = true

	if h.metrics != nil {
		h.metrics.SetActiveRooms(len(h.rooms))
	}
}

// Leave removes a client from a room, destroying the room when it empties.
// Idempotent: a no-op if the client is not a member.
func (h *Hub) Leave(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(room, c)
}

func (h *Hub) leaveLocked(room string, c *Client) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	delete(c.rooms, room)

	if len(members) == 0 {
		delete(h.rooms, room)
		h.stopBridgeLocked(room)
	}

	if h.metrics != nil {
		h.metrics.SetActiveRooms(len(h.rooms))
	}
}

// Broadcast delivers a payload to every member of a room except the excluded
// client. Messages from a single sender reach each recipient in the order
// sent; stalled recipients are dropped, never waited on.
func (h *Hub) Broadcast(room string, payload []byte, exclude *Client) {
	h.mu.RLock()
	var stalled []*Client
	for member := range h.rooms[room] {
		if member == exclude {
			continue
		}
		if !member.Send(payload) {
			stalled = append(stalled, member)
		}
	}
	h.mu.RUnlock()

	if h.metrics != nil {
		h.metrics.RecordBroadcast("room")
	}

	h.dropStalled(stalled)
}

// Deliver routes a payload to a room across instances. With the Redis bridge
// configured the payload is published once and every instance hosting the
// room, this one included, fans it out to local members; without the bridge
// it is broadcast locally.
func (h *Hub) Deliver(ctx context.Context, room string, payload []byte) {
	if h.publisher != nil {
		err := h.publisher.Publish(ctx, room, payload)
		if err == nil {
			return
		}
		logger.Warn("room publish failed, delivering locally",
			zap.String("room", room),
			zap.Error(err))
	}
	h.Broadcast(room, payload, nil)
}

// SendToIdentity delivers a payload to the identity's live personal handle of
// the given kind. Reports IdentityOffline when no handle exists; non-fatal,
// the caller decides whether to queue, drop, or notify.
func (h *Hub) SendToIdentity(kind ChannelKind, userID uuid.UUID, payload []byte) error {
	c, ok := h.registry.Lookup(kind, userID)
	if !ok {
		return errors.IdentityOfflineError(userID.String())
	}

	if !c.Send(payload) {
		h.dropStalled([]*Client{c})
		return errors.IdentityOfflineError(userID.String())
	}

	if h.metrics != nil {
		h.metrics.RecordBroadcast("identity")
	}
	return nil
}

// Register records a client as the identity's personal handle of the given
// kind, displacing and closing any prior handle.
func (h *Hub) Register(kind ChannelKind, userID uuid.UUID, c *Client) {
	c.registeredKind = kind
	if prior := h.registry.Register(kind, userID, c); prior != nil {
		go prior.Close()
	}
}

// RoomSize reports the current membership of a room
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// removeClient runs the disconnect cleanup: unregister, leave every joined
// room, announce user-left where the endpoint asked for it, and close the
// send queue. Called exactly once per client via Close.
func (h *Hub) removeClient(c *Client) {
	if c.registeredKind != "" {
		h.registry.Unregister(c.registeredKind, c.userID, c)
	}

	var stalled []*Client

	h.mu.Lock()
	var left userEvent
	var leftPayload []byte
	if c.announce {
		left = userEvent{Type: EventUserLeft, UserID: c.userID, Username: c.username}
		leftPayload = marshal(left)
	}

	for room := range c.rooms {
		h.leaveLocked(room, c)
		if leftPayload != nil {
			for member := range h.rooms[room] {
				if !member.Send(leftPayload) {
					stalled = append(stalled, member)
				}
			}
		}
	}
	c.closeSend()
	h.mu.Unlock()

	h.dropStalled(stalled)
}

// dropStalled closes clients whose send queue overflowed. Runs outside hub
// locks; Close is idempotent so racing with normal disconnect is fine.
func (h *Hub) dropStalled(stalled []*Client) {
	for _, c := range stalled {
		if h.metrics != nil {
			h.metrics.RecordDroppedClient(c.endpoint)
		}
		logger.Warn("dropping stalled client",
			zap.String("endpoint", c.endpoint),
			zap.String("user_id", c.userID.String()))
		go c.Close()
	}
}

// startBridgeLocked subscribes the room to its Redis channel so payloads
// published by other instances reach local members. Requires h.mu held.
func (h *Hub) startBridgeLocked(room string) {
	if h.publisher == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.bridgeCancels[room] = cancel
	go h.bridgeRoom(ctx, room)
}

// stopBridgeLocked cancels the room's Redis subscription. Requires h.mu held.
func (h *Hub) stopBridgeLocked(room string) {
	if cancel, ok := h.bridgeCancels[room]; ok {
		cancel()
		delete(h.bridgeCancels, room)
	}
}

func (h *Hub) bridgeRoom(ctx context.Context, room string) {
	pubsub := h.publisher.Subscribe(ctx, room)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.Broadcast(room, []byte(msg.Payload), nil)
		}
	}
}
