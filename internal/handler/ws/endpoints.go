package ws

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"voicelink-backend/internal/domain"
	"voicelink-backend/internal/middleware"
	"voicelink-backend/pkg/logger"
	"voicelink-backend/pkg/metrics"
	"voicelink-backend/pkg/response"
)

// Endpoint names used for connection metrics
const (
	EndpointCall          = "call"
	EndpointPresence      = "presence"
	EndpointMessages      = "messages"
	EndpointGroup         = "group"
	EndpointNotifications = "notifications"
	EndpointStatus        = "status"
)

// Endpoints upgrades authenticated HTTP requests into hub connections.
// Authentication happens before the upgrade; a bad credential is refused
// with an HTTP status, never a WebSocket close.
type Endpoints struct {
	hub           *Hub
	signaling     *SignalingRouter
	conversations *ConversationRelay
	presence      *PresenceChannels
	groups        GroupMembership
	upgrader      websocket.Upgrader
	metrics       *metrics.Metrics
}

// NewEndpoints creates the WebSocket endpoint set. The origin allowlist is
// shared with the CORS layer; an absent Origin header (non-browser client)
// is allowed through.
func NewEndpoints(
	hub *Hub,
	signaling *SignalingRouter,
	conversations *ConversationRelay,
	presence *PresenceChannels,
	groups GroupMembership,
	allowedOrigins []string,
	m *metrics.Metrics,
) *Endpoints {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	return &Endpoints{
		hub:           hub,
		signaling:     signaling,
		conversations: conversations,
		presence:      presence,
		groups:        groups,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed[origin]
			},
		},
		metrics: m,
	}
}

// ServeCall handles GET /ws/call/:room. Any authenticated user may join a
// call room; the room token itself is the capability, minted by call
// creation and shared over the incoming-call push.
func (e *Endpoints) ServeCall(c *gin.Context) {
	user, ok := middleware.Identity(c)
	if !ok {
		response.Unauthorized(c, "Authentication required")
		return
	}

	room := CallRoom(c.Param("room"))

	client, ok := e.upgrade(c, user, EndpointCall, e.signaling.Handler(room))
	if !ok {
		return
	}
	client.announce = true

	e.hub.Join(room, client)
	e.hub.Broadcast(room, marshal(userEvent{
		Type:     EventUserJoined,
		UserID:   user.UserID,
		Username: user.Username,
	}), client)
	e.hub.Start(client)
}

// ServePresence handles GET /ws/presence: the personal channel carrying
// incoming-call pushes, with heartbeats keeping the shared presence
// projection alive.
func (e *Endpoints) ServePresence(c *gin.Context) {
	user, ok := middleware.Identity(c)
	if !ok {
		response.Unauthorized(c, "Authentication required")
		return
	}

	client, ok := e.upgrade(c, user, EndpointPresence, e.presence.PresenceHandler())
	if !ok {
		return
	}

	client.onClose = func() {
		e.closed(EndpointPresence)
		// a displaced handle must not mark a reconnected user offline
		if _, live := e.hub.Registry().Lookup(KindPresence, user.UserID); !live {
			e.presence.UserOffline(context.Background(), user.UserID, user.Username)
		}
	}

	e.hub.Register(KindPresence, user.UserID, client)
	e.hub.Join(PresenceRoom(user.UserID), client)
	e.hub.Start(client)

	e.presence.UserOnline(c.Request.Context(), user.UserID, user.Username)
}

// ServeDirectMessages handles GET /ws/messages/:peer. Both parties of the
// conversation compute the same room name, so joining is symmetric.
func (e *Endpoints) ServeDirectMessages(c *gin.Context) {
	user, ok := middleware.Identity(c)
	if !ok {
		response.Unauthorized(c, "Authentication required")
		return
	}

	peerID, err := uuid.Parse(c.Param("peer"))
	if err != nil {
		response.ValidationError(c, "Invalid peer id")
		return
	}

	room := DirectRoom(user.UserID, peerID)

	client, ok := e.upgrade(c, user, EndpointMessages, e.conversations.DirectHandler(room, peerID))
	if !ok {
		return
	}

	e.hub.Join(room, client)
	e.hub.Start(client)
}

// ServeGroupMessages handles GET /ws/group/:group. Membership is checked
// before the upgrade, and again on every message frame.
func (e *Endpoints) ServeGroupMessages(c *gin.Context) {
	user, ok := middleware.Identity(c)
	if !ok {
		response.Unauthorized(c, "Authentication required")
		return
	}

	groupID, err := uuid.Parse(c.Param("group"))
	if err != nil {
		response.ValidationError(c, "Invalid group id")
		return
	}

	member, err := e.groups.IsApprovedMember(c.Request.Context(), user.UserID, groupID)
	if err != nil {
		response.AppError(c, err)
		return
	}
	if !member {
		response.Forbidden(c, "You are not a member of this group")
		return
	}

	room := GroupRoom(groupID)

	client, ok := e.upgrade(c, user, EndpointGroup, e.conversations.GroupHandler(room, groupID))
	if !ok {
		return
	}
	client.announce = true

	e.hub.Join(room, client)
	e.hub.Broadcast(room, marshal(userEvent{
		Type:     EventUserJoined,
		UserID:   user.UserID,
		Username: user.Username,
	}), client)
	e.hub.Start(client)
}

// ServeNotifications handles GET /ws/notifications, a push-only channel
func (e *Endpoints) ServeNotifications(c *gin.Context) {
	user, ok := middleware.Identity(c)
	if !ok {
		response.Unauthorized(c, "Authentication required")
		return
	}

	client, ok := e.upgrade(c, user, EndpointNotifications, e.presence.KeepaliveHandler())
	if !ok {
		return
	}

	e.hub.Register(KindNotifications, user.UserID, client)
	e.hub.Join(NotificationRoom(user.UserID), client)
	e.hub.Start(client)
}

// ServeStatus handles GET /ws/status, the push-only channel carrying
// status-changed events for the users the connecting user follows
func (e *Endpoints) ServeStatus(c *gin.Context) {
	user, ok := middleware.Identity(c)
	if !ok {
		response.Unauthorized(c, "Authentication required")
		return
	}

	client, ok := e.upgrade(c, user, EndpointStatus, e.presence.KeepaliveHandler())
	if !ok {
		return
	}

	e.hub.Register(KindStatus, user.UserID, client)
	e.hub.Join(StatusRoom(user.UserID), client)
	e.hub.Start(client)
}

// upgrade performs the WebSocket handshake and builds the client handle.
// The default onClose only releases the connection gauge; endpoints that
// need more replace it before starting the pumps.
func (e *Endpoints) upgrade(c *gin.Context, user domain.User, endpoint string, handler FrameHandler) (*Client, bool) {
	conn, err := e.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed",
			zap.String("endpoint", endpoint),
			zap.String("user_id", user.UserID.String()),
			zap.Error(err))
		return nil, false
	}

	if e.metrics != nil {
		e.metrics.ConnectionOpened(endpoint)
	}

	client := e.hub.NewClient(conn, user.UserID, user.Username, endpoint, handler)
	client.onClose = func() {
		e.closed(endpoint)
	}

	return client, true
}

func (e *Endpoints) closed(endpoint string) {
	if e.metrics != nil {
		e.metrics.ConnectionClosed(endpoint)
	}
}
