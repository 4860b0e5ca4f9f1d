package ws

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"voicelink-backend/pkg/constants"
	"voicelink-backend/pkg/logger"
)

// FrameHandler processes one inbound frame for a client. Frames from the
// same connection are handled strictly in arrival order by the read pump.
type FrameHandler func(ctx context.Context, c *Client, frame []byte)

// Client is an ephemeral connection handle owned by the hub for its lifetime.
// Created on successful handshake, destroyed on disconnect; cleanup removes
// it from every room it joined.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	userID   uuid.UUID
	username string
	endpoint string
	handler  FrameHandler

	// registration in the personal-channel registry, empty if none
	registeredKind ChannelKind

	// rooms whose membership changes are announced with user-joined/user-left
	announce bool

	// rooms joined by this client; guarded by hub.mu
	rooms map[string]bool

	// onClose runs once after the client left all rooms, outside hub locks
	onClose func()

	// guards send against the queue closing under a racing delivery
	sendMu     sync.Mutex
	sendClosed bool

	closeOnce sync.Once
}

// UserID returns the authenticated identity behind the connection
func (c *Client) UserID() uuid.UUID {
	return c.userID
}

// Username returns the authenticated display name behind the connection
func (c *Client) Username() string {
	return c.username
}

// Send queues a payload for delivery. Delivery is best-effort: a full queue
// reports false so a stalled peer never blocks fan-out to others, and once
// disconnect cleanup has closed the queue a racing delivery reports false
// instead of panicking.
func (c *Client) Send(payload []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed {
		return false
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// closeSend shuts the send queue so writePump exits. Serialized against Send,
// which treats a closed queue as a failed delivery.
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
	}
}

// Close tears the connection down exactly once: leaves all rooms, unregisters,
// closes the socket. Safe to call from any goroutine, including during an
// in-flight broadcast targeting this client.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.hub.removeClient(c)
		if c.conn != nil {
			_ = c.conn.Close()
		}
		if c.onClose != nil {
			c.onClose()
		}
	})
}

// readPump reads frames from the socket and dispatches them in order.
// It owns the cleanup path: any read error, including abrupt closure,
// funnels into Close.
func (c *Client) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(constants.WebSocketMaxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("websocket closed",
					zap.String("endpoint", c.endpoint),
					zap.String("user_id", c.userID.String()),
					zap.Error(err))
			}
			return
		}

		c.dispatch(frame)
	}
}

// dispatch runs the frame handler behind a per-frame recovery boundary:
// one bad frame must never take down the connection or leak hub state.
func (c *Client) dispatch(frame []byte) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic handling frame",
				zap.String("endpoint", c.endpoint),
				zap.String("user_id", c.userID.String()),
				zap.Any("panic", r))
			c.Send(marshalError("internal error"))
		}
	}()

	c.handler(context.Background(), c, frame)
}

// writePump writes queued payloads to the socket and keeps the connection
// alive with pings. Exits when the send channel is closed by cleanup.
func (c *Client) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
