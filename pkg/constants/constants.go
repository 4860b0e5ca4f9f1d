// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// WebSocket constants
const (
	// WebSocketPingInterval is the interval for WebSocket ping/pong
	WebSocketPingInterval = 60 * time.Second

	// WebSocketWriteTimeout bounds a single outbound write to a peer
	WebSocketWriteTimeout = 10 * time.Second

	// WebSocketSendBuffer is the per-connection outbound queue size.
	// A peer that falls this far behind is dropped rather than blocking fan-out.
	WebSocketSendBuffer = 256

	// WebSocketMaxFrameSize limits inbound frame size in bytes
	WebSocketMaxFrameSize = 64 * 1024
)

// Call lifecycle constants
const (
	// DefaultRingTimeout is how long a call may sit in initiated/ringing
	// before the sweeper marks it missed
	DefaultRingTimeout = 60 * time.Second

	// CallHistoryLimit caps the number of calls returned by the history endpoint
	CallHistoryLimit = 50
)

// Server constants
const (
	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second

	// DefaultTimeout is the default timeout for most operations
	DefaultTimeout = 30 * time.Second
)

// JWT constants
const (
	// AccessTokenExpiry is the default access token lifetime
	AccessTokenExpiry = 15 * time.Minute

	// RefreshTokenExpiry is the default refresh token lifetime
	RefreshTokenExpiry = 30 * 24 * time.Hour
)

// Presence constants
const (
	// PresenceTTL is how long a presence key survives without a heartbeat
	PresenceTTL = 5 * time.Minute
)
