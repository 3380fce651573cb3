// ABOUTME: Represents a single live channel connection and its lifecycle state
// ABOUTME: Owns the websocket, the identity bound at handshake and the inbound rate limit

package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"github.com/2389/souk-gateway/internal/auth"
	"github.com/2389/souk-gateway/internal/wire"
)

// State is the lifecycle state of a connection
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateJoined
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateJoined:
		return "joined"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Connection represents one authenticated (or authenticating) live channel.
// The identity is set once at handshake and never changes.
type Connection struct {
	ID string

	identity auth.Identity
	conn     *websocket.Conn
	state    atomic.Int32
	limiter  *rate.Limiter
	writeTTL time.Duration
	logger   *slog.Logger
}

// newConnection wraps an accepted websocket.
func newConnection(id string, conn *websocket.Conn, limiter *rate.Limiter, writeTTL time.Duration, logger *slog.Logger) *Connection {
	c := &Connection{
		ID:       id,
		conn:     conn,
		limiter:  limiter,
		writeTTL: writeTTL,
		logger:   logger.With("connection_id", id),
	}
	c.state.Store(int32(StateConnecting))
	return c
}

// Identity returns the identity bound at handshake.
func (c *Connection) Identity() auth.Identity {
	return c.identity
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// transition moves the connection to next. Closed is terminal.
func (c *Connection) transition(next State) {
	for {
		cur := c.state.Load()
		if State(cur) == StateClosed {
			return
		}
		if c.state.CompareAndSwap(cur, int32(next)) {
			c.logger.Debug("connection state", "from", State(cur), "to", next)
			return
		}
	}
}

// bind records the authenticated identity and moves to joined.
func (c *Connection) bind(id auth.Identity) {
	c.identity = id
	c.logger = c.logger.With("user_id", id.ID)
	c.transition(StateJoined)
}

// Send writes one frame, bounded by the connection's write timeout.
func (c *Connection) Send(ctx context.Context, frameType string, data any) error {
	frame, err := wire.NewFrame(frameType, data)
	if err != nil {
		return err
	}
	return c.writeFrame(ctx, frame)
}

func (c *Connection) writeFrame(ctx context.Context, frame wire.Frame) error {
	ctx, cancel := context.WithTimeout(ctx, c.writeTTL)
	defer cancel()
	return writeJSON(ctx, c.conn, frame)
}

// sendError answers the client with an error frame; the connection stays open.
func (c *Connection) sendError(ctx context.Context, msg string) {
	if err := c.Send(ctx, wire.FrameError, wire.ErrorData{Error: msg}); err != nil {
		c.logger.Debug("failed to send error frame", "error", err)
	}
}

// allow reports whether another inbound event fits the rate limit.
func (c *Connection) allow() bool {
	return c.limiter.Allow()
}

// Close closes the websocket with the given status and marks the connection closed.
func (c *Connection) Close(code websocket.StatusCode, reason string) {
	c.state.Store(int32(StateClosed))
	_ = c.conn.Close(code, reason)
}
