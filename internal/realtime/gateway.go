// ABOUTME: Live channel endpoint: websocket upgrade, token handshake and event loops
// ABOUTME: Pushes stored messages and relays typing; it never writes messages itself

package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/2389/souk-gateway/internal/auth"
	"github.com/2389/souk-gateway/internal/conversation"
	"github.com/2389/souk-gateway/internal/store"
	"github.com/2389/souk-gateway/internal/wire"
)

// Defaults applied by New when a Config field is zero.
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultPingInterval     = 30 * time.Second
	DefaultEventsPerSecond  = 10
	DefaultEventBurst       = 20
	DefaultWriteTimeout     = 10 * time.Second

	// maxFrameBytes bounds a single inbound frame.
	maxFrameBytes = 64 * 1024
)

var errHandshakeTimeout = errors.New("authentication timed out")

// Authenticator validates the token sent in the first frame
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Identity, error)
}

// ThreadLookup resolves threads for typing relay. It deliberately has no
// write methods: messages are only appended through the HTTP API.
type ThreadLookup interface {
	GetThread(ctx context.Context, threadID string) (*store.Thread, error)
}

// EventHub delivers events addressed to an identity
type EventHub interface {
	Subscribe(ctx context.Context, identityID string) (<-chan *conversation.Event, string)
	Publish(identityID string, event *conversation.Event)
}

// Metrics receives live channel counters
type Metrics interface {
	ConnectionOpened()
	ConnectionClosed()
	HandshakeFailed(reason string)
	TypingRelayed()
	EventRejected(reason string)
}

type nopMetrics struct{}

func (nopMetrics) ConnectionOpened()      {}
func (nopMetrics) ConnectionClosed()      {}
func (nopMetrics) HandshakeFailed(string) {}
func (nopMetrics) TypingRelayed()         {}
func (nopMetrics) EventRejected(string)   {}

// Config tunes the live channel
type Config struct {
	// AllowedOrigins are host patterns accepted for cross-origin upgrades.
	AllowedOrigins   []string
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	EventsPerSecond  float64
	EventBurst       int
	WriteTimeout     time.Duration
}

func (c *Config) applyDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.EventsPerSecond <= 0 {
		c.EventsPerSecond = DefaultEventsPerSecond
	}
	if c.EventBurst <= 0 {
		c.EventBurst = DefaultEventBurst
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
}

// Gateway serves the live channel at GET /ws.
type Gateway struct {
	authn    Authenticator
	threads  ThreadLookup
	hub      EventHub
	registry *Registry
	metrics  Metrics
	cfg      Config
	logger   *slog.Logger
}

// New creates a live channel gateway. A nil metrics disables counters and a
// nil logger uses slog.Default().
func New(authn Authenticator, threads ThreadLookup, hub EventHub, cfg Config, metrics Metrics, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	cfg.applyDefaults()
	logger = logger.With("component", "realtime")
	return &Gateway{
		authn:    authn,
		threads:  threads,
		hub:      hub,
		registry: NewRegistry(logger),
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger,
	}
}

// Registry exposes the set of live connections.
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// Shutdown closes every live connection with StatusGoingAway.
func (g *Gateway) Shutdown() {
	g.registry.CloseAll("server shutting down")
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.cfg.AllowedOrigins,
	})
	if err != nil {
		// Accept has already written the HTTP error response
		g.logger.Debug("websocket upgrade rejected", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	ws.SetReadLimit(maxFrameBytes)

	limiter := rate.NewLimiter(rate.Limit(g.cfg.EventsPerSecond), g.cfg.EventBurst)
	conn := newConnection(uuid.New().String(), ws, limiter, g.cfg.WriteTimeout, g.logger)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	g.serve(ctx, conn)
}

// serve runs handshake, join and the event loops of one connection.
func (g *Gateway) serve(ctx context.Context, conn *Connection) {
	conn.transition(StateAuthenticating)

	id, err := g.handshake(ctx, conn)
	if err != nil {
		g.reject(ctx, conn, err)
		return
	}

	// Join: the subscription ends when ctx is cancelled
	conn.bind(id)
	events, _ := g.hub.Subscribe(ctx, id.ID)
	g.registry.Register(conn)
	g.metrics.ConnectionOpened()
	defer func() {
		g.registry.Unregister(conn)
		g.metrics.ConnectionClosed()
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	if err := conn.Send(ctx, wire.FrameReady, wire.ReadyData{UserID: id.ID, Role: string(id.Role)}); err != nil {
		conn.logger.Debug("failed to send ready", "error", err)
		return
	}
	conn.transition(StateActive)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go g.writeLoop(ctx, cancel, conn, events)

	g.readLoop(ctx, conn)
}

// handshake waits for the auth frame. The read runs in its own goroutine
// because an expired read context would close the socket before auth_error
// could be written.
func (g *Gateway) handshake(ctx context.Context, conn *Connection) (auth.Identity, error) {
	type result struct {
		frame wire.Frame
		err   error
	}
	results := make(chan result, 1)
	go func() {
		frame, err := readFrame(ctx, conn.conn)
		results <- result{frame: frame, err: err}
	}()

	timer := time.NewTimer(g.cfg.HandshakeTimeout)
	defer timer.Stop()

	var res result
	select {
	case <-timer.C:
		return auth.Identity{}, errHandshakeTimeout
	case <-ctx.Done():
		return auth.Identity{}, ctx.Err()
	case res = <-results:
	}
	if res.err != nil {
		return auth.Identity{}, fmt.Errorf("%w: reading auth frame: %v", auth.ErrInvalidToken, res.err)
	}

	if res.frame.Type != wire.FrameAuth {
		return auth.Identity{}, fmt.Errorf("%w: first frame must be %q, got %q", auth.ErrInvalidToken, wire.FrameAuth, res.frame.Type)
	}
	var data wire.AuthData
	if err := res.frame.Decode(&data); err != nil {
		return auth.Identity{}, fmt.Errorf("%w: %v", auth.ErrInvalidToken, err)
	}

	authCtx, cancel := context.WithTimeout(ctx, g.cfg.HandshakeTimeout)
	defer cancel()
	return g.authn.Authenticate(authCtx, data.Token)
}

// reject tells the client why the handshake failed and closes with 4401.
// No handler or subscription exists for the connection at this point.
func (g *Gateway) reject(ctx context.Context, conn *Connection, err error) {
	msg := auth.ErrorMessage(err)
	reason := "unauthenticated"
	if errors.Is(err, errHandshakeTimeout) {
		msg = errHandshakeTimeout.Error()
		reason = "timeout"
	}

	g.metrics.HandshakeFailed(reason)
	g.logger.Info("live handshake failed", "connection_id", conn.ID, "reason", reason, "error", err)

	if sendErr := conn.Send(ctx, wire.FrameAuthError, wire.ErrorData{Error: msg}); sendErr != nil {
		g.logger.Debug("failed to send auth_error", "connection_id", conn.ID, "error", sendErr)
	}
	conn.Close(websocket.StatusCode(wire.StatusAuthFailed), msg)
}

// readLoop handles inbound frames until the socket fails or ctx ends.
func (g *Gateway) readLoop(ctx context.Context, conn *Connection) {
	for {
		frame, err := readFrame(ctx, conn.conn)
		if err != nil {
			if errors.Is(err, errMalformedFrame) {
				g.metrics.EventRejected("malformed")
				conn.logger.Warn("malformed frame", "error", err)
				conn.sendError(ctx, "malformed frame")
				continue
			}
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				conn.logger.Debug("live connection read failed", "error", err)
			}
			return
		}

		if !conn.allow() {
			g.metrics.EventRejected("rate_limited")
			conn.logger.Warn("dropping event over rate limit", "type", frame.Type)
			continue
		}

		g.handleFrame(ctx, conn, frame)
	}
}

func (g *Gateway) handleFrame(ctx context.Context, conn *Connection, frame wire.Frame) {
	switch frame.Type {
	case wire.FrameTyping:
		g.handleTyping(ctx, conn, frame)
	case wire.FrameSend:
		g.metrics.EventRejected("send")
		conn.logger.Info("rejected send over live channel")
		conn.sendError(ctx, wire.SendNotSupported)
	case wire.FrameAuth:
		g.metrics.EventRejected("reauth")
		conn.sendError(ctx, "already authenticated")
	default:
		g.metrics.EventRejected("unknown")
		conn.logger.Warn("unknown frame type", "type", frame.Type)
		conn.sendError(ctx, fmt.Sprintf("unknown event type %q", frame.Type))
	}
}

// handleTyping relays a typing indicator to the other participant only.
func (g *Gateway) handleTyping(ctx context.Context, conn *Connection, frame wire.Frame) {
	var req wire.TypingRequest
	if err := frame.Decode(&req); err != nil || req.ThreadID == "" {
		g.metrics.EventRejected("malformed")
		conn.sendError(ctx, "typing requires thread_id")
		return
	}

	thread, err := g.threads.GetThread(ctx, req.ThreadID)
	if err != nil {
		g.metrics.EventRejected("thread_lookup")
		if errors.Is(err, store.ErrNotFound) {
			conn.sendError(ctx, "thread not found")
			return
		}
		conn.logger.Warn("typing thread lookup failed", "thread_id", req.ThreadID, "error", err)
		conn.sendError(ctx, "thread lookup failed")
		return
	}

	userID := conn.identity.ID
	if !thread.HasParticipant(userID) {
		g.metrics.EventRejected("forbidden")
		conn.logger.Warn("typing on foreign thread", "thread_id", req.ThreadID)
		conn.sendError(ctx, "not a participant of this thread")
		return
	}

	g.hub.Publish(thread.Partner(userID), &conversation.Event{
		Type:     conversation.EventTyping,
		ThreadID: thread.ID,
		Typing:   &conversation.Typing{UserID: userID, IsTyping: req.IsTyping},
	})
	g.metrics.TypingRelayed()
}

// writeLoop pushes hub events and keepalive pings. Any write failure ends
// the connection through cancel.
func (g *Gateway) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *Connection, events <-chan *conversation.Event) {
	defer cancel()

	ticker := time.NewTicker(g.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			frame, err := eventFrame(ev)
			if err != nil {
				conn.logger.Error("encoding event", "type", ev.Type, "error", err)
				continue
			}
			if err := conn.writeFrame(ctx, frame); err != nil {
				conn.logger.Debug("push failed", "error", err)
				conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, g.cfg.WriteTimeout)
			err := conn.conn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				conn.logger.Debug("keepalive ping failed", "error", err)
				conn.Close(websocket.StatusGoingAway, "keepalive timeout")
				return
			}
		}
	}
}

// eventFrame converts a hub event into its wire frame.
func eventFrame(ev *conversation.Event) (wire.Frame, error) {
	switch ev.Type {
	case conversation.EventMessage:
		data := wire.MessageData{
			ThreadID: ev.ThreadID,
			Message:  wire.FromMessage(ev.Message),
		}
		if ev.Sender != nil {
			data.Sender = wire.FromSender(*ev.Sender)
		}
		return wire.NewFrame(wire.FrameMessage, data)
	case conversation.EventTyping:
		return wire.NewFrame(wire.FrameTyping, wire.TypingData{
			ThreadID: ev.ThreadID,
			UserID:   ev.Typing.UserID,
			IsTyping: ev.Typing.IsTyping,
		})
	default:
		return wire.Frame{}, fmt.Errorf("unknown event type %q", ev.Type)
	}
}

var errMalformedFrame = errors.New("malformed frame")

// readFrame reads one text message and decodes it. Decoding errors are
// returned without closing the socket, unlike wsjson.Read.
func readFrame(ctx context.Context, ws *websocket.Conn) (wire.Frame, error) {
	typ, data, err := ws.Read(ctx)
	if err != nil {
		return wire.Frame{}, err
	}
	if typ != websocket.MessageText {
		return wire.Frame{}, fmt.Errorf("%w: binary frames are not supported", errMalformedFrame)
	}
	var frame wire.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return wire.Frame{}, fmt.Errorf("%w: %v", errMalformedFrame, err)
	}
	if frame.Type == "" {
		return wire.Frame{}, fmt.Errorf("%w: missing type", errMalformedFrame)
	}
	return frame, nil
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	return wsjson.Write(ctx, ws, v)
}
