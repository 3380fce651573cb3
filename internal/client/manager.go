// ABOUTME: Client side of the live channel: connects, authenticates and reconnects
// ABOUTME: Fans pushed messages and typing events out to registered handlers

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/2389/souk-gateway/internal/wire"
)

// Defaults applied by NewManager when an Options field is zero.
const (
	DefaultMaxRetries       = 5
	DefaultInitialBackoff   = 500 * time.Millisecond
	DefaultMaxBackoff       = 10 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
)

var (
	// ErrAuthRejected means the gateway refused the token. Run does not retry it.
	ErrAuthRejected = errors.New("live channel authentication rejected")

	// ErrNotConnected is returned by SendTyping while no session is active.
	ErrNotConnected = errors.New("live channel not connected")
)

// Options configures a Manager
type Options struct {
	// URL is the gateway base URL (http, https, ws or wss). /ws is appended
	// when the URL has no path.
	URL   string
	Token string

	Logger *slog.Logger

	// MaxRetries bounds consecutive failed connection attempts. A session
	// that reached ready resets the count.
	MaxRetries       uint64
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// MessageHandler receives pushed messages. Handlers run on the read loop and
// must not block.
type MessageHandler func(wire.MessageData)

// TypingHandler receives typing indicators from thread partners.
type TypingHandler func(wire.TypingData)

// ReconnectHandler runs after a session other than the first becomes ready.
// Pushes sent while disconnected are not replayed, so consumers re-fetch
// history here.
type ReconnectHandler func()

// Manager maintains one live connection for a session.
type Manager struct {
	opts   Options
	url    string
	logger *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn

	sessions atomic.Int64

	messages   *handlerSet[MessageHandler]
	typing     *handlerSet[TypingHandler]
	reconnects *handlerSet[ReconnectHandler]
}

// NewManager creates a Manager. It does not connect until Run is called.
func NewManager(opts Options) (*Manager, error) {
	liveURL, err := LiveURL(opts.URL)
	if err != nil {
		return nil, err
	}
	if opts.Token == "" {
		return nil, errors.New("token is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = DefaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}

	return &Manager{
		opts:       opts,
		url:        liveURL,
		logger:     opts.Logger.With("component", "live-client"),
		messages:   newHandlerSet[MessageHandler](),
		typing:     newHandlerSet[TypingHandler](),
		reconnects: newHandlerSet[ReconnectHandler](),
	}, nil
}

// LiveURL turns a gateway base URL into the live channel URL.
func LiveURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing gateway URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported gateway URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("gateway URL has no host")
	}
	if strings.Trim(u.Path, "/") == "" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

// OnMessage registers a handler for pushed messages and returns its
// unsubscribe function.
func (m *Manager) OnMessage(h MessageHandler) func() {
	return m.messages.add(h)
}

// OnTyping registers a handler for typing indicators and returns its
// unsubscribe function.
func (m *Manager) OnTyping(h TypingHandler) func() {
	return m.typing.add(h)
}

// OnReconnect registers a handler that runs after each reconnect and returns
// its unsubscribe function.
func (m *Manager) OnReconnect(h ReconnectHandler) func() {
	return m.reconnects.add(h)
}

// Connected reports whether a session is currently active.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// SendTyping tells the partner in threadID whether the user is typing.
func (m *Manager) SendTyping(ctx context.Context, threadID string, isTyping bool) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	frame, err := wire.NewFrame(wire.FrameTyping, wire.TypingRequest{ThreadID: threadID, IsTyping: isTyping})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, m.opts.WriteTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, conn, frame); err != nil {
		return fmt.Errorf("sending typing: %w", err)
	}
	return nil
}

func (m *Manager) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.opts.InitialBackoff
	b.MaxInterval = m.opts.MaxBackoff
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, m.opts.MaxRetries), ctx)
}

// Run connects and keeps the live channel up until ctx is canceled. It
// returns nil on cancellation, ErrAuthRejected if the token is refused, or
// the last connection error once MaxRetries consecutive attempts failed.
func (m *Manager) Run(ctx context.Context) error {
	bo := m.newBackOff(ctx)

	for {
		joined, err := m.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrAuthRejected) {
			m.logger.Error("live channel authentication rejected", "error", err)
			return err
		}
		if joined {
			bo.Reset()
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("live channel: giving up after %d retries: %w", m.opts.MaxRetries, err)
		}

		m.logger.Warn("live channel disconnected, reconnecting", "error", err, "retry_in", wait)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// session runs one connection from dial to close. joined reports whether
// the handshake completed.
func (m *Manager) session(ctx context.Context) (joined bool, err error) {
	dialCtx, cancel := context.WithTimeout(ctx, m.opts.HandshakeTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, m.url, nil)
	if err != nil {
		return false, fmt.Errorf("dialing %s: %w", m.url, err)
	}
	defer conn.CloseNow()

	if err := m.authenticate(dialCtx, conn); err != nil {
		return false, err
	}

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.conn = nil
		m.mu.Unlock()
	}()

	if n := m.sessions.Add(1); n > 1 {
		m.logger.Info("live channel reconnected", "session", n)
		for _, h := range m.reconnects.snapshot() {
			h()
		}
	} else {
		m.logger.Info("live channel connected")
	}

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return true, fmt.Errorf("reading frame: %w", err)
		}
		if typ != websocket.MessageText {
			m.logger.Warn("skipping binary frame", "size", len(data))
			continue
		}
		var frame wire.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			m.logger.Warn("skipping malformed frame", "error", err)
			continue
		}
		m.dispatch(frame)
	}
}

// authenticate sends the token and waits for ready or auth_error.
func (m *Manager) authenticate(ctx context.Context, conn *websocket.Conn) error {
	frame, err := wire.NewFrame(wire.FrameAuth, wire.AuthData{Token: m.opts.Token})
	if err != nil {
		return err
	}
	if err := wsjson.Write(ctx, conn, frame); err != nil {
		return fmt.Errorf("sending auth: %w", err)
	}

	var reply wire.Frame
	if err := wsjson.Read(ctx, conn, &reply); err != nil {
		if websocket.CloseStatus(err) == websocket.StatusCode(wire.StatusAuthFailed) {
			return fmt.Errorf("%w: connection closed during handshake", ErrAuthRejected)
		}
		return fmt.Errorf("waiting for ready: %w", err)
	}

	switch reply.Type {
	case wire.FrameReady:
		return nil
	case wire.FrameAuthError:
		var data wire.ErrorData
		_ = reply.Decode(&data)
		return fmt.Errorf("%w: %s", ErrAuthRejected, data.Error)
	default:
		return fmt.Errorf("unexpected %q frame during handshake", reply.Type)
	}
}

// dispatch routes a pushed frame to the registered handlers.
func (m *Manager) dispatch(frame wire.Frame) {
	switch frame.Type {
	case wire.FrameMessage:
		var data wire.MessageData
		if err := frame.Decode(&data); err != nil {
			m.logger.Warn("dropping malformed message frame", "error", err)
			return
		}
		for _, h := range m.messages.snapshot() {
			h(data)
		}
	case wire.FrameTyping:
		var data wire.TypingData
		if err := frame.Decode(&data); err != nil {
			m.logger.Warn("dropping malformed typing frame", "error", err)
			return
		}
		for _, h := range m.typing.snapshot() {
			h(data)
		}
	case wire.FrameError:
		var data wire.ErrorData
		_ = frame.Decode(&data)
		m.logger.Warn("gateway reported an error", "error", data.Error)
	default:
		m.logger.Debug("ignoring frame", "type", frame.Type)
	}
}

// handlerSet is an ordered set of handlers with idempotent removal.
type handlerSet[H any] struct {
	mu      sync.RWMutex
	nextID  uint64
	entries []handlerEntry[H]
}

type handlerEntry[H any] struct {
	id uint64
	h  H
}

func newHandlerSet[H any]() *handlerSet[H] {
	return &handlerSet[H]{}
}

func (s *handlerSet[H]) add(h H) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.entries = append(s.entries, handlerEntry[H]{id: id, h: h})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *handlerSet[H]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.id == id {
			s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
			return
		}
	}
}

// snapshot copies the handlers so they run without holding the lock.
func (s *handlerSet[H]) snapshot() []H {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]H, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.h
	}
	return out
}

func (s *handlerSet[H]) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
