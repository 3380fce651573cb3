// ABOUTME: Tests for the live channel Manager against a scripted websocket server
// ABOUTME: Covers handler fan-out, unsubscribe, auth rejection and reconnect backoff

package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/souk-gateway/internal/wire"
)

// fakeLive is a scripted live channel server.
type fakeLive struct {
	srv *httptest.Server

	reject bool

	mu     sync.Mutex
	dials  int
	tokens []string

	conns    chan *websocket.Conn
	received chan wire.Frame
}

func newFakeLive(t *testing.T, reject bool) *fakeLive {
	t.Helper()
	f := &fakeLive{
		reject:   reject,
		conns:    make(chan *websocket.Conn, 8),
		received: make(chan wire.Frame, 32),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeLive) serve(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer ws.CloseNow()
	ctx := r.Context()

	var auth wire.Frame
	if err := wsjson.Read(ctx, ws, &auth); err != nil {
		return
	}
	var data wire.AuthData
	_ = auth.Decode(&data)

	f.mu.Lock()
	f.dials++
	f.tokens = append(f.tokens, data.Token)
	f.mu.Unlock()

	if f.reject {
		frame, _ := wire.NewFrame(wire.FrameAuthError, wire.ErrorData{Error: "invalid token"})
		_ = wsjson.Write(ctx, ws, frame)
		_ = ws.Close(websocket.StatusCode(wire.StatusAuthFailed), "invalid token")
		return
	}

	ready, _ := wire.NewFrame(wire.FrameReady, wire.ReadyData{UserID: "sell-1", Role: "seller"})
	if err := wsjson.Write(ctx, ws, ready); err != nil {
		return
	}
	f.conns <- ws

	for {
		var frame wire.Frame
		if err := wsjson.Read(ctx, ws, &frame); err != nil {
			return
		}
		f.received <- frame
	}
}

func (f *fakeLive) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

func (f *fakeLive) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case ws := <-f.conns:
		return ws
	case <-time.After(5 * time.Second):
		t.Fatal("no live connection accepted")
		return nil
	}
}

func push(t *testing.T, ws *websocket.Conn, frameType string, data any) {
	t.Helper()
	frame, err := wire.NewFrame(frameType, data)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, ws, frame))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, url string) *Manager {
	t.Helper()
	m, err := NewManager(Options{
		URL:            url,
		Token:          "token-1",
		Logger:         testLogger(),
		MaxRetries:     3,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
	})
	require.NoError(t, err)
	return m
}

// runManager runs m in the background and returns a channel with Run's result.
func runManager(t *testing.T, m *Manager) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func waitResult(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestLiveURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws", false},
		{"https://souk.example.ts.net/", "wss://souk.example.ts.net/ws", false},
		{"ws://localhost:8080/ws", "ws://localhost:8080/ws", false},
		{"wss://gw.example.com/live", "wss://gw.example.com/live", false},
		{"ftp://example.com", "", true},
		{"http://", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := LiveURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewManager_RequiresToken(t *testing.T) {
	_, err := NewManager(Options{URL: "http://localhost:8080"})
	assert.Error(t, err)
}

func TestManager_SendsTokenAndDispatchesToAllHandlers(t *testing.T) {
	f := newFakeLive(t, false)
	m := newTestManager(t, f.srv.URL)

	first := make(chan wire.MessageData, 4)
	second := make(chan wire.MessageData, 4)
	unsubFirst := m.OnMessage(func(d wire.MessageData) { first <- d })
	m.OnMessage(func(d wire.MessageData) { second <- d })

	runManager(t, m)
	ws := f.nextConn(t)
	require.Eventually(t, m.Connected, 2*time.Second, 5*time.Millisecond)
	f.mu.Lock()
	assert.Equal(t, []string{"token-1"}, f.tokens)
	f.mu.Unlock()

	push(t, ws, wire.FrameMessage, wire.MessageData{ThreadID: "t-1", Message: wire.Message{ID: "m-1", Seq: 1}})
	for _, ch := range []chan wire.MessageData{first, second} {
		select {
		case d := <-ch:
			assert.Equal(t, "m-1", d.Message.ID)
		case <-time.After(2 * time.Second):
			t.Fatal("handler not called")
		}
	}

	// Removing one handler leaves the other in place; removal is idempotent
	unsubFirst()
	unsubFirst()
	assert.Equal(t, 1, m.messages.len())

	push(t, ws, wire.FrameMessage, wire.MessageData{ThreadID: "t-1", Message: wire.Message{ID: "m-2", Seq: 2}})
	select {
	case d := <-second:
		assert.Equal(t, "m-2", d.Message.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("remaining handler not called")
	}
	select {
	case d := <-first:
		t.Fatalf("unsubscribed handler received %s", d.Message.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManager_DispatchesTyping(t *testing.T) {
	f := newFakeLive(t, false)
	m := newTestManager(t, f.srv.URL)

	got := make(chan wire.TypingData, 1)
	m.OnTyping(func(d wire.TypingData) { got <- d })

	runManager(t, m)
	ws := f.nextConn(t)

	push(t, ws, wire.FrameTyping, wire.TypingData{ThreadID: "t-1", UserID: "cust-1", IsTyping: true})
	select {
	case d := <-got:
		assert.Equal(t, wire.TypingData{ThreadID: "t-1", UserID: "cust-1", IsTyping: true}, d)
	case <-time.After(2 * time.Second):
		t.Fatal("typing handler not called")
	}
}

func TestManager_SkipsMalformedFrames(t *testing.T) {
	f := newFakeLive(t, false)
	m := newTestManager(t, f.srv.URL)

	got := make(chan wire.MessageData, 1)
	m.OnMessage(func(d wire.MessageData) { got <- d })

	runManager(t, m)
	ws := f.nextConn(t)

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	require.NoError(t, ws.Write(ctx, websocket.MessageText, []byte("{not json")))
	require.NoError(t, ws.Write(ctx, websocket.MessageBinary, []byte{0x01}))
	push(t, ws, wire.FrameMessage, wire.MessageData{ThreadID: "t-1", Message: wire.Message{ID: "m-1", Seq: 1}})

	select {
	case d := <-got:
		assert.Equal(t, "m-1", d.Message.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("message after malformed frames was not dispatched")
	}
	assert.Equal(t, 1, f.dialCount(), "malformed frames must not force a reconnect")
}

func TestManager_SendTyping(t *testing.T) {
	f := newFakeLive(t, false)
	m := newTestManager(t, f.srv.URL)

	assert.ErrorIs(t, m.SendTyping(t.Context(), "t-1", true), ErrNotConnected)

	runManager(t, m)
	f.nextConn(t)
	require.Eventually(t, m.Connected, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, m.SendTyping(t.Context(), "t-1", true))

	select {
	case frame := <-f.received:
		require.Equal(t, wire.FrameTyping, frame.Type)
		var req wire.TypingRequest
		require.NoError(t, frame.Decode(&req))
		assert.Equal(t, wire.TypingRequest{ThreadID: "t-1", IsTyping: true}, req)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive typing frame")
	}
}

func TestManager_AuthErrorIsTerminal(t *testing.T) {
	f := newFakeLive(t, true)
	m := newTestManager(t, f.srv.URL)

	reconnected := false
	m.OnReconnect(func() { reconnected = true })

	_, done := runManager(t, m)
	err := waitResult(t, done)

	require.ErrorIs(t, err, ErrAuthRejected)
	assert.Contains(t, err.Error(), "invalid token")
	assert.Equal(t, 1, f.dialCount(), "auth errors must not be retried")
	assert.False(t, reconnected)
}

func TestManager_ReconnectsAfterDrop(t *testing.T) {
	f := newFakeLive(t, false)
	m := newTestManager(t, f.srv.URL)

	reconnects := make(chan struct{}, 4)
	m.OnReconnect(func() { reconnects <- struct{}{} })

	runManager(t, m)
	ws := f.nextConn(t)

	require.NoError(t, ws.Close(websocket.StatusGoingAway, "restarting"))

	f.nextConn(t)
	select {
	case <-reconnects:
	case <-time.After(5 * time.Second):
		t.Fatal("OnReconnect not called")
	}
	assert.Equal(t, 2, f.dialCount())
	require.Eventually(t, m.Connected, 2*time.Second, 5*time.Millisecond)
}

func TestManager_GivesUpAfterMaxRetries(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	m := newTestManager(t, url)
	_, done := runManager(t, m)
	err := waitResult(t, done)

	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrAuthRejected))
	assert.Contains(t, err.Error(), "giving up after 3 retries")
}

func TestManager_RunReturnsNilOnCancel(t *testing.T) {
	f := newFakeLive(t, false)
	m := newTestManager(t, f.srv.URL)

	cancel, done := runManager(t, m)
	f.nextConn(t)
	cancel()

	assert.NoError(t, waitResult(t, done))
	assert.False(t, m.Connected())
}

func TestHandlerSet_PreservesOrder(t *testing.T) {
	s := newHandlerSet[func() int]()
	s.add(func() int { return 1 })
	unsub := s.add(func() int { return 2 })
	s.add(func() int { return 3 })

	unsub()

	var got []int
	for _, h := range s.snapshot() {
		got = append(got, h())
	}
	assert.Equal(t, []int{1, 3}, got)
}
