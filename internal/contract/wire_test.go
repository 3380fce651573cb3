// ABOUTME: Contract tests for the JSON surface shared by the HTTP API and live channel.
// ABOUTME: Fails when a field name or frame type that clients depend on changes.

package contract

import (
	"encoding/json"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/souk-gateway/internal/wire"
)

// jsonKeys marshals v and returns its top-level keys.
func jsonKeys(t *testing.T, v any) []string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)

	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &m))

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// TestWireFieldNames pins the JSON field names of every payload clients parse.
func TestWireFieldNames(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		v    any
		want []string
	}{
		{"Message", wire.Message{Timestamp: now},
			[]string{"content", "id", "read", "sender_id", "seq", "thread_id", "timestamp"}},
		{"Sender", wire.Sender{},
			[]string{"display_name", "id", "role"}},
		{"Thread", wire.Thread{CreatedAt: now, LastActivityAt: now},
			[]string{"created_at", "customer_id", "id", "last_activity_at", "seller_id", "status"}},
		{"ThreadSummary", wire.ThreadSummary{},
			[]string{"created_at", "customer_id", "id", "last_activity_at", "partner", "seller_id", "status"}},
		{"ThreadList", wire.ThreadList{}, []string{"threads"}},
		{"MessageList", wire.MessageList{}, []string{"messages", "thread_id"}},
		{"Participant", wire.Participant{}, []string{"created_at", "display_name", "id", "role"}},
		{"ParticipantList", wire.ParticipantList{}, []string{"participants"}},
		{"Me", wire.Me{}, []string{"display_name", "id", "role"}},
		{"CreateThreadRequest", wire.CreateThreadRequest{}, []string{"partner_id"}},
		{"SendMessageRequest", wire.SendMessageRequest{}, []string{"content"}},
		{"ErrorResponse", wire.ErrorResponse{}, []string{"error"}},
		{"AuthData", wire.AuthData{}, []string{"token"}},
		{"ReadyData", wire.ReadyData{}, []string{"role", "user_id"}},
		{"ErrorData", wire.ErrorData{}, []string{"error"}},
		{"TypingRequest", wire.TypingRequest{}, []string{"is_typing", "thread_id"}},
		{"TypingData", wire.TypingData{}, []string{"is_typing", "thread_id", "user_id"}},
		{"MessageData", wire.MessageData{}, []string{"message", "sender", "thread_id"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, jsonKeys(t, tt.v))
		})
	}
}

// TestFrameTypes pins the frame type strings and the handshake close code.
func TestFrameTypes(t *testing.T) {
	assert.Equal(t, "auth", wire.FrameAuth)
	assert.Equal(t, "typing", wire.FrameTyping)
	assert.Equal(t, "send", wire.FrameSend)
	assert.Equal(t, "ready", wire.FrameReady)
	assert.Equal(t, "auth_error", wire.FrameAuthError)
	assert.Equal(t, "error", wire.FrameError)
	assert.Equal(t, "message", wire.FrameMessage)
	assert.Equal(t, 4401, wire.StatusAuthFailed)
	assert.Equal(t, "Idempotency-Key", wire.IdempotencyKeyHeader)
}

// TestFrameEnvelope pins the envelope layout: type plus an optional data object.
func TestFrameEnvelope(t *testing.T) {
	frame, err := wire.NewFrame(wire.FrameReady, wire.ReadyData{UserID: "cust-1", Role: "customer"})
	require.NoError(t, err)

	data, err := json.Marshal(frame)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ready","data":{"user_id":"cust-1","role":"customer"}}`, string(data))

	bare, err := wire.NewFrame(wire.FrameAuth, nil)
	require.NoError(t, err)
	data, err = json.Marshal(bare)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"auth"}`, string(data))
}
