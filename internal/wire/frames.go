// ABOUTME: JSON frame types exchanged over the live channel
// ABOUTME: Shared by the realtime gateway and the client connection manager

package wire

import (
	"encoding/json"
	"fmt"
)

// Frame types
const (
	// client -> server
	FrameAuth   = "auth"
	FrameTyping = "typing"
	FrameSend   = "send"

	// server -> client
	FrameReady     = "ready"
	FrameAuthError = "auth_error"
	FrameError     = "error"
	FrameMessage   = "message"
)

// StatusAuthFailed is the close status used when the handshake fails.
const StatusAuthFailed = 4401

// SendNotSupported is the error returned for an inbound send frame.
const SendNotSupported = "send over live channel is not supported; use POST /api/threads/{id}/messages"

// Frame is the envelope of every live channel message
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals data into a frame of the given type.
func NewFrame(frameType string, data any) (Frame, error) {
	if data == nil {
		return Frame{Type: frameType}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("encoding %s frame: %w", frameType, err)
	}
	return Frame{Type: frameType, Data: raw}, nil
}

// Decode unmarshals the frame payload into v.
func (f Frame) Decode(v any) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("%s frame has no data", f.Type)
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("decoding %s frame: %w", f.Type, err)
	}
	return nil
}

// AuthData is the payload of the first client frame
type AuthData struct {
	Token string `json:"token"`
}

// ReadyData confirms a successful handshake
type ReadyData struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// ErrorData carries an error for auth_error and error frames
type ErrorData struct {
	Error string `json:"error"`
}

// TypingRequest is sent by a client to signal typing in a thread
type TypingRequest struct {
	ThreadID string `json:"thread_id"`
	IsTyping bool   `json:"is_typing"`
}

// TypingData is relayed to the other participant of the thread
type TypingData struct {
	ThreadID string `json:"thread_id"`
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

// MessageData pushes a stored message to a participant
type MessageData struct {
	ThreadID string  `json:"thread_id"`
	Message  Message `json:"message"`
	Sender   Sender  `json:"sender"`
}
