// ABOUTME: JSON representations of threads, messages and participants
// ABOUTME: Used by the HTTP API, live channel frames and the REST client

package wire

import (
	"time"

	"github.com/2389/souk-gateway/internal/conversation"
	"github.com/2389/souk-gateway/internal/store"
)

// Message is a stored message as seen by clients
type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Seq       int64     `json:"seq"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

// Sender describes the author of a message or a thread partner
type Sender struct {
	ID          string `json:"id"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
}

// Thread is a conversation between one customer and one seller
type Thread struct {
	ID             string    `json:"id"`
	CustomerID     string    `json:"customer_id"`
	SellerID       string    `json:"seller_id"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// ThreadSummary is a thread plus the caller's partner
type ThreadSummary struct {
	Thread
	Partner Sender `json:"partner"`
}

// ThreadList is the body of GET /api/threads
type ThreadList struct {
	Threads []ThreadSummary `json:"threads"`
}

// MessageList is the body of GET /api/threads/{id}/messages
type MessageList struct {
	ThreadID string    `json:"thread_id"`
	Messages []Message `json:"messages"`
}

// CreateThreadRequest is the body of POST /api/threads
type CreateThreadRequest struct {
	PartnerID string `json:"partner_id"`
}

// SendMessageRequest is the body of POST /api/threads/{id}/messages
type SendMessageRequest struct {
	Content string `json:"content"`
}

// Me is the body of GET /api/me
type Me struct {
	ID          string `json:"id"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
}

// Participant is an entry of GET /api/participants
type Participant struct {
	ID          string    `json:"id"`
	Role        string    `json:"role"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// ParticipantList is the body of GET /api/participants
type ParticipantList struct {
	Participants []Participant `json:"participants"`
}

// ErrorResponse is the body of every error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// IdempotencyKeyHeader carries an optional idempotency key on message posts.
const IdempotencyKeyHeader = "Idempotency-Key"

// FromMessage converts a stored message.
func FromMessage(m *store.Message) Message {
	return Message{
		ID:        m.ID,
		ThreadID:  m.ThreadID,
		Seq:       m.Seq,
		SenderID:  m.SenderID,
		Content:   m.Content,
		Timestamp: m.Timestamp,
		Read:      m.Read,
	}
}

// FromMessages converts a slice of stored messages, never returning nil.
func FromMessages(messages []*store.Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, FromMessage(m))
	}
	return out
}

// FromSender converts a conversation sender.
func FromSender(s conversation.Sender) Sender {
	return Sender{ID: s.ID, Role: string(s.Role), DisplayName: s.DisplayName}
}

// FromThread converts a stored thread.
func FromThread(t *store.Thread) Thread {
	return Thread{
		ID:             t.ID,
		CustomerID:     t.CustomerID,
		SellerID:       t.SellerID,
		Status:         string(t.Status),
		CreatedAt:      t.CreatedAt,
		LastActivityAt: t.LastActivityAt,
	}
}

// FromParticipant converts a stored participant.
func FromParticipant(p *store.Participant) Participant {
	return Participant{
		ID:          p.ID,
		Role:        string(p.Role),
		DisplayName: p.DisplayName,
		CreatedAt:   p.CreatedAt,
	}
}
