// ABOUTME: Store interface and data types for souk-gateway persistence
// ABOUTME: Defines Thread, Message, Participant and the ThreadStore interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateThread is returned when trying to create a thread that already exists
var ErrDuplicateThread = errors.New("thread already exists")

// Append errors
var (
	ErrInvalidSender  = errors.New("sender is not a thread participant")
	ErrInvalidContent = errors.New("invalid message content")
	ErrThreadArchived = errors.New("thread is archived")
)

// MaxContentLength is the maximum message length in runes after trimming.
const MaxContentLength = 4000

// ThreadStatus is the lifecycle state of a thread
type ThreadStatus string

const (
	ThreadStatusActive   ThreadStatus = "active"
	ThreadStatusArchived ThreadStatus = "archived"
)

// Role is the marketplace role of a participant
type Role string

const (
	RoleCustomer Role = "customer"
	RoleSeller   Role = "seller"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleSeller
}

// Counterpart returns the role a conversation partner must have.
func (r Role) Counterpart() Role {
	if r == RoleCustomer {
		return RoleSeller
	}
	return RoleCustomer
}

// Thread is a 1:1 conversation between one customer and one seller.
// The (CustomerID, SellerID) pair is unique.
type Thread struct {
	ID             string
	CustomerID     string
	SellerID       string
	Status         ThreadStatus
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// HasParticipant reports whether userID is the customer or the seller of the thread.
func (t *Thread) HasParticipant(userID string) bool {
	return userID != "" && (userID == t.CustomerID || userID == t.SellerID)
}

// Partner returns the other participant of the thread, or "" if userID is not a participant.
func (t *Thread) Partner(userID string) string {
	switch userID {
	case t.CustomerID:
		return t.SellerID
	case t.SellerID:
		return t.CustomerID
	default:
		return ""
	}
}

// Message is an immutable entry within a thread. Seq is the per-thread
// insertion index and Timestamp is strictly increasing within a thread.
type Message struct {
	ID        string
	ThreadID  string
	Seq       int64
	SenderID  string
	Content   string
	Timestamp time.Time
	Read      bool
}

// Participant holds the identity metadata of a customer or seller
type Participant struct {
	ID          string
	Role        Role
	DisplayName string
	CreatedAt   time.Time
}

// ThreadStore defines the durable storage of conversation threads and messages
type ThreadStore interface {
	// Threads
	FindThread(ctx context.Context, customerID, sellerID string) (*Thread, error)
	CreateThread(ctx context.Context, thread *Thread) error
	GetThread(ctx context.Context, id string) (*Thread, error)
	ListThreadsForUser(ctx context.Context, userID string, limit int) ([]*Thread, error)

	// Messages
	AppendMessage(ctx context.Context, threadID, senderID, content string) (*Message, error)
	GetMessage(ctx context.Context, id string) (*Message, error)
	ListMessages(ctx context.Context, threadID string, afterSeq int64, limit int) ([]*Message, error)
}

// ParticipantStore defines storage of participant identity metadata
type ParticipantStore interface {
	UpsertParticipant(ctx context.Context, p *Participant) (*Participant, error)
	GetParticipant(ctx context.Context, id string) (*Participant, error)
	ListParticipants(ctx context.Context, role Role) ([]*Participant, error)
}

// Store combines all persistence interfaces
type Store interface {
	ThreadStore
	ParticipantStore

	// Ping checks that the database is reachable
	Ping(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}
