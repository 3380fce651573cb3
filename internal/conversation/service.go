// ABOUTME: ConversationService is the single write path for conversation messages
// ABOUTME: Persists first, then pushes the canonical message to both participants

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/souk-gateway/internal/auth"
	"github.com/2389/souk-gateway/internal/dedupe"
	"github.com/2389/souk-gateway/internal/store"
)

// DefaultWriteTimeout bounds a single SendMessage call.
const DefaultWriteTimeout = 5 * time.Second

// Service errors
var (
	ErrUnavailable    = errors.New("conversation store unavailable")
	ErrForbidden      = errors.New("not a participant of this thread")
	ErrInvalidPartner = errors.New("invalid conversation partner")
)

// ConversationStore defines what the service needs from storage
type ConversationStore interface {
	store.ThreadStore
	GetParticipant(ctx context.Context, id string) (*store.Participant, error)
}

// Config tunes the service
type Config struct {
	// WriteTimeout bounds SendMessage including lock wait. Zero selects DefaultWriteTimeout.
	WriteTimeout time.Duration

	// Idempotency remembers Idempotency-Key results. Nil disables replay.
	Idempotency *dedupe.Cache
}

// Service is the central conversation layer. It is the only caller of
// ThreadStore.AppendMessage, and it publishes each stored message while still
// holding the thread's lock, so live push order equals persist order.
type Service struct {
	store        ConversationStore
	broadcaster  *EventBroadcaster
	locks        *threadLocks
	idempotency  *dedupe.Cache
	writeTimeout time.Duration
	logger       *slog.Logger
}

// New creates a new ConversationService
func New(store ConversationStore, broadcaster *EventBroadcaster, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	return &Service{
		store:        store,
		broadcaster:  broadcaster,
		locks:        newThreadLocks(),
		idempotency:  cfg.Idempotency,
		writeTimeout: cfg.WriteTimeout,
		logger:       logger.With("component", "conversation"),
	}
}

// SendRequest contains everything needed to append a message to a thread
type SendRequest struct {
	ThreadID string
	SenderID string
	Content  string

	// IdempotencyKey is optional. A retry with the same key from the same
	// sender on the same thread returns the original message.
	IdempotencyKey string
}

// SendResult contains the canonical stored message
type SendResult struct {
	Message  *store.Message
	Sender   Sender
	Replayed bool
}

// unavailable wraps infrastructure failures so callers can map them to a
// retryable status. Domain errors from the store pass through unchanged.
func unavailable(op string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrInvalidSender),
		errors.Is(err, store.ErrInvalidContent),
		errors.Is(err, store.ErrThreadArchived),
		errors.Is(err, store.ErrDuplicateThread),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrInvalidPartner):
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

// SendMessage validates and persists a message, then pushes the stored
// message to the live channels of both participants.
//
// Key principle: record first, then push. Nothing is delivered live unless it
// was durably stored.
func (s *Service) SendMessage(ctx context.Context, req SendRequest) (*SendResult, error) {
	if req.SenderID == "" {
		return nil, store.ErrInvalidSender
	}
	if err := store.ValidateContent(req.Content); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	unlock, err := s.locks.lock(ctx, req.ThreadID)
	if err != nil {
		return nil, unavailable("waiting for thread lock", err)
	}
	defer unlock()

	thread, err := s.store.GetThread(ctx, req.ThreadID)
	if err != nil {
		return nil, unavailable("loading thread", err)
	}
	if !thread.HasParticipant(req.SenderID) {
		return nil, store.ErrInvalidSender
	}

	var idemKey string
	if req.IdempotencyKey != "" && s.idempotency != nil {
		idemKey = dedupe.Key(req.SenderID, req.ThreadID, req.IdempotencyKey)
		if msgID, ok := s.idempotency.Lookup(idemKey); ok {
			msg, err := s.store.GetMessage(ctx, msgID)
			if err == nil {
				s.logger.Debug("idempotent replay",
					"thread_id", req.ThreadID,
					"message_id", msgID)
				return &SendResult{Message: msg, Sender: s.sender(ctx, thread, req.SenderID), Replayed: true}, nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return nil, unavailable("loading replayed message", err)
			}
		}
	}

	msg, err := s.store.AppendMessage(ctx, req.ThreadID, req.SenderID, req.Content)
	if err != nil {
		return nil, unavailable("appending message", err)
	}

	if idemKey != "" {
		s.idempotency.Remember(idemKey, msg.ID)
	}

	sender := s.sender(ctx, thread, req.SenderID)
	s.logger.Debug("message recorded",
		"thread_id", thread.ID,
		"message_id", msg.ID,
		"seq", msg.Seq,
		"sender", req.SenderID)

	event := &Event{
		Type:     EventMessage,
		ThreadID: thread.ID,
		Message:  msg,
		Sender:   &sender,
	}
	s.broadcaster.Publish(thread.CustomerID, event)
	s.broadcaster.Publish(thread.SellerID, event)

	return &SendResult{Message: msg, Sender: sender}, nil
}

// sender resolves display attributes for a thread participant. Missing
// participant records fall back to the thread position and the raw ID.
func (s *Service) sender(ctx context.Context, thread *store.Thread, senderID string) Sender {
	role := store.RoleCustomer
	if senderID == thread.SellerID {
		role = store.RoleSeller
	}
	result := Sender{ID: senderID, Role: role, DisplayName: senderID}

	p, err := s.store.GetParticipant(ctx, senderID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("resolving sender failed", "sender", senderID, "error", err)
		}
		return result
	}
	result.DisplayName = p.DisplayName
	return result
}

// GetOrCreateThread returns the thread between the requester and partnerID,
// creating it if needed. created reports whether this call created it.
// Concurrent calls for the same pair all return the same thread.
func (s *Service) GetOrCreateThread(ctx context.Context, requester auth.Identity, partnerID string) (thread *store.Thread, created bool, err error) {
	if partnerID == "" || partnerID == requester.ID {
		return nil, false, fmt.Errorf("%w: partner must be another participant", ErrInvalidPartner)
	}
	if !requester.Role.Valid() {
		return nil, false, fmt.Errorf("%w: requester has no role", ErrInvalidPartner)
	}

	partner, err := s.store.GetParticipant(ctx, partnerID)
	if err != nil {
		return nil, false, unavailable("loading partner", err)
	}
	if partner.Role != requester.Role.Counterpart() {
		return nil, false, fmt.Errorf("%w: a %s can only converse with a %s",
			ErrInvalidPartner, requester.Role, requester.Role.Counterpart())
	}

	customerID, sellerID := requester.ID, partner.ID
	if requester.Role == store.RoleSeller {
		customerID, sellerID = partner.ID, requester.ID
	}

	thread, err = s.store.FindThread(ctx, customerID, sellerID)
	if err == nil {
		return thread, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, unavailable("finding thread", err)
	}

	thread = &store.Thread{
		ID:         uuid.New().String(),
		CustomerID: customerID,
		SellerID:   sellerID,
		Status:     store.ThreadStatusActive,
		CreatedAt:  time.Now().UTC(),
	}
	err = s.store.CreateThread(ctx, thread)
	if errors.Is(err, store.ErrDuplicateThread) {
		// Lost a creation race; the winner's thread is authoritative.
		thread, err = s.store.FindThread(ctx, customerID, sellerID)
		if err != nil {
			return nil, false, unavailable("re-fetching thread", err)
		}
		return thread, false, nil
	}
	if err != nil {
		return nil, false, unavailable("creating thread", err)
	}

	s.logger.Info("created thread",
		"thread_id", thread.ID,
		"customer_id", customerID,
		"seller_id", sellerID)
	return thread, true, nil
}

// GetThread returns a thread by ID.
func (s *Service) GetThread(ctx context.Context, threadID string) (*store.Thread, error) {
	thread, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, unavailable("loading thread", err)
	}
	return thread, nil
}

// ThreadSummary is a thread as seen by one of its participants
type ThreadSummary struct {
	Thread  *store.Thread
	Partner Sender
}

// ListThreads returns the threads userID participates in, most recent activity first.
func (s *Service) ListThreads(ctx context.Context, userID string, limit int) ([]*ThreadSummary, error) {
	threads, err := s.store.ListThreadsForUser(ctx, userID, limit)
	if err != nil {
		return nil, unavailable("listing threads", err)
	}

	summaries := make([]*ThreadSummary, 0, len(threads))
	for _, thread := range threads {
		partnerID := thread.Partner(userID)
		summaries = append(summaries, &ThreadSummary{
			Thread:  thread,
			Partner: s.sender(ctx, thread, partnerID),
		})
	}
	return summaries, nil
}

// ListMessages returns a thread's messages after afterSeq in append order.
// Only participants may read a thread.
func (s *Service) ListMessages(ctx context.Context, userID, threadID string, afterSeq int64, limit int) ([]*store.Message, error) {
	thread, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, unavailable("loading thread", err)
	}
	if !thread.HasParticipant(userID) {
		return nil, ErrForbidden
	}

	messages, err := s.store.ListMessages(ctx, threadID, afterSeq, limit)
	if err != nil {
		return nil, unavailable("listing messages", err)
	}
	return messages, nil
}
