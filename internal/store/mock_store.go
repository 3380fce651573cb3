// ABOUTME: Mock Store implementation for testing
// ABOUTME: In-memory threads, messages and participants with injectable failures

package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// errMockClosed is returned by every MockStore method after Close.
var errMockClosed = errors.New("mock store is closed")

// MockStore is an in-memory Store implementation for testing. It enforces the
// same invariants as SQLiteStore: one thread per pair, gapless seq and
// strictly increasing timestamps per thread.
type MockStore struct {
	mu           sync.RWMutex
	threads      map[string]*Thread      // keyed by thread ID
	pairs        map[string]string       // keyed by "customerID:sellerID" -> thread ID
	messages     map[string][]*Message   // keyed by thread ID
	messageIndex map[string]*Message     // keyed by message ID
	participants map[string]*Participant // keyed by participant ID
	failure      error
	closed       bool
	now          func() time.Time
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		threads:      make(map[string]*Thread),
		pairs:        make(map[string]string),
		messages:     make(map[string][]*Message),
		messageIndex: make(map[string]*Message),
		participants: make(map[string]*Participant),
		now:          time.Now,
	}
}

// FailWith makes every subsequent call return err, simulating an unreachable
// database. FailWith(nil) restores normal operation.
func (m *MockStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failure = err
}

// SetThreadStatus changes a thread's status.
func (m *MockStore) SetThreadStatus(id string, status ThreadStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[id]
	if !ok {
		return ErrNotFound
	}
	t.Status = status
	return nil
}

// check returns the injected failure, if any. Callers must hold m.mu.
func (m *MockStore) check() error {
	if m.closed {
		return errMockClosed
	}
	return m.failure
}

func pairKey(customerID, sellerID string) string {
	return customerID + ":" + sellerID
}

// CreateThread stores a new thread.
func (m *MockStore) CreateThread(ctx context.Context, thread *Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}

	key := pairKey(thread.CustomerID, thread.SellerID)
	if _, exists := m.pairs[key]; exists {
		return ErrDuplicateThread
	}
	if _, exists := m.threads[thread.ID]; exists {
		return ErrDuplicateThread
	}

	if thread.Status == "" {
		thread.Status = ThreadStatusActive
	}
	if thread.LastActivityAt.IsZero() {
		thread.LastActivityAt = thread.CreatedAt
	}

	// Make a copy to avoid external modification
	t := *thread
	m.threads[t.ID] = &t
	m.pairs[key] = t.ID
	return nil
}

// GetThread retrieves a thread by ID.
func (m *MockStore) GetThread(ctx context.Context, id string) (*Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}

	t, ok := m.threads[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *t
	return &result, nil
}

// FindThread retrieves the thread between a customer and a seller.
func (m *MockStore) FindThread(ctx context.Context, customerID, sellerID string) (*Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}

	id, ok := m.pairs[pairKey(customerID, sellerID)]
	if !ok {
		return nil, ErrNotFound
	}
	result := *m.threads[id]
	return &result, nil
}

// ListThreadsForUser returns the user's threads, most recent activity first.
func (m *MockStore) ListThreadsForUser(ctx context.Context, userID string, limit int) ([]*Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}

	threads := make([]*Thread, 0)
	for _, t := range m.threads {
		if t.HasParticipant(userID) {
			c := *t
			threads = append(threads, &c)
		}
	}

	sort.Slice(threads, func(i, j int) bool {
		if !threads[i].LastActivityAt.Equal(threads[j].LastActivityAt) {
			return threads[i].LastActivityAt.After(threads[j].LastActivityAt)
		}
		return threads[i].ID < threads[j].ID
	})

	if limit > 0 && len(threads) > limit {
		threads = threads[:limit]
	}
	return threads, nil
}

// AppendMessage appends a message with the next seq and a timestamp after
// the thread's previous message.
func (m *MockStore) AppendMessage(ctx context.Context, threadID, senderID, content string) (*Message, error) {
	if err := ValidateContent(content); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}

	t, ok := m.threads[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	if !t.HasParticipant(senderID) {
		return nil, ErrInvalidSender
	}
	if t.Status == ThreadStatusArchived {
		return nil, ErrThreadArchived
	}

	existing := m.messages[threadID]
	timestamp := m.now().UTC()
	var seq int64 = 1
	if n := len(existing); n > 0 {
		last := existing[n-1]
		seq = last.Seq + 1
		if !timestamp.After(last.Timestamp) {
			timestamp = last.Timestamp.Add(1)
		}
	}

	msg := &Message{
		ID:        uuid.New().String(),
		ThreadID:  threadID,
		Seq:       seq,
		SenderID:  senderID,
		Content:   content,
		Timestamp: timestamp,
	}
	m.messages[threadID] = append(existing, msg)
	m.messageIndex[msg.ID] = msg
	t.LastActivityAt = timestamp

	result := *msg
	return &result, nil
}

// GetMessage retrieves a single message by ID.
func (m *MockStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}

	msg, ok := m.messageIndex[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *msg
	return &result, nil
}

// ListMessages returns messages with seq greater than afterSeq in append order.
func (m *MockStore) ListMessages(ctx context.Context, threadID string, afterSeq int64, limit int) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}

	result := make([]*Message, 0)
	for _, msg := range m.messages[threadID] {
		if msg.Seq <= afterSeq {
			continue
		}
		c := *msg
		result = append(result, &c)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// UpsertParticipant records a participant, keeping the original role.
func (m *MockStore) UpsertParticipant(ctx context.Context, p *Participant) (*Participant, error) {
	if !p.Role.Valid() {
		return nil, errors.New("invalid participant role " + string(p.Role))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}

	name := p.DisplayName
	if name == "" {
		name = p.ID
	}

	existing, ok := m.participants[p.ID]
	if !ok {
		createdAt := p.CreatedAt
		if createdAt.IsZero() {
			createdAt = m.now().UTC()
		}
		existing = &Participant{ID: p.ID, Role: p.Role, DisplayName: name, CreatedAt: createdAt}
		m.participants[p.ID] = existing
	} else if existing.Role == p.Role {
		existing.DisplayName = name
	}

	result := *existing
	return &result, nil
}

// GetParticipant retrieves a participant by ID.
func (m *MockStore) GetParticipant(ctx context.Context, id string) (*Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}

	p, ok := m.participants[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *p
	return &result, nil
}

// ListParticipants lists participants ordered by display name. An empty role
// lists everyone.
func (m *MockStore) ListParticipants(ctx context.Context, role Role) ([]*Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}

	result := make([]*Participant, 0)
	for _, p := range m.participants {
		if role == "" || p.Role == role {
			c := *p
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].DisplayName != result[j].DisplayName {
			return result[i].DisplayName < result[j].DisplayName
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Ping reports the injected failure, if any.
func (m *MockStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.check()
}

// Close marks the store closed. Later calls fail.
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Ensure MockStore implements Store
var _ Store = (*MockStore)(nil)
