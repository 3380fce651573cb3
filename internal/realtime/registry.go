// ABOUTME: Tracks the live connections accepted by this gateway instance
// ABOUTME: Used for presence queries, connection counts and shutdown

package realtime

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Registry holds every active connection, indexed by connection ID and by identity.
type Registry struct {
	conns      map[string]*Connection
	byIdentity map[string]map[string]*Connection
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:      make(map[string]*Connection),
		byIdentity: make(map[string]map[string]*Connection),
		logger:     logger,
	}
}

// Register adds an authenticated connection.
func (r *Registry) Register(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[c.ID] = c
	userID := c.identity.ID
	if _, ok := r.byIdentity[userID]; !ok {
		r.byIdentity[userID] = make(map[string]*Connection)
	}
	r.byIdentity[userID][c.ID] = c

	r.logger.Info("live connection joined",
		"connection_id", c.ID,
		"user_id", userID,
		"role", c.identity.Role,
		"total_connections", len(r.conns),
	)
}

// Unregister removes a connection. Unknown IDs are ignored.
func (r *Registry) Unregister(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c.ID]; !ok {
		return
	}
	delete(r.conns, c.ID)

	userID := c.identity.ID
	if set, ok := r.byIdentity[userID]; ok {
		delete(set, c.ID)
		if len(set) == 0 {
			delete(r.byIdentity, userID)
		}
	}

	r.logger.Info("live connection left",
		"connection_id", c.ID,
		"user_id", userID,
		"total_connections", len(r.conns),
	)
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// IsOnline reports whether the identity has at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byIdentity[userID]) > 0
}

// CloseAll closes every connection with StatusGoingAway.
func (r *Registry) CloseAll(reason string) {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		c.Close(websocket.StatusGoingAway, reason)
	}
}
