// ABOUTME: HTTP API handlers for threads, messages and participants
// ABOUTME: Posting a message here is the only way to write to a thread

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/2389/souk-gateway/internal/auth"
	"github.com/2389/souk-gateway/internal/conversation"
	"github.com/2389/souk-gateway/internal/store"
	"github.com/2389/souk-gateway/internal/wire"
)

const (
	// maxRequestBytes bounds JSON request bodies.
	maxRequestBytes = 64 * 1024

	// maxListLimit caps ?limit on list endpoints.
	maxListLimit = 1000

	// maxIdempotencyKeyLength bounds the Idempotency-Key header.
	maxIdempotencyKeyLength = 255
)

// sendJSON writes v as a JSON response with the given status.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("failed to write response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, wire.ErrorResponse{Error: message})
}

// sendServiceError maps conversation and store errors to HTTP statuses.
// notFound names the missing resource in the 404 body.
func (g *Gateway) sendServiceError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, notFound+" not found")
	case errors.Is(err, conversation.ErrForbidden):
		g.sendJSONError(w, http.StatusForbidden, "not a participant of this thread")
	case errors.Is(err, store.ErrInvalidSender):
		g.sendJSONError(w, http.StatusForbidden, "sender is not a thread participant")
	case errors.Is(err, store.ErrInvalidContent), errors.Is(err, conversation.ErrInvalidPartner):
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrThreadArchived):
		g.sendJSONError(w, http.StatusConflict, "thread is archived")
	case errors.Is(err, conversation.ErrUnavailable):
		g.logger.Warn("conversation unavailable", "path", r.URL.Path, "error", err)
		w.Header().Set("Retry-After", "1")
		g.sendJSONError(w, http.StatusServiceUnavailable, "service unavailable, retry later")
	default:
		g.logger.Error("request failed", "path", r.URL.Path, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseLimit parses an optional positive ?limit, clamped to maxListLimit.
// Zero means the parameter was absent.
func parseLimit(r *http.Request) (int, error) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(limit, maxListLimit), nil
}

// threadIDFromPath extracts the {id} path variable. Thread IDs are UUIDs,
// so anything else names a thread that cannot exist.
func threadIDFromPath(r *http.Request) (string, bool) {
	threadID := mux.Vars(r)["id"]
	if _, err := uuid.Parse(threadID); err != nil {
		return "", false
	}
	return threadID, true
}

// decodeBody decodes a bounded JSON request body.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

// handleMe handles GET /api/me.
func (g *Gateway) handleMe(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())
	g.sendJSON(w, http.StatusOK, wire.Me{
		ID:          id.ID,
		Role:        string(id.Role),
		DisplayName: id.DisplayName,
	})
}

// handleListParticipants handles GET /api/participants?role=R.
// Without a role it lists the caller's counterparts.
func (g *Gateway) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	role := id.Role.Counterpart()
	if roleStr := r.URL.Query().Get("role"); roleStr != "" {
		role = store.Role(roleStr)
		if !role.Valid() {
			g.sendJSONError(w, http.StatusBadRequest, "role must be customer or seller")
			return
		}
	}

	participants, err := g.store.ListParticipants(r.Context(), role)
	if err != nil {
		g.logger.Error("failed to list participants", "error", err)
		g.sendJSONError(w, http.StatusServiceUnavailable, "service unavailable, retry later")
		return
	}

	resp := wire.ParticipantList{Participants: make([]wire.Participant, 0, len(participants))}
	for _, p := range participants {
		resp.Participants = append(resp.Participants, wire.FromParticipant(p))
	}
	g.sendJSON(w, http.StatusOK, resp)
}

// handleListThreads handles GET /api/threads?limit=N.
func (g *Gateway) handleListThreads(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	limit, err := parseLimit(r)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	summaries, err := g.conversation.ListThreads(r.Context(), id.ID, limit)
	if err != nil {
		g.sendServiceError(w, r, err, "thread")
		return
	}

	resp := wire.ThreadList{Threads: make([]wire.ThreadSummary, 0, len(summaries))}
	for _, s := range summaries {
		resp.Threads = append(resp.Threads, wire.ThreadSummary{
			Thread:  wire.FromThread(s.Thread),
			Partner: wire.FromSender(s.Partner),
		})
	}
	g.sendJSON(w, http.StatusOK, resp)
}

// handleCreateThread handles POST /api/threads. It returns 201 when the
// thread was created and 200 when it already existed.
func (g *Gateway) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	var req wire.CreateThreadRequest
	if err := decodeBody(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.PartnerID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "partner_id is required")
		return
	}

	thread, created, err := g.conversation.GetOrCreateThread(r.Context(), id, req.PartnerID)
	if err != nil {
		g.sendServiceError(w, r, err, "partner")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		g.metrics.ThreadCreated()
	}
	g.sendJSON(w, status, wire.FromThread(thread))
}

// handleListMessages handles GET /api/threads/{id}/messages?after_seq=N&limit=N.
func (g *Gateway) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	threadID, ok := threadIDFromPath(r)
	if !ok {
		g.sendJSONError(w, http.StatusNotFound, "thread not found")
		return
	}

	var afterSeq int64
	if s := r.URL.Query().Get("after_seq"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil || v < 0 {
			g.sendJSONError(w, http.StatusBadRequest, "after_seq must be a non-negative integer")
			return
		}
		afterSeq = v
	}

	limit, err := parseLimit(r)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	messages, err := g.conversation.ListMessages(r.Context(), id.ID, threadID, afterSeq, limit)
	if err != nil {
		g.sendServiceError(w, r, err, "thread")
		return
	}

	g.sendJSON(w, http.StatusOK, wire.MessageList{
		ThreadID: threadID,
		Messages: wire.FromMessages(messages),
	})
}

// handleSendMessage handles POST /api/threads/{id}/messages. The sender is
// always the authenticated caller. It returns 201 with the stored message,
// or 200 when an Idempotency-Key replay matched an earlier post.
func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	threadID, ok := threadIDFromPath(r)
	if !ok {
		g.sendJSONError(w, http.StatusNotFound, "thread not found")
		return
	}

	idemKey := r.Header.Get(wire.IdempotencyKeyHeader)
	if len(idemKey) > maxIdempotencyKeyLength {
		g.sendJSONError(w, http.StatusBadRequest, "Idempotency-Key is too long")
		return
	}

	var req wire.SendMessageRequest
	if err := decodeBody(w, r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := g.conversation.SendMessage(r.Context(), conversation.SendRequest{
		ThreadID:       threadID,
		SenderID:       id.ID,
		Content:        req.Content,
		IdempotencyKey: idemKey,
	})
	if err != nil {
		g.sendServiceError(w, r, err, "thread")
		return
	}

	g.metrics.MessageAppended(result.Replayed)

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	g.sendJSON(w, status, wire.FromMessage(result.Message))
}
