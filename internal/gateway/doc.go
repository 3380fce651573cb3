// Package gateway orchestrates the souk-gateway server components.
//
// # Overview
//
// The gateway package wires the conversation subsystem together and owns its
// lifecycle: the SQLite store, the auth gate, the conversation service, the
// event broadcaster, the idempotency cache, the realtime gateway and the HTTP
// server (optionally behind a Tailscale listener).
//
//	type Gateway struct {
//	    config       *config.Config
//	    store        store.Store
//	    gate         *auth.Gate
//	    conversation *conversation.Service
//	    broadcaster  *conversation.EventBroadcaster
//	    realtime     *realtime.Gateway
//	    metrics      *Metrics
//	    // ... and more
//	}
//
// # HTTP API
//
// Every /api route requires a bearer token. The handlers live in api.go:
//
//   - GET /api/me - Caller identity
//   - GET /api/participants?role=R - Participants with a role (default: counterparts)
//   - GET /api/threads?limit=N - Caller's threads, most recent activity first
//   - POST /api/threads - Find or create the thread with a partner
//   - GET /api/threads/{id}/messages?after_seq=S&limit=N - Message history
//   - POST /api/threads/{id}/messages - Send a message (Idempotency-Key honored)
//
// Unauthenticated routes:
//
//   - GET /ws - Live channel (see package realtime)
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check, pings the store
//   - GET /metrics - Prometheus metrics, when enabled
//
// POST is the only write path. The live channel pushes what was stored and
// relays typing indicators.
//
// # Error Mapping
//
// Service errors become JSON error responses:
//
//	not found            -> 404
//	not a participant    -> 403
//	invalid content      -> 400
//	archived thread      -> 409
//	store unavailable    -> 503 (with Retry-After)
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	err = gw.Run(ctx) // blocks until ctx is canceled or a signal arrives
//
// Run shuts down gracefully: live connections are closed first, then the
// HTTP server, then the broadcaster, cache and store.
package gateway
