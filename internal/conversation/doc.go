// Package conversation provides the conversation service and live fan-out.
//
// # Service
//
// Service is the only component that appends messages:
//
//	svc := conversation.New(store, broadcaster, conversation.Config{}, logger)
//	result, err := svc.SendMessage(ctx, conversation.SendRequest{...})
//
// SendMessage takes a per-thread lock, appends through the store, and
// publishes the stored message to both participants before releasing the
// lock. Two concurrent sends on one thread are therefore pushed in the same
// order they were persisted, and a push never happens for a message that was
// not stored.
//
// Other operations:
//
//   - GetOrCreateThread(ctx, requester, partnerID): idempotent per pair
//   - ListThreads(ctx, userID, limit): most recent activity first
//   - ListMessages(ctx, userID, threadID, afterSeq, limit): participants only
//   - GetThread(ctx, threadID)
//
// # Errors
//
// Store failures other than domain errors (not found, invalid sender, invalid
// content, archived) are wrapped in ErrUnavailable, as are write timeouts.
//
// # Event Broadcasting
//
// EventBroadcaster keeps one channel per live subscription, keyed by the
// recipient identity:
//
//	ch, subID := broadcaster.Subscribe(ctx, identityID)
//
// Publish never blocks. A subscriber whose buffer is full misses the event and
// is expected to re-fetch history with ListMessages.
package conversation
