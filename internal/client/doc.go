// Package client is the Go client for the souk gateway.
//
// # Overview
//
// Two types cover the two halves of the gateway's surface:
//
//   - API calls the REST endpoints under /api with a bearer token. It is
//     the only way to write: threads are opened with OpenThread and
//     messages are posted with SendMessage.
//   - Manager holds the live channel (/ws) open and delivers pushed
//     messages and typing indicators to registered handlers.
//
// # Live Channel
//
// Manager.Run dials the gateway, sends an auth frame and waits for ready.
// After a drop it reconnects with exponential backoff (cenkalti/backoff),
// resetting the attempt count whenever a session reached ready. An
// auth_error reply, or a close with status 4401, ends Run with
// ErrAuthRejected because retrying the same token cannot succeed.
//
// Pushes are not replayed across reconnects. Consumers register an
// OnReconnect handler and re-fetch history with API.ListMessages using the
// last seq they saw:
//
//	api := client.NewAPI(baseURL, token, nil)
//	live, _ := client.NewManager(client.Options{URL: baseURL, Token: token})
//	live.OnMessage(func(d wire.MessageData) { render(d.Message) })
//	live.OnReconnect(func() { catchUp(api, threadID, lastSeq) })
//	go live.Run(ctx)
//
// Every On* registration returns an unsubscribe function that is safe to
// call more than once.
package client
