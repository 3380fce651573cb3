// Package realtime implements the live channel at GET /ws.
//
// # Handshake
//
// After the websocket upgrade (subject to the configured origin allow-list)
// the client must send
//
//	{"type":"auth","data":{"token":"<jwt>"}}
//
// within the handshake timeout. On success the server answers ready and
// subscribes the connection to its identity's events. On failure it sends
// auth_error and closes with status 4401; nothing is subscribed and no frame
// handler runs for that connection.
//
// # Connection lifecycle
//
//	connecting -> authenticating -> joined -> active -> closed
//	authenticating -> closed (bad or missing credential)
//
// Websockets cannot resume, so a dropped link goes straight to closed and
// the client reconnects with a new handshake.
//
// # Events
//
// Server to client: ready, auth_error, error, message, typing.
// Client to server: typing. A send frame is answered with an error frame;
// messages are only written through the HTTP API, and the Gateway only has
// read access to threads (ThreadLookup).
//
// Inbound events are rate limited per connection; events over the limit are
// dropped and logged. Malformed or unauthorized events are answered with an
// error frame and the connection stays open.
package realtime
