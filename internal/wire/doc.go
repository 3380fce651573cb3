// Package wire defines the JSON shapes shared by the gateway and its clients.
//
// Live channel frames are {"type": ..., "data": ...} envelopes. A client
// must send an auth frame first; the server answers ready or auth_error.
// After that the server pushes message and typing frames and the client may
// send typing frames. A send frame is always answered with an error frame:
// messages are written only through POST /api/threads/{id}/messages.
package wire
