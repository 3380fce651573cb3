// Package store provides persistent storage for conversation threads using SQLite.
//
// # Architecture
//
// The store package exposes two focused interfaces:
//
//   - ThreadStore: threads and their append-only message logs
//   - ParticipantStore: identity metadata for customers and sellers
//
// SQLiteStore implements both in a single struct; Store combines them with
// Ping and Close for the gateway's lifecycle.
//
// # Data Models
//
//   - Thread: the single 1:1 conversation between a customer and a seller
//   - Message: an immutable entry with a per-thread Seq and Timestamp
//   - Participant: a customer or seller recorded from validated token claims
//
// # Ordering
//
// AppendMessage runs in one transaction. It assigns Seq as the previous
// maximum plus one and a Timestamp strictly after the previous message of
// the thread, even if the wall clock goes backwards. UNIQUE(thread_id, seq)
// backs the seq guarantee. The database is opened with a single connection
// so appends are serialized:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//	PRAGMA busy_timeout=5000;
//
// # Error Handling
//
//   - ErrNotFound: requested entity does not exist
//   - ErrDuplicateThread: the customer/seller pair already has a thread
//   - ErrInvalidSender: sender is not a participant of the thread
//   - ErrInvalidContent: content is empty or too long
//   - ErrThreadArchived: the thread no longer accepts messages
//
// Failed appends write nothing.
package store
