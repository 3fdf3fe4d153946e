// Package store provides the durable key-value capability behind the client's
// local state.
//
// # Architecture
//
// Callers depend on the small KV interface (Get/Set). Three backends implement it:
//
//   - SQLiteStore: a single kv table in a local SQLite file (modernc.org/sqlite)
//   - RedisStore: string keys in Redis, for shared kiosk deployments
//   - MemoryStore: an in-memory map for tests
//
// Open selects a backend from configuration.
//
// # Batched Writes
//
// All three backends also implement BatchKV. SetMany applies several keys
// atomically: one transaction in SQLite, one MSET in Redis, one lock hold in
// memory. SetAll uses SetMany when a backend has it and falls back to ordered
// Set calls otherwise:
//
//	store.SetAll(ctx, kv, []store.Entry{
//		{Key: store.KeyConversations, Value: convs},
//		{Key: store.KeyMessages, Value: logs},
//	})
//
// # Keys
//
// The client keeps three keys:
//
//   - KeyUserID: stable per-device user identity
//   - KeyConversations: JSON list of conversation records
//   - KeyMessages: JSON map of conversation id to message log
//
// Values are opaque bytes; serialization belongs to the caller.
//
// # SQLite Configuration
//
// The SQLite backend uses WAL mode:
//
//	PRAGMA journal_mode=WAL;
//
// Database file locations:
//
//   - Default: ~/.local/share/ksasa/ksasa.db
//   - Testing: a file under t.TempDir()
//
// # Error Handling
//
// Get returns ErrNotFound for a missing key. All methods accept
// context.Context for cancellation support.
package store
