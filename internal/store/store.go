// ABOUTME: Key-value capability interface and key names for durable client state
// ABOUTME: Defines KV, ErrNotFound and the Open backend selector

package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested key does not exist
var ErrNotFound = errors.New("not found")

// Durable state keys
const (
	KeyUserID        = "ksasa_user_id"
	KeyConversations = "ksasa_conversations"
	KeyMessages      = "ksasa_messages_by_conversation"
)

// KV is the durable key-value capability
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Entry is one key/value pair of a batched write
type Entry struct {
	Key   string
	Value []byte
}

// BatchKV is implemented by backends that apply several writes atomically
type BatchKV interface {
	KV
	SetMany(ctx context.Context, entries []Entry) error
}

// SetAll writes entries in one atomic batch when kv is a BatchKV, otherwise
// one Set at a time in order.
func SetAll(ctx context.Context, kv KV, entries []Entry) error {
	if b, ok := kv.(BatchKV); ok {
		return b.SetMany(ctx, entries)
	}
	for _, e := range entries {
		if err := kv.Set(ctx, e.Key, e.Value); err != nil {
			return err
		}
	}
	return nil
}

// Backend names accepted by Open
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Options selects and configures a backend
type Options struct {
	Backend  string
	Path     string // sqlite database file
	RedisURL string // redis://host:port/db
}

// Open returns the backend named by opts.Backend (sqlite when empty)
func Open(ctx context.Context, opts Options) (KV, error) {
	switch opts.Backend {
	case "", BackendSQLite:
		return NewSQLiteStore(opts.Path)
	case BackendRedis:
		return NewRedisStore(ctx, opts.RedisURL)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
