// ABOUTME: Conversation id sources and the stable per-device user identity
// ABOUTME: Default ids come from a snowflake node, so they are time-ordered and unique

package conversation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"

	"github.com/2389/ksasa/internal/store"
)

// IDSource generates conversation ids. Ids must be unique and increasing.
type IDSource interface {
	NewID() string
}

// SnowflakeIDs generates time-derived ids from a snowflake node.
type SnowflakeIDs struct {
	node *snowflake.Node
}

// NewSnowflakeIDs creates an id source for the given node number (0-1023).
func NewSnowflakeIDs(nodeID int64) (*SnowflakeIDs, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("creating snowflake node: %w", err)
	}
	return &SnowflakeIDs{node: node}, nil
}

// NewID returns the next id.
func (s *SnowflakeIDs) NewID() string {
	return s.node.Generate().String()
}

// SequenceIDs is a deterministic IDSource: prefix + 1, 2, 3...
type SequenceIDs struct {
	prefix string
	n      atomic.Int64
}

// NewSequenceIDs creates a SequenceIDs with the given prefix.
func NewSequenceIDs(prefix string) *SequenceIDs {
	return &SequenceIDs{prefix: prefix}
}

// NewID returns the next id.
func (s *SequenceIDs) NewID() string {
	return s.prefix + strconv.FormatInt(s.n.Add(1), 10)
}

const userIDPrefix = "user_"

// NewUserID returns a fresh device identity: "user_" and nine lowercase alphanumerics.
func NewUserID() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return userIDPrefix + raw[:9]
}

// LoadUserID returns the persisted device identity, creating and saving one on
// first use.
func LoadUserID(ctx context.Context, kv store.KV) (string, error) {
	data, err := kv.Get(ctx, store.KeyUserID)
	if err == nil && strings.TrimSpace(string(data)) != "" {
		return strings.TrimSpace(string(data)), nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("reading user id: %w", err)
	}

	id := NewUserID()
	if err := kv.Set(ctx, store.KeyUserID, []byte(id)); err != nil {
		return "", fmt.Errorf("saving user id: %w", err)
	}
	return id, nil
}
