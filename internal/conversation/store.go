// ABOUTME: Store owns the conversation list and per-conversation message logs
// ABOUTME: Every mutation is written through to the KV backend before the lock is released

package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/ksasa/internal/store"
)

// persistTimeout bounds each synchronous write-through.
const persistTimeout = 5 * time.Second

// Store is the single source of truth for conversations and message logs.
// All reads and mutations go through its lock, so completions that arrive late
// always apply against the current state.
type Store struct {
	mu            sync.Mutex
	kv            store.KV
	ids           IDSource
	now           func() time.Time
	events        *EventBroadcaster
	logger        *slog.Logger
	conversations []*Conversation // display order: most recently created first
	logs          map[string][]Message
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithIDSource overrides the conversation id generator.
func WithIDSource(ids IDSource) StoreOption {
	return func(s *Store) { s.ids = ids }
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithBroadcaster publishes every applied append to b.
func WithBroadcaster(b *EventBroadcaster) StoreOption {
	return func(s *Store) { s.events = b }
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates a Store backed by kv and rehydrates it.
func NewStore(ctx context.Context, kv store.KV, opts ...StoreOption) (*Store, error) {
	s := &Store{
		kv:     kv,
		now:    time.Now,
		logger: slog.Default(),
		logs:   make(map[string][]Message),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "conversation-store")

	if s.ids == nil {
		ids, err := NewSnowflakeIDs(1)
		if err != nil {
			return nil, err
		}
		s.ids = ids
	}

	s.Rehydrate(ctx)
	return s, nil
}

// CreateConversation adds a new "New Chat" conversation at the head of the
// list and returns its id.
func (s *Store) CreateConversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.ids.NewID()
	for s.findLocked(id) != nil {
		s.logger.Warn("id source returned a duplicate id, drawing again", "id", id)
		id = s.ids.NewID()
	}

	now := s.timestamp()
	conv := &Conversation{
		ID:        id,
		Title:     DefaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.conversations = append([]*Conversation{conv}, s.conversations...)
	s.persistLocked()

	s.logger.Debug("conversation created", "conversation_id", id)
	return id
}

// AppendMessage appends msg to the conversation log and refreshes the
// conversation metadata from msg.Text. It reports false, changing nothing,
// when the conversation does not exist.
func (s *Store) AppendMessage(id string, msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.findLocked(id)
	if conv == nil {
		s.logger.Warn("append to unknown conversation ignored", "conversation_id", id)
		return false
	}

	msg.Citations = cloneCitations(msg.Citations)
	s.logs[id] = append(s.logs[id], msg)
	index := len(s.logs[id]) - 1
	refresh(conv, msg.Text, s.timestamp())
	s.persistLocked()

	if s.events != nil {
		s.events.Publish(Event{ConversationID: id, Index: index, Message: msg})
	}
	return true
}

// RefreshMetadata sets the conversation's updatedAt and lastSnippet.
func (s *Store) RefreshMetadata(id, text string, ts time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.findLocked(id)
	if conv == nil {
		return false
	}
	refresh(conv, text, ts.UTC())
	s.persistLocked()
	return true
}

func refresh(conv *Conversation, text string, ts time.Time) {
	conv.UpdatedAt = ts
	conv.LastSnippet = Snippet(text)
}

// SetTitleOnce titles the conversation from text unless it already has been
// titled. It reports whether the title changed.
func (s *Store) SetTitleOnce(id, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.findLocked(id)
	if conv == nil || conv.Titled {
		return false
	}
	conv.Title = Title(text)
	conv.Titled = true
	s.persistLocked()
	return true
}

// Select returns a copy of the conversation's log; empty if nothing was recorded.
func (s *Store) Select(id string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[id]
	out := make([]Message, len(log))
	copy(out, log)
	return out
}

// FirstUserMessage returns the text of the first user message in the log.
func (s *Store) FirstUserMessage(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.logs[id] {
		if m.Role == RoleUser {
			return m.Text, true
		}
	}
	return "", false
}

// Conversations returns the conversation list in display order.
func (s *Store) Conversations() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Conversation, len(s.conversations))
	for i, c := range s.conversations {
		out[i] = *c
	}
	return out
}

// Conversation returns one conversation record.
func (s *Store) Conversation(id string) (Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.findLocked(id)
	if conv == nil {
		return Conversation{}, false
	}
	return *conv, true
}

// Export returns a deep copy of the full store state.
func (s *Store) Export() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Import replaces the store state with snap and persists it. Invalid records
// are dropped the same way Rehydrate drops them.
func (s *Store) Import(ctx context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loadLocked(snap.Conversations, snap.Messages)
	return s.writeLocked(ctx)
}

// Persist writes the full state to the KV backend.
func (s *Store) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(ctx)
}

// Rehydrate replaces the in-memory state with what the KV backend holds.
// Missing or malformed data yields an empty state; it never fails.
func (s *Store) Rehydrate(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var convs []Conversation
	if ok := s.readLocked(ctx, store.KeyConversations, &convs); !ok {
		convs = nil
	}
	var logs map[string][]Message
	if ok := s.readLocked(ctx, store.KeyMessages, &logs); !ok {
		logs = nil
	}

	s.loadLocked(convs, logs)
	s.logger.Debug("store rehydrated", "conversations", len(s.conversations))
}

// loadLocked installs convs and logs, skipping empty or duplicate ids and
// logs whose conversation is unknown.
func (s *Store) loadLocked(convs []Conversation, logs map[string][]Message) {
	s.conversations = nil
	s.logs = make(map[string][]Message)
	seen := make(map[string]bool, len(convs))
	for i := range convs {
		c := convs[i]
		if c.ID == "" || seen[c.ID] {
			s.logger.Warn("dropping invalid or duplicate conversation", "conversation_id", c.ID)
			continue
		}
		seen[c.ID] = true
		s.conversations = append(s.conversations, &c)
	}
	for id, log := range logs {
		if !seen[id] {
			s.logger.Warn("dropping message log for unknown conversation", "conversation_id", id, "messages", len(log))
			continue
		}
		if len(log) > 0 {
			s.logs[id] = append([]Message(nil), log...)
		}
	}
}

// readLocked decodes key into dst. It reports false when the key is missing,
// unreadable or malformed.
func (s *Store) readLocked(ctx context.Context, key string, dst any) bool {
	data, err := s.kv.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return false
	}
	if err != nil {
		s.logger.Error("failed to read persisted state", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.logger.Warn("persisted state is malformed, starting empty", "key", key, "error", err)
		return false
	}
	return true
}

// persistLocked writes through after a mutation. Failures are logged; the
// in-memory state stays authoritative for the session.
func (s *Store) persistLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.writeLocked(ctx); err != nil {
		s.logger.Error("failed to persist conversation state", "error", err)
	}
}

// writeLocked serializes both structures and writes them as one batch. On
// backends without batching the conversation list is written first, so a
// crash between the two writes never leaves a log without its conversation.
func (s *Store) writeLocked(ctx context.Context) error {
	snap := s.snapshotLocked()

	convs, err := json.Marshal(snap.Conversations)
	if err != nil {
		return fmt.Errorf("encoding conversations: %w", err)
	}
	logs, err := json.Marshal(snap.Messages)
	if err != nil {
		return fmt.Errorf("encoding messages: %w", err)
	}

	return store.SetAll(ctx, s.kv, []store.Entry{
		{Key: store.KeyConversations, Value: convs},
		{Key: store.KeyMessages, Value: logs},
	})
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Conversations: make([]Conversation, len(s.conversations)),
		Messages:      make(map[string][]Message, len(s.logs)),
	}
	for i, c := range s.conversations {
		snap.Conversations[i] = *c
	}
	for id, log := range s.logs {
		cp := make([]Message, len(log))
		copy(cp, log)
		snap.Messages[id] = cp
	}
	return snap
}

func (s *Store) findLocked(id string) *Conversation {
	for _, c := range s.conversations {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

func cloneCitations(in []Citation) []Citation {
	if in == nil {
		return nil
	}
	out := make([]Citation, len(in))
	copy(out, in)
	return out
}
