// ABOUTME: Conversation, Message and Citation records persisted by the Store
// ABOUTME: Citations decode from either an object or a plain string and re-encode the same way

package conversation

import (
	"encoding/json"
	"time"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DefaultTitle is the title of a conversation before its first exchange completes.
const DefaultTitle = "New Chat"

const (
	snippetLimit = 60
	titleLimit   = 30
	ellipsis     = "…"
)

// Conversation is the listing record for one thread.
type Conversation struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	LastSnippet string    `json:"lastSnippet,omitempty"`
	Titled      bool      `json:"titled,omitempty"`
}

// Message is one immutable entry in a conversation log.
type Message struct {
	Role       Role       `json:"role"`
	Text       string     `json:"text"`
	Citations  []Citation `json:"citations,omitempty"`
	Confidence *float64   `json:"confidence,omitempty"`
	AuditID    string     `json:"audit_id,omitempty"`
}

// Citation is a source reference attached to an assistant reply. The Agent
// Service sends either {source, snippet, score} objects or plain strings.
// A citation re-encodes in the shape it was built or decoded with; use
// PlainCitation for the string shape.
type Citation struct {
	Source  string  `json:"source,omitempty"`
	Snippet string  `json:"snippet,omitempty"`
	Score   float64 `json:"score,omitempty"`
	Text    string  `json:"-"`

	plain bool
}

type citationObject struct {
	Source  string  `json:"source,omitempty"`
	Snippet string  `json:"snippet,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// PlainCitation returns a citation that encodes as a bare string.
func PlainCitation(text string) Citation {
	return Citation{Text: text, plain: true}
}

// IsPlain reports whether the citation is a bare string.
func (c Citation) IsPlain() bool {
	return c.plain
}

// String renders the citation for display.
func (c Citation) String() string {
	if c.plain {
		return c.Text
	}
	if c.Snippet == "" {
		return c.Source
	}
	return c.Source + ": " + c.Snippet
}

// MarshalJSON encodes plain citations as strings and the rest as objects.
func (c Citation) MarshalJSON() ([]byte, error) {
	if c.plain {
		return json.Marshal(c.Text)
	}
	return json.Marshal(citationObject{Source: c.Source, Snippet: c.Snippet, Score: c.Score})
}

// UnmarshalJSON accepts either a string or an object.
func (c *Citation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = PlainCitation(s)
		return nil
	}
	var obj citationObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*c = Citation{Source: obj.Source, Snippet: obj.Snippet, Score: obj.Score}
	return nil
}

// Truncate returns text unchanged if it has at most limit characters, otherwise
// its first limit characters followed by an ellipsis.
func Truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + ellipsis
}

// Snippet is the listing teaser for text.
func Snippet(text string) string {
	return Truncate(text, snippetLimit)
}

// Title is the conversation title derived from a first user message.
func Title(text string) string {
	return Truncate(text, titleLimit)
}

// Snapshot is the serialized form of the whole store.
type Snapshot struct {
	Conversations []Conversation       `json:"conversations"`
	Messages      map[string][]Message `json:"messages"`
}
