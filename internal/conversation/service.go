// ABOUTME: Service is the send pipeline: record the prompt, detect, route, ask, reconcile
// ABOUTME: The user message is always recorded first and never rolled back by a failed ask

package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/ksasa/internal/agentclient"
	"github.com/2389/ksasa/internal/lang"
	"github.com/2389/ksasa/internal/routing"
	"github.com/2389/ksasa/internal/store"
)

// DefaultTimeout bounds a single call to the Agent Service.
const DefaultTimeout = 60 * time.Second

// ErrNoActiveConversation is returned when an operation needs an active
// conversation and none has been created or selected.
var ErrNoActiveConversation = errors.New("no active conversation")

// Asker defines what the service needs from the Agent Service.
type Asker interface {
	Ask(ctx context.Context, req *agentclient.AskRequest) (*agentclient.AskResponse, error)
}

// TurnObserver is notified once per completed turn.
type TurnObserver interface {
	ObserveTurn(turn *Turn, elapsed time.Duration)
}

// Session is the in-memory state of the active chat.
type Session struct {
	CurrentConversationID string
	UserID                string
	ActiveDomain          routing.Domain
}

// Attachment describes a file the user attached to a prompt.
type Attachment struct {
	Name     string
	MimeType string
	Size     int64
}

// Turn is the outcome of one Send.
type Turn struct {
	ConversationID string
	Detected       lang.Code
	Language       lang.Code
	Domain         routing.Domain
	Reply          Message
	Err            error
}

// Failed reports whether the remote call failed.
func (t *Turn) Failed() bool { return t.Err != nil }

// Option configures a Service.
type Option func(*Service)

// WithTimeout sets the per-request timeout. Zero or negative disables it.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithObserver registers a turn observer.
func WithObserver(o TurnObserver) Option {
	return func(s *Service) { s.observer = o }
}

// WithServiceClock overrides the time source used for metadata refreshes.
func WithServiceClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service runs prompts through the pipeline and owns the active session.
type Service struct {
	store    *Store
	asker    Asker
	timeout  time.Duration
	observer TurnObserver
	now      func() time.Time
	logger   *slog.Logger

	mu      sync.Mutex
	session Session
}

// New creates a Service for userID on top of st.
func New(st *Store, asker Asker, userID string, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:   st,
		asker:   asker,
		timeout: DefaultTimeout,
		now:     time.Now,
		logger:  logger.With("component", "conversation"),
		session: Session{UserID: userID},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send runs prompt through the pipeline. A whitespace-only prompt is ignored
// and returns nil. Remote failures are recorded in the conversation as an
// assistant message and reported on the returned Turn; they are never
// returned as errors.
func (s *Service) Send(ctx context.Context, prompt string, attachments ...Attachment) *Turn {
	if strings.TrimSpace(prompt) == "" {
		return nil
	}
	start := time.Now()

	convID := s.ensureActive()
	s.store.AppendMessage(convID, Message{Role: RoleUser, Text: prompt})

	detected := lang.Detect(prompt)
	replyLang := lang.ReplyCode(detected)
	domain := routing.Route(prompt)
	s.setActiveDomain(domain)

	turn := &Turn{
		ConversationID: convID,
		Detected:       detected,
		Language:       replyLang,
		Domain:         domain,
	}

	logger := s.logger.With("conversation_id", convID, "language", replyLang, "domain", domain)
	if len(attachments) > 0 {
		names := make([]string, len(attachments))
		for i, a := range attachments {
			names[i] = a.Name
		}
		logger.Info("attachments received", "count", len(attachments), "names", names)
	}

	resp, err := s.ask(ctx, &agentclient.AskRequest{
		UserID:  s.userID(),
		Channel: agentclient.ChannelWeb,
		Domain:  string(domain),
		Prompt:  prompt,
	}, domain, replyLang)
	if err != nil {
		turn.Err = err
		turn.Reply = Message{Role: RoleAssistant, Text: "Error: " + err.Error()}
		s.store.AppendMessage(convID, turn.Reply)
		logger.Warn("agent request failed", "error", err)
		s.observe(turn, start)
		return turn
	}

	turn.Reply = Message{
		Role:       RoleAssistant,
		Text:       resp.Reply,
		Citations:  s.decodeCitations(resp.Citations),
		Confidence: resp.Confidence,
		AuditID:    resp.AuditID,
	}
	s.store.AppendMessage(convID, turn.Reply)

	source := resp.Reply
	if source == "" {
		source = prompt
	}
	s.store.RefreshMetadata(convID, source, s.now())

	if first, ok := s.store.FirstUserMessage(convID); ok {
		if s.store.SetTitleOnce(convID, first) {
			logger.Debug("conversation titled")
		}
	}

	logger.Debug("turn completed", "audit_id", resp.AuditID, "citations", len(turn.Reply.Citations))
	s.observe(turn, start)
	return turn
}

func (s *Service) ask(ctx context.Context, req *agentclient.AskRequest, domain routing.Domain, replyLang lang.Code) (*agentclient.AskResponse, error) {
	dctx, err := routing.NewContext(domain, replyLang)
	if err != nil {
		return nil, err
	}
	req.Context = dctx

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.asker.Ask(ctx, req)
}

// decodeCitations converts raw citation records, skipping any that are
// neither a string nor an object.
func (s *Service) decodeCitations(raw []json.RawMessage) []Citation {
	if len(raw) == 0 {
		return nil
	}
	out := make([]Citation, 0, len(raw))
	for _, r := range raw {
		var c Citation
		if err := json.Unmarshal(r, &c); err != nil {
			s.logger.Warn("skipping malformed citation", "error", err)
			continue
		}
		out = append(out, c)
	}
	return out
}

func (s *Service) observe(turn *Turn, start time.Time) {
	if s.observer != nil {
		s.observer.ObserveTurn(turn, time.Since(start))
	}
}

// ensureActive returns the active conversation, creating one first when
// nothing is active. Concurrent first sends share one conversation.
func (s *Service) ensureActive() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.CurrentConversationID != "" {
		if _, ok := s.store.Conversation(s.session.CurrentConversationID); ok {
			return s.session.CurrentConversationID
		}
		s.logger.Warn("active conversation vanished, starting a new one", "conversation_id", s.session.CurrentConversationID)
	}
	s.session.CurrentConversationID = s.store.CreateConversation()
	return s.session.CurrentConversationID
}

func (s *Service) setActiveDomain(d routing.Domain) {
	s.mu.Lock()
	s.session.ActiveDomain = d
	s.mu.Unlock()
}

func (s *Service) userID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.UserID
}

// NewChat creates a conversation and makes it active.
func (s *Service) NewChat() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session.CurrentConversationID = s.store.CreateConversation()
	return s.session.CurrentConversationID
}

// SelectConversation makes id active and returns its log.
func (s *Service) SelectConversation(id string) ([]Message, error) {
	if _, ok := s.store.Conversation(id); !ok {
		return nil, store.ErrNotFound
	}

	s.mu.Lock()
	s.session.CurrentConversationID = id
	s.mu.Unlock()

	return s.store.Select(id), nil
}

// ResumeLatest activates the most recently created conversation, if any.
func (s *Service) ResumeLatest() (string, bool) {
	convs := s.store.Conversations()
	if len(convs) == 0 {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.CurrentConversationID = convs[0].ID
	return convs[0].ID, true
}

// Session returns a copy of the active session.
func (s *Service) Session() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// History returns the active conversation's log.
func (s *Service) History() ([]Message, error) {
	id := s.Session().CurrentConversationID
	if id == "" {
		return nil, ErrNoActiveConversation
	}
	return s.store.Select(id), nil
}
