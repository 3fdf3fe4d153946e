// ABOUTME: Tests for the send pipeline
// ABOUTME: Verifies ordering, failure handling, titling and completion-order reconciliation

package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/ksasa/internal/agentclient"
	"github.com/2389/ksasa/internal/lang"
	"github.com/2389/ksasa/internal/routing"
	"github.com/2389/ksasa/internal/store"
)

// stubAsker implements Asker for testing
type stubAsker struct {
	mu       sync.Mutex
	requests []*agentclient.AskRequest
	resp     *agentclient.AskResponse
	err      error
}

func (m *stubAsker) Ask(ctx context.Context, req *agentclient.AskRequest) (*agentclient.AskResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if m.resp != nil {
		return m.resp, nil
	}
	return &agentclient.AskResponse{Reply: "reply to " + req.Prompt}, nil
}

func (m *stubAsker) calls() []*agentclient.AskRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*agentclient.AskRequest(nil), m.requests...)
}

// recordingObserver implements TurnObserver for testing
type recordingObserver struct {
	mu    sync.Mutex
	turns []*Turn
}

func (o *recordingObserver) ObserveTurn(turn *Turn, elapsed time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.turns = append(o.turns, turn)
}

func newTestStore(t *testing.T, kv store.KV) *Store {
	t.Helper()
	st, err := NewStore(t.Context(), kv, WithIDSource(NewSequenceIDs("conv-")))
	require.NoError(t, err)
	return st
}

func newTestService(t *testing.T, asker Asker, opts ...Option) (*Service, *Store, *store.MemoryStore) {
	t.Helper()
	kv := store.NewMemoryStore()
	st := newTestStore(t, kv)
	return New(st, asker, "user_abc123def", nil, opts...), st, kv
}

func TestService_Send_IgnoresBlankPrompt(t *testing.T) {
	asker := &stubAsker{}
	svc, st, kv := newTestService(t, asker)

	for _, prompt := range []string{"", "   ", "\n\t "} {
		assert.Nil(t, svc.Send(t.Context(), prompt))
	}

	assert.Empty(t, asker.calls())
	assert.Empty(t, st.Conversations())
	assert.Empty(t, svc.Session().CurrentConversationID)
	assert.Zero(t, kv.Writes())
}

func TestService_Send_FirstSendCreatesOneConversation(t *testing.T) {
	asker := &stubAsker{}
	svc, st, _ := newTestService(t, asker)

	turn := svc.Send(t.Context(), "Nina maumivu ya kichwa na homa")
	require.NotNil(t, turn)
	require.NoError(t, turn.Err)

	convs := st.Conversations()
	require.Len(t, convs, 1)
	assert.Equal(t, convs[0].ID, turn.ConversationID)
	assert.Equal(t, convs[0].ID, svc.Session().CurrentConversationID)

	log := st.Select(turn.ConversationID)
	require.Len(t, log, 2)
	assert.Equal(t, Message{Role: RoleUser, Text: "Nina maumivu ya kichwa na homa"}, log[0])
	assert.Equal(t, RoleAssistant, log[1].Role)
}

func TestService_Send_HealthPromptInSwahili(t *testing.T) {
	asker := &stubAsker{}
	svc, _, _ := newTestService(t, asker)

	turn := svc.Send(t.Context(), "Nina maumivu ya kichwa na homa")
	require.NotNil(t, turn)

	assert.Equal(t, lang.Swahili, turn.Language)
	assert.Equal(t, routing.Health, turn.Domain)
	assert.Equal(t, routing.Health, svc.Session().ActiveDomain)

	calls := asker.calls()
	require.Len(t, calls, 1)
	req := calls[0]
	assert.Equal(t, "user_abc123def", req.UserID)
	assert.Equal(t, agentclient.ChannelWeb, req.Channel)
	assert.Equal(t, "health", req.Domain)
	assert.Equal(t, "Nina maumivu ya kichwa na homa", req.Prompt)
	assert.Equal(t, routing.HealthContext{Language: lang.Swahili, Category: "general", Urgency: "normal"}, req.Context)
}

func TestService_Send_GovernancePromptInEnglish(t *testing.T) {
	asker := &stubAsker{}
	svc, _, _ := newTestService(t, asker)

	turn := svc.Send(t.Context(), "I need my KRA PIN and passport renewed")
	require.NotNil(t, turn)

	assert.Equal(t, lang.English, turn.Language)
	assert.Equal(t, routing.Governance, turn.Domain)
	assert.Equal(t, routing.GovernanceContext{Language: lang.English, Department: "general"}, asker.calls()[0].Context)
}

func TestService_Send_ShengRepliesInSwahili(t *testing.T) {
	asker := &stubAsker{}
	svc, _, _ := newTestService(t, asker)

	turn := svc.Send(t.Context(), "msee poa mambo")
	require.NotNil(t, turn)

	assert.Equal(t, lang.Sheng, turn.Detected)
	assert.Equal(t, lang.Swahili, turn.Language)
	assert.Equal(t, routing.Education, turn.Domain)
	assert.Equal(t, routing.EducationContext{
		Language:        lang.Swahili,
		Grade:           4,
		Subject:         "Hisabati",
		DurationMinutes: 30,
	}, asker.calls()[0].Context)
}

func TestService_Send_SuccessAppendsReplyWithCitations(t *testing.T) {
	confidence := 0.82
	asker := &stubAsker{resp: &agentclient.AskResponse{
		Reply: "Pumzika na unywe maji mengi.",
		Citations: []json.RawMessage{
			json.RawMessage(`{"source":"MoH guidelines","snippet":"rest and fluids","score":0.9}`),
			json.RawMessage(`"KEMRI factsheet"`),
			json.RawMessage(`42`),
		},
		Confidence: &confidence,
		AuditID:    "audit-7",
	}}
	svc, st, _ := newTestService(t, asker)

	turn := svc.Send(t.Context(), "homa")
	require.NotNil(t, turn)
	require.False(t, turn.Failed())

	log := st.Select(turn.ConversationID)
	require.Len(t, log, 2)
	reply := log[1]
	assert.Equal(t, "Pumzika na unywe maji mengi.", reply.Text)
	assert.Equal(t, "audit-7", reply.AuditID)
	require.NotNil(t, reply.Confidence)
	assert.InDelta(t, 0.82, *reply.Confidence, 1e-9)
	assert.Equal(t, []Citation{
		{Source: "MoH guidelines", Snippet: "rest and fluids", Score: 0.9},
		PlainCitation("KEMRI factsheet"),
	}, reply.Citations)

	conv, ok := st.Conversation(turn.ConversationID)
	require.True(t, ok)
	assert.Equal(t, "Pumzika na unywe maji mengi.", conv.LastSnippet)
	assert.Equal(t, "homa", conv.Title)
}

func TestService_Send_EmptyReplyRefreshesFromPrompt(t *testing.T) {
	asker := &stubAsker{resp: &agentclient.AskResponse{}}
	svc, st, _ := newTestService(t, asker)

	turn := svc.Send(t.Context(), "passport form")
	require.NotNil(t, turn)

	conv, _ := st.Conversation(turn.ConversationID)
	assert.Equal(t, "passport form", conv.LastSnippet)
	assert.Len(t, st.Select(turn.ConversationID), 2)
}

func TestService_Send_FailureKeepsUserMessage(t *testing.T) {
	asker := &stubAsker{err: errors.New("connection refused")}
	obs := &recordingObserver{}
	svc, st, kv := newTestService(t, asker, WithObserver(obs))

	turn := svc.Send(t.Context(), "Nisaidie na lesson plan")
	require.NotNil(t, turn)
	require.True(t, turn.Failed())

	log := st.Select(turn.ConversationID)
	require.Len(t, log, 2)
	assert.Equal(t, Message{Role: RoleUser, Text: "Nisaidie na lesson plan"}, log[0])
	assert.Equal(t, Message{Role: RoleAssistant, Text: "Error: connection refused"}, log[1])

	conv, _ := st.Conversation(turn.ConversationID)
	assert.Equal(t, DefaultTitle, conv.Title)
	assert.False(t, conv.Titled)
	assert.Equal(t, "Error: connection refused", conv.LastSnippet)

	// A fresh store over the same backend sees both messages.
	reloaded := newTestStore(t, kv)
	assert.Equal(t, log, reloaded.Select(turn.ConversationID))

	require.Len(t, obs.turns, 1)
	assert.Same(t, turn, obs.turns[0])
}

func TestService_Send_TitleSetOnce(t *testing.T) {
	asker := &stubAsker{}
	svc, st, _ := newTestService(t, asker)

	first := svc.Send(t.Context(), "How do I renew my driving licence at the county office?")
	require.NotNil(t, first)
	svc.Send(t.Context(), "And what documents do I need?")

	conv, _ := st.Conversation(first.ConversationID)
	assert.Equal(t, "How do I renew my driving lice…", conv.Title)
	assert.True(t, conv.Titled)
	assert.Len(t, st.Select(first.ConversationID), 4)
}

func TestService_Send_TitleAfterEarlierFailure(t *testing.T) {
	asker := &stubAsker{err: errors.New("timeout")}
	svc, st, _ := newTestService(t, asker)

	turn := svc.Send(t.Context(), "first question")
	require.True(t, turn.Failed())

	asker.mu.Lock()
	asker.err = nil
	asker.mu.Unlock()
	svc.Send(t.Context(), "second question")

	conv, _ := st.Conversation(turn.ConversationID)
	assert.Equal(t, "first question", conv.Title)
}

func TestService_Send_TimeoutBoundsRequest(t *testing.T) {
	asker := askerFunc(func(ctx context.Context, req *agentclient.AskRequest) (*agentclient.AskResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	svc, st, _ := newTestService(t, asker, WithTimeout(10*time.Millisecond))

	turn := svc.Send(t.Context(), "hello")
	require.NotNil(t, turn)
	assert.ErrorIs(t, turn.Err, context.DeadlineExceeded)
	assert.Equal(t, "Error: "+context.DeadlineExceeded.Error(), st.Select(turn.ConversationID)[1].Text)
}

type askerFunc func(ctx context.Context, req *agentclient.AskRequest) (*agentclient.AskResponse, error)

func (f askerFunc) Ask(ctx context.Context, req *agentclient.AskRequest) (*agentclient.AskResponse, error) {
	return f(ctx, req)
}

// gatedAsker holds each request until the test releases it.
type gatedAsker struct {
	arrived chan string
	mu      sync.Mutex
	gates   map[string]chan struct{}
}

func newGatedAsker(prompts ...string) *gatedAsker {
	g := &gatedAsker{arrived: make(chan string, len(prompts)), gates: make(map[string]chan struct{})}
	for _, p := range prompts {
		g.gates[p] = make(chan struct{})
	}
	return g
}

func (g *gatedAsker) Ask(ctx context.Context, req *agentclient.AskRequest) (*agentclient.AskResponse, error) {
	g.mu.Lock()
	gate := g.gates[req.Prompt]
	g.mu.Unlock()

	g.arrived <- req.Prompt
	<-gate
	return &agentclient.AskResponse{Reply: "reply to " + req.Prompt}, nil
}

func (g *gatedAsker) release(prompt string) { close(g.gates[prompt]) }

func waitFor(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	select {
	case got := <-ch:
		require.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func TestService_Send_CompletionOrderWins(t *testing.T) {
	asker := newGatedAsker("slow question", "fast question")
	svc, st, kv := newTestService(t, asker)

	done := make(chan *Turn, 2)
	go func() { done <- svc.Send(context.Background(), "slow question") }()
	waitFor(t, asker.arrived, "slow question")
	go func() { done <- svc.Send(context.Background(), "fast question") }()
	waitFor(t, asker.arrived, "fast question")

	asker.release("fast question")
	fast := <-done
	asker.release("slow question")
	slow := <-done

	require.Equal(t, fast.ConversationID, slow.ConversationID)
	require.Len(t, st.Conversations(), 1)

	want := []Message{
		{Role: RoleUser, Text: "slow question"},
		{Role: RoleUser, Text: "fast question"},
		{Role: RoleAssistant, Text: "reply to fast question"},
		{Role: RoleAssistant, Text: "reply to slow question"},
	}
	assert.Equal(t, want, st.Select(fast.ConversationID))
	assert.Equal(t, want, newTestStore(t, kv).Select(fast.ConversationID))

	conv, _ := st.Conversation(fast.ConversationID)
	assert.Equal(t, "slow question", conv.Title)
	assert.Equal(t, "reply to slow question", conv.LastSnippet)
}

func TestService_NewChatAndSelect(t *testing.T) {
	asker := &stubAsker{}
	svc, st, _ := newTestService(t, asker)

	first := svc.Send(t.Context(), "habari").ConversationID
	second := svc.NewChat()
	require.NotEqual(t, first, second)
	assert.Equal(t, second, svc.Session().CurrentConversationID)

	turn := svc.Send(t.Context(), "sasa")
	assert.Equal(t, second, turn.ConversationID)

	ids := []string{}
	for _, c := range st.Conversations() {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{second, first}, ids)

	msgs, err := svc.SelectConversation(first)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.Equal(t, first, svc.Session().CurrentConversationID)

	_, err = svc.SelectConversation("missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, first, svc.Session().CurrentConversationID)

	history, err := svc.History()
	require.NoError(t, err)
	assert.Equal(t, msgs, history)
}

func TestService_ResumeLatest(t *testing.T) {
	svc, _, kv := newTestService(t, &stubAsker{})

	_, ok := svc.ResumeLatest()
	assert.False(t, ok)
	_, err := svc.History()
	assert.ErrorIs(t, err, ErrNoActiveConversation)

	svc.Send(t.Context(), "one")
	latest := svc.NewChat()

	restarted := New(newTestStore(t, kv), &stubAsker{}, "user_abc123def", nil)
	id, ok := restarted.ResumeLatest()
	require.True(t, ok)
	assert.Equal(t, latest, id)
}
