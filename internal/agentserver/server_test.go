// ABOUTME: Tests for the stand-in Agent Service handlers
// ABOUTME: Drives echo handlers directly and end-to-end through the client pipeline

package agentserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/ksasa/internal/agentclient"
	"github.com/2389/ksasa/internal/conversation"
	"github.com/2389/ksasa/internal/lang"
	"github.com/2389/ksasa/internal/routing"
	"github.com/2389/ksasa/internal/store"
)

func newTestEcho(t *testing.T, opts ...Option) (*echo.Echo, *Server) {
	t.Helper()
	e := echo.New()
	e.HideBanner = true
	s := New(nil, opts...)
	s.RegisterRoutes(e)
	return e, s
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAsk_RepliesPerDomain(t *testing.T) {
	e, _ := newTestEcho(t)

	tests := []struct {
		domain string
		lang   string
		prefix string
	}{
		{domain: "health", lang: "sw", prefix: "[health]\nMuhtasari"},
		{domain: "health", lang: "en", prefix: "[health]\nSummary"},
		{domain: "governance", lang: "en", prefix: "[governance]\nSteps"},
		{domain: "education", lang: "luo", prefix: "[education]\nMpango wa somo (Kisomo"},
	}
	for _, tt := range tests {
		t.Run(tt.domain+"/"+tt.lang, func(t *testing.T) {
			body := `{"user_id":"user_x","channel":"web","domain":"` + tt.domain + `","prompt":"help","context":{"language":"` + tt.lang + `"}}`
			rec := doJSON(e, http.MethodPost, "/agent/ask", body)
			require.Equal(t, http.StatusOK, rec.Code)

			var resp agentclient.AskResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Contains(t, resp.Reply, tt.prefix)
			assert.NotEmpty(t, resp.Citations)
			assert.NotNil(t, resp.Confidence)
			assert.Regexp(t, `^audit-`, resp.AuditID)
		})
	}
}

func TestAsk_Validation(t *testing.T) {
	e, s := newTestEcho(t)

	rec := doJSON(e, http.MethodPost, "/agent/ask", `{"domain":"health","prompt":"  "}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(e, http.MethodPost, "/agent/ask", `{"domain":"finance","prompt":"x"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown domain")

	rec = doJSON(e, http.MethodPost, "/agent/ask", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	snap := s.Snapshot()
	assert.Equal(t, 3, snap.TotalRequests)
	assert.Zero(t, snap.TaskCompletionRate)
}

func TestActionAndReviewQueue(t *testing.T) {
	e, _ := newTestEcho(t)

	rec := doJSON(e, http.MethodPost, "/agent/action", `{"audit_id":"audit-1","action":"triage_recommendation","payload":{"urgent":true}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var action agentclient.ActionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &action))
	assert.Equal(t, "pending_review", action.Status)
	require.NotEmpty(t, action.PendingID)

	rec = doJSON(e, http.MethodPost, "/agent/action", `{"audit_id":"audit-2","action":"submit_form_preview"}`)
	assert.Contains(t, rec.Body.String(), "/static/form-preview-")

	rec = doJSON(e, http.MethodPost, "/agent/action", `{"audit_id":"audit-3","action":"note"}`)
	assert.JSONEq(t, `{"status":"ok","audit_id":"audit-3"}`, rec.Body.String())

	rec = doJSON(e, http.MethodGet, "/admin/pending", "")
	var list struct {
		Items []agentclient.PendingItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, action.PendingID, list.Items[0].ID)
	assert.Equal(t, "audit-1", list.Items[0].Payload["audit_id"])
	assert.Equal(t, true, list.Items[0].Payload["urgent"])

	rec = doJSON(e, http.MethodPost, "/admin/decline", `{"pending_id":"`+action.PendingID+`","reason":"not urgent"}`)
	assert.Contains(t, rec.Body.String(), `"declined"`)
	assert.Contains(t, rec.Body.String(), `"not urgent"`)

	rec = doJSON(e, http.MethodGet, "/admin/pending", "")
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())

	rec = doJSON(e, http.MethodPost, "/admin/approve", `{"pending_id":"pa-missing"}`)
	assert.JSONEq(t, `{"error":"not_found"}`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	e, _ := newTestEcho(t)
	rec := doJSON(e, http.MethodGet, "/health", "")
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestPipelineEndToEnd(t *testing.T) {
	e, srv := newTestEcho(t, WithDelay(5*time.Millisecond))
	ts := httptest.NewServer(e)
	t.Cleanup(ts.Close)

	client := agentclient.New(ts.URL, 5*time.Second)
	kv := store.NewMemoryStore()
	st, err := conversation.NewStore(t.Context(), kv)
	require.NoError(t, err)
	svc := conversation.New(st, client, "user_e2etest1", nil)

	turn := svc.Send(t.Context(), "Nina maumivu ya kichwa na homa")
	require.NotNil(t, turn)
	require.NoError(t, turn.Err)
	assert.Equal(t, lang.Swahili, turn.Language)
	assert.Equal(t, routing.Health, turn.Domain)
	assert.Contains(t, turn.Reply.Text, "Muhtasari: Nina maumivu ya kichwa na homa")
	require.Len(t, turn.Reply.Citations, 2)
	assert.Equal(t, "MoH Kenya aftercare guide", turn.Reply.Citations[0].Source)
	assert.True(t, turn.Reply.Citations[1].IsPlain())

	turn = svc.Send(t.Context(), "I need my KRA PIN and passport renewed")
	require.NoError(t, turn.Err)
	assert.Contains(t, turn.Reply.Text, "[governance]\nSteps")

	raw, err := client.Metrics(t.Context())
	require.NoError(t, err)
	var snap MetricsSnapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	assert.Equal(t, 2, snap.TotalRequests)
	assert.InDelta(t, 1.0, snap.TaskCompletionRate, 0)
	assert.Equal(t, srv.Snapshot().TotalRequests, snap.TotalRequests)

	conv, ok := st.Conversation(turn.ConversationID)
	require.True(t, ok)
	assert.Equal(t, "Nina maumivu ya kichwa na homa", conv.Title)
	assert.Len(t, st.Select(turn.ConversationID), 4)
}

func TestPipelineEndToEnd_ServiceDown(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	st, err := conversation.NewStore(t.Context(), store.NewMemoryStore())
	require.NoError(t, err)
	svc := conversation.New(st, agentclient.New(url, time.Second), "user_e2etest1", nil)

	turn := svc.Send(t.Context(), "habari")
	require.NotNil(t, turn)
	require.Error(t, turn.Err)

	log := st.Select(turn.ConversationID)
	require.Len(t, log, 2)
	assert.Equal(t, "habari", log[0].Text)
	assert.Regexp(t, `^Error: `, log[1].Text)
}
