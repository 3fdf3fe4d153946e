// ABOUTME: Echo handlers for the stand-in Agent Service
// ABOUTME: Keeps the review queue and request metrics in memory

package agentserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/2389/ksasa/internal/agentclient"
	"github.com/2389/ksasa/internal/lang"
	"github.com/2389/ksasa/internal/routing"
)

// Actions that go to the human review queue instead of completing inline.
const (
	ActionSubmitFormConfirm    = "submit_form_confirm"
	ActionTriageRecommendation = "triage_recommendation"
	ActionSubmitFormPreview    = "submit_form_preview"
)

const (
	statusPending  = "pending"
	statusApproved = "approved"
	statusDeclined = "declined"
)

// Server holds the stand-in service state.
type Server struct {
	delay  time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*agentclient.PendingItem
	order   []string

	totalRequests   int
	successRequests int
	totalLatency    time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithDelay adds a fixed latency to every ask.
func WithDelay(d time.Duration) Option {
	return func(s *Server) { s.delay = d }
}

// New creates a Server.
func New(logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		logger:  logger.With("component", "agentserver"),
		pending: make(map[string]*agentclient.PendingItem),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterRoutes mounts the handlers on e.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", s.Health)
	e.POST("/agent/ask", s.Ask)
	e.POST("/agent/action", s.Action)
	e.GET("/admin/pending", s.ListPending)
	e.POST("/admin/approve", s.Approve)
	e.POST("/admin/decline", s.Decline)
	e.GET("/metrics", s.Metrics)
}

// Health reports liveness.
// GET /health
func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Ask answers a prompt.
// POST /agent/ask
func (s *Server) Ask(c echo.Context) error {
	start := time.Now()

	var req agentclient.AskRequest
	if err := c.Bind(&req); err != nil {
		s.record(start, false)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.Prompt) == "" {
		s.record(start, false)
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"detail": "prompt is required"})
	}
	domain, err := routing.ParseDomain(req.Domain)
	if err != nil {
		s.record(start, false)
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
	}

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-c.Request().Context().Done():
			s.record(start, false)
			return c.Request().Context().Err()
		}
	}

	code := contextLanguage(req.Context)
	resp := answer(domain, code, req.Prompt)
	resp.AuditID = "audit-" + uuid.NewString()

	s.logger.Info("ask answered",
		"user_id", req.UserID,
		"channel", req.Channel,
		"domain", domain,
		"language", code,
		"audit_id", resp.AuditID,
	)
	s.record(start, true)
	return c.JSON(http.StatusOK, resp)
}

// Action records a follow-up action on an earlier answer.
// POST /agent/action
func (s *Server) Action(c echo.Context) error {
	var req agentclient.ActionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.AuditID == "" || req.Action == "" {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"detail": "audit_id and action are required"})
	}

	switch req.Action {
	case ActionSubmitFormConfirm, ActionTriageRecommendation:
		id := s.enqueue(req)
		return c.JSON(http.StatusOK, agentclient.ActionResponse{Status: "pending_review", AuditID: req.AuditID, PendingID: id})
	case ActionSubmitFormPreview:
		url := fmt.Sprintf("/static/form-preview-%s.json", uuid.NewString())
		return c.JSON(http.StatusOK, agentclient.ActionResponse{Status: "ok", AuditID: req.AuditID, PreviewURL: url})
	default:
		s.logger.Info("action logged", "audit_id", req.AuditID, "action", req.Action)
		return c.JSON(http.StatusOK, agentclient.ActionResponse{Status: "ok", AuditID: req.AuditID})
	}
}

// ListPending returns queued review items, oldest first.
// GET /admin/pending
func (s *Server) ListPending(c echo.Context) error {
	s.mu.Lock()
	items := make([]agentclient.PendingItem, 0, len(s.order))
	for _, id := range s.order {
		if item := s.pending[id]; item.Status == statusPending {
			items = append(items, *item)
		}
	}
	s.mu.Unlock()

	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

type reviewRequest struct {
	PendingID string `json:"pending_id"`
	Reason    string `json:"reason"`
}

// Approve marks a queued item approved.
// POST /admin/approve
func (s *Server) Approve(c echo.Context) error {
	return s.review(c, statusApproved)
}

// Decline marks a queued item declined.
// POST /admin/decline
func (s *Server) Decline(c echo.Context) error {
	return s.review(c, statusDeclined)
}

func (s *Server) review(c echo.Context, status string) error {
	var req reviewRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.pending[req.PendingID]
	if !ok {
		return c.JSON(http.StatusOK, map[string]string{"error": "not_found"})
	}
	item.Status = status
	if status == statusDeclined {
		item.Reason = req.Reason
	}
	s.logger.Info("review recorded", "pending_id", item.ID, "status", status)
	return c.JSON(http.StatusOK, item)
}

// MetricsSnapshot is the body of GET /metrics.
type MetricsSnapshot struct {
	TotalRequests      int     `json:"total_requests"`
	AverageLatencyMS   float64 `json:"average_latency_ms"`
	TaskCompletionRate float64 `json:"task_completion_rate"`
}

// Metrics reports request totals.
// GET /metrics
func (s *Server) Metrics(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Snapshot())
}

// Snapshot returns the current request metrics.
func (s *Server) Snapshot() MetricsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var snap MetricsSnapshot
	snap.TotalRequests = s.totalRequests
	if s.totalRequests > 0 {
		avg := float64(s.totalLatency.Microseconds()) / 1000 / float64(s.totalRequests)
		snap.AverageLatencyMS = math.Round(avg*100) / 100
		rate := float64(s.successRequests) / float64(s.totalRequests)
		snap.TaskCompletionRate = math.Round(rate*10000) / 10000
	}
	return snap
}

func (s *Server) record(start time.Time, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalRequests++
	s.totalLatency += time.Since(start)
	if success {
		s.successRequests++
	}
}

func (s *Server) enqueue(req agentclient.ActionRequest) string {
	payload := map[string]any{"audit_id": req.AuditID}
	for k, v := range req.Payload {
		payload[k] = v
	}

	id := "pa-" + uuid.NewString()
	s.mu.Lock()
	s.pending[id] = &agentclient.PendingItem{ID: id, Type: req.Action, Payload: payload, Status: statusPending}
	s.order = append(s.order, id)
	s.mu.Unlock()

	s.logger.Info("action queued for review", "pending_id", id, "type", req.Action)
	return id
}

// contextLanguage reads context.language, defaulting to Swahili.
func contextLanguage(ctx any) lang.Code {
	m, ok := ctx.(map[string]any)
	if !ok {
		return lang.Swahili
	}
	if s, ok := m["language"].(string); ok && s != "" {
		return lang.Code(strings.ToLower(s))
	}
	return lang.Swahili
}

// answer builds the canned reply for domain in language code.
func answer(domain routing.Domain, code lang.Code, prompt string) agentclient.AskResponse {
	var (
		reply      string
		citations  []any
		confidence float64
	)

	swahili := code != lang.English
	switch domain {
	case routing.Health:
		confidence = 0.6
		if swahili {
			reply = "[health]\nMuhtasari: " + summary(prompt) +
				"\n\nMaelekezo: Pumzika, kunywa maji ya kutosha, na rudi kliniki dalili zikiongezeka." +
				"\n\n(Hakuna utambuzi; taarifa ya jumla tu)"
		} else {
			reply = "[health]\nSummary: " + summary(prompt) +
				"\n\nAftercare: Rest, drink plenty of fluids, and return to the clinic if symptoms worsen." +
				"\n\n(No diagnosis; general information only)"
		}
		citations = []any{
			map[string]any{"source": "MoH Kenya aftercare guide", "snippet": "rest and fluids", "score": 0.72},
			"Kenya Essential Medicines List",
		}
	case routing.Governance:
		confidence = 0.7
		if swahili {
			reply = "[governance]\nHatua:\n- Ingia kwenye eCitizen\n- Jaza fomu husika\n- Lipa ada na uhifadhi risiti"
		} else {
			reply = "[governance]\nSteps:\n- Sign in to eCitizen\n- Fill in the relevant form\n- Pay the fee and keep the receipt"
		}
		citations = []any{"eCitizen service catalogue"}
	default:
		confidence = 0.8
		subject := routing.Subject(code)
		if swahili {
			reply = fmt.Sprintf("[education]\nMpango wa somo (%s, darasa la 4, dakika 30):\n1. Utangulizi\n2. Mazoezi ya pamoja\n3. Tathmini fupi", subject)
		} else {
			reply = fmt.Sprintf("[education]\nLesson plan (%s, grade 4, 30 minutes):\n1. Warm-up\n2. Guided practice\n3. Quick check", subject)
		}
		citations = []any{
			map[string]any{"source": "KICD CBC Grade 4", "snippet": "strand: numbers", "score": 0.81},
		}
	}

	raw := make([]json.RawMessage, 0, len(citations))
	for _, c := range citations {
		b, _ := json.Marshal(c)
		raw = append(raw, b)
	}
	return agentclient.AskResponse{Reply: reply, Citations: raw, Confidence: &confidence}
}

func summary(prompt string) string {
	runes := []rune(strings.TrimSpace(prompt))
	if len(runes) > 300 {
		return string(runes[:300]) + "..."
	}
	return string(runes)
}
