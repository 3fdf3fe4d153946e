// ABOUTME: Resty-backed client for the Agent Service ask/action/admin/metrics endpoints
// ABOUTME: Converts non-2xx and malformed responses into errors

package agentclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrMalformedResponse is returned when a 2xx body cannot be decoded.
var ErrMalformedResponse = errors.New("malformed response")

// DefaultTimeout matches the web client's request timeout.
const DefaultTimeout = 60 * time.Second

// ChannelWeb is the channel every interactive turn is sent on.
const ChannelWeb = "web"

// AskRequest is the body of POST /agent/ask.
type AskRequest struct {
	UserID  string `json:"user_id"`
	Channel string `json:"channel"`
	Domain  string `json:"domain"`
	Prompt  string `json:"prompt"`
	Context any    `json:"context,omitempty"`
}

// AskResponse is the body returned by POST /agent/ask. Citations are kept raw
// because the service sends either objects or plain strings.
type AskResponse struct {
	Reply      string            `json:"reply"`
	Citations  []json.RawMessage `json:"citations,omitempty"`
	Confidence *float64          `json:"confidence,omitempty"`
	AuditID    string            `json:"audit_id,omitempty"`
}

// ActionRequest is the body of POST /agent/action.
type ActionRequest struct {
	AuditID string         `json:"audit_id"`
	Action  string         `json:"action"`
	Payload map[string]any `json:"payload,omitempty"`
}

// ActionResponse is returned by POST /agent/action.
type ActionResponse struct {
	Status     string `json:"status"`
	AuditID    string `json:"audit_id"`
	PendingID  string `json:"pending_id,omitempty"`
	PreviewURL string `json:"preview_url,omitempty"`
}

// PendingItem is one entry of the human review queue.
type PendingItem struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
	Status  string         `json:"status"`
	Reason  string         `json:"reason,omitempty"`
	Error   string         `json:"error,omitempty"`
}

type pendingList struct {
	Items []PendingItem `json:"items"`
}

type reviewRequest struct {
	PendingID string `json:"pending_id"`
	Reason    string `json:"reason,omitempty"`
}

// errorBody covers the error shapes the service and its proxies return.
type errorBody struct {
	Error  string `json:"error"`
	Detail any    `json:"detail"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("agent service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("agent service returned status %d: %s", e.StatusCode, e.Message)
}

// Client talks to the Agent Service.
type Client struct {
	http *resty.Client
}

// New creates a client for baseURL. A zero timeout selects DefaultTimeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimSuffix(baseURL, "/")).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json").
			SetTimeout(timeout),
	}
}

// Ask sends one turn to the agent.
func (c *Client) Ask(ctx context.Context, req *AskRequest) (*AskResponse, error) {
	var out AskResponse
	if err := c.do(ctx, resty.MethodPost, "/agent/ask", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Action sends a follow-up action for an audited reply.
func (c *Client) Action(ctx context.Context, req *ActionRequest) (*ActionResponse, error) {
	var out ActionResponse
	if err := c.do(ctx, resty.MethodPost, "/agent/action", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPending returns the items awaiting human review.
func (c *Client) ListPending(ctx context.Context) ([]PendingItem, error) {
	var out pendingList
	if err := c.do(ctx, resty.MethodGet, "/admin/pending", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Approve approves a pending item.
func (c *Client) Approve(ctx context.Context, pendingID string) (*PendingItem, error) {
	return c.review(ctx, "/admin/approve", reviewRequest{PendingID: pendingID})
}

// Decline declines a pending item with an optional reason.
func (c *Client) Decline(ctx context.Context, pendingID, reason string) (*PendingItem, error) {
	return c.review(ctx, "/admin/decline", reviewRequest{PendingID: pendingID, Reason: reason})
}

func (c *Client) review(ctx context.Context, path string, req reviewRequest) (*PendingItem, error) {
	var out PendingItem
	if err := c.do(ctx, resty.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, fmt.Errorf("review %s: %s", req.PendingID, out.Error)
	}
	return &out, nil
}

// Metrics returns the service's metrics snapshot as raw JSON.
func (c *Client) Metrics(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, resty.MethodGet, "/metrics", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Health checks the service liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	var out map[string]any
	return c.do(ctx, resty.MethodGet, "/health", nil, &out)
}

// do executes a request and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return &StatusError{StatusCode: resp.StatusCode(), Message: errorMessage(resp.Body())}
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, path, ErrMalformedResponse, err)
	}
	return nil
}

// errorMessage extracts the service error text from a failed response body.
func errorMessage(body []byte) string {
	var e errorBody
	if json.Unmarshal(body, &e) == nil {
		if e.Error != "" {
			return e.Error
		}
		switch d := e.Detail.(type) {
		case string:
			return d
		case nil:
		default:
			if b, err := json.Marshal(d); err == nil {
				return string(b)
			}
		}
	}
	return strings.TrimSpace(string(body))
}
