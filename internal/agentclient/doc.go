// Package agentclient is the HTTP client for the remote Agent Service and the
// admin review endpoints it exposes.
//
// # Endpoints
//
//   - POST /agent/ask: one assistant turn (Ask)
//   - POST /agent/action: follow-up action on an audited reply (Action)
//   - GET /admin/pending, POST /admin/approve, POST /admin/decline: human review queue
//   - GET /metrics: service counters, returned as raw JSON
//   - GET /health: liveness
//
// # Errors
//
// Transport failures, non-2xx responses and undecodable bodies are all returned
// as errors. Non-2xx errors are *StatusError values carrying the status code and
// the service's error text when it sent one.
//
// # Usage
//
//	c := agentclient.New("http://localhost:8000", 60*time.Second)
//	resp, err := c.Ask(ctx, &agentclient.AskRequest{...})
package agentclient
