// Package agentserver is a local stand-in for the Agent Service.
//
// It serves the same HTTP surface the client talks to:
//
//	POST /agent/ask       canned, domain-shaped replies with citations
//	POST /agent/action    records actions; review actions are queued
//	GET  /admin/pending   human review queue
//	POST /admin/approve   {pending_id}
//	POST /admin/decline   {pending_id, reason}
//	GET  /metrics         request totals, latency and completion rate
//	GET  /health
//
// Replies are templated per domain and reply language. No model is involved;
// the server exists for demos and end-to-end tests of the client pipeline.
package agentserver
