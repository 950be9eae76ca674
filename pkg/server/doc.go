// Package server exposes the guardrail engine over HTTP.
//
// Routes:
//
//	POST /v1/evaluate         evaluate an input bundle
//	GET  /v1/rules            summary of the active rule table (?format=yaml for the document)
//	POST /v1/rules/reload     reload the rule table from its source
//	GET  /v1/evidence         query evidence records
//	GET  /v1/evidence/{id}    fetch one evidence record
//	GET  /healthz, /readyz    liveness and readiness probes
//	GET  /version             build information
//	GET  /metrics             Prometheus metrics, when enabled
//
// Every request gets an X-Request-ID, echoed in the response and attached
// to log lines and evaluations. Errors share one JSON shape:
//
//	{"error": {"message": "...", "type": "invalid_request_error", "code": "invalid_json", "request_id": "..."}}
//
// Start serves until its context is cancelled, then shuts down gracefully
// within the configured shutdown timeout. Signal handling is left to the
// caller.
package server
