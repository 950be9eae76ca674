// Package guardrail defines the data model shared by the guardrail evaluation
// engine, the rule table, telemetry and evidence storage.
//
// An Input describes a single intended action (a generated response or an
// autonomous operation) at one point in time. The engine evaluates the Input
// against a versioned rule table and produces an Evaluation: the final Action,
// the domain that decided it, a user-facing explanation and the per-domain
// results that led there.
//
// # Actions
//
// Actions are totally ordered by restrictiveness:
//
//	allow < redirect < restrict < block
//
// The most restrictive applicable action always wins. An allow never overrides
// a more restrictive verdict from another domain.
//
// # Ownership
//
// Inputs are owned by the calling request and are never modified by the
// engine. Evaluations are constructed once per call and are not mutated
// afterwards, so they can be shared with telemetry and storage goroutines
// without copying.
package guardrail
