package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/sentinel/pkg/guardrail"
)

// Custom attribute keys use the "sentinel.*" namespace.
const (
	// Request attributes
	AttrRequestID = "sentinel.request_id"
	AttrSession   = "sentinel.session_id"
	AttrTenant    = "sentinel.tenant_id"

	// Input attributes
	AttrIntent            = "sentinel.intent.primary"
	AttrRoute             = "sentinel.routing.recommended_route"
	AttrUserRole          = "sentinel.user.role"
	AttrAutonomyRequested = "sentinel.autonomy.requested"

	// Decision attributes
	AttrFinalAction     = "sentinel.decision.final_action"
	AttrPrimaryDomain   = "sentinel.decision.primary_domain"
	AttrDetectedDomains = "sentinel.decision.detected_domains"
	AttrTriggeredRules  = "sentinel.decision.triggered_rules"
	AttrInputHash       = "sentinel.decision.input_hash"
	AttrRuleVersion     = "sentinel.rule_table.version"

	// Domain attributes
	AttrDomain       = "sentinel.domain"
	AttrDomainAction = "sentinel.domain.action"
)

// InputAttributes returns span attributes describing an input bundle.
// Raw text is never recorded.
func InputAttributes(in *guardrail.Input) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrIntent, in.Intent.Primary),
		attribute.String(AttrRoute, in.Routing.RecommendedRoute),
		attribute.String(AttrUserRole, string(in.UserRole)),
		attribute.Bool(AttrAutonomyRequested, in.Autonomy.Requested),
	}
	if in.RequestID != "" {
		attrs = append(attrs, attribute.String(AttrRequestID, in.RequestID))
	}
	if in.SessionID != "" {
		attrs = append(attrs, attribute.String(AttrSession, in.SessionID))
	}
	if in.TenantID != "" {
		attrs = append(attrs, attribute.String(AttrTenant, in.TenantID))
	}
	return attrs
}

// SetEvaluationAttributes records the decision of an evaluation on a span.
func SetEvaluationAttributes(span trace.Span, eval *guardrail.Evaluation) {
	if eval == nil {
		return
	}
	span.SetAttributes(
		attribute.String(AttrFinalAction, string(eval.FinalAction)),
		attribute.String(AttrPrimaryDomain, eval.PrimaryDomain),
		attribute.StringSlice(AttrDetectedDomains, eval.DetectedDomains),
		attribute.StringSlice(AttrTriggeredRules, eval.TriggeredRules()),
		attribute.String(AttrInputHash, eval.InputHash),
		attribute.Int64(AttrRuleVersion, int64(eval.RuleVersion)),
	)
}

// DomainAttributes returns attributes describing one domain result.
func DomainAttributes(result guardrail.DomainResult) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrDomain, result.Domain),
		attribute.String(AttrDomainAction, string(result.Action)),
		attribute.StringSlice(AttrTriggeredRules, result.TriggeredRules),
	}
}

// AddEvent adds a named event to the span with optional attributes.
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
