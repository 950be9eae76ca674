package engine

import (
	"sort"
	"strings"

	"mercator-hq/sentinel/pkg/guardrail"
)

// confidencePrefix selects a confidence score by target, e.g.
// "confidence.intent".
const confidencePrefix = "confidence."

// accessor resolves one field path. ok is false when the value is absent.
type accessor func(in *guardrail.Input, ec *EvalContext) (v any, ok bool)

// fieldAccessors is the closed set of field paths a condition may name.
// Strings are absent when empty; booleans and numbers are always present.
var fieldAccessors = map[string]accessor{
	"request_id": func(in *guardrail.Input, _ *EvalContext) (any, bool) { return str(in.RequestID) },
	"session_id": func(in *guardrail.Input, _ *EvalContext) (any, bool) { return str(in.SessionID) },
	"tenant_id":  func(in *guardrail.Input, _ *EvalContext) (any, bool) { return str(in.TenantID) },

	"intent.id":          func(in *guardrail.Input, _ *EvalContext) (any, bool) { return str(in.Intent.ID) },
	"intent.primary":     func(in *guardrail.Input, _ *EvalContext) (any, bool) { return str(in.Intent.Primary) },
	"intent.secondary":   func(in *guardrail.Input, _ *EvalContext) (any, bool) { return strs(in.Intent.Secondary) },
	"intent.raw_text":    func(in *guardrail.Input, _ *EvalContext) (any, bool) { return str(in.Intent.RawText) },
	"intent.is_question": func(in *guardrail.Input, _ *EvalContext) (any, bool) { return in.Intent.IsQuestion, true },
	"intent.is_request":  func(in *guardrail.Input, _ *EvalContext) (any, bool) { return in.Intent.IsRequest, true },
	"intent.is_command":  func(in *guardrail.Input, _ *EvalContext) (any, bool) { return in.Intent.IsCommand, true },
	"intent.entities": func(in *guardrail.Input, _ *EvalContext) (any, bool) {
		values := make([]string, 0, len(in.Intent.Entities))
		for _, e := range in.Intent.Entities {
			values = append(values, e.Value)
		}
		return strs(values)
	},
	"intent.entity_types": func(in *guardrail.Input, _ *EvalContext) (any, bool) {
		types := make([]string, 0, len(in.Intent.Entities))
		for _, e := range in.Intent.Entities {
			types = append(types, e.Type)
		}
		return strs(types)
	},

	"routing.recommended_route":      func(in *guardrail.Input, _ *EvalContext) (any, bool) { return str(in.Routing.RecommendedRoute) },
	"routing.alternates":             func(in *guardrail.Input, _ *EvalContext) (any, bool) { return strs(in.Routing.Alternates) },
	"routing.requires_data":          func(in *guardrail.Input, _ *EvalContext) (any, bool) { return in.Routing.RequiresData, true },
	"routing.requires_memory":        func(in *guardrail.Input, _ *EvalContext) (any, bool) { return in.Routing.RequiresMemory, true },
	"routing.requires_external_data": func(in *guardrail.Input, _ *EvalContext) (any, bool) { return in.Routing.RequiresExternalData, true },

	"confidence.min": func(in *guardrail.Input, _ *EvalContext) (any, bool) { return in.MinConfidence() },

	"emotion.primary":    func(in *guardrail.Input, _ *EvalContext) (any, bool) { return str(in.Emotion.Primary) },
	"emotion.sentiment":  func(in *guardrail.Input, _ *EvalContext) (any, bool) { return in.Emotion.Sentiment, true },
	"emotion.stressed":   func(in *guardrail.Input, _ *EvalContext) (any, bool) { return in.Emotion.Stressed, true },
	"emotion.vulnerable": func(in *guardrail.Input, _ *EvalContext) (any, bool) { return in.Emotion.Vulnerable, true },

	"user.role":          func(in *guardrail.Input, _ *EvalContext) (any, bool) { return str(string(in.UserRole)) },
	"autonomy.requested": func(in *guardrail.Input, _ *EvalContext) (any, bool) { return in.Autonomy.Requested, true },
	"autonomy.level":     func(in *guardrail.Input, _ *EvalContext) (any, bool) { return str(in.Autonomy.Level) },

	"context.any_blocked": func(_ *guardrail.Input, ec *EvalContext) (any, bool) {
		if ec == nil || !ec.Reconciled {
			return nil, false
		}
		return ec.Flags.AnyBlocked, true
	},
	"context.any_restricted": func(_ *guardrail.Input, ec *EvalContext) (any, bool) {
		if ec == nil || !ec.Reconciled {
			return nil, false
		}
		return ec.Flags.AnyRestricted, true
	},
	"context.any_redirected": func(_ *guardrail.Input, ec *EvalContext) (any, bool) {
		if ec == nil || !ec.Reconciled {
			return nil, false
		}
		return ec.Flags.AnyRedirected, true
	},
	"context.min_confidence": func(_ *guardrail.Input, ec *EvalContext) (any, bool) {
		if ec == nil || !ec.HasMinConfidence {
			return nil, false
		}
		return ec.MinConfidence, true
	},
	"context.detected_domains": func(_ *guardrail.Input, ec *EvalContext) (any, bool) {
		if ec == nil {
			return nil, false
		}
		return strs(ec.DetectedDomains)
	},
}

// lookupField resolves path against the input and evaluation context.
func lookupField(path string, in *guardrail.Input, ec *EvalContext) (any, bool) {
	if in == nil {
		return nil, false
	}
	if fn, ok := fieldAccessors[path]; ok {
		return fn(in, ec)
	}
	if target, ok := confidenceTarget(path); ok {
		return in.ConfidenceFor(target)
	}
	return nil, false
}

func confidenceTarget(path string) (string, bool) {
	target, ok := strings.CutPrefix(path, confidencePrefix)
	if !ok || target == "" || strings.Contains(target, ".") {
		return "", false
	}
	return target, true
}

// ValidFieldPath reports whether path names a field the engine can resolve.
func ValidFieldPath(path string) bool {
	if _, ok := fieldAccessors[path]; ok {
		return true
	}
	_, ok := confidenceTarget(path)
	return ok
}

// FieldPaths returns every registered field path in sorted order. The
// confidence.<target> family is listed as "confidence.<target>".
func FieldPaths() []string {
	paths := make([]string, 0, len(fieldAccessors)+1)
	for p := range fieldAccessors {
		paths = append(paths, p)
	}
	paths = append(paths, confidencePrefix+"<target>")
	sort.Strings(paths)
	return paths
}

func str(s string) (any, bool) {
	if s == "" {
		return nil, false
	}
	return s, true
}

func strs(s []string) (any, bool) {
	if len(s) == 0 {
		return nil, false
	}
	return s, true
}
