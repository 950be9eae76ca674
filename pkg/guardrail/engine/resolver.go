package engine

import (
	"fmt"
	"strings"

	"mercator-hq/sentinel/pkg/guardrail"
	"mercator-hq/sentinel/pkg/guardrail/ruletable"
)

// ResolveDomain evaluates every active rule of domain in table order and
// returns the domain's result with per-rule traces attached.
func ResolveDomain(table *ruletable.Table, domain string, in *guardrail.Input, ec *EvalContext) guardrail.DomainResult {
	return resolveDomain(table, domain, in, ec, true)
}

func resolveDomain(table *ruletable.Table, domain string, in *guardrail.Input, ec *EvalContext, keepTraces bool) guardrail.DomainResult {
	result := guardrail.DomainResult{
		Domain:         domain,
		Action:         guardrail.ActionAllow,
		TriggeredRules: []string{},
		Confidence:     1.0,
	}

	var triggered []*guardrail.Rule
	for _, rule := range table.RulesFor(domain) {
		if !rule.Active {
			continue
		}
		trace := EvaluateRule(rule, in, ec)
		if keepTraces {
			result.Traces = append(result.Traces, trace)
		}
		if trace.Matched {
			triggered = append(triggered, rule)
			result.TriggeredRules = append(result.TriggeredRules, rule.ID)
		}
	}

	if len(triggered) == 0 {
		return result
	}

	var deciding *guardrail.Rule
	for _, rule := range triggered {
		if deciding == nil || rule.Action.Priority() > deciding.Action.Priority() {
			deciding = rule
		}
	}
	result.Action = deciding.Action

	if result.Action == guardrail.ActionAllow {
		return result
	}

	result.ExplanationCode, result.Explanation = explainRule(table, domain, deciding)
	result.Alternatives = ruleAlternatives(table, domain, result.Action, triggered)
	return result
}

// explainRule renders the deciding rule's explanation, falling back to the
// domain default and then the generic message for the action.
func explainRule(table *ruletable.Table, domain string, deciding *guardrail.Rule) (code, message string) {
	if msg := deciding.RenderExplanation(); msg != "" {
		return deciding.ID, msg
	}
	if def, ok := table.Default(domain, deciding.Action); ok && def.Message != "" {
		return defaultCode(domain, deciding.Action), renderDefault(def.Message, domain, deciding.Action)
	}
	return genericCode(deciding.Action), GenericMessage(deciding.Action)
}

func ruleAlternatives(table *ruletable.Table, domain string, action guardrail.Action, triggered []*guardrail.Rule) []string {
	for _, rule := range triggered {
		if len(rule.Alternatives) > 0 {
			return cloneStrings(rule.Alternatives)
		}
	}
	if def, ok := table.Default(domain, action); ok && len(def.Alternatives) > 0 {
		return cloneStrings(def.Alternatives)
	}
	return nil
}

// DeriveFlags summarizes the results of every domain other than the
// cross-cutting one.
func DeriveFlags(results []guardrail.DomainResult, crossCutting string) guardrail.CrossDomainFlags {
	var flags guardrail.CrossDomainFlags
	for _, r := range results {
		if r.Domain == crossCutting {
			continue
		}
		switch r.Action {
		case guardrail.ActionBlock:
			flags.AnyBlocked = true
			flags.AnyRestricted = true
		case guardrail.ActionRestrict:
			flags.AnyRestricted = true
		case guardrail.ActionRedirect:
			flags.AnyRedirected = true
		}
	}
	return flags
}

// ResolveFinalAction returns the most restrictive action across results.
// Ties go to the earliest result. The primary domain is empty when the
// final action is allow.
func ResolveFinalAction(results []guardrail.DomainResult) (guardrail.Action, string) {
	final := guardrail.ActionAllow
	primary := ""
	for _, r := range results {
		if r.Action.Priority() > final.Priority() {
			final = r.Action
			primary = r.Domain
		}
	}
	return final, primary
}

func defaultCode(domain string, action guardrail.Action) string {
	return fmt.Sprintf("default:%s:%s", domain, action)
}

func genericCode(action guardrail.Action) string {
	return "generic:" + string(action)
}

func renderDefault(msg, domain string, action guardrail.Action) string {
	return strings.NewReplacer("{domain}", domain, "{action}", string(action)).Replace(msg)
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
