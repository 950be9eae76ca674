package engine

import (
	"strings"

	"mercator-hq/sentinel/pkg/guardrail"
	"mercator-hq/sentinel/pkg/guardrail/ruletable"
)

// mediumSignalThreshold is the number of distinct medium-signal keywords
// that include a domain.
const mediumSignalThreshold = 2

// DetectDomains selects the domains to evaluate for in, in table order.
// A domain is included on one high-signal keyword or on two distinct
// medium-signal keywords. The cross-cutting domain is always included and
// is appended last when no keyword selected it.
func DetectDomains(table *ruletable.Table, in *guardrail.Input) []string {
	text := detectionText(in)

	var detected []string
	crossCuttingSeen := false

	for _, d := range table.Domains {
		if !domainSignaled(d, text) {
			continue
		}
		detected = append(detected, d.Name)
		if d.Name == table.CrossCuttingDomain {
			crossCuttingSeen = true
		}
	}

	if table.CrossCuttingDomain != "" && !crossCuttingSeen {
		detected = append(detected, table.CrossCuttingDomain)
	}
	return detected
}

func domainSignaled(d *ruletable.Domain, text string) bool {
	if text == "" {
		return false
	}

	for _, kw := range d.HighSignal {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}

	seen := make(map[string]struct{}, mediumSignalThreshold)
	for _, kw := range d.MediumSignal {
		kw = strings.ToLower(kw)
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		if strings.Contains(text, kw) {
			seen[kw] = struct{}{}
			if len(seen) >= mediumSignalThreshold {
				return true
			}
		}
	}
	return false
}

// detectionText joins the raw text and intent descriptions, lower-cased.
func detectionText(in *guardrail.Input) string {
	if in == nil {
		return ""
	}
	parts := make([]string, 0, len(in.Intent.Secondary)+2)
	if in.Intent.RawText != "" {
		parts = append(parts, in.Intent.RawText)
	}
	if in.Intent.Primary != "" {
		parts = append(parts, in.Intent.Primary)
	}
	for _, s := range in.Intent.Secondary {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.ToLower(strings.Join(parts, " "))
}
