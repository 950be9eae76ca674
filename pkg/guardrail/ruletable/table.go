package ruletable

import (
	"sync"
	"time"

	"mercator-hq/sentinel/pkg/guardrail"
)

// DefaultCrossCuttingDomain is used when a table does not name one.
const DefaultCrossCuttingDomain = "system"

// Table is a versioned, domain-keyed collection of guardrail rules together
// with detection keywords and default messages.
//
// A Table must not be modified after Compile has been called; the engine
// shares it between concurrent evaluations.
type Table struct {
	// Version increases monotonically with every published table.
	Version uint64

	Name        string
	Description string

	// CrossCuttingDomain is always evaluated and is re-resolved once after
	// every other domain, with the cross-domain flags in context.
	CrossCuttingDomain string

	HardConstraints guardrail.HardConstraints

	// Domains in evaluation order.
	Domains []*Domain

	// Rules in table order. Each rule's Domain must name one of Domains.
	Rules []*guardrail.Rule

	// Source describes where the table was loaded from.
	Source   string
	LoadedAt time.Time

	once     sync.Once
	byDomain map[string][]*guardrail.Rule
	domains  map[string]*Domain
	compiled bool
}

// Domain is one policy domain and its detection keywords.
type Domain struct {
	Name string

	// HighSignal keywords include the domain on a single match.
	HighSignal []string

	// MediumSignal keywords include the domain on two or more distinct matches.
	MediumSignal []string

	// Defaults holds fallback messages keyed by action.
	Defaults map[guardrail.Action]Default
}

// Default is the fallback explanation for a (domain, action) pair.
type Default struct {
	Message      string
	Alternatives []string
}

// Compile indexes rules by domain and precompiles regular expressions.
// It is idempotent.
func (t *Table) Compile() {
	t.once.Do(t.compile)
}

func (t *Table) compile() {
	t.domains = make(map[string]*Domain, len(t.Domains))
	for _, d := range t.Domains {
		t.domains[d.Name] = d
	}

	t.byDomain = make(map[string][]*guardrail.Rule, len(t.Domains))
	for _, r := range t.Rules {
		for i := range r.Conditions {
			r.Conditions[i].Compile()
		}
		t.byDomain[r.Domain] = append(t.byDomain[r.Domain], r)
	}

	t.compiled = true
}

// Domain returns the named domain.
func (t *Table) Domain(name string) (*Domain, bool) {
	if t.compiled {
		d, ok := t.domains[name]
		return d, ok
	}
	for _, d := range t.Domains {
		if d.Name == name {
			return d, true
		}
	}
	return nil, false
}

// DomainNames returns domain names in evaluation order.
func (t *Table) DomainNames() []string {
	names := make([]string, len(t.Domains))
	for i, d := range t.Domains {
		names[i] = d.Name
	}
	return names
}

// RulesFor returns every rule scoped to domain in table order, active or not.
func (t *Table) RulesFor(domain string) []*guardrail.Rule {
	if t.compiled {
		return t.byDomain[domain]
	}
	var rules []*guardrail.Rule
	for _, r := range t.Rules {
		if r.Domain == domain {
			rules = append(rules, r)
		}
	}
	return rules
}

// Default returns the default message for (domain, action).
func (t *Table) Default(domain string, action guardrail.Action) (Default, bool) {
	d, ok := t.Domain(domain)
	if !ok || d.Defaults == nil {
		return Default{}, false
	}
	def, ok := d.Defaults[action]
	return def, ok
}

// ActiveRuleCount returns the number of active rules.
func (t *Table) ActiveRuleCount() int {
	n := 0
	for _, r := range t.Rules {
		if r.Active {
			n++
		}
	}
	return n
}
