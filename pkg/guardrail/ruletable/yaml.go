package ruletable

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"mercator-hq/sentinel/pkg/guardrail"
)

// tableDoc is the on-disk YAML form of a Table. Rules are nested under their
// domain so the domain of a rule never has to be repeated.
type tableDoc struct {
	Version            uint64              `yaml:"version"`
	Name               string              `yaml:"name,omitempty"`
	Description        string              `yaml:"description,omitempty"`
	CrossCuttingDomain string              `yaml:"cross_cutting_domain,omitempty"`
	HardConstraints    *hardConstraintsDoc `yaml:"hard_constraints,omitempty"`
	Domains            []domainDoc         `yaml:"domains"`
}

type hardConstraintsDoc struct {
	NoAutonomyUnderBlock    *bool `yaml:"no_autonomy_under_block,omitempty"`
	NoAutonomyUnderRestrict *bool `yaml:"no_autonomy_under_restrict,omitempty"`
}

type domainDoc struct {
	Name     string                `yaml:"name"`
	Keywords keywordsDoc           `yaml:"keywords,omitempty"`
	Defaults map[string]defaultDoc `yaml:"defaults,omitempty"`
	Rules    []ruleDoc             `yaml:"rules,omitempty"`
}

type keywordsDoc struct {
	High   []string `yaml:"high,omitempty"`
	Medium []string `yaml:"medium,omitempty"`
}

type defaultDoc struct {
	Message      string   `yaml:"message"`
	Alternatives []string `yaml:"alternatives,omitempty"`
}

type ruleDoc struct {
	ID           string         `yaml:"id"`
	Action       string         `yaml:"action"`
	Explanation  string         `yaml:"explanation,omitempty"`
	Alternatives []string       `yaml:"alternatives,omitempty"`
	Active       *bool          `yaml:"active,omitempty"`
	Conditions   []conditionDoc `yaml:"conditions,omitempty"`
}

type conditionDoc struct {
	Field         string `yaml:"field"`
	Operator      string `yaml:"operator"`
	Value         any    `yaml:"value"`
	CaseSensitive bool   `yaml:"case_sensitive,omitempty"`
}

// Parse decodes, validates and compiles a YAML rule table.
func Parse(data []byte, source string) (*Table, error) {
	t, err := Decode(data, source)
	if err != nil {
		return nil, err
	}
	if err := Validate(t); err != nil {
		return nil, err
	}
	t.Compile()
	return t, nil
}

// Decode converts a YAML document into a Table without structural validation.
// Unknown operators and actions are reported as a ValidationError.
func Decode(data []byte, source string) (*Table, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc tableDoc
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Source: source, Message: "empty document"}
		}
		return nil, &ParseError{Source: source, Message: "invalid YAML", Cause: err}
	}

	t, issues := fromDoc(&doc)
	t.Source = source
	if len(issues) > 0 {
		return nil, &ValidationError{Source: source, Issues: issues}
	}
	return t, nil
}

func fromDoc(doc *tableDoc) (*Table, []Issue) {
	var issues []Issue

	t := &Table{
		Version:            doc.Version,
		Name:               doc.Name,
		Description:        doc.Description,
		CrossCuttingDomain: doc.CrossCuttingDomain,
		HardConstraints:    guardrail.DefaultHardConstraints(),
	}
	if t.CrossCuttingDomain == "" {
		t.CrossCuttingDomain = DefaultCrossCuttingDomain
	}
	if hc := doc.HardConstraints; hc != nil {
		if hc.NoAutonomyUnderBlock != nil {
			t.HardConstraints.NoAutonomyUnderBlock = *hc.NoAutonomyUnderBlock
		}
		if hc.NoAutonomyUnderRestrict != nil {
			t.HardConstraints.NoAutonomyUnderRestrict = *hc.NoAutonomyUnderRestrict
		}
	}

	for di, dd := range doc.Domains {
		d := &Domain{
			Name:         dd.Name,
			HighSignal:   dd.Keywords.High,
			MediumSignal: dd.Keywords.Medium,
		}

		for name, def := range dd.Defaults {
			action, err := guardrail.ParseAction(name)
			if err != nil {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Domain:   dd.Name,
					Path:     fmt.Sprintf("domains[%d].defaults.%s", di, name),
					Message:  err.Error(),
				})
				continue
			}
			if d.Defaults == nil {
				d.Defaults = make(map[guardrail.Action]Default)
			}
			d.Defaults[action] = Default{Message: def.Message, Alternatives: def.Alternatives}
		}
		t.Domains = append(t.Domains, d)

		for ri, rd := range dd.Rules {
			path := fmt.Sprintf("domains[%d].rules[%d]", di, ri)
			rule := &guardrail.Rule{
				ID:           rd.ID,
				Domain:       dd.Name,
				Explanation:  rd.Explanation,
				Alternatives: rd.Alternatives,
				Active:       rd.Active == nil || *rd.Active,
			}

			action, err := guardrail.ParseAction(rd.Action)
			if err != nil {
				issues = append(issues, Issue{Severity: SeverityError, Domain: dd.Name, RuleID: rd.ID, Path: path + ".action", Message: err.Error()})
			}
			rule.Action = action

			for ci, cd := range rd.Conditions {
				op, err := guardrail.ParseOperator(cd.Operator)
				if err != nil {
					issues = append(issues, Issue{
						Severity: SeverityError,
						Domain:   dd.Name,
						RuleID:   rd.ID,
						Path:     fmt.Sprintf("%s.conditions[%d].operator", path, ci),
						Message:  err.Error(),
					})
				}
				rule.Conditions = append(rule.Conditions, guardrail.Condition{
					Field:         cd.Field,
					Operator:      op,
					Value:         cd.Value,
					CaseSensitive: cd.CaseSensitive,
				})
			}

			t.Rules = append(t.Rules, rule)
		}
	}

	return t, issues
}

// Marshal encodes a Table as YAML. Rules are grouped under their domain in
// table order.
func Marshal(t *Table) ([]byte, error) {
	doc := tableDoc{
		Version:            t.Version,
		Name:               t.Name,
		Description:        t.Description,
		CrossCuttingDomain: t.CrossCuttingDomain,
		HardConstraints: &hardConstraintsDoc{
			NoAutonomyUnderBlock:    boolPtr(t.HardConstraints.NoAutonomyUnderBlock),
			NoAutonomyUnderRestrict: boolPtr(t.HardConstraints.NoAutonomyUnderRestrict),
		},
	}

	for _, d := range t.Domains {
		dd := domainDoc{
			Name:     d.Name,
			Keywords: keywordsDoc{High: d.HighSignal, Medium: d.MediumSignal},
		}
		if len(d.Defaults) > 0 {
			dd.Defaults = make(map[string]defaultDoc, len(d.Defaults))
			for action, def := range d.Defaults {
				dd.Defaults[string(action)] = defaultDoc{Message: def.Message, Alternatives: def.Alternatives}
			}
		}
		for _, r := range t.RulesFor(d.Name) {
			rd := ruleDoc{
				ID:           r.ID,
				Action:       string(r.Action),
				Explanation:  r.Explanation,
				Alternatives: r.Alternatives,
			}
			if !r.Active {
				rd.Active = boolPtr(false)
			}
			for _, c := range r.Conditions {
				rd.Conditions = append(rd.Conditions, conditionDoc{
					Field:         c.Field,
					Operator:      string(c.Operator),
					Value:         c.Value,
					CaseSensitive: c.CaseSensitive,
				})
			}
			dd.Rules = append(dd.Rules, rd)
		}
		doc.Domains = append(doc.Domains, dd)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("failed to encode rule table: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode rule table: %w", err)
	}
	return buf.Bytes(), nil
}

func boolPtr(b bool) *bool {
	return &b
}
