package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mercator-hq/sentinel/pkg/config"
	"mercator-hq/sentinel/pkg/evidence"
	"mercator-hq/sentinel/pkg/guardrail"
)

const (
	// DefaultLimit is the default number of records to return if not specified.
	DefaultLimit = config.DefaultEvidenceQueryDefaultLimit

	// MaxLimit is the maximum number of records that can be returned in a single query.
	MaxLimit = config.DefaultEvidenceQueryMaxLimit
)

// ValidSortFields contains the fields that can be used for sorting.
var ValidSortFields = map[string]bool{
	"evaluated_at": true,
	"recorded_at":  true,
	"rule_version": true,
	"duration":     true,
}

// ValidSortOrders contains the valid sort orders.
var ValidSortOrders = map[string]bool{
	"asc":  true,
	"desc": true,
}

// Validator checks queries against configured limits.
type Validator struct {
	defaultLimit int
	maxLimit     int
}

// NewValidator creates a validator. Non-positive limits use the package
// defaults.
func NewValidator(cfg config.QueryConfig) *Validator {
	v := &Validator{defaultLimit: cfg.DefaultLimit, maxLimit: cfg.MaxLimit}
	if v.maxLimit <= 0 {
		v.maxLimit = MaxLimit
	}
	if v.defaultLimit <= 0 {
		v.defaultLimit = DefaultLimit
	}
	v.defaultLimit = min(v.defaultLimit, v.maxLimit)
	return v
}

// Validate validates a query with the package default limits.
func Validate(q *evidence.Query) error {
	return NewValidator(config.QueryConfig{}).Validate(q)
}

// ApplyDefaults applies the package default values to a query.
func ApplyDefaults(q *evidence.Query) {
	NewValidator(config.QueryConfig{}).ApplyDefaults(q)
}

// Validate returns a QueryError if any parameter is invalid.
func (v *Validator) Validate(q *evidence.Query) error {
	if q.Limit < 0 {
		return evidence.NewQueryError(q, fmt.Errorf("limit must be >= 0, got %d", q.Limit))
	}
	if q.Limit > v.maxLimit {
		return evidence.NewQueryError(q, fmt.Errorf("limit must be <= %d, got %d", v.maxLimit, q.Limit))
	}

	if q.Offset < 0 {
		return evidence.NewQueryError(q, fmt.Errorf("offset must be >= 0, got %d", q.Offset))
	}

	if q.SortBy != "" && !ValidSortFields[q.SortBy] {
		return evidence.NewQueryError(q, fmt.Errorf("invalid sort field: %s", q.SortBy))
	}

	if q.SortOrder != "" && !ValidSortOrders[q.SortOrder] {
		return evidence.NewQueryError(q, fmt.Errorf("invalid sort order: %s (must be 'asc' or 'desc')", q.SortOrder))
	}

	if q.StartTime != nil && q.EndTime != nil && q.StartTime.After(*q.EndTime) {
		return evidence.NewQueryError(q, fmt.Errorf("start_time must be before end_time"))
	}

	if q.FinalAction != "" && !guardrail.Action(q.FinalAction).Valid() {
		return evidence.NewQueryError(q, fmt.Errorf("invalid final_action: %s (must be 'allow', 'redirect', 'restrict', or 'block')", q.FinalAction))
	}

	return nil
}

// ApplyDefaults fills in the limit and sort order.
func (v *Validator) ApplyDefaults(q *evidence.Query) {
	if q.Limit == 0 {
		q.Limit = v.defaultLimit
	}
	if q.SortBy == "" {
		q.SortBy = "evaluated_at"
	}
	if q.SortOrder == "" {
		q.SortOrder = "desc"
	}
}

// Prepare applies defaults and validates.
func (v *Validator) Prepare(q *evidence.Query) error {
	v.ApplyDefaults(q)
	return v.Validate(q)
}

// FromValues builds a query from URL query parameters. Times are RFC 3339.
// Unknown parameters are ignored.
func FromValues(values url.Values) (*evidence.Query, error) {
	q := &evidence.Query{
		EvaluationID:  values.Get("evaluation_id"),
		RequestID:     values.Get("request_id"),
		SessionID:     values.Get("session_id"),
		TenantID:      values.Get("tenant_id"),
		FinalAction:   values.Get("final_action"),
		PrimaryDomain: values.Get("primary_domain"),
		Domain:        values.Get("domain"),
		RuleID:        values.Get("rule_id"),
		InputHash:     values.Get("input_hash"),
		SortBy:        values.Get("sort_by"),
		SortOrder:     strings.ToLower(values.Get("sort_order")),
	}

	var err error
	if q.StartTime, err = parseTime(values, "start_time"); err != nil {
		return nil, evidence.NewQueryError(q, err)
	}
	if q.EndTime, err = parseTime(values, "end_time"); err != nil {
		return nil, evidence.NewQueryError(q, err)
	}
	if q.Limit, err = parseInt(values, "limit"); err != nil {
		return nil, evidence.NewQueryError(q, err)
	}
	if q.Offset, err = parseInt(values, "offset"); err != nil {
		return nil, evidence.NewQueryError(q, err)
	}

	if s := values.Get("rule_version"); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, evidence.NewQueryError(q, fmt.Errorf("invalid rule_version %q: %w", s, err))
		}
		q.RuleVersion = &v
	}
	if s := values.Get("autonomy_denied"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, evidence.NewQueryError(q, fmt.Errorf("invalid autonomy_denied %q: %w", s, err))
		}
		q.AutonomyDenied = &b
	}

	return q, nil
}

func parseTime(values url.Values, key string) (*time.Time, error) {
	s := values.Get(key)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return &t, nil
}

func parseInt(values url.Values, key string) (int, error) {
	s := values.Get(key)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return n, nil
}
