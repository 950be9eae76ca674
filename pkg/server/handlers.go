package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"mercator-hq/sentinel/pkg/evidence"
	"mercator-hq/sentinel/pkg/evidence/query"
	"mercator-hq/sentinel/pkg/guardrail"
	"mercator-hq/sentinel/pkg/guardrail/ruletable"
	"mercator-hq/sentinel/pkg/telemetry/logging"
)

// EvaluateResponse is the reply to POST /v1/evaluate.
type EvaluateResponse struct {
	*guardrail.Evaluation

	// AutonomyPermitted reports whether an autonomous action may proceed.
	AutonomyPermitted bool `json:"autonomy_permitted"`

	// AutonomyDenied is set when the caller requested autonomy and the
	// decision withholds it.
	AutonomyDenied bool `json:"autonomy_denied"`
}

// RulesResponse summarizes the active rule table.
type RulesResponse struct {
	Version            uint64                    `json:"version"`
	Name               string                    `json:"name"`
	Description        string                    `json:"description,omitempty"`
	Source             string                    `json:"source"`
	LoadedAt           time.Time                 `json:"loaded_at"`
	CrossCuttingDomain string                    `json:"cross_cutting_domain"`
	HardConstraints    guardrail.HardConstraints `json:"hard_constraints"`
	Domains            []DomainSummary           `json:"domains"`
	Rules              []*guardrail.Rule         `json:"rules"`
}

// DomainSummary describes one domain of the active table.
type DomainSummary struct {
	Name         string `json:"name"`
	Rules        int    `json:"rules"`
	ActiveRules  int    `json:"active_rules"`
	HighSignal   int    `json:"high_signal_keywords"`
	MediumSignal int    `json:"medium_signal_keywords"`
}

// EvidenceResponse is the reply to GET /v1/evidence.
type EvidenceResponse struct {
	Records []*evidence.Record `json:"records"`
	Total   int64              `json:"total"`
	Limit   int                `json:"limit"`
	Offset  int                `json:"offset"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)

	var in guardrail.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, ErrorTypeTooLarge, CodeRequestTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, r, ErrorTypeInvalidRequest, CodeInvalidJSON, "invalid input bundle: "+err.Error())
		return
	}

	if in.RequestID == "" {
		in.RequestID = GetRequestID(r.Context())
	}

	ctx := logging.WithSession(r.Context(), in.SessionID)
	ctx = logging.WithTenant(ctx, in.TenantID)

	eval, err := s.engine.Evaluate(ctx, &in)
	if err != nil {
		s.logger.ErrorContext(ctx, "evaluation failed", "error", err)
		writeError(w, r, ErrorTypeServerError, CodeInternalError, "evaluation failed")
		return
	}

	writeJSON(w, http.StatusOK, EvaluateResponse{
		Evaluation:        eval,
		AutonomyPermitted: eval.IsAutonomyPermitted(),
		AutonomyDenied:    eval.AutonomyDenied(in.Autonomy.Requested),
	})
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	table := s.engine.Table()
	if table == nil {
		writeError(w, r, ErrorTypeServiceUnavailable, CodeInternalError, "no rule table loaded")
		return
	}

	if r.URL.Query().Get("format") == "yaml" {
		data, err := ruletable.Marshal(table)
		if err != nil {
			writeError(w, r, ErrorTypeServerError, CodeInternalError, "encode rule table: "+err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}

	writeJSON(w, http.StatusOK, SummarizeTable(table))
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Reload(r.Context()); err != nil {
		writeError(w, r, ErrorTypeInvalidRequest, CodeReloadFailed, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, SummarizeTable(s.engine.Table()))
}

func (s *Server) handleEvidenceQuery(w http.ResponseWriter, r *http.Request) {
	if s.evidence == nil {
		writeError(w, r, ErrorTypeServiceUnavailable, CodeEvidenceOff, "evidence recording is disabled")
		return
	}

	q, err := query.FromValues(r.URL.Query())
	if err != nil {
		writeError(w, r, ErrorTypeInvalidRequest, CodeInvalidValue, err.Error())
		return
	}
	if err := s.validator.Prepare(q); err != nil {
		writeError(w, r, ErrorTypeInvalidRequest, CodeInvalidValue, err.Error())
		return
	}

	records, err := s.evidence.Query(r.Context(), q)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "evidence query failed", "error", err)
		writeError(w, r, ErrorTypeServerError, CodeInternalError, "evidence query failed")
		return
	}
	total, err := s.evidence.Count(r.Context(), q)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "evidence count failed", "error", err)
		writeError(w, r, ErrorTypeServerError, CodeInternalError, "evidence query failed")
		return
	}

	writeJSON(w, http.StatusOK, EvidenceResponse{
		Records: records,
		Total:   total,
		Limit:   q.Limit,
		Offset:  q.Offset,
	})
}

func (s *Server) handleEvidenceGet(w http.ResponseWriter, r *http.Request) {
	if s.evidence == nil {
		writeError(w, r, ErrorTypeServiceUnavailable, CodeEvidenceOff, "evidence recording is disabled")
		return
	}

	record, err := s.evidence.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, evidence.ErrNotFound) {
		writeError(w, r, ErrorTypeNotFound, CodeRecordNotFound, "evidence record not found")
		return
	}
	if err != nil {
		s.logger.ErrorContext(r.Context(), "evidence lookup failed", "error", err)
		writeError(w, r, ErrorTypeServerError, CodeInternalError, "evidence lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// SummarizeTable describes a rule table for the rules endpoint.
func SummarizeTable(t *ruletable.Table) RulesResponse {
	resp := RulesResponse{
		Version:            t.Version,
		Name:               t.Name,
		Description:        t.Description,
		Source:             t.Source,
		LoadedAt:           t.LoadedAt,
		CrossCuttingDomain: t.CrossCuttingDomain,
		HardConstraints:    t.HardConstraints,
		Domains:            make([]DomainSummary, 0, len(t.Domains)),
		Rules:              t.Rules,
	}
	for _, d := range t.Domains {
		summary := DomainSummary{
			Name:         d.Name,
			HighSignal:   len(d.HighSignal),
			MediumSignal: len(d.MediumSignal),
		}
		for _, rule := range t.RulesFor(d.Name) {
			summary.Rules++
			if rule.Active {
				summary.ActiveRules++
			}
		}
		resp.Domains = append(resp.Domains, summary)
	}
	return resp
}
