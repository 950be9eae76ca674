// Package query validates evidence queries and parses them from URL
// parameters.
//
// A Validator enforces the configured limits:
//
//   - limit between 0 and the maximum (0 means the default limit)
//   - offset >= 0
//   - sort_by one of evaluated_at, recorded_at, rule_version, duration
//   - sort_order asc or desc
//   - start_time not after end_time
//   - final_action one of the four guardrail actions
//
// The HTTP evidence endpoint and the evidence query command share the same
// path:
//
//	q, err := query.FromValues(r.URL.Query())
//	if err != nil {
//	    return err
//	}
//	if err := validator.Prepare(q); err != nil {
//	    return err
//	}
//	records, err := store.Query(ctx, q)
package query
