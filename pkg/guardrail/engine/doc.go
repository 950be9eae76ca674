// Package engine evaluates guardrail inputs against a versioned rule table.
//
// An evaluation runs in fixed stages:
//
//  1. DetectDomains selects the domains whose keywords appear in the input
//     text. The table's cross-cutting domain is always selected.
//  2. ResolveDomain evaluates every active rule of each selected domain and
//     picks the most restrictive triggered action.
//  3. DeriveFlags summarizes the first pass. The cross-cutting domain is
//     resolved once more with context.any_blocked, context.any_restricted and
//     context.any_redirected available to its conditions.
//  4. ResolveFinalAction picks the most restrictive action overall; ties go
//     to the first domain in evaluation order.
//  5. BuildExplanation derives the user message and alternatives.
//
// Evaluation is a pure function of the table version and the input. Missing
// fields, type mismatches, malformed patterns and unknown operators make a
// condition not match; they are never errors.
//
// Basic usage:
//
//	eng, err := engine.NewEngine(engine.DefaultEngineConfig(), ruletable.NewDefaultSource(), logger,
//		engine.WithMetrics(collector),
//		engine.WithEmitter(emitter),
//	)
//	if err != nil {
//		return err
//	}
//	eval, err := eng.Evaluate(ctx, input)
//
// Reload swaps the rule table atomically. A table whose version is not
// greater than the active one is rejected with a *VersionError.
package engine
