// Package health serves liveness and readiness probes for the guardrail
// service.
//
// Endpoints:
//
//   - /healthz: liveness, 200 while the process serves requests
//   - /readyz: readiness, 200 when every registered check passes, else 503
//   - /version: build information
//
// Both probe responses include the active rule table version once
// WatchRuleTable has been called.
//
//	checker := health.New(2*time.Second, logger)
//	checker.WatchRuleTable(eng.Table)
//	checker.RegisterCheck("evidence", health.StorageCheck(store))
//	health.Register(mux, checker, health.VersionInfo{Version: version})
//
// Checks run concurrently, each bounded by the checker timeout. A check
// that times out is reported unhealthy with ErrCheckTimeout's message.
package health
