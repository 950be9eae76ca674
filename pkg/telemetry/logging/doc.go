// Package logging builds the service's structured logger.
//
// The logger is a plain *slog.Logger so it can be injected into every
// component. Its handler adds request, session and tenant identifiers
// stored in the context by the HTTP layer:
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	ctx = logging.WithRequestID(ctx, "req-123")
//	logger.InfoContext(ctx, "evaluation complete") // includes request_id
package logging
