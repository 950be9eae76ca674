package tracing

import (
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// createSampler creates a sampler from telemetry.tracing.sample_ratio.
//
// A ratio of 1.0 samples every trace and 0.0 samples none. Anything in
// between uses TraceIDRatioBased, so the same trace id always gets the same
// decision across services.
//
// All samplers are wrapped in ParentBased(), which respects the parent span's
// sampling decision when one was propagated with the request.
func createSampler(ratio float64) (sdktrace.Sampler, error) {
	if ratio < 0.0 || ratio > 1.0 {
		return nil, fmt.Errorf("sample ratio must be between 0.0 and 1.0, got %f", ratio)
	}

	var baseSampler sdktrace.Sampler
	switch ratio {
	case 1.0:
		baseSampler = sdktrace.AlwaysSample()
	case 0.0:
		baseSampler = sdktrace.NeverSample()
	default:
		baseSampler = sdktrace.TraceIDRatioBased(ratio)
	}

	return sdktrace.ParentBased(baseSampler), nil
}
