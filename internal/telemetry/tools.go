package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	toolOnce    sync.Once
	toolCounter metric.Int64Counter
)

// RecordToolInvocation counts one tool dispatch by name and outcome.
// The global meter delegates to whatever provider Init installed, so
// this is a no-op when telemetry is disabled.
func RecordToolInvocation(ctx context.Context, tool string, success bool) {
	toolOnce.Do(func() {
		toolCounter, _ = Meter(instrumentationScope).Int64Counter(
			"membank.tool.invocations",
			metric.WithDescription("Tool invocations by name and outcome"),
		)
	})
	outcome := "ok"
	if !success {
		outcome = "error"
	}
	toolCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("membank.tool", tool),
		attribute.String("membank.outcome", outcome),
	))
}
