package middleware

import (
	"context"
	"log/slog"

	"github.com/absmach/cohort/participant"
	"github.com/go-kit/kit/metrics"
	"go.opentelemetry.io/otel/trace"
)

// Instrument wraps every client created by factory with tracing, metrics and
// logging, in that order from the inside out. Nil collaborators are skipped.
func Instrument(factory participant.Factory, logger *slog.Logger, tracer trace.Tracer, counter metrics.Counter, latency metrics.Histogram) participant.Factory {
	return participant.FactoryFunc(func(ctx context.Context, id string) (participant.Client, error) {
		c, err := factory.Create(ctx, id)
		if err != nil {
			return nil, err
		}
		if tracer != nil {
			c = Tracing(tracer, id, c)
		}
		if counter != nil && latency != nil {
			c = Metrics(counter, latency, c)
		}
		if logger != nil {
			c = Logging(logger, id, c)
		}

		return c, nil
	})
}
