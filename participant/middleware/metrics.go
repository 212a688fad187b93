package middleware

import (
	"context"
	"time"

	"github.com/absmach/cohort/participant"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/go-kit/kit/metrics"
)

var _ participant.Client = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	client  participant.Client
}

// Metrics counts participant calls and observes their latency, labelled by
// method and outcome.
func Metrics(counter metrics.Counter, latency metrics.Histogram, client participant.Client) participant.Client {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		client:  client,
	}
}

func (mm *metricsMiddleware) GetParameters(ctx context.Context, cfg fl.Config) (params fl.Parameters, err error) {
	defer func(begin time.Time) {
		mm.observe("get-parameters", begin, err)
	}(time.Now())

	return mm.client.GetParameters(ctx, cfg)
}

func (mm *metricsMiddleware) Fit(ctx context.Context, params fl.Parameters, cfg fl.Config) (res fl.FitRes, err error) {
	defer func(begin time.Time) {
		mm.observe("fit", begin, err)
	}(time.Now())

	return mm.client.Fit(ctx, params, cfg)
}

func (mm *metricsMiddleware) Evaluate(ctx context.Context, params fl.Parameters, cfg fl.Config) (res fl.EvaluateRes, err error) {
	defer func(begin time.Time) {
		mm.observe("evaluate", begin, err)
	}(time.Now())

	return mm.client.Evaluate(ctx, params, cfg)
}

func (mm *metricsMiddleware) Close() error {
	return mm.client.Close()
}

func (mm *metricsMiddleware) observe(method string, begin time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	mm.counter.With("method", method, "outcome", outcome).Add(1)
	mm.latency.With("method", method, "outcome", outcome).Observe(time.Since(begin).Seconds())
}
