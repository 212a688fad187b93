package middleware

import (
	"context"

	"github.com/absmach/cohort/participant"
	"github.com/absmach/cohort/pkg/fl"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ participant.Client = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	id     string
	client participant.Client
}

func Tracing(tracer trace.Tracer, id string, client participant.Client) participant.Client {
	return &tracing{tracer, id, client}
}

func (tm *tracing) GetParameters(ctx context.Context, cfg fl.Config) (params fl.Parameters, err error) {
	ctx, span := tm.tracer.Start(ctx, "get-parameters", trace.WithAttributes(
		attribute.String("participant_id", tm.id),
	))
	defer func() { end(span, err) }()

	return tm.client.GetParameters(ctx, cfg)
}

func (tm *tracing) Fit(ctx context.Context, params fl.Parameters, cfg fl.Config) (res fl.FitRes, err error) {
	ctx, span := tm.tracer.Start(ctx, "fit", trace.WithAttributes(
		attribute.String("participant_id", tm.id),
		attribute.Int("tensors", params.Len()),
	))
	defer func() {
		span.SetAttributes(attribute.Int64("num_examples", res.NumExamples))
		end(span, err)
	}()

	return tm.client.Fit(ctx, params, cfg)
}

func (tm *tracing) Evaluate(ctx context.Context, params fl.Parameters, cfg fl.Config) (res fl.EvaluateRes, err error) {
	ctx, span := tm.tracer.Start(ctx, "evaluate", trace.WithAttributes(
		attribute.String("participant_id", tm.id),
	))
	defer func() {
		span.SetAttributes(
			attribute.Float64("loss", res.Loss),
			attribute.Int64("num_examples", res.NumExamples),
		)
		end(span, err)
	}()

	return tm.client.Evaluate(ctx, params, cfg)
}

func (tm *tracing) Close() error {
	return tm.client.Close()
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
