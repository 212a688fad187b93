package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/cohort/participant"
	"github.com/absmach/cohort/pkg/fl"
)

var _ participant.Client = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	id     string
	client participant.Client
}

func Logging(logger *slog.Logger, id string, client participant.Client) participant.Client {
	return &loggingMiddleware{
		logger: logger,
		id:     id,
		client: client,
	}
}

func (lm *loggingMiddleware) GetParameters(ctx context.Context, cfg fl.Config) (params fl.Parameters, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("participant_id", lm.id),
			slog.Int("tensors", params.Len()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get parameters failed", args...)

			return
		}
		lm.logger.Info("Get parameters completed successfully", args...)
	}(time.Now())

	return lm.client.GetParameters(ctx, cfg)
}

func (lm *loggingMiddleware) Fit(ctx context.Context, params fl.Parameters, cfg fl.Config) (res fl.FitRes, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("participant_id", lm.id),
			slog.Any("round", cfg["round"]),
			slog.Group("result",
				slog.Int64("num_examples", res.NumExamples),
				slog.Int("metrics", len(res.Metrics)),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Fit failed", args...)

			return
		}
		lm.logger.Info("Fit completed successfully", args...)
	}(time.Now())

	return lm.client.Fit(ctx, params, cfg)
}

func (lm *loggingMiddleware) Evaluate(ctx context.Context, params fl.Parameters, cfg fl.Config) (res fl.EvaluateRes, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.String("participant_id", lm.id),
			slog.Any("round", cfg["round"]),
			slog.Group("result",
				slog.Float64("loss", res.Loss),
				slog.Int64("num_examples", res.NumExamples),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Evaluate failed", args...)

			return
		}
		lm.logger.Info("Evaluate completed successfully", args...)
	}(time.Now())

	return lm.client.Evaluate(ctx, params, cfg)
}

func (lm *loggingMiddleware) Close() error {
	if err := lm.client.Close(); err != nil {
		lm.logger.Warn("Close participant failed", slog.String("participant_id", lm.id), slog.Any("error", err))

		return err
	}

	return nil
}
