package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/mqtt"
	"github.com/absmach/cohort/pkg/storage"
	"github.com/go-kit/kit/metrics"
)

const (
	roundsTopicTemplate = "%s/fl/rounds/next"
	unsubscribeTimeout  = 5 * time.Second
)

// Observer is notified after every completed round, once the new parameters
// are in place. Errors are logged and never stop the run.
type Observer interface {
	RoundCompleted(ctx context.Context, runID string, rec fl.RoundRecord, params fl.Parameters) error
}

type ObserverFunc func(ctx context.Context, runID string, rec fl.RoundRecord, params fl.Parameters) error

func (f ObserverFunc) RoundCompleted(ctx context.Context, runID string, rec fl.RoundRecord, params fl.Parameters) error {
	return f(ctx, runID, rec, params)
}

// Checkpointer persists every round record and the parameters it produced.
func Checkpointer(repo storage.Repository) Observer {
	return ObserverFunc(func(ctx context.Context, runID string, rec fl.RoundRecord, params fl.Parameters) error {
		if err := repo.SaveRound(ctx, runID, rec); err != nil {
			return fmt.Errorf("failed to save round %d: %w", rec.Round, err)
		}

		return repo.SaveCheckpoint(ctx, fl.Checkpoint{
			RunID:      runID,
			Round:      rec.Round,
			Parameters: params,
			SavedAt:    time.Now().UTC(),
		})
	})
}

// RoundsTopic is where round completion notifications are published.
func RoundsTopic(baseTopic string) string {
	return fmt.Sprintf(roundsTopicTemplate, baseTopic)
}

// Notifier publishes a summary of every completed round.
func Notifier(pubsub mqtt.PubSub, baseTopic string) Observer {
	topic := RoundsTopic(baseTopic)

	return ObserverFunc(func(ctx context.Context, runID string, rec fl.RoundRecord, _ fl.Parameters) error {
		msg := map[string]any{
			"run_id":       runID,
			"round":        rec.Round,
			"fit_results":  rec.FitResults,
			"fit_failures": rec.FitFailures,
		}
		if rec.Distributed != nil {
			msg["distributed_loss"] = rec.Distributed.Loss
		}
		if rec.Centralized != nil {
			msg["centralized_loss"] = rec.Centralized.Loss
		}

		return pubsub.Publish(ctx, topic, msg)
	})
}

// WatchRounds calls handle with every notification Notifier publishes for
// runID, or for any run when runID is empty, until ctx is done.
func WatchRounds(ctx context.Context, pubsub mqtt.PubSub, baseTopic, runID string, handle func(msg map[string]any)) error {
	topic := RoundsTopic(baseTopic)

	err := pubsub.Subscribe(ctx, topic, func(_ string, msg map[string]any) error {
		if runID != "" && msg["run_id"] != runID {
			return nil
		}
		handle(msg)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	<-ctx.Done()

	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unsubscribeTimeout)
	defer cancel()

	return pubsub.Unsubscribe(uctx, topic)
}

// Gauges exports the progress of a run.
func Gauges(round, loss, failures metrics.Gauge) Observer {
	return ObserverFunc(func(_ context.Context, _ string, rec fl.RoundRecord, _ fl.Parameters) error {
		round.Set(float64(rec.Round))
		failures.With("phase", "fit").Set(float64(rec.FitFailures))
		failures.With("phase", "evaluate").Set(float64(rec.EvaluateFailures))
		if rec.Distributed != nil {
			loss.With("kind", "distributed").Set(rec.Distributed.Loss)
		}
		if rec.Centralized != nil {
			loss.With("kind", "centralized").Set(rec.Centralized.Loss)
		}

		return nil
	})
}
