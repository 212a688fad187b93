package coordinator_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/mqtt"
	"github.com/absmach/cohort/pkg/mqtt/mocks"
	"github.com/absmach/cohort/pkg/storage"
	"github.com/go-kit/kit/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type gauge struct {
	mu     *sync.Mutex
	labels []string
	values map[string]float64
}

func newGauge() *gauge {
	return &gauge{mu: &sync.Mutex{}, values: map[string]float64{}}
}

func (g *gauge) With(labelValues ...string) metrics.Gauge {
	return &gauge{mu: g.mu, labels: append(append([]string{}, g.labels...), labelValues...), values: g.values}
}

func (g *gauge) Set(v float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.values[strings.Join(g.labels, ",")] = v
}

func (g *gauge) Add(v float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.values[strings.Join(g.labels, ",")] += v
}

func TestCheckpointer(t *testing.T) {
	repo := storage.NewInMemoryRepository()
	c := newCoordinator(t, coordinator.Config{NumRounds: 2}, registry(t, 2), &federation{}, newStrategy(t, nil),
		coordinator.WithRunID("run-ckpt"), coordinator.WithObservers(coordinator.Checkpointer(repo)))

	_, err := c.Run(context.Background())
	require.NoError(t, err)

	recs, total, err := repo.ListRounds(context.Background(), "run-ckpt", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), total)
	assert.Equal(t, 2, recs[1].Round)

	ckpt, err := repo.LoadCheckpoint(context.Background(), "run-ckpt")
	require.NoError(t, err)
	assert.Equal(t, 2, ckpt.Round)
	assert.Equal(t, scalar(2), ckpt.Parameters)
}

func TestNotifier(t *testing.T) {
	pubsub := new(mocks.PubSub)
	pubsub.On("Publish", mock.Anything, "cohort/fl/rounds/next", mock.MatchedBy(func(msg map[string]any) bool {
		return msg["run_id"] == "run-n" && msg["round"] == 1 && msg["distributed_loss"] == 1.0
	})).Return(nil).Once()
	pubsub.On("Publish", mock.Anything, "cohort/fl/rounds/next", mock.Anything).Return(errors.New("broker unavailable")).Once()

	c := newCoordinator(t, coordinator.Config{NumRounds: 2}, registry(t, 2), &federation{}, newStrategy(t, nil),
		coordinator.WithRunID("run-n"), coordinator.WithObservers(coordinator.Notifier(pubsub, "cohort")))

	_, err := c.Run(context.Background())
	require.NoError(t, err, "publish errors do not stop the run")
	pubsub.AssertExpectations(t)
}

func TestWatchRounds(t *testing.T) {
	const topic = "cohort/fl/rounds/next"
	errBroker := errors.New("broker unavailable")

	cases := []struct {
		desc         string
		runID        string
		subscribeErr error
		want         []string
		err          error
	}{
		{
			desc: "all runs",
			want: []string{"run-a", "run-b", "run-a"},
		},
		{
			desc:  "single run",
			runID: "run-a",
			want:  []string{"run-a", "run-a"},
		},
		{
			desc:         "subscribe fails",
			subscribeErr: errBroker,
			err:          errBroker,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			pubsub := new(mocks.PubSub)
			pubsub.On("Subscribe", mock.Anything, topic, mock.Anything).Run(func(args mock.Arguments) {
				if tc.subscribeErr != nil {
					return
				}
				handler := args.Get(2).(mqtt.Handler)
				go func() {
					for i, run := range []string{"run-a", "run-b", "run-a"} {
						_ = handler(topic, map[string]any{"run_id": run, "round": float64(i + 1)})
					}
					cancel()
				}()
			}).Return(tc.subscribeErr).Once()
			if tc.subscribeErr == nil {
				pubsub.On("Unsubscribe", mock.Anything, topic).Return(nil).Once()
			}

			var got []string
			err := coordinator.WatchRounds(ctx, pubsub, "cohort", tc.runID, func(msg map[string]any) {
				got = append(got, msg["run_id"].(string))
			})
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			pubsub.AssertExpectations(t)
		})
	}
}

func TestGauges(t *testing.T) {
	round, loss, failures := newGauge(), newGauge(), newGauge()
	obs := coordinator.Gauges(round, loss, failures)

	err := obs.RoundCompleted(context.Background(), "run", fl.RoundRecord{
		Round:            4,
		FitFailures:      1,
		EvaluateFailures: 2,
		Distributed:      &fl.Evaluation{Loss: 0.3},
	}, fl.Parameters{})
	require.NoError(t, err)

	assert.Equal(t, 4.0, round.values[""])
	assert.Equal(t, 1.0, failures.values["phase,fit"])
	assert.Equal(t, 2.0, failures.values["phase,evaluate"])
	assert.Equal(t, 0.3, loss.values["kind,distributed"])
	assert.NotContains(t, loss.values, "kind,centralized")
}

func TestStateString(t *testing.T) {
	cases := map[coordinator.State]string{
		coordinator.Idle:          "idle",
		coordinator.Initializing:  "initializing",
		coordinator.RoundFit:      "round_fit",
		coordinator.RoundEvaluate: "round_evaluate",
		coordinator.Aggregating:   "aggregating",
		coordinator.RoundDone:     "round_done",
		coordinator.Finished:      "finished",
		coordinator.Failed:        "failed",
		coordinator.State(42):     "unknown",
	}
	for s, want := range cases {
		assert.Equal(t, want, s.String())
		assert.Equal(t, s == coordinator.Finished || s == coordinator.Failed, s.Terminal())
	}
}
