package cohort_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/absmach/cohort"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfig(t *testing.T) {
	cases := []struct {
		desc   string
		toml   string
		check  func(t *testing.T, cfg *cohort.Config)
		hasErr bool
	}{
		{
			desc: "empty file keeps defaults",
			toml: "",
			check: func(t *testing.T, cfg *cohort.Config) {
				assert.Equal(t, cohort.Default(), *cfg)
			},
		},
		{
			desc: "full file",
			toml: `
[run]
rounds = 7
concurrency = 2
round_timeout = "45s"
seed = 9

[strategy]
fraction_fit = 0.5
fraction_evaluate = 0.25
min_fit = 3
min_evaluate = 1
min_available = 4
aggregator = "median"
selector = "round_robin"
accept_failures = false
centralized = false

[fit]
local_epochs = 2
learning_rate = 0.1

[simulation]
participants = 20
features = 3
min_samples = 10
max_samples = 30
noise = 0.5
failure_rate = 0.2
failing = ["participant-001"]
`,
			check: func(t *testing.T, cfg *cohort.Config) {
				assert.Equal(t, cohort.RunConfig{Rounds: 7, Concurrency: 2, RoundTimeout: 45 * time.Second, Seed: 9}, cfg.Run)
				assert.Equal(t, cohort.StrategyConfig{
					FractionFit:      0.5,
					FractionEvaluate: 0.25,
					MinFit:           3,
					MinEvaluate:      1,
					MinAvailable:     4,
					Aggregator:       fl.AlgorithmMedian,
					Selector:         cohort.SelectorRoundRobin,
				}, cfg.Strategy)
				assert.Equal(t, cohort.FitConfig{LocalEpochs: 2, LearningRate: 0.1}, cfg.Fit)
				assert.Equal(t, 20, cfg.Simulation.Participants)
				assert.Equal(t, []string{"participant-001"}, cfg.Simulation.Failing)
			},
		},
		{
			desc: "partial section keeps other defaults",
			toml: "[strategy]\nmin_fit = 5\n",
			check: func(t *testing.T, cfg *cohort.Config) {
				assert.Equal(t, 5, cfg.Strategy.MinFit)
				assert.Equal(t, 1.0, cfg.Strategy.FractionFit)
				assert.True(t, cfg.Strategy.AcceptFailures)
				assert.Equal(t, cohort.Default().Run, cfg.Run)
			},
		},
		{
			desc:   "malformed toml",
			toml:   "[run\nrounds = 1",
			hasErr: true,
		},
		{
			desc:   "invalid round timeout",
			toml:   "[run]\nround_timeout = \"soon\"\n",
			hasErr: true,
		},
		{
			desc:   "negative seed",
			toml:   "[run]\nseed = -1\n",
			hasErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			cfg, err := cohort.LoadConfig(writeConfig(t, tc.toml))
			if tc.hasErr {
				assert.Error(t, err)

				return
			}
			require.NoError(t, err)
			tc.check(t, cfg)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := cohort.LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStrategyConfig(t *testing.T) {
	cfg := cohort.Default()
	cfg.Fit = cohort.FitConfig{LocalEpochs: 3, LearningRate: 0.2}

	sc, err := cfg.StrategyConfig()
	require.NoError(t, err)
	assert.Equal(t, fl.Config{"local_epochs": 3, "learning_rate": 0.2}, sc.OnFitConfig(1))

	_, err = strategy.NewFedAvg(sc)
	require.NoError(t, err)

	cfg.Strategy.Selector = "lottery"
	_, err = cfg.StrategyConfig()
	assert.ErrorIs(t, err, cohort.ErrUnknownSelector)
}

func TestDerivedConfigs(t *testing.T) {
	cfg := cohort.Default()
	cfg.Run.Rounds = 4
	cfg.Run.RoundTimeout = time.Minute
	cfg.Run.Seed = 11

	cc := cfg.CoordinatorConfig()
	assert.Equal(t, 4, cc.NumRounds)
	assert.Equal(t, time.Minute, cc.RoundTimeout)

	sc := cfg.SimulationConfig()
	assert.Equal(t, uint64(11), sc.Seed)
	assert.Equal(t, cfg.Fit.LocalEpochs, sc.LocalEpochs)
	assert.Equal(t, cfg.Simulation.Participants, sc.Participants)
}
