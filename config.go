package cohort

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/scheduler"
	"github.com/absmach/cohort/pkg/sim"
	"github.com/absmach/cohort/pkg/strategy"
	"github.com/pelletier/go-toml"
)

const (
	SelectorRandom     = "random"
	SelectorRoundRobin = "round_robin"
)

var ErrUnknownSelector = errors.New("unknown selector")

// Config is the run configuration of a federation.
type Config struct {
	Run        RunConfig
	Strategy   StrategyConfig
	Fit        FitConfig
	Simulation SimulationConfig
}

type RunConfig struct {
	Rounds       int
	Concurrency  int
	RoundTimeout time.Duration
	Seed         uint64
}

type StrategyConfig struct {
	FractionFit      float64
	FractionEvaluate float64
	MinFit           int
	MinEvaluate      int
	MinAvailable     int
	Aggregator       string
	Selector         string
	AcceptFailures   bool
	// Centralized enables evaluation of the global parameters on the
	// coordinator's holdout set after every round.
	Centralized bool
}

// FitConfig is sent to participants with every fit call.
type FitConfig struct {
	LocalEpochs  int
	LearningRate float64
}

type SimulationConfig struct {
	Participants int
	Features     int
	MinSamples   int
	MaxSamples   int
	Noise        float64
	FailureRate  float64
	Failing      []string
}

// Default returns the configuration used for keys missing from a file.
func Default() Config {
	st := strategy.DefaultConfig()
	sc := sim.DefaultConfig()

	return Config{
		Run: RunConfig{
			Rounds: 3,
			Seed:   sc.Seed,
		},
		Strategy: StrategyConfig{
			FractionFit:      st.FractionFit,
			FractionEvaluate: st.FractionEvaluate,
			MinFit:           st.MinFit,
			MinEvaluate:      st.MinEvaluate,
			MinAvailable:     st.MinAvailable,
			Aggregator:       st.Aggregator,
			Selector:         SelectorRandom,
			AcceptFailures:   st.AcceptFailures,
			Centralized:      true,
		},
		Fit: FitConfig{
			LocalEpochs:  sc.LocalEpochs,
			LearningRate: sc.LearningRate,
		},
		Simulation: SimulationConfig{
			Participants: sc.Participants,
			Features:     sc.Features,
			MinSamples:   sc.MinSamples,
			MaxSamples:   sc.MaxSamples,
			Noise:        sc.Noise,
		},
	}
}

// fileConfig mirrors Config with optional fields so absent keys keep their
// defaults.
type fileConfig struct {
	Run struct {
		Rounds       *int    `toml:"rounds"`
		Concurrency  *int    `toml:"concurrency"`
		RoundTimeout *string `toml:"round_timeout"`
		Seed         *int64  `toml:"seed"`
	} `toml:"run"`
	Strategy struct {
		FractionFit      *float64 `toml:"fraction_fit"`
		FractionEvaluate *float64 `toml:"fraction_evaluate"`
		MinFit           *int     `toml:"min_fit"`
		MinEvaluate      *int     `toml:"min_evaluate"`
		MinAvailable     *int     `toml:"min_available"`
		Aggregator       *string  `toml:"aggregator"`
		Selector         *string  `toml:"selector"`
		AcceptFailures   *bool    `toml:"accept_failures"`
		Centralized      *bool    `toml:"centralized"`
	} `toml:"strategy"`
	Fit struct {
		LocalEpochs  *int     `toml:"local_epochs"`
		LearningRate *float64 `toml:"learning_rate"`
	} `toml:"fit"`
	Simulation struct {
		Participants *int     `toml:"participants"`
		Features     *int     `toml:"features"`
		MinSamples   *int     `toml:"min_samples"`
		MaxSamples   *int     `toml:"max_samples"`
		Noise        *float64 `toml:"noise"`
		FailureRate  *float64 `toml:"failure_rate"`
		Failing      []string `toml:"failing"`
	} `toml:"simulation"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	tree, err := toml.Load(string(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	var fc fileConfig
	if err := tree.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg := Default()
	if err := fc.apply(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (fc fileConfig) apply(cfg *Config) error {
	set(&cfg.Run.Rounds, fc.Run.Rounds)
	set(&cfg.Run.Concurrency, fc.Run.Concurrency)
	if fc.Run.Seed != nil {
		if *fc.Run.Seed < 0 {
			return fmt.Errorf("invalid seed %d", *fc.Run.Seed)
		}
		cfg.Run.Seed = uint64(*fc.Run.Seed)
	}
	if fc.Run.RoundTimeout != nil {
		d, err := time.ParseDuration(*fc.Run.RoundTimeout)
		if err != nil {
			return fmt.Errorf("invalid round timeout: %w", err)
		}
		cfg.Run.RoundTimeout = d
	}

	set(&cfg.Strategy.FractionFit, fc.Strategy.FractionFit)
	set(&cfg.Strategy.FractionEvaluate, fc.Strategy.FractionEvaluate)
	set(&cfg.Strategy.MinFit, fc.Strategy.MinFit)
	set(&cfg.Strategy.MinEvaluate, fc.Strategy.MinEvaluate)
	set(&cfg.Strategy.MinAvailable, fc.Strategy.MinAvailable)
	set(&cfg.Strategy.Aggregator, fc.Strategy.Aggregator)
	set(&cfg.Strategy.Selector, fc.Strategy.Selector)
	set(&cfg.Strategy.AcceptFailures, fc.Strategy.AcceptFailures)
	set(&cfg.Strategy.Centralized, fc.Strategy.Centralized)

	set(&cfg.Fit.LocalEpochs, fc.Fit.LocalEpochs)
	set(&cfg.Fit.LearningRate, fc.Fit.LearningRate)

	set(&cfg.Simulation.Participants, fc.Simulation.Participants)
	set(&cfg.Simulation.Features, fc.Simulation.Features)
	set(&cfg.Simulation.MinSamples, fc.Simulation.MinSamples)
	set(&cfg.Simulation.MaxSamples, fc.Simulation.MaxSamples)
	set(&cfg.Simulation.Noise, fc.Simulation.Noise)
	set(&cfg.Simulation.FailureRate, fc.Simulation.FailureRate)
	if fc.Simulation.Failing != nil {
		cfg.Simulation.Failing = fc.Simulation.Failing
	}

	return nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func (c Config) CoordinatorConfig() coordinator.Config {
	return coordinator.Config{
		NumRounds:    c.Run.Rounds,
		Concurrency:  c.Run.Concurrency,
		RoundTimeout: c.Run.RoundTimeout,
	}
}

func (c Config) SimulationConfig() sim.Config {
	return sim.Config{
		Participants: c.Simulation.Participants,
		Features:     c.Simulation.Features,
		MinSamples:   c.Simulation.MinSamples,
		MaxSamples:   c.Simulation.MaxSamples,
		Noise:        c.Simulation.Noise,
		Seed:         c.Run.Seed,
		LocalEpochs:  c.Fit.LocalEpochs,
		LearningRate: c.Fit.LearningRate,
		FailureRate:  c.Simulation.FailureRate,
		Failing:      c.Simulation.Failing,
	}
}

// StrategyConfig builds the strategy configuration. Participants get the fit
// settings in every fit call, and fit and evaluate metrics are combined with a
// sample-weighted average. Centralized evaluation is left to the caller.
func (c Config) StrategyConfig() (strategy.Config, error) {
	var sel scheduler.Selector
	switch c.Strategy.Selector {
	case SelectorRandom, "":
		sel = scheduler.NewRandom(c.Run.Seed)
	case SelectorRoundRobin:
		sel = scheduler.NewRoundRobin()
	default:
		return strategy.Config{}, fmt.Errorf("%w: %s", ErrUnknownSelector, c.Strategy.Selector)
	}

	fit := c.Fit

	return strategy.Config{
		FractionFit:                c.Strategy.FractionFit,
		FractionEvaluate:           c.Strategy.FractionEvaluate,
		MinFit:                     c.Strategy.MinFit,
		MinEvaluate:                c.Strategy.MinEvaluate,
		MinAvailable:               c.Strategy.MinAvailable,
		Aggregator:                 c.Strategy.Aggregator,
		AcceptFailures:             c.Strategy.AcceptFailures,
		Selector:                   sel,
		FitMetricsAggregation:      fl.WeightedAverage,
		EvaluateMetricsAggregation: fl.WeightedAverage,
		OnFitConfig: func(int) fl.Config {
			return fl.Config{
				"local_epochs":  fit.LocalEpochs,
				"learning_rate": fit.LearningRate,
			}
		},
	}, nil
}
