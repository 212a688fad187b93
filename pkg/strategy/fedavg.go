package strategy

import (
	"context"
	"errors"
	"fmt"

	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/scheduler"
)

var _ Strategy = (*FedAvg)(nil)

// ConfigFn returns the configuration sent to participants in round.
type ConfigFn func(round int) fl.Config

// EvaluateFn evaluates params on data held by the coordinator. Returning a nil
// Evaluation and nil error means no evaluation was performed.
type EvaluateFn func(ctx context.Context, round int, params fl.Parameters) (*fl.Evaluation, error)

type Config struct {
	FractionFit      float64
	FractionEvaluate float64
	MinFit           int
	MinEvaluate      int
	MinAvailable     int

	// Aggregator names the fit aggregation algorithm, see fl.NewAggregator.
	Aggregator     string
	AcceptFailures bool

	InitialParameters *fl.Parameters
	Selector          scheduler.Selector

	FitMetricsAggregation      fl.MetricsAggregationFn
	EvaluateMetricsAggregation fl.MetricsAggregationFn
	OnFitConfig                ConfigFn
	OnEvaluateConfig           ConfigFn
	EvaluateFn                 EvaluateFn
}

// DefaultConfig selects every participant in both phases, requires at least
// two of them, and tolerates participant failures.
func DefaultConfig() Config {
	return Config{
		FractionFit:      1.0,
		FractionEvaluate: 1.0,
		MinFit:           2,
		MinEvaluate:      2,
		MinAvailable:     2,
		Aggregator:       fl.AlgorithmFedAvg,
		AcceptFailures:   true,
	}
}

// FedAvg is the sample-weighted averaging strategy. The aggregation algorithm
// is configurable so robust variants share the same selection and metrics
// handling.
type FedAvg struct {
	cfg        Config
	aggregator fl.Aggregator
	selector   scheduler.Selector
}

func NewFedAvg(cfg Config) (*FedAvg, error) {
	for _, f := range []float64{cfg.FractionFit, cfg.FractionEvaluate} {
		if f < 0 || f > 1 {
			return nil, fmt.Errorf("%w: %v", scheduler.ErrInvalidFraction, f)
		}
	}
	if cfg.MinFit < 0 || cfg.MinEvaluate < 0 || cfg.MinAvailable < 0 {
		return nil, errors.New("participant minimums must not be negative")
	}
	if cfg.InitialParameters != nil {
		if err := cfg.InitialParameters.Validate(); err != nil {
			return nil, fmt.Errorf("invalid initial parameters: %w", err)
		}
	}

	agg, err := fl.NewAggregator(cfg.Aggregator)
	if err != nil {
		return nil, err
	}

	sel := cfg.Selector
	if sel == nil {
		sel = scheduler.NewUnseeded()
	}

	return &FedAvg{
		cfg:        cfg,
		aggregator: agg,
		selector:   sel,
	}, nil
}

func (s *FedAvg) InitializeParameters(context.Context) (fl.Parameters, bool) {
	if s.cfg.InitialParameters == nil {
		return fl.Parameters{}, false
	}

	return s.cfg.InitialParameters.Clone(), true
}

func (s *FedAvg) CheckAvailable(n int) error {
	return scheduler.Check(n, s.fitRequest())
}

func (s *FedAvg) ConfigureFit(round int, _ fl.Parameters, available []string) (Plan, error) {
	ids, err := s.selector.Select(available, s.fitRequest())
	if err != nil {
		return Plan{}, err
	}

	return Plan{Participants: ids, Config: configFor(s.cfg.OnFitConfig, round)}, nil
}

func (s *FedAvg) ConfigureEvaluate(round int, _ fl.Parameters, available []string) (Plan, error) {
	ids, err := s.selector.Select(available, scheduler.Request{
		Fraction:     s.cfg.FractionEvaluate,
		MinRequired:  s.cfg.MinEvaluate,
		MinAvailable: s.cfg.MinAvailable,
	})
	if err != nil {
		return Plan{}, err
	}

	return Plan{Participants: ids, Config: configFor(s.cfg.OnEvaluateConfig, round)}, nil
}

func (s *FedAvg) AggregateFit(round int, results []fl.FitResult, failures []fl.Failure) (fl.Parameters, fl.Metrics, error) {
	if len(failures) > 0 && !s.cfg.AcceptFailures {
		return fl.Parameters{}, nil, fmt.Errorf("round %d: %w: %w", round, ErrFailuresNotAccepted, joinFailures(failures))
	}
	if len(results) == 0 {
		if len(failures) > 0 {
			return fl.Parameters{}, nil, fmt.Errorf("round %d: %w: %w", round, fl.ErrAggregationEmpty, joinFailures(failures))
		}

		return fl.Parameters{}, nil, fmt.Errorf("round %d: %w: no participant selected", round, fl.ErrAggregationEmpty)
	}

	params, err := s.aggregator.Aggregate(fl.UpdatesFromResults(results))
	if err != nil {
		return fl.Parameters{}, nil, fmt.Errorf("round %d: %w", round, err)
	}

	metrics := fl.Metrics{}
	if s.cfg.FitMetricsAggregation != nil {
		metrics = s.cfg.FitMetricsAggregation(fl.FitMetrics(results))
	}

	return params, metrics, nil
}

func (s *FedAvg) AggregateEvaluate(round int, results []fl.EvaluateResult, failures []fl.Failure) (*fl.Evaluation, error) {
	if len(results) == 0 {
		return nil, nil
	}
	if len(failures) > 0 && !s.cfg.AcceptFailures {
		return nil, nil
	}

	loss, total, err := fl.WeightedLoss(results)
	if err != nil {
		return nil, fmt.Errorf("round %d: %w", round, err)
	}

	metrics := fl.Metrics{}
	if s.cfg.EvaluateMetricsAggregation != nil {
		metrics = s.cfg.EvaluateMetricsAggregation(fl.EvaluateMetrics(results))
	}

	return &fl.Evaluation{
		Loss:        loss,
		Metrics:     metrics,
		NumExamples: total,
		NumResults:  len(results),
	}, nil
}

func (s *FedAvg) Evaluate(ctx context.Context, round int, params fl.Parameters) (*fl.Evaluation, error) {
	if s.cfg.EvaluateFn == nil {
		return nil, nil
	}

	return s.cfg.EvaluateFn(ctx, round, params.Clone())
}

func (s *FedAvg) fitRequest() scheduler.Request {
	return scheduler.Request{
		Fraction:     s.cfg.FractionFit,
		MinRequired:  s.cfg.MinFit,
		MinAvailable: s.cfg.MinAvailable,
	}
}

func configFor(fn ConfigFn, round int) fl.Config {
	if fn == nil {
		return fl.Config{}
	}
	cfg := fn(round)
	if cfg == nil {
		return fl.Config{}
	}

	return cfg.Clone()
}

func joinFailures(failures []fl.Failure) error {
	errs := make([]error, len(failures))
	for i, f := range failures {
		errs[i] = f
	}

	return errors.Join(errs...)
}
