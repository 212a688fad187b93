package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/cohort/participant"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/pool"
	"github.com/absmach/cohort/pkg/strategy"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	ErrAlreadyStarted = errors.New("coordinator run has already started")
	ErrInvalidConfig  = errors.New("invalid coordinator configuration")
)

type Config struct {
	NumRounds int
	// Concurrency is the number of participant handles allowed to exist at
	// the same time.
	Concurrency int
	// RoundTimeout bounds each phase of a round. Calls still running at the
	// deadline are recorded as failures. Zero disables it.
	RoundTimeout time.Duration
}

// Result is the outcome of a run. It is returned even when the run fails, in
// which case Parameters are those of the last completed round.
type Result struct {
	RunID      string        `json:"run_id"`
	Parameters fl.Parameters `json:"parameters"`
	History    fl.History    `json:"history"`
}

// Status is a snapshot of the coordinator's progress.
type Status struct {
	RunID     string `json:"run_id"`
	State     State  `json:"state"`
	Round     int    `json:"round"`
	NumRounds int    `json:"num_rounds"`
}

// Service is the read-only view of a coordinator, safe to use while it runs.
type Service interface {
	Status() Status
	Parameters() (fl.Parameters, bool)
	History() fl.History
}

type Option func(*Coordinator)

func WithObservers(observers ...Observer) Option {
	return func(c *Coordinator) {
		c.observers = append(c.observers, observers...)
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Coordinator) {
		c.tracer = tracer
	}
}

func WithRunID(id string) Option {
	return func(c *Coordinator) {
		c.runID = id
	}
}

var _ Service = (*Coordinator)(nil)

// Coordinator drives a federated run: it owns the global parameters and the
// history, and is the only writer of both.
type Coordinator struct {
	cfg       Config
	registry  participant.Registry
	strategy  strategy.Strategy
	pool      *pool.Pool
	observers []Observer
	tracer    trace.Tracer
	logger    *slog.Logger
	runID     string

	started atomic.Bool
	state   atomic.Int32
	round   atomic.Int64
	params  atomic.Pointer[fl.Parameters]

	mu      sync.RWMutex
	history fl.History
}

func New(cfg Config, registry participant.Registry, factory participant.Factory, strat strategy.Strategy, logger *slog.Logger, opts ...Option) (*Coordinator, error) {
	if cfg.NumRounds <= 0 {
		return nil, fmt.Errorf("%w: number of rounds must be positive, got %d", ErrInvalidConfig, cfg.NumRounds)
	}
	if cfg.RoundTimeout < 0 {
		return nil, fmt.Errorf("%w: negative round timeout", ErrInvalidConfig)
	}

	c := &Coordinator{
		cfg:      cfg,
		registry: registry,
		strategy: strat,
		pool:     pool.New(factory, cfg.Concurrency, logger),
		tracer:   noop.NewTracerProvider().Tracer("coordinator"),
		logger:   logger,
		history:  fl.History{Rounds: []fl.RoundRecord{}},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.runID == "" {
		c.runID = uuid.NewString()
	}

	return c, nil
}

func (c *Coordinator) RunID() string {
	return c.runID
}

func (c *Coordinator) Status() Status {
	return Status{
		RunID:     c.runID,
		State:     State(c.state.Load()),
		Round:     int(c.round.Load()),
		NumRounds: c.cfg.NumRounds,
	}
}

// Parameters returns a copy of the current global parameters. The second
// value is false before initialization completes.
func (c *Coordinator) Parameters() (fl.Parameters, bool) {
	p := c.params.Load()
	if p == nil {
		return fl.Parameters{}, false
	}

	return p.Clone(), true
}

func (c *Coordinator) History() fl.History {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.history.Clone()
}

// Run executes the configured number of rounds. A coordinator runs once.
func (c *Coordinator) Run(ctx context.Context) (res Result, err error) {
	if !c.started.CompareAndSwap(false, true) {
		return Result{}, ErrAlreadyStarted
	}

	ctx, span := c.tracer.Start(ctx, "run", trace.WithAttributes(
		attribute.String("run_id", c.runID),
		attribute.Int("num_rounds", c.cfg.NumRounds),
	))
	defer func(begin time.Time) {
		args := []any{
			slog.String("run_id", c.runID),
			slog.String("duration", time.Since(begin).String()),
			slog.Int("rounds", len(res.History.Rounds)),
		}
		if err != nil {
			c.setState(Failed)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			args = append(args, slog.Any("error", err))
			c.logger.Error("Run failed", args...)
		} else {
			c.setState(Finished)
			c.logger.Info("Run finished", args...)
		}
		span.End()
	}(time.Now())

	c.setState(Initializing)
	params, err := c.initialize(ctx)
	if err != nil {
		return c.result(), err
	}

	for round := 1; round <= c.cfg.NumRounds; round++ {
		if err := ctx.Err(); err != nil {
			return c.result(), err
		}

		rec, next, err := c.runRound(ctx, round, params)
		if err != nil {
			return c.result(), err
		}

		c.setState(Aggregating)
		c.mu.Lock()
		c.history.Rounds = append(c.history.Rounds, rec)
		c.mu.Unlock()
		c.params.Store(&next)
		params = next

		c.notify(ctx, rec, next)
		c.setState(RoundDone)
	}

	return c.result(), nil
}

func (c *Coordinator) initialize(ctx context.Context) (fl.Parameters, error) {
	records, err := c.registry.List(ctx)
	if err != nil {
		return fl.Parameters{}, fmt.Errorf("failed to list participants: %w", err)
	}
	if err := c.strategy.CheckAvailable(len(records)); err != nil {
		return fl.Parameters{}, err
	}
	if len(records) == 0 {
		return fl.Parameters{}, fmt.Errorf("%w: registry is empty", fl.ErrInsufficientParticipants)
	}

	params, ok := c.strategy.InitializeParameters(ctx)
	if ok {
		c.logger.Info("Using initial parameters from strategy", slog.String("run_id", c.runID))
	} else {
		// Registry records are sorted, so the choice is stable across runs.
		id := records[0].ID
		params, err = c.pool.GetParameters(ctx, id, stamp(nil, 0))
		if err != nil {
			return fl.Parameters{}, fmt.Errorf("failed to obtain initial parameters: %w", err)
		}
		c.logger.Info("Using initial parameters from participant", slog.String("run_id", c.runID), slog.String("participant_id", id))
	}
	if params.IsEmpty() {
		return fl.Parameters{}, fmt.Errorf("%w: initial parameters have no tensors", fl.ErrInvalidTensor)
	}
	if err := params.Validate(); err != nil {
		return fl.Parameters{}, err
	}
	c.params.Store(&params)

	initial := c.evaluateCentralized(ctx, 0, params)
	c.mu.Lock()
	c.history.Initial = initial
	c.mu.Unlock()

	return params, nil
}

// runRound executes the fit and evaluate phases of round. The returned
// parameters are not yet published; the caller replaces the global state only
// when the whole round succeeded.
func (c *Coordinator) runRound(ctx context.Context, round int, params fl.Parameters) (rec fl.RoundRecord, next fl.Parameters, err error) {
	ctx, span := c.tracer.Start(ctx, "round", trace.WithAttributes(
		attribute.String("run_id", c.runID),
		attribute.Int("round", round),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	c.round.Store(int64(round))
	c.setState(RoundFit)
	started := time.Now()

	records, err := c.registry.List(ctx)
	if err != nil {
		return rec, next, fmt.Errorf("failed to list participants: %w", err)
	}
	available := participant.IDs(records)

	plan, err := c.strategy.ConfigureFit(round, params, available)
	if err != nil {
		return rec, next, err
	}

	fitCtx, cancel := c.phaseContext(ctx)
	results, failures := c.pool.Fit(fitCtx, plan.Participants, params, stamp(plan.Config, round))
	cancel()
	if err := ctx.Err(); err != nil {
		return rec, next, err
	}
	c.logFailures(round, "fit", failures)

	next, fitMetrics, err := c.strategy.AggregateFit(round, results, failures)
	if err != nil {
		return rec, next, err
	}

	rec = fl.RoundRecord{
		Round:       round,
		StartedAt:   started,
		FitDuration: time.Since(started),
		FitSelected: len(plan.Participants),
		FitResults:  len(results),
		FitFailures: len(failures),
		FitMetrics:  fitMetrics,
	}

	c.setState(RoundEvaluate)
	evalPlan, err := c.strategy.ConfigureEvaluate(round, next, available)
	if err != nil {
		return rec, next, err
	}
	rec.EvaluateSelected = len(evalPlan.Participants)

	if len(evalPlan.Participants) > 0 {
		evalCtx, cancel := c.phaseContext(ctx)
		evalResults, evalFailures := c.pool.Evaluate(evalCtx, evalPlan.Participants, next, stamp(evalPlan.Config, round))
		cancel()
		if err := ctx.Err(); err != nil {
			return rec, next, err
		}
		c.logFailures(round, "evaluate", evalFailures)
		rec.EvaluateFailures = len(evalFailures)

		rec.Distributed, err = c.strategy.AggregateEvaluate(round, evalResults, evalFailures)
		if err != nil {
			c.logger.Warn("Failed to aggregate evaluation", slog.String("run_id", c.runID), slog.Int("round", round), slog.Any("error", err))
			rec.Distributed = nil
		}
	}

	rec.Centralized = c.evaluateCentralized(ctx, round, next)

	args := []any{
		slog.String("run_id", c.runID),
		slog.Group("round",
			slog.Int("number", round),
			slog.String("fit_duration", rec.FitDuration.String()),
			slog.Int("fit_results", rec.FitResults),
			slog.Int("fit_failures", rec.FitFailures),
			slog.Int("evaluate_selected", rec.EvaluateSelected),
			slog.Int("evaluate_failures", rec.EvaluateFailures),
		),
	}
	if rec.Distributed != nil {
		args = append(args, slog.Float64("distributed_loss", rec.Distributed.Loss))
	}
	if rec.Centralized != nil {
		args = append(args, slog.Float64("centralized_loss", rec.Centralized.Loss))
	}
	c.logger.Info("Round completed", args...)

	return rec, next, nil
}

func (c *Coordinator) evaluateCentralized(ctx context.Context, round int, params fl.Parameters) *fl.Evaluation {
	eval, err := c.strategy.Evaluate(ctx, round, params)
	if err != nil {
		c.logger.Warn("Centralized evaluation failed", slog.String("run_id", c.runID), slog.Int("round", round), slog.Any("error", err))

		return nil
	}

	return eval
}

func (c *Coordinator) notify(ctx context.Context, rec fl.RoundRecord, params fl.Parameters) {
	for _, o := range c.observers {
		if err := o.RoundCompleted(ctx, c.runID, rec, params); err != nil {
			c.logger.Warn("Round observer failed", slog.String("run_id", c.runID), slog.Int("round", rec.Round), slog.Any("error", err))
		}
	}
}

func (c *Coordinator) logFailures(round int, phase string, failures []fl.Failure) {
	for _, f := range failures {
		c.logger.Warn("Participant failed",
			slog.String("run_id", c.runID),
			slog.Int("round", round),
			slog.String("phase", phase),
			slog.String("participant_id", f.ParticipantID),
			slog.Any("error", f.Err),
		)
	}
}

func (c *Coordinator) phaseContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.RoundTimeout > 0 {
		return context.WithTimeout(ctx, c.cfg.RoundTimeout)
	}

	return context.WithCancel(ctx)
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
}

func (c *Coordinator) result() Result {
	params, _ := c.Parameters()

	return Result{
		RunID:      c.runID,
		Parameters: params,
		History:    c.History(),
	}
}

// stamp returns a copy of cfg carrying the round number.
func stamp(cfg fl.Config, round int) fl.Config {
	out := cfg.Clone()
	out["round"] = round

	return out
}
