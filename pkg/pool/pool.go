package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/absmach/cohort/participant"
	"github.com/absmach/cohort/pkg/fl"
	"golang.org/x/sync/semaphore"
)

// DefaultSize is the number of participant handles allowed to coexist when no
// budget is configured.
const DefaultSize = 4

var ErrPanic = errors.New("participant panicked")

// Outcome is the result of running one participant call. Exactly one of Value
// and Err is meaningful.
type Outcome[T any] struct {
	ParticipantID string
	Value         T
	Err           error
}

// Pool runs participant calls with at most Size handles alive at a time,
// counting calls abandoned at a deadline until they return. Participants
// waiting for a slot are admitted in the order they were given.
type Pool struct {
	factory participant.Factory
	size    int
	sem     *semaphore.Weighted
	logger  *slog.Logger
}

func New(factory participant.Factory, size int, logger *slog.Logger) *Pool {
	if size <= 0 {
		size = DefaultSize
	}

	return &Pool{
		factory: factory,
		size:    size,
		sem:     semaphore.NewWeighted(int64(size)),
		logger:  logger,
	}
}

func (p *Pool) Size() int {
	return p.size
}

// Run executes call once for every id and waits for all of them, or until ctx
// is done. A failing or panicking call is reported in its Outcome and never
// stops the others. Once ctx is done Run stops waiting: calls not yet admitted
// or still running fail with the context error, and a call that succeeds after
// that point is discarded. Abandoned calls keep their slot and close their
// handle when they return.
func Run[T any](ctx context.Context, p *Pool, ids []string, call func(ctx context.Context, c participant.Client) (T, error)) []Outcome[T] {
	outcomes := make([]Outcome[T], len(ids))
	finished := make([]bool, len(ids))
	// Buffered so abandoned calls never block on send.
	done := make(chan completion[T], len(ids))

	started := 0
	for i, id := range ids {
		outcomes[i].ParticipantID = id
		if err := p.sem.Acquire(ctx, 1); err != nil {
			break
		}
		started++

		go func() {
			defer p.sem.Release(1)
			v, err := execute(ctx, p, id, call)
			if err == nil && ctx.Err() != nil {
				err = ctx.Err()
			}
			done <- completion[T]{index: i, value: v, err: err}
		}()
	}

	record := func(c completion[T]) {
		outcomes[c.index].Value, outcomes[c.index].Err = c.value, c.err
		finished[c.index] = true
	}

wait:
	for pending := started; pending > 0; pending-- {
		select {
		case c := <-done:
			record(c)
		case <-ctx.Done():
			break wait
		}
	}

	if err := ctx.Err(); err != nil {
		for len(done) > 0 {
			record(<-done)
		}
		for i := range outcomes {
			if !finished[i] {
				outcomes[i].Err = err
			}
		}
	}

	return outcomes
}

type completion[T any] struct {
	index int
	value T
	err   error
}

func execute[T any](ctx context.Context, p *Pool, id string, call func(ctx context.Context, c participant.Client) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
			p.logger.Error("participant panicked",
				slog.String("participant_id", id),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	c, err := p.factory.Create(ctx, id)
	if err != nil {
		return v, fmt.Errorf("failed to create participant: %w", err)
	}
	defer func() {
		if cerr := c.Close(); cerr != nil {
			p.logger.Warn("failed to release participant", slog.String("participant_id", id), slog.Any("error", cerr))
		}
	}()

	return call(ctx, c)
}

// Fit runs the fit phase for ids. Every participant receives its own copy of
// params. Results whose parameters do not conform to params are failures.
func (p *Pool) Fit(ctx context.Context, ids []string, params fl.Parameters, cfg fl.Config) ([]fl.FitResult, []fl.Failure) {
	outcomes := Run(ctx, p, ids, func(ctx context.Context, c participant.Client) (fl.FitRes, error) {
		res, err := c.Fit(ctx, params.Clone(), cfg.Clone())
		if err != nil {
			return res, err
		}
		if err := params.Conforms(res.Parameters); err != nil {
			return res, err
		}
		if res.NumExamples <= 0 {
			return res, fmt.Errorf("%w: got %d", fl.ErrInvalidSampleCount, res.NumExamples)
		}

		return res, nil
	})

	var (
		results  []fl.FitResult
		failures []fl.Failure
	)
	for _, o := range outcomes {
		if o.Err != nil {
			failures = append(failures, fl.Failure{ParticipantID: o.ParticipantID, Err: o.Err})

			continue
		}
		results = append(results, fl.FitResult{ParticipantID: o.ParticipantID, FitRes: o.Value})
	}

	return results, failures
}

// Evaluate runs the evaluate phase for ids.
func (p *Pool) Evaluate(ctx context.Context, ids []string, params fl.Parameters, cfg fl.Config) ([]fl.EvaluateResult, []fl.Failure) {
	outcomes := Run(ctx, p, ids, func(ctx context.Context, c participant.Client) (fl.EvaluateRes, error) {
		res, err := c.Evaluate(ctx, params.Clone(), cfg.Clone())
		if err != nil {
			return res, err
		}
		if res.NumExamples <= 0 {
			return res, fmt.Errorf("%w: got %d", fl.ErrInvalidSampleCount, res.NumExamples)
		}

		return res, nil
	})

	var (
		results  []fl.EvaluateResult
		failures []fl.Failure
	)
	for _, o := range outcomes {
		if o.Err != nil {
			failures = append(failures, fl.Failure{ParticipantID: o.ParticipantID, Err: o.Err})

			continue
		}
		results = append(results, fl.EvaluateResult{ParticipantID: o.ParticipantID, EvaluateRes: o.Value})
	}

	return results, failures
}

// GetParameters asks a single participant for its initial parameters.
func (p *Pool) GetParameters(ctx context.Context, id string, cfg fl.Config) (fl.Parameters, error) {
	out := Run(ctx, p, []string{id}, func(ctx context.Context, c participant.Client) (fl.Parameters, error) {
		params, err := c.GetParameters(ctx, cfg.Clone())
		if err != nil {
			return fl.Parameters{}, err
		}
		if err := params.Validate(); err != nil {
			return fl.Parameters{}, err
		}

		return params, nil
	})[0]
	if out.Err != nil {
		return fl.Parameters{}, fl.Failure{ParticipantID: id, Err: out.Err}
	}

	return out.Value, nil
}
