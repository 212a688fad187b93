package strategy

import (
	"context"
	"errors"

	"github.com/absmach/cohort/pkg/fl"
)

var ErrFailuresNotAccepted = errors.New("round has participant failures and failures are not accepted")

// Plan is the set of participants a phase dispatches to, with the
// configuration each of them receives.
type Plan struct {
	Participants []string
	Config       fl.Config
}

// Strategy decides who takes part in a round and how their results are
// combined. Implementations must be safe to call from a single orchestrator
// goroutine; they are not required to be safe for concurrent use.
type Strategy interface {
	// InitializeParameters returns the initial global parameters. The second
	// return value is false when the strategy has none and the orchestrator
	// has to ask a participant instead.
	InitializeParameters(ctx context.Context) (fl.Parameters, bool)

	// CheckAvailable fails with fl.ErrInsufficientParticipants when n
	// registered participants are not enough to start a run.
	CheckAvailable(n int) error

	ConfigureFit(round int, params fl.Parameters, available []string) (Plan, error)
	ConfigureEvaluate(round int, params fl.Parameters, available []string) (Plan, error)

	// AggregateFit combines the fit results of a round into new global
	// parameters. It fails with fl.ErrAggregationEmpty when there is nothing
	// to combine.
	AggregateFit(round int, results []fl.FitResult, failures []fl.Failure) (fl.Parameters, fl.Metrics, error)

	// AggregateEvaluate combines the evaluation results of a round. A nil
	// Evaluation means the round has no distributed evaluation.
	AggregateEvaluate(round int, results []fl.EvaluateResult, failures []fl.Failure) (*fl.Evaluation, error)

	// Evaluate runs the centralized evaluation of params, if any is
	// configured. Round 0 evaluates the initial parameters.
	Evaluate(ctx context.Context, round int, params fl.Parameters) (*fl.Evaluation, error)
}
