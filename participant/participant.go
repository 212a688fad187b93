package participant

import (
	"context"

	"github.com/absmach/cohort/pkg/fl"
)

// Client is the training collaborator bound to a single participant. A Client
// is created for exactly one call and closed right after it; implementations
// must not rely on state surviving between calls.
type Client interface {
	// GetParameters returns the participant's local initial parameters. It is
	// only used to bootstrap a run that has no initial parameters.
	GetParameters(ctx context.Context, cfg fl.Config) (fl.Parameters, error)
	Fit(ctx context.Context, params fl.Parameters, cfg fl.Config) (fl.FitRes, error)
	Evaluate(ctx context.Context, params fl.Parameters, cfg fl.Config) (fl.EvaluateRes, error)
	Close() error
}

// Factory materializes the Client of a participant.
type Factory interface {
	Create(ctx context.Context, id string) (Client, error)
}

type FactoryFunc func(ctx context.Context, id string) (Client, error)

func (f FactoryFunc) Create(ctx context.Context, id string) (Client, error) {
	return f(ctx, id)
}
