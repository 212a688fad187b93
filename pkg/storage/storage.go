package storage

import (
	"context"

	"github.com/absmach/cohort/pkg/fl"
)

// RoundRepository stores the history of runs, one record per completed round.
type RoundRepository interface {
	SaveRound(ctx context.Context, runID string, rec fl.RoundRecord) error
	GetRound(ctx context.Context, runID string, round int) (fl.RoundRecord, error)
	// ListRounds returns records in round order.
	ListRounds(ctx context.Context, runID string, offset, limit uint64) ([]fl.RoundRecord, uint64, error)
	ListRuns(ctx context.Context) ([]string, error)
}

// CheckpointRepository keeps the latest global parameters of each run.
type CheckpointRepository interface {
	SaveCheckpoint(ctx context.Context, c fl.Checkpoint) error
	LoadCheckpoint(ctx context.Context, runID string) (fl.Checkpoint, error)
}

type Repository interface {
	RoundRepository
	CheckpointRepository
	Close() error
}
