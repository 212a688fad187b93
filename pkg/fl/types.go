package fl

import (
	"fmt"
	"time"
)

// Config is passed opaquely from the coordinator to participants.
type Config map[string]any

// Clone returns a shallow copy of c so callers can stamp per-call values.
func (c Config) Clone() Config {
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = v
	}

	return out
}

type Metrics map[string]float64

type FitRes struct {
	Parameters  Parameters `json:"parameters"`
	NumExamples int64      `json:"num_examples"`
	Metrics     Metrics    `json:"metrics,omitempty"`
}

type EvaluateRes struct {
	Loss        float64 `json:"loss"`
	NumExamples int64   `json:"num_examples"`
	Metrics     Metrics `json:"metrics,omitempty"`
}

type FitResult struct {
	ParticipantID string `json:"participant_id"`
	FitRes
}

type EvaluateResult struct {
	ParticipantID string `json:"participant_id"`
	EvaluateRes
}

// Failure records a participant whose fit or evaluate call did not produce a
// usable result. It matches ErrParticipantFailure as well as its cause.
type Failure struct {
	ParticipantID string
	Err           error
}

func (f Failure) Error() string {
	return fmt.Sprintf("participant %s: %v", f.ParticipantID, f.Err)
}

func (f Failure) Unwrap() []error {
	return []error{ErrParticipantFailure, f.Err}
}

// Evaluation is an aggregated loss with optional metrics.
type Evaluation struct {
	Loss        float64 `json:"loss"`
	Metrics     Metrics `json:"metrics,omitempty"`
	NumExamples int64   `json:"num_examples,omitempty"`
	NumResults  int     `json:"num_results,omitempty"`
}

// RoundRecord summarises one completed round. Distributed is nil when no
// participant produced an evaluation result, Centralized is nil when no
// centralized evaluation is configured.
type RoundRecord struct {
	Round            int           `json:"round"`
	StartedAt        time.Time     `json:"started_at"`
	FitDuration      time.Duration `json:"fit_duration"`
	FitSelected      int           `json:"fit_selected"`
	FitResults       int           `json:"fit_results"`
	FitFailures      int           `json:"fit_failures"`
	FitMetrics       Metrics       `json:"fit_metrics,omitempty"`
	EvaluateSelected int           `json:"evaluate_selected"`
	EvaluateFailures int           `json:"evaluate_failures"`
	Distributed      *Evaluation   `json:"distributed,omitempty"`
	Centralized      *Evaluation   `json:"centralized,omitempty"`
}

// History is the append-only record of a run.
type History struct {
	Initial *Evaluation   `json:"initial,omitempty"`
	Rounds  []RoundRecord `json:"rounds"`
}

func (h History) Len() int {
	return len(h.Rounds)
}

func (h History) Round(n int) (RoundRecord, bool) {
	for _, r := range h.Rounds {
		if r.Round == n {
			return r, true
		}
	}

	return RoundRecord{}, false
}

// DistributedLosses returns the distributed loss of each round, skipping rounds
// without an evaluation.
func (h History) DistributedLosses() map[int]float64 {
	losses := make(map[int]float64, len(h.Rounds))
	for _, r := range h.Rounds {
		if r.Distributed != nil {
			losses[r.Round] = r.Distributed.Loss
		}
	}

	return losses
}

// Clone returns a copy that shares no slices with h.
func (h History) Clone() History {
	out := History{Initial: h.Initial}
	if h.Rounds != nil {
		out.Rounds = make([]RoundRecord, len(h.Rounds))
		copy(out.Rounds, h.Rounds)
	}

	return out
}

// Checkpoint is the global state of a run after a completed round.
type Checkpoint struct {
	RunID      string     `json:"run_id"     cbor:"run_id"`
	Round      int        `json:"round"      cbor:"round"`
	Parameters Parameters `json:"parameters" cbor:"parameters"`
	SavedAt    time.Time  `json:"saved_at"   cbor:"saved_at"`
}
