package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/fl"
)

const (
	separator        = ":"
	runPrefix        = "run" + separator
	roundPrefix      = "round" + separator
	checkpointPrefix = "ckpt" + separator
)

// ErrInvalidRunID is returned for run IDs containing the key separator, whose
// keys would fall under another run's prefix.
var ErrInvalidRunID = errors.New("run ID contains the key separator")

// Repository stores round records as JSON and checkpoints as CBOR. Round keys
// are zero padded so iteration order is round order.
type Repository struct {
	db *Database
}

func NewRepository(db *Database) *Repository {
	return &Repository{db: db}
}

func (r *Repository) SaveRound(_ context.Context, runID string, rec fl.RoundRecord) error {
	if err := checkRunID(runID); err != nil {
		return err
	}
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	return r.db.set(
		[2][]byte{[]byte(runPrefix + runID), {}},
		[2][]byte{roundKey(runID, rec.Round), val},
	)
}

func (r *Repository) GetRound(_ context.Context, runID string, round int) (fl.RoundRecord, error) {
	if err := checkRunID(runID); err != nil {
		return fl.RoundRecord{}, err
	}
	val, err := r.db.get(roundKey(runID, round))
	if err != nil {
		return fl.RoundRecord{}, err
	}

	var rec fl.RoundRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return fl.RoundRecord{}, fmt.Errorf("unmarshal error: %w", err)
	}

	return rec, nil
}

func (r *Repository) ListRounds(_ context.Context, runID string, offset, limit uint64) ([]fl.RoundRecord, uint64, error) {
	if err := checkRunID(runID); err != nil {
		return nil, 0, err
	}
	prefix := []byte(roundPrefix + runID + separator)
	total, err := r.db.countWithPrefix(prefix)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return nil, 0, pkgerrors.ErrNotFound
	}

	values, err := r.db.listWithPrefix(prefix, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	records := make([]fl.RoundRecord, len(values))
	for i, val := range values {
		if err := json.Unmarshal(val, &records[i]); err != nil {
			return nil, 0, fmt.Errorf("unmarshal error: %w", err)
		}
	}

	return records, total, nil
}

func (r *Repository) ListRuns(context.Context) ([]string, error) {
	keys, err := r.db.keysWithPrefix([]byte(runPrefix))
	if err != nil {
		return nil, err
	}

	runs := make([]string, len(keys))
	for i, k := range keys {
		runs[i] = strings.TrimPrefix(string(k), runPrefix)
	}

	return runs, nil
}

func (r *Repository) SaveCheckpoint(_ context.Context, c fl.Checkpoint) error {
	if err := checkRunID(c.RunID); err != nil {
		return err
	}
	val, err := fl.MarshalCheckpoint(c)
	if err != nil {
		return err
	}

	return r.db.set(
		[2][]byte{[]byte(runPrefix + c.RunID), {}},
		[2][]byte{[]byte(checkpointPrefix + c.RunID), val},
	)
}

func (r *Repository) LoadCheckpoint(_ context.Context, runID string) (fl.Checkpoint, error) {
	if err := checkRunID(runID); err != nil {
		return fl.Checkpoint{}, err
	}
	val, err := r.db.get([]byte(checkpointPrefix + runID))
	if err != nil {
		return fl.Checkpoint{}, err
	}

	return fl.UnmarshalCheckpoint(val)
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func checkRunID(runID string) error {
	switch {
	case runID == "":
		return pkgerrors.ErrEmptyKey
	case strings.Contains(runID, separator):
		return fmt.Errorf("%w: %q", ErrInvalidRunID, runID)
	default:
		return nil
	}
}

func roundKey(runID string, round int) []byte {
	return fmt.Appendf(nil, "%s%s%s%010d", roundPrefix, runID, separator, round)
}
