package storage

import (
	"context"
	"slices"
	"sync"

	"github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/fl"
)

var _ Repository = (*inMemoryRepository)(nil)

type inMemoryRepository struct {
	sync.RWMutex

	rounds      map[string]map[int]fl.RoundRecord
	checkpoints map[string]fl.Checkpoint
}

func NewInMemoryRepository() Repository {
	return &inMemoryRepository{
		rounds:      make(map[string]map[int]fl.RoundRecord),
		checkpoints: make(map[string]fl.Checkpoint),
	}
}

func (r *inMemoryRepository) SaveRound(_ context.Context, runID string, rec fl.RoundRecord) error {
	if runID == "" {
		return errors.ErrEmptyKey
	}

	r.Lock()
	defer r.Unlock()

	if _, ok := r.rounds[runID]; !ok {
		r.rounds[runID] = make(map[int]fl.RoundRecord)
	}
	r.rounds[runID][rec.Round] = rec

	return nil
}

func (r *inMemoryRepository) GetRound(_ context.Context, runID string, round int) (fl.RoundRecord, error) {
	if runID == "" {
		return fl.RoundRecord{}, errors.ErrEmptyKey
	}

	r.RLock()
	defer r.RUnlock()

	rec, ok := r.rounds[runID][round]
	if !ok {
		return fl.RoundRecord{}, errors.ErrNotFound
	}

	return rec, nil
}

func (r *inMemoryRepository) ListRounds(_ context.Context, runID string, offset, limit uint64) ([]fl.RoundRecord, uint64, error) {
	r.RLock()
	defer r.RUnlock()

	run, ok := r.rounds[runID]
	if !ok {
		return nil, 0, errors.ErrNotFound
	}

	keys := make([]int, 0, len(run))
	for k := range run {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	total := uint64(len(keys))
	if offset >= total {
		return []fl.RoundRecord{}, total, nil
	}
	end := min(offset+limit, total)

	result := make([]fl.RoundRecord, 0, end-offset)
	for _, k := range keys[offset:end] {
		result = append(result, run[k])
	}

	return result, total, nil
}

func (r *inMemoryRepository) ListRuns(context.Context) ([]string, error) {
	r.RLock()
	defer r.RUnlock()

	runs := make([]string, 0, len(r.rounds))
	for id := range r.rounds {
		runs = append(runs, id)
	}
	slices.Sort(runs)

	return runs, nil
}

func (r *inMemoryRepository) SaveCheckpoint(_ context.Context, c fl.Checkpoint) error {
	if c.RunID == "" {
		return errors.ErrEmptyKey
	}

	r.Lock()
	defer r.Unlock()

	c.Parameters = c.Parameters.Clone()
	r.checkpoints[c.RunID] = c

	return nil
}

func (r *inMemoryRepository) LoadCheckpoint(_ context.Context, runID string) (fl.Checkpoint, error) {
	r.RLock()
	defer r.RUnlock()

	c, ok := r.checkpoints[runID]
	if !ok {
		return fl.Checkpoint{}, errors.ErrNotFound
	}
	c.Parameters = c.Parameters.Clone()

	return c, nil
}

func (r *inMemoryRepository) Close() error {
	return nil
}
