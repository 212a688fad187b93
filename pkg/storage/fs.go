package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/fl"
)

const checkpointFile = "checkpoint.cbor"

var _ Repository = (*FileRepository)(nil)

// FileRepository lays runs out as <root>/<run id>/round_<n>.json with the
// latest checkpoint next to them.
type FileRepository struct {
	root string
	mu   sync.RWMutex
}

func NewFileRepository(root string) (*FileRepository, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &FileRepository{root: root}, nil
}

func (fr *FileRepository) SaveRound(_ context.Context, runID string, rec fl.RoundRecord) error {
	dir, err := fr.runDir(runID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal round record: %w", err)
	}

	fr.mu.Lock()
	defer fr.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}

	return writeFile(filepath.Join(dir, roundFile(rec.Round)), data)
}

func (fr *FileRepository) GetRound(_ context.Context, runID string, round int) (fl.RoundRecord, error) {
	dir, err := fr.runDir(runID)
	if err != nil {
		return fl.RoundRecord{}, err
	}

	fr.mu.RLock()
	defer fr.mu.RUnlock()

	return readRound(filepath.Join(dir, roundFile(round)))
}

func (fr *FileRepository) ListRounds(_ context.Context, runID string, offset, limit uint64) ([]fl.RoundRecord, uint64, error) {
	dir, err := fr.runDir(runID)
	if err != nil {
		return nil, 0, err
	}

	fr.mu.RLock()
	defer fr.mu.RUnlock()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, errors.ErrNotFound
		}

		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	var rounds []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var round int
		if _, err := fmt.Sscanf(entry.Name(), "round_%d.json", &round); err == nil {
			rounds = append(rounds, round)
		}
	}
	slices.Sort(rounds)

	total := uint64(len(rounds))
	if offset >= total {
		return []fl.RoundRecord{}, total, nil
	}
	end := min(offset+limit, total)

	records := make([]fl.RoundRecord, 0, end-offset)
	for _, round := range rounds[offset:end] {
		rec, err := readRound(filepath.Join(dir, roundFile(round)))
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}

	return records, total, nil
}

func (fr *FileRepository) ListRuns(context.Context) ([]string, error) {
	fr.mu.RLock()
	defer fr.mu.RUnlock()

	entries, err := os.ReadDir(fr.root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	runs := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			runs = append(runs, entry.Name())
		}
	}

	return runs, nil
}

func (fr *FileRepository) SaveCheckpoint(_ context.Context, c fl.Checkpoint) error {
	dir, err := fr.runDir(c.RunID)
	if err != nil {
		return err
	}

	data, err := fl.MarshalCheckpoint(c)
	if err != nil {
		return err
	}

	fr.mu.Lock()
	defer fr.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}

	return writeFile(filepath.Join(dir, checkpointFile), data)
}

func (fr *FileRepository) LoadCheckpoint(_ context.Context, runID string) (fl.Checkpoint, error) {
	dir, err := fr.runDir(runID)
	if err != nil {
		return fl.Checkpoint{}, err
	}

	fr.mu.RLock()
	defer fr.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(dir, checkpointFile))
	if err != nil {
		if os.IsNotExist(err) {
			return fl.Checkpoint{}, errors.ErrNotFound
		}

		return fl.Checkpoint{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return fl.UnmarshalCheckpoint(data)
}

func (fr *FileRepository) Close() error {
	return nil
}

func (fr *FileRepository) runDir(runID string) (string, error) {
	if err := ValidateRunID(runID); err != nil {
		return "", err
	}

	return filepath.Join(fr.root, runID), nil
}

// ValidateRunID accepts IDs made of letters, digits, '-' and '_', which every
// backend can store.
func ValidateRunID(runID string) error {
	if id := sanitizeID(runID); id == "" || id != runID {
		return fmt.Errorf("%w: %q", ErrInvalidID, runID)
	}

	return nil
}

func roundFile(round int) string {
	return fmt.Sprintf("round_%06d.json", round)
}

func readRound(path string) (fl.RoundRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fl.RoundRecord{}, errors.ErrNotFound
		}

		return fl.RoundRecord{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	var rec fl.RoundRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fl.RoundRecord{}, fmt.Errorf("failed to unmarshal round record: %w", err)
	}

	return rec, nil
}

// writeFile replaces path atomically so readers never see a partial file.
func writeFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}

	return nil
}

// sanitizeID keeps only characters that are safe in a file name, so an ID
// can never escape the storage root.
func sanitizeID(id string) string {
	var b strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}

	return b.String()
}
