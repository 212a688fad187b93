package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/fl"
)

// Repository keeps round records as JSON text and checkpoints as CBOR blobs.
type Repository struct {
	db *Database
}

func NewRepository(db *Database) *Repository {
	return &Repository{db: db}
}

func (r *Repository) SaveRound(ctx context.Context, runID string, rec fl.RoundRecord) error {
	if runID == "" {
		return pkgerrors.ErrEmptyKey
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	return r.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureRun(ctx, tx, runID); err != nil {
			return err
		}
		query := `INSERT INTO rounds (run_id, round, record) VALUES (?, ?, ?)
			ON CONFLICT (run_id, round) DO UPDATE SET record = excluded.record`
		if _, err := tx.ExecContext(ctx, query, runID, rec.Round, string(data)); err != nil {
			return fmt.Errorf("%w: %w", ErrCreate, err)
		}

		return nil
	})
}

func (r *Repository) GetRound(ctx context.Context, runID string, round int) (fl.RoundRecord, error) {
	if runID == "" {
		return fl.RoundRecord{}, pkgerrors.ErrEmptyKey
	}

	var data string
	err := r.db.QueryRowContext(ctx, `SELECT record FROM rounds WHERE run_id = ? AND round = ?`, runID, round).Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fl.RoundRecord{}, pkgerrors.ErrNotFound
	case err != nil:
		return fl.RoundRecord{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	var rec fl.RoundRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return fl.RoundRecord{}, fmt.Errorf("unmarshal error: %w", err)
	}

	return rec, nil
}

func (r *Repository) ListRounds(ctx context.Context, runID string, offset, limit uint64) ([]fl.RoundRecord, uint64, error) {
	var total uint64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rounds WHERE run_id = ?`, runID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}
	if total == 0 {
		return nil, 0, pkgerrors.ErrNotFound
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT record FROM rounds WHERE run_id = ? ORDER BY round LIMIT ? OFFSET ?`,
		runID, int64(min(limit, total)), int64(offset))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}
	defer rows.Close()

	records := []fl.RoundRecord{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, 0, fmt.Errorf("%w: %w", ErrDBScan, err)
		}
		var rec fl.RoundRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, 0, fmt.Errorf("unmarshal error: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return records, total, nil
}

func (r *Repository) ListRuns(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM runs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}
	defer rows.Close()

	runs := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDBScan, err)
		}
		runs = append(runs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return runs, nil
}

func (r *Repository) SaveCheckpoint(ctx context.Context, c fl.Checkpoint) error {
	if c.RunID == "" {
		return pkgerrors.ErrEmptyKey
	}
	data, err := fl.MarshalCheckpoint(c)
	if err != nil {
		return err
	}

	return r.inTx(ctx, func(tx *sql.Tx) error {
		if err := ensureRun(ctx, tx, c.RunID); err != nil {
			return err
		}
		query := `INSERT INTO checkpoints (run_id, round, data, saved_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (run_id) DO UPDATE SET round = excluded.round, data = excluded.data, saved_at = excluded.saved_at`
		if _, err := tx.ExecContext(ctx, query, c.RunID, c.Round, data, c.SavedAt.UTC()); err != nil {
			return fmt.Errorf("%w: %w", ErrCreate, err)
		}

		return nil
	})
}

func (r *Repository) LoadCheckpoint(ctx context.Context, runID string) (fl.Checkpoint, error) {
	var data []byte
	err := r.db.QueryRowContext(ctx, `SELECT data FROM checkpoints WHERE run_id = ?`, runID).Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fl.Checkpoint{}, pkgerrors.ErrNotFound
	case err != nil:
		return fl.Checkpoint{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return fl.UnmarshalCheckpoint(data)
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDBConnection, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()

		return err
	}

	return tx.Commit()
}

func ensureRun(ctx context.Context, tx *sql.Tx, runID string) error {
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO runs (id) VALUES (?)`, runID); err != nil {
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}

	return nil
}
