package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

var (
	ErrDBConnection = errors.New("database connection error")
	ErrDBQuery      = errors.New("database query error")
	ErrDBScan       = errors.New("database scan error")
	ErrCreate       = errors.New("create error")
)

const memoryPath = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS rounds (
	run_id TEXT NOT NULL,
	round INTEGER NOT NULL,
	record TEXT NOT NULL,
	PRIMARY KEY (run_id, round),
	FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS checkpoints (
	run_id TEXT PRIMARY KEY,
	round INTEGER NOT NULL,
	data BLOB NOT NULL,
	saved_at TIMESTAMP NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);
`

type Database struct {
	*sql.DB
}

// NewDatabase opens the database at path and creates its tables. The path
// ":memory:" keeps everything in memory.
func NewDatabase(path string) (*Database, error) {
	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	// A single connection keeps ":memory:" databases from splitting into
	// one database per connection and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	database := &Database{DB: db}
	if err := database.Migrate(); err != nil {
		_ = db.Close()

		return nil, err
	}

	return database, nil
}

func (db *Database) Migrate() error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("database migration error: %w", err)
	}

	return nil
}
