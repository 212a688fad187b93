package storage

import (
	"fmt"

	"github.com/absmach/cohort/pkg/storage/badger"
	"github.com/absmach/cohort/pkg/storage/sqlite"
)

type Config struct {
	Type       string `env:"COHORT_STORAGE_TYPE" envDefault:"memory"`
	FSPath     string `env:"COHORT_FS_PATH"      envDefault:"./data/runs"`
	BadgerPath string `env:"COHORT_BADGER_PATH"  envDefault:"./data/badger"`
	SQLitePath string `env:"COHORT_SQLITE_PATH"  envDefault:"./data/cohort.db"`
}

func NewRepository(cfg Config) (Repository, error) {
	switch cfg.Type {
	case "badger":
		db, err := badger.NewDatabase(cfg.BadgerPath)
		if err != nil {
			return nil, err
		}

		return badger.NewRepository(db), nil
	case "sqlite":
		db, err := sqlite.NewDatabase(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}

		return sqlite.NewRepository(db), nil
	case "fs":
		return NewFileRepository(cfg.FSPath)
	case "memory":
		return NewInMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
