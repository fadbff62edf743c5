package database

import (
	"fmt"
	"path/filepath"

	"qcsync/internal/config"
	"qcsync/internal/qc"
)

// NewDatabaseFromConfig creates the queue database based on the queue config type.
func NewDatabaseFromConfig(cfg config.QueueConfig, deviceID string, sealer qc.Sealer, clock qc.Clock) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite", "":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite queue")
		}
		dbPath := filepath.Join(cfg.DataDir, deviceID+".db")
		return NewSQLiteDatabase(dbPath, sealer, clock)
	case "memory":
		return NewSQLiteDatabase(":memory:", sealer, clock)
	default:
		return nil, fmt.Errorf("unknown queue type: %s", cfg.Type)
	}
}
