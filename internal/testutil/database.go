package testutil

import (
	"testing"

	"qcsync/internal/database"
	"qcsync/internal/qc"
)

// NewTestDatabase creates a new in-memory queue database with schema applied.
// The database is automatically closed when the test completes.
func NewTestDatabase(t *testing.T) *database.SQLiteDatabase {
	t.Helper()
	return NewTestDatabaseWithSealer(t, nil)
}

// NewTestDatabaseWithSealer is NewTestDatabase with payloads sealed by sealer.
func NewTestDatabaseWithSealer(t *testing.T, sealer qc.Sealer) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:", sealer, nil)
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}
