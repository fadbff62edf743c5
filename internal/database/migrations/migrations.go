package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var files embed.FS

// ErrNoSchema is returned by Check for a database no migration has touched.
var ErrNoSchema = errors.New("database has no schema version (needs migration)")

// Status is a database's schema version next to the newest migration built
// into this binary.
type Status struct {
	Version uint // 0 before the first migration
	Latest  uint
	Dirty   bool
}

// Current reports whether the schema matches this binary.
func (s Status) Current() bool {
	return !s.Dirty && s.Version == s.Latest
}

// Err describes why the schema is not current, or returns nil.
func (s Status) Err() error {
	switch {
	case s.Dirty:
		return fmt.Errorf("schema version %d is dirty, a previous migration failed", s.Version)
	case s.Version == 0:
		return ErrNoSchema
	case s.Version < s.Latest:
		return fmt.Errorf("schema version %d is behind %d (%d migrations pending)", s.Version, s.Latest, s.Latest-s.Version)
	case s.Version > s.Latest:
		return fmt.Errorf("schema version %d is ahead of this binary (%d), upgrade qc", s.Version, s.Latest)
	}
	return nil
}

func (s Status) String() string {
	if s.Dirty {
		return fmt.Sprintf("v%d (dirty)", s.Version)
	}
	if s.Version != s.Latest {
		return fmt.Sprintf("v%d (latest v%d)", s.Version, s.Latest)
	}
	return fmt.Sprintf("v%d", s.Version)
}

// Inspect reads the schema status of db without changing it.
func Inspect(db *sql.DB) (Status, error) {
	latest, err := latestVersion()
	if err != nil {
		return Status{}, err
	}

	m, err := newMigrate(db)
	if err != nil {
		return Status{}, err
	}

	st := Status{Latest: latest}
	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
	case err != nil:
		return Status{}, fmt.Errorf("reading schema version: %w", err)
	default:
		st.Version, st.Dirty = version, dirty
	}
	return st, nil
}

// Check returns nil if db is at the latest schema version.
func Check(db *sql.DB) error {
	st, err := Inspect(db)
	if err != nil {
		return err
	}
	return st.Err()
}

// MigrateUp applies every pending migration.
func MigrateUp(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// newMigrate binds the embedded migrations to db. The result is never
// closed, since that would close the caller's connection.
func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(files, "files")
	if err != nil {
		return nil, fmt.Errorf("reading migration files: %w", err)
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("creating migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	return m, nil
}

// latestVersion walks the embedded migrations to the last one.
func latestVersion() (uint, error) {
	src, err := iofs.New(files, "files")
	if err != nil {
		return 0, fmt.Errorf("reading migration files: %w", err)
	}
	defer src.Close()

	version, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("finding first migration: %w", err)
	}
	for {
		next, err := src.Next(version)
		if errors.Is(err, fs.ErrNotExist) {
			return version, nil
		}
		if err != nil {
			return 0, fmt.Errorf("finding migration after %d: %w", version, err)
		}
		version = next
	}
}
