package database

import (
	"path/filepath"
	"testing"

	"qcsync/internal/config"
)

func TestNewDatabaseFromConfig(t *testing.T) {
	t.Run("memory database", func(t *testing.T) {
		cfg := config.QueueConfig{Type: "memory"}
		got, err := NewDatabaseFromConfig(cfg, "tablet-7", nil, nil)
		if err != nil {
			t.Fatalf("NewDatabaseFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		if got.Path() != ":memory:" {
			t.Errorf("Path() = %s, want :memory:", got.Path())
		}
	})

	t.Run("sqlite database", func(t *testing.T) {
		dir := t.TempDir()
		cfg := config.QueueConfig{Type: "sqlite", DataDir: dir}
		got, err := NewDatabaseFromConfig(cfg, "tablet-7", nil, nil)
		if err != nil {
			t.Fatalf("NewDatabaseFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		want := filepath.Join(dir, "tablet-7.db")
		if got.Path() != want {
			t.Errorf("Path() = %s, want %s", got.Path(), want)
		}
	})

	t.Run("empty type defaults to sqlite", func(t *testing.T) {
		cfg := config.QueueConfig{DataDir: t.TempDir()}
		got, err := NewDatabaseFromConfig(cfg, "tablet-7", nil, nil)
		if err != nil {
			t.Fatalf("NewDatabaseFromConfig() unexpected error: %v", err)
		}
		got.Close()
	})

	t.Run("sqlite database without data_dir", func(t *testing.T) {
		cfg := config.QueueConfig{Type: "sqlite"}
		got, err := NewDatabaseFromConfig(cfg, "tablet-7", nil, nil)
		if err == nil {
			t.Error("NewDatabaseFromConfig() expected error for missing data_dir, got nil")
		}
		if got != nil {
			t.Error("NewDatabaseFromConfig() should return nil on error")
			got.Close()
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		cfg := config.QueueConfig{Type: "postgres"}
		if _, err := NewDatabaseFromConfig(cfg, "tablet-7", nil, nil); err == nil {
			t.Error("NewDatabaseFromConfig() expected error for unknown type, got nil")
		}
	})
}
