package remote

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"qcsync/internal/qc"
)

func TestFileSystemEndpoint_SubmitBatch(t *testing.T) {
	t.Run("writes entries as files", func(t *testing.T) {
		root := t.TempDir()
		ep, err := NewFileSystemEndpoint(root, "tablet-1")
		if err != nil {
			t.Fatalf("NewFileSystemEndpoint() error = %v", err)
		}

		entries := []qc.Entry{testEntry("P-1"), testEntry("")}
		results, err := ep.SubmitBatch(context.Background(), entries)
		if err != nil {
			t.Fatalf("SubmitBatch() error = %v", err)
		}
		if results[0].Status != qc.OutcomeAccepted || results[1].Status != qc.OutcomeRejected {
			t.Errorf("results = %+v, want accepted then rejected", results)
		}

		if _, err := os.Stat(ep.Path(entries[0])); err != nil {
			t.Errorf("entry file missing: %v", err)
		}
		files, _ := os.ReadDir(filepath.Join(root, "entries"))
		if len(files) != 1 {
			t.Errorf("files = %d, want 1", len(files))
		}
	})

	t.Run("existing entry is accepted unchanged", func(t *testing.T) {
		ep, err := NewFileSystemEndpoint(t.TempDir(), "tablet-1")
		if err != nil {
			t.Fatalf("NewFileSystemEndpoint() error = %v", err)
		}
		e := testEntry("P-1")

		if _, err := ep.SubmitBatch(context.Background(), []qc.Entry{e}); err != nil {
			t.Fatal(err)
		}
		before, _ := os.Stat(ep.Path(e))

		results, err := ep.SubmitBatch(context.Background(), []qc.Entry{e})
		if err != nil {
			t.Fatalf("second SubmitBatch() error = %v", err)
		}
		if results[0].Status != qc.OutcomeAccepted {
			t.Errorf("results[0] = %+v, want accepted", results[0])
		}
		after, _ := os.Stat(ep.Path(e))
		if !after.ModTime().Equal(before.ModTime()) {
			t.Error("existing entry file was rewritten")
		}
	})

	t.Run("missing directory is transport failure", func(t *testing.T) {
		root := t.TempDir()
		ep, err := NewFileSystemEndpoint(root, "tablet-1")
		if err != nil {
			t.Fatalf("NewFileSystemEndpoint() error = %v", err)
		}
		// Simulates an unmounted share.
		if err := os.RemoveAll(filepath.Join(root, "entries")); err != nil {
			t.Fatal(err)
		}

		_, err = ep.SubmitBatch(context.Background(), []qc.Entry{testEntry("P-1")})
		if !errors.Is(err, qc.ErrTransport) {
			t.Errorf("SubmitBatch() error = %v, want ErrTransport", err)
		}
	})
}
