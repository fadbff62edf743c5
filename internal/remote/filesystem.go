package remote

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"qcsync/internal/qc"
)

// FileSystemEndpoint writes one JSON file per entry into a directory, for
// sites that sync through a shared drive:
//
//	<root>/
//	  entries/
//	    <idempotencyKey>.json
type FileSystemEndpoint struct {
	root       string
	entriesDir string
	deviceID   string
}

var _ qc.Endpoint = (*FileSystemEndpoint)(nil)

// NewFileSystemEndpoint creates a filesystem endpoint rooted at the given path.
func NewFileSystemEndpoint(root, deviceID string) (*FileSystemEndpoint, error) {
	entriesDir := filepath.Join(root, "entries")
	if err := os.MkdirAll(entriesDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create entries directory: %w", err)
	}
	return &FileSystemEndpoint{root: root, entriesDir: entriesDir, deviceID: deviceID}, nil
}

// Path returns the file an entry is stored in.
func (f *FileSystemEndpoint) Path(e qc.Entry) string {
	return filepath.Join(f.entriesDir, e.IdempotencyKey()+".json")
}

// SubmitBatch writes entries in order. An entry whose file already exists is
// accepted without rewriting it. A write error fails the whole batch.
func (f *FileSystemEndpoint) SubmitBatch(ctx context.Context, entries []qc.Entry) ([]qc.Result, error) {
	if err := f.ValidateSetup(); err != nil {
		return nil, qc.TransportError(err)
	}

	results := make([]qc.Result, len(entries))
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, qc.TransportError(err)
		}
		if reason := invalidReason(e); reason != "" {
			results[i] = qc.Rejected(reason)
			continue
		}

		dest := f.Path(e)
		if _, err := os.Stat(dest); err == nil {
			results[i] = qc.Accepted()
			continue
		}

		data, err := encodeObject(f.deviceID, e)
		if err != nil {
			return nil, err
		}
		if err := writeFileAtomic(dest, data); err != nil {
			return nil, qc.TransportError(err)
		}
		results[i] = qc.Accepted()
	}
	return results, nil
}

// ValidateSetup verifies that the entries directory is accessible.
func (f *FileSystemEndpoint) ValidateSetup() error {
	info, err := os.Stat(f.entriesDir)
	if err != nil {
		return fmt.Errorf("sync directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("sync path is not a directory: %s", f.entriesDir)
	}
	return nil
}

// writeFileAtomic writes data to destPath via a temp file and rename.
func writeFileAtomic(destPath string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
