package encryption

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"qcsync/internal/config"
	"qcsync/internal/qc"
)

func newTestAgeSealer(t *testing.T) (*AgeSealer, config.EncryptionConfig) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.EncryptionConfig{
		Type:           "age",
		PublicKeyPath:  filepath.Join(dir, "keys", "qc.pub"),
		PrivateKeyPath: filepath.Join(dir, "keys", "qc.key"),
	}
	return NewAgeSealer(cfg), cfg
}

func TestAgeSealer_IsConfigured_BeforeSetup(t *testing.T) {
	t.Parallel()
	s, _ := newTestAgeSealer(t)
	if s.IsConfigured() {
		t.Error("IsConfigured() = true before Setup, want false")
	}
	if !s.Locked() {
		t.Error("Locked() = false before Setup, want true")
	}
}

func TestAgeSealer_SealOpenRoundTrip(t *testing.T) {
	t.Parallel()

	s, _ := newTestAgeSealer(t)
	if err := s.Setup("test-passphrase"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if !s.IsConfigured() {
		t.Error("IsConfigured() = false after Setup, want true")
	}

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "entry json", input: []byte(`{"farmerDeliveryId":"FD-1","productId":"P-1"}`)},
		{name: "empty", input: []byte{}},
		{name: "binary data", input: []byte{0x00, 0xff, 0x01, 0xfe}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := s.Seal(tt.input)
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}
			if len(tt.input) > 0 && bytes.Contains(sealed, tt.input) {
				t.Error("sealed output contains plaintext")
			}

			opened, err := s.Open(sealed)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if !bytes.Equal(opened, tt.input) {
				t.Errorf("round-trip failed: got %d bytes, want %d bytes", len(opened), len(tt.input))
			}
		})
	}
}

func TestAgeSealer_LockedUntilUnlock(t *testing.T) {
	t.Parallel()

	passphrase := "correct-passphrase"
	setup, cfg := newTestAgeSealer(t)
	if err := setup.Setup(passphrase); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	// A fresh sealer over the same keys can seal but not open.
	s := NewAgeSealer(cfg)
	sealed, err := s.Seal([]byte("queued entry"))
	if err != nil {
		t.Fatalf("Seal() while locked error = %v", err)
	}
	if _, err := s.Open(sealed); !errors.Is(err, qc.ErrLocked) {
		t.Fatalf("Open() while locked error = %v, want ErrLocked", err)
	}

	if err := s.Unlock("wrong-passphrase"); err == nil {
		t.Error("Unlock() with wrong passphrase should return error")
	}
	if !s.Locked() {
		t.Error("Locked() = false after failed Unlock, want true")
	}

	if err := s.Unlock(passphrase); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	opened, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open() after Unlock error = %v", err)
	}
	if string(opened) != "queued entry" {
		t.Errorf("Open() = %q, want %q", opened, "queued entry")
	}

	s.Lock()
	if _, err := s.Open(sealed); !errors.Is(err, qc.ErrLocked) {
		t.Errorf("Open() after Lock error = %v, want ErrLocked", err)
	}
}

func TestAgeSealer_SealBeforeSetup(t *testing.T) {
	t.Parallel()

	s, _ := newTestAgeSealer(t)
	if _, err := s.Seal([]byte("data")); err == nil {
		t.Error("Seal() before Setup should return error")
	}
}

func TestAgeSealer_UnlockBeforeSetup(t *testing.T) {
	t.Parallel()

	s, _ := newTestAgeSealer(t)
	if err := s.Unlock("passphrase"); err == nil {
		t.Error("Unlock() before Setup should return error")
	}
}
