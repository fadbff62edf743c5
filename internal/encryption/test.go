package encryption

import (
	"bytes"
	"fmt"
	"sync"

	"qcsync/internal/qc"
)

// testHeader is prepended by TestSealer so sealed payloads differ from
// plaintext while remaining deterministic and reversible.
var testHeader = []byte("QCSEAL\x00\x00")

// TestSealer is a deterministic sealer for tests. It prepends a fixed header
// and, like AgeSealer, refuses to Open while locked.
type TestSealer struct {
	mu     sync.Mutex
	locked bool
}

var _ KeyedSealer = (*TestSealer)(nil)

// NewTestSealer creates an unlocked TestSealer.
func NewTestSealer() *TestSealer {
	return &TestSealer{}
}

func (s *TestSealer) Setup(passphrase string) error {
	return s.Unlock(passphrase)
}

func (s *TestSealer) Unlock(passphrase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locked = false
	return nil
}

// Lock makes subsequent Open calls fail with qc.ErrLocked.
func (s *TestSealer) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locked = true
}

func (s *TestSealer) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

func (s *TestSealer) IsConfigured() bool {
	return true
}

func (s *TestSealer) Seal(plaintext []byte) ([]byte, error) {
	out := make([]byte, 0, len(testHeader)+len(plaintext))
	out = append(out, testHeader...)
	return append(out, plaintext...), nil
}

func (s *TestSealer) Open(ciphertext []byte) ([]byte, error) {
	if s.Locked() {
		return nil, qc.ErrLocked
	}
	if !bytes.HasPrefix(ciphertext, testHeader) {
		return nil, fmt.Errorf("invalid test seal header")
	}
	return bytes.Clone(ciphertext[len(testHeader):]), nil
}

// NoneSealer stores payloads unchanged. It never needs unlocking.
type NoneSealer struct{}

var _ KeyedSealer = NoneSealer{}

func (NoneSealer) Setup(string) error            { return nil }
func (NoneSealer) Unlock(string) error           { return nil }
func (NoneSealer) Locked() bool                  { return false }
func (NoneSealer) IsConfigured() bool            { return true }
func (NoneSealer) Seal(p []byte) ([]byte, error) { return p, nil }
func (NoneSealer) Open(p []byte) ([]byte, error) { return p, nil }
