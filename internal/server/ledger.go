// Package server is the authoritative store that devices sync to.
package server

import (
	"context"
	"sync"
	"time"

	"qcsync/internal/qc"
)

// LedgerEntry is an inspection as held by the authoritative store.
type LedgerEntry struct {
	ID       string `json:"id"`
	DeviceID string `json:"deviceId"`
	qc.Entry
	IdempotencyKey string    `json:"idempotencyKey"`
	ReceivedAt     time.Time `json:"receivedAt"`
}

// Ledger persists accepted inspections exactly once per idempotency key.
type Ledger interface {
	// Record stores e unless an entry with the same idempotency key exists.
	// It reports whether a new record was created.
	Record(ctx context.Context, deviceID string, e qc.Entry) (bool, error)
	// List returns the most recently received entries first.
	List(ctx context.Context, limit int) ([]*LedgerEntry, error)
	Count(ctx context.Context) (int64, error)
}

// MemoryLedger is an in-memory Ledger. Safe for concurrent use.
type MemoryLedger struct {
	clock qc.Clock
	ids   qc.IDGenerator

	mu      sync.RWMutex
	byKey   map[string]*LedgerEntry
	ordered []*LedgerEntry
}

var _ Ledger = (*MemoryLedger)(nil)

func NewMemoryLedger(clock qc.Clock, ids qc.IDGenerator) *MemoryLedger {
	return &MemoryLedger{
		clock: clock,
		ids:   ids,
		byKey: make(map[string]*LedgerEntry),
	}
}

func (m *MemoryLedger) Record(ctx context.Context, deviceID string, e qc.Entry) (bool, error) {
	key := e.IdempotencyKey()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byKey[key]; ok {
		return false, nil
	}
	le := &LedgerEntry{
		ID:             m.ids.New(),
		DeviceID:       deviceID,
		Entry:          e.Clone(),
		IdempotencyKey: key,
		ReceivedAt:     m.clock.Now().UTC(),
	}
	m.byKey[key] = le
	m.ordered = append(m.ordered, le)
	return true, nil
}

func (m *MemoryLedger) List(ctx context.Context, limit int) ([]*LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*LedgerEntry
	for i := len(m.ordered) - 1; i >= 0 && len(out) < limit; i-- {
		le := *m.ordered[i]
		le.Entry = le.Entry.Clone()
		out = append(out, &le)
	}
	return out, nil
}

func (m *MemoryLedger) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.byKey)), nil
}
