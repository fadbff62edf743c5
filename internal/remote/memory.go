package remote

import (
	"context"
	"sync"

	"qcsync/internal/qc"
)

// MemoryEndpoint is an in-memory authoritative store, useful for testing and
// demos. It deduplicates on idempotency key, can reject entries through a
// rejecter, and can be told to fail upcoming calls with a transport error.
// This implementation is safe for concurrent use.
type MemoryEndpoint struct {
	mu       sync.Mutex
	entries  map[string]qc.Entry // idempotency key -> entry
	order    []string
	batches  [][]qc.Entry
	rejecter func(qc.Entry) string
	failures []error
}

var _ qc.Endpoint = (*MemoryEndpoint)(nil)

// NewMemoryEndpoint creates an empty in-memory endpoint.
func NewMemoryEndpoint() *MemoryEndpoint {
	return &MemoryEndpoint{entries: make(map[string]qc.Entry)}
}

// SetRejecter installs fn; a non-empty return rejects the entry with that reason.
func (m *MemoryEndpoint) SetRejecter(fn func(qc.Entry) string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejecter = fn
}

// FailNext makes the next len(errs) calls fail with the given transport errors.
func (m *MemoryEndpoint) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

func (m *MemoryEndpoint) SubmitBatch(ctx context.Context, entries []qc.Entry) ([]qc.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, qc.TransportError(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	batch := make([]qc.Entry, len(entries))
	for i, e := range entries {
		batch[i] = e.Clone()
	}
	m.batches = append(m.batches, batch)

	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return nil, qc.TransportError(err)
	}

	results := make([]qc.Result, len(entries))
	for i, e := range batch {
		key := e.IdempotencyKey()
		if _, ok := m.entries[key]; ok {
			results[i] = qc.Accepted()
			continue
		}
		if reason := invalidReason(e); reason != "" {
			results[i] = qc.Rejected(reason)
			continue
		}
		if m.rejecter != nil {
			if reason := m.rejecter(e); reason != "" {
				results[i] = qc.Rejected(reason)
				continue
			}
		}
		m.entries[key] = e
		m.order = append(m.order, key)
		results[i] = qc.Accepted()
	}
	return results, nil
}

// Entries returns the stored entries in the order they were first accepted.
func (m *MemoryEndpoint) Entries() []qc.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]qc.Entry, len(m.order))
	for i, key := range m.order {
		out[i] = m.entries[key].Clone()
	}
	return out
}

// Batches returns every batch received, including ones that failed.
func (m *MemoryEndpoint) Batches() [][]qc.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]qc.Entry, len(m.batches))
	for i, b := range m.batches {
		out[i] = append([]qc.Entry(nil), b...)
	}
	return out
}

// Count returns the number of distinct stored entries.
func (m *MemoryEndpoint) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
