package qc

import "time"

// Record is a queued Entry plus the bookkeeping the local queue assigns.
// Presence in the queue means the entry is pending; absence means it was
// never queued or has been settled with the remote store.
type Record struct {
	Sequence int64 // assigned by the queue, strictly increasing, never reused
	Entry    Entry
	QueuedAt time.Time
}

// Queue is the on-device durable store of pending entries.
// Implementations own their records exclusively; callers receive copies.
type Queue interface {
	// Append assigns the next sequence number and persists the entry.
	// It does not return until the write is durable. A failure wraps ErrDurability.
	Append(entry Entry) (*Record, error)

	// ListPending returns every persisted record in ascending sequence order.
	// It has no side effects and may be called any number of times.
	ListPending() ([]*Record, error)

	// Remove deletes exactly the records with the given sequence numbers.
	// Unknown sequence numbers are ignored.
	Remove(sequences []int64) error

	// Clear removes all records. Administrative use only; the sync flow
	// removes precisely the settled subset.
	Clear() error

	// Count returns the number of pending records.
	Count() (int, error)

	// Close releases the underlying storage.
	Close() error
}

// Rejection records an entry the remote store refused for a domain reason.
type Rejection struct {
	Sequence   int64 // 0 when rejected on direct submit, before it was queued
	Entry      Entry
	Reason     string
	RejectedAt time.Time
}

// SyncPass is the persisted summary of one coordinator pass.
type SyncPass struct {
	ID         int64
	Trigger    Trigger
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string // "running", "complete", "interrupted" or "error"
	Pending    int
	Accepted   int
	Rejected   int
	Deferred   int
	Error      string
}

// Journal stores sync observability data next to the queue.
type Journal interface {
	// StartSyncPass records the start of a pass and returns its ID.
	StartSyncPass(trigger Trigger, startedAt time.Time, pending int) (int64, error)

	// FinishSyncPass records the outcome of a pass. passErr is the local
	// error that ended the pass early, if any.
	FinishSyncPass(id int64, report *SyncReport, finishedAt time.Time, passErr error) error

	// ListSyncPasses returns the most recent passes, newest first.
	ListSyncPasses(limit int) ([]*SyncPass, error)

	// RecordRejections stores permanent rejections. Recording the same
	// non-zero sequence number twice keeps the first record.
	RecordRejections(rejections []*Rejection) error

	// ListRejections returns the most recent rejections, newest first.
	ListRejections(limit int) ([]*Rejection, error)
}

// Sealer protects queued payloads at rest.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	// Open reverses Seal. It returns ErrLocked if a passphrase is required first.
	Open(ciphertext []byte) ([]byte, error)
}
