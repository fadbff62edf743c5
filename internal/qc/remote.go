package qc

import "context"

// Outcome is the remote store's verdict on a single submitted entry.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
)

// Result is the per-entry acknowledgment returned by an Endpoint.
type Result struct {
	Status Outcome `json:"status"`
	Reason string  `json:"reason,omitempty"`
}

// Accepted returns an accepted Result.
func Accepted() Result { return Result{Status: OutcomeAccepted} }

// Rejected returns a rejected Result with the given reason.
func Rejected(reason string) Result { return Result{Status: OutcomeRejected, Reason: reason} }

// Endpoint is the remote authoritative store the coordinator syncs to.
//
// SubmitBatch sends entries in order and returns exactly one Result per entry,
// in the same order. Any returned error means the batch as a whole could not
// be delivered (a transport failure); no result of that call is trusted.
// Implementations must deduplicate on Entry.IdempotencyKey so that
// resubmitting an entry never creates a second record.
type Endpoint interface {
	SubmitBatch(ctx context.Context, entries []Entry) ([]Result, error)
}
