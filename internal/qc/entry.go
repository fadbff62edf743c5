package qc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// Draft holds the inspector's input before a capture timestamp is assigned.
// The capture layer validates it and turns it into an Entry with Stamp.
type Draft struct {
	FarmerDeliveryID string
	ProductID        string
	AcceptedQuantity float64
	RejectedQuantity float64
	RejectionReasons []string
	Notes            string
}

// Stamp assigns the capture timestamp and returns the resulting Entry.
// The time is normalised to UTC and stripped of its monotonic reading so the
// value round-trips exactly through storage and the wire.
func (d Draft) Stamp(at time.Time) Entry {
	return Entry{
		FarmerDeliveryID: d.FarmerDeliveryID,
		ProductID:        d.ProductID,
		AcceptedQuantity: d.AcceptedQuantity,
		RejectedQuantity: d.RejectedQuantity,
		RejectionReasons: cloneReasons(d.RejectionReasons),
		Notes:            d.Notes,
		Timestamp:        at.UTC().Round(0),
	}
}

// Entry is one quality-control inspection result for a farmer delivery.
//
// Entries are treated as immutable values once stamped: the same Entry may be
// submitted to the remote endpoint several times and must be identical on
// every attempt. Stores copy entries on the way in and out (see Clone).
type Entry struct {
	FarmerDeliveryID string    `json:"farmerDeliveryId"`
	ProductID        string    `json:"productId"`
	AcceptedQuantity float64   `json:"acceptedQuantity"`
	RejectedQuantity float64   `json:"rejectedQuantity"`
	RejectionReasons []string  `json:"rejectionReasons"`
	Notes            string    `json:"notes,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// InspectedQuantity is the total quantity covered by this inspection.
func (e Entry) InspectedQuantity() float64 {
	return e.AcceptedQuantity + e.RejectedQuantity
}

// Validate checks the local validation rules applied before an entry is
// accepted for capture. The returned error wraps ErrInvalidEntry.
func (e Entry) Validate() error {
	var problems []string

	if strings.TrimSpace(e.FarmerDeliveryID) == "" {
		problems = append(problems, "farmerDeliveryId is required")
	}
	if strings.TrimSpace(e.ProductID) == "" {
		problems = append(problems, "productId is required")
	}
	if !validQuantity(e.AcceptedQuantity) {
		problems = append(problems, fmt.Sprintf("acceptedQuantity must be a non-negative number, got %v", e.AcceptedQuantity))
	}
	if !validQuantity(e.RejectedQuantity) {
		problems = append(problems, fmt.Sprintf("rejectedQuantity must be a non-negative number, got %v", e.RejectedQuantity))
	}
	if e.Timestamp.IsZero() {
		problems = append(problems, "timestamp is required")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidEntry, strings.Join(problems, "; "))
	}
	return nil
}

// IdempotencyKey derives the stable deduplication key for this entry from
// (farmerDeliveryId, productId, timestamp). It does not change across retries
// because none of its inputs are ever mutated after capture.
func (e Entry) IdempotencyKey() string {
	h := sha256.New()
	h.Write([]byte(e.FarmerDeliveryID))
	h.Write([]byte{0})
	h.Write([]byte(e.ProductID))
	h.Write([]byte{0})
	h.Write([]byte(e.Timestamp.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(h.Sum(nil))
}

// Clone returns a copy that shares no mutable state with e.
func (e Entry) Clone() Entry {
	e.RejectionReasons = cloneReasons(e.RejectionReasons)
	return e
}

func cloneReasons(reasons []string) []string {
	if reasons == nil {
		return []string{}
	}
	return slices.Clone(reasons)
}

func validQuantity(q float64) bool {
	return !math.IsNaN(q) && !math.IsInf(q, 0) && q >= 0
}
