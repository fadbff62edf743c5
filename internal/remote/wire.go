// Package remote implements qc.Endpoint against the stores an inspection
// device can sync to.
package remote

import (
	"encoding/json"
	"fmt"

	"qcsync/internal/qc"
)

// SyncPath is the route the sync server accepts batches on.
const SyncPath = "/api/qc/sync"

// WireEntry is an entry as sent to the remote store, carrying its
// idempotency key alongside the captured fields.
type WireEntry struct {
	qc.Entry
	IdempotencyKey string `json:"idempotencyKey"`
}

// NewWireEntry returns e with its idempotency key attached.
func NewWireEntry(e qc.Entry) WireEntry {
	return WireEntry{Entry: e, IdempotencyKey: e.IdempotencyKey()}
}

// SyncRequest is the body of a batch submission.
type SyncRequest struct {
	DeviceID string      `json:"deviceId"`
	Entries  []WireEntry `json:"entries"`
}

// SyncResponse carries one result per submitted entry, in submission order.
type SyncResponse struct {
	Results []qc.Result `json:"results"`
}

// objectRecord is the document written per entry by the object-per-key stores.
type objectRecord struct {
	DeviceID string `json:"deviceId"`
	WireEntry
}

func encodeObject(deviceID string, e qc.Entry) ([]byte, error) {
	data, err := json.MarshalIndent(objectRecord{DeviceID: deviceID, WireEntry: NewWireEntry(e)}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding entry: %w", err)
	}
	return data, nil
}

// invalidReason returns a rejection reason for an entry the store must not
// accept, or "" if it is acceptable.
func invalidReason(e qc.Entry) string {
	if err := e.Validate(); err != nil {
		return err.Error()
	}
	return ""
}
