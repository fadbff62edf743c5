package qc

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidEntry is returned when an entry fails local validation.
	ErrInvalidEntry = errors.New("invalid entry")

	// ErrDurability is returned when the local queue cannot persist an entry.
	// The capture was not saved and the caller must not report success.
	ErrDurability = errors.New("entry could not be saved on this device")

	// ErrTransport marks a failure to reach the remote endpoint at all.
	// Entries affected by it stay queued and are retried on the next trigger.
	ErrTransport = errors.New("remote endpoint unreachable")

	// ErrLocked is returned by a Sealer that needs a passphrase before it can open payloads.
	ErrLocked = errors.New("sealer is locked")
)

// RejectedError reports that the remote store refused an entry for a domain
// reason. It is permanent: the entry is not retried.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rejected by remote store: %s", e.Reason)
}

// TransportError wraps an underlying network error so it matches ErrTransport.
func TransportError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransport) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}
