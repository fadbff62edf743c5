package app

import "time"

// Invocation identifies one CLI command run. Its ID tags every log line the
// run writes so interleaved output from a daemon and one-off commands can be
// told apart.
type Invocation struct {
	ID        string
	Operation string
	StartedAt time.Time
}

// NewInvocation creates an Invocation for operation started at the given time.
func NewInvocation(operation string, at time.Time) *Invocation {
	at = at.UTC()
	return &Invocation{
		ID:        at.Format("20060102T150405Z"),
		Operation: operation,
		StartedAt: at,
	}
}
