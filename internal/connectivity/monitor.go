// Package connectivity tracks whether the device can reach the remote store.
package connectivity

import (
	"context"
	"slices"
	"sync"

	"qcsync/internal/qc"
)

// Signal is a source of reachability observations from the platform.
type Signal interface {
	// Check returns the current reachability.
	Check(ctx context.Context) qc.State
	// Watch calls fn with each observation until ctx is done. Observations
	// may repeat; the Monitor filters duplicates.
	Watch(ctx context.Context, fn func(qc.State)) error
}

// Monitor owns the process-wide connectivity state. Observations are applied
// as received with no smoothing; listeners only see actual changes.
type Monitor struct {
	signal Signal
	logger qc.Logger

	// deliver serializes Set so listeners observe transitions in order.
	deliver sync.Mutex

	mu        sync.Mutex
	state     qc.State
	listeners []func(qc.State)
}

var _ qc.Connectivity = (*Monitor)(nil)

// NewMonitor creates a Monitor whose initial state is signal.Check.
func NewMonitor(ctx context.Context, signal Signal, logger qc.Logger) *Monitor {
	return &Monitor{
		signal: signal,
		logger: logger,
		state:  signal.Check(ctx),
	}
}

// Run forwards signal observations into the monitor until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	return m.signal.Watch(ctx, func(s qc.State) {
		m.Set(s)
	})
}

func (m *Monitor) CurrentState() qc.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnTransition registers fn. Listeners run in registration order, outside the
// state lock, and must not call Set.
func (m *Monitor) OnTransition(fn func(qc.State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Set applies an observation and reports whether it changed the state.
func (m *Monitor) Set(s qc.State) bool {
	m.deliver.Lock()
	defer m.deliver.Unlock()

	m.mu.Lock()
	if m.state == s {
		m.mu.Unlock()
		return false
	}
	from := m.state
	m.state = s
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	m.logger.Info("connectivity changed", "from", from, "to", s)
	for _, fn := range listeners {
		fn(s)
	}
	return true
}
