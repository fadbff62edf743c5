package qc

// State is the device's network reachability as seen by the connectivity monitor.
type State int

const (
	Offline State = iota
	Online
)

func (s State) String() string {
	switch s {
	case Online:
		return "ONLINE"
	case Offline:
		return "OFFLINE"
	default:
		return "UNKNOWN"
	}
}

// Connectivity exposes the process-wide connectivity state. A single instance
// is created at startup and handed to everything that needs it.
type Connectivity interface {
	// CurrentState returns the last observed state without blocking.
	CurrentState() State

	// OnTransition registers fn to be called with the new state whenever the
	// state changes. It is never called twice in a row with the same state.
	OnTransition(fn func(State))
}
