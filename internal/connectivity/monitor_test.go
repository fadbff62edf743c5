package connectivity

import (
	"context"
	"sync"
	"testing"
	"time"

	"qcsync/internal/qc"
)

// chanSignal emits whatever is sent on its channel.
type chanSignal struct {
	initial qc.State
	ch      chan qc.State
}

func (s *chanSignal) Check(context.Context) qc.State { return s.initial }

func (s *chanSignal) Watch(ctx context.Context, fn func(qc.State)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case st := <-s.ch:
			fn(st)
		}
	}
}

type recorder struct {
	mu     sync.Mutex
	states []qc.State
}

func (r *recorder) record(s qc.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) get() []qc.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]qc.State(nil), r.states...)
}

func TestMonitor_InitialState(t *testing.T) {
	for _, want := range []qc.State{qc.Online, qc.Offline} {
		m := NewMonitor(context.Background(), NewStaticSignal(want), qc.NewNopLogger())
		if got := m.CurrentState(); got != want {
			t.Errorf("CurrentState() = %v, want %v", got, want)
		}
	}
}

func TestMonitor_Set(t *testing.T) {
	m := NewMonitor(context.Background(), NewStaticSignal(qc.Offline), qc.NewNopLogger())
	rec := &recorder{}
	m.OnTransition(rec.record)

	seq := []qc.State{qc.Offline, qc.Online, qc.Online, qc.Offline, qc.Offline, qc.Online}
	for _, s := range seq {
		m.Set(s)
	}

	got := rec.get()
	want := []qc.State{qc.Online, qc.Offline, qc.Online}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if m.CurrentState() != qc.Online {
		t.Errorf("CurrentState() = %v, want ONLINE", m.CurrentState())
	}
}

func TestMonitor_SetReportsChange(t *testing.T) {
	m := NewMonitor(context.Background(), NewStaticSignal(qc.Online), qc.NewNopLogger())
	if m.Set(qc.Online) {
		t.Error("Set(ONLINE) while ONLINE = true, want false")
	}
	if !m.Set(qc.Offline) {
		t.Error("Set(OFFLINE) while ONLINE = false, want true")
	}
}

func TestMonitor_ListenersInRegistrationOrder(t *testing.T) {
	m := NewMonitor(context.Background(), NewStaticSignal(qc.Offline), qc.NewNopLogger())

	var order []string
	m.OnTransition(func(qc.State) { order = append(order, "first") })
	m.OnTransition(func(qc.State) { order = append(order, "second") })

	m.Set(qc.Online)

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("order = %v, want [first second]", order)
	}
}

func TestMonitor_ListenerCanReadState(t *testing.T) {
	m := NewMonitor(context.Background(), NewStaticSignal(qc.Offline), qc.NewNopLogger())

	var seen qc.State = qc.Offline
	m.OnTransition(func(qc.State) { seen = m.CurrentState() })
	m.Set(qc.Online)

	if seen != qc.Online {
		t.Errorf("state seen by listener = %v, want ONLINE", seen)
	}
}

func TestMonitor_Run(t *testing.T) {
	sig := &chanSignal{initial: qc.Offline, ch: make(chan qc.State)}
	m := NewMonitor(context.Background(), sig, qc.NewNopLogger())

	got := make(chan qc.State, 4)
	m.OnTransition(func(s qc.State) { got <- s })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	sig.ch <- qc.Online
	sig.ch <- qc.Online
	sig.ch <- qc.Offline

	for _, want := range []qc.State{qc.Online, qc.Offline} {
		select {
		case s := <-got:
			if s != want {
				t.Errorf("transition = %v, want %v", s, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %v", want)
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("unexpected extra transitions: %d", len(got))
	}
}
