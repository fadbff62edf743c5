package qc

import (
	"context"
	"sync"
	"time"
)

// Scheduler is the single background task that drives the Coordinator.
//
// It requests a pass on every OFFLINE→ONLINE transition, on every retry tick
// while ONLINE, and whenever Request is called. Requests are coalesced: at most
// one is waiting while a pass runs, and passes never overlap.
type Scheduler struct {
	coordinator   *Coordinator
	conn          Connectivity
	logger        Logger
	retryInterval time.Duration
	requests      chan Trigger

	mu       sync.Mutex
	onReport []func(*SyncReport)
}

// NewScheduler creates a Scheduler and subscribes it to connectivity transitions.
// A non-positive retryInterval disables periodic retries.
func NewScheduler(coordinator *Coordinator, conn Connectivity, logger Logger, retryInterval time.Duration) *Scheduler {
	s := &Scheduler{
		coordinator:   coordinator,
		conn:          conn,
		logger:        logger,
		retryInterval: retryInterval,
		requests:      make(chan Trigger, 1),
	}
	conn.OnTransition(func(state State) {
		if state == Online {
			s.Request(TriggerReconnect)
		}
	})
	return s
}

// OnReport registers fn to receive the report of every pass the scheduler runs.
func (s *Scheduler) OnReport(fn func(*SyncReport)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReport = append(s.onReport, fn)
}

// Request asks for a sync pass. It never blocks; if a request is already
// waiting this one is dropped.
func (s *Scheduler) Request(trigger Trigger) {
	select {
	case s.requests <- trigger:
	default:
		s.logger.Debug("sync request coalesced", "trigger", trigger)
	}
}

// Run processes requests until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.conn.CurrentState() == Online {
		s.Request(TriggerStartup)
	}

	var tick <-chan time.Time
	if s.retryInterval > 0 {
		ticker := time.NewTicker(s.retryInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case trigger := <-s.requests:
			s.runPass(ctx, trigger)
		case <-tick:
			s.runPass(ctx, TriggerRetry)
		}
	}
}

func (s *Scheduler) runPass(ctx context.Context, trigger Trigger) {
	if s.conn.CurrentState() != Online {
		s.logger.Debug("offline, skipping sync", "trigger", trigger)
		return
	}

	report, err := s.coordinator.Sync(ctx, trigger)
	if err != nil {
		s.logger.Error("sync pass failed", "trigger", trigger, "error", err)
	}
	if report == nil {
		return
	}

	s.mu.Lock()
	listeners := append([]func(*SyncReport){}, s.onReport...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(report)
	}
}
