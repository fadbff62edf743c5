package qc

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// SubmitStatus tells the capture form where an entry ended up.
type SubmitStatus int

const (
	SavedLocally SubmitStatus = iota // durable on the device, pending sync
	SavedOnline                      // accepted by the remote store
)

func (s SubmitStatus) String() string {
	switch s {
	case SavedLocally:
		return "saved locally"
	case SavedOnline:
		return "saved online"
	default:
		return "unknown"
	}
}

// SubmitResult is returned by Capture.Submit on success.
type SubmitResult struct {
	Status         SubmitStatus
	Record         *Record // set when Status is SavedLocally
	IdempotencyKey string
}

// SyncRequester asks the background task for a sync pass.
type SyncRequester interface {
	Request(trigger Trigger)
}

// Capture is the entry point the capture form calls after local validation.
// It routes each entry to the remote endpoint or the local queue depending on
// connectivity, and reports which path was taken.
type Capture struct {
	queue     Queue
	journal   Journal
	endpoint  Endpoint
	conn      Connectivity
	logger    Logger
	clock     Clock
	requester SyncRequester

	// mu guards the queue decision and appends. It is never held across a
	// call to the endpoint.
	mu       sync.Mutex
	inFlight int // direct submits not yet settled
}

// NewCapture creates a Capture. Rejections on the direct path are recorded
// in journal.
func NewCapture(queue Queue, journal Journal, endpoint Endpoint, conn Connectivity, logger Logger, clock Clock) *Capture {
	return &Capture{
		queue:    queue,
		journal:  journal,
		endpoint: endpoint,
		conn:     conn,
		logger:   logger,
		clock:    clock,
	}
}

// SetSyncRequester registers the background task to poke after an entry is
// queued while the device is online.
func (c *Capture) SetSyncRequester(r SyncRequester) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requester = r
}

// SubmitDraft stamps the draft with the current time and submits it.
func (c *Capture) SubmitDraft(ctx context.Context, d Draft) (*SubmitResult, error) {
	return c.Submit(ctx, d.Stamp(c.clock.Now()))
}

// Submit saves an entry.
//
// Offline, or online with older entries still queued or in flight, the entry
// is appended to the local queue so capture order is preserved. Online with
// an empty queue, it is sent directly; if that fails to reach the endpoint
// the entry falls back to the local queue. A domain rejection is journaled
// and returned as *RejectedError, and nothing is queued. A local write
// failure wraps ErrDurability.
func (c *Capture) Submit(ctx context.Context, entry Entry) (*SubmitResult, error) {
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	entry = entry.Clone()

	c.mu.Lock()
	direct, err := c.claimDirect()
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if !direct {
		defer c.mu.Unlock()
		return c.enqueue(entry)
	}
	c.mu.Unlock()

	res, err := c.submitDirect(ctx, entry)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight--

	if err == nil {
		return res, nil
	}
	if !errors.Is(err, ErrTransport) {
		return nil, err
	}
	c.logger.Warn("direct submit failed, saving locally", "error", err)
	return c.enqueue(entry)
}

// claimDirect reports whether the entry may bypass the queue, and if so
// counts it as in flight. c.mu must be held.
func (c *Capture) claimDirect() (bool, error) {
	if c.conn.CurrentState() != Online || c.inFlight > 0 {
		return false, nil
	}
	backlog, err := c.queue.Count()
	if err != nil {
		return false, fmt.Errorf("%w: counting pending entries: %w", ErrDurability, err)
	}
	if backlog > 0 {
		return false, nil
	}
	c.inFlight++
	return true, nil
}

func (c *Capture) submitDirect(ctx context.Context, entry Entry) (*SubmitResult, error) {
	results, err := c.endpoint.SubmitBatch(ctx, []Entry{entry})
	if err != nil {
		return nil, TransportError(err)
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("%w: endpoint returned %d results for 1 entry", ErrTransport, len(results))
	}

	key := entry.IdempotencyKey()
	switch results[0].Status {
	case OutcomeAccepted:
		c.logger.Info("entry saved online", "farmer_delivery_id", entry.FarmerDeliveryID, "product_id", entry.ProductID)
		return &SubmitResult{Status: SavedOnline, IdempotencyKey: key}, nil
	case OutcomeRejected:
		c.logger.Warn("entry rejected", "farmer_delivery_id", entry.FarmerDeliveryID, "product_id", entry.ProductID, "reason", results[0].Reason)
		c.journalRejection(entry, results[0].Reason)
		return nil, &RejectedError{Reason: results[0].Reason}
	default:
		return nil, fmt.Errorf("%w: unknown result status %q", ErrTransport, results[0].Status)
	}
}

// journalRejection records a direct-path rejection. The caller already has
// the outcome, so a journal failure is only logged.
func (c *Capture) journalRejection(entry Entry, reason string) {
	if c.journal == nil {
		return
	}
	rej := &Rejection{Entry: entry, Reason: reason, RejectedAt: c.clock.Now()}
	if err := c.journal.RecordRejections([]*Rejection{rej}); err != nil {
		c.logger.Error("failed to journal rejection", "farmer_delivery_id", entry.FarmerDeliveryID, "error", err)
	}
}

func (c *Capture) enqueue(entry Entry) (*SubmitResult, error) {
	rec, err := c.queue.Append(entry)
	if err != nil {
		if errors.Is(err, ErrDurability) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrDurability, err)
	}

	c.logger.Info("entry saved locally", "sequence", rec.Sequence, "farmer_delivery_id", entry.FarmerDeliveryID, "product_id", entry.ProductID)

	if c.requester != nil && c.conn.CurrentState() == Online {
		c.requester.Request(TriggerCapture)
	}

	return &SubmitResult{Status: SavedLocally, Record: rec, IdempotencyKey: entry.IdempotencyKey()}, nil
}
