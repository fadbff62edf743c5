package qc

import (
	"context"
	"fmt"
	"sync/atomic"
)

// DefaultBatchSize is used when the coordinator is built with a non-positive batch size.
const DefaultBatchSize = 25

// Trigger names what started a sync pass.
type Trigger string

const (
	TriggerReconnect Trigger = "reconnect" // OFFLINE→ONLINE transition
	TriggerRetry     Trigger = "retry"     // periodic retry while ONLINE
	TriggerStartup   Trigger = "startup"   // process started while ONLINE
	TriggerCapture   Trigger = "capture"   // an entry was queued while ONLINE
	TriggerManual    Trigger = "manual"    // explicit request (CLI)
)

// SyncReport describes the outcome of one Coordinator.Sync call.
type SyncReport struct {
	Trigger Trigger

	// Coalesced is true when another pass was already running and this call did nothing.
	Coalesced bool

	Pending    int          // records in the snapshot taken at the start of the pass
	Batches    int          // batches acknowledged by the endpoint
	Accepted   []int64      // sequences accepted and removed
	Rejections []*Rejection // entries permanently rejected and removed
	Deferred   int          // records left queued for the next trigger

	// TransportErr is set when the pass stopped because the endpoint could not
	// be reached. It is not a failure of the pass: the affected entries remain
	// queued and will be resubmitted.
	TransportErr error
}

// Interrupted reports whether the pass stopped early on a transport failure.
func (r *SyncReport) Interrupted() bool {
	return r.TransportErr != nil
}

// Coordinator reconciles the local queue with the remote endpoint.
// Delivery is at-least-once; the endpoint deduplicates on Entry.IdempotencyKey.
// Only one pass runs at a time; concurrent calls are coalesced into no-ops.
type Coordinator struct {
	queue     Queue
	journal   Journal
	endpoint  Endpoint
	logger    Logger
	clock     Clock
	batchSize int
	running   atomic.Bool
}

// NewCoordinator creates a Coordinator. A non-positive batchSize selects DefaultBatchSize.
func NewCoordinator(queue Queue, journal Journal, endpoint Endpoint, logger Logger, clock Clock, batchSize int) *Coordinator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Coordinator{
		queue:     queue,
		journal:   journal,
		endpoint:  endpoint,
		logger:    logger,
		clock:     clock,
		batchSize: batchSize,
	}
}

// BatchSize returns the number of entries submitted per request.
func (c *Coordinator) BatchSize() int {
	return c.batchSize
}

// Sync runs one pass over the pending snapshot.
//
// Records are submitted in ascending sequence order, batch by batch. Accepted
// and rejected entries are removed; rejections are also journaled. On a
// transport failure the pass stops and every record from the failed batch
// onward stays queued. The returned error is only set for local failures
// (queue or journal); transport failures are reported in SyncReport.
func (c *Coordinator) Sync(ctx context.Context, trigger Trigger) (*SyncReport, error) {
	if !c.running.CompareAndSwap(false, true) {
		c.logger.Debug("sync already running, coalescing", "trigger", trigger)
		return &SyncReport{Trigger: trigger, Coalesced: true}, nil
	}
	defer c.running.Store(false)

	records, err := c.queue.ListPending()
	if err != nil {
		return nil, fmt.Errorf("listing pending entries: %w", err)
	}

	report := &SyncReport{Trigger: trigger, Pending: len(records)}
	if len(records) == 0 {
		return report, nil
	}

	passID, err := c.journal.StartSyncPass(trigger, c.clock.Now(), len(records))
	if err != nil {
		return nil, fmt.Errorf("recording sync start: %w", err)
	}
	c.logger.Info("sync started", "trigger", trigger, "pending", len(records), "batch_size", c.batchSize)

	passErr := c.drain(ctx, records, report)

	if err := c.journal.FinishSyncPass(passID, report, c.clock.Now(), passErr); err != nil {
		if passErr == nil {
			passErr = fmt.Errorf("recording sync finish: %w", err)
		} else {
			c.logger.Error("recording sync finish failed", "error", err)
		}
	}

	if passErr != nil {
		c.logger.Error("sync failed", "trigger", trigger, "error", passErr)
		return report, passErr
	}

	c.logger.Info("sync finished",
		"trigger", trigger,
		"accepted", len(report.Accepted),
		"rejected", len(report.Rejections),
		"deferred", report.Deferred,
	)
	return report, nil
}

// drain submits records batch by batch and settles the acknowledged ones.
func (c *Coordinator) drain(ctx context.Context, records []*Record, report *SyncReport) error {
	for start := 0; start < len(records); start += c.batchSize {
		end := min(start+c.batchSize, len(records))
		batch := records[start:end]

		if err := ctx.Err(); err != nil {
			c.deferRemaining(report, len(records)-start, TransportError(err))
			return nil
		}

		entries := make([]Entry, len(batch))
		for i, rec := range batch {
			entries[i] = rec.Entry.Clone()
		}

		results, err := c.endpoint.SubmitBatch(ctx, entries)
		if err == nil && len(results) != len(batch) {
			err = fmt.Errorf("%w: endpoint returned %d results for %d entries", ErrTransport, len(results), len(batch))
		}
		if err != nil {
			c.deferRemaining(report, len(records)-start, TransportError(err))
			return nil
		}
		report.Batches++

		if err := c.settle(batch, results, report); err != nil {
			return err
		}
	}
	return nil
}

// settle removes the records the endpoint acknowledged, mapping results to
// records positionally.
func (c *Coordinator) settle(batch []*Record, results []Result, report *SyncReport) error {
	now := c.clock.Now()

	var settled []int64
	var accepted []int64
	var rejections []*Rejection

	for i, res := range results {
		rec := batch[i]
		switch res.Status {
		case OutcomeAccepted:
			settled = append(settled, rec.Sequence)
			accepted = append(accepted, rec.Sequence)
		case OutcomeRejected:
			settled = append(settled, rec.Sequence)
			rejections = append(rejections, &Rejection{
				Sequence:   rec.Sequence,
				Entry:      rec.Entry.Clone(),
				Reason:     res.Reason,
				RejectedAt: now,
			})
		default:
			// Unrecognised acknowledgments leave the record for the next pass.
			c.logger.Warn("unknown result status", "sequence", rec.Sequence, "status", res.Status)
			report.Deferred++
		}
	}

	if len(rejections) > 0 {
		if err := c.journal.RecordRejections(rejections); err != nil {
			return fmt.Errorf("recording rejections: %w", err)
		}
	}

	if len(settled) > 0 {
		if err := c.queue.Remove(settled); err != nil {
			return fmt.Errorf("removing settled entries: %w", err)
		}
	}

	report.Accepted = append(report.Accepted, accepted...)
	report.Rejections = append(report.Rejections, rejections...)

	for _, r := range rejections {
		c.logger.Warn("entry rejected",
			"sequence", r.Sequence,
			"farmer_delivery_id", r.Entry.FarmerDeliveryID,
			"product_id", r.Entry.ProductID,
			"reason", r.Reason,
		)
	}
	return nil
}

func (c *Coordinator) deferRemaining(report *SyncReport, remaining int, err error) {
	report.Deferred += remaining
	report.TransportErr = err
	c.logger.Warn("sync interrupted, will retry", "deferred", remaining, "error", err)
}
