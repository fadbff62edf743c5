package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"qcsync/internal/config"
	"qcsync/internal/connectivity"
	"qcsync/internal/database"
	"qcsync/internal/database/migrations"
	"qcsync/internal/encryption"
	"qcsync/internal/qc"
	"qcsync/internal/remote"
)

// ErrOffline is returned by Sync when the connectivity monitor reports OFFLINE.
var ErrOffline = errors.New("device is offline")

// QCApp is the application layer between the CLI and the sync core.
// It constructs all dependencies from config, exposes the operations the
// capture form and CLI need, and releases the queue and log file on Close.
type QCApp struct {
	cfg         *config.Config
	inv         *Invocation
	sealer      encryption.KeyedSealer
	db          *database.SQLiteDatabase
	endpoint    qc.Endpoint
	monitor     *connectivity.Monitor
	coordinator *qc.Coordinator
	capture     *qc.Capture
	scheduler   *qc.Scheduler
	logger      qc.Logger
	logFile     io.Closer
}

// Status is a snapshot of the device's sync state.
type Status struct {
	DeviceID string
	State    qc.State
	Pending  int
	LastPass *qc.SyncPass // nil if no pass has run yet
	Schema   migrations.Status
}

// NewQCApp creates a fully wired QCApp from the given config.
// operation identifies the CLI command being run (e.g. "Capture", "Run").
// The caller must call Close when done.
func NewQCApp(ctx context.Context, cfg *config.Config, operation string) (*QCApp, error) {
	return newQCApp(ctx, cfg, operation, os.Stderr)
}

func newQCApp(ctx context.Context, cfg *config.Config, operation string, console io.Writer) (*QCApp, error) {
	if cfg.DeviceID == "" {
		return nil, fmt.Errorf("device_id not configured")
	}

	timeout, err := cfg.Sync.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	retryInterval, err := cfg.Sync.RetryIntervalDuration()
	if err != nil {
		return nil, err
	}

	inv := NewInvocation(operation, time.Now())
	slogger, logFile, err := newLogger(cfg.Log, cfg.LogDir, inv.ID, console)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := slogger.With("op", operation)

	sealer, err := encryption.NewSealerFromConfig(cfg.Encryption)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating sealer: %w", err)
	}

	db, err := database.NewDatabaseFromConfig(cfg.Queue, cfg.DeviceID, sealer, qc.RealClock{})
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating queue database: %w", err)
	}

	if err := db.CheckMigrations(); err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("queue schema out of date: %w", err)
	}

	endpoint, err := remote.NewEndpointFromConfig(ctx, cfg.Remote, cfg.DeviceID, timeout)
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating remote endpoint: %w", err)
	}

	signal, err := connectivity.NewSignalFromConfig(cfg.Connectivity)
	if err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("creating connectivity signal: %w", err)
	}
	monitor := connectivity.NewMonitor(ctx, signal, logger)

	coordinator := qc.NewCoordinator(db, db, endpoint, logger, qc.RealClock{}, cfg.Sync.BatchSizeOrDefault())
	capture := qc.NewCapture(db, db, endpoint, monitor, logger, qc.RealClock{})
	scheduler := qc.NewScheduler(coordinator, monitor, logger, retryInterval)
	capture.SetSyncRequester(scheduler)

	return &QCApp{
		cfg:         cfg,
		inv:         inv,
		sealer:      sealer,
		db:          db,
		endpoint:    endpoint,
		monitor:     monitor,
		coordinator: coordinator,
		capture:     capture,
		scheduler:   scheduler,
		logger:      logger,
		logFile:     logFile,
	}, nil
}

// NeedsPassphrase reports whether queued entries cannot be read until Unlock is called.
func (a *QCApp) NeedsPassphrase() bool {
	return a.sealer.Locked()
}

// Unlock unlocks the at-rest sealer so pending entries can be read and synced.
func (a *QCApp) Unlock(passphrase string) error {
	if !a.sealer.IsConfigured() {
		return fmt.Errorf("encryption keys not found, run 'qc config init --encrypt' first")
	}
	if err := a.sealer.Unlock(passphrase); err != nil {
		return fmt.Errorf("unlocking queue: %w", err)
	}
	return nil
}

// Capture stamps the draft with the current time and saves it.
func (a *QCApp) Capture(ctx context.Context, d qc.Draft) (*qc.SubmitResult, error) {
	return a.capture.SubmitDraft(ctx, d)
}

// Pending returns the queued entries in capture order.
func (a *QCApp) Pending() ([]*qc.Record, error) {
	return a.db.ListPending()
}

// Status returns the connectivity state, pending count, most recent pass and
// queue schema version.
func (a *QCApp) Status() (*Status, error) {
	n, err := a.db.Count()
	if err != nil {
		return nil, err
	}
	passes, err := a.db.ListSyncPasses(1)
	if err != nil {
		return nil, err
	}
	schema, err := a.db.SchemaVersion()
	if err != nil {
		return nil, err
	}

	st := &Status{
		DeviceID: a.cfg.DeviceID,
		State:    a.monitor.CurrentState(),
		Pending:  n,
		Schema:   schema,
	}
	if len(passes) > 0 {
		st.LastPass = passes[0]
	}
	return st, nil
}

// Sync runs one pass now. It refuses to run while OFFLINE.
func (a *QCApp) Sync(ctx context.Context) (*qc.SyncReport, error) {
	if a.monitor.CurrentState() != qc.Online {
		return nil, ErrOffline
	}
	return a.coordinator.Sync(ctx, qc.TriggerManual)
}

// Run starts the connectivity monitor and the background sync task and
// blocks until ctx is cancelled. report, if non-nil, receives every pass.
func (a *QCApp) Run(ctx context.Context, report func(*qc.SyncReport)) error {
	if report != nil {
		a.scheduler.OnReport(report)
	}

	a.logger.Info("sync daemon started",
		"device_id", a.cfg.DeviceID,
		"state", a.monitor.CurrentState(),
		"batch_size", a.coordinator.BatchSize(),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("connectivity monitor: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.scheduler.Run(ctx)
	})
	return g.Wait()
}

// SetConnectivity injects a connectivity observation, as an OS hook would.
func (a *QCApp) SetConnectivity(s qc.State) bool {
	return a.monitor.Set(s)
}

// History returns the most recent sync passes, newest first.
func (a *QCApp) History(limit int) ([]*qc.SyncPass, error) {
	return a.db.ListSyncPasses(limit)
}

// Rejections returns the most recent permanently rejected entries, newest first.
func (a *QCApp) Rejections(limit int) ([]*qc.Rejection, error) {
	return a.db.ListRejections(limit)
}

// Clear drops every pending entry. Unsynced captures are lost.
func (a *QCApp) Clear() (int, error) {
	n, err := a.db.Count()
	if err != nil {
		return 0, err
	}
	if err := a.db.Clear(); err != nil {
		return 0, err
	}
	a.logger.Warn("pending queue cleared", "dropped", n)
	return n, nil
}

// Export writes a consistent copy of the queue database to path.
func (a *QCApp) Export(path string) error {
	if err := a.db.BackupTo(path); err != nil {
		return err
	}
	a.logger.Info("queue exported", "path", path)
	return nil
}

// Close closes the queue database and the log file.
func (a *QCApp) Close() error {
	var firstErr error

	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing queue database: %w", err)
	}

	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing log file: %w", err)
		}
	}

	return firstErr
}

// SetupEncryption generates the key pair named by cfg.Encryption, protecting
// the private key with passphrase. It refuses to replace existing keys.
func SetupEncryption(cfg *config.Config, passphrase string) error {
	sealer, err := encryption.NewSealerFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating sealer: %w", err)
	}
	if cfg.Encryption.Type == "age" && sealer.IsConfigured() {
		return fmt.Errorf("encryption keys already exist at %s", cfg.Encryption.PrivateKeyPath)
	}
	if err := sealer.Setup(passphrase); err != nil {
		return fmt.Errorf("setting up encryption: %w", err)
	}
	return nil
}
