package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"qcsync/internal/database/migrations"
	"qcsync/internal/qc"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements qc.Queue and qc.Journal on a single SQLite file.
// Entry payloads are stored as sealed JSON so the on-disk queue can be
// encrypted at rest.
type SQLiteDatabase struct {
	db     *sql.DB
	sealer qc.Sealer
	clock  qc.Clock
	path   string
}

var (
	_ qc.Queue   = (*SQLiteDatabase)(nil)
	_ qc.Journal = (*SQLiteDatabase)(nil)
)

// NewSQLiteDatabase opens (creating if needed) the database at path and
// brings its schema up to date. path can be ":memory:".
// A nil sealer stores payloads in plaintext; a nil clock uses the real clock.
func NewSQLiteDatabase(path string, sealer qc.Sealer, clock qc.Clock) (*SQLiteDatabase, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	s := NewSQLiteDatabaseFromDB(db, sealer, clock)
	s.path = path
	return s, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB, sealer qc.Sealer, clock qc.Clock) *SQLiteDatabase {
	if sealer == nil {
		sealer = plainSealer{}
	}
	if clock == nil {
		clock = qc.RealClock{}
	}
	return &SQLiteDatabase{
		db:     db,
		sealer: sealer,
		clock:  clock,
	}
}

// OpenConnection opens and configures a SQLite database connection.
// The connection is tuned for durability: every committed append is synced
// to disk before the call returns.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One writer; also keeps a ":memory:" database on a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	return db, nil
}

// Queue operations

func (s *SQLiteDatabase) Append(entry qc.Entry) (*qc.Record, error) {
	entry = entry.Clone()

	payload, err := s.encode(entry)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", qc.ErrDurability, err)
	}

	queuedAt := s.clock.Now().UTC()
	res, err := s.db.Exec(
		"INSERT INTO queue_records (idempotency_key, payload, queued_at) VALUES (?, ?, ?)",
		entry.IdempotencyKey(), payload, queuedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: inserting queue record: %w", qc.ErrDurability, err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%w: reading sequence number: %w", qc.ErrDurability, err)
	}

	return &qc.Record{Sequence: seq, Entry: entry, QueuedAt: queuedAt}, nil
}

func (s *SQLiteDatabase) ListPending() ([]*qc.Record, error) {
	rows, err := s.db.Query("SELECT sequence, payload, queued_at FROM queue_records ORDER BY sequence ASC")
	if err != nil {
		return nil, fmt.Errorf("listing queue records: %w", err)
	}
	defer rows.Close()

	type row struct {
		seq      int64
		payload  []byte
		queuedAt time.Time
	}
	var raw []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.seq, &r.payload, &r.queuedAt); err != nil {
			return nil, fmt.Errorf("scanning queue record: %w", err)
		}
		raw = append(raw, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating queue records: %w", err)
	}

	records := make([]*qc.Record, len(raw))
	for i, r := range raw {
		entry, err := s.decode(r.payload)
		if err != nil {
			return nil, fmt.Errorf("decoding queue record %d: %w", r.seq, err)
		}
		records[i] = &qc.Record{Sequence: r.seq, Entry: entry, QueuedAt: r.queuedAt}
	}
	return records, nil
}

func (s *SQLiteDatabase) Remove(sequences []int64) error {
	if len(sequences) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("DELETE FROM queue_records WHERE sequence = ?")
	if err != nil {
		return fmt.Errorf("preparing delete: %w", err)
	}
	defer stmt.Close()

	for _, seq := range sequences {
		if _, err := stmt.Exec(seq); err != nil {
			return fmt.Errorf("removing queue record %d: %w", seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) Clear() error {
	if _, err := s.db.Exec("DELETE FROM queue_records"); err != nil {
		return fmt.Errorf("clearing queue: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) Count() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM queue_records").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting queue records: %w", err)
	}
	return n, nil
}

// Journal operations

func (s *SQLiteDatabase) StartSyncPass(trigger qc.Trigger, startedAt time.Time, pending int) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO sync_passes (triggered_by, started_at, status, pending) VALUES (?, ?, 'running', ?)",
		string(trigger), startedAt.UTC(), pending,
	)
	if err != nil {
		return 0, fmt.Errorf("creating sync pass: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading sync pass id: %w", err)
	}
	return id, nil
}

func (s *SQLiteDatabase) FinishSyncPass(id int64, report *qc.SyncReport, finishedAt time.Time, passErr error) error {
	status := "complete"
	errText := ""
	switch {
	case passErr != nil:
		status = "error"
		errText = passErr.Error()
	case report.Interrupted():
		status = "interrupted"
		errText = report.TransportErr.Error()
	}

	_, err := s.db.Exec(
		`UPDATE sync_passes
		 SET finished_at = ?, status = ?, accepted = ?, rejected = ?, deferred = ?, error = ?
		 WHERE id = ?`,
		finishedAt.UTC(), status, len(report.Accepted), len(report.Rejections), report.Deferred, errText, id,
	)
	if err != nil {
		return fmt.Errorf("finishing sync pass: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListSyncPasses(limit int) ([]*qc.SyncPass, error) {
	rows, err := s.db.Query(
		`SELECT id, triggered_by, started_at, finished_at, status, pending, accepted, rejected, deferred, error
		 FROM sync_passes ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sync passes: %w", err)
	}
	defer rows.Close()

	var passes []*qc.SyncPass
	for rows.Next() {
		var p qc.SyncPass
		var trigger string
		var finished sql.NullTime
		if err := rows.Scan(&p.ID, &trigger, &p.StartedAt, &finished, &p.Status,
			&p.Pending, &p.Accepted, &p.Rejected, &p.Deferred, &p.Error); err != nil {
			return nil, fmt.Errorf("scanning sync pass: %w", err)
		}
		p.Trigger = qc.Trigger(trigger)
		if finished.Valid {
			t := finished.Time
			p.FinishedAt = &t
		}
		passes = append(passes, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sync passes: %w", err)
	}
	return passes, nil
}

func (s *SQLiteDatabase) RecordRejections(rejections []*qc.Rejection) error {
	if len(rejections) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR IGNORE INTO rejections
		 (sequence, idempotency_key, farmer_delivery_id, product_id, reason, payload, rejected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rejections {
		payload, err := s.encode(r.Entry)
		if err != nil {
			return fmt.Errorf("encoding rejected entry %d: %w", r.Sequence, err)
		}
		// Direct-submit rejections were never queued and carry no sequence.
		var seq sql.NullInt64
		if r.Sequence != 0 {
			seq = sql.NullInt64{Int64: r.Sequence, Valid: true}
		}
		if _, err := stmt.Exec(seq, r.Entry.IdempotencyKey(), r.Entry.FarmerDeliveryID,
			r.Entry.ProductID, r.Reason, payload, r.RejectedAt.UTC()); err != nil {
			return fmt.Errorf("recording rejection %d: %w", r.Sequence, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListRejections(limit int) ([]*qc.Rejection, error) {
	rows, err := s.db.Query(
		`SELECT COALESCE(sequence, 0), reason, payload, rejected_at FROM rejections
		 ORDER BY rejected_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing rejections: %w", err)
	}
	defer rows.Close()

	type row struct {
		seq        int64
		reason     string
		payload    []byte
		rejectedAt time.Time
	}
	var raw []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.seq, &r.reason, &r.payload, &r.rejectedAt); err != nil {
			return nil, fmt.Errorf("scanning rejection: %w", err)
		}
		raw = append(raw, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rejections: %w", err)
	}

	result := make([]*qc.Rejection, len(raw))
	for i, r := range raw {
		entry, err := s.decode(r.payload)
		if err != nil {
			return nil, fmt.Errorf("decoding rejection %d: %w", r.seq, err)
		}
		result[i] = &qc.Rejection{Sequence: r.seq, Entry: entry, Reason: r.reason, RejectedAt: r.rejectedAt}
	}
	return result, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.Check(s.db)
}

// SchemaVersion reports the applied schema version and the latest one this
// binary knows.
func (s *SQLiteDatabase) SchemaVersion() (migrations.Status, error) {
	return migrations.Inspect(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteDatabase) encode(entry qc.Entry) ([]byte, error) {
	plain, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encoding entry: %w", err)
	}
	sealed, err := s.sealer.Seal(plain)
	if err != nil {
		return nil, fmt.Errorf("sealing entry: %w", err)
	}
	return sealed, nil
}

func (s *SQLiteDatabase) decode(payload []byte) (qc.Entry, error) {
	plain, err := s.sealer.Open(payload)
	if err != nil {
		return qc.Entry{}, fmt.Errorf("opening payload: %w", err)
	}
	var entry qc.Entry
	if err := json.Unmarshal(plain, &entry); err != nil {
		return qc.Entry{}, fmt.Errorf("decoding entry: %w", err)
	}
	if entry.RejectionReasons == nil {
		entry.RejectionReasons = []string{}
	}
	return entry, nil
}

// plainSealer stores payloads unchanged.
type plainSealer struct{}

func (plainSealer) Seal(p []byte) ([]byte, error) { return p, nil }
func (plainSealer) Open(p []byte) ([]byte, error) { return p, nil }
