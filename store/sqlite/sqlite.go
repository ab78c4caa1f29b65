/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements the record store, the notification ledger and the sweep run log
  on SQLite. The engine treats the store as a plain tabular adapter: one table
  per record category, one row per record.

INTERFACES IMPLEMENTED:
  property.TxRepository: Records, ledger, WithTx and the run lock
  property.RunLog:       Sweep history

APPEND-ONLY LEDGER:
  notification_ledger is never updated or deleted from. The primary key on
  key turns a second insert of the same epoch key into ErrDuplicateEpochKey.

KEY TABLES:
  rooms, tenants, payments, bookings, maintenance_requests: Records
  notification_ledger: Delivered notifications, one row per epoch key
  sweep_runs:          Summary of every sweep
  run_lock:            At most one row, the run currently holding the lock

STORAGE FORMATS:
  - Money is stored as TEXT (decimal string) so no precision is lost
  - Dates are stored as TEXT YYYY-MM-DD; an empty string is "no date"
  - Instants are stored as TEXT RFC3339 in UTC

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection, so writes
  made inside WithTx are seen by reads in the same transaction.
  Other processes may open the same file. Transactions begin IMMEDIATE and
  wait up to the busy timeout for the write lock, so the run_lock
  read-then-write cannot interleave with another process.

USAGE:
  store, err := sqlite.New("./data/parsonage.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - property/store.go: Interface definitions
  - property/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/parsonage-engine/property"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per-connection, and a
	// transaction must see its own writes.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		capacity INTEGER NOT NULL DEFAULT 0,
		rate TEXT NOT NULL DEFAULT '0',
		guest INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		room_id TEXT NOT NULL,
		lease_start TEXT NOT NULL,
		lease_end TEXT NOT NULL DEFAULT '',
		monthly_rent TEXT NOT NULL DEFAULT '0',
		moved_out INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_tenants_room
		ON tenants(room_id);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		period TEXT NOT NULL,
		amount_due TEXT NOT NULL,
		amount_paid TEXT NOT NULL DEFAULT '0',
		due_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT '',
		late_fee TEXT NOT NULL DEFAULT '0',
		fee_period TEXT NOT NULL DEFAULT ''
	);

	-- One rent payment per tenant per billing period
	CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_tenant_period
		ON payments(tenant_id, period);
	CREATE INDEX IF NOT EXISTS idx_payments_status
		ON payments(status);

	CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL,
		guest_name TEXT NOT NULL DEFAULT '',
		guest_email TEXT NOT NULL DEFAULT '',
		check_in TEXT NOT NULL,
		check_out TEXT NOT NULL,
		status TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bookings_room_dates
		ON bookings(room_id, check_in, check_out);

	CREATE TABLE IF NOT EXISTS maintenance_requests (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL,
		description TEXT NOT NULL,
		urgency TEXT NOT NULL DEFAULT 'Normal',
		status TEXT NOT NULL,
		reported_on TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_maintenance_status
		ON maintenance_requests(status);

	-- Notification ledger (append-only)
	CREATE TABLE IF NOT EXISTS notification_ledger (
		key TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		record_id TEXT NOT NULL,
		epoch TEXT NOT NULL,
		recipient TEXT NOT NULL,
		run_id TEXT NOT NULL,
		sent_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_record
		ON notification_ledger(record_id);

	-- Sweep runs
	CREATE TABLE IF NOT EXISTS sweep_runs (
		run_id TEXT PRIMARY KEY,
		scope TEXT NOT NULL,
		today TEXT NOT NULL,
		outcome TEXT NOT NULL,
		processed INTEGER DEFAULT 0,
		status_updates INTEGER DEFAULT 0,
		notified INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		skipped_invalid INTEGER DEFAULT 0,
		deduplicated INTEGER DEFAULT 0,
		fees_assessed INTEGER DEFAULT 0,
		error TEXT,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sweep_runs_started
		ON sweep_runs(started_at DESC);

	-- Cross-process run lock
	CREATE TABLE IF NOT EXISTS run_lock (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		owner TEXT NOT NULL,
		acquired_at TEXT NOT NULL,
		expires_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RECORD STORE (property.RecordStore interface)
// =============================================================================

func (s *Store) ListActive(ctx context.Context, category property.Category) ([]property.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listActive(ctx, s.db, category)
}

func (s *Store) Get(ctx context.Context, id property.RecordID) (property.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return get(ctx, s.db, id)
}

func (s *Store) Update(ctx context.Context, id property.RecordID, patch property.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return update(ctx, s.db, id, patch)
}

func (s *Store) Put(ctx context.Context, rec property.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return put(ctx, s.db, rec)
}

// Active-record filters per category.
var activeQueries = map[property.Category]string{
	property.CategoryTenant: `
		SELECT id, name, email, room_id, lease_start, lease_end, monthly_rent, moved_out
		FROM tenants WHERE moved_out = 0 ORDER BY id`,
	property.CategoryRoom: `
		SELECT id, name, capacity, rate, guest, status
		FROM rooms ORDER BY id`,
	property.CategoryPayment: `
		SELECT id, tenant_id, period, amount_due, amount_paid, due_date, status, late_fee, fee_period
		FROM payments WHERE status != 'Paid' ORDER BY id`,
	property.CategoryBooking: `
		SELECT id, room_id, guest_name, guest_email, check_in, check_out, status
		FROM bookings WHERE status NOT IN ('Cancelled', 'Checked Out') ORDER BY id`,
	property.CategoryMaintenance: `
		SELECT id, room_id, description, urgency, status, reported_on
		FROM maintenance_requests WHERE status IN ('Open', 'In Progress') ORDER BY id`,
}

// Single-record lookups per category, in the order Get tries them.
var getQueries = []struct {
	category property.Category
	query    string
}{
	{property.CategoryTenant, `
		SELECT id, name, email, room_id, lease_start, lease_end, monthly_rent, moved_out
		FROM tenants WHERE id = ?`},
	{property.CategoryRoom, `
		SELECT id, name, capacity, rate, guest, status
		FROM rooms WHERE id = ?`},
	{property.CategoryPayment, `
		SELECT id, tenant_id, period, amount_due, amount_paid, due_date, status, late_fee, fee_period
		FROM payments WHERE id = ?`},
	{property.CategoryBooking, `
		SELECT id, room_id, guest_name, guest_email, check_in, check_out, status
		FROM bookings WHERE id = ?`},
	{property.CategoryMaintenance, `
		SELECT id, room_id, description, urgency, status, reported_on
		FROM maintenance_requests WHERE id = ?`},
}

func listActive(ctx context.Context, q querier, category property.Category) ([]property.Record, error) {
	query, ok := activeQueries[category]
	if !ok {
		return nil, fmt.Errorf("unknown category %q", category)
	}

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []property.Record
	for rows.Next() {
		rec, err := scanRecord(category, rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func get(ctx context.Context, q querier, id property.RecordID) (property.Record, error) {
	for _, g := range getQueries {
		rows, err := q.QueryContext(ctx, g.query, id)
		if err != nil {
			return nil, err
		}
		var rec property.Record
		if rows.Next() {
			rec, err = scanRecord(g.category, rows)
		}
		closeErr := rows.Close()
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return rec, closeErr
		}
	}
	return nil, property.ErrNotFound
}

func update(ctx context.Context, q querier, id property.RecordID, patch property.Patch) error {
	rec, err := get(ctx, q, id)
	if err != nil {
		return err
	}
	next, err := property.ApplyPatch(rec, patch)
	if err != nil {
		return err
	}
	return write(ctx, q, next)
}

func put(ctx context.Context, q querier, rec property.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	prev, err := get(ctx, q, rec.RecordID())
	switch {
	case errors.Is(err, property.ErrNotFound):
	case err != nil:
		return err
	case prev.Category() != rec.Category():
		return &property.InvalidRecordError{
			ID:       rec.RecordID(),
			Category: rec.Category(),
			Field:    "id",
			Reason:   "is already used by a " + string(prev.Category()),
		}
	}
	return write(ctx, q, rec)
}

// write upserts a validated record into its table.
func write(ctx context.Context, q querier, rec property.Record) error {
	var err error
	switch r := rec.(type) {
	case *property.Tenant:
		_, err = q.ExecContext(ctx, `
			INSERT INTO tenants (id, name, email, room_id, lease_start, lease_end, monthly_rent, moved_out)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name, email = excluded.email, room_id = excluded.room_id,
				lease_start = excluded.lease_start, lease_end = excluded.lease_end,
				monthly_rent = excluded.monthly_rent, moved_out = excluded.moved_out`,
			r.ID, r.Name, r.Email, r.RoomID, r.LeaseStart.String(), r.LeaseEnd.String(),
			r.MonthlyRent.String(), r.MovedOut,
		)
	case *property.Room:
		_, err = q.ExecContext(ctx, `
			INSERT INTO rooms (id, name, capacity, rate, guest, status)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name, capacity = excluded.capacity, rate = excluded.rate,
				guest = excluded.guest, status = excluded.status`,
			r.ID, r.Name, r.Capacity, r.Rate.String(), r.Guest, string(r.Status),
		)
	case *property.Payment:
		_, err = q.ExecContext(ctx, `
			INSERT INTO payments (id, tenant_id, period, amount_due, amount_paid, due_date, status, late_fee, fee_period)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				tenant_id = excluded.tenant_id, period = excluded.period,
				amount_due = excluded.amount_due, amount_paid = excluded.amount_paid,
				due_date = excluded.due_date, status = excluded.status,
				late_fee = excluded.late_fee, fee_period = excluded.fee_period`,
			r.ID, r.TenantID, r.Period, r.AmountDue.String(), r.AmountPaid.String(),
			r.DueDate.String(), string(r.Status), r.LateFee.String(), r.FeePeriod,
		)
	case *property.Booking:
		_, err = q.ExecContext(ctx, `
			INSERT INTO bookings (id, room_id, guest_name, guest_email, check_in, check_out, status)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				room_id = excluded.room_id, guest_name = excluded.guest_name,
				guest_email = excluded.guest_email, check_in = excluded.check_in,
				check_out = excluded.check_out, status = excluded.status`,
			r.ID, r.RoomID, r.GuestName, r.GuestEmail, r.CheckIn.String(), r.CheckOut.String(),
			string(r.Status),
		)
	case *property.MaintenanceRequest:
		_, err = q.ExecContext(ctx, `
			INSERT INTO maintenance_requests (id, room_id, description, urgency, status, reported_on)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				room_id = excluded.room_id, description = excluded.description,
				urgency = excluded.urgency, status = excluded.status,
				reported_on = excluded.reported_on`,
			r.ID, r.RoomID, r.Description, string(r.Urgency), string(r.Status), r.ReportedOn.String(),
		)
	default:
		return fmt.Errorf("unsupported record type %T", rec)
	}
	if err != nil {
		if isUniqueConstraintError(err) {
			return &property.InvalidRecordError{
				ID: rec.RecordID(), Category: rec.Category(), Reason: "conflicts with an existing record",
			}
		}
		return fmt.Errorf("failed to write %s %s: %w", rec.Category(), rec.RecordID(), err)
	}
	return nil
}

// scanRecord reads one row of the given category. A row whose values cannot
// be decoded becomes a MalformedRecord; only driver errors are returned.
func scanRecord(category property.Category, rows *sql.Rows) (property.Record, error) {
	var d decoder
	switch category {
	case property.CategoryTenant:
		var t property.Tenant
		var leaseStart, leaseEnd, rent string
		if err := rows.Scan(&t.ID, &t.Name, &t.Email, &t.RoomID, &leaseStart, &leaseEnd, &rent, &t.MovedOut); err != nil {
			return nil, err
		}
		t.LeaseStart = d.date(leaseStart)
		t.LeaseEnd = d.date(leaseEnd)
		t.MonthlyRent = d.decimal(rent)
		return d.result(&t), nil

	case property.CategoryRoom:
		var r property.Room
		var rate, status string
		if err := rows.Scan(&r.ID, &r.Name, &r.Capacity, &rate, &r.Guest, &status); err != nil {
			return nil, err
		}
		r.Rate = d.decimal(rate)
		r.Status = property.RoomStatus(status)
		return d.result(&r), nil

	case property.CategoryPayment:
		var p property.Payment
		var due, paid, dueDate, status, lateFee string
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Period, &due, &paid, &dueDate, &status, &lateFee, &p.FeePeriod); err != nil {
			return nil, err
		}
		p.AmountDue = d.decimal(due)
		p.AmountPaid = d.decimal(paid)
		p.DueDate = d.date(dueDate)
		p.Status = property.PaymentStatus(status)
		p.LateFee = d.decimal(lateFee)
		return d.result(&p), nil

	case property.CategoryBooking:
		var b property.Booking
		var checkIn, checkOut, status string
		if err := rows.Scan(&b.ID, &b.RoomID, &b.GuestName, &b.GuestEmail, &checkIn, &checkOut, &status); err != nil {
			return nil, err
		}
		b.CheckIn = d.date(checkIn)
		b.CheckOut = d.date(checkOut)
		b.Status = property.BookingStatus(status)
		return d.result(&b), nil

	case property.CategoryMaintenance:
		var m property.MaintenanceRequest
		var urgency, status, reported string
		if err := rows.Scan(&m.ID, &m.RoomID, &m.Description, &urgency, &status, &reported); err != nil {
			return nil, err
		}
		m.Urgency = property.Urgency(urgency)
		m.Status = property.MaintenanceStatus(status)
		m.ReportedOn = d.date(reported)
		return d.result(&m), nil
	}
	return nil, fmt.Errorf("unknown category %q", category)
}

// decoder collects the first column decoding error of a row.
type decoder struct {
	err error
}

func (d *decoder) date(s string) property.Date {
	v, err := property.ParseDate(s)
	if err != nil && d.err == nil {
		d.err = err
	}
	return v
}

func (d *decoder) decimal(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v
}

func (d *decoder) result(rec property.Record) property.Record {
	if d.err != nil {
		return &property.MalformedRecord{ID: rec.RecordID(), Kind: rec.Category(), Err: d.err}
	}
	return rec
}

// =============================================================================
// LEDGER (property.Ledger interface)
// =============================================================================

func (s *Store) Seen(ctx context.Context, key property.EpochKey) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return seen(ctx, s.db, key)
}

// Record appends an entry to the ledger.
func (s *Store) Record(ctx context.Context, entry property.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return record(ctx, s.db, entry)
}

func seen(ctx context.Context, q querier, key property.EpochKey) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM notification_ledger WHERE key = ?`, string(key)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func record(ctx context.Context, q querier, e property.LedgerEntry) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO notification_ledger (key, category, record_id, epoch, recipient, run_id, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(e.Key), e.Category, string(e.RecordID), e.Epoch, e.Recipient, e.RunID,
		e.SentAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return property.ErrDuplicateEpochKey
		}
		return fmt.Errorf("failed to record ledger entry: %w", err)
	}
	return nil
}

// LedgerEntries returns ledger entries for a record, oldest first.
func (s *Store) LedgerEntries(ctx context.Context, id property.RecordID) ([]property.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT key, category, record_id, epoch, recipient, run_id, sent_at
		FROM notification_ledger WHERE record_id = ? ORDER BY sent_at, key`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []property.LedgerEntry
	for rows.Next() {
		var e property.LedgerEntry
		var key, recordID, sentAt string
		if err := rows.Scan(&key, &e.Category, &recordID, &e.Epoch, &e.Recipient, &e.RunID, &sentAt); err != nil {
			return nil, err
		}
		e.Key = property.EpochKey(key)
		e.RecordID = property.RecordID(recordID)
		e.SentAt, _ = time.Parse(time.RFC3339, sentAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (property.TxRepository interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(property.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) ListActive(ctx context.Context, category property.Category) ([]property.Record, error) {
	return listActive(ctx, ts.tx, category)
}

func (ts *txStore) Get(ctx context.Context, id property.RecordID) (property.Record, error) {
	return get(ctx, ts.tx, id)
}

func (ts *txStore) Update(ctx context.Context, id property.RecordID, patch property.Patch) error {
	return update(ctx, ts.tx, id, patch)
}

func (ts *txStore) Put(ctx context.Context, rec property.Record) error {
	return put(ctx, ts.tx, rec)
}

func (ts *txStore) Seen(ctx context.Context, key property.EpochKey) (bool, error) {
	return seen(ctx, ts.tx, key)
}

func (ts *txStore) Record(ctx context.Context, entry property.LedgerEntry) error {
	return record(ctx, ts.tx, entry)
}

// =============================================================================
// RUN LOCK (property.RunLocker interface)
// =============================================================================

// AcquireRunLock takes the run lock unless another owner holds a live one.
func (s *Store) AcquireRunLock(ctx context.Context, lock property.RunLock) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	var held property.RunLock
	var acquiredAt, expiresAt string
	err = sqlTx.QueryRowContext(ctx,
		`SELECT owner, acquired_at, expires_at FROM run_lock WHERE id = 1`,
	).Scan(&held.Owner, &acquiredAt, &expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return err
	default:
		held.AcquiredAt, _ = time.Parse(time.RFC3339Nano, acquiredAt)
		held.ExpiresAt, _ = time.Parse(time.RFC3339Nano, expiresAt)
		if held.Owner != lock.Owner && !held.Expired(lock.AcquiredAt) {
			return property.HeldError(held)
		}
	}

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO run_lock (id, owner, acquired_at, expires_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner = excluded.owner,
			acquired_at = excluded.acquired_at,
			expires_at = excluded.expires_at`,
		lock.Owner,
		lock.AcquiredAt.UTC().Format(time.RFC3339Nano),
		lock.ExpiresAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}
	return sqlTx.Commit()
}

// ReleaseRunLock deletes the lock row if owner still holds it.
func (s *Store) ReleaseRunLock(ctx context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM run_lock WHERE id = 1 AND owner = ?`, owner)
	return err
}

// =============================================================================
// RUN LOG (property.RunLog interface)
// =============================================================================

// SaveSweepRun saves a sweep run summary.
func (s *Store) SaveSweepRun(ctx context.Context, r property.SweepRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO sweep_runs (run_id, scope, today, outcome, processed, status_updates, notified,
			failed, skipped_invalid, deduplicated, fees_assessed, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			outcome = excluded.outcome,
			processed = excluded.processed,
			status_updates = excluded.status_updates,
			notified = excluded.notified,
			failed = excluded.failed,
			skipped_invalid = excluded.skipped_invalid,
			deduplicated = excluded.deduplicated,
			fees_assessed = excluded.fees_assessed,
			error = excluded.error,
			finished_at = excluded.finished_at
	`

	_, err := s.db.ExecContext(ctx, query,
		r.RunID, r.Scope, r.Today.String(), string(r.Outcome),
		r.Processed, r.StatusUpdates, r.Notified, r.Failed, r.SkippedInvalid,
		r.Deduplicated, r.FeesAssessed, nullString(r.Error),
		r.StartedAt.UTC().Format(time.RFC3339Nano), r.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// ListSweepRuns returns sweep runs, newest first.
func (s *Store) ListSweepRuns(ctx context.Context, limit int) ([]property.SweepRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT run_id, scope, today, outcome, processed, status_updates, notified, failed,
			skipped_invalid, deduplicated, fees_assessed, error, started_at, finished_at
		FROM sweep_runs
		ORDER BY started_at DESC, rowid DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []property.SweepRun
	for rows.Next() {
		var r property.SweepRun
		var today, outcome, startedAt, finishedAt string
		var errMsg sql.NullString
		if err := rows.Scan(
			&r.RunID, &r.Scope, &today, &outcome, &r.Processed, &r.StatusUpdates, &r.Notified,
			&r.Failed, &r.SkippedInvalid, &r.Deduplicated, &r.FeesAssessed, &errMsg,
			&startedAt, &finishedAt,
		); err != nil {
			return nil, err
		}
		r.Today, _ = property.ParseDate(today)
		r.Outcome = property.RunOutcome(outcome)
		r.Error = errMsg.String
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedAt)
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// Reset deletes all data. Used by the sample-data loader.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{
		"rooms", "tenants", "payments", "bookings", "maintenance_requests",
		"notification_ledger", "sweep_runs",
	} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
