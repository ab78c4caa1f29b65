/*
store.go - Record store and notification ledger interfaces

PURPOSE:
  Defines the boundary between the engine and whatever tabular store holds
  the property's records. The engine never assumes a particular database:
  SQLite, an in-memory map or a spreadsheet adapter can all sit behind it.

KEY INTERFACES:
  RecordStore:  Read/write access to tenant, room, payment, booking and
                maintenance rows
  Ledger:       Epoch keys of notifications that were delivered
  TxRepository: Both of the above plus atomic multi-write transactions and
                the run lock
  RunLog:       History of sweeps

RUN LOCK:
  Sweeps and manual late fees may run from separate processes against the
  same store (the server's scheduler and a CLI invocation). The lock lives in
  the store so they exclude each other. A lock carries an expiry; a holder
  that died is taken over once its lock has expired.

LEDGER CONTRACT:
  The ledger is append-only. A key is recorded only after the notification it
  stands for was dispatched successfully, in the same transaction as any fee
  that notification reports. Recording a key twice fails with
  ErrDuplicateEpochKey.

IMPLEMENTATIONS:
  - property/store/memory.go: In-memory for tests and development
  - store/sqlite/sqlite.go:   SQLite for production
*/
package property

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// RECORD STORE
// =============================================================================

// RecordStore reads and writes property records.
type RecordStore interface {
	// ListActive returns the records of a category that a sweep must look at:
	// tenants not moved out, every room, payments not yet stored as Paid,
	// bookings not Cancelled or Checked Out, tickets not Completed or Cancelled.
	// Ordered by RecordID.
	ListActive(ctx context.Context, category Category) ([]Record, error)

	// Get returns a record of any category. Returns ErrNotFound if missing.
	Get(ctx context.Context, id RecordID) (Record, error)

	// Update applies a patch to an existing record.
	Update(ctx context.Context, id RecordID, patch Patch) error

	// Put inserts or replaces a whole record.
	Put(ctx context.Context, rec Record) error
}

// =============================================================================
// LEDGER
// =============================================================================

// EpochKey identifies "this notification, for this record, in this window".
type EpochKey string

// NewEpochKey builds the key category:recordID:epoch.
func NewEpochKey(category string, id RecordID, epoch string) EpochKey {
	return EpochKey(strings.Join([]string{category, string(id), epoch}, ":"))
}

// LedgerEntry records a delivered notification.
type LedgerEntry struct {
	Key       EpochKey
	Category  string
	RecordID  RecordID
	Epoch     string
	Recipient string
	RunID     string
	SentAt    time.Time
}

// Ledger is the de-duplication ledger for notifications.
type Ledger interface {
	// Seen reports whether a key has already been recorded.
	Seen(ctx context.Context, key EpochKey) (bool, error)

	// Record appends an entry. Returns ErrDuplicateEpochKey if the key exists.
	Record(ctx context.Context, entry LedgerEntry) error
}

// =============================================================================
// TRANSACTIONAL REPOSITORY
// =============================================================================

// Repository is a record store together with its ledger.
type Repository interface {
	RecordStore
	Ledger
}

// TxRepository adds atomic transactions and the run lock.
type TxRepository interface {
	Repository
	RunLocker

	// WithTx executes fn within a transaction.
	// If fn returns an error, every write made through the view is rolled back.
	WithTx(ctx context.Context, fn func(Repository) error) error
}

// =============================================================================
// RUN LOCK
// =============================================================================

// RunLock is the store-held lock of one run.
type RunLock struct {
	Owner      string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the lock no longer excludes anyone at now.
func (l RunLock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// RunLocker serializes runs across processes sharing a store.
type RunLocker interface {
	// AcquireRunLock takes the lock for lock.Owner. It wraps
	// ErrRunAlreadyInProgress when another owner holds a lock that has not
	// expired at lock.AcquiredAt.
	AcquireRunLock(ctx context.Context, lock RunLock) error

	// ReleaseRunLock drops the lock if owner holds it. Releasing a lock that
	// was taken over is a no-op.
	ReleaseRunLock(ctx context.Context, owner string) error
}

// HeldError is returned by AcquireRunLock when another live owner holds the lock.
func HeldError(held RunLock) error {
	return fmt.Errorf("%w: held by %s until %s", ErrRunAlreadyInProgress,
		held.Owner, held.ExpiresAt.UTC().Format(time.RFC3339))
}

// =============================================================================
// RUN LOG
// =============================================================================

// RunOutcome is how a sweep ended.
type RunOutcome string

const (
	RunCompleted RunOutcome = "completed"
	RunFailed    RunOutcome = "failed"
)

// SweepRun is the persisted summary of one sweep.
type SweepRun struct {
	RunID          string
	Scope          string
	Today          Date
	Outcome        RunOutcome
	Processed      int
	StatusUpdates  int
	Notified       int
	Failed         int
	SkippedInvalid int
	Deduplicated   int
	FeesAssessed   int
	Error          string
	StartedAt      time.Time
	FinishedAt     time.Time
}

// RunLog stores sweep summaries.
type RunLog interface {
	SaveSweepRun(ctx context.Context, run SweepRun) error
	// ListSweepRuns returns the most recent runs first. limit <= 0 means all.
	ListSweepRuns(ctx context.Context, limit int) ([]SweepRun, error)
}

// =============================================================================
// TYPED LOADERS
// =============================================================================

// Snapshot holds the active records a sweep works on. Records that fail
// validation are kept aside in Invalid and take no further part in the sweep.
type Snapshot struct {
	Today       Date
	Tenants     []*Tenant
	Rooms       []*Room
	Payments    []*Payment
	Bookings    []*Booking
	Maintenance []*MaintenanceRequest
	Invalid     []error
}

// Add validates a record and sorts it into the matching slice.
func (s *Snapshot) Add(rec Record) {
	if err := rec.Validate(); err != nil {
		s.Invalid = append(s.Invalid, err)
		return
	}
	switch r := rec.(type) {
	case *Tenant:
		s.Tenants = append(s.Tenants, r)
	case *Room:
		s.Rooms = append(s.Rooms, r)
	case *Payment:
		s.Payments = append(s.Payments, r)
	case *Booking:
		s.Bookings = append(s.Bookings, r)
	case *MaintenanceRequest:
		s.Maintenance = append(s.Maintenance, r)
	}
}

// Len is the number of records loaded, valid or not.
func (s *Snapshot) Len() int {
	return len(s.Tenants) + len(s.Rooms) + len(s.Payments) + len(s.Bookings) +
		len(s.Maintenance) + len(s.Invalid)
}

// TenantByID returns the snapshot's tenant with the given id, or nil.
func (s *Snapshot) TenantByID(id RecordID) *Tenant {
	for _, t := range s.Tenants {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// LoadSnapshot lists the active records of the given categories.
// Any store failure is returned as-is; the caller decides whether it is fatal.
func LoadSnapshot(ctx context.Context, store RecordStore, today Date, categories ...Category) (*Snapshot, error) {
	snap := &Snapshot{Today: today}
	for _, cat := range categories {
		recs, err := store.ListActive(ctx, cat)
		if err != nil {
			return nil, &StoreError{Op: "list " + string(cat), Err: err}
		}
		for _, rec := range recs {
			snap.Add(rec)
		}
	}
	return snap, nil
}

// IsActive reports whether ListActive should return the record.
func IsActive(rec Record) bool {
	switch r := rec.(type) {
	case *Tenant:
		return !r.MovedOut
	case *Room:
		return true
	case *Payment:
		return r.Status != PaymentPaid
	case *Booking:
		return r.Status != BookingCancelled && r.Status != BookingCheckedOut
	case *MaintenanceRequest:
		return r.IsOpen()
	}
	return false
}

// Clone returns a copy of rec that shares no memory with it.
func Clone(rec Record) Record {
	switch r := rec.(type) {
	case *Tenant:
		c := *r
		return &c
	case *Room:
		c := *r
		return &c
	case *Payment:
		c := *r
		return &c
	case *Booking:
		c := *r
		return &c
	case *MaintenanceRequest:
		c := *r
		return &c
	}
	return rec
}
