/*
Package sweep implements the Run Coordinator.

PURPOSE:
  A sweep is one pass over the active records of a scope: refresh derived
  statuses, open new billing cycles, plan notifications, dispatch them and
  commit what was delivered. Sweeps run from the scheduler, the CLI or the
  HTTP API; all of them go through Coordinator.

RUN LOCK:
  Only one run (sweep or manual late fee) executes at a time. A second run
  fails fast with ErrRunAlreadyInProgress instead of waiting. An in-process
  flag rejects concurrent runs of this coordinator; the store's run lock
  rejects runs from other processes on the same store. The store lock
  expires after LockTTL so a crashed holder does not block forever.

COMMIT ORDER:
  Intents are dispatched one at a time in planner order. After an intent is
  delivered, its ledger entry and any late fee it reports are written in one
  transaction. A failed dispatch writes nothing, so the next run retries it.
  If the process dies between dispatch and commit, the next run sends the
  message again but the fee is still applied once: the commit re-reads the
  payment and skips the fee if its marker is already set.

FAILURES:
  - Listing a scope fails:       sweep aborts, error returned with the report
  - One record is invalid:       skipped, recorded in the report
  - One store write fails:       skipped, recorded in the report
  - One dispatch fails:          recorded, remaining intents still dispatched

SEE ALSO:
  - notify/planner.go: Which intents a sweep produces
  - property/status.go: Status derivation
  - property/fee.go: Late fee assessment
*/
package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/parsonage-engine/metrics"
	"github.com/warp/parsonage-engine/notify"
	"github.com/warp/parsonage-engine/property"
)

// Coordinator runs sweeps and operator actions against a store.
type Coordinator struct {
	Store      property.TxRepository
	Runs       property.RunLog // optional
	Dispatcher notify.Dispatcher
	Clock      property.Clock
	Config     property.Config
	Templates  *notify.Templates
	Logger     *zap.Logger

	// LockTTL bounds how long a store run lock is honoured.
	LockTTL time.Duration

	running atomic.Bool
	now     func() time.Time
}

// New creates a coordinator after validating cfg.
func New(store property.TxRepository, runs property.RunLog, dispatcher notify.Dispatcher,
	clock property.Clock, cfg property.Config, logger *zap.Logger) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	templates, err := notify.DefaultTemplates(cfg.Currency)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		Store:      store,
		Runs:       runs,
		Dispatcher: dispatcher,
		Clock:      clock,
		Config:     cfg,
		Templates:  templates,
		Logger:     logger.Named("sweep"),
		LockTTL:    DefaultLockTTL,
		now:        time.Now,
	}, nil
}

// DefaultLockTTL is longer than any sweep of a single property.
const DefaultLockTTL = 30 * time.Minute

// acquire takes the run lock for runID or fails fast.
func (c *Coordinator) acquire(ctx context.Context, runID string) error {
	if !c.running.CompareAndSwap(false, true) {
		metrics.RunRejected()
		return property.ErrRunAlreadyInProgress
	}
	ttl := c.LockTTL
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	now := c.clockNow()
	err := c.Store.AcquireRunLock(ctx, property.RunLock{Owner: runID, AcquiredAt: now, ExpiresAt: now.Add(ttl)})
	if err == nil {
		return nil
	}
	c.running.Store(false)
	if errors.Is(err, property.ErrRunAlreadyInProgress) {
		metrics.RunRejected()
		return err
	}
	return storeErr("acquire run lock", "", err)
}

func (c *Coordinator) release(ctx context.Context, runID string) {
	if err := c.Store.ReleaseRunLock(context.WithoutCancel(ctx), runID); err != nil {
		c.Logger.Warn("failed to release run lock", zap.String("run_id", runID), zap.Error(err))
	}
	c.running.Store(false)
}

// Running reports whether a run currently holds the lock.
func (c *Coordinator) Running() bool { return c.running.Load() }

func (c *Coordinator) clockNow() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

func (c *Coordinator) planner(cfg property.Config) *notify.Planner {
	return &notify.Planner{Config: cfg, Ledger: c.Store, Templates: c.Templates}
}

// =============================================================================
// SWEEP
// =============================================================================

// RunSweep evaluates every active record of scope as of today and dispatches
// the notifications that are due. The report is returned even when the sweep
// aborts; the error is non-nil only for a failure that stopped the run.
func (c *Coordinator) RunSweep(ctx context.Context, scope Scope) (*SweepReport, error) {
	runID := uuid.NewString()
	if err := c.acquire(ctx, runID); err != nil {
		return nil, err
	}
	defer c.release(ctx, runID)

	cfg := c.Config
	report := &SweepReport{
		RunID:     runID,
		Scope:     scope,
		Today:     c.Clock.Today(),
		StartedAt: c.clockNow(),
	}
	log := c.Logger.With(
		zap.String("run_id", report.RunID),
		zap.String("scope", string(scope)),
		zap.Stringer("today", report.Today),
	)
	log.Info("sweep started")

	err := c.sweep(ctx, cfg, scope, report, log)
	c.finish(ctx, report, err, log)
	return report, err
}

func (c *Coordinator) sweep(ctx context.Context, cfg property.Config, scope Scope, report *SweepReport, log *zap.Logger) error {
	snap, err := property.LoadSnapshot(ctx, c.Store, report.Today, scope.categories()...)
	if err != nil {
		return err
	}
	report.Processed = snap.Len()
	for _, invalid := range snap.Invalid {
		report.addError("", "", invalid)
	}

	if scope.payments() {
		c.loadPaymentTenants(ctx, snap, report)
		c.openBillingCycle(ctx, cfg, snap, report, log)
		c.refreshPayments(ctx, cfg, snap, report)
	}
	if scope.bookings() {
		c.refreshBookings(ctx, snap, report)
		c.refreshRooms(ctx, snap, report)
	}

	plan, err := c.planner(cfg).Plan(ctx, snap, scope.notifications())
	if err != nil {
		return err
	}
	for _, perr := range plan.Errors {
		report.addError("", "", perr)
	}
	report.Deduplicated = len(plan.Deduplicated)
	for _, in := range plan.Deduplicated {
		metrics.Notification(string(in.Category), metrics.ResultDeduplicated)
	}

	for _, in := range plan.Intents {
		c.deliver(ctx, cfg, report.RunID, report.Today, in, report, log)
	}
	return nil
}

// finish stamps the report, logs it and stores the run record.
func (c *Coordinator) finish(ctx context.Context, report *SweepReport, err error, log *zap.Logger) {
	report.FinishedAt = c.clockNow()
	outcome := property.RunCompleted
	if err != nil {
		outcome = property.RunFailed
		log.Error("sweep aborted", zap.Error(err))
	} else {
		log.Info("sweep completed",
			zap.Int("processed", report.Processed),
			zap.Int("status_updates", report.StatusUpdates),
			zap.Int("notified", report.Notified),
			zap.Int("failed", report.Failed),
			zap.Int("skipped_invalid", report.SkippedInvalid),
			zap.Int("deduplicated", report.Deduplicated),
			zap.Int("fees_assessed", report.FeesAssessed),
		)
	}
	metrics.ObserveSweep(string(report.Scope), string(outcome), report.FinishedAt.Sub(report.StartedAt))

	if c.Runs != nil {
		if serr := c.Runs.SaveSweepRun(ctx, report.run(outcome, err)); serr != nil {
			log.Warn("failed to save sweep run", zap.Error(serr))
		}
	}
}

// loadPaymentTenants fetches tenants that are referenced by an outstanding
// payment but no longer active (moved out with a balance).
func (c *Coordinator) loadPaymentTenants(ctx context.Context, snap *property.Snapshot, report *SweepReport) {
	var keep []*property.Payment
	for _, p := range snap.Payments {
		if snap.TenantByID(p.TenantID) != nil {
			keep = append(keep, p)
			continue
		}
		rec, err := c.Store.Get(ctx, p.TenantID)
		if errors.Is(err, property.ErrNotFound) {
			// The planner reports the dangling reference.
			keep = append(keep, p)
			continue
		}
		if err != nil {
			report.addError(p.ID, string(property.CategoryPayment), &property.StoreError{Op: "get tenant", ID: p.TenantID, Err: err})
			continue
		}
		if t, ok := rec.(*property.Tenant); ok {
			snap.Tenants = append(snap.Tenants, t)
		}
		keep = append(keep, p)
	}
	snap.Payments = keep
}

// openBillingCycle creates next period's payment for every leased tenant on
// the invoice day. Payment ids are deterministic, so re-running is a no-op.
func (c *Coordinator) openBillingCycle(ctx context.Context, cfg property.Config, snap *property.Snapshot, report *SweepReport, log *zap.Logger) {
	today := snap.Today
	if !today.Equal(cfg.InvoiceDate(today)) {
		return
	}
	due := cfg.NextDueDate(today)
	for _, t := range snap.Tenants {
		if !t.OccupiesOn(today) || !t.OccupiesOn(due) || !t.MonthlyRent.IsPositive() {
			continue
		}
		pay := NewRentPayment(t, due)
		if _, err := c.Store.Get(ctx, pay.ID); err == nil {
			continue
		} else if !errors.Is(err, property.ErrNotFound) {
			report.addError(t.ID, string(property.CategoryTenant), &property.StoreError{Op: "get payment", ID: pay.ID, Err: err})
			continue
		}
		if err := c.Store.Put(ctx, pay); err != nil {
			report.addError(pay.ID, string(property.CategoryPayment), storeErr("create payment", pay.ID, err))
			continue
		}
		snap.Payments = append(snap.Payments, pay)
		report.PaymentsCreated++
		log.Debug("opened billing cycle", zap.String("payment_id", string(pay.ID)), zap.String("period", pay.Period))
	}
}

// NewRentPayment is the payment for a tenant's rent due on the given day.
func NewRentPayment(t *property.Tenant, due property.Date) *property.Payment {
	period := due.BillingPeriod()
	return &property.Payment{
		ID:        property.RecordID(fmt.Sprintf("PAY-%s-%s", t.ID, period)),
		TenantID:  t.ID,
		Period:    period,
		AmountDue: t.MonthlyRent,
		DueDate:   due,
		Status:    property.PaymentDue,
	}
}

func (c *Coordinator) refreshPayments(ctx context.Context, cfg property.Config, snap *property.Snapshot, report *SweepReport) {
	for _, p := range snap.Payments {
		status := property.PaymentStatusOf(p, snap.Today, cfg.GracePeriodDays)
		if status == p.Status {
			continue
		}
		if err := c.Store.Update(ctx, p.ID, property.StatusPatch(status)); err != nil {
			report.addError(p.ID, string(property.CategoryPayment), storeErr("update status", p.ID, err))
			continue
		}
		p.Status = status
		report.StatusUpdates++
	}
}

func (c *Coordinator) refreshBookings(ctx context.Context, snap *property.Snapshot, report *SweepReport) {
	for _, b := range snap.Bookings {
		status := property.BookingStatusOf(b, snap.Today)
		if status == b.Status {
			continue
		}
		if err := c.Store.Update(ctx, b.ID, property.StatusPatch(status)); err != nil {
			report.addError(b.ID, string(property.CategoryBooking), storeErr("update status", b.ID, err))
			// Keep deriving rooms from the calendar even if the cache is stale.
		} else {
			report.StatusUpdates++
		}
		b.Status = status
	}
}

func (c *Coordinator) refreshRooms(ctx context.Context, snap *property.Snapshot, report *SweepReport) {
	for _, r := range snap.Rooms {
		status, err := property.ResolveRoomStatus(r, snap.Tenants, snap.Bookings, snap.Maintenance, snap.Today)
		if err != nil {
			report.addError(r.ID, string(property.CategoryRoom), err)
			continue
		}
		if status == r.Status {
			continue
		}
		if err := c.Store.Update(ctx, r.ID, property.StatusPatch(status)); err != nil {
			report.addError(r.ID, string(property.CategoryRoom), storeErr("update status", r.ID, err))
			continue
		}
		r.Status = status
		report.StatusUpdates++
	}
}

// =============================================================================
// DELIVERY
// =============================================================================

// deliver dispatches one intent and commits it on success.
func (c *Coordinator) deliver(ctx context.Context, cfg property.Config, runID string, today property.Date,
	in notify.Intent, report *SweepReport, log *zap.Logger) {
	category := string(in.Category)

	// An earlier intent of this run may have recorded the same key.
	seen, err := c.Store.Seen(ctx, in.Key())
	if err != nil {
		report.addError(in.SubjectID, category, &property.StoreError{Op: "ledger lookup", ID: in.SubjectID, Err: err})
		return
	}
	if seen {
		report.Deduplicated++
		metrics.Notification(category, metrics.ResultDeduplicated)
		return
	}

	if err := c.dispatch(ctx, in); err != nil {
		report.Failed++
		report.addError(in.SubjectID, category, err)
		metrics.Notification(category, metrics.ResultFailed)
		log.Warn("dispatch failed",
			zap.String("category", category),
			zap.String("record_id", string(in.SubjectID)),
			zap.Error(err),
		)
		return
	}
	report.Notified++
	metrics.Notification(category, metrics.ResultSent)

	fee, err := c.commit(ctx, cfg, runID, today, in)
	if err != nil {
		report.addError(in.SubjectID, category, err)
		log.Error("commit after dispatch failed",
			zap.String("category", category),
			zap.String("record_id", string(in.SubjectID)),
			zap.Error(err),
		)
		return
	}
	if fee != nil {
		report.FeesAssessed++
		metrics.LateFeeAssessed()
		log.Info("late fee assessed",
			zap.String("payment_id", string(fee.PaymentID)),
			zap.String("period", fee.Period),
			zap.Stringer("amount", fee.Amount),
		)
	}
}

func (c *Coordinator) dispatch(ctx context.Context, in notify.Intent) error {
	err := c.Dispatcher.Send(ctx, in.Recipient, in.Subject, in.Body)
	if err == nil {
		return nil
	}
	if errors.Is(err, property.ErrDispatch) {
		return err
	}
	return &property.DispatchError{Recipient: in.Recipient, Err: err}
}

// commit records a delivered intent and applies the fee it reported, in one
// transaction. Returns the fee actually applied, if any.
func (c *Coordinator) commit(ctx context.Context, cfg property.Config, runID string, today property.Date, in notify.Intent) (*property.FeeAssessment, error) {
	var applied *property.FeeAssessment
	err := c.Store.WithTx(ctx, func(repo property.Repository) error {
		entry := property.LedgerEntry{
			Key:       in.Key(),
			Category:  string(in.Category),
			RecordID:  in.SubjectID,
			Epoch:     in.Epoch,
			Recipient: in.Recipient,
			RunID:     runID,
			SentAt:    c.clockNow(),
		}
		if err := repo.Record(ctx, entry); err != nil && !errors.Is(err, property.ErrDuplicateEpochKey) {
			return err
		}
		if in.Fee == nil {
			return nil
		}

		// Assess again against the stored payment: a concurrent receipt or an
		// earlier interrupted run may have changed it since planning.
		rec, err := repo.Get(ctx, in.Fee.PaymentID)
		if err != nil {
			return err
		}
		pay, ok := rec.(*property.Payment)
		if !ok {
			return fmt.Errorf("%s is not a payment", in.Fee.PaymentID)
		}
		fee := property.AssessLateFee(pay, today, cfg)
		if fee == nil || !fee.Amount.Equal(in.Fee.Amount) {
			return nil
		}
		patch := fee.Patch()
		patch.Status = string(property.PaymentOverdue)
		if err := repo.Update(ctx, pay.ID, patch); err != nil {
			return err
		}
		applied = fee
		return nil
	})
	if err != nil {
		return nil, storeErr("commit", in.SubjectID, err)
	}
	return applied, nil
}

// =============================================================================
// MANUAL LATE FEE
// =============================================================================

// AssessLateFee is the manual override path: it assesses the late fee on one
// payment now, tells the tenant, and commits the fee once the notice is
// delivered. Returns nil when no fee applies. Shares the run lock with sweeps.
func (c *Coordinator) AssessLateFee(ctx context.Context, paymentID property.RecordID) (*property.FeeAssessment, error) {
	runID := uuid.NewString()
	if err := c.acquire(ctx, runID); err != nil {
		return nil, err
	}
	defer c.release(ctx, runID)

	cfg := c.Config
	today := c.Clock.Today()
	log := c.Logger.With(zap.String("run_id", runID), zap.String("payment_id", string(paymentID)))

	rec, err := c.Store.Get(ctx, paymentID)
	if err != nil {
		return nil, storeErr("get", paymentID, err)
	}
	pay, ok := rec.(*property.Payment)
	if !ok {
		return nil, &property.InvalidRecordError{
			ID: paymentID, Category: rec.Category(), Reason: "is not a payment",
		}
	}
	if err := pay.Validate(); err != nil {
		return nil, err
	}

	var tenant *property.Tenant
	if trec, err := c.Store.Get(ctx, pay.TenantID); err == nil {
		tenant, _ = trec.(*property.Tenant)
	} else if !errors.Is(err, property.ErrNotFound) {
		return nil, storeErr("get tenant", pay.TenantID, err)
	}

	in, ok, err := c.planner(cfg).LateAlert(pay, tenant, today)
	if err != nil {
		return nil, err
	}
	if !ok || in.Fee == nil {
		log.Info("no late fee applies",
			zap.String("status", string(property.PaymentStatusOf(pay, today, cfg.GracePeriodDays))))
		return nil, nil
	}

	// The alert for this escalation bucket already went out without a fee.
	// The fee waits for the next bucket's alert, as in a sweep.
	seen, err := c.Store.Seen(ctx, in.Key())
	if err != nil {
		return nil, &property.StoreError{Op: "ledger lookup", ID: paymentID, Err: err}
	}
	if seen {
		metrics.Notification(string(in.Category), metrics.ResultDeduplicated)
		log.Info("late alert already sent for this period, fee deferred", zap.String("epoch", in.Epoch))
		return nil, nil
	}

	if err := c.dispatch(ctx, in); err != nil {
		metrics.Notification(string(in.Category), metrics.ResultFailed)
		log.Warn("dispatch failed, fee not applied", zap.Error(err))
		return nil, err
	}
	metrics.Notification(string(in.Category), metrics.ResultSent)

	fee, err := c.commit(ctx, cfg, runID, today, in)
	if err != nil {
		return nil, err
	}
	if fee != nil {
		metrics.LateFeeAssessed()
		log.Info("late fee assessed", zap.String("period", fee.Period), zap.Stringer("amount", fee.Amount))
	}
	return fee, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// storeErr wraps store failures. Errors that already carry a kind (not found,
// invalid record, invalid transition) are returned unchanged.
func storeErr(op string, id property.RecordID, err error) error {
	if errors.Is(err, property.ErrNotFound) || errors.Is(err, property.ErrInvalidRecord) ||
		errors.Is(err, property.ErrInvalidTransition) || errors.Is(err, property.ErrStore) {
		return err
	}
	return &property.StoreError{Op: op, ID: id, Err: err}
}
