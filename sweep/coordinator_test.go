package sweep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/parsonage-engine/notify"
	"github.com/warp/parsonage-engine/property"
	"github.com/warp/parsonage-engine/property/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var d = property.MustParseDate

type sent struct {
	Recipient string
	Subject   string
}

// recordingDispatcher records every send. fail decides whether a send fails.
type recordingDispatcher struct {
	mu       sync.Mutex
	sent     []sent
	attempts int
	fail     func(attempt int, recipient, subject string) error
}

func (r *recordingDispatcher) Send(_ context.Context, recipient, subject, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	if r.fail != nil {
		if err := r.fail(r.attempts, recipient, subject); err != nil {
			return err
		}
	}
	r.sent = append(r.sent, sent{Recipient: recipient, Subject: subject})
	return nil
}

func (r *recordingDispatcher) recipients() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, s := range r.sent {
		out = append(out, s.Recipient)
	}
	return out
}

type fixture struct {
	store      *store.TxMemory
	dispatcher *recordingDispatcher
	coord      *Coordinator
}

func newFixture(t *testing.T, today string) *fixture {
	t.Helper()
	mem := store.NewTxMemory()
	disp := &recordingDispatcher{}
	cfg := property.DefaultConfig()
	c, err := New(mem, mem.Memory, disp, property.FixedClock{Date: d(today)}, cfg, nil)
	require.NoError(t, err)
	return &fixture{store: mem, dispatcher: disp, coord: c}
}

func (f *fixture) setToday(s string) { f.coord.Clock = property.FixedClock{Date: d(s)} }

func (f *fixture) put(t *testing.T, recs ...property.Record) {
	t.Helper()
	for _, r := range recs {
		require.NoError(t, f.store.Put(context.Background(), r), r.RecordID())
	}
}

func (f *fixture) payment(t *testing.T, id property.RecordID) *property.Payment {
	t.Helper()
	rec, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return rec.(*property.Payment)
}

func tenant(id, room, email string) *property.Tenant {
	return &property.Tenant{
		ID: property.RecordID(id), Name: "Tenant " + id, Email: email, RoomID: property.RecordID(room),
		LeaseStart: d("2023-06-01"), MonthlyRent: decimal.NewFromInt(1000),
	}
}

func overdue(id, tenantID string) *property.Payment {
	return &property.Payment{
		ID: property.RecordID(id), TenantID: property.RecordID(tenantID), Period: "2024-01",
		AmountDue: decimal.NewFromInt(1000), DueDate: d("2024-01-05"), Status: property.PaymentDue,
	}
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestRunSweep_OverdueAssessesFeeAndAlertsOnce(t *testing.T) {
	// GIVEN: 1000 due Jan 5, unpaid, five grace days
	// WHEN: Sweeping on Jan 11
	// THEN: Overdue, one 25 fee, one alert
	f := newFixture(t, "2024-01-11")
	f.put(t, tenant("T-1", "R1", "t1@example.com"), overdue("PAY-1", "T-1"))
	ctx := context.Background()

	report, err := f.coord.RunSweep(ctx, ScopePayments)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Notified)
	assert.Equal(t, 1, report.FeesAssessed)
	assert.Empty(t, report.Errors)
	p := f.payment(t, "PAY-1")
	assert.Equal(t, property.PaymentOverdue, p.Status)
	assert.Equal(t, "1025", p.AmountDue.String())
	assert.True(t, property.FeeApplied(p))
	assert.Equal(t, []string{"t1@example.com"}, f.dispatcher.recipients())
}

func TestRunSweep_RetriesOnlyFailedDispatch(t *testing.T) {
	// GIVEN: Two overdue payments; the first alert's send fails once
	// WHEN: Two sweeps run back to back on the same day
	// THEN: The second sweep retries only the failed alert
	f := newFixture(t, "2024-01-11")
	f.put(t,
		tenant("T-1", "R1", "t1@example.com"), overdue("PAY-1", "T-1"),
		tenant("T-2", "R2", "t2@example.com"), overdue("PAY-2", "T-2"),
	)
	f.dispatcher.fail = func(attempt int, _, _ string) error {
		if attempt == 1 {
			return &property.DispatchError{Recipient: "t1@example.com", Err: errors.New("relay timeout")}
		}
		return nil
	}
	ctx := context.Background()

	first, err := f.coord.RunSweep(ctx, ScopeAll)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Failed)
	assert.Equal(t, 1, first.Notified)
	require.Len(t, first.Errors, 1)
	assert.Equal(t, KindDispatch, first.Errors[0].Kind)
	assert.Equal(t, property.RecordID("PAY-1"), first.Errors[0].RecordID)
	assert.False(t, property.FeeApplied(f.payment(t, "PAY-1")), "no fee without a delivered notice")
	assert.True(t, property.FeeApplied(f.payment(t, "PAY-2")))

	second, err := f.coord.RunSweep(ctx, ScopeAll)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Failed)
	assert.Equal(t, 1, second.Notified)
	assert.Equal(t, 1, second.Deduplicated)
	assert.True(t, property.FeeApplied(f.payment(t, "PAY-1")))

	assert.Equal(t, []string{"t2@example.com", "t1@example.com"}, f.dispatcher.recipients())
	assert.Equal(t, 3, f.dispatcher.attempts)
}

func TestRunSweep_IdempotentForSameDay(t *testing.T) {
	f := newFixture(t, "2024-01-11")
	f.put(t,
		&property.Room{ID: "R1"},
		tenant("T-1", "R1", "t1@example.com"), overdue("PAY-1", "T-1"),
	)
	ctx := context.Background()

	_, err := f.coord.RunSweep(ctx, ScopeAll)
	require.NoError(t, err)
	before := f.payment(t, "PAY-1")

	again, err := f.coord.RunSweep(ctx, ScopeAll)

	require.NoError(t, err)
	assert.Equal(t, 0, again.Notified)
	assert.Equal(t, 0, again.StatusUpdates)
	assert.Equal(t, 0, again.FeesAssessed)
	assert.Equal(t, before, f.payment(t, "PAY-1"))
	assert.Len(t, f.dispatcher.recipients(), 1)
}

func TestRunSweep_OneFeeAcrossManyOverdueDays(t *testing.T) {
	// GIVEN: An overdue payment swept every day for two weeks
	// THEN: One fee; alerts on the onset day and after each 7-day cadence
	f := newFixture(t, "2024-01-11")
	f.put(t, tenant("T-1", "R1", "t1@example.com"), overdue("PAY-1", "T-1"))
	ctx := context.Background()

	fees := 0
	for day := d("2024-01-11"); day.Before(d("2024-01-25")); day = day.AddDays(1) {
		f.setToday(day.String())
		report, err := f.coord.RunSweep(ctx, ScopePayments)
		require.NoError(t, err, day.String())
		fees += report.FeesAssessed
	}

	assert.Equal(t, 1, fees)
	assert.Equal(t, "1025", f.payment(t, "PAY-1").AmountDue.String())
	assert.Len(t, f.dispatcher.recipients(), 2, "bucket 0 on Jan 11, bucket 1 on Jan 18")
	assert.Len(t, f.store.LedgerEntries(), 2)
}

func TestRunSweep_InvoiceDayOpensBillingCycle(t *testing.T) {
	f := newFixture(t, "2024-01-25")
	f.put(t, tenant("T-1", "R1", "t1@example.com"))
	ctx := context.Background()

	report, err := f.coord.RunSweep(ctx, ScopePayments)

	require.NoError(t, err)
	assert.Equal(t, 1, report.PaymentsCreated)
	p := f.payment(t, "PAY-T-1-2024-02")
	assert.Equal(t, d("2024-02-01"), p.DueDate)
	assert.Equal(t, "1000", p.AmountDue.String())
	require.Len(t, f.dispatcher.sent, 1)
	assert.Contains(t, f.dispatcher.sent[0].Subject, "invoice for 2024-02")

	again, err := f.coord.RunSweep(ctx, ScopePayments)
	require.NoError(t, err)
	assert.Equal(t, 0, again.PaymentsCreated)
	assert.Equal(t, 0, again.Notified)
}

func TestRunSweep_NoInvoiceWhenLeaseEndsBeforeDueDate(t *testing.T) {
	// GIVEN: A lease ending Jan 31
	// WHEN: Sweeping on the Jan 25 invoice day
	// THEN: No February payment and no February invoice
	f := newFixture(t, "2024-01-25")
	leaving := tenant("T-1", "R1", "t1@example.com")
	leaving.LeaseEnd = d("2024-01-31")
	f.put(t, leaving)

	report, err := f.coord.RunSweep(context.Background(), ScopePayments)

	require.NoError(t, err)
	assert.Equal(t, 0, report.PaymentsCreated)
	assert.Equal(t, 0, report.Notified)
	assert.Empty(t, f.dispatcher.recipients())
}

// =============================================================================
// FAILURE HANDLING
// =============================================================================

// faultyStore fails ListActive for one category, Update for listed ids and
// the next failTx transactions, and can inject extra rows.
type faultyStore struct {
	*store.TxMemory
	failOn     property.Category
	failUpdate map[property.RecordID]bool
	failTx     int
	extra      map[property.Category][]property.Record
}

func (s *faultyStore) ListActive(ctx context.Context, cat property.Category) ([]property.Record, error) {
	if cat == s.failOn {
		return nil, errors.New("disk I/O error")
	}
	recs, err := s.TxMemory.ListActive(ctx, cat)
	return append(recs, s.extra[cat]...), err
}

func (s *faultyStore) Update(ctx context.Context, id property.RecordID, patch property.Patch) error {
	if s.failUpdate[id] {
		return errors.New("database is locked")
	}
	return s.TxMemory.Update(ctx, id, patch)
}

func (s *faultyStore) WithTx(ctx context.Context, fn func(property.Repository) error) error {
	if s.failTx > 0 {
		s.failTx--
		return errors.New("disk full")
	}
	return s.TxMemory.WithTx(ctx, fn)
}

func TestRunSweep_ListFailureAbortsAndIsLogged(t *testing.T) {
	mem := store.NewTxMemory()
	fs := &faultyStore{TxMemory: mem, failOn: property.CategoryPayment}
	c, err := New(fs, mem.Memory, &recordingDispatcher{}, property.FixedClock{Date: d("2024-01-11")}, property.DefaultConfig(), nil)
	require.NoError(t, err)

	report, err := c.RunSweep(context.Background(), ScopeAll)

	require.Error(t, err)
	assert.ErrorIs(t, err, property.ErrStore)
	require.NotNil(t, report)
	runs, _ := mem.ListSweepRuns(context.Background(), 0)
	require.Len(t, runs, 1)
	assert.Equal(t, property.RunFailed, runs[0].Outcome)
	assert.Contains(t, runs[0].Error, "disk I/O error")
	assert.False(t, c.Running(), "lock released after failure")
}

func TestRunSweep_InvalidRecordsSkipped(t *testing.T) {
	// GIVEN: A row that cannot be decoded and a payment for an unknown tenant
	// THEN: Both are reported and skipped; the valid payment is still handled
	mem := store.NewTxMemory()
	fs := &faultyStore{TxMemory: mem, extra: map[property.Category][]property.Record{
		property.CategoryPayment: {&property.MalformedRecord{ID: "PAY-BAD", Kind: property.CategoryPayment, Err: errors.New("amount_due: bad")}},
	}}
	disp := &recordingDispatcher{}
	c, err := New(fs, mem.Memory, disp, property.FixedClock{Date: d("2024-01-11")}, property.DefaultConfig(), nil)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, mem.Put(ctx, tenant("T-1", "R1", "t1@example.com")))
	require.NoError(t, mem.Put(ctx, overdue("PAY-1", "T-1")))
	orphan := overdue("PAY-2", "T-GONE")
	orphan.Period = "2024-01"
	require.NoError(t, mem.Put(ctx, orphan))

	report, err := c.RunSweep(ctx, ScopePayments)

	require.NoError(t, err)
	assert.Equal(t, 2, report.SkippedInvalid)
	assert.Equal(t, 1, report.Notified)
	ids := map[property.RecordID]string{}
	for _, e := range report.Errors {
		ids[e.RecordID] = e.Kind
	}
	assert.Equal(t, KindInvalidRecord, ids["PAY-BAD"])
	assert.Equal(t, KindInvalidRecord, ids["PAY-2"])
}

func TestRunSweep_SingleUpdateFailureSkipsRecord(t *testing.T) {
	// GIVEN: Status writes fail for one payment and one room
	// WHEN: Sweeping
	// THEN: Both are reported as store errors; the rest is updated and alerted
	mem := store.NewTxMemory()
	fs := &faultyStore{TxMemory: mem, failUpdate: map[property.RecordID]bool{"PAY-1": true, "R2": true}}
	disp := &recordingDispatcher{}
	c, err := New(fs, mem.Memory, disp, property.FixedClock{Date: d("2024-01-11")}, property.DefaultConfig(), nil)
	require.NoError(t, err)
	ctx := context.Background()
	for _, rec := range []property.Record{
		&property.Room{ID: "R1"}, &property.Room{ID: "R2", Status: property.RoomVacant},
		tenant("T-1", "R1", "t1@example.com"), overdue("PAY-1", "T-1"),
		tenant("T-2", "R2", "t2@example.com"), overdue("PAY-2", "T-2"),
	} {
		require.NoError(t, mem.Put(ctx, rec))
	}

	report, err := c.RunSweep(ctx, ScopeAll)

	require.NoError(t, err)
	kinds := map[property.RecordID]string{}
	for _, e := range report.Errors {
		kinds[e.RecordID] = e.Kind
	}
	assert.Equal(t, map[property.RecordID]string{"PAY-1": KindStore, "R2": KindStore}, kinds)
	assert.Equal(t, 0, report.SkippedInvalid)
	assert.Equal(t, 2, report.StatusUpdates, "PAY-2 and R1")
	assert.Equal(t, 2, report.Notified)

	rec, err := mem.Get(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, property.RoomOccupied, rec.(*property.Room).Status)
	rec, err = mem.Get(ctx, "R2")
	require.NoError(t, err)
	assert.Equal(t, property.RoomVacant, rec.(*property.Room).Status)
	rec, err = mem.Get(ctx, "PAY-2")
	require.NoError(t, err)
	assert.Equal(t, property.PaymentOverdue, rec.(*property.Payment).Status)
}

func TestRunSweep_CommitFailureAfterDispatchIsRetried(t *testing.T) {
	// GIVEN: The alert is delivered but its commit transaction fails
	// WHEN: Sweeping twice on the same day
	// THEN: The first run reports the failure and records nothing; the second
	// re-sends and applies the fee once
	mem := store.NewTxMemory()
	fs := &faultyStore{TxMemory: mem, failTx: 1}
	disp := &recordingDispatcher{}
	c, err := New(fs, mem.Memory, disp, property.FixedClock{Date: d("2024-01-11")}, property.DefaultConfig(), nil)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, mem.Put(ctx, tenant("T-1", "R1", "t1@example.com")))
	require.NoError(t, mem.Put(ctx, overdue("PAY-1", "T-1")))

	first, err := c.RunSweep(ctx, ScopePayments)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Notified)
	assert.Equal(t, 0, first.FeesAssessed)
	require.Len(t, first.Errors, 1)
	assert.Equal(t, KindStore, first.Errors[0].Kind)
	assert.Contains(t, first.Errors[0].Message, "disk full")
	assert.Empty(t, mem.LedgerEntries())
	rec, err := mem.Get(ctx, "PAY-1")
	require.NoError(t, err)
	assert.False(t, property.FeeApplied(rec.(*property.Payment)))

	second, err := c.RunSweep(ctx, ScopePayments)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Notified)
	assert.Equal(t, 1, second.FeesAssessed)
	rec, err = mem.Get(ctx, "PAY-1")
	require.NoError(t, err)
	assert.Equal(t, "1025", rec.(*property.Payment).AmountDue.String())
	assert.Len(t, mem.LedgerEntries(), 1)
	assert.Len(t, disp.recipients(), 2)
}

func TestRunSweep_FeeMarkedWithoutLedgerEntryIsNotChargedTwice(t *testing.T) {
	// GIVEN: A run that applied the fee but died before its ledger entry landed
	// WHEN: The next sweep runs
	// THEN: The alert is sent again without a second fee
	f := newFixture(t, "2024-01-11")
	marked := overdue("PAY-1", "T-1")
	marked.Status = property.PaymentOverdue
	marked.AmountDue = decimal.NewFromInt(1025)
	marked.LateFee = decimal.NewFromInt(25)
	marked.FeePeriod = "2024-01"
	f.put(t, tenant("T-1", "R1", "t1@example.com"), marked)

	report, err := f.coord.RunSweep(context.Background(), ScopePayments)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Notified)
	assert.Equal(t, 0, report.FeesAssessed)
	p := f.payment(t, "PAY-1")
	assert.Equal(t, "1025", p.AmountDue.String())
	assert.Equal(t, "25", p.LateFee.String())
	assert.Len(t, f.store.LedgerEntries(), 1)
}

func TestRunSweep_FeeAppliedDuringDispatchIsNotRepeated(t *testing.T) {
	// GIVEN: The fee lands on the payment while its alert is being sent
	// WHEN: The alert's commit runs
	// THEN: It re-assesses against the stored payment and applies nothing
	f := newFixture(t, "2024-01-11")
	f.put(t, tenant("T-1", "R1", "t1@example.com"), overdue("PAY-1", "T-1"))
	ctx := context.Background()
	fee := property.AssessLateFee(overdue("PAY-1", "T-1"), d("2024-01-11"), property.DefaultConfig())
	require.NotNil(t, fee)
	f.dispatcher.fail = func(int, string, string) error {
		return f.store.Update(ctx, "PAY-1", fee.Patch())
	}

	report, err := f.coord.RunSweep(ctx, ScopePayments)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Notified)
	assert.Equal(t, 0, report.FeesAssessed)
	assert.Equal(t, "1025", f.payment(t, "PAY-1").AmountDue.String())
	assert.Len(t, f.store.LedgerEntries(), 1)
}

// blockingDispatcher parks every send until released.
type blockingDispatcher struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingDispatcher) Send(ctx context.Context, _, _, _ string) error {
	b.entered <- struct{}{}
	<-b.release
	return nil
}

func TestRunSweep_SecondRunRejectedWhileRunning(t *testing.T) {
	mem := store.NewTxMemory()
	disp := &blockingDispatcher{entered: make(chan struct{}, 1), release: make(chan struct{})}
	c, err := New(mem, mem.Memory, disp, property.FixedClock{Date: d("2024-01-11")}, property.DefaultConfig(), nil)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, mem.Put(ctx, tenant("T-1", "R1", "t1@example.com")))
	require.NoError(t, mem.Put(ctx, overdue("PAY-1", "T-1")))

	done := make(chan error, 1)
	go func() {
		_, err := c.RunSweep(ctx, ScopeAll)
		done <- err
	}()

	select {
	case <-disp.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first sweep never dispatched")
	}

	_, err = c.RunSweep(ctx, ScopeBookings)
	assert.ErrorIs(t, err, property.ErrRunAlreadyInProgress)
	_, err = c.AssessLateFee(ctx, "PAY-1")
	assert.ErrorIs(t, err, property.ErrRunAlreadyInProgress)

	close(disp.release)
	require.NoError(t, <-done)

	report, err := c.RunSweep(ctx, ScopeAll)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deduplicated)
}

func TestRunSweep_RejectedWhileAnotherProcessHoldsLock(t *testing.T) {
	// GIVEN: Two coordinators sharing one store, as the server and the CLI do;
	// the first is parked inside a send
	// WHEN: The second sweeps
	// THEN: It is rejected and sends nothing; after release it deduplicates
	mem := store.NewTxMemory()
	ctx := context.Background()
	require.NoError(t, mem.Put(ctx, tenant("T-1", "R1", "t1@example.com")))
	require.NoError(t, mem.Put(ctx, overdue("PAY-1", "T-1")))
	clock := property.FixedClock{Date: d("2024-01-11")}

	parked := &blockingDispatcher{entered: make(chan struct{}, 1), release: make(chan struct{})}
	server, err := New(mem, mem.Memory, parked, clock, property.DefaultConfig(), nil)
	require.NoError(t, err)
	cliDisp := &recordingDispatcher{}
	cli, err := New(mem, mem.Memory, cliDisp, clock, property.DefaultConfig(), nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := server.RunSweep(ctx, ScopePayments)
		done <- err
	}()
	select {
	case <-parked.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first sweep never dispatched")
	}

	_, err = cli.RunSweep(ctx, ScopePayments)
	assert.ErrorIs(t, err, property.ErrRunAlreadyInProgress)
	_, err = cli.AssessLateFee(ctx, "PAY-1")
	assert.ErrorIs(t, err, property.ErrRunAlreadyInProgress)
	assert.False(t, cli.Running())
	assert.Empty(t, cliDisp.recipients())

	close(parked.release)
	require.NoError(t, <-done)

	report, err := cli.RunSweep(ctx, ScopePayments)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Notified)
	assert.Equal(t, 1, report.Deduplicated)
	assert.Empty(t, cliDisp.recipients())
}

func TestRunSweep_TakesOverExpiredLock(t *testing.T) {
	// GIVEN: A lock left behind by a run that crashed an hour ago
	// WHEN: Sweeping
	// THEN: The expired lock does not block the run
	f := newFixture(t, "2024-01-11")
	f.put(t, tenant("T-1", "R1", "t1@example.com"), overdue("PAY-1", "T-1"))
	ctx := context.Background()
	crashed := time.Now().Add(-time.Hour)
	require.NoError(t, f.store.AcquireRunLock(ctx, property.RunLock{
		Owner: "crashed-run", AcquiredAt: crashed, ExpiresAt: crashed.Add(DefaultLockTTL),
	}))

	report, err := f.coord.RunSweep(ctx, ScopePayments)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Notified)
}

// =============================================================================
// ROOMS
// =============================================================================

func TestRunSweep_RoomCacheMatchesDerivedStatus(t *testing.T) {
	f := newFixture(t, "2024-02-01")
	f.put(t,
		&property.Room{ID: "R1", Status: property.RoomVacant},
		&property.Room{ID: "R2", Status: property.RoomOccupied},
		&property.Room{ID: "R3"},
		&property.Room{ID: "G1", Guest: true},
		&property.Room{ID: "G2", Guest: true, Status: property.RoomOccupied},
		tenant("T-1", "R1", "t1@example.com"),
		tenant("T-3", "R3", "t3@example.com"),
		&property.MaintenanceRequest{ID: "M-1", RoomID: "R3", Description: "boiler", Urgency: property.UrgencyNormal, Status: property.MaintenanceInProgress},
		&property.Booking{ID: "B-1", RoomID: "G1", GuestName: "Hartley", CheckIn: d("2024-02-01"), CheckOut: d("2024-02-03"), Status: property.BookingConfirmed},
		&property.Booking{ID: "B-2", RoomID: "G2", GuestName: "Osei", CheckIn: d("2024-02-05"), CheckOut: d("2024-02-07"), Status: property.BookingConfirmed},
	)
	ctx := context.Background()

	_, err := f.coord.RunSweep(ctx, ScopeBookings)
	require.NoError(t, err)

	want := map[property.RecordID]property.RoomStatus{
		"R1": property.RoomOccupied,
		"R2": property.RoomVacant,
		"R3": property.RoomMaintenance,
		"G1": property.RoomOccupied,
		"G2": property.RoomPending,
	}
	for id, status := range want {
		view, err := f.coord.GetStatus(ctx, id)
		require.NoError(t, err, id)
		assert.Equal(t, string(status), view.Status, id)
		assert.Equal(t, view.Status, view.Stored, "cached status of %s", id)
	}

	rec, err := f.store.Get(ctx, "B-1")
	require.NoError(t, err)
	assert.Equal(t, property.BookingCheckedIn, rec.(*property.Booking).Status)
}

// =============================================================================
// MANUAL LATE FEE
// =============================================================================

func TestAssessLateFee_ManualPath(t *testing.T) {
	f := newFixture(t, "2024-01-12")
	f.put(t, tenant("T-1", "R1", "t1@example.com"), overdue("PAY-1", "T-1"))
	ctx := context.Background()

	fee, err := f.coord.AssessLateFee(ctx, "PAY-1")
	require.NoError(t, err)
	require.NotNil(t, fee)
	assert.Equal(t, "25", fee.Amount.String())

	again, err := f.coord.AssessLateFee(ctx, "PAY-1")
	require.NoError(t, err)
	assert.Nil(t, again)
	assert.Equal(t, "1025", f.payment(t, "PAY-1").AmountDue.String())

	// A sweep the same day sees the alert as already delivered.
	report, err := f.coord.RunSweep(ctx, ScopePayments)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Notified)
	assert.Len(t, f.dispatcher.recipients(), 1)
}

func TestAssessLateFee_AlertAlreadySentThisBucket(t *testing.T) {
	// GIVEN: The Jan 11 alert went out while the late fee was configured as 0
	// WHEN: The fee is raised to 25 and assessed manually on Jan 12
	// THEN: No second alert and no fee; the fee rides the Jan 18 alert
	f := newFixture(t, "2024-01-11")
	f.put(t, tenant("T-1", "R1", "t1@example.com"), overdue("PAY-1", "T-1"))
	ctx := context.Background()
	f.coord.Config.LateFeeAmount = decimal.Zero

	report, err := f.coord.RunSweep(ctx, ScopePayments)
	require.NoError(t, err)
	require.Equal(t, 1, report.Notified)
	require.Equal(t, 0, report.FeesAssessed)

	f.coord.Config.LateFeeAmount = decimal.NewFromInt(25)
	f.setToday("2024-01-12")
	fee, err := f.coord.AssessLateFee(ctx, "PAY-1")

	require.NoError(t, err)
	assert.Nil(t, fee)
	assert.Len(t, f.dispatcher.recipients(), 1)
	assert.False(t, property.FeeApplied(f.payment(t, "PAY-1")))

	f.setToday("2024-01-18")
	report, err = f.coord.RunSweep(ctx, ScopePayments)
	require.NoError(t, err)
	assert.Equal(t, 1, report.FeesAssessed)
	assert.Len(t, f.dispatcher.recipients(), 2)
}

func TestAssessLateFee_NotOverdue(t *testing.T) {
	f := newFixture(t, "2024-01-08")
	f.put(t, tenant("T-1", "R1", "t1@example.com"), overdue("PAY-1", "T-1"))

	fee, err := f.coord.AssessLateFee(context.Background(), "PAY-1")

	require.NoError(t, err)
	assert.Nil(t, fee)
	assert.Empty(t, f.dispatcher.recipients())
}

func TestAssessLateFee_DispatchFailureLeavesPaymentUntouched(t *testing.T) {
	f := newFixture(t, "2024-01-12")
	f.put(t, tenant("T-1", "R1", "t1@example.com"), overdue("PAY-1", "T-1"))
	f.dispatcher.fail = func(int, string, string) error { return errors.New("connection refused") }

	_, err := f.coord.AssessLateFee(context.Background(), "PAY-1")

	assert.ErrorIs(t, err, property.ErrDispatch)
	assert.False(t, property.FeeApplied(f.payment(t, "PAY-1")))
	assert.Empty(t, f.store.LedgerEntries())
}

func TestAssessLateFee_UnknownPayment(t *testing.T) {
	f := newFixture(t, "2024-01-12")
	_, err := f.coord.AssessLateFee(context.Background(), "PAY-404")
	assert.ErrorIs(t, err, property.ErrNotFound)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := property.DefaultConfig()
	cfg.InvoiceDayOfMonth = 0
	_, err := New(store.NewTxMemory(), nil, &recordingDispatcher{}, property.FixedClock{}, cfg, nil)
	assert.Error(t, err)
}

func TestParseScope(t *testing.T) {
	s, err := ParseScope("")
	require.NoError(t, err)
	assert.Equal(t, ScopeAll, s)
	_, err = ParseScope("everything")
	assert.Error(t, err)
}

var _ notify.Dispatcher = (*recordingDispatcher)(nil)
