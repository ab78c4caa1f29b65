package notify

import (
	"context"
	"fmt"
	"sort"

	"github.com/warp/parsonage-engine/property"
)

// =============================================================================
// PLANNER
// =============================================================================

// Planner computes the notifications a sweep must send.
type Planner struct {
	Config    property.Config
	Ledger    property.Ledger
	Templates *Templates
}

// Plan is the outcome of planning one sweep.
type Plan struct {
	// Intents to dispatch, in dispatch order.
	Intents []Intent

	// Deduplicated are intents whose key the ledger already holds.
	Deduplicated []Intent

	// Errors are per-record problems (a payment without a tenant, a tenant
	// without an address). The affected notification is skipped.
	Errors []error
}

// Plan evaluates every notification rule of the given categories against the
// snapshot. Payment and booking records must be valid; the snapshot's
// tenants are used for addresses and invoices.
func (p *Planner) Plan(ctx context.Context, snap *property.Snapshot, categories []Category) (*Plan, error) {
	want := make(map[Category]bool, len(categories))
	for _, c := range categories {
		want[c] = true
	}

	plan := &Plan{}
	var candidates []Intent
	add := func(in Intent, err error) {
		if err != nil {
			plan.Errors = append(plan.Errors, err)
			return
		}
		candidates = append(candidates, in)
	}

	if want[LatePaymentAlert] || want[RentReminder] {
		for _, pay := range snap.Payments {
			tenant := snap.TenantByID(pay.TenantID)
			if want[LatePaymentAlert] {
				if in, ok, err := p.LateAlert(pay, tenant, snap.Today); ok || err != nil {
					add(in, err)
				}
			}
			if want[RentReminder] {
				if in, ok, err := p.reminder(pay, tenant, snap.Today); ok || err != nil {
					add(in, err)
				}
			}
		}
	}

	if want[MonthlyInvoice] && snap.Today.Equal(p.Config.InvoiceDate(snap.Today)) {
		for _, t := range snap.Tenants {
			if in, ok, err := p.invoice(t, snap); ok || err != nil {
				add(in, err)
			}
		}
	}

	if want[MaintenanceAlert] && p.Config.ManagerEmail != "" {
		for _, m := range snap.Maintenance {
			if in, ok, err := p.maintenanceAlert(m, snap.Today); ok || err != nil {
				add(in, err)
			}
		}
	}

	if want[GuestDigest] && p.Config.ManagerEmail != "" {
		if in, ok, err := p.digest(snap); ok || err != nil {
			add(in, err)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool { return less(candidates[i], candidates[j]) })

	for _, in := range candidates {
		seen, err := p.Ledger.Seen(ctx, in.Key())
		if err != nil {
			plan.Errors = append(plan.Errors, &property.StoreError{Op: "ledger lookup", ID: in.SubjectID, Err: err})
			continue
		}
		if seen {
			plan.Deduplicated = append(plan.Deduplicated, in)
			continue
		}
		plan.Intents = append(plan.Intents, in)
	}
	return plan, nil
}

// =============================================================================
// RULES
// =============================================================================

// LateAlert fires while a payment is Overdue, once per escalation bucket.
// Bucket n covers days [onset + n*cadence, onset + (n+1)*cadence).
func (p *Planner) LateAlert(pay *property.Payment, tenant *property.Tenant, today property.Date) (Intent, bool, error) {
	if property.PaymentStatusOf(pay, today, p.Config.GracePeriodDays) != property.PaymentOverdue {
		return Intent{}, false, nil
	}
	if err := p.requireAddress(pay, tenant); err != nil {
		return Intent{}, false, err
	}

	fee := property.AssessLateFee(pay, today, p.Config)
	balance := pay.Outstanding()
	if fee != nil {
		balance = balance.Add(fee.Amount)
	}

	in := Intent{
		Category:  LatePaymentAlert,
		Recipient: tenant.Email,
		SubjectID: pay.ID,
		Epoch:     LateAlertEpoch(pay, today, p.Config),
		Fee:       fee,
	}
	msg := p.message(today)
	msg.Tenant, msg.Payment, msg.Fee = tenant, pay, fee
	msg.Period, msg.Amount, msg.DueDate = pay.Period, balance, pay.DueDate
	return p.render(in, msg)
}

// LateAlertEpoch returns the escalation bucket of an overdue payment.
func LateAlertEpoch(pay *property.Payment, today property.Date, cfg property.Config) string {
	n := 0
	if cfg.EscalationCadenceDays > 0 {
		days := today.DaysSince(property.OverdueSince(pay, cfg.GracePeriodDays))
		if days > 0 {
			n = days / cfg.EscalationCadenceDays
		}
	}
	return fmt.Sprintf("%s#%d", pay.Period, n)
}

// reminder fires once, reminderLeadDays before the due date.
func (p *Planner) reminder(pay *property.Payment, tenant *property.Tenant, today property.Date) (Intent, bool, error) {
	if property.PaymentStatusOf(pay, today, p.Config.GracePeriodDays) != property.PaymentDue {
		return Intent{}, false, nil
	}
	if !today.Equal(pay.DueDate.AddDays(-p.Config.ReminderLeadDays)) {
		return Intent{}, false, nil
	}
	if err := p.requireAddress(pay, tenant); err != nil {
		return Intent{}, false, err
	}

	in := Intent{
		Category:  RentReminder,
		Recipient: tenant.Email,
		SubjectID: pay.ID,
		Epoch:     today.String(),
	}
	msg := p.message(today)
	msg.Tenant, msg.Payment = tenant, pay
	msg.Period, msg.Amount, msg.DueDate = pay.Period, pay.Outstanding(), pay.DueDate
	return p.render(in, msg)
}

// invoice fires on the invoice day for every tenant whose lease is active.
// It bills the period of the next rent due date, and only when that period
// is billed: a payment exists for it, or the lease covers the due date at a
// positive rent (the same rule that opens the billing cycle).
func (p *Planner) invoice(t *property.Tenant, snap *property.Snapshot) (Intent, bool, error) {
	if property.TenantStatusOf(t, snap.Today) != property.TenantActive {
		return Intent{}, false, nil
	}

	due := p.Config.NextDueDate(snap.Today)
	period := due.BillingPeriod()
	amount := t.MonthlyRent
	var pay *property.Payment
	for _, candidate := range snap.Payments {
		if candidate.TenantID == t.ID && candidate.Period == period {
			pay = candidate
			amount = candidate.Outstanding()
			due = candidate.DueDate
			break
		}
	}
	if pay == nil && (!t.OccupiesOn(due) || !t.MonthlyRent.IsPositive()) {
		return Intent{}, false, nil
	}

	if t.Email == "" {
		return Intent{}, false, &property.InvalidRecordError{
			ID: t.ID, Category: property.CategoryTenant, Field: "email", Reason: "is required for invoices",
		}
	}

	in := Intent{
		Category:  MonthlyInvoice,
		Recipient: t.Email,
		SubjectID: t.ID,
		Epoch:     period,
	}
	msg := p.message(snap.Today)
	msg.Tenant, msg.Payment = t, pay
	msg.Period, msg.Amount, msg.DueDate = period, amount, due
	return p.render(in, msg)
}

// maintenanceAlert fires once for each High or Urgent ticket still Open.
func (p *Planner) maintenanceAlert(m *property.MaintenanceRequest, today property.Date) (Intent, bool, error) {
	if m.Status != property.MaintenanceOpen || !m.Urgency.Escalates() {
		return Intent{}, false, nil
	}
	in := Intent{
		Category:  MaintenanceAlert,
		Recipient: p.Config.ManagerEmail,
		SubjectID: m.ID,
		Epoch:     "open",
	}
	msg := p.message(today)
	msg.Request = m
	return p.render(in, msg)
}

// digest collects today's arrivals and departures into one message.
func (p *Planner) digest(snap *property.Snapshot) (Intent, bool, error) {
	msg := p.message(snap.Today)
	for _, b := range snap.Bookings {
		switch property.BookingStatusOf(b, snap.Today) {
		case property.BookingPending, property.BookingCancelled:
			continue
		}
		if b.CheckIn.Equal(snap.Today) {
			msg.Arrivals = append(msg.Arrivals, b)
		}
		if b.CheckOut.Equal(snap.Today) {
			msg.Departures = append(msg.Departures, b)
		}
	}
	if len(msg.Arrivals) == 0 && len(msg.Departures) == 0 {
		return Intent{}, false, nil
	}

	in := Intent{
		Category:  GuestDigest,
		Recipient: p.Config.ManagerEmail,
		SubjectID: DigestSubject,
		Epoch:     snap.Today.String(),
	}
	return p.render(in, msg)
}

// =============================================================================
// HELPERS
// =============================================================================

func (p *Planner) message(today property.Date) Message {
	return Message{Property: p.Config.PropertyName, Currency: p.Config.Currency, Today: today}
}

func (p *Planner) render(in Intent, msg Message) (Intent, bool, error) {
	subject, body, err := p.Templates.Render(in.Category, msg)
	if err != nil {
		return Intent{}, false, fmt.Errorf("%s for %s: %w", in.Category, in.SubjectID, err)
	}
	in.Subject, in.Body = subject, body
	return in, true, nil
}

func (p *Planner) requireAddress(pay *property.Payment, tenant *property.Tenant) error {
	if tenant == nil {
		return &property.InvalidRecordError{
			ID: pay.ID, Category: property.CategoryPayment, Field: "tenant_id",
			Reason: "references unknown tenant " + string(pay.TenantID),
		}
	}
	if tenant.Email == "" {
		return &property.InvalidRecordError{
			ID: tenant.ID, Category: property.CategoryTenant, Field: "email",
			Reason: "is required for payment notices",
		}
	}
	return nil
}
