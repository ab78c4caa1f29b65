/*
Package notify decides which notifications a sweep must send and sends them.

PURPOSE:
  The Planner turns a snapshot of active records into an ordered list of
  Intents: "send this message to this recipient, once, for this condition in
  this window". A Dispatcher delivers each Intent. Nothing in this package
  writes to the record store; committing a delivered Intent to the ledger is
  the sweep coordinator's job.

CATEGORIES (in dispatch order):
  late_payment_alert   tenant, when a payment is Overdue
  maintenance_alert    manager, when a High or Urgent ticket is Open
  rent_reminder        tenant, a fixed number of days before rent is due
  monthly_invoice      tenant, on the invoice day of each month
  guest_digest         manager, one message for today's arrivals and departures

EPOCHS:
  An Intent's epoch is the time bucket its condition belongs to. Together with
  the category and subject record it forms the ledger key, so the same
  condition in the same bucket is delivered at most once.

SEE ALSO:
  - planner.go: Intent planning and de-duplication
  - dispatcher.go: Delivery adapters
  - sweep/coordinator.go: Dispatch order and ledger commits
*/
package notify

import (
	"github.com/warp/parsonage-engine/property"
)

// Category is the kind of notification.
type Category string

const (
	LatePaymentAlert Category = "late_payment_alert"
	MaintenanceAlert Category = "maintenance_alert"
	RentReminder     Category = "rent_reminder"
	MonthlyInvoice   Category = "monthly_invoice"
	GuestDigest      Category = "guest_digest"
)

// Priority orders categories for dispatch: alerts, then reminders, then
// invoices, then digests. Lower goes first.
func (c Category) Priority() int {
	switch c {
	case LatePaymentAlert:
		return 1
	case MaintenanceAlert:
		return 2
	case RentReminder:
		return 3
	case MonthlyInvoice:
		return 4
	case GuestDigest:
		return 5
	}
	return 99
}

// Categories planned by each sweep scope.
var (
	PaymentCategories = []Category{LatePaymentAlert, RentReminder, MonthlyInvoice}
	BookingCategories = []Category{MaintenanceAlert, GuestDigest}
)

// DigestSubject is the subject id of the property-wide guest digest.
const DigestSubject property.RecordID = "property"

// Intent is one notification to deliver.
type Intent struct {
	Category  Category
	Recipient string
	SubjectID property.RecordID
	Epoch     string
	Subject   string
	Body      string

	// Fee is committed together with the ledger entry once the intent has been
	// delivered. Only late payment alerts carry one.
	Fee *property.FeeAssessment
}

// Key is the intent's ledger key.
func (i Intent) Key() property.EpochKey {
	return property.NewEpochKey(string(i.Category), i.SubjectID, i.Epoch)
}

// less orders intents by priority, then subject id, then epoch.
func less(a, b Intent) bool {
	if pa, pb := a.Category.Priority(), b.Category.Priority(); pa != pb {
		return pa < pb
	}
	if a.SubjectID != b.SubjectID {
		return a.SubjectID < b.SubjectID
	}
	return a.Epoch < b.Epoch
}
