/*
fee.go - Fee Policy Engine

PURPOSE:
  Decides whether a rent payment has earned a late fee and how much. The
  assessment itself is pure; applying it is the caller's job and happens only
  after the tenant has been told (see sweep.Coordinator).

IDEMPOTENCY:
  A payment carries FeePeriod, the billing period its fee was assessed for.
  Once FeePeriod equals the payment's Period no further fee is assessed,
  however many sweeps run while the payment stays overdue. A new billing
  period is a new Payment record with an empty marker.

FEE MODES:
  flat     Config.LateFeeAmount (default)
  percent  Config.LateFeePercent of the outstanding balance, rounded to cents

POLICY DECISION:
  Fees do not compound across billing periods. An unpaid fee stays in the
  AmountDue of the payment it was assessed on; the next period's payment
  starts clean.
*/
package property

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// FeeAssessment is a late fee that applies to a payment.
type FeeAssessment struct {
	PaymentID    RecordID
	TenantID     RecordID
	Period       string
	Amount       decimal.Decimal
	PreviousDue  decimal.Decimal
	NewAmountDue decimal.Decimal
	TotalFee     decimal.Decimal // all late fees on the payment after this one
	AssessedOn   Date
}

// Patch returns the store update that applies the fee and sets the marker.
func (f *FeeAssessment) Patch() Patch {
	due := f.NewAmountDue
	fee := f.TotalFee
	period := f.Period
	return Patch{AmountDue: &due, LateFee: &fee, FeePeriod: &period}
}

// FeeApplied reports whether the payment already carries its period's fee.
func FeeApplied(p *Payment) bool {
	return p.FeePeriod != "" && p.FeePeriod == p.Period
}

// AssessLateFee returns the fee due on p today, or nil if none applies.
// A fee applies only when the payment is Overdue and no fee has been
// assessed for its billing period yet.
func AssessLateFee(p *Payment, today Date, cfg Config) *FeeAssessment {
	if PaymentStatusOf(p, today, cfg.GracePeriodDays) != PaymentOverdue || FeeApplied(p) {
		return nil
	}

	amount := lateFeeAmount(p, cfg)
	if !amount.IsPositive() {
		return nil
	}

	return &FeeAssessment{
		PaymentID:    p.ID,
		TenantID:     p.TenantID,
		Period:       p.Period,
		Amount:       amount,
		PreviousDue:  p.AmountDue,
		NewAmountDue: p.AmountDue.Add(amount),
		TotalFee:     p.LateFee.Add(amount),
		AssessedOn:   today,
	}
}

func lateFeeAmount(p *Payment, cfg Config) decimal.Decimal {
	switch cfg.LateFeeMode {
	case FeePercent:
		return p.Outstanding().Mul(cfg.LateFeePercent).Div(hundred).Round(2)
	default:
		return cfg.LateFeeAmount
	}
}
