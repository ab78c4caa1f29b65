package property_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/parsonage-engine/property"
)

func TestAssessLateFee_FlatFeeOnceOverdue(t *testing.T) {
	// GIVEN: 1000 due Jan 5, unpaid, default policy (5 grace days, 25 flat)
	// WHEN: Assessed on Jan 11
	// THEN: 25 is added to the amount due
	cfg := property.DefaultConfig()
	p := payment(1000, 0, "2024-01-05")

	fee := property.AssessLateFee(p, d("2024-01-11"), cfg)

	require.NotNil(t, fee)
	assert.True(t, money(25).Equal(fee.Amount))
	assert.True(t, money(1000).Equal(fee.PreviousDue))
	assert.True(t, money(1025).Equal(fee.NewAmountDue))
	assert.True(t, money(25).Equal(fee.TotalFee))
	assert.Equal(t, "2024-01", fee.Period)
	assert.Equal(t, d("2024-01-11"), fee.AssessedOn)
}

func TestAssessLateFee_NotBeforeGraceEnds(t *testing.T) {
	cfg := property.DefaultConfig()
	p := payment(1000, 0, "2024-01-05")
	assert.Nil(t, property.AssessLateFee(p, d("2024-01-10"), cfg))
}

func TestAssessLateFee_OncePerPeriod(t *testing.T) {
	// GIVEN: The fee was applied to the payment
	// WHEN: Assessed again on later days
	// THEN: No second fee
	cfg := property.DefaultConfig()
	p := payment(1000, 0, "2024-01-05")

	fee := property.AssessLateFee(p, d("2024-01-11"), cfg)
	require.NotNil(t, fee)
	rec, err := property.ApplyPatch(p, fee.Patch())
	require.NoError(t, err)
	applied := rec.(*property.Payment)

	assert.True(t, property.FeeApplied(applied))
	for _, day := range []string{"2024-01-12", "2024-01-20", "2024-02-28"} {
		assert.Nil(t, property.AssessLateFee(applied, d(day), cfg), day)
	}
}

func TestAssessLateFee_PartialPaymentNotCharged(t *testing.T) {
	cfg := property.DefaultConfig()
	p := payment(1000, 500, "2024-01-05")
	assert.Nil(t, property.AssessLateFee(p, d("2024-02-01"), cfg))
}

func TestAssessLateFee_PercentOfOutstanding(t *testing.T) {
	cfg := property.DefaultConfig()
	cfg.LateFeeMode = property.FeePercent
	cfg.LateFeePercent = decimal.RequireFromString("2.5")
	p := payment(650, 0, "2024-01-01")

	fee := property.AssessLateFee(p, d("2024-01-07"), cfg)

	require.NotNil(t, fee)
	assert.Equal(t, "16.25", fee.Amount.StringFixed(2))
	assert.Equal(t, "666.25", fee.NewAmountDue.StringFixed(2))
}

func TestAssessLateFee_ZeroFeeConfigured(t *testing.T) {
	cfg := property.DefaultConfig()
	cfg.LateFeeAmount = decimal.Zero
	p := payment(1000, 0, "2024-01-05")
	assert.Nil(t, property.AssessLateFee(p, d("2024-01-11"), cfg))
}

func TestAssessLateFee_EachPeriodIndependent(t *testing.T) {
	// GIVEN: A payment carrying last period's fee marker
	// THEN: The fee for its own period is still assessed once
	cfg := property.DefaultConfig()
	p := payment(1000, 0, "2024-02-01")
	p.FeePeriod = "2024-01"
	p.LateFee = money(25)

	fee := property.AssessLateFee(p, d("2024-02-07"), cfg)

	require.NotNil(t, fee)
	assert.True(t, money(50).Equal(fee.TotalFee))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*property.Config)
		ok     bool
	}{
		{"defaults", func(*property.Config) {}, true},
		{"negative grace", func(c *property.Config) { c.GracePeriodDays = -1 }, false},
		{"invoice day 32", func(c *property.Config) { c.InvoiceDayOfMonth = 32 }, false},
		{"unknown mode", func(c *property.Config) { c.LateFeeMode = "tiered" }, false},
		{"percent over 100", func(c *property.Config) {
			c.LateFeeMode = property.FeePercent
			c.LateFeePercent = money(101)
		}, false},
		{"bad zone", func(c *property.Config) { c.TimeZone = "Mars/Olympus" }, false},
		{"bad manager email", func(c *property.Config) { c.ManagerEmail = "office" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := property.DefaultConfig()
			tt.mutate(&cfg)
			if tt.ok {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}

func TestConfig_BillingDates(t *testing.T) {
	cfg := property.DefaultConfig()
	cfg.InvoiceDayOfMonth = 31

	assert.Equal(t, d("2024-02-29"), cfg.InvoiceDate(d("2024-02-10")))
	assert.Equal(t, d("2024-03-01"), cfg.NextDueDate(d("2024-02-25")))
	assert.Equal(t, d("2024-03-01"), cfg.NextDueDate(d("2024-03-01")))
}
