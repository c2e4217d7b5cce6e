package payroll

import (
	"testing"

	"github.com/SialouWebServices/Saas/internal/pkg/validator"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayslipStatus_CanTransitionTo(t *testing.T) {
	assert.True(t, PayslipStatusDraft.CanTransitionTo(PayslipStatusValidated))
	assert.True(t, PayslipStatusValidated.CanTransitionTo(PayslipStatusSent))
	assert.True(t, PayslipStatusSent.CanTransitionTo(PayslipStatusArchived))

	assert.False(t, PayslipStatusDraft.CanTransitionTo(PayslipStatusSent), "no skipping validation")
	assert.False(t, PayslipStatusValidated.CanTransitionTo(PayslipStatusDraft), "no going back")
	assert.False(t, PayslipStatusArchived.CanTransitionTo(PayslipStatusDraft))
}

func TestPaymentStatus_CanTransitionTo(t *testing.T) {
	assert.True(t, PaymentStatusPending.CanTransitionTo(PaymentStatusInProgress))
	assert.True(t, PaymentStatusPending.CanTransitionTo(PaymentStatusSent))
	assert.True(t, PaymentStatusInProgress.CanTransitionTo(PaymentStatusFailed))
	assert.True(t, PaymentStatusFailed.CanTransitionTo(PaymentStatusPending))

	assert.False(t, PaymentStatusFailed.CanTransitionTo(PaymentStatusSent))
	assert.False(t, PaymentStatusSent.CanTransitionTo(PaymentStatusPending))
}

func TestPeriodLabel(t *testing.T) {
	assert.Equal(t, "Janvier 2024", PeriodLabel(1, 2024))
	assert.Equal(t, "Août 2025", PeriodLabel(8, 2025))
	assert.Equal(t, "", PeriodLabel(13, 2025))
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())

	gap := DefaultPolicy()
	gap.TaxBrackets[2].Lower = decimal.NewFromInt(130000)
	assert.Error(t, gap.Validate())

	bounded := DefaultPolicy()
	last := decimal.NewFromInt(5000000)
	bounded.TaxBrackets[4].Upper = &last
	assert.Error(t, bounded.Validate())

	badRate := DefaultPolicy()
	badRate.EmployerRate = decimal.NewFromInt(2)
	assert.Error(t, badRate.Validate())
}

func TestPolicy_Validate_ReportsFieldsInOrder(t *testing.T) {
	p := DefaultPolicy()
	p.EmployeeRate = decimal.NewFromInt(-1)
	p.EmployerRate = decimal.NewFromInt(2)
	p.AnnualCeiling = decimal.Zero

	for range 20 {
		err := p.Validate()
		var errs validator.ValidationErrors
		require.ErrorAs(t, err, &errs)

		fields := make([]string, 0, len(errs))
		for _, e := range errs {
			fields = append(fields, e.Field)
		}
		assert.Equal(t, []string{"employee_rate", "employer_rate", "annual_ceiling"}, fields)
	}
}

func TestPolicy_WithSettings(t *testing.T) {
	rate := decimal.RequireFromString("0.063")
	enforce := false
	p := DefaultPolicy().WithSettings(PayrollSettings{EmployeeRate: &rate, EnforceMinimumWage: &enforce})

	assert.True(t, p.EmployeeRate.Equal(rate))
	assert.True(t, p.EmployerRate.Equal(DefaultPolicy().EmployerRate))
	assert.False(t, p.EnforceMinimumWage)
	assert.True(t, p.MonthlyCeiling().Equal(decimal.NewFromInt(1800000)))
}
