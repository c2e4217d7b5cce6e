package payroll

import (
	"fmt"

	"github.com/SialouWebServices/Saas/internal/pkg/validator"
	"github.com/shopspring/decimal"
)

// TaxBracket - Upper nil means unbounded. Bounds are (Lower, Upper].
type TaxBracket struct {
	Lower decimal.Decimal
	Upper *decimal.Decimal
	Rate  decimal.Decimal
}

// Policy - statutory figures used by the calculator. Tests and tenants
// supply their own; nothing here reads the environment.
type Policy struct {
	EmployeeRate       decimal.Decimal // CNPS employee share
	EmployerRate       decimal.Decimal // CNPS employer share
	AnnualCeiling      decimal.Decimal // contribution base cap, divided by 12 per month
	OvertimeRate       decimal.Decimal
	MonthlyHours       decimal.Decimal
	MinimumWage        decimal.Decimal // SMIG
	EnforceMinimumWage bool
	MaxOvertimeHours   decimal.Decimal
	MaxAdvanceRatio    decimal.Decimal
	TaxBrackets        []TaxBracket
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func bound(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// DefaultPolicy - Côte d'Ivoire, 2024 figures.
func DefaultPolicy() Policy {
	return Policy{
		EmployeeRate:       dec("0.032"),
		EmployerRate:       dec("0.164"),
		AnnualCeiling:      dec("21600000"),
		OvertimeRate:       dec("1.25"),
		MonthlyHours:       dec("173.33"),
		MinimumWage:        dec("60000"),
		EnforceMinimumWage: true,
		MaxOvertimeHours:   dec("60"),
		MaxAdvanceRatio:    dec("0.5"),
		TaxBrackets: []TaxBracket{
			{Lower: dec("0"), Upper: bound("50000"), Rate: dec("0")},
			{Lower: dec("50000"), Upper: bound("120000"), Rate: dec("0.10")},
			{Lower: dec("120000"), Upper: bound("300000"), Rate: dec("0.15")},
			{Lower: dec("300000"), Upper: bound("1000000"), Rate: dec("0.20")},
			{Lower: dec("1000000"), Upper: nil, Rate: dec("0.25")},
		},
	}
}

// MonthlyCeiling is the per-period cap on the contribution base.
func (p Policy) MonthlyCeiling() decimal.Decimal {
	return p.AnnualCeiling.Div(decimal.NewFromInt(12))
}

// WithSettings overlays a company's overrides on p.
func (p Policy) WithSettings(s PayrollSettings) Policy {
	if s.EmployeeRate != nil {
		p.EmployeeRate = *s.EmployeeRate
	}
	if s.EmployerRate != nil {
		p.EmployerRate = *s.EmployerRate
	}
	if s.AnnualCeiling != nil {
		p.AnnualCeiling = *s.AnnualCeiling
	}
	if s.OvertimeRate != nil {
		p.OvertimeRate = *s.OvertimeRate
	}
	if s.MinimumWage != nil {
		p.MinimumWage = *s.MinimumWage
	}
	if s.EnforceMinimumWage != nil {
		p.EnforceMinimumWage = *s.EnforceMinimumWage
	}
	return p
}

// Validate rejects incoherent policies: rates outside [0,1], a bracket table
// that is not contiguous from zero, or an unbounded bracket before the last.
func (p Policy) Validate() error {
	var errs validator.ValidationErrors
	one := decimal.NewFromInt(1)

	for _, r := range []struct {
		field string
		rate  decimal.Decimal
	}{
		{"employee_rate", p.EmployeeRate},
		{"employer_rate", p.EmployerRate},
	} {
		if r.rate.IsNegative() || r.rate.GreaterThan(one) {
			errs = append(errs, validator.ValidationError{Field: r.field, Message: "must be between 0 and 1"})
		}
	}
	if !p.AnnualCeiling.IsPositive() {
		errs = append(errs, validator.ValidationError{Field: "annual_ceiling", Message: "must be greater than 0"})
	}
	if p.OvertimeRate.LessThan(one) {
		errs = append(errs, validator.ValidationError{Field: "overtime_rate", Message: "must be at least 1"})
	}
	if !p.MonthlyHours.IsPositive() {
		errs = append(errs, validator.ValidationError{Field: "monthly_hours", Message: "must be greater than 0"})
	}
	if p.MinimumWage.IsNegative() {
		errs = append(errs, validator.ValidationError{Field: "minimum_wage", Message: "must not be negative"})
	}

	if len(p.TaxBrackets) == 0 {
		errs = append(errs, validator.ValidationError{Field: "tax_brackets", Message: "at least one bracket is required"})
	}
	expectedLower := decimal.Zero
	for i, b := range p.TaxBrackets {
		field := fmt.Sprintf("tax_brackets[%d]", i)
		if !b.Lower.Equal(expectedLower) {
			errs = append(errs, validator.ValidationError{Field: field, Message: "brackets must be contiguous and start at 0"})
			break
		}
		if b.Rate.IsNegative() || b.Rate.GreaterThan(one) {
			errs = append(errs, validator.ValidationError{Field: field, Message: "rate must be between 0 and 1"})
		}
		if b.Upper == nil {
			if i != len(p.TaxBrackets)-1 {
				errs = append(errs, validator.ValidationError{Field: field, Message: "only the last bracket may be unbounded"})
			}
			break
		}
		if !b.Upper.GreaterThan(b.Lower) {
			errs = append(errs, validator.ValidationError{Field: field, Message: "upper bound must exceed lower bound"})
			break
		}
		expectedLower = *b.Upper
	}
	if n := len(p.TaxBrackets); n > 0 && p.TaxBrackets[n-1].Upper != nil {
		errs = append(errs, validator.ValidationError{Field: "tax_brackets", Message: "last bracket must be unbounded"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
