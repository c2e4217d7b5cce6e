package payroll

import (
	"fmt"

	"github.com/SialouWebServices/Saas/internal/domain/payroll"
	"github.com/SialouWebServices/Saas/internal/pkg/validator"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const defaultCalcConcurrency = 8

// Calculator turns a CompensationInput into a payslip calculation. It holds
// no mutable state and is safe for concurrent use.
type Calculator struct {
	policy      payroll.Policy
	concurrency int
}

func NewCalculator(policy payroll.Policy, concurrency int) *Calculator {
	if concurrency < 1 {
		concurrency = defaultCalcConcurrency
	}
	return &Calculator{policy: policy, concurrency: concurrency}
}

func (c *Calculator) Policy() payroll.Policy {
	return c.policy
}

// ComputePayslip is pure: the same input under the same policy always yields
// the same result. Amounts are rounded half away from zero to whole XOF.
func (c *Calculator) ComputePayslip(input payroll.CompensationInput) (payroll.PayslipCalculation, error) {
	warnings, err := c.checkInput(input)
	if err != nil {
		return payroll.PayslipCalculation{}, err
	}
	p := c.policy

	overtime := c.overtimeAmount(input)

	gross := input.BaseSalary.
		Add(overtime).
		Add(input.TransportAllowance).
		Add(input.VariableBonuses).
		Add(input.FixedBonuses)

	contributionBase := decimal.Min(gross, p.MonthlyCeiling())
	employeeContribution := contributionBase.Mul(p.EmployeeRate).Round(0)
	employerContribution := contributionBase.Mul(p.EmployerRate).Round(0)

	taxableBase := gross
	incomeTax, taxLines := c.incomeTax(taxableBase)

	totalDeductions := employeeContribution.
		Add(incomeTax).
		Add(input.Advances).
		Add(input.OtherDeductions)
	net := gross.Sub(totalDeductions)
	if net.IsNegative() {
		warnings = append(warnings, fmt.Sprintf("net pay is negative (%s XOF): deductions exceed gross pay", net.StringFixed(0)))
	}

	return payroll.PayslipCalculation{
		BaseSalary:           input.BaseSalary,
		OvertimeHours:        input.OvertimeHours,
		OvertimeAmount:       overtime,
		TransportAllowance:   input.TransportAllowance,
		VariableBonuses:      input.VariableBonuses,
		FixedBonuses:         input.FixedBonuses,
		GrossPay:             gross,
		ContributionBase:     contributionBase,
		EmployeeContribution: employeeContribution,
		EmployerContribution: employerContribution,
		TotalContributions:   employeeContribution.Add(employerContribution),
		TaxableBase:          taxableBase,
		IncomeTax:            incomeTax,
		TaxLines:             taxLines,
		Advances:             input.Advances,
		OtherDeductions:      input.OtherDeductions,
		TotalDeductions:      totalDeductions,
		NetPay:               net,
		EmployerCost:         gross.Add(employerContribution),
		Warnings:             warnings,
	}, nil
}

// overtimeAmount = hours × base / monthly hours × rate, rounded once.
func (c *Calculator) overtimeAmount(input payroll.CompensationInput) decimal.Decimal {
	if !input.OvertimeHours.IsPositive() {
		return decimal.Zero
	}
	rate := input.OvertimeRate
	if rate.IsZero() {
		rate = c.policy.OvertimeRate
	}
	return input.OvertimeHours.
		Mul(input.BaseSalary).
		Mul(rate).
		Div(c.policy.MonthlyHours).
		Round(0)
}

// incomeTax applies the bracket table marginally: each slice of the base is
// taxed at its own bracket's rate. Only the total is rounded.
func (c *Calculator) incomeTax(base decimal.Decimal) (decimal.Decimal, []payroll.TaxLine) {
	total := decimal.Zero
	lines := make([]payroll.TaxLine, 0, len(c.policy.TaxBrackets))

	for _, b := range c.policy.TaxBrackets {
		if base.LessThanOrEqual(b.Lower) {
			break
		}
		top := base
		if b.Upper != nil && b.Upper.LessThan(base) {
			top = *b.Upper
		}
		slice := top.Sub(b.Lower)
		tax := slice.Mul(b.Rate)
		lines = append(lines, payroll.TaxLine{
			Lower:         b.Lower,
			Upper:         b.Upper,
			Rate:          b.Rate,
			TaxableAmount: slice,
			Tax:           tax,
		})
		total = total.Add(tax)
	}

	return total.Round(0), lines
}

func (c *Calculator) checkInput(input payroll.CompensationInput) ([]string, error) {
	var errs validator.ValidationErrors
	var warnings []string
	p := c.policy

	if !input.BaseSalary.IsPositive() {
		errs = append(errs, validator.ValidationError{Field: "base_salary", Message: "must be greater than 0"})
	} else if input.BaseSalary.LessThan(p.MinimumWage) {
		msg := fmt.Sprintf("is below the legal minimum wage (SMIG %s XOF)", p.MinimumWage.StringFixed(0))
		if p.EnforceMinimumWage {
			errs = append(errs, validator.ValidationError{Field: "base_salary", Message: msg})
		} else {
			warnings = append(warnings, "base_salary "+msg)
		}
	}

	for _, f := range []struct {
		field string
		value decimal.Decimal
	}{
		{"overtime_hours", input.OvertimeHours},
		{"overtime_rate", input.OvertimeRate},
		{"transport_allowance", input.TransportAllowance},
		{"variable_bonuses", input.VariableBonuses},
		{"fixed_bonuses", input.FixedBonuses},
		{"advances", input.Advances},
		{"other_deductions", input.OtherDeductions},
	} {
		if f.value.IsNegative() {
			errs = append(errs, validator.ValidationError{Field: f.field, Message: "must not be negative"})
		}
	}

	if input.OvertimeHours.GreaterThan(p.MaxOvertimeHours) {
		errs = append(errs, validator.ValidationError{
			Field:   "overtime_hours",
			Message: fmt.Sprintf("must not exceed %s hours per month", p.MaxOvertimeHours.String()),
		})
	}
	if input.OvertimeRate.IsPositive() && input.OvertimeRate.LessThan(decimal.NewFromInt(1)) {
		errs = append(errs, validator.ValidationError{Field: "overtime_rate", Message: "must be at least 1"})
	}
	if input.BaseSalary.IsPositive() && input.Advances.GreaterThan(input.BaseSalary.Mul(p.MaxAdvanceRatio)) {
		errs = append(errs, validator.ValidationError{
			Field:   "advances",
			Message: fmt.Sprintf("must not exceed %s%% of base salary", p.MaxAdvanceRatio.Mul(decimal.NewFromInt(100)).String()),
		})
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return warnings, nil
}

// ComputeBatch computes every entry independently. A failing entry is
// reported in Failures and never affects its siblings; Results keep the
// input order and Totals only cover successes.
func (c *Calculator) ComputeBatch(entries []payroll.BatchEntry) payroll.BatchResult {
	calcs := make([]payroll.PayslipCalculation, len(entries))
	errs := make([]error, len(entries))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, entry := range entries {
		g.Go(func() error {
			calcs[i], errs[i] = c.ComputePayslip(entry.Input)
			return nil
		})
	}
	_ = g.Wait()

	result := payroll.BatchResult{
		Results:  make([]payroll.EmployeeCalculation, 0, len(entries)),
		Failures: []payroll.BatchFailure{},
	}
	for i, entry := range entries {
		if errs[i] != nil {
			result.Failures = append(result.Failures, payroll.BatchFailure{EmployeeID: entry.EmployeeID, Reason: errs[i].Error()})
			continue
		}
		result.Results = append(result.Results, payroll.EmployeeCalculation{
			EmployeeID:  entry.EmployeeID,
			Input:       entry.Input,
			Calculation: calcs[i],
		})
		result.Totals.Add(calcs[i])
	}
	return result
}
