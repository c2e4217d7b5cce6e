package payroll

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// PayrollSettings - per-company overrides of the statutory policy. Nil
// fields fall back to the engine defaults.
type PayrollSettings struct {
	ID                 string
	CompanyID          string
	EmployeeRate       *decimal.Decimal
	EmployerRate       *decimal.Decimal
	AnnualCeiling      *decimal.Decimal
	OvertimeRate       *decimal.Decimal
	MinimumWage        *decimal.Decimal
	EnforceMinimumWage *bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CompensationInput - everything the calculator needs for one employee and one period.
type CompensationInput struct {
	BaseSalary         decimal.Decimal `json:"base_salary"`
	OvertimeHours      decimal.Decimal `json:"overtime_hours"`
	OvertimeRate       decimal.Decimal `json:"overtime_rate"` // zero = policy default
	TransportAllowance decimal.Decimal `json:"transport_allowance"`
	VariableBonuses    decimal.Decimal `json:"variable_bonuses"`
	FixedBonuses       decimal.Decimal `json:"fixed_bonuses"`
	Advances           decimal.Decimal `json:"advances"`
	OtherDeductions    decimal.Decimal `json:"other_deductions"`
}

// TaxLine - the part of the taxable base that fell in one bracket.
type TaxLine struct {
	Lower         decimal.Decimal  `json:"lower"`
	Upper         *decimal.Decimal `json:"upper,omitempty"`
	Rate          decimal.Decimal  `json:"rate"`
	TaxableAmount decimal.Decimal  `json:"taxable_amount"`
	Tax           decimal.Decimal  `json:"tax"`
}

// PayslipCalculation - calculator output. Immutable once attached to a payslip.
type PayslipCalculation struct {
	BaseSalary           decimal.Decimal `json:"base_salary"`
	OvertimeHours        decimal.Decimal `json:"overtime_hours"`
	OvertimeAmount       decimal.Decimal `json:"overtime_amount"`
	TransportAllowance   decimal.Decimal `json:"transport_allowance"`
	VariableBonuses      decimal.Decimal `json:"variable_bonuses"`
	FixedBonuses         decimal.Decimal `json:"fixed_bonuses"`
	GrossPay             decimal.Decimal `json:"gross_pay"`
	ContributionBase     decimal.Decimal `json:"contribution_base"`
	EmployeeContribution decimal.Decimal `json:"employee_contribution"`
	EmployerContribution decimal.Decimal `json:"employer_contribution"`
	TotalContributions   decimal.Decimal `json:"total_contributions"`
	TaxableBase          decimal.Decimal `json:"taxable_base"`
	IncomeTax            decimal.Decimal `json:"income_tax"`
	TaxLines             []TaxLine       `json:"tax_lines"`
	Advances             decimal.Decimal `json:"advances"`
	OtherDeductions      decimal.Decimal `json:"other_deductions"`
	TotalDeductions      decimal.Decimal `json:"total_deductions"`
	NetPay               decimal.Decimal `json:"net_pay"`
	EmployerCost         decimal.Decimal `json:"employer_cost"`
	Warnings             []string        `json:"warnings,omitempty"`
}

// PayslipStatus - main lifecycle
type PayslipStatus string

const (
	PayslipStatusDraft     PayslipStatus = "DRAFT"
	PayslipStatusValidated PayslipStatus = "VALIDATED"
	PayslipStatusSent      PayslipStatus = "SENT"
	PayslipStatusArchived  PayslipStatus = "ARCHIVED"
)

var payslipTransitions = map[PayslipStatus][]PayslipStatus{
	PayslipStatusDraft:     {PayslipStatusValidated},
	PayslipStatusValidated: {PayslipStatusSent},
	PayslipStatusSent:      {PayslipStatusArchived},
}

func (s PayslipStatus) CanTransitionTo(next PayslipStatus) bool {
	for _, allowed := range payslipTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s PayslipStatus) IsValid() bool {
	switch s {
	case PayslipStatusDraft, PayslipStatusValidated, PayslipStatusSent, PayslipStatusArchived:
		return true
	}
	return false
}

// PaymentStatus - disbursement sub-state, tracked independently of PayslipStatus
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusInProgress PaymentStatus = "IN_PROGRESS"
	PaymentStatusSent       PaymentStatus = "SENT"
	PaymentStatusFailed     PaymentStatus = "FAILED"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusInProgress, PaymentStatusSent},
	PaymentStatusInProgress: {PaymentStatusSent, PaymentStatusFailed},
	PaymentStatusFailed:     {PaymentStatusPending},
}

// CanTransitionTo - PENDING may jump straight to SENT for manual channels
// (cash, check, bank transfer). FAILED only goes back to PENDING on an
// explicit retry.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Payslip - one employee, one period
type Payslip struct {
	ID                   string
	CompanyID            string
	EmployeeID           string
	PeriodMonth          int
	PeriodYear           int
	Input                CompensationInput
	Calculation          PayslipCalculation
	Status               PayslipStatus
	PaymentStatus        PaymentStatus
	PaymentChannel       *string
	PaymentOperator      *string
	TransactionReference *string
	PaymentError         *string
	ValidatedAt          *time.Time
	ValidatedBy          *string
	SentAt               *time.Time
	PaidAt               *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time

	// Joined fields
	EmployeeName       *string
	EmployeeCode       *string
	EmployeeCNPSNumber *string
}

// StatusUpdate - nil fields are left untouched by the repository.
// FromStatus and FromPaymentStatus make it a compare-and-set: when the row no
// longer holds them nothing is written and ErrInvalidTransition is returned.
type StatusUpdate struct {
	ID                   string
	FromStatus           *PayslipStatus
	FromPaymentStatus    *PaymentStatus
	Status               *PayslipStatus
	PaymentStatus        *PaymentStatus
	PaymentChannel       *string
	PaymentOperator      *string
	TransactionReference *string
	PaymentError         *string
	ClearPaymentError    bool
	ActorID              *string
}

// BatchEntry - one employee's input in a payroll run.
type BatchEntry struct {
	EmployeeID string
	Input      CompensationInput
}

type EmployeeCalculation struct {
	EmployeeID  string
	Input       CompensationInput
	Calculation PayslipCalculation
}

type BatchFailure struct {
	EmployeeID string `json:"employee_id"`
	Reason     string `json:"reason"`
}

type BatchTotals struct {
	EmployeeCount              int             `json:"employee_count"`
	TotalBaseSalary            decimal.Decimal `json:"total_base_salary"`
	TotalGrossPay              decimal.Decimal `json:"total_gross_pay"`
	TotalEmployeeContributions decimal.Decimal `json:"total_employee_contributions"`
	TotalEmployerContributions decimal.Decimal `json:"total_employer_contributions"`
	TotalIncomeTax             decimal.Decimal `json:"total_income_tax"`
	TotalNetPay                decimal.Decimal `json:"total_net_pay"`
	TotalEmployerCost          decimal.Decimal `json:"total_employer_cost"`
}

// Add folds one successful calculation into the totals.
func (t *BatchTotals) Add(c PayslipCalculation) {
	t.EmployeeCount++
	t.TotalBaseSalary = t.TotalBaseSalary.Add(c.BaseSalary)
	t.TotalGrossPay = t.TotalGrossPay.Add(c.GrossPay)
	t.TotalEmployeeContributions = t.TotalEmployeeContributions.Add(c.EmployeeContribution)
	t.TotalEmployerContributions = t.TotalEmployerContributions.Add(c.EmployerContribution)
	t.TotalIncomeTax = t.TotalIncomeTax.Add(c.IncomeTax)
	t.TotalNetPay = t.TotalNetPay.Add(c.NetPay)
	t.TotalEmployerCost = t.TotalEmployerCost.Add(c.EmployerCost)
}

type BatchResult struct {
	Results  []EmployeeCalculation
	Failures []BatchFailure
	Totals   BatchTotals
}

// PeriodLabel returns the French month name and year, e.g. "Janvier 2024".
func PeriodLabel(month, year int) string {
	if month < 1 || month > 12 {
		return ""
	}
	return frenchMonths[month-1] + " " + strconv.Itoa(year)
}

var frenchMonths = [12]string{
	"Janvier", "Février", "Mars", "Avril", "Mai", "Juin",
	"Juillet", "Août", "Septembre", "Octobre", "Novembre", "Décembre",
}
