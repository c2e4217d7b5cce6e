package payroll

import (
	"github.com/SialouWebServices/Saas/internal/pkg/validator"
	"github.com/shopspring/decimal"
)

// ========== SETTINGS DTOs ==========

type PayrollSettingsResponse struct {
	CompanyID          string          `json:"company_id"`
	EmployeeRate       decimal.Decimal `json:"employee_rate"`
	EmployerRate       decimal.Decimal `json:"employer_rate"`
	AnnualCeiling      decimal.Decimal `json:"annual_ceiling"`
	MonthlyCeiling     decimal.Decimal `json:"monthly_ceiling"`
	OvertimeRate       decimal.Decimal `json:"overtime_rate"`
	MinimumWage        decimal.Decimal `json:"minimum_wage"`
	EnforceMinimumWage bool            `json:"enforce_minimum_wage"`
	Customized         bool            `json:"customized"`
}

type UpdatePayrollSettingsRequest struct {
	EmployeeRate       *decimal.Decimal `json:"employee_rate,omitempty"`
	EmployerRate       *decimal.Decimal `json:"employer_rate,omitempty"`
	AnnualCeiling      *decimal.Decimal `json:"annual_ceiling,omitempty"`
	OvertimeRate       *decimal.Decimal `json:"overtime_rate,omitempty"`
	MinimumWage        *decimal.Decimal `json:"minimum_wage,omitempty"`
	EnforceMinimumWage *bool            `json:"enforce_minimum_wage,omitempty"`
}

func (r *UpdatePayrollSettingsRequest) Validate() error {
	var errs validator.ValidationErrors
	one := decimal.NewFromInt(1)

	if r.EmployeeRate != nil && (r.EmployeeRate.IsNegative() || r.EmployeeRate.GreaterThan(one)) {
		errs = append(errs, validator.ValidationError{Field: "employee_rate", Message: "must be between 0 and 1"})
	}
	if r.EmployerRate != nil && (r.EmployerRate.IsNegative() || r.EmployerRate.GreaterThan(one)) {
		errs = append(errs, validator.ValidationError{Field: "employer_rate", Message: "must be between 0 and 1"})
	}
	if r.AnnualCeiling != nil && !r.AnnualCeiling.IsPositive() {
		errs = append(errs, validator.ValidationError{Field: "annual_ceiling", Message: "must be greater than 0"})
	}
	if r.OvertimeRate != nil && r.OvertimeRate.LessThan(one) {
		errs = append(errs, validator.ValidationError{Field: "overtime_rate", Message: "must be at least 1"})
	}
	if r.MinimumWage != nil && r.MinimumWage.IsNegative() {
		errs = append(errs, validator.ValidationError{Field: "minimum_wage", Message: "must be non-negative"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ========== PAYSLIP DTOs ==========

// VariableElements - per-period amounts that do not live on the employee profile.
type VariableElements struct {
	OvertimeHours   decimal.Decimal `json:"overtime_hours"`
	OvertimeRate    decimal.Decimal `json:"overtime_rate"`
	VariableBonuses decimal.Decimal `json:"variable_bonuses"`
	Advances        decimal.Decimal `json:"advances"`
	OtherDeductions decimal.Decimal `json:"other_deductions"`
}

type GeneratePayrollRequest struct {
	PeriodMonth int                         `json:"period_month"`
	PeriodYear  int                         `json:"period_year"`
	EmployeeIDs []string                    `json:"employee_ids,omitempty"` // Empty = all active employees
	Variables   map[string]VariableElements `json:"variables,omitempty"`    // keyed by employee id
}

func (r *GeneratePayrollRequest) Validate() error {
	var errs validator.ValidationErrors

	if r.PeriodMonth < 1 || r.PeriodMonth > 12 {
		errs = append(errs, validator.ValidationError{Field: "period_month", Message: "must be between 1 and 12"})
	}
	if !validator.IsValidPeriod(1, r.PeriodYear) {
		errs = append(errs, validator.ValidationError{Field: "period_year", Message: "must be between 2000 and 2100"})
	}
	for id := range r.Variables {
		if len(r.EmployeeIDs) > 0 && !validator.IsInSlice(id, r.EmployeeIDs) {
			errs = append(errs, validator.ValidationError{Field: "variables", Message: "contains an employee not selected for this run: " + id})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

type CreatePayslipRequest struct {
	EmployeeID         string           `json:"employee_id"`
	PeriodMonth        int              `json:"period_month"`
	PeriodYear         int              `json:"period_year"`
	BaseSalary         *decimal.Decimal `json:"base_salary,omitempty"` // overrides the employee profile
	TransportAllowance *decimal.Decimal `json:"transport_allowance,omitempty"`
	FixedBonuses       *decimal.Decimal `json:"fixed_bonuses,omitempty"`
	Variables          VariableElements `json:"variables"`
}

func (r *CreatePayslipRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.EmployeeID) {
		errs = append(errs, validator.ValidationError{Field: "employee_id", Message: "is required"})
	}
	if !validator.IsValidPeriod(r.PeriodMonth, r.PeriodYear) {
		errs = append(errs, validator.ValidationError{Field: "period", Message: "month must be 1-12 and year 2000-2100"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

type PayslipIDsRequest struct {
	PayslipIDs []string `json:"payslip_ids"`
}

func (r *PayslipIDsRequest) Validate() error {
	var errs validator.ValidationErrors

	if len(r.PayslipIDs) == 0 {
		errs = append(errs, validator.ValidationError{Field: "payslip_ids", Message: "at least one payslip is required"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

type PayslipResponse struct {
	ID                   string             `json:"id"`
	EmployeeID           string             `json:"employee_id"`
	EmployeeName         string             `json:"employee_name"`
	EmployeeCode         string             `json:"employee_code"`
	PeriodMonth          int                `json:"period_month"`
	PeriodYear           int                `json:"period_year"`
	PeriodLabel          string             `json:"period_label"`
	Calculation          PayslipCalculation `json:"calculation"`
	Status               string             `json:"status"`
	PaymentStatus        string             `json:"payment_status"`
	PaymentChannel       *string            `json:"payment_channel,omitempty"`
	PaymentOperator      *string            `json:"payment_operator,omitempty"`
	TransactionReference *string            `json:"transaction_reference,omitempty"`
	PaymentError         *string            `json:"payment_error,omitempty"`
	ValidatedAt          *string            `json:"validated_at,omitempty"`
	SentAt               *string            `json:"sent_at,omitempty"`
	PaidAt               *string            `json:"paid_at,omitempty"`
}

type PayslipFilter struct {
	PeriodMonth   *int    `json:"period_month,omitempty"`
	PeriodYear    *int    `json:"period_year,omitempty"`
	Status        *string `json:"status,omitempty"`
	PaymentStatus *string `json:"payment_status,omitempty"`
	EmployeeID    *string `json:"employee_id,omitempty"`
	Page          int     `json:"page"`
	Limit         int     `json:"limit"`
}

func (f *PayslipFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 20
	}
}

type ListPayslipResponse struct {
	Data       []PayslipResponse `json:"data"`
	TotalCount int64             `json:"total_count"`
	Page       int               `json:"page"`
	Limit      int               `json:"limit"`
}

type GeneratePayrollResponse struct {
	PeriodLabel string            `json:"period_label"`
	Payslips    []PayslipResponse `json:"payslips"`
	Failures    []BatchFailure    `json:"failures"`
	Totals      BatchTotals       `json:"totals"`
}

// PayrollSummaryResponse - payment status report for one period.
type PayrollSummaryResponse struct {
	PeriodMonth       int             `json:"period_month"`
	PeriodYear        int             `json:"period_year"`
	PeriodLabel       string          `json:"period_label"`
	TotalPayslips     int             `json:"total_payslips"`
	ByStatus          map[string]int  `json:"by_status"`
	ByPaymentStatus   map[string]int  `json:"by_payment_status"`
	ByPaymentMethod   map[string]int  `json:"by_payment_method"`
	TotalGrossPay     decimal.Decimal `json:"total_gross_pay"`
	TotalNetPay       decimal.Decimal `json:"total_net_pay"`
	TotalEmployerCost decimal.Decimal `json:"total_employer_cost"`
	AmountSent        decimal.Decimal `json:"amount_sent"`
	AmountPending     decimal.Decimal `json:"amount_pending"`
	AmountFailed      decimal.Decimal `json:"amount_failed"`
}
