package declaration

import (
	"github.com/SialouWebServices/Saas/internal/pkg/validator"
	"github.com/shopspring/decimal"
)

type CreateFilingRequest struct {
	PeriodMonth int      `json:"period_month"`
	PeriodYear  int      `json:"period_year"`
	EmployeeIDs []string `json:"employee_ids,omitempty"` // Empty = every validated payslip of the period
}

func (r *CreateFilingRequest) Validate() error {
	var errs validator.ValidationErrors

	if !validator.IsValidPeriod(r.PeriodMonth, r.PeriodYear) {
		errs = append(errs, validator.ValidationError{Field: "period", Message: "month must be 1-12 and year 2000-2100"})
	}
	for _, id := range r.EmployeeIDs {
		if validator.IsEmpty(id) {
			errs = append(errs, validator.ValidationError{Field: "employee_ids", Message: "must not contain empty ids"})
			break
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

type FilingFilter struct {
	PeriodYear *int `json:"period_year,omitempty"`
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
}

func (f *FilingFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 10
	}
}

type FilingLineResponse struct {
	PayslipID            string          `json:"payslip_id"`
	EmployeeID           string          `json:"employee_id"`
	EmployeeCode         string          `json:"employee_code"`
	EmployeeName         string          `json:"employee_name"`
	CNPSNumber           *string         `json:"cnps_number,omitempty"`
	GrossPay             decimal.Decimal `json:"gross_pay"`
	ContributionBase     decimal.Decimal `json:"contribution_base"`
	EmployeeContribution decimal.Decimal `json:"employee_contribution"`
	EmployerContribution decimal.Decimal `json:"employer_contribution"`
}

type FilingResponse struct {
	ID                         string               `json:"id"`
	PeriodMonth                int                  `json:"period_month"`
	PeriodYear                 int                  `json:"period_year"`
	PeriodLabel                string               `json:"period_label"`
	Status                     string               `json:"status"`
	EmployeeCount              int                  `json:"employee_count"`
	TotalGrossPay              decimal.Decimal      `json:"total_gross_pay"`
	TotalContributionBase      decimal.Decimal      `json:"total_contribution_base"`
	TotalEmployeeContributions decimal.Decimal      `json:"total_employee_contributions"`
	TotalEmployerContributions decimal.Decimal      `json:"total_employer_contributions"`
	TotalContributions         decimal.Decimal      `json:"total_contributions"`
	ValidatedAt                *string              `json:"validated_at,omitempty"`
	FiledAt                    *string              `json:"filed_at,omitempty"`
	CreatedAt                  string               `json:"created_at"`
	Lines                      []FilingLineResponse `json:"lines,omitempty"`
}

type ListFilingResponse struct {
	Data       []FilingResponse `json:"data"`
	TotalCount int64            `json:"total_count"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
	TotalPages int              `json:"total_pages"`
}
