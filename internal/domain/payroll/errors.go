package payroll

import "github.com/SialouWebServices/Saas/internal/pkg/apperror"

var (
	ErrPayrollSettingsNotFound = apperror.New(apperror.ErrNotFound, "payroll settings not found")
	ErrPayslipNotFound         = apperror.New(apperror.ErrNotFound, "payslip not found")
	ErrPayslipAlreadyExists    = apperror.New(apperror.ErrDuplicate, "payslip already exists for this period")
	ErrPayslipNotDraft         = apperror.New(apperror.ErrInvalidState, "only draft payslips can be modified")
	ErrInvalidTransition       = apperror.New(apperror.ErrInvalidState, "payslip status transition not allowed")
	ErrPaymentNotFailed        = apperror.New(apperror.ErrInvalidState, "only failed payments can be retried")
	ErrNoEligibleEmployees     = apperror.New(apperror.ErrNoEligibleRecords, "no eligible employee for this payroll run")
)
