package declaration

import "github.com/SialouWebServices/Saas/internal/pkg/apperror"

var (
	ErrFilingNotFound      = apperror.New(apperror.ErrNotFound, "filing not found")
	ErrFilingAlreadyExists = apperror.New(apperror.ErrDuplicate, "a filing already exists for this period")
	ErrFilingNotDraft      = apperror.New(apperror.ErrInvalidState, "only draft filings can be deleted")
	ErrInvalidTransition   = apperror.New(apperror.ErrInvalidState, "filing status transition not allowed")
	ErrNoValidatedPayslips = apperror.New(apperror.ErrNoEligibleRecords, "no validated payslip found for this period")
)
