package employee

import "github.com/SialouWebServices/Saas/internal/pkg/apperror"

var (
	ErrEmployeeNotFound = apperror.New(apperror.ErrNotFound, "employee not found")
	ErrNoActiveEmployee = apperror.New(apperror.ErrNoEligibleRecords, "no active employee for this company")
)
