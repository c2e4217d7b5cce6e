package disbursement

import "github.com/SialouWebServices/Saas/internal/pkg/apperror"

var (
	ErrNoPayableSlips  = apperror.New(apperror.ErrEmptyBatch, "no validated payslip awaiting payment in the selection")
	ErrBatchInProgress = apperror.New(apperror.ErrConflict, "a disbursement batch is already running for this company")
)
