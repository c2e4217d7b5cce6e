package response

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/SialouWebServices/Saas/internal/domain/auth"
	"github.com/SialouWebServices/Saas/internal/pkg/apperror"
	"github.com/SialouWebServices/Saas/internal/pkg/validator"
)

type errorMapping struct {
	status int
	code   string
}

var kindMappings = map[error]errorMapping{
	apperror.ErrValidation:           {http.StatusBadRequest, "VALIDATION_ERROR"},
	apperror.ErrDuplicate:            {http.StatusConflict, "DUPLICATE"},
	apperror.ErrNoEligibleRecords:    {http.StatusUnprocessableEntity, "NO_ELIGIBLE_RECORDS"},
	apperror.ErrEmptyBatch:           {http.StatusUnprocessableEntity, "EMPTY_BATCH"},
	apperror.ErrUnsupportedOperation: {http.StatusNotImplemented, "UNSUPPORTED_OPERATION"},
	apperror.ErrOutOfRange:           {http.StatusUnprocessableEntity, "OUT_OF_RANGE"},
	apperror.ErrProviderTechnical:    {http.StatusBadGateway, "PROVIDER_ERROR"},
	apperror.ErrNotFound:             {http.StatusNotFound, "NOT_FOUND"},
	apperror.ErrInvalidState:         {http.StatusConflict, "INVALID_STATE"},
	apperror.ErrConflict:             {http.StatusConflict, "CONFLICT"},
}

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	// Field-level validation errors
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		Fail(w, http.StatusBadRequest, "VALIDATION_ERROR", ErrorDetail{
			Message: "Validation failed",
			Details: validationErrs.ToMap(),
		})
		return
	}

	switch {
	case errors.Is(err, auth.ErrMissingClaims), errors.Is(err, auth.ErrMissingCompanyID), errors.Is(err, auth.ErrInvalidToken):
		Unauthorized(w, err.Error())
		return
	case errors.Is(err, auth.ErrForbidden):
		Forbidden(w, err.Error())
		return
	}

	kind := apperror.KindOf(err)
	mapping, ok := kindMappings[kind]
	if !ok {
		slog.Error("unhandled error", "error", err)
		InternalServerError(w, "An unexpected error occurred")
		return
	}

	detail := ErrorDetail{Message: err.Error()}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		detail.Message = appErr.Message
		detail.Details = appErr.Details
		detail.IDs = appErr.IDs
		if kind == apperror.ErrProviderTechnical && appErr.Err != nil {
			slog.Error("payment provider error", "error", appErr.Err)
		}
	}
	Fail(w, mapping.status, mapping.code, detail)
}
