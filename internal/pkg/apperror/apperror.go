package apperror

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by the payroll core wraps exactly one of
// these so callers can branch with errors.Is.
var (
	ErrValidation           = errors.New("validation failed")
	ErrDuplicate            = errors.New("duplicate record")
	ErrNoEligibleRecords    = errors.New("no eligible records")
	ErrEmptyBatch           = errors.New("empty batch")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrOutOfRange           = errors.New("amount out of range")
	ErrProviderTechnical    = errors.New("payment provider technical error")
	ErrNotFound             = errors.New("not found")
	ErrInvalidState         = errors.New("invalid state")
	ErrConflict             = errors.New("conflict")
)

type AppError struct {
	Kind    error             // One of the kinds above
	Message string            // User-facing message
	Details map[string]string // Field-level detail, if any
	IDs     []string          // Conflicting or offending identifiers
	Err     error             // Wrapped cause (optional)
}

func (e *AppError) Error() string {
	msg := e.Message
	if len(e.IDs) > 0 {
		msg = fmt.Sprintf("%s [%s]", msg, strings.Join(e.IDs, ", "))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *AppError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func New(kind error, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// Duplicate reports a uniqueness violation together with the conflicting ids.
func Duplicate(message string, ids ...string) *AppError {
	return &AppError{Kind: ErrDuplicate, Message: message, IDs: ids}
}

func Validation(message string, details map[string]string) *AppError {
	return &AppError{Kind: ErrValidation, Message: message, Details: details}
}

func InvalidState(message string, ids ...string) *AppError {
	return &AppError{Kind: ErrInvalidState, Message: message, IDs: ids}
}

// KindOf returns the kind wrapped by err, or nil for foreign errors.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrValidation, ErrDuplicate, ErrNoEligibleRecords, ErrEmptyBatch,
		ErrUnsupportedOperation, ErrOutOfRange, ErrProviderTechnical,
		ErrNotFound, ErrInvalidState, ErrConflict,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
