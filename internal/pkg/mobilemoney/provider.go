// Package mobilemoney talks to the Ivorian mobile-money operators used to pay
// salaries: Orange Money, Wave and MTN MoMo.
package mobilemoney

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/SialouWebServices/Saas/internal/pkg/apperror"
	"github.com/shopspring/decimal"
)

type Operator string

const (
	OperatorOrange Operator = "orange_money"
	OperatorWave   Operator = "wave"
	OperatorMTN    Operator = "mtn_momo"
)

// Operators lists every supported operator in a stable order.
var Operators = []Operator{OperatorOrange, OperatorWave, OperatorMTN}

func (o Operator) IsValid() bool {
	switch o {
	case OperatorOrange, OperatorWave, OperatorMTN:
		return true
	}
	return false
}

func (o Operator) DisplayName() string {
	switch o {
	case OperatorOrange:
		return "Orange Money"
	case OperatorWave:
		return "Wave"
	case OperatorMTN:
		return "MTN MoMo"
	}
	return string(o)
}

// ParseOperator accepts the canonical names plus the short aliases stored by
// older employee records ("orange", "mtn").
func ParseOperator(s string) (Operator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "orange_money", "orange", "orange-money":
		return OperatorOrange, nil
	case "wave":
		return OperatorWave, nil
	case "mtn_momo", "mtn", "mtn-momo":
		return OperatorMTN, nil
	}
	return "", apperror.New(apperror.ErrUnsupportedOperation, fmt.Sprintf("unsupported mobile money operator %q", s))
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

const Currency = "XOF"

type PaymentRequest struct {
	Amount            decimal.Decimal
	PhoneNumber       string
	Reason            string
	InternalReference string
	BeneficiaryName   string
}

type PaymentResult struct {
	Success              bool
	TransactionReference string
	Status               Status
	Message              string
	ErrorMessage         string
	RawResponse          []byte
}

// TransactionStatus is what an operator reports about one transfer.
// InitiatedAt is zero when the operator does not send it; CompletedAt is set
// once the transfer reached a final state.
type TransactionStatus struct {
	TransactionReference string
	Status               Status
	Amount               decimal.Decimal
	Fee                  decimal.Decimal
	InitiatedAt          time.Time
	CompletedAt          *time.Time
	Message              string
}

// parseTimestamp reads the RFC 3339 timestamps the operators send. Absent or
// malformed values come back as ok=false.
func parseTimestamp(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (s *TransactionStatus) setTimes(initiated, completed string) {
	if t, ok := parseTimestamp(initiated); ok {
		s.InitiatedAt = t
	}
	if t, ok := parseTimestamp(completed); ok {
		s.CompletedAt = &t
	}
}

type Balance struct {
	Operator  Operator
	Available decimal.Decimal
	Currency  string
}

// Provider is implemented by every operator variant.
type Provider interface {
	Operator() Operator
	InitiatePayment(ctx context.Context, req PaymentRequest) (PaymentResult, error)
	CheckTransactionStatus(ctx context.Context, reference string) (TransactionStatus, error)
	GetBalance(ctx context.Context) (Balance, error)
	ValidatePhoneNumber(phone string) bool
	Fees() FeeSchedule
}

// TechnicalError reports a transport or decoding failure. The payment may or
// may not have reached the operator.
type TechnicalError struct {
	Operator  Operator
	Operation string
	Err       error
}

func (e *TechnicalError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Operator.DisplayName(), e.Operation, e.Err)
}

func (e *TechnicalError) Unwrap() []error {
	return []error{apperror.ErrProviderTechnical, e.Err}
}

type OutOfRangeError struct {
	Operator Operator
	Amount   decimal.Decimal
	Min      decimal.Decimal
	Max      decimal.Decimal
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("amount %s XOF outside %s limits (%s - %s XOF)",
		e.Amount.StringFixed(0), e.Operator.DisplayName(), e.Min.StringFixed(0), e.Max.StringFixed(0))
}

func (e *OutOfRangeError) Is(target error) bool {
	return target == apperror.ErrOutOfRange
}

var ErrBalanceUnsupported = apperror.New(apperror.ErrUnsupportedOperation, "operator does not expose a balance API")
