package employee

import (
	"time"

	"github.com/shopspring/decimal"
)

type EmploymentStatus string

const (
	EmploymentStatusActive     EmploymentStatus = "active"
	EmploymentStatusSuspended  EmploymentStatus = "suspended"
	EmploymentStatusTerminated EmploymentStatus = "terminated"
)

// PaymentMethod is how the employee receives their net salary.
type PaymentMethod string

const (
	PaymentMethodMobileMoney  PaymentMethod = "MOBILE_MONEY"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodCheck        PaymentMethod = "CHECK"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodMobileMoney, PaymentMethodBankTransfer, PaymentMethodCash, PaymentMethodCheck:
		return true
	}
	return false
}

type Employee struct {
	ID               string
	CompanyID        string
	EmployeeCode     string
	FullName         string
	Email            *string
	PhoneNumber      *string
	CNPSNumber       *string
	Position         *string
	EmploymentStatus EmploymentStatus
	HireDate         time.Time

	// Compensation profile
	BaseSalary         decimal.Decimal
	TransportAllowance decimal.Decimal
	FixedBonuses       decimal.Decimal

	// Payment profile
	PaymentMethod       *PaymentMethod
	MobileMoneyNumber   *string
	MobileMoneyOperator *string
	BankName            *string
	BankAccountNumber   *string

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

func (e Employee) IsActive() bool {
	return e.EmploymentStatus == EmploymentStatusActive && e.DeletedAt == nil
}
