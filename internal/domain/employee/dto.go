package employee

import (
	"github.com/SialouWebServices/Saas/internal/pkg/mobilemoney"
	"github.com/SialouWebServices/Saas/internal/pkg/validator"
	"github.com/shopspring/decimal"
)

// PaymentProfile - how and where an employee's net salary is paid.
type PaymentProfile struct {
	PaymentMethod       PaymentMethod
	MobileMoneyNumber   *string
	MobileMoneyOperator *string
	BankName            *string
	BankAccountNumber   *string
}

type UpdatePaymentProfileRequest struct {
	ID                  string  `json:"-"`
	PaymentMethod       string  `json:"payment_method"`
	MobileMoneyNumber   *string `json:"mobile_money_number,omitempty"`
	MobileMoneyOperator *string `json:"mobile_money_operator,omitempty"` // detected from the number when empty
	BankName            *string `json:"bank_name,omitempty"`
	BankAccountNumber   *string `json:"bank_account_number,omitempty"`
}

// Validate checks the request and returns the profile to store. Fields that
// do not belong to the chosen method are dropped so a stale mobile number
// never outlives a switch to bank transfer.
func (r *UpdatePaymentProfileRequest) Validate() (PaymentProfile, error) {
	var errs validator.ValidationErrors
	profile := PaymentProfile{PaymentMethod: PaymentMethod(r.PaymentMethod)}

	if !profile.PaymentMethod.IsValid() {
		errs = append(errs, validator.ValidationError{Field: "payment_method", Message: "must be one of MOBILE_MONEY, BANK_TRANSFER, CASH, CHECK"})
		return profile, errs
	}

	switch profile.PaymentMethod {
	case PaymentMethodMobileMoney:
		if r.MobileMoneyNumber == nil || validator.IsEmpty(*r.MobileMoneyNumber) {
			errs = append(errs, validator.ValidationError{Field: "mobile_money_number", Message: "is required for mobile money"})
			break
		}
		number := mobilemoney.LocalNumber(*r.MobileMoneyNumber)

		op := mobilemoney.DetectOperator(number)
		if r.MobileMoneyOperator != nil && !validator.IsEmpty(*r.MobileMoneyOperator) {
			parsed, err := mobilemoney.ParseOperator(*r.MobileMoneyOperator)
			if err != nil {
				errs = append(errs, validator.ValidationError{Field: "mobile_money_operator", Message: err.Error()})
				break
			}
			op = parsed
		}
		if !mobilemoney.ValidNumberFor(op, number) {
			errs = append(errs, validator.ValidationError{Field: "mobile_money_number", Message: "is not a valid " + op.DisplayName() + " number"})
			break
		}

		operator := string(op)
		profile.MobileMoneyNumber = &number
		profile.MobileMoneyOperator = &operator

	case PaymentMethodBankTransfer:
		if r.BankAccountNumber == nil || validator.IsEmpty(*r.BankAccountNumber) {
			errs = append(errs, validator.ValidationError{Field: "bank_account_number", Message: "is required for bank transfer"})
			break
		}
		profile.BankName = r.BankName
		profile.BankAccountNumber = r.BankAccountNumber
	}

	if len(errs) > 0 {
		return profile, errs
	}
	return profile, nil
}

type EmployeeResponse struct {
	ID                  string          `json:"id"`
	EmployeeCode        string          `json:"employee_code"`
	FullName            string          `json:"full_name"`
	CNPSNumber          *string         `json:"cnps_number,omitempty"`
	Position            *string         `json:"position,omitempty"`
	EmploymentStatus    string          `json:"employment_status"`
	BaseSalary          decimal.Decimal `json:"base_salary"`
	TransportAllowance  decimal.Decimal `json:"transport_allowance"`
	FixedBonuses        decimal.Decimal `json:"fixed_bonuses"`
	PaymentMethod       *string         `json:"payment_method,omitempty"`
	MobileMoneyNumber   *string         `json:"mobile_money_number,omitempty"`
	MobileMoneyOperator *string         `json:"mobile_money_operator,omitempty"`
	BankName            *string         `json:"bank_name,omitempty"`
	BankAccountNumber   *string         `json:"bank_account_number,omitempty"`
}
