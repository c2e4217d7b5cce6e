package disbursement

import (
	"github.com/SialouWebServices/Saas/internal/domain/employee"
	"github.com/SialouWebServices/Saas/internal/domain/payroll"
	"github.com/shopspring/decimal"
)

// Channel identifies where a salary goes: one value per mobile money
// operator plus the manual payment methods.
type Channel string

const (
	ChannelOrange       Channel = "orange_money"
	ChannelWave         Channel = "wave"
	ChannelMTN          Channel = "mtn_momo"
	ChannelBankTransfer Channel = "BANK_TRANSFER"
	ChannelCash         Channel = "CASH"
	ChannelCheck        Channel = "CHECK"
)

// IsManual reports whether the channel is settled outside the platform.
func (c Channel) IsManual() bool {
	switch c {
	case ChannelBankTransfer, ChannelCash, ChannelCheck:
		return true
	}
	return false
}

// Member - one payslip of a batch with the payment profile of its employee.
type Member struct {
	Payslip  payroll.Payslip
	Employee employee.Employee
	Channel  Channel
	Fee      decimal.Decimal
}

func (m Member) Amount() decimal.Decimal {
	return m.Payslip.Calculation.NetPay
}

// Issue - a problem that blocks one member from being paid.
type Issue struct {
	PayslipID    string `json:"payslip_id"`
	EmployeeID   string `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
	Field        string `json:"field"`
	Message      string `json:"message"`
}

// Plan is the validated shape of a batch, shared by preview and confirm.
type Plan struct {
	Members  []Member
	Issues   []Issue
	Excluded []string
}
