package payroll

import "context"

// PayrollRepository defines data access methods for payroll.
// All methods include companyID parameter to prevent cross-company data access attacks.
type PayrollRepository interface {
	// Settings
	GetSettings(ctx context.Context, companyID string) (PayrollSettings, error)
	UpsertSettings(ctx context.Context, settings PayrollSettings) (PayrollSettings, error)

	// Payslips
	CreatePayslip(ctx context.Context, payslip Payslip) (Payslip, error)
	GetPayslipByID(ctx context.Context, id string, companyID string) (Payslip, error)
	GetPayslipByEmployeePeriod(ctx context.Context, employeeID string, month, year int, companyID string) (Payslip, error)
	GetPayslipsByIDs(ctx context.Context, companyID string, ids []string) ([]Payslip, error)
	ExistingEmployeeIDsForPeriod(ctx context.Context, companyID string, month, year int, employeeIDs []string) ([]string, error)
	ListPayslips(ctx context.Context, companyID string, filter PayslipFilter) ([]Payslip, int64, error)
	ListValidatedForPeriod(ctx context.Context, companyID string, month, year int, employeeIDs []string) ([]Payslip, error)
	ListByPaymentStatus(ctx context.Context, companyID string, status PaymentStatus) ([]Payslip, error)
	UpdatePayslipStatus(ctx context.Context, companyID string, update StatusUpdate) error
	DeletePayslip(ctx context.Context, id string, companyID string) error

	// Aggregations
	GetPayrollSummary(ctx context.Context, companyID string, month, year int) (PayrollSummaryResponse, error)
}
