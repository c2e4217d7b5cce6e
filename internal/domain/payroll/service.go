package payroll

import "context"

type PayrollService interface {
	// Settings
	GetSettings(ctx context.Context) (PayrollSettingsResponse, error)
	UpdateSettings(ctx context.Context, req UpdatePayrollSettingsRequest) (PayrollSettingsResponse, error)

	// Payslips
	GeneratePayroll(ctx context.Context, req GeneratePayrollRequest) (GeneratePayrollResponse, error)
	CreatePayslip(ctx context.Context, req CreatePayslipRequest) (PayslipResponse, error)
	GetPayslip(ctx context.Context, id string) (PayslipResponse, error)
	ListPayslips(ctx context.Context, filter PayslipFilter) (ListPayslipResponse, error)
	ValidatePayslips(ctx context.Context, req PayslipIDsRequest) ([]PayslipResponse, error)
	ArchivePayslip(ctx context.Context, id string) (PayslipResponse, error)
	RetryFailedPayment(ctx context.Context, id string) (PayslipResponse, error)
	DeletePayslip(ctx context.Context, id string) error

	// Reports
	GetPayrollSummary(ctx context.Context, month, year int) (PayrollSummaryResponse, error)
}
