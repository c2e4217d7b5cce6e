package employee

import "context"

// EmployeeRepository reads the compensation and payment profiles the payroll
// engine works from. Every method is scoped to a company.
type EmployeeRepository interface {
	GetByID(ctx context.Context, id string, companyID string) (Employee, error)
	GetByIDs(ctx context.Context, companyID string, ids []string) ([]Employee, error)
	GetActiveByCompanyID(ctx context.Context, companyID string) ([]Employee, error)
	UpdatePaymentProfile(ctx context.Context, id string, companyID string, profile PaymentProfile) error
}
