package employee

import "context"

type EmployeeService interface {
	GetEmployee(ctx context.Context, id string) (EmployeeResponse, error)
	ListActiveEmployees(ctx context.Context) ([]EmployeeResponse, error)
	UpdatePaymentProfile(ctx context.Context, req UpdatePaymentProfileRequest) (EmployeeResponse, error)
}
