package employee

import (
	"context"
	"log/slog"

	"github.com/SialouWebServices/Saas/internal/domain/auth"
	"github.com/SialouWebServices/Saas/internal/domain/employee"
)

type EmployeeServiceImpl struct {
	employeeRepo employee.EmployeeRepository
}

func NewEmployeeService(employeeRepo employee.EmployeeRepository) employee.EmployeeService {
	return &EmployeeServiceImpl{employeeRepo: employeeRepo}
}

// GetEmployee implements employee.EmployeeService.
func (s *EmployeeServiceImpl) GetEmployee(ctx context.Context, id string) (employee.EmployeeResponse, error) {
	claims, err := auth.ClaimsFromContext(ctx)
	if err != nil {
		return employee.EmployeeResponse{}, err
	}

	emp, err := s.employeeRepo.GetByID(ctx, id, claims.CompanyID)
	if err != nil {
		return employee.EmployeeResponse{}, err
	}
	return mapEmployeeToResponse(emp), nil
}

// ListActiveEmployees implements employee.EmployeeService.
func (s *EmployeeServiceImpl) ListActiveEmployees(ctx context.Context) ([]employee.EmployeeResponse, error) {
	claims, err := auth.ClaimsFromContext(ctx)
	if err != nil {
		return nil, err
	}

	employees, err := s.employeeRepo.GetActiveByCompanyID(ctx, claims.CompanyID)
	if err != nil {
		return nil, err
	}

	responses := make([]employee.EmployeeResponse, 0, len(employees))
	for _, emp := range employees {
		responses = append(responses, mapEmployeeToResponse(emp))
	}
	return responses, nil
}

// UpdatePaymentProfile implements employee.EmployeeService. The new profile
// applies to the next disbursement preview; payslips already paid keep the
// channel recorded at payment time.
func (s *EmployeeServiceImpl) UpdatePaymentProfile(ctx context.Context, req employee.UpdatePaymentProfileRequest) (employee.EmployeeResponse, error) {
	claims, err := auth.ClaimsFromContext(ctx)
	if err != nil {
		return employee.EmployeeResponse{}, err
	}

	profile, err := req.Validate()
	if err != nil {
		return employee.EmployeeResponse{}, err
	}

	if err := s.employeeRepo.UpdatePaymentProfile(ctx, req.ID, claims.CompanyID, profile); err != nil {
		return employee.EmployeeResponse{}, err
	}

	slog.InfoContext(ctx, "employee payment profile updated",
		"company_id", claims.CompanyID,
		"employee_id", req.ID,
		"payment_method", profile.PaymentMethod,
		"updated_by", claims.UserID,
	)

	emp, err := s.employeeRepo.GetByID(ctx, req.ID, claims.CompanyID)
	if err != nil {
		return employee.EmployeeResponse{}, err
	}
	return mapEmployeeToResponse(emp), nil
}

func mapEmployeeToResponse(emp employee.Employee) employee.EmployeeResponse {
	resp := employee.EmployeeResponse{
		ID:                  emp.ID,
		EmployeeCode:        emp.EmployeeCode,
		FullName:            emp.FullName,
		CNPSNumber:          emp.CNPSNumber,
		Position:            emp.Position,
		EmploymentStatus:    string(emp.EmploymentStatus),
		BaseSalary:          emp.BaseSalary,
		TransportAllowance:  emp.TransportAllowance,
		FixedBonuses:        emp.FixedBonuses,
		MobileMoneyNumber:   emp.MobileMoneyNumber,
		MobileMoneyOperator: emp.MobileMoneyOperator,
		BankName:            emp.BankName,
		BankAccountNumber:   emp.BankAccountNumber,
	}
	if emp.PaymentMethod != nil {
		method := string(*emp.PaymentMethod)
		resp.PaymentMethod = &method
	}
	return resp
}
