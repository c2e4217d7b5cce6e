package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/SialouWebServices/Saas/internal/domain/employee"
	"github.com/SialouWebServices/Saas/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

type employeeRepositoryImpl struct {
	db *database.DB
}

func NewEmployeeRepository(db *database.DB) employee.EmployeeRepository {
	return &employeeRepositoryImpl{db: db}
}

const employeeColumns = `
	id, company_id, employee_code, full_name, email, phone_number, cnps_number, position,
	employment_status, hire_date, base_salary, transport_allowance, fixed_bonuses,
	payment_method, mobile_money_number, mobile_money_operator, bank_name, bank_account_number,
	created_at, updated_at, deleted_at
`

func scanEmployee(row rowScanner) (employee.Employee, error) {
	var emp employee.Employee
	err := row.Scan(
		&emp.ID, &emp.CompanyID, &emp.EmployeeCode, &emp.FullName, &emp.Email, &emp.PhoneNumber,
		&emp.CNPSNumber, &emp.Position, &emp.EmploymentStatus, &emp.HireDate,
		&emp.BaseSalary, &emp.TransportAllowance, &emp.FixedBonuses,
		&emp.PaymentMethod, &emp.MobileMoneyNumber, &emp.MobileMoneyOperator, &emp.BankName, &emp.BankAccountNumber,
		&emp.CreatedAt, &emp.UpdatedAt, &emp.DeletedAt,
	)
	return emp, err
}

func (e *employeeRepositoryImpl) collect(rows pgx.Rows) ([]employee.Employee, error) {
	defer rows.Close()

	var employees []employee.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		employees = append(employees, emp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating employees: %w", err)
	}
	return employees, nil
}

// GetByID implements employee.EmployeeRepository.
func (e *employeeRepositoryImpl) GetByID(ctx context.Context, id string, companyID string) (employee.Employee, error) {
	q := GetQuerier(ctx, e.db)

	query := "SELECT " + employeeColumns + " FROM employees WHERE id = $1 AND company_id = $2"

	emp, err := scanEmployee(q.QueryRow(ctx, query, id, companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return employee.Employee{}, employee.ErrEmployeeNotFound
		}
		return employee.Employee{}, fmt.Errorf("failed to get employee with id %s: %w", id, err)
	}
	return emp, nil
}

// GetByIDs implements employee.EmployeeRepository. Soft-deleted employees are
// returned so callers can report them as inactive.
func (e *employeeRepositoryImpl) GetByIDs(ctx context.Context, companyID string, ids []string) ([]employee.Employee, error) {
	q := GetQuerier(ctx, e.db)

	query := "SELECT " + employeeColumns + " FROM employees WHERE company_id = $1 AND id = ANY($2) ORDER BY full_name"

	rows, err := q.Query(ctx, query, companyID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get employees: %w", err)
	}
	return e.collect(rows)
}

// GetActiveByCompanyID implements employee.EmployeeRepository.
func (e *employeeRepositoryImpl) GetActiveByCompanyID(ctx context.Context, companyID string) ([]employee.Employee, error) {
	q := GetQuerier(ctx, e.db)

	query := "SELECT " + employeeColumns + `
		FROM employees
		WHERE company_id = $1 AND employment_status = $2 AND deleted_at IS NULL
		ORDER BY full_name`

	rows, err := q.Query(ctx, query, companyID, employee.EmploymentStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to get active employees: %w", err)
	}
	return e.collect(rows)
}

// UpdatePaymentProfile implements employee.EmployeeRepository. Every payment
// column is overwritten so fields of a previous method are cleared.
func (e *employeeRepositoryImpl) UpdatePaymentProfile(ctx context.Context, id string, companyID string, profile employee.PaymentProfile) error {
	q := GetQuerier(ctx, e.db)

	query := `
		UPDATE employees
		SET payment_method = $1, mobile_money_number = $2, mobile_money_operator = $3,
			bank_name = $4, bank_account_number = $5, updated_at = NOW()
		WHERE id = $6 AND company_id = $7 AND deleted_at IS NULL
		RETURNING id
	`

	var updatedID string
	err := q.QueryRow(ctx, query,
		profile.PaymentMethod, profile.MobileMoneyNumber, profile.MobileMoneyOperator,
		profile.BankName, profile.BankAccountNumber, id, companyID,
	).Scan(&updatedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return employee.ErrEmployeeNotFound
		}
		return fmt.Errorf("failed to update payment profile for employee with id %s: %w", id, err)
	}

	return nil
}
