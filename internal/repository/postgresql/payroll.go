package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/SialouWebServices/Saas/internal/domain/payroll"
	"github.com/SialouWebServices/Saas/internal/pkg/database"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

type payrollRepository struct {
	db *database.DB
}

func NewPayrollRepository(db *database.DB) payroll.PayrollRepository {
	return &payrollRepository{db: db}
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// isUniqueViolation reports whether err comes from the named unique constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

// ========== SETTINGS ==========

func (r *payrollRepository) GetSettings(ctx context.Context, companyID string) (payroll.PayrollSettings, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id, company_id, employee_rate, employer_rate, annual_ceiling,
			   overtime_rate, minimum_wage, enforce_minimum_wage, created_at, updated_at
		FROM payroll_settings
		WHERE company_id = $1
	`

	var s payroll.PayrollSettings
	err := q.QueryRow(ctx, query, companyID).Scan(
		&s.ID, &s.CompanyID, &s.EmployeeRate, &s.EmployerRate, &s.AnnualCeiling,
		&s.OvertimeRate, &s.MinimumWage, &s.EnforceMinimumWage, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payroll.PayrollSettings{}, payroll.ErrPayrollSettingsNotFound
		}
		return payroll.PayrollSettings{}, fmt.Errorf("failed to get payroll settings: %w", err)
	}

	return s, nil
}

func (r *payrollRepository) UpsertSettings(ctx context.Context, settings payroll.PayrollSettings) (payroll.PayrollSettings, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO payroll_settings (
			company_id, employee_rate, employer_rate, annual_ceiling,
			overtime_rate, minimum_wage, enforce_minimum_wage
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (company_id) DO UPDATE SET
			employee_rate = EXCLUDED.employee_rate,
			employer_rate = EXCLUDED.employer_rate,
			annual_ceiling = EXCLUDED.annual_ceiling,
			overtime_rate = EXCLUDED.overtime_rate,
			minimum_wage = EXCLUDED.minimum_wage,
			enforce_minimum_wage = EXCLUDED.enforce_minimum_wage,
			updated_at = NOW()
		RETURNING id, company_id, employee_rate, employer_rate, annual_ceiling,
			overtime_rate, minimum_wage, enforce_minimum_wage, created_at, updated_at
	`

	var s payroll.PayrollSettings
	err := q.QueryRow(ctx, query,
		settings.CompanyID, settings.EmployeeRate, settings.EmployerRate, settings.AnnualCeiling,
		settings.OvertimeRate, settings.MinimumWage, settings.EnforceMinimumWage,
	).Scan(
		&s.ID, &s.CompanyID, &s.EmployeeRate, &s.EmployerRate, &s.AnnualCeiling,
		&s.OvertimeRate, &s.MinimumWage, &s.EnforceMinimumWage, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return payroll.PayrollSettings{}, fmt.Errorf("failed to upsert payroll settings: %w", err)
	}

	return s, nil
}

// ========== PAYSLIPS ==========

const payslipColumns = `
	ps.id, ps.company_id, ps.employee_id, ps.period_month, ps.period_year,
	ps.input, ps.calculation, ps.status, ps.payment_status,
	ps.payment_channel, ps.payment_operator, ps.transaction_reference, ps.payment_error,
	ps.validated_at, ps.validated_by, ps.sent_at, ps.paid_at, ps.created_at, ps.updated_at,
	e.full_name, e.employee_code, e.cnps_number
`

const payslipFrom = `
	FROM payslips ps
	JOIN employees e ON ps.employee_id = e.id
`

func scanPayslip(row rowScanner) (payroll.Payslip, error) {
	var p payroll.Payslip
	var inputBytes, calcBytes []byte
	if err := row.Scan(
		&p.ID, &p.CompanyID, &p.EmployeeID, &p.PeriodMonth, &p.PeriodYear,
		&inputBytes, &calcBytes, &p.Status, &p.PaymentStatus,
		&p.PaymentChannel, &p.PaymentOperator, &p.TransactionReference, &p.PaymentError,
		&p.ValidatedAt, &p.ValidatedBy, &p.SentAt, &p.PaidAt, &p.CreatedAt, &p.UpdatedAt,
		&p.EmployeeName, &p.EmployeeCode, &p.EmployeeCNPSNumber,
	); err != nil {
		return payroll.Payslip{}, err
	}
	if err := json.Unmarshal(inputBytes, &p.Input); err != nil {
		return payroll.Payslip{}, fmt.Errorf("decode payslip input: %w", err)
	}
	if err := json.Unmarshal(calcBytes, &p.Calculation); err != nil {
		return payroll.Payslip{}, fmt.Errorf("decode payslip calculation: %w", err)
	}
	return p, nil
}

func collectPayslips(rows pgx.Rows) ([]payroll.Payslip, error) {
	defer rows.Close()

	var payslips []payroll.Payslip
	for rows.Next() {
		p, err := scanPayslip(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payslip: %w", err)
		}
		payslips = append(payslips, p)
	}
	return payslips, rows.Err()
}

// CreatePayslip stores both snapshots as JSONB next to the denormalised
// amounts used by reports.
func (r *payrollRepository) CreatePayslip(ctx context.Context, p payroll.Payslip) (payroll.Payslip, error) {
	q := GetQuerier(ctx, r.db)

	inputJSON, err := json.Marshal(p.Input)
	if err != nil {
		return payroll.Payslip{}, fmt.Errorf("encode payslip input: %w", err)
	}
	calcJSON, err := json.Marshal(p.Calculation)
	if err != nil {
		return payroll.Payslip{}, fmt.Errorf("encode payslip calculation: %w", err)
	}

	query := `
		INSERT INTO payslips (
			company_id, employee_id, period_month, period_year, input, calculation,
			gross_pay, employee_contribution, employer_contribution, income_tax, net_pay, employer_cost,
			status, payment_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at
	`

	c := p.Calculation
	err = q.QueryRow(ctx, query,
		p.CompanyID, p.EmployeeID, p.PeriodMonth, p.PeriodYear, inputJSON, calcJSON,
		c.GrossPay, c.EmployeeContribution, c.EmployerContribution, c.IncomeTax, c.NetPay, c.EmployerCost,
		p.Status, p.PaymentStatus,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "uk_payslip_employee_period") {
			return payroll.Payslip{}, payroll.ErrPayslipAlreadyExists
		}
		return payroll.Payslip{}, fmt.Errorf("failed to create payslip: %w", err)
	}

	return p, nil
}

func (r *payrollRepository) GetPayslipByID(ctx context.Context, id string, companyID string) (payroll.Payslip, error) {
	q := GetQuerier(ctx, r.db)

	query := "SELECT " + payslipColumns + payslipFrom + " WHERE ps.id = $1 AND ps.company_id = $2"

	p, err := scanPayslip(q.QueryRow(ctx, query, id, companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payroll.Payslip{}, payroll.ErrPayslipNotFound
		}
		return payroll.Payslip{}, fmt.Errorf("failed to get payslip: %w", err)
	}
	return p, nil
}

func (r *payrollRepository) GetPayslipByEmployeePeriod(ctx context.Context, employeeID string, month, year int, companyID string) (payroll.Payslip, error) {
	q := GetQuerier(ctx, r.db)

	query := "SELECT " + payslipColumns + payslipFrom + `
		WHERE ps.employee_id = $1 AND ps.period_month = $2 AND ps.period_year = $3 AND ps.company_id = $4`

	p, err := scanPayslip(q.QueryRow(ctx, query, employeeID, month, year, companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payroll.Payslip{}, payroll.ErrPayslipNotFound
		}
		return payroll.Payslip{}, fmt.Errorf("failed to get payslip: %w", err)
	}
	return p, nil
}

func (r *payrollRepository) GetPayslipsByIDs(ctx context.Context, companyID string, ids []string) ([]payroll.Payslip, error) {
	q := GetQuerier(ctx, r.db)

	query := "SELECT " + payslipColumns + payslipFrom + " WHERE ps.company_id = $1 AND ps.id = ANY($2) ORDER BY e.full_name"

	rows, err := q.Query(ctx, query, companyID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get payslips: %w", err)
	}
	return collectPayslips(rows)
}

func (r *payrollRepository) ExistingEmployeeIDsForPeriod(ctx context.Context, companyID string, month, year int, employeeIDs []string) ([]string, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT employee_id
		FROM payslips
		WHERE company_id = $1 AND period_month = $2 AND period_year = $3 AND employee_id = ANY($4)
		ORDER BY employee_id
	`

	rows, err := q.Query(ctx, query, companyID, month, year, employeeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing payslips: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan employee id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *payrollRepository) ListPayslips(ctx context.Context, companyID string, filter payroll.PayslipFilter) ([]payroll.Payslip, int64, error) {
	q := GetQuerier(ctx, r.db)

	baseQuery := payslipFrom + " WHERE ps.company_id = $1"
	args := []interface{}{companyID}
	argIdx := 2

	if filter.PeriodMonth != nil {
		baseQuery += fmt.Sprintf(" AND ps.period_month = $%d", argIdx)
		args = append(args, *filter.PeriodMonth)
		argIdx++
	}
	if filter.PeriodYear != nil {
		baseQuery += fmt.Sprintf(" AND ps.period_year = $%d", argIdx)
		args = append(args, *filter.PeriodYear)
		argIdx++
	}
	if filter.Status != nil {
		baseQuery += fmt.Sprintf(" AND ps.status = $%d", argIdx)
		args = append(args, *filter.Status)
		argIdx++
	}
	if filter.PaymentStatus != nil {
		baseQuery += fmt.Sprintf(" AND ps.payment_status = $%d", argIdx)
		args = append(args, *filter.PaymentStatus)
		argIdx++
	}
	if filter.EmployeeID != nil {
		baseQuery += fmt.Sprintf(" AND ps.employee_id = $%d", argIdx)
		args = append(args, *filter.EmployeeID)
		argIdx++
	}

	// Count query
	var totalCount int64
	if err := q.QueryRow(ctx, "SELECT COUNT(*) "+baseQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count payslips: %w", err)
	}

	offset := (filter.Page - 1) * filter.Limit
	selectQuery := fmt.Sprintf(`SELECT %s %s
		ORDER BY ps.period_year DESC, ps.period_month DESC, e.full_name
		LIMIT $%d OFFSET $%d`, payslipColumns, baseQuery, argIdx, argIdx+1)
	args = append(args, filter.Limit, offset)

	rows, err := q.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list payslips: %w", err)
	}
	payslips, err := collectPayslips(rows)
	if err != nil {
		return nil, 0, err
	}

	return payslips, totalCount, nil
}

func (r *payrollRepository) ListValidatedForPeriod(ctx context.Context, companyID string, month, year int, employeeIDs []string) ([]payroll.Payslip, error) {
	q := GetQuerier(ctx, r.db)

	query := "SELECT " + payslipColumns + payslipFrom + `
		WHERE ps.company_id = $1 AND ps.period_month = $2 AND ps.period_year = $3 AND ps.status = 'VALIDATED'`
	args := []interface{}{companyID, month, year}

	if len(employeeIDs) > 0 {
		query += " AND ps.employee_id = ANY($4)"
		args = append(args, employeeIDs)
	}
	query += " ORDER BY e.full_name"

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list validated payslips: %w", err)
	}
	return collectPayslips(rows)
}

func (r *payrollRepository) ListByPaymentStatus(ctx context.Context, companyID string, status payroll.PaymentStatus) ([]payroll.Payslip, error) {
	q := GetQuerier(ctx, r.db)

	query := "SELECT " + payslipColumns + payslipFrom + `
		WHERE ps.company_id = $1 AND ps.payment_status = $2
		ORDER BY ps.updated_at`

	rows, err := q.Query(ctx, query, companyID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list payslips by payment status: %w", err)
	}
	return collectPayslips(rows)
}

// UpdatePayslipStatus writes only the fields set on u and stamps the
// matching timestamps.
func (r *payrollRepository) UpdatePayslipStatus(ctx context.Context, companyID string, u payroll.StatusUpdate) error {
	q := GetQuerier(ctx, r.db)

	setParts := []string{"updated_at = NOW()"}
	args := []interface{}{u.ID, companyID}
	argIdx := 3

	if u.Status != nil {
		setParts = append(setParts, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *u.Status)
		argIdx++
		switch *u.Status {
		case payroll.PayslipStatusValidated:
			setParts = append(setParts, "validated_at = NOW()")
			if u.ActorID != nil {
				setParts = append(setParts, fmt.Sprintf("validated_by = $%d", argIdx))
				args = append(args, *u.ActorID)
				argIdx++
			}
		case payroll.PayslipStatusSent:
			setParts = append(setParts, "sent_at = NOW()")
		}
	}
	if u.PaymentStatus != nil {
		setParts = append(setParts, fmt.Sprintf("payment_status = $%d", argIdx))
		args = append(args, *u.PaymentStatus)
		argIdx++
		if *u.PaymentStatus == payroll.PaymentStatusSent {
			setParts = append(setParts, "paid_at = NOW()")
		}
	}
	if u.PaymentChannel != nil {
		setParts = append(setParts, fmt.Sprintf("payment_channel = $%d", argIdx))
		args = append(args, *u.PaymentChannel)
		argIdx++
	}
	if u.PaymentOperator != nil {
		setParts = append(setParts, fmt.Sprintf("payment_operator = $%d", argIdx))
		args = append(args, *u.PaymentOperator)
		argIdx++
	}
	if u.TransactionReference != nil {
		setParts = append(setParts, fmt.Sprintf("transaction_reference = $%d", argIdx))
		args = append(args, *u.TransactionReference)
		argIdx++
	}
	if u.PaymentError != nil {
		setParts = append(setParts, fmt.Sprintf("payment_error = $%d", argIdx))
		args = append(args, *u.PaymentError)
		argIdx++
	} else if u.ClearPaymentError {
		setParts = append(setParts, "payment_error = NULL")
	}

	whereParts := []string{"id = $1", "company_id = $2"}
	if u.FromStatus != nil {
		whereParts = append(whereParts, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *u.FromStatus)
		argIdx++
	}
	if u.FromPaymentStatus != nil {
		whereParts = append(whereParts, fmt.Sprintf("payment_status = $%d", argIdx))
		args = append(args, *u.FromPaymentStatus)
	}

	query := fmt.Sprintf(`
		UPDATE payslips
		SET %s
		WHERE %s
		RETURNING id
	`, strings.Join(setParts, ", "), strings.Join(whereParts, " AND "))

	var updatedID string
	err := q.QueryRow(ctx, query, args...).Scan(&updatedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if u.FromStatus != nil || u.FromPaymentStatus != nil {
				return r.missedTransition(ctx, u.ID, companyID)
			}
			return payroll.ErrPayslipNotFound
		}
		return fmt.Errorf("failed to update payslip status: %w", err)
	}

	return nil
}

// missedTransition tells a guarded update that lost the race apart from one
// aimed at a payslip that does not exist.
func (r *payrollRepository) missedTransition(ctx context.Context, id string, companyID string) error {
	q := GetQuerier(ctx, r.db)

	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payslips WHERE id = $1 AND company_id = $2)`, id, companyID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check payslip %s: %w", id, err)
	}
	if !exists {
		return payroll.ErrPayslipNotFound
	}
	return payroll.ErrInvalidTransition
}

func (r *payrollRepository) DeletePayslip(ctx context.Context, id string, companyID string) error {
	q := GetQuerier(ctx, r.db)

	query := `DELETE FROM payslips WHERE id = $1 AND company_id = $2 AND status = 'DRAFT' RETURNING id`

	var deletedID string
	err := q.QueryRow(ctx, query, id, companyID).Scan(&deletedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payroll.ErrPayslipNotFound
		}
		return fmt.Errorf("failed to delete payslip: %w", err)
	}

	return nil
}

// ========== AGGREGATIONS ==========

func (r *payrollRepository) GetPayrollSummary(ctx context.Context, companyID string, month, year int) (payroll.PayrollSummaryResponse, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT
			ps.status,
			ps.payment_status,
			COALESCE(ps.payment_channel, e.payment_method, 'UNSET') AS payment_method,
			COUNT(*),
			COALESCE(SUM(ps.gross_pay), 0),
			COALESCE(SUM(ps.net_pay), 0),
			COALESCE(SUM(ps.employer_cost), 0)
		FROM payslips ps
		JOIN employees e ON ps.employee_id = e.id
		WHERE ps.company_id = $1 AND ps.period_month = $2 AND ps.period_year = $3
		GROUP BY 1, 2, 3
	`

	rows, err := q.Query(ctx, query, companyID, month, year)
	if err != nil {
		return payroll.PayrollSummaryResponse{}, fmt.Errorf("failed to get payroll summary: %w", err)
	}
	defer rows.Close()

	summary := payroll.PayrollSummaryResponse{
		PeriodMonth:       month,
		PeriodYear:        year,
		ByStatus:          map[string]int{},
		ByPaymentStatus:   map[string]int{},
		ByPaymentMethod:   map[string]int{},
		TotalGrossPay:     decimal.Zero,
		TotalNetPay:       decimal.Zero,
		TotalEmployerCost: decimal.Zero,
		AmountSent:        decimal.Zero,
		AmountPending:     decimal.Zero,
		AmountFailed:      decimal.Zero,
	}
	for rows.Next() {
		var status, paymentStatus, method string
		var count int
		var gross, net, cost decimal.Decimal
		if err := rows.Scan(&status, &paymentStatus, &method, &count, &gross, &net, &cost); err != nil {
			return payroll.PayrollSummaryResponse{}, fmt.Errorf("failed to scan payroll summary: %w", err)
		}

		summary.TotalPayslips += count
		summary.ByStatus[status] += count
		summary.ByPaymentStatus[paymentStatus] += count
		summary.ByPaymentMethod[method] += count
		summary.TotalGrossPay = summary.TotalGrossPay.Add(gross)
		summary.TotalNetPay = summary.TotalNetPay.Add(net)
		summary.TotalEmployerCost = summary.TotalEmployerCost.Add(cost)

		switch payroll.PaymentStatus(paymentStatus) {
		case payroll.PaymentStatusSent:
			summary.AmountSent = summary.AmountSent.Add(net)
		case payroll.PaymentStatusFailed:
			summary.AmountFailed = summary.AmountFailed.Add(net)
		default:
			summary.AmountPending = summary.AmountPending.Add(net)
		}
	}
	if err := rows.Err(); err != nil {
		return payroll.PayrollSummaryResponse{}, fmt.Errorf("failed to read payroll summary: %w", err)
	}

	return summary, nil
}

// PendingPayments answers the background reconciliation job across tenants.
type PendingPayments struct {
	db *database.DB
}

func NewPendingPayments(db *database.DB) *PendingPayments {
	return &PendingPayments{db: db}
}

func (r *PendingPayments) CompaniesWithPendingPayments(ctx context.Context) ([]string, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT DISTINCT company_id
		FROM payslips
		WHERE payment_status = 'IN_PROGRESS' AND transaction_reference IS NOT NULL
		ORDER BY company_id
	`

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies with pending payments: %w", err)
	}
	defer rows.Close()

	var companies []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan company id: %w", err)
		}
		companies = append(companies, id)
	}
	return companies, rows.Err()
}
