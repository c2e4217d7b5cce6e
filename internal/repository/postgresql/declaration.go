package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/SialouWebServices/Saas/internal/domain/declaration"
	"github.com/SialouWebServices/Saas/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

type filingRepository struct {
	db *database.DB
}

func NewFilingRepository(db *database.DB) declaration.FilingRepository {
	return &filingRepository{db: db}
}

const filingColumns = `
	id, company_id, period_month, period_year, period_label, status, employee_count,
	total_gross_pay, total_contribution_base, total_employee_contributions,
	total_employer_contributions, total_contributions,
	created_by, validated_at, validated_by, filed_at, filed_by, created_at, updated_at
`

func scanFiling(row rowScanner) (declaration.Filing, error) {
	var f declaration.Filing
	err := row.Scan(
		&f.ID, &f.CompanyID, &f.PeriodMonth, &f.PeriodYear, &f.PeriodLabel, &f.Status, &f.EmployeeCount,
		&f.TotalGrossPay, &f.TotalContributionBase, &f.TotalEmployeeContributions,
		&f.TotalEmployerContributions, &f.TotalContributions,
		&f.CreatedBy, &f.ValidatedAt, &f.ValidatedBy, &f.FiledAt, &f.FiledBy, &f.CreatedAt, &f.UpdatedAt,
	)
	return f, err
}

// Create inserts the header then queues every line in a single batch. Callers
// run it inside a transaction so a failed line leaves no partial filing.
func (r *filingRepository) Create(ctx context.Context, filing declaration.Filing) (declaration.Filing, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO cnps_filings (
			company_id, period_month, period_year, period_label, status, employee_count,
			total_gross_pay, total_contribution_base, total_employee_contributions,
			total_employer_contributions, total_contributions, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at
	`

	err := q.QueryRow(ctx, query,
		filing.CompanyID, filing.PeriodMonth, filing.PeriodYear, filing.PeriodLabel, filing.Status, filing.EmployeeCount,
		filing.TotalGrossPay, filing.TotalContributionBase, filing.TotalEmployeeContributions,
		filing.TotalEmployerContributions, filing.TotalContributions, filing.CreatedBy,
	).Scan(&filing.ID, &filing.CreatedAt, &filing.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "uk_filing_company_period") {
			return declaration.Filing{}, declaration.ErrFilingAlreadyExists
		}
		return declaration.Filing{}, fmt.Errorf("failed to create filing: %w", err)
	}

	if len(filing.Lines) == 0 {
		return filing, nil
	}

	lineQuery := `
		INSERT INTO cnps_filing_lines (
			filing_id, payslip_id, employee_id, employee_code, employee_name, cnps_number,
			gross_pay, contribution_base, employee_contribution, employer_contribution
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	batch := &pgx.Batch{}
	for _, l := range filing.Lines {
		batch.Queue(lineQuery,
			filing.ID, l.PayslipID, l.EmployeeID, l.EmployeeCode, l.EmployeeName, l.CNPSNumber,
			l.GrossPay, l.ContributionBase, l.EmployeeContribution, l.EmployerContribution,
		)
	}

	results := q.SendBatch(ctx, batch)
	defer results.Close()

	for i := range filing.Lines {
		if err := results.QueryRow().Scan(&filing.Lines[i].ID); err != nil {
			return declaration.Filing{}, fmt.Errorf("failed to create filing line for payslip %s: %w", filing.Lines[i].PayslipID, err)
		}
		filing.Lines[i].FilingID = filing.ID
	}

	return filing, nil
}

func (r *filingRepository) GetByID(ctx context.Context, id string, companyID string) (declaration.Filing, error) {
	q := GetQuerier(ctx, r.db)

	query := "SELECT " + filingColumns + " FROM cnps_filings WHERE id = $1 AND company_id = $2"

	f, err := scanFiling(q.QueryRow(ctx, query, id, companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return declaration.Filing{}, declaration.ErrFilingNotFound
		}
		return declaration.Filing{}, fmt.Errorf("failed to get filing: %w", err)
	}

	lines, err := r.getLines(ctx, f.ID)
	if err != nil {
		return declaration.Filing{}, err
	}
	f.Lines = lines

	return f, nil
}

func (r *filingRepository) getLines(ctx context.Context, filingID string) ([]declaration.FilingLine, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id, filing_id, payslip_id, employee_id, employee_code, employee_name, cnps_number,
			   gross_pay, contribution_base, employee_contribution, employer_contribution
		FROM cnps_filing_lines
		WHERE filing_id = $1
		ORDER BY employee_name
	`

	rows, err := q.Query(ctx, query, filingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get filing lines: %w", err)
	}
	defer rows.Close()

	lines := []declaration.FilingLine{}
	for rows.Next() {
		var l declaration.FilingLine
		if err := rows.Scan(
			&l.ID, &l.FilingID, &l.PayslipID, &l.EmployeeID, &l.EmployeeCode, &l.EmployeeName, &l.CNPSNumber,
			&l.GrossPay, &l.ContributionBase, &l.EmployeeContribution, &l.EmployerContribution,
		); err != nil {
			return nil, fmt.Errorf("failed to scan filing line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *filingRepository) GetByPeriod(ctx context.Context, companyID string, month, year int) (declaration.Filing, error) {
	q := GetQuerier(ctx, r.db)

	query := "SELECT " + filingColumns + " FROM cnps_filings WHERE company_id = $1 AND period_month = $2 AND period_year = $3"

	f, err := scanFiling(q.QueryRow(ctx, query, companyID, month, year))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return declaration.Filing{}, declaration.ErrFilingNotFound
		}
		return declaration.Filing{}, fmt.Errorf("failed to get filing by period: %w", err)
	}
	return f, nil
}

// List returns filing headers only.
func (r *filingRepository) List(ctx context.Context, companyID string, filter declaration.FilingFilter) ([]declaration.Filing, int64, error) {
	q := GetQuerier(ctx, r.db)

	whereClause := " WHERE company_id = $1"
	args := []interface{}{companyID}
	argIdx := 2

	if filter.PeriodYear != nil {
		whereClause += fmt.Sprintf(" AND period_year = $%d", argIdx)
		args = append(args, *filter.PeriodYear)
		argIdx++
	}

	var totalCount int64
	if err := q.QueryRow(ctx, "SELECT COUNT(*) FROM cnps_filings"+whereClause, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count filings: %w", err)
	}

	offset := (filter.Page - 1) * filter.Limit
	query := fmt.Sprintf("SELECT %s FROM cnps_filings%s ORDER BY period_year DESC, period_month DESC LIMIT $%d OFFSET $%d",
		filingColumns, whereClause, argIdx, argIdx+1)
	args = append(args, filter.Limit, offset)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list filings: %w", err)
	}
	defer rows.Close()

	var filings []declaration.Filing
	for rows.Next() {
		f, err := scanFiling(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan filing: %w", err)
		}
		filings = append(filings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating filings: %w", err)
	}

	return filings, totalCount, nil
}

// UpdateStatus only moves a filing that still holds the predecessor of the
// requested status, so two concurrent submissions cannot both stamp it.
func (r *filingRepository) UpdateStatus(ctx context.Context, companyID string, change declaration.StatusChange) error {
	q := GetQuerier(ctx, r.db)

	from, ok := change.Status.Predecessor()
	if !ok {
		return declaration.ErrInvalidTransition
	}

	var query string
	switch change.Status {
	case declaration.FilingStatusValidated:
		query = `UPDATE cnps_filings SET status = $3, validated_at = $4, validated_by = $5, updated_at = NOW()
			WHERE id = $1 AND company_id = $2 AND status = $6 RETURNING id`
	case declaration.FilingStatusFiled:
		query = `UPDATE cnps_filings SET status = $3, filed_at = $4, filed_by = $5, updated_at = NOW()
			WHERE id = $1 AND company_id = $2 AND status = $6 RETURNING id`
	}

	var updatedID string
	err := q.QueryRow(ctx, query, change.ID, companyID, change.Status, change.At, change.ActorID, from).Scan(&updatedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.missedTransition(ctx, change.ID, companyID)
		}
		return fmt.Errorf("failed to update filing status: %w", err)
	}
	return nil
}

func (r *filingRepository) missedTransition(ctx context.Context, id string, companyID string) error {
	q := GetQuerier(ctx, r.db)

	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM cnps_filings WHERE id = $1 AND company_id = $2)`, id, companyID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check filing %s: %w", id, err)
	}
	if !exists {
		return declaration.ErrFilingNotFound
	}
	return declaration.ErrInvalidTransition
}

// Delete removes a draft filing. Lines go with it through ON DELETE CASCADE.
func (r *filingRepository) Delete(ctx context.Context, id string, companyID string) error {
	q := GetQuerier(ctx, r.db)

	query := `DELETE FROM cnps_filings WHERE id = $1 AND company_id = $2 AND status = 'DRAFT' RETURNING id`

	var deletedID string
	err := q.QueryRow(ctx, query, id, companyID).Scan(&deletedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return declaration.ErrFilingNotFound
		}
		return fmt.Errorf("failed to delete filing: %w", err)
	}
	return nil
}
