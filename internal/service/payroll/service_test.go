package payroll

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/SialouWebServices/Saas/internal/domain/employee"
	"github.com/SialouWebServices/Saas/internal/domain/payroll"
	"github.com/SialouWebServices/Saas/internal/pkg/apperror"
	"github.com/go-chi/jwtauth/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCompanyID = "company-1"

func authContext(t *testing.T) context.Context {
	t.Helper()
	tokenAuth := jwtauth.New("HS256", []byte("test-secret"), nil)
	token, _, err := tokenAuth.Encode(map[string]interface{}{
		"user_id":    "user-1",
		"company_id": testCompanyID,
		"role":       "hr",
	})
	require.NoError(t, err)
	return jwtauth.NewContext(context.Background(), token, nil)
}

type noopTransactor struct{}

func (noopTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memoryEmployeeRepo struct {
	employees []employee.Employee
}

func (r *memoryEmployeeRepo) GetByID(ctx context.Context, id string, companyID string) (employee.Employee, error) {
	for _, e := range r.employees {
		if e.ID == id && e.CompanyID == companyID {
			return e, nil
		}
	}
	return employee.Employee{}, employee.ErrEmployeeNotFound
}

func (r *memoryEmployeeRepo) GetByIDs(ctx context.Context, companyID string, ids []string) ([]employee.Employee, error) {
	var out []employee.Employee
	for _, id := range ids {
		if e, err := r.GetByID(ctx, id, companyID); err == nil {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memoryEmployeeRepo) GetActiveByCompanyID(ctx context.Context, companyID string) ([]employee.Employee, error) {
	var out []employee.Employee
	for _, e := range r.employees {
		if e.CompanyID == companyID && e.IsActive() {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memoryEmployeeRepo) UpdatePaymentProfile(ctx context.Context, id string, companyID string, profile employee.PaymentProfile) error {
	return errors.New("not used by payroll tests")
}

// memoryPayrollRepo keeps payslips in insertion order.
type memoryPayrollRepo struct {
	mu       sync.Mutex
	settings *payroll.PayrollSettings
	payslips []payroll.Payslip
	seq      int
}

func (r *memoryPayrollRepo) GetSettings(ctx context.Context, companyID string) (payroll.PayrollSettings, error) {
	if r.settings == nil {
		return payroll.PayrollSettings{}, payroll.ErrPayrollSettingsNotFound
	}
	return *r.settings, nil
}

func (r *memoryPayrollRepo) UpsertSettings(ctx context.Context, s payroll.PayrollSettings) (payroll.PayrollSettings, error) {
	r.settings = &s
	return s, nil
}

func (r *memoryPayrollRepo) CreatePayslip(ctx context.Context, p payroll.Payslip) (payroll.Payslip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.payslips {
		if existing.EmployeeID == p.EmployeeID && existing.PeriodMonth == p.PeriodMonth && existing.PeriodYear == p.PeriodYear {
			return payroll.Payslip{}, payroll.ErrPayslipAlreadyExists
		}
	}
	r.seq++
	p.ID = "payslip-" + strconv.Itoa(r.seq)
	r.payslips = append(r.payslips, p)
	return p, nil
}

func (r *memoryPayrollRepo) GetPayslipByID(ctx context.Context, id string, companyID string) (payroll.Payslip, error) {
	for _, p := range r.payslips {
		if p.ID == id && p.CompanyID == companyID {
			return p, nil
		}
	}
	return payroll.Payslip{}, payroll.ErrPayslipNotFound
}

func (r *memoryPayrollRepo) GetPayslipByEmployeePeriod(ctx context.Context, employeeID string, month, year int, companyID string) (payroll.Payslip, error) {
	for _, p := range r.payslips {
		if p.EmployeeID == employeeID && p.PeriodMonth == month && p.PeriodYear == year && p.CompanyID == companyID {
			return p, nil
		}
	}
	return payroll.Payslip{}, payroll.ErrPayslipNotFound
}

func (r *memoryPayrollRepo) GetPayslipsByIDs(ctx context.Context, companyID string, ids []string) ([]payroll.Payslip, error) {
	var out []payroll.Payslip
	for _, id := range ids {
		if p, err := r.GetPayslipByID(ctx, id, companyID); err == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryPayrollRepo) ExistingEmployeeIDsForPeriod(ctx context.Context, companyID string, month, year int, employeeIDs []string) ([]string, error) {
	var out []string
	for _, id := range employeeIDs {
		if _, err := r.GetPayslipByEmployeePeriod(ctx, id, month, year, companyID); err == nil {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *memoryPayrollRepo) ListPayslips(ctx context.Context, companyID string, filter payroll.PayslipFilter) ([]payroll.Payslip, int64, error) {
	var out []payroll.Payslip
	for _, p := range r.payslips {
		if filter.Status != nil && string(p.Status) != *filter.Status {
			continue
		}
		out = append(out, p)
	}
	return out, int64(len(out)), nil
}

func (r *memoryPayrollRepo) ListValidatedForPeriod(ctx context.Context, companyID string, month, year int, employeeIDs []string) ([]payroll.Payslip, error) {
	var out []payroll.Payslip
	for _, p := range r.payslips {
		if p.Status == payroll.PayslipStatusValidated && p.PeriodMonth == month && p.PeriodYear == year {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryPayrollRepo) ListByPaymentStatus(ctx context.Context, companyID string, status payroll.PaymentStatus) ([]payroll.Payslip, error) {
	var out []payroll.Payslip
	for _, p := range r.payslips {
		if p.PaymentStatus == status {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryPayrollRepo) UpdatePayslipStatus(ctx context.Context, companyID string, u payroll.StatusUpdate) error {
	for i := range r.payslips {
		p := &r.payslips[i]
		if p.ID != u.ID {
			continue
		}
		if (u.FromStatus != nil && p.Status != *u.FromStatus) ||
			(u.FromPaymentStatus != nil && p.PaymentStatus != *u.FromPaymentStatus) {
			return payroll.ErrInvalidTransition
		}
		if u.Status != nil {
			p.Status = *u.Status
		}
		if u.PaymentStatus != nil {
			p.PaymentStatus = *u.PaymentStatus
		}
		if u.PaymentError != nil {
			p.PaymentError = u.PaymentError
		}
		if u.ClearPaymentError {
			p.PaymentError = nil
		}
		return nil
	}
	return payroll.ErrPayslipNotFound
}

func (r *memoryPayrollRepo) DeletePayslip(ctx context.Context, id string, companyID string) error {
	for i, p := range r.payslips {
		if p.ID == id {
			r.payslips = append(r.payslips[:i], r.payslips[i+1:]...)
			return nil
		}
	}
	return payroll.ErrPayslipNotFound
}

func (r *memoryPayrollRepo) GetPayrollSummary(ctx context.Context, companyID string, month, year int) (payroll.PayrollSummaryResponse, error) {
	return payroll.PayrollSummaryResponse{TotalPayslips: len(r.payslips)}, nil
}

func testEmployee(id string, base int64) employee.Employee {
	return employee.Employee{
		ID:               id,
		CompanyID:        testCompanyID,
		EmployeeCode:     "EMP-" + id,
		FullName:         "Employee " + id,
		EmploymentStatus: employee.EmploymentStatusActive,
		BaseSalary:       decimal.NewFromInt(base),
	}
}

func newTestService(employees ...employee.Employee) (*PayrollServiceImpl, *memoryPayrollRepo) {
	repo := &memoryPayrollRepo{}
	svc := NewPayrollService(noopTransactor{}, repo, &memoryEmployeeRepo{employees: employees}, payroll.DefaultPolicy(), 2, nil)
	return svc.(*PayrollServiceImpl), repo
}

// ===== GENERATE PAYROLL TESTS =====

func TestPayrollService_GeneratePayroll_Success(t *testing.T) {
	ctx := authContext(t)
	svc, repo := newTestService(testEmployee("e1", 450000), testEmployee("e2", 200000))

	// Act
	resp, err := svc.GeneratePayroll(ctx, payroll.GeneratePayrollRequest{
		PeriodMonth: 1,
		PeriodYear:  2024,
		Variables: map[string]payroll.VariableElements{
			"e1": {OvertimeHours: decimal.NewFromInt(8), VariableBonuses: decimal.NewFromInt(50000)},
		},
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "Janvier 2024", resp.PeriodLabel)
	assert.Len(t, resp.Payslips, 2)
	assert.Empty(t, resp.Failures)
	assert.Equal(t, 2, resp.Totals.EmployeeCount)
	assert.True(t, resp.Totals.TotalBaseSalary.Equal(decimal.NewFromInt(650000)))

	require.Len(t, repo.payslips, 2)
	for _, p := range repo.payslips {
		assert.Equal(t, payroll.PayslipStatusDraft, p.Status)
		assert.Equal(t, payroll.PaymentStatusPending, p.PaymentStatus)
	}
	assert.Equal(t, "e1", resp.Payslips[0].EmployeeID)
	assert.True(t, resp.Payslips[0].Calculation.OvertimeAmount.Equal(decimal.NewFromInt(25962)))
}

func TestPayrollService_GeneratePayroll_DuplicateRejectsWholeRun(t *testing.T) {
	ctx := authContext(t)
	svc, repo := newTestService(testEmployee("e1", 300000), testEmployee("e2", 300000), testEmployee("e3", 300000))

	_, err := svc.CreatePayslip(ctx, payroll.CreatePayslipRequest{EmployeeID: "e2", PeriodMonth: 3, PeriodYear: 2024})
	require.NoError(t, err)

	// Act
	_, err = svc.GeneratePayroll(ctx, payroll.GeneratePayrollRequest{PeriodMonth: 3, PeriodYear: 2024})

	// Assert
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrDuplicate)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, []string{"e2"}, appErr.IDs)
	assert.Len(t, repo.payslips, 1, "nothing else may be created")
}

func TestPayrollService_GeneratePayroll_FailuresDoNotAbortRun(t *testing.T) {
	ctx := authContext(t)
	svc, repo := newTestService(testEmployee("e1", 300000), testEmployee("e2", 40000))

	resp, err := svc.GeneratePayroll(ctx, payroll.GeneratePayrollRequest{PeriodMonth: 2, PeriodYear: 2024})

	require.NoError(t, err)
	assert.Len(t, resp.Payslips, 1)
	require.Len(t, resp.Failures, 1)
	assert.Equal(t, "e2", resp.Failures[0].EmployeeID)
	assert.Len(t, repo.payslips, 1)
}

func TestPayrollService_GeneratePayroll_UnknownEmployee(t *testing.T) {
	ctx := authContext(t)
	svc, _ := newTestService(testEmployee("e1", 300000))

	_, err := svc.GeneratePayroll(ctx, payroll.GeneratePayrollRequest{
		PeriodMonth: 2, PeriodYear: 2024, EmployeeIDs: []string{"e1", "ghost"},
	})

	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestPayrollService_GeneratePayroll_NoEmployees(t *testing.T) {
	ctx := authContext(t)
	svc, _ := newTestService()

	_, err := svc.GeneratePayroll(ctx, payroll.GeneratePayrollRequest{PeriodMonth: 2, PeriodYear: 2024})

	assert.ErrorIs(t, err, apperror.ErrNoEligibleRecords)
}

func TestPayrollService_GeneratePayroll_RequiresClaims(t *testing.T) {
	svc, _ := newTestService(testEmployee("e1", 300000))

	_, err := svc.GeneratePayroll(context.Background(), payroll.GeneratePayrollRequest{PeriodMonth: 2, PeriodYear: 2024})

	assert.Error(t, err)
}

// ===== LIFECYCLE TESTS =====

func TestPayrollService_Lifecycle(t *testing.T) {
	ctx := authContext(t)
	svc, repo := newTestService(testEmployee("e1", 300000))

	created, err := svc.CreatePayslip(ctx, payroll.CreatePayslipRequest{EmployeeID: "e1", PeriodMonth: 5, PeriodYear: 2024})
	require.NoError(t, err)
	assert.Equal(t, "DRAFT", created.Status)

	// Archive before SENT is refused
	_, err = svc.ArchivePayslip(ctx, created.ID)
	assert.ErrorIs(t, err, apperror.ErrInvalidState)

	validated, err := svc.ValidatePayslips(ctx, payroll.PayslipIDsRequest{PayslipIDs: []string{created.ID}})
	require.NoError(t, err)
	require.Len(t, validated, 1)
	assert.Equal(t, "VALIDATED", validated[0].Status)
	assert.NotNil(t, validated[0].ValidatedAt)

	// Second validation is refused and names the payslip
	_, err = svc.ValidatePayslips(ctx, payroll.PayslipIDsRequest{PayslipIDs: []string{created.ID}})
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.ErrorIs(t, err, apperror.ErrInvalidState)
	assert.Equal(t, []string{created.ID}, appErr.IDs)

	// Only drafts can be deleted
	assert.ErrorIs(t, svc.DeletePayslip(ctx, created.ID), payroll.ErrPayslipNotDraft)

	repo.payslips[0].Status = payroll.PayslipStatusSent
	archived, err := svc.ArchivePayslip(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "ARCHIVED", archived.Status)
}

func TestPayrollService_CreatePayslip_Duplicate(t *testing.T) {
	ctx := authContext(t)
	svc, _ := newTestService(testEmployee("e1", 300000))

	_, err := svc.CreatePayslip(ctx, payroll.CreatePayslipRequest{EmployeeID: "e1", PeriodMonth: 5, PeriodYear: 2024})
	require.NoError(t, err)

	_, err = svc.CreatePayslip(ctx, payroll.CreatePayslipRequest{EmployeeID: "e1", PeriodMonth: 5, PeriodYear: 2024})
	assert.ErrorIs(t, err, apperror.ErrDuplicate)
}

func TestPayrollService_CreatePayslip_OverridesProfile(t *testing.T) {
	ctx := authContext(t)
	svc, _ := newTestService(testEmployee("e1", 300000))
	base := decimal.NewFromInt(500000)

	resp, err := svc.CreatePayslip(ctx, payroll.CreatePayslipRequest{
		EmployeeID: "e1", PeriodMonth: 6, PeriodYear: 2024, BaseSalary: &base,
	})

	require.NoError(t, err)
	assert.True(t, resp.Calculation.BaseSalary.Equal(base))
	assert.Equal(t, "Employee e1", resp.EmployeeName)
}

func TestPayrollService_ValidatePayslips_MissingID(t *testing.T) {
	ctx := authContext(t)
	svc, _ := newTestService()

	_, err := svc.ValidatePayslips(ctx, payroll.PayslipIDsRequest{PayslipIDs: []string{"nope"}})

	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestPayrollService_RetryFailedPayment(t *testing.T) {
	ctx := authContext(t)
	svc, repo := newTestService(testEmployee("e1", 300000))

	created, err := svc.CreatePayslip(ctx, payroll.CreatePayslipRequest{EmployeeID: "e1", PeriodMonth: 7, PeriodYear: 2024})
	require.NoError(t, err)

	_, err = svc.RetryFailedPayment(ctx, created.ID)
	assert.ErrorIs(t, err, payroll.ErrPaymentNotFailed)

	reason := "insufficient balance"
	repo.payslips[0].Status = payroll.PayslipStatusValidated
	repo.payslips[0].PaymentStatus = payroll.PaymentStatusFailed
	repo.payslips[0].PaymentError = &reason

	resp, err := svc.RetryFailedPayment(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", resp.PaymentStatus)
	assert.Equal(t, "VALIDATED", resp.Status)
	assert.Nil(t, repo.payslips[0].PaymentError)
}

// ===== SETTINGS TESTS =====

func TestPayrollService_Settings(t *testing.T) {
	ctx := authContext(t)
	svc, repo := newTestService(testEmployee("e1", 300000))

	defaults, err := svc.GetSettings(ctx)
	require.NoError(t, err)
	assert.False(t, defaults.Customized)
	assert.True(t, defaults.MonthlyCeiling.Equal(decimal.NewFromInt(1800000)))

	relaxed := false
	updated, err := svc.UpdateSettings(ctx, payroll.UpdatePayrollSettingsRequest{EnforceMinimumWage: &relaxed})
	require.NoError(t, err)
	assert.True(t, updated.Customized)
	assert.False(t, updated.EnforceMinimumWage)
	require.NotNil(t, repo.settings)

	// Below SMIG now yields a warning instead of an error
	low := decimal.NewFromInt(40000)
	resp, err := svc.CreatePayslip(ctx, payroll.CreatePayslipRequest{
		EmployeeID: "e1", PeriodMonth: 8, PeriodYear: 2024, BaseSalary: &low,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Calculation.Warnings)
}

func TestPayrollService_UpdateSettings_Invalid(t *testing.T) {
	ctx := authContext(t)
	svc, repo := newTestService()
	rate := decimal.RequireFromString("1.5")

	_, err := svc.UpdateSettings(ctx, payroll.UpdatePayrollSettingsRequest{EmployeeRate: &rate})

	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Nil(t, repo.settings)
}

func TestPayrollService_GetPayrollSummary(t *testing.T) {
	ctx := authContext(t)
	svc, _ := newTestService()

	summary, err := svc.GetPayrollSummary(ctx, 12, 2024)
	require.NoError(t, err)
	assert.Equal(t, "Décembre 2024", summary.PeriodLabel)

	_, err = svc.GetPayrollSummary(ctx, 13, 2024)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}
