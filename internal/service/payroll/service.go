package payroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SialouWebServices/Saas/internal/domain/auth"
	"github.com/SialouWebServices/Saas/internal/domain/employee"
	"github.com/SialouWebServices/Saas/internal/domain/payroll"
	"github.com/SialouWebServices/Saas/internal/pkg/apperror"
	"github.com/SialouWebServices/Saas/internal/pkg/database"
	"github.com/SialouWebServices/Saas/internal/pkg/metrics"
	"github.com/SialouWebServices/Saas/internal/pkg/validator"
)

type PayrollServiceImpl struct {
	tx           database.Transactor
	payrollRepo  payroll.PayrollRepository
	employeeRepo employee.EmployeeRepository
	policy       payroll.Policy
	concurrency  int
	metrics      *metrics.Metrics
	now          func() time.Time
}

func NewPayrollService(
	tx database.Transactor,
	payrollRepo payroll.PayrollRepository,
	employeeRepo employee.EmployeeRepository,
	policy payroll.Policy,
	concurrency int,
	m *metrics.Metrics,
) payroll.PayrollService {
	return &PayrollServiceImpl{
		tx:           tx,
		payrollRepo:  payrollRepo,
		employeeRepo: employeeRepo,
		policy:       policy,
		concurrency:  concurrency,
		metrics:      m,
		now:          time.Now,
	}
}

// ========== SETTINGS ==========

// policyFor returns the engine policy with the company's overrides applied.
func (s *PayrollServiceImpl) policyFor(ctx context.Context, companyID string) (payroll.Policy, bool, error) {
	settings, err := s.payrollRepo.GetSettings(ctx, companyID)
	if err != nil {
		if errors.Is(err, payroll.ErrPayrollSettingsNotFound) {
			return s.policy, false, nil
		}
		return payroll.Policy{}, false, err
	}

	policy := s.policy.WithSettings(settings)
	if err := policy.Validate(); err != nil {
		return payroll.Policy{}, false, fmt.Errorf("invalid payroll settings for company: %w", err)
	}
	return policy, true, nil
}

func (s *PayrollServiceImpl) GetSettings(ctx context.Context) (payroll.PayrollSettingsResponse, error) {
	claims, err := auth.ClaimsFromContext(ctx)
	if err != nil {
		return payroll.PayrollSettingsResponse{}, err
	}

	policy, customized, err := s.policyFor(ctx, claims.CompanyID)
	if err != nil {
		return payroll.PayrollSettingsResponse{}, err
	}

	return mapToSettingsResponse(claims.CompanyID, policy, customized), nil
}

func (s *PayrollServiceImpl) UpdateSettings(ctx context.Context, req payroll.UpdatePayrollSettingsRequest) (payroll.PayrollSettingsResponse, error) {
	if err := req.Validate(); err != nil {
		return payroll.PayrollSettingsResponse{}, err
	}

	claims, err := auth.ClaimsFromContext(ctx)
	if err != nil {
		return payroll.PayrollSettingsResponse{}, err
	}

	current, err := s.payrollRepo.GetSettings(ctx, claims.CompanyID)
	if err != nil && !errors.Is(err, payroll.ErrPayrollSettingsNotFound) {
		return payroll.PayrollSettingsResponse{}, err
	}
	current.CompanyID = claims.CompanyID

	// Apply updates
	if req.EmployeeRate != nil {
		current.EmployeeRate = req.EmployeeRate
	}
	if req.EmployerRate != nil {
		current.EmployerRate = req.EmployerRate
	}
	if req.AnnualCeiling != nil {
		current.AnnualCeiling = req.AnnualCeiling
	}
	if req.OvertimeRate != nil {
		current.OvertimeRate = req.OvertimeRate
	}
	if req.MinimumWage != nil {
		current.MinimumWage = req.MinimumWage
	}
	if req.EnforceMinimumWage != nil {
		current.EnforceMinimumWage = req.EnforceMinimumWage
	}

	policy := s.policy.WithSettings(current)
	if err := policy.Validate(); err != nil {
		return payroll.PayrollSettingsResponse{}, err
	}

	if _, err := s.payrollRepo.UpsertSettings(ctx, current); err != nil {
		return payroll.PayrollSettingsResponse{}, err
	}

	return mapToSettingsResponse(claims.CompanyID, policy, true), nil
}

// ========== PAYSLIPS ==========

func (s *PayrollServiceImpl) GeneratePayroll(ctx context.Context, req payroll.GeneratePayrollRequest) (payroll.GeneratePayrollResponse, error) {
	if err := req.Validate(); err != nil {
		return payroll.GeneratePayrollResponse{}, err
	}

	claims, err := auth.ClaimsFromContext(ctx)
	if err != nil {
		return payroll.GeneratePayrollResponse{}, err
	}
	companyID := claims.CompanyID

	// Get employees
	var employees []employee.Employee
	if len(req.EmployeeIDs) > 0 {
		employees, err = s.employeeRepo.GetByIDs(ctx, companyID, req.EmployeeIDs)
		if err != nil {
			return payroll.GeneratePayrollResponse{}, fmt.Errorf("failed to get employees: %w", err)
		}
		if missing := missingEmployeeIDs(req.EmployeeIDs, employees); len(missing) > 0 {
			return payroll.GeneratePayrollResponse{}, &apperror.AppError{
				Kind: apperror.ErrNotFound, Message: "employee not found", IDs: missing,
			}
		}
	} else {
		employees, err = s.employeeRepo.GetActiveByCompanyID(ctx, companyID)
		if err != nil {
			return payroll.GeneratePayrollResponse{}, fmt.Errorf("failed to get employees: %w", err)
		}
	}

	failures := []payroll.BatchFailure{}
	eligible := make([]employee.Employee, 0, len(employees))
	for _, emp := range employees {
		if !emp.IsActive() {
			failures = append(failures, payroll.BatchFailure{EmployeeID: emp.ID, Reason: "employee is not active"})
			continue
		}
		eligible = append(eligible, emp)
	}
	if len(eligible) == 0 {
		return payroll.GeneratePayrollResponse{}, payroll.ErrNoEligibleEmployees
	}

	employeeIDs := make([]string, 0, len(eligible))
	for _, emp := range eligible {
		employeeIDs = append(employeeIDs, emp.ID)
	}

	// The whole run is rejected if any employee already has a payslip for the period.
	existing, err := s.payrollRepo.ExistingEmployeeIDsForPeriod(ctx, companyID, req.PeriodMonth, req.PeriodYear, employeeIDs)
	if err != nil {
		return payroll.GeneratePayrollResponse{}, fmt.Errorf("failed to check existing payslips: %w", err)
	}
	if len(existing) > 0 {
		return payroll.GeneratePayrollResponse{}, apperror.Duplicate("payslips already exist for this period", existing...)
	}

	policy, _, err := s.policyFor(ctx, companyID)
	if err != nil {
		return payroll.GeneratePayrollResponse{}, err
	}
	calc := NewCalculator(policy, s.concurrency)

	entries := make([]payroll.BatchEntry, 0, len(eligible))
	byID := make(map[string]employee.Employee, len(eligible))
	for _, emp := range eligible {
		byID[emp.ID] = emp
		entries = append(entries, payroll.BatchEntry{
			EmployeeID: emp.ID,
			Input:      compensationInput(emp, req.Variables[emp.ID]),
		})
	}
	batch := calc.ComputeBatch(entries)
	failures = append(failures, batch.Failures...)

	created := make([]payroll.Payslip, 0, len(batch.Results))
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		for _, r := range batch.Results {
			p, err := s.payrollRepo.CreatePayslip(ctx, newPayslip(companyID, r.EmployeeID, req.PeriodMonth, req.PeriodYear, r.Input, r.Calculation))
			if err != nil {
				if errors.Is(err, payroll.ErrPayslipAlreadyExists) {
					return apperror.Duplicate("payslips already exist for this period", r.EmployeeID)
				}
				return fmt.Errorf("failed to create payslip for employee %s: %w", r.EmployeeID, err)
			}
			withEmployee(&p, byID[r.EmployeeID])
			created = append(created, p)
		}
		return nil
	})
	if err != nil {
		return payroll.GeneratePayrollResponse{}, err
	}

	s.metrics.IncrementPayslipsGenerated(len(created))
	s.metrics.IncrementCalcFailures(len(batch.Failures))
	slog.InfoContext(ctx, "payroll run generated",
		"company_id", companyID,
		"period", payroll.PeriodLabel(req.PeriodMonth, req.PeriodYear),
		"created", len(created),
		"failed", len(failures),
		"total_net_pay", batch.Totals.TotalNetPay.String(),
	)

	return payroll.GeneratePayrollResponse{
		PeriodLabel: payroll.PeriodLabel(req.PeriodMonth, req.PeriodYear),
		Payslips:    mapToPayslipResponses(created),
		Failures:    failures,
		Totals:      batch.Totals,
	}, nil
}

func (s *PayrollServiceImpl) CreatePayslip(ctx context.Context, req payroll.CreatePayslipRequest) (payroll.PayslipResponse, error) {
	if err := req.Validate(); err != nil {
		return payroll.PayslipResponse{}, err
	}

	claims, err := auth.ClaimsFromContext(ctx)
	if err != nil {
		return payroll.PayslipResponse{}, err
	}
	companyID := claims.CompanyID

	emp, err := s.employeeRepo.GetByID(ctx, req.EmployeeID, companyID)
	if err != nil {
		return payroll.PayslipResponse{}, err
	}

	_, err = s.payrollRepo.GetPayslipByEmployeePeriod(ctx, emp.ID, req.PeriodMonth, req.PeriodYear, companyID)
	if err == nil {
		return payroll.PayslipResponse{}, apperror.Duplicate("payslip already exists for this period", emp.ID)
	}
	if !errors.Is(err, payroll.ErrPayslipNotFound) {
		return payroll.PayslipResponse{}, fmt.Errorf("failed to check existing payslip: %w", err)
	}

	input := compensationInput(emp, req.Variables)
	if req.BaseSalary != nil {
		input.BaseSalary = *req.BaseSalary
	}
	if req.TransportAllowance != nil {
		input.TransportAllowance = *req.TransportAllowance
	}
	if req.FixedBonuses != nil {
		input.FixedBonuses = *req.FixedBonuses
	}

	policy, _, err := s.policyFor(ctx, companyID)
	if err != nil {
		return payroll.PayslipResponse{}, err
	}
	calculation, err := NewCalculator(policy, 1).ComputePayslip(input)
	if err != nil {
		return payroll.PayslipResponse{}, err
	}

	created, err := s.payrollRepo.CreatePayslip(ctx, newPayslip(companyID, emp.ID, req.PeriodMonth, req.PeriodYear, input, calculation))
	if err != nil {
		if errors.Is(err, payroll.ErrPayslipAlreadyExists) {
			return payroll.PayslipResponse{}, apperror.Duplicate("payslip already exists for this period", emp.ID)
		}
		return payroll.PayslipResponse{}, err
	}
	withEmployee(&created, emp)
	s.metrics.IncrementPayslipsGenerated(1)

	return mapToPayslipResponse(created), nil
}

func (s *PayrollServiceImpl) GetPayslip(ctx context.Context, id string) (payroll.PayslipResponse, error) {
	claims, err := auth.ClaimsFromContext(ctx)
	if err != nil {
		return payroll.PayslipResponse{}, err
	}

	p, err := s.payrollRepo.GetPayslipByID(ctx, id, claims.CompanyID)
	if err != nil {
		return payroll.PayslipResponse{}, err
	}

	return mapToPayslipResponse(p), nil
}

func (s *PayrollServiceImpl) ListPayslips(ctx context.Context, filter payroll.PayslipFilter) (payroll.ListPayslipResponse, error) {
	claims, err := auth.ClaimsFromContext(ctx)
	if err != nil {
		return payroll.ListPayslipResponse{}, err
	}

	var errs validator.ValidationErrors
	if filter.Status != nil && !payroll.PayslipStatus(*filter.Status).IsValid() {
		errs = append(errs, validator.ValidationError{Field: "status", Message: "must be DRAFT, VALIDATED, SENT or ARCHIVED"})
	}
	if filter.PaymentStatus != nil && !validator.IsInSlice(*filter.PaymentStatus, []string{
		string(payroll.PaymentStatusPending), string(payroll.PaymentStatusInProgress),
		string(payroll.PaymentStatusSent), string(payroll.PaymentStatusFailed),
	}) {
		errs = append(errs, validator.ValidationError{Field: "payment_status", Message: "must be PENDING, IN_PROGRESS, SENT or FAILED"})
	}
	if len(errs) > 0 {
		return payroll.ListPayslipResponse{}, errs
	}
	filter.Normalize()

	payslips, totalCount, err := s.payrollRepo.ListPayslips(ctx, claims.CompanyID, filter)
	if err != nil {
		return payroll.ListPayslipResponse{}, err
	}

	return payroll.ListPayslipResponse{
		Data:       mapToPayslipResponses(payslips),
		TotalCount: totalCount,
		Page:       filter.Page,
		Limit:      filter.Limit,
	}, nil
}

// ValidatePayslips moves DRAFT payslips to VALIDATED. The selection is
// all-or-nothing: one payslip in another state rejects the request.
func (s *PayrollServiceImpl) ValidatePayslips(ctx context.Context, req payroll.PayslipIDsRequest) ([]payroll.PayslipResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	claims, err := auth.ClaimsFromContext(ctx)
	if err != nil {
		return nil, err
	}

	payslips, err := s.loadSelection(ctx, claims.CompanyID, req.PayslipIDs)
	if err != nil {
		return nil, err
	}

	var notDraft []string
	for _, p := range payslips {
		if !p.Status.CanTransitionTo(payroll.PayslipStatusValidated) {
			notDraft = append(notDraft, p.ID)
		}
	}
	if len(notDraft) > 0 {
		return nil, apperror.InvalidState("only draft payslips can be validated", notDraft...)
	}

	draft := payroll.PayslipStatusDraft
	validated := payroll.PayslipStatusValidated
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		for _, p := range payslips {
			if err := s.payrollRepo.UpdatePayslipStatus(ctx, claims.CompanyID, payroll.StatusUpdate{
				ID:         p.ID,
				FromStatus: &draft,
				Status:     &validated,
				ActorID:    &claims.UserID,
			}); err != nil {
				return fmt.Errorf("failed to validate payslip %s: %w", p.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	for i := range payslips {
		payslips[i].Status = validated
		payslips[i].ValidatedAt = &now
	}
	return mapToPayslipResponses(payslips), nil
}

func (s *PayrollServiceImpl) ArchivePayslip(ctx context.Context, id string) (payroll.PayslipResponse, error) {
	claims, err := auth.ClaimsFromContext(ctx)
	if err != nil {
		return payroll.PayslipResponse{}, err
	}

	p, err := s.payrollRepo.GetPayslipByID(ctx, id, claims.CompanyID)
	if err != nil {
		return payroll.PayslipResponse{}, err
	}
	if !p.Status.CanTransitionTo(payroll.PayslipStatusArchived) {
		return payroll.PayslipResponse{}, payroll.ErrInvalidTransition
	}

	sent := payroll.PayslipStatusSent
	archived := payroll.PayslipStatusArchived
	if err := s.payrollRepo.UpdatePayslipStatus(ctx, claims.CompanyID, payroll.StatusUpdate{ID: p.ID, FromStatus: &sent, Status: &archived}); err != nil {
		return payroll.PayslipResponse{}, err
	}

	p.Status = archived
	return mapToPayslipResponse(p), nil
}

// RetryFailedPayment puts a FAILED payment back to PENDING so the payslip
// can join a new disbursement batch.
func (s *PayrollServiceImpl) RetryFailedPayment(ctx context.Context, id string) (payroll.PayslipResponse, error) {
	claims, err := auth.ClaimsFromContext(ctx)
	if err != nil {
		return payroll.PayslipResponse{}, err
	}

	p, err := s.payrollRepo.GetPayslipByID(ctx, id, claims.CompanyID)
	if err != nil {
		return payroll.PayslipResponse{}, err
	}
	if !p.PaymentStatus.CanTransitionTo(payroll.PaymentStatusPending) {
		return payroll.PayslipResponse{}, payroll.ErrPaymentNotFailed
	}

	failed := payroll.PaymentStatusFailed
	pending := payroll.PaymentStatusPending
	if err := s.payrollRepo.UpdatePayslipStatus(ctx, claims.CompanyID, payroll.StatusUpdate{
		ID:                p.ID,
		FromPaymentStatus: &failed,
		PaymentStatus:     &pending,
		ClearPaymentError: true,
		ActorID:           &claims.UserID,
	}); err != nil {
		return payroll.PayslipResponse{}, err
	}

	p.PaymentStatus = pending
	p.PaymentError = nil
	return mapToPayslipResponse(p), nil
}

func (s *PayrollServiceImpl) DeletePayslip(ctx context.Context, id string) error {
	claims, err := auth.ClaimsFromContext(ctx)
	if err != nil {
		return err
	}

	p, err := s.payrollRepo.GetPayslipByID(ctx, id, claims.CompanyID)
	if err != nil {
		return err
	}
	if p.Status != payroll.PayslipStatusDraft {
		return payroll.ErrPayslipNotDraft
	}

	return s.payrollRepo.DeletePayslip(ctx, id, claims.CompanyID)
}

// ========== SUMMARY ==========

func (s *PayrollServiceImpl) GetPayrollSummary(ctx context.Context, month, year int) (payroll.PayrollSummaryResponse, error) {
	if !validator.IsValidPeriod(month, year) {
		return payroll.PayrollSummaryResponse{}, validator.ValidationErrors{
			{Field: "period", Message: "month must be 1-12 and year 2000-2100"},
		}
	}

	claims, err := auth.ClaimsFromContext(ctx)
	if err != nil {
		return payroll.PayrollSummaryResponse{}, err
	}

	summary, err := s.payrollRepo.GetPayrollSummary(ctx, claims.CompanyID, month, year)
	if err != nil {
		return payroll.PayrollSummaryResponse{}, err
	}
	summary.PeriodMonth = month
	summary.PeriodYear = year
	summary.PeriodLabel = payroll.PeriodLabel(month, year)
	return summary, nil
}

// ========== HELPERS ==========

func (s *PayrollServiceImpl) loadSelection(ctx context.Context, companyID string, ids []string) ([]payroll.Payslip, error) {
	payslips, err := s.payrollRepo.GetPayslipsByIDs(ctx, companyID, ids)
	if err != nil {
		return nil, err
	}

	found := make(map[string]bool, len(payslips))
	for _, p := range payslips {
		found[p.ID] = true
	}
	var missing []string
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, &apperror.AppError{Kind: apperror.ErrNotFound, Message: "payslip not found", IDs: missing}
	}
	return payslips, nil
}

func compensationInput(emp employee.Employee, v payroll.VariableElements) payroll.CompensationInput {
	return payroll.CompensationInput{
		BaseSalary:         emp.BaseSalary,
		TransportAllowance: emp.TransportAllowance,
		FixedBonuses:       emp.FixedBonuses,
		OvertimeHours:      v.OvertimeHours,
		OvertimeRate:       v.OvertimeRate,
		VariableBonuses:    v.VariableBonuses,
		Advances:           v.Advances,
		OtherDeductions:    v.OtherDeductions,
	}
}

func newPayslip(companyID, employeeID string, month, year int, input payroll.CompensationInput, calc payroll.PayslipCalculation) payroll.Payslip {
	return payroll.Payslip{
		CompanyID:     companyID,
		EmployeeID:    employeeID,
		PeriodMonth:   month,
		PeriodYear:    year,
		Input:         input,
		Calculation:   calc,
		Status:        payroll.PayslipStatusDraft,
		PaymentStatus: payroll.PaymentStatusPending,
	}
}

func withEmployee(p *payroll.Payslip, emp employee.Employee) {
	p.EmployeeName = &emp.FullName
	p.EmployeeCode = &emp.EmployeeCode
	p.EmployeeCNPSNumber = emp.CNPSNumber
}

func missingEmployeeIDs(requested []string, found []employee.Employee) []string {
	seen := make(map[string]bool, len(found))
	for _, e := range found {
		seen[e.ID] = true
	}
	var missing []string
	for _, id := range requested {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

func mapToSettingsResponse(companyID string, p payroll.Policy, customized bool) payroll.PayrollSettingsResponse {
	return payroll.PayrollSettingsResponse{
		CompanyID:          companyID,
		EmployeeRate:       p.EmployeeRate,
		EmployerRate:       p.EmployerRate,
		AnnualCeiling:      p.AnnualCeiling,
		MonthlyCeiling:     p.MonthlyCeiling().Round(0),
		OvertimeRate:       p.OvertimeRate,
		MinimumWage:        p.MinimumWage,
		EnforceMinimumWage: p.EnforceMinimumWage,
		Customized:         customized,
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	str := t.Format(time.RFC3339)
	return &str
}

func mapToPayslipResponse(p payroll.Payslip) payroll.PayslipResponse {
	employeeName := ""
	employeeCode := ""
	if p.EmployeeName != nil {
		employeeName = *p.EmployeeName
	}
	if p.EmployeeCode != nil {
		employeeCode = *p.EmployeeCode
	}

	return payroll.PayslipResponse{
		ID:                   p.ID,
		EmployeeID:           p.EmployeeID,
		EmployeeName:         employeeName,
		EmployeeCode:         employeeCode,
		PeriodMonth:          p.PeriodMonth,
		PeriodYear:           p.PeriodYear,
		PeriodLabel:          payroll.PeriodLabel(p.PeriodMonth, p.PeriodYear),
		Calculation:          p.Calculation,
		Status:               string(p.Status),
		PaymentStatus:        string(p.PaymentStatus),
		PaymentChannel:       p.PaymentChannel,
		PaymentOperator:      p.PaymentOperator,
		TransactionReference: p.TransactionReference,
		PaymentError:         p.PaymentError,
		ValidatedAt:          formatTime(p.ValidatedAt),
		SentAt:               formatTime(p.SentAt),
		PaidAt:               formatTime(p.PaidAt),
	}
}

func mapToPayslipResponses(payslips []payroll.Payslip) []payroll.PayslipResponse {
	result := make([]payroll.PayslipResponse, 0, len(payslips))
	for _, p := range payslips {
		result = append(result, mapToPayslipResponse(p))
	}
	return result
}
