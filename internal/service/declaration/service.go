package declaration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SialouWebServices/Saas/internal/domain/auth"
	"github.com/SialouWebServices/Saas/internal/domain/declaration"
	"github.com/SialouWebServices/Saas/internal/domain/payroll"
	"github.com/SialouWebServices/Saas/internal/pkg/apperror"
	"github.com/SialouWebServices/Saas/internal/pkg/database"
	"github.com/SialouWebServices/Saas/internal/pkg/metrics"
	"github.com/SialouWebServices/Saas/internal/pkg/notification"
	"github.com/shopspring/decimal"
)

type DeclarationServiceImpl struct {
	tx          database.Transactor
	filingRepo  declaration.FilingRepository
	payrollRepo payroll.PayrollRepository
	publisher   notification.Publisher
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewDeclarationService(
	tx database.Transactor,
	filingRepo declaration.FilingRepository,
	payrollRepo payroll.PayrollRepository,
	publisher notification.Publisher,
	m *metrics.Metrics,
) declaration.DeclarationService {
	return &DeclarationServiceImpl{
		tx:          tx,
		filingRepo:  filingRepo,
		payrollRepo: payrollRepo,
		publisher:   publisher,
		metrics:     m,
		now:         time.Now,
	}
}

// CreateFiling aggregates the period's validated payslips into a DRAFT filing.
// Totals are sums of the stored payslip figures; nothing is recomputed.
func (s *DeclarationServiceImpl) CreateFiling(ctx context.Context, req declaration.CreateFilingRequest) (declaration.FilingResponse, error) {
	if err := req.Validate(); err != nil {
		return declaration.FilingResponse{}, err
	}

	claims, err := auth.ClaimsFromContext(ctx)
	if err != nil {
		return declaration.FilingResponse{}, err
	}
	companyID := claims.CompanyID

	existing, err := s.filingRepo.GetByPeriod(ctx, companyID, req.PeriodMonth, req.PeriodYear)
	if err == nil {
		return declaration.FilingResponse{}, apperror.Duplicate("a filing already exists for this period", existing.ID)
	}
	if !errors.Is(err, declaration.ErrFilingNotFound) {
		return declaration.FilingResponse{}, fmt.Errorf("failed to check existing filing: %w", err)
	}

	payslips, err := s.payrollRepo.ListValidatedForPeriod(ctx, companyID, req.PeriodMonth, req.PeriodYear, req.EmployeeIDs)
	if err != nil {
		return declaration.FilingResponse{}, fmt.Errorf("failed to list validated payslips: %w", err)
	}
	if len(payslips) == 0 {
		return declaration.FilingResponse{}, declaration.ErrNoValidatedPayslips
	}

	filing := aggregate(payslips)
	filing.CompanyID = companyID
	filing.PeriodMonth = req.PeriodMonth
	filing.PeriodYear = req.PeriodYear
	filing.PeriodLabel = payroll.PeriodLabel(req.PeriodMonth, req.PeriodYear)
	filing.Status = declaration.FilingStatusDraft
	filing.CreatedBy = &claims.UserID

	var created declaration.Filing
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		created, err = s.filingRepo.Create(ctx, filing)
		return err
	})
	if err != nil {
		if errors.Is(err, declaration.ErrFilingAlreadyExists) {
			return declaration.FilingResponse{}, apperror.Duplicate("a filing already exists for this period")
		}
		return declaration.FilingResponse{}, fmt.Errorf("failed to create filing: %w", err)
	}

	s.metrics.IncrementFilingsCreated()
	slog.InfoContext(ctx, "cnps filing created",
		"company_id", companyID,
		"filing_id", created.ID,
		"period", created.PeriodLabel,
		"employees", created.EmployeeCount,
		"total_contributions", created.TotalContributions.String(),
	)

	return mapToFilingResponse(created), nil
}

func (s *DeclarationServiceImpl) GetFiling(ctx context.Context, id string) (declaration.FilingResponse, error) {
	claims, err := auth.ClaimsFromContext(ctx)
	if err != nil {
		return declaration.FilingResponse{}, err
	}

	filing, err := s.filingRepo.GetByID(ctx, id, claims.CompanyID)
	if err != nil {
		return declaration.FilingResponse{}, err
	}
	return mapToFilingResponse(filing), nil
}

func (s *DeclarationServiceImpl) ListFilings(ctx context.Context, filter declaration.FilingFilter) (declaration.ListFilingResponse, error) {
	claims, err := auth.ClaimsFromContext(ctx)
	if err != nil {
		return declaration.ListFilingResponse{}, err
	}
	filter.Normalize()

	filings, total, err := s.filingRepo.List(ctx, claims.CompanyID, filter)
	if err != nil {
		return declaration.ListFilingResponse{}, err
	}

	data := make([]declaration.FilingResponse, 0, len(filings))
	for _, f := range filings {
		f.Lines = nil
		data = append(data, mapToFilingResponse(f))
	}

	totalPages := int(total) / filter.Limit
	if int(total)%filter.Limit != 0 {
		totalPages++
	}

	return declaration.ListFilingResponse{
		Data:       data,
		TotalCount: total,
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalPages: totalPages,
	}, nil
}

func (s *DeclarationServiceImpl) ValidateFiling(ctx context.Context, id string) (declaration.FilingResponse, error) {
	return s.transition(ctx, id, declaration.FilingStatusValidated)
}

// SubmitFiling marks a validated filing as filed with the CNPS and records when.
func (s *DeclarationServiceImpl) SubmitFiling(ctx context.Context, id string) (declaration.FilingResponse, error) {
	resp, err := s.transition(ctx, id, declaration.FilingStatusFiled)
	if err != nil {
		return declaration.FilingResponse{}, err
	}

	if s.publisher != nil {
		claims, _ := auth.ClaimsFromContext(ctx)
		event := notification.Event{
			Type:      notification.EventFilingSubmitted,
			CompanyID: claims.CompanyID,
			Payload: map[string]string{
				"filing_id":           resp.ID,
				"period":              resp.PeriodLabel,
				"employee_count":      fmt.Sprint(resp.EmployeeCount),
				"total_contributions": resp.TotalContributions.String(),
			},
			OccurredAt: s.now(),
		}
		if err := s.publisher.Notify(ctx, event); err != nil {
			slog.WarnContext(ctx, "failed to publish filing notification", "filing_id", resp.ID, "error", err)
		}
	}

	return resp, nil
}

func (s *DeclarationServiceImpl) DeleteFiling(ctx context.Context, id string) error {
	claims, err := auth.ClaimsFromContext(ctx)
	if err != nil {
		return err
	}

	filing, err := s.filingRepo.GetByID(ctx, id, claims.CompanyID)
	if err != nil {
		return err
	}
	if filing.Status != declaration.FilingStatusDraft {
		return declaration.ErrFilingNotDraft
	}

	return s.filingRepo.Delete(ctx, id, claims.CompanyID)
}

func (s *DeclarationServiceImpl) transition(ctx context.Context, id string, next declaration.FilingStatus) (declaration.FilingResponse, error) {
	claims, err := auth.ClaimsFromContext(ctx)
	if err != nil {
		return declaration.FilingResponse{}, err
	}

	filing, err := s.filingRepo.GetByID(ctx, id, claims.CompanyID)
	if err != nil {
		return declaration.FilingResponse{}, err
	}
	if !filing.Status.CanTransitionTo(next) {
		return declaration.FilingResponse{}, apperror.InvalidState(
			fmt.Sprintf("filing cannot move from %s to %s", filing.Status, next), filing.ID)
	}

	now := s.now()
	if err := s.filingRepo.UpdateStatus(ctx, claims.CompanyID, declaration.StatusChange{
		ID:      filing.ID,
		Status:  next,
		At:      now,
		ActorID: &claims.UserID,
	}); err != nil {
		return declaration.FilingResponse{}, err
	}

	filing.Status = next
	switch next {
	case declaration.FilingStatusValidated:
		filing.ValidatedAt = &now
		filing.ValidatedBy = &claims.UserID
	case declaration.FilingStatusFiled:
		filing.FiledAt = &now
		filing.FiledBy = &claims.UserID
	}
	return mapToFilingResponse(filing), nil
}

// aggregate copies the contribution figures of each payslip into a line and
// sums them.
func aggregate(payslips []payroll.Payslip) declaration.Filing {
	filing := declaration.Filing{
		TotalGrossPay:              decimal.Zero,
		TotalContributionBase:      decimal.Zero,
		TotalEmployeeContributions: decimal.Zero,
		TotalEmployerContributions: decimal.Zero,
		Lines:                      make([]declaration.FilingLine, 0, len(payslips)),
	}

	for _, p := range payslips {
		c := p.Calculation
		line := declaration.FilingLine{
			PayslipID:            p.ID,
			EmployeeID:           p.EmployeeID,
			CNPSNumber:           copyString(p.EmployeeCNPSNumber),
			GrossPay:             c.GrossPay,
			ContributionBase:     c.ContributionBase,
			EmployeeContribution: c.EmployeeContribution,
			EmployerContribution: c.EmployerContribution,
		}
		if p.EmployeeName != nil {
			line.EmployeeName = *p.EmployeeName
		}
		if p.EmployeeCode != nil {
			line.EmployeeCode = *p.EmployeeCode
		}
		filing.Lines = append(filing.Lines, line)

		filing.EmployeeCount++
		filing.TotalGrossPay = filing.TotalGrossPay.Add(c.GrossPay)
		filing.TotalContributionBase = filing.TotalContributionBase.Add(c.ContributionBase)
		filing.TotalEmployeeContributions = filing.TotalEmployeeContributions.Add(c.EmployeeContribution)
		filing.TotalEmployerContributions = filing.TotalEmployerContributions.Add(c.EmployerContribution)
	}
	filing.TotalContributions = filing.TotalEmployeeContributions.Add(filing.TotalEmployerContributions)
	return filing
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	str := t.Format(time.RFC3339)
	return &str
}

func mapToFilingResponse(f declaration.Filing) declaration.FilingResponse {
	resp := declaration.FilingResponse{
		ID:                         f.ID,
		PeriodMonth:                f.PeriodMonth,
		PeriodYear:                 f.PeriodYear,
		PeriodLabel:                f.PeriodLabel,
		Status:                     string(f.Status),
		EmployeeCount:              f.EmployeeCount,
		TotalGrossPay:              f.TotalGrossPay,
		TotalContributionBase:      f.TotalContributionBase,
		TotalEmployeeContributions: f.TotalEmployeeContributions,
		TotalEmployerContributions: f.TotalEmployerContributions,
		TotalContributions:         f.TotalContributions,
		ValidatedAt:                formatTime(f.ValidatedAt),
		FiledAt:                    formatTime(f.FiledAt),
		CreatedAt:                  f.CreatedAt.Format(time.RFC3339),
	}
	if resp.PeriodLabel == "" {
		resp.PeriodLabel = payroll.PeriodLabel(f.PeriodMonth, f.PeriodYear)
	}

	for _, l := range f.Lines {
		resp.Lines = append(resp.Lines, declaration.FilingLineResponse{
			PayslipID:            l.PayslipID,
			EmployeeID:           l.EmployeeID,
			EmployeeCode:         l.EmployeeCode,
			EmployeeName:         l.EmployeeName,
			CNPSNumber:           l.CNPSNumber,
			GrossPay:             l.GrossPay,
			ContributionBase:     l.ContributionBase,
			EmployeeContribution: l.EmployeeContribution,
			EmployerContribution: l.EmployerContribution,
		})
	}
	return resp
}
