package disbursement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SialouWebServices/Saas/internal/domain/auth"
	"github.com/SialouWebServices/Saas/internal/domain/disbursement"
	"github.com/SialouWebServices/Saas/internal/domain/employee"
	"github.com/SialouWebServices/Saas/internal/domain/payroll"
	"github.com/SialouWebServices/Saas/internal/pkg/apperror"
	"github.com/SialouWebServices/Saas/internal/pkg/database"
	"github.com/SialouWebServices/Saas/internal/pkg/lock"
	"github.com/SialouWebServices/Saas/internal/pkg/metrics"
	"github.com/SialouWebServices/Saas/internal/pkg/mobilemoney"
	"github.com/SialouWebServices/Saas/internal/pkg/notification"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// ProviderResolver hands out the provider for an operator. mobilemoney.Factory
// implements it.
type ProviderResolver interface {
	Create(op mobilemoney.Operator) (mobilemoney.Provider, error)
	Configured() []mobilemoney.Operator
}

type DisbursementServiceImpl struct {
	tx           database.Transactor
	payrollRepo  payroll.PayrollRepository
	employeeRepo employee.EmployeeRepository
	providers    ProviderResolver
	locker       lock.Locker
	lockTTL      time.Duration
	publisher    notification.Publisher
	metrics      *metrics.Metrics
	now          func() time.Time
}

func NewDisbursementService(
	tx database.Transactor,
	payrollRepo payroll.PayrollRepository,
	employeeRepo employee.EmployeeRepository,
	providers ProviderResolver,
	locker lock.Locker,
	lockTTL time.Duration,
	publisher notification.Publisher,
	m *metrics.Metrics,
) disbursement.DisbursementService {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &DisbursementServiceImpl{
		tx:           tx,
		payrollRepo:  payrollRepo,
		employeeRepo: employeeRepo,
		providers:    providers,
		locker:       locker,
		lockTTL:      lockTTL,
		publisher:    publisher,
		metrics:      m,
		now:          time.Now,
	}
}

// Preview validates a selection without touching any state.
func (s *DisbursementServiceImpl) Preview(ctx context.Context, req disbursement.PreviewRequest) (disbursement.PreviewResponse, error) {
	if err := req.Validate(); err != nil {
		return disbursement.PreviewResponse{}, err
	}

	claims, err := auth.ClaimsFromContext(ctx)
	if err != nil {
		return disbursement.PreviewResponse{}, err
	}

	plan, err := s.buildPlan(ctx, claims.CompanyID, req.PayslipIDs)
	if err != nil {
		return disbursement.PreviewResponse{}, err
	}

	resp := disbursement.PreviewResponse{
		TotalBulletins:   len(plan.Members) + countPayslips(plan.Issues),
		MontantTotal:     decimal.Zero,
		FraisEstimes:     decimal.Zero,
		Partitions:       partition(plan.Members),
		ValidationErrors: plan.Issues,
		Exclus:           plan.Excluded,
		PeutValider:      len(plan.Issues) == 0,
	}
	if resp.ValidationErrors == nil {
		resp.ValidationErrors = []disbursement.Issue{}
	}
	if resp.Exclus == nil {
		resp.Exclus = []string{}
	}
	for _, p := range resp.Partitions {
		resp.MontantTotal = resp.MontantTotal.Add(p.Amount)
		resp.FraisEstimes = resp.FraisEstimes.Add(p.EstimatedFees)
	}
	return resp, nil
}

type outcome struct {
	member    disbursement.Member
	reference string
	err       string
	skipped   bool
}

func (o outcome) ok() bool { return o.err == "" }

const (
	// paymentLease is the lock time budgeted per payslip: one operator call
	// at the HTTP timeout plus the limiter spacing and the status writes.
	paymentLease  = 45 * time.Second
	recordTimeout = 10 * time.Second
)

// leaseFor sizes the batch lock so it outlives the slowest possible run.
func (s *DisbursementServiceImpl) leaseFor(n int) time.Duration {
	lease := time.Duration(n) * paymentLease
	if lease < s.lockTTL {
		return s.lockTTL
	}
	return lease
}

// recordContext detaches a status write from the request and the batch
// deadline so an outcome is persisted even after the client went away.
func recordContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
}

// Confirm pays a selection. The batch lock keeps two confirms of the same
// company apart and each payslip is claimed with a compare-and-set, so a run
// that outlives its lease still cannot pay a payslip twice. Once dispatch has
// started it no longer depends on the caller's context. One member failing
// never stops the others.
func (s *DisbursementServiceImpl) Confirm(ctx context.Context, req disbursement.ConfirmRequest) (disbursement.ConfirmResponse, error) {
	if err := req.Validate(); err != nil {
		return disbursement.ConfirmResponse{}, err
	}

	claims, err := auth.ClaimsFromContext(ctx)
	if err != nil {
		return disbursement.ConfirmResponse{}, err
	}
	companyID := claims.CompanyID

	lease := s.leaseFor(len(req.PayslipIDs))
	release, err := s.locker.Acquire(ctx, "disbursement:"+companyID, lease)
	if err != nil {
		if errors.Is(err, lock.ErrLockHeld) {
			return disbursement.ConfirmResponse{}, disbursement.ErrBatchInProgress
		}
		return disbursement.ConfirmResponse{}, fmt.Errorf("failed to acquire disbursement lock: %w", err)
	}
	defer release()

	plan, err := s.buildPlan(ctx, companyID, req.PayslipIDs)
	if err != nil {
		return disbursement.ConfirmResponse{}, err
	}
	if len(plan.Issues) > 0 {
		return disbursement.ConfirmResponse{}, apperror.Validation("disbursement batch has validation errors", issueDetails(plan.Issues))
	}

	dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lease)
	defer cancel()

	var manual []disbursement.Member
	lanes := make(map[mobilemoney.Operator][]disbursement.Member)
	for _, m := range plan.Members {
		if m.Channel.IsManual() {
			manual = append(manual, m)
			continue
		}
		op := mobilemoney.Operator(m.Channel)
		lanes[op] = append(lanes[op], m)
	}

	var outcomes []outcome

	if len(manual) > 0 {
		outcomes = append(outcomes, s.settleManual(dispatchCtx, companyID, manual)...)
	}

	// Operator lanes run side by side. Inside a lane members go one at a
	// time behind the provider's rate limiter.
	laneOutcomes := make([][]outcome, len(mobilemoney.Operators))
	var g errgroup.Group
	for i, op := range mobilemoney.Operators {
		members := lanes[op]
		if len(members) == 0 {
			continue
		}
		g.Go(func() error {
			laneOutcomes[i] = s.runLane(dispatchCtx, companyID, op, members)
			return nil
		})
	}
	_ = g.Wait()
	for _, lane := range laneOutcomes {
		outcomes = append(outcomes, lane...)
	}

	var processed []outcome
	var skipped []string
	for _, o := range outcomes {
		if o.skipped {
			skipped = append(skipped, o.member.Payslip.ID)
			continue
		}
		processed = append(processed, o)
	}

	resp := summarize(processed)
	resp.Skipped = append(resp.Skipped, skipped...)
	for _, o := range processed {
		result := "success"
		if !o.ok() {
			result = "failed"
		}
		s.metrics.RecordDisbursement(string(o.member.Channel), result, o.member.Amount().InexactFloat64())
	}

	slog.InfoContext(ctx, "disbursement batch confirmed",
		"company_id", companyID,
		"processed", resp.TotalProcessed,
		"succeeded", resp.Succeeded,
		"failed", resp.Failed,
		"skipped", len(skipped),
		"amount", resp.AmountDisbursed.String(),
	)

	if req.NotifyEmployees {
		s.notify(dispatchCtx, companyID, processed)
	}

	return resp, nil
}

// settleManual marks bank, cash and check payments as sent in one
// transaction. Payslips that left VALIDATED/PENDING meanwhile are skipped.
func (s *DisbursementServiceImpl) settleManual(ctx context.Context, companyID string, members []disbursement.Member) []outcome {
	validated := payroll.PayslipStatusValidated
	pending := payroll.PaymentStatusPending
	sent := payroll.PayslipStatusSent
	paymentSent := payroll.PaymentStatusSent

	skipped := make(map[string]bool)
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		for _, m := range members {
			channel := string(m.Channel)
			err := s.payrollRepo.UpdatePayslipStatus(ctx, companyID, payroll.StatusUpdate{
				ID:                m.Payslip.ID,
				FromStatus:        &validated,
				FromPaymentStatus: &pending,
				Status:            &sent,
				PaymentStatus:     &paymentSent,
				PaymentChannel:    &channel,
			})
			if errors.Is(err, payroll.ErrInvalidTransition) {
				skipped[m.Payslip.ID] = true
				continue
			}
			if err != nil {
				return fmt.Errorf("payslip %s: %w", m.Payslip.ID, err)
			}
		}
		return nil
	})

	outcomes := make([]outcome, 0, len(members))
	for _, m := range members {
		o := outcome{member: m}
		switch {
		case err != nil:
			o.err = "failed to record manual payment: " + err.Error()
		case skipped[m.Payslip.ID]:
			o.skipped = true
		}
		outcomes = append(outcomes, o)
	}
	return outcomes
}

func (s *DisbursementServiceImpl) runLane(ctx context.Context, companyID string, op mobilemoney.Operator, members []disbursement.Member) []outcome {
	outcomes := make([]outcome, 0, len(members))

	provider, err := s.providers.Create(op)
	if err != nil {
		for _, m := range members {
			outcomes = append(outcomes, outcome{member: m, err: err.Error()})
		}
		return outcomes
	}

	for _, m := range members {
		outcomes = append(outcomes, s.pay(ctx, companyID, provider, m))
	}
	return outcomes
}

// pay claims one member (PENDING to IN_PROGRESS, compare-and-set), calls the
// operator and records the result. A member another run already claimed is
// skipped without calling the operator. The internal reference is stable per
// payslip so a retried payment reuses it.
func (s *DisbursementServiceImpl) pay(ctx context.Context, companyID string, provider mobilemoney.Provider, m disbursement.Member) outcome {
	o := outcome{member: m}
	channel := string(employee.PaymentMethodMobileMoney)
	operator := string(provider.Operator())

	validated := payroll.PayslipStatusValidated
	pending := payroll.PaymentStatusPending
	inProgress := payroll.PaymentStatusInProgress
	err := s.payrollRepo.UpdatePayslipStatus(ctx, companyID, payroll.StatusUpdate{
		ID:                m.Payslip.ID,
		FromStatus:        &validated,
		FromPaymentStatus: &pending,
		PaymentStatus:     &inProgress,
		PaymentChannel:    &channel,
		PaymentOperator:   &operator,
	})
	if errors.Is(err, payroll.ErrInvalidTransition) {
		slog.WarnContext(ctx, "payslip already claimed by another batch", "payslip_id", m.Payslip.ID)
		o.skipped = true
		return o
	}
	if err != nil {
		o.err = "failed to start payment: " + err.Error()
		return o
	}

	result, err := provider.InitiatePayment(ctx, mobilemoney.PaymentRequest{
		Amount:            m.Amount(),
		PhoneNumber:       mobilemoney.NormalizePhoneNumber(*m.Employee.MobileMoneyNumber),
		Reason:            "Salaire " + payroll.PeriodLabel(m.Payslip.PeriodMonth, m.Payslip.PeriodYear),
		InternalReference: "SAL-" + m.Payslip.ID,
		BeneficiaryName:   m.Employee.FullName,
	})
	switch {
	case err != nil:
		o.err = err.Error()
	case !result.Success:
		o.err = result.ErrorMessage
		if o.err == "" {
			o.err = "payment rejected by " + provider.Operator().DisplayName()
		}
	}

	recordCtx, cancel := recordContext(ctx)
	defer cancel()

	if !o.ok() {
		failed := payroll.PaymentStatusFailed
		if err := s.payrollRepo.UpdatePayslipStatus(recordCtx, companyID, payroll.StatusUpdate{
			ID:            m.Payslip.ID,
			PaymentStatus: &failed,
			PaymentError:  &o.err,
		}); err != nil {
			slog.ErrorContext(ctx, "failed to record payment failure", "payslip_id", m.Payslip.ID, "error", err)
		}
		return o
	}

	// A pending transfer keeps IN_PROGRESS until ReconcilePending sees it settle.
	o.reference = result.TransactionReference
	sent := payroll.PayslipStatusSent
	update := payroll.StatusUpdate{
		ID:                   m.Payslip.ID,
		Status:               &sent,
		TransactionReference: &o.reference,
	}
	if result.Status == mobilemoney.StatusSuccess {
		paymentSent := payroll.PaymentStatusSent
		update.PaymentStatus = &paymentSent
	}
	if err := s.payrollRepo.UpdatePayslipStatus(recordCtx, companyID, update); err != nil {
		// Money has left; the reference is logged so the payslip can be fixed by hand.
		slog.ErrorContext(ctx, "failed to record successful payment",
			"payslip_id", m.Payslip.ID, "reference", o.reference, "error", err)
	}
	return o
}

func (s *DisbursementServiceImpl) notify(ctx context.Context, companyID string, outcomes []outcome) {
	if s.publisher == nil {
		return
	}
	for _, o := range outcomes {
		event := notification.Event{
			Type:      notification.EventSalaryPaid,
			CompanyID: companyID,
			Recipient: notification.Recipient{
				EmployeeID:  o.member.Employee.ID,
				Name:        o.member.Employee.FullName,
				PhoneNumber: o.member.Employee.PhoneNumber,
				Email:       o.member.Employee.Email,
			},
			Payload: map[string]string{
				"payslip_id": o.member.Payslip.ID,
				"period":     payroll.PeriodLabel(o.member.Payslip.PeriodMonth, o.member.Payslip.PeriodYear),
				"amount":     o.member.Amount().StringFixed(0),
				"channel":    string(o.member.Channel),
			},
			OccurredAt: s.now(),
		}
		if o.reference != "" {
			event.Payload["reference"] = o.reference
		}
		if !o.ok() {
			event.Type = notification.EventPaymentFailed
			event.Payload["reason"] = o.err
		}
		if err := s.publisher.Notify(ctx, event); err != nil {
			slog.WarnContext(ctx, "failed to notify employee",
				"employee_id", o.member.Employee.ID, "event", string(event.Type), "error", err)
		}
	}
}

func summarize(outcomes []outcome) disbursement.ConfirmResponse {
	resp := disbursement.ConfirmResponse{
		TotalProcessed:  len(outcomes),
		AmountDisbursed: decimal.Zero,
		SuccessRate:     decimal.Zero,
		ByChannel:       make(map[string]disbursement.ChannelOutcome),
		Failures:        []disbursement.PaymentFailure{},
		Skipped:         []string{},
	}

	for _, o := range outcomes {
		channel := string(o.member.Channel)
		stats := resp.ByChannel[channel]
		if o.ok() {
			resp.Succeeded++
			stats.Succeeded++
			stats.Amount = stats.Amount.Add(o.member.Amount())
			resp.AmountDisbursed = resp.AmountDisbursed.Add(o.member.Amount())
		} else {
			resp.Failed++
			stats.Failed++
			resp.Failures = append(resp.Failures, disbursement.PaymentFailure{
				PayslipID:    o.member.Payslip.ID,
				EmployeeID:   o.member.Employee.ID,
				EmployeeName: o.member.Employee.FullName,
				Channel:      channel,
				Reason:       o.err,
			})
		}
		resp.ByChannel[channel] = stats
	}

	if resp.TotalProcessed > 0 {
		resp.SuccessRate = decimal.NewFromInt(int64(resp.Succeeded)).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(resp.TotalProcessed))).
			Round(2)
	}
	return resp
}

func countPayslips(issues []disbursement.Issue) int {
	seen := make(map[string]bool, len(issues))
	for _, i := range issues {
		seen[i.PayslipID] = true
	}
	return len(seen)
}
