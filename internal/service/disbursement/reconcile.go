package disbursement

import (
	"context"
	"errors"
	"log/slog"

	"github.com/SialouWebServices/Saas/internal/domain/auth"
	"github.com/SialouWebServices/Saas/internal/domain/disbursement"
	"github.com/SialouWebServices/Saas/internal/domain/payroll"
	"github.com/SialouWebServices/Saas/internal/pkg/apperror"
	"github.com/SialouWebServices/Saas/internal/pkg/mobilemoney"
)

// ReconcilePending asks the operators about every IN_PROGRESS mobile payment
// of the company and settles the ones that have a final status.
func (s *DisbursementServiceImpl) ReconcilePending(ctx context.Context) (disbursement.ReconcileResponse, error) {
	claims, err := auth.ClaimsFromContext(ctx)
	if err != nil {
		return disbursement.ReconcileResponse{}, err
	}
	companyID := claims.CompanyID

	payslips, err := s.payrollRepo.ListByPaymentStatus(ctx, companyID, payroll.PaymentStatusInProgress)
	if err != nil {
		return disbursement.ReconcileResponse{}, err
	}

	resp := disbursement.ReconcileResponse{Errors: []disbursement.PaymentFailure{}}
	for _, p := range payslips {
		resp.Checked++
		failure := func(reason string) {
			entry := disbursement.PaymentFailure{PayslipID: p.ID, EmployeeID: p.EmployeeID, Reason: reason}
			if p.EmployeeName != nil {
				entry.EmployeeName = *p.EmployeeName
			}
			if p.PaymentOperator != nil {
				entry.Channel = *p.PaymentOperator
			}
			resp.Errors = append(resp.Errors, entry)
		}

		if p.PaymentOperator == nil || p.TransactionReference == nil || *p.TransactionReference == "" {
			failure("no operator transaction reference recorded")
			continue
		}
		op, err := mobilemoney.ParseOperator(*p.PaymentOperator)
		if err != nil {
			failure(err.Error())
			continue
		}
		provider, err := s.providers.Create(op)
		if err != nil {
			failure(err.Error())
			continue
		}

		status, err := provider.CheckTransactionStatus(ctx, *p.TransactionReference)
		if err != nil {
			failure(err.Error())
			continue
		}

		inProgress := payroll.PaymentStatusInProgress
		update := payroll.StatusUpdate{ID: p.ID, FromPaymentStatus: &inProgress}
		switch status.Status {
		case mobilemoney.StatusSuccess:
			sent := payroll.PaymentStatusSent
			update.PaymentStatus = &sent
			resp.Confirmed++
		case mobilemoney.StatusFailed, mobilemoney.StatusCancelled:
			failed := payroll.PaymentStatusFailed
			reason := status.Message
			if reason == "" {
				reason = "payment " + string(status.Status) + " by " + op.DisplayName()
			}
			update.PaymentStatus = &failed
			update.PaymentError = &reason
			resp.Failed++
		default:
			resp.StillPending++
			continue
		}

		if err := s.payrollRepo.UpdatePayslipStatus(ctx, companyID, update); err != nil {
			failure("failed to record status: " + err.Error())
		}
	}

	slog.InfoContext(ctx, "pending payments reconciled",
		"company_id", companyID,
		"checked", resp.Checked,
		"confirmed", resp.Confirmed,
		"failed", resp.Failed,
		"still_pending", resp.StillPending,
	)
	return resp, nil
}

// ProviderBalances reports the merchant balance of every configured operator.
// Operators without a balance API are listed as unsupported.
func (s *DisbursementServiceImpl) ProviderBalances(ctx context.Context) ([]disbursement.BalanceResponse, error) {
	if _, err := auth.ClaimsFromContext(ctx); err != nil {
		return nil, err
	}

	configured := s.providers.Configured()
	balances := make([]disbursement.BalanceResponse, 0, len(configured))
	for _, op := range configured {
		entry := disbursement.BalanceResponse{
			Operator:    string(op),
			DisplayName: op.DisplayName(),
		}

		provider, err := s.providers.Create(op)
		if err != nil {
			entry.Error = err.Error()
			balances = append(balances, entry)
			continue
		}

		balance, err := provider.GetBalance(ctx)
		switch {
		case errors.Is(err, apperror.ErrUnsupportedOperation):
			entry.Supported = false
		case err != nil:
			entry.Supported = true
			entry.Error = err.Error()
		default:
			entry.Supported = true
			entry.Available = &balance.Available
			entry.Currency = balance.Currency
		}
		balances = append(balances, entry)
	}
	return balances, nil
}
