package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SialouWebServices/Saas/internal/domain/auth"
	"github.com/SialouWebServices/Saas/internal/domain/disbursement"
	"github.com/go-chi/jwtauth/v5"
)

// SystemUserID is recorded as the actor of changes made by background jobs.
const SystemUserID = "system"

// PendingPaymentSource lists the companies that still have mobile payments
// waiting for an operator answer.
type PendingPaymentSource interface {
	CompaniesWithPendingPayments(ctx context.Context) ([]string, error)
}

// PaymentJobs polls the operators for transfers left IN_PROGRESS.
type PaymentJobs struct {
	source    PendingPaymentSource
	service   disbursement.DisbursementService
	tokenAuth *jwtauth.JWTAuth
}

func NewPaymentJobs(source PendingPaymentSource, service disbursement.DisbursementService, tokenAuth *jwtauth.JWTAuth) *PaymentJobs {
	return &PaymentJobs{source: source, service: service, tokenAuth: tokenAuth}
}

func (j *PaymentJobs) RegisterJobs(scheduler *Scheduler, interval time.Duration) {
	scheduler.AddJob("reconcile_pending_payments", interval, j.ReconcilePending)
}

// ReconcilePending runs the reconciliation once per company, each under a
// system identity scoped to that company. One company failing does not stop
// the others.
func (j *PaymentJobs) ReconcilePending(ctx context.Context) error {
	companies, err := j.source.CompaniesWithPendingPayments(ctx)
	if err != nil {
		return fmt.Errorf("list companies with pending payments: %w", err)
	}

	var errs []error
	for _, companyID := range companies {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		companyCtx, err := j.systemContext(ctx, companyID)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		result, err := j.service.ReconcilePending(companyCtx)
		if err != nil {
			errs = append(errs, fmt.Errorf("company %s: %w", companyID, err))
			continue
		}
		if len(result.Errors) > 0 {
			slog.WarnContext(ctx, "reconciliation left errors", "company_id", companyID, "errors", len(result.Errors))
		}
	}
	return errors.Join(errs...)
}

func (j *PaymentJobs) systemContext(ctx context.Context, companyID string) (context.Context, error) {
	token, _, err := j.tokenAuth.Encode(map[string]interface{}{
		"user_id":    SystemUserID,
		"company_id": companyID,
		"role":       string(auth.RoleOwner),
		"type":       "access",
	})
	if err != nil {
		return nil, fmt.Errorf("issue system token for company %s: %w", companyID, err)
	}
	return jwtauth.NewContext(ctx, token, nil), nil
}
