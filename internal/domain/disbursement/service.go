package disbursement

import "context"

type DisbursementService interface {
	Preview(ctx context.Context, req PreviewRequest) (PreviewResponse, error)
	Confirm(ctx context.Context, req ConfirmRequest) (ConfirmResponse, error)
	ReconcilePending(ctx context.Context) (ReconcileResponse, error)
	ProviderBalances(ctx context.Context) ([]BalanceResponse, error)
}
