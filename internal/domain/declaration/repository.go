package declaration

import "context"

type FilingRepository interface {
	// Create stores the filing and its lines.
	Create(ctx context.Context, filing Filing) (Filing, error)
	GetByID(ctx context.Context, id string, companyID string) (Filing, error)
	GetByPeriod(ctx context.Context, companyID string, month, year int) (Filing, error)
	List(ctx context.Context, companyID string, filter FilingFilter) ([]Filing, int64, error)
	UpdateStatus(ctx context.Context, companyID string, change StatusChange) error
	Delete(ctx context.Context, id string, companyID string) error
}
