package declaration

import "context"

type DeclarationService interface {
	CreateFiling(ctx context.Context, req CreateFilingRequest) (FilingResponse, error)
	GetFiling(ctx context.Context, id string) (FilingResponse, error)
	ListFilings(ctx context.Context, filter FilingFilter) (ListFilingResponse, error)
	ValidateFiling(ctx context.Context, id string) (FilingResponse, error)
	SubmitFiling(ctx context.Context, id string) (FilingResponse, error)
	DeleteFiling(ctx context.Context, id string) error
}
