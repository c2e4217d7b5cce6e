package auth

import "errors"

var (
	ErrMissingClaims    = errors.New("missing authentication claims")
	ErrMissingCompanyID = errors.New("company_id claim is missing or invalid")
	ErrForbidden        = errors.New("insufficient role for this operation")
	ErrInvalidToken     = errors.New("invalid or non-access token")
)
