package auth

import (
	"context"
	"fmt"

	"github.com/go-chi/jwtauth/v5"
)

type Role string

const (
	RoleOwner      Role = "owner"
	RoleAdmin      Role = "admin"
	RoleHR         Role = "hr"
	RoleAccountant Role = "accountant"
	RoleEmployee   Role = "employee"
)

// CanManagePayroll reports whether the role may generate, validate and pay payslips.
func (r Role) CanManagePayroll() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleHR, RoleAccountant:
		return true
	}
	return false
}

// Claims are the identity facts every payroll operation is scoped by.
type Claims struct {
	UserID    string
	CompanyID string
	Role      Role
}

// ClaimsFromContext reads the verified JWT placed in ctx by jwtauth.Verifier.
func ClaimsFromContext(ctx context.Context) (Claims, error) {
	token, claims, err := jwtauth.FromContext(ctx)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMissingClaims, err)
	}
	if token == nil {
		return Claims{}, ErrMissingClaims
	}

	companyID, ok := claims["company_id"].(string)
	if !ok || companyID == "" {
		return Claims{}, ErrMissingCompanyID
	}

	userID, _ := claims["user_id"].(string)
	role, _ := claims["role"].(string)

	return Claims{UserID: userID, CompanyID: companyID, Role: Role(role)}, nil
}
