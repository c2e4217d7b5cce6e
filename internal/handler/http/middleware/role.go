package middleware

import (
	"fmt"
	"net/http"

	"github.com/SialouWebServices/Saas/internal/domain/auth"
	"github.com/SialouWebServices/Saas/internal/handler/http/response"
)

// RequirePayrollManager lets through the roles allowed to generate, validate
// and pay payslips.
func RequirePayrollManager(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := auth.ClaimsFromContext(r.Context())
		if err != nil {
			response.HandleError(w, err)
			return
		}

		if !claims.Role.CanManagePayroll() {
			response.Forbidden(w, fmt.Sprintf("Insufficient permissions: role '%s' cannot manage payroll", claims.Role))
			return
		}

		next.ServeHTTP(w, r)
	})
}
