package http

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/SialouWebServices/Saas/internal/handler/http/middleware"
	"github.com/SialouWebServices/Saas/internal/pkg/jwt"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
	"github.com/go-chi/jwtauth/v5"
)

type RouterOptions struct {
	AppEnv         string
	AllowedOrigins []string
	Metrics        http.Handler // served on /metrics when set
}

func NewRouter(
	opts RouterOptions,
	JWTService jwt.Service,
	payrollHandler PayrollHandler,
	declarationHandler DeclarationHandler,
	disbursementHandler DisbursementHandler,
	employeeHandler EmployeeHandler,
) *chi.Mux {
	r := chi.NewRouter()
	logFormat := httplog.SchemaECS.Concise(opts.AppEnv != "production")
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", "sialou-paie"),
		slog.String("env", opts.AppEnv),
	)

	allowedOrigins := opts.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		MaxAge:           300,
	}))

	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  slog.LevelInfo,
		Schema: httplog.SchemaECS,
	}))

	r.Use(chiMiddleware.AllowContentEncoding("application/json"))
	r.Use(chiMiddleware.CleanPath)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/"))

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Requires authentication
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(JWTService.JWTAuth()))
			r.Use(middleware.AuthRequired)
			r.Use(middleware.RequirePayrollManager)

			r.Route("/payroll", func(r chi.Router) {
				r.Get("/settings", payrollHandler.GetSettings)
				r.Put("/settings", payrollHandler.UpdateSettings)

				r.Post("/generate", payrollHandler.GeneratePayroll)
				r.Get("/summary", payrollHandler.GetPayrollSummary)

				r.Route("/payslips", func(r chi.Router) {
					r.Get("/", payrollHandler.ListPayslips)
					r.Post("/", payrollHandler.CreatePayslip)
					r.Post("/validate", payrollHandler.ValidatePayslips)

					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", payrollHandler.GetPayslip)
						r.Delete("/", payrollHandler.DeletePayslip)
						r.Post("/archive", payrollHandler.ArchivePayslip)
						r.Post("/retry-payment", payrollHandler.RetryPayment)
					})
				})
			})

			r.Route("/declarations", func(r chi.Router) {
				r.Get("/", declarationHandler.List)
				r.Post("/", declarationHandler.Create)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", declarationHandler.Get)
					r.Delete("/", declarationHandler.Delete)
					r.Post("/validate", declarationHandler.Validate)
					r.Post("/submit", declarationHandler.Submit)
				})
			})

			r.Route("/employees", func(r chi.Router) {
				r.Get("/", employeeHandler.ListActiveEmployees)
				r.Get("/{id}", employeeHandler.GetEmployee)
				r.Put("/{id}/payment-profile", employeeHandler.UpdatePaymentProfile)
			})

			r.Route("/disbursements", func(r chi.Router) {
				r.Post("/preview", disbursementHandler.Preview)
				r.Post("/confirm", disbursementHandler.Confirm)
				r.Post("/reconcile", disbursementHandler.Reconcile)
				r.Get("/balances", disbursementHandler.Balances)
			})
		})
	})
	return r
}
