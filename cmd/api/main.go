package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SialouWebServices/Saas/internal/config"
	appHTTP "github.com/SialouWebServices/Saas/internal/handler/http"
	"github.com/SialouWebServices/Saas/internal/pkg/cron"
	"github.com/SialouWebServices/Saas/internal/pkg/database"
	"github.com/SialouWebServices/Saas/internal/pkg/jwt"
	"github.com/SialouWebServices/Saas/internal/pkg/lock"
	"github.com/SialouWebServices/Saas/internal/pkg/metrics"
	"github.com/SialouWebServices/Saas/internal/pkg/mobilemoney"
	"github.com/SialouWebServices/Saas/internal/pkg/notification"
	"github.com/SialouWebServices/Saas/internal/pkg/redis"
	"github.com/SialouWebServices/Saas/internal/repository/postgresql"
	declarationService "github.com/SialouWebServices/Saas/internal/service/declaration"
	disbursementService "github.com/SialouWebServices/Saas/internal/service/disbursement"
	employeeService "github.com/SialouWebServices/Saas/internal/service/employee"
	payrollService "github.com/SialouWebServices/Saas/internal/service/payroll"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Error loading config:", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.App.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgreSQLDB(ctx, cfg.DatabaseURL())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		slog.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	// Batch lock: Redis when configured, process-local otherwise
	var locker lock.Locker
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		locker = lock.NewRedisLocker(redisClient.Client)
	} else {
		slog.Warn("REDIS_URL not set, disbursement lock is local to this process")
		locker = lock.NewLocalLocker()
	}

	var publisher notification.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		writer := notification.NewKafkaWriter(cfg.Kafka, logger)
		defer writer.Close()
		publisher = notification.NewKafkaPublisher(writer)
	} else {
		publisher = notification.NewLogPublisher(logger)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(registry)

	policy := cfg.Payroll.Policy()
	if err := policy.Validate(); err != nil {
		slog.Error("invalid payroll policy overrides", "error", err)
		os.Exit(1)
	}

	providers := mobilemoney.NewFactory(cfg.MobileMoney, appMetrics)
	slog.Info("mobile money operators configured", "operators", providers.Configured())

	transactor := postgresql.NewTransactor(db)
	employeeRepo := postgresql.NewEmployeeRepository(db)
	payrollRepo := postgresql.NewPayrollRepository(db)
	filingRepo := postgresql.NewFilingRepository(db)

	JWTService := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiration)

	payrollSvc := payrollService.NewPayrollService(transactor, payrollRepo, employeeRepo, policy, cfg.Payroll.CalcConcurrency, appMetrics)
	declarationSvc := declarationService.NewDeclarationService(transactor, filingRepo, payrollRepo, publisher, appMetrics)
	disbursementSvc := disbursementService.NewDisbursementService(
		transactor,
		payrollRepo,
		employeeRepo,
		providers,
		locker,
		cfg.Redis.LockTTL,
		publisher,
		appMetrics,
	)

	scheduler := cron.NewScheduler()
	cron.NewPaymentJobs(postgresql.NewPendingPayments(db), disbursementSvc, JWTService.JWTAuth()).
		RegisterJobs(scheduler, cfg.MobileMoney.ReconcileInterval)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	router := appHTTP.NewRouter(
		appHTTP.RouterOptions{
			AppEnv:         cfg.App.Env,
			AllowedOrigins: cfg.App.AllowedOrigins,
			Metrics:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		},
		JWTService,
		appHTTP.NewPayrollHandler(payrollSvc),
		appHTTP.NewDeclarationHandler(declarationSvc),
		appHTTP.NewDisbursementHandler(disbursementSvc),
		appHTTP.NewEmployeeHandler(employeeService.NewEmployeeService(employeeRepo)),
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server running", "addr", server.Addr, "env", cfg.App.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	// Disbursement batches in flight get the grace period to finish their lane.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
