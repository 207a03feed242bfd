package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/angelmondragon/libraryhub-backend/api/controllers"
	"github.com/angelmondragon/libraryhub-backend/api/routes"
	"github.com/angelmondragon/libraryhub-backend/internal/auth"
	"github.com/angelmondragon/libraryhub-backend/internal/books"
	"github.com/angelmondragon/libraryhub-backend/internal/dashboard"
	"github.com/angelmondragon/libraryhub-backend/internal/holds"
	"github.com/angelmondragon/libraryhub-backend/internal/inventory"
	"github.com/angelmondragon/libraryhub-backend/internal/loans"
	"github.com/angelmondragon/libraryhub-backend/internal/users"
	"github.com/angelmondragon/libraryhub-backend/pkg/auth/session"
	"github.com/angelmondragon/libraryhub-backend/pkg/config"
	"github.com/angelmondragon/libraryhub-backend/pkg/db"
	"github.com/angelmondragon/libraryhub-backend/pkg/logger"
	"github.com/angelmondragon/libraryhub-backend/pkg/metrics"
	"github.com/angelmondragon/libraryhub-backend/pkg/migrate"
	"github.com/angelmondragon/libraryhub-backend/pkg/redis"
	"github.com/angelmondragon/libraryhub-backend/pkg/storage"
	"github.com/angelmondragon/libraryhub-backend/pkg/storage/gcs"
	"github.com/angelmondragon/libraryhub-backend/pkg/storage/local"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return fmt.Errorf("session manager: %w", err)
	}

	readiness := map[string]controllers.Pinger{"db": dbClient, "redis": redisClient}
	store, static, err := openStore(ctx, cfg, logg)
	if err != nil {
		return err
	}
	if bucket, ok := store.(*gcs.Client); ok {
		readiness["gcs"] = bucket
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	circulation := metrics.NewCirculationMetrics(reg)

	svc, err := buildServices(cfg, logg, dbClient, sessionManager, store, circulation)
	if err != nil {
		return err
	}

	addr := ":" + cfg.App.Port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":     cfg.App.Env,
		"addr":    addr,
		"storage": cfg.Storage.Driver,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, routes.Infra{
			Sessions:    sessionManager,
			Roles:       users.NewRepository(dbClient.DB()),
			RateLimiter: redisClient,
			Idempotency: redisClient,
			Readiness:   readiness,
			Metrics:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
			Static:      static,
		}, svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(ctx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openStore returns the configured blob store. The local driver also returns
// the handler serving its files.
func openStore(ctx context.Context, cfg *config.Config, logg *logger.Logger) (storage.Store, http.Handler, error) {
	if strings.EqualFold(cfg.Storage.Driver, config.StorageDriverGCS) {
		client, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap gcs: %w", err)
		}
		return client, nil, nil
	}
	store, err := local.New(cfg.Storage.LocalDir, cfg.Storage.PublicBaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap local storage: %w", err)
	}
	return store, store.Handler(), nil
}

func buildServices(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	sessions *session.Manager,
	store storage.Store,
	circulation *metrics.CirculationMetrics,
) (routes.Services, error) {
	conn := dbClient.DB()
	ledger := inventory.NewLedger(conn)
	userRepo := users.NewRepository(conn)
	loanRepo := loans.NewRepository(conn)
	holdRepo := holds.NewRepository(conn)

	fines, err := loans.NewFineCalculator(cfg.Library.FinePerDay)
	if err != nil {
		return routes.Services{}, fmt.Errorf("fine calculator: %w", err)
	}

	authSvc, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		SessionManager: sessions,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		AdminCode:      cfg.Library.AdminCode,
		Logger:         logg,
	})
	if err != nil {
		return routes.Services{}, fmt.Errorf("auth service: %w", err)
	}

	bookSvc, err := books.NewService(books.ServiceParams{
		Tx:       dbClient,
		Repo:     books.NewRepository(conn),
		LoanRepo: loanRepo,
		HoldRepo: holdRepo,
		Ledger:   ledger,
		Store:    store,
		Logger:   logg,
	})
	if err != nil {
		return routes.Services{}, fmt.Errorf("book service: %w", err)
	}

	holdSvc, err := holds.NewService(holds.ServiceParams{
		Tx:      dbClient,
		Repo:    holdRepo,
		Ledger:  ledger,
		Metrics: circulation,
		Logger:  logg,
	})
	if err != nil {
		return routes.Services{}, fmt.Errorf("hold service: %w", err)
	}

	loanSvc, err := loans.NewService(loans.ServiceParams{
		Tx:             dbClient,
		Repo:           loanRepo,
		Ledger:         ledger,
		Fines:          &fines,
		LoanPeriodDays: cfg.Library.LoanPeriodDays,
		Metrics:        circulation,
		Logger:         logg,
	})
	if err != nil {
		return routes.Services{}, fmt.Errorf("loan service: %w", err)
	}

	userSvc, err := users.NewService(users.ServiceParams{
		Tx:       dbClient,
		Repo:     userRepo,
		LoanRepo: loanRepo,
		HoldRepo: holdRepo,
		Store:    store,
		Logger:   logg,
	})
	if err != nil {
		return routes.Services{}, fmt.Errorf("user service: %w", err)
	}

	dashSvc, err := dashboard.NewService(dashboard.ServiceParams{
		Repo:  dashboard.NewRepository(conn),
		Loans: loanSvc,
	})
	if err != nil {
		return routes.Services{}, fmt.Errorf("dashboard service: %w", err)
	}

	return routes.Services{
		Auth:      authSvc,
		Books:     bookSvc,
		Holds:     holdSvc,
		Loans:     loanSvc,
		Users:     userSvc,
		Dashboard: dashSvc,
	}, nil
}
