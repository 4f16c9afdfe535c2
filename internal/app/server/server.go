package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"hrpayroll/internal/domain/audit"
	"hrpayroll/internal/domain/auth"
	"hrpayroll/internal/domain/payroll"
	"hrpayroll/internal/platform/config"
	"hrpayroll/internal/platform/crypto"
	"hrpayroll/internal/platform/db"
	"hrpayroll/internal/platform/jobs"
	"hrpayroll/internal/platform/metrics"
	audithandler "hrpayroll/internal/transport/http/handlers/audit"
	payrollhandler "hrpayroll/internal/transport/http/handlers/payroll"
	"hrpayroll/internal/transport/http/api"
	"hrpayroll/internal/transport/http/middleware"
)

type App struct {
	Config  config.Config
	Router  http.Handler
	Payroll *payroll.Service
	Metrics *metrics.Collector

	closers []func()
}

// New wires the stores for cfg.StoreDriver and builds the router. Call Close
// when done to release the database pool.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	app := &App{Config: cfg, Metrics: metrics.New()}

	var (
		store    payroll.StoreAPI
		auditLog audit.Log
		idem     middleware.IdempotencyStore
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		slog.Warn("using in-memory store; data is lost on restart")
		store = payroll.NewMemoryStore()
		auditLog = audit.NewMemoryLog()
		idem = middleware.NewMemoryIdempotencyStore()
	case config.StoreDriverPostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		app.closers = append(app.closers, pool.Close)
		if cfg.RunMigrations {
			if err := db.Migrate(ctx, pool, cfg.MigrationsDir); err != nil {
				app.Close()
				return nil, fmt.Errorf("migrations: %w", err)
			}
		}
		sealer, err := crypto.New(cfg.DataEncryptionKey)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("encryption key: %w", err)
		}
		if !sealer.Configured() {
			slog.Warn("DATA_ENCRYPTION_KEY not set; bank accounts and ID numbers are stored in plain text")
		}
		store = payroll.NewStore(pool, sealer)
		auditLog = audit.New(pool)
		idem = middleware.NewIdempotencyStore(pool)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	app.Payroll = payroll.NewService(store, cfg.DefaultCurrency)
	app.Payroll.OnImportFinished(func(run payroll.ImportRun) {
		app.Metrics.RecordImport(run.Status == payroll.ImportFailed, run.Accepted, run.Rejected)
	})
	if err := app.startWorkers(ctx, idem); err != nil {
		app.Close()
		return nil, err
	}
	app.Router = app.routes(auditLog, idem)
	return app, nil
}

// startWorkers runs the async import queue and the idempotency key cleanup
// until Close.
func (a *App) startWorkers(ctx context.Context, idem middleware.IdempotencyStore) error {
	workerCtx, cancel := context.WithCancel(ctx)
	queue := jobs.New(a.Config.ImportQueueSize, a.Config.ImportWorkers)
	queue.Start(workerCtx)
	a.Payroll.UseQueue(queue)

	a.closers = append(a.closers, func() {
		cancel()
		queue.Wait()
	})

	ttl := a.Config.IdempotencyTTL
	return queue.Schedule(a.Config.CleanupSchedule, "idempotency_cleanup", func(ctx context.Context) error {
		if ttl <= 0 {
			return nil
		}
		purged, err := idem.Purge(ctx, time.Now().Add(-ttl))
		if err != nil {
			return err
		}
		if purged > 0 {
			slog.Info("idempotency keys purged", "count", purged)
		}
		return nil
	})
}

func (a *App) routes(auditLog audit.Log, idem middleware.IdempotencyStore) http.Handler {
	cfg := a.Config
	perms := auth.StaticPermissions{}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Auth(cfg.JWTSecret))
	router.Use(middleware.Logger(a.Metrics))
	router.Use(chimw.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	if cfg.RequestTimeout > 0 {
		router.Use(chimw.Timeout(cfg.RequestTimeout))
	}

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.Payroll.Ping(ctx); err != nil {
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled {
		router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			api.Success(w, a.Metrics.Snapshot(), middleware.GetRequestID(r.Context()))
		})
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
		r.Use(middleware.HeavyMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))

		payrollHandler := payrollhandler.NewHandler(a.Payroll, auditLog, perms, idem, payrollhandler.Options{
			MaxBodyBytes:   cfg.MaxBodyBytes,
			ImportMaxBytes: cfg.ImportMaxBytes,
			AcceptXLSX:     cfg.ImportAcceptXLSX,
		})
		payrollHandler.RegisterRoutes(r)

		auditHandler := audithandler.NewHandler(auditLog, perms)
		auditHandler.RegisterRoutes(r)
	})

	return router
}

// Run serves until ctx is cancelled, then drains in-flight requests for up
// to ShutdownTimeout.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.Addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("payroll server listening", "addr", a.Config.Addr, "store", a.Config.StoreDriver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
	defer cancel()
	slog.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
