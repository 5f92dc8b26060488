package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	paneladapter "github.com/ericfisherdev/panelsync/internal/adapter/driven/panel"
	sqliteadapter "github.com/ericfisherdev/panelsync/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/panelsync/internal/adapter/driving/http"
	"github.com/ericfisherdev/panelsync/internal/application"
	"github.com/ericfisherdev/panelsync/internal/config"
	"github.com/ericfisherdev/panelsync/internal/domain/port/driven"
	"github.com/ericfisherdev/panelsync/internal/logging"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on invalid env vars) and set up logging.
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Configure(logging.ProfileRuntime, logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"tick_interval", cfg.TickInterval,
		"remote_timeout", cfg.RemoteTimeout,
		"reconcile_interval", cfg.ReconcileInterval,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire adapters.
	accountStore := sqliteadapter.NewAccountRepo(db)
	configStore := sqliteadapter.NewAutomationConfigRepo(db)
	ledger := sqliteadapter.NewLedgerRepo(db)
	credentialStore := sqliteadapter.NewCredentialRepo(db, cfg.SecretKey)
	if cfg.SecretKey == nil {
		slog.Warn("PANELSYNC_SECRET_KEY not set, panel credentials cannot be stored through the API")
	}

	// 6. Create the panel client provider. Stored credentials take priority
	// over env vars; without either the provider stays empty and every panel
	// call fails as unauthorized until credentials are stored.
	provider := application.NewPanelClientProvider(nil)
	credentialSvc := application.NewPanelCredentialService(credentialStore, provider, newPanelClient)

	baseURL, token := credentialSvc.Resolve(ctx, cfg.PanelURL, cfg.PanelToken)
	if baseURL != "" && token != "" {
		if err := credentialSvc.Connect(baseURL, token); err != nil {
			return err
		}
		slog.Info("panel client created", "base_url", baseURL)
	} else {
		slog.Info("no panel credentials configured, renewal and reconciliation inactive until credentials are stored")
	}

	// 7. Create application services.
	scheduler := application.NewRenewalScheduler(accountStore, configStore, ledger, provider, cfg.TickInterval, cfg.RemoteTimeout)
	reconciler := application.NewReconciler(accountStore, configStore, ledger, provider, cfg.RemoteTimeout)
	detector := application.NewDivergenceDetector(accountStore, provider, cfg.DivergenceTimeout)
	automationSvc := application.NewAutomationService(configStore, accountStore, ledger)
	healthSvc := application.NewHealthService(configStore, provider, scheduler)

	// 8. Start background loops. The scheduler must finish its current tick
	// before the database is closed.
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		scheduler.Start(ctx)
	}()

	reconcileDone := make(chan struct{})
	if cfg.ReconcileInterval > 0 {
		go func() {
			defer close(reconcileDone)
			reconciler.StartPeriodic(ctx, cfg.ReconcileInterval)
		}()
	} else {
		close(reconcileDone)
	}

	// 9. Create HTTP handler with all API routes and middleware.
	apiHandler := httphandler.NewHandler(reconciler, detector, scheduler, automationSvc, credentialSvc, healthSvc, logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	slog.Info("panelsync started",
		"listen_addr", cfg.ListenAddr,
		"tick_interval", cfg.TickInterval,
		"panel_configured", provider.HasClient(),
	)

	// 10. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down", "drain_timeout", scheduler.DrainTimeout())

	// 11. Graceful shutdown. The background loops get their own deadline,
	// started at cancellation, sized for one in-flight renewal. The database
	// closes only after they return or that deadline passes.
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), scheduler.DrainTimeout())
	defer cancelDrain()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	if !waitForLoops(drainCtx, schedulerDone, reconcileDone) {
		slog.Warn("background loops did not stop before the drain deadline")
	}

	slog.Info("shutdown complete")
	return nil
}

// httpShutdownTimeout bounds draining in-flight API requests.
const httpShutdownTimeout = 10 * time.Second

// waitForLoops blocks until every done channel is closed or ctx ends. It
// reports whether all loops stopped.
func waitForLoops(ctx context.Context, dones ...<-chan struct{}) bool {
	for _, done := range dones {
		select {
		case <-done:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// newPanelClient adapts the concrete panel client constructor to the
// application's client factory.
func newPanelClient(baseURL, token string) (driven.PanelClient, error) {
	client, err := paneladapter.NewClient(baseURL, token)
	if err != nil {
		return nil, err
	}
	return client, nil
}
