package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pittpv/mon-far-app/internal/cooldown"
	"github.com/pittpv/mon-far-app/internal/domain"
	"github.com/pittpv/mon-far-app/internal/metrics"
	"github.com/pittpv/mon-far-app/internal/notify"
	"github.com/pittpv/mon-far-app/internal/platform/config"
	"github.com/pittpv/mon-far-app/internal/platform/logging"
	"github.com/pittpv/mon-far-app/internal/platform/version"
	"github.com/pittpv/mon-far-app/internal/server"
	"github.com/pittpv/mon-far-app/internal/store"
)

const (
	storeDialTimeout   = 30 * time.Second
	bootRestoreTimeout = time.Minute
	shutdownTimeout    = 10 * time.Second
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// slog is not configured yet at this point.
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupStore(cfg *config.Config, clock clockwork.Clock) domain.RecordStore {
	ctx, cancel := context.WithTimeout(context.Background(), storeDialTimeout)
	defer cancel()

	st, err := store.Open(ctx, cfg, clock)
	if err != nil {
		slog.Error("Failed to open record store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	return st
}

// restoreOnBoot rebuilds in-memory timers from persisted records before
// the server accepts traffic, so cooldowns survive restarts.
func restoreOnBoot(reconciler domain.ReconcileService) {
	ctx, cancel := context.WithTimeout(context.Background(), bootRestoreTimeout)
	defer cancel()

	summary, err := reconciler.RestoreAll(ctx)
	if err != nil {
		slog.Error("Failed to restore cooldown timers", "error", err)
		os.Exit(1)
	}
	slog.Info("Cooldown timers restored",
		"restored", summary.Restored, "cleaned", summary.Cleaned, "errors", summary.Errors)
}

func runGracefulShutdown(srv *server.Server, runner *cooldown.Runner) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, draining")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to stop HTTP server cleanly", "error", err)
		}

		runner.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.Init(cfg.LogLevel, cfg.LogFormat)

	build := version.Get()
	metrics.BuildInfo.WithLabelValues(build.Version, build.Commit, build.BuildTime, build.GoVersion).Set(1)
	slog.Info("Application starting",
		"env", cfg.AppEnv, "port", cfg.Port, "build", build.String())

	recordStore := setupStore(cfg, clock)
	defer func() { _ = recordStore.Close() }()

	registry := cooldown.NewRegistry(clock)
	transport := notify.NewPushClient(cfg.NotifyTimeout, cfg.NotifyRatePerSec, cfg.NotifyBurst)
	notifier := notify.NewNotifier(recordStore, transport, cfg.NotifyTargetURL, clock)
	ledger := cooldown.NewLedger(recordStore, registry, notifier, cfg.CooldownDuration, cfg.NotifySendWait, clock)
	reconciler := cooldown.NewReconciler(recordStore, ledger, registry, clock)

	restoreOnBoot(reconciler)

	runnerCtx, cancelRunner := context.WithCancel(context.Background())
	defer cancelRunner()
	runner := cooldown.NewRunner(reconciler, cfg.ReconcileInterval, clock)
	go runner.Start(runnerCtx)

	healthChecks := []server.HealthCheck{
		{Name: "store", Check: recordStore.Ping},
	}
	srv := server.NewServer(cfg, ledger, reconciler, healthChecks, clock)

	done := runGracefulShutdown(srv, runner)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}

	<-done
}
