package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"

	"github.com/pittpv/mon-far-app/internal/domain"
	"github.com/pittpv/mon-far-app/internal/platform/config"
)

// HealthCheck names a dependency probe for the readiness endpoint.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	clock  clockwork.Clock

	cooldowns  domain.CooldownService
	reconciler domain.ReconcileService

	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, cooldowns domain.CooldownService, reconciler domain.ReconcileService, healthChecks []HealthCheck, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		clock:        clock,
		cooldowns:    cooldowns,
		reconciler:   reconciler,
		healthChecks: healthChecks,
		startTime:    time.Now(),
	}

	srv.registerRoutes()

	return srv
}

// Start blocks serving requests until Shutdown or a listener error.
// The wrapped error still matches http.ErrServerClosed after a clean
// shutdown.
func (s *Server) Start() error {
	slog.Info("HTTP server listening", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to serve on port %s: %w", s.config.Port, err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	return nil
}
