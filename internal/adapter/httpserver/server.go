package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SYSCYCLE/apk-builder/internal/adapter/metrics"
	"github.com/SYSCYCLE/apk-builder/internal/domain"
	"github.com/SYSCYCLE/apk-builder/internal/platform/config"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

type appService interface {
	Generate(ctx context.Context, req domain.BuildRequest) (*domain.Result, error)
	Dispose(ctx context.Context, result *domain.Result)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	app          appService
	healthChecks []HealthCheck
	startTime    time.Time

	registry     *prometheus.Registry
	httpMetrics  *metrics.HTTPMetrics
	errorMetrics errorRecorder

	// disposals tracks job directories still being removed after their
	// response was sent.
	disposals sync.WaitGroup
}

// NewServer builds the HTTP surface. registry may be nil, in which case
// neither /metrics nor the HTTP instrumentation is installed.
func NewServer(cfg *config.Config, app appService, registry *prometheus.Registry, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		app:          app,
		healthChecks: healthChecks,
		startTime:    time.Now(),
		registry:     registry,
	}
	if registry != nil {
		srv.httpMetrics = metrics.NewHTTPMetrics(registry)
		srv.errorMetrics = metrics.NewErrorMetrics(registry)
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, then waits for pending job cleanups
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	done := make(chan struct{})
	go func() {
		s.disposals.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pending job cleanup: %w", ctx.Err())
	}
}

// disposeInBackground releases a finished job off the request path so the
// response is never held back by directory removal.
func (s *Server) disposeInBackground(ctx context.Context, result *domain.Result) {
	ctx = context.WithoutCancel(ctx)
	s.disposals.Add(1)
	go func() {
		defer s.disposals.Done()
		s.app.Dispose(ctx, result)
	}()
}
