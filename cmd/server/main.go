package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SYSCYCLE/apk-builder/internal/adapter/httpserver"
	"github.com/SYSCYCLE/apk-builder/internal/adapter/metrics"
	"github.com/SYSCYCLE/apk-builder/internal/app"
	"github.com/SYSCYCLE/apk-builder/internal/domain"
	"github.com/SYSCYCLE/apk-builder/internal/output"
	"github.com/SYSCYCLE/apk-builder/internal/platform/config"
	"github.com/SYSCYCLE/apk-builder/internal/platform/logging"
	"github.com/SYSCYCLE/apk-builder/internal/platform/version"
	"github.com/SYSCYCLE/apk-builder/internal/toolchain"
	"github.com/SYSCYCLE/apk-builder/internal/workspace"
	"github.com/jonboulle/clockwork"
)

func runGracefulShutdown(srv *httpserver.Server, janitor *workspace.Janitor) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		// In-flight builds run two JVM tools; give them time to finish streaming.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		janitor.Stop()

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupToolchain(cfg *config.Config, observer toolchain.Observer, clock clockwork.Clock) *toolchain.Toolchain {
	tools := toolchain.New(toolchain.Options{
		JavaBin:      cfg.JavaBin,
		ApktoolJar:   cfg.ApktoolJar,
		SignerJar:    cfg.SignerJar,
		KeystorePath: cfg.KeystorePath,
		ApktoolArgs:  cfg.ApktoolArgs(),
		SignerArgs:   cfg.SignerArgs(),
	}, toolchain.ExecRunner{Timeout: cfg.ToolTimeout}, toolchain.WithObserver(observer), toolchain.WithClock(clock))

	if tools.KeystorePresent() {
		slog.Info("Signing with configured keystore", "path", cfg.KeystorePath)
	} else {
		slog.Warn("No keystore found, packages will carry the signer's debug identity", "path", cfg.KeystorePath)
	}
	return tools
}

func templateReadable(path string) func(context.Context) error {
	return func(context.Context) error {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("template package unreadable: %w", err)
		}
		return f.Close()
	}
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Get().String())

	ws := workspace.NewManager(cfg.TempRoot, cfg.OutputDir)
	if err := ws.Ensure(); err != nil {
		slog.Error("Failed to prepare working directories", "error", err)
		os.Exit(1)
	}

	registry := metrics.NewRegistry()
	pipelineMetrics := metrics.NewPipelineMetrics(registry)

	tools := setupToolchain(cfg, pipelineMetrics, clock)

	serviceOpts := []app.Opt{app.WithRecorder(pipelineMetrics)}
	if cfg.VerifyArtifact {
		serviceOpts = append(serviceOpts, app.WithInspector(output.APKInspector{}))
	}
	appSvc := app.NewService(ws, tools, output.NewResolver(cfg.AllowUnsignedFallback), app.Options{
		TemplateAPK: cfg.TemplateAPK,
		Keystore: domain.Credentials{
			Alias:         cfg.KeystoreAlias,
			StorePassword: cfg.KeystorePassword,
			KeyPassword:   cfg.KeyPassword,
		},
		VerifyArtifact: cfg.VerifyArtifact,
	}, clock, serviceOpts...)

	janitor := workspace.NewJanitor(cfg.OutputDir, cfg.OutputRetention, clock, workspace.WithSweptHook(pipelineMetrics.Swept))
	if err := janitor.Start(cfg.OutputSweepSchedule); err != nil {
		slog.Error("Failed to schedule output janitor", "error", err)
		os.Exit(1)
	}

	healthChecks := []httpserver.HealthCheck{
		{Name: "template", Check: templateReadable(cfg.TemplateAPK)},
		{Name: "toolchain", Check: tools.Ready},
		{Name: "workspace", Check: ws.Writable},
	}
	srv := httpserver.NewServer(cfg, appSvc, registry, healthChecks)

	done := runGracefulShutdown(srv, janitor)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
