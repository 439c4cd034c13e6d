package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/SYSCYCLE/apk-builder/internal/workspace"
	"github.com/jonboulle/clockwork"
)

func main() {
	var (
		dir       = flag.String("dir", envOr("OUTPUT_DIR", "./output"), "Output directory (or set OUTPUT_DIR env)")
		retention = flag.Duration("retention", 24*time.Hour, "Remove packages older than this")
		dryRun    = flag.Bool("dry-run", false, "Dry run mode (list, don't delete)")
		verbose   = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	if *retention <= 0 {
		log.Fatal("Retention must be positive (--retention)")
	}

	// Configure logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))

	var opts []workspace.JanitorOpt
	if *dryRun {
		opts = append(opts, workspace.WithDryRun())
	}
	janitor := workspace.NewJanitor(*dir, *retention, clockwork.NewRealClock(), opts...)

	start := time.Now()
	slog.Info("Starting sweep", "dir", *dir, "retention", *retention, "dry_run", *dryRun)

	report, err := janitor.Sweep(context.Background())
	if err != nil {
		log.Fatalf("Sweep failed: %v", err)
	}

	for _, path := range report.Removed {
		slog.Debug("Expired package", "path", path, "deleted", !*dryRun)
	}

	slog.Info("Sweep summary",
		"scanned", report.Scanned,
		"removed", len(report.Removed),
		"failed", report.Failed,
		"duration_ms", time.Since(start).Milliseconds())

	if report.Failed > 0 {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
