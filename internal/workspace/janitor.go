package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/SYSCYCLE/apk-builder/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
)

// SweepReport summarizes one pass over the output directory.
type SweepReport struct {
	Scanned int
	Removed []string
	Failed  int
}

// Janitor removes finished packages from the output directory once they are
// older than the retention window.
type Janitor struct {
	dir       string
	retention time.Duration
	clock     clockwork.Clock
	dryRun    bool
	onSwept   func(n int)

	cron *cron.Cron
}

type JanitorOpt func(*Janitor)

// WithDryRun reports what would be removed without deleting anything.
func WithDryRun() JanitorOpt {
	return func(j *Janitor) { j.dryRun = true }
}

// WithSweptHook is called after every scheduled sweep with the number of removed files.
func WithSweptHook(fn func(n int)) JanitorOpt {
	return func(j *Janitor) { j.onSwept = fn }
}

func NewJanitor(dir string, retention time.Duration, clock clockwork.Clock, opts ...JanitorOpt) *Janitor {
	j := &Janitor{dir: dir, retention: retention, clock: clock}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Sweep deletes every package in the output directory whose modification time
// is older than the retention window. Retention 0 disables sweeping.
func (j *Janitor) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	if j.retention <= 0 {
		return report, nil
	}

	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return report, fmt.Errorf("%w: read output directory: %w", domain.ErrIO, err)
	}

	cutoff := j.clock.Now().Add(-j.retention)
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasSuffix(entry.Name(), domain.APKExtension) {
			continue
		}
		report.Scanned++

		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(j.dir, entry.Name())
		if j.dryRun {
			report.Removed = append(report.Removed, path)
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.WarnContext(ctx, "Failed to remove expired package", "path", path, "error", err)
			report.Failed++
			continue
		}
		report.Removed = append(report.Removed, path)
	}

	return report, nil
}

// Start schedules Sweep on the given cron schedule ("@every 10m", "0 * * * *", ...).
func (j *Janitor) Start(schedule string) error {
	if j.retention <= 0 {
		slog.Info("Output retention disabled, janitor not scheduled")
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, j.runScheduled); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	c.Start()
	j.cron = c

	slog.Info("Output janitor scheduled", "schedule", schedule, "retention", j.retention)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
}

func (j *Janitor) runScheduled() {
	ctx := context.Background()
	report, err := j.Sweep(ctx)
	if err != nil {
		slog.Error("Output sweep failed", "error", err)
		return
	}
	if len(report.Removed) > 0 {
		slog.Info("Output sweep removed expired packages", "removed", len(report.Removed), "scanned", report.Scanned)
	}
	if j.onSwept != nil {
		j.onSwept(len(report.Removed))
	}
}
