package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/SYSCYCLE/apk-builder/internal/domain"
	"github.com/SYSCYCLE/apk-builder/internal/platform/retry"
	"github.com/google/uuid"
)

const dirPerm = 0o755

// disposeAttempts covers a killed tool process still flushing into the job tree.
const (
	disposeAttempts = 3
	disposeBackoff  = 100 * time.Millisecond
)

type Manager struct {
	tempRoot      string
	outputDir     string
	newToken      func() string
	removeAll     func(path string) error
	disposePolicy retry.Policy
}

func NewManager(tempRoot, outputDir string) *Manager {
	return &Manager{
		tempRoot:  tempRoot,
		outputDir: outputDir,
		newToken:  func() string { return uuid.NewString() },
		removeAll: os.RemoveAll,
		disposePolicy: retry.Policy{
			MaxAttempts:    disposeAttempts,
			InitialBackoff: disposeBackoff,
		},
	}
}

// Ensure creates the temp root and output directory if they are missing.
func (m *Manager) Ensure() error {
	for _, dir := range []string{m.tempRoot, m.outputDir} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("%w: create %s: %w", domain.ErrIO, dir, err)
		}
	}
	return nil
}

func (m *Manager) OutputDir() string { return m.outputDir }

// Create makes a fresh job directory named by a new unique token.
func (m *Manager) Create() (domain.Job, error) {
	token := m.newToken()
	dir := filepath.Join(m.tempRoot, token)

	// Mkdir (not MkdirAll) so a token collision surfaces as an error.
	if err := os.Mkdir(dir, dirPerm); err != nil {
		return domain.Job{}, fmt.Errorf("%w: create job directory: %w", domain.ErrIO, err)
	}

	return domain.Job{Token: token, Dir: dir}, nil
}

// Dispose removes the job directory. Failures are logged, never returned.
func (m *Manager) Dispose(ctx context.Context, job domain.Job) {
	if job.Dir == "" {
		return
	}
	if !m.owns(job.Dir) {
		slog.WarnContext(ctx, "Refusing to dispose directory outside temp root", "dir", job.Dir, "temp_root", m.tempRoot)
		return
	}

	policy := m.disposePolicy
	policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.InfoContext(ctx, "Retrying job directory removal",
			"dir", job.Dir,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)
	}

	err := retry.Do(ctx, policy, classifyRemoveError, func() error {
		return m.removeAll(job.Dir)
	})
	if err != nil {
		slog.WarnContext(ctx, "Failed to dispose job directory", "dir", job.Dir, "error", err)
		return
	}
	slog.DebugContext(ctx, "Disposed job directory", "dir", job.Dir)
}

// classifyRemoveError gives up on permission problems; anything else (a
// directory refilled between walk and rmdir) is worth another pass.
func classifyRemoveError(err error) retry.Action {
	if errors.Is(err, fs.ErrPermission) {
		return retry.Stop
	}
	return retry.Retry
}

// owns reports whether dir is a direct child of the temp root.
func (m *Manager) owns(dir string) bool {
	root, err := filepath.Abs(m.tempRoot)
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.ContainsRune(rel, filepath.Separator)
}

// Writable is a readiness probe: both roots exist and accept new files.
func (m *Manager) Writable(_ context.Context) error {
	for _, dir := range []string{m.tempRoot, m.outputDir} {
		f, err := os.CreateTemp(dir, ".probe-*")
		if err != nil {
			return fmt.Errorf("%s not writable: %w", dir, err)
		}
		name := f.Name()
		_ = f.Close()
		_ = os.Remove(name)
	}
	return nil
}
