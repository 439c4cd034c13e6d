package toolchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/SYSCYCLE/apk-builder/internal/domain"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/jonboulle/clockwork"
	"github.com/kballard/go-shellquote"
)

// Options locate the external tools.
type Options struct {
	JavaBin      string
	ApktoolJar   string
	SignerJar    string
	KeystorePath string

	ApktoolArgs []string
	SignerArgs  []string
}

// Observer receives per-invocation measurements.
type Observer interface {
	ToolFinished(stage domain.Stage, d time.Duration, err error)
	BreakerStateChanged(state string)
}

type noopObserver struct{}

func (noopObserver) ToolFinished(domain.Stage, time.Duration, error) {}
func (noopObserver) BreakerStateChanged(string)                      {}

// Toolchain runs apktool and uber-apk-signer through the JVM.
type Toolchain struct {
	opts     Options
	runner   Runner
	clock    clockwork.Clock
	observer Observer
	breaker  circuitbreaker.CircuitBreaker[any]
}

var _ domain.Toolchain = (*Toolchain)(nil)

type Opt func(*Toolchain)

func WithObserver(o Observer) Opt {
	return func(t *Toolchain) { t.observer = o }
}

func WithClock(c clockwork.Clock) Opt {
	return func(t *Toolchain) { t.clock = c }
}

func New(opts Options, runner Runner, options ...Opt) *Toolchain {
	t := &Toolchain{
		opts:     opts,
		runner:   runner,
		clock:    clockwork.NewRealClock(),
		observer: noopObserver{},
	}
	for _, o := range options {
		o(t)
	}
	t.breaker = newBreaker(t.observer)
	return t
}

// Decompile decodes the template package into outputDir, replacing any previous contents.
func (t *Toolchain) Decompile(ctx context.Context, templatePath, outputDir string) error {
	args := []string{"-jar", t.opts.ApktoolJar, "d", templatePath, "-o", outputDir, "-f"}
	return t.run(ctx, domain.StageDecode, append(args, t.opts.ApktoolArgs...))
}

// Compile builds the decoded tree into an unsigned package.
func (t *Toolchain) Compile(ctx context.Context, decodedDir, unsignedPath string) error {
	args := []string{"-jar", t.opts.ApktoolJar, "b", decodedDir, "-o", unsignedPath}
	return t.run(ctx, domain.StageBuild, append(args, t.opts.ApktoolArgs...))
}

// Sign aligns and signs unsignedPath into outputDir. Keystore credentials are
// passed only when a keystore file exists; otherwise the signer falls back to
// its bundled debug key.
func (t *Toolchain) Sign(ctx context.Context, unsignedPath, outputDir string, creds domain.Credentials) error {
	args := []string{"-jar", t.opts.SignerJar, "--apks", unsignedPath, "--out", outputDir}
	if t.KeystorePresent() {
		args = append(args,
			"--ks", t.opts.KeystorePath,
			"--ksAlias", creds.Alias,
			"--ksPass", creds.StorePassword,
			"--ksKeyPass", creds.KeyPassword,
		)
	}
	return t.run(ctx, domain.StageSign, append(args, t.opts.SignerArgs...))
}

func (t *Toolchain) KeystorePresent() bool {
	if t.opts.KeystorePath == "" {
		return false
	}
	info, err := os.Stat(t.opts.KeystorePath)
	return err == nil && info.Mode().IsRegular()
}

// Ready is a readiness probe: the JVM resolves and both jars exist.
func (t *Toolchain) Ready(_ context.Context) error {
	if _, err := exec.LookPath(t.opts.JavaBin); err != nil {
		return fmt.Errorf("java not found: %w", err)
	}
	for _, jar := range []string{t.opts.ApktoolJar, t.opts.SignerJar} {
		if _, err := os.Stat(jar); err != nil {
			return fmt.Errorf("tool missing: %w", err)
		}
	}
	if t.breaker.IsOpen() {
		return errors.New("toolchain circuit breaker open")
	}
	return nil
}

func (t *Toolchain) run(ctx context.Context, stage domain.Stage, args []string) error {
	if !t.breaker.TryAcquirePermit() {
		return fmt.Errorf("%s stage: %w: %w", stage, domain.ErrToolchainUnavailable, circuitbreaker.ErrOpen)
	}

	slog.DebugContext(ctx, "Running tool", "stage", stage, "command", commandLine(t.opts.JavaBin, args))

	start := t.clock.Now()
	out, err := t.runner.Run(ctx, t.opts.JavaBin, args...)
	elapsed := t.clock.Since(start)
	t.observer.ToolFinished(stage, elapsed, err)

	if err == nil {
		t.breaker.RecordSuccess()
		slog.InfoContext(ctx, "Tool finished", "stage", stage, "duration", elapsed)
		return nil
	}

	toolErr := &domain.ToolError{Stage: stage, Output: strings.TrimSpace(string(out)), Err: err}

	var exit ExitCoder
	if errors.As(err, &exit) {
		// The tool ran; a non-zero exit says nothing about toolchain health.
		t.breaker.RecordSuccess()
		toolErr.ExitCode = exit.ExitCode()
	} else {
		t.breaker.RecordError(err)
		toolErr.Err = fmt.Errorf("%w: %w", domain.ErrToolchainUnavailable, err)
	}

	slog.ErrorContext(ctx, "Tool failed",
		"stage", stage,
		"exit_code", toolErr.ExitCode,
		"duration", elapsed,
		"output", toolErr.Output,
		"error", err,
	)
	return toolErr
}

// commandLine renders a command for logs with secret flag values redacted.
func commandLine(name string, args []string) string {
	redacted := make([]string, len(args))
	copy(redacted, args)
	for i := 0; i+1 < len(redacted); i++ {
		switch redacted[i] {
		case "--ksPass", "--ksKeyPass":
			redacted[i+1] = "REDACTED"
		}
	}
	return shellquote.Join(append([]string{name}, redacted...)...)
}
