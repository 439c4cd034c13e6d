package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/SYSCYCLE/apk-builder/internal/archive"
	"github.com/SYSCYCLE/apk-builder/internal/decoded"
	"github.com/SYSCYCLE/apk-builder/internal/domain"
	"github.com/SYSCYCLE/apk-builder/internal/platform/correlation"
	"github.com/jonboulle/clockwork"
)

const fallbackFileStem = "app"

// Workspace hands out and reclaims job directories.
type Workspace interface {
	Create() (domain.Job, error)
	Dispose(ctx context.Context, job domain.Job)
	OutputDir() string
}

// Resolver places the signer's artifact at its final path.
type Resolver interface {
	Resolve(ctx context.Context, signedDir, jobToken, desiredPath, unsignedPath string) (signed bool, err error)
}

// Recorder receives pipeline outcomes for metrics.
type Recorder interface {
	JobFinished(outcome string, d time.Duration)
	UnsignedFallback()
}

type noopRecorder struct{}

func (noopRecorder) JobFinished(string, time.Duration) {}
func (noopRecorder) UnsignedFallback()                 {}

// Job outcomes reported to the Recorder.
const (
	OutcomeSigned   = "signed"
	OutcomeUnsigned = "unsigned"
	OutcomeFailed   = "failed"
)

// Options are the deployment settings the pipeline needs.
type Options struct {
	TemplateAPK string
	// Keystore holds the configured credentials form values fall back to.
	Keystore       domain.Credentials
	VerifyArtifact bool
}

// Service is the application layer. It runs one build job per Generate call;
// jobs share nothing but the read-only template and the output directory.
type Service struct {
	workspace Workspace
	tools     domain.Toolchain
	resolver  Resolver
	inspector domain.ArtifactInspector
	opts      Options
	clock     clockwork.Clock
	recorder  Recorder
}

type Opt func(*Service)

func WithRecorder(r Recorder) Opt {
	return func(s *Service) { s.recorder = r }
}

// WithInspector enables post-build verification with the given inspector.
func WithInspector(i domain.ArtifactInspector) Opt {
	return func(s *Service) { s.inspector = i }
}

func NewService(ws Workspace, tools domain.Toolchain, resolver Resolver, opts Options, clock clockwork.Clock, options ...Opt) *Service {
	s := &Service{
		workspace: ws,
		tools:     tools,
		resolver:  resolver,
		opts:      opts,
		clock:     clock,
		recorder:  noopRecorder{},
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Generate builds a package for req. On success the returned Result still
// owns its job directory; the caller releases it with Dispose once the
// artifact has been delivered. On failure the job directory is already gone.
//
// The pipeline does not observe cancellation of ctx: a client disconnect must
// not leave a tool half-way through writing the decoded tree.
func (s *Service) Generate(ctx context.Context, req domain.BuildRequest) (*domain.Result, error) {
	ctx = context.WithoutCancel(ctx)
	start := s.clock.Now()

	creds := req.Credentials.Merge(s.opts.Keystore)
	if s.tools.KeystorePresent() && !creds.Complete() {
		s.recorder.JobFinished(OutcomeFailed, s.clock.Since(start))
		return nil, domain.ErrMissingCredentials
	}
	if req.MinSDK == "" {
		req.MinSDK = domain.DefaultMinSDK
	}
	if req.TargetSDK == "" {
		req.TargetSDK = domain.DefaultTargetSDK
	}

	job, err := s.workspace.Create()
	if err != nil {
		s.recorder.JobFinished(OutcomeFailed, s.clock.Since(start))
		return nil, err
	}
	ctx = correlation.WithJobID(ctx, job.Token)
	slog.InfoContext(ctx, "Job started", "app_name", req.AppName, "package", req.PackageID)

	result, err := s.run(ctx, job, req, creds)
	elapsed := s.clock.Since(start)
	if err != nil {
		slog.ErrorContext(ctx, "Job failed", "error", err, "duration", elapsed)
		s.workspace.Dispose(ctx, job)
		s.recorder.JobFinished(OutcomeFailed, elapsed)
		return nil, err
	}

	outcome := OutcomeSigned
	if !result.Signed {
		outcome = OutcomeUnsigned
		s.recorder.UnsignedFallback()
	}
	s.recorder.JobFinished(outcome, elapsed)
	slog.InfoContext(ctx, "Job finished", "file", result.FileName, "signed", result.Signed, "duration", elapsed)
	return result, nil
}

// Dispose releases the job directory of a finished Generate call.
func (s *Service) Dispose(ctx context.Context, result *domain.Result) {
	if result == nil {
		return
	}
	s.workspace.Dispose(correlation.WithJobID(ctx, result.Job.Token), result.Job)
}

func (s *Service) run(ctx context.Context, job domain.Job, req domain.BuildRequest, creds domain.Credentials) (*domain.Result, error) {
	if err := stageUpload(job.UploadPath(), req.Archive); err != nil {
		return nil, err
	}
	if _, err := archive.Detect(job.UploadPath()); err != nil {
		return nil, err
	}

	tree := job.DecodedDir()
	if err := s.tools.Decompile(ctx, s.opts.TemplateAPK, tree); err != nil {
		return nil, err
	}

	if err := decoded.SetPackageID(decoded.ManifestPath(tree), req.PackageID); err != nil {
		return nil, fmt.Errorf("patch manifest: %w", err)
	}
	info := decoded.BuildInfo{RenamePackage: req.PackageID, MinSDK: req.MinSDK, TargetSDK: req.TargetSDK}
	if err := decoded.SetBuildInfo(decoded.MetadataPath(tree), info); err != nil {
		return nil, fmt.Errorf("patch build metadata: %w", err)
	}
	if err := decoded.SetDisplayName(decoded.StringsPath(tree), req.AppName); err != nil {
		return nil, fmt.Errorf("patch display name: %w", err)
	}

	assetsDir, err := decoded.ReplaceAssets(ctx, tree, job.UploadPath())
	if err != nil {
		return nil, fmt.Errorf("replace assets: %w", err)
	}
	slog.DebugContext(ctx, "Assets replaced", "dir", assetsDir)

	if len(req.Icon) > 0 {
		iconPath, err := decoded.ReplaceIcon(tree, req.Icon)
		if err != nil {
			return nil, fmt.Errorf("replace icon: %w", err)
		}
		if iconPath == "" {
			slog.WarnContext(ctx, "Template has no launcher icon directory, keeping its icon")
		}
	}

	if err := s.tools.Compile(ctx, tree, job.UnsignedPath()); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(job.SignedDir(), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create signed directory: %w", domain.ErrIO, err)
	}
	if err := s.tools.Sign(ctx, job.UnsignedPath(), job.SignedDir(), creds); err != nil {
		return nil, err
	}

	fileName := ArtifactName(req.AppName, job.Token)
	finalPath := filepath.Join(s.workspace.OutputDir(), fileName)
	signed, err := s.resolver.Resolve(ctx, job.SignedDir(), job.Token, finalPath, job.UnsignedPath())
	if err != nil {
		return nil, err
	}

	if err := s.verify(ctx, finalPath, req.PackageID); err != nil {
		_ = os.Remove(finalPath)
		return nil, err
	}

	return &domain.Result{Job: job, FileName: fileName, Path: finalPath, Signed: signed}, nil
}

// verify checks the built package declares the requested package name.
// An unreadable package is only logged; aapt output varies across releases.
func (s *Service) verify(ctx context.Context, path, want string) error {
	if !s.opts.VerifyArtifact || s.inspector == nil {
		return nil
	}
	got, err := s.inspector.PackageName(path)
	if err != nil {
		slog.WarnContext(ctx, "Could not inspect built package", "path", path, "error", err)
		return nil
	}
	if got != want {
		return fmt.Errorf("%w: package is %q, requested %q", domain.ErrArtifactMismatch, got, want)
	}
	return nil
}

func stageUpload(path string, r io.Reader) error {
	if r == nil {
		return fmt.Errorf("%w: no archive supplied", domain.ErrUnsupportedArchive)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: stage upload: %w", domain.ErrIO, err)
	}
	_, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		return fmt.Errorf("%w: stage upload: %w", domain.ErrIO, err)
	}
	return nil
}

// ArtifactName derives the caller-facing file name from the app name and job
// token: whitespace becomes an underscore, anything outside [A-Za-z0-9._-] is
// dropped.
func ArtifactName(appName, token string) string {
	stem := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return '_'
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '.', r == '_', r == '-':
			return r
		default:
			return -1
		}
	}, strings.TrimSpace(appName))
	if strings.Trim(stem, "._") == "" {
		stem = fallbackFileStem
	}
	return stem + "_" + token + domain.APKExtension
}
