package httpserver

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/SYSCYCLE/apk-builder/internal/domain"
	apperrors "github.com/SYSCYCLE/apk-builder/internal/platform/errors"
	"github.com/gabriel-vasile/mimetype"
	"github.com/labstack/echo/v4"
)

const (
	headerJobID  = "X-Job-ID"
	headerSigned = "X-Apk-Signed"

	maxIconSize = 4 << 20
)

var packageNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*(\.[a-zA-Z][a-zA-Z0-9_]*)+$`)

func (s *Server) registerGenerateRoutes() {
	s.echo.POST("/generate-apk", s.handleGenerate,
		newRateLimiter(s.config.GenerateRateLimit, s.config.GenerateRateBurst),
		bodyLimit(s.config.MaxUploadSize),
	)
}

func (s *Server) handleGenerate(c echo.Context) error {
	ctx := c.Request().Context()

	req, closeArchive, err := parseBuildRequest(c)
	if err != nil {
		return err
	}
	defer closeArchive()

	result, err := s.app.Generate(ctx, req)
	if err != nil {
		return pipelineError(err)
	}
	defer s.disposeInBackground(ctx, result)

	return sendPackage(c, result)
}

func sendPackage(c echo.Context, result *domain.Result) error {
	f, err := os.Open(result.Path)
	if err != nil {
		return apperrors.InternalError("failed to open built package", err).WithField("job_id", result.Job.Token)
	}
	defer f.Close()

	header := c.Response().Header()
	if info, err := f.Stat(); err == nil {
		header.Set(echo.HeaderContentLength, strconv.FormatInt(info.Size(), 10))
	}
	// File names are sanitized to [A-Za-z0-9._-] so %q needs no escaping.
	header.Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", result.FileName))
	header.Set(headerJobID, result.Job.Token)
	header.Set(headerSigned, strconv.FormatBool(result.Signed))

	if err := c.Stream(http.StatusOK, domain.APKMediaType, f); err != nil {
		return fmt.Errorf("failed to send package: %w", err)
	}
	return nil
}

// parseBuildRequest validates the multipart form. The returned close func
// releases the uploaded archive.
func parseBuildRequest(c echo.Context) (domain.BuildRequest, func(), error) {
	noop := func() {}

	if _, err := c.MultipartForm(); err != nil {
		return domain.BuildRequest{}, noop, formError("form", err)
	}

	appName := strings.TrimSpace(c.FormValue("app_name"))
	if appName == "" {
		return domain.BuildRequest{}, noop, apperrors.ValidationError("app_name is required")
	}

	packageName := strings.TrimSpace(c.FormValue("package_name"))
	if !packageNamePattern.MatchString(packageName) {
		return domain.BuildRequest{}, noop, apperrors.ValidationError("package_name must be a reverse-domain identifier such as com.example.app").
			WithField("package_name", packageName)
	}

	minSDK, err := sdkValue(c, "min_sdk", domain.DefaultMinSDK)
	if err != nil {
		return domain.BuildRequest{}, noop, err
	}
	targetSDK, err := sdkValue(c, "target_sdk", domain.DefaultTargetSDK)
	if err != nil {
		return domain.BuildRequest{}, noop, err
	}

	icon, err := readIcon(c)
	if err != nil {
		return domain.BuildRequest{}, noop, err
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return domain.BuildRequest{}, noop, formError("file", err)
	}
	archive, err := fh.Open()
	if err != nil {
		return domain.BuildRequest{}, noop, apperrors.InternalError("failed to open uploaded archive", err)
	}

	req := domain.BuildRequest{
		AppName:   appName,
		PackageID: packageName,
		MinSDK:    minSDK,
		TargetSDK: targetSDK,
		Archive:   archive,
		Icon:      icon,
		Credentials: domain.Credentials{
			Alias:         c.FormValue("keystore_alias"),
			StorePassword: c.FormValue("keystore_password"),
			KeyPassword:   c.FormValue("key_password"),
		},
	}
	return req, func() { _ = archive.Close() }, nil
}

func sdkValue(c echo.Context, field, fallback string) (string, error) {
	raw := strings.TrimSpace(c.FormValue(field))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return "", apperrors.ValidationError(field+" must be a positive integer").WithField(field, raw)
	}
	return strconv.Itoa(n), nil
}

func readIcon(c echo.Context) ([]byte, error) {
	fh, err := c.FormFile("icon")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, formError("icon", err)
	}
	if fh.Size > maxIconSize {
		return nil, apperrors.ValidationError("icon is too large").WithField("size", fh.Size)
	}

	data, err := readFormFile(fh)
	if err != nil {
		return nil, apperrors.InternalError("failed to read icon", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	if mtype := mimetype.Detect(data); !mtype.Is("image/png") {
		return nil, apperrors.ValidationError("icon must be a PNG image").WithField("detected", mtype.String())
	}
	return data, nil
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func formError(field string, err error) error {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	if errors.Is(err, http.ErrMissingFile) {
		return apperrors.ValidationError(field + " is required")
	}
	return apperrors.InvalidInputError("invalid multipart form", err)
}

// pipelineError maps a Generate failure onto the structured error taxonomy.
func pipelineError(err error) error {
	var toolErr *domain.ToolError
	hasToolErr := errors.As(err, &toolErr)

	var structured *apperrors.Error
	switch {
	case errors.Is(err, domain.ErrMissingCredentials):
		structured = apperrors.InvalidInputError("keystore_alias, keystore_password and key_password are required to sign with the configured keystore", err)
	case errors.Is(err, domain.ErrUnsupportedArchive):
		structured = apperrors.InvalidInputError("unsupported archive format", err)
	case errors.Is(err, domain.ErrExtraction):
		structured = apperrors.InvalidInputError("archive could not be extracted", err)
	case errors.Is(err, domain.ErrToolchainUnavailable):
		structured = apperrors.ExternalError("build toolchain unavailable", err)
	case hasToolErr:
		structured = apperrors.InternalError(fmt.Sprintf("%s step failed", toolErr.Stage), err).
			WithField("exit_code", toolErr.ExitCode)
	case errors.Is(err, domain.ErrMalformedDocument):
		structured = apperrors.InternalError("template resources could not be parsed", err)
	case errors.Is(err, domain.ErrNotFound):
		structured = apperrors.InternalError("expected build output is missing", err)
	case errors.Is(err, domain.ErrArtifactMismatch):
		structured = apperrors.InternalError("built package does not match the requested package name", err)
	default:
		structured = apperrors.InternalError("failed to build package", err)
	}

	if hasToolErr {
		structured.WithField("stage", string(toolErr.Stage))
	}
	return structured
}
