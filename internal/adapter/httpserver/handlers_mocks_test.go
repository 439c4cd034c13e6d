package httpserver

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/SYSCYCLE/apk-builder/internal/domain"
	"github.com/SYSCYCLE/apk-builder/internal/platform/config"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockAppService struct {
	generateFn func(ctx context.Context, req domain.BuildRequest) (*domain.Result, error)
	disposeFn  func(ctx context.Context, result *domain.Result)

	mu       sync.Mutex
	disposed []*domain.Result
}

func (m *mockAppService) Generate(ctx context.Context, req domain.BuildRequest) (*domain.Result, error) {
	if m.generateFn != nil {
		return m.generateFn(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAppService) Dispose(ctx context.Context, result *domain.Result) {
	if m.disposeFn != nil {
		m.disposeFn(ctx, result)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disposed = append(m.disposed, result)
}

func (m *mockAppService) disposedResults() []*domain.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Result(nil), m.disposed...)
}

type countingRecorder struct {
	counts map[string]int
}

func (r *countingRecorder) Record(errType string) {
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[errType]++
}

// --- Test helpers ---

func newTestServer(t *testing.T, app appService, opts ...func(*Server)) *Server {
	t.Helper()

	srv := &Server{
		echo: echo.New(),
		config: &config.Config{
			Port:              "0",
			MaxUploadSize:     "2M",
			GenerateRateLimit: 100,
			GenerateRateBurst: 100,
		},
		app:       app,
		startTime: time.Now(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	// Register routes so endpoints are available for testing
	srv.registerRoutes()

	return srv
}

func withHealthChecks(checks ...HealthCheck) func(*Server) {
	return func(s *Server) {
		s.healthChecks = checks
	}
}

func withConfig(mutate func(*config.Config)) func(*Server) {
	return func(s *Server) {
		mutate(s.config)
	}
}

func withErrorRecorder(r errorRecorder) func(*Server) {
	return func(s *Server) {
		s.errorMetrics = r
	}
}

type formFile struct {
	field    string
	filename string
	body     []byte
}

// multipartRequest builds a POST /generate-apk request from text fields and files.
func multipartRequest(t *testing.T, fields map[string]string, files ...formFile) *http.Request {
	t.Helper()

	body, contentType := multipartBody(t, fields, files...)
	req := httptest.NewRequest(http.MethodPost, "/generate-apk", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	req.RemoteAddr = testRemoteAddr
	return req
}

func multipartBody(t *testing.T, fields map[string]string, files ...formFile) (*bytes.Buffer, string) {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.field, f.filename)
		require.NoError(t, err)
		_, err = part.Write(f.body)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return &body, w.FormDataContentType()
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}
