package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "langworker/internal/errors"
	"langworker/internal/infrastructure"
	"langworker/internal/shared/testutil"
)

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func TestRequestID(t *testing.T) {
	var seen, trace string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		trace = infrastructure.GetTraceID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, trace)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "client-id")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "client-id", seen)
	assert.Equal(t, "client-id", rec.Header().Get(RequestIDHeader))
}

func TestStructuredLogger(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	h := RequestID(StructuredLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/check", nil))

	testutil.AssertLogContains(t, logs, slog.LevelError, "request completed")
	r, ok := logs.Find("request completed")
	require.True(t, ok)
	assert.Equal(t, int64(http.StatusServiceUnavailable), r.Attrs["status"])
	assert.Equal(t, "/check", r.Attrs["path"])
}

func TestRateLimiter(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	eh := apierrors.NewErrorHandler(logger, false, time.Second)
	rl := NewRateLimiter(0.001, 2, eh, logger)
	h := rl.Handler(http.HandlerFunc(okHandler))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestMaxBodyBytes(t *testing.T) {
	var readErr error
	h := MaxBodyBytes(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("abc")))
	assert.NoError(t, readErr)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("abcdef")))
	var maxErr *http.MaxBytesError
	assert.ErrorAs(t, readErr, &maxErr)
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		origins     []string
		origin      string
		method      string
		wantStatus  int
		wantAllowed string
	}{
		{
			name:        "wildcard",
			origins:     []string{"*"},
			origin:      "https://site.example",
			method:      http.MethodPost,
			wantStatus:  http.StatusOK,
			wantAllowed: "*",
		},
		{
			name:        "listed origin",
			origins:     []string{"https://site.example"},
			origin:      "https://site.example",
			method:      http.MethodPost,
			wantStatus:  http.StatusOK,
			wantAllowed: "https://site.example",
		},
		{
			name:       "unlisted origin",
			origins:    []string{"https://site.example"},
			origin:     "https://evil.example",
			method:     http.MethodPost,
			wantStatus: http.StatusOK,
		},
		{
			name:        "preflight",
			origins:     []string{"*"},
			origin:      "https://site.example",
			method:      http.MethodOptions,
			wantStatus:  http.StatusNoContent,
			wantAllowed: "*",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := CORS(CORSConfig{AllowedOrigins: tt.origins})(http.HandlerFunc(okHandler))
			req := httptest.NewRequest(tt.method, "/", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.method == http.MethodOptions {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantAllowed, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(okHandler)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestOTelMiddleware(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	providers, err := infrastructure.InitializeOTel(&infrastructure.OTelConfig{
		ServiceName:   infrastructure.ServiceName,
		TraceExporter: "none",
	}, logger)
	require.NoError(t, err)

	m, err := NewOTelMiddleware(providers)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(RequestID, m.Handler)
	r.Get("/health", okHandler)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
