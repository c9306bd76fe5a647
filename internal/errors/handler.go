package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-chi/render"

	"langworker/internal/engine"
	"langworker/internal/infrastructure"
)

// ErrorHandler converts errors into RFC 7807 responses
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
	retryAfter   time.Duration
}

// NewErrorHandler creates a new error handler. retryAfter is the hint sent
// with 503 responses; it is rounded up to whole seconds.
func NewErrorHandler(logger *slog.Logger, includeStack bool, retryAfter time.Duration) *ErrorHandler {
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return &ErrorHandler{
		logger:       infrastructure.WithComponent(logger, "error_handler"),
		includeStack: includeStack,
		retryAfter:   retryAfter,
	}
}

// RetryAfterSeconds is the Retry-After value sent with 503 responses.
func (h *ErrorHandler) RetryAfterSeconds() int {
	return int(math.Ceil(h.retryAfter.Seconds()))
}

// HandleError writes exactly one problem response for err
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}
	ctx := r.Context()
	problem := h.Problem(ctx, err, r.URL.Path)

	level := slog.LevelWarn
	if problem.Status >= http.StatusInternalServerError && problem.Status != http.StatusServiceUnavailable {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, "request failed",
		slog.String("error", err.Error()),
		slog.Int("status", problem.Status),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path))

	if problem.Status == http.StatusServiceUnavailable || problem.Status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", strconv.Itoa(h.RetryAfterSeconds()))
	}
	render.Render(w, r, problem)
}

// Problem converts err to problem details. It is shared by the HTTP and
// WebSocket transports.
func (h *ErrorHandler) Problem(ctx context.Context, err error, instance string) *ProblemDetails {
	problem := h.toProblem(err, instance)
	if traceID := infrastructure.GetTraceID(ctx); traceID != "" {
		problem.WithExtension("trace_id", traceID)
	}
	if problem.Status == http.StatusServiceUnavailable {
		problem.WithExtension("retry_after", h.RetryAfterSeconds())
	}
	return problem
}

func (h *ErrorHandler) toProblem(err error, instance string) *ProblemDetails {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		p := NewProblemDetails(http.StatusBadRequest, TypeBadPayload, "Bad Payload", reqErr.Message, instance).
			WithExtension("error_code", string(reqErr.Code))
		if len(reqErr.Fields) > 0 {
			p.WithExtension("errors", reqErr.Fields)
		}
		return p
	}

	if errors.Is(err, engine.ErrCanceled) {
		return NewProblemDetails(http.StatusServiceUnavailable, TypeCancelled, "Request Cancelled",
			"The request was cancelled before the engine accepted it", instance).
			WithExtension("error_code", "REQUEST_CANCELLED")
	}

	var ae *engine.AnalysisError
	if errors.As(err, &ae) {
		return analysisProblem(ae, instance)
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		p := NewProblemDetails(apiErr.StatusCode, problemTypeFor(apiErr.StatusCode), http.StatusText(apiErr.StatusCode),
			apiErr.Message, instance).
			WithExtension("error_code", apiErr.ErrorCode)
		if apiErr.Details != nil {
			p.WithExtension("details", apiErr.Details)
		}
		return p
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewProblemDetails(http.StatusServiceUnavailable, TypeTimeout, "Request Timeout",
			"The request took too long to process", instance).
			WithExtension("error_code", string(engine.Timeout))
	}

	return NewProblemDetails(http.StatusInternalServerError, TypeInternal, "Internal Server Error",
		"An unexpected error occurred while processing your request", instance).
		WithExtension("error_code", "INTERNAL_SERVER_ERROR")
}

func analysisProblem(ae *engine.AnalysisError, instance string) *ProblemDetails {
	var p *ProblemDetails
	switch ae.Code {
	case engine.InvalidInput:
		detail := "The text cannot be analyzed"
		if ae.Err != nil {
			detail = ae.Err.Error()
		}
		p = NewProblemDetails(http.StatusBadRequest, TypeInvalidInput, "Invalid Input", detail, instance)
	case engine.Timeout:
		p = NewProblemDetails(http.StatusServiceUnavailable, TypeTimeout, "Analysis Timeout",
			"The engine did not finish within its deadline", instance)
	case engine.Overloaded:
		p = NewProblemDetails(http.StatusServiceUnavailable, TypeOverloaded, "Engine Overloaded",
			"The engine is busy, retry later", instance)
	default:
		p = NewProblemDetails(http.StatusInternalServerError, TypeEngineFault, "Engine Fault",
			"The engine failed while analyzing the text", instance)
	}
	return p.WithExtension("error_code", string(ae.Code))
}

func problemTypeFor(status int) string {
	switch status {
	case http.StatusNotFound:
		return TypeNotFound
	case http.StatusMethodNotAllowed:
		return TypeMethod
	case http.StatusTooManyRequests:
		return TypeRateLimit
	case http.StatusRequestEntityTooLarge:
		return TypePayloadTooLarge
	case http.StatusServiceUnavailable:
		return TypeServiceDown
	case http.StatusBadRequest:
		return TypeBadPayload
	case http.StatusForbidden:
		return TypeForbidden
	}
	return TypeInternal
}

// HandlePanic recovers from panics and returns RFC 7807 error
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	ctx := r.Context()
	h.logger.ErrorContext(ctx, "panic recovered",
		slog.Any("panic", recovered),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("stack", string(debug.Stack())))

	problem := h.toProblem(ErrInternalServer, r.URL.Path)
	if traceID := infrastructure.GetTraceID(ctx); traceID != "" {
		problem.WithExtension("trace_id", traceID)
	}
	if h.includeStack {
		problem.WithExtension("panic", fmt.Sprintf("%v", recovered))
	}
	render.Render(w, r, problem)
}

// NotFound returns a standard 404 error
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.HandleError(w, r, ErrNotFound)
}

// MethodNotAllowed returns a standard 405 error
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.HandleError(w, r, New(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
		fmt.Sprintf("Method %s is not allowed for this endpoint", r.Method)))
}
