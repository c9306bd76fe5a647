package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/render"

	"langworker/internal/engine"
	apierrors "langworker/internal/errors"
	"langworker/internal/infrastructure"
	api "langworker/pkg/contracts/api/v1"
)

// Checker is the check pipeline, normally a *services.CheckService
type Checker interface {
	Check(ctx context.Context, req api.CheckRequest) (*api.CheckResponse, error)
	Language() string
	Kind() engine.Kind
}

// CheckHandler serves POST / and POST /check
type CheckHandler struct {
	service      Checker
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewCheckHandler creates a new check handler
func NewCheckHandler(service Checker, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *CheckHandler {
	return &CheckHandler{
		service:      service,
		logger:       infrastructure.WithComponent(logger, "check_handler"),
		errorHandler: errorHandler,
	}
}

// Check decodes the body, runs the check and writes exactly one response
func (h *CheckHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := h.decode(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	resp, err := h.service.Check(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			h.logger.DebugContext(ctx, "client went away before the response was written")
		}
		h.respondError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
	h.logger.DebugContext(ctx, "request responded", slog.String("state", "responded"), slog.Int("status", http.StatusOK))
}

func (h *CheckHandler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	h.errorHandler.HandleError(w, r, err)
	h.logger.DebugContext(r.Context(), "request responded", slog.String("state", "responded"), slog.String("error", err.Error()))
}

// decode reads the whole body. JSON bodies and forms carrying a text field
// are decoded into a CheckRequest; anything else is taken as the text
// itself, which covers clients such as curl -d that label raw text as a form.
func (h *CheckHandler) decode(r *http.Request) (api.CheckRequest, error) {
	var req api.CheckRequest
	if r.Body == nil {
		return req, apierrors.NewBadPayload("request body is empty", nil)
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return req, apierrors.ErrPayloadTooLarge
		}
		return req, apierrors.NewBadPayload("failed to read request body", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return req, apierrors.NewBadPayload("request body is empty", nil)
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		if err := render.DecodeJSON(bytes.NewReader(body), &req); err != nil {
			return req, apierrors.NewBadPayload("malformed JSON body", err)
		}
	case mediaType == "application/x-www-form-urlencoded" && hasTextField(body):
		if err := render.DecodeForm(bytes.NewReader(body), &req); err != nil {
			return req, apierrors.NewBadPayload("malformed form body", err)
		}
	default:
		req.Text = string(body)
	}

	if strings.TrimSpace(req.Text) == "" {
		return req, &apierrors.RequestError{
			Code:    apierrors.BadPayload,
			Message: "text is required",
			Fields:  []apierrors.ValidationError{{Field: "text", Message: "is required"}},
		}
	}
	return req, nil
}

func hasTextField(body []byte) bool {
	values, err := url.ParseQuery(string(body))
	return err == nil && values.Has("text")
}
