package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"langworker/internal/services"
	"langworker/pkg/contracts"
)

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	service *services.HealthService
	logger  *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(service *services.HealthService, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// Routes returns the health routes, mounted under /health
func (h *HealthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.HealthCheck)
	r.Get("/live", h.LivenessCheck)
	r.Get("/ready", h.ReadinessCheck)
	return r
}

// HealthCheck handles GET /health: 200 while the resource is loaded and the
// guard admits work, 503 otherwise
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, ok := h.service.HealthCheck(r.Context())
	if !ok {
		h.logger.WarnContext(r.Context(), "health check failed", slog.String("status", status.Status))
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, status)
}

// ReadinessCheck handles GET /health/ready
func (h *HealthHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	status, ok := h.service.ReadinessCheck(r.Context())
	if !ok {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, status)
}

// LivenessCheck handles GET /health/live
func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.LivenessCheck(r.Context()))
}

// Version handles GET /version
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, contracts.GetVersionInfo())
}
