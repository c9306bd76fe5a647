package services

import (
	"context"
	"log/slog"
	"time"

	"langworker/internal/bundle"
	"langworker/internal/engine"
	"langworker/internal/guard"
	"langworker/internal/infrastructure"
	api "langworker/pkg/contracts/api/v1"
)

// Resource is the loaded-resource view the health checks need
type Resource interface {
	Loaded() bool
	Path() string
	Language() string
	Kind() engine.Kind
	Manifest() bundle.Manifest
}

// Gate is the admission view the health checks need
type Gate interface {
	Accepting() bool
	Stats() guard.Stats
}

// HealthService provides health check functionality
type HealthService struct {
	version   string
	resource  Resource
	gate      Gate
	startTime time.Time
	logger    *slog.Logger
}

// NewHealthService creates a new health service. resource and gate may be
// nil while the process is still starting; the service then reports
// unhealthy.
func NewHealthService(version string, resource Resource, gate Gate, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		version:   version,
		resource:  resource,
		gate:      gate,
		startTime: time.Now(),
		logger:    infrastructure.WithComponent(logger, "health_service"),
	}
}

// Healthy reports whether the resource is loaded and the guard is accepting work
func (hs *HealthService) Healthy() bool {
	return hs.resource != nil && hs.resource.Loaded() && hs.gate != nil && hs.gate.Accepting()
}

// HealthCheck returns the full health status. ok is false when the service
// should answer 503.
func (hs *HealthService) HealthCheck(ctx context.Context) (api.HealthResponse, bool) {
	ok := hs.Healthy()
	status := api.HealthResponse{
		Status:    api.StatusHealthy,
		Timestamp: time.Now(),
		Version:   hs.version,
	}
	if !ok {
		status.Status = api.StatusUnhealthy
	}

	if hs.resource != nil {
		m := hs.resource.Manifest()
		status.Resource = &api.Resource{
			Loaded:   hs.resource.Loaded(),
			Path:     hs.resource.Path(),
			Language: hs.resource.Language(),
			Kind:     string(hs.resource.Kind()),
			Name:     m.Name,
			Version:  m.Version,
		}
	}
	if hs.gate != nil {
		st := hs.gate.Stats()
		status.Engine = &api.EngineInfo{
			Accepting:   hs.gate.Accepting(),
			MaxInFlight: st.MaxInFlight,
			InFlight:    st.InFlight,
			Queued:      st.Queued,
			Abandoned:   st.Abandoned,
		}
	}

	hs.logger.DebugContext(ctx, "health check",
		slog.String("status", status.Status),
		slog.Duration("uptime", time.Since(hs.startTime)))
	return status, ok
}

// ReadinessCheck is the minimal form of HealthCheck for orchestrators
func (hs *HealthService) ReadinessCheck(ctx context.Context) (api.HealthResponse, bool) {
	ok := hs.Healthy()
	status := api.HealthResponse{Status: api.StatusReady, Timestamp: time.Now(), Version: hs.version}
	if !ok {
		status.Status = api.StatusNotReady
	}
	return status, ok
}

// LivenessCheck only reports that the process is serving HTTP
func (hs *HealthService) LivenessCheck(ctx context.Context) api.HealthResponse {
	return api.HealthResponse{Status: api.StatusAlive, Timestamp: time.Now(), Version: hs.version}
}

// Uptime returns how long the service has been running
func (hs *HealthService) Uptime() time.Duration {
	return time.Since(hs.startTime)
}
