package handler

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/mir00r/stand-router/internal/registry"
)

// HealthHandler provides health, readiness and liveness endpoints
type HealthHandler struct {
	registry     *registry.Registry
	startTime    time.Time
	version      string
	shuttingDown atomic.Bool
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(reg *registry.Registry, version string) *HealthHandler {
	return &HealthHandler{
		registry:  reg,
		startTime: time.Now(),
		version:   version,
	}
}

// SetShuttingDown makes readiness fail so traffic drains before shutdown
func (h *HealthHandler) SetShuttingDown() {
	h.shuttingDown.Store(true)
}

// HealthHandler reports the registered backends
func (h *HealthHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	statusCode := http.StatusOK
	if h.registry.Count() == 0 {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"version":   h.version,
		"backends":  h.registry.Names(),
		"registry":  h.registry.GetStats(),
	})
}

// ReadinessHandler checks if the application is ready to serve traffic
func (h *HealthHandler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	statusCode := http.StatusOK
	switch {
	case h.shuttingDown.Load():
		status = "shutting_down"
		statusCode = http.StatusServiceUnavailable
	case !h.registry.Sealed():
		status = "starting"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"version":   h.version,
		"uptime":    time.Since(h.startTime).String(),
	})
}

// LivenessHandler checks if the application is alive
func (h *HealthHandler) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().UTC(),
		"version":   h.version,
		"uptime":    time.Since(h.startTime).String(),
	})
}
