package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/mir00r/stand-router/internal/domain"
	apperrors "github.com/mir00r/stand-router/internal/errors"
	"github.com/mir00r/stand-router/internal/registry"
	"github.com/mir00r/stand-router/pkg/logger"
)

// maxAdminBody bounds config and reload request bodies
const maxAdminBody = 1 << 20

// Reloader reloads user_config from the config file or an uploaded document
type Reloader interface {
	ReloadFromFile() error
	ReloadFromAPI(data []byte) error
	GetReloadStats() map[string]interface{}
}

// AdminHandler provides administrative API endpoints
type AdminHandler struct {
	registry  *registry.Registry
	reloader  Reloader
	metrics   domain.Metrics
	logger    *logger.Logger
	startTime time.Time
}

// NewAdminHandler creates a new admin handler. reloader may be nil, in which
// case the reload endpoint is not registered.
func NewAdminHandler(reg *registry.Registry, reloader Reloader, metrics domain.Metrics, log *logger.Logger) *AdminHandler {
	return &AdminHandler{
		registry:  reg,
		reloader:  reloader,
		metrics:   metrics,
		logger:    log.WithField("component", "admin_api"),
		startTime: time.Now(),
	}
}

// BackendResponse represents backend information in API responses
type BackendResponse struct {
	domain.BackendDescription
	Metrics map[string]interface{} `json:"metrics,omitempty"`
}

// ConfigResponse is the live config of one backend
type ConfigResponse struct {
	Name    string                 `json:"name"`
	Config  map[string]interface{} `json:"config"`
	Version uint64                 `json:"version"`
}

// RegisterRoutes mounts the admin endpoints on r
func (h *AdminHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/backends", h.ListBackendsHandler).Methods(http.MethodGet)
	r.HandleFunc("/backends/{name}/config", h.GetBackendConfigHandler).Methods(http.MethodGet)
	r.HandleFunc("/backends/{name}/config", h.PutBackendConfigHandler).Methods(http.MethodPut)
	r.HandleFunc("/stats", h.GetStatsHandler).Methods(http.MethodGet)
	if h.reloader != nil {
		r.HandleFunc("/reload", h.ReloadHandler).Methods(http.MethodPost)
	}
}

// ListBackendsHandler handles GET /admin/backends
func (h *AdminHandler) ListBackendsHandler(w http.ResponseWriter, r *http.Request) {
	descriptions := h.registry.Describe()

	response := make([]BackendResponse, 0, len(descriptions))
	for _, desc := range descriptions {
		br := BackendResponse{BackendDescription: desc}
		if h.metrics != nil {
			br.Metrics = h.metrics.GetBackendStats(desc.Name)
		}
		response = append(response, br)
	}

	writeJSON(w, http.StatusOK, response)

	h.logger.WithFields(map[string]interface{}{
		"action": "list_backends",
		"count":  len(response),
	}).Debug("Listed backends")
}

// GetBackendConfigHandler handles GET /admin/backends/{name}/config
func (h *AdminHandler) GetBackendConfigHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	handle, ok := h.registry.Lookup(name)
	if !ok {
		writeError(w, apperrors.NewUnknownTargetError(name))
		return
	}

	desc := handle.Describe()
	writeJSON(w, http.StatusOK, ConfigResponse{
		Name:    desc.Name,
		Config:  desc.Config,
		Version: desc.ConfigVersion,
	})
}

// PutBackendConfigHandler handles PUT /admin/backends/{name}/config. The body
// is the complete config blob; keys it omits return to their defaults.
func (h *AdminHandler) PutBackendConfigHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	handle, ok := h.registry.Lookup(name)
	if !ok {
		writeError(w, apperrors.NewUnknownTargetError(name))
		return
	}

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAdminBody))
	decoder.UseNumber()

	var blob domain.ConfigBlob
	if err := decoder.Decode(&blob); err != nil {
		writeError(w, apperrors.NewInvalidRequestError("config must be a JSON object"))
		return
	}
	if blob == nil {
		blob = domain.ConfigBlob{}
	}

	if err := handle.ApplyConfig(blob); err != nil {
		h.logger.WithError(err).WithField("backend", name).Warn("Config push rejected")
		writeError(w, err)
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"action":  "apply_config",
		"backend": name,
		"config":  blob,
		"subject": subjectOf(r),
	}).Info("Applied backend config")

	w.WriteHeader(http.StatusNoContent)
}

// ReloadHandler handles POST /admin/reload. An empty body rereads the config
// file; a non-empty body is applied as a YAML config document.
func (h *AdminHandler) ReloadHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAdminBody))
	if err != nil {
		writeError(w, apperrors.NewInvalidRequestError("request body too large or unreadable"))
		return
	}

	if len(bytes.TrimSpace(body)) == 0 {
		err = h.reloader.ReloadFromFile()
	} else {
		err = h.reloader.ReloadFromAPI(body)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"action":  "reload",
		"subject": subjectOf(r),
	}).Info("Configuration reloaded via admin API")

	writeJSON(w, http.StatusOK, h.reloader.GetReloadStats())
}

// GetStatsHandler handles GET /admin/stats
func (h *AdminHandler) GetStatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"registry": h.registry.GetStats(),
		"uptime":   time.Since(h.startTime).String(),
	}
	if h.metrics != nil {
		stats["dispatch"] = h.metrics.GetStats()
	}
	if h.reloader != nil {
		stats["reload"] = h.reloader.GetReloadStats()
	}

	writeJSON(w, http.StatusOK, stats)
}
