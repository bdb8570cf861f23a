// ABOUTME: HTTP handler for the exporter health endpoint
// ABOUTME: Reports control plane reachability and reference-data cache status

package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/markalston/cinder-capacity-exporter/cache"
)

// ControlPlane is the slice of the storage client the health check needs.
type ControlPlane interface {
	Authenticate() error
}

type Handler struct {
	controlPlane      ControlPlane
	vsphereConfigured bool
	cache             *cache.Cache
}

func NewHandler(controlPlane ControlPlane, vsphereConfigured bool, dataCache *cache.Cache) *Handler {
	return &Handler{
		controlPlane:      controlPlane,
		vsphereConfigured: vsphereConfigured,
		cache:             dataCache,
	}
}

// Health returns exporter health including control plane and cache status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	_, typesCached := h.cache.Get("volume_types")
	_, shardsCached := h.cache.Get("shards")

	resp := map[string]interface{}{
		"status":     "ok",
		"cinder_api": "ok",
		"vcenter":    "not_configured",
		"cache_status": map[string]bool{
			"volume_types_cached": typesCached,
			"shards_cached":       shardsCached,
		},
	}

	if h.vsphereConfigured {
		resp["vcenter"] = "configured"
	}

	code := http.StatusOK
	if err := h.controlPlane.Authenticate(); err != nil {
		slog.Warn("Health check could not reach the control plane", "error", err)
		resp["status"] = "degraded"
		resp["cinder_api"] = "error"
		code = http.StatusServiceUnavailable
	}

	h.writeJSON(w, code, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
