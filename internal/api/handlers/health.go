package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"

	"github.com/nikhilbhutani/audioprep/internal/media"
)

// Pinger is any dependency with a liveness probe: pgxpool.Pool, cache.Cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	caps   media.Capabilities
	checks map[string]Pinger
}

func NewHealthHandler(caps media.Capabilities, checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{caps: caps, checks: checks}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz fails when a configured dependency is down. A missing transcoder is
// reported but does not fail readiness: native audio still works without it.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := h.checks[name].Ping(r.Context()); err != nil {
			checks[name] = "unhealthy: " + err.Error()
		} else {
			checks[name] = "ok"
		}
	}

	status := http.StatusOK
	for _, v := range checks {
		if v != "ok" {
			status = http.StatusServiceUnavailable
			break
		}
	}

	transcoder := "unavailable"
	if h.caps.TranscoderAvailable {
		transcoder = "available"
	}

	writeJSON(w, status, map[string]interface{}{
		"status":     statusStr(status),
		"checks":     checks,
		"transcoder": transcoder,
	})
}

func statusStr(code int) string {
	if code == http.StatusOK {
		return "ok"
	}
	return "unhealthy"
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
