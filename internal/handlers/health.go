package handlers

import (
	"context"
	"net/http"
	"time"
)

var startTime = time.Now()

// ReadinessProbe reports whether a downstream dependency is reachable.
type ReadinessProbe func(ctx context.Context) error

// HealthHandlers serves liveness and readiness endpoints.
type HealthHandlers struct {
	probes map[string]ReadinessProbe
}

// NewHealthHandlers constructs health handlers over the given named probes.
func NewHealthHandlers(probes map[string]ReadinessProbe) *HealthHandlers {
	return &HealthHandlers{probes: probes}
}

// Healthz responds with a simple status payload for liveness monitoring.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(startTime).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Readyz runs every probe and reports per-dependency readiness.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := make(map[string]string, len(h.probes))
	ready := true
	for name, probe := range h.probes {
		if probe == nil {
			continue
		}
		if err := probe(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "not_ready"
	}
	writeJSONResponse(w, status, map[string]any{
		"status": state,
		"checks": checks,
	})
}
