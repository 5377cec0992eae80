package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

// Pinger is a dependency that can report its own connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler provides health check endpoints
type HealthHandler struct {
	deps    map[string]Pinger
	started time.Time
}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{deps: map[string]Pinger{}, started: time.Now()}
}

// AddDependency registers an optional backing store under name.
func (h *HealthHandler) AddDependency(name string, p Pinger) {
	if p != nil {
		h.deps[name] = p
	}
}

// RegisterRoutes registers health endpoints
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/health/deps", h.handleDeps)
}

// handleHealth is the liveness probe. Optional stores never fail it.
func (h *HealthHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	status := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.started).Round(time.Second).String(),
	}
	if failing := h.check(r.Context(), 2*time.Second); len(failing) > 0 {
		status["status"] = "degraded"
		status["failing"] = failing
	}
	writeJSONResponse(w, http.StatusOK, status)
}

// handleDeps reports each dependency and answers 503 when any is unreachable.
func (h *HealthHandler) handleDeps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.deps))
	for name := range h.deps {
		names = append(names, name)
	}
	sort.Strings(names)

	deps := make(map[string]any, len(names))
	code := http.StatusOK
	for _, name := range names {
		start := time.Now()
		entry := map[string]any{"status": "healthy"}
		if err := h.deps[name].Ping(ctx); err != nil {
			entry["status"] = "unhealthy"
			entry["error"] = err.Error()
			code = http.StatusServiceUnavailable
		}
		entry["latency_ms"] = time.Since(start).Milliseconds()
		deps[name] = entry
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"timestamp":    time.Now().UTC(),
		"dependencies": deps,
	})
}

func (h *HealthHandler) check(ctx context.Context, timeout time.Duration) []string {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var failing []string
	for name, p := range h.deps {
		if err := p.Ping(ctx); err != nil {
			failing = append(failing, name)
		}
	}
	sort.Strings(failing)
	return failing
}
