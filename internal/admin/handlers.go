// Package admin serves the management surface: slot roster, activation,
// reservation, and the usage and trace logs.
package admin

import (
	"encoding/json"
	"net/http"
	"strconv"

	"log/slog"

	"slotgateway/internal/config"
	"slotgateway/internal/logger"
	"slotgateway/internal/trace"
	"slotgateway/internal/usage"
)

type Handlers struct {
	cfg   config.Config
	usage usage.Sink
	trace *trace.Store
	slots *SlotHandler
	log   *slog.Logger
}

func NewHandlers(cfg config.Config, usageSink usage.Sink, traceStore *trace.Store, slotHandler *SlotHandler) *Handlers {
	return &Handlers{
		cfg:   cfg,
		usage: usageSink,
		trace: traceStore,
		slots: slotHandler,
		log:   logger.WithComponent("admin"),
	}
}

func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v0/management/config", h.getConfig)
	mux.HandleFunc("/v0/management/usage", h.getUsage)
	mux.HandleFunc("/v0/management/traces", h.getTraces)

	if h.slots != nil {
		h.slots.RegisterRoutes(mux)
	}
}

func (h *Handlers) getConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w, r)
		return
	}
	h.log.Debug("admin: config accessed", "path", r.URL.Path)
	writeJSON(w, http.StatusOK, h.cfg.Snapshot())
}

func (h *Handlers) getUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w, r)
		return
	}
	limit := readLimit(r, 50)
	records := h.usage.List(limit)
	h.log.Debug("admin: usage accessed", "path", r.URL.Path, "limit", limit)
	writeJSON(w, http.StatusOK, map[string]any{"data": records, "total": len(records)})
}

// getTraces lists recent events, or every event of one request with ?requestId=.
func (h *Handlers) getTraces(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w, r)
		return
	}
	if id := r.URL.Query().Get("requestId"); id != "" {
		events := h.trace.ByRequest(id)
		writeJSON(w, http.StatusOK, map[string]any{"data": events, "total": len(events)})
		return
	}
	limit := readLimit(r, 50)
	events := h.trace.List(limit)
	h.log.Debug("admin: traces accessed", "path", r.URL.Path, "limit", limit)
	writeJSON(w, http.StatusOK, map[string]any{"data": events, "total": len(events)})
}

func (h *Handlers) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.log.Warn("admin: method not allowed", "path", r.URL.Path, "method", r.Method)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func readLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	if v > 500 {
		return 500
	}
	return v
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]any{"error": map[string]any{"message": message, "code": code}})
}
