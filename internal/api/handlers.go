// Package api provides the public HTTP surface of the slot gateway.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"slotgateway/internal/core"
	"slotgateway/internal/logger"
	"slotgateway/internal/models"
	"slotgateway/internal/quota"
	"slotgateway/internal/slots"
)

// maxRequestBytes bounds the inbound body; the upstream ceiling is enforced by the dispatcher.
const maxRequestBytes = 8 << 20

type Handlers struct {
	gateway *core.Gateway
	pool    *slots.Pool
	counter quota.Counter
	log     *slog.Logger
}

// NewHandlers wires the public endpoints. counter may be nil.
func NewHandlers(g *core.Gateway, pool *slots.Pool, counter quota.Counter) *Handlers {
	return &Handlers{
		gateway: g,
		pool:    pool,
		counter: counter,
		log:     logger.WithComponent("api"),
	}
}

func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/generate", h.generate)
	mux.HandleFunc("/completar", h.generate)
	mux.HandleFunc("/v1/status", h.status)
	mux.HandleFunc("/estado-groq", h.status)
	mux.HandleFunc("/v1/models", h.models)
}

func (h *Handlers) generate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req models.GenerateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", err.Error())
			return
		}
		badRequest(w, err)
		return
	}
	if req.Prompt == "" && len(req.Messages) == 0 {
		if d, ok := req.Data["descripcion"].(string); ok {
			req.Prompt = d
		}
	}

	apiType := "generate"
	if r.URL.Path == "/completar" {
		apiType = "completar"
	}
	out, _, err := h.gateway.Generate(r.Context(), apiType, req)
	if err != nil {
		writeDispatchError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, out)
}

type slotStatus struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Activated  bool   `json:"activated"`
	Reserved   bool   `json:"reserved"`
	CallsToday int64  `json:"callsToday"`
}

type statusResponse struct {
	ConfiguredSlots int          `json:"configuredSlots"`
	Mode            slots.Mode   `json:"mode"`
	Activated       []int        `json:"activated"`
	Reservation     *int         `json:"reservation"`
	Slots           []slotStatus `json:"slots"`
	// Legacy fields read by existing clients of /estado-groq.
	NumLlaves   int `json:"numLlaves"`
	LlaveActiva int `json:"llaveActiva"`
}

func (h *Handlers) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	configured := h.pool.Registry().Configured()
	st := h.pool.Snapshot()

	ids := make([]int, len(configured))
	for i, s := range configured {
		ids[i] = s.ID
	}
	counts := map[int]int64{}
	if h.counter != nil {
		c, err := h.counter.Snapshot(r.Context(), ids)
		if err != nil {
			h.log.Warn("call counts unavailable", "error", err.Error())
		} else {
			counts = c
		}
	}

	resp := statusResponse{
		ConfiguredSlots: len(configured),
		Mode:            st.Mode,
		Activated:       st.Activated,
		Reservation:     st.Reservation,
		Slots:           make([]slotStatus, 0, len(configured)),
		NumLlaves:       len(configured),
	}
	if len(st.Activated) > 0 {
		resp.LlaveActiva = st.Activated[0]
	}
	for _, s := range configured {
		resp.Slots = append(resp.Slots, slotStatus{
			ID:         s.ID,
			Name:       s.Name,
			Provider:   string(s.Kind),
			Model:      s.Model,
			Activated:  h.pool.IsActivated(s.ID),
			Reserved:   st.Reservation != nil && *st.Reservation == s.ID,
			CallsToday: counts[s.ID],
		})
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

// models lists the distinct models reachable through configured slots.
func (h *Handlers) models(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	seen := map[string]string{}
	for _, s := range h.pool.Registry().Configured() {
		if _, ok := seen[s.Model]; !ok {
			seen[s.Model] = string(s.Kind)
		}
	}
	names := make([]string, 0, len(seen))
	for m := range seen {
		names = append(names, m)
	}
	sort.Strings(names)

	data := make([]map[string]any, 0, len(names))
	for _, m := range names {
		data = append(data, map[string]any{"id": m, "object": "model", "owned_by": seen[m]})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"object": "list", "data": data})
}

func writeJSONResponse(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, kind, message string) {
	writeJSONResponse(w, code, map[string]any{"error": map[string]any{"message": message, "kind": kind}})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

func badRequest(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
}

func retryAfterHeader(w http.ResponseWriter, seconds int) {
	if seconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
}
