package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"log/slog"

	"slotgateway/internal/audit"
	"slotgateway/internal/logger"
	"slotgateway/internal/models"
	"slotgateway/internal/quota"
	"slotgateway/internal/slots"
)

// CursorResetter rewinds the dispatcher's round-robin cursors.
type CursorResetter interface {
	ResetCursors()
}

// SlotEntry is one row of the roster listing.
type SlotEntry struct {
	ID         int    `json:"id"`
	Configured bool   `json:"configured"`
	Name       string `json:"name"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	QuotaInfo  string `json:"quotaInfo"`
	Activated  bool   `json:"activated"`
	Reserved   bool   `json:"reserved"`
	Tagged     bool   `json:"tagged"`
	CallsToday int64  `json:"callsToday"`
}

// ActivationRequest accepts the current field names and the legacy
// solo_llaves/activas lists. Legacy lists may carry numbers or numeric strings.
type ActivationRequest struct {
	Reset      bool  `json:"reset"`
	All        bool  `json:"all"`
	Slots      []int `json:"slots"`
	SoloLlaves []any `json:"solo_llaves"`
	Activas    []any `json:"activas"`
}

// ReservationRequest pins {slot:n} or clears with {slot:null}.
type ReservationRequest struct {
	Slot *int `json:"slot"`
}

type SlotHandler struct {
	pool    *slots.Pool
	cursors CursorResetter
	counter quota.Counter
	audit   *audit.Logger
	log     *slog.Logger
}

// NewSlotHandler builds the slot management handler. cursors and counter may be nil.
func NewSlotHandler(pool *slots.Pool, cursors CursorResetter, counter quota.Counter) *SlotHandler {
	return &SlotHandler{
		pool:    pool,
		cursors: cursors,
		counter: counter,
		log:     logger.WithComponent("admin.slots"),
	}
}

// WithAudit records every activation, reservation and reset change in l.
func (h *SlotHandler) WithAudit(l *audit.Logger) *SlotHandler {
	h.audit = l
	return h
}

func (h *SlotHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v0/management/audit", h.handleAudit)
	mux.HandleFunc("/v0/management/slots", h.handleSlots)
	mux.HandleFunc("/v0/management/slots/activation", h.handleActivation)
	mux.HandleFunc("/v0/management/slots/reservation", h.handleReservation)
	mux.HandleFunc("/v0/management/slots/reset", h.handleReset)
	mux.HandleFunc("/llaves", h.handleLegacy)
}

func (h *SlotHandler) handleSlots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	entries := h.roster(r)
	writeJSON(w, http.StatusOK, map[string]any{"data": entries, "total": len(entries)})
}

func (h *SlotHandler) roster(r *http.Request) []SlotEntry {
	all := h.pool.Registry().List()
	st := h.pool.Snapshot()

	counts := map[int]int64{}
	if h.counter != nil {
		ids := make([]int, len(all))
		for i, s := range all {
			ids[i] = s.ID
		}
		if c, err := h.counter.Snapshot(r.Context(), ids); err != nil {
			h.log.Warn("call counts unavailable", "error", err.Error())
		} else {
			counts = c
		}
	}

	out := make([]SlotEntry, 0, len(all))
	for _, s := range all {
		out = append(out, SlotEntry{
			ID:         s.ID,
			Configured: s.Configured(),
			Name:       s.Name,
			Provider:   string(s.Kind),
			Model:      s.Model,
			QuotaInfo:  s.QuotaInfo,
			Activated:  h.pool.IsActivated(s.ID),
			Reserved:   st.Reservation != nil && *st.Reservation == s.ID,
			Tagged:     s.TaggedFor(models.TaskReserved),
			CallsToday: counts[s.ID],
		})
	}
	return out
}

func (h *SlotHandler) handleActivation(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.pool.Snapshot())
	case http.MethodPost, http.MethodPut:
		spec, err := decodeActivation(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := h.pool.SetActivation(spec); err != nil {
			h.log.Warn("activation rejected", "error", err.Error())
			h.audit.Record(r, audit.EventActivationChanged, audit.ResultRejected, map[string]any{"error": err.Error()})
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		st := h.pool.Snapshot()
		h.audit.Record(r, audit.EventActivationChanged, audit.ResultSuccess, map[string]any{"mode": st.Mode, "activated": st.Activated})
		writeJSON(w, http.StatusOK, st)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *SlotHandler) handleReservation(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"reservation": h.pool.Snapshot().Reservation})
	case http.MethodPost, http.MethodPut:
		var req ReservationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
		if req.Slot == nil {
			h.pool.Unpin()
			h.audit.Record(r, audit.EventReservationCleared, audit.ResultSuccess, nil)
		} else if err := h.pool.Pin(*req.Slot); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, slots.ErrInvalidReservation) {
				status = http.StatusBadRequest
			}
			h.audit.Record(r, audit.EventReservationPinned, audit.ResultRejected, map[string]any{"slot": *req.Slot, "error": err.Error()})
			writeError(w, status, err.Error())
			return
		} else {
			h.audit.Record(r, audit.EventReservationPinned, audit.ResultSuccess, map[string]any{"slot": *req.Slot})
		}
		st := h.pool.Snapshot()
		resp := map[string]any{"reservation": st.Reservation}
		if len(st.Warnings) > 0 {
			resp["warnings"] = st.Warnings
		}
		writeJSON(w, http.StatusOK, resp)
	case http.MethodDelete:
		h.pool.Unpin()
		h.audit.Record(r, audit.EventReservationCleared, audit.ResultSuccess, nil)
		writeJSON(w, http.StatusOK, map[string]any{"reservation": nil})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleReset restores Default activation, clears the reservation and rewinds the cursors.
func (h *SlotHandler) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	h.pool.Reset()
	if h.cursors != nil {
		h.cursors.ResetCursors()
	}
	h.audit.Record(r, audit.EventPoolReset, audit.ResultSuccess, nil)
	writeJSON(w, http.StatusOK, h.pool.Snapshot())
}

// handleLegacy keeps the GET/POST /llaves contract of earlier clients.
func (h *SlotHandler) handleLegacy(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		entries := h.roster(r)
		configured := 0
		for _, e := range entries {
			if e.Configured {
				configured++
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"numLlaves": configured,
			"activas":   h.pool.Snapshot().Activated,
			"llaves":    entries,
		})
	case http.MethodPost:
		spec, err := decodeActivation(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := h.pool.SetActivation(spec); err != nil {
			h.audit.Record(r, audit.EventActivationChanged, audit.ResultRejected, map[string]any{"error": err.Error()})
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.audit.Record(r, audit.EventActivationChanged, audit.ResultSuccess, map[string]any{"activated": h.pool.Snapshot().Activated})
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"activas": h.pool.Snapshot().Activated,
			"mensaje": "Llaves actualizadas.",
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *SlotHandler) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	events := []audit.Event{}
	if h.audit != nil {
		events = h.audit.List(readLimit(r, 50))
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": events, "total": len(events)})
}

func decodeActivation(r *http.Request) (slots.ActivationSpec, error) {
	var req ActivationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return slots.ActivationSpec{}, fmt.Errorf("invalid JSON body: %w", err)
	}
	switch {
	case req.Reset:
		return slots.ActivationSpec{Reset: true}, nil
	case req.All:
		return slots.ActivationSpec{All: true}, nil
	case req.Slots != nil:
		return slots.ActivationSpec{Slots: req.Slots}, nil
	}

	raw := req.SoloLlaves
	if raw == nil {
		raw = req.Activas
	}
	if raw == nil {
		return slots.ActivationSpec{}, errors.New(`send {"reset":true}, {"all":true} or {"slots":[1,2]}`)
	}
	ids := make([]int, 0, len(raw))
	for _, v := range raw {
		switch t := v.(type) {
		case float64:
			ids = append(ids, int(t))
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
				ids = append(ids, n)
			}
		}
	}
	return slots.ActivationSpec{Slots: ids}, nil
}
