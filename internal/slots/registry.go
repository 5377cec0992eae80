package slots

import (
	"log/slog"
	"strconv"

	"slotgateway/internal/logger"
)

// DefaultModels holds the per-provider model used when a slot has no override.
var DefaultModels = map[ProviderKind]string{
	KindGroq:        "openai/gpt-oss-120b",
	KindMoonshot:    "kimi-k2.5",
	KindHuggingFace: "meta-llama/Llama-4-Maverick-17B-128E-Instruct:groq",
	KindOpenAI:      "gpt-4o-mini",
	KindMock:        "mock-model",
}

// Registry is the ordered, immutable slot roster.
type Registry struct {
	slots     []Slot
	byID      map[int]int
	overrides map[int]bool
	defaults  map[ProviderKind]string
	log       *slog.Logger
}

// NewRegistry copies defs into a registry. Slots keep their configured identity;
// blank credentials are retained so later slots are never renumbered.
// defaults overrides entries of DefaultModels; nil keeps the package defaults.
func NewRegistry(defs []Slot, defaults map[ProviderKind]string) *Registry {
	r := &Registry{
		byID:      make(map[int]int, len(defs)),
		overrides: make(map[int]bool, len(defs)),
		defaults:  make(map[ProviderKind]string, len(DefaultModels)),
		log:       logger.WithComponent("slots"),
	}
	for k, v := range DefaultModels {
		r.defaults[k] = v
	}
	for k, v := range defaults {
		if v != "" {
			r.defaults[k] = v
		}
	}

	list := make([]Slot, 0, len(defs))
	for _, d := range defs {
		if d.ID < 1 {
			continue
		}
		if _, dup := r.byID[d.ID]; dup {
			r.log.Warn("duplicate slot id ignored", "slot_id", d.ID)
			continue
		}
		d.Model = NormalizeModel(d.Model)
		if d.Model != "" {
			r.overrides[d.ID] = true
		} else {
			d.Model = r.defaults[d.Kind]
		}
		if d.Name == "" {
			d.Name = "Slot " + strconv.Itoa(d.ID)
		}
		r.byID[d.ID] = 0
		list = append(list, d)
	}
	sortByID(list)
	for i, s := range list {
		r.byID[s.ID] = i
	}
	r.slots = list

	r.log.Info("slot registry loaded",
		slog.Int("slots", len(list)),
		slog.Any("configured", ids(r.Configured())),
	)
	return r
}

// List returns every slot in identity order.
func (r *Registry) List() []Slot {
	out := make([]Slot, len(r.slots))
	copy(out, r.slots)
	return out
}

// Get returns the slot with the given identity.
func (r *Registry) Get(id int) (Slot, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Slot{}, false
	}
	return r.slots[i], true
}

// Configured returns the slots that carry a credential.
func (r *Registry) Configured() []Slot {
	out := make([]Slot, 0, len(r.slots))
	for _, s := range r.slots {
		if s.Configured() {
			out = append(out, s)
		}
	}
	return out
}

// ModelFor returns the slot's override, else its provider default. Unknown ids return "".
func (r *Registry) ModelFor(id int) string {
	s, ok := r.Get(id)
	if !ok {
		return ""
	}
	return s.Model
}

// HasOverride reports whether the slot's model came from configuration.
func (r *Registry) HasOverride(id int) bool {
	return r.overrides[id]
}
