// Package slots owns the credential roster of the gateway: the immutable
// Registry loaded at start, and the Pool that tracks which slots are
// activated and which one, if any, is reserved for structured generation.
package slots

import (
	"sort"
	"strings"

	"slotgateway/internal/models"
)

// ProviderKind names the backend family a slot talks to.
type ProviderKind string

const (
	KindGroq        ProviderKind = "groq"
	KindMoonshot    ProviderKind = "moonshot"
	KindHuggingFace ProviderKind = "huggingface"
	KindOpenAI      ProviderKind = "openai"
	KindMock        ProviderKind = "mock"
)

// ParseKind normalizes a provider name. Unknown values yield "", false.
func ParseKind(raw string) (ProviderKind, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "groq", "kimi":
		return KindGroq, true
	case "moonshot":
		return KindMoonshot, true
	case "huggingface", "hf":
		return KindHuggingFace, true
	case "openai":
		return KindOpenAI, true
	case "mock":
		return KindMock, true
	}
	return "", false
}

// CompoundModel is the model that marks a slot as reserved-capable by convention.
const CompoundModel = "groq/compound"

// NormalizeModel rewrites known aliases to their canonical id.
func NormalizeModel(model string) string {
	m := strings.TrimSpace(model)
	if strings.EqualFold(m, "groq/compuesto") {
		return CompoundModel
	}
	return m
}

// Slot binds one credential to a provider and model.
type Slot struct {
	ID         int          `json:"id"`
	Kind       ProviderKind `json:"provider"`
	Credential string       `json:"-"`
	Model      string       `json:"model"`
	Name       string       `json:"name"`
	QuotaInfo  string       `json:"quotaInfo"`
	// Reserved marks the slot as usable by reserved-class traffic.
	Reserved bool `json:"reserved"`
}

// Configured reports whether the slot carries a credential.
func (s Slot) Configured() bool {
	return s.Credential != ""
}

// TaggedFor reports whether the slot may serve the given task class by static convention.
func (s Slot) TaggedFor(class models.TaskClass) bool {
	if class != models.TaskReserved {
		return true
	}
	return s.Reserved || strings.Contains(strings.ToLower(s.Model), CompoundModel)
}

func ids(list []Slot) []int {
	out := make([]int, 0, len(list))
	for _, s := range list {
		out = append(out, s.ID)
	}
	return out
}

func sortByID(list []Slot) {
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
}
