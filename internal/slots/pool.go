package slots

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"slotgateway/internal/logger"
	"slotgateway/internal/models"
)

var (
	// ErrEmptyActivation rejects a mutation that would leave no eligible slot.
	ErrEmptyActivation = errors.New("at least one slot must remain active")
	// ErrInvalidReservation rejects a pin on a slot that is not configured and activated.
	ErrInvalidReservation = errors.New("invalid reservation")
)

// Mode is the shape of the activation set.
type Mode string

const (
	ModeDefault  Mode = "default"
	ModeAll      Mode = "all"
	ModeExplicit Mode = "explicit"
)

// ActivationSpec is an administrative activation request.
// Reset wins over All, which wins over Slots.
type ActivationSpec struct {
	Reset bool
	All   bool
	Slots []int
}

// WarnGeneralStarved is reported while the reservation holds the only activated slot.
const WarnGeneralStarved = "reservation holds the only activated slot; general traffic has no eligible slot"

// State is a point-in-time copy of the pool's mutable configuration.
type State struct {
	Mode        Mode     `json:"mode"`
	Activated   []int    `json:"activated"`
	Reservation *int     `json:"reservation"`
	Warnings    []string `json:"warnings,omitempty"`
}

// Eligibility is the candidate list for one task class.
type Eligibility struct {
	Slots []Slot
	// Fallback is set when reserved traffic had to use tagged slots that are not activated.
	Fallback bool
}

// Pool tracks activation and reservation over a Registry.
// It is safe for concurrent use.
type Pool struct {
	reg *Registry
	log *slog.Logger

	mu       sync.RWMutex
	mode     Mode
	explicit map[int]bool
	pinned   int
}

// NewPool starts in Default mode with no reservation.
func NewPool(reg *Registry) *Pool {
	return &Pool{
		reg:  reg,
		mode: ModeDefault,
		log:  logger.WithComponent("slots"),
	}
}

// Registry returns the roster the pool is built on.
func (p *Pool) Registry() *Registry {
	return p.reg
}

// SetActivation replaces the activation set. Explicit lists are filtered to
// configured slots; an empty result is rejected and leaves state unchanged.
func (p *Pool) SetActivation(spec ActivationSpec) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case spec.Reset:
		p.mode, p.explicit = ModeDefault, nil
	case spec.All:
		if len(p.reg.Configured()) == 0 {
			return ErrEmptyActivation
		}
		p.mode, p.explicit = ModeAll, nil
	default:
		if len(spec.Slots) == 0 {
			return ErrEmptyActivation
		}
		set := make(map[int]bool, len(spec.Slots))
		for _, id := range spec.Slots {
			if s, ok := p.reg.Get(id); ok && s.Configured() {
				set[id] = true
			}
		}
		if len(set) == 0 {
			return fmt.Errorf("%w: none of %v is configured", ErrEmptyActivation, spec.Slots)
		}
		p.mode, p.explicit = ModeExplicit, set
	}

	if p.pinned != 0 && !p.activatedLocked(p.pinned) {
		p.log.Info("reservation cleared by activation change", "slot_id", p.pinned)
		p.pinned = 0
	}
	p.log.Info("activation updated", "mode", p.mode, "activated", ids(p.activatedListLocked()))
	p.warnIfStarvedLocked()
	return nil
}

// Reset restores Default mode and clears the reservation.
func (p *Pool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mode, p.explicit, p.pinned = ModeDefault, nil, 0
	p.log.Info("pool reset")
}

// Pin reserves a slot for reserved-class traffic.
func (p *Pool) Pin(id int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.reg.Get(id)
	if !ok || !s.Configured() {
		return fmt.Errorf("%w: slot %d is not configured", ErrInvalidReservation, id)
	}
	if !p.activatedLocked(id) {
		return fmt.Errorf("%w: slot %d is not activated", ErrInvalidReservation, id)
	}
	p.pinned = id
	p.log.Info("reservation pinned", "slot_id", id)
	p.warnIfStarvedLocked()
	return nil
}

// Unpin clears the reservation.
func (p *Pool) Unpin() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pinned != 0 {
		p.log.Info("reservation cleared", "slot_id", p.pinned)
	}
	p.pinned = 0
}

// Reservation returns the pinned slot, if any.
func (p *Pool) Reservation() (int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pinned, p.pinned != 0
}

// Activated returns the activated slots in identity order.
func (p *Pool) Activated() []Slot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.activatedListLocked()
}

// IsActivated reports whether the slot is currently activated.
func (p *Pool) IsActivated(id int) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.activatedLocked(id)
}

// Snapshot copies the current activation and reservation.
func (p *Pool) Snapshot() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st := State{Mode: p.mode, Activated: ids(p.activatedListLocked())}
	if p.pinned != 0 {
		pinned := p.pinned
		st.Reservation = &pinned
	}
	if p.generalStarvedLocked() {
		st.Warnings = []string{WarnGeneralStarved}
	}
	return st
}

// generalStarvedLocked reports whether pinning left general traffic without a slot.
// The pinned slot is always activated, so one activated slot means none remain.
func (p *Pool) generalStarvedLocked() bool {
	return p.pinned != 0 && len(p.activatedListLocked()) == 1
}

func (p *Pool) warnIfStarvedLocked() {
	if p.generalStarvedLocked() {
		p.log.Warn("general traffic has no eligible slot", "reserved_slot", p.pinned)
	}
}

// Eligible resolves the ordered candidate slots for a task class.
//
// General traffic gets the activated slots minus the reserved one.
// Reserved traffic gets, in order of preference:
//  1. the pinned slot followed by activated tagged siblings of the same provider;
//  2. activated tagged slots;
//  3. configured tagged slots regardless of activation (Fallback is set);
//  4. when no slot is tagged at all, the activated set.
//
// Reserved traffic never receives untagged slots while any tagged slot exists.
func (p *Pool) Eligible(class models.TaskClass) Eligibility {
	p.mu.RLock()
	defer p.mu.RUnlock()

	activated := p.activatedListLocked()
	if class != models.TaskReserved {
		out := make([]Slot, 0, len(activated))
		for _, s := range activated {
			if s.ID != p.pinned {
				out = append(out, s)
			}
		}
		return Eligibility{Slots: out}
	}

	if p.pinned != 0 {
		pinned, ok := p.reg.Get(p.pinned)
		if ok && p.activatedLocked(p.pinned) {
			out := []Slot{pinned}
			for _, s := range activated {
				if s.ID != pinned.ID && s.Kind == pinned.Kind && s.TaggedFor(models.TaskReserved) {
					out = append(out, s)
				}
			}
			return Eligibility{Slots: out}
		}
	}

	var tagged []Slot
	for _, s := range activated {
		if s.TaggedFor(models.TaskReserved) {
			tagged = append(tagged, s)
		}
	}
	if len(tagged) > 0 {
		return Eligibility{Slots: tagged}
	}

	for _, s := range p.reg.Configured() {
		if s.TaggedFor(models.TaskReserved) {
			tagged = append(tagged, s)
		}
	}
	if len(tagged) > 0 {
		return Eligibility{Slots: tagged, Fallback: true}
	}
	return Eligibility{Slots: activated}
}

func (p *Pool) activatedLocked(id int) bool {
	for _, s := range p.activatedListLocked() {
		if s.ID == id {
			return true
		}
	}
	return false
}

func (p *Pool) activatedListLocked() []Slot {
	configured := p.reg.Configured()
	switch p.mode {
	case ModeAll:
		return configured
	case ModeExplicit:
		out := make([]Slot, 0, len(p.explicit))
		for _, s := range configured {
			if p.explicit[s.ID] {
				out = append(out, s)
			}
		}
		return out
	default:
		// Slot 1 when configured, else the first configured slot.
		if len(configured) == 0 {
			return nil
		}
		return configured[:1]
	}
}
