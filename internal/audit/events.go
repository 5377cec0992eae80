// Package audit records operator changes to slot activation and reservation.
package audit

import (
	"time"
)

// EventType represents the type of audit event.
type EventType string

const (
	EventActivationChanged  EventType = "slots:activation_changed"
	EventReservationPinned  EventType = "slots:reservation_pinned"
	EventReservationCleared EventType = "slots:reservation_cleared"
	EventPoolReset          EventType = "slots:reset"
)

// EventSeverity represents the severity of an audit event.
type EventSeverity string

const (
	SeverityInfo    EventSeverity = "info"
	SeverityWarning EventSeverity = "warning"
)

// Event is one operator action against the slot pool.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	Severity  EventSeverity  `json:"severity"`
	Actor     Actor          `json:"actor"`
	Result    string         `json:"result"` // success, rejected
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
	Path      string         `json:"path,omitempty"`
}

// Actor identifies who made the change.
type Actor struct {
	Type string `json:"type"` // token, api_key, anonymous
	Name string `json:"name"`
	IP   string `json:"ip,omitempty"`
}

// SeverityFor returns the default severity for an event type and result.
func SeverityFor(t EventType, result string) EventSeverity {
	if result != ResultSuccess {
		return SeverityWarning
	}
	if t == EventPoolReset {
		return SeverityWarning
	}
	return SeverityInfo
}

const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
)
