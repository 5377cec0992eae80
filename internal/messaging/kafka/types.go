// Package kafka publishes dispatch outcomes to Kafka and consumes them back
// for offline usage ingestion.
package kafka

import (
	"time"

	"slotgateway/internal/models"
)

// DefaultTopic receives one DispatchEvent per generate request.
const DefaultTopic = "slotgateway.dispatch-events"

// DispatchEvent is the terminal outcome of one dispatch.
type DispatchEvent struct {
	EventID    string           `json:"event_id"`
	RequestID  string           `json:"request_id"`
	TraceID    string           `json:"trace_id,omitempty"`
	APIKeyName string           `json:"api_key_name,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
	TaskClass  string           `json:"task_class"`
	PromptID   string           `json:"prompt_id,omitempty"`
	Outcome    string           `json:"outcome"` // success or the failure kind
	SlotID     int              `json:"slot_id,omitempty"`
	Provider   string           `json:"provider,omitempty"`
	Model      string           `json:"model,omitempty"`
	Attempts   []models.Attempt `json:"attempts"`
	DurationMs int64            `json:"duration_ms"`
	Usage      models.Usage     `json:"usage"`
	Message    string           `json:"message,omitempty"`
}
