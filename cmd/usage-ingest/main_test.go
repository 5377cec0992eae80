package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"slotgateway/internal/messaging/kafka"
	"slotgateway/internal/models"
)

func TestRecordFromEvent(t *testing.T) {
	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	attempts := []models.Attempt{{SlotID: 1, Status: "error"}, {SlotID: 2, Status: "success"}}

	t.Run("success", func(t *testing.T) {
		r := recordFromEvent(kafka.DispatchEvent{
			EventID: "ev-1", RequestID: "req-1", Timestamp: ts, TaskClass: "reserved",
			Outcome: "success", SlotID: 2, Provider: "groq", Model: "groq/compound",
			Attempts: attempts, DurationMs: 840, Usage: models.Usage{TotalTokens: 30},
		})
		assert.Equal(t, "ev-1", r.ID)
		assert.Equal(t, "success", r.Status)
		assert.Empty(t, r.ErrorKind)
		assert.Equal(t, 2, r.Attempts)
		assert.Equal(t, 30, r.Usage.TotalTokens)
		assert.Equal(t, ts, r.Timestamp)
	})

	t.Run("failure", func(t *testing.T) {
		r := recordFromEvent(kafka.DispatchEvent{EventID: "ev-2", Outcome: "all_slots_exhausted", SlotID: 3})
		assert.Equal(t, "error", r.Status)
		assert.Equal(t, "all_slots_exhausted", r.ErrorKind)
		assert.Equal(t, 3, r.SlotID)
	})
}

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, splitBrokers(" a:9092, ,b:9092 "))
	assert.Nil(t, splitBrokers(""))
}
