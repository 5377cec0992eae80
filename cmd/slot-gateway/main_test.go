package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"slotgateway/internal/config"
)

func TestWriteTimeoutCoversEverySlot(t *testing.T) {
	cfg := config.Config{UpstreamTimeout: 2 * time.Minute, SameSlotRetries: 3}

	// 3 calls of 2m plus two 30s waits per slot.
	perSlot := 7 * time.Minute
	assert.Equal(t, perSlot+2*time.Minute, writeTimeout(cfg, 1))
	assert.Equal(t, 5*perSlot+2*time.Minute, writeTimeout(cfg, 5))
	assert.Equal(t, writeTimeout(cfg, 1), writeTimeout(cfg, 0), "no configured slots still gets one slot's budget")
}

func TestWriteTimeoutWithoutRetries(t *testing.T) {
	cfg := config.Config{UpstreamTimeout: time.Minute}
	assert.Equal(t, 3*time.Minute, writeTimeout(cfg, 1))
}
