package routing

import (
	"errors"
	"fmt"
	"strings"

	"slotgateway/internal/classify"
)

// Kind is the terminal outcome category of a failed dispatch.
type Kind string

const (
	KindNoEligibleSlots     Kind = "no_eligible_slots"
	KindPayloadTooLarge     Kind = "payload_too_large"
	KindDailyQuotaExhausted Kind = "daily_quota_exhausted"
	KindPerMinuteRateLimit  Kind = "per_minute_rate_limit"
	KindNetworkError        Kind = "network_error"
	KindUnclassified        Kind = "unclassified"
	KindAllSlotsExhausted   Kind = "all_slots_exhausted"
)

// Sentinels for errors.Is against *Error.
var (
	ErrNoEligibleSlots     = errors.New("no eligible slots")
	ErrPayloadTooLarge     = errors.New("payload too large")
	ErrDailyQuotaExhausted = errors.New("daily quota exhausted")
	ErrPerMinuteRateLimit  = errors.New("per-minute rate limit")
	ErrNetwork             = errors.New("network error")
	ErrUnclassified        = errors.New("unclassified upstream failure")
	ErrAllSlotsExhausted   = errors.New("all slots exhausted")
)

var sentinels = map[Kind]error{
	KindNoEligibleSlots:     ErrNoEligibleSlots,
	KindPayloadTooLarge:     ErrPayloadTooLarge,
	KindDailyQuotaExhausted: ErrDailyQuotaExhausted,
	KindPerMinuteRateLimit:  ErrPerMinuteRateLimit,
	KindNetworkError:        ErrNetwork,
	KindUnclassified:        ErrUnclassified,
	KindAllSlotsExhausted:   ErrAllSlotsExhausted,
}

// Error is the single failure a dispatch surfaces to its caller.
type Error struct {
	Kind Kind
	// Classification is the last upstream verdict, if any slot was called.
	Classification classify.Classification
	// Message is the last upstream text, or a local explanation.
	Message string
	// SlotID is the last slot tried; zero when none was.
	SlotID int
	// WaitSeconds is set when the last observed failure was a per-minute rate limit.
	WaitSeconds int
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.SlotID != 0 {
		fmt.Fprintf(&b, " (last slot %d, %s)", e.SlotID, e.Classification)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.WaitSeconds > 0 {
		fmt.Fprintf(&b, "; try again in %d s", e.WaitSeconds)
	}
	return b.String()
}

func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

func kindOf(c classify.Kind) Kind {
	switch c {
	case classify.PayloadTooLarge:
		return KindPayloadTooLarge
	case classify.DailyQuotaExhausted:
		return KindDailyQuotaExhausted
	case classify.PerMinuteRateLimit:
		return KindPerMinuteRateLimit
	case classify.NetworkError:
		return KindNetworkError
	default:
		return KindUnclassified
	}
}
