package api

import (
	"context"
	"errors"
	"net/http"

	"slotgateway/internal/classify"
	"slotgateway/internal/core"
	"slotgateway/internal/routing"
)

// StatusFor maps a generate failure to an HTTP status and a Retry-After value in seconds.
func StatusFor(err error) (int, int) {
	if errors.Is(err, core.ErrInvalidRequest) {
		return http.StatusBadRequest, 0
	}

	var rerr *routing.Error
	if !errors.As(err, &rerr) {
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout, 0
		}
		return http.StatusInternalServerError, 0
	}

	switch rerr.Kind {
	case routing.KindNoEligibleSlots, routing.KindDailyQuotaExhausted:
		return http.StatusServiceUnavailable, 0
	case routing.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge, 0
	case routing.KindPerMinuteRateLimit:
		return http.StatusTooManyRequests, rerr.Classification.WaitSeconds
	case routing.KindNetworkError, routing.KindUnclassified:
		return http.StatusBadGateway, 0
	case routing.KindAllSlotsExhausted:
		switch rerr.Classification.Kind {
		case classify.PerMinuteRateLimit:
			return http.StatusTooManyRequests, rerr.WaitSeconds
		case classify.PayloadTooLarge:
			return http.StatusRequestEntityTooLarge, 0
		}
		return http.StatusServiceUnavailable, 0
	}
	return http.StatusBadGateway, 0
}

func writeDispatchError(w http.ResponseWriter, err error) {
	code, wait := StatusFor(err)
	kind := "internal"
	var rerr *routing.Error
	switch {
	case errors.As(err, &rerr):
		kind = string(rerr.Kind)
	case errors.Is(err, core.ErrInvalidRequest):
		kind = "invalid_request"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		kind = "canceled"
	}
	retryAfterHeader(w, wait)
	writeError(w, code, kind, err.Error())
}
