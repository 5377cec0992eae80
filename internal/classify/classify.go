// Package classify maps upstream failures to recovery strategies.
//
// Providers report quota problems as prose, in English or Spanish, so the
// rules below are string heuristics. Anything they do not recognise is
// Unclassified and treated as non-retryable.
package classify

import (
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// Kind is the recovery category of a failure.
type Kind int

const (
	Unclassified Kind = iota
	PayloadTooLarge
	DailyQuotaExhausted
	PerMinuteRateLimit
	NetworkError
)

func (k Kind) String() string {
	switch k {
	case PayloadTooLarge:
		return "payload_too_large"
	case DailyQuotaExhausted:
		return "daily_quota_exhausted"
	case PerMinuteRateLimit:
		return "per_minute_rate_limit"
	case NetworkError:
		return "network_error"
	default:
		return "unclassified"
	}
}

// Rotates reports whether the failure is permanent for the slot and the
// dispatcher should move to the next candidate without retrying.
func (k Kind) Rotates() bool {
	return k == PayloadTooLarge || k == DailyQuotaExhausted
}

// Classification is the verdict for one failure.
type Classification struct {
	Kind Kind `json:"kind"`
	// WaitSeconds is set for PerMinuteRateLimit, in [MinWait, MaxWait].
	WaitSeconds int `json:"waitSeconds,omitempty"`
}

func (c Classification) String() string {
	if c.Kind == PerMinuteRateLimit {
		return c.Kind.String() + "(" + strconv.Itoa(c.WaitSeconds) + "s)"
	}
	return c.Kind.String()
}

// Wait bounds for per-minute rate limits.
const (
	MinWait = 1
	MaxWait = 30
)

var (
	tooLargePattern = regexp.MustCompile(`(?i)(request entity too large|entity too large|payload too large|too large|entidad de solicitud es demasiado grande|demasiado grande)`)
	dailyPattern    = regexp.MustCompile(`(?i)(tokens per day|tokens por d[ií]a|\btpd\b)`)
	ratePattern     = regexp.MustCompile(`(?i)(rate limit|l[ií]mite de velocidad|tokens per minute|tokens por minuto|\btpm\b)`)

	retryEnglish = regexp.MustCompile(`(?i)try again in (\d+(?:\.\d+)?)\s*(?:s\b\.?|sec\b|secs\b|seconds?\b)`)
	retrySpanish = regexp.MustCompile(`(?i)(?:int[ée]ntelo de nuevo|int[ée]ntalo de nuevo)\s+en\s+(\d+(?:[.,]\d+)?)\s*(?:s\b\.?|segundos?\b)`)
)

// Classify applies the rules in priority order: size, daily quota,
// per-minute rate limit, transport, then Unclassified.
// transport is true when no HTTP response was received at all.
func Classify(status int, message string, transport bool) Classification {
	if status == http.StatusRequestEntityTooLarge || tooLargePattern.MatchString(message) {
		return Classification{Kind: PayloadTooLarge}
	}
	if dailyPattern.MatchString(message) {
		return Classification{Kind: DailyQuotaExhausted}
	}
	if ratePattern.MatchString(message) {
		if wait, ok := ParseRetryAfter(message); ok {
			return Classification{Kind: PerMinuteRateLimit, WaitSeconds: wait}
		}
	}
	if transport {
		return Classification{Kind: NetworkError}
	}
	return Classification{Kind: Unclassified}
}

// ParseRetryAfter extracts the wait from "try again in 18.5625s" or
// "Inténtelo de nuevo en 7,5 segundos". The result is the ceiling of the
// parsed value clamped to [MinWait, MaxWait].
func ParseRetryAfter(message string) (int, bool) {
	raw := ""
	if m := retryEnglish.FindStringSubmatch(message); m != nil {
		raw = m[1]
	} else if m := retrySpanish.FindStringSubmatch(message); m != nil {
		raw = strings.Replace(m[1], ",", ".", 1)
	} else {
		return 0, false
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	wait := int(math.Ceil(v))
	if wait < MinWait {
		wait = MinWait
	}
	if wait > MaxWait {
		wait = MaxWait
	}
	return wait, true
}
