package classify

import (
	"net/http"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		message   string
		transport bool
		want      Classification
	}{
		{
			name:    "413 status",
			status:  http.StatusRequestEntityTooLarge,
			message: "whatever",
			want:    Classification{Kind: PayloadTooLarge},
		},
		{
			name:    "too large wins over rate limit wording",
			status:  http.StatusBadRequest,
			message: "Request too large for model on tokens per minute (TPM): Limit 6000. Please try again in 2s.",
			want:    Classification{Kind: PayloadTooLarge},
		},
		{
			name:    "spanish entity too large",
			status:  http.StatusBadRequest,
			message: "La entidad de solicitud es demasiado grande",
			want:    Classification{Kind: PayloadTooLarge},
		},
		{
			name:    "daily quota english",
			status:  http.StatusTooManyRequests,
			message: "Rate limit reached for model `openai/gpt-oss-120b` on tokens per day (TPD): Limit 200000, Used 199500. Please try again in 3m12s.",
			want:    Classification{Kind: DailyQuotaExhausted},
		},
		{
			name:    "daily quota regardless of status",
			status:  http.StatusOK,
			message: "límite alcanzado en tokens por día",
			want:    Classification{Kind: DailyQuotaExhausted},
		},
		{
			name:    "daily quota abbreviation",
			status:  http.StatusInternalServerError,
			message: "quota exceeded (TPD)",
			want:    Classification{Kind: DailyQuotaExhausted},
		},
		{
			name:    "per minute english decimal",
			status:  http.StatusTooManyRequests,
			message: "Rate limit reached on tokens per minute (TPM): Limit 8000. Please try again in 18.5625s.",
			want:    Classification{Kind: PerMinuteRateLimit, WaitSeconds: 19},
		},
		{
			name:    "per minute spanish comma decimal",
			status:  http.StatusTooManyRequests,
			message: "Se alcanzó el límite de velocidad. Inténtelo de nuevo en 7,2 segundos.",
			want:    Classification{Kind: PerMinuteRateLimit, WaitSeconds: 8},
		},
		{
			name:    "per minute clamped high",
			status:  http.StatusTooManyRequests,
			message: "rate limit exceeded, try again in 95 seconds",
			want:    Classification{Kind: PerMinuteRateLimit, WaitSeconds: 30},
		},
		{
			name:    "per minute clamped low",
			status:  http.StatusTooManyRequests,
			message: "TPM exceeded. try again in 0.2 s",
			want:    Classification{Kind: PerMinuteRateLimit, WaitSeconds: 1},
		},
		{
			name:    "rate limit without retry clause",
			status:  http.StatusTooManyRequests,
			message: "rate limit exceeded",
			want:    Classification{Kind: Unclassified},
		},
		{
			name:      "transport failure",
			message:   "dial tcp: connection refused",
			transport: true,
			want:      Classification{Kind: NetworkError},
		},
		{
			name:    "unknown",
			status:  http.StatusUnauthorized,
			message: "Invalid API Key",
			want:    Classification{Kind: Unclassified},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.status, tt.message, tt.transport)
			if got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in     string
		want   int
		wantOK bool
	}{
		{"try again in 18.5625 s", 19, true},
		{"Please try again in 2s.", 2, true},
		{"try again in 12 seconds", 12, true},
		{"intentelo de nuevo en 3.1 s", 4, true},
		{"Inténtelo de nuevo en 45 segundos", 30, true},
		{"try again later", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseRetryAfter(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseRetryAfter(%q) = (%d, %v), want (%d, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestKindRotates(t *testing.T) {
	if !PayloadTooLarge.Rotates() || !DailyQuotaExhausted.Rotates() {
		t.Error("size and daily quota must rotate")
	}
	if PerMinuteRateLimit.Rotates() || NetworkError.Rotates() || Unclassified.Rotates() {
		t.Error("only size and daily quota rotate")
	}
}
