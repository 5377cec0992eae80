package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerKeepsNewestFirst(t *testing.T) {
	l := NewLogger(2)
	req := httptest.NewRequest(http.MethodPost, "/v0/management/slots/reset", nil)

	l.Record(req, EventActivationChanged, ResultSuccess, nil)
	l.Record(req, EventReservationPinned, ResultSuccess, map[string]any{"slot": 2})
	l.Record(req, EventPoolReset, ResultSuccess, nil)

	got := l.List(0)
	require.Len(t, got, 2)
	assert.Equal(t, EventPoolReset, got[0].Type)
	assert.Equal(t, EventReservationPinned, got[1].Type)
	assert.NotEmpty(t, got[0].ID)
	assert.Len(t, l.List(1), 1)
}

func TestNilLoggerDiscards(t *testing.T) {
	var l *Logger
	e := l.Record(httptest.NewRequest(http.MethodGet, "/", nil), EventPoolReset, ResultSuccess, nil)
	assert.Empty(t, e.ID)
}

func TestSeverityFor(t *testing.T) {
	assert.Equal(t, SeverityInfo, SeverityFor(EventActivationChanged, ResultSuccess))
	assert.Equal(t, SeverityWarning, SeverityFor(EventActivationChanged, ResultRejected))
	assert.Equal(t, SeverityWarning, SeverityFor(EventPoolReset, ResultSuccess))
}

func TestActorFromAnonymous(t *testing.T) {
	assert.Equal(t, Actor{Type: "anonymous", Name: "anonymous"}, ActorFrom(context.Background()))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "192.0.2.1", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(req))
}
