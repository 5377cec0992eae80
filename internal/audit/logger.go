package audit

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"slotgateway/internal/auth"
	"slotgateway/internal/logger"
	"slotgateway/internal/middleware"
)

// Logger keeps a bounded history of audit events and mirrors each one to the structured log.
type Logger struct {
	mu     sync.RWMutex
	events []Event
	max    int
	log    *slog.Logger
	now    func() time.Time
}

func NewLogger(max int) *Logger {
	if max <= 0 {
		max = 500
	}
	return &Logger{
		events: make([]Event, 0, max),
		max:    max,
		log:    logger.WithComponent("audit"),
		now:    time.Now,
	}
}

// Record stores an event for the request r. A nil Logger discards it.
func (l *Logger) Record(r *http.Request, t EventType, result string, details map[string]any) Event {
	if l == nil {
		return Event{}
	}
	ctx := r.Context()
	e := Event{
		ID:        uuid.NewString(),
		Timestamp: l.now().UTC(),
		Type:      t,
		Severity:  SeverityFor(t, result),
		Actor:     ActorFrom(ctx),
		Result:    result,
		Details:   details,
		RequestID: middleware.GetRequestID(ctx),
		Path:      r.URL.Path,
	}
	e.Actor.IP = clientIP(r)

	l.mu.Lock()
	if len(l.events) == l.max {
		l.events = l.events[1:]
	}
	l.events = append(l.events, e)
	l.mu.Unlock()

	level := slog.LevelInfo
	if e.Severity == SeverityWarning {
		level = slog.LevelWarn
	}
	l.log.Log(ctx, level, "audit",
		"type", string(e.Type),
		"result", e.Result,
		"actor", e.Actor.Name,
		"actor_type", e.Actor.Type,
		"request_id", e.RequestID,
	)
	return e
}

// List returns up to limit events, newest first.
func (l *Logger) List(limit int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := len(l.events)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Event, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.events[i])
	}
	return out
}

// ActorFrom prefers the bearer token subject, then the API key name.
func ActorFrom(ctx context.Context) Actor {
	if c := auth.GetClaims(ctx); c != nil && c.Subject != "" {
		return Actor{Type: "token", Name: c.Subject}
	}
	if name := middleware.GetAPIKeyName(ctx); name != "" {
		return Actor{Type: "api_key", Name: name}
	}
	return Actor{Type: "anonymous", Name: "anonymous"}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
