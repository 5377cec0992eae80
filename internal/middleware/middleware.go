package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"slotgateway/internal/logger"
	"slotgateway/internal/metrics"
)

type ctxKey string

const (
	KeyRequestID ctxKey = "request_id"
	KeyTraceID   ctxKey = "trace_id"
	KeyAPIName   ctxKey = "api_key_name"
)

// Authenticator checks client API keys. An empty key set disables the check.
type Authenticator struct {
	keys map[string]string
	log  *slog.Logger
}

func NewAuthenticator(keys map[string]string) *Authenticator {
	copyMap := map[string]string{}
	for k, v := range keys {
		copyMap[k] = v
	}
	return &Authenticator{
		keys: copyMap,
		log:  logger.WithComponent("middleware"),
	}
}

// Enabled reports whether any key is configured.
func (a *Authenticator) Enabled() bool {
	return len(a.keys) > 0
}

func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		secret := extractAPIKey(r)
		if secret == "" {
			a.log.Warn("authentication failed: missing api key", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, "missing api key")
			return
		}

		name := ""
		for k, v := range a.keys {
			if subtle.ConstantTimeCompare([]byte(v), []byte(secret)) == 1 {
				name = k
				break
			}
		}
		if name == "" {
			a.log.Warn("authentication failed: invalid api key", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}

		a.log.Debug("authentication successful", "api_key_name", name, "path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), KeyAPIName, name)))
	})
}

func WithRequestContext(next http.Handler) http.Handler {
	log := logger.WithComponent("middleware")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		traceID := r.Header.Get("X-Trace-Id")
		if traceID == "" {
			traceID = reqID
		}

		w.Header().Set("X-Request-Id", reqID)
		w.Header().Set("X-Trace-Id", traceID)

		log.Debug("request context initialized", "request_id", reqID, "trace_id", traceID, "path", r.URL.Path, "method", r.Method)

		ctx := context.WithValue(r.Context(), KeyRequestID, reqID)
		ctx = context.WithValue(ctx, KeyTraceID, traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// WithMetrics records request count, errors and latency.
func WithMetrics(c *metrics.Collector, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		c.RecordHTTPRequest(time.Since(start), rec.status)
	})
}

func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(KeyRequestID).(string)
	return v
}

func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(KeyTraceID).(string)
	return v
}

func GetAPIKeyName(ctx context.Context) string {
	v, _ := ctx.Value(KeyAPIName).(string)
	return v
}

func extractAPIKey(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if k := strings.TrimSpace(r.Header.Get("x-api-key")); k != "" {
		return k
	}
	return strings.TrimSpace(r.URL.Query().Get("key"))
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": message, "code": status},
	})
}
