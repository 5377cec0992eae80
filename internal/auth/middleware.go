package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"slotgateway/internal/logger"
)

type contextKey struct{}

// ContextKeyClaims stores the validated admin claims.
var ContextKeyClaims = contextKey{}

// Middleware guards handlers with admin bearer tokens.
type Middleware struct {
	jwtManager *JWTManager
	log        *slog.Logger
}

// NewMiddleware creates a new auth middleware.
func NewMiddleware(jwtManager *JWTManager) *Middleware {
	return &Middleware{
		jwtManager: jwtManager,
		log:        logger.WithComponent("auth"),
	}
}

// RequireScope rejects requests without a valid token. Safe methods need
// ScopeRead; everything else needs ScopeWrite.
func (m *Middleware) RequireScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearer(r)
		if token == "" {
			m.log.Debug("no token provided", "path", r.URL.Path)
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		claims, err := m.jwtManager.Validate(token)
		if err != nil {
			m.log.Warn("invalid admin token", "path", r.URL.Path, "error", err.Error())
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		need := ScopeWrite
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			need = ScopeRead
		}
		if !claims.HasScope(need) {
			m.log.Warn("admin token lacks scope", "subject", claims.Subject, "scope", need, "path", r.URL.Path)
			writeError(w, http.StatusForbidden, "token lacks scope "+need)
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClaims returns the claims set by RequireScope.
func GetClaims(ctx context.Context) *Claims {
	c, _ := ctx.Value(ContextKeyClaims).(*Claims)
	return c
}

func extractBearer(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(h, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": message, "code": status},
	})
}
