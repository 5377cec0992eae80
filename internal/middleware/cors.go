package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"slotgateway/internal/logger"
)

// CORSConfig configures which browser origins may call the gateway.
type CORSConfig struct {
	// AllowedOrigins may contain "*" to accept any origin.
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	ExposedHeaders []string
	MaxAge         int
}

// CORSConfigFromOrigins builds the gateway's CORS policy for the given origins.
func CORSConfigFromOrigins(origins []string) CORSConfig {
	return CORSConfig{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-Key", "X-Request-Id", "X-Trace-Id"},
		ExposedHeaders: []string{"X-Request-Id", "X-Trace-Id", "Retry-After"},
		MaxAge:         86400,
	}
}

type CORS struct {
	config CORSConfig
	log    *slog.Logger
}

func NewCORS(config CORSConfig) *CORS {
	return &CORS{config: config, log: logger.WithComponent("cors")}
}

// Handler answers preflights for allowed origins and decorates their responses.
// Requests from other origins pass through without CORS headers.
func (c *CORS) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || !c.allowed(origin) {
			if origin != "" {
				c.log.Debug("cors: origin not allowed", "origin", origin, "path", r.URL.Path)
			}
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
		h.Set("Access-Control-Allow-Methods", strings.Join(c.config.AllowedMethods, ", "))
		h.Set("Access-Control-Allow-Headers", strings.Join(c.config.AllowedHeaders, ", "))
		if len(c.config.ExposedHeaders) > 0 {
			h.Set("Access-Control-Expose-Headers", strings.Join(c.config.ExposedHeaders, ", "))
		}
		if c.config.MaxAge > 0 {
			h.Set("Access-Control-Max-Age", strconv.Itoa(c.config.MaxAge))
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c *CORS) allowed(origin string) bool {
	for _, a := range c.config.AllowedOrigins {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}
