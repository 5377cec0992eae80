// Package auth issues and validates the bearer tokens that guard the
// administrative surface.
package auth

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Scopes carried by admin tokens.
const (
	ScopeRead  = "slots:read"
	ScopeWrite = "slots:write"
)

// Claims represents JWT claims.
type Claims struct {
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// HasScope reports whether the token grants scope.
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret []byte
	Expiry time.Duration
	Issuer string
}

const (
	DefaultTokenExpiry  = 12 * time.Hour
	MinimumSecretLength = 32
	DefaultIssuer       = "slot-gateway"
)

var ErrNoSecret = errors.New("ADMIN_JWT_SECRET environment variable is required")

// LoadConfig reads ADMIN_JWT_SECRET and ADMIN_JWT_ISSUER.
func LoadConfig() (JWTConfig, error) {
	secret := strings.TrimSpace(os.Getenv("ADMIN_JWT_SECRET"))
	if secret == "" {
		return JWTConfig{}, ErrNoSecret
	}
	return NewConfig(secret, getenv("ADMIN_JWT_ISSUER", DefaultIssuer))
}

// NewConfig validates the secret length and applies defaults.
func NewConfig(secret, issuer string) (JWTConfig, error) {
	if len(secret) < MinimumSecretLength {
		return JWTConfig{}, fmt.Errorf("admin jwt secret must be at least %d characters", MinimumSecretLength)
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return JWTConfig{Secret: []byte(secret), Expiry: DefaultTokenExpiry, Issuer: issuer}, nil
}

// JWTManager handles JWT operations.
type JWTManager struct {
	config JWTConfig
	now    func() time.Time
}

// NewJWTManager creates a new JWT manager.
func NewJWTManager(config JWTConfig) *JWTManager {
	if config.Expiry <= 0 {
		config.Expiry = DefaultTokenExpiry
	}
	return &JWTManager{config: config, now: time.Now}
}

// Issue signs a token for subject. A zero ttl uses the configured expiry.
func (m *JWTManager) Issue(subject string, scopes []string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = m.config.Expiry
	}
	now := m.now()
	expires := now.Add(ttl)
	claims := Claims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
			Subject:   subject,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires, nil
}

// Validate parses a token and checks signature, expiry and issuer.
func (m *JWTManager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.config.Secret, nil
	}, jwt.WithIssuer(m.config.Issuer), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token claims")
}

// getenv retrieves an environment variable or returns a default value.
func getenv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}
