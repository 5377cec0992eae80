// Package secrets resolves slot credentials from Infisical, with the
// process environment as the fallback source.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"slotgateway/internal/logger"
)

// ErrNotFound is returned when no source holds the requested key.
var ErrNotFound = errors.New("secret not found")

// Source is anything that can look up a secret by key.
type Source interface {
	GetSecret(ctx context.Context, key string) (string, error)
}

// Config holds Infisical configuration
type Config struct {
	APIURL      string
	Token       string
	WorkspaceID string
	Environment string // dev, staging, production
	SecretPath  string
}

// LoadConfig loads Infisical config from environment
func LoadConfig() Config {
	return Config{
		APIURL:      getEnv("INFISICAL_API_URL", "https://app.infisical.com/api"),
		Token:       getEnv("INFISICAL_TOKEN", ""),
		WorkspaceID: getEnv("INFISICAL_WORKSPACE_ID", ""),
		Environment: getEnv("INFISICAL_ENVIRONMENT", "dev"),
		SecretPath:  getEnv("INFISICAL_SECRET_PATH", "/slot-gateway"),
	}
}

// Client provides Infisical API access
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a new Infisical client
func NewClient(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("INFISICAL_TOKEN is required")
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type secretResponse struct {
	Secrets []secret `json:"secrets"`
}

type secret struct {
	Key   string `json:"secretKey"`
	Value string `json:"secretValue"`
}

// GetSecret fetches a single secret by key
func (c *Client) GetSecret(ctx context.Context, key string) (string, error) {
	log := logger.WithComponent("secrets")

	q := url.Values{}
	q.Set("workspaceId", c.cfg.WorkspaceID)
	q.Set("environment", c.cfg.Environment)
	q.Set("secretPath", c.cfg.SecretPath)
	q.Set("secretKey", key)
	endpoint := strings.TrimRight(c.cfg.APIURL, "/") + "/v3/secrets?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error("failed to fetch secret from infisical", "error", err.Error(), "key", key)
		return "", fmt.Errorf("fetching secret: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("infisical API error %d: %s", resp.StatusCode, string(body))
	}

	var result secretResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	for _, s := range result.Secrets {
		if s.Key == key || s.Key == "" {
			log.Debug("fetched secret from infisical", "key", key)
			return s.Value, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, key)
}

// Health checks if Infisical is reachable
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.cfg.APIURL, "/")+"/status", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("infisical health check failed: %d", resp.StatusCode)
	}
	return nil
}

// EnvSource reads secrets from the process environment. Keys are upper-cased.
type EnvSource struct{}

func (EnvSource) GetSecret(_ context.Context, key string) (string, error) {
	if v := strings.TrimSpace(os.Getenv(strings.ToUpper(key))); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, key)
}

// MapSource serves secrets from a fixed map. Used in tests and for static overrides.
type MapSource map[string]string

func (m MapSource) GetSecret(_ context.Context, key string) (string, error) {
	if v, ok := m[key]; ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, key)
}

// Chain tries each source in order and returns the first hit.
type Chain []Source

func (c Chain) GetSecret(ctx context.Context, key string) (string, error) {
	var lastErr error = fmt.Errorf("%w: %s", ErrNotFound, key)
	for _, src := range c {
		if src == nil {
			continue
		}
		v, err := src.GetSecret(ctx, key)
		if err == nil {
			return v, nil
		}
		lastErr = err
	}
	return "", lastErr
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
