package openai

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"slotgateway/internal/logger"
	"slotgateway/internal/provider"
	"slotgateway/internal/slots"
)

const (
	GroqBaseURL     = "https://api.groq.com/openai/v1"
	MoonshotBaseURL = "https://api.moonshot.cn/v1"
	OpenAIBaseURL   = "https://api.openai.com/v1"

	defaultTimeout = 120 * time.Second
)

// Adapter implements provider.Adapter for one OpenAI-compatible backend.
type Adapter struct {
	kind    slots.ProviderKind
	baseURL string
	client  *provider.Client
	log     *slog.Logger
}

// AdapterOption configures the Adapter.
type AdapterOption func(*Adapter)

// WithBaseURL sets the API base. A full ".../chat/completions" URL is accepted too.
func WithBaseURL(url string) AdapterOption {
	return func(a *Adapter) {
		if url = strings.TrimSpace(url); url != "" {
			a.baseURL = url
		}
	}
}

// WithClient sets the transport client.
func WithClient(c *provider.Client) AdapterOption {
	return func(a *Adapter) {
		a.client = c
	}
}

// NewAdapter creates an adapter for kind, defaulting the base URL per kind.
func NewAdapter(kind slots.ProviderKind, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		kind:    kind,
		baseURL: defaultBaseURL(kind),
		log:     logger.WithComponent(string(kind)),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.client == nil {
		cfg := provider.DefaultClientConfig()
		cfg.Timeout = defaultTimeout
		a.client = provider.NewClient(cfg)
	}
	return a
}

func defaultBaseURL(kind slots.ProviderKind) string {
	switch kind {
	case slots.KindMoonshot:
		return MoonshotBaseURL
	case slots.KindOpenAI:
		return OpenAIBaseURL
	default:
		return GroqBaseURL
	}
}

func (a *Adapter) Kind() slots.ProviderKind {
	return a.kind
}

// Endpoint returns the chat-completions URL.
func (a *Adapter) Endpoint() string {
	base := strings.TrimRight(a.baseURL, "/")
	if strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	return base + "/chat/completions"
}

// Complete sends one chat-completions request. No retries happen here.
func (a *Adapter) Complete(ctx context.Context, call provider.Call) (provider.Completion, error) {
	status, body, err := a.client.PostJSON(ctx, string(a.kind), a.Endpoint(), call.Credential, BuildRequest(call))
	if err != nil {
		a.log.Warn("upstream request failed", "model", call.Model, "error", err.Error())
		return provider.Completion{}, err
	}

	out, err := ParseResponse(string(a.kind), status, body)
	if err != nil {
		a.log.Debug("upstream returned error", "model", call.Model, "status", status, "error", err.Error())
		return provider.Completion{}, err
	}
	if out.Model == "" {
		out.Model = call.Model
	}
	return out, nil
}
