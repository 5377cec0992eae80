// Package provider defines the boundary between the dispatcher and the
// upstream LLM backends. One Adapter exists per slots.ProviderKind; the
// dispatcher never branches on provider specifics.
package provider

import (
	"context"
	"fmt"
	"log/slog"

	"slotgateway/internal/logger"
	"slotgateway/internal/models"
	"slotgateway/internal/slots"
)

// Call is one upstream generation request.
type Call struct {
	Credential  string
	Model       string
	Messages    []models.Message
	Temperature float64
	MaxTokens   int
}

// Completion is a successful upstream response.
type Completion struct {
	Text  string
	Model string
	Usage models.Usage
}

// Adapter performs calls against one provider kind. Failures must be
// returned as *Error so the classifier sees the status and upstream text.
type Adapter interface {
	Kind() slots.ProviderKind
	Complete(ctx context.Context, call Call) (Completion, error)
}

// Error is a structured upstream failure.
type Error struct {
	Provider string
	Status   int
	Message  string
	// Transport is set when no HTTP response was received.
	Transport bool
	Err       error
}

func (e *Error) Error() string {
	if e.Transport {
		return fmt.Sprintf("%s: network error: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s api error (status %d): %s", e.Provider, e.Status, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Registry maps provider kinds to adapters.
type Registry struct {
	adapters map[slots.ProviderKind]Adapter
	logger   *slog.Logger
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{
		adapters: map[slots.ProviderKind]Adapter{},
		logger:   logger.WithComponent("registry"),
	}
	for _, a := range adapters {
		r.adapters[a.Kind()] = a
		r.logger.Info("provider registered",
			slog.String("provider", string(a.Kind())),
			slog.Int("total_adapters", len(r.adapters)),
		)
	}
	return r
}

// Register adds or replaces the adapter for its kind.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Kind()] = a
}

func (r *Registry) Get(kind slots.ProviderKind) (Adapter, error) {
	a, ok := r.adapters[kind]
	if !ok {
		r.logger.Error("adapter lookup failed",
			slog.String("provider", string(kind)),
			slog.String("error", "adapter not found"),
		)
		return nil, fmt.Errorf("adapter not found: %s", kind)
	}
	return a, nil
}

// Kinds lists the registered provider kinds.
func (r *Registry) Kinds() []slots.ProviderKind {
	out := make([]slots.ProviderKind, 0, len(r.adapters))
	for k := range r.adapters {
		out = append(out, k)
	}
	return out
}
