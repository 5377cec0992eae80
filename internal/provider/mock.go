package provider

import (
	"context"
	"strings"

	"slotgateway/internal/slots"
)

// MockAdapter echoes the last user message. It backs slots configured with
// provider "mock" so the gateway can run without upstream credentials.
type MockAdapter struct {
	// Reply, when set, replaces the echo.
	Reply func(call Call) (Completion, error)
}

func NewMockAdapter() *MockAdapter {
	return &MockAdapter{}
}

func (m *MockAdapter) Kind() slots.ProviderKind {
	return slots.KindMock
}

func (m *MockAdapter) Complete(ctx context.Context, call Call) (Completion, error) {
	if err := ctx.Err(); err != nil {
		return Completion{}, err
	}
	if m.Reply != nil {
		return m.Reply(call)
	}
	content := "No prompt"
	if n := len(call.Messages); n > 0 {
		content = "Echo: " + strings.TrimSpace(call.Messages[n-1].Content)
	}
	words := len(strings.Fields(content))
	return Completion{
		Text:  content,
		Model: call.Model,
	}.withUsage(words), nil
}

func (c Completion) withUsage(completion int) Completion {
	c.Usage.CompletionTokens = completion
	c.Usage.TotalTokens = c.Usage.PromptTokens + completion
	return c
}
