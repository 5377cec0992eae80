// Package openai implements the provider adapter for OpenAI-compatible
// chat-completions APIs: Groq, Moonshot and OpenAI itself.
package openai

import (
	"encoding/json"
	"fmt"
	"strings"

	"slotgateway/internal/models"
	"slotgateway/internal/provider"
)

// ChatResponse is the non-streaming chat-completions response.
type ChatResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []ChatChoice   `json:"choices"`
	Usage   models.Usage   `json:"usage"`
	Error   *ErrorEnvelope `json:"error,omitempty"`
}

type ChatChoice struct {
	Index        int            `json:"index"`
	Message      models.Message `json:"message"`
	FinishReason string         `json:"finish_reason"`
}

// ErrorEnvelope is the "error" object OpenAI-compatible APIs return.
type ErrorEnvelope struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// BuildRequest shapes a provider.Call into the upstream body.
func BuildRequest(call provider.Call) models.ChatRequest {
	return models.ChatRequest{
		Model:       call.Model,
		Messages:    call.Messages,
		Temperature: call.Temperature,
		MaxTokens:   call.MaxTokens,
	}
}

// ParseResponse extracts the completion text, or a structured failure.
func ParseResponse(name string, status int, body []byte) (provider.Completion, error) {
	var resp ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return provider.Completion{}, &provider.Error{
			Provider: name,
			Status:   status,
			Message:  fmt.Sprintf("non-JSON response (status %d): %s", status, truncate(string(body), 300)),
		}
	}

	if status < 200 || status > 299 {
		msg := "api error"
		if resp.Error != nil && resp.Error.Message != "" {
			msg = resp.Error.Message
		}
		return provider.Completion{}, &provider.Error{Provider: name, Status: status, Message: msg}
	}

	if len(resp.Choices) == 0 {
		return provider.Completion{Model: resp.Model, Usage: resp.Usage}, nil
	}
	return provider.Completion{
		Text:  strings.TrimSpace(resp.Choices[0].Message.Content),
		Model: resp.Model,
		Usage: resp.Usage,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
