// Package huggingface implements the provider adapter for the Hugging Face
// inference router (OpenAI-compatible surface with its own error shapes).
package huggingface

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"slotgateway/internal/logger"
	"slotgateway/internal/models"
	"slotgateway/internal/provider"
	"slotgateway/internal/slots"
)

const DefaultBaseURL = "https://router.huggingface.co/v1"

type Adapter struct {
	baseURL string
	client  *provider.Client
	log     *slog.Logger
}

func NewAdapter(baseURL string, client *provider.Client) *Adapter {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = provider.NewClient(provider.DefaultClientConfig())
	}
	return &Adapter{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  client,
		log:     logger.WithComponent("huggingface"),
	}
}

func (a *Adapter) Kind() slots.ProviderKind {
	return slots.KindHuggingFace
}

func (a *Adapter) Complete(ctx context.Context, call provider.Call) (provider.Completion, error) {
	body := models.ChatRequest{
		Model:       call.Model,
		Messages:    normalizeMessages(call.Messages),
		Temperature: clamp(call.Temperature, 0, 2),
		MaxTokens:   call.MaxTokens,
	}

	status, raw, err := a.client.PostJSON(ctx, "huggingface", a.baseURL+"/chat/completions", call.Credential, body)
	if err != nil {
		a.log.Warn("upstream request failed", "model", call.Model, "error", err.Error())
		return provider.Completion{}, err
	}

	var resp map[string]any
	if err := json.Unmarshal(raw, &resp); err != nil {
		return provider.Completion{}, &provider.Error{
			Provider: "huggingface",
			Status:   status,
			Message:  fmt.Sprintf("non-JSON response (status %d)", status),
		}
	}

	if status < 200 || status > 299 {
		return provider.Completion{}, &provider.Error{Provider: "huggingface", Status: status, Message: errorMessage(resp, status)}
	}

	text, ok := firstContent(resp)
	if !ok {
		return provider.Completion{}, &provider.Error{
			Provider: "huggingface",
			Status:   status,
			Message:  "no text in choices[0].message.content",
		}
	}

	out := provider.Completion{Text: strings.TrimSpace(text), Model: call.Model}
	if m, ok := resp["model"].(string); ok && m != "" {
		out.Model = m
	}
	if u, ok := resp["usage"].(map[string]any); ok {
		out.Usage = models.Usage{
			PromptTokens:     intField(u, "prompt_tokens"),
			CompletionTokens: intField(u, "completion_tokens"),
			TotalTokens:      intField(u, "total_tokens"),
		}
	}
	return out, nil
}

func normalizeMessages(in []models.Message) []models.Message {
	if len(in) == 0 {
		return []models.Message{{Role: "user", Content: ""}}
	}
	out := make([]models.Message, len(in))
	for i, m := range in {
		if m.Role == "" {
			m.Role = "user"
		}
		out[i] = m
	}
	return out
}

// errorMessage accepts {"error":{"message":..}}, {"error":"..."} and {"message":"..."}.
func errorMessage(resp map[string]any, status int) string {
	switch e := resp["error"].(type) {
	case map[string]any:
		if msg, ok := e["message"].(string); ok && msg != "" {
			return msg
		}
	case string:
		if e != "" {
			return e
		}
	}
	if msg, ok := resp["message"].(string); ok && msg != "" {
		return msg
	}
	return fmt.Sprintf("HTTP %d", status)
}

func firstContent(resp map[string]any) (string, bool) {
	choices, ok := resp["choices"].([]any)
	if !ok || len(choices) == 0 {
		return "", false
	}
	choice, ok := choices[0].(map[string]any)
	if !ok {
		return "", false
	}
	msg, ok := choice["message"].(map[string]any)
	if !ok {
		return "", false
	}
	content, ok := msg["content"].(string)
	return content, ok
}

func intField(m map[string]any, key string) int {
	if v, ok := m[key].(float64); ok {
		return int(v)
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
