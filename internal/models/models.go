// Package models holds the value types shared by the gateway packages.
package models

import "encoding/json"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TaskClass separates general traffic from the reserved structured-generation traffic.
type TaskClass string

const (
	TaskGeneral  TaskClass = "general"
	TaskReserved TaskClass = "reserved"
)

// ParseTaskClass maps a free-form value to a TaskClass, defaulting to general.
func ParseTaskClass(raw string) TaskClass {
	if TaskClass(raw) == TaskReserved {
		return TaskReserved
	}
	return TaskGeneral
}

type GenerationOptions struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
	// TokenBudget caps prompt plus completion tokens; zero disables it.
	TokenBudget int `json:"tokenBudget,omitempty"`
}

// ChatRequest is the OpenAI-compatible body sent upstream.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

// BodySize reports the serialized size of a chat request in bytes.
func BodySize(req ChatRequest) (int, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return 0, err
	}
	return len(raw), nil
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created,omitempty"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   Usage        `json:"usage"`
}

// GenerateRequest is the inbound body of the generate endpoint.
type GenerateRequest struct {
	Prompt      string         `json:"prompt,omitempty"`
	Messages    []Message      `json:"messages,omitempty"`
	PromptID    string         `json:"promptId,omitempty"`
	Task        string         `json:"task,omitempty"`
	PartIndex   *int           `json:"partIndex,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
	MaxTokens   *int           `json:"maxTokens,omitempty"`
	Data        map[string]any `json:"datos,omitempty"`
}

type GenerateResponse struct {
	Text     string    `json:"text"`
	Slot     int       `json:"slot"`
	Provider string    `json:"provider"`
	Model    string    `json:"model"`
	Attempts []Attempt `json:"attempts,omitempty"`
}

// Attempt records one upstream call made while serving a request.
type Attempt struct {
	SlotID         int    `json:"slot"`
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	Status         string `json:"status"`
	Classification string `json:"classification,omitempty"`
	Error          string `json:"error,omitempty"`
	DurationMs     int64  `json:"durationMs"`
}
