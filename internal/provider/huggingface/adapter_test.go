package huggingface

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotgateway/internal/models"
	"slotgateway/internal/provider"
	"slotgateway/internal/slots"
)

func TestAdapterComplete(t *testing.T) {
	var seen models.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer hf_token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&seen))
		_, _ = w.Write([]byte(`{"model":"meta-llama/Llama","choices":[{"message":{"role":"assistant","content":" listo "}}],"usage":{"prompt_tokens":5,"completion_tokens":1,"total_tokens":6}}`))
	}))
	defer srv.Close()

	a := NewAdapter(srv.URL+"/v1/", nil)
	assert.Equal(t, slots.KindHuggingFace, a.Kind())

	out, err := a.Complete(context.Background(), provider.Call{
		Credential:  "hf_token",
		Model:       "meta-llama/Llama",
		Messages:    []models.Message{{Content: "hola"}},
		Temperature: 3.5,
		MaxTokens:   256,
	})
	require.NoError(t, err)
	assert.Equal(t, "listo", out.Text)
	assert.Equal(t, 6, out.Usage.TotalTokens)

	assert.Equal(t, "user", seen.Messages[0].Role)
	assert.Equal(t, 2.0, seen.Temperature)
}

func TestAdapterErrorShapes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"nested message", http.StatusTooManyRequests, `{"error":{"message":"rate limit, try again in 3 seconds"}}`, "rate limit, try again in 3 seconds"},
		{"string error", http.StatusBadRequest, `{"error":"Model is overloaded"}`, "Model is overloaded"},
		{"top-level message", http.StatusForbidden, `{"message":"forbidden"}`, "forbidden"},
		{"empty", http.StatusServiceUnavailable, `{}`, "HTTP 503"},
		{"missing content", http.StatusOK, `{"choices":[]}`, "no text in choices[0].message.content"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewAdapter(srv.URL, nil).Complete(context.Background(), provider.Call{Credential: "x", Model: "m"})
			var perr *provider.Error
			require.True(t, errors.As(err, &perr), "got %v", err)
			assert.Equal(t, tt.want, perr.Message)
			assert.Equal(t, tt.status, perr.Status)
		})
	}
}
