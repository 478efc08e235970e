package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarian/internal/domain"
	"librarian/internal/generator"
)

func TestNew_MissingKey(t *testing.T) {
	t.Setenv("LIBRARIAN_TEST_EMPTY_KEY", "")
	_, err := New(Config{APIKeyEnv: "LIBRARIAN_TEST_EMPTY_KEY"})
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}

func TestGenerator_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultModel, req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, generator.SystemInstruction, req.Messages[0].Content)
		assert.Contains(t, req.Messages[1].Content, "Question: who wrote it?")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": " Ada wrote it. "}}]
		}`))
	}))
	defer server.Close()

	t.Setenv("LIBRARIAN_TEST_KEY", "sk-test")
	g, err := New(Config{BaseURL: server.URL + "/v1", APIKeyEnv: "LIBRARIAN_TEST_KEY"})
	require.NoError(t, err)

	answer, err := g.Generate(context.Background(), "who wrote it?", "Ada wrote the notes.\n\n")
	require.NoError(t, err)
	assert.Equal(t, "Ada wrote it.", answer)
}

func TestGenerator_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "slow down", "type": "rate_limit"}}`))
	}))
	defer server.Close()

	t.Setenv("LIBRARIAN_TEST_KEY", "sk-test")
	g, err := New(Config{BaseURL: server.URL + "/v1", APIKeyEnv: "LIBRARIAN_TEST_KEY"})
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), "q", "c")
	assert.True(t, errors.Is(err, domain.ErrGeneration))
}
