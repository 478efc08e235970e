package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarian/internal/domain"
)

func TestGenerator_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.1:8b", req.Model)
		assert.False(t, req.Stream)
		assert.Contains(t, req.Prompt, "Question: what colour is the sky?")
		assert.Contains(t, req.Prompt, "The sky is blue.")
		json.NewEncoder(w).Encode(generateResponse{Response: "  Blue.\n", Done: true})
	}))
	defer srv.Close()

	g := New(Config{URL: srv.URL})
	answer, err := g.Generate(context.Background(), "what colour is the sky?", "The sky is blue.\n\n")
	require.NoError(t, err)
	assert.Equal(t, "Blue.", answer)
}

func TestGenerator_Failures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		},
		"empty": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"response":"   ","done":true}`))
		},
		"garbage": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			_, err := New(Config{URL: srv.URL}).Generate(context.Background(), "q", "c")
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrGeneration))
		})
	}
}

func TestGenerator_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := New(Config{URL: srv.URL, Timeout: 50 * time.Millisecond}).Generate(context.Background(), "q", "c")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrGeneration))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestGenerator_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(Config{URL: url}).Generate(context.Background(), "q", "c")
	assert.True(t, errors.Is(err, domain.ErrGeneration))
}

func TestGenerator_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.Write([]byte(`{"models":[{"name":"llama3.1:8b"},{"name":"all-minilm:latest"}]}`))
	}))
	defer srv.Close()

	assert.NoError(t, New(Config{URL: srv.URL}).Ping(context.Background()))
	assert.NoError(t, New(Config{URL: srv.URL, Model: "all-minilm"}).Ping(context.Background()))
	assert.Error(t, New(Config{URL: srv.URL, Model: "mistral"}).Ping(context.Background()))
}

func TestNew_UsesDefaultTransport(t *testing.T) {
	g := New(Config{})
	// A nil Transport means http.DefaultTransport, which keeps the proxy
	// settings from the environment and the default dial timeouts.
	assert.Nil(t, g.client.Transport)
	assert.Zero(t, g.client.Timeout, "requests are bounded by the context")
}
