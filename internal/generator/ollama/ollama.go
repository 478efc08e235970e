// Package ollama generates answers with a model served by an Ollama host.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"librarian/internal/domain"
	"librarian/internal/generator"
)

const (
	DefaultURL   = "http://localhost:11434"
	DefaultModel = "llama3.1:8b"
)

type Config struct {
	URL     string
	Model   string
	Timeout time.Duration
	// Options is passed through as the Ollama "options" object (temperature, num_ctx, ...).
	Options map[string]any
}

// Generator calls the non-streaming /api/generate endpoint.
type Generator struct {
	url     string
	model   string
	timeout time.Duration
	options map[string]any
	client  *http.Client
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func New(cfg Config) *Generator {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = generator.DefaultTimeout
	}
	return &Generator{
		url:     strings.TrimRight(cfg.URL, "/"),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		options: cfg.Options,
		client:  &http.Client{},
	}
}

func (g *Generator) Name() string { return "ollama:" + g.model }

// Generate answers question from the retrieved context. Transport errors, non-200
// responses, timeouts and empty answers are all generation failures.
func (g *Generator) Generate(ctx context.Context, question, retrieved string) (string, error) {
	const op = "ollama generate"
	body, err := json.Marshal(generateRequest{
		Model:   g.model,
		Prompt:  generator.BuildPrompt(question, retrieved),
		Stream:  false,
		Options: g.options,
	})
	if err != nil {
		return "", domain.Wrap(domain.ErrGeneration, op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", domain.Wrap(domain.ErrGeneration, op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", domain.Wrap(domain.ErrGeneration, op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.Wrap(domain.ErrGeneration, op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", domain.Errorf(domain.ErrGeneration, op, "/api/generate returned %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	var out generateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", domain.Wrap(domain.ErrGeneration, op, fmt.Errorf("decode response: %w", err))
	}
	answer := strings.TrimSpace(out.Response)
	if answer == "" {
		return "", domain.Errorf(domain.ErrGeneration, op, "model %s returned an empty answer", g.model)
	}
	return answer, nil
}

// Ping checks that the host answers and has the configured model pulled.
func (g *Generator) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.url+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama: /api/tags returned %s", resp.Status)
	}
	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return err
	}
	for _, m := range tags.Models {
		if m.Name == g.model || strings.TrimSuffix(m.Name, ":latest") == g.model {
			return nil
		}
	}
	return fmt.Errorf("ollama: model %s is not pulled on %s", g.model, g.url)
}
