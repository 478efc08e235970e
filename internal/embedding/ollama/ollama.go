// Package ollama embeds text with a model served by an Ollama host.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultURL   = "http://localhost:11434"
	DefaultModel = "all-minilm"
)

// Config configures the Ollama embeddings client.
type Config struct {
	URL     string
	Model   string
	Timeout time.Duration
}

// Client calls the batch /api/embed endpoint.
type Client struct {
	url       string
	model     string
	dimension int
	client    *http.Client
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// NewClient creates a client. No request is made until Embed or Warm.
func NewClient(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	return &Client{
		url:    strings.TrimRight(cfg.URL, "/"),
		model:  cfg.Model,
		client: &http.Client{Timeout: t},
	}
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "ollama:" + c.model }

// Dimension is zero until the first successful Embed or Warm.
func (c *Client) Dimension() int { return c.dimension }

// Warm embeds a short text so the model is loaded on the host and its
// dimension is known before any real work.
func (c *Client) Warm(ctx context.Context) error {
	_, err := c.Embed(ctx, []string{"warm up"})
	return err
}

// Embed returns one vector per input text.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(embedRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embed failed: %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	var parsed embedResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse embedding response: %w", err)
	}
	if len(parsed.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(parsed.Embeddings), len(texts))
	}
	for _, v := range parsed.Embeddings {
		if len(v) == 0 {
			return nil, errors.New("ollama returned an empty embedding")
		}
	}
	if c.dimension == 0 {
		c.dimension = len(parsed.Embeddings[0])
	}
	return parsed.Embeddings, nil
}

// Ping checks that the host answers /api/tags.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama: /api/tags returned %s", resp.Status)
	}
	return nil
}
