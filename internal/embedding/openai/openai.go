package openai

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Client is an OpenAI-compatible embeddings client implementing the Embedder interface.
type Client struct {
	model     string
	dimension int
	api       openai.Client
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	// Dimensions is sent to models that support shortened embeddings. Zero keeps the model default.
	Dimensions int
	Timeout    time.Duration
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	api := openai.NewClient(
		option.WithAPIKey(key),
		option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"),
		option.WithHTTPClient(&http.Client{Timeout: t}),
		option.WithMaxRetries(0),
	)
	return &Client{model: cfg.Model, dimension: cfg.Dimensions, api: api}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai:" + c.model }

// Dimension returns the requested dimensionality, or zero when the model default applies.
func (c *Client) Dimension() int { return c.dimension }

// Embed sends all texts in one request and returns vectors in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(c.model),
	}
	if c.dimension > 0 {
		params.Dimensions = openai.Int(int64(c.dimension))
	}
	resp, err := c.api.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("openai returned embedding with out-of-range index %d", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if len(v) == 0 {
			return nil, fmt.Errorf("openai returned no embedding for input %d", i)
		}
	}
	return out, nil
}
