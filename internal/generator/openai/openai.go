// Package openai generates answers through an OpenAI-compatible chat completions API.
package openai

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"librarian/internal/domain"
	"librarian/internal/generator"
)

const DefaultModel = "gpt-4o-mini"

type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type Generator struct {
	model       string
	temperature float64
	timeout     time.Duration
	api         openai.Client
}

func New(cfg Config) (*Generator, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, domain.Errorf(domain.ErrConfiguration, "openai generator", "missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = generator.DefaultTimeout
	}
	api := openai.NewClient(
		option.WithAPIKey(key),
		option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"),
		option.WithHTTPClient(&http.Client{}),
		option.WithMaxRetries(0),
	)
	return &Generator{model: cfg.Model, temperature: cfg.Temperature, timeout: cfg.Timeout, api: api}, nil
}

func (g *Generator) Name() string { return "openai:" + g.model }

// Generate sends the grounding instruction as the system message and the
// retrieved context with the question as the user message.
func (g *Generator) Generate(ctx context.Context, question, retrieved string) (string, error) {
	const op = "openai generate"
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	user := "Context:\n" + retrieved + "\n\nQuestion: " + question
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(generator.SystemInstruction),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(g.temperature),
	}
	resp, err := g.api.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", domain.Wrap(domain.ErrGeneration, op, err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.Errorf(domain.ErrGeneration, op, "model %s returned no choices", g.model)
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", domain.Errorf(domain.ErrGeneration, op, "model %s returned an empty answer", g.model)
	}
	return answer, nil
}
