package commands

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"librarian/internal/chunker"
	"librarian/internal/config"
	"librarian/internal/domain"
	"librarian/internal/embedding"
	"librarian/internal/embedding/hashing"
	ollamaembed "librarian/internal/embedding/ollama"
	openaiembed "librarian/internal/embedding/openai"
	"librarian/internal/extract"
	"librarian/internal/generator/extractive"
	ollamagen "librarian/internal/generator/ollama"
	openaigen "librarian/internal/generator/openai"
	"librarian/internal/service"
	"librarian/internal/vectorstore/memory"
	"librarian/internal/vectorstore/pinecone"
	"librarian/internal/vectorstore/qdrant"
	"librarian/internal/vectorstore/sqlite"
)

// app is the assembled service plus whatever must be released on exit.
type app struct {
	service *service.RAGService
	close   func() error
}

// buildApp assembles every component selected by cfg. Nothing is contacted
// over the network until the first ingest or query.
func buildApp(cfg *config.AppConfig) (*app, error) {
	emb, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	ch, err := chunker.New(cfg.Chunker.ChunkSize, cfg.Chunker.Overlap)
	if err != nil {
		return nil, err
	}
	idx, closeIdx, err := newIndex(cfg)
	if err != nil {
		return nil, err
	}
	gen, err := newGenerator(cfg)
	if err != nil {
		_ = closeIdx()
		return nil, err
	}
	svc := service.NewRAGService(ch, emb, idx, gen, extract.New(), service.Options{
		TopK:      cfg.Retrieval.TopK,
		Threshold: cfg.Retrieval.SimilarityThreshold,
	})
	return &app{service: svc, close: closeIdx}, nil
}

func newEmbedder(cfg *config.AppConfig) (*embedding.Shared, error) {
	var opts []embedding.Option
	if cfg.Embedder.Serialize {
		opts = append(opts, embedding.WithSerializedAccess())
	}
	dim := cfg.Embedder.Dimension

	switch cfg.Embedder.Type {
	case "hashing":
		return embedding.Static(hashing.NewEmbedder(dim), opts...), nil
	case "openai":
		oc := cfg.Embedder.OpenAI
		client, err := openaiembed.NewClient(openaiembed.Config{
			BaseURL:    oc.BaseURL,
			APIKeyEnv:  oc.APIKeyEnv,
			Model:      oc.Model,
			Dimensions: dim,
			Timeout:    seconds(oc.TimeoutSecs),
		})
		if err != nil {
			return nil, domain.Wrap(domain.ErrConfiguration, "openai embedder", err)
		}
		return embedding.Static(client, opts...), nil
	case "ollama":
		oc := cfg.Embedder.Ollama
		client := ollamaembed.NewClient(ollamaembed.Config{
			URL:     oc.URL,
			Model:   oc.Model,
			Timeout: seconds(oc.TimeoutSecs),
		})
		// The model is pulled into memory on first use, which reveals its dimension.
		load := func(ctx context.Context) (domain.Embedder, error) {
			if err := client.Warm(ctx); err != nil {
				return nil, err
			}
			return client, nil
		}
		return embedding.NewShared(client.Name(), dim, load, opts...), nil
	default:
		return nil, domain.Errorf(domain.ErrConfiguration, "embedder", "unknown embedder: %s", cfg.Embedder.Type)
	}
}

func newIndex(cfg *config.AppConfig) (domain.VectorIndex, func() error, error) {
	noop := func() error { return nil }
	vs := cfg.VectorStore
	switch vs.Type {
	case "memory":
		return memory.NewStorage(), noop, nil
	case "sqlite":
		if dir := filepath.Dir(vs.SQLite.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, domain.Wrap(domain.ErrIndex, "sqlite", err)
			}
		}
		st, err := sqlite.NewStorage(vs.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case "qdrant":
		return qdrant.NewStorage(qdrant.Config{
			URL:        vs.Qdrant.URL,
			APIKey:     vs.Qdrant.APIKey,
			Collection: vs.Qdrant.Collection,
			Timeout:    seconds(vs.Qdrant.TimeoutSecs),
		}), noop, nil
	case "pinecone":
		pc := vs.Pinecone
		st, err := pinecone.NewStorage(pinecone.Config{
			APIKey:       pc.APIKey,
			Index:        pc.Index,
			Host:         pc.Host,
			Namespace:    pc.Namespace,
			Cloud:        pc.Cloud,
			Region:       pc.Region,
			Timeout:      seconds(pc.TimeoutSecs),
			ReadyTimeout: seconds(pc.ReadyTimeoutSecs),
		})
		if err != nil {
			return nil, nil, err
		}
		return st, noop, nil
	default:
		return nil, nil, domain.Errorf(domain.ErrConfiguration, "vector store", "unknown vector store: %s", vs.Type)
	}
}

func newGenerator(cfg *config.AppConfig) (domain.AnswerGenerator, error) {
	gc := cfg.Generator
	switch gc.Type {
	case "extractive":
		return extractive.New(gc.MaxSentences), nil
	case "ollama":
		return ollamagen.New(ollamagen.Config{
			URL:     gc.Ollama.URL,
			Model:   gc.Ollama.Model,
			Timeout: gc.Timeout(),
		}), nil
	case "openai":
		gen, err := openaigen.New(openaigen.Config{
			BaseURL:     gc.OpenAI.BaseURL,
			APIKeyEnv:   gc.OpenAI.APIKeyEnv,
			Model:       gc.OpenAI.Model,
			Temperature: gc.OpenAI.Temperature,
			Timeout:     gc.Timeout(),
		})
		if err != nil {
			return nil, err
		}
		return gen, nil
	default:
		return nil, domain.Errorf(domain.ErrConfiguration, "generator", "unknown generator: %s", gc.Type)
	}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
