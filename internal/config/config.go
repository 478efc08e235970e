package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"librarian/internal/domain"
)

// OllamaEmbedderConfig holds configuration for embeddings served by Ollama.
type OllamaEmbedderConfig struct {
	URL         string `yaml:"url"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
// Dimension is also the dimension the vector index is created with.
type EmbedderConfig struct {
	Type      string                `yaml:"type"`
	Dimension int                   `yaml:"dimension"`
	Serialize bool                  `yaml:"serialize"`
	Ollama    *OllamaEmbedderConfig `yaml:"ollama,omitempty"`
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// ChunkerConfig configures how documents are split into word windows.
type ChunkerConfig struct {
	ChunkSize int `yaml:"chunk_size"`
	Overlap   int `yaml:"overlap"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type     string          `yaml:"type"`
	SQLite   *SQLiteConfig   `yaml:"sqlite,omitempty"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty"`
	Pinecone *PineconeConfig `yaml:"pinecone,omitempty"`
}

// SQLiteConfig locates the local index database.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// PineconeConfig contains connection details for a Pinecone serverless index.
type PineconeConfig struct {
	APIKey           string `yaml:"api_key"`
	Index            string `yaml:"index"`
	Host             string `yaml:"host"`
	Namespace        string `yaml:"namespace"`
	Cloud            string `yaml:"cloud"`
	Region           string `yaml:"region"`
	TimeoutSecs      int    `yaml:"timeout_secs"`
	ReadyTimeoutSecs int    `yaml:"ready_timeout_secs"`
}

// RetrievalConfig tunes the query path.
type RetrievalConfig struct {
	TopK                int     `yaml:"top_k"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// OllamaGeneratorConfig configures answer generation through Ollama.
type OllamaGeneratorConfig struct {
	URL   string `yaml:"url"`
	Model string `yaml:"model"`
}

// OpenAIGeneratorConfig configures answer generation through an OpenAI-compatible API.
type OpenAIGeneratorConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
}

// GeneratorConfig selects and configures the answer generator.
type GeneratorConfig struct {
	Type         string                 `yaml:"type"`
	TimeoutSecs  int                    `yaml:"timeout_secs"`
	MaxSentences int                    `yaml:"max_sentences"`
	Ollama       *OllamaGeneratorConfig `yaml:"ollama,omitempty"`
	OpenAI       *OpenAIGeneratorConfig `yaml:"openai,omitempty"`
}

// Timeout returns the generation timeout as a duration.
func (g GeneratorConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSecs) * time.Second
}

// LogConfig configures the log file. Logs always go to stderr as well, except in the chat UI.
type LogConfig struct {
	File string `yaml:"file"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Log         LogConfig         `yaml:"log"`
}

// Load reads a config from a specified path. Keys missing from the file keep
// their default values. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, domain.Wrap(domain.ErrConfiguration, "load config "+path, err)
	}
	applyConfigDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./librarian.yaml first, then ~/.config/librarian/config.yaml.
// If neither exists, it writes defaults to ~/.config/librarian/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "librarian.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := DefaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// DefaultUserConfigPath returns ~/.config/librarian/config.yaml.
func DefaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "librarian", "config.yaml"), nil
}

func defaultDataPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".local", "share", "librarian", name)
}

// Default returns the configuration used when no file exists: Ollama for
// embeddings and generation, a SQLite index in the user's data directory.
func Default() *AppConfig {
	return &AppConfig{
		Embedder: EmbedderConfig{
			Type:      "ollama",
			Dimension: 384,
			Ollama:    &OllamaEmbedderConfig{URL: "http://localhost:11434", Model: "all-minilm", TimeoutSecs: 30},
		},
		Chunker: ChunkerConfig{ChunkSize: 800, Overlap: 100},
		VectorStore: VectorStoreConfig{
			Type:   "sqlite",
			SQLite: &SQLiteConfig{Path: defaultDataPath("index.db")},
		},
		Retrieval: RetrievalConfig{TopK: 5, SimilarityThreshold: 0.4},
		Generator: GeneratorConfig{
			Type:         "ollama",
			TimeoutSecs:  30,
			MaxSentences: 3,
			Ollama:       &OllamaGeneratorConfig{URL: "http://localhost:11434", Model: "llama3.1:8b"},
		},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}
	if cfg.Embedder.Type == "ollama" && cfg.Embedder.Ollama == nil {
		cfg.Embedder.Ollama = &OllamaEmbedderConfig{URL: "http://localhost:11434", Model: "all-minilm", TimeoutSecs: 30}
	}
	if cfg.VectorStore.Type == "sqlite" && (cfg.VectorStore.SQLite == nil || cfg.VectorStore.SQLite.Path == "") {
		cfg.VectorStore.SQLite = &SQLiteConfig{Path: defaultDataPath("index.db")}
	}
	if q := cfg.VectorStore.Qdrant; q != nil {
		if q.URL == "" {
			q.URL = "http://localhost:6333"
		}
		if q.Collection == "" {
			q.Collection = "librarian"
		}
	}
	if p := cfg.VectorStore.Pinecone; p != nil && p.Index == "" {
		p.Index = "alex-librarian"
	}
	if cfg.Generator.Type == "openai" && cfg.Generator.OpenAI == nil {
		cfg.Generator.OpenAI = &OpenAIGeneratorConfig{}
	}
	if cfg.Generator.Type == "ollama" && cfg.Generator.Ollama == nil {
		cfg.Generator.Ollama = &OllamaGeneratorConfig{URL: "http://localhost:11434", Model: "llama3.1:8b"}
	}
}

// Validate reports the first invalid setting as a configuration error.
func (c *AppConfig) Validate() error {
	fail := func(format string, args ...any) error {
		return domain.Errorf(domain.ErrConfiguration, "config", format, args...)
	}
	switch c.Embedder.Type {
	case "ollama", "openai", "hashing":
	default:
		return fail("unknown embedder %q (want ollama, openai or hashing)", c.Embedder.Type)
	}
	if c.Embedder.Dimension <= 0 {
		return fail("embedder.dimension must be positive, got %d", c.Embedder.Dimension)
	}
	if c.Chunker.ChunkSize <= 0 {
		return fail("chunker.chunk_size must be positive, got %d", c.Chunker.ChunkSize)
	}
	if c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.ChunkSize {
		return fail("chunker.overlap must be in [0, %d), got %d", c.Chunker.ChunkSize, c.Chunker.Overlap)
	}
	switch c.VectorStore.Type {
	case "memory":
	case "sqlite":
		if c.VectorStore.SQLite == nil || c.VectorStore.SQLite.Path == "" {
			return fail("vector_store.sqlite.path is required")
		}
	case "qdrant":
		if c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.URL == "" || c.VectorStore.Qdrant.Collection == "" {
			return fail("vector_store.qdrant needs url and collection")
		}
	case "pinecone":
		if c.VectorStore.Pinecone == nil || c.VectorStore.Pinecone.APIKey == "" {
			return fail("vector_store.pinecone.api_key is required (or set PINECONE_API_KEY)")
		}
	default:
		return fail("unknown vector store %q (want sqlite, memory, qdrant or pinecone)", c.VectorStore.Type)
	}
	if c.Retrieval.TopK <= 0 {
		return fail("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if t := c.Retrieval.SimilarityThreshold; t < -1 || t > 1 {
		return fail("retrieval.similarity_threshold must be within [-1, 1], got %g", t)
	}
	switch c.Generator.Type {
	case "ollama", "openai", "extractive":
	default:
		return fail("unknown generator %q (want ollama, openai or extractive)", c.Generator.Type)
	}
	if c.Generator.TimeoutSecs <= 0 {
		return fail("generator.timeout_secs must be positive, got %d", c.Generator.TimeoutSecs)
	}
	return nil
}

// String renders the config as YAML, with secrets masked.
func (c *AppConfig) String() string {
	masked := *c
	if p := c.VectorStore.Pinecone; p != nil {
		cp := *p
		cp.APIKey = mask(cp.APIKey)
		masked.VectorStore.Pinecone = &cp
	}
	if q := c.VectorStore.Qdrant; q != nil {
		cq := *q
		cq.APIKey = mask(cq.APIKey)
		masked.VectorStore.Qdrant = &cq
	}
	data, err := yaml.Marshal(&masked)
	if err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return string(data)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
