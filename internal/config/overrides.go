package config

import (
	"github.com/spf13/viper"
)

// Override keys. Each is bound to an environment variable in BindEnv and may
// also be bound to a command-line flag by the caller.
const (
	KeyEmbedder         = "embedder.type"
	KeyVectorStore      = "vector_store.type"
	KeyGenerator        = "generator.type"
	KeyTopK             = "retrieval.top_k"
	KeyThreshold        = "retrieval.similarity_threshold"
	KeyOllamaHost       = "ollama.host"
	KeyOllamaModel      = "generator.ollama.model"
	KeyPineconeAPIKey   = "vector_store.pinecone.api_key"
	KeyPineconeIndex    = "vector_store.pinecone.index"
	KeyPineconeHost     = "vector_store.pinecone.host"
	KeyQdrantAPIKey     = "vector_store.qdrant.api_key"
	KeySQLitePath       = "vector_store.sqlite.path"
	KeyGeneratorTimeout = "generator.timeout_secs"
	KeyLogFile          = "log.file"
)

var envNames = map[string][]string{
	KeyEmbedder:         {"LIBRARIAN_EMBEDDER"},
	KeyVectorStore:      {"LIBRARIAN_VECTOR_STORE"},
	KeyGenerator:        {"LIBRARIAN_GENERATOR"},
	KeyTopK:             {"MAX_DOCS"},
	KeyThreshold:        {"SIMILARITY_THRESHOLD"},
	KeyOllamaHost:       {"OLLAMA_HOST"},
	KeyOllamaModel:      {"OLLAMA_MODEL"},
	KeyPineconeAPIKey:   {"PINECONE_API_KEY"},
	KeyPineconeIndex:    {"PINECONE_INDEX"},
	KeyPineconeHost:     {"PINECONE_HOST"},
	KeyQdrantAPIKey:     {"QDRANT_API_KEY"},
	KeySQLitePath:       {"LIBRARIAN_INDEX_PATH"},
	KeyGeneratorTimeout: {"LIBRARIAN_GENERATION_TIMEOUT"},
	KeyLogFile:          {"LIBRARIAN_LOG_FILE"},
}

// BindEnv binds every override key to its environment variable.
func BindEnv(v *viper.Viper) error {
	for key, names := range envNames {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return err
		}
	}
	return nil
}

// ApplyOverrides copies every key set in v (by environment or flag) onto cfg.
// Overrides win over the config file.
func ApplyOverrides(cfg *AppConfig, v *viper.Viper) {
	if v.IsSet(KeyEmbedder) {
		cfg.Embedder.Type = v.GetString(KeyEmbedder)
	}
	if v.IsSet(KeyVectorStore) {
		cfg.VectorStore.Type = v.GetString(KeyVectorStore)
	}
	if v.IsSet(KeyGenerator) {
		cfg.Generator.Type = v.GetString(KeyGenerator)
	}
	if v.IsSet(KeyTopK) {
		cfg.Retrieval.TopK = v.GetInt(KeyTopK)
	}
	if v.IsSet(KeyThreshold) {
		cfg.Retrieval.SimilarityThreshold = v.GetFloat64(KeyThreshold)
	}
	if v.IsSet(KeyGeneratorTimeout) {
		cfg.Generator.TimeoutSecs = v.GetInt(KeyGeneratorTimeout)
	}
	if v.IsSet(KeyOllamaHost) {
		host := v.GetString(KeyOllamaHost)
		if cfg.Generator.Ollama == nil {
			cfg.Generator.Ollama = &OllamaGeneratorConfig{}
		}
		cfg.Generator.Ollama.URL = host
		if cfg.Embedder.Ollama == nil {
			cfg.Embedder.Ollama = &OllamaEmbedderConfig{}
		}
		cfg.Embedder.Ollama.URL = host
	}
	if v.IsSet(KeyOllamaModel) {
		if cfg.Generator.Ollama == nil {
			cfg.Generator.Ollama = &OllamaGeneratorConfig{}
		}
		cfg.Generator.Ollama.Model = v.GetString(KeyOllamaModel)
	}
	if v.IsSet(KeyPineconeAPIKey) || v.IsSet(KeyPineconeIndex) || v.IsSet(KeyPineconeHost) {
		if cfg.VectorStore.Pinecone == nil {
			cfg.VectorStore.Pinecone = &PineconeConfig{}
		}
		if v.IsSet(KeyPineconeAPIKey) {
			cfg.VectorStore.Pinecone.APIKey = v.GetString(KeyPineconeAPIKey)
		}
		if v.IsSet(KeyPineconeIndex) {
			cfg.VectorStore.Pinecone.Index = v.GetString(KeyPineconeIndex)
		}
		if v.IsSet(KeyPineconeHost) {
			cfg.VectorStore.Pinecone.Host = v.GetString(KeyPineconeHost)
		}
	}
	if v.IsSet(KeyQdrantAPIKey) {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		cfg.VectorStore.Qdrant.APIKey = v.GetString(KeyQdrantAPIKey)
	}
	if v.IsSet(KeySQLitePath) {
		if cfg.VectorStore.SQLite == nil {
			cfg.VectorStore.SQLite = &SQLiteConfig{}
		}
		cfg.VectorStore.SQLite.Path = v.GetString(KeySQLitePath)
	}
	if v.IsSet(KeyLogFile) {
		cfg.Log.File = v.GetString(KeyLogFile)
	}
	applyConfigDefaults(cfg)
}
