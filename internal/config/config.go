package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"rag-assistant/internal/models"
)

type Config struct {
	LogLevel    string         `yaml:"log_level"`
	RAG         RAGConfig      `yaml:"rag"`
	EmbedLLM    LLMConfig      `yaml:"embed_llm"`
	PrimaryLLM  LLMConfig      `yaml:"primary_llm"`
	FallbackLLM LLMConfig      `yaml:"fallback_llm"`
	Mongo       MongoConfig    `yaml:"mongo"`
	Database    DatabaseConfig `yaml:"database"`
	Chromem     ChromemConfig  `yaml:"chromem"`
	Server      ServerConfig   `yaml:"server"`
}

type RAGConfig struct {
	Backend             string `yaml:"backend"`
	ChunkSize           int    `yaml:"chunk_size"`
	ChunkOverlap        int    `yaml:"chunk_overlap"`
	TopK                int    `yaml:"top_k"`
	EmbeddingDimensions int    `yaml:"embedding_dimensions"`
	IndexKind           string `yaml:"index_kind"`
	NumLists            int    `yaml:"num_lists"`
	M                   int    `yaml:"m"`
	EfConstruction      int    `yaml:"ef_construction"`
	EmbedConcurrency    int    `yaml:"embed_concurrency"`
}

// Tuning returns the index parameters for the configured kind.
func (r RAGConfig) Tuning() models.IndexTuning {
	return models.IndexTuning{NumLists: r.NumLists, M: r.M, EfConstruction: r.EfConstruction}
}

// LLMConfig configures one model endpoint. Provider is openai, azure or ollama.
type LLMConfig struct {
	Provider      string  `yaml:"provider"`
	BaseURL       string  `yaml:"base_url"`
	Key           string  `yaml:"key"`
	Model         string  `yaml:"model"`
	APIVersion    string  `yaml:"api_version"`
	Temperature   float64 `yaml:"temperature"`
	MaxTokens     int     `yaml:"max_tokens"`
	SystemMessage string  `yaml:"system_message"`
}

type MongoConfig struct {
	URI               string `yaml:"uri"`
	Database          string `yaml:"database"`
	Collection        string `yaml:"collection"`
	HistoryCollection string `yaml:"history_collection"`
}

type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Driver   string `yaml:"driver"`
	Table    string `yaml:"table"`
	Debug    bool   `yaml:"debug"`
}

type ChromemConfig struct {
	Path          string `yaml:"path"`
	Collection    string `yaml:"collection"`
	InMemory      bool   `yaml:"in_memory"`
	Compress      bool   `yaml:"compress"`
	EncryptionKey string `yaml:"encryption_key"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// IngestDir confines POST /ingest to files under this directory.
	// The route is not registered when it is empty.
	IngestDir string `yaml:"ingest_dir"`
}

// LoadConfig reads the YAML file at path, applies environment overrides
// (a .env file next to the process is loaded when present), fills defaults and validates.
// A missing file is not an error: the environment alone can configure the process.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	_ = godotenv.Load()
	applyEnv(&cfg)
	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// environment variable names follow the original deployment's .env layout
func applyEnv(cfg *Config) {
	setString(&cfg.Mongo.URI, "COSMOS_CONNECTION_STRING")
	setString(&cfg.Mongo.Database, "COSMOS_DATABASE_NAME")
	setString(&cfg.Mongo.Collection, "COSMOS_COLLECTION_NAME")
	setString(&cfg.Mongo.HistoryCollection, "COSMOS_HISTORY_COLLECTION_NAME")

	// the three deployments share one Azure resource unless the file says otherwise
	for _, llm := range []*LLMConfig{&cfg.EmbedLLM, &cfg.PrimaryLLM, &cfg.FallbackLLM} {
		fillString(&llm.BaseURL, "AZURE_OPENAI_ENDPOINT")
		fillString(&llm.Key, "AZURE_OPENAI_KEY")
		fillString(&llm.APIVersion, "AZURE_OPENAI_API_VERSION")
	}
	setString(&cfg.EmbedLLM.Model, "EMBEDDING_MODEL_DEPLOYMENT")
	setString(&cfg.PrimaryLLM.Model, "ASSISTANT_DEPLOYMENT")
	setString(&cfg.FallbackLLM.Model, "AUTOGEN_DEPLOYMENT")

	setString(&cfg.Database.DSN, "DATABASE_URL")
	setString(&cfg.Chromem.EncryptionKey, "CHROMEM_ENCRYPTION_KEY")
	setString(&cfg.RAG.Backend, "VECTOR_BACKEND")
	setString(&cfg.RAG.IndexKind, "VECTOR_INDEX_TYPE")
	setInt(&cfg.RAG.ChunkSize, "CHUNK_SIZE")
	setInt(&cfg.RAG.ChunkOverlap, "CHUNK_OVERLAP")
	setInt(&cfg.RAG.EmbeddingDimensions, "EMBEDDING_DIMENSIONS")
	setString(&cfg.Server.IngestDir, "INGEST_DIR")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func fillString(dst *string, key string) {
	if *dst == "" {
		setString(dst, key)
	}
}

func setInt(dst *int, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

// Validate rejects settings that would make the pipeline misbehave.
func (c *Config) Validate() error {
	if c.RAG.ChunkSize <= 0 {
		return &models.ConfigurationError{Field: "rag.chunk_size", Reason: "must be positive"}
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return &models.ConfigurationError{Field: "rag.chunk_overlap", Reason: "must satisfy 0 <= overlap < chunk_size"}
	}
	if c.RAG.EmbeddingDimensions <= 0 {
		return &models.ConfigurationError{Field: "rag.embedding_dimensions", Reason: "must be positive"}
	}
	if c.RAG.TopK <= 0 {
		return &models.ConfigurationError{Field: "rag.top_k", Reason: "must be positive"}
	}
	if _, err := models.ParseIndexKind(c.RAG.IndexKind); err != nil {
		return &models.ConfigurationError{Field: "rag.index_kind", Reason: err.Error()}
	}
	switch c.RAG.Backend {
	case BackendMemory, BackendMongo, BackendPgvector, BackendChromem:
	default:
		return &models.ConfigurationError{Field: "rag.backend", Reason: "unknown backend " + strconv.Quote(c.RAG.Backend)}
	}
	switch c.Database.Driver {
	case DriverPgdriver, DriverPQ:
	default:
		return &models.ConfigurationError{Field: "database.driver", Reason: "unknown driver " + strconv.Quote(c.Database.Driver)}
	}
	return nil
}
