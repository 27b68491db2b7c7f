package config

import (
	"time"

	"rag-assistant/internal/models"
)

const (
	BackendMemory   = "memory"
	BackendMongo    = "mongo"
	BackendPgvector = "pgvector"
	BackendChromem  = "chromem"

	DriverPgdriver = "pgdriver"
	DriverPQ       = "pq"
)

const (
	defaultChunkSize           = 1000 // words
	defaultChunkOverlap        = 100  // words
	defaultEmbeddingDimensions = 1536
	defaultEmbedConcurrency    = 8
	defaultTemperature         = 0.2
	defaultMaxTokens           = 300
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RAG.Backend == "" {
		cfg.RAG.Backend = BackendMemory
	}
	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = defaultChunkSize
		if cfg.RAG.ChunkOverlap == 0 {
			cfg.RAG.ChunkOverlap = defaultChunkOverlap
		}
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = models.DefaultTopK
	}
	if cfg.RAG.EmbeddingDimensions == 0 {
		cfg.RAG.EmbeddingDimensions = defaultEmbeddingDimensions
	}
	if cfg.RAG.IndexKind == "" {
		cfg.RAG.IndexKind = string(models.IndexIVF)
	}
	if cfg.RAG.NumLists == 0 {
		cfg.RAG.NumLists = models.DefaultNumLists
	}
	if cfg.RAG.M == 0 {
		cfg.RAG.M = models.DefaultHNSWM
	}
	if cfg.RAG.EfConstruction == 0 {
		cfg.RAG.EfConstruction = models.DefaultEfConstruction
	}
	if cfg.RAG.EmbedConcurrency == 0 {
		cfg.RAG.EmbedConcurrency = defaultEmbedConcurrency
	}

	for _, llm := range []*LLMConfig{&cfg.EmbedLLM, &cfg.PrimaryLLM, &cfg.FallbackLLM} {
		if llm.Provider == "" {
			llm.Provider = "azure"
		}
		if llm.Temperature == 0 {
			llm.Temperature = defaultTemperature
		}
		if llm.MaxTokens == 0 {
			llm.MaxTokens = defaultMaxTokens
		}
	}
	if cfg.PrimaryLLM.SystemMessage == "" {
		cfg.PrimaryLLM.SystemMessage = models.PrimarySystemMessage
	}

	if cfg.Mongo.Collection == "" {
		cfg.Mongo.Collection = "documents"
	}
	if cfg.Mongo.HistoryCollection == "" {
		cfg.Mongo.HistoryCollection = "chat_history"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPgdriver
	}
	if cfg.Database.Table == "" {
		cfg.Database.Table = "documents"
	}
	if cfg.Chromem.Path == "" {
		cfg.Chromem.Path = "./chromemdb"
	}
	if cfg.Chromem.Collection == "" {
		cfg.Chromem.Collection = "documents"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":5000"
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
}
