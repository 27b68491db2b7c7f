package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"rag-assistant/internal/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.RAG.ChunkSize != 1000 || cfg.RAG.ChunkOverlap != 100 {
		t.Errorf("chunking = %d/%d, want 1000/100", cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	}
	if cfg.RAG.TopK != 5 {
		t.Errorf("TopK = %d, want 5", cfg.RAG.TopK)
	}
	if cfg.RAG.Backend != BackendMemory {
		t.Errorf("Backend = %q", cfg.RAG.Backend)
	}
	if cfg.RAG.IndexKind != "ivf" || cfg.RAG.NumLists != 100 {
		t.Errorf("index = %s/%d", cfg.RAG.IndexKind, cfg.RAG.NumLists)
	}
	if cfg.PrimaryLLM.MaxTokens != 300 || cfg.PrimaryLLM.Temperature != 0.2 {
		t.Errorf("primary llm = %+v", cfg.PrimaryLLM)
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
rag:
  backend: pgvector
  chunk_size: 50
  chunk_overlap: 0
  embedding_dimensions: 768
  index_kind: vector-hnsw
database:
  dsn: postgres://localhost/rag
  driver: pq
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.RAG.ChunkSize != 50 || cfg.RAG.ChunkOverlap != 0 {
		t.Errorf("chunking = %d/%d", cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	}
	if cfg.RAG.EmbeddingDimensions != 768 {
		t.Errorf("dims = %d", cfg.RAG.EmbeddingDimensions)
	}
	if cfg.Database.Driver != DriverPQ {
		t.Errorf("driver = %q", cfg.Database.Driver)
	}
	if got := cfg.RAG.Tuning(); got.M != 16 || got.EfConstruction != 64 {
		t.Errorf("tuning = %+v", got)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("COSMOS_CONNECTION_STRING", "mongodb://cosmos.example")
	t.Setenv("COSMOS_DATABASE_NAME", "store")
	t.Setenv("CHUNK_SIZE", "200")
	t.Setenv("CHUNK_OVERLAP", "20")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://example.openai.azure.com")
	t.Setenv("AUTOGEN_DEPLOYMENT", "gpt-4o-mini")

	path := writeConfig(t, `
primary_llm:
  base_url: http://localhost:11434
  provider: ollama
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Mongo.URI != "mongodb://cosmos.example" || cfg.Mongo.Database != "store" {
		t.Errorf("mongo = %+v", cfg.Mongo)
	}
	if cfg.RAG.ChunkSize != 200 || cfg.RAG.ChunkOverlap != 20 {
		t.Errorf("chunking = %d/%d", cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	}
	if cfg.FallbackLLM.BaseURL != "https://example.openai.azure.com" || cfg.FallbackLLM.Model != "gpt-4o-mini" {
		t.Errorf("fallback = %+v", cfg.FallbackLLM)
	}
	if cfg.PrimaryLLM.BaseURL != "http://localhost:11434" {
		t.Errorf("file value should win for primary base url, got %q", cfg.PrimaryLLM.BaseURL)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"overlap equals size", "rag:\n  chunk_size: 10\n  chunk_overlap: 10\n", "rag.chunk_overlap"},
		{"overlap above size", "rag:\n  chunk_size: 10\n  chunk_overlap: 11\n", "rag.chunk_overlap"},
		{"negative overlap", "rag:\n  chunk_size: 10\n  chunk_overlap: -1\n", "rag.chunk_overlap"},
		{"negative size", "rag:\n  chunk_size: -5\n", "rag.chunk_size"},
		{"unknown kind", "rag:\n  index_kind: flat\n", "rag.index_kind"},
		{"unknown backend", "rag:\n  backend: redis\n", "rag.backend"},
		{"unknown driver", "database:\n  driver: mysql\n", "database.driver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			var cerr *models.ConfigurationError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if cerr.Field != tt.field {
				t.Errorf("Field = %q, want %q", cerr.Field, tt.field)
			}
		})
	}
}
