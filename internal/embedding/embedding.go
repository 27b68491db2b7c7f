package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"rag-assistant/internal/config"
	"rag-assistant/internal/models"
)

var errEmptyEmbedding = errors.New("provider returned an empty vector")

// Provider is the external embedding capability. *embeddings.EmbedderImpl satisfies it.
type Provider interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Embedder turns text into a vector and never lets a provider failure escape
// as anything other than *models.EmbeddingError.
type Embedder struct {
	provider   Provider
	dimensions int
}

// New wraps provider. When dimensions is positive every vector is checked against it.
func New(provider Provider, dimensions int) *Embedder {
	return &Embedder{provider: provider, dimensions: dimensions}
}

// Dimensions returns the configured vector length, 0 if unchecked.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Embed returns the embedding of text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vec, err := e.provider.EmbedQuery(ctx, text)
	if err != nil {
		return nil, &models.EmbeddingError{Cause: err}
	}
	if len(vec) == 0 {
		return nil, &models.EmbeddingError{Cause: errEmptyEmbedding}
	}
	if e.dimensions > 0 && len(vec) != e.dimensions {
		return nil, &models.EmbeddingError{Cause: fmt.Errorf("%w: expected %d, got %d", models.ErrDimensionMismatch, e.dimensions, len(vec))}
	}

	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return out, nil
}

// NewFromConfig builds the embedder for the configured provider.
func NewFromConfig(cfg *config.LLMConfig, dimensions int) (*Embedder, error) {
	var (
		provider Provider
		err      error
	)
	switch cfg.Provider {
	case "openai":
		provider, err = NewOpenAIEmbedder(cfg)
	case "azure":
		provider, err = NewAzureEmbedder(cfg)
	case "ollama":
		provider, err = NewOllamaEmbedder(cfg)
	case "hash":
		provider = NewHashProvider(dimensions)
	default:
		return nil, &models.ConfigurationError{Field: "embed_llm.provider", Reason: fmt.Sprintf("unknown provider %q", cfg.Provider)}
	}
	if err != nil {
		return nil, err
	}
	return New(provider, dimensions), nil
}

// NewOpenAIEmbedder creates an embedder for any OpenAI-compatible endpoint
func NewOpenAIEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Str("base_url", cfg.BaseURL).Str("embedding_model", cfg.Model).Msg("Creating OpenAI embedder")

	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init openai client: %w", err)
	}
	return embeddings.NewEmbedder(llm)
}

// NewAzureEmbedder targets an Azure OpenAI embedding deployment.
func NewAzureEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Str("endpoint", cfg.BaseURL).Str("deployment", cfg.Model).Msg("Creating Azure OpenAI embedder")

	llm, err := openai.New(
		openai.WithAPIType(openai.APITypeAzure),
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithAPIVersion(cfg.APIVersion),
		openai.WithToken(cfg.Key),
		openai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("init azure openai client: %w", err)
	}
	return embeddings.NewEmbedder(llm)
}

// new ollama embedder
func NewOllamaEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	log.Debug().Str("base_url", cfg.BaseURL).Str("embedding_model", cfg.Model).Msg("Creating Ollama embedder")

	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("init ollama client: %w", err)
	}
	return embeddings.NewEmbedder(llm)
}
