package llmservice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"rag-assistant/internal/config"
	"rag-assistant/internal/metrics"
	"rag-assistant/internal/models"
)

// Generator is a text-generation capability. An empty answer is reported as
// models.ErrEmptyGeneration so callers have a single failure signal.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// LLMGenerator sends a single-turn prompt to a langchaingo model.
type LLMGenerator struct {
	name        string
	model       llms.Model
	temperature float64
	maxTokens   int
}

func NewGenerator(name string, model llms.Model, temperature float64, maxTokens int) *LLMGenerator {
	return &LLMGenerator{name: name, model: model, temperature: temperature, maxTokens: maxTokens}
}

// New builds a generator for the configured provider and deployment.
func New(name string, cfg *config.LLMConfig) (*LLMGenerator, error) {
	model, err := newModel(cfg)
	if err != nil {
		return nil, fmt.Errorf("init %s generator: %w", name, err)
	}
	return NewGenerator(name, model, cfg.Temperature, cfg.MaxTokens), nil
}

func (g *LLMGenerator) Name() string { return g.name }

// call llm
func (g *LLMGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	defer func() {
		metrics.GenerationLatency.WithLabelValues(g.name).Observe(time.Since(start).Seconds())
	}()

	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}
	res, err := g.model.GenerateContent(ctx, messages,
		llms.WithTemperature(g.temperature),
		llms.WithMaxTokens(g.maxTokens),
	)
	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(g.name, "error").Inc()
		return "", &models.GenerationError{Generator: g.name, Cause: err}
	}
	if res == nil || len(res.Choices) == 0 || strings.TrimSpace(res.Choices[0].Content) == "" {
		metrics.GenerationRequestsTotal.WithLabelValues(g.name, "empty").Inc()
		return "", &models.GenerationError{Generator: g.name, Cause: models.ErrEmptyGeneration}
	}
	metrics.GenerationRequestsTotal.WithLabelValues(g.name, "ok").Inc()
	return res.Choices[0].Content, nil
}

func newModel(cfg *config.LLMConfig) (llms.Model, error) {
	log.Debug().Str("provider", cfg.Provider).Str("base_url", cfg.BaseURL).Str("model", cfg.Model).Msg("Creating chat model")

	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	case "azure":
		return openai.New(
			openai.WithAPIType(openai.APITypeAzure),
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithAPIVersion(cfg.APIVersion),
			openai.WithToken(cfg.Key),
			openai.WithModel(cfg.Model),
		)
	case "ollama":
		return ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
	}
	return nil, &models.ConfigurationError{Field: "provider", Reason: fmt.Sprintf("unknown provider %q", cfg.Provider)}
}
