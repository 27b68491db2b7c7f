// Package rag answers queries from retrieved context with a primary and a
// fallback generator.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"rag-assistant/internal/llmservice"
	"rag-assistant/internal/metrics"
	"rag-assistant/internal/models"
	"rag-assistant/internal/vectorstore"
)

// Embedder turns the query into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

type Options struct {
	// SystemMessage heads the primary prompt.
	SystemMessage string
	TopK          int
}

type RAG struct {
	embedder Embedder
	searcher vectorstore.Searcher
	primary  llmservice.Generator
	fallback llmservice.Generator
	opts     Options
}

// NewRAG wires the query path. fallback may be nil, in which case a failed
// primary generation fails the query.
func NewRAG(embedder Embedder, searcher vectorstore.Searcher, primary, fallback llmservice.Generator, opts Options) *RAG {
	if opts.SystemMessage == "" {
		opts.SystemMessage = models.PrimarySystemMessage
	}
	if opts.TopK <= 0 {
		opts.TopK = models.DefaultTopK
	}
	return &RAG{embedder: embedder, searcher: searcher, primary: primary, fallback: fallback, opts: opts}
}

// Answer never returns raw errors: a failed query yields models.SafeErrorMessage
// with Failed set, and the cause is logged. topK <= 0 uses the configured default.
func (r *RAG) Answer(ctx context.Context, query string, topK int) models.AnswerResult {
	if strings.TrimSpace(query) == "" {
		return models.AnswerResult{Text: models.NoQueryMessage, Failed: true}
	}
	if topK <= 0 {
		topK = r.opts.TopK
	}
	logger := log.With().Str("query", query).Int("top_k", topK).Logger()

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		logger.Error().Err(err).Msg("Could not embed query")
		return r.failed()
	}

	results, err := r.searcher.Search(ctx, queryVec, topK)
	if err != nil {
		var berr *models.BackendError
		if !errors.As(err, &berr) {
			logger.Error().Err(err).Msg("Search rejected query")
			return r.failed()
		}
		logger.Warn().Err(err).Msg("Search failed, answering without context")
		results = nil
	}
	contextText := BuildContext(results)
	logger.Debug().Int("results", len(results)).Msg("Retrieved context")

	answer := models.AnswerResult{ContextUsed: len(results) > 0, Sources: results}

	text, err := r.primary.Generate(ctx, PrimaryPrompt(r.opts.SystemMessage, contextText, query))
	if err == nil && strings.TrimSpace(text) != "" {
		answer.Text = text
		metrics.AnswersTotal.WithLabelValues("primary").Inc()
		return answer
	}
	logger.Warn().Err(err).Msg("Primary generation failed, trying fallback")

	if r.fallback == nil {
		return r.failed()
	}
	text, err = r.fallback.Generate(ctx, FallbackPrompt(contextText, query))
	if err != nil || strings.TrimSpace(text) == "" {
		logger.Error().Err(err).Msg("Fallback generation failed")
		return r.failed()
	}
	answer.Text = text
	answer.UsedFallback = true
	metrics.AnswersTotal.WithLabelValues("fallback").Inc()
	return answer
}

func (r *RAG) failed() models.AnswerResult {
	metrics.AnswersTotal.WithLabelValues("failed").Inc()
	return models.AnswerResult{Text: models.SafeErrorMessage, Failed: true}
}

// BuildContext joins result texts in the order given, separated by a blank line.
func BuildContext(results []models.RetrievalResult) string {
	texts := make([]string, 0, len(results))
	for _, r := range results {
		texts = append(texts, r.Content)
	}
	return strings.Join(texts, models.ContextSeparator)
}

func PrimaryPrompt(systemMessage, contextText, query string) string {
	return fmt.Sprintf(models.PrimaryPromptTemplate, systemMessage, contextText, query)
}

// FallbackPrompt restates the assistant role in full; it does not depend on
// anything the primary generator was told.
func FallbackPrompt(contextText, query string) string {
	return fmt.Sprintf(models.FallbackPromptTemplate, contextText, query)
}
