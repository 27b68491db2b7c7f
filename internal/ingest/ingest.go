// Package ingest drives documents through chunking, embedding and a single
// batched insert per document.
package ingest

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"rag-assistant/internal/chunker"
	"rag-assistant/internal/metrics"
	"rag-assistant/internal/models"
	"rag-assistant/internal/parser"
	"rag-assistant/internal/vectorstore"
)

// Embedder turns a chunk into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

type Options struct {
	ChunkSize    int
	ChunkOverlap int
	// Concurrency bounds in-flight embedding calls per document.
	Concurrency int
}

type Pipeline struct {
	embedder Embedder
	store    vectorstore.Inserter
	opts     Options
}

// NewPipeline fails with a ConfigurationError when the chunk sizing is invalid.
func NewPipeline(embedder Embedder, store vectorstore.Inserter, opts Options) (*Pipeline, error) {
	if err := chunker.Validate(opts.ChunkSize, opts.ChunkOverlap); err != nil {
		return nil, err
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Pipeline{embedder: embedder, store: store, opts: opts}, nil
}

// Chunk splits every page of a document.
func (p *Pipeline) Chunk(sourceID string, pages []models.Page) ([]models.Chunk, error) {
	var chunks []models.Chunk
	for _, page := range pages {
		pageChunks, err := chunker.ChunkPage(sourceID, page, p.opts.ChunkSize, p.opts.ChunkOverlap)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, pageChunks...)
	}
	return chunks, nil
}

// Ingest embeds and stores a document. Chunks that fail to embed are recorded
// in the report and skipped. The returned error is set only when the batch
// write fails or ctx is cancelled; nothing is written in the latter case.
func (p *Pipeline) Ingest(ctx context.Context, sourceID string, pages []models.Page) (*models.IngestionReport, error) {
	report := &models.IngestionReport{SourceID: sourceID}

	chunks, err := p.Chunk(sourceID, pages)
	if err != nil {
		return report, err
	}
	report.ChunksProduced = len(chunks)
	if len(chunks) == 0 {
		log.Info().Str("source", sourceID).Msg("No text to ingest")
		return report, nil
	}

	embeddings := make([][]float64, len(chunks))
	causes := make([]error, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for i := range chunks {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vec, err := p.embedder.Embed(gctx, chunks[i].Content)
			if err != nil {
				causes[i] = err
				return nil
			}
			embeddings[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	records := make([]models.EmbeddingRecord, 0, len(chunks))
	for i, c := range chunks {
		if causes[i] != nil {
			log.Warn().Err(causes[i]).Str("source", sourceID).Int("page", c.PageNumber).Int("chunk", c.ChunkIndex).Msg("Skipping chunk that failed to embed")
			report.Failures = append(report.Failures, models.ChunkFailure{Chunk: c.Ref(), Cause: causes[i]})
			continue
		}
		records = append(records, models.EmbeddingRecord{
			Content:    c.Content,
			Embedding:  embeddings[i],
			SourceID:   c.SourceID,
			PageNumber: c.PageNumber,
			ChunkIndex: c.ChunkIndex,
		})
	}
	report.ChunksEmbedded = len(records)
	metrics.ChunksTotal.WithLabelValues("embed_failed").Add(float64(len(report.Failures)))

	if len(records) == 0 {
		log.Warn().Str("source", sourceID).Int("failed", len(report.Failures)).Msg("No chunks embedded")
		return report, nil
	}

	n, err := p.store.Insert(ctx, records)
	report.ChunksStored = n
	metrics.ChunksTotal.WithLabelValues("stored").Add(float64(n))
	if n < len(records) {
		report.Partial = true
		metrics.ChunksTotal.WithLabelValues("store_failed").Add(float64(len(records) - n))
	}
	if err != nil {
		report.Partial = true
		log.Error().Err(err).Str("source", sourceID).Int("stored", n).Int("embedded", len(records)).Msg("Batch insert failed")
		return report, err
	}

	log.Info().
		Str("source", sourceID).
		Int("produced", report.ChunksProduced).
		Int("embedded", report.ChunksEmbedded).
		Int("stored", report.ChunksStored).
		Int("failed", len(report.Failures)).
		Msg("Ingested document")
	return report, nil
}

// IngestFile parses a file and ingests it. An empty sourceID defaults to the file name.
func (p *Pipeline) IngestFile(ctx context.Context, path, sourceID string) (*models.IngestionReport, error) {
	if sourceID == "" {
		sourceID = filepath.Base(path)
	}
	pages, err := parser.ParsePages(path)
	if err != nil {
		return &models.IngestionReport{SourceID: sourceID}, err
	}
	return p.Ingest(ctx, sourceID, pages)
}

// IngestFiles ingests several files one after another and returns a report per file.
// A failing file does not stop the others.
func (p *Pipeline) IngestFiles(ctx context.Context, paths []string) ([]*models.IngestionReport, error) {
	var reports []*models.IngestionReport
	var firstErr error
	for _, path := range paths {
		report, err := p.IngestFile(ctx, path, "")
		reports = append(reports, report)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if ctx.Err() != nil {
			break
		}
	}
	return reports, firstErr
}
