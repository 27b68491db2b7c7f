// Package vectorstore owns the embedding collection: index lifecycle with
// kind fallback, validated bulk insert and ranked similarity search.
package vectorstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"rag-assistant/internal/metrics"
	"rag-assistant/internal/models"
)

// Searcher is the read path handed to the query orchestrator.
type Searcher interface {
	Search(ctx context.Context, query []float64, topK int) ([]models.RetrievalResult, error)
}

// Inserter is the write path handed to the ingestion pipeline.
type Inserter interface {
	Insert(ctx context.Context, records []models.EmbeddingRecord) (int, error)
}

type Store struct {
	coll       Collection
	dimensions int
}

func New(coll Collection, dimensions int) *Store {
	return &Store{coll: coll, dimensions: dimensions}
}

func (s *Store) Dimensions() int { return s.dimensions }

// EnsureIndex returns the vector index on the collection, creating one of the
// requested kind if none covers the embedding field. When the backend reports
// the kind as unsupported it retries once with ivf and default tuning. The
// returned descriptor reflects what actually exists.
func (s *Store) EnsureIndex(ctx context.Context, kind models.IndexKind, tuning models.IndexTuning) (*models.IndexDescriptor, error) {
	existing, err := s.coll.ListIndexes(ctx)
	if err != nil {
		return nil, &models.BackendError{Op: "list indexes", Cause: err}
	}
	for _, idx := range existing {
		if !idx.Covers(models.FieldEmbedding) {
			continue
		}
		log.Debug().Str("index", idx.Name).Msg("Vector index already exists")
		if idx.Descriptor != nil {
			return idx.Descriptor, nil
		}
		return &models.IndexDescriptor{
			Name:             idx.Name,
			Dimensions:       s.dimensions,
			SimilarityMetric: models.SimilarityCosine,
		}, nil
	}

	desc := s.descriptor(kind, tuning)
	err = s.coll.CreateVectorIndex(ctx, desc)
	if err == nil {
		log.Info().Str("kind", string(kind)).Int("dimensions", s.dimensions).Msg("Created vector index")
		return &desc, nil
	}
	if !models.IsIndexUnsupported(err) || kind == models.IndexIVF {
		return nil, fmt.Errorf("create %s index: %w", kind, err)
	}

	log.Warn().Err(err).Str("requested", string(kind)).Msg("Index kind not supported by backend, falling back to ivf")
	desc = s.descriptor(models.IndexIVF, models.DefaultTuning())
	if err := s.coll.CreateVectorIndex(ctx, desc); err != nil {
		return nil, fmt.Errorf("create fallback ivf index: %w", err)
	}
	metrics.IndexFallbacksTotal.WithLabelValues(string(kind), string(models.IndexIVF)).Inc()
	return &desc, nil
}

func (s *Store) descriptor(kind models.IndexKind, tuning models.IndexTuning) models.IndexDescriptor {
	return models.IndexDescriptor{
		Name:             models.VectorIndexName,
		Kind:             kind,
		Dimensions:       s.dimensions,
		SimilarityMetric: models.SimilarityCosine,
		Tuning:           tuning.ForKind(kind),
	}
}

// Insert writes records as one batch. The whole batch is rejected if any
// embedding has the wrong length.
func (s *Store) Insert(ctx context.Context, records []models.EmbeddingRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	for i, r := range records {
		if len(r.Embedding) != s.dimensions {
			return 0, &models.ValidationError{Index: i, Expected: s.dimensions, Got: len(r.Embedding)}
		}
	}
	n, err := s.coll.InsertMany(ctx, records)
	if err != nil {
		return n, &models.BackendError{Op: "insert", Cause: err}
	}
	return n, nil
}

// Search returns at most topK results ordered by descending score. Ties keep
// the backend order.
func (s *Store) Search(ctx context.Context, query []float64, topK int) ([]models.RetrievalResult, error) {
	if topK <= 0 {
		return nil, &models.ConfigurationError{Field: "top_k", Reason: "must be positive"}
	}
	if len(query) != s.dimensions {
		return nil, fmt.Errorf("%w: expected %d, got %d", models.ErrDimensionMismatch, s.dimensions, len(query))
	}
	matches, err := s.coll.VectorSearch(ctx, query, topK)
	if err != nil {
		return nil, &models.BackendError{Op: "search", Cause: err}
	}

	results := make([]models.RetrievalResult, 0, len(matches))
	for _, m := range matches {
		r, ok := Project(m)
		if !ok {
			log.Debug().Interface("fields", m.Fields).Msg("Skipping match without text")
			continue
		}
		results = append(results, r)
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.coll.Count(ctx)
	if err != nil {
		return 0, &models.BackendError{Op: "count", Cause: err}
	}
	return n, nil
}

// DeleteAll removes every record. Only administrative callers hold a *Store;
// the query path sees a Searcher.
func (s *Store) DeleteAll(ctx context.Context) (int, error) {
	n, err := s.coll.DeleteAll(ctx)
	if err != nil {
		return n, &models.BackendError{Op: "delete", Cause: err}
	}
	log.Info().Int("deleted", n).Msg("Deleted all records")
	return n, nil
}
