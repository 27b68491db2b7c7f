package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"rag-assistant/internal/models"
)

// MemoryCollection is an in-process Collection with exhaustive cosine search.
// Supported index kinds are configurable so lower backend tiers can be simulated.
type MemoryCollection struct {
	mu        sync.RWMutex
	docs      []map[string]any
	index     *models.IndexDescriptor
	supported map[models.IndexKind]bool
}

type MemoryOption func(*MemoryCollection)

// WithSupportedKinds restricts which index kinds CreateVectorIndex accepts.
func WithSupportedKinds(kinds ...models.IndexKind) MemoryOption {
	return func(c *MemoryCollection) {
		c.supported = make(map[models.IndexKind]bool, len(kinds))
		for _, k := range kinds {
			c.supported[k] = true
		}
	}
}

func NewMemoryCollection(opts ...MemoryOption) *MemoryCollection {
	c := &MemoryCollection{
		supported: map[models.IndexKind]bool{
			models.IndexIVF:     true,
			models.IndexHNSW:    true,
			models.IndexDiskANN: true,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Seed stores raw documents as-is. Each must carry an embedding under
// models.FieldEmbedding as []float64.
func (c *MemoryCollection) Seed(docs ...map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range docs {
		cp := make(map[string]any, len(d))
		for k, v := range d {
			cp[k] = v
		}
		c.docs = append(c.docs, cp)
	}
}

func (c *MemoryCollection) ListIndexes(context.Context) ([]IndexInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.index == nil {
		return nil, nil
	}
	desc := *c.index
	return []IndexInfo{{Name: desc.Name, Keys: []string{models.FieldEmbedding}, Descriptor: &desc}}, nil
}

func (c *MemoryCollection) CreateVectorIndex(_ context.Context, desc models.IndexDescriptor) error {
	if !c.supported[desc.Kind] {
		return &models.IndexUnsupportedError{Kind: desc.Kind}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index != nil {
		return nil
	}
	c.index = &desc
	return nil
}

func (c *MemoryCollection) InsertMany(_ context.Context, records []models.EmbeddingRecord) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range records {
		doc := RecordFields(r)
		doc[models.FieldEmbedding] = append([]float64(nil), r.Embedding...)
		c.docs = append(c.docs, doc)
	}
	return len(records), nil
}

func (c *MemoryCollection) VectorSearch(_ context.Context, query []float64, k int) ([]Match, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	matches := make([]Match, 0, len(c.docs))
	for _, doc := range c.docs {
		emb, ok := doc[models.FieldEmbedding].([]float64)
		if !ok {
			continue
		}
		if len(emb) != len(query) {
			return nil, fmt.Errorf("stored embedding has %d dimensions, query has %d", len(emb), len(query))
		}
		fields := make(map[string]any, len(doc))
		for key, v := range doc {
			if key != models.FieldEmbedding {
				fields[key] = v
			}
		}
		matches = append(matches, Match{Fields: fields, Score: CosineSimilarity(query, emb)})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (c *MemoryCollection) Count(context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs), nil
}

func (c *MemoryCollection) DeleteAll(context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.docs)
	c.docs = nil
	return n, nil
}

// CosineSimilarity returns 0 when either vector has zero norm.
func CosineSimilarity(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
