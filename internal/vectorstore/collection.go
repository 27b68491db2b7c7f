package vectorstore

import (
	"context"

	"rag-assistant/internal/models"
)

// IndexInfo is an existing index as listed by a backend. Descriptor is nil
// when the backend cannot describe the index beyond its keys.
type IndexInfo struct {
	Name       string
	Keys       []string
	Descriptor *models.IndexDescriptor
}

// Covers reports whether the index is built over field.
func (i IndexInfo) Covers(field string) bool {
	for _, k := range i.Keys {
		if k == field {
			return true
		}
	}
	return false
}

// Match is a raw hit from a backend vector query. Fields holds the stored
// document without its embedding.
type Match struct {
	Fields map[string]any
	Score  float64
}

// Collection is the persistent document collection a Store runs on.
// CreateVectorIndex must report an unsupported kind as *models.IndexUnsupportedError.
type Collection interface {
	ListIndexes(ctx context.Context) ([]IndexInfo, error)
	CreateVectorIndex(ctx context.Context, desc models.IndexDescriptor) error
	InsertMany(ctx context.Context, records []models.EmbeddingRecord) (int, error)
	VectorSearch(ctx context.Context, query []float64, k int) ([]Match, error)
	Count(ctx context.Context) (int, error)
	DeleteAll(ctx context.Context) (int, error)
}
