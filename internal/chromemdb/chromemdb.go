package chromemdb

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"rag-assistant/internal/config"
	"rag-assistant/internal/helper"
	"rag-assistant/internal/models"
	"rag-assistant/internal/vectorstore"
)

// VectorDBManager keeps embeddings in a chromem-go collection. Search is
// exhaustive, so the only index kind it accepts is ivf, recorded as metadata.
type VectorDBManager struct {
	db            *chromem.DB
	collection    *chromem.Collection
	name          string
	dbPath        string
	compress      bool
	encryptionKey string
	filePath      string

	mu    sync.RWMutex
	index *models.IndexDescriptor
}

// NewVectorDBManager opens the database and the named collection.
func NewVectorDBManager(cfg *config.ChromemConfig) (*VectorDBManager, error) {
	var db *chromem.DB
	var err error
	if cfg.InMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %v", err)
		}
	}

	m := &VectorDBManager{
		db:            db,
		name:          cfg.Collection,
		dbPath:        cfg.Path,
		compress:      cfg.Compress,
		encryptionKey: cfg.EncryptionKey,
		filePath:      filepath.Join(cfg.Path, cfg.Collection+".chromem"),
	}
	if err := m.open(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *VectorDBManager) open() error {
	c, err := m.db.GetOrCreateCollection(m.name, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to create/get collection: %v", err)
	}
	m.collection = c
	return nil
}

func (m *VectorDBManager) ListIndexes(context.Context) ([]vectorstore.IndexInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.index == nil {
		return nil, nil
	}
	desc := *m.index
	return []vectorstore.IndexInfo{{Name: desc.Name, Keys: []string{models.FieldEmbedding}, Descriptor: &desc}}, nil
}

func (m *VectorDBManager) CreateVectorIndex(_ context.Context, desc models.IndexDescriptor) error {
	if desc.Kind != models.IndexIVF {
		return &models.IndexUnsupportedError{Kind: desc.Kind}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = &desc
	return nil
}

func (m *VectorDBManager) InsertMany(ctx context.Context, records []models.EmbeddingRecord) (int, error) {
	docs := make([]chromem.Document, 0, len(records))
	for _, r := range records {
		id, err := helper.GenerateUUID()
		if err != nil {
			return 0, err
		}
		docs = append(docs, chromem.Document{
			ID:        id,
			Content:   r.Content,
			Metadata:  CreateMetadata(r),
			Embedding: toFloat32(r.Embedding),
		})
	}

	err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU())
	if err != nil {
		return 0, fmt.Errorf("failed to add documents: %v", err)
	}
	return len(docs), nil
}

// CreateMetadata flattens the record location into chromem's string metadata.
func CreateMetadata(r models.EmbeddingRecord) map[string]string {
	return map[string]string{
		models.FieldSource:     r.SourceID,
		models.FieldPage:       strconv.Itoa(r.PageNumber),
		models.FieldChunkIndex: strconv.Itoa(r.ChunkIndex),
	}
}

func (m *VectorDBManager) VectorSearch(ctx context.Context, query []float64, k int) ([]vectorstore.Match, error) {
	// chromem rejects nResults larger than the collection
	n := m.collection.Count()
	if n == 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}

	results, err := m.collection.QueryEmbedding(ctx, toFloat32(query), k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %v", err)
	}
	matches := make([]vectorstore.Match, 0, len(results))
	for _, r := range results {
		fields := map[string]any{models.FieldContent: r.Content, models.FieldChunkID: r.ID}
		for key, v := range r.Metadata {
			fields[key] = v
		}
		matches = append(matches, vectorstore.Match{Fields: fields, Score: float64(r.Similarity)})
	}
	return matches, nil
}

func (m *VectorDBManager) Count(context.Context) (int, error) {
	return m.collection.Count(), nil
}

// DeleteAll drops the collection and recreates it empty.
func (m *VectorDBManager) DeleteAll(context.Context) (int, error) {
	n := m.collection.Count()
	if err := m.db.DeleteCollection(m.name); err != nil {
		return 0, fmt.Errorf("failed to drop collection: %v", err)
	}
	if err := m.open(); err != nil {
		return 0, err
	}
	return n, nil
}

// Export writes the collection to an encrypted file next to the database.
func (m *VectorDBManager) Export(ctx context.Context) error {
	if m.encryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}
	if m.dbPath == "" {
		return fmt.Errorf("db path is required")
	}

	log.Debug().Str("collection", m.name).Str("file", m.filePath).Bool("compress", m.compress).Msg("Exporting collection")
	err := m.db.ExportToFile(m.filePath, m.compress, m.encryptionKey, m.name)
	if err != nil {
		return fmt.Errorf("failed to export database: %v", err)
	}
	return nil
}

// Import loads a file written by Export.
func (m *VectorDBManager) Import(ctx context.Context) error {
	if m.encryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}
	err := m.db.ImportFromFile(m.filePath, m.encryptionKey, m.name)
	if err != nil {
		return fmt.Errorf("failed to import database: %v", err)
	}
	return m.open()
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
