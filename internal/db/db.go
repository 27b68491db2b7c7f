// Package db stores embeddings in a PostgreSQL table with a pgvector column,
// accessed through bun.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"rag-assistant/internal/config"
	"rag-assistant/internal/helper"
	"rag-assistant/internal/models"
	"rag-assistant/internal/vectorstore"
)

type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`
	ID            int64           `bun:"id,pk,autoincrement"`
	ChunkID       string          `bun:"chunk_id"`
	Content       string          `bun:"content,notnull"`
	Source        string          `bun:"source"`
	Page          int             `bun:"page"`
	ChunkIndex    int             `bun:"chunk_index"`
	Embedding     pgvector.Vector `bun:"embedding,notnull,type:vector"`
}

type searchRow struct {
	Content    string  `bun:"content"`
	Source     string  `bun:"source"`
	Page       int     `bun:"page"`
	ChunkIndex int     `bun:"chunk_index"`
	Score      float64 `bun:"score"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the database with the configured driver: bun's pgdriver or lib/pq.
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case config.DriverPQ:
		return sql.Open("postgres", cfg.DSN)
	case config.DriverPgdriver:
		opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	}
	return nil, &models.ConfigurationError{Field: "database.driver", Reason: fmt.Sprintf("unknown driver %q", cfg.Driver)}
}

// Collection implements vectorstore.Collection on one pgvector table.
type Collection struct {
	db         *bun.DB
	table      string
	dimensions int
}

func NewCollection(db *bun.DB, table string, dimensions int) *Collection {
	return &Collection{db: db, table: table, dimensions: dimensions}
}

// InitDB creates the vector extension and the table if missing.
func (c *Collection) InitDB(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create extension: %w", err)
	}
	_, err := c.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS ? (
		id bigserial PRIMARY KEY,
		chunk_id text,
		content text NOT NULL,
		source text,
		page integer,
		chunk_index integer,
		embedding vector(?) NOT NULL
	)`, bun.Ident(c.table), c.dimensions)
	if err != nil {
		return fmt.Errorf("create table %s: %w", c.table, err)
	}
	return nil
}

func (c *Collection) indexName(name string) string {
	return c.table + "_" + name
}

var (
	indexMethodRe = regexp.MustCompile(`USING (\w+) \(([^)]*)\)`)
	indexParamRe  = regexp.MustCompile(`(\w+)='?(\d+)'?`)
)

func (c *Collection) ListIndexes(ctx context.Context) ([]vectorstore.IndexInfo, error) {
	var rows []struct {
		Name string `bun:"indexname"`
		Def  string `bun:"indexdef"`
	}
	err := c.db.NewSelect().
		TableExpr("pg_indexes").
		Column("indexname", "indexdef").
		Where("tablename = ?", c.table).
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	out := make([]vectorstore.IndexInfo, 0, len(rows))
	for _, r := range rows {
		out = append(out, c.parseIndexDef(r.Name, r.Def))
	}
	return out, nil
}

// parseIndexDef reads a pg_indexes definition such as
// CREATE INDEX x ON public.documents USING hnsw (embedding vector_cosine_ops) WITH (m='16', ef_construction='64')
func (c *Collection) parseIndexDef(name, def string) vectorstore.IndexInfo {
	info := vectorstore.IndexInfo{Name: name}
	m := indexMethodRe.FindStringSubmatch(def)
	if m == nil {
		return info
	}
	for _, col := range strings.Split(m[2], ",") {
		if fields := strings.Fields(col); len(fields) > 0 {
			info.Keys = append(info.Keys, fields[0])
		}
	}

	var kind models.IndexKind
	switch m[1] {
	case "ivfflat":
		kind = models.IndexIVF
	case "hnsw":
		kind = models.IndexHNSW
	default:
		return info
	}
	desc := &models.IndexDescriptor{
		Name:             name,
		Kind:             kind,
		Dimensions:       c.dimensions,
		SimilarityMetric: models.SimilarityCosine,
	}
	for _, p := range indexParamRe.FindAllStringSubmatch(def, -1) {
		n, _ := strconv.Atoi(p[2])
		switch p[1] {
		case "lists":
			desc.Tuning.NumLists = n
		case "m":
			desc.Tuning.M = n
		case "ef_construction":
			desc.Tuning.EfConstruction = n
		}
	}
	info.Descriptor = desc
	return info
}

func (c *Collection) CreateVectorIndex(ctx context.Context, desc models.IndexDescriptor) error {
	name := bun.Ident(c.indexName(desc.Name))
	table := bun.Ident(c.table)

	var err error
	switch desc.Kind {
	case models.IndexIVF:
		_, err = c.db.ExecContext(ctx,
			"CREATE INDEX IF NOT EXISTS ? ON ? USING ivfflat (embedding vector_cosine_ops) WITH (lists = ?)",
			name, table, desc.Tuning.NumLists)
	case models.IndexHNSW:
		_, err = c.db.ExecContext(ctx,
			"CREATE INDEX IF NOT EXISTS ? ON ? USING hnsw (embedding vector_cosine_ops) WITH (m = ?, ef_construction = ?)",
			name, table, desc.Tuning.M, desc.Tuning.EfConstruction)
	default:
		return &models.IndexUnsupportedError{Kind: desc.Kind}
	}
	if err != nil {
		return classifyIndexError(desc.Kind, err)
	}
	return nil
}

// classifyIndexError maps a missing access method (hnsw before pgvector 0.5)
// to IndexUnsupportedError so the caller can fall back to ivfflat.
func classifyIndexError(kind models.IndexKind, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "access method") && strings.Contains(msg, "does not exist") {
		return &models.IndexUnsupportedError{Kind: kind, Cause: err}
	}
	return err
}

func (c *Collection) InsertMany(ctx context.Context, records []models.EmbeddingRecord) (int, error) {
	docs := make([]Document, 0, len(records))
	for _, r := range records {
		id, err := helper.GenerateUUID()
		if err != nil {
			return 0, err
		}
		docs = append(docs, Document{
			ChunkID:    id,
			Content:    r.Content,
			Source:     r.SourceID,
			Page:       r.PageNumber,
			ChunkIndex: r.ChunkIndex,
			Embedding:  pgvector.NewVector(toFloat32(r.Embedding)),
		})
	}
	res, err := c.db.NewInsert().
		Model(&docs).
		ModelTableExpr("?", bun.Ident(c.table)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		log.Warn().Err(err).Msg("Driver did not report affected rows")
		return len(docs), nil
	}
	return int(n), nil
}

// VectorSearch orders by cosine distance; the score is cosine similarity.
func (c *Collection) VectorSearch(ctx context.Context, query []float64, k int) ([]vectorstore.Match, error) {
	vec := pgvector.NewVector(toFloat32(query))
	var rows []searchRow
	err := c.db.NewSelect().
		TableExpr("?", bun.Ident(c.table)).
		Column("content", "source", "page", "chunk_index").
		ColumnExpr("1 - (embedding <=> ?) AS score", vec).
		OrderExpr("embedding <=> ?", vec).
		Limit(k).
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	matches := make([]vectorstore.Match, 0, len(rows))
	for _, r := range rows {
		matches = append(matches, vectorstore.Match{
			Fields: map[string]any{
				models.FieldContent:    r.Content,
				models.FieldSource:     r.Source,
				models.FieldPage:       r.Page,
				models.FieldChunkIndex: r.ChunkIndex,
			},
			Score: r.Score,
		})
	}
	return matches, nil
}

func (c *Collection) Count(ctx context.Context) (int, error) {
	return c.db.NewSelect().TableExpr("?", bun.Ident(c.table)).Count(ctx)
}

func (c *Collection) DeleteAll(ctx context.Context) (int, error) {
	res, err := c.db.ExecContext(ctx, "DELETE FROM ?", bun.Ident(c.table))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// DropTable removes the table and its indexes.
func (c *Collection) DropTable(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, "DROP TABLE IF EXISTS ?", bun.Ident(c.table))
	return err
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
