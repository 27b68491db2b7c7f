// Package mongodb stores embeddings in an Azure Cosmos DB for MongoDB (vCore)
// collection and queries them with the cosmosSearch aggregation stage.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"rag-assistant/internal/helper"
	"rag-assistant/internal/models"
	"rag-assistant/internal/vectorstore"
)

const scoreField = "score"

// Connect opens a client and verifies the server is reachable.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping: %w", err)
	}
	return client, nil
}

// Collection implements vectorstore.Collection on a Cosmos vCore collection.
type Collection struct {
	db   *mongo.Database
	coll *mongo.Collection
}

func NewCollection(db *mongo.Database, name string) *Collection {
	return &Collection{db: db, coll: db.Collection(name)}
}

type cosmosSearchOptions struct {
	Kind           string `bson:"kind"`
	Dimensions     int    `bson:"dimensions"`
	Similarity     string `bson:"similarity"`
	NumLists       int    `bson:"numLists,omitempty"`
	M              int    `bson:"m,omitempty"`
	EfConstruction int    `bson:"efConstruction,omitempty"`
}

type indexSpec struct {
	Name                string               `bson:"name"`
	Key                 bson.D               `bson:"key"`
	CosmosSearchOptions *cosmosSearchOptions `bson:"cosmosSearchOptions,omitempty"`
}

func (c *Collection) ListIndexes(ctx context.Context) ([]vectorstore.IndexInfo, error) {
	cursor, err := c.coll.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	var specs []indexSpec
	if err := cursor.All(ctx, &specs); err != nil {
		return nil, err
	}

	out := make([]vectorstore.IndexInfo, 0, len(specs))
	for _, s := range specs {
		info := vectorstore.IndexInfo{Name: s.Name}
		for _, e := range s.Key {
			info.Keys = append(info.Keys, e.Key)
		}
		if s.CosmosSearchOptions != nil {
			info.Descriptor = descriptorFromOptions(s.Name, s.CosmosSearchOptions)
		}
		out = append(out, info)
	}
	return out, nil
}

func descriptorFromOptions(name string, o *cosmosSearchOptions) *models.IndexDescriptor {
	kind, err := models.ParseIndexKind(o.Kind)
	if err != nil {
		log.Warn().Str("kind", o.Kind).Msg("Unrecognised cosmos index kind")
	}
	return &models.IndexDescriptor{
		Name:             name,
		Kind:             kind,
		Dimensions:       o.Dimensions,
		SimilarityMetric: models.SimilarityCosine,
		Tuning:           models.IndexTuning{NumLists: o.NumLists, M: o.M, EfConstruction: o.EfConstruction},
	}
}

// similarity names as Cosmos spells them
var similarityNames = map[string]string{models.SimilarityCosine: "COS"}

// CreateVectorIndex runs createIndexes with cosmosSearchOptions. An index that
// already exists counts as created.
func (c *Collection) CreateVectorIndex(ctx context.Context, desc models.IndexDescriptor) error {
	opts := cosmosSearchOptions{
		Kind:           "vector-" + string(desc.Kind),
		Dimensions:     desc.Dimensions,
		Similarity:     similarityNames[desc.SimilarityMetric],
		NumLists:       desc.Tuning.NumLists,
		M:              desc.Tuning.M,
		EfConstruction: desc.Tuning.EfConstruction,
	}
	cmd := bson.D{
		{Key: "createIndexes", Value: c.coll.Name()},
		{Key: "indexes", Value: bson.A{
			bson.D{
				{Key: "name", Value: desc.Name},
				{Key: "key", Value: bson.D{{Key: models.FieldEmbedding, Value: "cosmosSearch"}}},
				{Key: "cosmosSearchOptions", Value: opts},
			},
		}},
	}
	err := c.db.RunCommand(ctx, cmd).Err()
	if err == nil {
		return nil
	}
	return classifyIndexError(desc.Kind, err)
}

func classifyIndexError(kind models.IndexKind, err error) error {
	msg := strings.ToLower(err.Error())
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		msg = strings.ToLower(cmdErr.Message)
	}
	switch {
	case strings.Contains(msg, "already exists"):
		log.Debug().Err(err).Msg("Vector index already exists")
		return nil
	case strings.Contains(msg, "not supported"):
		return &models.IndexUnsupportedError{Kind: kind, Cause: err}
	}
	return err
}

func (c *Collection) InsertMany(ctx context.Context, records []models.EmbeddingRecord) (int, error) {
	docs := make([]any, 0, len(records))
	for _, r := range records {
		id, err := helper.GenerateUUID()
		if err != nil {
			return 0, err
		}
		doc := bson.M{models.FieldChunkID: id, models.FieldEmbedding: r.Embedding}
		for k, v := range vectorstore.RecordFields(r) {
			doc[k] = v
		}
		docs = append(docs, doc)
	}
	res, err := c.coll.InsertMany(ctx, docs)
	if res != nil {
		return len(res.InsertedIDs), err
	}
	return 0, err
}

func (c *Collection) VectorSearch(ctx context.Context, query []float64, k int) ([]vectorstore.Match, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$search", Value: bson.D{
			{Key: "cosmosSearch", Value: bson.D{
				{Key: "vector", Value: query},
				{Key: "path", Value: models.FieldEmbedding},
				{Key: "k", Value: k},
			}},
			{Key: "returnStoredSource", Value: true},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: models.FieldContent, Value: bson.D{{Key: "$ifNull", Value: bson.A{
				"$" + models.FieldContent,
				bson.D{{Key: "$ifNull", Value: bson.A{"$" + models.FieldTextChunk, "$" + models.FieldText}}},
			}}}},
			{Key: models.FieldSource, Value: 1},
			{Key: models.FieldPage, Value: 1},
			{Key: models.FieldChunkIndex, Value: 1},
			{Key: scoreField, Value: bson.D{{Key: "$meta", Value: "searchScore"}}},
		}}},
	}
	cursor, err := c.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	matches := make([]vectorstore.Match, 0, len(docs))
	for _, d := range docs {
		score, _ := d[scoreField].(float64)
		delete(d, scoreField)
		matches = append(matches, vectorstore.Match{Fields: d, Score: score})
	}
	return matches, nil
}

func (c *Collection) Count(ctx context.Context) (int, error) {
	n, err := c.coll.CountDocuments(ctx, bson.D{})
	return int(n), err
}

func (c *Collection) DeleteAll(ctx context.Context) (int, error) {
	res, err := c.coll.DeleteMany(ctx, bson.D{})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}
