package history

import (
	"context"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoRecorder keeps the transcript in a chat history collection.
type MongoRecorder struct {
	coll *mongo.Collection
}

func NewMongoRecorder(db *mongo.Database, collection string) *MongoRecorder {
	return &MongoRecorder{coll: db.Collection(collection)}
}

func (r *MongoRecorder) Record(ctx context.Context, role, content string) error {
	if err := validRole(role); err != nil {
		return err
	}
	_, err := r.coll.InsertOne(ctx, Message{Role: role, Content: content, CreatedAt: time.Now().UTC()})
	return err
}

func (r *MongoRecorder) Recent(ctx context.Context, limit int) ([]Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}
	var msgs []Message
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

func (r *MongoRecorder) Clear(ctx context.Context) error {
	_, err := r.coll.DeleteMany(ctx, bson.D{})
	return err
}
