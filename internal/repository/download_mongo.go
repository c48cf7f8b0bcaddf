package repository

import (
	"context"
	"fmt"
	"time"

	"spritenest-api/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDownloadRepository implements DownloadRepository backed by a MongoDB
// collection. The download log is append-only, which fits a document
// collection; asset metadata stays relational.
type MongoDownloadRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoDownloadRepository creates a new MongoDB download repository.
func NewMongoDownloadRepository(uri, dbName, collectionName string) (*MongoDownloadRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	collection := client.Database(dbName).Collection(collectionName)

	return &MongoDownloadRepository{
		client:     client,
		collection: collection,
	}, nil
}

// Log appends exactly one event document.
func (r *MongoDownloadRepository) Log(ctx context.Context, e *model.DownloadEvent) error {
	fillEvent(e)
	if _, err := r.collection.InsertOne(ctx, e); err != nil {
		return fmt.Errorf("failed to log download: %w", err)
	}
	return nil
}

// BatchLog appends multiple events in one call.
func (r *MongoDownloadRepository) BatchLog(ctx context.Context, events []model.DownloadEvent) error {
	if len(events) == 0 {
		return nil
	}

	docs := make([]interface{}, len(events))
	for i := range events {
		fillEvent(&events[i])
		docs[i] = events[i]
	}

	if _, err := r.collection.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to batch log downloads: %w", err)
	}
	return nil
}

// ListByAsset returns events, newest first, with the total count.
func (r *MongoDownloadRepository) ListByAsset(ctx context.Context, assetID string, limit, offset int) ([]model.DownloadEvent, int64, error) {
	filter := bson.M{}
	if assetID != "" {
		filter["assetid"] = assetID
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count downloads: %w", err)
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "createdat", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list downloads: %w", err)
	}
	defer cursor.Close(ctx)

	events := []model.DownloadEvent{}
	if err := cursor.All(ctx, &events); err != nil {
		return nil, 0, fmt.Errorf("failed to decode downloads: %w", err)
	}

	return events, total, nil
}

// CountByAsset returns the number of events for one asset.
func (r *MongoDownloadRepository) CountByAsset(ctx context.Context, assetID string) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"assetid": assetID})
	if err != nil {
		return 0, fmt.Errorf("failed to count downloads: %w", err)
	}
	return count, nil
}

// Close disconnects the MongoDB client.
func (r *MongoDownloadRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

var _ DownloadRepository = (*MongoDownloadRepository)(nil)
