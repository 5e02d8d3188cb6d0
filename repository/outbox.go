package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"go-storefront/models"
)

// OutboxRepository persists order-completion events until they are dispatched.
type OutboxRepository struct {
	collection *mongo.Collection
}

func NewOutboxRepository(db *mongo.Database) *OutboxRepository {
	return &OutboxRepository{collection: db.Collection(collOutbox)}
}

// Upsert stores rec unless a record with the same event id already exists.
func (r *OutboxRepository) Upsert(ctx context.Context, rec models.OutboxRecord) error {
	filter := bson.M{"_id": rec.EventID}
	update := bson.M{"$setOnInsert": rec}
	_, err := r.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("upsert outbox record: %w", err)
	}
	return nil
}

// Pending returns undelivered records that are not dead, oldest first.
func (r *OutboxRepository) Pending(ctx context.Context, limit int) ([]models.OutboxRecord, error) {
	filter := bson.M{"sent_at": bson.M{"$exists": false}, "dead": false}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}).SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find pending outbox records: %w", err)
	}
	defer cursor.Close(ctx)

	records := []models.OutboxRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode outbox records: %w", err)
	}
	return records, nil
}

func (r *OutboxRepository) MarkSent(ctx context.Context, eventID string, at time.Time) error {
	update := bson.M{"$set": bson.M{"sent_at": at}}
	if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": eventID}, update); err != nil {
		return fmt.Errorf("mark outbox record sent: %w", err)
	}
	return nil
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, eventID, lastError string, dead bool) error {
	update := bson.M{
		"$inc": bson.M{"attempts": 1},
		"$set": bson.M{"last_error": lastError, "dead": dead},
	}
	if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": eventID}, update); err != nil {
		return fmt.Errorf("mark outbox record failed: %w", err)
	}
	return nil
}

func (r *OutboxRepository) CreateIndexes(ctx context.Context) error {
	index := mongo.IndexModel{Keys: bson.D{{Key: "dead", Value: 1}, {Key: "created_at", Value: 1}}}
	if _, err := r.collection.Indexes().CreateOne(ctx, index); err != nil {
		return fmt.Errorf("failed to create outbox indexes: %w", err)
	}
	return nil
}
