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

// PaymentRepository stores payment collections, their sessions and the payments
// recorded for authorized sessions.
type PaymentRepository struct {
	collections *mongo.Collection
	sessions    *mongo.Collection
	payments    *mongo.Collection
}

func NewPaymentRepository(db *mongo.Database) *PaymentRepository {
	return &PaymentRepository{
		collections: db.Collection(collCollections),
		sessions:    db.Collection(collSessions),
		payments:    db.Collection(collPayments),
	}
}

func (r *PaymentRepository) GetCollection(ctx context.Context, id string) (*models.PaymentCollection, error) {
	var pc models.PaymentCollection
	if err := r.collections.FindOne(ctx, bson.M{"_id": id}).Decode(&pc); err != nil {
		return nil, mapFindError("get payment collection", err)
	}
	return &pc, nil
}

func (r *PaymentRepository) GetCollectionByCart(ctx context.Context, cartID string) (*models.PaymentCollection, error) {
	var pc models.PaymentCollection
	if err := r.collections.FindOne(ctx, bson.M{"cart_id": cartID}).Decode(&pc); err != nil {
		return nil, mapFindError("get payment collection", err)
	}
	return &pc, nil
}

// InsertCollection fails with models.ErrDuplicate when the cart already has a collection.
func (r *PaymentRepository) InsertCollection(ctx context.Context, pc *models.PaymentCollection) error {
	_, err := r.collections.InsertOne(ctx, pc)
	return mapWriteError("insert payment collection", err)
}

func (r *PaymentRepository) UpdateCollectionAmount(ctx context.Context, id string, amount int64, at time.Time) error {
	update := bson.M{"$set": bson.M{"amount": amount, "updated_at": at}}
	result, err := r.collections.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return mapWriteError("update payment collection", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("update payment collection %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (r *PaymentRepository) GetSession(ctx context.Context, id string) (*models.PaymentSession, error) {
	var session models.PaymentSession
	if err := r.sessions.FindOne(ctx, bson.M{"_id": id}).Decode(&session); err != nil {
		return nil, mapFindError("get payment session", err)
	}
	return &session, nil
}

// ListSessions returns the sessions of a collection, oldest first.
func (r *PaymentRepository) ListSessions(ctx context.Context, collectionID string) ([]models.PaymentSession, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.sessions.Find(ctx, bson.M{"payment_collection_id": collectionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list payment sessions: %w", err)
	}
	defer cursor.Close(ctx)

	sessions := []models.PaymentSession{}
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("decode payment sessions: %w", err)
	}
	return sessions, nil
}

// InsertSession fails with models.ErrDuplicate when a pending session for the same
// provider already exists in the collection.
func (r *PaymentRepository) InsertSession(ctx context.Context, session *models.PaymentSession) error {
	_, err := r.sessions.InsertOne(ctx, session)
	return mapWriteError("insert payment session", err)
}

// DeleteSession removes a pending claim that never reached the gateway.
func (r *PaymentRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.sessions.DeleteOne(ctx, bson.M{"_id": id, "status": models.SessionPending})
	if err != nil {
		return fmt.Errorf("delete payment session: %w", err)
	}
	return nil
}

func (r *PaymentRepository) UpdateSessionData(ctx context.Context, id string, data models.SessionData, at time.Time) error {
	update := bson.M{"$set": bson.M{"data": data, "updated_at": at}}
	result, err := r.sessions.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("update payment session data: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("update payment session data %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// TransitionSession moves a session from one status to the next. It only matches a
// session still in from, so concurrent callers cannot both win; the loser gets models.ErrConflict.
func (r *PaymentRepository) TransitionSession(ctx context.Context, id string, from, to models.SessionStatus, reason string, at time.Time) error {
	set := bson.M{"status": to, "updated_at": at}
	if to == models.SessionAuthorized {
		set["authorized_at"] = at
	}
	if reason != "" {
		set["error_reason"] = reason
	}

	result, err := r.sessions.UpdateOne(ctx, bson.M{"_id": id, "status": from}, bson.M{"$set": set})
	if err != nil {
		return mapWriteError("transition payment session", err)
	}
	if result.MatchedCount == 0 {
		if _, err := r.GetSession(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("transition payment session %s from %s: %w", id, from, models.ErrConflict)
	}
	return nil
}

func (r *PaymentRepository) GetPaymentBySession(ctx context.Context, sessionID string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.payments.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&payment); err != nil {
		return nil, mapFindError("get payment", err)
	}
	return &payment, nil
}

// InsertPayment fails with models.ErrDuplicate when the session already has a payment.
func (r *PaymentRepository) InsertPayment(ctx context.Context, payment *models.Payment) error {
	_, err := r.payments.InsertOne(ctx, payment)
	return mapWriteError("insert payment", err)
}

func (r *PaymentRepository) CreateIndexes(ctx context.Context) error {
	onePending := options.Index().
		SetUnique(true).
		SetPartialFilterExpression(bson.M{"status": models.SessionPending}).
		SetName("one_pending_session_per_provider")

	if _, err := r.collections.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "cart_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to create payment collection indexes: %w", err)
	}

	if _, err := r.sessions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "payment_collection_id", Value: 1}, {Key: "provider_id", Value: 1}}, Options: onePending},
		{Keys: bson.D{{Key: "payment_collection_id", Value: 1}, {Key: "created_at", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("failed to create payment session indexes: %w", err)
	}

	if _, err := r.payments.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "session_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to create payment indexes: %w", err)
	}
	return nil
}
