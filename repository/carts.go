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

type CartRepository struct {
	collection *mongo.Collection
}

func NewCartRepository(db *mongo.Database) *CartRepository {
	return &CartRepository{collection: db.Collection(collCarts)}
}

func (r *CartRepository) GetCart(ctx context.Context, id string) (*models.Cart, error) {
	var cart models.Cart
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&cart); err != nil {
		return nil, mapFindError("get cart", err)
	}
	return &cart, nil
}

func (r *CartRepository) GetActiveCartByCustomer(ctx context.Context, customerID string) (*models.Cart, error) {
	var cart models.Cart
	filter := bson.M{"customer_id": customerID, "active": true}
	if err := r.collection.FindOne(ctx, filter).Decode(&cart); err != nil {
		return nil, mapFindError("get active cart", err)
	}
	return &cart, nil
}

// InsertCart fails with models.ErrDuplicate when the customer already has an active cart.
func (r *CartRepository) InsertCart(ctx context.Context, cart *models.Cart) error {
	_, err := r.collection.InsertOne(ctx, cart)
	return mapWriteError("insert cart", err)
}

// SaveCart replaces an active cart. A cart retired in the meantime yields models.ErrConflict.
func (r *CartRepository) SaveCart(ctx context.Context, cart *models.Cart) error {
	filter := bson.M{"_id": cart.ID, "active": true}
	result, err := r.collection.ReplaceOne(ctx, filter, cart)
	if err != nil {
		return mapWriteError("save cart", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("save cart %s: %w", cart.ID, models.ErrConflict)
	}
	return nil
}

// RetireCart flips an active cart to retired and points it at its order.
func (r *CartRepository) RetireCart(ctx context.Context, cartID, orderID string, at time.Time) error {
	filter := bson.M{"_id": cartID, "active": true}
	update := bson.M{"$set": bson.M{
		"active":       false,
		"order_id":     orderID,
		"completed_at": at,
		"updated_at":   at,
	}}
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return mapWriteError("retire cart", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("retire cart %s: %w", cartID, models.ErrConflict)
	}
	return nil
}

func (r *CartRepository) CreateIndexes(ctx context.Context) error {
	oneActive := options.Index().
		SetUnique(true).
		SetPartialFilterExpression(bson.M{"active": true}).
		SetName("one_active_cart_per_customer")
	retired := options.Index().
		SetPartialFilterExpression(bson.M{"order_id": bson.M{"$exists": true}})

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "customer_id", Value: 1}}, Options: oneActive},
		{Keys: bson.D{{Key: "order_id", Value: 1}}, Options: retired},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create cart indexes: %w", err)
	}
	return nil
}
