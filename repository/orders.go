package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"go-storefront/models"
)

type OrderRepository struct {
	collection *mongo.Collection
}

func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{collection: db.Collection(collOrders)}
}

func (r *OrderRepository) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&order); err != nil {
		return nil, mapFindError("get order", err)
	}
	return &order, nil
}

func (r *OrderRepository) GetOrderByCart(ctx context.Context, cartID string) (*models.Order, error) {
	var order models.Order
	if err := r.collection.FindOne(ctx, bson.M{"cart_id": cartID}).Decode(&order); err != nil {
		return nil, mapFindError("get order by cart", err)
	}
	return &order, nil
}

// InsertOrder fails with models.ErrDuplicate when an order already exists for the cart.
func (r *OrderRepository) InsertOrder(ctx context.Context, order *models.Order) error {
	_, err := r.collection.InsertOne(ctx, order)
	return mapWriteError("insert order", err)
}

func (r *OrderRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "cart_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create order indexes: %w", err)
	}
	return nil
}
