package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"go-storefront/models"
)

const (
	collCarts           = "carts"
	collRegions         = "regions"
	collVariants        = "variants"
	collShippingOptions = "shipping_options"
	collPromotions      = "promotions"
	collCollections     = "payment_collections"
	collSessions        = "payment_sessions"
	collPayments        = "payments"
	collOrders          = "orders"
	collOutbox          = "outbox"
)

func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100).
		SetMinPoolSize(10)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

// CreateIndexes creates every index the stores rely on for uniqueness.
func CreateIndexes(ctx context.Context, db *mongo.Database) error {
	creators := []func(context.Context) error{
		NewCartRepository(db).CreateIndexes,
		NewPaymentRepository(db).CreateIndexes,
		NewOrderRepository(db).CreateIndexes,
		NewOutboxRepository(db).CreateIndexes,
	}
	for _, create := range creators {
		if err := create(ctx); err != nil {
			return err
		}
	}
	return nil
}

// mapWriteError turns driver errors the services care about into storage sentinels.
func mapWriteError(op string, err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s: %w", op, models.ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func mapFindError(op string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}
