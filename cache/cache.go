package cache

import (
	"context"
	"errors"

	"go-storefront/models"
)

// CartCache is a cache in front of the cart store, keyed by cart id.
// Set never replaces a cached cart with one whose UpdatedAt is older.
type CartCache interface {
	Get(ctx context.Context, cartID string) (*models.Cart, error)
	Set(ctx context.Context, cart *models.Cart) error
	Delete(ctx context.Context, cartID string) error
}

var ErrCacheMiss = errors.New("cache miss")

// Noop is used when no Redis address is configured.
type Noop struct{}

func (Noop) Get(context.Context, string) (*models.Cart, error) {
	return nil, ErrCacheMiss
}

func (Noop) Set(context.Context, *models.Cart) error {
	return nil
}

func (Noop) Delete(context.Context, string) error {
	return nil
}
