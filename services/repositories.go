package services

import (
	"context"
	"time"

	"go-storefront/gateways"
	"go-storefront/models"
)

// Storage contracts. Implementations return models.ErrNotFound, models.ErrDuplicate
// and models.ErrConflict (wrapped) for the conditions the services converge on.

type CartRepository interface {
	GetCart(ctx context.Context, id string) (*models.Cart, error)
	GetActiveCartByCustomer(ctx context.Context, customerID string) (*models.Cart, error)
	InsertCart(ctx context.Context, cart *models.Cart) error
	SaveCart(ctx context.Context, cart *models.Cart) error
	RetireCart(ctx context.Context, cartID, orderID string, at time.Time) error
}

type CatalogRepository interface {
	GetRegion(ctx context.Context, id string) (*models.Region, error)
	GetVariant(ctx context.Context, id string) (*models.Variant, error)
	GetShippingOption(ctx context.Context, id string) (*models.ShippingOption, error)
	GetPromotion(ctx context.Context, code string) (*models.Promotion, error)
}

type CollectionRepository interface {
	GetCollection(ctx context.Context, id string) (*models.PaymentCollection, error)
	GetCollectionByCart(ctx context.Context, cartID string) (*models.PaymentCollection, error)
	InsertCollection(ctx context.Context, pc *models.PaymentCollection) error
	UpdateCollectionAmount(ctx context.Context, id string, amount int64, at time.Time) error
}

type SessionRepository interface {
	GetSession(ctx context.Context, id string) (*models.PaymentSession, error)
	ListSessions(ctx context.Context, collectionID string) ([]models.PaymentSession, error)
	InsertSession(ctx context.Context, session *models.PaymentSession) error
	DeleteSession(ctx context.Context, id string) error
	UpdateSessionData(ctx context.Context, id string, data models.SessionData, at time.Time) error
	TransitionSession(ctx context.Context, id string, from, to models.SessionStatus, reason string, at time.Time) error
}

type PaymentRepository interface {
	GetPaymentBySession(ctx context.Context, sessionID string) (*models.Payment, error)
	InsertPayment(ctx context.Context, payment *models.Payment) error
}

type OrderRepository interface {
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	GetOrderByCart(ctx context.Context, cartID string) (*models.Order, error)
	InsertOrder(ctx context.Context, order *models.Order) error
}

// AdapterResolver finds the gateway adapter of a provider.
type AdapterResolver interface {
	Adapter(id models.ProviderID) (gateways.Adapter, error)
}

// OrderEvents records order completions for asynchronous collaborators.
type OrderEvents interface {
	Enqueue(ctx context.Context, event models.OrderCompletedEvent) error
}
