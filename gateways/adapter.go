package gateways

import (
	"context"
	"sort"

	"go-storefront/config"
	"go-storefront/models"
)

// UpstreamOrderRequest is what an adapter needs to open an order with its gateway.
// SessionID doubles as the idempotency key of the upstream call.
type UpstreamOrderRequest struct {
	SessionID    string
	CartID       string
	Amount       int64
	CurrencyCode string
	Extra        map[string]string
}

// AuthorizeResult is the gateway's verdict on a session. Status is authorized,
// captured or error; Reason is set for error and is safe to show to the customer.
type AuthorizeResult struct {
	Status models.SessionStatus
	Data   models.SessionData
	Reason string
}

// Adapter translates between payment sessions and one external gateway.
// Only the adapter of a provider reads or writes that provider's SessionData arm.
type Adapter interface {
	ID() models.ProviderID
	// RequiresClientProof reports whether authorization needs the customer to finish
	// an interaction with the gateway first.
	RequiresClientProof() bool
	CreateUpstreamOrder(ctx context.Context, req UpstreamOrderRequest) (models.SessionData, error)
	// Reconcile fills identifiers missing from data with the ones in proof.
	// Identifiers already stored on the server are never replaced.
	Reconcile(data models.SessionData, proof models.ClientProof) (models.SessionData, error)
	// VerifyCallback checks the proof's signature against the reconciled data.
	VerifyCallback(data models.SessionData, proof models.ClientProof) error
	Authorize(ctx context.Context, data models.SessionData, proof models.ClientProof) (AuthorizeResult, error)
}

// Credentials resolves gateway secrets at the moment they are needed.
type Credentials interface {
	Provider(id models.ProviderID) (config.ProviderCredentials, error)
}

// Registry maps provider ids to adapters.
type Registry struct {
	adapters map[models.ProviderID]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.ProviderID]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.ID()] = a
	}
	return r
}

func (r *Registry) Adapter(id models.ProviderID) (Adapter, error) {
	a, ok := r.adapters[id]
	if !ok {
		return nil, models.ErrProviderNotFound.Withf("payment provider %q is not registered", id)
	}
	return a, nil
}

// IDs lists the registered providers in a stable order.
func (r *Registry) IDs() []models.ProviderID {
	ids := make([]models.ProviderID, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
