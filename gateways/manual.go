package gateways

import (
	"context"

	"go-storefront/models"
)

// Manual settles outside any gateway: bank transfer, cash on delivery or a
// zero-value order. It always authorizes.
type Manual struct{}

func NewManual() *Manual {
	return &Manual{}
}

func (*Manual) ID() models.ProviderID {
	return models.ProviderManual
}

func (*Manual) RequiresClientProof() bool {
	return false
}

func (*Manual) CreateUpstreamOrder(context.Context, UpstreamOrderRequest) (models.SessionData, error) {
	return models.NewManualData(), nil
}

func (*Manual) Reconcile(data models.SessionData, _ models.ClientProof) (models.SessionData, error) {
	return data, nil
}

func (*Manual) VerifyCallback(models.SessionData, models.ClientProof) error {
	return nil
}

func (*Manual) Authorize(_ context.Context, data models.SessionData, _ models.ClientProof) (AuthorizeResult, error) {
	return AuthorizeResult{Status: models.SessionAuthorized, Data: data}, nil
}
