package gateways

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"

	"go-storefront/models"
)

// Stripe implements the card-element flow: the server creates a manual-capture
// payment intent, the storefront confirms it with the client secret, and the
// server reads the intent back to authorize.
type Stripe struct {
	caller *Caller
	creds  Credentials
}

func NewStripe(caller *Caller, creds Credentials) *Stripe {
	return &Stripe{caller: caller, creds: creds}
}

func (*Stripe) ID() models.ProviderID {
	return models.ProviderStripe
}

func (*Stripe) RequiresClientProof() bool {
	return true
}

func (s *Stripe) CreateUpstreamOrder(ctx context.Context, req UpstreamOrderRequest) (models.SessionData, error) {
	intents, err := s.intents()
	if err != nil {
		return models.SessionData{}, err
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(strings.ToLower(req.CurrencyCode)),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.SessionID)
	params.AddMetadata("cart_id", req.CartID)
	params.AddMetadata("session_id", req.SessionID)
	for k, v := range req.Extra {
		params.AddMetadata(k, v)
	}

	var intent *stripe.PaymentIntent
	err = s.caller.Invoke(func() error {
		var err error
		intent, err = intents.New(params)
		return err
	}, stripeStatus)
	if err != nil {
		return models.SessionData{}, upstreamOrderError("stripe", err)
	}
	if intent == nil || intent.ID == "" || intent.ClientSecret == "" {
		return models.SessionData{}, models.ErrProviderUnavailable.Wrap(errors.New("stripe returned an intent without id or client secret"))
	}

	return models.NewStripeData(models.StripeData{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Status:          string(intent.Status),
	}), nil
}

func (*Stripe) Reconcile(data models.SessionData, proof models.ClientProof) (models.SessionData, error) {
	arm, ok := data.StripeArm()
	if !ok {
		return data, models.ErrInvalidProof.Withf("session data does not belong to stripe")
	}
	if proof.Stripe != nil {
		arm = arm.MergeProof(*proof.Stripe)
	}
	return models.NewStripeData(arm), nil
}

// VerifyCallback only checks that an intent is known: stripe card-element
// callbacks are unsigned and trust comes from reading the intent server side.
func (*Stripe) VerifyCallback(data models.SessionData, _ models.ClientProof) error {
	arm, ok := data.StripeArm()
	if !ok || arm.PaymentIntentID == "" {
		return models.ErrInvalidProof.Withf("payment_intent_id is required")
	}
	return nil
}

func (s *Stripe) Authorize(ctx context.Context, data models.SessionData, _ models.ClientProof) (AuthorizeResult, error) {
	arm, ok := data.StripeArm()
	if !ok || arm.PaymentIntentID == "" {
		return AuthorizeResult{}, models.ErrInvalidProof.Withf("payment_intent_id is required")
	}
	intents, err := s.intents()
	if err != nil {
		return AuthorizeResult{}, err
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	var intent *stripe.PaymentIntent
	err = s.caller.Invoke(func() error {
		var err error
		intent, err = intents.Get(arm.PaymentIntentID, params)
		return err
	}, stripeStatus)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			log.Printf("stripe intent lookup rejected intent=%s status=%d", arm.PaymentIntentID, statusErr.Code)
			return AuthorizeResult{Status: models.SessionError, Data: data, Reason: "payment intent could not be found"}, nil
		}
		return AuthorizeResult{}, err
	}

	arm.Status = string(intent.Status)
	result := AuthorizeResult{Data: models.NewStripeData(arm)}
	switch intent.Status {
	case stripe.PaymentIntentStatusRequiresCapture:
		result.Status = models.SessionAuthorized
	case stripe.PaymentIntentStatusSucceeded:
		result.Status = models.SessionCaptured
	case stripe.PaymentIntentStatusRequiresPaymentMethod, stripe.PaymentIntentStatusCanceled:
		result.Status = models.SessionError
		result.Reason = "payment was declined"
		if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
			result.Reason = intent.LastPaymentError.Msg
		}
	default:
		result.Status = models.SessionError
		result.Reason = "payment not completed"
	}
	return result, nil
}

// intents builds a payment intent client over the caller's traced HTTP client.
// Retries are left to the caller so the breaker sees every failure.
func (s *Stripe) intents() (paymentintent.Client, error) {
	creds, err := s.creds.Provider(models.ProviderStripe)
	if err != nil {
		return paymentintent.Client{}, err
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		HTTPClient:        s.caller.HTTPClient(),
		URL:               stripe.String(creds.APIBase),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	})
	return paymentintent.Client{B: backend, Key: creds.Secret}, nil
}

func stripeStatus(err error) int {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode
	}
	return 0
}

// upstreamOrderError folds every failure to open an upstream order into ProviderUnavailable.
func upstreamOrderError(provider string, err error) error {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		log.Printf("gateway rejected order creation provider=%s status=%d body=%s", provider, statusErr.Code, statusErr.Body)
		return models.ErrProviderUnavailable.Wrap(fmt.Errorf("%s: %w", provider, err))
	}
	return err
}
