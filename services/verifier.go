package services

import (
	"context"
	"errors"
	"log"
	"time"

	"go-storefront/clock"
	"go-storefront/gateways"
	"go-storefront/metrics"
	"go-storefront/models"
)

// Verifier turns a customer's gateway callback into a Payment. It is the only
// place a callback signature is checked.
type Verifier struct {
	sessions SessionRepository
	payments PaymentRepository
	adapters AdapterResolver
	clock    clock.Clock
	timeout  time.Duration
	metrics  *metrics.CheckoutMetrics
}

func NewVerifier(sessions SessionRepository, payments PaymentRepository, adapters AdapterResolver, clk clock.Clock, timeout time.Duration, m *metrics.CheckoutMetrics) *Verifier {
	return &Verifier{
		sessions: sessions,
		payments: payments,
		adapters: adapters,
		clock:    clk,
		timeout:  timeout,
		metrics:  m,
	}
}

// VerifyAndAuthorize checks the proof for a session, authorizes it with the gateway
// and records the Payment. Replays with the same proof return the same Payment.
func (v *Verifier) VerifyAndAuthorize(ctx context.Context, sessionID string, proof models.ClientProof) (models.Payment, error) {
	session, err := v.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.Payment{}, models.ErrSessionNotFound
		}
		return models.Payment{}, err
	}
	adapter, err := v.adapters.Adapter(session.ProviderID)
	if err != nil {
		return models.Payment{}, err
	}

	// The patched payload is only persisted once the signature over it checks out,
	// so a forged callback cannot plant identifiers on the session.
	reconciled, err := adapter.Reconcile(session.Data, proof)
	if err != nil {
		return models.Payment{}, err
	}

	if err := adapter.VerifyCallback(reconciled, proof); err != nil {
		if errors.Is(err, models.ErrInvalidSignature) {
			log.Printf("payment signature rejected session=%s provider=%s", session.ID, session.ProviderID)
			v.metrics.SignatureFailed(session.ProviderID)
		}
		return models.Payment{}, err
	}

	if !reconciled.Equal(session.Data) {
		if err := v.sessions.UpdateSessionData(ctx, session.ID, reconciled, v.clock.Now()); err != nil {
			return models.Payment{}, err
		}
		session.Data = reconciled
	}

	existing, err := v.paymentFor(ctx, session.ID)
	if err != nil {
		return models.Payment{}, err
	}
	if existing != nil && (session.Status == models.SessionAuthorized || session.Status == models.SessionCaptured) {
		log.Printf("payment replayed session=%s payment=%s", session.ID, existing.ID)
		return *existing, nil
	}

	switch session.Status {
	case models.SessionPending:
	case models.SessionAuthorized, models.SessionCaptured:
		// Authorized without a payment record: finish recording it.
		return v.recordPayment(ctx, session, session.Data)
	default:
		return models.Payment{}, models.ErrSessionNotActive.Withf("payment session is %s", session.Status)
	}

	authCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	result, err := adapter.Authorize(authCtx, session.Data, proof)
	if err != nil {
		log.Printf("authorization call failed session=%s provider=%s: %v", session.ID, session.ProviderID, err)
		if models.KindOf(err) == "" {
			return models.Payment{}, models.ErrProviderUnavailable.Wrap(err)
		}
		return models.Payment{}, err
	}

	if result.Status != models.SessionAuthorized && result.Status != models.SessionCaptured {
		return models.Payment{}, v.reject(ctx, session, result)
	}

	if err := v.sessions.TransitionSession(ctx, session.ID, models.SessionPending, models.SessionAuthorized, "", v.clock.Now()); err != nil {
		if !errors.Is(err, models.ErrConflict) {
			return models.Payment{}, err
		}
		current, err := v.sessions.GetSession(ctx, session.ID)
		if err != nil {
			return models.Payment{}, err
		}
		if current.Status != models.SessionAuthorized {
			return models.Payment{}, models.ErrSessionNotActive.Withf("payment session is %s", current.Status)
		}
	}
	if !result.Data.Equal(session.Data) {
		if err := v.sessions.UpdateSessionData(ctx, session.ID, result.Data, v.clock.Now()); err != nil {
			log.Printf("failed to store authorization payload session=%s: %v", session.ID, err)
		}
	}
	return v.recordPayment(ctx, session, result.Data)
}

// reject stores the gateway's refusal on the session and returns AuthorizationRejected.
func (v *Verifier) reject(ctx context.Context, session *models.PaymentSession, result gateways.AuthorizeResult) error {
	reason := result.Reason
	if reason == "" {
		reason = "payment was not authorized"
	}
	if !result.Data.Equal(session.Data) && result.Data.Provider == session.ProviderID {
		if err := v.sessions.UpdateSessionData(ctx, session.ID, result.Data, v.clock.Now()); err != nil {
			log.Printf("failed to store rejection payload session=%s: %v", session.ID, err)
		}
	}
	err := v.sessions.TransitionSession(ctx, session.ID, models.SessionPending, models.SessionError, reason, v.clock.Now())
	if err != nil && !errors.Is(err, models.ErrConflict) {
		return err
	}

	log.Printf("payment authorization rejected session=%s provider=%s reason=%q", session.ID, session.ProviderID, reason)
	v.metrics.AuthorizationRejected(session.ProviderID)
	return models.ErrAuthorizationRejected.Withf("payment authorization was rejected: %s", reason)
}

// recordPayment inserts the Payment of an authorized session. A concurrent insert
// for the same session wins and its Payment is returned.
func (v *Verifier) recordPayment(ctx context.Context, session *models.PaymentSession, data models.SessionData) (models.Payment, error) {
	payment := models.Payment{
		ID:                  newID("pay"),
		SessionID:           session.ID,
		PaymentCollectionID: session.PaymentCollectionID,
		ProviderID:          session.ProviderID,
		Amount:              session.Amount,
		CurrencyCode:        session.CurrencyCode,
		Data:                data,
		CreatedAt:           v.clock.Now(),
	}
	if err := v.payments.InsertPayment(ctx, &payment); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			existing, err := v.payments.GetPaymentBySession(ctx, session.ID)
			if err != nil {
				return models.Payment{}, err
			}
			log.Printf("payment recorded concurrently session=%s payment=%s", session.ID, existing.ID)
			return *existing, nil
		}
		return models.Payment{}, err
	}

	log.Printf("payment authorized session=%s provider=%s payment=%s", session.ID, session.ProviderID, payment.ID)
	v.metrics.PaymentAuthorized(session.ProviderID)
	return payment, nil
}

func (v *Verifier) paymentFor(ctx context.Context, sessionID string) (*models.Payment, error) {
	payment, err := v.payments.GetPaymentBySession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return payment, nil
}
