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

// PaymentSessionService creates and selects payment sessions on a cart's payment collection.
type PaymentSessionService struct {
	carts       CartRepository
	collections CollectionRepository
	sessions    SessionRepository
	adapters    AdapterResolver
	clock       clock.Clock
	timeout     time.Duration
	metrics     *metrics.CheckoutMetrics
}

func NewPaymentSessionService(carts CartRepository, collections CollectionRepository, sessions SessionRepository, adapters AdapterResolver, clk clock.Clock, timeout time.Duration, m *metrics.CheckoutMetrics) *PaymentSessionService {
	return &PaymentSessionService{
		carts:       carts,
		collections: collections,
		sessions:    sessions,
		adapters:    adapters,
		clock:       clk,
		timeout:     timeout,
		metrics:     m,
	}
}

type SessionResult struct {
	Collection models.PaymentCollection
	Session    models.PaymentSession
	Created    bool
}

// InitiateSession returns the pending session of providerID on the cart, creating
// it when none exists. A pending session whose amount still matches the cart total
// is returned as is and the gateway is not called again.
func (s *PaymentSessionService) InitiateSession(ctx context.Context, cartID string, providerID models.ProviderID, extra map[string]string) (SessionResult, error) {
	adapter, err := s.adapters.Adapter(providerID)
	if err != nil {
		return SessionResult{}, err
	}

	cart, err := s.carts.GetCart(ctx, cartID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return SessionResult{}, models.ErrCartNotFound
		}
		return SessionResult{}, err
	}
	if cart.Retired() {
		return SessionResult{}, models.ErrCartCompleted
	}
	total := cart.Totals().Total

	collection, err := s.ensureCollection(ctx, cart, total)
	if err != nil {
		return SessionResult{}, err
	}

	existing, err := s.pendingSession(ctx, collection.ID, providerID)
	if err != nil {
		return SessionResult{}, err
	}
	if existing != nil {
		// A claim still without gateway data after the gateway timeout was left
		// behind by a failed or interrupted attempt.
		abandoned := existing.Data.Empty() && s.clock.Now().Sub(existing.CreatedAt) > s.timeout
		if !abandoned && existing.Amount == total && existing.CurrencyCode == cart.CurrencyCode {
			log.Printf("payment session reused session=%s cart=%s provider=%s", existing.ID, cart.ID, providerID)
			s.metrics.SessionReused(providerID)
			return SessionResult{Collection: *collection, Session: *existing}, nil
		}
		if abandoned {
			log.Printf("abandoned payment session claim replaced session=%s cart=%s provider=%s", existing.ID, cart.ID, providerID)
		}
		if err := s.cancel(ctx, existing.ID); err != nil {
			return SessionResult{}, err
		}
	}

	now := s.clock.Now()
	claim := models.PaymentSession{
		ID:                  newID("ps"),
		PaymentCollectionID: collection.ID,
		ProviderID:          providerID,
		Amount:              total,
		CurrencyCode:        cart.CurrencyCode,
		Status:              models.SessionPending,
		Data:                models.SessionData{Provider: providerID},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.sessions.InsertSession(ctx, &claim); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			winner, err := s.pendingSession(ctx, collection.ID, providerID)
			if err != nil {
				return SessionResult{}, err
			}
			if winner != nil {
				log.Printf("payment session claimed concurrently session=%s cart=%s provider=%s", winner.ID, cart.ID, providerID)
				s.metrics.SessionReused(providerID)
				return SessionResult{Collection: *collection, Session: *winner}, nil
			}
		}
		return SessionResult{}, err
	}

	upstreamCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	data, err := adapter.CreateUpstreamOrder(upstreamCtx, gateways.UpstreamOrderRequest{
		SessionID:    claim.ID,
		CartID:       cart.ID,
		Amount:       total,
		CurrencyCode: cart.CurrencyCode,
		Extra:        extra,
	})
	if err != nil {
		s.release(ctx, claim.ID)
		log.Printf("upstream order failed cart=%s provider=%s: %v", cart.ID, providerID, err)
		if models.KindOf(err) == "" {
			return SessionResult{}, models.ErrProviderUnavailable.Wrap(err)
		}
		return SessionResult{}, err
	}

	if err := s.sessions.UpdateSessionData(ctx, claim.ID, data, s.clock.Now()); err != nil {
		s.release(ctx, claim.ID)
		log.Printf("storing upstream order failed session=%s cart=%s provider=%s: %v", claim.ID, cart.ID, providerID, err)
		return SessionResult{}, models.ErrProviderUnavailable.Wrap(err)
	}
	claim.Data = data
	s.metrics.SessionCreated(providerID)
	return SessionResult{Collection: *collection, Session: claim, Created: true}, nil
}

// SelectSession returns the newest pending or authorized session of providerID, or nil.
func (s *PaymentSessionService) SelectSession(ctx context.Context, cartID string, providerID models.ProviderID) (*models.PaymentSession, error) {
	sessions, err := s.ListSessions(ctx, cartID)
	if err != nil {
		return nil, err
	}
	for i := len(sessions) - 1; i >= 0; i-- {
		if sessions[i].ProviderID == providerID && sessions[i].Status.Active() {
			return &sessions[i], nil
		}
	}
	return nil, nil
}

// ListSessions returns every session of the cart's payment collection, oldest first.
func (s *PaymentSessionService) ListSessions(ctx context.Context, cartID string) ([]models.PaymentSession, error) {
	collection, err := s.collections.GetCollectionByCart(ctx, cartID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return []models.PaymentSession{}, nil
		}
		return nil, err
	}
	return s.sessions.ListSessions(ctx, collection.ID)
}

// CartIDForSession resolves the cart a session pays for.
func (s *PaymentSessionService) CartIDForSession(ctx context.Context, sessionID string) (string, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", models.ErrSessionNotFound
		}
		return "", err
	}
	collection, err := s.collections.GetCollection(ctx, session.PaymentCollectionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", models.ErrSessionNotFound
		}
		return "", err
	}
	return collection.CartID, nil
}

// CancelPendingSessions cancels the pending sessions of a cart. With keepAmount set,
// sessions whose amount equals it are kept.
func (s *PaymentSessionService) CancelPendingSessions(ctx context.Context, cartID string, keepAmount *int64) error {
	sessions, err := s.ListSessions(ctx, cartID)
	if err != nil {
		return err
	}
	for _, session := range sessions {
		if session.Status != models.SessionPending {
			continue
		}
		if keepAmount != nil && session.Amount == *keepAmount {
			continue
		}
		if err := s.cancel(ctx, session.ID); err != nil {
			return err
		}
		log.Printf("payment session canceled session=%s cart=%s reason=cart_changed", session.ID, cartID)
	}
	return nil
}

func (s *PaymentSessionService) ensureCollection(ctx context.Context, cart *models.Cart, total int64) (*models.PaymentCollection, error) {
	collection, err := s.collections.GetCollectionByCart(ctx, cart.ID)
	if err == nil {
		if collection.Amount != total {
			if err := s.collections.UpdateCollectionAmount(ctx, collection.ID, total, s.clock.Now()); err != nil {
				return nil, err
			}
			collection.Amount = total
		}
		return collection, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	now := s.clock.Now()
	collection = &models.PaymentCollection{
		ID:           newID("pc"),
		CartID:       cart.ID,
		Amount:       total,
		CurrencyCode: cart.CurrencyCode,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.collections.InsertCollection(ctx, collection); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return s.collections.GetCollectionByCart(ctx, cart.ID)
		}
		return nil, err
	}
	return collection, nil
}

func (s *PaymentSessionService) pendingSession(ctx context.Context, collectionID string, providerID models.ProviderID) (*models.PaymentSession, error) {
	sessions, err := s.sessions.ListSessions(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].ProviderID == providerID && sessions[i].Status == models.SessionPending {
			return &sessions[i], nil
		}
	}
	return nil, nil
}

// release drops a claim that never received gateway data so the next attempt can claim again.
func (s *PaymentSessionService) release(ctx context.Context, sessionID string) {
	if err := s.sessions.DeleteSession(ctx, sessionID); err != nil {
		log.Printf("failed to release payment session claim session=%s: %v", sessionID, err)
	}
}

// cancel moves a pending session to canceled. A session that already left pending is left alone.
func (s *PaymentSessionService) cancel(ctx context.Context, sessionID string) error {
	err := s.sessions.TransitionSession(ctx, sessionID, models.SessionPending, models.SessionCanceled, "", s.clock.Now())
	if err != nil && !errors.Is(err, models.ErrConflict) {
		return err
	}
	return nil
}
