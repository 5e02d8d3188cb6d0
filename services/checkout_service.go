package services

import (
	"context"
	"errors"
	"log"

	"go-storefront/clock"
	"go-storefront/metrics"
	"go-storefront/models"
)

type Step string

const (
	StepAddress  Step = "address"
	StepDelivery Step = "delivery"
	StepPayment  Step = "payment"
	StepReview   Step = "review"
)

type StepState struct {
	Step     Step `json:"step"`
	Complete bool `json:"complete"`
}

// CheckoutState reports each step's completeness independently. Current is the
// first incomplete step; an empty cart never gets past address.
type CheckoutState struct {
	CartID  string        `json:"cart_id"`
	Steps   []StepState   `json:"steps"`
	Current Step          `json:"current"`
	Totals  models.Totals `json:"totals"`
}

func (s CheckoutState) complete(step Step) bool {
	for _, st := range s.Steps {
		if st.Step == step {
			return st.Complete
		}
	}
	return false
}

type CompleteOrderResult struct {
	Order   models.Order
	Created bool
}

// CheckoutService drives a cart through address, delivery, payment and review,
// and converts it into an order exactly once.
type CheckoutService struct {
	carts    *CartService
	sessions *PaymentSessionService
	verifier *Verifier
	cartRepo CartRepository
	payments PaymentRepository
	orders   OrderRepository
	adapters AdapterResolver
	events   OrderEvents
	clock    clock.Clock
	metrics  *metrics.CheckoutMetrics
}

func NewCheckoutService(
	carts *CartService,
	sessions *PaymentSessionService,
	verifier *Verifier,
	cartRepo CartRepository,
	payments PaymentRepository,
	orders OrderRepository,
	adapters AdapterResolver,
	events OrderEvents,
	clk clock.Clock,
	m *metrics.CheckoutMetrics,
) *CheckoutService {
	return &CheckoutService{
		carts:    carts,
		sessions: sessions,
		verifier: verifier,
		cartRepo: cartRepo,
		payments: payments,
		orders:   orders,
		adapters: adapters,
		events:   events,
		clock:    clk,
		metrics:  m,
	}
}

func (s *CheckoutService) Steps(ctx context.Context, cartID string) (CheckoutState, error) {
	cart, err := s.loadCart(ctx, cartID)
	if err != nil {
		return CheckoutState{}, err
	}
	return s.evaluate(ctx, cart)
}

func (s *CheckoutService) evaluate(ctx context.Context, cart *models.Cart) (CheckoutState, error) {
	totals := cart.Totals()

	address := cart.ShippingAddress != nil && cart.ShippingAddress.MissingField() == "" && cart.Email != ""
	delivery := cart.ShippingMethod != nil
	payment := totals.Total == 0 && len(cart.Items) > 0
	if !payment {
		sessions, err := s.sessions.ListSessions(ctx, cart.ID)
		if err != nil {
			return CheckoutState{}, err
		}
		for _, session := range sessions {
			if session.Status.Active() && covers(session, cart, totals.Total) {
				payment = true
				break
			}
		}
	}
	review := address && delivery && payment && len(cart.Items) > 0

	state := CheckoutState{
		CartID: cart.ID,
		Steps: []StepState{
			{Step: StepAddress, Complete: address},
			{Step: StepDelivery, Complete: delivery},
			{Step: StepPayment, Complete: payment},
			{Step: StepReview, Complete: review},
		},
		Totals: totals,
	}
	state.Current = StepReview
	for _, st := range state.Steps[:3] {
		if !st.Complete {
			state.Current = st.Step
			break
		}
	}
	if len(cart.Items) == 0 {
		state.Current = StepAddress
	}
	return state, nil
}

// PreparePayment is the payment step's entry action. It reuses an authorized session
// of the provider that still covers the cart total and otherwise asks the session
// manager for a pending one.
func (s *CheckoutService) PreparePayment(ctx context.Context, cartID string, providerID models.ProviderID, extra map[string]string) (SessionResult, error) {
	cart, err := s.loadActiveCart(ctx, cartID)
	if err != nil {
		return SessionResult{}, err
	}
	if err := requireShippable(cart); err != nil {
		return SessionResult{}, err
	}

	selected, err := s.sessions.SelectSession(ctx, cartID, providerID)
	if err != nil {
		return SessionResult{}, err
	}
	var result SessionResult
	if selected != nil && selected.Status == models.SessionAuthorized && covers(*selected, cart, cart.Totals().Total) {
		collection, err := s.sessions.collections.GetCollection(ctx, selected.PaymentCollectionID)
		if err != nil {
			return SessionResult{}, err
		}
		result = SessionResult{Collection: *collection, Session: *selected}
	} else {
		result, err = s.sessions.InitiateSession(ctx, cartID, providerID, extra)
		if err != nil {
			return SessionResult{}, err
		}
	}

	if cart.PaymentCollectionID != result.Collection.ID {
		if err := s.carts.linkCollection(ctx, cartID, result.Collection.ID); err != nil {
			return SessionResult{}, err
		}
	}
	return result, nil
}

// AdvanceToReview re-checks every step and fails on the first incomplete one.
func (s *CheckoutService) AdvanceToReview(ctx context.Context, cartID string) (CheckoutState, error) {
	cart, err := s.loadActiveCart(ctx, cartID)
	if err != nil {
		return CheckoutState{}, err
	}
	if len(cart.Items) == 0 {
		return CheckoutState{}, models.ErrCartEmpty
	}
	state, err := s.evaluate(ctx, cart)
	if err != nil {
		return CheckoutState{}, err
	}
	for _, step := range []Step{StepAddress, StepDelivery, StepPayment} {
		if !state.complete(step) {
			return CheckoutState{}, incomplete(step)
		}
	}
	return state, nil
}

// CompleteOrder converts the cart into an order. Calling it again for the same
// cart returns the order created the first time.
func (s *CheckoutService) CompleteOrder(ctx context.Context, cartID string) (CompleteOrderResult, error) {
	cart, err := s.loadCart(ctx, cartID)
	if err != nil {
		return CompleteOrderResult{}, err
	}

	if cart.Retired() {
		order, err := s.orders.GetOrder(ctx, cart.OrderID)
		if err != nil {
			return CompleteOrderResult{}, err
		}
		log.Printf("order completion replayed cart=%s order=%s", cart.ID, order.ID)
		s.enqueue(ctx, *order)
		return CompleteOrderResult{Order: *order}, nil
	}

	// An order without a retired cart means a previous attempt stopped halfway.
	if order, err := s.orders.GetOrderByCart(ctx, cart.ID); err == nil {
		log.Printf("order completion resumed cart=%s order=%s", cart.ID, order.ID)
		s.finish(ctx, cart, *order)
		return CompleteOrderResult{Order: *order}, nil
	} else if !errors.Is(err, models.ErrNotFound) {
		return CompleteOrderResult{}, err
	}

	if err := requireShippable(cart); err != nil {
		return CompleteOrderResult{}, err
	}

	totals := cart.Totals()
	var payment *models.Payment
	if totals.Total > 0 {
		payment, err = s.authorizedPayment(ctx, cart, totals.Total)
		if err != nil {
			return CompleteOrderResult{}, err
		}
	}

	order := models.Order{
		ID:              newID("order"),
		CartID:          cart.ID,
		CustomerID:      cart.CustomerID,
		Email:           cart.Email,
		RegionID:        cart.RegionID,
		CurrencyCode:    cart.CurrencyCode,
		Items:           cart.Items,
		ShippingAddress: *cart.ShippingAddress,
		BillingAddress:  *cart.ShippingAddress,
		ShippingMethod:  *cart.ShippingMethod,
		PromoCodes:      cart.PromoCodes(),
		Totals:          totals,
		CreatedAt:       s.clock.Now(),
	}
	if cart.BillingAddress != nil {
		order.BillingAddress = *cart.BillingAddress
	}
	if payment != nil {
		order.PaymentID = payment.ID
		order.PaymentCollectionID = payment.PaymentCollectionID
	}

	created := true
	if err := s.orders.InsertOrder(ctx, &order); err != nil {
		if !errors.Is(err, models.ErrDuplicate) {
			log.Printf("order creation failed cart=%s: %v", cart.ID, err)
			return CompleteOrderResult{}, models.ErrOrderCreationFailed.Wrap(err)
		}
		existing, err := s.orders.GetOrderByCart(ctx, cart.ID)
		if err != nil {
			return CompleteOrderResult{}, models.ErrOrderCreationFailed.Wrap(err)
		}
		order = *existing
		created = false
	}

	s.finish(ctx, cart, order)
	if created {
		log.Printf("order completed cart=%s order=%s total=%s", cart.ID, order.ID, models.FormatAmount(order.Totals.Total, order.CurrencyCode))
		s.metrics.OrderCompleted()
	}
	return CompleteOrderResult{Order: order, Created: created}, nil
}

func (s *CheckoutService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// authorizedPayment finds the Payment covering total. Pending sessions of
// providers that need no customer proof are authorized on the spot.
func (s *CheckoutService) authorizedPayment(ctx context.Context, cart *models.Cart, total int64) (*models.Payment, error) {
	sessions, err := s.sessions.ListSessions(ctx, cart.ID)
	if err != nil {
		return nil, err
	}

	for _, session := range sessions {
		if session.Status != models.SessionAuthorized || !covers(session, cart, total) {
			continue
		}
		payment, err := s.payments.GetPaymentBySession(ctx, session.ID)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		// Authorized by a request that has not recorded its payment yet.
		recorded, err := s.verifier.recordPayment(ctx, &session, session.Data)
		if err != nil {
			return nil, err
		}
		return &recorded, nil
	}

	for _, session := range sessions {
		if session.Status != models.SessionPending || !covers(session, cart, total) {
			continue
		}
		adapter, err := s.adapters.Adapter(session.ProviderID)
		if err != nil || adapter.RequiresClientProof() {
			continue
		}
		payment, err := s.verifier.VerifyAndAuthorize(ctx, session.ID, models.ClientProof{})
		if err != nil {
			return nil, err
		}
		return &payment, nil
	}

	return nil, models.ErrPaymentNotAuthorized
}

// finish runs the post-order steps. None of them can fail the completion: the
// order exists, and a retry picks up whatever did not happen.
func (s *CheckoutService) finish(ctx context.Context, cart *models.Cart, order models.Order) {
	s.enqueue(ctx, order)

	if err := s.cartRepo.RetireCart(ctx, cart.ID, order.ID, s.clock.Now()); err != nil && !errors.Is(err, models.ErrConflict) {
		log.Printf("failed to retire cart=%s order=%s: %v", cart.ID, order.ID, err)
	}
	retired, err := s.cartRepo.GetCart(ctx, cart.ID)
	if err != nil {
		s.carts.invalidateCache(ctx, cart.ID)
		return
	}
	s.carts.refreshCache(ctx, retired)
}

func (s *CheckoutService) enqueue(ctx context.Context, order models.Order) {
	if err := s.events.Enqueue(ctx, models.NewOrderCompletedEvent(order)); err != nil {
		log.Printf("order event not recorded order=%s, manual follow-up required: %v", order.ID, err)
	}
}

func (s *CheckoutService) loadCart(ctx context.Context, cartID string) (*models.Cart, error) {
	cart, err := s.cartRepo.GetCart(ctx, cartID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrCartNotFound
		}
		return nil, err
	}
	return cart, nil
}

func (s *CheckoutService) loadActiveCart(ctx context.Context, cartID string) (*models.Cart, error) {
	cart, err := s.loadCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if cart.Retired() {
		return nil, models.ErrCartCompleted
	}
	return cart, nil
}

// requireShippable checks the steps that must hold before payment.
func requireShippable(cart *models.Cart) error {
	if len(cart.Items) == 0 {
		return models.ErrCartEmpty
	}
	if cart.ShippingAddress == nil || cart.ShippingAddress.MissingField() != "" || cart.Email == "" {
		return incomplete(StepAddress)
	}
	if cart.ShippingMethod == nil {
		return incomplete(StepDelivery)
	}
	return nil
}

func incomplete(step Step) error {
	return models.ErrCheckoutIncomplete.Withf("checkout step %q is incomplete", step)
}

// covers reports whether a session was opened for the cart's current total and currency.
func covers(session models.PaymentSession, cart *models.Cart, total int64) bool {
	return session.Amount == total && session.CurrencyCode == cart.CurrencyCode
}
