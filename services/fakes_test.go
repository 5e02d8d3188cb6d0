package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-storefront/cache"
	"go-storefront/clock"
	"go-storefront/config"
	"go-storefront/gateways"
	"go-storefront/models"
)

// memStore is an in-memory stand-in for the Mongo repositories. It enforces the
// same unique indexes and conditional updates.
type memStore struct {
	mu sync.Mutex

	carts       map[string]models.Cart
	regions     map[string]models.Region
	variants    map[string]models.Variant
	options     map[string]models.ShippingOption
	promotions  map[string]models.Promotion
	collections map[string]models.PaymentCollection
	sessions    map[string]models.PaymentSession
	sessionSeq  []string
	payments    map[string]models.Payment
	orders      map[string]models.Order

	insertOrderErr error
	retireErr      error
	// updateDataErr fails the next UpdateSessionData call only.
	updateDataErr error
}

func newMemStore() *memStore {
	return &memStore{
		carts:       map[string]models.Cart{},
		regions:     map[string]models.Region{},
		variants:    map[string]models.Variant{},
		options:     map[string]models.ShippingOption{},
		promotions:  map[string]models.Promotion{},
		collections: map[string]models.PaymentCollection{},
		sessions:    map[string]models.PaymentSession{},
		payments:    map[string]models.Payment{},
		orders:      map[string]models.Order{},
	}
}

func copyCart(c models.Cart) *models.Cart {
	c.Items = append([]models.LineItem{}, c.Items...)
	c.Promotions = append([]models.AppliedPromotion{}, c.Promotions...)
	if c.ShippingAddress != nil {
		a := *c.ShippingAddress
		c.ShippingAddress = &a
	}
	if c.BillingAddress != nil {
		a := *c.BillingAddress
		c.BillingAddress = &a
	}
	if c.ShippingMethod != nil {
		m := *c.ShippingMethod
		c.ShippingMethod = &m
	}
	return &c
}

func (s *memStore) GetCart(_ context.Context, id string) (*models.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return copyCart(c), nil
}

func (s *memStore) GetActiveCartByCustomer(_ context.Context, customerID string) (*models.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.carts {
		if c.CustomerID == customerID && c.Active {
			return copyCart(c), nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *memStore) InsertCart(_ context.Context, cart *models.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.carts {
		if c.ID == cart.ID || (c.Active && c.CustomerID == cart.CustomerID) {
			return models.ErrDuplicate
		}
	}
	s.carts[cart.ID] = *copyCart(*cart)
	return nil
}

func (s *memStore) SaveCart(_ context.Context, cart *models.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[cart.ID]
	if !ok || !c.Active {
		return models.ErrConflict
	}
	s.carts[cart.ID] = *copyCart(*cart)
	return nil
}

func (s *memStore) RetireCart(_ context.Context, cartID, orderID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retireErr != nil {
		return s.retireErr
	}
	c, ok := s.carts[cartID]
	if !ok || !c.Active {
		return models.ErrConflict
	}
	c.Active = false
	c.OrderID = orderID
	c.CompletedAt = &at
	c.UpdatedAt = at
	s.carts[cartID] = c
	return nil
}

func (s *memStore) GetRegion(_ context.Context, id string) (*models.Region, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.regions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &r, nil
}

func (s *memStore) GetVariant(_ context.Context, id string) (*models.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.variants[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &v, nil
}

func (s *memStore) GetShippingOption(_ context.Context, id string) (*models.ShippingOption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.options[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &o, nil
}

func (s *memStore) GetPromotion(_ context.Context, code string) (*models.Promotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.promotions[code]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &p, nil
}

func (s *memStore) GetCollection(_ context.Context, id string) (*models.PaymentCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pc, ok := s.collections[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &pc, nil
}

func (s *memStore) GetCollectionByCart(_ context.Context, cartID string) (*models.PaymentCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pc := range s.collections {
		if pc.CartID == cartID {
			return &pc, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *memStore) InsertCollection(_ context.Context, pc *models.PaymentCollection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.collections {
		if existing.CartID == pc.CartID {
			return models.ErrDuplicate
		}
	}
	s.collections[pc.ID] = *pc
	return nil
}

func (s *memStore) UpdateCollectionAmount(_ context.Context, id string, amount int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pc, ok := s.collections[id]
	if !ok {
		return models.ErrNotFound
	}
	pc.Amount = amount
	pc.UpdatedAt = at
	s.collections[id] = pc
	return nil
}

func (s *memStore) GetSession(_ context.Context, id string) (*models.PaymentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, ok := s.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &ps, nil
}

func (s *memStore) ListSessions(_ context.Context, collectionID string) ([]models.PaymentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.PaymentSession{}
	for _, id := range s.sessionSeq {
		if ps, ok := s.sessions[id]; ok && ps.PaymentCollectionID == collectionID {
			out = append(out, ps)
		}
	}
	return out, nil
}

func (s *memStore) InsertSession(_ context.Context, session *models.PaymentSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ps := range s.sessions {
		if ps.ID == session.ID {
			return models.ErrDuplicate
		}
		if session.Status == models.SessionPending && ps.Status == models.SessionPending &&
			ps.PaymentCollectionID == session.PaymentCollectionID && ps.ProviderID == session.ProviderID {
			return models.ErrDuplicate
		}
	}
	s.sessions[session.ID] = *session
	s.sessionSeq = append(s.sessionSeq, session.ID)
	return nil
}

func (s *memStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ps, ok := s.sessions[id]; ok && ps.Status == models.SessionPending {
		delete(s.sessions, id)
	}
	return nil
}

func (s *memStore) UpdateSessionData(_ context.Context, id string, data models.SessionData, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.updateDataErr; err != nil {
		s.updateDataErr = nil
		return err
	}
	ps, ok := s.sessions[id]
	if !ok {
		return models.ErrNotFound
	}
	ps.Data = data
	ps.UpdatedAt = at
	s.sessions[id] = ps
	return nil
}

func (s *memStore) TransitionSession(_ context.Context, id string, from, to models.SessionStatus, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, ok := s.sessions[id]
	if !ok {
		return models.ErrNotFound
	}
	if ps.Status != from {
		return models.ErrConflict
	}
	ps.Status = to
	ps.UpdatedAt = at
	if to == models.SessionAuthorized {
		ps.AuthorizedAt = &at
	}
	if reason != "" {
		ps.ErrorReason = reason
	}
	s.sessions[id] = ps
	return nil
}

func (s *memStore) GetPaymentBySession(_ context.Context, sessionID string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.SessionID == sessionID {
			return &p, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *memStore) InsertPayment(_ context.Context, payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.SessionID == payment.SessionID {
			return models.ErrDuplicate
		}
	}
	s.payments[payment.ID] = *payment
	return nil
}

func (s *memStore) GetOrder(_ context.Context, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &o, nil
}

func (s *memStore) GetOrderByCart(_ context.Context, cartID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.CartID == cartID {
			return &o, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *memStore) InsertOrder(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertOrderErr != nil {
		return s.insertOrderErr
	}
	for _, o := range s.orders {
		if o.CartID == order.CartID {
			return models.ErrDuplicate
		}
	}
	s.orders[order.ID] = *order
	return nil
}

func (s *memStore) session(id string) models.PaymentSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

func (s *memStore) cart(id string) *models.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCart(s.carts[id])
}

func (s *memStore) paymentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payments)
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

type fakeEvents struct {
	mu     sync.Mutex
	events []models.OrderCompletedEvent
	err    error
}

func (f *fakeEvents) Enqueue(_ context.Context, event models.OrderCompletedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEvents) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

// fakeCard behaves like a card-element gateway: unsigned callbacks, intent
// created up front, status decided by the test.
type fakeCard struct {
	mu         sync.Mutex
	creates    int
	authorizes int
	createErr  error
	authErr    error
	result     *gateways.AuthorizeResult
}

func (f *fakeCard) ID() models.ProviderID { return models.ProviderStripe }

func (f *fakeCard) RequiresClientProof() bool { return true }

func (f *fakeCard) CreateUpstreamOrder(_ context.Context, req gateways.UpstreamOrderRequest) (models.SessionData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return models.SessionData{}, f.createErr
	}
	return models.NewStripeData(models.StripeData{PaymentIntentID: "pi_" + req.SessionID, ClientSecret: "secret_" + req.SessionID}), nil
}

func (f *fakeCard) Reconcile(data models.SessionData, proof models.ClientProof) (models.SessionData, error) {
	arm, ok := data.StripeArm()
	if !ok {
		return data, models.ErrInvalidProof
	}
	if proof.Stripe != nil {
		arm = arm.MergeProof(*proof.Stripe)
	}
	return models.NewStripeData(arm), nil
}

func (f *fakeCard) VerifyCallback(data models.SessionData, _ models.ClientProof) error {
	if arm, ok := data.StripeArm(); !ok || arm.PaymentIntentID == "" {
		return models.ErrInvalidProof
	}
	return nil
}

func (f *fakeCard) Authorize(_ context.Context, data models.SessionData, _ models.ClientProof) (gateways.AuthorizeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authorizes++
	if f.authErr != nil {
		return gateways.AuthorizeResult{}, f.authErr
	}
	if f.result != nil {
		r := *f.result
		r.Data = data
		return r, nil
	}
	return gateways.AuthorizeResult{Status: models.SessionAuthorized, Data: data}, nil
}

func (f *fakeCard) calls() (creates, authorizes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates, f.authorizes
}

// razorpayAPI fakes the two Razorpay endpoints the adapter calls.
type razorpayAPI struct {
	*httptest.Server
	mu            sync.Mutex
	orders        int
	lookups       int
	paymentStatus string
	failLookups   bool
}

func newRazorpayAPI(t *testing.T) *razorpayAPI {
	api := &razorpayAPI{paymentStatus: "authorized"}
	api.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		defer api.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/orders":
			api.orders++
			var req struct {
				Receipt string `json:"receipt"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "order_" + req.Receipt, "receipt": req.Receipt, "status": "created"})
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v1/payments/"):
			api.lookups++
			if api.failLookups {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			body := map[string]any{"id": strings.TrimPrefix(r.URL.Path, "/v1/payments/"), "status": api.paymentStatus}
			if api.paymentStatus == "failed" {
				body["error_description"] = "card declined by issuer"
			}
			_ = json.NewEncoder(w).Encode(body)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(api.Close)
	return api
}

func (a *razorpayAPI) set(status string, fail bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.paymentStatus = status
	a.failLookups = fail
}

func (a *razorpayAPI) orderCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.orders
}

const razorpaySecret = "rzp_secret"

var testNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type harness struct {
	store    *memStore
	events   *fakeEvents
	card     *fakeCard
	razorpay *razorpayAPI
	clock    *clock.Manual
	cfg      config.Config

	carts    *CartService
	sessions *PaymentSessionService
	verifier *Verifier
	checkout *CheckoutService
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithCache(t, cache.Noop{})
}

func newHarnessWithCache(t *testing.T, cartCache cache.CartCache) *harness {
	t.Helper()
	h := &harness{
		store:    newMemStore(),
		events:   &fakeEvents{},
		card:     &fakeCard{},
		razorpay: newRazorpayAPI(t),
		clock:    clock.NewManual(testNow),
	}
	h.cfg = config.Config{Razorpay: config.RazorpayConfig{KeyID: "rzp_key", KeySecret: razorpaySecret, APIBase: h.razorpay.URL}}
	seedCatalog(h.store)

	registry := gateways.NewRegistry(
		gateways.NewManual(),
		h.card,
		gateways.NewRazorpay(gateways.NewCallerWithClient("razorpay", h.razorpay.Client()), &h.cfg),
	)
	h.sessions = NewPaymentSessionService(h.store, h.store, h.store, registry, h.clock, 2*time.Second, nil)
	h.carts = NewCartService(h.store, h.store, h.sessions, cartCache, h.clock, "reg_us")
	h.verifier = NewVerifier(h.store, h.store, registry, h.clock, 2*time.Second, nil)
	h.checkout = NewCheckoutService(h.carts, h.sessions, h.verifier, h.store, h.store, h.store, registry, h.events, h.clock, nil)
	return h
}

func seedCatalog(s *memStore) {
	s.regions["reg_us"] = models.Region{ID: "reg_us", Name: "United States", CurrencyCode: "usd", Countries: []string{"US"}}
	s.regions["reg_eu"] = models.Region{ID: "reg_eu", Name: "Europe", CurrencyCode: "eur", Countries: []string{"DE", "FR"}}

	s.variants["var_mug"] = models.Variant{ID: "var_mug", Title: "Mug", Prices: map[string]int64{"usd": 1500, "eur": 1400}}
	s.variants["var_tee"] = models.Variant{ID: "var_tee", Title: "Tee", Prices: map[string]int64{"usd": 2000}}

	s.options["ship_std"] = models.ShippingOption{ID: "ship_std", Name: "Standard", RegionID: "reg_us", Amount: 500}
	s.options["ship_eu"] = models.ShippingOption{ID: "ship_eu", Name: "EU Standard", RegionID: "reg_eu", Amount: 700}

	expired := testNow.Add(-time.Hour)
	s.promotions["SAVE10"] = models.Promotion{Code: "SAVE10", Type: models.PromotionPercentage, Value: 10}
	s.promotions["FIVEOFF"] = models.Promotion{Code: "FIVEOFF", Type: models.PromotionFixed, Value: 500}
	s.promotions["FREE"] = models.Promotion{Code: "FREE", Type: models.PromotionFixed, Value: 1000000}
	s.promotions["EXPIRED"] = models.Promotion{Code: "EXPIRED", Type: models.PromotionPercentage, Value: 50, EndsAt: &expired}
	s.promotions["EUONLY"] = models.Promotion{Code: "EUONLY", Type: models.PromotionPercentage, Value: 20, RegionID: "reg_eu"}
}

func validAddress() models.Address {
	return models.Address{
		FirstName:   "Ada",
		LastName:    "Lovelace",
		Address1:    "1 Analytical Way",
		City:        "Springfield",
		PostalCode:  "12345",
		CountryCode: "US",
	}
}

// readyCart returns a cart with two mugs, an address and standard shipping: total 3500.
func (h *harness) readyCart(t *testing.T, customerID string) *models.Cart {
	t.Helper()
	ctx := context.Background()
	cart, err := h.carts.GetOrCreateCart(ctx, GetOrCreateCartInput{CustomerID: customerID})
	require.NoError(t, err)
	_, err = h.carts.AddLineItem(ctx, cart.ID, "var_mug", 2)
	require.NoError(t, err)
	_, err = h.carts.SetAddresses(ctx, SetAddressesInput{CartID: cart.ID, Shipping: validAddress(), SameAsShipping: true, Email: customerID})
	require.NoError(t, err)
	cart, err = h.carts.SetShippingMethod(ctx, cart.ID, "ship_std")
	require.NoError(t, err)
	return cart
}

// razorpayProof builds the popup callback for a session, signed with secret.
func razorpayProof(orderID, paymentID, secret string) models.ClientProof {
	return models.ClientProof{Razorpay: &models.RazorpayProof{
		OrderID:   orderID,
		PaymentID: paymentID,
		Signature: gateways.SignRazorpay(secret, orderID, paymentID),
	}}
}
