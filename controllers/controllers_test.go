package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-storefront/middleware"
	"go-storefront/models"
	"go-storefront/services"
)

type fakeCarts struct {
	carts   map[string]*models.Cart
	addErr  error
	created services.GetOrCreateCartInput
}

func (f *fakeCarts) get(id string) (*models.Cart, error) {
	c, ok := f.carts[id]
	if !ok {
		return nil, models.ErrCartNotFound
	}
	return c, nil
}

func (f *fakeCarts) GetOrCreateCart(_ context.Context, in services.GetOrCreateCartInput) (*models.Cart, error) {
	f.created = in
	return &models.Cart{ID: "cart_new", CustomerID: in.CustomerID, RegionID: in.RegionID}, nil
}

func (f *fakeCarts) GetCart(_ context.Context, id string) (*models.Cart, error) {
	return f.get(id)
}

func (f *fakeCarts) AddLineItem(_ context.Context, cartID, variantID string, quantity int) (*models.Cart, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	c, err := f.get(cartID)
	if err != nil {
		return nil, err
	}
	c.Items = append(c.Items, models.LineItem{VariantID: variantID, Quantity: quantity, UnitPrice: 1000})
	return c, nil
}

func (f *fakeCarts) RemoveLineItem(_ context.Context, cartID, _ string) (*models.Cart, error) {
	return f.get(cartID)
}

func (f *fakeCarts) SetAddresses(_ context.Context, in services.SetAddressesInput) (*models.Cart, error) {
	return f.get(in.CartID)
}

func (f *fakeCarts) SetShippingMethod(_ context.Context, cartID, _ string) (*models.Cart, error) {
	return f.get(cartID)
}

func (f *fakeCarts) ClearShippingMethod(_ context.Context, cartID string) (*models.Cart, error) {
	return f.get(cartID)
}

func (f *fakeCarts) ApplyPromotions(_ context.Context, cartID string, _ []string) (*models.Cart, error) {
	return f.get(cartID)
}

type fakePayments struct {
	sessions   []models.PaymentSession
	sessionErr error
	authErr    error
	result     services.SessionResult
}

func (f *fakePayments) SelectSession(_ context.Context, _ string, providerID models.ProviderID) (*models.PaymentSession, error) {
	for i := range f.sessions {
		if f.sessions[i].ProviderID == providerID {
			return &f.sessions[i], nil
		}
	}
	return nil, nil
}

func (f *fakePayments) ListSessions(context.Context, string) ([]models.PaymentSession, error) {
	return f.sessions, nil
}

func (f *fakePayments) CartIDForSession(_ context.Context, sessionID string) (string, error) {
	if f.sessionErr != nil {
		return "", f.sessionErr
	}
	return "cart_1", nil
}

func (f *fakePayments) PreparePayment(context.Context, string, models.ProviderID, map[string]string) (services.SessionResult, error) {
	return f.result, nil
}

func (f *fakePayments) VerifyAndAuthorize(_ context.Context, sessionID string, _ models.ClientProof) (models.Payment, error) {
	if f.authErr != nil {
		return models.Payment{}, f.authErr
	}
	return models.Payment{ID: "pay_1", SessionID: sessionID}, nil
}

type fakeCheckout struct {
	completed bool
	err       error
}

func (f *fakeCheckout) Steps(_ context.Context, cartID string) (services.CheckoutState, error) {
	return services.CheckoutState{CartID: cartID, Current: services.StepAddress}, nil
}

func (f *fakeCheckout) AdvanceToReview(context.Context, string) (services.CheckoutState, error) {
	return services.CheckoutState{}, models.ErrCheckoutIncomplete.Withf("step %q is incomplete", services.StepDelivery)
}

func (f *fakeCheckout) CompleteOrder(_ context.Context, cartID string) (services.CompleteOrderResult, error) {
	if f.err != nil {
		return services.CompleteOrderResult{}, f.err
	}
	created := !f.completed
	f.completed = true
	return services.CompleteOrderResult{Order: models.Order{ID: "order_1", CartID: cartID, CustomerID: "ada@example.com"}, Created: created}, nil
}

func (f *fakeCheckout) GetOrder(_ context.Context, id string) (*models.Order, error) {
	if id != "order_1" {
		return nil, models.ErrOrderNotFound
	}
	return &models.Order{ID: id, CustomerID: "ada@example.com"}, nil
}

type testEnv struct {
	router   *mux.Router
	carts    *fakeCarts
	payments *fakePayments
	checkout *fakeCheckout
}

func newTestEnv() *testEnv {
	env := &testEnv{
		carts: &fakeCarts{carts: map[string]*models.Cart{
			"cart_1": {ID: "cart_1", CustomerID: "ada@example.com", CurrencyCode: "usd", Items: []models.LineItem{{VariantID: "v1", Quantity: 2, UnitPrice: 1500}}},
			"cart_2": {ID: "cart_2", CustomerID: "bob@example.com"},
		}},
		payments: &fakePayments{},
		checkout: &fakeCheckout{},
	}
	cc := NewCartController(env.carts)
	pc := NewPaymentController(env.carts, env.payments, env.payments, env.payments, "rzp_key")
	oc := NewOrderController(env.carts, env.checkout)

	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if c := req.Header.Get("X-Customer"); c != "" {
				req = req.WithContext(middleware.WithCustomer(req.Context(), c))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.HandleFunc("/store/carts", cc.GetOrCreateCart).Methods("POST")
	r.HandleFunc("/store/carts/{id}", cc.GetCart).Methods("GET")
	r.HandleFunc("/store/carts/{id}/line-items", cc.AddLineItem).Methods("POST")
	r.HandleFunc("/store/carts/{id}/payment-sessions", pc.InitiateSession).Methods("POST")
	r.HandleFunc("/store/carts/{id}/payment-sessions", pc.ListSessions).Methods("GET")
	r.HandleFunc("/store/payment-sessions/{id}/authorize", pc.Authorize).Methods("POST")
	r.HandleFunc("/store/carts/{id}/review", oc.AdvanceToReview).Methods("POST")
	r.HandleFunc("/store/carts/{id}/complete", oc.CompleteOrder).Methods("POST")
	r.HandleFunc("/store/orders/{id}", oc.GetOrder).Methods("GET")
	env.router = r
	return env
}

func (env *testEnv) do(method, path, customer, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if customer != "" {
		req.Header.Set("X-Customer", customer)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestGetCartReturnsTotals(t *testing.T) {
	env := newTestEnv()
	rec := env.do(http.MethodGet, "/store/carts/cart_1", "ada@example.com", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "cart_1", body["id"])
	totals := body["totals"].(map[string]any)
	assert.Equal(t, 3000.0, totals["total"])
}

func TestCartOfAnotherCustomerIsNotFound(t *testing.T) {
	env := newTestEnv()
	rec := env.do(http.MethodGet, "/store/carts/cart_2", "ada@example.com", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "cart_not_found", decodeBody(t, rec)["code"])
}

func TestMissingCustomerIsUnauthorized(t *testing.T) {
	env := newTestEnv()
	rec := env.do(http.MethodGet, "/store/carts/cart_1", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetOrCreateCartUsesTokenCustomer(t *testing.T) {
	env := newTestEnv()
	rec := env.do(http.MethodPost, "/store/carts", "ada@example.com", `{"region_id":"reg_eu"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ada@example.com", env.carts.created.CustomerID)
	assert.Equal(t, "reg_eu", env.carts.created.RegionID)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"validation", models.ErrInvalidQuantity, http.StatusBadRequest, "validation_error"},
		{"conflict", models.ErrCartCompleted, http.StatusConflict, "state_conflict"},
		{"provider", models.ErrProviderUnavailable.Wrap(errors.New("dial tcp: refused")), http.StatusServiceUnavailable, "provider_unavailable"},
		{"internal", errors.New("mongo exploded"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			env.carts.addErr = tt.err
			rec := env.do(http.MethodPost, "/store/carts/cart_1/line-items", "ada@example.com", `{"variant_id":"v1","quantity":1}`)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.kind, decodeBody(t, rec)["kind"])
			assert.NotContains(t, rec.Body.String(), "refused")
			assert.NotContains(t, rec.Body.String(), "mongo")
		})
	}
}

func TestInvalidJSONIsValidationError(t *testing.T) {
	env := newTestEnv()
	rec := env.do(http.MethodPost, "/store/carts/cart_1/line-items", "ada@example.com", `{"variant_id":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", decodeBody(t, rec)["code"])
}

func TestSessionResponseExposesOnlyClientFields(t *testing.T) {
	env := newTestEnv()
	env.payments.result = services.SessionResult{
		Collection: models.PaymentCollection{ID: "paycol_1"},
		Session: models.PaymentSession{
			ID:          "payses_1",
			ProviderID:  models.ProviderStripe,
			Status:      models.SessionPending,
			Data:        models.NewStripeData(models.StripeData{PaymentIntentID: "pi_1", ClientSecret: "pi_1_secret"}),
			ErrorReason: "internal detail",
		},
		Created: true,
	}
	rec := env.do(http.MethodPost, "/store/carts/cart_1/payment-sessions", "ada@example.com", `{"provider_id":"pp_stripe_stripe"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	session := decodeBody(t, rec)["payment_session"].(map[string]any)
	data := session["data"].(map[string]any)
	assert.Equal(t, "pi_1_secret", data["client_secret"])
	assert.NotContains(t, rec.Body.String(), "pi_1\"")
	assert.NotContains(t, rec.Body.String(), "internal detail")
}

func TestRazorpaySessionIncludesKeyID(t *testing.T) {
	env := newTestEnv()
	env.payments.sessions = []models.PaymentSession{{
		ID:         "payses_2",
		ProviderID: models.ProviderRazorpay,
		Status:     models.SessionPending,
		Data:       models.NewRazorpayData(models.RazorpayData{OrderID: "order_rzp", Receipt: "payses_2"}),
	}}
	rec := env.do(http.MethodGet, "/store/carts/cart_1/payment-sessions", "ada@example.com", "")
	require.Equal(t, http.StatusOK, rec.Code)

	sessions := decodeBody(t, rec)["payment_sessions"].([]any)
	require.Len(t, sessions, 1)
	data := sessions[0].(map[string]any)["data"].(map[string]any)
	assert.Equal(t, "order_rzp", data["order_id"])
	assert.Equal(t, "rzp_key", data["key_id"])
}

func TestAuthorizeMapsInvalidSignature(t *testing.T) {
	env := newTestEnv()
	env.payments.authErr = models.ErrInvalidSignature
	rec := env.do(http.MethodPost, "/store/payment-sessions/payses_1/authorize", "ada@example.com", `{"razorpay":{"razorpay_order_id":"o","razorpay_payment_id":"p","razorpay_signature":"x"}}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_signature", decodeBody(t, rec)["code"])
}

func TestAuthorizeHidesSessionsOfOtherCustomers(t *testing.T) {
	env := newTestEnv()
	rec := env.do(http.MethodPost, "/store/payment-sessions/payses_1/authorize", "bob@example.com", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "session_not_found", decodeBody(t, rec)["code"])
}

func TestAuthorizeRejectedIsPaymentRequired(t *testing.T) {
	env := newTestEnv()
	env.payments.authErr = models.ErrAuthorizationRejected.Withf("card declined")
	rec := env.do(http.MethodPost, "/store/payment-sessions/payses_1/authorize", "ada@example.com", `{}`)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "card declined", decodeBody(t, rec)["error"])
}

func TestCompleteOrderCreatedThenReplayed(t *testing.T) {
	env := newTestEnv()
	first := env.do(http.MethodPost, "/store/carts/cart_1/complete", "ada@example.com", "")
	require.Equal(t, http.StatusCreated, first.Code)
	second := env.do(http.MethodPost, "/store/carts/cart_1/complete", "ada@example.com", "")
	require.Equal(t, http.StatusOK, second.Code)

	a := decodeBody(t, first)["order"].(map[string]any)
	b := decodeBody(t, second)["order"].(map[string]any)
	assert.Equal(t, a["id"], b["id"])
}

func TestAdvanceToReviewNamesMissingStep(t *testing.T) {
	env := newTestEnv()
	rec := env.do(http.MethodPost, "/store/carts/cart_1/review", "ada@example.com", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "delivery")
}

func TestGetOrderOwnership(t *testing.T) {
	env := newTestEnv()
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/store/orders/order_1", "ada@example.com", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/store/orders/order_1", "bob@example.com", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/store/orders/order_9", "ada@example.com", "").Code)
}
