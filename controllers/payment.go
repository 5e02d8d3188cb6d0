package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"go-storefront/models"
	"go-storefront/services"
)

// SessionManager is the read side of payment sessions.
type SessionManager interface {
	SelectSession(ctx context.Context, cartID string, providerID models.ProviderID) (*models.PaymentSession, error)
	ListSessions(ctx context.Context, cartID string) ([]models.PaymentSession, error)
	CartIDForSession(ctx context.Context, sessionID string) (string, error)
}

type Authorizer interface {
	VerifyAndAuthorize(ctx context.Context, sessionID string, proof models.ClientProof) (models.Payment, error)
}

type PaymentPreparer interface {
	PreparePayment(ctx context.Context, cartID string, providerID models.ProviderID, extra map[string]string) (services.SessionResult, error)
}

// PaymentController exposes payment sessions and the authorize callback.
type PaymentController struct {
	carts         CartStore
	sessions      SessionManager
	preparer      PaymentPreparer
	verifier      Authorizer
	razorpayKeyID string
}

func NewPaymentController(carts CartStore, sessions SessionManager, preparer PaymentPreparer, verifier Authorizer, razorpayKeyID string) *PaymentController {
	return &PaymentController{
		carts:         carts,
		sessions:      sessions,
		preparer:      preparer,
		verifier:      verifier,
		razorpayKeyID: razorpayKeyID,
	}
}

// sessionResponse exposes only what the storefront needs to finish the gateway step.
type sessionResponse struct {
	ID           string               `json:"id"`
	ProviderID   models.ProviderID    `json:"provider_id"`
	Amount       int64                `json:"amount"`
	CurrencyCode string               `json:"currency_code"`
	Status       models.SessionStatus `json:"status"`
	Data         sessionDataResponse  `json:"data"`
	CreatedAt    time.Time            `json:"created_at"`
	AuthorizedAt *time.Time           `json:"authorized_at,omitempty"`
}

type sessionDataResponse struct {
	ClientSecret string `json:"client_secret,omitempty"`
	OrderID      string `json:"order_id,omitempty"`
	KeyID        string `json:"key_id,omitempty"`
}

func (pc *PaymentController) sessionView(s models.PaymentSession) sessionResponse {
	view := sessionResponse{
		ID:           s.ID,
		ProviderID:   s.ProviderID,
		Amount:       s.Amount,
		CurrencyCode: s.CurrencyCode,
		Status:       s.Status,
		CreatedAt:    s.CreatedAt,
		AuthorizedAt: s.AuthorizedAt,
	}
	if d, ok := s.Data.StripeArm(); ok {
		view.Data.ClientSecret = d.ClientSecret
	}
	if d, ok := s.Data.RazorpayArm(); ok {
		view.Data.OrderID = d.OrderID
		view.Data.KeyID = pc.razorpayKeyID
	}
	return view
}

// InitiateSession prepares the payment step for one provider.
func (pc *PaymentController) InitiateSession(w http.ResponseWriter, r *http.Request) {
	cart, ok := ownedCart(w, r, pc.carts)
	if !ok {
		return
	}
	var body struct {
		ProviderID models.ProviderID `json:"provider_id"`
		Data       map[string]string `json:"data"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	if body.ProviderID == "" {
		writeError(w, r, models.ErrProviderNotFound.Withf("provider_id is required"))
		return
	}

	result, err := pc.preparer.PreparePayment(r.Context(), cart.ID, body.ProviderID, body.Data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	respond(w, status, map[string]any{
		"payment_collection_id": result.Collection.ID,
		"payment_session":       pc.sessionView(result.Session),
	})
}

func (pc *PaymentController) ListSessions(w http.ResponseWriter, r *http.Request) {
	cart, ok := ownedCart(w, r, pc.carts)
	if !ok {
		return
	}
	sessions, err := pc.sessions.ListSessions(r.Context(), cart.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, pc.sessionView(s))
	}
	respond(w, http.StatusOK, map[string]any{"payment_sessions": views})
}

func (pc *PaymentController) SelectSession(w http.ResponseWriter, r *http.Request) {
	cart, ok := ownedCart(w, r, pc.carts)
	if !ok {
		return
	}
	session, err := pc.sessions.SelectSession(r.Context(), cart.ID, models.ProviderID(mux.Vars(r)["provider_id"]))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if session == nil {
		writeError(w, r, models.ErrSessionNotFound)
		return
	}
	respond(w, http.StatusOK, map[string]any{"payment_session": pc.sessionView(*session)})
}

// Authorize verifies the client's gateway proof and records the payment.
func (pc *PaymentController) Authorize(w http.ResponseWriter, r *http.Request) {
	customerID, ok := customer(w, r)
	if !ok {
		return
	}
	sessionID := mux.Vars(r)["id"]
	cartID, err := pc.sessions.CartIDForSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cart, err := pc.carts.GetCart(r.Context(), cartID)
	if err != nil || cart.CustomerID != customerID {
		writeError(w, r, models.ErrSessionNotFound)
		return
	}

	var proof models.ClientProof
	if err := decode(r, &proof); err != nil {
		writeError(w, r, err)
		return
	}
	payment, err := pc.verifier.VerifyAndAuthorize(r.Context(), sessionID, proof)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"payment": payment})
}
