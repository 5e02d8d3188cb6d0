package controllers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"go-storefront/models"
	"go-storefront/services"
)

// Checkout is the orchestrator surface for steps and order completion.
type Checkout interface {
	Steps(ctx context.Context, cartID string) (services.CheckoutState, error)
	AdvanceToReview(ctx context.Context, cartID string) (services.CheckoutState, error)
	CompleteOrder(ctx context.Context, cartID string) (services.CompleteOrderResult, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
}

// OrderController drives checkout steps and order completion.
type OrderController struct {
	carts    CartStore
	checkout Checkout
}

func NewOrderController(carts CartStore, checkout Checkout) *OrderController {
	return &OrderController{carts: carts, checkout: checkout}
}

func (oc *OrderController) Steps(w http.ResponseWriter, r *http.Request) {
	cart, ok := ownedCart(w, r, oc.carts)
	if !ok {
		return
	}
	state, err := oc.checkout.Steps(r.Context(), cart.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, state)
}

func (oc *OrderController) AdvanceToReview(w http.ResponseWriter, r *http.Request) {
	cart, ok := ownedCart(w, r, oc.carts)
	if !ok {
		return
	}
	state, err := oc.checkout.AdvanceToReview(r.Context(), cart.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, state)
}

// CompleteOrder converts the cart into an order: 201 on creation, 200 on replay.
func (oc *OrderController) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	cart, ok := ownedCart(w, r, oc.carts)
	if !ok {
		return
	}
	result, err := oc.checkout.CompleteOrder(r.Context(), cart.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	respond(w, status, map[string]any{"order": result.Order})
}

func (oc *OrderController) GetOrder(w http.ResponseWriter, r *http.Request) {
	customerID, ok := customer(w, r)
	if !ok {
		return
	}
	order, err := oc.checkout.GetOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	if order.CustomerID != customerID {
		writeError(w, r, models.ErrOrderNotFound)
		return
	}
	respond(w, http.StatusOK, map[string]any{"order": order})
}
