package controllers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"go-storefront/models"
	"go-storefront/services"
)

// CartStore is the cart surface the HTTP layer needs.
type CartStore interface {
	GetOrCreateCart(ctx context.Context, in services.GetOrCreateCartInput) (*models.Cart, error)
	GetCart(ctx context.Context, id string) (*models.Cart, error)
	AddLineItem(ctx context.Context, cartID, variantID string, quantity int) (*models.Cart, error)
	RemoveLineItem(ctx context.Context, cartID, variantID string) (*models.Cart, error)
	SetAddresses(ctx context.Context, in services.SetAddressesInput) (*models.Cart, error)
	SetShippingMethod(ctx context.Context, cartID, optionID string) (*models.Cart, error)
	ClearShippingMethod(ctx context.Context, cartID string) (*models.Cart, error)
	ApplyPromotions(ctx context.Context, cartID string, codes []string) (*models.Cart, error)
}

// CartController handles cart-related requests
type CartController struct {
	carts CartStore
}

func NewCartController(carts CartStore) *CartController {
	return &CartController{carts: carts}
}

type cartResponse struct {
	*models.Cart
	Totals models.Totals `json:"totals"`
}

func cartView(c *models.Cart) cartResponse {
	return cartResponse{Cart: c, Totals: c.Totals()}
}

// ownedCart loads the path cart and hides carts of other customers behind 404.
func ownedCart(w http.ResponseWriter, r *http.Request, carts CartStore) (*models.Cart, bool) {
	customerID, ok := customer(w, r)
	if !ok {
		return nil, false
	}
	cart, err := carts.GetCart(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	if cart.CustomerID != customerID {
		writeError(w, r, models.ErrCartNotFound)
		return nil, false
	}
	return cart, true
}

// GetOrCreateCart returns the caller's active cart, creating it lazily.
func (cc *CartController) GetOrCreateCart(w http.ResponseWriter, r *http.Request) {
	customerID, ok := customer(w, r)
	if !ok {
		return
	}
	var body struct {
		RegionID string `json:"region_id"`
		CartID   string `json:"cart_id"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	cart, err := cc.carts.GetOrCreateCart(r.Context(), services.GetOrCreateCartInput{
		CustomerID: customerID,
		RegionID:   body.RegionID,
		CartID:     body.CartID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, cartView(cart))
}

func (cc *CartController) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, ok := ownedCart(w, r, cc.carts)
	if !ok {
		return
	}
	respond(w, http.StatusOK, cartView(cart))
}

func (cc *CartController) AddLineItem(w http.ResponseWriter, r *http.Request) {
	cart, ok := ownedCart(w, r, cc.carts)
	if !ok {
		return
	}
	var body struct {
		VariantID string `json:"variant_id"`
		Quantity  int    `json:"quantity"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	cc.reply(w, r)(cc.carts.AddLineItem(r.Context(), cart.ID, body.VariantID, body.Quantity))
}

func (cc *CartController) RemoveLineItem(w http.ResponseWriter, r *http.Request) {
	cart, ok := ownedCart(w, r, cc.carts)
	if !ok {
		return
	}
	cc.reply(w, r)(cc.carts.RemoveLineItem(r.Context(), cart.ID, mux.Vars(r)["variant_id"]))
}

func (cc *CartController) SetAddresses(w http.ResponseWriter, r *http.Request) {
	cart, ok := ownedCart(w, r, cc.carts)
	if !ok {
		return
	}
	var body struct {
		ShippingAddress models.Address  `json:"shipping_address"`
		BillingAddress  *models.Address `json:"billing_address"`
		SameAsShipping  bool            `json:"same_as_shipping"`
		Email           string          `json:"email"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	cc.reply(w, r)(cc.carts.SetAddresses(r.Context(), services.SetAddressesInput{
		CartID:         cart.ID,
		Shipping:       body.ShippingAddress,
		Billing:        body.BillingAddress,
		SameAsShipping: body.SameAsShipping,
		Email:          body.Email,
	}))
}

func (cc *CartController) SetShippingMethod(w http.ResponseWriter, r *http.Request) {
	cart, ok := ownedCart(w, r, cc.carts)
	if !ok {
		return
	}
	var body struct {
		OptionID string `json:"option_id"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	cc.reply(w, r)(cc.carts.SetShippingMethod(r.Context(), cart.ID, body.OptionID))
}

func (cc *CartController) ClearShippingMethod(w http.ResponseWriter, r *http.Request) {
	cart, ok := ownedCart(w, r, cc.carts)
	if !ok {
		return
	}
	cc.reply(w, r)(cc.carts.ClearShippingMethod(r.Context(), cart.ID))
}

func (cc *CartController) ApplyPromotions(w http.ResponseWriter, r *http.Request) {
	cart, ok := ownedCart(w, r, cc.carts)
	if !ok {
		return
	}
	var body struct {
		Codes []string `json:"codes"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	cc.reply(w, r)(cc.carts.ApplyPromotions(r.Context(), cart.ID, body.Codes))
}

func (cc *CartController) reply(w http.ResponseWriter, r *http.Request) func(*models.Cart, error) {
	return func(cart *models.Cart, err error) {
		if err != nil {
			writeError(w, r, err)
			return
		}
		respond(w, http.StatusOK, cartView(cart))
	}
}
