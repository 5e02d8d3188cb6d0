// routes/routes.go
package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"go-storefront/controllers"
	"go-storefront/metrics"
	"go-storefront/middleware"
)

// RegisterRoutes sets up all the routes for the application
func RegisterRoutes(router *mux.Router, jwtKey []byte, cartController *controllers.CartController, paymentController *controllers.PaymentController, orderController *controllers.OrderController) {
	// Public routes
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods("GET")
	router.Handle("/metrics", metrics.Handler()).Methods("GET")

	// Protected routes
	store := router.PathPrefix("/store").Subrouter()
	store.Use(middleware.AuthMiddleware(jwtKey))

	// Cart routes
	store.HandleFunc("/carts", cartController.GetOrCreateCart).Methods("POST")
	store.HandleFunc("/carts/{id}", cartController.GetCart).Methods("GET")
	store.HandleFunc("/carts/{id}/line-items", cartController.AddLineItem).Methods("POST")
	store.HandleFunc("/carts/{id}/line-items/{variant_id}", cartController.RemoveLineItem).Methods("DELETE")
	store.HandleFunc("/carts/{id}/addresses", cartController.SetAddresses).Methods("POST")
	store.HandleFunc("/carts/{id}/shipping-method", cartController.SetShippingMethod).Methods("POST")
	store.HandleFunc("/carts/{id}/shipping-method", cartController.ClearShippingMethod).Methods("DELETE")
	store.HandleFunc("/carts/{id}/promotions", cartController.ApplyPromotions).Methods("POST")

	// Payment routes
	store.HandleFunc("/carts/{id}/payment-sessions", paymentController.InitiateSession).Methods("POST")
	store.HandleFunc("/carts/{id}/payment-sessions", paymentController.ListSessions).Methods("GET")
	store.HandleFunc("/carts/{id}/payment-sessions/{provider_id}", paymentController.SelectSession).Methods("GET")
	store.HandleFunc("/payment-sessions/{id}/authorize", paymentController.Authorize).Methods("POST")

	// Checkout and order routes
	store.HandleFunc("/carts/{id}/checkout", orderController.Steps).Methods("GET")
	store.HandleFunc("/carts/{id}/review", orderController.AdvanceToReview).Methods("POST")
	store.HandleFunc("/carts/{id}/complete", orderController.CompleteOrder).Methods("POST")
	store.HandleFunc("/orders/{id}", orderController.GetOrder).Methods("GET")
}
