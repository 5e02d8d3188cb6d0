package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"go-storefront/utils"
)

// Key type for context
type contextKey string

const UserContextKey = contextKey("user")

// AuthMiddleware verifies JWT tokens and attaches the claims to the request context.
func AuthMiddleware(key []byte) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "Authorization header missing")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				unauthorized(w, "Invalid Authorization header format")
				return
			}

			claims, err := utils.ParseJWT(key, parts[1])
			if err != nil {
				unauthorized(w, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CustomerID returns the authenticated customer, identified by the token's e-mail claim.
func CustomerID(ctx context.Context) (string, bool) {
	claims, ok := ctx.Value(UserContextKey).(*utils.Claims)
	if !ok || claims.Email == "" {
		return "", false
	}
	return claims.Email, true
}

// WithCustomer attaches a customer id to ctx the way AuthMiddleware does.
func WithCustomer(ctx context.Context, customerID string) context.Context {
	return context.WithValue(ctx, UserContextKey, &utils.Claims{Email: customerID})
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `","code":"unauthorized","kind":"unauthorized"}`))
}
