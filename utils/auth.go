package utils

import (
	"errors"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// Claims represents the JWT claims. The e-mail identifies the customer.
type Claims struct {
	Email string `json:"email"`
	jwt.StandardClaims
}

var ErrInvalidToken = errors.New("invalid token")

// GenerateJWT issues a 24h HS256 token for a customer.
func GenerateJWT(key []byte, email string, now time.Time) (string, error) {
	claims := &Claims{
		Email: email,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: now.Add(24 * time.Hour).Unix(),
			IssuedAt:  now.Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(key)
}

// ParseJWT validates tokenStr and returns its claims.
func ParseJWT(key []byte, tokenStr string) (*Claims, error) {
	if len(key) == 0 {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return key, nil
	})
	if err != nil || !token.Valid || claims.Email == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
