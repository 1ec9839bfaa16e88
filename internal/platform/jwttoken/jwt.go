// Package jwttoken validates the HS256 bearer tokens issued by the external
// auth layer. Only validation lives here; issuing tokens is out of scope.
package jwttoken

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"casework/internal/platform/middleware"
)

// Claims are the token claims this service reads.
type Claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Validator checks token signatures and expiry against a shared signing key.
type Validator struct {
	signingKey []byte
}

func NewValidator(signingKey string) *Validator {
	return &Validator{signingKey: []byte(signingKey)}
}

// ValidateToken parses and verifies a bearer token and extracts the actor
// identity. The subject claim is the actor id.
func (v *Validator) ValidateToken(tokenString string) (*middleware.ActorClaims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.signingKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token missing subject")
	}
	return &middleware.ActorClaims{
		ActorID:   claims.Subject,
		ActorName: claims.Name,
	}, nil
}
