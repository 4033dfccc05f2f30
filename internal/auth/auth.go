package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the pulse author identity inside the bearer token.
type Claims struct {
	DisplayName string `json:"displayName,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the authenticated user extracted from a request.
type Identity struct {
	UserID      string
	DisplayName string
}

// ParseBearer extracts and verifies the identity from an Authorization
// header. An empty header yields an anonymous (zero) identity without error;
// a malformed or invalid token is an error.
func ParseBearer(header string, secret []byte) (Identity, error) {
	if header == "" {
		return Identity{}, nil
	}

	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return Identity{}, fmt.Errorf("authorization header is not a bearer token")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return Identity{}, fmt.Errorf("invalid token")
	}

	return Identity{
		UserID:      claims.Subject,
		DisplayName: claims.DisplayName,
	}, nil
}

// Sign issues a token for the given identity. Used by tests and tooling;
// identity issuance itself is an external collaborator in production.
func Sign(identity Identity, secret []byte, ttl time.Duration) (string, error) {
	claims := Claims{
		DisplayName: identity.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
