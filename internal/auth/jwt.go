// Studyhall - Real-Time Study Group Collaboration Backend
// Copyright 2026 Studyhall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/studyhall-app/studyhall

// Package auth verifies the bearer credentials presented by clients.
//
// Studyhall never issues tokens over HTTP: credentials are pre-issued by an
// external identity service and this package only validates them, both at the
// WebSocket handshake and on every REST request.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/studyhall-app/studyhall/internal/config"
	"github.com/studyhall-app/studyhall/internal/models"
)

// ErrInvalidToken indicates a token that failed signature, structure, or
// time-based validation.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the JWT claims Studyhall understands. UserID and Name together
// form the identity bound to a connection.
type Claims struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

// Identity converts the claims to the immutable session identity.
func (c *Claims) Identity() models.Identity {
	return models.Identity{UserID: c.UserID, Name: c.Name}
}

// JWTManager validates (and, for tooling, mints) HS256-signed tokens.
type JWTManager struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTManager creates a token manager from the security configuration.
// The secret must be at least 32 characters; config validation enforces this
// but the check is repeated here for callers constructing the config by hand.
func NewJWTManager(cfg *config.SecurityConfig) (*JWTManager, error) {
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 characters, got %d", len(cfg.JWTSecret))
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTManager{
		secret: []byte(cfg.JWTSecret),
		ttl:    ttl,
	}, nil
}

// GenerateToken mints a signed token for the given identity. Used by
// operational tooling and tests; there is no HTTP issuance endpoint.
func (m *JWTManager) GenerateToken(identity models.Identity) (string, error) {
	claims := &Claims{
		UserID: identity.UserID,
		Name:   identity.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken checks the token's signature, algorithm, and time claims and
// returns the embedded claims. Rejecting non-HMAC signing methods prevents
// algorithm confusion attacks.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid claims", ErrInvalidToken)
	}
	if claims.UserID == 0 {
		return nil, fmt.Errorf("%w: missing user_id claim", ErrInvalidToken)
	}

	return claims, nil
}
