// Package auth issues and validates player session tokens. Claims carry
// the player's identity only; authorization (what a player's session is
// allowed to touch) is enforced by the gRPC layer, not here.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// devSecret is used only when Issuer is constructed with DevMode: true,
// matching an operator's explicit --dev flag. Unlike the teacher's
// hand-rolled fallback, this is never reachable by omission alone.
const devSecret = "dev_secret_change_in_production_use_openssl_rand_base64_32"

// Claims mirrors the session token shape: subject is the player ID,
// username is carried for display without a second lookup.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Issuer generates and validates tokens against a single secret.
type Issuer struct {
	secret   []byte
	lifetime time.Duration
}

// NewIssuer builds an Issuer. If secret is empty, DevMode must be true
// or construction fails — production deployments must set JWT_SECRET
// explicitly.
func NewIssuer(secret string, lifetime time.Duration, devMode bool) (*Issuer, error) {
	if secret == "" {
		if !devMode {
			return nil, errors.New("auth: JWT secret is required outside --dev mode")
		}
		secret = devSecret
	}
	if lifetime <= 0 {
		lifetime = 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), lifetime: lifetime}, nil
}

// Generate issues a token for playerID/username, valid from now for the
// issuer's configured lifetime.
func (i *Issuer) Generate(playerID, username string) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   playerID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.lifetime)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies token, returning its claims.
func (i *Issuer) Validate(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("auth: validate token: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("auth: invalid token")
	}
	return claims, nil
}
