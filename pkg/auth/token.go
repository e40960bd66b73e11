package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the JWT claims expected by the appops API.
type Claims struct {
	jwt.RegisteredClaims
	UID     *int     `json:"uid"`
	Package string   `json:"pkg,omitempty"`
	Grants  []string `json:"grants,omitempty"`
}

// Caller converts validated claims into an engine caller.
func (c *Claims) Caller() (Caller, error) {
	if c.UID == nil {
		return Caller{}, errors.New("token uid binding is required")
	}
	if *c.UID < 0 {
		return Caller{}, fmt.Errorf("token uid %d is negative", *c.UID)
	}
	return Caller{UID: *c.UID, Package: c.Package, Grants: c.Grants}, nil
}

// TokenValidator validates HMAC-signed caller tokens.
type TokenValidator struct {
	secret []byte
}

// NewTokenValidator returns nil for an empty secret so callers fail closed.
func NewTokenValidator(secret []byte) *TokenValidator {
	if len(secret) == 0 {
		return nil
	}
	return &TokenValidator{secret: secret}
}

// Validate parses and validates a JWT token string.
func (v *TokenValidator) Validate(tokenStr string) (*Claims, error) {
	if v == nil {
		return nil, fmt.Errorf("validator uninitialized")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// SignToken mints a token for caller valid for ttl.
func SignToken(secret []byte, caller Caller, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("signing secret is empty")
	}
	uid := caller.UID
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("uid:%d", caller.UID),
			Issuer:    "appopsd",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UID:     &uid,
		Package: caller.Package,
		Grants:  caller.Grants,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
