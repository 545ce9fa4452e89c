// Package auth issues the bearer tokens that carry a session handle to the browser.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"training-portal/internal/app"
)

// ErrInvalidToken covers malformed, wrongly signed and expired tokens.
var ErrInvalidToken = errors.New("invalid token")

const issuer = "training-portal"

// Claims carries the session handle: the JWT ID is the session token and the
// subject is the company account id.
type Claims struct {
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens returns a signer. ttl <= 0 issues tokens without expiry; the session lock
// still bounds their use.
func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret not configured")
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for handle.
func (t *Tokens) Issue(handle app.SessionHandle) (string, error) {
	now := t.now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		ID:       handle.SessionID,
		Subject:  handle.AccountID,
		Issuer:   issuer,
		IssuedAt: jwt.NewNumericDate(now),
	}}
	if t.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(t.ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies raw and returns the session handle it carries.
func (t *Tokens) Parse(raw string) (app.SessionHandle, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return app.SessionHandle{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.ID == "" || claims.Subject == "" {
		return app.SessionHandle{}, ErrInvalidToken
	}
	return app.SessionHandle{AccountID: claims.Subject, SessionID: claims.ID}, nil
}
