// Package auth is the identity glue around the directory: Discord OAuth for
// sign-in, a signed JWT session cookie afterwards, and middleware that turns
// the cookie back into an owner ID for the handlers.
//
// SIGN-IN FLOW:
//  1. /auth/discord/login stores a random state cookie and redirects to Discord
//  2. Discord redirects to /auth/discord/callback with ?code=…&state=…
//  3. The handler checks state, exchanges the code, fetches /users/@me
//  4. The user row is upserted (keyed by Discord ID) and a JWT carrying the
//     internal user ID is set as the HttpOnly "token" cookie
//  5. RequireAuth validates that cookie on every protected request
//
// The directory service never sees any of this; it receives only the
// resolved owner ID.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "dishub"

// DefaultTTL is how long a session cookie stays valid.
const DefaultTTL = 7 * 24 * time.Hour

// TokenService signs and verifies session tokens with one HMAC secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService rejects secrets shorter than 16 bytes. A ttl <= 0 falls
// back to DefaultTTL.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL is also used as the cookie MaxAge so browser and token expire together.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Generate issues a session token for userID that expires after TTL.
func (s *TokenService) Generate(userID string) (string, error) {
	return s.GenerateWithDuration(userID, s.ttl)
}

// GenerateWithDuration issues a token with an explicit lifetime. A negative
// d yields an already-expired token, which the tests rely on.
func (s *TokenService) GenerateWithDuration(userID string, d time.Duration) (string, error) {
	now := time.Now()

	c := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(d)),
		Issuer:    issuer,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate verifies signature, issuer and expiry and returns the user ID
// from the "sub" claim.
//
// ALGORITHM CONFUSION:
// jwt.WithValidMethods pins HS256, so a token claiming "alg":"none" (or an
// asymmetric algorithm keyed with our secret) is rejected before the
// signature is even looked at.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	var c jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&c,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", errors.New("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}
	if !token.Valid {
		return "", errors.New("auth: invalid token claims")
	}
	if c.Subject == "" {
		return "", errors.New("auth: token has no subject")
	}

	return c.Subject, nil
}
