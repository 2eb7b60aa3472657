// Package identity issues and verifies signed, expiring email verification
// tokens.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// PurposeEmailConfirmation is the "type" claim carried by email verification tokens.
const PurposeEmailConfirmation = "email_confirmation"

// DefaultVerificationTTL is how long an email verification token stays valid.
const DefaultVerificationTTL = 3 * 24 * time.Hour

// VerificationClaims are the JWT claims of an email verification token.
// Only "exp" is set from the registered claims, so the encoded payload is
// exactly {user, exp, type}.
type VerificationClaims struct {
	jwt.RegisteredClaims
	User string `json:"user"`
	Type string `json:"type"`
}

// VerificationTokens issues and verifies HS256-signed email verification
// tokens. It keeps no state between calls: a token is valid as long as its
// signature checks out against the secret and its expiry has not passed.
type VerificationTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option customises a VerificationTokens.
type Option func(*VerificationTokens)

// WithClock replaces the wall clock used for issuance and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(v *VerificationTokens) { v.now = now }
}

// WithTTL overrides the token lifetime (default: 3 days).
func WithTTL(ttl time.Duration) Option {
	return func(v *VerificationTokens) {
		if ttl > 0 {
			v.ttl = ttl
		}
	}
}

// NewVerificationTokens creates a VerificationTokens signing with secret.
// The secret must be stable across restarts or outstanding tokens stop verifying.
func NewVerificationTokens(secret string, opts ...Option) (*VerificationTokens, error) {
	if secret == "" {
		return nil, errors.New("verification tokens: empty secret key")
	}
	v := &VerificationTokens{
		secret: []byte(secret),
		ttl:    DefaultVerificationTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Issue creates a signed verification token for username.
func (v *VerificationTokens) Issue(username string) (string, error) {
	claims := VerificationClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(v.now().UTC().Add(v.ttl)),
		},
		User: username,
		Type: PurposeEmailConfirmation,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign verification token: %w", err)
	}
	return signed, nil
}

// Verify checks the token's signature, expiry and purpose and returns the
// username it was issued for. Failures are returned as *TokenError.
func (v *VerificationTokens) Verify(tokenStr string) (string, error) {
	var claims VerificationClaims
	_, err := jwt.ParseWithClaims(
		tokenStr,
		&claims,
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return v.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", &TokenError{Kind: ErrExpired, Err: err}
		}
		return "", &TokenError{Kind: ErrInvalidSignature, Err: err}
	}
	if claims.Type != PurposeEmailConfirmation {
		return "", &TokenError{Kind: ErrWrongPurpose}
	}
	if claims.User == "" {
		return "", &TokenError{Kind: ErrInvalidSignature, Err: errors.New("missing user claim")}
	}
	return claims.User, nil
}
