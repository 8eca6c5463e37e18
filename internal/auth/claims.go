package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

var (
	errNoSubject = errors.New("auth: token has no subject")
	errNoExpiry  = errors.New("auth: token has no expiry")
)

// ClaimRules are the registered claims a bookstore access token must carry.
// Empty Issuer or Audience disables that check.
type ClaimRules struct {
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Algorithm jwa.SignatureAlgorithm
}

// Check validates tok as signed with algorithm and returns the customer id
// held in its subject. Tokens without an expiry are rejected.
func (c ClaimRules) Check(tok jwt.Token, algorithm jwa.SignatureAlgorithm, now time.Time) (string, error) {
	if tok == nil {
		return "", errors.New("auth: token is nil")
	}
	if algorithm == "" {
		return "", errors.New("auth: token missing algorithm")
	}
	if c.Algorithm != "" && algorithm != c.Algorithm {
		return "", fmt.Errorf("auth: unexpected token algorithm %s", algorithm)
	}
	if tok.Expiration().IsZero() {
		return "", errNoExpiry
	}

	opts := []jwt.ValidateOption{jwt.WithClock(jwt.ClockFunc(func() time.Time { return now }))}
	if c.ClockSkew > 0 {
		opts = append(opts, jwt.WithAcceptableSkew(c.ClockSkew))
	}
	if c.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.Issuer))
	}
	if c.Audience != "" {
		opts = append(opts, jwt.WithAudience(c.Audience))
	}
	if err := jwt.Validate(tok, opts...); err != nil {
		return "", err
	}

	subject := strings.TrimSpace(tok.Subject())
	if subject == "" {
		return "", errNoSubject
	}
	return subject, nil
}
