package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carried by an actor token.
type Claims struct {
	// Actor is the identity the authorization matrix keys on.
	Actor string `json:"actor"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies actor tokens with an HMAC secret.
type Issuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithTTL sets the token lifetime. Default is one hour.
func WithTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// WithAudience sets the expected audience claim.
func WithAudience(aud string) IssuerOption {
	return func(i *Issuer) {
		i.audience = aud
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// NewIssuer creates a token issuer. The secret must not be empty.
func NewIssuer(secret []byte, issuer string, opts ...IssuerOption) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("token secret must not be empty")
	}
	i := &Issuer{
		secret: secret,
		issuer: issuer,
		ttl:    1 * time.Hour,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue signs a token for the actor.
func (i *Issuer) Issue(actor string) (string, error) {
	if actor == "" {
		return "", fmt.Errorf("actor must not be empty")
	}
	now := i.now()
	claims := Claims{
		Actor: actor,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   actor,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	if i.audience != "" {
		claims.Audience = jwt.ClaimStrings{i.audience}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign actor token: %w", err)
	}
	return signed, nil
}

// ActorFromToken verifies the token and returns the actor it names.
func (i *Issuer) ActorFromToken(tokenStr string) (string, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(i.now),
	}
	if i.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(i.issuer))
	}
	if i.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(i.audience))
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (any, error) {
		return i.secret, nil
	}, parserOpts...)
	if err != nil {
		return "", fmt.Errorf("invalid actor token: %w", err)
	}
	if !token.Valid || claims.Actor == "" {
		return "", fmt.Errorf("actor token carries no actor claim")
	}
	return claims.Actor, nil
}
