package tokens

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Sentinel errors surfaced by pay token operations.
var (
	ErrInvalidToken = errors.New("tokens: invalid pay token")
	ErrExpiredToken = errors.New("tokens: pay token expired")
)

// PayClaims carries the deep-link remaining-balance payment claims.
type PayClaims struct {
	PreOrderID string `json:"pre_order_id"`
	AmountDue  int64  `json:"amount_due"`
	jwt.RegisteredClaims
}

// Issuer mints and parses signed deep-link pay tokens.
type Issuer struct {
	secret   []byte
	lifetime time.Duration
	clock    func() time.Time
}

// NewIssuer constructs an Issuer. A nil clock defaults to time.Now; a
// non-positive lifetime defaults to fifteen minutes.
func NewIssuer(secret string, lifetime time.Duration, clock func() time.Time) (*Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("tokens: signing secret is required")
	}
	if lifetime <= 0 {
		lifetime = 15 * time.Minute
	}
	if clock == nil {
		clock = time.Now
	}
	return &Issuer{secret: []byte(secret), lifetime: lifetime, clock: clock}, nil
}

// Mint produces a signed token for the given pre-order and outstanding amount.
func (i *Issuer) Mint(preOrderID string, amountDue int64) (string, error) {
	if strings.TrimSpace(preOrderID) == "" {
		return "", errors.New("tokens: pre-order id is required")
	}
	if amountDue < 0 {
		return "", errors.New("tokens: amount due must not be negative")
	}

	now := i.clock().UTC()
	claims := PayClaims{
		PreOrderID: preOrderID,
		AmountDue:  amountDue,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   preOrderID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.lifetime)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("tokens: signing failed: %w", err)
	}
	return signed, nil
}

// Parse validates a signed token and returns its claims.
func (i *Issuer) Parse(raw string) (*PayClaims, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrInvalidToken
	}

	// Claims validation is done by hand against the injected clock rather
	// than the package-level jwt.TimeFunc.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)

	claims := &PayClaims{}
	token, err := parser.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}
	if now := i.clock().UTC(); now.After(claims.ExpiresAt.Time) {
		return nil, ErrExpiredToken
	}
	if strings.TrimSpace(claims.PreOrderID) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
