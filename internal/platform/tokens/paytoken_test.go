package tokens

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestIssuerMintAndParse(t *testing.T) {
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	issuer, err := NewIssuer("test-secret", 15*time.Minute, fixedClock(now))
	if err != nil {
		t.Fatalf("NewIssuer returned error: %v", err)
	}

	raw, err := issuer.Mint("po_123", 40000)
	if err != nil {
		t.Fatalf("Mint returned error: %v", err)
	}

	claims, err := issuer.Parse(raw)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if claims.PreOrderID != "po_123" {
		t.Fatalf("expected pre-order id po_123, got %s", claims.PreOrderID)
	}
	if claims.AmountDue != 40000 {
		t.Fatalf("expected amount due 40000, got %d", claims.AmountDue)
	}
}

func TestIssuerParseExpiredToken(t *testing.T) {
	minted := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	issuer, err := NewIssuer("test-secret", 15*time.Minute, fixedClock(minted))
	if err != nil {
		t.Fatalf("NewIssuer returned error: %v", err)
	}

	raw, err := issuer.Mint("po_123", 40000)
	if err != nil {
		t.Fatalf("Mint returned error: %v", err)
	}

	later, err := NewIssuer("test-secret", 15*time.Minute, fixedClock(minted.Add(time.Hour)))
	if err != nil {
		t.Fatalf("NewIssuer returned error: %v", err)
	}
	if _, err := later.Parse(raw); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestIssuerParseRejectsMissingExpiry(t *testing.T) {
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	issuer, _ := NewIssuer("test-secret", 15*time.Minute, fixedClock(now))

	// A well-signed token without an expiry claim is not accepted.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, PayClaims{
		PreOrderID:       "po_123",
		AmountDue:        40000,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "po_123"},
	})
	raw, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("SignedString returned error: %v", err)
	}
	if _, err := issuer.Parse(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestIssuerParseRejectsWrongSecret(t *testing.T) {
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	issuer, _ := NewIssuer("test-secret", 15*time.Minute, fixedClock(now))
	other, _ := NewIssuer("other-secret", 15*time.Minute, fixedClock(now))

	raw, err := issuer.Mint("po_123", 40000)
	if err != nil {
		t.Fatalf("Mint returned error: %v", err)
	}
	if _, err := other.Parse(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestIssuerParseRejectsGarbage(t *testing.T) {
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	issuer, _ := NewIssuer("test-secret", 15*time.Minute, fixedClock(now))

	for _, raw := range []string{"", "   ", "not-a-token"} {
		if _, err := issuer.Parse(raw); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken for %q, got %v", raw, err)
		}
	}
}

func TestIssuerMintValidation(t *testing.T) {
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	issuer, _ := NewIssuer("test-secret", 15*time.Minute, fixedClock(now))

	if _, err := issuer.Mint("", 100); err == nil {
		t.Fatalf("expected error for blank pre-order id")
	}
	if _, err := issuer.Mint("po_123", -1); err == nil {
		t.Fatalf("expected error for negative amount due")
	}
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	if _, err := NewIssuer("  ", time.Minute, nil); err == nil {
		t.Fatalf("expected error for blank secret")
	}
}
