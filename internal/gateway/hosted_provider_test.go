package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newHostedTestProvider(t *testing.T, handler http.HandlerFunc) *HostedProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider, err := NewHostedProvider(HostedProviderConfig{
		BaseURL:   server.URL,
		PublicKey: "pk_test_123",
		SecretKey: "sk_test_456",
		Client:    server.Client(),
	})
	if err != nil {
		t.Fatalf("NewHostedProvider returned error: %v", err)
	}
	return provider
}

func TestHostedInitializeBuildsWidgetConfig(t *testing.T) {
	provider := newHostedTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("initialize must not call the gateway")
	})

	widget, err := provider.Initialize(context.Background(), InitializeRequest{
		Reference:        "ref_abc",
		PayerEmail:       "ada@example.com",
		AmountMinorUnits: 4500000,
		Currency:         "ngn",
	})
	if err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}
	if widget.Reference != "ref_abc" {
		t.Fatalf("expected reference ref_abc, got %s", widget.Reference)
	}
	if widget.AmountMinorUnits != 4500000 {
		t.Fatalf("expected amount 4500000, got %d", widget.AmountMinorUnits)
	}
	if widget.Currency != "NGN" {
		t.Fatalf("expected uppercased currency, got %s", widget.Currency)
	}
	if widget.PublicKey != "pk_test_123" {
		t.Fatalf("expected public key attached, got %s", widget.PublicKey)
	}
}

func TestHostedInitializeRejectsNonPositiveAmount(t *testing.T) {
	provider := newHostedTestProvider(t, func(w http.ResponseWriter, r *http.Request) {})
	if _, err := provider.Initialize(context.Background(), InitializeRequest{Reference: "ref", AmountMinorUnits: 0}); err == nil {
		t.Fatalf("expected error for zero amount")
	}
}

func TestHostedVerifySuccess(t *testing.T) {
	provider := newHostedTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/verify/ref_abc" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk_test_456" {
			t.Fatalf("expected secret key auth header")
		}
		w.Write([]byte(`{"status":true,"data":{"status":"success","reference":"ref_abc","amount":4500000,"currency":"NGN","paid_at":"2025-03-10T09:00:00Z"}}`))
	})

	details, err := provider.Verify(context.Background(), "ref_abc")
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if details.Status != ChargeSucceeded {
		t.Fatalf("expected succeeded, got %s", details.Status)
	}
	if details.AmountMinorUnits != 4500000 {
		t.Fatalf("expected amount 4500000, got %d", details.AmountMinorUnits)
	}
	want := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	if details.PaidAt == nil || !details.PaidAt.Equal(want) {
		t.Fatalf("expected paid_at %s, got %v", want, details.PaidAt)
	}
}

func TestHostedVerifyMapsTerminalStatuses(t *testing.T) {
	cases := []struct {
		gatewayStatus string
		want          ChargeStatus
	}{
		{"failed", ChargeFailed},
		{"abandoned", ChargeAbandoned},
		{"pending", ChargePending},
		{"ongoing", ChargePending},
	}
	for _, tc := range cases {
		provider := newHostedTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":true,"data":{"status":"` + tc.gatewayStatus + `","reference":"ref_x","amount":100,"currency":"NGN"}}`))
		})
		details, err := provider.Verify(context.Background(), "ref_x")
		if err != nil {
			t.Fatalf("Verify(%s) returned error: %v", tc.gatewayStatus, err)
		}
		if details.Status != tc.want {
			t.Fatalf("status %s: expected %s, got %s", tc.gatewayStatus, tc.want, details.Status)
		}
	}
}

func TestHostedVerifyGatewayFailure(t *testing.T) {
	provider := newHostedTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"status":false,"message":"transaction not found"}`))
	})

	if _, err := provider.Verify(context.Background(), "ref_missing"); err == nil {
		t.Fatalf("expected error for gateway failure")
	}
}

func TestNewHostedProviderValidation(t *testing.T) {
	if _, err := NewHostedProvider(HostedProviderConfig{PublicKey: "pk", SecretKey: "sk"}); err == nil {
		t.Fatalf("expected error for missing base url")
	}
	if _, err := NewHostedProvider(HostedProviderConfig{BaseURL: "http://x", SecretKey: "sk"}); err == nil {
		t.Fatalf("expected error for missing public key")
	}
	if _, err := NewHostedProvider(HostedProviderConfig{BaseURL: "http://x", PublicKey: "pk"}); err == nil {
		t.Fatalf("expected error for missing secret key")
	}
}
