package gateway

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	lastOp string
	widget WidgetConfig
	charge ChargeDetails
	err    error
}

func (f *fakeProvider) Initialize(ctx context.Context, req InitializeRequest) (WidgetConfig, error) {
	f.lastOp = "initialize"
	return f.widget, f.err
}

func (f *fakeProvider) Verify(ctx context.Context, reference string) (ChargeDetails, error) {
	f.lastOp = "verify"
	return f.charge, f.err
}

func TestManagerInitializeUsesPreferredProvider(t *testing.T) {
	ctx := context.Background()
	hosted := &fakeProvider{widget: WidgetConfig{Reference: "ref_hosted"}}
	stripeP := &fakeProvider{widget: WidgetConfig{Reference: "pi_123"}}

	mgr, err := NewManager(map[string]Provider{
		"hosted": hosted,
		"stripe": stripeP,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	widget, err := mgr.Initialize(ctx, RouteContext{PreferredProvider: "stripe"}, InitializeRequest{Reference: "ref_1", AmountMinorUnits: 100})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if widget.Reference != "pi_123" {
		t.Fatalf("expected stripe widget, got %q", widget.Reference)
	}
	if stripeP.lastOp != "initialize" {
		t.Fatalf("expected stripe provider to handle call")
	}
	if hosted.lastOp != "" {
		t.Fatalf("expected hosted provider to remain unused")
	}
}

func TestManagerRoutesByCurrency(t *testing.T) {
	ctx := context.Background()
	hosted := &fakeProvider{charge: ChargeDetails{Reference: "ref_hosted"}}
	stripeP := &fakeProvider{charge: ChargeDetails{Reference: "pi_123"}}

	mgr, err := NewManager(
		map[string]Provider{
			"hosted": hosted,
			"stripe": stripeP,
		},
		WithCurrencyRoutes(map[string]string{"USD": "stripe"}),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	details, err := mgr.Verify(ctx, RouteContext{Currency: "USD"}, "pi_123")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if stripeP.lastOp != "verify" {
		t.Fatalf("expected stripe provider to handle call")
	}
	if details.Provider != "stripe" {
		t.Fatalf("expected provider stripe stamped on details, got %q", details.Provider)
	}
}

func TestManagerFallsBackToHostedDefault(t *testing.T) {
	ctx := context.Background()
	hosted := &fakeProvider{charge: ChargeDetails{Provider: "hosted", Status: ChargeSucceeded}}

	mgr, err := NewManager(map[string]Provider{"hosted": hosted, "stripe": &fakeProvider{}})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	details, err := mgr.Verify(ctx, RouteContext{}, "ref_1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if hosted.lastOp != "verify" {
		t.Fatalf("expected verify to invoke hosted default")
	}
	if details.Status != ChargeSucceeded {
		t.Fatalf("unexpected status %q", details.Status)
	}
}

func TestManagerUnsupportedProvider(t *testing.T) {
	ctx := context.Background()
	mgr, err := NewManager(map[string]Provider{"stripe": &fakeProvider{}, "paypal": &fakeProvider{}}, WithDefaultProvider(""))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	if _, err := mgr.Initialize(ctx, RouteContext{PreferredProvider: "unknown"}, InitializeRequest{}); !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestNewManagerValidatesProviders(t *testing.T) {
	if _, err := NewManager(map[string]Provider{"bad": nil}); err == nil {
		t.Fatalf("expected error for nil provider")
	}
	if _, err := NewManager(nil); err == nil {
		t.Fatalf("expected error when providers empty")
	}
}
