package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/emberline/checkout/internal/commerce"
	"github.com/emberline/checkout/internal/domain"
	"github.com/emberline/checkout/internal/platform/tokens"
)

func newConfirmationServiceForTest(t *testing.T, backend *stubBackend) *ConfirmationService {
	t.Helper()
	issuer, err := tokens.NewIssuer("test-secret", 15*time.Minute, testClock())
	if err != nil {
		t.Fatalf("NewIssuer returned error: %v", err)
	}
	svc, err := NewConfirmationService(ConfirmationServiceDeps{Backend: backend, Tokens: issuer})
	if err != nil {
		t.Fatalf("NewConfirmationService returned error: %v", err)
	}
	return svc
}

func TestResolveOrderNumber(t *testing.T) {
	backend := &stubBackend{
		getOrderFunc: func(ctx context.Context, number string) (commerce.OrderDetails, error) {
			return commerce.OrderDetails{OrderNumber: "ORD-1042", PaymentStatus: "paid", AmountPaid: 45000, Currency: "NGN"}, nil
		},
	}
	svc := newConfirmationServiceForTest(t, backend)

	resolution, err := svc.Resolve(context.Background(), "ORD-1042", "")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if resolution.View.Kind != domain.IntentOrder {
		t.Fatalf("expected order kind, got %s", resolution.View.Kind)
	}
	if resolution.View.CanPayRemaining {
		t.Fatalf("orders never expose pay-remaining")
	}
	if resolution.AutoPayRemaining {
		t.Fatalf("no action requested, trigger must not fire")
	}
}

func TestResolvePreOrderExposesPayRemaining(t *testing.T) {
	backend := &stubBackend{
		getPreOrderFunc: func(ctx context.Context, number string) (commerce.PreOrderDetails, error) {
			return commerce.PreOrderDetails{
				PreOrderNumber: "PRE-77", PaymentStatus: "deposit_paid",
				AmountPaid: 20000, RemainingAmount: 80000, Currency: "NGN",
			}, nil
		},
	}
	svc := newConfirmationServiceForTest(t, backend)

	resolution, err := svc.Resolve(context.Background(), "PRE-77", "")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !resolution.View.CanPayRemaining {
		t.Fatalf("expected pay-remaining exposed for deposit_paid with balance")
	}
}

func TestResolvePreOrderFullyPaidHidesPayRemaining(t *testing.T) {
	backend := &stubBackend{
		getPreOrderFunc: func(ctx context.Context, number string) (commerce.PreOrderDetails, error) {
			return commerce.PreOrderDetails{
				PreOrderNumber: "PRE-77", PaymentStatus: "paid",
				AmountPaid: 100000, RemainingAmount: 0, Currency: "NGN",
			}, nil
		},
	}
	svc := newConfirmationServiceForTest(t, backend)

	resolution, err := svc.Resolve(context.Background(), "PRE-77", "")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if resolution.View.CanPayRemaining {
		t.Fatalf("fully paid pre-order must not expose pay-remaining")
	}
}

func TestResolvePayRemainingActionFiresOnce(t *testing.T) {
	backend := &stubBackend{
		getPreOrderFunc: func(ctx context.Context, number string) (commerce.PreOrderDetails, error) {
			return commerce.PreOrderDetails{
				PreOrderNumber: "PRE-77", PaymentStatus: "deposit_paid",
				AmountPaid: 20000, RemainingAmount: 80000, Currency: "NGN",
			}, nil
		},
	}
	svc := newConfirmationServiceForTest(t, backend)

	first, err := svc.Resolve(context.Background(), "PRE-77", "pay-remaining")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !first.AutoPayRemaining {
		t.Fatalf("expected trigger to fire on first resolution")
	}

	second, err := svc.Resolve(context.Background(), "PRE-77", "pay-remaining")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if second.AutoPayRemaining {
		t.Fatalf("trigger must be consumed after the first resolution")
	}
}

func TestResolveFallsBackAcrossKinds(t *testing.T) {
	backend := &stubBackend{
		getOrderFunc: func(ctx context.Context, number string) (commerce.OrderDetails, error) {
			return commerce.OrderDetails{}, &commerce.APIError{StatusCode: http.StatusNotFound, Message: "order not found"}
		},
		getPreOrderFunc: func(ctx context.Context, number string) (commerce.PreOrderDetails, error) {
			return commerce.PreOrderDetails{PreOrderNumber: "XY-77", PaymentStatus: "deposit_paid", RemainingAmount: 10}, nil
		},
	}
	svc := newConfirmationServiceForTest(t, backend)

	resolution, err := svc.Resolve(context.Background(), "XY-77", "")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if resolution.View.Kind != domain.IntentPreOrder {
		t.Fatalf("expected pre-order fallback, got %s", resolution.View.Kind)
	}
}

func TestResolveTokenWithBalanceDue(t *testing.T) {
	backend := &stubBackend{
		exchangePayTokenFunc: func(ctx context.Context, token string) (commerce.PayTokenDetails, error) {
			return commerce.PayTokenDetails{PreOrderID: "po_9", PreOrderNumber: "PRE-77", AmountDue: 80000, Currency: "NGN"}, nil
		},
	}
	svc := newConfirmationServiceForTest(t, backend)

	raw, err := svc.IssuePayToken("po_9", 80000)
	if err != nil {
		t.Fatalf("IssuePayToken returned error: %v", err)
	}

	resolution, err := svc.ResolveToken(context.Background(), raw, "pay-remaining")
	if err != nil {
		t.Fatalf("ResolveToken returned error: %v", err)
	}
	if !resolution.View.CanPayRemaining {
		t.Fatalf("expected pay-remaining for positive amount due")
	}
	if !resolution.AutoPayRemaining {
		t.Fatalf("expected trigger to fire on first token resolution")
	}
}

func TestResolveTokenZeroAmountDueHidesAction(t *testing.T) {
	backend := &stubBackend{
		exchangePayTokenFunc: func(ctx context.Context, token string) (commerce.PayTokenDetails, error) {
			return commerce.PayTokenDetails{PreOrderID: "po_9", PreOrderNumber: "PRE-77", AmountDue: 0, Currency: "NGN"}, nil
		},
	}
	svc := newConfirmationServiceForTest(t, backend)

	raw, err := svc.IssuePayToken("po_9", 0)
	if err != nil {
		t.Fatalf("IssuePayToken returned error: %v", err)
	}

	resolution, err := svc.ResolveToken(context.Background(), raw, "pay-remaining")
	if err != nil {
		t.Fatalf("ResolveToken returned error: %v", err)
	}
	if resolution.View.CanPayRemaining {
		t.Fatalf("zero amount due must not expose pay-remaining")
	}
	if resolution.AutoPayRemaining {
		t.Fatalf("zero amount due must not auto-trigger payment")
	}
}

func TestResolveTokenRejectsInvalidSignature(t *testing.T) {
	backend := &stubBackend{
		exchangePayTokenFunc: func(ctx context.Context, token string) (commerce.PayTokenDetails, error) {
			t.Fatalf("backend must not be called for invalid tokens")
			return commerce.PayTokenDetails{}, nil
		},
	}
	svc := newConfirmationServiceForTest(t, backend)

	if _, err := svc.ResolveToken(context.Background(), "not-a-token", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
