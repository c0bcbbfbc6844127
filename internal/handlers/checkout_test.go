package handlers

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/emberline/checkout/internal/commerce"
	"github.com/emberline/checkout/internal/domain"
)

func TestCheckoutOrderSession(t *testing.T) {
	env := newTestEnv(t)
	seedCartLine(t, env.cart, "prod_1", 15000, 3)

	env.backend.createOrderSessionFunc = func(ctx context.Context, req commerce.OrderSessionRequest) (commerce.Session, error) {
		if req.Amount != 45000 {
			t.Fatalf("expected backend amount 45000, got %d", req.Amount)
		}
		return commerce.Session{Reference: "ref_order_1", Amount: req.Amount, Currency: "NGN"}, nil
	}

	rec := env.do(t, http.MethodPost, "/api/v1/checkout/session", validSessionBody())
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp handoffResponse
	decodeBody(t, rec, &resp)
	if resp.Session.Reference != "ref_order_1" {
		t.Fatalf("expected session reference ref_order_1, got %q", resp.Session.Reference)
	}
	if resp.Session.AmountMinorUnits != 4_500_000 {
		t.Fatalf("expected 4500000 minor units, got %d", resp.Session.AmountMinorUnits)
	}
	if resp.Widget.PublicKey != "pk_test_123" {
		t.Fatalf("expected widget public key, got %q", resp.Widget.PublicKey)
	}
	if resp.Notice != "" {
		t.Fatalf("expected no notice for an ordinary order, got %q", resp.Notice)
	}

	session, err := env.journal.Get(context.Background(), "ref_order_1")
	if err != nil {
		t.Fatalf("journal.Get: %v", err)
	}
	if session.Status != domain.SessionPending {
		t.Fatalf("expected pending session, got %s", session.Status)
	}
}

func TestCheckoutOrderSessionValidation(t *testing.T) {
	env := newTestEnv(t)
	seedCartLine(t, env.cart, "prod_1", 15000, 1)

	body := validSessionBody()
	body["contact"] = map[string]any{"full_name": "Ada Obi", "phone": "08030000000"}

	rec := env.do(t, http.MethodPost, "/api/v1/checkout/session", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != "validation_failed" {
		t.Fatalf("expected validation_failed, got %q", code)
	}
}

func TestCheckoutOrderSessionEmptyCart(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/checkout/session", validSessionBody())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty cart, got %d", rec.Code)
	}
}

func TestCheckoutOrderSessionBackendFailure(t *testing.T) {
	env := newTestEnv(t)
	seedCartLine(t, env.cart, "prod_1", 15000, 1)

	env.backend.createOrderSessionFunc = func(ctx context.Context, req commerce.OrderSessionRequest) (commerce.Session, error) {
		return commerce.Session{}, &commerce.APIError{StatusCode: http.StatusConflict, Message: "inventory exhausted"}
	}

	rec := env.do(t, http.MethodPost, "/api/v1/checkout/session", validSessionBody())
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rec.Code, rec.Body.String())
	}
	var payload map[string]any
	decodeBody(t, rec, &payload)
	message, _ := payload["message"].(string)
	if !strings.Contains(message, "inventory exhausted") {
		t.Fatalf("expected backend message to pass through, got %q", message)
	}
}

func TestCheckoutPreOrderSessionDeposit(t *testing.T) {
	env := newTestEnv(t)
	deposit := int64(10000)
	seedPreOrderLine(t, env.cart, "po_1", 50000, &deposit, 2)

	env.backend.createPreOrderSessionFunc = func(ctx context.Context, req commerce.PreOrderSessionRequest) (commerce.Session, error) {
		if req.PaymentType != "deposit" {
			t.Fatalf("expected deposit payment type, got %q", req.PaymentType)
		}
		if req.Amount != 20000 {
			t.Fatalf("expected amount 20000, got %d", req.Amount)
		}
		return commerce.Session{Reference: "ref_po_1", Amount: req.Amount, Currency: "NGN"}, nil
	}

	body := validSessionBody()
	body["pre_order_id"] = "po_1"
	body["payment_type"] = "deposit"

	rec := env.do(t, http.MethodPost, "/api/v1/checkout/preorder/session", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp handoffResponse
	decodeBody(t, rec, &resp)
	if resp.Session.AmountMinorUnits != 2_000_000 {
		t.Fatalf("expected 2000000 minor units, got %d", resp.Session.AmountMinorUnits)
	}
	if resp.Notice != "" {
		t.Fatalf("expected no notice when a deposit applies, got %q", resp.Notice)
	}
}

func TestCheckoutPreOrderSessionForcedFull(t *testing.T) {
	env := newTestEnv(t)
	seedPreOrderLine(t, env.cart, "po_2", 100000, nil, 1)

	env.backend.createPreOrderSessionFunc = func(ctx context.Context, req commerce.PreOrderSessionRequest) (commerce.Session, error) {
		if req.PaymentType != "full" {
			t.Fatalf("expected forced full payment type, got %q", req.PaymentType)
		}
		return commerce.Session{Reference: "ref_po_2", Amount: req.Amount, Currency: "NGN"}, nil
	}

	body := validSessionBody()
	body["pre_order_id"] = "po_2"
	body["payment_type"] = "deposit"

	rec := env.do(t, http.MethodPost, "/api/v1/checkout/preorder/session", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp handoffResponse
	decodeBody(t, rec, &resp)
	if resp.Session.AmountMinorUnits != 10_000_000 {
		t.Fatalf("expected 10000000 minor units, got %d", resp.Session.AmountMinorUnits)
	}
	if resp.Notice == "" {
		t.Fatalf("expected a fallback notice when no deposit is available")
	}
}

func TestCallbackSuccess(t *testing.T) {
	env := newTestEnv(t)
	seedCartLine(t, env.cart, "prod_1", 15000, 1)

	env.backend.createOrderSessionFunc = func(ctx context.Context, req commerce.OrderSessionRequest) (commerce.Session, error) {
		return commerce.Session{Reference: "ref_cb_1", Amount: req.Amount, Currency: "NGN"}, nil
	}
	env.backend.verifyOrderPaymentFunc = func(ctx context.Context, reference string) (commerce.OrderVerification, error) {
		return commerce.OrderVerification{OrderNumber: "ORD-1001", PaymentStatus: "paid", AmountPaid: 15000}, nil
	}

	if rec := env.do(t, http.MethodPost, "/api/v1/checkout/session", validSessionBody()); rec.Code != http.StatusCreated {
		t.Fatalf("session init failed: %d %s", rec.Code, rec.Body.String())
	}

	rec := env.do(t, http.MethodPost, "/api/v1/checkout/callback/success", map[string]any{"reference": "ref_cb_1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp settlementResponse
	decodeBody(t, rec, &resp)
	if !resp.Success || resp.Number != "ORD-1001" {
		t.Fatalf("expected settled ORD-1001, got %+v", resp)
	}
	if env.cart.Count() != 0 {
		t.Fatalf("expected settled lines cleared, cart count %d", env.cart.Count())
	}
}

func TestCallbackSuccessVerificationFailure(t *testing.T) {
	env := newTestEnv(t)
	seedCartLine(t, env.cart, "prod_1", 15000, 1)

	env.backend.createOrderSessionFunc = func(ctx context.Context, req commerce.OrderSessionRequest) (commerce.Session, error) {
		return commerce.Session{Reference: "ref_cb_2", Amount: req.Amount, Currency: "NGN"}, nil
	}
	env.backend.verifyOrderPaymentFunc = func(ctx context.Context, reference string) (commerce.OrderVerification, error) {
		return commerce.OrderVerification{}, &commerce.APIError{StatusCode: http.StatusPaymentRequired, Message: "charge was declined"}
	}

	if rec := env.do(t, http.MethodPost, "/api/v1/checkout/session", validSessionBody()); rec.Code != http.StatusCreated {
		t.Fatalf("session init failed: %d %s", rec.Code, rec.Body.String())
	}

	rec := env.do(t, http.MethodPost, "/api/v1/checkout/callback/success", map[string]any{"reference": "ref_cb_2"})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d: %s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != "verification_failed" {
		t.Fatalf("expected verification_failed, got %q", code)
	}
	if env.cart.Count() != 1 {
		t.Fatalf("expected cart preserved after failed verification, count %d", env.cart.Count())
	}
}

func TestCallbackSuccessUnknownReference(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/checkout/callback/success", map[string]any{"reference": "ref_missing"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCallbackClose(t *testing.T) {
	env := newTestEnv(t)
	seedCartLine(t, env.cart, "prod_1", 15000, 1)

	env.backend.createOrderSessionFunc = func(ctx context.Context, req commerce.OrderSessionRequest) (commerce.Session, error) {
		return commerce.Session{Reference: "ref_cb_3", Amount: req.Amount, Currency: "NGN"}, nil
	}

	if rec := env.do(t, http.MethodPost, "/api/v1/checkout/session", validSessionBody()); rec.Code != http.StatusCreated {
		t.Fatalf("session init failed: %d %s", rec.Code, rec.Body.String())
	}

	rec := env.do(t, http.MethodPost, "/api/v1/checkout/callback/close", map[string]any{"reference": "ref_cb_3"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if env.cart.Count() != 1 {
		t.Fatalf("expected cart untouched after close, count %d", env.cart.Count())
	}
	session, err := env.journal.Get(context.Background(), "ref_cb_3")
	if err != nil {
		t.Fatalf("journal.Get: %v", err)
	}
	if session.Status != domain.SessionPending {
		t.Fatalf("expected session still pending after close, got %s", session.Status)
	}
}
