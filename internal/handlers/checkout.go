package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/emberline/checkout/internal/domain"
	"github.com/emberline/checkout/internal/gateway"
	"github.com/emberline/checkout/internal/platform/httpx"
	"github.com/emberline/checkout/internal/services"
)

const maxCheckoutBodySize = 32 * 1024

// CheckoutHandlers exposes session initialization and gateway callbacks.
type CheckoutHandlers struct {
	sessions    *services.SessionService
	settlements *services.SettlementService
}

// NewCheckoutHandlers constructs handlers over the session and settlement services.
func NewCheckoutHandlers(sessions *services.SessionService, settlements *services.SettlementService) *CheckoutHandlers {
	return &CheckoutHandlers{
		sessions:    sessions,
		settlements: settlements,
	}
}

// Routes wires the /checkout endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/session", h.initOrderSession)
	r.Post("/preorder/session", h.initPreOrderSession)
	r.Post("/callback/success", h.callbackSuccess)
	r.Post("/callback/close", h.callbackClose)
}

type contactPayload struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

type fulfillmentPayload struct {
	Method         string `json:"method"`
	Address        string `json:"address"`
	City           string `json:"city"`
	State          string `json:"state"`
	PickupLocation string `json:"pickup_location"`
}

type orderSessionPayload struct {
	Contact     contactPayload     `json:"contact"`
	Fulfillment fulfillmentPayload `json:"fulfillment"`
}

type preOrderSessionPayload struct {
	PreOrderID  string             `json:"pre_order_id"`
	Quantity    int                `json:"quantity"`
	PaymentType string             `json:"payment_type"`
	Contact     contactPayload     `json:"contact"`
	Fulfillment fulfillmentPayload `json:"fulfillment"`
}

type callbackPayload struct {
	Reference string `json:"reference"`
}

type sessionResponse struct {
	Reference        string `json:"reference"`
	AmountMinorUnits int64  `json:"amount_minor_units"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
}

type handoffResponse struct {
	Session sessionResponse      `json:"session"`
	Widget  gateway.WidgetConfig `json:"widget"`
	Notice  string               `json:"notice,omitempty"`
}

type settlementResponse struct {
	Success bool   `json:"success"`
	Number  string `json:"number,omitempty"`
	Message string `json:"message,omitempty"`
}

func (h *CheckoutHandlers) initOrderSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sessions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var payload orderSessionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_body", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	handoff, err := h.sessions.InitializeOrderSession(ctx, domain.OrderIntent{
		Contact:     buildContact(payload.Contact),
		Fulfillment: buildFulfillment(payload.Fulfillment),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildHandoffResponse(handoff))
}

func (h *CheckoutHandlers) initPreOrderSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sessions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var payload preOrderSessionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_body", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	handoff, err := h.sessions.InitializePreOrderSession(ctx, domain.PreOrderIntent{
		PreOrderID:  strings.TrimSpace(payload.PreOrderID),
		Quantity:    payload.Quantity,
		PaymentType: domain.PaymentType(strings.ToLower(strings.TrimSpace(payload.PaymentType))),
		Contact:     buildContact(payload.Contact),
		Fulfillment: buildFulfillment(payload.Fulfillment),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildHandoffResponse(handoff))
}

func (h *CheckoutHandlers) callbackSuccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.settlements == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var payload callbackPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_body", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	result, err := h.settlements.VerifyAndSettle(ctx, payload.Reference)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, settlementResponse{
		Success: result.Success,
		Number:  result.CanonicalNumber,
		Message: result.Message,
	})
}

// callbackClose acknowledges the widget being dismissed. Nothing is verified
// and the cart is untouched.
func (h *CheckoutHandlers) callbackClose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.settlements == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
		return
	}

	var payload callbackPayload
	if body, err := readLimitedBody(r, maxCheckoutBodySize); err == nil {
		_ = json.Unmarshal(body, &payload)
	}

	h.settlements.HandleClose(ctx, payload.Reference)
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "closed"})
}

func buildContact(payload contactPayload) domain.Contact {
	return domain.Contact{
		FullName: strings.TrimSpace(payload.FullName),
		Email:    strings.TrimSpace(payload.Email),
		Phone:    strings.TrimSpace(payload.Phone),
	}
}

func buildFulfillment(payload fulfillmentPayload) domain.Fulfillment {
	return domain.Fulfillment{
		Method:         domain.FulfillmentMethod(strings.ToLower(strings.TrimSpace(payload.Method))),
		Address:        strings.TrimSpace(payload.Address),
		City:           strings.TrimSpace(payload.City),
		State:          strings.TrimSpace(payload.State),
		PickupLocation: strings.TrimSpace(payload.PickupLocation),
	}
}

func buildHandoffResponse(handoff services.CheckoutHandoff) handoffResponse {
	return handoffResponse{
		Session: sessionResponse{
			Reference:        handoff.Session.Reference,
			AmountMinorUnits: handoff.Session.AmountMinorUnits,
			Currency:         handoff.Session.Currency,
			Status:           string(handoff.Session.Status),
		},
		Widget: handoff.Widget,
		Notice: handoff.Notice,
	}
}
