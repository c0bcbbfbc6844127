package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/emberline/checkout/internal/domain"
	"github.com/emberline/checkout/internal/platform/httpx"
	"github.com/emberline/checkout/internal/services"
)

// ConfirmationHandlers serves the post-settlement confirmation page data.
type ConfirmationHandlers struct {
	confirmations *services.ConfirmationService
	sessions      *services.SessionService
}

// NewConfirmationHandlers constructs handlers over the confirmation and
// session services. The session service is used when a deep-link action
// auto-starts a remaining-balance payment.
func NewConfirmationHandlers(confirmations *services.ConfirmationService, sessions *services.SessionService) *ConfirmationHandlers {
	return &ConfirmationHandlers{
		confirmations: confirmations,
		sessions:      sessions,
	}
}

// Routes wires the /confirmations endpoints onto the provided router.
func (h *ConfirmationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/{number}", h.resolve)
}

type settlementViewResponse struct {
	Kind            string `json:"kind"`
	Number          string `json:"number"`
	PaymentStatus   string `json:"payment_status,omitempty"`
	AmountPaid      int64  `json:"amount_paid"`
	RemainingAmount int64  `json:"remaining_amount"`
	Currency        string `json:"currency"`
	CanPayRemaining bool   `json:"can_pay_remaining"`
}

type confirmationResponse struct {
	View    settlementViewResponse `json:"view"`
	Handoff *handoffResponse       `json:"handoff,omitempty"`
}

func (h *ConfirmationHandlers) resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.confirmations == nil {
		httpx.WriteError(ctx, w, httpx.NewError("confirmations_unavailable", "confirmations are unavailable", http.StatusServiceUnavailable))
		return
	}

	number := strings.TrimSpace(chi.URLParam(r, "number"))
	action := r.URL.Query().Get("action")
	token := strings.TrimSpace(r.URL.Query().Get("token"))

	var (
		resolution services.ConfirmationResolution
		err        error
	)
	if token != "" {
		resolution, err = h.confirmations.ResolveToken(ctx, token, action)
	} else {
		resolution, err = h.confirmations.Resolve(ctx, number, action)
	}
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	response := confirmationResponse{View: buildSettlementView(resolution.View)}
	if resolution.AutoPayRemaining && h.sessions != nil {
		handoff, err := h.sessions.InitializeRemainingBalanceSession(ctx, domain.RemainingBalanceIntent{
			PreOrderID: resolution.PreOrderID,
		})
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
		built := buildHandoffResponse(handoff)
		response.Handoff = &built
	}
	writeJSONResponse(w, http.StatusOK, response)
}

func buildSettlementView(view domain.SettlementView) settlementViewResponse {
	return settlementViewResponse{
		Kind:            string(view.Kind),
		Number:          view.CanonicalNumber,
		PaymentStatus:   view.PaymentStatus,
		AmountPaid:      view.AmountPaid,
		RemainingAmount: view.RemainingAmount,
		Currency:        view.Currency,
		CanPayRemaining: view.CanPayRemaining,
	}
}
