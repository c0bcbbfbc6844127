package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/emberline/checkout/internal/domain"
	"github.com/emberline/checkout/internal/platform/httpx"
	"github.com/emberline/checkout/internal/services"
)

// PreOrderHandlers starts remaining-balance payments for deposit-paid pre-orders.
type PreOrderHandlers struct {
	sessions *services.SessionService
}

// NewPreOrderHandlers constructs handlers over the session service.
func NewPreOrderHandlers(sessions *services.SessionService) *PreOrderHandlers {
	return &PreOrderHandlers{sessions: sessions}
}

// Routes wires the /preorders endpoints onto the provided router.
func (h *PreOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/{preOrderID}/pay", h.payRemaining)
}

func (h *PreOrderHandlers) payRemaining(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sessions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("preorders_unavailable", "pre-order payments are unavailable", http.StatusServiceUnavailable))
		return
	}

	preOrderID := strings.TrimSpace(chi.URLParam(r, "preOrderID"))
	handoff, err := h.sessions.InitializeRemainingBalanceSession(ctx, domain.RemainingBalanceIntent{
		PreOrderID: preOrderID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildHandoffResponse(handoff))
}
