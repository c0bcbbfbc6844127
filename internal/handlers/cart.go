package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/emberline/checkout/internal/domain"
	"github.com/emberline/checkout/internal/platform/httpx"
	"github.com/emberline/checkout/internal/services"
)

const maxCartBodySize = 16 * 1024

// CartHandlers exposes the cart endpoints.
type CartHandlers struct {
	cart  *services.CartStore
	newID func() string
}

// NewCartHandlers constructs handlers over the shared cart store.
func NewCartHandlers(cart *services.CartStore) *CartHandlers {
	return &CartHandlers{
		cart:  cart,
		newID: func() string { return ulid.Make().String() },
	}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getCart)
	r.Post("/lines", h.addLine)
	r.Patch("/lines/{lineID}", h.updateLine)
	r.Delete("/lines/{lineID}", h.removeLine)
}

type preOrderPayload struct {
	PreOrderID     string `json:"pre_order_id"`
	UnitPrice      int64  `json:"unit_price"`
	DepositPerUnit *int64 `json:"deposit_per_unit"`
}

type addLinePayload struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	UnitPrice int64            `json:"unit_price"`
	Quantity  int              `json:"quantity"`
	ImageRef  string           `json:"image_ref"`
	Category  string           `json:"category"`
	PreOrder  *preOrderPayload `json:"pre_order"`
}

type updateLinePayload struct {
	Quantity int `json:"quantity"`
}

type cartLineResponse struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	UnitPrice int64            `json:"unit_price"`
	Quantity  int              `json:"quantity"`
	Subtotal  int64            `json:"subtotal"`
	ImageRef  string           `json:"image_ref,omitempty"`
	Category  string           `json:"category,omitempty"`
	PreOrder  *preOrderPayload `json:"pre_order,omitempty"`
	AddedAt   string           `json:"added_at"`
}

type cartResponse struct {
	Lines []cartLineResponse `json:"lines"`
	Count int                `json:"count"`
	Total int64              `json:"total"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	if h.cart == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("cart_unavailable", "cart is unavailable", http.StatusServiceUnavailable))
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartResponse(h.cart.Snapshot()))
}

func (h *CartHandlers) addLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.cart == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var payload addLinePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_body", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	line := domain.CartLine{
		ID:        strings.TrimSpace(payload.ID),
		Name:      strings.TrimSpace(payload.Name),
		UnitPrice: payload.UnitPrice,
		Quantity:  payload.Quantity,
		ImageRef:  payload.ImageRef,
		Category:  payload.Category,
	}
	if payload.PreOrder != nil {
		line.PreOrder = &domain.PreOrderMeta{
			PreOrderID:     strings.TrimSpace(payload.PreOrder.PreOrderID),
			UnitPrice:      payload.PreOrder.UnitPrice,
			DepositPerUnit: payload.PreOrder.DepositPerUnit,
		}
		if line.ID == "" {
			line.ID = domain.PreOrderLinePrefix + line.PreOrder.PreOrderID
		}
	}
	if line.ID == "" {
		line.ID = h.newID()
	}

	if err := h.cart.Add(line); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildCartResponse(h.cart.Snapshot()))
}

func (h *CartHandlers) updateLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.cart == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart is unavailable", http.StatusServiceUnavailable))
		return
	}

	lineID := chi.URLParam(r, "lineID")
	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var payload updateLinePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_body", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	if err := h.cart.UpdateQuantity(lineID, payload.Quantity); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartResponse(h.cart.Snapshot()))
}

func (h *CartHandlers) removeLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.cart == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart is unavailable", http.StatusServiceUnavailable))
		return
	}

	h.cart.Remove(chi.URLParam(r, "lineID"))
	writeJSONResponse(w, http.StatusOK, buildCartResponse(h.cart.Snapshot()))
}

func buildCartResponse(snapshot services.CartSnapshot) cartResponse {
	resp := cartResponse{
		Lines: make([]cartLineResponse, 0, len(snapshot.Lines)),
		Count: snapshot.Count,
		Total: snapshot.Total,
	}
	for _, line := range snapshot.Lines {
		item := cartLineResponse{
			ID:        line.ID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			Subtotal:  line.Subtotal(),
			ImageRef:  line.ImageRef,
			Category:  line.Category,
			AddedAt:   line.AddedAt.UTC().Format(time.RFC3339),
		}
		if line.PreOrder != nil {
			item.PreOrder = &preOrderPayload{
				PreOrderID:     line.PreOrder.PreOrderID,
				UnitPrice:      line.PreOrder.UnitPrice,
				DepositPerUnit: line.PreOrder.DepositPerUnit,
			}
		}
		resp.Lines = append(resp.Lines, item)
	}
	return resp
}
