package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/emberline/checkout/internal/platform/httpx"
	"github.com/emberline/checkout/internal/services"
)

const defaultMaxBodySize = 16 * 1024

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultMaxBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("empty_body", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_body", "request body could not be read", http.StatusBadRequest))
	}
}

// writeServiceError translates service sentinel errors into the JSON error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		httpx.WriteError(ctx, w, httpx.NewError("validation_failed", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPricing):
		httpx.WriteError(ctx, w, httpx.NewError("pricing_failed", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrSessionInFlight):
		httpx.WriteError(ctx, w, httpx.NewError("session_in_flight", "a checkout request is already being processed", http.StatusConflict))
	case errors.Is(err, services.ErrSessionInit):
		httpx.WriteError(ctx, w, httpx.NewError("session_init_failed", err.Error(), http.StatusBadGateway))
	case errors.Is(err, services.ErrVerifyInFlight):
		httpx.WriteError(ctx, w, httpx.NewError("verify_in_progress", "payment verification is already in progress", http.StatusConflict))
	case errors.Is(err, services.ErrVerification):
		httpx.WriteError(ctx, w, httpx.NewError("verification_failed", err.Error(), http.StatusPaymentRequired))
	case errors.Is(err, services.ErrNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", err.Error(), http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "an unexpected error occurred", http.StatusInternalServerError))
	}
}
