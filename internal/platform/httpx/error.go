package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/emberline/checkout/internal/platform/requestctx"
)

// Error is the JSON error envelope every handler responds with. The zero
// value is not useful; build one through NewError.
type Error struct {
	Code      string
	Message   string
	Status    int
	RequestID string
	TraceID   string
	Details   map[string]any
}

// NewError builds an envelope from a machine-readable code, a human-readable
// message and an HTTP status. A zero status falls back to 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    singleLine(code, 80),
		Message: singleLine(message, 512),
		Status:  status,
	}
}

// WithRequestID pins the request identifier instead of reading it from the
// context at write time.
func (e Error) WithRequestID(id string) Error {
	e.RequestID = singleLine(id, 80)
	return e
}

// WithTraceID pins the trace identifier instead of reading it from the
// context at write time.
func (e Error) WithTraceID(id string) Error {
	e.TraceID = singleLine(id, 64)
	return e
}

// WithDetails merges extra top-level fields into the envelope. The map is
// copied so the caller may keep mutating its own.
func (e Error) WithDetails(details map[string]any) Error {
	if len(details) == 0 {
		return e
	}
	merged := make(map[string]any, len(details))
	for key, value := range details {
		merged[key] = value
	}
	e.Details = merged
	return e
}

// WriteError encodes the envelope to w. Request and trace identifiers left
// blank on the Error are filled from the context middleware.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	payload := map[string]any{
		"error":   err.Code,
		"message": err.Message,
		"status":  status,
	}
	if id := resolveRequestID(ctx, err); id != "" {
		payload["request_id"] = id
	}
	if id := resolveTraceID(ctx, err); id != "" {
		payload["trace_id"] = id
	}
	for key, value := range err.Details {
		payload[key] = value
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func resolveRequestID(ctx context.Context, err Error) string {
	if err.RequestID != "" {
		return err.RequestID
	}
	return singleLine(middleware.GetReqID(ctx), 80)
}

func resolveTraceID(ctx context.Context, err Error) string {
	if err.TraceID != "" {
		return err.TraceID
	}
	return singleLine(requestctx.TraceID(ctx), 64)
}

// singleLine collapses line breaks and caps the length so upstream error
// strings cannot smuggle newlines or unbounded text into the envelope.
func singleLine(value string, max int) string {
	if max <= 0 {
		max = 256
	}
	value = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' '
		}
		return r
	}, value)
	value = strings.TrimSpace(value)
	if len(value) > max {
		value = value[:max]
	}
	return value
}
