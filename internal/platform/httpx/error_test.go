package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	err := NewError("validation_failed", "quantity must be positive", http.StatusBadRequest).
		WithRequestID("req_1").
		WithDetails(map[string]any{"field": "quantity"})

	WriteError(context.Background(), rec, err)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var payload map[string]any
	if decodeErr := json.Unmarshal(rec.Body.Bytes(), &payload); decodeErr != nil {
		t.Fatalf("decoding body: %v", decodeErr)
	}
	if payload["error"] != "validation_failed" {
		t.Fatalf("unexpected code %v", payload["error"])
	}
	if payload["message"] != "quantity must be positive" {
		t.Fatalf("unexpected message %v", payload["message"])
	}
	if payload["request_id"] != "req_1" {
		t.Fatalf("unexpected request id %v", payload["request_id"])
	}
	if payload["field"] != "quantity" {
		t.Fatalf("expected details merged into the envelope, got %v", payload)
	}
}

func TestWriteErrorDefaultsStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(context.Background(), rec, Error{Code: "internal", Message: "boom"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestNewErrorFlattensNewlines(t *testing.T) {
	err := NewError("bad_input", "line one\r\nline two", http.StatusBadRequest)
	if strings.ContainsAny(err.Message, "\r\n") {
		t.Fatalf("expected flattened message, got %q", err.Message)
	}
	if err.Message != "line one  line two" {
		t.Fatalf("unexpected message %q", err.Message)
	}
}

func TestNewErrorTruncatesLongMessages(t *testing.T) {
	err := NewError("bad_input", strings.Repeat("x", 2000), http.StatusBadRequest)
	if len(err.Message) != 512 {
		t.Fatalf("expected message capped at 512, got %d", len(err.Message))
	}
}
