package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Status represents the lifecycle state of a guarded operation.
type Status string

const (
	// DefaultTTL is the default duration that completed records are retained.
	DefaultTTL = 24 * time.Hour
	// StatusPending indicates the key is reserved and the operation is in flight.
	StatusPending Status = "pending"
	// StatusCompleted indicates the operation finished and its outcome is stored for replay.
	StatusCompleted Status = "completed"
)

// ReservationState describes the outcome of attempting to reserve a key.
type ReservationState int

const (
	// ReservationStateNew means no existing reservation was found and the caller may proceed.
	ReservationStateNew ReservationState = iota
	// ReservationStateCompleted means a previous outcome was found and should be replayed.
	ReservationStateCompleted
	// ReservationStatePending means another caller is currently processing this key.
	ReservationStatePending
)

// Reservation encapsulates the result of reserving a key, including the stored record if available.
type Reservation struct {
	State  ReservationState
	Record Record
}

// Record captures the persisted outcome for a guarded key. Outcome is an
// opaque payload encoded by the caller.
type Record struct {
	Key       string
	Status    Status
	Outcome   []byte
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// Store persists reservations and outcomes so an operation runs at most once per key.
type Store interface {
	Reserve(ctx context.Context, key string, now time.Time, ttl time.Duration) (Reservation, error)
	Complete(ctx context.Context, key string, outcome []byte, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrInvalidKey is returned when a blank key is supplied.
var ErrInvalidKey = errors.New("idempotency: key is required")

func normalizeKey(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", ErrInvalidKey
	}
	return trimmed, nil
}
