package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/emberline/checkout/internal/domain"
)

// MemoryJournal is an in-memory SessionJournal. Sessions are retained in
// insertion order for deterministic reconciliation sweeps.
type MemoryJournal struct {
	mu       sync.Mutex
	order    []string
	sessions map[string]domain.PaymentSession
	now      func() time.Time
}

// NewMemoryJournal constructs an empty journal. A nil clock defaults to time.Now.
func NewMemoryJournal(clock func() time.Time) *MemoryJournal {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryJournal{
		sessions: make(map[string]domain.PaymentSession),
		now:      func() time.Time { return clock().UTC() },
	}
}

// Record stores a new session or overwrites an existing one by reference.
func (j *MemoryJournal) Record(ctx context.Context, session domain.PaymentSession) error {
	reference := strings.TrimSpace(session.Reference)
	if reference == "" {
		return fmt.Errorf("%w: session reference is required", ErrValidation)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	if _, exists := j.sessions[reference]; !exists {
		j.order = append(j.order, reference)
		if session.CreatedAt.IsZero() {
			session.CreatedAt = now
		}
	}
	session.Reference = reference
	session.UpdatedAt = now
	j.sessions[reference] = session
	return nil
}

// UpdateStatus transitions a recorded session to a new status. The change is
// checked against the checkout flow table before it is applied.
func (j *MemoryJournal) UpdateStatus(ctx context.Context, reference string, status domain.SessionStatus) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	session, ok := j.sessions[reference]
	if !ok {
		return fmt.Errorf("%w: session %s", ErrNotFound, reference)
	}
	if err := StatusTransition(session.Status, status); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	session.Status = status
	session.UpdatedAt = j.now()
	j.sessions[reference] = session
	return nil
}

// Get returns a recorded session by reference.
func (j *MemoryJournal) Get(ctx context.Context, reference string) (domain.PaymentSession, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	session, ok := j.sessions[reference]
	if !ok {
		return domain.PaymentSession{}, fmt.Errorf("%w: session %s", ErrNotFound, reference)
	}
	return session, nil
}

// ListByStatus returns up to limit sessions in the given status, oldest first.
// A non-positive limit returns all matches.
func (j *MemoryJournal) ListByStatus(ctx context.Context, status domain.SessionStatus, limit int) ([]domain.PaymentSession, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var matches []domain.PaymentSession
	for _, reference := range j.order {
		session := j.sessions[reference]
		if session.Status != status {
			continue
		}
		matches = append(matches, session)
		if limit > 0 && len(matches) >= limit {
			break
		}
	}
	return matches, nil
}
