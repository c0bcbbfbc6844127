package services

import (
	"context"
	"errors"
	"time"

	"github.com/emberline/checkout/internal/domain"
)

var (
	errReconcilerSettlerRequired = errors.New("reconciler: settlement service is required")
	errReconcilerJournalRequired = errors.New("reconciler: journal is required")
	errReconcilerClockRequired   = errors.New("reconciler: clock is required")
)

// Settler is the slice of the settlement service the reconciler drives.
type Settler interface {
	VerifyAndSettle(ctx context.Context, reference string) (domain.SettlementResult, error)
}

// ReconcilerDeps enumerates collaborators required to construct the reconciler.
type ReconcilerDeps struct {
	Settler    Settler
	Journal    SessionJournal
	Clock      func() time.Time
	Logger     Logger
	Interval   time.Duration
	StuckAfter time.Duration
	BatchSize  int
}

// Reconciler sweeps sessions stuck in verifying, re-driving verification for
// those whose success callback was lost (tab closed, network drop) before the
// outcome landed.
type Reconciler struct {
	settler    Settler
	journal    SessionJournal
	now        func() time.Time
	logger     Logger
	interval   time.Duration
	stuckAfter time.Duration
	batchSize  int
}

// NewReconciler wires dependencies into a Reconciler.
func NewReconciler(deps ReconcilerDeps) (*Reconciler, error) {
	if deps.Settler == nil {
		return nil, errReconcilerSettlerRequired
	}
	if deps.Journal == nil {
		return nil, errReconcilerJournalRequired
	}
	if deps.Clock == nil {
		return nil, errReconcilerClockRequired
	}

	interval := deps.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	stuckAfter := deps.StuckAfter
	if stuckAfter <= 0 {
		stuckAfter = 10 * time.Minute
	}
	batchSize := deps.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &Reconciler{
		settler:    deps.Settler,
		journal:    deps.Journal,
		now:        func() time.Time { return deps.Clock().UTC() },
		logger:     logger,
		interval:   interval,
		stuckAfter: stuckAfter,
		batchSize:  batchSize,
	}, nil
}

// Run sweeps on the configured interval until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep re-verifies every session stuck in verifying longer than the
// threshold. Each session is driven at most once per sweep; the settlement
// guard keeps duplicate work out.
func (r *Reconciler) Sweep(ctx context.Context) int {
	sessions, err := r.journal.ListByStatus(ctx, domain.SessionVerifying, r.batchSize)
	if err != nil {
		r.logger(ctx, "reconcile.list_failed", map[string]any{"error": err.Error()})
		return 0
	}

	cutoff := r.now().Add(-r.stuckAfter)
	reconciled := 0
	for _, session := range sessions {
		if session.UpdatedAt.After(cutoff) {
			continue
		}
		reconciled++
		result, err := r.settler.VerifyAndSettle(ctx, session.Reference)
		if err != nil {
			if errors.Is(err, ErrVerifyInFlight) {
				continue
			}
			r.logger(ctx, "reconcile.verify_failed", map[string]any{
				"reference": session.Reference,
				"error":     err.Error(),
			})
			continue
		}
		r.logger(ctx, "reconcile.settled", map[string]any{
			"reference": session.Reference,
			"number":    result.CanonicalNumber,
		})
	}
	return reconciled
}
