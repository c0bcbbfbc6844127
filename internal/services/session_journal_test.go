package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emberline/checkout/internal/domain"
)

func TestMemoryJournalRecordAndGet(t *testing.T) {
	ctx := context.Background()
	journal := NewMemoryJournal(testClock())

	err := journal.Record(ctx, domain.PaymentSession{
		Reference:        "ref_1",
		AmountMinorUnits: 4500000,
		Currency:         "NGN",
		Status:           domain.SessionPending,
		Intent:           domain.IntentOrder,
	})
	if err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	session, err := journal.Get(ctx, "ref_1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if session.AmountMinorUnits != 4500000 {
		t.Fatalf("expected amount 4500000, got %d", session.AmountMinorUnits)
	}
	if session.CreatedAt.IsZero() || session.UpdatedAt.IsZero() {
		t.Fatalf("expected timestamps stamped, got %+v", session)
	}
}

func TestMemoryJournalUpdateStatus(t *testing.T) {
	ctx := context.Background()
	journal := NewMemoryJournal(testClock())
	journal.Record(ctx, domain.PaymentSession{Reference: "ref_1", Status: domain.SessionPending})

	if err := journal.UpdateStatus(ctx, "ref_1", domain.SessionVerifying); err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
	session, _ := journal.Get(ctx, "ref_1")
	if session.Status != domain.SessionVerifying {
		t.Fatalf("expected verifying, got %s", session.Status)
	}

	if err := journal.UpdateStatus(ctx, "ghost", domain.SessionFailed); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryJournalUpdateStatusRejectsIllegalJump(t *testing.T) {
	ctx := context.Background()
	journal := NewMemoryJournal(testClock())
	journal.Record(ctx, domain.PaymentSession{Reference: "ref_1", Status: domain.SessionPending})

	if err := journal.UpdateStatus(ctx, "ref_1", domain.SessionConfirmed); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	session, _ := journal.Get(ctx, "ref_1")
	if session.Status != domain.SessionPending {
		t.Fatalf("status must not change on rejected update, got %s", session.Status)
	}

	if err := journal.UpdateStatus(ctx, "ref_1", domain.SessionVerifying); err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
	if err := journal.UpdateStatus(ctx, "ref_1", domain.SessionFailed); err != nil {
		t.Fatalf("UpdateStatus returned error: %v", err)
	}
	if err := journal.UpdateStatus(ctx, "ref_1", domain.SessionVerifying); err != nil {
		t.Fatalf("retry after failure should be allowed, got %v", err)
	}
}

func TestMemoryJournalListByStatus(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	journal := NewMemoryJournal(func() time.Time { return base })

	journal.Record(ctx, domain.PaymentSession{Reference: "ref_1", Status: domain.SessionVerifying})
	journal.Record(ctx, domain.PaymentSession{Reference: "ref_2", Status: domain.SessionPending})
	journal.Record(ctx, domain.PaymentSession{Reference: "ref_3", Status: domain.SessionVerifying})

	matches, err := journal.ListByStatus(ctx, domain.SessionVerifying, 0)
	if err != nil {
		t.Fatalf("ListByStatus returned error: %v", err)
	}
	if len(matches) != 2 || matches[0].Reference != "ref_1" || matches[1].Reference != "ref_3" {
		t.Fatalf("unexpected matches %+v", matches)
	}

	limited, err := journal.ListByStatus(ctx, domain.SessionVerifying, 1)
	if err != nil {
		t.Fatalf("ListByStatus returned error: %v", err)
	}
	if len(limited) != 1 || limited[0].Reference != "ref_1" {
		t.Fatalf("expected oldest match only, got %+v", limited)
	}
}

func TestMemoryJournalRecordRequiresReference(t *testing.T) {
	journal := NewMemoryJournal(testClock())
	if err := journal.Record(context.Background(), domain.PaymentSession{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
