package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emberline/checkout/internal/commerce"
	"github.com/emberline/checkout/internal/domain"
	"github.com/emberline/checkout/internal/gateway"
	"github.com/emberline/checkout/internal/platform/idempotency"
)

var (
	errSettlementBackendRequired = errors.New("settlement service: backend client is required")
	errSettlementCartRequired    = errors.New("settlement service: cart store is required")
	errSettlementJournalRequired = errors.New("settlement service: journal is required")
	errSettlementGuardRequired   = errors.New("settlement service: verify guard is required")
	errSettlementGatewayRequired = errors.New("settlement service: gateway client is required")
	errSettlementClockRequired   = errors.New("settlement service: clock is required")
)

// SettlementServiceDeps wires the collaborators for payment verification.
type SettlementServiceDeps struct {
	Backend  BackendClient
	Cart     *CartStore
	Journal  SessionJournal
	Guard    idempotency.Store
	Gateway  GatewayClient
	Clock    func() time.Time
	Logger   Logger
	GuardTTL time.Duration
}

// SettlementService verifies gateway charges against the backend exactly once
// per reference. The backend creates the order or pre-order record as part of
// verification; on success only the settled lines leave the cart.
type SettlementService struct {
	backend  BackendClient
	cart     *CartStore
	journal  SessionJournal
	guard    idempotency.Store
	gateway  GatewayClient
	now      func() time.Time
	logger   Logger
	guardTTL time.Duration
}

// NewSettlementService constructs a SettlementService enforcing dependency validation.
func NewSettlementService(deps SettlementServiceDeps) (*SettlementService, error) {
	if deps.Backend == nil {
		return nil, errSettlementBackendRequired
	}
	if deps.Cart == nil {
		return nil, errSettlementCartRequired
	}
	if deps.Journal == nil {
		return nil, errSettlementJournalRequired
	}
	if deps.Guard == nil {
		return nil, errSettlementGuardRequired
	}
	if deps.Gateway == nil {
		return nil, errSettlementGatewayRequired
	}
	if deps.Clock == nil {
		return nil, errSettlementClockRequired
	}

	guardTTL := deps.GuardTTL
	if guardTTL <= 0 {
		guardTTL = idempotency.DefaultTTL
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &SettlementService{
		backend:  deps.Backend,
		cart:     deps.Cart,
		journal:  deps.Journal,
		guard:    deps.Guard,
		gateway:  deps.Gateway,
		now:      func() time.Time { return deps.Clock().UTC() },
		logger:   logger,
		guardTTL: guardTTL,
	}, nil
}

// VerifyAndSettle verifies the charge behind a gateway reference and settles
// the session. Duplicate calls replay the stored outcome or report an
// in-flight verification; a failed verification is never retried here.
func (s *SettlementService) VerifyAndSettle(ctx context.Context, reference string) (domain.SettlementResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return domain.SettlementResult{}, fmt.Errorf("%w: gateway reference is required", ErrValidation)
	}

	session, err := s.journal.Get(ctx, reference)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("%w: unknown session %s", ErrNotFound, reference)
	}

	reservation, err := s.guard.Reserve(ctx, reference, s.now(), s.guardTTL)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("%w: %v", ErrVerification, err)
	}
	switch reservation.State {
	case idempotency.ReservationStateCompleted:
		var replay domain.SettlementResult
		if err := json.Unmarshal(reservation.Record.Outcome, &replay); err != nil {
			return domain.SettlementResult{}, fmt.Errorf("%w: decoding stored outcome: %v", ErrVerification, err)
		}
		s.logger(ctx, "checkout.verify_replayed", map[string]any{"reference": reference})
		return replay, nil
	case idempotency.ReservationStatePending:
		return domain.SettlementResult{}, ErrVerifyInFlight
	}

	if err := s.journal.UpdateStatus(ctx, reference, domain.SessionVerifying); err != nil {
		_ = s.guard.Release(ctx, reference)
		return domain.SettlementResult{}, fmt.Errorf("%w: %v", ErrVerification, err)
	}

	// Cross-check the charge with the gateway before touching the backend.
	// A gateway-reported failure short-circuits; a gateway transport error
	// does not, the backend verify stays authoritative.
	if details, gwErr := s.gateway.Verify(ctx, gateway.RouteContext{Currency: session.Currency}, reference); gwErr != nil {
		s.logger(ctx, "checkout.gateway_check_skipped", map[string]any{
			"reference": reference,
			"error":     gwErr.Error(),
		})
	} else if details.Status == gateway.ChargeFailed || details.Status == gateway.ChargeAbandoned {
		_ = s.journal.UpdateStatus(ctx, reference, domain.SessionFailed)
		_ = s.guard.Release(ctx, reference)
		s.logger(ctx, "checkout.verify_failed", map[string]any{
			"reference": reference,
			"intent":    string(session.Intent),
			"error":     fmt.Sprintf("gateway reports charge %s", details.Status),
		})
		message := fmt.Sprintf("payment was not completed, gateway reports charge %s", details.Status)
		return domain.SettlementResult{Message: message}, fmt.Errorf("%w: %s", ErrVerification, message)
	}

	result, verifyErr := s.verify(ctx, session, reference)
	if verifyErr != nil {
		// The cart stays intact and the guard is released; a retry is a
		// deliberate new call, never automatic.
		_ = s.journal.UpdateStatus(ctx, reference, domain.SessionFailed)
		_ = s.guard.Release(ctx, reference)
		s.logger(ctx, "checkout.verify_failed", map[string]any{
			"reference": reference,
			"intent":    string(session.Intent),
			"error":     verifyErr.Error(),
		})
		return result, verifyErr
	}

	s.cart.ClearLines(session.LineIDs)
	_ = s.journal.UpdateStatus(ctx, reference, domain.SessionConfirmed)

	outcome, err := json.Marshal(result)
	if err == nil {
		_ = s.guard.Complete(ctx, reference, outcome, s.now(), s.guardTTL)
	}

	s.logger(ctx, "checkout.settled", map[string]any{
		"reference": reference,
		"intent":    string(session.Intent),
		"number":    result.CanonicalNumber,
	})
	return result, nil
}

func (s *SettlementService) verify(ctx context.Context, session domain.PaymentSession, reference string) (domain.SettlementResult, error) {
	switch session.Intent {
	case domain.IntentPreOrder:
		verification, err := s.backend.VerifyPreOrderPayment(ctx, reference)
		if err != nil {
			return domain.SettlementResult{Message: verifyFailureMessage(err)}, fmt.Errorf("%w: %s", ErrVerification, verifyFailureMessage(err))
		}
		return domain.SettlementResult{
			Success:         true,
			CanonicalNumber: verification.PreOrderNumber,
			Message:         verification.PaymentStatus,
		}, nil
	default:
		verification, err := s.backend.VerifyOrderPayment(ctx, reference)
		if err != nil {
			return domain.SettlementResult{Message: verifyFailureMessage(err)}, fmt.Errorf("%w: %s", ErrVerification, verifyFailureMessage(err))
		}
		return domain.SettlementResult{
			Success:         true,
			CanonicalNumber: verification.OrderNumber,
			Message:         verification.PaymentStatus,
		}, nil
	}
}

// HandleClose processes the widget's close callback. Closing is not a
// failure: nothing is verified, the cart is untouched, and the session stays
// pending so the customer can try again.
func (s *SettlementService) HandleClose(ctx context.Context, reference string) {
	s.logger(ctx, "checkout.gateway_closed", map[string]any{
		"reference": strings.TrimSpace(reference),
	})
}

func verifyFailureMessage(err error) string {
	var apiErr *commerce.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "payment verification failed"
}
