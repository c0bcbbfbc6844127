package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/emberline/checkout/internal/commerce"
	"github.com/emberline/checkout/internal/domain"
	"github.com/emberline/checkout/internal/platform/tokens"
)

// ActionPayRemaining is the deep-link action that auto-starts a
// remaining-balance payment on first resolution.
const ActionPayRemaining = "pay-remaining"

var (
	errConfirmationBackendRequired = errors.New("confirmation service: backend client is required")
)

// ConfirmationResolution is the outcome of resolving a confirmation page
// request. AutoPayRemaining fires at most once per identifier and action;
// PreOrderID is set whenever the view can pay its remaining balance.
type ConfirmationResolution struct {
	View             domain.SettlementView
	PreOrderID       string
	AutoPayRemaining bool
}

// ConfirmationServiceDeps wires the collaborators for confirmation resolution.
type ConfirmationServiceDeps struct {
	Backend BackendClient
	Tokens  *tokens.Issuer
	Logger  Logger
}

// ConfirmationService resolves settled records for the confirmation page and
// exchanges deep-link pay tokens. Resolution is an idempotent read; the
// pay-remaining auto-trigger is a consumed one-shot.
type ConfirmationService struct {
	backend BackendClient
	tokens  *tokens.Issuer
	logger  Logger

	mu       sync.Mutex
	consumed map[string]bool
}

// NewConfirmationService constructs a ConfirmationService enforcing dependency validation.
func NewConfirmationService(deps ConfirmationServiceDeps) (*ConfirmationService, error) {
	if deps.Backend == nil {
		return nil, errConfirmationBackendRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &ConfirmationService{
		backend:  deps.Backend,
		tokens:   deps.Tokens,
		logger:   logger,
		consumed: make(map[string]bool),
	}, nil
}

// Resolve looks up a settled record by its canonical number and applies the
// optional deep-link action.
func (s *ConfirmationService) Resolve(ctx context.Context, identifier, action string) (ConfirmationResolution, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return ConfirmationResolution{}, fmt.Errorf("%w: identifier is required", ErrValidation)
	}

	view, preOrderID, err := s.lookup(ctx, identifier)
	if err != nil {
		return ConfirmationResolution{}, err
	}

	resolution := ConfirmationResolution{View: view, PreOrderID: preOrderID}
	if strings.EqualFold(strings.TrimSpace(action), ActionPayRemaining) && view.CanPayRemaining {
		resolution.AutoPayRemaining = s.consumeTrigger(identifier)
	}
	return resolution, nil
}

// ResolveToken exchanges a deep-link pay token for a settlement view. The
// token signature is checked locally before the backend exchange.
func (s *ConfirmationService) ResolveToken(ctx context.Context, rawToken, action string) (ConfirmationResolution, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return ConfirmationResolution{}, fmt.Errorf("%w: token is required", ErrValidation)
	}

	if s.tokens != nil {
		if _, err := s.tokens.Parse(rawToken); err != nil {
			return ConfirmationResolution{}, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}

	details, err := s.backend.ExchangePayToken(ctx, rawToken)
	if err != nil {
		return ConfirmationResolution{}, s.lookupFailure(err)
	}

	view := domain.SettlementView{
		Kind:            domain.IntentPreOrder,
		CanonicalNumber: details.PreOrderNumber,
		RemainingAmount: details.AmountDue,
		Currency:        details.Currency,
		CanPayRemaining: details.AmountDue > 0,
	}

	resolution := ConfirmationResolution{View: view, PreOrderID: details.PreOrderID}
	if strings.EqualFold(strings.TrimSpace(action), ActionPayRemaining) && view.CanPayRemaining {
		resolution.AutoPayRemaining = s.consumeTrigger("token:" + details.PreOrderID)
	}
	return resolution, nil
}

// IssuePayToken mints a signed deep-link token for the remaining balance of a
// pre-order.
func (s *ConfirmationService) IssuePayToken(preOrderID string, amountDue int64) (string, error) {
	if s.tokens == nil {
		return "", errors.New("confirmation service: token issuer not configured")
	}
	return s.tokens.Mint(preOrderID, amountDue)
}

func (s *ConfirmationService) lookup(ctx context.Context, identifier string) (domain.SettlementView, string, error) {
	// Pre-order numbers carry a PRE prefix; anything else resolves as an
	// order first with a pre-order fallback.
	if strings.HasPrefix(strings.ToUpper(identifier), "PRE") {
		if view, preOrderID, err := s.lookupPreOrder(ctx, identifier); err == nil || !errors.Is(err, ErrNotFound) {
			return view, preOrderID, err
		}
		view, err := s.lookupOrder(ctx, identifier)
		return view, "", err
	}
	if view, err := s.lookupOrder(ctx, identifier); err == nil || !errors.Is(err, ErrNotFound) {
		return view, "", err
	}
	return s.lookupPreOrder(ctx, identifier)
}

func (s *ConfirmationService) lookupOrder(ctx context.Context, number string) (domain.SettlementView, error) {
	details, err := s.backend.GetOrder(ctx, number)
	if err != nil {
		return domain.SettlementView{}, s.lookupFailure(err)
	}
	return domain.SettlementView{
		Kind:            domain.IntentOrder,
		CanonicalNumber: details.OrderNumber,
		PaymentStatus:   details.PaymentStatus,
		AmountPaid:      details.AmountPaid,
		Currency:        details.Currency,
	}, nil
}

func (s *ConfirmationService) lookupPreOrder(ctx context.Context, number string) (domain.SettlementView, string, error) {
	details, err := s.backend.GetPreOrder(ctx, number)
	if err != nil {
		return domain.SettlementView{}, "", s.lookupFailure(err)
	}
	preOrderID := details.PreOrderID
	if preOrderID == "" {
		preOrderID = details.PreOrderNumber
	}
	return domain.SettlementView{
		Kind:            domain.IntentPreOrder,
		CanonicalNumber: details.PreOrderNumber,
		PaymentStatus:   details.PaymentStatus,
		AmountPaid:      details.AmountPaid,
		RemainingAmount: details.RemainingAmount,
		Currency:        details.Currency,
		CanPayRemaining: details.PaymentStatus == "deposit_paid" && details.RemainingAmount > 0,
	}, preOrderID, nil
}

func (s *ConfirmationService) lookupFailure(err error) error {
	var apiErr *commerce.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

func (s *ConfirmationService) consumeTrigger(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.consumed[key] {
		return false
	}
	s.consumed[key] = true
	return true
}
