package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/emberline/checkout/internal/commerce"
	"github.com/emberline/checkout/internal/domain"
	"github.com/emberline/checkout/internal/gateway"
)

// minorUnitsFactor converts backend major-unit amounts into the gateway's
// minor units.
const minorUnitsFactor = 100

var (
	errSessionBackendRequired = errors.New("session service: backend client is required")
	errSessionGatewayRequired = errors.New("session service: gateway client is required")
	errSessionCartRequired    = errors.New("session service: cart store is required")
	errSessionJournalRequired = errors.New("session service: journal is required")
	errSessionClockRequired   = errors.New("session service: clock is required")
)

// CheckoutHandoff is everything the client needs to open the payment widget.
type CheckoutHandoff struct {
	Session domain.PaymentSession
	Widget  gateway.WidgetConfig
	Notice  string
}

// SessionServiceDeps wires the collaborators for session initialization.
type SessionServiceDeps struct {
	Backend  BackendClient
	Gateway  GatewayClient
	Cart     *CartStore
	Journal  SessionJournal
	Clock    func() time.Time
	Logger   Logger
	Currency string
	Provider string
}

// SessionService opens backend payment sessions and prepares the gateway
// handoff. No order or pre-order record exists until verification succeeds.
type SessionService struct {
	backend  BackendClient
	gateway  GatewayClient
	cart     *CartStore
	journal  SessionJournal
	now      func() time.Time
	logger   Logger
	currency string
	provider string
	inFlight atomic.Bool
}

// NewSessionService constructs a SessionService enforcing dependency validation.
func NewSessionService(deps SessionServiceDeps) (*SessionService, error) {
	if deps.Backend == nil {
		return nil, errSessionBackendRequired
	}
	if deps.Gateway == nil {
		return nil, errSessionGatewayRequired
	}
	if deps.Cart == nil {
		return nil, errSessionCartRequired
	}
	if deps.Journal == nil {
		return nil, errSessionJournalRequired
	}
	if deps.Clock == nil {
		return nil, errSessionClockRequired
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "NGN"
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &SessionService{
		backend:  deps.Backend,
		gateway:  deps.Gateway,
		cart:     deps.Cart,
		journal:  deps.Journal,
		now:      func() time.Time { return deps.Clock().UTC() },
		logger:   logger,
		currency: currency,
		provider: strings.TrimSpace(deps.Provider),
	}, nil
}

// InitializeOrderSession opens a payment session over the ordinary cart.
func (s *SessionService) InitializeOrderSession(ctx context.Context, intent domain.OrderIntent) (CheckoutHandoff, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return CheckoutHandoff{}, ErrSessionInFlight
	}
	defer s.inFlight.Store(false)

	if err := validateContact(intent.Contact); err != nil {
		return CheckoutHandoff{}, err
	}
	if err := validateFulfillment(intent.Fulfillment); err != nil {
		return CheckoutHandoff{}, err
	}

	snapshot := s.cart.Snapshot()
	if len(snapshot.Lines) == 0 {
		return CheckoutHandoff{}, fmt.Errorf("%w: cart is empty", ErrValidation)
	}
	lineIDs := make([]string, 0, len(snapshot.Lines))
	items := make([]commerce.OrderItemRequest, 0, len(snapshot.Lines))
	for _, line := range snapshot.Lines {
		if line.IsPreOrder() {
			return CheckoutHandoff{}, fmt.Errorf("%w: pre-order items are paid for separately", ErrValidation)
		}
		lineIDs = append(lineIDs, line.ID)
		items = append(items, commerce.OrderItemRequest{ProductID: line.ID, Quantity: line.Quantity})
	}

	if snapshot.Total <= 0 {
		return CheckoutHandoff{}, fmt.Errorf("%w: cart total must be positive, got %d", ErrPricing, snapshot.Total)
	}

	req := commerce.OrderSessionRequest{
		FullName:       intent.Contact.FullName,
		Email:          intent.Contact.Email,
		Phone:          intent.Contact.Phone,
		Method:         string(intent.Fulfillment.Method),
		Address:        intent.Fulfillment.Address,
		City:           intent.Fulfillment.City,
		State:          intent.Fulfillment.State,
		PickupLocation: intent.Fulfillment.PickupLocation,
		Items:          items,
		Amount:         snapshot.Total,
		Currency:       s.currency,
	}
	backendSession, err := s.backend.CreateOrderSession(ctx, req)
	if err != nil {
		return CheckoutHandoff{}, s.sessionInitFailure(ctx, domain.IntentOrder, err)
	}

	return s.completeHandoff(ctx, backendSession, domain.PaymentSession{
		Intent:     domain.IntentOrder,
		LineIDs:    lineIDs,
		PayerEmail: intent.Contact.Email,
	}, "")
}

// InitializePreOrderSession opens a payment session for a single pre-order
// line, resolving the deposit-or-full preference first.
func (s *SessionService) InitializePreOrderSession(ctx context.Context, intent domain.PreOrderIntent) (CheckoutHandoff, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return CheckoutHandoff{}, ErrSessionInFlight
	}
	defer s.inFlight.Store(false)

	if strings.TrimSpace(intent.PreOrderID) == "" {
		return CheckoutHandoff{}, fmt.Errorf("%w: pre-order id is required", ErrValidation)
	}
	if err := validateContact(intent.Contact); err != nil {
		return CheckoutHandoff{}, err
	}
	if err := validateFulfillment(intent.Fulfillment); err != nil {
		return CheckoutHandoff{}, err
	}

	lineID := domain.PreOrderLinePrefix + intent.PreOrderID
	line, ok := s.cart.Get(lineID)
	if !ok || line.PreOrder == nil {
		return CheckoutHandoff{}, fmt.Errorf("%w: pre-order %s is not in the cart", ErrValidation, intent.PreOrderID)
	}

	quantity := intent.Quantity
	if quantity == 0 {
		quantity = line.Quantity
	}
	resolution, err := ResolvePaymentType(intent.PaymentType, line.PreOrder.UnitPrice, quantity, line.PreOrder.DepositPerUnit)
	if err != nil {
		return CheckoutHandoff{}, err
	}

	req := commerce.PreOrderSessionRequest{
		PreOrderID:     intent.PreOrderID,
		Quantity:       quantity,
		PaymentType:    string(resolution.PaymentType),
		FullName:       intent.Contact.FullName,
		Email:          intent.Contact.Email,
		Phone:          intent.Contact.Phone,
		Method:         string(intent.Fulfillment.Method),
		Address:        intent.Fulfillment.Address,
		City:           intent.Fulfillment.City,
		State:          intent.Fulfillment.State,
		PickupLocation: intent.Fulfillment.PickupLocation,
		Amount:         resolution.Payable,
		Currency:       s.currency,
	}
	backendSession, err := s.backend.CreatePreOrderSession(ctx, req)
	if err != nil {
		return CheckoutHandoff{}, s.sessionInitFailure(ctx, domain.IntentPreOrder, err)
	}

	return s.completeHandoff(ctx, backendSession, domain.PaymentSession{
		Intent:     domain.IntentPreOrder,
		IntentKey:  intent.PreOrderID,
		LineIDs:    []string{lineID},
		PayerEmail: intent.Contact.Email,
	}, resolution.Notice)
}

// InitializeRemainingBalanceSession opens a full-payment session over the
// balance outstanding on a deposit-paid pre-order.
func (s *SessionService) InitializeRemainingBalanceSession(ctx context.Context, intent domain.RemainingBalanceIntent) (CheckoutHandoff, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return CheckoutHandoff{}, ErrSessionInFlight
	}
	defer s.inFlight.Store(false)

	if strings.TrimSpace(intent.PreOrderID) == "" {
		return CheckoutHandoff{}, fmt.Errorf("%w: pre-order id is required", ErrValidation)
	}

	backendSession, err := s.backend.CreateRemainingBalanceSession(ctx, intent.PreOrderID)
	if err != nil {
		return CheckoutHandoff{}, s.sessionInitFailure(ctx, domain.IntentPreOrder, err)
	}

	return s.completeHandoff(ctx, backendSession, domain.PaymentSession{
		Intent:    domain.IntentPreOrder,
		IntentKey: intent.PreOrderID,
	}, "")
}

// completeHandoff re-validates the backend amount, prepares the widget, and
// journals the pending session. The gateway never opens on failure.
func (s *SessionService) completeHandoff(ctx context.Context, backendSession commerce.Session, session domain.PaymentSession, notice string) (CheckoutHandoff, error) {
	if backendSession.Amount <= 0 {
		return CheckoutHandoff{}, fmt.Errorf("%w: backend returned non-positive amount %d", ErrSessionInit, backendSession.Amount)
	}

	currency := strings.ToUpper(strings.TrimSpace(backendSession.Currency))
	if currency == "" {
		currency = s.currency
	}

	widget, err := s.gateway.Initialize(ctx, gateway.RouteContext{
		PreferredProvider: s.provider,
		Currency:          currency,
	}, gateway.InitializeRequest{
		Reference:        backendSession.Reference,
		PayerEmail:       session.PayerEmail,
		AmountMinorUnits: backendSession.Amount * minorUnitsFactor,
		Currency:         currency,
	})
	if err != nil {
		return CheckoutHandoff{}, fmt.Errorf("%w: %v", ErrSessionInit, err)
	}

	// The gateway may mint its own reference (e.g. a payment intent id);
	// downstream verification keys off the widget reference.
	session.Reference = widget.Reference
	session.AmountMinorUnits = widget.AmountMinorUnits
	session.Currency = currency
	session.Status = domain.SessionPending
	if err := s.journal.Record(ctx, session); err != nil {
		return CheckoutHandoff{}, fmt.Errorf("%w: recording session: %v", ErrSessionInit, err)
	}

	s.logger(ctx, "checkout.session_initialized", map[string]any{
		"reference": session.Reference,
		"intent":    string(session.Intent),
		"amount":    session.AmountMinorUnits,
		"currency":  session.Currency,
	})

	return CheckoutHandoff{Session: session, Widget: widget, Notice: notice}, nil
}

func (s *SessionService) sessionInitFailure(ctx context.Context, intent domain.IntentKind, err error) error {
	s.logger(ctx, "checkout.session_failed", map[string]any{
		"intent": string(intent),
		"error":  err.Error(),
	})
	var apiErr *commerce.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return fmt.Errorf("%w: %s", ErrSessionInit, apiErr.Message)
	}
	return fmt.Errorf("%w: %v", ErrSessionInit, err)
}

func validateContact(contact domain.Contact) error {
	var missing []string
	if strings.TrimSpace(contact.FullName) == "" {
		missing = append(missing, "full name")
	}
	email := strings.TrimSpace(contact.Email)
	if email == "" || !strings.Contains(email, "@") {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(contact.Phone) == "" {
		missing = append(missing, "phone")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s required", ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

func validateFulfillment(fulfillment domain.Fulfillment) error {
	switch fulfillment.Method {
	case domain.FulfillmentDelivery:
		var missing []string
		if strings.TrimSpace(fulfillment.Address) == "" {
			missing = append(missing, "address")
		}
		if strings.TrimSpace(fulfillment.City) == "" {
			missing = append(missing, "city")
		}
		if strings.TrimSpace(fulfillment.State) == "" {
			missing = append(missing, "state")
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: %s required for delivery", ErrValidation, strings.Join(missing, ", "))
		}
	case domain.FulfillmentPickup:
		if strings.TrimSpace(fulfillment.PickupLocation) == "" {
			return fmt.Errorf("%w: pickup location required", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown fulfillment method %q", ErrValidation, fulfillment.Method)
	}
	return nil
}
