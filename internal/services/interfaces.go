package services

import (
	"context"
	"errors"

	"github.com/emberline/checkout/internal/commerce"
	"github.com/emberline/checkout/internal/domain"
	"github.com/emberline/checkout/internal/gateway"
)

// Sentinel errors shared across the checkout services. Handlers translate
// them into HTTP responses via errors.Is.
var (
	// ErrValidation indicates incomplete or malformed caller input.
	ErrValidation = errors.New("checkout: validation failed")
	// ErrPricing indicates a computed payable amount is not positive.
	ErrPricing = errors.New("checkout: pricing failed")
	// ErrSessionInit indicates the backend refused or failed session creation.
	ErrSessionInit = errors.New("checkout: session initialization failed")
	// ErrSessionInFlight indicates a session request is already outstanding.
	ErrSessionInFlight = errors.New("checkout: session request already in flight")
	// ErrVerification indicates payment verification failed.
	ErrVerification = errors.New("checkout: payment verification failed")
	// ErrVerifyInFlight indicates a verify is already running for the reference.
	ErrVerifyInFlight = errors.New("checkout: verification already in progress")
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("checkout: not found")
)

// Logger is the event logging contract used by every service.
type Logger func(ctx context.Context, event string, fields map[string]any)

// BackendClient is the slice of the commerce backend used by checkout services.
type BackendClient interface {
	CreateOrderSession(ctx context.Context, req commerce.OrderSessionRequest) (commerce.Session, error)
	CreatePreOrderSession(ctx context.Context, req commerce.PreOrderSessionRequest) (commerce.Session, error)
	VerifyOrderPayment(ctx context.Context, reference string) (commerce.OrderVerification, error)
	VerifyPreOrderPayment(ctx context.Context, reference string) (commerce.PreOrderVerification, error)
	CreateRemainingBalanceSession(ctx context.Context, preOrderID string) (commerce.Session, error)
	ExchangePayToken(ctx context.Context, token string) (commerce.PayTokenDetails, error)
	GetOrder(ctx context.Context, number string) (commerce.OrderDetails, error)
	GetPreOrder(ctx context.Context, number string) (commerce.PreOrderDetails, error)
}

// GatewayClient is the slice of the gateway manager used by checkout services.
type GatewayClient interface {
	Initialize(ctx context.Context, route gateway.RouteContext, req gateway.InitializeRequest) (gateway.WidgetConfig, error)
	Verify(ctx context.Context, route gateway.RouteContext, reference string) (gateway.ChargeDetails, error)
}

// SessionJournal records payment sessions and their status transitions so
// stuck sessions can be reconciled later.
type SessionJournal interface {
	Record(ctx context.Context, session domain.PaymentSession) error
	UpdateStatus(ctx context.Context, reference string, status domain.SessionStatus) error
	Get(ctx context.Context, reference string) (domain.PaymentSession, error)
	ListByStatus(ctx context.Context, status domain.SessionStatus, limit int) ([]domain.PaymentSession, error)
}
