package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ChargeStatus enumerates the normalised charge states shared across providers.
type ChargeStatus string

const (
	// ChargePending indicates the charge is awaiting customer action or gateway confirmation.
	ChargePending ChargeStatus = "pending"
	// ChargeSucceeded indicates the gateway reports the charge as successfully captured.
	ChargeSucceeded ChargeStatus = "succeeded"
	// ChargeFailed indicates the gateway reports a failure and no further action is possible.
	ChargeFailed ChargeStatus = "failed"
	// ChargeAbandoned indicates the customer closed the payment flow without completing it.
	ChargeAbandoned ChargeStatus = "abandoned"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
var ErrUnsupportedProvider = errors.New("gateway: unsupported provider")

// InitializeRequest captures the payload required to open a gateway payment.
type InitializeRequest struct {
	Reference        string
	PayerEmail       string
	AmountMinorUnits int64
	Currency         string
	Metadata         map[string]string
}

// WidgetConfig is the client handoff for the hosted payment widget. Amounts
// are in minor units.
type WidgetConfig struct {
	Reference        string `json:"reference"`
	PayerEmail       string `json:"payer_email"`
	AmountMinorUnits int64  `json:"amount_minor_units"`
	Currency         string `json:"currency"`
	PublicKey        string `json:"public_key"`
}

// ChargeDetails normalises gateway specific verify results.
type ChargeDetails struct {
	Provider         string
	Reference        string
	Status           ChargeStatus
	AmountMinorUnits int64
	Currency         string
	PaidAt           *time.Time
	Raw              map[string]any
}

// Provider defines the contract for payment gateway adapters to implement.
type Provider interface {
	Initialize(ctx context.Context, req InitializeRequest) (WidgetConfig, error)
	Verify(ctx context.Context, reference string) (ChargeDetails, error)
}

// Manager coordinates provider selection and exposes the aggregated interface.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	currencyRoutes  map[string]string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the default provider for currencies without explicit routing.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = provider
	}
}

// WithCurrencyRoutes configures static currency to provider mappings.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		if len(routes) == 0 {
			return
		}
		if m.currencyRoutes == nil {
			m.currencyRoutes = make(map[string]string, len(routes))
		}
		for k, v := range routes {
			m.currencyRoutes[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("gateway: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("gateway: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{
		providers: copyMap,
	}
	if _, ok := copyMap["hosted"]; ok {
		m.defaultProvider = "hosted"
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// RouteContext defines the hints available when selecting a provider.
type RouteContext struct {
	PreferredProvider string
	Currency          string
}

func (m *Manager) resolveProvider(route RouteContext) (string, Provider, error) {
	if m == nil {
		return "", nil, errors.New("gateway: manager is nil")
	}
	if len(m.providers) == 0 {
		return "", nil, errors.New("gateway: no providers registered")
	}
	if provider := strings.TrimSpace(strings.ToLower(route.PreferredProvider)); provider != "" {
		if p, ok := m.providers[provider]; ok {
			return provider, p, nil
		}
	}
	currency := strings.ToUpper(strings.TrimSpace(route.Currency))
	if currency != "" && m.currencyRoutes != nil {
		if providerKey, ok := m.currencyRoutes[currency]; ok {
			provider := strings.TrimSpace(strings.ToLower(providerKey))
			if p, ok := m.providers[provider]; ok {
				return provider, p, nil
			}
		}
	}
	if def := strings.TrimSpace(strings.ToLower(m.defaultProvider)); def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// Initialize delegates to the resolved provider.
func (m *Manager) Initialize(ctx context.Context, route RouteContext, req InitializeRequest) (WidgetConfig, error) {
	_, provider, err := m.resolveProvider(route)
	if err != nil {
		return WidgetConfig{}, err
	}
	return provider.Initialize(ctx, req)
}

// Verify delegates to the resolved provider.
func (m *Manager) Verify(ctx context.Context, route RouteContext, reference string) (ChargeDetails, error) {
	key, provider, err := m.resolveProvider(route)
	if err != nil {
		return ChargeDetails{}, err
	}
	details, err := provider.Verify(ctx, reference)
	if err != nil {
		return ChargeDetails{}, err
	}
	if details.Provider == "" {
		details.Provider = key
	}
	return details, nil
}
