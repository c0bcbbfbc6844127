package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey         string
	PublishableKey string
	Backends       *stripe.Backends
	Logger         StripeLogger
	Clock          func() time.Time
	Intents        stripeIntentAPI
}

// StripeProvider implements the Provider interface using Stripe Payment Intents.
// The gateway reference for Stripe charges is the payment intent id.
type StripeProvider struct {
	intents        stripeIntentAPI
	publishableKey string
	clock          func() time.Time
	logger         StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Intents == nil {
		return nil, errors.New("stripe: api key is required")
	}

	intents := cfg.Intents
	if intents == nil {
		sc := client.New(apiKey, cfg.Backends)
		intents = sc.PaymentIntents
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		intents:        intents,
		publishableKey: strings.TrimSpace(cfg.PublishableKey),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Initialize creates a payment intent and returns the widget handoff. The
// local session reference is recorded as intent metadata for reconciliation.
func (p *StripeProvider) Initialize(ctx context.Context, req InitializeRequest) (WidgetConfig, error) {
	if p == nil {
		return WidgetConfig{}, errors.New("stripe: provider is nil")
	}
	if req.AmountMinorUnits <= 0 {
		return WidgetConfig{}, errors.New("stripe: amount must be positive")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountMinorUnits),
		Currency: stripe.String(strings.ToLower(req.Currency)),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.Reference); key != "" {
		params.SetIdempotencyKey(key)
		params.Metadata = map[string]string{"session_reference": key}
	}
	if req.PayerEmail != "" {
		params.ReceiptEmail = stripe.String(req.PayerEmail)
	}
	for k, v := range req.Metadata {
		if params.Metadata == nil {
			params.Metadata = make(map[string]string, len(req.Metadata))
		}
		params.Metadata[k] = v
	}

	intent, err := p.intents.New(params)
	if err != nil {
		return WidgetConfig{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	p.logger(ctx, "gateway.stripe.intent_created", map[string]any{
		"paymentIntent": intent.ID,
		"currency":      intent.Currency,
	})

	return WidgetConfig{
		Reference:        intent.ID,
		PayerEmail:       req.PayerEmail,
		AmountMinorUnits: req.AmountMinorUnits,
		Currency:         strings.ToUpper(req.Currency),
		PublicKey:        p.publishableKey,
	}, nil
}

// Verify retrieves a payment intent and normalises its status.
func (p *StripeProvider) Verify(ctx context.Context, reference string) (ChargeDetails, error) {
	if p == nil {
		return ChargeDetails{}, errors.New("stripe: provider is nil")
	}
	if strings.TrimSpace(reference) == "" {
		return ChargeDetails{}, errors.New("stripe: reference is required")
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	intent, err := p.intents.Get(reference, params)
	if err != nil {
		return ChargeDetails{}, fmt.Errorf("stripe: lookup payment intent: %w", err)
	}
	return stripeChargeDetails(intent), nil
}

func stripeChargeDetails(intent *stripe.PaymentIntent) ChargeDetails {
	if intent == nil {
		return ChargeDetails{}
	}

	status := ChargePending
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		status = ChargeSucceeded
	case stripe.PaymentIntentStatusCanceled:
		status = ChargeFailed
	case stripe.PaymentIntentStatusRequiresPaymentMethod, stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusRequiresConfirmation, stripe.PaymentIntentStatusRequiresCapture:
		status = ChargePending
	}

	var paidAt *time.Time
	if charge := intent.LatestCharge; charge != nil && (charge.Paid || charge.Captured) {
		t := time.Unix(charge.Created, 0).UTC()
		paidAt = &t
	}

	currency := strings.ToUpper(string(intent.Currency))
	if currency == "" && intent.LatestCharge != nil {
		currency = strings.ToUpper(string(intent.LatestCharge.Currency))
	}

	raw := map[string]any{}
	if data, err := json.Marshal(intent); err == nil {
		_ = json.Unmarshal(data, &raw)
	} else {
		raw["payment_intent"] = intent
	}

	return ChargeDetails{
		Provider:         "stripe",
		Reference:        intent.ID,
		Status:           status,
		AmountMinorUnits: intent.Amount,
		Currency:         currency,
		PaidAt:           paidAt,
		Raw:              raw,
	}
}
