package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const hostedMaxResponseBytes = 1 << 20

// HostedLogger defines the logging contract for hosted provider operations.
type HostedLogger func(ctx context.Context, event string, fields map[string]any)

// HostedProviderConfig configures the HostedProvider.
type HostedProviderConfig struct {
	BaseURL   string
	PublicKey string
	SecretKey string
	Client    *http.Client
	Logger    HostedLogger
	Clock     func() time.Time
}

// HostedProvider implements the Provider interface for a hosted payment
// widget with a server-side verify API.
type HostedProvider struct {
	baseURL   string
	publicKey string
	secretKey string
	httpc     *http.Client
	logger    HostedLogger
	clock     func() time.Time
}

// NewHostedProvider constructs a hosted widget provider using the given configuration.
func NewHostedProvider(cfg HostedProviderConfig) (*HostedProvider, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("hosted: base url is required")
	}
	if strings.TrimSpace(cfg.PublicKey) == "" {
		return nil, errors.New("hosted: public key is required")
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("hosted: secret key is required")
	}

	httpc := cfg.Client
	if httpc == nil {
		httpc = &http.Client{Timeout: 20 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &HostedProvider{
		baseURL:   baseURL,
		publicKey: strings.TrimSpace(cfg.PublicKey),
		secretKey: strings.TrimSpace(cfg.SecretKey),
		httpc:     httpc,
		logger:    logger,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

// Initialize assembles the widget handoff. The hosted widget opens entirely
// client-side, so no gateway call happens here.
func (p *HostedProvider) Initialize(ctx context.Context, req InitializeRequest) (WidgetConfig, error) {
	if p == nil {
		return WidgetConfig{}, errors.New("hosted: provider is nil")
	}
	if strings.TrimSpace(req.Reference) == "" {
		return WidgetConfig{}, errors.New("hosted: reference is required")
	}
	if req.AmountMinorUnits <= 0 {
		return WidgetConfig{}, errors.New("hosted: amount must be positive")
	}

	p.logger(ctx, "gateway.hosted.widget_prepared", map[string]any{
		"reference": req.Reference,
		"currency":  req.Currency,
	})

	return WidgetConfig{
		Reference:        req.Reference,
		PayerEmail:       req.PayerEmail,
		AmountMinorUnits: req.AmountMinorUnits,
		Currency:         strings.ToUpper(req.Currency),
		PublicKey:        p.publicKey,
	}, nil
}

// hostedVerifyResponse mirrors the gateway's transaction verify payload.
type hostedVerifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Status    string `json:"status"`
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
		PaidAt    string `json:"paid_at"`
	} `json:"data"`
}

// Verify checks a charge server-side by its reference.
func (p *HostedProvider) Verify(ctx context.Context, reference string) (ChargeDetails, error) {
	if p == nil {
		return ChargeDetails{}, errors.New("hosted: provider is nil")
	}
	if strings.TrimSpace(reference) == "" {
		return ChargeDetails{}, errors.New("hosted: reference is required")
	}

	endpoint := p.baseURL + "/transaction/verify/" + url.PathEscape(reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ChargeDetails{}, fmt.Errorf("hosted: building verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpc.Do(req)
	if err != nil {
		p.logger(ctx, "gateway.hosted.verify_failed", map[string]any{
			"reference": reference,
			"error":     err.Error(),
		})
		return ChargeDetails{}, fmt.Errorf("hosted: verify request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, hostedMaxResponseBytes))
	if err != nil {
		return ChargeDetails{}, fmt.Errorf("hosted: reading verify response: %w", err)
	}

	var payload hostedVerifyResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ChargeDetails{}, fmt.Errorf("hosted: decoding verify response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest || !payload.Status {
		message := strings.TrimSpace(payload.Message)
		if message == "" {
			message = fmt.Sprintf("verify returned status %d", resp.StatusCode)
		}
		return ChargeDetails{}, fmt.Errorf("hosted: %s", message)
	}

	details := ChargeDetails{
		Provider:         "hosted",
		Reference:        payload.Data.Reference,
		Status:           mapHostedChargeStatus(payload.Data.Status),
		AmountMinorUnits: payload.Data.Amount,
		Currency:         strings.ToUpper(payload.Data.Currency),
	}
	if details.Reference == "" {
		details.Reference = reference
	}
	if payload.Data.PaidAt != "" {
		if paidAt, perr := time.Parse(time.RFC3339, payload.Data.PaidAt); perr == nil {
			utc := paidAt.UTC()
			details.PaidAt = &utc
		}
	}

	rawMap := map[string]any{}
	_ = json.Unmarshal(raw, &rawMap)
	details.Raw = rawMap

	p.logger(ctx, "gateway.hosted.verify_completed", map[string]any{
		"reference": details.Reference,
		"status":    string(details.Status),
	})
	return details, nil
}

func mapHostedChargeStatus(status string) ChargeStatus {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "success", "succeeded":
		return ChargeSucceeded
	case "failed", "reversed":
		return ChargeFailed
	case "abandoned":
		return ChargeAbandoned
	default:
		return ChargePending
	}
}
