package commerce

import (
	"bytes"
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

const maxResponseBytes = 1 << 20

// ErrBackendUnavailable indicates the backend could not be reached or
// returned an unreadable response.
var ErrBackendUnavailable = errors.New("commerce: backend unavailable")

// APIError carries a backend-reported failure. The message is passed through
// verbatim so callers can surface it to users.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("commerce: backend returned status %d", e.StatusCode)
}

// Client talks to the commerce backend that owns orders, pre-orders, and
// payment verification.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	logger  func(ctx context.Context, event string, fields map[string]any)
}

// ClientOption customises Client behaviour.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client used for backend calls.
func WithHTTPClient(httpc *http.Client) ClientOption {
	return func(c *Client) {
		if httpc != nil {
			c.httpc = httpc
		}
	}
}

// WithAPIKey sets the bearer credential sent on every request.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithLogger sets the event logger used for request outcomes.
func WithLogger(logger func(ctx context.Context, event string, fields map[string]any)) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a backend client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errors.New("commerce: base url is required")
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("commerce: invalid base url: %w", err)
	}

	client := &Client{
		baseURL: trimmed,
		httpc:   &http.Client{Timeout: 20 * time.Second},
		logger:  func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// CreateOrderSession asks the backend to open a payment session for an order.
// No order record is persisted until the payment is verified.
func (c *Client) CreateOrderSession(ctx context.Context, req OrderSessionRequest) (Session, error) {
	env, err := c.do(ctx, http.MethodPost, "/payments/session", req)
	if err != nil {
		return Session{}, err
	}
	return normalizeSession(env.Data)
}

// CreatePreOrderSession asks the backend to open a payment session for a
// pre-order (deposit or full).
func (c *Client) CreatePreOrderSession(ctx context.Context, req PreOrderSessionRequest) (Session, error) {
	env, err := c.do(ctx, http.MethodPost, "/preorders/session", req)
	if err != nil {
		return Session{}, err
	}
	return normalizeSession(env.Data)
}

// VerifyOrderPayment verifies a gateway reference and creates the order on the
// backend in the same call.
func (c *Client) VerifyOrderPayment(ctx context.Context, reference string) (OrderVerification, error) {
	if strings.TrimSpace(reference) == "" {
		return OrderVerification{}, errors.New("commerce: reference is required")
	}
	env, err := c.do(ctx, http.MethodGet, "/payments/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		return OrderVerification{}, err
	}
	return normalizeOrderVerification(env.Data)
}

// VerifyPreOrderPayment verifies a gateway reference for a pre-order session.
func (c *Client) VerifyPreOrderPayment(ctx context.Context, reference string) (PreOrderVerification, error) {
	if strings.TrimSpace(reference) == "" {
		return PreOrderVerification{}, errors.New("commerce: reference is required")
	}
	env, err := c.do(ctx, http.MethodGet, "/preorders/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		return PreOrderVerification{}, err
	}
	return normalizePreOrderVerification(env.Data)
}

// CreateRemainingBalanceSession opens a full-payment session over the balance
// outstanding on a deposit-paid pre-order.
func (c *Client) CreateRemainingBalanceSession(ctx context.Context, preOrderID string) (Session, error) {
	if strings.TrimSpace(preOrderID) == "" {
		return Session{}, errors.New("commerce: pre-order id is required")
	}
	body := map[string]string{"payment_type": "full"}
	env, err := c.do(ctx, http.MethodPost, "/preorders/"+url.PathEscape(preOrderID)+"/pay", body)
	if err != nil {
		return Session{}, err
	}
	return normalizeSession(env.Data)
}

// ExchangePayToken resolves a deep-link pay token into pre-order details.
func (c *Client) ExchangePayToken(ctx context.Context, token string) (PayTokenDetails, error) {
	if strings.TrimSpace(token) == "" {
		return PayTokenDetails{}, errors.New("commerce: token is required")
	}
	env, err := c.do(ctx, http.MethodGet, "/preorders/pay-token/"+url.PathEscape(token), nil)
	if err != nil {
		return PayTokenDetails{}, err
	}
	return normalizePayToken(env.Data)
}

// GetOrder fetches an order by its canonical number.
func (c *Client) GetOrder(ctx context.Context, number string) (OrderDetails, error) {
	if strings.TrimSpace(number) == "" {
		return OrderDetails{}, errors.New("commerce: order number is required")
	}
	env, err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(number), nil)
	if err != nil {
		return OrderDetails{}, err
	}
	return normalizeOrderDetails(env.Data)
}

// GetPreOrder fetches a pre-order by its canonical number.
func (c *Client) GetPreOrder(ctx context.Context, number string) (PreOrderDetails, error) {
	if strings.TrimSpace(number) == "" {
		return PreOrderDetails{}, errors.New("commerce: pre-order number is required")
	}
	env, err := c.do(ctx, http.MethodGet, "/preorders/number/"+url.PathEscape(number), nil)
	if err != nil {
		return PreOrderDetails{}, err
	}
	return normalizePreOrderDetails(env.Data)
}

// Ping probes backend reachability for readiness checks.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: health returned status %d", ErrBackendUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (envelope, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return envelope{}, fmt.Errorf("commerce: encoding request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return envelope{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	started := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		c.logger(ctx, "commerce.request_failed", map[string]any{
			"method": method,
			"path":   path,
			"error":  err.Error(),
		})
		return envelope{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return envelope{}, fmt.Errorf("%w: reading response: %v", ErrBackendUnavailable, err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			return envelope{}, fmt.Errorf("%w: decoding response: %v", ErrBackendUnavailable, err)
		}
	}

	c.logger(ctx, "commerce.request_completed", map[string]any{
		"method":      method,
		"path":        path,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(started).Milliseconds(),
	})

	if resp.StatusCode >= http.StatusBadRequest || !env.ok() {
		return envelope{}, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(env.Message)}
	}
	return env, nil
}
