package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile          = ".env"
	defaultPort             = "8080"
	defaultReadTimeout      = 15 * time.Second
	defaultWriteTimeout     = 30 * time.Second
	defaultIdleTimeout      = 120 * time.Second
	defaultBackendTimeout   = 20 * time.Second
	defaultGatewayTimeout   = 20 * time.Second
	defaultCurrency         = "NGN"
	defaultGatewayProvider  = "hosted"
	defaultVerifyGuardTTL   = 24 * time.Hour
	defaultSessionTTL       = 30 * time.Minute
	defaultReconcileEvery   = 5 * time.Minute
	defaultReconcileAfter   = 10 * time.Minute
	defaultReconcileBatch   = 50
	defaultPayTokenLifetime = 15 * time.Minute
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Backend   BackendConfig
	Gateway   GatewayConfig
	Checkout  CheckoutConfig
	Reconcile ReconcileConfig
	Features  FeatureFlags
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// BackendConfig points at the commerce backend that owns persistence.
type BackendConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// GatewayConfig collects payment gateway settings and secrets.
type GatewayConfig struct {
	Provider     string
	PublicKey    string
	SecretKey    string
	BaseURL      string
	StripeAPIKey string
	Currency     string
	Timeout      time.Duration
}

// CheckoutConfig controls session and verify-guard lifetimes.
type CheckoutConfig struct {
	SessionTTL       time.Duration
	VerifyGuardTTL   time.Duration
	PayTokenSecret   string
	PayTokenLifetime time.Duration
}

// ReconcileConfig controls the stuck-session reconciliation sweep.
type ReconcileConfig struct {
	Interval   time.Duration
	StuckAfter time.Duration
	BatchSize  int
}

// FeatureFlags toggle optional behaviour without redeploying.
type FeatureFlags struct {
	EnableStripe     bool
	EnableReconciler bool
}

// SecretResolver resolves references to external secrets (e.g. secret:// URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret resolver lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "CHECKOUT_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "CHECKOUT_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "CHECKOUT_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "CHECKOUT_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Backend: BackendConfig{
			BaseURL: stringWithDefault(lookup, "CHECKOUT_BACKEND_BASE_URL", ""),
			APIKey:  stringWithDefault(lookup, "CHECKOUT_BACKEND_API_KEY", ""),
			Timeout: durationWithDefault(lookup, "CHECKOUT_BACKEND_TIMEOUT", defaultBackendTimeout),
		},
		Gateway: GatewayConfig{
			Provider:     strings.ToLower(stringWithDefault(lookup, "CHECKOUT_GATEWAY_PROVIDER", defaultGatewayProvider)),
			PublicKey:    stringWithDefault(lookup, "CHECKOUT_GATEWAY_PUBLIC_KEY", ""),
			SecretKey:    stringWithDefault(lookup, "CHECKOUT_GATEWAY_SECRET_KEY", ""),
			BaseURL:      stringWithDefault(lookup, "CHECKOUT_GATEWAY_BASE_URL", ""),
			StripeAPIKey: stringWithDefault(lookup, "CHECKOUT_GATEWAY_STRIPE_API_KEY", ""),
			Currency:     strings.ToUpper(stringWithDefault(lookup, "CHECKOUT_GATEWAY_CURRENCY", defaultCurrency)),
			Timeout:      durationWithDefault(lookup, "CHECKOUT_GATEWAY_TIMEOUT", defaultGatewayTimeout),
		},
		Checkout: CheckoutConfig{
			SessionTTL:       durationWithDefault(lookup, "CHECKOUT_SESSION_TTL", defaultSessionTTL),
			VerifyGuardTTL:   durationWithDefault(lookup, "CHECKOUT_VERIFY_GUARD_TTL", defaultVerifyGuardTTL),
			PayTokenSecret:   stringWithDefault(lookup, "CHECKOUT_PAY_TOKEN_SECRET", ""),
			PayTokenLifetime: durationWithDefault(lookup, "CHECKOUT_PAY_TOKEN_LIFETIME", defaultPayTokenLifetime),
		},
		Reconcile: ReconcileConfig{
			Interval:   durationWithDefault(lookup, "CHECKOUT_RECONCILE_INTERVAL", defaultReconcileEvery),
			StuckAfter: durationWithDefault(lookup, "CHECKOUT_RECONCILE_STUCK_AFTER", defaultReconcileAfter),
			BatchSize:  intWithDefault(lookup, "CHECKOUT_RECONCILE_BATCH", defaultReconcileBatch),
		},
		Features: FeatureFlags{
			EnableStripe:     boolWithDefault(lookup, "CHECKOUT_FEATURE_STRIPE", false),
			EnableReconciler: boolWithDefault(lookup, "CHECKOUT_FEATURE_RECONCILER", true),
		},
	}

	// Resolve secrets when values reference an external secret store.
	secretFields := []*string{
		&cfg.Backend.APIKey,
		&cfg.Gateway.SecretKey,
		&cfg.Gateway.StripeAPIKey,
		&cfg.Checkout.PayTokenSecret,
	}
	for _, field := range secretFields {
		resolved, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*field = resolved
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" {
		return value, nil
	}
	if !isSecretReference(value) {
		return value, nil
	}
	if resolver == nil {
		return "", &SecretError{Ref: value, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, strings.TrimSpace(value))
	if err != nil {
		return "", &SecretError{Ref: strings.TrimSpace(value), Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Backend.BaseURL == "" {
		missing = append(missing, "Backend.BaseURL")
	}
	if cfg.Gateway.Provider == "" {
		missing = append(missing, "Gateway.Provider")
	}
	if cfg.Gateway.Currency == "" {
		missing = append(missing, "Gateway.Currency")
	}
	if cfg.Gateway.Provider == "hosted" && cfg.Gateway.PublicKey == "" {
		missing = append(missing, "Gateway.PublicKey")
	}
	if cfg.Checkout.SessionTTL <= 0 {
		missing = append(missing, "Checkout.SessionTTL")
	}
	if cfg.Checkout.VerifyGuardTTL <= 0 {
		missing = append(missing, "Checkout.VerifyGuardTTL")
	}
	if cfg.Reconcile.Interval <= 0 {
		missing = append(missing, "Reconcile.Interval")
	}
	if cfg.Reconcile.BatchSize <= 0 {
		missing = append(missing, "Reconcile.BatchSize")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func isSecretReference(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), "secret://")
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
