package di

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/emberline/checkout/internal/commerce"
	"github.com/emberline/checkout/internal/gateway"
	"github.com/emberline/checkout/internal/handlers"
	"github.com/emberline/checkout/internal/platform/config"
	"github.com/emberline/checkout/internal/platform/idempotency"
	"github.com/emberline/checkout/internal/platform/observability"
	"github.com/emberline/checkout/internal/platform/tokens"
	"github.com/emberline/checkout/internal/services"
)

// Services bundles the service layer the handlers rely upon. Concrete
// implementations are assembled in NewContainer.
type Services struct {
	Cart          *services.CartStore
	Sessions      *services.SessionService
	Settlements   *services.SettlementService
	Confirmations *services.ConfirmationService
	Reconciler    *services.Reconciler
}

// Container wires the backend client, gateway providers, stores, and services
// for runtime use.
type Container struct {
	Config   config.Config
	Backend  *commerce.Client
	Gateway  *gateway.Manager
	Journal  *services.MemoryJournal
	Guard    *idempotency.MemoryStore
	Services Services
}

// NewContainer constructs the runtime dependencies from configuration. Tests
// assemble services directly; this path is for the API binary.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	eventLog := observability.EventLogger(logger)

	backend, err := commerce.NewClient(cfg.Backend.BaseURL,
		commerce.WithAPIKey(cfg.Backend.APIKey),
		commerce.WithHTTPClient(&http.Client{Timeout: cfg.Backend.Timeout}),
		commerce.WithLogger(eventLog),
	)
	if err != nil {
		return nil, fmt.Errorf("build backend client: %w", err)
	}

	manager, err := buildGatewayManager(cfg, eventLog)
	if err != nil {
		return nil, err
	}

	cart := services.NewCartStore(time.Now)
	journal := services.NewMemoryJournal(time.Now)
	guard := idempotency.NewMemoryStore()

	var issuer *tokens.Issuer
	if cfg.Checkout.PayTokenSecret != "" {
		issuer, err = tokens.NewIssuer(cfg.Checkout.PayTokenSecret, cfg.Checkout.PayTokenLifetime, time.Now)
		if err != nil {
			return nil, fmt.Errorf("build pay token issuer: %w", err)
		}
	}

	sessions, err := services.NewSessionService(services.SessionServiceDeps{
		Backend:  backend,
		Gateway:  manager,
		Cart:     cart,
		Journal:  journal,
		Clock:    time.Now,
		Logger:   eventLog,
		Currency: cfg.Gateway.Currency,
		Provider: cfg.Gateway.Provider,
	})
	if err != nil {
		return nil, fmt.Errorf("build session service: %w", err)
	}

	settlements, err := services.NewSettlementService(services.SettlementServiceDeps{
		Backend:  backend,
		Cart:     cart,
		Journal:  journal,
		Guard:    guard,
		Gateway:  manager,
		Clock:    time.Now,
		Logger:   eventLog,
		GuardTTL: cfg.Checkout.VerifyGuardTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("build settlement service: %w", err)
	}

	confirmations, err := services.NewConfirmationService(services.ConfirmationServiceDeps{
		Backend: backend,
		Tokens:  issuer,
		Logger:  eventLog,
	})
	if err != nil {
		return nil, fmt.Errorf("build confirmation service: %w", err)
	}

	var reconciler *services.Reconciler
	if cfg.Features.EnableReconciler {
		reconciler, err = services.NewReconciler(services.ReconcilerDeps{
			Settler:    settlements,
			Journal:    journal,
			Clock:      time.Now,
			Logger:     eventLog,
			Interval:   cfg.Reconcile.Interval,
			StuckAfter: cfg.Reconcile.StuckAfter,
			BatchSize:  cfg.Reconcile.BatchSize,
		})
		if err != nil {
			return nil, fmt.Errorf("build reconciler: %w", err)
		}
	}

	return &Container{
		Config:  cfg,
		Backend: backend,
		Gateway: manager,
		Journal: journal,
		Guard:   guard,
		Services: Services{
			Cart:          cart,
			Sessions:      sessions,
			Settlements:   settlements,
			Confirmations: confirmations,
			Reconciler:    reconciler,
		},
	}, nil
}

// Router assembles the HTTP routes over the container's services.
func (c *Container) Router(extra ...func(http.Handler) http.Handler) http.Handler {
	svc := c.Services
	return handlers.NewRouter(
		handlers.WithMiddlewares(extra...),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(map[string]handlers.ReadinessProbe{
			"backend": c.Backend.Ping,
		})),
		handlers.WithCartRoutes(handlers.NewCartHandlers(svc.Cart).Routes),
		handlers.WithCheckoutRoutes(handlers.NewCheckoutHandlers(svc.Sessions, svc.Settlements).Routes),
		handlers.WithConfirmationRoutes(handlers.NewConfirmationHandlers(svc.Confirmations, svc.Sessions).Routes),
		handlers.WithPreOrderRoutes(handlers.NewPreOrderHandlers(svc.Sessions).Routes),
	)
}

func buildGatewayManager(cfg config.Config, eventLog func(ctx context.Context, event string, fields map[string]any)) (*gateway.Manager, error) {
	providers := make(map[string]gateway.Provider)

	if cfg.Gateway.BaseURL != "" && cfg.Gateway.PublicKey != "" && cfg.Gateway.SecretKey != "" {
		hosted, err := gateway.NewHostedProvider(gateway.HostedProviderConfig{
			BaseURL:   cfg.Gateway.BaseURL,
			PublicKey: cfg.Gateway.PublicKey,
			SecretKey: cfg.Gateway.SecretKey,
			Client:    &http.Client{Timeout: cfg.Gateway.Timeout},
			Logger:    gateway.HostedLogger(eventLog),
			Clock:     time.Now,
		})
		if err != nil {
			return nil, fmt.Errorf("build hosted gateway provider: %w", err)
		}
		providers["hosted"] = hosted
	}

	if cfg.Features.EnableStripe && cfg.Gateway.StripeAPIKey != "" {
		stripeProvider, err := gateway.NewStripeProvider(gateway.StripeProviderConfig{
			APIKey:         cfg.Gateway.StripeAPIKey,
			PublishableKey: cfg.Gateway.PublicKey,
			Logger:         gateway.StripeLogger(eventLog),
			Clock:          time.Now,
		})
		if err != nil {
			return nil, fmt.Errorf("build stripe gateway provider: %w", err)
		}
		providers["stripe"] = stripeProvider
	}

	if len(providers) == 0 {
		return nil, fmt.Errorf("no gateway provider configured")
	}

	var opts []gateway.ManagerOption
	if cfg.Gateway.Provider != "" {
		opts = append(opts, gateway.WithDefaultProvider(cfg.Gateway.Provider))
	}
	manager, err := gateway.NewManager(providers, opts...)
	if err != nil {
		return nil, fmt.Errorf("build gateway manager: %w", err)
	}
	return manager, nil
}
