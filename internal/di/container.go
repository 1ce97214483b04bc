package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loyalcart/api/internal/payments"
	"github.com/loyalcart/api/internal/platform/config"
	"github.com/loyalcart/api/internal/repositories"
	"github.com/loyalcart/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Catalog       services.CatalogService
	Cart          services.CartService
	Checkout      services.CheckoutService
	Orders        services.OrderService
	Payments      services.PaymentService
	Loyalty       services.LoyaltyService
	Notifications services.NotificationService
}

// Deps carries infrastructure built outside the container: the payment
// gateway, webhook verification, and event publishers. Gateway and
// WebhookParser are required; publishers may be nil when eventing is
// disabled (notifications are then stored but not fanned out).
type Deps struct {
	Gateway       *payments.Manager
	WebhookParser payments.WebhookParser
	Notifications services.NotificationPublisher
	OrderEvents   services.OrderEventPublisher
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides
// Firestore-backed registries and a Stripe gateway; tests can supply in-memory
// registries and stub gateways.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, deps Deps) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment gateway is required")
	}
	if deps.WebhookParser == nil {
		return nil, errors.New("webhook parser is required")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	svc, err := buildServices(ctx, reg, cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, deps Deps) (Services, error) {
	var svc Services

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Repository: reg.Catalog(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	loyaltySvc, err := services.NewLoyaltyService(services.LoyaltyServiceDeps{
		Settings: reg.LoyaltySettings(),
		Users:    reg.Users(),
		Clock:    deps.Clock,
		Logger:   deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build loyalty service: %w", err)
	}
	svc.Loyalty = loyaltySvc

	notificationSvc, err := services.NewNotificationService(services.NotificationServiceDeps{
		Repository: reg.Notifications(),
		Publisher:  deps.Notifications,
		Clock:      deps.Clock,
		Logger:     deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build notification service: %w", err)
	}
	svc.Notifications = notificationSvc

	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Orders:        reg.Orders(),
		Payments:      reg.Payments(),
		Catalog:       reg.Catalog(),
		Carts:         reg.Carts(),
		Loyalty:       loyaltySvc,
		Notifications: notificationSvc,
		Gateway:       deps.Gateway,
		Webhooks:      deps.WebhookParser,
		Events:        deps.OrderEvents,
		Clock:         deps.Clock,
		Logger:        deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment service: %w", err)
	}
	svc.Payments = paymentSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Repository:    reg.Orders(),
		Catalog:       reg.Catalog(),
		Loyalty:       loyaltySvc,
		Notifications: notificationSvc,
		Refunder:      paymentSvc,
		Clock:         deps.Clock,
		Logger:        deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	orderNumbers, err := services.NewOrderNumberGenerator(reg.Counters())
	if err != nil {
		return Services{}, fmt.Errorf("build order number generator: %w", err)
	}

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:        reg.Carts(),
		Orders:       reg.Orders(),
		Payments:     reg.Payments(),
		Catalog:      reg.Catalog(),
		Loyalty:      loyaltySvc,
		OrderNumbers: orderNumbers,
		Gateway:      deps.Gateway,
		Confirmer:    paymentSvc,
		Currency:     cfg.Checkout.Currency,
		SuccessURL:   cfg.Checkout.SuccessURL,
		CancelURL:    cfg.Checkout.CancelURL,
		Clock:        deps.Clock,
		Logger:       deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkoutSvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Repository: reg.Carts(),
		Catalog:    reg.Catalog(),
		Clock:      deps.Clock,
		Logger:     deps.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	return svc, nil
}
