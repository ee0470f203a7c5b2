package store

import (
	"context"
	"fmt"
	"time"

	"storefront/config"
	"storefront/internal/models"
)

// CartRepository persists cart documents keyed by session id.
type CartRepository interface {
	// FindCart returns models.ErrNotFound when no cart exists for sessionID.
	FindCart(ctx context.Context, sessionID string) (*models.Cart, error)
	// FindOrCreateCart returns the existing cart or inserts an empty one.
	FindOrCreateCart(ctx context.Context, sessionID string) (*models.Cart, error)
	// SaveCart replaces the whole cart document.
	SaveCart(ctx context.Context, cart *models.Cart) error
	// DeleteExpiredCarts removes carts whose retention window has passed.
	DeleteExpiredCarts(ctx context.Context, now time.Time) (int64, error)
}

// OrderRepository persists orders created by the webhook reconciler.
type OrderRepository interface {
	// CreateOrder returns models.ErrDuplicate when an order for the same
	// provider session already exists.
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderByStripeSession(ctx context.Context, stripeSessionID string) (*models.Order, error)
	// UpdatePaymentStatus touches only payment_status and updated_at.
	UpdatePaymentStatus(ctx context.Context, id, status string) error
	// AdvanceOrderStatus moves an order from one status to another only if it
	// is currently in `from`. It reports whether a transition happened.
	AdvanceOrderStatus(ctx context.Context, id, from, to string) (bool, error)
}

// Store is a single backing document store for carts and orders.
type Store interface {
	CartRepository
	OrderRepository
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Open connects the backend named by cfg.Driver and wraps it with the
// timeout and circuit breaker guard.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		backend Store
		err     error
	)

	switch cfg.Driver {
	case "mongo", "mongodb":
		backend, err = NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case "postgres", "postgresql":
		backend, err = NewPostgresStore(ctx, cfg.PostgresURL)
	case "memory":
		backend = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	return NewGuarded(backend, cfg.Timeout), nil
}
