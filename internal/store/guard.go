package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Guarded wraps a Store so that every call runs under a timeout ceiling and a
// circuit breaker. Deadline overruns and an open breaker surface as
// models.ErrStoreUnavailable so callers can fail fast.
type Guarded struct {
	next    Store
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker[any]
}

// NewGuarded wraps next. A non-positive timeout disables the per-call ceiling.
func NewGuarded(next Store, timeout time.Duration) *Guarded {
	logger := util.GetLogger()

	settings := gobreaker.Settings{
		Name:        "store",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Only outages trip the breaker; not-found and duplicates are normal answers.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, models.ErrStoreUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			util.StoreBreakerState.Set(float64(to))
			logger.Warn("Store circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Guarded{
		next:    next,
		timeout: timeout,
		cb:      gobreaker.NewCircuitBreaker[any](settings),
	}
}

func guard[T any](g *Guarded, ctx context.Context, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	start := time.Now()
	defer func() {
		util.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	res, err := g.cb.Execute(func() (any, error) {
		callCtx := ctx
		if g.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}

		v, err := fn(callCtx)
		if err != nil && !errors.Is(err, models.ErrStoreUnavailable) &&
			errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %s timed out: %v", models.ErrStoreUnavailable, op, err)
		}
		return v, err
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %s: %v", models.ErrStoreUnavailable, op, err)
	}
	if err != nil {
		if errors.Is(err, models.ErrStoreUnavailable) {
			util.StoreUnavailableTotal.WithLabelValues(op).Inc()
		}
		return zero, err
	}

	v, _ := res.(T)
	return v, nil
}

func guardErr(g *Guarded, ctx context.Context, op string, fn func(context.Context) error) error {
	_, err := guard(g, ctx, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func (g *Guarded) FindCart(ctx context.Context, sessionID string) (*models.Cart, error) {
	return guard(g, ctx, "find_cart", func(ctx context.Context) (*models.Cart, error) {
		return g.next.FindCart(ctx, sessionID)
	})
}

func (g *Guarded) FindOrCreateCart(ctx context.Context, sessionID string) (*models.Cart, error) {
	return guard(g, ctx, "find_or_create_cart", func(ctx context.Context) (*models.Cart, error) {
		return g.next.FindOrCreateCart(ctx, sessionID)
	})
}

func (g *Guarded) SaveCart(ctx context.Context, cart *models.Cart) error {
	return guardErr(g, ctx, "save_cart", func(ctx context.Context) error {
		return g.next.SaveCart(ctx, cart)
	})
}

func (g *Guarded) DeleteExpiredCarts(ctx context.Context, now time.Time) (int64, error) {
	return guard(g, ctx, "delete_expired_carts", func(ctx context.Context) (int64, error) {
		return g.next.DeleteExpiredCarts(ctx, now)
	})
}

func (g *Guarded) CreateOrder(ctx context.Context, order *models.Order) error {
	return guardErr(g, ctx, "create_order", func(ctx context.Context) error {
		return g.next.CreateOrder(ctx, order)
	})
}

func (g *Guarded) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	return guard(g, ctx, "get_order", func(ctx context.Context) (*models.Order, error) {
		return g.next.GetOrderByID(ctx, id)
	})
}

func (g *Guarded) GetOrderByStripeSession(ctx context.Context, stripeSessionID string) (*models.Order, error) {
	return guard(g, ctx, "get_order_by_session", func(ctx context.Context) (*models.Order, error) {
		return g.next.GetOrderByStripeSession(ctx, stripeSessionID)
	})
}

func (g *Guarded) UpdatePaymentStatus(ctx context.Context, id, status string) error {
	return guardErr(g, ctx, "update_payment_status", func(ctx context.Context) error {
		return g.next.UpdatePaymentStatus(ctx, id, status)
	})
}

func (g *Guarded) AdvanceOrderStatus(ctx context.Context, id, from, to string) (bool, error) {
	return guard(g, ctx, "advance_order_status", func(ctx context.Context) (bool, error) {
		return g.next.AdvanceOrderStatus(ctx, id, from, to)
	})
}

func (g *Guarded) Ping(ctx context.Context) error {
	return guardErr(g, ctx, "ping", g.next.Ping)
}

func (g *Guarded) Close(ctx context.Context) error {
	return g.next.Close(ctx)
}
