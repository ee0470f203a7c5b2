package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storefront/internal/models"
)

// MemoryStore implements Store in process memory. It copies documents on the
// way in and out so callers never share state with the stored copy. Used for
// local development (STORE_DRIVER=memory) and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	carts  map[string]*models.Cart  // sessionID -> cart
	orders map[string]*models.Order // orderID -> order
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		carts:  make(map[string]*models.Cart),
		orders: make(map[string]*models.Order),
	}
}

func copyCart(c *models.Cart) *models.Cart {
	out := *c
	out.Items = models.SnapshotItems(c.Items)
	return &out
}

func copyOrder(o *models.Order) *models.Order {
	out := *o
	out.Items = models.SnapshotItems(o.Items)
	if o.ShippingAddress != nil {
		addr := *o.ShippingAddress
		out.ShippingAddress = &addr
	}
	return &out
}

func (s *MemoryStore) FindCart(_ context.Context, sessionID string) (*models.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cart, ok := s.carts[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: cart %s", models.ErrNotFound, sessionID)
	}
	return copyCart(cart), nil
}

func (s *MemoryStore) FindOrCreateCart(_ context.Context, sessionID string) (*models.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[sessionID]
	if !ok {
		cart = models.NewCart(sessionID, time.Now().UTC())
		s.carts[sessionID] = cart
	}
	return copyCart(cart), nil
}

func (s *MemoryStore) SaveCart(_ context.Context, cart *models.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = cart.LastUpdated
	}
	s.carts[cart.SessionID] = copyCart(cart)
	return nil
}

func (s *MemoryStore) DeleteExpiredCarts(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, cart := range s.carts {
		if !cart.ExpiresAt.After(now) {
			delete(s.carts, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CreateOrder(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.orders {
		if existing.StripeSessionID == order.StripeSessionID {
			return fmt.Errorf("%w: order for stripe session %s", models.ErrDuplicate, order.StripeSessionID)
		}
	}
	if _, ok := s.orders[order.ID]; ok {
		return fmt.Errorf("%w: order %s", models.ErrDuplicate, order.ID)
	}
	s.orders[order.ID] = copyOrder(order)
	return nil
}

func (s *MemoryStore) GetOrderByID(_ context.Context, id string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", models.ErrNotFound, id)
	}
	return copyOrder(order), nil
}

func (s *MemoryStore) GetOrderByStripeSession(_ context.Context, stripeSessionID string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, order := range s.orders {
		if order.StripeSessionID == stripeSessionID {
			return copyOrder(order), nil
		}
	}
	return nil, fmt.Errorf("%w: order %s", models.ErrNotFound, stripeSessionID)
}

func (s *MemoryStore) UpdatePaymentStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return fmt.Errorf("%w: order %s", models.ErrNotFound, id)
	}
	order.PaymentStatus = status
	order.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) AdvanceOrderStatus(_ context.Context, id, from, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok || order.OrderStatus != from {
		return false, nil
	}
	order.OrderStatus = to
	order.UpdatedAt = time.Now().UTC()
	return true, nil
}

// OrderCount returns the number of stored orders.
func (s *MemoryStore) OrderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close(context.Context) error { return nil }
