package store

import (
	"context"
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CartIsolation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	cart, err := s.FindOrCreateCart(ctx, "session_1")
	require.NoError(t, err)

	cart.Items = append(cart.Items, models.CartItem{ProductID: "1", Size: "M", Quantity: 1})

	stored, err := s.FindCart(ctx, "session_1")
	require.NoError(t, err)
	assert.Empty(t, stored.Items, "unsaved changes must not leak into the store")

	require.NoError(t, s.SaveCart(ctx, cart))
	stored, err = s.FindCart(ctx, "session_1")
	require.NoError(t, err)
	assert.Len(t, stored.Items, 1)
}

func TestMemoryStore_DuplicateOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreateOrder(ctx, &models.Order{ID: "o1", StripeSessionID: "cs_1"}))
	err := s.CreateOrder(ctx, &models.Order{ID: "o2", StripeSessionID: "cs_1"})

	assert.ErrorIs(t, err, models.ErrDuplicate)
	assert.Equal(t, 1, s.OrderCount())
}

func TestMemoryStore_AdvanceOrderStatus(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateOrder(ctx, &models.Order{ID: "o1", StripeSessionID: "cs_1", OrderStatus: models.OrderStatusPending}))

	moved, err := s.AdvanceOrderStatus(ctx, "o1", models.OrderStatusPending, models.OrderStatusProcessing)
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = s.AdvanceOrderStatus(ctx, "o1", models.OrderStatusPending, models.OrderStatusProcessing)
	require.NoError(t, err)
	assert.False(t, moved)
}

func TestMemoryStore_DeleteExpiredCarts(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	old := models.NewCart("old", now.Add(-8*24*time.Hour))
	fresh := models.NewCart("fresh", now)
	require.NoError(t, s.SaveCart(ctx, old))
	require.NoError(t, s.SaveCart(ctx, fresh))

	n, err := s.DeleteExpiredCarts(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.FindCart(ctx, "old")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryStore_UpdatePaymentStatusMissing(t *testing.T) {
	s := NewMemoryStore()
	err := s.UpdatePaymentStatus(context.Background(), "nope", models.PaymentStatusPaid)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
