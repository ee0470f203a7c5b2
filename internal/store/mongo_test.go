package store

import (
	"context"
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func setupMongo(t *testing.T) *MongoStore {
	if testing.Short() {
		t.Skip("Integration test - requires docker")
	}
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	s, err := NewMongoStore(ctx, uri, "storefront_test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(ctx) })

	return s
}

func TestMongoStore_FindOrCreateAndSave(t *testing.T) {
	s := setupMongo(t)
	ctx := context.Background()

	_, err := s.FindCart(ctx, "session_1")
	assert.ErrorIs(t, err, models.ErrNotFound)

	cart, err := s.FindOrCreateCart(ctx, "session_1")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	require.NoError(t, cart.AddItem(models.Product{ID: "1", Name: "Shadow Tee", Price: 45.99, Image: "https://x/img.png"}, "M", 2))
	cart.Touch(time.Now().UTC())
	require.NoError(t, s.SaveCart(ctx, cart))

	again, err := s.FindOrCreateCart(ctx, "session_1")
	require.NoError(t, err)
	require.Len(t, again.Items, 1)
	assert.Equal(t, 2, again.Items[0].Quantity)
	assert.Equal(t, 91.98, again.Total)
}

func TestMongoStore_OrderUniquePerStripeSession(t *testing.T) {
	s := setupMongo(t)
	ctx := context.Background()

	order := &models.Order{
		ID:              uuid.NewString(),
		StripeSessionID: "cs_test_1",
		CustomerEmail:   "buyer@example.com",
		Items:           models.CartItems{{ProductID: "1", Size: "M", Quantity: 1, Price: 10}},
		PaymentStatus:   models.PaymentStatusPending,
		OrderStatus:     models.OrderStatusPending,
	}
	require.NoError(t, s.CreateOrder(ctx, order))

	dup := *order
	dup.ID = uuid.NewString()
	assert.ErrorIs(t, s.CreateOrder(ctx, &dup), models.ErrDuplicate)

	require.NoError(t, s.UpdatePaymentStatus(ctx, order.ID, models.PaymentStatusPaid))
	got, err := s.GetOrderByStripeSession(ctx, "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, got.PaymentStatus)
	assert.Equal(t, "buyer@example.com", got.CustomerEmail)
	assert.Len(t, got.Items, 1)
}

func TestMongoStore_AdvanceOrderStatus(t *testing.T) {
	s := setupMongo(t)
	ctx := context.Background()

	order := &models.Order{ID: uuid.NewString(), StripeSessionID: "cs_test_2", OrderStatus: models.OrderStatusPending}
	require.NoError(t, s.CreateOrder(ctx, order))

	moved, err := s.AdvanceOrderStatus(ctx, order.ID, models.OrderStatusPending, models.OrderStatusProcessing)
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = s.AdvanceOrderStatus(ctx, order.ID, models.OrderStatusPending, models.OrderStatusProcessing)
	require.NoError(t, err)
	assert.False(t, moved)
}
