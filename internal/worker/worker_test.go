package worker

import (
	"context"
	"testing"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorker(t *testing.T) (*FulfillmentWorker, *store.MemoryStore) {
	mem := store.NewMemoryStore()
	require.NoError(t, mem.CreateOrder(context.Background(), &models.Order{
		ID:              "order_1",
		StripeSessionID: "cs_1",
		PaymentStatus:   models.PaymentStatusPending,
		OrderStatus:     models.OrderStatusPending,
	}))
	return NewFulfillmentWorker(nil, mem), mem
}

func TestFulfillment_PaidOrderMovesToProcessing(t *testing.T) {
	w, mem := newTestWorker(t)
	ctx := context.Background()

	err := w.HandleOrderCreated(ctx, &models.OrderCreatedEvent{OrderID: "order_1", PaymentStatus: models.PaymentStatusPaid})
	require.NoError(t, err)

	order, err := mem.GetOrderByID(ctx, "order_1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusProcessing, order.OrderStatus)

	// Replays leave the order where it is.
	require.NoError(t, w.HandleOrderCreated(ctx, &models.OrderCreatedEvent{OrderID: "order_1", PaymentStatus: models.PaymentStatusPaid}))
	order, _ = mem.GetOrderByID(ctx, "order_1")
	assert.Equal(t, models.OrderStatusProcessing, order.OrderStatus)
}

func TestFulfillment_UnpaidOrderStaysPending(t *testing.T) {
	w, mem := newTestWorker(t)
	ctx := context.Background()

	require.NoError(t, w.HandleOrderCreated(ctx, &models.OrderCreatedEvent{OrderID: "order_1", PaymentStatus: models.PaymentStatusPending}))
	require.NoError(t, w.HandleOrderPaymentUpdated(ctx, &models.OrderPaymentUpdatedEvent{OrderID: "order_1", PaymentStatus: models.PaymentStatusFailed}))

	order, err := mem.GetOrderByID(ctx, "order_1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.OrderStatus)

	require.NoError(t, w.HandleOrderPaymentUpdated(ctx, &models.OrderPaymentUpdatedEvent{OrderID: "order_1", PaymentStatus: models.PaymentStatusPaid}))
	order, _ = mem.GetOrderByID(ctx, "order_1")
	assert.Equal(t, models.OrderStatusProcessing, order.OrderStatus)
}

func TestExpirySweeper_DeletesExpiredCarts(t *testing.T) {
	mem := store.NewMemoryStore()
	ctx := context.Background()

	stale := models.NewCart("stale", time.Now().UTC().Add(-8*24*time.Hour))
	require.NoError(t, mem.SaveCart(ctx, stale))
	fresh := models.NewCart("fresh", time.Now().UTC())
	require.NoError(t, mem.SaveCart(ctx, fresh))

	sweeper := NewExpirySweeper(mem, time.Hour)
	assert.Equal(t, int64(1), sweeper.Sweep(ctx))

	_, err := mem.FindCart(ctx, "stale")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = mem.FindCart(ctx, "fresh")
	assert.NoError(t, err)
}
