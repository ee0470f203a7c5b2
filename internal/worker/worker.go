package worker

import (
	"context"
	"time"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// FulfillmentWorker moves paid orders into processing as order events arrive
type FulfillmentWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	orders       store.OrderRepository
	logger       *zap.Logger
}

// NewFulfillmentWorker creates a new fulfillment worker
func NewFulfillmentWorker(consumer *broker.Consumer, orders store.OrderRepository) *FulfillmentWorker {
	w := &FulfillmentWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		orders:       orders,
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnOrderCreated(w.HandleOrderCreated)
	w.eventHandler.OnOrderPaymentUpdated(w.HandleOrderPaymentUpdated)
	return w
}

// Start consumes until ctx is cancelled
func (w *FulfillmentWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting fulfillment worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop closes the consumer
func (w *FulfillmentWorker) Stop() error {
	w.logger.Info("Stopping fulfillment worker")
	return w.consumer.Close()
}

// HandleOrderCreated starts fulfillment when the order was paid at checkout
func (w *FulfillmentWorker) HandleOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	if event.PaymentStatus != models.PaymentStatusPaid {
		return nil
	}
	return w.startFulfillment(ctx, event.OrderID)
}

// HandleOrderPaymentUpdated starts fulfillment once a pending order is paid
func (w *FulfillmentWorker) HandleOrderPaymentUpdated(ctx context.Context, event *models.OrderPaymentUpdatedEvent) error {
	if event.PaymentStatus != models.PaymentStatusPaid {
		return nil
	}
	return w.startFulfillment(ctx, event.OrderID)
}

// startFulfillment is a conditional transition, so replayed events are harmless.
func (w *FulfillmentWorker) startFulfillment(ctx context.Context, orderID string) error {
	ctx, span := util.StartSpan(ctx, "FulfillmentWorker.startFulfillment")
	defer span.End()

	moved, err := w.orders.AdvanceOrderStatus(ctx, orderID, models.OrderStatusPending, models.OrderStatusProcessing)
	if err != nil {
		return util.RecordError(span, err)
	}
	if moved {
		util.OrdersFulfillmentStartedTotal.Inc()
		w.logger.Info("Order moved to processing", zap.String("order_id", orderID))
	}
	return nil
}

// ExpirySweeper deletes carts past their retention deadline. The Mongo
// backend also expires them through a TTL index, so the sweep is a no-op there.
type ExpirySweeper struct {
	carts    store.CartRepository
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewExpirySweeper creates a sweeper running every interval
func NewExpirySweeper(carts store.CartRepository, interval time.Duration) *ExpirySweeper {
	return &ExpirySweeper{
		carts:    carts,
		interval: interval,
		logger:   util.GetLogger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start sweeps once immediately, then on every tick until ctx is cancelled
func (s *ExpirySweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.Sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep removes expired carts and reports how many were deleted
func (s *ExpirySweeper) Sweep(ctx context.Context) int64 {
	n, err := s.carts.DeleteExpiredCarts(ctx, s.now())
	if err != nil {
		s.logger.Warn("Expired cart sweep failed", zap.Error(err))
		return 0
	}
	if n > 0 {
		s.logger.Info("Expired carts deleted", zap.Int64("count", n))
	}
	return n
}
