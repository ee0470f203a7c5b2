package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/models"
	"storefront/internal/payment"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// processedEventTTL bounds how long delivered event ids are remembered.
// Stripe stops retrying well within this window.
const processedEventTTL = 72 * time.Hour

// publishTimeout caps broker writes made after state has been committed.
const publishTimeout = 2 * time.Second

// EventPublisher publishes order domain events
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderPaymentUpdated(ctx context.Context, event *models.OrderPaymentUpdatedEvent) error
	PublishCartCleared(ctx context.Context, event *models.CartClearedEvent) error
}

// EventDeduper remembers webhook event ids that were fully processed
type EventDeduper interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string, ttl time.Duration) error
}

// WebhookOutcome describes what a delivered event did
type WebhookOutcome string

const (
	OutcomeProcessed WebhookOutcome = "processed"
	OutcomeNoop      WebhookOutcome = "noop"
	OutcomeDuplicate WebhookOutcome = "duplicate"
	OutcomeIgnored   WebhookOutcome = "ignored"
)

// WebhookService reconciles provider events into orders
type WebhookService struct {
	carts     store.CartRepository
	orders    store.OrderRepository
	cartSvc   *CartService
	provider  payment.Provider
	pricing   models.PricingRules
	dedupe    EventDeduper
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time

	publishTimeout time.Duration
}

// NewWebhookService creates a new webhook service. dedupe and publisher may be nil.
func NewWebhookService(
	carts store.CartRepository,
	orders store.OrderRepository,
	cartSvc *CartService,
	provider payment.Provider,
	pricing models.PricingRules,
	dedupe EventDeduper,
	publisher EventPublisher,
) *WebhookService {
	return &WebhookService{
		carts:     carts,
		orders:    orders,
		cartSvc:   cartSvc,
		provider:  provider,
		pricing:   pricing,
		dedupe:    dedupe,
		publisher: publisher,
		logger:    util.GetLogger(),
		now:       func() time.Time { return time.Now().UTC() },

		publishTimeout: publishTimeout,
	}
}

// HandleWebhook verifies and applies one delivery. A returned error other
// than models.ErrSignature means the provider should retry.
func (s *WebhookService) HandleWebhook(ctx context.Context, payload []byte, signature string) (WebhookOutcome, error) {
	ctx, span := util.StartSpan(ctx, "WebhookService.HandleWebhook")
	defer span.End()

	evt, err := s.provider.ConstructEvent(payload, signature)
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		s.logger.Warn("Webhook signature verification failed", zap.Error(err))
		if !errors.Is(err, models.ErrSignature) {
			err = fmt.Errorf("%w: %v", models.ErrSignature, err)
		}
		return "", err
	}
	span.SetAttributes(
		attribute.String("event_id", evt.ID),
		attribute.String("event_type", evt.Type))

	if s.alreadyProcessed(ctx, evt) {
		util.WebhookEventsTotal.WithLabelValues(evt.Type, string(OutcomeDuplicate)).Inc()
		return OutcomeDuplicate, nil
	}

	var outcome WebhookOutcome
	switch evt.Type {
	case payment.EventCheckoutSessionCompleted:
		outcome, err = s.handleCheckoutCompleted(ctx, evt)
	case payment.EventPaymentIntentSucceeded:
		outcome, err = s.handlePaymentIntent(ctx, evt, models.PaymentStatusPaid)
	case payment.EventPaymentIntentFailed:
		outcome, err = s.handlePaymentIntent(ctx, evt, models.PaymentStatusFailed)
	default:
		s.logger.Info("Unhandled webhook event type", zap.String("type", evt.Type))
		outcome = OutcomeIgnored
	}

	if err != nil {
		util.WebhookEventsTotal.WithLabelValues(evt.Type, "error").Inc()
		s.logger.Error("Webhook processing failed",
			zap.String("event_id", evt.ID),
			zap.String("type", evt.Type),
			zap.Error(err))
		return "", util.RecordError(span, err)
	}

	s.markProcessed(ctx, evt)
	util.WebhookEventsTotal.WithLabelValues(evt.Type, string(outcome)).Inc()
	return outcome, nil
}

func (s *WebhookService) alreadyProcessed(ctx context.Context, evt *payment.Event) bool {
	if s.dedupe == nil || evt.ID == "" {
		return false
	}
	done, err := s.dedupe.IsEventProcessed(ctx, evt.ID)
	if err != nil {
		s.logger.Warn("Event dedupe lookup failed", zap.String("event_id", evt.ID), zap.Error(err))
		return false
	}
	if done {
		s.logger.Info("Event already processed", zap.String("event_id", evt.ID))
	}
	return done
}

func (s *WebhookService) markProcessed(ctx context.Context, evt *payment.Event) {
	if s.dedupe == nil || evt.ID == "" {
		return
	}
	if err := s.dedupe.MarkEventProcessed(ctx, evt.ID, evt.Type, processedEventTTL); err != nil {
		s.logger.Warn("Failed to mark event processed", zap.String("event_id", evt.ID), zap.Error(err))
	}
}

func (s *WebhookService) handleCheckoutCompleted(ctx context.Context, evt *payment.Event) (WebhookOutcome, error) {
	sess, err := s.provider.GetCheckoutSession(ctx, evt.ObjectID)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve checkout session %s: %w", evt.ObjectID, err)
	}

	cartSessionID := sess.Metadata[metadataCartSessionID]
	if cartSessionID == "" {
		cartSessionID = evt.Metadata[metadataCartSessionID]
	}
	if cartSessionID == "" {
		s.logger.Info("Completed session has no cart reference", zap.String("stripe_session_id", sess.ID))
		return OutcomeNoop, nil
	}

	cart, err := s.carts.FindCart(ctx, cartSessionID)
	if errors.Is(err, models.ErrNotFound) {
		return OutcomeNoop, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load cart %s: %w", cartSessionID, err)
	}
	if cart.IsEmpty() {
		return OutcomeNoop, nil
	}

	order := s.orderFromSession(sess, cart)
	if err := s.orders.CreateOrder(ctx, order); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return s.resumeCheckoutCompleted(ctx, sess.ID, cart)
		}
		return "", fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("stripe_session_id", sess.ID),
		zap.Float64("total", order.Total))

	if err := s.clearOrderedCart(ctx, cartSessionID); err != nil {
		return "", err
	}

	pubCtx, cancel := s.publishContext(ctx)
	defer cancel()
	s.publishOrderCreated(pubCtx, order)
	s.publishCartCleared(pubCtx, cartSessionID, order.ID)

	return OutcomeProcessed, nil
}

// resumeCheckoutCompleted finishes a delivery whose order was already
// written but whose cart clear failed. The cart is cleared only when it has
// not changed since the order was taken; a later cart on the same session is
// left alone. Events are published after the clear, so they go out here.
func (s *WebhookService) resumeCheckoutCompleted(ctx context.Context, stripeSessionID string, cart *models.Cart) (WebhookOutcome, error) {
	existing, err := s.orders.GetOrderByStripeSession(ctx, stripeSessionID)
	if err != nil {
		return "", fmt.Errorf("failed to load existing order for %s: %w", stripeSessionID, err)
	}

	if cart.LastUpdated.After(existing.CreatedAt) {
		s.logger.Info("Order already exists for checkout session",
			zap.String("stripe_session_id", stripeSessionID),
			zap.String("order_id", existing.ID))
		return OutcomeDuplicate, nil
	}

	s.logger.Info("Clearing cart left behind by an earlier delivery",
		zap.String("stripe_session_id", stripeSessionID),
		zap.String("order_id", existing.ID),
		zap.String("session_id", cart.SessionID))
	if err := s.clearOrderedCart(ctx, cart.SessionID); err != nil {
		return "", err
	}

	pubCtx, cancel := s.publishContext(ctx)
	defer cancel()
	s.publishOrderCreated(pubCtx, existing)
	s.publishCartCleared(pubCtx, cart.SessionID, existing.ID)

	return OutcomeProcessed, nil
}

func (s *WebhookService) clearOrderedCart(ctx context.Context, sessionID string) error {
	if _, err := s.cartSvc.ClearCart(ctx, sessionID); err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to clear cart %s: %w", sessionID, err)
	}
	return nil
}

// publishContext detaches event publishing from the request so a dropped
// provider connection does not cancel it, and bounds how long it may block.
func (s *WebhookService) publishContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
}

func (s *WebhookService) orderFromSession(sess *payment.SessionDetails, cart *models.Cart) *models.Order {
	quote := s.pricing.Quote(cart.Total)
	now := s.now()

	status := models.PaymentStatusPending
	if sess.PaymentStatus == "paid" {
		status = models.PaymentStatusPaid
	}

	currency := sess.Currency
	if currency == "" {
		currency = s.pricing.Currency
	}

	return &models.Order{
		ID:                    uuid.New().String(),
		StripeSessionID:       sess.ID,
		StripePaymentIntentID: sess.PaymentIntentID,
		CustomerEmail:         sess.CustomerEmail,
		Items:                 models.SnapshotItems(cart.Items),
		Subtotal:              quote.Subtotal.InexactFloat64(),
		Shipping:              quote.Shipping.InexactFloat64(),
		Tax:                   quote.Tax.InexactFloat64(),
		Total:                 quote.Total.InexactFloat64(),
		Currency:              strings.ToUpper(currency),
		PaymentStatus:         status,
		ShippingAddress:       sess.ShippingAddress,
		OrderStatus:           models.OrderStatusPending,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

func (s *WebhookService) handlePaymentIntent(ctx context.Context, evt *payment.Event, status string) (WebhookOutcome, error) {
	orderID := evt.Metadata["orderId"]
	if orderID == "" {
		return OutcomeNoop, nil
	}

	err := s.orders.UpdatePaymentStatus(ctx, orderID, status)
	if errors.Is(err, models.ErrNotFound) {
		s.logger.Warn("Payment event references unknown order",
			zap.String("order_id", orderID),
			zap.String("payment_intent_id", evt.ObjectID))
		return OutcomeNoop, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to update payment status of order %s: %w", orderID, err)
	}

	util.OrderPaymentUpdatesTotal.WithLabelValues(status).Inc()
	s.logger.Info("Order payment status updated",
		zap.String("order_id", orderID),
		zap.String("payment_status", status))

	if s.publisher != nil {
		event := &models.OrderPaymentUpdatedEvent{
			BaseEvent:     s.baseEvent(models.EventTypeOrderPaymentUpdated),
			OrderID:       orderID,
			PaymentStatus: status,
		}
		pubCtx, cancel := s.publishContext(ctx)
		defer cancel()
		if err := s.publisher.PublishOrderPaymentUpdated(pubCtx, event); err != nil {
			s.logger.Error("Failed to publish OrderPaymentUpdated event", zap.Error(err))
		}
	}
	return OutcomeProcessed, nil
}

func (s *WebhookService) publishOrderCreated(ctx context.Context, order *models.Order) {
	if s.publisher == nil {
		return
	}

	items := make([]models.OrderItemData, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, models.OrderItemData{
			ProductID: item.ProductID,
			Size:      item.Size,
			Quantity:  item.Quantity,
			UnitPrice: item.Price,
		})
	}

	event := &models.OrderCreatedEvent{
		BaseEvent:       s.baseEvent(models.EventTypeOrderCreated),
		OrderID:         order.ID,
		StripeSessionID: order.StripeSessionID,
		CustomerEmail:   order.CustomerEmail,
		Total:           order.Total,
		Currency:        order.Currency,
		PaymentStatus:   order.PaymentStatus,
		Items:           items,
	}
	if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}
}

func (s *WebhookService) publishCartCleared(ctx context.Context, sessionID, orderID string) {
	if s.publisher == nil {
		return
	}
	event := &models.CartClearedEvent{
		BaseEvent: s.baseEvent(models.EventTypeCartCleared),
		SessionID: sessionID,
		OrderID:   orderID,
	}
	if err := s.publisher.PublishCartCleared(ctx, event); err != nil {
		s.logger.Error("Failed to publish CartCleared event", zap.Error(err))
	}
}

func (s *WebhookService) baseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: s.now(),
	}
}
