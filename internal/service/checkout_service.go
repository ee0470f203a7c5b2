package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/models"
	"storefront/internal/payment"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const metadataCartSessionID = "cartSessionId"

// shippingCountries are the countries the hosted page collects addresses for
var shippingCountries = []string{"CA", "US"}

// CheckoutService starts hosted checkout sessions for carts
type CheckoutService struct {
	carts     store.CartRepository
	orders    store.OrderRepository
	provider  payment.Provider
	pricing   models.PricingRules
	clientURL string
	logger    *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(
	carts store.CartRepository,
	orders store.OrderRepository,
	provider payment.Provider,
	pricing models.PricingRules,
	clientURL string,
) *CheckoutService {
	return &CheckoutService{
		carts:     carts,
		orders:    orders,
		provider:  provider,
		pricing:   pricing,
		clientURL: strings.TrimRight(clientURL, "/"),
		logger:    util.GetLogger(),
	}
}

// CreateSessionInput is a checkout request for one cart session.
// BaseURL is used to make relative product image paths absolute.
type CreateSessionInput struct {
	SessionID  string
	SuccessURL string
	CancelURL  string
	BaseURL    string
}

// CreateSessionResult carries the provider session id and hosted page URL
type CreateSessionResult struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// CreateSession builds line items from the cart and asks the provider for a
// hosted checkout page. An empty or missing cart never reaches the provider.
func (s *CheckoutService) CreateSession(ctx context.Context, in CreateSessionInput) (*CreateSessionResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CreateSession",
		attribute.String("session_id", in.SessionID))
	defer span.End()

	if err := models.ValidateSessionID(in.SessionID); err != nil {
		util.CheckoutSessionsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	cart, err := s.carts.FindCart(ctx, in.SessionID)
	if errors.Is(err, models.ErrNotFound) || (err == nil && cart.IsEmpty()) {
		util.CheckoutSessionsTotal.WithLabelValues("empty_cart").Inc()
		return nil, fmt.Errorf("%w: cannot checkout with an empty cart", models.ErrEmptyCart)
	}
	if err != nil {
		util.CheckoutSessionsTotal.WithLabelValues("store_error").Inc()
		return nil, util.RecordError(span, err)
	}

	req := s.buildRequest(cart, in)
	sess, err := s.provider.CreateCheckoutSession(ctx, req)
	if err != nil {
		util.CheckoutSessionsTotal.WithLabelValues("provider_error").Inc()
		s.logger.Error("Checkout session creation failed",
			zap.String("session_id", in.SessionID),
			zap.Error(err))
		if !errors.Is(err, models.ErrProvider) {
			err = fmt.Errorf("%w: %v", models.ErrProvider, err)
		}
		return nil, util.RecordError(span, err)
	}

	util.CheckoutSessionsTotal.WithLabelValues("created").Inc()
	s.logger.Info("Checkout session started",
		zap.String("session_id", in.SessionID),
		zap.String("stripe_session_id", sess.ID),
		zap.Int("line_items", len(req.LineItems)))

	return &CreateSessionResult{SessionID: sess.ID, URL: sess.URL}, nil
}

func (s *CheckoutService) buildRequest(cart *models.Cart, in CreateSessionInput) *payment.CheckoutSessionRequest {
	quote := s.pricing.Quote(cart.Total)

	items := make([]payment.LineItem, 0, len(cart.Items)+2)
	for _, item := range cart.Items {
		items = append(items, payment.LineItem{
			Name:        item.Name,
			Description: "Size: " + item.Size,
			Images:      []string{absoluteImage(in.BaseURL, item.Image)},
			UnitAmount:  models.ToMinorUnits(decimal.NewFromFloat(item.Price)),
			Quantity:    int64(item.Quantity),
		})
	}

	items = append(items, payment.LineItem{
		Name:        "Shipping",
		Description: "Standard shipping",
		UnitAmount:  models.ToMinorUnits(quote.Shipping),
		Quantity:    1,
	})
	if quote.Tax.IsPositive() {
		items = append(items, payment.LineItem{
			Name:        "Tax",
			Description: "Sales tax",
			UnitAmount:  models.ToMinorUnits(quote.Tax),
			Quantity:    1,
		})
	}

	successURL := in.SuccessURL
	if successURL == "" {
		successURL = s.clientURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}"
	}
	cancelURL := in.CancelURL
	if cancelURL == "" {
		cancelURL = s.clientURL + "/cart"
	}

	return &payment.CheckoutSessionRequest{
		Currency:         s.pricing.Currency,
		LineItems:        items,
		SuccessURL:       successURL,
		CancelURL:        cancelURL,
		Metadata:         map[string]string{metadataCartSessionID: cart.SessionID},
		AllowedCountries: shippingCountries,
	}
}

// SessionStatus is the provider-side view of a checkout session, plus the
// order it produced if the webhook has already run.
type SessionStatus struct {
	ID            string        `json:"id"`
	PaymentStatus string        `json:"payment_status"`
	CustomerEmail string        `json:"customer_email"`
	AmountTotal   float64       `json:"amount_total"`
	Currency      string        `json:"currency"`
	Order         *OrderSummary `json:"-"`
}

// OrderSummary is the slice of an order shown on the success page
type OrderSummary struct {
	ID            string `json:"id"`
	OrderStatus   string `json:"orderStatus"`
	PaymentStatus string `json:"paymentStatus"`
}

// VerifySession reads a checkout session back from the provider and looks up
// the order reconciled from it.
func (s *CheckoutService) VerifySession(ctx context.Context, checkoutSessionID string) (*SessionStatus, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.VerifySession",
		attribute.String("stripe_session_id", checkoutSessionID))
	defer span.End()

	if strings.TrimSpace(checkoutSessionID) == "" {
		return nil, fmt.Errorf("%w: checkout session id is required", models.ErrValidation)
	}

	sess, err := s.provider.GetCheckoutSession(ctx, checkoutSessionID)
	if err != nil {
		if !errors.Is(err, models.ErrProvider) {
			err = fmt.Errorf("%w: %v", models.ErrProvider, err)
		}
		return nil, util.RecordError(span, err)
	}

	status := &SessionStatus{
		ID:            sess.ID,
		PaymentStatus: sess.PaymentStatus,
		CustomerEmail: sess.CustomerEmail,
		AmountTotal:   models.FromMinorUnits(sess.AmountTotal),
		Currency:      sess.Currency,
	}

	order, err := s.orders.GetOrderByStripeSession(ctx, sess.ID)
	switch {
	case err == nil:
		status.Order = &OrderSummary{
			ID:            order.ID,
			OrderStatus:   order.OrderStatus,
			PaymentStatus: order.PaymentStatus,
		}
	case errors.Is(err, models.ErrNotFound):
	default:
		return nil, util.RecordError(span, err)
	}

	return status, nil
}

// absoluteImage prefixes root-relative image paths with baseURL
func absoluteImage(baseURL, image string) string {
	if strings.HasPrefix(image, "/") && baseURL != "" {
		return strings.TrimRight(baseURL, "/") + image
	}
	return image
}
