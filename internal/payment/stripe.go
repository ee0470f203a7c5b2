package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// StripeProvider talks to Stripe Checkout
type StripeProvider struct {
	api           *client.API
	webhookSecret string
	logger        *zap.Logger
}

// NewStripeProvider creates a provider bound to one secret key
func NewStripeProvider(secretKey, webhookSecret string) *StripeProvider {
	return newStripeProvider(client.New(secretKey, nil), webhookSecret)
}

func newStripeProvider(api *client.API, webhookSecret string) *StripeProvider {
	return &StripeProvider{
		api:           api,
		webhookSecret: webhookSecret,
		logger:        util.GetLogger(),
	}
}

// CreateCheckoutSession creates a payment-mode hosted checkout session
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req *CheckoutSessionRequest) (*CheckoutSession, error) {
	ctx, span := util.StartSpan(ctx, "StripeProvider.CreateCheckoutSession",
		attribute.Int("line_items", len(req.LineItems)))
	defer span.End()

	start := time.Now()
	defer func() {
		util.ProviderLatency.WithLabelValues("create_session").Observe(time.Since(start).Seconds())
	}()

	params := buildSessionParams(req)
	params.Context = ctx

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, util.RecordError(span, providerErr(err))
	}

	p.logger.Info("Checkout session created", zap.String("stripe_session_id", sess.ID))
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// GetCheckoutSession retrieves a session with its line items expanded
func (p *StripeProvider) GetCheckoutSession(ctx context.Context, id string) (*SessionDetails, error) {
	ctx, span := util.StartSpan(ctx, "StripeProvider.GetCheckoutSession",
		attribute.String("stripe_session_id", id))
	defer span.End()

	start := time.Now()
	defer func() {
		util.ProviderLatency.WithLabelValues("get_session").Observe(time.Since(start).Seconds())
	}()

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("line_items")

	sess, err := p.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, util.RecordError(span, providerErr(err))
	}
	return sessionDetails(sess), nil
}

// ConstructEvent verifies the Stripe-Signature header and decodes the event
func (p *StripeProvider) ConstructEvent(payload []byte, signature string) (*Event, error) {
	evt, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrSignature, err)
	}

	out := &Event{ID: evt.ID, Type: string(evt.Type)}
	if evt.Data != nil && len(evt.Data.Raw) > 0 {
		var obj struct {
			ID       string            `json:"id"`
			Metadata map[string]string `json:"metadata"`
		}
		if err := json.Unmarshal(evt.Data.Raw, &obj); err != nil {
			return nil, fmt.Errorf("failed to decode event object: %w", err)
		}
		out.ObjectID = obj.ID
		out.Metadata = obj.Metadata
	}
	return out, nil
}

func buildSessionParams(req *CheckoutSessionRequest) *stripe.CheckoutSessionParams {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
	}

	for _, li := range req.LineItems {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(li.Name),
		}
		if li.Description != "" {
			product.Description = stripe.String(li.Description)
		}
		if len(li.Images) > 0 {
			product.Images = stripe.StringSlice(li.Images)
		}

		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(req.Currency),
				ProductData: product,
				UnitAmount:  stripe.Int64(li.UnitAmount),
			},
			Quantity: stripe.Int64(li.Quantity),
		})
	}

	if len(req.AllowedCountries) > 0 {
		params.ShippingAddressCollection = &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice(req.AllowedCountries),
		}
	}

	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	return params
}

func sessionDetails(sess *stripe.CheckoutSession) *SessionDetails {
	d := &SessionDetails{
		ID:            sess.ID,
		PaymentStatus: string(sess.PaymentStatus),
		CustomerEmail: sess.CustomerEmail,
		Currency:      string(sess.Currency),
		AmountTotal:   sess.AmountTotal,
		Metadata:      sess.Metadata,
	}
	if sess.CustomerDetails != nil && sess.CustomerDetails.Email != "" {
		d.CustomerEmail = sess.CustomerDetails.Email
	}
	if sess.PaymentIntent != nil {
		d.PaymentIntentID = sess.PaymentIntent.ID
	}
	if sd := sess.ShippingDetails; sd != nil {
		addr := &models.ShippingAddress{Name: sd.Name}
		if a := sd.Address; a != nil {
			addr.Line1 = a.Line1
			addr.Line2 = a.Line2
			addr.City = a.City
			addr.State = a.State
			addr.PostalCode = a.PostalCode
			addr.Country = a.Country
		}
		d.ShippingAddress = addr
	}
	return d
}

// providerErr wraps a Stripe failure with ErrProvider, keeping the
// provider's own message for the caller.
func providerErr(err error) error {
	var serr *stripe.Error
	if errors.As(err, &serr) && serr.Msg != "" {
		return fmt.Errorf("%w: %s", models.ErrProvider, serr.Msg)
	}
	return fmt.Errorf("%w: %v", models.ErrProvider, err)
}
