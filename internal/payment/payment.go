package payment

import (
	"context"

	"storefront/internal/models"
)

// Event types the reconciler acts on
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventPaymentIntentSucceeded   = "payment_intent.succeeded"
	EventPaymentIntentFailed      = "payment_intent.payment_failed"
)

// LineItem is one priced line on a hosted checkout page.
// UnitAmount is in minor units.
type LineItem struct {
	Name        string
	Description string
	Images      []string
	UnitAmount  int64
	Quantity    int64
}

// CheckoutSessionRequest describes a hosted checkout session to create
type CheckoutSessionRequest struct {
	Currency         string
	LineItems        []LineItem
	SuccessURL       string
	CancelURL        string
	Metadata         map[string]string
	AllowedCountries []string
}

// CheckoutSession is the provider's reply to a create call
type CheckoutSession struct {
	ID  string
	URL string
}

// SessionDetails is the full state of a checkout session as read back from
// the provider. AmountTotal is in minor units.
type SessionDetails struct {
	ID              string
	PaymentStatus   string
	PaymentIntentID string
	CustomerEmail   string
	Currency        string
	AmountTotal     int64
	Metadata        map[string]string
	ShippingAddress *models.ShippingAddress
}

// Event is a verified webhook event. ObjectID and Metadata come from the
// event's data object (a checkout session or a payment intent).
type Event struct {
	ID       string
	Type     string
	ObjectID string
	Metadata map[string]string
}

// Provider is the hosted payment provider
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req *CheckoutSessionRequest) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*SessionDetails, error)
	// ConstructEvent verifies signature over the raw payload and decodes it.
	// It returns models.ErrSignature when verification fails.
	ConstructEvent(payload []byte, signature string) (*Event, error)
}
