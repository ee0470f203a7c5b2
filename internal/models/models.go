package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CartItem is a snapshot of a product placed in a cart.
// Price is the unit price at the time the item was added.
type CartItem struct {
	ProductID string  `bson:"productId" json:"productId"`
	Name      string  `bson:"name" json:"name"`
	Price     float64 `bson:"price" json:"price"`
	Image     string  `bson:"image" json:"image"`
	Size      string  `bson:"size" json:"size"`
	Quantity  int     `bson:"quantity" json:"quantity"`
	InStock   bool    `bson:"inStock" json:"inStock"`
}

// CartItems is stored as a JSONB column by the SQL backend.
type CartItems []CartItem

// Value implements driver.Valuer
func (ci CartItems) Value() (driver.Value, error) {
	if ci == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(ci)
}

// Scan implements sql.Scanner
func (ci *CartItems) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*ci = CartItems{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported items column type %T", src)
	}
	return json.Unmarshal(data, ci)
}

// Cart is the session-scoped shopping cart document.
// Total and ItemCount are derived from Items; see Recalculate.
type Cart struct {
	SessionID   string    `bson:"sessionId" db:"session_id" json:"sessionId"`
	Items       CartItems `bson:"items" db:"items" json:"items"`
	Total       float64   `bson:"total" db:"total" json:"total"`
	ItemCount   int       `bson:"itemCount" db:"item_count" json:"itemCount"`
	LastUpdated time.Time `bson:"lastUpdated" db:"last_updated" json:"lastUpdated"`
	ExpiresAt   time.Time `bson:"expiresAt" db:"expires_at" json:"expiresAt"`
	CreatedAt   time.Time `bson:"createdAt" db:"created_at" json:"-"`
}

// Product is the catalog data a client sends when adding to cart.
type Product struct {
	ID      string
	Name    string
	Price   float64
	Image   string
	InStock bool
}

// ShippingAddress as collected by the hosted checkout page
type ShippingAddress struct {
	Name       string `bson:"name,omitempty" json:"name,omitempty"`
	Line1      string `bson:"line1,omitempty" json:"line1,omitempty"`
	Line2      string `bson:"line2,omitempty" json:"line2,omitempty"`
	City       string `bson:"city,omitempty" json:"city,omitempty"`
	State      string `bson:"state,omitempty" json:"state,omitempty"`
	PostalCode string `bson:"postalCode,omitempty" json:"postalCode,omitempty"`
	Country    string `bson:"country,omitempty" json:"country,omitempty"`
}

// Value implements driver.Valuer
func (a *ShippingAddress) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner
func (a *ShippingAddress) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return fmt.Errorf("unsupported shipping_address column type %T", src)
	}
}

// Order is the immutable record of a completed checkout session.
// Only PaymentStatus and OrderStatus change after creation.
type Order struct {
	ID                    string           `bson:"_id" db:"id" json:"id"`
	StripeSessionID       string           `bson:"stripeSessionId" db:"stripe_session_id" json:"stripeSessionId"`
	StripePaymentIntentID string           `bson:"stripePaymentIntentId,omitempty" db:"stripe_payment_intent_id" json:"stripePaymentIntentId,omitempty"`
	CustomerEmail         string           `bson:"customerEmail" db:"customer_email" json:"customerEmail"`
	Items                 CartItems        `bson:"items" db:"items" json:"items"`
	Subtotal              float64          `bson:"subtotal" db:"subtotal" json:"subtotal"`
	Shipping              float64          `bson:"shipping" db:"shipping" json:"shipping"`
	Tax                   float64          `bson:"tax" db:"tax" json:"tax"`
	Total                 float64          `bson:"total" db:"total" json:"total"`
	Currency              string           `bson:"currency" db:"currency" json:"currency"`
	PaymentStatus         string           `bson:"paymentStatus" db:"payment_status" json:"paymentStatus"`
	ShippingAddress       *ShippingAddress `bson:"shippingAddress,omitempty" db:"shipping_address" json:"shippingAddress,omitempty"`
	OrderStatus           string           `bson:"orderStatus" db:"order_status" json:"orderStatus"`
	CreatedAt             time.Time        `bson:"createdAt" db:"created_at" json:"createdAt"`
	UpdatedAt             time.Time        `bson:"updatedAt" db:"updated_at" json:"updatedAt"`
}

// Payment statuses
const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

// Order statuses
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

// ValidPaymentStatus reports whether s is a known payment status.
func ValidPaymentStatus(s string) bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// SnapshotItems returns a deep copy of items so an order never shares
// backing storage with a live cart.
func SnapshotItems(items []CartItem) CartItems {
	out := make(CartItems, len(items))
	copy(out, items)
	return out
}
