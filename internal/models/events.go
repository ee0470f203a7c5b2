package models

import "time"

// Event types
const (
	EventTypeOrderCreated        = "ORDER_CREATED"
	EventTypeOrderPaymentUpdated = "ORDER_PAYMENT_UPDATED"
	EventTypeCartCleared         = "CART_CLEARED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when a completed checkout becomes an order
type OrderCreatedEvent struct {
	BaseEvent
	OrderID         string          `json:"order_id"`
	StripeSessionID string          `json:"stripe_session_id"`
	CustomerEmail   string          `json:"customer_email"`
	Total           float64         `json:"total"`
	Currency        string          `json:"currency"`
	PaymentStatus   string          `json:"payment_status"`
	Items           []OrderItemData `json:"items"`
}

// OrderPaymentUpdatedEvent published when a payment intent event changes an order
type OrderPaymentUpdatedEvent struct {
	BaseEvent
	OrderID       string `json:"order_id"`
	PaymentStatus string `json:"payment_status"`
}

// CartClearedEvent published after a cart was emptied by checkout
type CartClearedEvent struct {
	BaseEvent
	SessionID string `json:"session_id"`
	OrderID   string `json:"order_id"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID string  `json:"product_id"`
	Size      string  `json:"size"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}
