package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	MinItemQuantity    = 1
	MaxItemQuantity    = 10
	MaxSessionIDLength = 100
	MaxItemPrice       = 10000

	// CartRetention is how long a cart survives after its last write.
	CartRetention = 7 * 24 * time.Hour
)

// NewCart returns an empty cart for sessionID.
func NewCart(sessionID string, now time.Time) *Cart {
	c := &Cart{
		SessionID: sessionID,
		Items:     CartItems{},
		CreatedAt: now,
	}
	c.Touch(now)
	return c
}

// ValidateSessionID rejects empty or oversized session identifiers.
func ValidateSessionID(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("%w: session id is required", ErrValidation)
	}
	if len(sessionID) > MaxSessionIDLength {
		return fmt.Errorf("%w: session id cannot exceed %d characters", ErrValidation, MaxSessionIDLength)
	}
	return nil
}

// ValidateAdd checks the inputs of an add-to-cart request.
func ValidateAdd(p Product, size string, quantity int) error {
	if p.ID == "" || p.Name == "" || p.Image == "" || p.Price <= 0 {
		return fmt.Errorf("%w: product must have id, name, price, and image", ErrValidation)
	}
	if p.Price > MaxItemPrice {
		return fmt.Errorf("%w: price cannot exceed %d", ErrValidation, MaxItemPrice)
	}
	if strings.TrimSpace(size) == "" {
		return fmt.Errorf("%w: size must be a non-empty string", ErrValidation)
	}
	if quantity < MinItemQuantity || quantity > MaxItemQuantity {
		return fmt.Errorf("%w: quantity must be between %d and %d", ErrValidation, MinItemQuantity, MaxItemQuantity)
	}
	return nil
}

// ClampQuantity bounds q to [MinItemQuantity, MaxItemQuantity].
func ClampQuantity(q int) int {
	if q < MinItemQuantity {
		return MinItemQuantity
	}
	if q > MaxItemQuantity {
		return MaxItemQuantity
	}
	return q
}

func (c *Cart) indexOf(productID, size string) int {
	for i, item := range c.Items {
		if item.ProductID == productID && item.Size == size {
			return i
		}
	}
	return -1
}

// AddItem merges quantity into an existing (productId, size) line, capping
// at MaxItemQuantity, or appends a new snapshot of p.
func (c *Cart) AddItem(p Product, size string, quantity int) error {
	if err := ValidateAdd(p, size, quantity); err != nil {
		return err
	}

	if i := c.indexOf(p.ID, size); i >= 0 {
		c.Items[i].Quantity = ClampQuantity(c.Items[i].Quantity + quantity)
	} else {
		c.Items = append(c.Items, CartItem{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Image:     p.Image,
			Size:      size,
			Quantity:  quantity,
			InStock:   p.InStock,
		})
	}

	c.Recalculate()
	return nil
}

// UpdateQuantity sets the clamped quantity of the matching line.
// It returns false and leaves the cart untouched when no line matches.
func (c *Cart) UpdateQuantity(productID, size string, quantity int) bool {
	i := c.indexOf(productID, size)
	if i < 0 {
		return false
	}
	c.Items[i].Quantity = ClampQuantity(quantity)
	c.Recalculate()
	return true
}

// RemoveItem drops the matching line. Removing a missing line is a no-op.
func (c *Cart) RemoveItem(productID, size string) bool {
	kept := make(CartItems, 0, len(c.Items))
	for _, item := range c.Items {
		if item.ProductID == productID && item.Size == size {
			continue
		}
		kept = append(kept, item)
	}
	removed := len(kept) != len(c.Items)
	c.Items = kept
	c.Recalculate()
	return removed
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.Items = CartItems{}
	c.Recalculate()
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// Recalculate derives Total and ItemCount from Items from scratch.
func (c *Cart) Recalculate() {
	total := decimal.Zero
	count := 0
	for _, item := range c.Items {
		line := decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity)))
		total = total.Add(line)
		count += item.Quantity
	}
	c.Total = total.Round(2).InexactFloat64()
	c.ItemCount = count
}

// Touch stamps a write: lastUpdated and the retention deadline.
func (c *Cart) Touch(now time.Time) {
	c.LastUpdated = now
	c.ExpiresAt = now.Add(CartRetention)
}
