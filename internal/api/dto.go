package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"storefront/internal/models"
	"storefront/internal/service"
)

// FlexibleID accepts product ids sent either as JSON strings or numbers.
// Ids are compared as strings everywhere.
type FlexibleID string

// UnmarshalJSON implements json.Unmarshaler
func (id *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FlexibleID(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("product id must be a string or number")
	}
	*id = FlexibleID(n.String())
	return nil
}

// ProductPayload is the product snapshot sent by the storefront
type ProductPayload struct {
	ID      FlexibleID `json:"id" binding:"required"`
	Name    string     `json:"name" binding:"required"`
	Price   float64    `json:"price" binding:"required"`
	Image   string     `json:"image" binding:"required"`
	InStock *bool      `json:"inStock"`
}

// AddItemRequest is the body of POST /cart/:sessionId/add
type AddItemRequest struct {
	Product  *ProductPayload `json:"product" binding:"required"`
	Size     string          `json:"size" binding:"required"`
	Quantity int             `json:"quantity" binding:"required"`
}

func (r *AddItemRequest) toInput() service.AddItemInput {
	inStock := true
	if r.Product.InStock != nil {
		inStock = *r.Product.InStock
	}
	return service.AddItemInput{
		ProductID: string(r.Product.ID),
		Name:      r.Product.Name,
		Price:     r.Product.Price,
		Image:     r.Product.Image,
		Size:      r.Size,
		Quantity:  r.Quantity,
		InStock:   inStock,
	}
}

// UpdateItemRequest is the body of PUT /cart/:sessionId/update
type UpdateItemRequest struct {
	ProductID FlexibleID `json:"productId" binding:"required"`
	Size      string     `json:"size" binding:"required"`
	Quantity  *int       `json:"quantity" binding:"required"`
}

// RemoveItemRequest is the body of DELETE /cart/:sessionId/remove
type RemoveItemRequest struct {
	ProductID FlexibleID `json:"productId" binding:"required"`
	Size      string     `json:"size" binding:"required"`
}

// CreateSessionRequest is the body of POST /checkout/create-session
type CreateSessionRequest struct {
	SessionID  string `json:"sessionId" binding:"required"`
	SuccessURL string `json:"successUrl"`
	CancelURL  string `json:"cancelUrl"`
}

// CartData is the cart shape returned by every cart endpoint
type CartData struct {
	SessionID   string           `json:"sessionId"`
	Items       models.CartItems `json:"items"`
	Total       float64          `json:"total"`
	ItemCount   int              `json:"itemCount"`
	LastUpdated *time.Time       `json:"lastUpdated,omitempty"`
	Applied     *bool            `json:"applied,omitempty"`
}

func newCartData(cart *models.Cart) CartData {
	data := CartData{
		SessionID: cart.SessionID,
		Items:     cart.Items,
		Total:     cart.Total,
		ItemCount: cart.ItemCount,
	}
	if data.Items == nil {
		data.Items = models.CartItems{}
	}
	if !cart.LastUpdated.IsZero() {
		t := cart.LastUpdated
		data.LastUpdated = &t
	}
	return data
}
