package cartclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// Source tells which tier answered a cart call
type Source string

const (
	// SourceAuthoritative means the server store answered.
	SourceAuthoritative Source = "authoritative"
	// SourceCached means the server was unreachable and the local mirror answered.
	SourceCached Source = "cached"
)

// Result is a cart as seen after a client call
type Result struct {
	Cart    *models.Cart
	Source  Source
	Applied bool
	// DiscardedLocalEdits is set on the first server answer after offline
	// edits; those edits were overwritten by the server's cart.
	DiscardedLocalEdits bool
}

// APIError is a non-2xx answer other than an outage
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("cart api %d: %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("cart api %d: %s", e.Status, e.Code)
}

// Unwrap maps the status onto the shared error taxonomy
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest:
		return models.ErrValidation
	case http.StatusNotFound:
		return models.ErrNotFound
	case http.StatusServiceUnavailable:
		return models.ErrStoreUnavailable
	}
	return nil
}

// Client is a cart API client that degrades to a local mirror when the
// server cannot reach its store.
type Client struct {
	baseURL string
	http    *http.Client
	mirror  *Mirror
	session Session
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a client for the API mounted at baseURL (e.g. http://host/api).
// httpClient may be nil.
func New(baseURL string, mirror *Mirror, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	id, err := mirror.SessionID()
	if err != nil {
		return nil, fmt.Errorf("load session id: %w", err)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		mirror:  mirror,
		session: Session{ID: id},
		logger:  util.GetLogger(),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Session returns the session this client works on
func (c *Client) Session() Session {
	return c.session
}

// Load reads the cart, preferring the server
func (c *Client) Load(ctx context.Context) (*Result, error) {
	return c.call(ctx, http.MethodGet, "", nil, func(*models.Cart) (bool, error) {
		return false, nil
	})
}

// Add adds quantity of product in size
func (c *Client) Add(ctx context.Context, p models.Product, size string, quantity int) (*Result, error) {
	body := map[string]interface{}{
		"product": map[string]interface{}{
			"id":      p.ID,
			"name":    p.Name,
			"price":   p.Price,
			"image":   p.Image,
			"inStock": p.InStock,
		},
		"size":     size,
		"quantity": quantity,
	}
	return c.call(ctx, http.MethodPost, "/add", body, func(cart *models.Cart) (bool, error) {
		return true, cart.AddItem(p, size, quantity)
	})
}

// Update sets the quantity of a line; the server clamps it to [1,10]
func (c *Client) Update(ctx context.Context, productID, size string, quantity int) (*Result, error) {
	body := map[string]interface{}{"productId": productID, "size": size, "quantity": quantity}
	return c.call(ctx, http.MethodPut, "/update", body, func(cart *models.Cart) (bool, error) {
		return cart.UpdateQuantity(productID, size, quantity), nil
	})
}

// Remove drops a line
func (c *Client) Remove(ctx context.Context, productID, size string) (*Result, error) {
	body := map[string]interface{}{"productId": productID, "size": size}
	return c.call(ctx, http.MethodDelete, "/remove", body, func(cart *models.Cart) (bool, error) {
		return cart.RemoveItem(productID, size), nil
	})
}

// Clear empties the cart
func (c *Client) Clear(ctx context.Context) (*Result, error) {
	return c.call(ctx, http.MethodDelete, "/clear", nil, func(cart *models.Cart) (bool, error) {
		cart.Clear()
		return true, nil
	})
}

// call runs op against the server and falls back to replaying local on the
// mirror when the server is unavailable.
func (c *Client) call(
	ctx context.Context,
	method, suffix string,
	body interface{},
	local func(*models.Cart) (bool, error),
) (*Result, error) {
	data, err := c.do(ctx, method, "/cart/"+url.PathEscape(c.session.ID)+suffix, body)
	if err == nil {
		return c.synced(data), nil
	}
	if !errors.Is(err, models.ErrStoreUnavailable) {
		return nil, err
	}

	c.logger.Warn("Cart server unavailable, using local mirror",
		zap.String("session_id", c.session.ID),
		zap.Error(err))
	return c.cached(local)
}

func (c *Client) synced(data *cartData) *Result {
	cart := &models.Cart{
		SessionID: data.SessionID,
		Items:     data.Items,
		Total:     data.Total,
		ItemCount: data.ItemCount,
	}
	if cart.Items == nil {
		cart.Items = models.CartItems{}
	}
	if data.LastUpdated != nil {
		cart.LastUpdated = *data.LastUpdated
	}

	applied := true
	if data.Applied != nil {
		applied = *data.Applied
	}

	res := &Result{Cart: cart, Source: SourceAuthoritative, Applied: applied}

	prev, err := c.mirror.Load(c.session.ID)
	if err == nil && prev.Dirty {
		res.DiscardedLocalEdits = true
		c.logger.Info("Discarding offline cart edits in favour of server cart",
			zap.String("session_id", c.session.ID))
	}
	if err := c.mirror.Save(c.session.ID, &Entry{Items: cart.Items, SyncedAt: c.now()}); err != nil {
		c.logger.Warn("Failed to update cart mirror", zap.Error(err))
	}
	return res
}

func (c *Client) cached(local func(*models.Cart) (bool, error)) (*Result, error) {
	entry, err := c.mirror.Load(c.session.ID)
	if err != nil {
		return nil, fmt.Errorf("read cart mirror: %w", err)
	}

	cart := models.NewCart(c.session.ID, c.now())
	cart.Items = entry.Items
	cart.Recalculate()

	applied, err := local(cart)
	if err != nil {
		return nil, err
	}

	if applied {
		entry.Items = cart.Items
		entry.Dirty = true
		if err := c.mirror.Save(c.session.ID, entry); err != nil {
			return nil, fmt.Errorf("write cart mirror: %w", err)
		}
	}

	return &Result{Cart: cart, Source: SourceCached, Applied: applied}, nil
}

type cartData struct {
	SessionID   string           `json:"sessionId"`
	Items       models.CartItems `json:"items"`
	Total       float64          `json:"total"`
	ItemCount   int              `json:"itemCount"`
	LastUpdated *time.Time       `json:"lastUpdated"`
	Applied     *bool            `json:"applied"`
}

type envelope struct {
	Success bool      `json:"success"`
	Error   string    `json:"error"`
	Message string    `json:"message"`
	Data    *cartData `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*cartData, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusBadGateway ||
			resp.StatusCode == http.StatusGatewayTimeout {
			return nil, fmt.Errorf("%w: server answered %d", models.ErrStoreUnavailable, resp.StatusCode)
		}
		return nil, &APIError{Status: resp.StatusCode, Code: env.Error, Message: env.Message}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode cart response: %w", decodeErr)
	}
	if !env.Success || env.Data == nil {
		return nil, &APIError{Status: resp.StatusCode, Code: env.Error, Message: env.Message}
	}
	return env.Data, nil
}
