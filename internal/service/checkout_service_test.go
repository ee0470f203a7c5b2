package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"storefront/internal/models"
	"storefront/internal/payment"
	"storefront/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPricing = models.NewPricingRules(10, 0.15, "cad")

func newCheckoutService(t *testing.T) (*CheckoutService, *CartService, *store.MemoryStore, *fakeProvider) {
	mem := store.NewMemoryStore()
	provider := newFakeProvider()
	carts := NewCartService(mem, nil, 0)
	return NewCheckoutService(mem, mem, provider, testPricing, "http://localhost:3000/"), carts, mem, provider
}

func TestCreateSession_BuildsLineItems(t *testing.T) {
	svc, carts, _, provider := newCheckoutService(t)
	ctx := context.Background()

	_, err := carts.AddItem(ctx, "session_1", teeInput(2))
	require.NoError(t, err)

	res, err := svc.CreateSession(ctx, CreateSessionInput{SessionID: "session_1", BaseURL: "https://shop.test"})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", res.SessionID)
	assert.Contains(t, res.URL, "cs_test_1")

	require.Equal(t, 1, provider.createCalls())
	req := provider.created[0]
	assert.Equal(t, "cad", req.Currency)
	require.Len(t, req.LineItems, 3)

	tee := req.LineItems[0]
	assert.Equal(t, int64(8999), tee.UnitAmount)
	assert.Equal(t, int64(2), tee.Quantity)
	assert.Equal(t, "Size: M", tee.Description)
	assert.Equal(t, []string{"https://shop.test/images/tee.png"}, tee.Images)

	assert.Equal(t, "Shipping", req.LineItems[1].Name)
	assert.Equal(t, int64(1000), req.LineItems[1].UnitAmount)
	assert.Equal(t, "Tax", req.LineItems[2].Name)
	assert.Equal(t, int64(2700), req.LineItems[2].UnitAmount)

	assert.Equal(t, "http://localhost:3000/checkout/success?session_id={CHECKOUT_SESSION_ID}", req.SuccessURL)
	assert.Equal(t, "http://localhost:3000/cart", req.CancelURL)
	assert.Equal(t, "session_1", req.Metadata["cartSessionId"])
	assert.Equal(t, []string{"CA", "US"}, req.AllowedCountries)
}

func TestCreateSession_CustomURLsAndAbsoluteImages(t *testing.T) {
	svc, carts, _, provider := newCheckoutService(t)
	ctx := context.Background()

	in := teeInput(1)
	in.Image = "https://cdn.test/tee.png"
	_, err := carts.AddItem(ctx, "session_1", in)
	require.NoError(t, err)

	_, err = svc.CreateSession(ctx, CreateSessionInput{
		SessionID:  "session_1",
		SuccessURL: "https://shop.test/ok",
		CancelURL:  "https://shop.test/back",
		BaseURL:    "https://shop.test",
	})
	require.NoError(t, err)

	req := provider.created[0]
	assert.Equal(t, "https://shop.test/ok", req.SuccessURL)
	assert.Equal(t, "https://shop.test/back", req.CancelURL)
	assert.Equal(t, []string{"https://cdn.test/tee.png"}, req.LineItems[0].Images)
}

func TestCreateSession_EmptyCartNeverCallsProvider(t *testing.T) {
	svc, carts, _, provider := newCheckoutService(t)
	ctx := context.Background()

	_, err := svc.CreateSession(ctx, CreateSessionInput{SessionID: "missing"})
	assert.ErrorIs(t, err, models.ErrEmptyCart)

	_, err = carts.AddItem(ctx, "session_1", teeInput(1))
	require.NoError(t, err)
	_, err = carts.ClearCart(ctx, "session_1")
	require.NoError(t, err)

	_, err = svc.CreateSession(ctx, CreateSessionInput{SessionID: "session_1"})
	assert.ErrorIs(t, err, models.ErrEmptyCart)
	assert.Zero(t, provider.createCalls())
}

func TestCreateSession_ProviderFailure(t *testing.T) {
	svc, carts, _, provider := newCheckoutService(t)
	ctx := context.Background()
	provider.createErr = errors.New("Invalid API Key provided")

	_, err := carts.AddItem(ctx, "session_1", teeInput(1))
	require.NoError(t, err)

	_, err = svc.CreateSession(ctx, CreateSessionInput{SessionID: "session_1"})
	assert.ErrorIs(t, err, models.ErrProvider)
	assert.Contains(t, err.Error(), "Invalid API Key provided")
	assert.Equal(t, 1, provider.createCalls(), "provider failures are not retried")
}

func TestCreateSession_InvalidSessionID(t *testing.T) {
	svc, _, _, _ := newCheckoutService(t)
	_, err := svc.CreateSession(context.Background(), CreateSessionInput{})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestVerifySession(t *testing.T) {
	svc, _, mem, provider := newCheckoutService(t)
	ctx := context.Background()

	provider.sessions["cs_1"] = &payment.SessionDetails{
		ID:            "cs_1",
		PaymentStatus: "paid",
		CustomerEmail: "buyer@example.com",
		Currency:      "cad",
		AmountTotal:   21698,
	}

	status, err := svc.VerifySession(ctx, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, 216.98, status.AmountTotal)
	assert.Nil(t, status.Order)

	require.NoError(t, mem.CreateOrder(ctx, &models.Order{
		ID:              "order_1",
		StripeSessionID: "cs_1",
		PaymentStatus:   models.PaymentStatusPaid,
		OrderStatus:     models.OrderStatusPending,
	}))

	status, err = svc.VerifySession(ctx, "cs_1")
	require.NoError(t, err)
	require.NotNil(t, status.Order)
	assert.Equal(t, "order_1", status.Order.ID)
	assert.Equal(t, models.PaymentStatusPaid, status.Order.PaymentStatus)
}

func TestVerifySession_ProviderError(t *testing.T) {
	svc, _, _, provider := newCheckoutService(t)
	provider.getErr = fmt.Errorf("%w: No such checkout.session", models.ErrProvider)

	_, err := svc.VerifySession(context.Background(), "cs_missing")
	assert.ErrorIs(t, err, models.ErrProvider)

	_, err = svc.VerifySession(context.Background(), " ")
	assert.ErrorIs(t, err, models.ErrValidation)
}
