package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"storefront/internal/models"
	"storefront/internal/payment"
	"storefront/internal/redisclient"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

type fakeProvider struct {
	mu        sync.Mutex
	created   []*payment.CheckoutSessionRequest
	createErr error
	sessions  map[string]*payment.SessionDetails
	getErr    error
	event     *payment.Event
	eventErr  error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{sessions: map[string]*payment.SessionDetails{}}
}

func (f *fakeProvider) CreateCheckoutSession(_ context.Context, req *payment.CheckoutSessionRequest) (*payment.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	id := fmt.Sprintf("cs_test_%d", len(f.created))
	return &payment.CheckoutSession{ID: id, URL: "https://checkout.stripe.test/" + id}, nil
}

func (f *fakeProvider) GetCheckoutSession(_ context.Context, id string) (*payment.SessionDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	sess, ok := f.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: No such checkout.session: %s", models.ErrProvider, id)
	}
	return sess, nil
}

func (f *fakeProvider) ConstructEvent(payload []byte, signature string) (*payment.Event, error) {
	if f.eventErr != nil {
		return nil, f.eventErr
	}
	if signature != "valid" {
		return nil, fmt.Errorf("%w: no signatures found matching the expected signature", models.ErrSignature)
	}
	return f.event, nil
}

func (f *fakeProvider) createCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type fakePublisher struct {
	mu             sync.Mutex
	created        []*models.OrderCreatedEvent
	paymentUpdated []*models.OrderPaymentUpdatedEvent
	cleared        []*models.CartClearedEvent
}

func (p *fakePublisher) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, e)
	return nil
}

func (p *fakePublisher) PublishOrderPaymentUpdated(_ context.Context, e *models.OrderPaymentUpdatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paymentUpdated = append(p.paymentUpdated, e)
	return nil
}

func (p *fakePublisher) PublishCartCleared(_ context.Context, e *models.CartClearedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleared = append(p.cleared, e)
	return nil
}

func newTestRedis(t *testing.T) (*redisclient.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return redisclient.NewFromRedis(rdb), mr
}

func teeInput(qty int) AddItemInput {
	return AddItemInput{
		ProductID: "1",
		Name:      "Midnight Tee",
		Price:     89.99,
		Image:     "/images/tee.png",
		Size:      "M",
		Quantity:  qty,
		InStock:   true,
	}
}
