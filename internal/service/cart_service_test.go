package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCartService(t *testing.T) (*CartService, *store.MemoryStore) {
	mem := store.NewMemoryStore()
	cache, _ := newTestRedis(t)
	return NewCartService(mem, cache, time.Minute), mem
}

func TestCartService_AddMergesAndPersists(t *testing.T) {
	svc, mem := newCartService(t)
	ctx := context.Background()

	res, err := svc.AddItem(ctx, "session_1", teeInput(2))
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, 2, res.Cart.ItemCount)

	res, err = svc.AddItem(ctx, "session_1", teeInput(3))
	require.NoError(t, err)
	require.Len(t, res.Cart.Items, 1)
	assert.Equal(t, 5, res.Cart.Items[0].Quantity)
	assert.Equal(t, 449.95, res.Cart.Total)

	stored, err := mem.FindCart(ctx, "session_1")
	require.NoError(t, err)
	assert.Equal(t, 5, stored.ItemCount)
	assert.WithinDuration(t, stored.LastUpdated.Add(models.CartRetention), stored.ExpiresAt, time.Second)
}

func TestCartService_AddCapsAtTen(t *testing.T) {
	svc, _ := newCartService(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "session_1", teeInput(8))
	require.NoError(t, err)
	res, err := svc.AddItem(ctx, "session_1", teeInput(5))
	require.NoError(t, err)
	assert.Equal(t, 10, res.Cart.Items[0].Quantity)
}

func TestCartService_ValidationHappensBeforeStorage(t *testing.T) {
	svc, mem := newCartService(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, strings.Repeat("x", 101), teeInput(1))
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = svc.AddItem(ctx, "session_1", teeInput(11))
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = mem.FindCart(ctx, "session_1")
	assert.ErrorIs(t, err, models.ErrNotFound, "invalid add must not create a cart")

	_, err = svc.GetCart(ctx, "")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestCartService_UpdateMissingItemKeepsCart(t *testing.T) {
	svc, _ := newCartService(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "session_1", teeInput(2))
	require.NoError(t, err)

	res, err := svc.UpdateQuantity(ctx, "session_1", "999", "M", 3)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	require.Len(t, res.Cart.Items, 1)
	assert.Equal(t, 2, res.Cart.Items[0].Quantity)
}

func TestCartService_UpdateClamps(t *testing.T) {
	svc, _ := newCartService(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "session_1", teeInput(2))
	require.NoError(t, err)

	res, err := svc.UpdateQuantity(ctx, "session_1", "1", "M", 0)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, 1, res.Cart.Items[0].Quantity)

	res, err = svc.UpdateQuantity(ctx, "session_1", "1", "M", 42)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Cart.Items[0].Quantity)
	assert.Equal(t, 899.9, res.Cart.Total)
}

func TestCartService_MissingCart(t *testing.T) {
	svc, _ := newCartService(t)
	ctx := context.Background()

	_, err := svc.UpdateQuantity(ctx, "nobody", "1", "M", 2)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = svc.RemoveItem(ctx, "nobody", "1", "M")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = svc.ClearCart(ctx, "nobody")
	assert.ErrorIs(t, err, models.ErrNotFound)

	cart, err := svc.GetCart(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.Zero(t, cart.Total)
}

func TestCartService_RemoveAndClear(t *testing.T) {
	svc, _ := newCartService(t)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "session_1", teeInput(2))
	require.NoError(t, err)
	hat := teeInput(1)
	hat.ProductID, hat.Name, hat.Price = "2", "Obsidian Cap", 35.99
	_, err = svc.AddItem(ctx, "session_1", hat)
	require.NoError(t, err)

	res, err := svc.RemoveItem(ctx, "session_1", "1", "L")
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Len(t, res.Cart.Items, 2)

	res, err = svc.RemoveItem(ctx, "session_1", "1", "M")
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, 35.99, res.Cart.Total)

	res, err = svc.ClearCart(ctx, "session_1")
	require.NoError(t, err)
	assert.Empty(t, res.Cart.Items)
	assert.Zero(t, res.Cart.ItemCount)
}

func TestCartService_CacheUpdatedOnMutation(t *testing.T) {
	mem := store.NewMemoryStore()
	cache, mr := newTestRedis(t)
	svc := NewCartService(mem, cache, time.Minute)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "session_1", teeInput(1))
	require.NoError(t, err)
	assert.True(t, mr.Exists("cart:session_1"))

	cart, err := svc.GetCart(ctx, "session_1")
	require.NoError(t, err)
	assert.Equal(t, 1, cart.ItemCount)

	_, err = svc.AddItem(ctx, "session_1", teeInput(1))
	require.NoError(t, err)

	cached, err := cache.GetCart(ctx, "session_1")
	require.NoError(t, err)
	assert.Equal(t, 2, cached.ItemCount)

	cart, err = svc.GetCart(ctx, "session_1")
	require.NoError(t, err)
	assert.Equal(t, 2, cart.ItemCount)
}

// pausingStore holds the first cart lookup after reading until released.
type pausingStore struct {
	*store.MemoryStore
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (p *pausingStore) FindCart(ctx context.Context, sessionID string) (*models.Cart, error) {
	cart, err := p.MemoryStore.FindCart(ctx, sessionID)
	p.once.Do(func() {
		close(p.read)
		<-p.release
	})
	return cart, err
}

func TestCartService_SlowReadDoesNotOverwriteNewerCache(t *testing.T) {
	mem := store.NewMemoryStore()
	cache, mr := newTestRedis(t)
	paused := &pausingStore{MemoryStore: mem, read: make(chan struct{}), release: make(chan struct{})}
	svc := NewCartService(paused, cache, time.Minute)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "session_1", teeInput(1))
	require.NoError(t, err)
	mr.Del("cart:session_1")

	done := make(chan *models.Cart)
	go func() {
		cart, _ := svc.GetCart(ctx, "session_1")
		done <- cart
	}()

	<-paused.read
	_, err = svc.AddItem(ctx, "session_1", teeInput(2))
	require.NoError(t, err)
	close(paused.release)

	stale := <-done
	require.NotNil(t, stale)
	assert.Equal(t, 1, stale.ItemCount)

	cart, err := svc.GetCart(ctx, "session_1")
	require.NoError(t, err)
	assert.Equal(t, 3, cart.ItemCount)
}

func TestCartService_WorksWithoutCache(t *testing.T) {
	svc := NewCartService(store.NewMemoryStore(), nil, 0)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, "session_1", teeInput(1))
	require.NoError(t, err)
	cart, err := svc.GetCart(ctx, "session_1")
	require.NoError(t, err)
	assert.Equal(t, 1, cart.ItemCount)
}

func TestCartService_StoreUnavailable(t *testing.T) {
	mem := store.NewMemoryStore()
	guarded := store.NewGuarded(blockingStore{mem}, 20*time.Millisecond)
	svc := NewCartService(guarded, nil, 0)

	_, err := svc.AddItem(context.Background(), "session_1", teeInput(1))
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
}

// blockingStore never answers cart lookups before the caller gives up.
type blockingStore struct {
	*store.MemoryStore
}

func (b blockingStore) FindOrCreateCart(ctx context.Context, _ string) (*models.Cart, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
