package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore fails FindCart with a configurable error and counts calls.
type flakyStore struct {
	*MemoryStore
	err   error
	block bool
	calls int
}

func (f *flakyStore) FindCart(ctx context.Context, sessionID string) (*models.Cart, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.MemoryStore.FindCart(ctx, sessionID)
}

func TestGuarded_PassesThrough(t *testing.T) {
	mem := NewMemoryStore()
	g := NewGuarded(mem, time.Second)
	ctx := context.Background()

	created, err := g.FindOrCreateCart(ctx, "session_1")
	require.NoError(t, err)
	assert.Empty(t, created.Items)

	found, err := g.FindCart(ctx, "session_1")
	require.NoError(t, err)
	assert.Equal(t, "session_1", found.SessionID)
}

func TestGuarded_TimeoutBecomesUnavailable(t *testing.T) {
	backend := &flakyStore{MemoryStore: NewMemoryStore(), block: true}
	g := NewGuarded(backend, 20*time.Millisecond)

	start := time.Now()
	_, err := g.FindCart(context.Background(), "session_1")

	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGuarded_OpensAfterConsecutiveOutages(t *testing.T) {
	backend := &flakyStore{
		MemoryStore: NewMemoryStore(),
		err:         fmt.Errorf("%w: connection refused", models.ErrStoreUnavailable),
	}
	g := NewGuarded(backend, time.Second)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := g.FindCart(ctx, "session_1")
		require.ErrorIs(t, err, models.ErrStoreUnavailable)
	}
	assert.Equal(t, 5, backend.calls)

	_, err := g.FindCart(ctx, "session_1")
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
	assert.Equal(t, 5, backend.calls, "open breaker must not reach the backend")
}

func TestGuarded_NotFoundDoesNotTrip(t *testing.T) {
	backend := &flakyStore{MemoryStore: NewMemoryStore()}
	g := NewGuarded(backend, time.Second)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := g.FindCart(ctx, "missing")
		require.ErrorIs(t, err, models.ErrNotFound)
		require.False(t, errors.Is(err, models.ErrStoreUnavailable))
	}
	assert.Equal(t, 10, backend.calls)
}
