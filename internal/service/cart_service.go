package service

import (
	"context"
	"errors"
	"time"

	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CartCache is the cache in front of the cart store. Mutations write the
// saved cart through; reads only fill an empty slot, so a read that raced a
// mutation cannot replace the newer snapshot.
type CartCache interface {
	GetCart(ctx context.Context, sessionID string) (*models.Cart, error)
	SetCart(ctx context.Context, cart *models.Cart, ttl time.Duration) error
	SetCartIfAbsent(ctx context.Context, cart *models.Cart, ttl time.Duration) (bool, error)
	DeleteCart(ctx context.Context, sessionID string) error
}

// CartService applies cart mutation rules and persists the result
type CartService struct {
	store    store.CartRepository
	cache    CartCache
	cacheTTL time.Duration
	group    singleflight.Group
	logger   *zap.Logger
	now      func() time.Time
}

// NewCartService creates a new cart service. cache may be nil.
func NewCartService(carts store.CartRepository, cache CartCache, cacheTTL time.Duration) *CartService {
	return &CartService{
		store:    carts,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   util.GetLogger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AddItemInput is a validated add-to-cart request
type AddItemInput struct {
	ProductID string
	Name      string
	Price     float64
	Image     string
	Size      string
	Quantity  int
	InStock   bool
}

func (in AddItemInput) product() models.Product {
	return models.Product{
		ID:      in.ProductID,
		Name:    in.Name,
		Price:   in.Price,
		Image:   in.Image,
		InStock: in.InStock,
	}
}

// MutationResult is the cart after a mutation. Applied is false when the
// mutation matched nothing (update or remove of a missing line).
type MutationResult struct {
	Cart    *models.Cart
	Applied bool
}

// GetCart returns the session's cart, or an empty unsaved cart when none exists
func (s *CartService) GetCart(ctx context.Context, sessionID string) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.GetCart", attribute.String("session_id", sessionID))
	defer span.End()

	if err := models.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}

	if s.cache != nil {
		cart, err := s.cache.GetCart(ctx, sessionID)
		if err == nil {
			util.CartCacheLookupsTotal.WithLabelValues("hit").Inc()
			return cart, nil
		}
		if !errors.Is(err, redisclient.ErrCacheMiss) {
			s.logger.Warn("Cart cache read failed", zap.String("session_id", sessionID), zap.Error(err))
		}
		util.CartCacheLookupsTotal.WithLabelValues("miss").Inc()
	}

	v, err, _ := s.group.Do(sessionID, func() (interface{}, error) {
		cart, err := s.store.FindCart(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		s.fillCache(ctx, cart)
		return cart, nil
	})
	if errors.Is(err, models.ErrNotFound) {
		return models.NewCart(sessionID, s.now()), nil
	}
	if err != nil {
		return nil, util.RecordError(span, err)
	}
	return v.(*models.Cart), nil
}

// AddItem merges or appends a line, creating the cart if needed
func (s *CartService) AddItem(ctx context.Context, sessionID string, in AddItemInput) (*MutationResult, error) {
	if err := models.ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	if err := models.ValidateAdd(in.product(), in.Size, in.Quantity); err != nil {
		return nil, err
	}

	return s.mutate(ctx, "add", sessionID, true, func(cart *models.Cart) (bool, error) {
		return true, cart.AddItem(in.product(), in.Size, in.Quantity)
	})
}

// UpdateQuantity sets the clamped quantity of a matching line. A missing
// line leaves the cart unchanged and reports Applied=false.
func (s *CartService) UpdateQuantity(ctx context.Context, sessionID, productID, size string, quantity int) (*MutationResult, error) {
	return s.mutate(ctx, "update", sessionID, false, func(cart *models.Cart) (bool, error) {
		return cart.UpdateQuantity(productID, size, quantity), nil
	})
}

// RemoveItem drops a matching line; removing a missing line is a no-op
func (s *CartService) RemoveItem(ctx context.Context, sessionID, productID, size string) (*MutationResult, error) {
	return s.mutate(ctx, "remove", sessionID, false, func(cart *models.Cart) (bool, error) {
		return cart.RemoveItem(productID, size), nil
	})
}

// ClearCart empties the session's cart
func (s *CartService) ClearCart(ctx context.Context, sessionID string) (*MutationResult, error) {
	return s.mutate(ctx, "clear", sessionID, false, func(cart *models.Cart) (bool, error) {
		cart.Clear()
		return true, nil
	})
}

func (s *CartService) mutate(
	ctx context.Context,
	op, sessionID string,
	create bool,
	apply func(*models.Cart) (bool, error),
) (*MutationResult, error) {
	ctx, span := util.StartSpan(ctx, "CartService."+op,
		attribute.String("session_id", sessionID))
	defer span.End()

	if err := models.ValidateSessionID(sessionID); err != nil {
		util.CartMutationsTotal.WithLabelValues(op, "invalid").Inc()
		return nil, err
	}

	var (
		cart *models.Cart
		err  error
	)
	if create {
		cart, err = s.store.FindOrCreateCart(ctx, sessionID)
	} else {
		cart, err = s.store.FindCart(ctx, sessionID)
	}
	if err != nil {
		util.CartMutationsTotal.WithLabelValues(op, resultLabel(err)).Inc()
		return nil, util.RecordError(span, err)
	}

	applied, err := apply(cart)
	if err != nil {
		util.CartMutationsTotal.WithLabelValues(op, resultLabel(err)).Inc()
		return nil, err
	}

	if applied {
		cart.Recalculate()
		cart.Touch(s.now())
		if err := s.store.SaveCart(ctx, cart); err != nil {
			util.CartMutationsTotal.WithLabelValues(op, resultLabel(err)).Inc()
			return nil, util.RecordError(span, err)
		}
		s.writeThrough(ctx, cart)
	}

	util.CartMutationsTotal.WithLabelValues(op, "ok").Inc()
	s.logger.Debug("Cart mutated",
		zap.String("op", op),
		zap.String("session_id", sessionID),
		zap.Bool("applied", applied),
		zap.Int("item_count", cart.ItemCount))

	return &MutationResult{Cart: cart, Applied: applied}, nil
}

func (s *CartService) fillCache(ctx context.Context, cart *models.Cart) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.SetCartIfAbsent(ctx, cart, s.cacheTTL); err != nil {
		s.logger.Warn("Cart cache write failed", zap.String("session_id", cart.SessionID), zap.Error(err))
	}
}

// writeThrough replaces the cached snapshot with the saved cart. If that
// fails the entry is dropped so the next read goes to the store.
func (s *CartService) writeThrough(ctx context.Context, cart *models.Cart) {
	if s.cache == nil {
		return
	}
	// The save is committed; a cancelled caller must not leave the old snapshot behind.
	ctx = context.WithoutCancel(ctx)
	err := s.cache.SetCart(ctx, cart, s.cacheTTL)
	if err == nil {
		return
	}
	s.logger.Warn("Cart cache write failed", zap.String("session_id", cart.SessionID), zap.Error(err))
	if err := s.cache.DeleteCart(ctx, cart.SessionID); err != nil {
		s.logger.Warn("Cart cache invalidation failed", zap.String("session_id", cart.SessionID), zap.Error(err))
	}
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, models.ErrValidation):
		return "invalid"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrStoreUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
