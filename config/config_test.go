package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("TAX_RATE", "")

	cfg := Load()

	assert.Equal(t, "mongo", cfg.Store.Driver)
	assert.Equal(t, 5*time.Second, cfg.Store.Timeout)
	assert.Equal(t, 0.15, cfg.Business.TaxRate)
	assert.Equal(t, 10.0, cfg.Business.ShippingFlatFee)
	assert.Equal(t, "cad", cfg.Business.Currency)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("CORS_ORIGIN", "https://shop.example.com, https://admin.example.com,")
	t.Setenv("CLIENT_URL", "https://shop.example.com/")
	t.Setenv("TAX_RATE", "0.13")
	t.Setenv("STORE_TIMEOUT_MS", "250")

	cfg := Load()

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, []string{"https://shop.example.com", "https://admin.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "https://shop.example.com", cfg.Server.ClientURL)
	assert.Equal(t, 0.13, cfg.Business.TaxRate)
	assert.Equal(t, 250*time.Millisecond, cfg.Store.Timeout)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("SHIPPING_FLAT_FEE", "ten")
	t.Setenv("STORE_TIMEOUT_MS", "5s")
	t.Setenv("CART_CACHE_TTL_SECONDS", "-1")

	cfg := Load()

	assert.Equal(t, 10.0, cfg.Business.ShippingFlatFee)
	assert.Equal(t, 5*time.Second, cfg.Store.Timeout)
	assert.Equal(t, 900*time.Second, cfg.Redis.CartCacheTTL)
}
