package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storefront/internal/service"
	"storefront/internal/util"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	carts    *service.CartService
	checkout *service.CheckoutService
	webhooks *service.WebhookService
	store    Pinger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	carts *service.CartService,
	checkout *service.CheckoutService,
	webhooks *service.WebhookService,
	store Pinger,
) *Handler {
	return &Handler{
		carts:    carts,
		checkout: checkout,
		webhooks: webhooks,
		store:    store,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine, allowedOrigins []string) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())
	router.Use(corsMiddleware(allowedOrigins))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		cart := api.Group("/cart/:sessionId")
		cart.GET("", h.getCart)
		cart.POST("/add", h.addItem)
		cart.PUT("/update", h.updateItem)
		cart.DELETE("/remove", h.removeItem)
		cart.DELETE("/clear", h.clearCart)

		checkout := api.Group("/checkout")
		checkout.POST("/create-session", h.createCheckoutSession)
		checkout.GET("/session/:sessionId", h.getCheckoutSession)
		checkout.POST("/webhook", h.webhook)
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
		}
	}
	if !cfg.AllowAllOrigins {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when the store answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unavailable",
				"error":  err.Error(),
				"time":   time.Now().Unix(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) getCart(c *gin.Context) {
	cart, err := h.carts.GetCart(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    newCartData(cart),
	})
}

func (h *Handler) addItem(c *gin.Context) {
	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	res, err := h.carts.AddItem(c.Request.Context(), c.Param("sessionId"), req.toInput())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Item added to cart successfully",
		"data":    newCartData(res.Cart),
	})
}

func (h *Handler) updateItem(c *gin.Context) {
	var req UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	res, err := h.carts.UpdateQuantity(c.Request.Context(), c.Param("sessionId"),
		string(req.ProductID), req.Size, *req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}

	data := newCartData(res.Cart)
	data.Applied = &res.Applied

	message := "Item quantity updated successfully"
	if !res.Applied {
		message = "Item not found in cart"
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": message,
		"data":    data,
	})
}

func (h *Handler) removeItem(c *gin.Context) {
	var req RemoveItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	res, err := h.carts.RemoveItem(c.Request.Context(), c.Param("sessionId"), string(req.ProductID), req.Size)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Item removed from cart successfully",
		"data":    newCartData(res.Cart),
	})
}

func (h *Handler) clearCart(c *gin.Context) {
	res, err := h.carts.ClearCart(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Cart cleared successfully",
		"data":    newCartData(res.Cart),
	})
}

func (h *Handler) createCheckoutSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	res, err := h.checkout.CreateSession(c.Request.Context(), service.CreateSessionInput{
		SessionID:  req.SessionID,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
		BaseURL:    requestBaseURL(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"sessionId": res.SessionID,
		"url":       res.URL,
	})
}

func (h *Handler) getCheckoutSession(c *gin.Context) {
	status, err := h.checkout.VerifySession(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"session": status,
		"order":   status.Order,
	})
}

// webhook must see the body exactly as sent, so it is read raw and never bound.
func (h *Handler) webhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		writeBindError(c, err)
		return
	}

	if _, err := h.webhooks.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// requestBaseURL is the scheme and host the client used to reach us
func requestBaseURL(c *gin.Context) string {
	scheme := c.GetHeader("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
		if c.Request.TLS == nil && strings.HasPrefix(c.Request.Host, "localhost") {
			scheme = "http"
		}
	}
	return scheme + "://" + c.Request.Host
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
