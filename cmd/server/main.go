package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/config"
	"storefront/internal/api"
	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/payment"
	"storefront/internal/redisclient"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/util"
	"storefront/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const sweepInterval = time.Hour

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, "storefront"); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront service")

	tp, err := util.InitTracer("storefront", cfg.Server.Env, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	openCtx, openCancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := store.Open(openCtx, cfg.Store)
	openCancel()
	if err != nil {
		logger.Fatal("Failed to open store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = db.Close(ctx)
	}()
	logger.Info("Store connected", zap.String("driver", cfg.Store.Driver))

	var (
		cartCache service.CartCache
		deduper   service.EventDeduper
	)
	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Redis unavailable, running without cart cache and event dedupe", zap.Error(err))
	} else {
		defer redisClient.Close()
		cartCache, deduper = redisClient, redisClient
		logger.Info("Redis connected")
	}

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	eventPublisher := broker.NewEventPublisher(producer)

	if cfg.Stripe.SecretKey == "" || cfg.Stripe.WebhookSecret == "" {
		logger.Warn("Stripe keys are not fully configured; checkout and webhooks will fail")
	}
	provider := payment.NewStripeProvider(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)
	pricing := models.NewPricingRules(cfg.Business.ShippingFlatFee, cfg.Business.TaxRate, cfg.Business.Currency)

	cartService := service.NewCartService(db, cartCache, cfg.Redis.CartCacheTTL)
	checkoutService := service.NewCheckoutService(db, db, provider, pricing, cfg.Server.ClientURL)
	webhookService := service.NewWebhookService(db, db, cartService, provider, pricing, deduper, eventPublisher)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
	fulfillmentWorker := worker.NewFulfillmentWorker(consumer, db)
	go func() {
		if err := fulfillmentWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Fulfillment worker error", zap.Error(err))
		}
	}()

	// Mongo expires carts through its TTL index.
	if cfg.Store.Driver != "mongo" && cfg.Store.Driver != "mongodb" {
		sweeper := worker.NewExpirySweeper(db, sweepInterval)
		go sweeper.Start(workerCtx)
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(cartService, checkoutService, webhookService, db)
	handler.SetupRoutes(router, cfg.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := fulfillmentWorker.Stop(); err != nil {
		logger.Warn("Error stopping fulfillment worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
