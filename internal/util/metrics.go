package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CartMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Total number of cart mutations by operation and result",
	}, []string{"operation", "result"})

	CartCacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_cache_lookups_total",
		Help: "Cart read-through cache lookups",
	}, []string{"result"})

	StoreLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "store_operation_latency_seconds",
		Help:    "Latency of document store operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	StoreUnavailableTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_unavailable_total",
		Help: "Store calls rejected as unavailable (timeouts, connection errors, open breaker)",
	}, []string{"operation"})

	StoreBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "store_circuit_breaker_state",
		Help: "Store circuit breaker state (0=closed, 1=half-open, 2=open)",
	})

	CheckoutSessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_sessions_total",
		Help: "Checkout session creation attempts by result",
	}, []string{"result"})

	ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_provider_latency_seconds",
		Help:    "Latency of payment provider API calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Inbound webhook events by type and outcome",
	}, []string{"type", "outcome"})

	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created from completed checkouts",
	})

	OrderPaymentUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_payment_updates_total",
		Help: "Order payment status transitions driven by provider events",
	}, []string{"status"})

	OrdersFulfillmentStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_fulfillment_started_total",
		Help: "Orders moved from pending to processing",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
