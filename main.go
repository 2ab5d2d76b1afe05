package main

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"storefront-checkout/config"
	"storefront-checkout/guard"
	"storefront-checkout/handlers"
	"storefront-checkout/idempotency"
	"storefront-checkout/logging"
	"storefront-checkout/models"
	"storefront-checkout/monitoring"
	"storefront-checkout/provider"
	"storefront-checkout/repository"
	"storefront-checkout/service"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize structured logging
	if err := logging.InitLogger(cfg.LogLevel, cfg.OTELEndpoint); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logging.Sync()
	defer func() {
		if err := logging.Shutdown(context.Background()); err != nil {
			logging.Error("Error shutting down logger provider", zap.Error(err))
		}
	}()

	if err := cfg.Validate(); err != nil {
		logging.Fatal("Invalid configuration", zap.Error(err))
	}
	env, err := guard.ParseEnvironment(cfg.Environment)
	if err != nil {
		logging.Fatal("Invalid payment environment", zap.Error(err))
	}
	if !guard.ValidateCredentialEnvironment(cfg.ApplicationID, env) {
		logging.Warn("Application id does not look like it belongs to the payment environment",
			zap.String("environment", env.String()),
		)
	}

	// Initialize OpenTelemetry
	tp, tracer, err := monitoring.InitTracer(cfg.ServiceName, env.String(), cfg.OTELEndpoint)
	if err != nil {
		logging.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logging.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	mp, _, err := monitoring.InitMeter(cfg.ServiceName, env.String(), cfg.OTELEndpoint)
	if err != nil {
		logging.Fatal("Failed to initialize meter", zap.Error(err))
	}
	defer func() {
		if err := mp.Shutdown(context.Background()); err != nil {
			logging.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	// Storage
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := db.AutoMigrate(&models.Order{}); err != nil {
		logging.Fatal("Failed to migrate database", zap.Error(err))
	}
	orders := repository.NewGormOrderRepository(db)
	keys := newIdempotencyStore(cfg.RedisAddr)

	// Payment provider
	baseURL := cfg.ProviderBaseURL
	if baseURL == "" {
		baseURL = provider.BaseURLFor(env)
	}
	providerClient := provider.NewClient(baseURL, cfg.AccessToken)

	// Initialize service layer
	paymentService := service.NewPaymentService(tracer, providerClient, orders, keys, cfg.LocationID, cfg.Currency)
	syncService := service.NewSyncService(tracer, providerClient, orders, cfg.LocationID)

	// Initialize handlers
	paymentHandler := handlers.NewPaymentHandler(paymentService, syncService, models.CheckoutConfig{
		ApplicationID: cfg.ApplicationID,
		LocationID:    cfg.LocationID,
		Environment:   env.String(),
		Currency:      cfg.Currency,
	})

	// Setup Gin router
	r := gin.Default()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logging.Fatal("Invalid trusted proxies", zap.Error(err))
	}

	// OpenTelemetry middleware
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(httpMetricsMiddleware())

	// Routes
	r.GET("/health", paymentHandler.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	secure, err := handlers.RequireSecureTransport(cfg.TrustedProxies)
	if err != nil {
		logging.Fatal("Invalid trusted proxies", zap.Error(err))
	}
	api := r.Group("/api", secure)
	limiter := handlers.NewRateLimiter(cfg.PaymentRateLimit, cfg.PaymentRateBurst, 10*time.Minute)
	api.POST("/payments/process", handlers.RateLimit(limiter), paymentHandler.ProcessPayment)
	api.POST("/orders/sync", paymentHandler.SyncOrders)
	api.GET("/checkout/config", paymentHandler.CheckoutConfig)

	// Start server
	logging.Info("Checkout service starting",
		zap.String("port", cfg.Port),
		zap.String("environment", env.String()),
	)
	if err := r.Run(":" + cfg.Port); err != nil {
		logging.Fatal("Failed to start server", zap.Error(err))
	}
}

// newIdempotencyStore uses redis when an address is configured so keys are
// shared between replicas, and process memory otherwise.
func newIdempotencyStore(addr string) idempotency.Store {
	if addr == "" {
		logging.Warn("REDIS_ADDR not set, idempotency keys are kept in memory")
		return idempotency.NewMemoryStore(idempotency.DefaultTTL)
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logging.Fatal("Failed to connect to Redis", zap.String("addr", addr), zap.Error(err))
	}
	logging.Info("Connected to Redis", zap.String("addr", addr))
	return idempotency.NewRedisStore(client, idempotency.DefaultTTL)
}

// httpMetricsMiddleware records HTTP request metrics
func httpMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// Process request
		c.Next()

		// Record duration
		duration := float64(time.Since(start).Milliseconds())

		monitoring.HTTPServerDuration.Record(c.Request.Context(), duration,
			metric.WithAttributes(
				attribute.String("http_method", c.Request.Method),
				attribute.String("http_route", c.FullPath()),
				attribute.String("http_status_code", strconv.Itoa(c.Writer.Status())),
			),
		)
	}
}
