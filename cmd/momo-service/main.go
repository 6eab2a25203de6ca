/**
 * @description
 * This is the main entry point for the momo-service. It initializes configuration,
 * the database pool, the MTN MoMo client, optional Redis and RabbitMQ
 * integrations, the core application service and the HTTP server, then waits
 * for a termination signal.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: shared token cache and rate limiting.
 * - github.com/joho/godotenv: local .env loading.
 * - go.uber.org/zap: structured logging.
 * - internal/api, internal/app, internal/config, internal/store.
 * - pkg/momoclient, pkg/rabbitmq, pkg/smsclient.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/Turabayo/she-saves-bloom-sub000/internal/api"
	"github.com/Turabayo/she-saves-bloom-sub000/internal/app"
	"github.com/Turabayo/she-saves-bloom-sub000/internal/config"
	"github.com/Turabayo/she-saves-bloom-sub000/internal/domain"
	"github.com/Turabayo/she-saves-bloom-sub000/internal/store"
	"github.com/Turabayo/she-saves-bloom-sub000/pkg/momoclient"
	"github.com/Turabayo/she-saves-bloom-sub000/pkg/rabbitmq"
	"github.com/Turabayo/she-saves-bloom-sub000/pkg/smsclient"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	if len(cfg.AllowedOrigins()) == 0 {
		logger.Info("no CORS origins configured; cross-origin browser requests are refused", zap.String("env", "CORS_ALLOWED_ORIGINS"))
	}
	location, _ := cfg.Location()
	maxAmount, _ := cfg.MaxAmount()

	logger.Info("starting momo-service", zap.String("port", cfg.ServerPort), zap.String("target_environment", cfg.MomoTargetEnvironment))

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database url parse failed", zap.Error(err))
	}
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	// Disable prepared statement caching to work behind transaction poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer dbpool.Close()
	logger.Info("database connected")

	redisClient := connectRedis(cfg.RedisURL, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var tokenCache momoclient.TokenCache
	if redisClient != nil {
		tokenCache = app.NewRedisTokenCache(redisClient, cfg.RedisKeyPrefix)
	}
	momo := momoclient.NewClient(momoclient.Config{
		BaseURL:           cfg.MomoBaseURL,
		TargetEnvironment: cfg.MomoTargetEnvironment,
		Currency:          cfg.MomoCurrency,
		CallbackURL:       cfg.MomoCallbackURL,
		Collection: momoclient.ProductCredentials{
			SubscriptionKey: cfg.MomoCollectionSubscriptionKey,
			APIUser:         cfg.MomoCollectionAPIUser,
			APIKey:          cfg.MomoCollectionAPIKey,
		},
		Disbursement: momoclient.ProductCredentials{
			SubscriptionKey: cfg.MomoDisbursementSubscriptionKey,
			APIUser:         cfg.MomoDisbursementAPIUser,
			APIKey:          cfg.MomoDisbursementAPIKey,
		},
		TokenExpirySkew: time.Duration(cfg.MomoTokenExpirySkewSeconds) * time.Second,
	}, tokenCache, logger)
	for _, product := range []momoclient.Product{momoclient.ProductCollection, momoclient.ProductDisbursement} {
		if err := momo.CheckCredentials(product); err != nil {
			logger.Warn("momo product not configured", zap.String("product", string(product)))
		}
	}

	sms := smsclient.NewClient(cfg.SMSServiceURL, cfg.SMSAPIKey)
	if !sms.Configured() {
		logger.Warn("sms service url not configured; notifications will be dropped", zap.String("env", "SMS_SERVICE_URL"))
	}

	var publisher rabbitmq.Publisher = &rabbitmq.EventProducerFallback{Logger: logger}
	var notifier app.Notifier = app.NewDirectNotifier(sms)
	if cfg.RabbitMQURL != "" {
		producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Warn("rabbitmq producer unavailable; using fallback", zap.Error(err))
		} else {
			defer producer.Close()
			publisher = producer
			notifier = app.NewQueuedNotifier(producer)
			startNotificationConsumer(cfg, sms, logger)
		}
	}

	repository := store.NewPostgresRepository(dbpool)
	service := app.NewService(repository, momo, notifier, publisher, logger, app.Options{
		Currency:             momo.Currency(),
		CountryCode:          cfg.MomoCountryCode,
		MaxTransactionAmount: maxAmount,
		InitiationRateLimit:  cfg.InitiationRateLimit,
		PendingExpiry:        cfg.PendingExpiry(),
		Location:             location,
	})
	if redisClient != nil && cfg.InitiationRateLimit > 0 {
		service.SetInitiationCounter(app.NewRedisInitiationCounter(redisClient, cfg.RedisKeyPrefix))
	}

	handler := api.NewHandler(service, cfg.MomoWebhookSecret, api.ReconcileOptions{
		MinAge: cfg.ReconcileMinAge(),
		Limit:  cfg.ReconcileBatchSize,
	}, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		JWTSecret:      cfg.AuthJWTSecret,
		JWTAudience:    cfg.AuthAudience,
		InternalAPIKey: cfg.InternalAPIKey,
		AllowedOrigins: cfg.AllowedOrigins(),
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server stopped unexpectedly", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown started")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// connectRedis returns nil when Redis is not configured or unreachable; the
// service then falls back to in-process token caching and no rate limiting.
func connectRedis(url string, logger *zap.Logger) *redis.Client {
	if url == "" {
		logger.Info("redis url not configured; using in-process token cache", zap.String("env", "REDIS_URL"))
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		logger.Warn("redis url parse failed; redis features disabled", zap.Error(err))
		return nil
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping failed; redis features disabled", zap.Error(err))
		client.Close()
		return nil
	}
	logger.Info("redis connected")
	return client
}

// startNotificationConsumer delivers queued SMS requests in-process. A failure to
// start only disables queued delivery; requests stay in the durable queue.
func startNotificationConsumer(cfg config.Config, sms *smsclient.Client, logger *zap.Logger) {
	consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Warn("rabbitmq consumer unavailable; queued notifications will not be delivered", zap.Error(err))
		return
	}
	handler := app.NewNotificationConsumer(sms, logger)
	bindings := map[string]func([]byte) bool{
		domain.RoutingKeySMSRequested: handler.HandleMessage,
	}
	if err := consumer.ConsumeWithBindings(domain.EventsExchange, cfg.NotificationQueue, bindings); err != nil {
		logger.Warn("notification consumer start failed", zap.Error(err))
		consumer.Close()
		return
	}
	logger.Info("notification consumer started", zap.String("queue", cfg.NotificationQueue))
}
