/**
 * @description
 * This package handles the configuration management for the momo-service and the
 * scheduler. It uses the Viper library to read configuration from environment
 * variables and an optional .env file.
 *
 * @dependencies
 * - github.com/spf13/viper: configuration loading.
 * - github.com/shopspring/decimal: transaction amount caps.
 */

package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the momo-service.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisKeyPrefix       string `mapstructure:"REDIS_KEY_PREFIX"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	NotificationQueue    string `mapstructure:"NOTIFICATION_QUEUE"`
	InternalAPIKey       string `mapstructure:"INTERNAL_API_KEY"`
	AuthJWTSecret        string `mapstructure:"AUTH_JWT_SECRET"`
	AuthAudience         string `mapstructure:"AUTH_AUDIENCE"`
	CORSAllowedOrigins   string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	SMSServiceURL        string `mapstructure:"SMS_SERVICE_URL"`
	SMSAPIKey            string `mapstructure:"SMS_API_KEY"`
	BusinessTimezone     string `mapstructure:"BUSINESS_TIMEZONE"`
	MaxTransactionAmount string `mapstructure:"MAX_TRANSACTION_AMOUNT"`
	InitiationRateLimit  int    `mapstructure:"INITIATION_RATE_LIMIT_PER_MINUTE"`
	PendingExpiryHours   int    `mapstructure:"PENDING_EXPIRY_HOURS"`
	ReconcileMinAgeMin   int    `mapstructure:"RECONCILE_MIN_AGE_MINUTES"`
	ReconcileBatchSize   int    `mapstructure:"RECONCILE_BATCH_SIZE"`

	MomoBaseURL                     string `mapstructure:"MOMO_BASE_URL"`
	MomoTargetEnvironment           string `mapstructure:"MOMO_TARGET_ENVIRONMENT"`
	MomoCurrency                    string `mapstructure:"MOMO_CURRENCY"`
	MomoCallbackURL                 string `mapstructure:"MOMO_CALLBACK_URL"`
	MomoCountryCode                 string `mapstructure:"MOMO_COUNTRY_CODE"`
	MomoWebhookSecret               string `mapstructure:"MOMO_WEBHOOK_SECRET"`
	MomoTokenExpirySkewSeconds      int    `mapstructure:"MOMO_TOKEN_EXPIRY_SKEW_SECONDS"`
	MomoCollectionSubscriptionKey   string `mapstructure:"MOMO_COLLECTION_SUBSCRIPTION_KEY"`
	MomoCollectionAPIUser           string `mapstructure:"MOMO_COLLECTION_API_USER"`
	MomoCollectionAPIKey            string `mapstructure:"MOMO_COLLECTION_API_KEY"`
	MomoDisbursementSubscriptionKey string `mapstructure:"MOMO_DISBURSEMENT_SUBSCRIPTION_KEY"`
	MomoDisbursementAPIUser         string `mapstructure:"MOMO_DISBURSEMENT_API_USER"`
	MomoDisbursementAPIKey          string `mapstructure:"MOMO_DISBURSEMENT_API_KEY"`
}

// LoadConfig reads configuration from environment variables and an optional
// .env file in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_KEY_PREFIX", "shesaves")
	viper.SetDefault("NOTIFICATION_QUEUE", "momo_service.sms_requests")
	viper.SetDefault("BUSINESS_TIMEZONE", "Africa/Kigali")
	viper.SetDefault("INITIATION_RATE_LIMIT_PER_MINUTE", 5)
	viper.SetDefault("PENDING_EXPIRY_HOURS", 24)
	viper.SetDefault("RECONCILE_MIN_AGE_MINUTES", 5)
	viper.SetDefault("RECONCILE_BATCH_SIZE", 100)
	viper.SetDefault("MOMO_BASE_URL", "https://sandbox.momodeveloper.mtn.com")
	viper.SetDefault("MOMO_TARGET_ENVIRONMENT", "sandbox")
	viper.SetDefault("MOMO_CURRENCY", "EUR")
	viper.SetDefault("MOMO_COUNTRY_CODE", "250")
	viper.SetDefault("MOMO_TOKEN_EXPIRY_SKEW_SECONDS", 60)

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "MOMO_REDIS_URL")
	_ = viper.BindEnv("REDIS_KEY_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("NOTIFICATION_QUEUE")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "MOMO_INTERNAL_API_KEY")
	_ = viper.BindEnv("AUTH_JWT_SECRET", "AUTH_JWT_SECRET", "SUPABASE_JWT_SECRET")
	_ = viper.BindEnv("AUTH_AUDIENCE")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("SMS_SERVICE_URL")
	_ = viper.BindEnv("SMS_API_KEY")
	_ = viper.BindEnv("BUSINESS_TIMEZONE")
	_ = viper.BindEnv("MAX_TRANSACTION_AMOUNT")
	_ = viper.BindEnv("INITIATION_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("PENDING_EXPIRY_HOURS")
	_ = viper.BindEnv("RECONCILE_MIN_AGE_MINUTES")
	_ = viper.BindEnv("RECONCILE_BATCH_SIZE")
	_ = viper.BindEnv("MOMO_BASE_URL")
	_ = viper.BindEnv("MOMO_TARGET_ENVIRONMENT")
	_ = viper.BindEnv("MOMO_CURRENCY")
	_ = viper.BindEnv("MOMO_CALLBACK_URL")
	_ = viper.BindEnv("MOMO_COUNTRY_CODE")
	_ = viper.BindEnv("MOMO_WEBHOOK_SECRET")
	_ = viper.BindEnv("MOMO_TOKEN_EXPIRY_SKEW_SECONDS")
	_ = viper.BindEnv("MOMO_COLLECTION_SUBSCRIPTION_KEY", "MOMO_COLLECTION_SUBSCRIPTION_KEY", "MOMO_COLLECTION_PRIMARY_KEY")
	_ = viper.BindEnv("MOMO_COLLECTION_API_USER")
	_ = viper.BindEnv("MOMO_COLLECTION_API_KEY")
	_ = viper.BindEnv("MOMO_DISBURSEMENT_SUBSCRIPTION_KEY", "MOMO_DISBURSEMENT_SUBSCRIPTION_KEY", "MOMO_DISBURSEMENT_PRIMARY_KEY")
	_ = viper.BindEnv("MOMO_DISBURSEMENT_API_USER")
	_ = viper.BindEnv("MOMO_DISBURSEMENT_API_KEY")

	// The .env file is optional.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.InternalAPIKey = strings.TrimSpace(config.InternalAPIKey)
	if config.InternalAPIKey == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("MOMO_INTERNAL_API_KEY"))
	}
	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.RedisKeyPrefix = strings.TrimSpace(config.RedisKeyPrefix)
	if config.RedisKeyPrefix == "" {
		config.RedisKeyPrefix = "shesaves"
	}
	config.MomoBaseURL = strings.TrimSuffix(strings.TrimSpace(config.MomoBaseURL), "/")
	config.MomoCurrency = strings.ToUpper(strings.TrimSpace(config.MomoCurrency))
	config.MomoCountryCode = strings.TrimPrefix(strings.TrimSpace(config.MomoCountryCode), "+")

	if config.InitiationRateLimit < 0 {
		config.InitiationRateLimit = 0
	}
	if config.PendingExpiryHours <= 0 {
		config.PendingExpiryHours = 24
	}
	if config.ReconcileMinAgeMin <= 0 {
		config.ReconcileMinAgeMin = 5
	}
	if config.ReconcileBatchSize <= 0 {
		config.ReconcileBatchSize = 100
	}
	if config.MomoTokenExpirySkewSeconds < 0 {
		config.MomoTokenExpirySkewSeconds = 0
	}

	return
}

// Validate reports the first missing required setting by its env name.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if strings.TrimSpace(c.AuthJWTSecret) == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	// The internal triggers credit ledgers, so they are never left open.
	if strings.TrimSpace(c.InternalAPIKey) == "" {
		return fmt.Errorf("INTERNAL_API_KEY is required")
	}
	for _, origin := range c.AllowedOrigins() {
		if strings.Contains(origin, "*") {
			return fmt.Errorf("CORS_ALLOWED_ORIGINS must list explicit origins, got %q", origin)
		}
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("BUSINESS_TIMEZONE %q: %w", c.BusinessTimezone, err)
	}
	if _, err := c.MaxAmount(); err != nil {
		return fmt.Errorf("MAX_TRANSACTION_AMOUNT %q: %w", c.MaxTransactionAmount, err)
	}
	return nil
}

// Location resolves BUSINESS_TIMEZONE.
func (c Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.BusinessTimezone)
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

// MaxAmount parses MAX_TRANSACTION_AMOUNT. Zero means no cap.
func (c Config) MaxAmount() (decimal.Decimal, error) {
	raw := strings.TrimSpace(c.MaxTransactionAmount)
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

// PendingExpiry is how long a payment may stay PENDING before it is expired.
func (c Config) PendingExpiry() time.Duration {
	return time.Duration(c.PendingExpiryHours) * time.Hour
}

// ReconcileMinAge is the minimum age of a PENDING row before it is polled.
func (c Config) ReconcileMinAge() time.Duration {
	return time.Duration(c.ReconcileMinAgeMin) * time.Minute
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS.
func (c Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
