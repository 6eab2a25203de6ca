package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// SchedulerConfig holds all configuration for the scheduler process.
type SchedulerConfig struct {
	PaymentsServiceURL  string `mapstructure:"PAYMENTS_SERVICE_URL"`
	InternalAPIKey      string `mapstructure:"INTERNAL_API_KEY"`
	AutoSavingsSchedule string `mapstructure:"AUTO_SAVINGS_SCHEDULE"`
	ReconcileSchedule   string `mapstructure:"RECONCILE_SCHEDULE"`
}

// LoadSchedulerConfig reads scheduler settings from environment variables.
func LoadSchedulerConfig() (*SchedulerConfig, error) {
	viper.SetDefault("PAYMENTS_SERVICE_URL", "http://localhost:8080")
	viper.SetDefault("AUTO_SAVINGS_SCHEDULE", "5 0 * * *") // 00:05 every day.
	viper.SetDefault("RECONCILE_SCHEDULE", "*/15 * * * *")
	viper.AutomaticEnv()

	_ = viper.BindEnv("PAYMENTS_SERVICE_URL", "PAYMENTS_SERVICE_URL", "MOMO_SERVICE_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "MOMO_INTERNAL_API_KEY")
	_ = viper.BindEnv("AUTO_SAVINGS_SCHEDULE")
	_ = viper.BindEnv("RECONCILE_SCHEDULE")

	var config SchedulerConfig
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.PaymentsServiceURL = strings.TrimSpace(config.PaymentsServiceURL)
	config.InternalAPIKey = strings.TrimSpace(config.InternalAPIKey)
	if config.PaymentsServiceURL == "" {
		return nil, fmt.Errorf("PAYMENTS_SERVICE_URL is required")
	}
	if config.InternalAPIKey == "" {
		return nil, fmt.Errorf("INTERNAL_API_KEY is required")
	}
	return &config, nil
}
