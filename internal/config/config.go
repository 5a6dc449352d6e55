/**
 * @description
 * This package handles the configuration management for the service. It uses
 * the Viper library to read configuration from environment variables,
 * providing a centralized and straightforward way to manage application
 * settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the transfer-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort              string `mapstructure:"SERVER_PORT"`
	DatabaseURL             string `mapstructure:"DATABASE_URL"`
	RedisURL                string `mapstructure:"REDIS_URL"`
	RedisKeyPrefix          string `mapstructure:"REDIS_KEY_PREFIX"`
	RabbitMQURL             string `mapstructure:"RABBITMQ_URL"`
	LedgerAPIBaseURL        string `mapstructure:"LEDGER_API_BASE_URL"`
	LedgerAPIKey            string `mapstructure:"LEDGER_API_KEY"`
	LedgerAtomicTransfers   bool   `mapstructure:"LEDGER_ATOMIC_TRANSFERS"`
	AuthAPIBaseURL          string `mapstructure:"AUTH_API_BASE_URL"`
	AuthAPIKey              string `mapstructure:"AUTH_API_KEY"`
	DirectoryAPIBaseURL     string `mapstructure:"DIRECTORY_API_BASE_URL"`
	DirectoryAPIKey         string `mapstructure:"DIRECTORY_API_KEY"`
	JWKSURL                 string `mapstructure:"JWKS_URL"`
	FlatFeeCents            int64  `mapstructure:"TRANSFER_FLAT_FEE_CENTS"`
	FeeWaiverThresholdCents int64  `mapstructure:"TRANSFER_FEE_WAIVER_THRESHOLD_CENTS"`
	PerTransferLimitCents   int64  `mapstructure:"TRANSFER_PER_TRANSFER_LIMIT_CENTS"`
	SupportedCurrencies     string `mapstructure:"TRANSFER_SUPPORTED_CURRENCIES"`
	DraftTTLMinutes         int    `mapstructure:"TRANSFER_DRAFT_TTL_MINUTES"`
	PINMaxAttempts          int    `mapstructure:"TRANSFER_PIN_MAX_ATTEMPTS"`
	PINAttemptWindowSeconds int    `mapstructure:"TRANSFER_PIN_ATTEMPT_WINDOW_SECONDS"`
	SettlementTimeoutSecs   int    `mapstructure:"TRANSFER_SETTLEMENT_TIMEOUT_SECONDS"`
	MaxNoteLength           int    `mapstructure:"TRANSFER_MAX_NOTE_LENGTH"`
}

// LoadConfig reads configuration from environment variables from the given
// path. It uses Viper to automatically bind environment variables to the
// Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values. Fee, waiver threshold, and per-transfer ceiling
	// default to the reference behavior: 2.99 flat fee, waived above 100.00,
	// ceiling 5,000.00.
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_KEY_PREFIX", "kashly:transfer")
	viper.SetDefault("LEDGER_ATOMIC_TRANSFERS", true)
	viper.SetDefault("TRANSFER_FLAT_FEE_CENTS", 299)
	viper.SetDefault("TRANSFER_FEE_WAIVER_THRESHOLD_CENTS", 10000)
	viper.SetDefault("TRANSFER_PER_TRANSFER_LIMIT_CENTS", 500000)
	viper.SetDefault("TRANSFER_SUPPORTED_CURRENCIES", "USD,EUR,GBP,CAD")
	viper.SetDefault("TRANSFER_DRAFT_TTL_MINUTES", 60)
	viper.SetDefault("TRANSFER_PIN_MAX_ATTEMPTS", 3)
	viper.SetDefault("TRANSFER_PIN_ATTEMPT_WINDOW_SECONDS", 600)
	viper.SetDefault("TRANSFER_SETTLEMENT_TIMEOUT_SECONDS", 15)
	viper.SetDefault("TRANSFER_MAX_NOTE_LENGTH", 100)

	// Bind environment variables explicitly to ensure they appear in Unmarshal.
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_KEY_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("LEDGER_API_BASE_URL")
	_ = viper.BindEnv("LEDGER_API_KEY")
	_ = viper.BindEnv("LEDGER_ATOMIC_TRANSFERS")
	_ = viper.BindEnv("AUTH_API_BASE_URL")
	_ = viper.BindEnv("AUTH_API_KEY")
	_ = viper.BindEnv("DIRECTORY_API_BASE_URL")
	_ = viper.BindEnv("DIRECTORY_API_KEY")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("TRANSFER_FLAT_FEE_CENTS")
	_ = viper.BindEnv("TRANSFER_FEE_WAIVER_THRESHOLD_CENTS")
	_ = viper.BindEnv("TRANSFER_PER_TRANSFER_LIMIT_CENTS")
	_ = viper.BindEnv("TRANSFER_SUPPORTED_CURRENCIES")
	_ = viper.BindEnv("TRANSFER_DRAFT_TTL_MINUTES")
	_ = viper.BindEnv("TRANSFER_PIN_MAX_ATTEMPTS")
	_ = viper.BindEnv("TRANSFER_PIN_ATTEMPT_WINDOW_SECONDS")
	_ = viper.BindEnv("TRANSFER_SETTLEMENT_TIMEOUT_SECONDS")
	_ = viper.BindEnv("TRANSFER_MAX_NOTE_LENGTH")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if config.FlatFeeCents < 0 {
		log.Printf("level=warn component=config msg=\"negative flat fee configured; coercing to zero\" fee_cents=%d", config.FlatFeeCents)
		config.FlatFeeCents = 0
	}
	if config.FeeWaiverThresholdCents < 0 {
		config.FeeWaiverThresholdCents = 0
	}
	if config.PerTransferLimitCents <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive transfer ceiling configured; restoring default\" limit_cents=%d", config.PerTransferLimitCents)
		config.PerTransferLimitCents = 500000
	}
	if config.DraftTTLMinutes <= 0 {
		config.DraftTTLMinutes = 60
	}
	if config.PINMaxAttempts <= 0 {
		config.PINMaxAttempts = 3
	}
	if config.PINAttemptWindowSeconds <= 0 {
		config.PINAttemptWindowSeconds = 600
	}
	if config.SettlementTimeoutSecs <= 0 {
		config.SettlementTimeoutSecs = 15
	}
	if config.MaxNoteLength <= 0 {
		config.MaxNoteLength = 100
	}
	config.RedisKeyPrefix = strings.TrimSpace(config.RedisKeyPrefix)
	if config.RedisKeyPrefix == "" {
		config.RedisKeyPrefix = "kashly:transfer"
	}

	return
}

// Currencies splits the configured currency allowlist into a slice of
// upper-cased ISO codes.
func (c Config) Currencies() []string {
	parts := strings.Split(c.SupportedCurrencies, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		code := strings.ToUpper(strings.TrimSpace(p))
		if code != "" {
			out = append(out, code)
		}
	}
	return out
}
