/**
 * @description
 * This package handles the configuration management for the service. It uses
 * the Viper library to read configuration from environment variables,
 * providing a centralized and straightforward way to manage application
 * settings, including the fixed token catalog seeded at startup.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
	"github.com/transfa/ledger-service/internal/domain"
)

// defaultTokenCatalog seeds the catalog when TOKEN_CATALOG_JSON is unset.
const defaultTokenCatalog = `[
  {"name": "Gold", "description": "Premium transfer token", "unit_price": 10, "origin": "mint"},
  {"name": "Silver", "description": "Standard transfer token", "unit_price": 5, "origin": "mint"},
  {"name": "Bronze", "description": "Basic transfer token", "unit_price": 1, "origin": "mint"}
]`

// Config holds all the configuration variables for the ledger-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                 string `mapstructure:"SERVER_PORT"`
	DatabaseURL                string `mapstructure:"DATABASE_URL"`
	RedisURL                   string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix       string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                string `mapstructure:"RABBITMQ_URL"`
	JWTSecret                  string `mapstructure:"JWT_SECRET"`
	SessionTTLMinutes          int    `mapstructure:"SESSION_TTL_MINUTES"`
	InternalAPIKey             string `mapstructure:"INTERNAL_API_KEY"`
	TransferRateLimitPerMinute int    `mapstructure:"TRANSFER_RATE_LIMIT_PER_MINUTE"`
	TokenCatalogJSON           string `mapstructure:"TOKEN_CATALOG_JSON"`
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

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "ledger:rate_limit")
	viper.SetDefault("SESSION_TTL_MINUTES", 60)
	viper.SetDefault("TRANSFER_RATE_LIMIT_PER_MINUTE", 60)
	viper.SetDefault("TOKEN_CATALOG_JSON", defaultTokenCatalog)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("SESSION_TTL_MINUTES")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "LEDGER_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("TRANSFER_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("TOKEN_CATALOG_JSON")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("LEDGER_SERVICE_INTERNAL_API_KEY"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "ledger:rate_limit"
	}
	if config.SessionTTLMinutes <= 0 {
		config.SessionTTLMinutes = 60
	}

	return
}

// TokenCatalog parses the configured catalog JSON into token types. The
// catalog is validated here so the store never sees a non-positive price.
func (c Config) TokenCatalog() ([]domain.TokenType, error) {
	var catalog []domain.TokenType
	if err := json.Unmarshal([]byte(c.TokenCatalogJSON), &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse TOKEN_CATALOG_JSON: %w", err)
	}
	seen := make(map[string]bool, len(catalog))
	for _, t := range catalog {
		if strings.TrimSpace(t.Name) == "" {
			return nil, fmt.Errorf("token catalog entry with empty name")
		}
		if t.UnitPrice <= 0 {
			return nil, fmt.Errorf("token %q has non-positive unit price %d", t.Name, t.UnitPrice)
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("duplicate token %q in catalog", t.Name)
		}
		seen[t.Name] = true
	}
	return catalog, nil
}
