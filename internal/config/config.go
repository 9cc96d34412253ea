package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config stores all infrastructure configuration for the service.
// Pipeline behaviour that belongs to the user (enabled sites, weights,
// blacklist) lives in storage, not here.
type Config struct {
	PostgresURL string `mapstructure:"POSTGRES_URL"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"`
	ServerPort  string `mapstructure:"SERVER_PORT"`

	ScrapeWorkers int `mapstructure:"SCRAPE_WORKERS"`
	MaxRetries    int `mapstructure:"MAX_RETRIES"`

	FetchTimeoutSec  int `mapstructure:"FETCH_TIMEOUT"`
	MinDelayMs       int `mapstructure:"MIN_DELAY_MS"`
	MaxDelayMs       int `mapstructure:"MAX_DELAY_MS"`
	SiteGapMinMs     int `mapstructure:"SITE_GAP_MIN_MS"`
	SiteGapMaxMs     int `mapstructure:"SITE_GAP_MAX_MS"`
	SeenCacheTTLDays int `mapstructure:"SEEN_CACHE_TTL_DAYS"`
}

// Load reads configuration from the .env file or environment variables.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	// The .env file is optional so production can configure purely
	// through the environment.
	_ = viper.ReadInConfig()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SCRAPE_WORKERS", 2)
	viper.SetDefault("MAX_RETRIES", 3)
	viper.SetDefault("FETCH_TIMEOUT", 20) // seconds
	viper.SetDefault("MIN_DELAY_MS", 1000)
	viper.SetDefault("MAX_DELAY_MS", 3000)
	viper.SetDefault("SITE_GAP_MIN_MS", 5000)
	viper.SetDefault("SITE_GAP_MAX_MS", 10000)
	viper.SetDefault("SEEN_CACHE_TTL_DAYS", 2)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FetchTimeout returns the per-request timeout as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSec) * time.Second
}
