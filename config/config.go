package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

/* Engine configuration loaded from a .env file plus environment variables
 * Environment always wins, so containerized deployments need no file at all
 */

type Config struct {
	Port          string `mapstructure:"PORT"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	Concurrency   int    `mapstructure:"CONCURRENCY"`
	RateLimit     int    `mapstructure:"RATE_LIMIT"`
	RateWindowSec int    `mapstructure:"RATE_WINDOW_SEC"`
	WebhooksFile  string `mapstructure:"WEBHOOKS_FILE"`
}

func GetConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("toml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("REDIS_ADDR", "")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("CONCURRENCY", 10)
	viper.SetDefault("RATE_LIMIT", 50)
	viper.SetDefault("RATE_WINDOW_SEC", 60)
	viper.SetDefault("WEBHOOKS_FILE", "")

	err := viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No .env file: run on environment variables and defaults
	}

	var config Config
	err = viper.Unmarshal(&config)
	if err != nil {
		return nil, fmt.Errorf("parsing config data: %w", err)
	}
	return &config, nil
}

// RateWindow returns the configured rate limit window.
func (c *Config) RateWindow() time.Duration {
	if c.RateWindowSec <= 0 {
		return time.Minute
	}
	return time.Duration(c.RateWindowSec) * time.Second
}

// UseRedis reports whether durable Redis backends are configured.
func (c *Config) UseRedis() bool {
	return c.RedisAddr != ""
}
