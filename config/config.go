package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Storage configuration
	StoreBackend string
	RedisURL     string

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUserID       string

	// Reservation configuration
	ReservationCodeLength   int
	ReservationCodeAttempts int
	PersistenceTimeout      time.Duration

	// Circuit breaker guarding the store
	BreakerMaxRequests  uint32
	BreakerInterval     time.Duration
	BreakerTimeout      time.Duration
	BreakerFailureRatio float64

	// Reservation creation requests per client per minute, 0 disables
	RateLimitPerMinute int

	// Monitoring
	EnableMetrics   bool
	MetricsInterval time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8090")
	v.SetDefault("environment", "development")

	v.SetDefault("store_backend", StoreMemory)
	v.SetDefault("redis_url", "localhost:6379")

	v.SetDefault("pubnub_publish_key", "")
	v.SetDefault("pubnub_subscribe_key", "")
	v.SetDefault("pubnub_secret_key", "")
	v.SetDefault("pubnub_user_id", "ticket-engine")

	v.SetDefault("reservation_code_length", 8)
	v.SetDefault("reservation_code_attempts", 5)
	v.SetDefault("persistence_timeout", 5*time.Second)

	v.SetDefault("breaker_max_requests", 100)
	v.SetDefault("breaker_interval", 60*time.Second)
	v.SetDefault("breaker_timeout", 60*time.Second)
	v.SetDefault("breaker_failure_ratio", 0.6)

	v.SetDefault("rate_limit_per_minute", 30)

	v.SetDefault("enable_metrics", true)
	v.SetDefault("metrics_interval", 30*time.Second)
}

// LoadConfig reads configuration from the environment and, when present,
// ./config/config.yaml. Environment variables win.
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.AutomaticEnv()
	return ParseConfig(v)
}

func ParseConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:        v.GetString("port"),
		Environment: v.GetString("environment"),

		StoreBackend: strings.ToLower(v.GetString("store_backend")),
		RedisURL:     v.GetString("redis_url"),

		PubNubPublishKey:   v.GetString("pubnub_publish_key"),
		PubNubSubscribeKey: v.GetString("pubnub_subscribe_key"),
		PubNubSecretKey:    v.GetString("pubnub_secret_key"),
		PubNubUserID:       v.GetString("pubnub_user_id"),

		ReservationCodeLength:   v.GetInt("reservation_code_length"),
		ReservationCodeAttempts: v.GetInt("reservation_code_attempts"),
		PersistenceTimeout:      v.GetDuration("persistence_timeout"),

		BreakerMaxRequests:  v.GetUint32("breaker_max_requests"),
		BreakerInterval:     v.GetDuration("breaker_interval"),
		BreakerTimeout:      v.GetDuration("breaker_timeout"),
		BreakerFailureRatio: v.GetFloat64("breaker_failure_ratio"),

		RateLimitPerMinute: v.GetInt("rate_limit_per_minute"),

		EnableMetrics:   v.GetBool("enable_metrics"),
		MetricsInterval: v.GetDuration("metrics_interval"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case StoreMemory, StoreRedis:
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.ReservationCodeLength < 4 || c.ReservationCodeLength > 32 {
		return fmt.Errorf("config: RESERVATION_CODE_LENGTH must be between 4 and 32, got %d", c.ReservationCodeLength)
	}
	if c.ReservationCodeAttempts < 1 {
		return fmt.Errorf("config: RESERVATION_CODE_ATTEMPTS must be positive")
	}
	if c.PersistenceTimeout <= 0 {
		return fmt.Errorf("config: PERSISTENCE_TIMEOUT must be positive")
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("config: RATE_LIMIT_PER_MINUTE must not be negative")
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		return fmt.Errorf("config: BREAKER_FAILURE_RATIO must be in (0, 1]")
	}
	return nil
}

func (c *Config) PubNubEnabled() bool {
	return c.PubNubPublishKey != "" && c.PubNubSubscribeKey != ""
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
