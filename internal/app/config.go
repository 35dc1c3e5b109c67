package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/zaya-storefront/internal/domain/pricing"
)

// Config holds the complete application configuration, loadable from
// environment variables (ZAYA_ prefix), flags, or YAML config files.
type Config struct {
	Addr              string        `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL       string        `usage:"PostgreSQL connection URL (ZAYA_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL          string        `usage:"Redis connection URL (ZAYA_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	TokenPepper       string        `usage:"HMAC pepper for access token hashing (ZAYA_TOKEN_PEPPER)" flag:"token-pepper"`
	ImageBaseURL      string        `default:"" usage:"Base URL for product images (e.g. https://cdn.example.com/images)" flag:"image-base-url"`
	GuestPollInterval time.Duration `default:"300ms" usage:"How often guest cart streams re-read device storage" flag:"guest-poll-interval"`
	DeviceTTL         time.Duration `default:"720h" usage:"Expiry of idle device storage" flag:"device-ttl"`
	OrderCacheTTL     time.Duration `default:"10m" usage:"Order read cache TTL" flag:"order-cache-ttl"`
	StreamHeartbeat   time.Duration `default:"15s" usage:"Keep-alive interval for event streams" flag:"stream-heartbeat"`
	Pricing           PricingConfig
	Kafka             KafkaConfig
	RateLimit         RateLimitConfig
	CORS              CORSConfig
	Graceful          GracefulConfig
}

// PricingConfig is the delivery policy, in whole currency units.
type PricingConfig struct {
	FreeDeliveryThreshold int64 `default:"50000" usage:"Subtotal above which delivery is free"`
	DeliveryFee           int64 `default:"2500"  usage:"Delivery fee charged at or below the threshold"`
}

// Calculator returns the pricing calculator for this policy.
func (c PricingConfig) Calculator() pricing.Calculator {
	return pricing.Calculator{
		FreeDeliveryThreshold: decimal.NewFromInt(c.FreeDeliveryThreshold),
		DeliveryFee:           decimal.NewFromInt(c.DeliveryFee),
	}
}

// KafkaConfig controls notification publishing. Without brokers
// notifications are only logged.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka brokers for order notifications"`
	Topic   string   `default:"zaya.notifications" usage:"Notification topic"`
}

// RateLimitConfig controls the per-device rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "ZAYA",
		Files:     []string{"config.yaml", "/etc/zaya/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set ZAYA_DATABASE_URL or DATABASE_URL")
	case c.RedisURL == "":
		return errors.New("redis URL is required: set ZAYA_REDIS_URL or REDIS_URL")
	case c.TokenPepper == "":
		return errors.New("token pepper is required: set ZAYA_TOKEN_PEPPER")
	case c.Pricing.DeliveryFee < 0 || c.Pricing.FreeDeliveryThreshold < 0:
		return errors.New("pricing values must not be negative")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's ZAYA_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.RedisURL == "" {
		c.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
