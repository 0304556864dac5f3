package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-cart/internal/domain/pricing"
)

// Storage backends for carts, products and tokens.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config holds the complete application configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr           string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage        string `default:"memory" usage:"Storage backend: memory or postgres"`
	DatabaseURL    string `usage:"PostgreSQL connection URL (STOREFRONT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL   string `default:"" usage:"Base URL for product images (e.g. https://cdn.example.com)" flag:"image-base-url"`
	APITokenPepper string `usage:"HMAC pepper for bearer token hashing" flag:"api-token-pepper"`

	// Tokens are raw bearer tokens accepted by the memory backend.
	Tokens    []string `usage:"Bearer tokens accepted by the memory backend"`
	Pricing   PricingConfig
	Cart      CartConfig
	OrderAPI  OrderAPIConfig
	Cookie    CookieConfig
	Events    EventsConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// PricingConfig is the checkout fee policy. Amounts are decimal strings.
type PricingConfig struct {
	DeliveryFee       string `default:"15000"  usage:"Flat delivery fee for non-empty carts" flag:"delivery-fee"`
	DiscountThreshold string `default:"200000" usage:"Subtotal above which the discount applies" flag:"discount-threshold"`
	DiscountAmount    string `default:"20000"  usage:"Discount subtracted above the threshold" flag:"discount-amount"`
	Precision         int32  `default:"0"      usage:"Decimal places totals are rounded to"`
}

// CartConfig controls cart limits and in-memory caching.
type CartConfig struct {
	MaxQuantity int           `default:"99" usage:"Maximum quantity of one product in a cart" flag:"max-quantity"`
	IdleTTL     time.Duration `default:"30m" usage:"Evict cached carts idle for this long" flag:"cart-idle-ttl"`
}

// OrderAPIConfig points at the external order API.
type OrderAPIConfig struct {
	BaseURL string        `usage:"Order API base URL" flag:"order-api-url"`
	Timeout time.Duration `default:"10s" usage:"Order API request timeout" flag:"order-api-timeout"`
}

// CookieConfig controls the anonymous cart cookie.
type CookieConfig struct {
	Secure bool          `default:"false" usage:"Mark the cart cookie Secure" flag:"cookie-secure"`
	MaxAge time.Duration `default:"720h" usage:"Cart cookie lifetime" flag:"cookie-max-age"`
}

// EventsConfig controls the cart event stream.
type EventsConfig struct {
	KeepAlive time.Duration `default:"25s" usage:"Interval between keep-alive comments" flag:"events-keepalive"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
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
		EnvPrefix: "STOREFRONT",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set STOREFRONT_DATABASE_URL or DATABASE_URL")
		}
	default:
		return errors.Errorf("unknown storage backend %q", c.Storage)
	}
	if c.OrderAPI.BaseURL == "" {
		return errors.New("order API base URL is required: set STOREFRONT_ORDER_API_BASE_URL")
	}
	if _, err := c.FeePolicy(); err != nil {
		return err
	}
	return nil
}

// FeePolicy parses the pricing section.
func (c *Config) FeePolicy() (pricing.FeePolicy, error) {
	var (
		p   = pricing.FeePolicy{Precision: c.Pricing.Precision}
		err error
	)
	if p.DeliveryFee, err = decimal.NewFromString(c.Pricing.DeliveryFee); err != nil {
		return p, errors.Wrap(err, "pricing delivery fee")
	}
	if p.DiscountThreshold, err = decimal.NewFromString(c.Pricing.DiscountThreshold); err != nil {
		return p, errors.Wrap(err, "pricing discount threshold")
	}
	if p.DiscountAmount, err = decimal.NewFromString(c.Pricing.DiscountAmount); err != nil {
		return p, errors.Wrap(err, "pricing discount amount")
	}
	if err := p.Validate(); err != nil {
		return p, errors.Wrap(err, "pricing")
	}
	return p, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STOREFRONT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
