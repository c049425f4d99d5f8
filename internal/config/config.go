// Package config handles loading and validation of service configuration.
// Supports both development (env vars, .env, CONFIG_FILE) and production
// (Secret Manager for the cart API token) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"storefront-cart/internal/model"
)

// Debounce delays outside this band make the cart feel either laggy or chatty.
const (
	MinDebounce = 1000 * time.Millisecond
	MaxDebounce = 1500 * time.Millisecond
)

// defaultTokenSecret is the Secret Manager secret holding the cart API token.
const defaultTokenSecret = "cart-api-token"

// Config holds all service configuration.
// Environment determines whether the API token loads from env vars
// (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject string

	CartAPI CartAPIConfig
	Cart    CartConfig
}

// CartAPIConfig describes the remote cart service.
type CartAPIConfig struct {
	BaseURL     string `json:"base_url"`
	Token       string `json:"token,omitempty"`
	TokenSecret string `json:"token_secret,omitempty"` // Secret Manager secret name (production)
	ChromeTLS   bool   `json:"chrome_tls,omitempty"`
	MinVersion  string `json:"min_version,omitempty"`
	TimeoutMS   int    `json:"timeout_ms,omitempty"`
}

// CartConfig holds cart behavior and pricing. Money values are major-unit
// decimal strings ("4.99").
type CartConfig struct {
	DebounceMS            int    `json:"debounce_ms,omitempty"`
	TaxRate               string `json:"tax_rate,omitempty"` // "0.12" for 12%
	ShippingFee           string `json:"shipping_fee,omitempty"`
	FreeShippingThreshold string `json:"free_shipping_threshold,omitempty"`
	MirrorPath            string `json:"mirror_path,omitempty"` // Empty disables the local mirror
	CatalogCacheTTL       string `json:"catalog_cache_ttl,omitempty"`
}

// Load reads configuration from file, environment, or Secret Manager.
// A .env file in the working directory is loaded first if present; it never
// overrides variables already set.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
func Load(ctx context.Context) (*Config, error) {
	_ = godotenv.Load() // loads .env if present

	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:        envOrDefault("PORT", "8080"),
		Environment: envOrDefault("ENVIRONMENT", "development"),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		GCPProject:  os.Getenv("GCP_PROJECT"),
		CartAPI: CartAPIConfig{
			BaseURL:     os.Getenv("CART_API_URL"),
			Token:       os.Getenv("CART_API_TOKEN"),
			TokenSecret: envOrDefault("CART_API_TOKEN_SECRET", defaultTokenSecret),
			MinVersion:  os.Getenv("CART_API_MIN_VERSION"),
		},
		Cart: CartConfig{
			TaxRate:               envOrDefault("CART_TAX_RATE", "0"),
			ShippingFee:           envOrDefault("CART_SHIPPING_FEE", "0"),
			FreeShippingThreshold: envOrDefault("CART_FREE_SHIPPING_THRESHOLD", "0"),
			MirrorPath:            os.Getenv("CART_MIRROR_PATH"),
			CatalogCacheTTL:       os.Getenv("CATALOG_CACHE_TTL"),
		},
	}

	var err error
	if cfg.CartAPI.ChromeTLS, err = envBool("CART_API_CHROME_TLS"); err != nil {
		return nil, err
	}
	if cfg.CartAPI.TimeoutMS, err = envInt("CART_REQUEST_TIMEOUT_MS"); err != nil {
		return nil, err
	}
	if cfg.Cart.DebounceMS, err = envInt("CART_DEBOUNCE_MS"); err != nil {
		return nil, err
	}

	if cfg.Environment == "production" && cfg.CartAPI.Token == "" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		if err := cfg.loadTokenFromSecretManager(ctx); err != nil {
			return nil, fmt.Errorf("loading cart API token: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig struct {
		Port        string        `json:"port"`
		Environment string        `json:"environment"`
		LogLevel    string        `json:"log_level"`
		CartAPI     CartAPIConfig `json:"cart_api"`
		Cart        CartConfig    `json:"cart"`
	}
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:        withDefault(fileConfig.Port, "8080"),
		Environment: withDefault(fileConfig.Environment, "development"),
		LogLevel:    withDefault(fileConfig.LogLevel, "info"),
		CartAPI:     fileConfig.CartAPI,
		Cart:        fileConfig.Cart,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// loadTokenFromSecretManager fetches the cart API token.
// Secret name format: projects/{project}/secrets/{token_secret}/versions/latest
func (c *Config) loadTokenFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.CartAPI.TokenSecret)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	c.CartAPI.Token = strings.TrimSpace(string(result.Payload.Data))
	return nil
}

// validate checks that all required configuration fields are present and
// that numeric settings parse.
func (c *Config) validate() error {
	if c.CartAPI.BaseURL == "" {
		return fmt.Errorf("cart_api.base_url is required (CART_API_URL)")
	}
	u, err := url.Parse(c.CartAPI.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid cart_api.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid cart_api.base_url: scheme must be http or https")
	}
	if c.Environment == "production" && c.CartAPI.Token == "" {
		return fmt.Errorf("cart_api.token is required in production")
	}
	if c.CartAPI.TimeoutMS < 0 {
		return fmt.Errorf("cart_api.timeout_ms must not be negative")
	}

	if ms := c.Cart.DebounceMS; ms != 0 {
		d := time.Duration(ms) * time.Millisecond
		if d < MinDebounce || d > MaxDebounce {
			return fmt.Errorf("cart.debounce_ms must be between %d and %d", MinDebounce.Milliseconds(), MaxDebounce.Milliseconds())
		}
	}

	if _, err := c.BuildPricing(); err != nil {
		return err
	}
	if _, err := c.CatalogTTL(); err != nil {
		return err
	}
	return nil
}

// DebounceDelay returns the configured quiet period, 0 meaning default.
func (c *Config) DebounceDelay() time.Duration {
	return time.Duration(c.Cart.DebounceMS) * time.Millisecond
}

// RequestTimeout returns the per-request timeout, 0 meaning default.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.CartAPI.TimeoutMS) * time.Millisecond
}

// CatalogTTL returns the fallback product cache TTL, 0 meaning default.
func (c *Config) CatalogTTL() (time.Duration, error) {
	if c.Cart.CatalogCacheTTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Cart.CatalogCacheTTL)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid cart.catalog_cache_ttl %q", c.Cart.CatalogCacheTTL)
	}
	return d, nil
}

// BuildPricing converts the cart money settings into pricing rules.
func (c *Config) BuildPricing() (model.Pricing, error) {
	rate, err := parseDecimal("cart.tax_rate", c.Cart.TaxRate)
	if err != nil {
		return model.Pricing{}, err
	}
	if rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return model.Pricing{}, fmt.Errorf("cart.tax_rate must be below 1 (got %s)", rate)
	}

	fee, err := parseDecimal("cart.shipping_fee", c.Cart.ShippingFee)
	if err != nil {
		return model.Pricing{}, err
	}
	threshold, err := parseDecimal("cart.free_shipping_threshold", c.Cart.FreeShippingThreshold)
	if err != nil {
		return model.Pricing{}, err
	}

	return model.Pricing{
		TaxRate:               rate,
		ShippingFee:           model.DecimalToCents(fee),
		FreeShippingThreshold: model.DecimalToCents(threshold),
	}, nil
}

// parseDecimal parses a non-negative decimal; empty means zero.
func parseDecimal(field, s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid %s %q: must not be negative", field, s)
	}
	return d, nil
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func envInt(key string) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func envBool(key string) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return b, nil
}
