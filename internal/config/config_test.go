package config

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

// configEnvKeys lists every variable Load reads, so tests start clean.
var configEnvKeys = []string{
	"CONFIG_FILE", "PORT", "ENVIRONMENT", "LOG_LEVEL", "GCP_PROJECT",
	"CART_API_URL", "CART_API_TOKEN", "CART_API_TOKEN_SECRET",
	"CART_API_CHROME_TLS", "CART_API_MIN_VERSION", "CART_REQUEST_TIMEOUT_MS",
	"CART_DEBOUNCE_MS", "CART_TAX_RATE", "CART_SHIPPING_FEE",
	"CART_FREE_SHIPPING_THRESHOLD", "CART_MIRROR_PATH", "CATALOG_CACHE_TTL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnvKeys {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("CART_API_URL", "https://shop.example.com/api")
	t.Setenv("CART_API_TOKEN", "tok")
	t.Setenv("CART_API_CHROME_TLS", "true")
	t.Setenv("CART_DEBOUNCE_MS", "1300")
	t.Setenv("CART_REQUEST_TIMEOUT_MS", "5000")
	t.Setenv("CART_TAX_RATE", "0.12")
	t.Setenv("CART_SHIPPING_FEE", "4.99")
	t.Setenv("CART_FREE_SHIPPING_THRESHOLD", "50")
	t.Setenv("CATALOG_CACHE_TTL", "10m")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.Environment != "development" {
		t.Errorf("Environment = %q, want development", cfg.Environment)
	}
	if !cfg.CartAPI.ChromeTLS {
		t.Error("ChromeTLS = false, want true")
	}
	if cfg.CartAPI.TokenSecret != defaultTokenSecret {
		t.Errorf("TokenSecret = %q, want %q", cfg.CartAPI.TokenSecret, defaultTokenSecret)
	}
	if cfg.DebounceDelay() != 1300*time.Millisecond {
		t.Errorf("DebounceDelay() = %v, want 1.3s", cfg.DebounceDelay())
	}
	if cfg.RequestTimeout() != 5*time.Second {
		t.Errorf("RequestTimeout() = %v, want 5s", cfg.RequestTimeout())
	}
	if ttl, _ := cfg.CatalogTTL(); ttl != 10*time.Minute {
		t.Errorf("CatalogTTL() = %v, want 10m", ttl)
	}

	pricing, err := cfg.BuildPricing()
	if err != nil {
		t.Fatalf("BuildPricing() error = %v", err)
	}
	if pricing.TaxRate.String() != "0.12" {
		t.Errorf("TaxRate = %s, want 0.12", pricing.TaxRate)
	}
	if pricing.ShippingFee != 499 {
		t.Errorf("ShippingFee = %d, want 499", pricing.ShippingFee)
	}
	if pricing.FreeShippingThreshold != 5000 {
		t.Errorf("FreeShippingThreshold = %d, want 5000", pricing.FreeShippingThreshold)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("CART_API_URL", "http://localhost:9000")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DebounceDelay() != 0 {
		t.Errorf("DebounceDelay() = %v, want 0 (controller default)", cfg.DebounceDelay())
	}
	if cfg.Cart.MirrorPath != "" {
		t.Errorf("MirrorPath = %q, want empty", cfg.Cart.MirrorPath)
	}
	pricing, err := cfg.BuildPricing()
	if err != nil {
		t.Fatalf("BuildPricing() error = %v", err)
	}
	if !pricing.TaxRate.IsZero() || pricing.ShippingFee != 0 {
		t.Errorf("pricing = %+v, want zero", pricing)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing base url",
			env:     map[string]string{},
			wantErr: "CART_API_URL",
		},
		{
			name:    "bad scheme",
			env:     map[string]string{"CART_API_URL": "ftp://shop"},
			wantErr: "scheme",
		},
		{
			name:    "debounce below band",
			env:     map[string]string{"CART_API_URL": "http://shop", "CART_DEBOUNCE_MS": "200"},
			wantErr: "debounce_ms",
		},
		{
			name:    "debounce above band",
			env:     map[string]string{"CART_API_URL": "http://shop", "CART_DEBOUNCE_MS": "3000"},
			wantErr: "debounce_ms",
		},
		{
			name:    "debounce not a number",
			env:     map[string]string{"CART_API_URL": "http://shop", "CART_DEBOUNCE_MS": "soon"},
			wantErr: "CART_DEBOUNCE_MS",
		},
		{
			name:    "chrome tls not a bool",
			env:     map[string]string{"CART_API_URL": "http://shop", "CART_API_CHROME_TLS": "maybe"},
			wantErr: "CART_API_CHROME_TLS",
		},
		{
			name:    "tax rate at one",
			env:     map[string]string{"CART_API_URL": "http://shop", "CART_TAX_RATE": "1"},
			wantErr: "tax_rate",
		},
		{
			name:    "negative shipping",
			env:     map[string]string{"CART_API_URL": "http://shop", "CART_SHIPPING_FEE": "-1"},
			wantErr: "shipping_fee",
		},
		{
			name:    "bad cache ttl",
			env:     map[string]string{"CART_API_URL": "http://shop", "CATALOG_CACHE_TTL": "forever"},
			wantErr: "catalog_cache_ttl",
		},
		{
			name:    "production without project",
			env:     map[string]string{"CART_API_URL": "https://shop", "ENVIRONMENT": "production"},
			wantErr: "GCP_PROJECT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(context.Background())
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)

	content := `{
		"port": "9090",
		"log_level": "debug",
		"cart_api": {
			"base_url": "https://shop.example.com/api",
			"token": "file-token",
			"min_version": "v2.1"
		},
		"cart": {
			"debounce_ms": 1000,
			"tax_rate": "0.07",
			"mirror_path": "/tmp/cart.db"
		}
	}`

	tmpFile, err := os.CreateTemp(t.TempDir(), "config-*.json")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()

	t.Setenv("CONFIG_FILE", tmpFile.Name())

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.Environment != "development" {
		t.Errorf("Environment = %q, want development", cfg.Environment)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.CartAPI.Token != "file-token" {
		t.Errorf("Token = %q, want file-token", cfg.CartAPI.Token)
	}
	if cfg.CartAPI.MinVersion != "v2.1" {
		t.Errorf("MinVersion = %q, want v2.1", cfg.CartAPI.MinVersion)
	}
	if cfg.DebounceDelay() != time.Second {
		t.Errorf("DebounceDelay() = %v, want 1s", cfg.DebounceDelay())
	}
	if cfg.Cart.MirrorPath != "/tmp/cart.db" {
		t.Errorf("MirrorPath = %q", cfg.Cart.MirrorPath)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	clearEnv(t)

	t.Run("missing file", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", "/nonexistent/config.json")
		_, err := Load(context.Background())
		if err == nil || !strings.Contains(err.Error(), "reading config file") {
			t.Errorf("error = %v, want reading config file", err)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		tmpFile, err := os.CreateTemp(t.TempDir(), "config-*.json")
		if err != nil {
			t.Fatal(err)
		}
		tmpFile.WriteString("{not json")
		tmpFile.Close()

		t.Setenv("CONFIG_FILE", tmpFile.Name())
		_, err = Load(context.Background())
		if err == nil || !strings.Contains(err.Error(), "parsing config file") {
			t.Errorf("error = %v, want parsing config file", err)
		}
	})

	t.Run("missing base url", func(t *testing.T) {
		tmpFile, err := os.CreateTemp(t.TempDir(), "config-*.json")
		if err != nil {
			t.Fatal(err)
		}
		tmpFile.WriteString(`{"cart_api": {}}`)
		tmpFile.Close()

		t.Setenv("CONFIG_FILE", tmpFile.Name())
		_, err = Load(context.Background())
		if err == nil || !strings.Contains(err.Error(), "base_url") {
			t.Errorf("error = %v, want base_url", err)
		}
	})
}
