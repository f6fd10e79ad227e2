// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/mbd888/aw3econ/internal/logging"
	"github.com/mbd888/aw3econ/internal/money"
	"github.com/mbd888/aw3econ/internal/tables"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Storage (both optional, in-memory stores when unset)
	DatabaseURL string
	RedisURL    string

	// Security
	QuoteSigningSecret string // HMAC secret for fee quote signatures
	RateLimitRPM       int
	RateLimitBurst     int
	CORSOrigins        []string

	// Observability
	OTLPEndpoint string

	// Economic tables. TablesFile is a YAML override file; the fee tier and
	// platform fee settings below are applied on top of it.
	TablesFile      string
	FeeTier1Max     string
	FeeTier2Max     string
	FeeTier3Max     string
	PlatformFeeRate string
}

const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultRateLimitRPM   = 600
	DefaultRateLimitBurst = 50
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", DefaultPort),
		Env:                getEnv("ENV", DefaultEnv),
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:          getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		QuoteSigningSecret: os.Getenv("QUOTE_SIGNING_SECRET"),
		RateLimitRPM:       getEnvInt("RATE_LIMIT_RPM", DefaultRateLimitRPM),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", DefaultRateLimitBurst),
		CORSOrigins:        getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TablesFile:         os.Getenv("ECON_TABLES_FILE"),
		FeeTier1Max:        os.Getenv("FEE_TIER1_MAX"),
		FeeTier2Max:        os.Getenv("FEE_TIER2_MAX"),
		FeeTier3Max:        os.Getenv("FEE_TIER3_MAX"),
		PlatformFeeRate:    os.Getenv("PLATFORM_FEE_RATE"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be numeric, got %q", c.Port)
	}
	if _, ok := logging.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json")
	}
	if c.RateLimitRPM <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPM and RATE_LIMIT_BURST must be positive")
	}
	if c.IsProduction() && c.QuoteSigningSecret == "" {
		return fmt.Errorf("QUOTE_SIGNING_SECRET is required in production")
	}

	if _, err := c.feeTiers(); err != nil {
		return err
	}
	if c.PlatformFeeRate != "" {
		rate, ok := money.Parse(c.PlatformFeeRate)
		if !ok || rate.IsNegative() || rate.GreaterThan(money.One) {
			return fmt.Errorf("PLATFORM_FEE_RATE must be a decimal between 0 and 1")
		}
	}
	return nil
}

// feeTiers parses the FEE_TIER*_MAX overrides. A nil slice means none set.
func (c *Config) feeTiers() ([]decimal.Decimal, error) {
	raw := []string{c.FeeTier1Max, c.FeeTier2Max, c.FeeTier3Max}
	if raw[0] == "" && raw[1] == "" && raw[2] == "" {
		return nil, nil
	}
	bounds := make([]decimal.Decimal, len(raw))
	for i, s := range raw {
		if s == "" {
			return nil, fmt.Errorf("FEE_TIER1_MAX, FEE_TIER2_MAX and FEE_TIER3_MAX must be set together")
		}
		d, ok := money.Parse(s)
		if !ok || !d.IsPositive() {
			return nil, fmt.Errorf("FEE_TIER%d_MAX must be a positive decimal", i+1)
		}
		if i > 0 && !d.GreaterThan(bounds[i-1]) {
			return nil, fmt.Errorf("fee tier bounds must be strictly ascending")
		}
		bounds[i] = d
	}
	return bounds, nil
}

// Tables builds the effective economic tables: defaults, then the tables
// file, then the env overrides.
func (c *Config) Tables() (tables.Tables, error) {
	t := tables.Default()
	if c.TablesFile != "" {
		loaded, err := tables.LoadFile(c.TablesFile)
		if err != nil {
			return tables.Tables{}, err
		}
		t = loaded
	}

	bounds, err := c.feeTiers()
	if err != nil {
		return tables.Tables{}, err
	}
	if bounds != nil {
		if len(t.BudgetTiers) != len(bounds) {
			return tables.Tables{}, fmt.Errorf("fee tier overrides need %d budget tiers, tables have %d", len(bounds), len(t.BudgetTiers))
		}
		tiers := make([]tables.BudgetTier, len(t.BudgetTiers))
		copy(tiers, t.BudgetTiers)
		for i, b := range bounds {
			tiers[i].UpperBound = b
		}
		t.BudgetTiers = tiers
	}
	if c.PlatformFeeRate != "" {
		t.PlatformFeeRate, _ = money.Parse(c.PlatformFeeRate)
	}

	if err := t.Validate(); err != nil {
		return tables.Tables{}, err
	}
	return t, nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
