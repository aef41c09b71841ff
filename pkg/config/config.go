package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Costing method values accepted by COSTING_METHOD.
const (
	CostingFIFO    = "fifo"
	CostingAverage = "average"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port string
	Env  string

	// Tax engine configuration
	TaxYear             int
	CostingMethod       string // used when a ledger has no locked method
	FreigrenzePrivSales decimal.Decimal
	FreigrenzeOtherInc  decimal.Decimal
	TransferMatchWindow time.Duration

	// Price database (EUR fair-market values)
	PriceDBPath string

	// CORS
	AllowedOrigins []string
}

// Load loads configuration from a .env file (if present) and environment variables
func Load() (*Config, error) {
	// A missing .env file is fine, plain env vars take over.
	_ = godotenv.Load()

	freiPriv, err := getEnvAsDecimal("FREIGRENZE_PRIVATE_SALES", "1000")
	if err != nil {
		return nil, err
	}
	freiInc, err := getEnvAsDecimal("FREIGRENZE_OTHER_INCOME", "256")
	if err != nil {
		return nil, err
	}
	window, err := getEnvAsDuration("TRANSFER_MATCH_WINDOW", "15m")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		Env:                 getEnv("ENV", "development"),
		TaxYear:             getEnvAsInt("TAX_YEAR", time.Now().Year()-1),
		CostingMethod:       strings.ToLower(getEnv("COSTING_METHOD", CostingFIFO)),
		FreigrenzePrivSales: freiPriv,
		FreigrenzeOtherInc:  freiInc,
		TransferMatchWindow: window,
		PriceDBPath:         getEnv("PRICE_DB_PATH", "prices.db"),
		AllowedOrigins:      splitAndTrim(getEnv("ALLOWED_ORIGINS", "*")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present and consistent
func (c *Config) Validate() error {
	if c.CostingMethod != CostingFIFO && c.CostingMethod != CostingAverage {
		return fmt.Errorf("COSTING_METHOD must be %q or %q, got %q", CostingFIFO, CostingAverage, c.CostingMethod)
	}

	if c.TaxYear < 2009 || c.TaxYear > time.Now().Year() {
		return fmt.Errorf("TAX_YEAR %d is outside the supported range", c.TaxYear)
	}

	if c.FreigrenzePrivSales.IsNegative() {
		return fmt.Errorf("FREIGRENZE_PRIVATE_SALES cannot be negative")
	}

	if c.FreigrenzeOtherInc.IsNegative() {
		return fmt.Errorf("FREIGRENZE_OTHER_INCOME cannot be negative")
	}

	if c.TransferMatchWindow <= 0 {
		return fmt.Errorf("TRANSFER_MATCH_WINDOW must be positive")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDecimal(key, defaultValue string) (decimal.Decimal, error) {
	raw := getEnv(key, defaultValue)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid decimal %q: %w", key, raw, err)
	}
	return d, nil
}

func getEnvAsDuration(key, defaultValue string) (time.Duration, error) {
	raw := getEnv(key, defaultValue)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, raw, err)
	}
	return d, nil
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
