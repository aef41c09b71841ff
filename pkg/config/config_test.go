package config_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rikongha/CoinTaxman/pkg/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, time.Now().Year()-1, cfg.TaxYear)
	assert.Equal(t, config.CostingFIFO, cfg.CostingMethod)
	assert.True(t, cfg.FreigrenzePrivSales.Equal(decimal.NewFromInt(1000)))
	assert.True(t, cfg.FreigrenzeOtherInc.Equal(decimal.NewFromInt(256)))
	assert.Equal(t, 15*time.Minute, cfg.TransferMatchWindow)
	assert.Equal(t, "prices.db", cfg.PriceDBPath)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("TAX_YEAR", "2022")
	t.Setenv("COSTING_METHOD", "AVERAGE")
	t.Setenv("FREIGRENZE_PRIVATE_SALES", "600")
	t.Setenv("TRANSFER_MATCH_WINDOW", "1h")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 2022, cfg.TaxYear)
	assert.Equal(t, config.CostingAverage, cfg.CostingMethod, "method is lowercased")
	// Pre-2024 the §23 Freigrenze was 600 EUR; it stays configurable per year.
	assert.True(t, cfg.FreigrenzePrivSales.Equal(decimal.NewFromInt(600)))
	assert.Equal(t, time.Hour, cfg.TransferMatchWindow)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown costing method", "COSTING_METHOD", "lifo"},
		{"tax year before crypto existed", "TAX_YEAR", "2005"},
		{"negative threshold", "FREIGRENZE_PRIVATE_SALES", "-1"},
		{"malformed threshold", "FREIGRENZE_OTHER_INCOME", "lots"},
		{"malformed window", "TRANSFER_MATCH_WINDOW", "soon"},
		{"zero window", "TRANSFER_MATCH_WINDOW", "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}
