package pricestore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rikongha/CoinTaxman/internal/event"
	"github.com/rikongha/CoinTaxman/internal/pricestore"
	"github.com/rikongha/CoinTaxman/pkg/logger"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func openStore(t *testing.T) *pricestore.Store {
	t.Helper()
	s, err := pricestore.Open(filepath.Join(t.TempDir(), "prices.db"), logger.NewDefault("test"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_SetAndGetPrice(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	day := time.Date(2024, 6, 1, 15, 30, 0, 0, time.UTC)

	require.NoError(t, s.SetPrice(ctx, "BTC", day, d("60000")))

	price, err := s.Price(ctx, "BTC", day)
	require.NoError(t, err)
	assert.True(t, price.Equal(d("60000")))

	t.Run("prices are daily, intraday time is ignored", func(t *testing.T) {
		price, err := s.Price(ctx, "BTC", time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.True(t, price.Equal(d("60000")))
	})

	t.Run("upsert overwrites", func(t *testing.T) {
		require.NoError(t, s.SetPrice(ctx, "BTC", day, d("61000")))
		price, err := s.Price(ctx, "BTC", day)
		require.NoError(t, err)
		assert.True(t, price.Equal(d("61000")))
	})

	t.Run("missing price", func(t *testing.T) {
		_, err := s.Price(ctx, "ETH", day)
		assert.ErrorIs(t, err, pricestore.ErrPriceNotFound)
	})

	t.Run("negative price rejected", func(t *testing.T) {
		assert.Error(t, s.SetPrice(ctx, "BTC", day, d("-1")))
	})
}

func TestStore_YearEndPrices(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	eoy := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SetPrice(ctx, "BTC", eoy, d("90000")))

	prices, err := s.YearEndPrices(ctx, []string{"BTC", "ETH"}, 2024)
	require.NoError(t, err)

	require.Contains(t, prices, "BTC")
	assert.True(t, prices["BTC"].Equal(d("90000")))
	assert.NotContains(t, prices, "ETH", "missing prices are absent, never guessed")
}

func TestStore_Enrich(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	day := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.SetPrice(ctx, "ETH", day, d("2000")))

	valued := &event.Event{Timestamp: day, Asset: "ETH", Quantity: d("2"), ValueEUR: d("3999")}
	missing := &event.Event{Timestamp: day, Asset: "ETH", Quantity: d("2")}
	unknown := &event.Event{Timestamp: day, Asset: "XMR", Quantity: d("5")}

	s.Enrich(ctx, []*event.Event{valued, missing, unknown})

	assert.True(t, valued.ValueEUR.Equal(d("3999")), "existing values are kept")
	assert.True(t, missing.ValueEUR.Equal(d("4000")), "quantity times daily price")
	assert.True(t, unknown.ValueEUR.IsZero(), "unknown assets stay unvalued")
}
