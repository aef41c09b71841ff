package gains_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rikongha/CoinTaxman/internal/classify"
	"github.com/rikongha/CoinTaxman/internal/event"
	"github.com/rikongha/CoinTaxman/internal/gains"
	"github.com/rikongha/CoinTaxman/internal/inventory"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestHeldPastOneYear_Boundary(t *testing.T) {
	acquired := ts("2023-03-15T10:00:00Z")

	tests := []struct {
		name     string
		disposed time.Time
		taxFree  bool
	}{
		{"day before anniversary", ts("2024-03-14T10:00:00Z"), false},
		{"exactly one year", ts("2024-03-15T10:00:00Z"), false},
		{"one year and one second", ts("2024-03-15T10:00:01Z"), true},
		{"one year and a day", ts("2024-03-16T10:00:00Z"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.taxFree, gains.HeldPastOneYear(acquired, tt.disposed))
		})
	}
}

func TestCalculator_Disposal_TaxFreeAfterOneYear(t *testing.T) {
	c := gains.NewCalculator()

	// Bought 1 BTC for 20000, sold 400 days later for 25000.
	acquired := ts("2023-01-01T00:00:00Z")
	ev := &event.Event{
		Timestamp: acquired.AddDate(0, 0, 400),
		WalletID:  "w1",
		Asset:     "BTC",
		Quantity:  d("1"),
		Direction: event.DirectionOutflow,
		Kind:      event.KindSell,
	}
	consumed := []inventory.Consumption{
		{AcquiredAt: acquired, UnitCostEUR: d("20000"), Quantity: d("1")},
	}

	out, err := c.Disposal(ev, classify.BucketPrivateSales, d("25000"), consumed)
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.True(t, out[0].RealizedEUR.Equal(d("5000")))
	assert.Equal(t, 400, out[0].HoldingDays)
	assert.True(t, out[0].TaxFree, "held past one year")
}

func TestCalculator_Disposal_ProratesAcrossLots(t *testing.T) {
	c := gains.NewCalculator()

	ev := &event.Event{
		Timestamp: ts("2024-02-01T00:00:00Z"),
		WalletID:  "w1",
		Asset:     "BTC",
		Quantity:  d("2"),
		Direction: event.DirectionOutflow,
		Kind:      event.KindSell,
		Fee:       &event.Fee{Amount: d("16"), Asset: "EUR", ValueEUR: d("16")},
	}
	consumed := []inventory.Consumption{
		// Old lot, held over a year.
		{AcquiredAt: ts("2023-01-01T00:00:00Z"), UnitCostEUR: d("20000"), Quantity: d("1.5")},
		// Young lot.
		{AcquiredAt: ts("2023-11-01T00:00:00Z"), UnitCostEUR: d("30000"), Quantity: d("0.5")},
	}

	out, err := c.Disposal(ev, classify.BucketPrivateSales, d("60000"), consumed)
	require.NoError(t, err)
	require.Len(t, out, 2)

	// Lot 1: 3/4 of proceeds and fees.
	assert.True(t, out[0].ProceedsEUR.Equal(d("45000")), "got %s", out[0].ProceedsEUR)
	assert.True(t, out[0].CostBasisEUR.Equal(d("30012")), "basis includes 3/4 of the fee")
	assert.True(t, out[0].TaxFree)

	// Lot 2: 1/4 of proceeds and fees.
	assert.True(t, out[1].ProceedsEUR.Equal(d("15000")))
	assert.True(t, out[1].CostBasisEUR.Equal(d("15004")))
	assert.False(t, out[1].TaxFree)
	assert.True(t, out[1].RealizedEUR.Equal(d("-4")))
}

func TestCalculator_Disposal_RejectsBadInput(t *testing.T) {
	c := gains.NewCalculator()

	ev := &event.Event{
		Timestamp: ts("2024-02-01T00:00:00Z"),
		WalletID:  "w1",
		Asset:     "BTC",
		Quantity:  d("1"),
		Direction: event.DirectionOutflow,
		Kind:      event.KindSell,
	}

	t.Run("negative proceeds", func(t *testing.T) {
		_, err := c.Disposal(ev, classify.BucketPrivateSales, d("-1"), []inventory.Consumption{
			{AcquiredAt: ts("2023-01-01T00:00:00Z"), UnitCostEUR: d("1"), Quantity: d("1")},
		})
		assert.ErrorIs(t, err, gains.ErrNegativeAmount)
	})

	t.Run("disposal before acquisition", func(t *testing.T) {
		_, err := c.Disposal(ev, classify.BucketPrivateSales, d("100"), []inventory.Consumption{
			{AcquiredAt: ts("2024-06-01T00:00:00Z"), UnitCostEUR: d("1"), Quantity: d("1")},
		})
		assert.ErrorIs(t, err, gains.ErrTimestampOrdering)
	})
}

func TestCalculator_Income(t *testing.T) {
	c := gains.NewCalculator()

	ev := &event.Event{
		Timestamp: ts("2024-04-01T00:00:00Z"),
		WalletID:  "w1",
		Asset:     "ETH",
		Quantity:  d("0.1"),
		ValueEUR:  d("200"),
		Direction: event.DirectionInflow,
		Kind:      event.KindStakingReward,
	}

	te, err := c.Income(ev, classify.BucketOtherIncome)
	require.NoError(t, err)

	assert.Equal(t, classify.BucketOtherIncome, te.Bucket)
	assert.True(t, te.ProceedsEUR.Equal(d("200")))
	assert.True(t, te.CostBasisEUR.IsZero())
	assert.True(t, te.RealizedEUR.Equal(d("200")))
	assert.False(t, te.TaxFree, "income never becomes tax-free by holding")

	t.Run("validator fee reduces income", func(t *testing.T) {
		withFee := *ev
		withFee.Fee = &event.Fee{Amount: d("0.001"), Asset: "ETH", ValueEUR: d("2")}
		te, err := c.Income(&withFee, classify.BucketOtherIncome)
		require.NoError(t, err)
		assert.True(t, te.RealizedEUR.Equal(d("198")))
	})
}

func TestCalculator_Settlement(t *testing.T) {
	c := gains.NewCalculator()

	t.Run("profit", func(t *testing.T) {
		te, err := c.Settlement(&event.Event{
			Timestamp: ts("2024-05-01T00:00:00Z"),
			WalletID:  "w1",
			Asset:     "USDT",
			Quantity:  d("500"),
			ValueEUR:  d("500"),
			Direction: event.DirectionInflow,
			Kind:      event.KindMarginSettlement,
		})
		require.NoError(t, err)
		assert.Equal(t, classify.BucketCapitalIncome, te.Bucket)
		assert.True(t, te.RealizedEUR.Equal(d("500")))
	})

	t.Run("loss", func(t *testing.T) {
		te, err := c.Settlement(&event.Event{
			Timestamp: ts("2024-05-02T00:00:00Z"),
			WalletID:  "w1",
			Asset:     "USDT",
			Quantity:  d("300"),
			ValueEUR:  d("300"),
			Direction: event.DirectionOutflow,
			Kind:      event.KindMarginSettlement,
		})
		require.NoError(t, err)
		assert.True(t, te.RealizedEUR.Equal(d("-300")))
	})
}
