package inventory_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func TestLedger_FIFO_ConsumesOldestFirst(t *testing.T) {
	l := inventory.NewLedger("w1", "BTC")

	_, err := l.Acquire(inventory.MethodFIFO, d("1"), d("20000"), ts("2023-01-10T00:00:00Z"), "buy-1")
	require.NoError(t, err)
	_, err = l.Acquire(inventory.MethodFIFO, d("1"), d("30000"), ts("2023-06-10T00:00:00Z"), "buy-2")
	require.NoError(t, err)

	consumed, err := l.Dispose(d("1.5"), ts("2024-02-01T00:00:00Z"))
	require.NoError(t, err)
	require.Len(t, consumed, 2)

	assert.Equal(t, ts("2023-01-10T00:00:00Z"), consumed[0].AcquiredAt)
	assert.True(t, consumed[0].Quantity.Equal(d("1")))
	assert.True(t, consumed[0].UnitCostEUR.Equal(d("20000")))

	assert.Equal(t, ts("2023-06-10T00:00:00Z"), consumed[1].AcquiredAt)
	assert.True(t, consumed[1].Quantity.Equal(d("0.5")))
	assert.True(t, consumed[1].UnitCostEUR.Equal(d("30000")))

	assert.True(t, l.TotalQuantity().Equal(d("0.5")))
}

func TestLedger_FIFO_SortsByAcquisitionNotInsertion(t *testing.T) {
	l := inventory.NewLedger("w1", "ETH")

	// Migrated lots may arrive with acquisition dates older than lots
	// already in the ledger.
	_, err := l.Acquire(inventory.MethodFIFO, d("2"), d("1500"), ts("2023-05-01T00:00:00Z"), "buy-1")
	require.NoError(t, err)
	_, err = l.AcquireMigrated(inventory.MethodFIFO, inventory.Consumption{
		AcquiredAt:  ts("2023-01-01T00:00:00Z"),
		UnitCostEUR: d("1000"),
		Quantity:    d("1"),
		SourceRef:   "migrated",
	}, ts("2023-06-01T00:00:00Z"))
	require.NoError(t, err)

	consumed, err := l.Dispose(d("1"), ts("2023-07-01T00:00:00Z"))
	require.NoError(t, err)
	require.Len(t, consumed, 1)
	assert.Equal(t, ts("2023-01-01T00:00:00Z"), consumed[0].AcquiredAt)
	assert.True(t, consumed[0].UnitCostEUR.Equal(d("1000")))
}

func TestLedger_Average_BlendsCostAndDate(t *testing.T) {
	l := inventory.NewLedger("w1", "BTC")

	_, err := l.Acquire(inventory.MethodAverage, d("1"), d("20000"), ts("2023-01-01T00:00:00Z"), "buy-1")
	require.NoError(t, err)
	_, err = l.Acquire(inventory.MethodAverage, d("3"), d("40000"), ts("2023-03-01T00:00:00Z"), "buy-2")
	require.NoError(t, err)

	// (1*20000 + 3*40000) / 4 = 35000
	assert.True(t, l.AverageUnitCost().Equal(d("35000")), "got %s", l.AverageUnitCost())

	consumed, err := l.Dispose(d("2"), ts("2023-08-01T00:00:00Z"))
	require.NoError(t, err)
	require.Len(t, consumed, 1, "average disposal is one blended entry")
	assert.True(t, consumed[0].Quantity.Equal(d("2")))
	assert.True(t, consumed[0].UnitCostEUR.Equal(d("35000")))

	// Acquisition date is quantity weighted: 1/4 of Jan 1, 3/4 of Mar 1.
	want := ts("2023-01-01T00:00:00Z").Unix() + (ts("2023-03-01T00:00:00Z").Unix()-ts("2023-01-01T00:00:00Z").Unix())*3/4
	assert.InDelta(t, want, consumed[0].AcquiredAt.Unix(), 1)

	// Remaining pool keeps the same unit cost.
	assert.True(t, l.TotalQuantity().Equal(d("2")))
	assert.True(t, l.AverageUnitCost().Equal(d("35000")))
}

func TestLedger_MethodLockedUntilDepletion(t *testing.T) {
	l := inventory.NewLedger("w1", "BTC")

	_, err := l.Acquire(inventory.MethodFIFO, d("1"), d("10000"), ts("2023-01-01T00:00:00Z"), "buy-1")
	require.NoError(t, err)

	_, err = l.Acquire(inventory.MethodAverage, d("1"), d("12000"), ts("2023-02-01T00:00:00Z"), "buy-2")
	assert.ErrorIs(t, err, inventory.ErrMethodLockViolation)

	// Exact depletion unlocks the ledger.
	_, err = l.Dispose(d("1"), ts("2023-03-01T00:00:00Z"))
	require.NoError(t, err)
	assert.True(t, l.Depleted())

	_, err = l.Acquire(inventory.MethodAverage, d("1"), d("12000"), ts("2023-04-01T00:00:00Z"), "buy-3")
	require.NoError(t, err)
	assert.Equal(t, inventory.MethodAverage, l.Method())
}

func TestLedger_Dispose_InsufficientInventory(t *testing.T) {
	l := inventory.NewLedger("w1", "BTC")

	_, err := l.Acquire(inventory.MethodFIFO, d("1"), d("10000"), ts("2023-01-01T00:00:00Z"), "buy-1")
	require.NoError(t, err)

	_, err = l.Dispose(d("1.5"), ts("2023-02-01T00:00:00Z"))
	assert.ErrorIs(t, err, inventory.ErrInsufficientInventory)

	// A failed disposal must not mutate the ledger.
	assert.True(t, l.TotalQuantity().Equal(d("1")))
}

func TestLedger_RejectsOutOfOrderEvents(t *testing.T) {
	l := inventory.NewLedger("w1", "BTC")

	_, err := l.Acquire(inventory.MethodFIFO, d("1"), d("10000"), ts("2023-06-01T00:00:00Z"), "buy-1")
	require.NoError(t, err)

	_, err = l.Dispose(d("0.5"), ts("2023-05-01T00:00:00Z"))
	assert.ErrorIs(t, err, inventory.ErrOutOfOrderEvent)

	_, err = l.Acquire(inventory.MethodFIFO, d("1"), d("10000"), ts("2023-04-01T00:00:00Z"), "buy-2")
	assert.ErrorIs(t, err, inventory.ErrOutOfOrderEvent)
}

func TestLedger_Acquire_Validation(t *testing.T) {
	l := inventory.NewLedger("w1", "BTC")

	_, err := l.Acquire(inventory.MethodFIFO, d("0"), d("10000"), ts("2023-01-01T00:00:00Z"), "")
	assert.ErrorIs(t, err, inventory.ErrNonPositiveQuantity)

	_, err = l.Acquire(inventory.MethodFIFO, d("1"), d("-1"), ts("2023-01-01T00:00:00Z"), "")
	assert.ErrorIs(t, err, inventory.ErrNegativeCost)

	_, err = l.Acquire("lifo", d("1"), d("1"), ts("2023-01-01T00:00:00Z"), "")
	assert.ErrorIs(t, err, inventory.ErrInvalidMethod)
}

func TestLedger_ScaleBasis(t *testing.T) {
	l := inventory.NewLedger("w1", "BTC")

	_, err := l.Acquire(inventory.MethodFIFO, d("2"), d("10000"), ts("2023-01-01T00:00:00Z"), "buy-1")
	require.NoError(t, err)

	require.NoError(t, l.ScaleBasis(d("0.9")))
	assert.True(t, l.TotalCostEUR().Equal(d("18000")), "got %s", l.TotalCostEUR())
	assert.True(t, l.TotalQuantity().Equal(d("2")), "quantity is unchanged")
}

func TestBook_LedgersAreSeparatePerWalletAndAsset(t *testing.T) {
	b := inventory.NewBook()

	la := b.Ledger("w1", "BTC")
	lb := b.Ledger("w2", "BTC")
	lc := b.Ledger("w1", "ETH")

	assert.NotSame(t, la, lb)
	assert.NotSame(t, la, lc)
	assert.Same(t, la, b.Ledger("w1", "BTC"))

	ledgers := b.Ledgers()
	require.Len(t, ledgers, 3)
	// Deterministic order regardless of creation order.
	assert.Equal(t, "w1", ledgers[0].WalletID())
	assert.Equal(t, "BTC", ledgers[0].Asset())
}
