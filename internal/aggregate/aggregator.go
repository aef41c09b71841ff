// Package aggregate accumulates per-bucket annual totals, applies the
// all-or-nothing Freigrenze thresholds and produces the informational
// unrealized snapshot. Buckets are never offset against each other.
package aggregate

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rikongha/CoinTaxman/internal/classify"
	"github.com/rikongha/CoinTaxman/internal/gains"
	"github.com/rikongha/CoinTaxman/internal/inventory"
)

// Totals is the annual outcome for one statutory bucket.
type Totals struct {
	Bucket        classify.Bucket       `json:"bucket"`
	GrossGains    decimal.Decimal       `json:"gross_gains"`
	GrossLosses   decimal.Decimal       `json:"gross_losses"`
	Net           decimal.Decimal       `json:"net"`
	ThresholdEUR  decimal.Decimal       `json:"threshold_eur"`
	TaxableAmount decimal.Decimal       `json:"taxable_amount"`
	Events        []*gains.TaxableEvent `json:"events"`
}

// Aggregator groups taxable events by bucket for one tax year.
type Aggregator struct {
	taxYear             int
	freigrenzePrivSales decimal.Decimal
	freigrenzeOtherInc  decimal.Decimal
}

// NewAggregator creates an Aggregator for one reporting year. The thresholds
// are the §23 Freigrenze (€1,000 since 2024) and the §22 Nr. 3 allowance
// (€256), both applied all-or-nothing.
func NewAggregator(taxYear int, freigrenzePrivSales, freigrenzeOtherInc decimal.Decimal) *Aggregator {
	return &Aggregator{
		taxYear:             taxYear,
		freigrenzePrivSales: freigrenzePrivSales,
		freigrenzeOtherInc:  freigrenzeOtherInc,
	}
}

// TaxableAmount is the pure all-or-nothing threshold rule: strictly below the
// threshold nothing is taxable, at or above it the entire net amount is.
func TaxableAmount(net, threshold decimal.Decimal) decimal.Decimal {
	if net.Abs().LessThan(threshold) {
		return decimal.Zero
	}
	return net
}

// Aggregate groups events by bucket for the reporting year. Events outside
// the year are excluded, not zeroed; tax-free §23 disposals are listed for
// audit but contribute nothing to the net.
func (a *Aggregator) Aggregate(events []*gains.TaxableEvent) map[classify.Bucket]*Totals {
	out := map[classify.Bucket]*Totals{
		classify.BucketPrivateSales:  a.newTotals(classify.BucketPrivateSales),
		classify.BucketOtherIncome:   a.newTotals(classify.BucketOtherIncome),
		classify.BucketCapitalIncome: a.newTotals(classify.BucketCapitalIncome),
	}

	for _, ev := range events {
		if ev.Timestamp.Year() != a.taxYear {
			continue
		}
		t, ok := out[ev.Bucket]
		if !ok {
			continue
		}

		t.Events = append(t.Events, ev)

		if ev.TaxFree {
			continue
		}

		if ev.RealizedEUR.IsNegative() {
			t.GrossLosses = t.GrossLosses.Add(ev.RealizedEUR.Neg())
		} else {
			t.GrossGains = t.GrossGains.Add(ev.RealizedEUR)
		}
		t.Net = t.Net.Add(ev.RealizedEUR)
	}

	for _, t := range out {
		t.TaxableAmount = TaxableAmount(t.Net, t.ThresholdEUR)
	}

	return out
}

func (a *Aggregator) newTotals(bucket classify.Bucket) *Totals {
	t := &Totals{Bucket: bucket}
	switch bucket {
	case classify.BucketPrivateSales:
		t.ThresholdEUR = a.freigrenzePrivSales
	case classify.BucketOtherIncome:
		t.ThresholdEUR = a.freigrenzeOtherInc
	case classify.BucketCapitalIncome:
		// §20 has no threshold; the net P/L is taxable as computed.
		t.ThresholdEUR = decimal.Zero
	}
	return t
}

// Position is one remaining end-of-year holding.
type Position struct {
	WalletID       string          `json:"wallet_id"`
	Asset          string          `json:"asset"`
	Quantity       decimal.Decimal `json:"quantity"`
	CostBasisEUR   decimal.Decimal `json:"cost_basis_eur"`
	MarketValueEUR decimal.Decimal `json:"market_value_eur"`
	UnrealizedEUR  decimal.Decimal `json:"unrealized_eur"`
	// Priced is false when no end-of-year price was available; the market
	// value and unrealized figures are then zero, not estimates.
	Priced bool `json:"priced"`
}

// Snapshot is the informational unrealized view of end-of-year positions. It
// must never be summed into any taxable bucket.
type Snapshot struct {
	AsOf      time.Time  `json:"as_of"`
	Positions []Position `json:"positions"`
}

// Unrealized builds the end-of-year snapshot from the remaining lots:
// holdings times end-of-year price minus remaining cost basis. The caller
// passes only ledgers whose state is trustworthy; ledgers blocked by errors
// are excluded upstream.
func (a *Aggregator) Unrealized(ledgers []*inventory.Ledger, eoyPrices map[string]decimal.Decimal) *Snapshot {
	asOf := time.Date(a.taxYear, time.December, 31, 23, 59, 59, 0, time.UTC)
	snap := &Snapshot{AsOf: asOf}

	for _, ledger := range ledgers {
		qty := ledger.TotalQuantity()
		if !qty.IsPositive() {
			continue
		}

		pos := Position{
			WalletID:     ledger.WalletID(),
			Asset:        ledger.Asset(),
			Quantity:     qty,
			CostBasisEUR: ledger.TotalCostEUR(),
		}
		if price, ok := eoyPrices[ledger.Asset()]; ok {
			pos.MarketValueEUR = qty.Mul(price)
			pos.UnrealizedEUR = pos.MarketValueEUR.Sub(pos.CostBasisEUR)
			pos.Priced = true
		}
		snap.Positions = append(snap.Positions, pos)
	}

	return snap
}
