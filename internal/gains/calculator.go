// Package gains turns matched disposals and income receipts into taxable
// events: proceeds, cost basis, holding period and realized amount, all in
// exact decimals. Realized and unrealized values are never mixed here.
package gains

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rikongha/CoinTaxman/internal/classify"
	"github.com/rikongha/CoinTaxman/internal/event"
	"github.com/rikongha/CoinTaxman/internal/inventory"
)

// TaxableEvent is one realized tax consequence, ready for bucket aggregation.
type TaxableEvent struct {
	Bucket       classify.Bucket `json:"bucket"`
	Kind         event.Kind      `json:"kind"`
	WalletID     string          `json:"wallet_id"`
	Asset        string          `json:"asset"`
	Timestamp    time.Time       `json:"timestamp"`
	AcquiredAt   time.Time       `json:"acquired_at,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	ProceedsEUR  decimal.Decimal `json:"proceeds_eur"`
	CostBasisEUR decimal.Decimal `json:"cost_basis_eur"`
	RealizedEUR  decimal.Decimal `json:"realized_eur"`
	HoldingDays  int             `json:"holding_period_days"`
	// TaxFree is true for §23 disposals held past the statutory one year.
	TaxFree bool   `json:"tax_free"`
	TxRef   string `json:"tx_ref,omitempty"`
}

// Calculator evaluates taxable candidates.
type Calculator struct{}

// NewCalculator creates a Calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// HoldingDays counts calendar days between acquisition and disposal.
func HoldingDays(acquiredAt, disposedAt time.Time) int {
	return int(disposedAt.Sub(acquiredAt).Hours() / 24)
}

// HeldPastOneYear implements the §23 EStG Haltefrist boundary: a disposal is
// tax-free only strictly after acquisition plus one calendar year. Exactly
// one year is still taxable; one year and a day is not. There is no extension
// for payment tokens regardless of lending or staking use during holding.
func HeldPastOneYear(acquiredAt, disposedAt time.Time) bool {
	return disposedAt.After(acquiredAt.AddDate(1, 0, 0))
}

// Disposal evaluates a disposal against its consumed lots. One TaxableEvent
// is produced per consumption because the holding period is decided per lot;
// proceeds and disposal-side fees are prorated by quantity share.
func (c *Calculator) Disposal(ev *event.Event, bucket classify.Bucket, proceedsEUR decimal.Decimal, consumed []inventory.Consumption) ([]*TaxableEvent, error) {
	if proceedsEUR.IsNegative() {
		return nil, fmt.Errorf("%w: proceeds %s", ErrNegativeAmount, proceedsEUR)
	}

	total := decimal.Zero
	for _, cons := range consumed {
		total = total.Add(cons.Quantity)
	}
	if !total.IsPositive() {
		return nil, fmt.Errorf("%w: disposal consumed nothing", ErrNegativeAmount)
	}

	feeEUR := ev.FeeEUR()
	out := make([]*TaxableEvent, 0, len(consumed))

	for _, cons := range consumed {
		if ev.Timestamp.Before(cons.AcquiredAt) {
			return nil, fmt.Errorf("%w: disposal at %s before acquisition at %s",
				ErrTimestampOrdering,
				ev.Timestamp.Format(time.RFC3339), cons.AcquiredAt.Format(time.RFC3339))
		}

		share := cons.Quantity.Div(total)
		proceeds := proceedsEUR.Mul(share)
		// Directly attributable disposal fees increase the cost basis.
		basis := cons.CostEUR().Add(feeEUR.Mul(share))

		te := &TaxableEvent{
			Bucket:       bucket,
			Kind:         ev.Kind,
			WalletID:     ev.WalletID,
			Asset:        ev.Asset,
			Timestamp:    ev.Timestamp,
			AcquiredAt:   cons.AcquiredAt,
			Quantity:     cons.Quantity,
			ProceedsEUR:  proceeds,
			CostBasisEUR: basis,
			RealizedEUR:  proceeds.Sub(basis),
			HoldingDays:  HoldingDays(cons.AcquiredAt, ev.Timestamp),
			TxRef:        ev.TxRef,
		}
		if bucket == classify.BucketPrivateSales {
			te.TaxFree = HeldPastOneYear(cons.AcquiredAt, ev.Timestamp)
		}
		out = append(out, te)
	}

	return out, nil
}

// Income evaluates a §22 Nr. 3 receipt. Income equals the EUR fair-market
// value at the inflow timestamp; cost basis is zero except directly
// attributable costs such as validator fees.
func (c *Calculator) Income(ev *event.Event, bucket classify.Bucket) (*TaxableEvent, error) {
	if ev.ValueEUR.IsNegative() {
		return nil, fmt.Errorf("%w: income value %s", ErrNegativeAmount, ev.ValueEUR)
	}

	basis := ev.FeeEUR()
	return &TaxableEvent{
		Bucket:       bucket,
		Kind:         ev.Kind,
		WalletID:     ev.WalletID,
		Asset:        ev.Asset,
		Timestamp:    ev.Timestamp,
		Quantity:     ev.Quantity,
		ProceedsEUR:  ev.ValueEUR,
		CostBasisEUR: basis,
		RealizedEUR:  ev.ValueEUR.Sub(basis),
		TxRef:        ev.TxRef,
	}, nil
}

// Settlement evaluates a §20 margin or derivative settlement. The P/L is
// realized at settlement time; holding-period logic does not apply.
func (c *Calculator) Settlement(ev *event.Event) (*TaxableEvent, error) {
	if ev.ValueEUR.IsNegative() {
		return nil, fmt.Errorf("%w: settlement value %s", ErrNegativeAmount, ev.ValueEUR)
	}

	realized := ev.ValueEUR
	if ev.Direction == event.DirectionOutflow {
		realized = realized.Neg()
	}

	te := &TaxableEvent{
		Bucket:      classify.BucketCapitalIncome,
		Kind:        ev.Kind,
		WalletID:    ev.WalletID,
		Asset:       ev.Asset,
		Timestamp:   ev.Timestamp,
		Quantity:    ev.Quantity,
		RealizedEUR: realized,
		TxRef:       ev.TxRef,
	}
	if realized.IsPositive() {
		te.ProceedsEUR = realized
	} else {
		te.CostBasisEUR = realized.Neg()
	}
	return te, nil
}
