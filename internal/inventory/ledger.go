// Package inventory keeps the per (wallet, asset) lot ledgers. Each ledger
// locks its costing method on first acquisition and releases it only when its
// total quantity reaches exactly zero.
package inventory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Method is a lot costing method.
type Method string

const (
	MethodFIFO    Method = "fifo"
	MethodAverage Method = "average"
)

// Valid reports whether m is a supported costing method.
func (m Method) Valid() bool {
	return m == MethodFIFO || m == MethodAverage
}

// Lot is a still-available acquisition. Lots are owned exclusively by their
// ledger and mutated only through consumption.
type Lot struct {
	ID                uuid.UUID
	WalletID          string
	Asset             string
	AcquiredAt        time.Time
	QuantityRemaining decimal.Decimal
	UnitCostEUR       decimal.Decimal
	SourceRef         string
}

// Consumption records quantity taken from a lot during a disposal. Under the
// average method the Lot fields describe the blended pool instead of a single
// physical acquisition.
type Consumption struct {
	AcquiredAt  time.Time
	UnitCostEUR decimal.Decimal
	Quantity    decimal.Decimal
	SourceRef   string
}

// CostEUR is the cost basis of the consumed quantity.
func (c Consumption) CostEUR() decimal.Decimal {
	return c.UnitCostEUR.Mul(c.Quantity)
}

// Ledger is the lot ledger for one (wallet, asset) pair.
//
// State machine: Empty -> Active(method) on acquisition; Active -> Empty only
// when the summed remaining quantity reaches exactly zero.
type Ledger struct {
	walletID string
	asset    string

	method Method
	active bool

	// lots stay ordered by AcquiredAt ascending, ties by insertion order.
	lots []*Lot

	lastEventAt time.Time
}

// NewLedger creates an empty ledger for a (wallet, asset) pair.
func NewLedger(walletID, asset string) *Ledger {
	return &Ledger{walletID: walletID, asset: asset}
}

// WalletID returns the owning wallet.
func (l *Ledger) WalletID() string { return l.walletID }

// Asset returns the tracked asset.
func (l *Ledger) Asset() string { return l.asset }

// Method returns the locked costing method, empty when the ledger is Empty.
func (l *Ledger) Method() Method {
	if !l.active {
		return ""
	}
	return l.method
}

// Depleted reports whether the ledger holds no quantity.
func (l *Ledger) Depleted() bool { return !l.active }

// TotalQuantity sums the remaining quantity across all lots.
func (l *Ledger) TotalQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, lot := range l.lots {
		total = total.Add(lot.QuantityRemaining)
	}
	return total
}

// TotalCostEUR sums the remaining cost basis across all lots.
func (l *Ledger) TotalCostEUR() decimal.Decimal {
	total := decimal.Zero
	for _, lot := range l.lots {
		total = total.Add(lot.UnitCostEUR.Mul(lot.QuantityRemaining))
	}
	return total
}

// Lots returns copies of the remaining lots in FIFO order.
func (l *Ledger) Lots() []Lot {
	out := make([]Lot, len(l.lots))
	for i, lot := range l.lots {
		out[i] = *lot
	}
	return out
}

// checkOrder enforces non-decreasing timestamps per ledger. Lot matching is
// order-sensitive, so violations fail instead of being silently reordered.
func (l *Ledger) checkOrder(at time.Time) error {
	if at.Before(l.lastEventAt) {
		return fmt.Errorf("%w: %s/%s event at %s before %s",
			ErrOutOfOrderEvent, l.walletID, l.asset,
			at.Format(time.RFC3339), l.lastEventAt.Format(time.RFC3339))
	}
	l.lastEventAt = at
	return nil
}

// Acquire appends a new lot. The first acquisition of an Empty ledger locks
// the costing method; later acquisitions must use the locked method until
// depletion.
func (l *Ledger) Acquire(method Method, quantity, unitCostEUR decimal.Decimal, at time.Time, sourceRef string) (*Lot, error) {
	if !method.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: acquisition of %s %s", ErrNonPositiveQuantity, quantity, l.asset)
	}
	if unitCostEUR.IsNegative() {
		return nil, fmt.Errorf("%w: unit cost %s", ErrNegativeCost, unitCostEUR)
	}
	if err := l.checkOrder(at); err != nil {
		return nil, err
	}

	if l.active && method != l.method {
		return nil, fmt.Errorf("%w: %s/%s is locked to %s until depletion",
			ErrMethodLockViolation, l.walletID, l.asset, l.method)
	}
	if !l.active {
		l.method = method
		l.active = true
	}

	lot := &Lot{
		ID:                uuid.New(),
		WalletID:          l.walletID,
		Asset:             l.asset,
		AcquiredAt:        at,
		QuantityRemaining: quantity,
		UnitCostEUR:       unitCostEUR,
		SourceRef:         sourceRef,
	}
	l.insert(lot)
	return lot, nil
}

// AcquireMigrated inserts a lot that keeps its original acquisition date and
// unit cost, used when a same-owner transfer moves holdings between wallets.
// The holding period is not reset. Migration still respects the destination
// ledger's method lock.
func (l *Ledger) AcquireMigrated(method Method, c Consumption, at time.Time) (*Lot, error) {
	if !c.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: migration of %s %s", ErrNonPositiveQuantity, c.Quantity, l.asset)
	}
	if err := l.checkOrder(at); err != nil {
		return nil, err
	}

	if l.active && method != l.method {
		return nil, fmt.Errorf("%w: %s/%s is locked to %s until depletion",
			ErrMethodLockViolation, l.walletID, l.asset, l.method)
	}
	if !l.active {
		l.method = method
		l.active = true
	}

	lot := &Lot{
		ID:                uuid.New(),
		WalletID:          l.walletID,
		Asset:             l.asset,
		AcquiredAt:        c.AcquiredAt,
		QuantityRemaining: c.Quantity,
		UnitCostEUR:       c.UnitCostEUR,
		SourceRef:         c.SourceRef,
	}
	l.insert(lot)
	return lot, nil
}

// insert keeps lots ordered by AcquiredAt ascending. Migrated lots carry
// original acquisition dates and may land in the middle of the sequence.
func (l *Ledger) insert(lot *Lot) {
	i := len(l.lots)
	for i > 0 && l.lots[i-1].AcquiredAt.After(lot.AcquiredAt) {
		i--
	}
	l.lots = append(l.lots, nil)
	copy(l.lots[i+1:], l.lots[i:])
	l.lots[i] = lot
}

// Dispose consumes quantity from the ledger and returns what was consumed in
// matching order. FIFO consumes the earliest remaining lots first; Average
// consumes the pooled position at its weighted average cost and acquisition
// date.
func (l *Ledger) Dispose(quantity decimal.Decimal, at time.Time) ([]Consumption, error) {
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: disposal of %s %s", ErrNonPositiveQuantity, quantity, l.asset)
	}
	if err := l.checkOrder(at); err != nil {
		return nil, err
	}

	available := l.TotalQuantity()
	if quantity.GreaterThan(available) {
		return nil, fmt.Errorf("%w: %s/%s needs %s but holds %s",
			ErrInsufficientInventory, l.walletID, l.asset, quantity, available)
	}

	var consumed []Consumption
	switch l.method {
	case MethodAverage:
		consumed = []Consumption{{
			AcquiredAt:  l.AverageAcquiredAt(),
			UnitCostEUR: l.AverageUnitCost(),
			Quantity:    quantity,
			SourceRef:   "average pool",
		}}
		l.drain(quantity)
	default: // FIFO
		consumed = l.drain(quantity)
	}

	if l.TotalQuantity().IsZero() {
		// Depletion: the next acquisition may re-select a method.
		l.active = false
		l.method = ""
		l.lots = nil
	}

	return consumed, nil
}

// drain removes quantity from the front of the lot sequence and returns the
// per-lot consumptions. Exhausted lots are destroyed.
func (l *Ledger) drain(quantity decimal.Decimal) []Consumption {
	var consumed []Consumption
	remaining := quantity

	for len(l.lots) > 0 && remaining.IsPositive() {
		lot := l.lots[0]

		take := lot.QuantityRemaining
		if take.GreaterThan(remaining) {
			take = remaining
		}

		consumed = append(consumed, Consumption{
			AcquiredAt:  lot.AcquiredAt,
			UnitCostEUR: lot.UnitCostEUR,
			Quantity:    take,
			SourceRef:   lot.SourceRef,
		})

		lot.QuantityRemaining = lot.QuantityRemaining.Sub(take)
		remaining = remaining.Sub(take)

		if lot.QuantityRemaining.IsZero() {
			l.lots = l.lots[1:]
		}
	}

	return consumed
}

// AverageUnitCost is the quantity-weighted average cost of all remaining lots.
func (l *Ledger) AverageUnitCost() decimal.Decimal {
	total := l.TotalQuantity()
	if total.IsZero() {
		return decimal.Zero
	}
	return l.TotalCostEUR().Div(total)
}

// AverageAcquiredAt is the quantity-weighted average acquisition time of all
// remaining lots, used for holding-period purposes under the average method.
func (l *Ledger) AverageAcquiredAt() time.Time {
	total := l.TotalQuantity()
	if total.IsZero() {
		return time.Time{}
	}

	weighted := decimal.Zero
	for _, lot := range l.lots {
		weighted = weighted.Add(decimal.NewFromInt(lot.AcquiredAt.Unix()).Mul(lot.QuantityRemaining))
	}
	return time.Unix(weighted.Div(total).IntPart(), 0).UTC()
}

// ScaleBasis multiplies every remaining lot's unit cost by factor. Used when
// a hard fork skims part of the parent asset's basis onto the child asset.
func (l *Ledger) ScaleBasis(factor decimal.Decimal) error {
	if factor.IsNegative() {
		return fmt.Errorf("%w: basis factor %s", ErrNegativeCost, factor)
	}
	for _, lot := range l.lots {
		lot.UnitCostEUR = lot.UnitCostEUR.Mul(factor)
	}
	return nil
}
