// Package report assembles the engine result into documents for the external
// report consumers: a JSON summary and an xlsx workbook. Form-line mapping
// (Anlage SO, Anlage KAP) stays outside this repository.
package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/rikongha/CoinTaxman/internal/aggregate"
	"github.com/rikongha/CoinTaxman/internal/classify"
	"github.com/rikongha/CoinTaxman/internal/engine"
)

// Document is the assembled report for one engine invocation.
type Document struct {
	ID          uuid.UUID `json:"id"`
	GeneratedAt time.Time `json:"generated_at"`
	TaxYear     int       `json:"tax_year"`

	PrivateSales  *aggregate.Totals `json:"private_sales"`
	OtherIncome   *aggregate.Totals `json:"other_income"`
	CapitalIncome *aggregate.Totals `json:"capital_income"`

	// Unrealized is informational only and never part of any taxable total.
	Unrealized *aggregate.Snapshot `json:"unrealized"`

	Failures []engine.Failure       `json:"failures,omitempty"`
	Blocked  []engine.BlockedLedger `json:"blocked_ledgers,omitempty"`
}

// Build assembles a Document from an engine result.
func Build(res *engine.Result) *Document {
	return &Document{
		ID:            uuid.New(),
		GeneratedAt:   time.Now().UTC(),
		TaxYear:       res.TaxYear,
		PrivateSales:  res.Buckets[classify.BucketPrivateSales],
		OtherIncome:   res.Buckets[classify.BucketOtherIncome],
		CapitalIncome: res.Buckets[classify.BucketCapitalIncome],
		Unrealized:    res.Unrealized,
		Failures:      res.Failures,
		Blocked:       res.Blocked,
	}
}

// Complete reports whether every ledger was processed without errors.
func (d *Document) Complete() bool {
	return len(d.Failures) == 0 && len(d.Blocked) == 0
}
