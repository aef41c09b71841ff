// Package classify maps normalized events onto the German statutory tax
// buckets. Classification is deterministic: an event either maps cleanly or
// fails with ErrUnmappableKind / ErrMissingCounterValue, never silently.
package classify

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rikongha/CoinTaxman/internal/event"
)

var one = decimal.NewFromInt(1)

// Bucket is one of the three mutually exclusive statutory income categories.
// Totals of different buckets must never be combined.
type Bucket string

const (
	// BucketPrivateSales covers private sales transactions (§23 EStG).
	BucketPrivateSales Bucket = "§23 EStG"
	// BucketOtherIncome covers income from other services (§22 Nr. 3 EStG).
	BucketOtherIncome Bucket = "§22 Nr. 3 EStG"
	// BucketCapitalIncome covers capital income from derivative settlements (§20 EStG).
	BucketCapitalIncome Bucket = "§20 EStG"
	// BucketNone marks events that only affect cost basis.
	BucketNone Bucket = ""
)

// Taxability describes what the engine must do with a classified event.
type Taxability string

const (
	// TaxabilityAcquisition creates a lot, no taxable event.
	TaxabilityAcquisition Taxability = "acquisition"
	// TaxabilityDisposal consumes lots and realizes a §23 gain or loss.
	TaxabilityDisposal Taxability = "disposal"
	// TaxabilityIncome records §22 Nr. 3 income and creates a lot at FMV basis.
	TaxabilityIncome Taxability = "income"
	// TaxabilitySettlement records §20 P/L without touching inventory.
	TaxabilitySettlement Taxability = "settlement"
	// TaxabilityTransfer moves lots between wallets without realization.
	TaxabilityTransfer Taxability = "transfer"
	// TaxabilityBasisSplit reallocates basis from a parent asset (hard fork).
	TaxabilityBasisSplit Taxability = "basis_split"
)

// Context carries linkage facts the classifier cannot derive from the event
// alone. It is produced by the link resolver before classification finalizes.
type Context struct {
	// LinkedTransfer is true when the event is one leg of a resolved
	// same-owner wallet-to-wallet transfer.
	LinkedTransfer bool
	// LinkedSwap is true when the event is one leg of a resolved swap pair.
	// The outgoing leg of a linked swap is priced via the incoming leg, so
	// it does not need its own EUR value.
	LinkedSwap bool
}

// Classification is the classifier's verdict for one event.
type Classification struct {
	Bucket     Bucket
	Taxability Taxability
	Kind       event.Kind
}

// Classifier maps events plus linkage context to statutory buckets.
type Classifier struct{}

// NewClassifier creates a new Classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify determines the tax bucket and processing mode for an event.
func (c *Classifier) Classify(ev *event.Event, ctx Context) (Classification, error) {
	switch ev.Kind {
	case event.KindBuy:
		// Fiat purchase: cost basis only.
		if err := requireValue(ev); err != nil {
			return Classification{}, err
		}
		return Classification{Bucket: BucketNone, Taxability: TaxabilityAcquisition, Kind: ev.Kind}, nil

	case event.KindSwapIn:
		// Incoming swap leg: new lot at the FMV of what was received.
		if err := requireValue(ev); err != nil {
			return Classification{}, err
		}
		return Classification{Bucket: BucketNone, Taxability: TaxabilityAcquisition, Kind: ev.Kind}, nil

	case event.KindSell, event.KindSpend, event.KindGift:
		// Fiat sale, spend on goods, gift to a third party: §23 disposal at
		// the FMV of what was received (or given away, for gifts).
		if err := requireValue(ev); err != nil {
			return Classification{}, err
		}
		return Classification{Bucket: BucketPrivateSales, Taxability: TaxabilityDisposal, Kind: ev.Kind}, nil

	case event.KindSwapOut:
		// Outgoing swap leg: taxable §23 disposal. A linked pair is priced
		// via the incoming leg, an unlinked leg must carry its own value.
		if !ctx.LinkedSwap {
			if err := requireValue(ev); err != nil {
				return Classification{}, err
			}
		}
		return Classification{Bucket: BucketPrivateSales, Taxability: TaxabilityDisposal, Kind: ev.Kind}, nil

	case event.KindStakingReward, event.KindLendingInterest, event.KindMining:
		// §22 Nr. 3 income at FMV; the FMV also becomes the new lot's basis.
		if err := requireValue(ev); err != nil {
			return Classification{}, err
		}
		return Classification{Bucket: BucketOtherIncome, Taxability: TaxabilityIncome, Kind: ev.Kind}, nil

	case event.KindAirdrop:
		if ev.Consideration {
			// Airdrop in return for a service: §22 Nr. 3 income.
			if err := requireValue(ev); err != nil {
				return Classification{}, err
			}
			return Classification{Bucket: BucketOtherIncome, Taxability: TaxabilityIncome, Kind: ev.Kind}, nil
		}
		// Without consideration: acquisition with zero cost basis.
		return Classification{Bucket: BucketNone, Taxability: TaxabilityAcquisition, Kind: ev.Kind}, nil

	case event.KindHardFork:
		// Basis is split off the originating asset, no income event.
		if ev.CounterAsset == "" {
			return Classification{}, fmt.Errorf("%w: hard fork needs originating asset", ErrMissingCounterValue)
		}
		if !ev.CounterAmount.IsPositive() || ev.CounterAmount.GreaterThan(one) {
			return Classification{}, fmt.Errorf("%w: hard fork needs a value ratio in (0, 1]", ErrMissingCounterValue)
		}
		return Classification{Bucket: BucketNone, Taxability: TaxabilityBasisSplit, Kind: ev.Kind}, nil

	case event.KindMarginSettlement:
		// Margin/derivative/futures settlement: §20 P/L realized at
		// settlement, no holding-period logic. ValueEUR carries the P/L
		// magnitude, Direction its sign. A zero settlement is allowed.
		return Classification{Bucket: BucketCapitalIncome, Taxability: TaxabilitySettlement, Kind: ev.Kind}, nil

	case event.KindTransferOut:
		if ctx.LinkedTransfer {
			return Classification{Bucket: BucketNone, Taxability: TaxabilityTransfer, Kind: ev.Kind}, nil
		}
		// An unmatched outflow is never silently assumed non-taxable.
		if err := requireValue(ev); err != nil {
			return Classification{}, err
		}
		return Classification{Bucket: BucketPrivateSales, Taxability: TaxabilityDisposal, Kind: ev.Kind}, nil

	case event.KindTransferIn:
		if ctx.LinkedTransfer {
			return Classification{Bucket: BucketNone, Taxability: TaxabilityTransfer, Kind: ev.Kind}, nil
		}
		// Deposit from an unknown source: new lot at FMV.
		if err := requireValue(ev); err != nil {
			return Classification{}, err
		}
		return Classification{Bucket: BucketNone, Taxability: TaxabilityAcquisition, Kind: ev.Kind}, nil

	default:
		return Classification{}, fmt.Errorf("%w: %q", ErrUnmappableKind, ev.Kind)
	}
}

func requireValue(ev *event.Event) error {
	if !ev.ValueEUR.IsPositive() {
		return fmt.Errorf("%w: %s of %s %s at %s", ErrMissingCounterValue,
			ev.Kind, ev.Quantity, ev.Asset, ev.Timestamp.Format("2006-01-02T15:04:05Z07:00"))
	}
	return nil
}
