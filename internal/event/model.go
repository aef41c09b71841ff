// Package event defines the canonical transaction representation consumed by
// the tax engine. Events arrive normalized from an external importer with all
// EUR fair-market values already resolved.
package event

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction indicates whether the event moves assets into or out of a wallet.
type Direction string

const (
	DirectionInflow  Direction = "in"
	DirectionOutflow Direction = "out"
)

// Kind identifies the normalized transaction type.
type Kind string

const (
	KindBuy              Kind = "buy"
	KindSell             Kind = "sell"
	KindSwapOut          Kind = "swap_out"
	KindSwapIn           Kind = "swap_in"
	KindSpend            Kind = "spend"
	KindStakingReward    Kind = "staking_reward"
	KindLendingInterest  Kind = "lending_interest"
	KindMining           Kind = "mining"
	KindAirdrop          Kind = "airdrop"
	KindHardFork         Kind = "hard_fork"
	KindTransferOut      Kind = "transfer_out"
	KindTransferIn       Kind = "transfer_in"
	KindGift             Kind = "gift"
	KindMarginSettlement Kind = "margin_settlement"
)

// knownKinds is the closed set of kinds the engine understands.
var knownKinds = map[Kind]struct{}{
	KindBuy: {}, KindSell: {}, KindSwapOut: {}, KindSwapIn: {},
	KindSpend: {}, KindStakingReward: {}, KindLendingInterest: {},
	KindMining: {}, KindAirdrop: {}, KindHardFork: {},
	KindTransferOut: {}, KindTransferIn: {}, KindGift: {},
	KindMarginSettlement: {},
}

// Known reports whether k is a kind the engine can process.
func (k Kind) Known() bool {
	_, ok := knownKinds[k]
	return ok
}

// Fee is a transaction fee directly attributable to an event.
type Fee struct {
	Amount   decimal.Decimal `json:"amount"`
	Asset    string          `json:"asset"`
	ValueEUR decimal.Decimal `json:"value_eur"`
}

// Event is an immutable normalized transaction record.
//
// Quantity is always the amount of Asset moved, non-negative; Direction gives
// the sign. ValueEUR is the externally resolved EUR fair-market value of the
// quantity at event time; for fiat trades it equals CounterAmount. For
// hard-fork events CounterAsset names the originating asset and CounterAmount
// carries the child asset's share of the combined market value at fork time
// (a ratio in (0, 1]).
type Event struct {
	ID            uuid.UUID       `json:"id"`
	Timestamp     time.Time       `json:"timestamp"`
	WalletID      string          `json:"wallet_id"`
	Asset         string          `json:"asset"`
	Quantity      decimal.Decimal `json:"quantity"`
	CounterAsset  string          `json:"counter_asset,omitempty"`
	CounterAmount decimal.Decimal `json:"counter_amount"`
	ValueEUR      decimal.Decimal `json:"value_eur"`
	Direction     Direction       `json:"direction"`
	Kind          Kind            `json:"kind"`
	LinkKey       string          `json:"link_key,omitempty"`
	Fee           *Fee            `json:"fee,omitempty"`
	// Consideration marks airdrops received in return for a service.
	Consideration bool   `json:"consideration,omitempty"`
	TxRef         string `json:"tx_ref,omitempty"`
}

// Validate checks the structural invariants of the record.
func (e *Event) Validate() error {
	if e.Timestamp.IsZero() {
		return ErrMissingTimestamp
	}

	if e.WalletID == "" {
		return ErrMissingWalletID
	}

	if e.Asset == "" {
		return ErrMissingAsset
	}

	if e.Quantity.IsNegative() {
		return ErrNegativeQuantity
	}

	if e.CounterAmount.IsNegative() {
		return ErrNegativeCounterAmount
	}

	if e.ValueEUR.IsNegative() {
		return ErrNegativeValue
	}

	if e.Direction != DirectionInflow && e.Direction != DirectionOutflow {
		return ErrInvalidDirection
	}

	if e.Fee != nil && (e.Fee.Amount.IsNegative() || e.Fee.ValueEUR.IsNegative()) {
		return ErrNegativeFee
	}

	return nil
}

// FeeEUR returns the EUR value of the event's fee, zero when there is none.
func (e *Event) FeeEUR() decimal.Decimal {
	if e.Fee == nil {
		return decimal.Zero
	}
	return e.Fee.ValueEUR
}

// LedgerKey identifies the (wallet, asset) ledger an event belongs to.
type LedgerKey struct {
	WalletID string
	Asset    string
}

// Key returns the ledger key of the event.
func (e *Event) Key() LedgerKey {
	return LedgerKey{WalletID: e.WalletID, Asset: e.Asset}
}
