package inventory

import (
	"sort"

	"github.com/rikongha/CoinTaxman/internal/event"
)

// Book is the collection of independent ledgers for one engine invocation,
// keyed by (wallet, asset). Its lifecycle is scoped to a single run; the
// engine is re-run statelessly from the full event history.
type Book struct {
	ledgers map[event.LedgerKey]*Ledger
}

// NewBook creates an empty ledger book.
func NewBook() *Book {
	return &Book{ledgers: make(map[event.LedgerKey]*Ledger)}
}

// Ledger returns the ledger for a (wallet, asset) pair, creating it on first
// use.
func (b *Book) Ledger(walletID, asset string) *Ledger {
	key := event.LedgerKey{WalletID: walletID, Asset: asset}
	l, ok := b.ledgers[key]
	if !ok {
		l = NewLedger(walletID, asset)
		b.ledgers[key] = l
	}
	return l
}

// Ledgers returns all ledgers in deterministic (wallet, asset) order.
func (b *Book) Ledgers() []*Ledger {
	keys := make([]event.LedgerKey, 0, len(b.ledgers))
	for k := range b.ledgers {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].WalletID != keys[j].WalletID {
			return keys[i].WalletID < keys[j].WalletID
		}
		return keys[i].Asset < keys[j].Asset
	})

	out := make([]*Ledger, len(keys))
	for i, k := range keys {
		out[i] = b.ledgers[k]
	}
	return out
}
