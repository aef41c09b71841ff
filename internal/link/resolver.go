// Package link pairs outgoing and incoming legs of swaps and same-owner
// transfers so internal moves are not treated as disposals. Resolution runs
// as a barrier over the full batch before any per-ledger processing.
package link

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rikongha/CoinTaxman/internal/event"
	"github.com/rikongha/CoinTaxman/pkg/logger"
)

// PairKind distinguishes what a linked pair represents.
type PairKind string

const (
	// PairTransfer is a same-owner wallet-to-wallet move, non-taxable.
	PairTransfer PairKind = "transfer"
	// PairSwap is a crypto-to-crypto exchange, taxable on the outgoing leg.
	PairSwap PairKind = "swap"
)

// Pair groups the two legs of one internal move or swap.
type Pair struct {
	Kind PairKind
	Out  *event.Event
	In   *event.Event
	// MatchedBy records how the pair was found, for the audit trail.
	MatchedBy string
}

// Resolution is the auditable outcome of leg linking.
type Resolution struct {
	Pairs []*Pair

	byEvent map[uuid.UUID]*Pair
}

// PairFor returns the pair an event belongs to, or nil.
func (r *Resolution) PairFor(ev *event.Event) *Pair {
	return r.byEvent[ev.ID]
}

// Resolver links event legs in two passes: explicit correlation keys first,
// then heuristic matching within a bounded time window.
type Resolver struct {
	window time.Duration
	log    *logger.Logger
}

// NewResolver creates a Resolver. window bounds the heuristic fallback match.
func NewResolver(window time.Duration, log *logger.Logger) *Resolver {
	return &Resolver{
		window: window,
		log:    log.WithField("component", "link"),
	}
}

// quantityTolerance is the relative difference allowed between the two legs
// of a heuristically matched transfer, covering network fees deducted in
// transit.
var quantityTolerance = decimal.RequireFromString("0.01")

// Resolve links swap and transfer legs across the batch. Events it cannot
// pair stay unlinked; the classifier treats unmatched outflows as ordinary
// disposals rather than assuming them non-taxable.
func (r *Resolver) Resolve(events []*event.Event) *Resolution {
	res := &Resolution{byEvent: make(map[uuid.UUID]*Pair)}

	outs, ins := splitLegs(events)

	// Pass 1: explicit correlation keys supplied by the normalizer.
	r.matchByKey(outs, ins, res)

	// Pass 2: heuristic matching inside the time window.
	r.matchHeuristically(outs, ins, res)

	r.log.Debug("link resolution complete",
		"events", len(events),
		"pairs", len(res.Pairs),
	)

	return res
}

// splitLegs collects the linkable outflow and inflow legs in batch order.
func splitLegs(events []*event.Event) (outs, ins []*event.Event) {
	for _, ev := range events {
		switch ev.Kind {
		case event.KindTransferOut, event.KindSwapOut:
			outs = append(outs, ev)
		case event.KindTransferIn, event.KindSwapIn:
			ins = append(ins, ev)
		}
	}
	return outs, ins
}

func (r *Resolver) matchByKey(outs, ins []*event.Event, res *Resolution) {
	inByKey := make(map[string][]*event.Event)
	for _, in := range ins {
		if in.LinkKey != "" {
			inByKey[in.LinkKey] = append(inByKey[in.LinkKey], in)
		}
	}

	for _, out := range outs {
		if out.LinkKey == "" || res.byEvent[out.ID] != nil {
			continue
		}
		candidates := inByKey[out.LinkKey]
		for _, in := range candidates {
			if res.byEvent[in.ID] != nil {
				continue
			}
			if pair := buildPair(out, in, "link_key"); pair != nil {
				r.record(res, pair)
				break
			}
		}
	}
}

func (r *Resolver) matchHeuristically(outs, ins []*event.Event, res *Resolution) {
	for _, out := range outs {
		if res.byEvent[out.ID] != nil {
			continue
		}

		var candidates []*event.Event
		for _, in := range ins {
			if res.byEvent[in.ID] != nil {
				continue
			}
			if !r.withinWindow(out.Timestamp, in.Timestamp) {
				continue
			}
			if !heuristicCompatible(out, in) {
				continue
			}
			candidates = append(candidates, in)
		}

		if len(candidates) == 0 {
			continue
		}

		// Tie-break: earliest timestamp first, then smallest quantity
		// difference.
		sort.SliceStable(candidates, func(i, j int) bool {
			if !candidates[i].Timestamp.Equal(candidates[j].Timestamp) {
				return candidates[i].Timestamp.Before(candidates[j].Timestamp)
			}
			di := out.Quantity.Sub(candidates[i].Quantity).Abs()
			dj := out.Quantity.Sub(candidates[j].Quantity).Abs()
			return di.LessThan(dj)
		})

		if pair := buildPair(out, candidates[0], "heuristic"); pair != nil {
			r.record(res, pair)
		}
	}
}

func (r *Resolver) withinWindow(a, b time.Time) bool {
	d := b.Sub(a)
	if d < 0 {
		d = -d
	}
	return d <= r.window
}

// heuristicCompatible reports whether two unkeyed legs can belong together.
// Transfer legs need the same asset across different wallets with aligned
// quantities; swap legs need different assets inside the same wallet.
func heuristicCompatible(out, in *event.Event) bool {
	switch {
	case out.Kind == event.KindTransferOut && in.Kind == event.KindTransferIn:
		if out.Asset != in.Asset || out.WalletID == in.WalletID {
			return false
		}
		return quantitiesAligned(out, in)
	case out.Kind == event.KindSwapOut && in.Kind == event.KindSwapIn:
		return out.Asset != in.Asset && out.WalletID == in.WalletID
	default:
		return false
	}
}

// quantitiesAligned checks that the incoming quantity matches the outgoing
// one, allowing up to quantityTolerance of the outgoing amount to be lost to
// network fees.
func quantitiesAligned(out, in *event.Event) bool {
	if in.Quantity.GreaterThan(out.Quantity) {
		return false
	}
	diff := out.Quantity.Sub(in.Quantity)
	return diff.LessThanOrEqual(out.Quantity.Mul(quantityTolerance))
}

// buildPair validates leg compatibility and determines the pair kind.
// Key-matched legs are still checked so a bad correlation key cannot link a
// transfer to a foreign asset or to a leg whose quantity diverges beyond the
// fee tolerance.
func buildPair(out, in *event.Event, matchedBy string) *Pair {
	switch {
	case out.Kind == event.KindTransferOut && in.Kind == event.KindTransferIn && out.Asset == in.Asset:
		if !quantitiesAligned(out, in) {
			return nil
		}
		return &Pair{Kind: PairTransfer, Out: out, In: in, MatchedBy: matchedBy}
	case out.Kind == event.KindSwapOut && in.Kind == event.KindSwapIn && out.Asset != in.Asset:
		return &Pair{Kind: PairSwap, Out: out, In: in, MatchedBy: matchedBy}
	default:
		return nil
	}
}

func (r *Resolver) record(res *Resolution, pair *Pair) {
	res.Pairs = append(res.Pairs, pair)
	res.byEvent[pair.Out.ID] = pair
	res.byEvent[pair.In.ID] = pair

	r.log.Debug("linked pair",
		"kind", string(pair.Kind),
		"matched_by", pair.MatchedBy,
		"out_wallet", pair.Out.WalletID,
		"in_wallet", pair.In.WalletID,
		"asset_out", pair.Out.Asset,
		"asset_in", pair.In.Asset,
	)
}
