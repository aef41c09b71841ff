// Package engine orchestrates one tax computation run: validation, leg
// linking, ordered per-ledger lot matching, gain evaluation and bucket
// aggregation. A failure in one (wallet, asset) ledger never blocks the
// others; the result always separates computed totals from blocked ledgers.
package engine

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rikongha/CoinTaxman/internal/aggregate"
	"github.com/rikongha/CoinTaxman/internal/classify"
	"github.com/rikongha/CoinTaxman/internal/event"
	"github.com/rikongha/CoinTaxman/internal/gains"
	"github.com/rikongha/CoinTaxman/internal/inventory"
	"github.com/rikongha/CoinTaxman/internal/link"
	"github.com/rikongha/CoinTaxman/pkg/logger"
)

// Config is the configuration surface consumed, not owned, by the engine.
type Config struct {
	TaxYear int
	// DefaultMethod applies only when a ledger has no locked method.
	DefaultMethod       inventory.Method
	FreigrenzePrivSales decimal.Decimal
	FreigrenzeOtherInc  decimal.Decimal
	TransferMatchWindow time.Duration
}

// Failure describes one event that could not be processed. It carries enough
// context for manual remediation and re-run.
type Failure struct {
	Timestamp time.Time `json:"timestamp"`
	WalletID  string    `json:"wallet_id"`
	Asset     string    `json:"asset"`
	TxRef     string    `json:"tx_ref,omitempty"`
	Reason    string    `json:"reason"`
}

// BlockedLedger describes a (wallet, asset) ledger whose processing was
// aborted by a ledger-fatal error. Its events are excluded from all totals.
type BlockedLedger struct {
	WalletID      string `json:"wallet_id"`
	Asset         string `json:"asset"`
	Reason        string `json:"reason"`
	SkippedEvents int    `json:"skipped_events"`
}

// Result is the all-or-nothing output of one engine invocation.
type Result struct {
	TaxYear    int                                   `json:"tax_year"`
	Buckets    map[classify.Bucket]*aggregate.Totals `json:"buckets"`
	Unrealized *aggregate.Snapshot                   `json:"unrealized"`
	Failures   []Failure                             `json:"failures,omitempty"`
	Blocked    []BlockedLedger                       `json:"blocked_ledgers,omitempty"`
}

// Engine processes one taxpayer's ledger at a time. It holds no state across
// invocations; every run starts from the full event history.
type Engine struct {
	cfg        Config
	classifier *classify.Classifier
	resolver   *link.Resolver
	calc       *gains.Calculator
	log        *logger.Logger
}

// New creates an Engine.
func New(cfg Config, log *logger.Logger) *Engine {
	return &Engine{
		cfg:        cfg,
		classifier: classify.NewClassifier(),
		resolver:   link.NewResolver(cfg.TransferMatchWindow, log),
		calc:       gains.NewCalculator(),
		log:        log.WithField("component", "engine"),
	}
}

// run carries the mutable state of one invocation.
type run struct {
	book      *inventory.Book
	taxable   []*taggedEvent
	transfers map[*link.Pair]*transferState
	failures  []Failure
	blocked   map[event.LedgerKey]*BlockedLedger
}

// transferState tracks one linked transfer across its two legs. Lots disposed
// at the outgoing leg stay in transit until the incoming leg reaches its own
// position in the stream; only then does the destination ledger's clock
// advance.
type transferState struct {
	lots      []inventory.Consumption
	outDone   bool
	outFailed bool
	inSeen    bool
}

// taggedEvent keeps the source ledger of a taxable event so results from
// later-blocked ledgers can be dropped.
type taggedEvent struct {
	key event.LedgerKey
	ev  *gains.TaxableEvent
}

// Evaluate computes the bucket totals and the unrealized snapshot for a batch
// of normalized events. The batch must arrive in non-decreasing timestamp
// order per (wallet, asset) ledger; violations block the affected ledger.
// eoyPrices maps assets to their end-of-year EUR price for the informational
// snapshot; missing prices leave positions unpriced, never guessed.
func (e *Engine) Evaluate(events []*event.Event, eoyPrices map[string]decimal.Decimal) *Result {
	r := &run{
		book:      inventory.NewBook(),
		transfers: make(map[*link.Pair]*transferState),
		blocked:   make(map[event.LedgerKey]*BlockedLedger),
	}

	valid := make([]*event.Event, 0, len(events))
	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			r.fail(ev, err)
			continue
		}
		valid = append(valid, ev)
	}

	// Linking is a synchronization barrier: it can reassign classification
	// across wallets, so it runs before any per-ledger processing.
	resolution := e.resolver.Resolve(valid)

	for _, ev := range valid {
		if b, ok := r.blocked[ev.Key()]; ok {
			b.SkippedEvents++
			continue
		}
		e.process(r, ev, resolution)
	}

	aggr := aggregate.NewAggregator(e.cfg.TaxYear, e.cfg.FreigrenzePrivSales, e.cfg.FreigrenzeOtherInc)

	var taxable []*gains.TaxableEvent
	for _, te := range r.taxable {
		if _, ok := r.blocked[te.key]; ok {
			continue
		}
		taxable = append(taxable, te.ev)
	}

	var trusted []*inventory.Ledger
	for _, l := range r.book.Ledgers() {
		key := event.LedgerKey{WalletID: l.WalletID(), Asset: l.Asset()}
		if _, ok := r.blocked[key]; !ok {
			trusted = append(trusted, l)
		}
	}

	res := &Result{
		TaxYear:    e.cfg.TaxYear,
		Buckets:    aggr.Aggregate(taxable),
		Unrealized: aggr.Unrealized(trusted, eoyPrices),
		Failures:   r.failures,
	}
	for _, b := range r.blocked {
		res.Blocked = append(res.Blocked, *b)
	}

	e.log.Info("evaluation complete",
		"tax_year", e.cfg.TaxYear,
		"events", len(events),
		"taxable_events", len(taxable),
		"failures", len(res.Failures),
		"blocked_ledgers", len(res.Blocked),
	)

	return res
}

// process applies one event. Record-fatal errors are collected; ledger-fatal
// errors additionally block the ledger for the rest of the run.
func (e *Engine) process(r *run, ev *event.Event, resolution *link.Resolution) {
	pair := resolution.PairFor(ev)
	ctx := classify.Context{}
	if pair != nil {
		switch pair.Kind {
		case link.PairTransfer:
			ctx.LinkedTransfer = true
		case link.PairSwap:
			ctx.LinkedSwap = true
		}
	}

	cls, err := e.classifier.Classify(ev, ctx)
	if err != nil {
		r.fail(ev, err)
		return
	}

	switch cls.Taxability {
	case classify.TaxabilityAcquisition:
		e.applyAcquisition(r, ev)

	case classify.TaxabilityIncome:
		e.applyIncome(r, ev, cls)

	case classify.TaxabilityDisposal:
		e.applyDisposal(r, ev, cls, pair)

	case classify.TaxabilityTransfer:
		e.applyTransfer(r, ev, pair)

	case classify.TaxabilityBasisSplit:
		e.applyHardFork(r, ev)

	case classify.TaxabilitySettlement:
		te, err := e.calc.Settlement(ev)
		if err != nil {
			r.fail(ev, err)
			return
		}
		r.addTaxable(ev.Key(), te)
	}
}

func (e *Engine) applyAcquisition(r *run, ev *event.Event) {
	ledger := r.book.Ledger(ev.WalletID, ev.Asset)

	if !ev.Quantity.IsPositive() {
		r.fail(ev, inventory.ErrNonPositiveQuantity)
		return
	}
	// Directly attributable acquisition costs are part of the basis.
	unitCost := ev.ValueEUR.Add(ev.FeeEUR()).Div(ev.Quantity)

	if _, err := ledger.Acquire(e.methodFor(ledger), ev.Quantity, unitCost, ev.Timestamp, ev.TxRef); err != nil {
		r.handleLedgerErr(ev, err)
	}
}

func (e *Engine) applyIncome(r *run, ev *event.Event, cls classify.Classification) {
	te, err := e.calc.Income(ev, cls.Bucket)
	if err != nil {
		r.fail(ev, err)
		return
	}

	ledger := r.book.Ledger(ev.WalletID, ev.Asset)
	if !ev.Quantity.IsPositive() {
		r.fail(ev, inventory.ErrNonPositiveQuantity)
		return
	}
	// The income FMV becomes the new lot's cost basis.
	unitCost := ev.ValueEUR.Div(ev.Quantity)
	if _, err := ledger.Acquire(e.methodFor(ledger), ev.Quantity, unitCost, ev.Timestamp, ev.TxRef); err != nil {
		r.handleLedgerErr(ev, err)
		return
	}

	r.addTaxable(ev.Key(), te)
}

func (e *Engine) applyDisposal(r *run, ev *event.Event, cls classify.Classification, pair *link.Pair) {
	ledger := r.book.Ledger(ev.WalletID, ev.Asset)

	consumed, err := ledger.Dispose(ev.Quantity, ev.Timestamp)
	if err != nil {
		r.handleLedgerErr(ev, err)
		return
	}

	// A linked swap's outgoing leg is priced via the FMV of the incoming leg.
	proceeds := ev.ValueEUR
	if pair != nil && pair.Kind == link.PairSwap && pair.In != nil {
		proceeds = pair.In.ValueEUR
	}

	taxables, err := e.calc.Disposal(ev, cls.Bucket, proceeds, consumed)
	if err != nil {
		r.fail(ev, err)
		return
	}
	for _, te := range taxables {
		r.addTaxable(ev.Key(), te)
	}
}

// applyTransfer moves lots of a linked same-owner transfer between wallets
// with acquisition date and unit cost unchanged. The outgoing leg disposes
// the source lots; the migration onto the destination ledger happens only
// when the incoming leg is reached, so intervening destination events keep
// their ordering. Only the quantity that actually arrived is migrated; coin
// lost to network fees in transit forfeits its share of the cost basis.
func (e *Engine) applyTransfer(r *run, ev *event.Event, pair *link.Pair) {
	t := r.transfers[pair]
	if t == nil {
		t = &transferState{}
		r.transfers[pair] = t
	}

	if ev.Kind == event.KindTransferOut {
		src := r.book.Ledger(ev.WalletID, ev.Asset)
		consumed, err := src.Dispose(pair.Out.Quantity, ev.Timestamp)
		if err != nil {
			t.outFailed = true
			r.handleLedgerErr(ev, err)
			return
		}
		t.lots = trimToQuantity(consumed, pair.In.Quantity)
		t.outDone = true
		if t.inSeen {
			e.migrate(r, pair, t)
		}
		return
	}

	t.inSeen = true
	switch {
	case t.outFailed:
		r.fail(ev, errors.New("outgoing transfer leg failed, nothing arrived"))
	case t.outDone:
		e.migrate(r, pair, t)
	}
	// Otherwise the outgoing leg comes later in the stream and completes
	// the move.
}

// migrate books the in-transit lots onto the destination ledger at the
// incoming leg's timestamp.
func (e *Engine) migrate(r *run, pair *link.Pair, t *transferState) {
	if _, ok := r.blocked[pair.In.Key()]; ok {
		r.fail(pair.In, errors.New("destination ledger is blocked"))
		return
	}
	dst := r.book.Ledger(pair.In.WalletID, pair.In.Asset)
	for _, c := range t.lots {
		if _, err := dst.AcquireMigrated(e.methodFor(dst), c, pair.In.Timestamp); err != nil {
			r.handleLedgerErr(pair.In, err)
			return
		}
	}
	t.lots = nil
}

// trimToQuantity caps consumed lots at the quantity that arrived at the
// destination, dropping the shortfall from the tail. The dropped coin's
// basis is forfeited; transit fees in the private sphere are not deductible.
func trimToQuantity(lots []inventory.Consumption, qty decimal.Decimal) []inventory.Consumption {
	trimmed := make([]inventory.Consumption, 0, len(lots))
	remaining := qty
	for _, c := range lots {
		if !remaining.IsPositive() {
			break
		}
		if c.Quantity.GreaterThan(remaining) {
			c.Quantity = remaining
		}
		trimmed = append(trimmed, c)
		remaining = remaining.Sub(c.Quantity)
	}
	return trimmed
}

// applyHardFork splits the originating asset's remaining basis onto the new
// asset by the market-value ratio carried on the event. The child position
// keeps the parent's weighted average acquisition date; no income arises.
func (e *Engine) applyHardFork(r *run, ev *event.Event) {
	if !ev.Quantity.IsPositive() {
		r.fail(ev, inventory.ErrNonPositiveQuantity)
		return
	}

	parent := r.book.Ledger(ev.WalletID, ev.CounterAsset)
	if !parent.TotalQuantity().IsPositive() {
		r.fail(ev, errors.New("hard fork with no holdings of originating asset"))
		return
	}

	ratio := ev.CounterAmount
	childBasis := parent.TotalCostEUR().Mul(ratio)
	acquiredAt := parent.AverageAcquiredAt()

	if err := parent.ScaleBasis(decimal.NewFromInt(1).Sub(ratio)); err != nil {
		r.fail(ev, err)
		return
	}

	child := r.book.Ledger(ev.WalletID, ev.Asset)
	c := inventory.Consumption{
		AcquiredAt:  acquiredAt,
		UnitCostEUR: childBasis.Div(ev.Quantity),
		Quantity:    ev.Quantity,
		SourceRef:   ev.TxRef,
	}
	if _, err := child.AcquireMigrated(e.methodFor(child), c, ev.Timestamp); err != nil {
		r.handleLedgerErr(ev, err)
	}
}

// methodFor returns the ledger's locked method, falling back to the
// configured default only for depleted ledgers.
func (e *Engine) methodFor(l *inventory.Ledger) inventory.Method {
	if m := l.Method(); m != "" {
		return m
	}
	return e.cfg.DefaultMethod
}

// isLedgerFatal reports whether err blocks the whole ledger rather than just
// the record.
func isLedgerFatal(err error) bool {
	return errors.Is(err, inventory.ErrOutOfOrderEvent) ||
		errors.Is(err, inventory.ErrMethodLockViolation)
}

func (r *run) fail(ev *event.Event, err error) {
	r.failures = append(r.failures, Failure{
		Timestamp: ev.Timestamp,
		WalletID:  ev.WalletID,
		Asset:     ev.Asset,
		TxRef:     ev.TxRef,
		Reason:    err.Error(),
	})
}

func (r *run) addTaxable(key event.LedgerKey, te *gains.TaxableEvent) {
	r.taxable = append(r.taxable, &taggedEvent{key: key, ev: te})
}

func (r *run) block(key event.LedgerKey, err error) {
	if _, ok := r.blocked[key]; ok {
		return
	}
	r.blocked[key] = &BlockedLedger{
		WalletID: key.WalletID,
		Asset:    key.Asset,
		Reason:   err.Error(),
	}
}

// handleLedgerErr records the failure and blocks the ledger when the error
// is ledger-fatal.
func (r *run) handleLedgerErr(ev *event.Event, err error) {
	r.fail(ev, err)
	if isLedgerFatal(err) {
		r.block(ev.Key(), err)
	}
}
