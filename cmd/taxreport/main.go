package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rikongha/CoinTaxman/internal/aggregate"
	"github.com/rikongha/CoinTaxman/internal/engine"
	"github.com/rikongha/CoinTaxman/internal/event"
	"github.com/rikongha/CoinTaxman/internal/ingest"
	"github.com/rikongha/CoinTaxman/internal/inventory"
	"github.com/rikongha/CoinTaxman/internal/pricestore"
	"github.com/rikongha/CoinTaxman/internal/report"
	"github.com/rikongha/CoinTaxman/pkg/config"
	"github.com/rikongha/CoinTaxman/pkg/logger"
	"github.com/shopspring/decimal"
)

func main() {
	var (
		inputPath  = flag.String("input", "", "path to the event CSV export (required)")
		taxYear    = flag.Int("year", time.Now().Year()-1, "tax year to report")
		method     = flag.String("method", "fifo", "default costing method (fifo or average)")
		outPath    = flag.String("out", "", "write an Excel report to this path")
		pricesPath = flag.String("prices", "prices.db", "path to the EUR price database")
	)
	flag.Parse()

	if *inputPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewDefault(cfg.Env)

	if err := run(ctx, cfg, log, *inputPath, *taxYear, *method, *outPath, *pricesPath); err != nil {
		log.WithError(err).Error("report failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger, inputPath string, taxYear int, method, outPath, pricesPath string) error {
	costing := inventory.Method(method)
	if !costing.Valid() {
		return fmt.Errorf("unknown costing method %q", method)
	}

	f, err := os.Open(inputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	events, rowErrs, err := ingest.ReadCSV(f)
	if err != nil {
		return err
	}
	for _, re := range rowErrs {
		log.Warn("skipped CSV row", "error", re.Error())
	}
	if len(events) == 0 {
		return fmt.Errorf("%s contains no decodable events", inputPath)
	}

	prices, err := pricestore.Open(pricesPath, log)
	if err != nil {
		return err
	}
	defer prices.Close()

	prices.Enrich(ctx, events)
	eoyPrices, err := prices.YearEndPrices(ctx, assetsOf(events), taxYear)
	if err != nil {
		return err
	}

	eng := engine.New(engine.Config{
		TaxYear:             taxYear,
		DefaultMethod:       costing,
		FreigrenzePrivSales: cfg.FreigrenzePrivSales,
		FreigrenzeOtherInc:  cfg.FreigrenzeOtherInc,
		TransferMatchWindow: cfg.TransferMatchWindow,
	}, log)

	doc := report.Build(eng.Evaluate(events, eoyPrices))
	printSummary(doc)

	if outPath != "" {
		if err := report.WriteXLSX(doc, outPath); err != nil {
			return err
		}
		fmt.Printf("\nExcel report written to %s\n", outPath)
	}

	return nil
}

func printSummary(doc *report.Document) {
	fmt.Printf("Tax report %d (generated %s)\n\n", doc.TaxYear, doc.GeneratedAt.Format(time.RFC3339))

	printTotals(doc.PrivateSales)
	printTotals(doc.OtherIncome)
	printTotals(doc.CapitalIncome)

	unpriced := 0
	holdings := decimal.Zero
	for _, p := range doc.Unrealized.Positions {
		if !p.Priced {
			unpriced++
			continue
		}
		holdings = holdings.Add(p.UnrealizedEUR)
	}
	fmt.Printf("Unrealized (informational): %s EUR across %d positions", holdings.StringFixed(2), len(doc.Unrealized.Positions))
	if unpriced > 0 {
		fmt.Printf(" (%d unpriced)", unpriced)
	}
	fmt.Println()

	if len(doc.Failures) > 0 {
		fmt.Printf("\n%d events could not be processed:\n", len(doc.Failures))
		for _, f := range doc.Failures {
			fmt.Printf("  %s %s/%s: %s\n", f.Timestamp.Format("2006-01-02"), f.WalletID, f.Asset, f.Reason)
		}
	}
	for _, b := range doc.Blocked {
		fmt.Printf("Ledger %s/%s blocked (%s), %d events skipped\n", b.WalletID, b.Asset, b.Reason, b.SkippedEvents)
	}
}

func printTotals(t *aggregate.Totals) {
	fmt.Printf("%s\n", t.Bucket)
	fmt.Printf("  Gains %s EUR, losses %s EUR, net %s EUR\n",
		t.GrossGains.StringFixed(2), t.GrossLosses.StringFixed(2), t.Net.StringFixed(2))
	if t.ThresholdEUR.IsPositive() {
		fmt.Printf("  Taxable after %s EUR Freigrenze: %s EUR\n",
			t.ThresholdEUR.StringFixed(0), t.TaxableAmount.StringFixed(2))
	} else {
		fmt.Printf("  Taxable: %s EUR\n", t.TaxableAmount.StringFixed(2))
	}
	fmt.Println()
}

func assetsOf(events []*event.Event) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, ev := range events {
		if _, ok := seen[ev.Asset]; !ok {
			seen[ev.Asset] = struct{}{}
			out = append(out, ev.Asset)
		}
	}
	return out
}
