package report

import (
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/rikongha/CoinTaxman/internal/aggregate"
)

// WriteXLSX writes the document as an xlsx workbook: one sheet per bucket,
// one for the unrealized holdings and one for processing errors.
func WriteXLSX(doc *Document, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := writeBucketSheet(f, "Private Sales §23", doc.PrivateSales); err != nil {
		return err
	}
	if err := writeBucketSheet(f, "Other Income §22 Nr 3", doc.OtherIncome); err != nil {
		return err
	}
	if err := writeBucketSheet(f, "Capital Income §20", doc.CapitalIncome); err != nil {
		return err
	}
	if err := writeHoldingsSheet(f, doc.Unrealized); err != nil {
		return err
	}
	if err := writeErrorsSheet(f, doc); err != nil {
		return err
	}

	f.DeleteSheet("Sheet1")
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save report %s: %w", path, err)
	}
	return nil
}

func writeBucketSheet(f *excelize.File, sheet string, t *aggregate.Totals) error {
	rows := [][]interface{}{
		{"Net", t.Net.StringFixed(2)},
		{"Gross gains", t.GrossGains.StringFixed(2)},
		{"Gross losses", t.GrossLosses.StringFixed(2)},
		{"Threshold (Freigrenze)", t.ThresholdEUR.StringFixed(2)},
		{"Taxable amount", t.TaxableAmount.StringFixed(2)},
		{},
		{"Date", "Kind", "Wallet", "Asset", "Quantity", "Acquired", "Holding days",
			"Proceeds EUR", "Cost basis EUR", "Realized EUR", "Tax free", "Tx ref"},
	}

	for _, ev := range t.Events {
		acquired := ""
		if !ev.AcquiredAt.IsZero() {
			acquired = ev.AcquiredAt.Format("2006-01-02")
		}
		rows = append(rows, []interface{}{
			ev.Timestamp.Format("2006-01-02"),
			string(ev.Kind),
			ev.WalletID,
			ev.Asset,
			ev.Quantity.String(),
			acquired,
			ev.HoldingDays,
			ev.ProceedsEUR.StringFixed(2),
			ev.CostBasisEUR.StringFixed(2),
			ev.RealizedEUR.StringFixed(2),
			ev.TaxFree,
			ev.TxRef,
		})
	}

	return writeRows(f, sheet, rows)
}

func writeHoldingsSheet(f *excelize.File, snap *aggregate.Snapshot) error {
	rows := [][]interface{}{
		{"Informational only - not part of any taxable bucket"},
		{"As of", snap.AsOf.Format("2006-01-02")},
		{},
		{"Wallet", "Asset", "Quantity", "Cost basis EUR", "Market value EUR", "Unrealized EUR", "Priced"},
	}

	for _, pos := range snap.Positions {
		rows = append(rows, []interface{}{
			pos.WalletID,
			pos.Asset,
			pos.Quantity.String(),
			pos.CostBasisEUR.StringFixed(2),
			pos.MarketValueEUR.StringFixed(2),
			pos.UnrealizedEUR.StringFixed(2),
			pos.Priced,
		})
	}

	return writeRows(f, "Holdings EOY", rows)
}

func writeErrorsSheet(f *excelize.File, doc *Document) error {
	rows := [][]interface{}{
		{"Failed records"},
		{"Timestamp", "Wallet", "Asset", "Tx ref", "Reason"},
	}
	for _, fl := range doc.Failures {
		rows = append(rows, []interface{}{
			fl.Timestamp.Format("2006-01-02 15:04:05"),
			fl.WalletID, fl.Asset, fl.TxRef, fl.Reason,
		})
	}

	rows = append(rows, []interface{}{}, []interface{}{"Blocked ledgers"},
		[]interface{}{"Wallet", "Asset", "Reason", "Skipped events"})
	for _, b := range doc.Blocked {
		rows = append(rows, []interface{}{b.WalletID, b.Asset, b.Reason, b.SkippedEvents})
	}

	return writeRows(f, "Errors", rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("sheet %s: %w", sheet, err)
	}
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		if err := f.SetSheetRow(sheet, "A"+strconv.Itoa(i+1), &row); err != nil {
			return fmt.Errorf("sheet %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
