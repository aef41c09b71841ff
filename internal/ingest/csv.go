// Package ingest decodes normalized transaction exports into events. It
// accepts one generic CSV format; exchange-specific parsing happens outside
// this repository.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rikongha/CoinTaxman/internal/event"
)

// columns is the required CSV header, in order.
var columns = []string{
	"timestamp", "wallet_id", "asset", "quantity",
	"counter_asset", "counter_amount", "value_eur",
	"direction", "kind", "link_key",
	"fee_amount", "fee_asset", "fee_value_eur",
	"consideration", "tx_ref",
}

// RowError describes a CSV row that could not be decoded.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// ReadCSV decodes events from a normalized CSV export. Decoding is strict:
// malformed rows are returned as RowErrors alongside the rows that parsed,
// mirroring the engine's collect-and-report policy.
func ReadCSV(r io.Reader) ([]*event.Event, []*RowError, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	if err := checkHeader(header); err != nil {
		return nil, nil, err
	}

	var (
		events  []*event.Event
		rowErrs []*RowError
	)

	for row := 2; ; row++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rowErrs = append(rowErrs, &RowError{Row: row, Err: err})
			continue
		}

		ev, err := decodeRow(record)
		if err != nil {
			rowErrs = append(rowErrs, &RowError{Row: row, Err: err})
			continue
		}
		events = append(events, ev)
	}

	return events, rowErrs, nil
}

func checkHeader(header []string) error {
	if len(header) != len(columns) {
		return fmt.Errorf("expected %d columns, got %d", len(columns), len(header))
	}
	for i, want := range columns {
		if strings.TrimSpace(strings.ToLower(header[i])) != want {
			return fmt.Errorf("column %d: expected %q, got %q", i+1, want, header[i])
		}
	}
	return nil
}

func decodeRow(rec []string) (*event.Event, error) {
	ts, err := time.Parse(time.RFC3339, rec[0])
	if err != nil {
		return nil, fmt.Errorf("timestamp: %w", err)
	}

	qty, err := parseDecimal(rec[3], "quantity")
	if err != nil {
		return nil, err
	}
	counterAmount, err := parseOptionalDecimal(rec[5], "counter_amount")
	if err != nil {
		return nil, err
	}
	valueEUR, err := parseOptionalDecimal(rec[6], "value_eur")
	if err != nil {
		return nil, err
	}

	kind := event.Kind(strings.ToLower(strings.TrimSpace(rec[8])))
	if !kind.Known() {
		return nil, fmt.Errorf("unknown kind %q", rec[8])
	}

	ev := &event.Event{
		ID:            uuid.New(),
		Timestamp:     ts.UTC(),
		WalletID:      strings.TrimSpace(rec[1]),
		Asset:         strings.ToUpper(strings.TrimSpace(rec[2])),
		Quantity:      qty,
		CounterAsset:  strings.ToUpper(strings.TrimSpace(rec[4])),
		CounterAmount: counterAmount,
		ValueEUR:      valueEUR,
		Direction:     event.Direction(strings.ToLower(strings.TrimSpace(rec[7]))),
		Kind:          kind,
		LinkKey:       strings.TrimSpace(rec[9]),
		Consideration: parseBool(rec[13]),
		TxRef:         strings.TrimSpace(rec[14]),
	}

	if rec[10] != "" || rec[11] != "" {
		feeAmount, err := parseOptionalDecimal(rec[10], "fee_amount")
		if err != nil {
			return nil, err
		}
		feeValue, err := parseOptionalDecimal(rec[12], "fee_value_eur")
		if err != nil {
			return nil, err
		}
		ev.Fee = &event.Fee{
			Amount:   feeAmount,
			Asset:    strings.ToUpper(strings.TrimSpace(rec[11])),
			ValueEUR: feeValue,
		}
	}

	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

func parseDecimal(s, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid decimal %q", field, s)
	}
	return d, nil
}

func parseOptionalDecimal(s, field string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	return parseDecimal(s, field)
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1":
		return true
	default:
		return false
	}
}
