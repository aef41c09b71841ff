// Package pricestore holds externally sourced EUR fair-market values in an
// embedded sqlite database with an in-memory cache in front. The tax core
// never fetches prices itself; this store backfills event values and supplies
// end-of-year prices before a batch reaches the engine.
package pricestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/rikongha/CoinTaxman/internal/event"
	"github.com/rikongha/CoinTaxman/pkg/logger"
)

// ErrPriceNotFound is returned when no price is recorded for an asset/day.
var ErrPriceNotFound = errors.New("pricestore: price not found")

const schema = `
CREATE TABLE IF NOT EXISTS prices (
	asset     TEXT NOT NULL,
	day       TEXT NOT NULL,
	price_eur TEXT NOT NULL,
	PRIMARY KEY (asset, day)
);`

// Store is a sqlite-backed EUR price repository. Prices are stored as decimal
// strings to avoid any float rounding.
type Store struct {
	db    *sql.DB
	cache *gocache.Cache
	log   *logger.Logger
}

// Open opens (or creates) the price database at path.
func Open(path string, log *logger.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open price database %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate price database: %w", err)
	}

	return &Store{
		db:    db,
		cache: gocache.New(30*time.Minute, 10*time.Minute),
		log:   log.WithField("component", "pricestore"),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func cacheKey(asset string, day time.Time) string {
	return asset + "@" + day.UTC().Format("2006-01-02")
}

// Price returns the EUR price of one unit of asset on the given day.
func (s *Store) Price(ctx context.Context, asset string, day time.Time) (decimal.Decimal, error) {
	key := cacheKey(asset, day)
	if v, ok := s.cache.Get(key); ok {
		return v.(decimal.Decimal), nil
	}

	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT price_eur FROM prices WHERE asset = ? AND day = ?`,
		asset, day.UTC().Format("2006-01-02"),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("%w: %s on %s", ErrPriceNotFound, asset, day.UTC().Format("2006-01-02"))
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("query price: %w", err)
	}

	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt price for %s: %w", asset, err)
	}

	s.cache.Set(key, price, gocache.DefaultExpiration)
	return price, nil
}

// SetPrice records the EUR price of one unit of asset on the given day.
func (s *Store) SetPrice(ctx context.Context, asset string, day time.Time, price decimal.Decimal) error {
	if price.IsNegative() {
		return fmt.Errorf("pricestore: negative price %s for %s", price, asset)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prices (asset, day, price_eur) VALUES (?, ?, ?)
		 ON CONFLICT (asset, day) DO UPDATE SET price_eur = excluded.price_eur`,
		asset, day.UTC().Format("2006-01-02"), price.String(),
	)
	if err != nil {
		return fmt.Errorf("store price: %w", err)
	}
	s.cache.Set(cacheKey(asset, day), price, gocache.DefaultExpiration)
	return nil
}

// YearEndPrices returns the December 31 prices of the given assets for a tax
// year. Assets without a recorded price are simply absent from the map; the
// snapshot marks them unpriced instead of guessing.
func (s *Store) YearEndPrices(ctx context.Context, assets []string, year int) (map[string]decimal.Decimal, error) {
	eoy := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	out := make(map[string]decimal.Decimal, len(assets))

	for _, asset := range assets {
		price, err := s.Price(ctx, asset, eoy)
		if errors.Is(err, ErrPriceNotFound) {
			s.log.Warn("no end-of-year price", "asset", asset, "year", year)
			continue
		}
		if err != nil {
			return nil, err
		}
		out[asset] = price
	}

	return out, nil
}

// Enrich fills in missing EUR values on events from recorded prices. Events
// that already carry a value are left untouched; events whose price is
// unknown stay unvalued and surface later as classification failures rather
// than being guessed.
func (s *Store) Enrich(ctx context.Context, events []*event.Event) {
	for _, ev := range events {
		if !ev.ValueEUR.IsZero() || ev.Quantity.IsZero() {
			continue
		}

		price, err := s.Price(ctx, ev.Asset, ev.Timestamp)
		if err != nil {
			continue
		}
		ev.ValueEUR = ev.Quantity.Mul(price)
	}
}
