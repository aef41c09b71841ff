package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/rikongha/CoinTaxman/internal/pricestore"
	"github.com/rikongha/CoinTaxman/pkg/logger"
)

// PriceHandler manages the daily EUR price table used for value enrichment.
type PriceHandler struct {
	prices *pricestore.Store
	log    *logger.Logger
}

// NewPriceHandler creates a new price handler.
func NewPriceHandler(prices *pricestore.Store, log *logger.Logger) *PriceHandler {
	return &PriceHandler{
		prices: prices,
		log:    log.WithField("component", "price_handler"),
	}
}

type setPriceRequest struct {
	PriceEUR decimal.Decimal `json:"price_eur"`
}

type priceResponse struct {
	Asset    string          `json:"asset"`
	Day      string          `json:"day"`
	PriceEUR decimal.Decimal `json:"price_eur"`
}

// SetPrice records the EUR price of one unit of an asset on a day.
// PUT /api/v1/prices/{asset}/{day}
func (h *PriceHandler) SetPrice(w http.ResponseWriter, r *http.Request) {
	asset, day, ok := h.params(w, r)
	if !ok {
		return
	}

	var req setPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.prices.SetPrice(r.Context(), asset, day, req.PriceEUR); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	respondJSON(w, priceResponse{
		Asset:    asset,
		Day:      day.Format("2006-01-02"),
		PriceEUR: req.PriceEUR,
	}, http.StatusOK)
}

// GetPrice returns the recorded EUR price of an asset on a day.
// GET /api/v1/prices/{asset}/{day}
func (h *PriceHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	asset, day, ok := h.params(w, r)
	if !ok {
		return
	}

	price, err := h.prices.Price(r.Context(), asset, day)
	if errors.Is(err, pricestore.ErrPriceNotFound) {
		respondError(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.WithError(err).Error("price lookup failed")
		respondError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	respondJSON(w, priceResponse{
		Asset:    asset,
		Day:      day.Format("2006-01-02"),
		PriceEUR: price,
	}, http.StatusOK)
}

func (h *PriceHandler) params(w http.ResponseWriter, r *http.Request) (string, time.Time, bool) {
	asset := strings.ToUpper(chi.URLParam(r, "asset"))
	if asset == "" {
		respondError(w, "asset is required", http.StatusBadRequest)
		return "", time.Time{}, false
	}

	day, err := time.Parse("2006-01-02", chi.URLParam(r, "day"))
	if err != nil {
		respondError(w, "day must be formatted as YYYY-MM-DD", http.StatusBadRequest)
		return "", time.Time{}, false
	}

	return asset, day, true
}
