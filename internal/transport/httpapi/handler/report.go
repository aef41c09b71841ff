package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/rikongha/CoinTaxman/internal/engine"
	"github.com/rikongha/CoinTaxman/internal/event"
	"github.com/rikongha/CoinTaxman/internal/ingest"
	"github.com/rikongha/CoinTaxman/internal/inventory"
	"github.com/rikongha/CoinTaxman/internal/pricestore"
	"github.com/rikongha/CoinTaxman/internal/report"
	"github.com/rikongha/CoinTaxman/pkg/config"
	"github.com/rikongha/CoinTaxman/pkg/logger"
)

// maxBodyBytes bounds uploaded batches; a full multi-year history with
// hundreds of thousands of events stays well under this.
const maxBodyBytes = 64 << 20

// ReportHandler computes tax reports from uploaded event batches.
type ReportHandler struct {
	cfg     *config.Config
	prices  *pricestore.Store
	results *gocache.Cache
	log     *logger.Logger
}

// NewReportHandler creates a new report handler. Computed documents are kept
// in memory for one hour so clients can re-fetch them by ID.
func NewReportHandler(cfg *config.Config, prices *pricestore.Store, log *logger.Logger) *ReportHandler {
	return &ReportHandler{
		cfg:     cfg,
		prices:  prices,
		results: gocache.New(time.Hour, 10*time.Minute),
		log:     log.WithField("component", "report_handler"),
	}
}

// reportRequest is the JSON body of POST /reports.
type reportRequest struct {
	TaxYear       int            `json:"tax_year,omitempty"`
	CostingMethod string         `json:"costing_method,omitempty"`
	Events        []*event.Event `json:"events"`
}

// CreateReport computes a tax report from a JSON event batch.
// POST /api/v1/reports
func (h *ReportHandler) CreateReport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Events) == 0 {
		respondError(w, "events are required", http.StatusBadRequest)
		return
	}

	doc, err := h.compute(r, req)
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	respondJSON(w, doc, http.StatusOK)
}

// CreateReportFromCSV computes a tax report from an uploaded CSV export.
// POST /api/v1/reports/csv
func (h *ReportHandler) CreateReportFromCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	events, rowErrs, err := ingest.ReadCSV(r.Body)
	if err != nil {
		respondError(w, "invalid CSV: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(events) == 0 {
		respondError(w, "CSV contains no decodable events", http.StatusBadRequest)
		return
	}

	doc, err := h.compute(r, reportRequest{Events: events})
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := struct {
		*report.Document
		CSVErrors []string `json:"csv_errors,omitempty"`
	}{Document: doc}
	for _, re := range rowErrs {
		resp.CSVErrors = append(resp.CSVErrors, re.Error())
	}

	respondJSON(w, resp, http.StatusOK)
}

// GetReport returns a previously computed report.
// GET /api/v1/reports/{id}
func (h *ReportHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		respondError(w, "invalid report ID", http.StatusBadRequest)
		return
	}

	doc, ok := h.results.Get(id)
	if !ok {
		respondError(w, "report not found", http.StatusNotFound)
		return
	}

	respondJSON(w, doc, http.StatusOK)
}

func (h *ReportHandler) compute(r *http.Request, req reportRequest) (*report.Document, error) {
	taxYear := h.cfg.TaxYear
	if req.TaxYear != 0 {
		taxYear = req.TaxYear
	}
	method := inventory.Method(h.cfg.CostingMethod)
	if req.CostingMethod != "" {
		method = inventory.Method(strings.ToLower(req.CostingMethod))
	}
	if !method.Valid() {
		return nil, errInvalidMethod
	}

	for _, ev := range req.Events {
		if ev.ID == uuid.Nil {
			ev.ID = uuid.New()
		}
	}

	// Resolve missing EUR values and end-of-year prices before the engine
	// runs; the core itself never performs price lookups.
	h.prices.Enrich(r.Context(), req.Events)
	eoyPrices, err := h.prices.YearEndPrices(r.Context(), uniqueAssets(req.Events), taxYear)
	if err != nil {
		return nil, err
	}

	eng := engine.New(engine.Config{
		TaxYear:             taxYear,
		DefaultMethod:       method,
		FreigrenzePrivSales: h.cfg.FreigrenzePrivSales,
		FreigrenzeOtherInc:  h.cfg.FreigrenzeOtherInc,
		TransferMatchWindow: h.cfg.TransferMatchWindow,
	}, h.log)

	doc := report.Build(eng.Evaluate(req.Events, eoyPrices))
	h.results.Set(doc.ID.String(), doc, gocache.DefaultExpiration)

	h.log.Info("report computed",
		"report_id", doc.ID,
		"tax_year", taxYear,
		"events", len(req.Events),
		"complete", doc.Complete(),
	)

	return doc, nil
}

func uniqueAssets(events []*event.Event) []string {
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
