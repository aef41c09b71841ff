package httpapi

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/rikongha/CoinTaxman/internal/transport/httpapi/handler"
	"github.com/rikongha/CoinTaxman/internal/transport/httpapi/middleware"
	"github.com/rikongha/CoinTaxman/pkg/logger"
)

// Config holds router configuration
type Config struct {
	Logger         *logger.Logger
	AllowedOrigins []string
	ReportHandler  *handler.ReportHandler
	PriceHandler   *handler.PriceHandler
}

// NewRouter creates a new HTTP router
func NewRouter(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(chimiddleware.Compress(5))
	r.Use(middleware.RateLimit())

	r.Get("/health", handler.GetHealth)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.ReportHandler != nil {
			r.Post("/reports", cfg.ReportHandler.CreateReport)
			r.Post("/reports/csv", cfg.ReportHandler.CreateReportFromCSV)
			r.Get("/reports/{id}", cfg.ReportHandler.GetReport)
		}

		if cfg.PriceHandler != nil {
			r.Put("/prices/{asset}/{day}", cfg.PriceHandler.SetPrice)
			r.Get("/prices/{asset}/{day}", cfg.PriceHandler.GetPrice)
		}
	})

	return r
}
