package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rikongha/CoinTaxman/internal/pricestore"
	"github.com/rikongha/CoinTaxman/internal/transport/httpapi"
	"github.com/rikongha/CoinTaxman/internal/transport/httpapi/handler"
	"github.com/rikongha/CoinTaxman/pkg/config"
	"github.com/rikongha/CoinTaxman/pkg/logger"
)

func main() {
	// Create context that listens for termination signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewDefault(cfg.Env)
	log.Info("Starting CoinTaxman API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"tax_year", cfg.TaxYear,
		"costing_method", cfg.CostingMethod,
	)

	// Open the price database
	prices, err := pricestore.Open(cfg.PriceDBPath, log)
	if err != nil {
		log.Error("Failed to open price database", "error", err)
		os.Exit(1)
	}
	defer prices.Close()
	log.Info("Price database opened", "path", cfg.PriceDBPath)

	// Initialize HTTP handlers
	reportHandler := handler.NewReportHandler(cfg, prices, log)
	priceHandler := handler.NewPriceHandler(prices, log)

	// Create HTTP router
	r := httpapi.NewRouter(httpapi.Config{
		Logger:         log,
		AllowedOrigins: cfg.AllowedOrigins,
		ReportHandler:  reportHandler,
		PriceHandler:   priceHandler,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for termination signal
	<-ctx.Done()
	log.Info("Shutdown signal received")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("Server stopped gracefully")
}
