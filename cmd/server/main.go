package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/klear-trade/internal/assets"
	"github.com/ksred/klear-trade/internal/config"
	"github.com/ksred/klear-trade/internal/database"
	"github.com/ksred/klear-trade/internal/logging"
	"github.com/ksred/klear-trade/internal/pricing"
)

// main initializes and runs the trading API server with graceful shutdown support
// It loads configuration, migrates and seeds the database, and serves the API
func main() {
	envFile := flag.String("env", "", "path to a .env file (default: ./.env if present)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logCloser, err := logging.Setup(logging.Options{
		Level:      cfg.LogLevel,
		Production: cfg.Production(),
		File:       cfg.LogFile,
	})
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to configure logging")
	}
	defer logCloser.Close()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		zlog.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("Failed to initialize database")
	}

	catalog := assets.DefaultCatalog
	if cfg.AssetsFile != "" {
		catalog, err = assets.LoadCatalog(cfg.AssetsFile)
		if err != nil {
			zlog.Fatal().Err(err).Msg("Failed to load asset catalog")
		}
	}
	if err := assets.NewService(db).Seed(context.Background(), catalog); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to seed assets")
	}

	prices := pricing.NewSimulated(pricing.FallbackPrices, cfg.PriceVariance, time.Now().UnixNano())

	// Create server
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           newHandler(cfg, db, prices),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown setup
	go func() {
		zlog.Info().
			Int("port", cfg.Port).
			Str("env", cfg.Env).
			Str("database", cfg.DatabasePath).
			Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Err(err).Msg("Server forced to shutdown")
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	zlog.Info().Msg("Server exiting")
}
