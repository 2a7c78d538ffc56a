// Package main provides the HTTP server for radar.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/raphaelgruber/radar/internal/agent"
	"github.com/raphaelgruber/radar/internal/cluster"
	"github.com/raphaelgruber/radar/internal/config"
	"github.com/raphaelgruber/radar/internal/feeds"
	"github.com/raphaelgruber/radar/internal/llm"
	"github.com/raphaelgruber/radar/internal/metrics"
	"github.com/raphaelgruber/radar/internal/scan"
	"github.com/raphaelgruber/radar/internal/server"
	"github.com/raphaelgruber/radar/internal/store"
)

func main() {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// Initialize logging
	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer closeLog()
	slog.SetDefault(logger)

	logger.Info("starting radar-server", "addr", cfg.ServerAddr, "store", cfg.StoreDriver, "provider", cfg.LLMProvider)

	// Stop on interrupt; the server drains in-flight requests on the way out.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Catalogs
	missions, err := config.LoadMissions(cfg.MissionsFile)
	if err != nil {
		logger.Error("failed to load mission catalog", "error", err)
		os.Exit(1)
	}
	watchlist, err := config.LoadFeeds(cfg.FeedsFile)
	if err != nil {
		logger.Error("failed to load feed watchlist", "error", err)
		os.Exit(1)
	}

	collector := metrics.NewCollector()

	// Signal store
	openCtx, openCancel := context.WithTimeout(ctx, 30*time.Second)
	gateway, err := store.Open(openCtx, cfg, logger)
	openCancel()
	if err != nil {
		logger.Error("failed to open signal store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := gateway.Close(context.Background()); err != nil {
			logger.Error("failed to close signal store", "error", err)
		}
	}()

	// Model provider
	modelCtx, modelCancel := context.WithTimeout(ctx, 30*time.Second)
	model, err := llm.NewModel(modelCtx, cfg, collector)
	modelCancel()
	if err != nil {
		logger.Error("failed to initialize model", "error", err)
		os.Exit(1)
	}

	// Scan pipeline
	host := agent.NewHost(model, logger)
	defer host.Close()

	watcher := feeds.New(feeds.Config{
		Sources:   watchlist,
		Missions:  missions,
		Collector: collector,
		Logger:    logger,
	})

	orchestrator := scan.New(scan.Config{
		Runtime:      host,
		Generator:    model,
		Feeds:        watcher,
		Gateway:      gateway,
		Missions:     missions,
		Collector:    collector,
		Logger:       logger,
		PollInterval: cfg.PollInterval,
		ScanTimeout:  cfg.ScanTimeout,
		MaxSignals:   cfg.MaxSignals,
	})

	clusterer := cluster.New(model, gateway, logger)

	srv := server.New(server.Config{
		Addr:         cfg.ServerAddr,
		Orchestrator: orchestrator,
		Clusterer:    clusterer,
		Gateway:      gateway,
		Collector:    collector,
		Logger:       logger,
	})

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
