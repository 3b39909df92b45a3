package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tokscrape/tiktok-shop-scraper/internal/api"
	"github.com/tokscrape/tiktok-shop-scraper/internal/browser"
	"github.com/tokscrape/tiktok-shop-scraper/internal/config"
	"github.com/tokscrape/tiktok-shop-scraper/internal/database"
	"github.com/tokscrape/tiktok-shop-scraper/internal/events"
	"github.com/tokscrape/tiktok-shop-scraper/internal/jobs"
	"github.com/tokscrape/tiktok-shop-scraper/internal/scraper"
	"github.com/tokscrape/tiktok-shop-scraper/internal/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.New(cfg.Storage.OutputDir, logger)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}

	var archive jobs.Archiver
	if cfg.DatabaseEnabled() {
		db, err := database.New(ctx, cfg.Database.ConnString(), logger)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.InitSchema(ctx); err != nil {
			logger.Error("failed to initialize database schema", "error", err)
			os.Exit(1)
		}
		archive = db
	}

	var sink jobs.EventSink
	if cfg.RedisEnabled() {
		publisher := events.NewPublisher(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Channel, logger)
		defer publisher.Close()

		if err := publisher.Ping(ctx); err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		sink = publisher
	}

	browserOpts := browser.DefaultOptions()
	browserOpts.Headless = cfg.Scraper.Headless
	browserOpts.Timeout = time.Duration(cfg.Scraper.Timeout) * time.Second

	factory := func() (jobs.Scraper, error) {
		return scraper.NewService(browserOpts, logger)
	}

	manager := jobs.NewManager(factory, store, archive, sink, logger)
	handler := api.NewHandler(manager, store, cfg.Scraper, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: time.Duration(cfg.Scraper.CrawlTimeout+60) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "port", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
