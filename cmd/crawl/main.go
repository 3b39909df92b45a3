package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/tokscrape/tiktok-shop-scraper/internal/browser"
	"github.com/tokscrape/tiktok-shop-scraper/internal/models"
	"github.com/tokscrape/tiktok-shop-scraper/internal/scraper"
	"github.com/tokscrape/tiktok-shop-scraper/internal/storage"
)

// One-shot crawl without the HTTP server. Either -user or -urls is required.
func main() {
	var (
		user     = flag.String("user", "", "profile username to crawl")
		urls     = flag.String("urls", "", "comma-separated video urls to process instead of a profile")
		limit    = flag.Int("limit", 10, "maximum videos to inspect")
		enrich   = flag.Bool("enrich", false, "visit each product page for extra details")
		reviews  = flag.Bool("reviews", false, "collect product reviews (implies -enrich)")
		out      = flag.String("out", "product-jsons", "output directory")
		headless = flag.Bool("headless", true, "run the browser headless")
		timeout  = flag.Duration("timeout", 30*time.Minute, "overall run timeout")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if *user == "" && *urls == "" {
		logger.Error("either -user or -urls is required")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := storage.New(*out, logger)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}

	opts := browser.DefaultOptions()
	opts.Headless = *headless

	svc, err := scraper.NewService(opts, logger)
	if err != nil {
		logger.Error("failed to start scraper", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	if *user != "" {
		runCrawl(ctx, logger, svc, store, *user, scraper.CrawlOptions{
			Limit:          *limit,
			EnrichDetails:  *enrich || *reviews,
			CollectReviews: *reviews,
			MaxReviews:     20,
		})
		return
	}

	runURLs(ctx, logger, svc, store, strings.Split(*urls, ","))
}

func runCrawl(ctx context.Context, logger *slog.Logger, svc *scraper.Service, store *storage.Store, user string, opts scraper.CrawlOptions) {
	videos, err := svc.Crawl(ctx, user, opts)
	if err != nil {
		logger.Error("crawl failed", "username", user, "error", err)
		os.Exit(1)
	}

	name, err := store.SaveProfile(user, videos)
	if err != nil {
		logger.Error("failed to save results", "error", err)
		os.Exit(1)
	}

	logger.Info("crawl finished", "username", user, "videos", len(videos), "file", name)
}

func runURLs(ctx context.Context, logger *slog.Logger, svc *scraper.Service, store *storage.Store, urls []string) {
	results := []models.VideoRecord{}

	for _, url := range urls {
		url = strings.TrimSpace(url)
		if url == "" {
			continue
		}

		video, err := svc.ProcessVideo(ctx, url)
		if err != nil {
			logger.Warn("skipping url", "url", url, "error", err)
			continue
		}
		results = append(results, *video)
	}

	if len(results) == 0 {
		logger.Error("no videos processed")
		os.Exit(1)
	}

	name, err := store.SaveCombined(results)
	if err != nil {
		logger.Error("failed to save results", "error", err)
		os.Exit(1)
	}

	logger.Info("processing finished", "videos", len(results), "file", name)
}
