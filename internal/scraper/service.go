package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tokscrape/tiktok-shop-scraper/internal/browser"
	"github.com/tokscrape/tiktok-shop-scraper/internal/extractor"
	"github.com/tokscrape/tiktok-shop-scraper/internal/fetcher"
	"github.com/tokscrape/tiktok-shop-scraper/internal/models"
)

// Service wires the session manager, page fetcher, product extractor,
// profile crawler and detail enricher into one scraping facade.
type Service struct {
	sessions *browser.Manager
	fetcher  *fetcher.Fetcher
	products *extractor.Extractor
	crawler  *Crawler
	enricher *Enricher
	logger   *slog.Logger
}

// NewService builds the full pipeline and eagerly starts a browser session
// so misconfiguration surfaces at construction instead of first use.
func NewService(opts *browser.Options, logger *slog.Logger) (*Service, error) {
	sessions := browser.NewManager(opts, logger)

	if _, err := sessions.Acquire(); err != nil {
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}

	f := fetcher.New(sessions, logger)
	products := extractor.New(logger)
	enricher := NewEnricher(sessions, logger)

	return &Service{
		sessions: sessions,
		fetcher:  f,
		products: products,
		crawler:  NewCrawler(sessions, f, products, enricher, logger),
		enricher: enricher,
		logger:   logger.With("component", "scraper_service"),
	}, nil
}

// ProcessVideo scrapes a single video URL. Unlike a crawl, the record is
// returned even when the video carries no products; the caller asked about
// this URL specifically.
func (s *Service) ProcessVideo(ctx context.Context, url string) (*models.VideoRecord, error) {
	res, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	video := buildVideoRecord(models.VideoReference{URL: url}, res.Content)
	video.Products = s.products.Extract(res.Content)

	s.logger.Info("video processed", "url", url, "products", len(video.Products))

	return &video, nil
}

// Crawl runs a full profile crawl for username.
func (s *Service) Crawl(ctx context.Context, username string, opts CrawlOptions) ([]models.VideoRecord, error) {
	return s.crawler.Crawl(ctx, username, opts)
}

// Close tears down the underlying browser session.
func (s *Service) Close() {
	s.sessions.Recycle()
}
