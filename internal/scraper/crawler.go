package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/playwright-community/playwright-go"
	"github.com/tokscrape/tiktok-shop-scraper/internal/browser"
	"github.com/tokscrape/tiktok-shop-scraper/internal/extractor"
	"github.com/tokscrape/tiktok-shop-scraper/internal/fetcher"
	"github.com/tokscrape/tiktok-shop-scraper/internal/models"
)

const profileBaseURL = "https://www.tiktok.com/@"

var (
	createTimeRe = regexp.MustCompile(`"createTime"\s*:\s*"?(\d{10})"?`)
	videoPathRe  = regexp.MustCompile(`/video/(\d+)`)
)

// ContentFetcher retrieves rendered page content. Satisfied by
// fetcher.Fetcher; faked in tests.
type ContentFetcher interface {
	Fetch(ctx context.Context, url string) (*fetcher.Result, error)
}

// evaluator is the slice of playwright.Page the scroll loop needs.
type evaluator interface {
	Evaluate(expression string, arg ...interface{}) (interface{}, error)
}

// CrawlOptions controls one profile crawl.
type CrawlOptions struct {
	Limit          int
	EnrichDetails  bool
	CollectReviews bool
	MaxReviews     int
}

// Crawler enumerates a creator's videos via infinite-scroll pagination and
// runs the fetch/extract pipeline over each candidate. A single failing
// video is skipped; the crawl never aborts because of one.
type Crawler struct {
	sessions *browser.Manager
	fetcher  ContentFetcher
	products *extractor.Extractor
	enricher *Enricher
	logger   *slog.Logger

	ProfileAttempts int
	ProfileTimeout  time.Duration
	ScrollDelay     time.Duration
	MaxScrolls      int
	VideoDelay      time.Duration
	RetryDelay      time.Duration
}

func NewCrawler(sessions *browser.Manager, f ContentFetcher, products *extractor.Extractor, enricher *Enricher, logger *slog.Logger) *Crawler {
	return &Crawler{
		sessions: sessions,
		fetcher:  f,
		products: products,
		enricher: enricher,
		logger:   logger.With("component", "profile_crawler"),

		ProfileAttempts: 3,
		ProfileTimeout:  300 * time.Second,
		ScrollDelay:     3 * time.Second,
		MaxScrolls:      20,
		VideoDelay:      5 * time.Second,
		RetryDelay:      5 * time.Second,
	}
}

// Crawl returns the creator's videos that carry at least one shop product,
// in DOM-discovery order, at most opts.Limit videos considered.
func (c *Crawler) Crawl(ctx context.Context, username string, opts CrawlOptions) ([]models.VideoRecord, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	profileURL := profileBaseURL + username
	c.logger.Info("starting profile crawl", "username", username, "limit", opts.Limit)

	refs, err := c.collectProfileVideos(ctx, profileURL, opts.Limit)
	if err != nil {
		return nil, err
	}

	c.logger.Info("video references collected", "count", len(refs))

	return c.processVideos(ctx, refs, opts), nil
}

// collectProfileVideos loads the profile page, drives scroll pagination and
// returns the first limit distinct video references in DOM order. The page
// must stay open across the scroll loop, so this path owns its session
// directly instead of going through the fetcher.
func (c *Crawler) collectProfileVideos(ctx context.Context, profileURL string, limit int) ([]models.VideoReference, error) {
	var lastErr error

	for attempt := 1; attempt <= c.ProfileAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		refs, err := c.profileAttempt(ctx, profileURL, limit)
		if err == nil {
			return refs, nil
		}

		lastErr = err
		c.logger.Error("profile fetch attempt failed", "url", profileURL, "attempt", attempt, "error", err)

		c.sessions.Recycle()
		if attempt < c.ProfileAttempts {
			if err := sleep(ctx, c.RetryDelay); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("failed to load profile %s after %d attempts: %w", profileURL, c.ProfileAttempts, lastErr)
}

func (c *Crawler) profileAttempt(ctx context.Context, profileURL string, limit int) ([]models.VideoReference, error) {
	sess, err := c.sessions.Acquire()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire session: %w", err)
	}

	page, err := sess.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	defer page.Close()

	// Crawl flows hold the page open for the whole scroll loop.
	page.SetDefaultTimeout(float64(c.ProfileTimeout.Milliseconds()))

	if _, err := page.Goto(profileURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(30000),
	}); err != nil {
		return nil, fmt.Errorf("failed to navigate: %w", err)
	}

	if _, err := page.WaitForSelector("body", playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(20000),
	}); err != nil {
		return nil, fmt.Errorf("profile body never appeared: %w", err)
	}

	c.dismissErrorState(page)

	scrolls := c.scrollToEnd(ctx, page)
	c.logger.Info("profile scroll finished", "iterations", scrolls)

	content, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to capture profile content: %w", err)
	}

	return collectVideoRefs(content, limit), nil
}

// dismissErrorState clicks the platform's transient error retry affordance
// when present. Failure to click is not fatal; the crawl proceeds either way.
func (c *Crawler) dismissErrorState(page playwright.Page) {
	button := page.Locator(`button:has-text("Refresh")`).First()

	count, err := button.Count()
	if err != nil || count == 0 {
		return
	}

	c.logger.Info("transient error page detected, clicking retry button")
	if err := button.Click(); err != nil {
		c.logger.Warn("failed to click retry button", "error", err)
		return
	}
	time.Sleep(3 * time.Second)
}

// scrollToEnd scrolls to the document bottom until the scrollable height
// stops growing, or MaxScrolls iterations as the anti-hang guard. Returns
// the number of iterations performed.
func (c *Crawler) scrollToEnd(ctx context.Context, page evaluator) int {
	prev := scrollHeight(page)

	for i := 1; i <= c.MaxScrolls; i++ {
		if ctx.Err() != nil {
			return i
		}

		if _, err := page.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`); err != nil {
			c.logger.Warn("scroll evaluation failed", "error", err)
			return i
		}

		if err := sleep(ctx, c.ScrollDelay); err != nil {
			return i
		}

		height := scrollHeight(page)
		if height <= prev {
			return i
		}
		prev = height
	}

	return c.MaxScrolls
}

func scrollHeight(page evaluator) float64 {
	v, err := page.Evaluate(`document.body.scrollHeight`)
	if err != nil {
		return 0
	}
	return toFloat(v)
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	default:
		return 0
	}
}

// collectVideoRefs pulls distinct /video/ links from the rendered profile
// document in DOM order, keeping the first limit encountered.
func collectVideoRefs(content string, limit int) []models.VideoReference {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var refs []models.VideoReference

	doc.Find(`a[href*="/video/"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok || !videoPathRe.MatchString(href) {
			return true
		}
		if strings.HasPrefix(href, "/") {
			href = "https://www.tiktok.com" + href
		}
		if seen[href] {
			return true
		}
		seen[href] = true

		refs = append(refs, models.VideoReference{
			URL:       href,
			ViewCount: strings.TrimSpace(sel.Find(`[data-e2e="video-views"]`).First().Text()),
		})

		return len(refs) < limit
	})

	return refs
}

// processVideos runs fetch + extract over each reference and keeps only the
// videos that yielded at least one product.
func (c *Crawler) processVideos(ctx context.Context, refs []models.VideoReference, opts CrawlOptions) []models.VideoRecord {
	videos := []models.VideoRecord{}

	for i, ref := range refs {
		if ctx.Err() != nil {
			c.logger.Warn("crawl cancelled", "processed", i, "total", len(refs))
			break
		}

		c.logger.Info("processing video", "index", i+1, "total", len(refs), "url", ref.URL)

		res, err := c.fetcher.Fetch(ctx, ref.URL)
		if err != nil {
			c.logger.Warn("skipping video after failed fetch", "url", ref.URL, "error", err)
			continue
		}

		video := buildVideoRecord(ref, res.Content)
		products := c.products.Extract(res.Content)

		if len(products) == 0 {
			c.logger.Info("video has no products", "url", ref.URL)
		} else {
			if opts.EnrichDetails {
				c.enrichProducts(ctx, products, opts)
			}
			video.Products = products
			videos = append(videos, video)
			c.logger.Info("video retained", "url", ref.URL, "products", len(products))
		}

		// Fixed pacing after every per-video fetch bounds the request rate.
		if err := sleep(ctx, c.VideoDelay); err != nil {
			break
		}
	}

	return videos
}

func (c *Crawler) enrichProducts(ctx context.Context, products []models.ProductRecord, opts CrawlOptions) {
	if c.enricher == nil {
		return
	}

	for i := range products {
		url := products[i].DetailURL
		if url == "" {
			url = products[i].SeoURL
		}
		if url == "" {
			continue
		}

		detail, err := c.enricher.Enrich(ctx, url, EnrichOptions{
			CollectReviews: opts.CollectReviews,
			MaxReviews:     opts.MaxReviews,
		})
		if err != nil {
			c.logger.Warn("product enrichment failed", "url", url, "error", err)
			continue
		}
		products[i].Detail = detail
	}
}

// buildVideoRecord assembles display metadata from the rendered video page.
// Every lookup degrades to its empty default; metadata extraction never
// fails a video.
func buildVideoRecord(ref models.VideoReference, content string) models.VideoRecord {
	video := models.VideoRecord{
		ID:         parseVideoID(ref.URL),
		WebURL:     ref.URL,
		Views:      ref.ViewCount,
		PostedDate: parsePostedDate(content),
		Products:   []models.ProductRecord{},
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return video
	}

	// Title is the joined caption spans plus the joined hashtag link texts.
	var parts []string
	doc.Find(`[data-e2e="browse-video-desc"] span`).Each(func(_ int, sel *goquery.Selection) {
		if text := strings.TrimSpace(sel.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	doc.Find(`[data-e2e="browse-video-desc"] a`).Each(func(_ int, sel *goquery.Selection) {
		if text := strings.TrimSpace(sel.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	video.Title = strings.Join(parts, " ")

	// Counts stay as displayed text.
	video.LikeCount = strings.TrimSpace(doc.Find(`[data-e2e="like-count"]`).First().Text())
	video.CommentCount = strings.TrimSpace(doc.Find(`[data-e2e="comment-count"]`).First().Text())
	video.Duration = strings.TrimSpace(doc.Find(`[data-e2e="video-duration"]`).First().Text())
	if video.Views == "" {
		video.Views = strings.TrimSpace(doc.Find(`[data-e2e="video-views"]`).First().Text())
	}

	return video
}

func parseVideoID(url string) string {
	if m := videoPathRe.FindStringSubmatch(url); m != nil {
		return m[1]
	}
	if i := strings.LastIndexByte(url, '/'); i >= 0 && i < len(url)-1 {
		return url[i+1:]
	}
	return url
}

// parsePostedDate recovers the publish timestamp from the embedded epoch
// field; "Unknown" when the page does not carry one.
func parsePostedDate(content string) string {
	m := createTimeRe.FindStringSubmatch(content)
	if m == nil {
		return "Unknown"
	}

	var epoch int64
	if _, err := fmt.Sscanf(m[1], "%d", &epoch); err != nil {
		return "Unknown"
	}

	return time.Unix(epoch, 0).UTC().Format("2006-01-02 15:04:05")
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
