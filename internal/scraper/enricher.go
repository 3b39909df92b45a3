package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/tokscrape/tiktok-shop-scraper/internal/browser"
	"github.com/tokscrape/tiktok-shop-scraper/internal/models"
)

// Enricher fetches a product's dedicated page and collects the richer
// fields the video payload does not carry. Each field is attempted
// independently: a missing sub-element degrades that one field, never the
// whole record. There is no internal retry; the caller decides whether a
// failed enrichment is worth a second pass.
type Enricher struct {
	sessions *browser.Manager
	logger   *slog.Logger

	SettleDelay time.Duration
}

// EnrichOptions controls review collection for one enrichment.
type EnrichOptions struct {
	CollectReviews bool
	MaxReviews     int
}

func NewEnricher(sessions *browser.Manager, logger *slog.Logger) *Enricher {
	return &Enricher{
		sessions:    sessions,
		logger:      logger.With("component", "detail_enricher"),
		SettleDelay: 5 * time.Second,
	}
}

// Enrich loads productURL and returns whatever detail fields the page
// yields. Only navigation-level failures surface as errors.
func (e *Enricher) Enrich(ctx context.Context, productURL string, opts EnrichOptions) (*models.ProductDetail, error) {
	sess, err := e.sessions.Acquire()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire session: %w", err)
	}

	page, err := sess.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	defer page.Close()

	e.logger.Info("enriching product", "url", productURL)

	if _, err := page.Goto(productURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(30000),
	}); err != nil {
		return nil, fmt.Errorf("failed to navigate: %w", err)
	}

	if err := sleep(ctx, e.SettleDelay); err != nil {
		return nil, err
	}

	detail := &models.ProductDetail{
		AdditionalImages: []string{},
		Reviews:          []models.Review{},
	}

	e.collectImages(page, detail)
	e.collectCurrentPrice(page, detail)
	e.collectAmountSold(page, detail)
	e.collectRating(page, detail)

	if opts.CollectReviews {
		e.collectReviews(page, detail, opts.MaxReviews)
	}

	e.logger.Info("product enriched",
		"url", productURL,
		"images", len(detail.AdditionalImages),
		"reviews", len(detail.Reviews),
		"hasPrice", detail.CurrentPrice != "",
	)

	return detail, nil
}

func (e *Enricher) collectImages(page playwright.Page, detail *models.ProductDetail) {
	imageSelectors := []string{
		`div[class*="product-gallery"] img`,
		`div[class*="image-slider"] img`,
		`img[class*="product-image"]`,
	}

	seen := make(map[string]bool)
	for _, selector := range imageSelectors {
		images, err := page.QuerySelectorAll(selector)
		if err != nil {
			continue
		}
		for _, img := range images {
			src, err := img.GetAttribute("src")
			if err != nil || src == "" || seen[src] {
				continue
			}
			seen[src] = true
			detail.AdditionalImages = append(detail.AdditionalImages, src)
		}
		if len(detail.AdditionalImages) > 0 {
			break
		}
	}
}

// collectCurrentPrice assembles the displayed price from its three
// sub-elements. Each lookup is guarded on its own so a missing decimal part
// still yields symbol plus integer.
func (e *Enricher) collectCurrentPrice(page playwright.Page, detail *models.ProductDetail) {
	var parts []string

	for _, selector := range []string{
		`span[class*="currency-symbol"]`,
		`span[class*="price-integer"]`,
		`span[class*="price-decimal"]`,
	} {
		text, err := e.firstText(page, selector)
		if err != nil {
			e.logger.Warn("price sub-element missing", "selector", selector, "error", err)
			continue
		}
		parts = append(parts, text)
	}

	detail.CurrentPrice = strings.Join(parts, "")
}

// collectAmountSold takes the first candidate element whose text carries a
// digit; the sold counter shares styling with unrelated labels.
func (e *Enricher) collectAmountSold(page playwright.Page, detail *models.ProductDetail) {
	candidates := []string{
		`span[class*="sold-count"]`,
		`div[class*="sold"] span`,
		`span[class*="sales"]`,
	}

	for _, selector := range candidates {
		text, err := e.firstText(page, selector)
		if err != nil {
			continue
		}
		if strings.ContainsAny(text, "0123456789") {
			detail.AmountSold = text
			return
		}
	}
}

func (e *Enricher) collectRating(page playwright.Page, detail *models.ProductDetail) {
	if text, err := e.firstText(page, `span[class*="rating-score"]`); err == nil {
		detail.Rating = text
	} else {
		e.logger.Warn("rating not found", "error", err)
	}

	if text, err := e.firstText(page, `span[class*="review-count"]`); err == nil {
		detail.TotalReviews = text
	} else {
		e.logger.Warn("review count not found", "error", err)
	}
}

func (e *Enricher) collectReviews(page playwright.Page, detail *models.ProductDetail, maxReviews int) {
	// A single expansion; repeated clicking risks an unbounded loop on
	// pages that keep loading more.
	more := page.Locator(`button:has-text("View more")`).First()
	if count, err := more.Count(); err == nil && count > 0 {
		if err := more.Click(); err != nil {
			e.logger.Warn("failed to expand reviews", "error", err)
		} else {
			time.Sleep(2 * time.Second)
		}
	}

	items, err := page.QuerySelectorAll(`div[class*="review-item"]`)
	if err != nil {
		e.logger.Warn("review list not found", "error", err)
		return
	}

	for _, item := range items {
		if maxReviews > 0 && len(detail.Reviews) >= maxReviews {
			break
		}

		review, ok := e.parseReview(item)
		if !ok {
			continue
		}
		detail.Reviews = append(detail.Reviews, review)
	}
}

func (e *Enricher) parseReview(item playwright.ElementHandle) (models.Review, bool) {
	var review models.Review

	text, err := textOf(item, `span[class*="review-text"]`)
	if err != nil {
		return review, false
	}
	review.Text = text

	// Remaining fields are best-effort.
	review.Reviewer, _ = textOf(item, `span[class*="nickname"]`)
	review.ItemDetails, _ = textOf(item, `span[class*="sku-info"]`)
	review.Date, _ = textOf(item, `span[class*="review-date"]`)

	if stars, err := item.QuerySelectorAll(`img[class*="star-full"]`); err == nil {
		review.Rating = len(stars)
	}

	return review, true
}

func (e *Enricher) firstText(page playwright.Page, selector string) (string, error) {
	el, err := page.QuerySelector(selector)
	if err != nil {
		return "", err
	}
	if el == nil {
		return "", fmt.Errorf("no element matches %s", selector)
	}

	text, err := el.TextContent()
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(text), nil
}

func textOf(item playwright.ElementHandle, selector string) (string, error) {
	el, err := item.QuerySelector(selector)
	if err != nil {
		return "", err
	}
	if el == nil {
		return "", fmt.Errorf("no element matches %s", selector)
	}

	text, err := el.TextContent()
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(text), nil
}
