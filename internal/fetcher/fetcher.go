package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/tokscrape/tiktok-shop-scraper/internal/browser"
)

// ErrFetchFailed signals that every attempt was exhausted. Callers treat it
// as a per-item skip, not a crawl abort.
var ErrFetchFailed = errors.New("page fetch failed")

// SessionPool provides the browser session a fetch runs on. A session that
// failed an attempt is never reused; the pool hands out a fresh one after
// Recycle.
type SessionPool interface {
	Acquire() (*browser.Browser, error)
	Recycle()
}

// Result is the rendered document plus fetch metadata.
type Result struct {
	URL      string
	Content  string
	Attempts int
}

// Fetcher navigates to a URL and returns rendered content once the page's
// structural readiness conditions hold. Readiness is judged by DOM presence
// rather than network idle: the target hydrates content client-side with no
// observable completion event, so a fixed settle delay follows readiness.
type Fetcher struct {
	sessions SessionPool
	logger   *slog.Logger

	MaxAttempts  int
	ReadyTimeout time.Duration
	SettleDelay  time.Duration
	RetryDelay   time.Duration
}

func New(sessions SessionPool, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		sessions:     sessions,
		logger:       logger.With("component", "page_fetcher"),
		MaxAttempts:  3,
		ReadyTimeout: 20 * time.Second,
		SettleDelay:  15 * time.Second,
		RetryDelay:   5 * time.Second,
	}
}

// Fetch retrieves the rendered content of url. On any attempt failure the
// session is recycled and the next attempt runs on a fresh one. After
// MaxAttempts the error wraps ErrFetchFailed.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Result, error) {
	var lastErr error

	for attempt := 1; attempt <= f.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		f.logger.Info("fetching page", "url", url, "attempt", attempt)

		content, err := f.attempt(ctx, url)
		if err == nil {
			f.logger.Info("page fetched", "url", url, "attempt", attempt)
			return &Result{URL: url, Content: content, Attempts: attempt}, nil
		}

		lastErr = err
		f.logger.Error("fetch attempt failed", "url", url, "attempt", attempt, "error", err)

		f.sessions.Recycle()
		if attempt < f.MaxAttempts {
			if err := sleep(ctx, f.RetryDelay); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrFetchFailed, f.MaxAttempts, lastErr)
}

func (f *Fetcher) attempt(ctx context.Context, url string) (string, error) {
	sess, err := f.sessions.Acquire()
	if err != nil {
		return "", fmt.Errorf("failed to acquire session: %w", err)
	}

	page, err := sess.NewPage()
	if err != nil {
		return "", fmt.Errorf("failed to create page: %w", err)
	}
	defer page.Close()

	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(30000),
	}); err != nil {
		return "", fmt.Errorf("failed to navigate: %w", err)
	}

	// Structural readiness: root content element plus at least one script.
	readyTimeout := playwright.Float(float64(f.ReadyTimeout.Milliseconds()))
	if _, err := page.WaitForSelector("body", playwright.PageWaitForSelectorOptions{
		Timeout: readyTimeout,
	}); err != nil {
		return "", fmt.Errorf("page body never appeared: %w", err)
	}
	if _, err := page.WaitForSelector("script", playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: readyTimeout,
	}); err != nil {
		return "", fmt.Errorf("no script elements rendered: %w", err)
	}

	// Client-side hydration finishes asynchronously with no signal we can
	// wait on; trade latency for reliability.
	if err := sleep(ctx, f.SettleDelay); err != nil {
		return "", err
	}

	content, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to capture content: %w", err)
	}

	return content, nil
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
