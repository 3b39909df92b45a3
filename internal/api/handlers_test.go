package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tokscrape/tiktok-shop-scraper/internal/config"
	"github.com/tokscrape/tiktok-shop-scraper/internal/jobs"
	"github.com/tokscrape/tiktok-shop-scraper/internal/models"
	"github.com/tokscrape/tiktok-shop-scraper/internal/scraper"
	"github.com/tokscrape/tiktok-shop-scraper/internal/storage"
)

type stubScraper struct {
	crawl     []models.VideoRecord
	gotLimit  int
	crawlUser string
}

func (s *stubScraper) ProcessVideo(ctx context.Context, url string) (*models.VideoRecord, error) {
	return &models.VideoRecord{ID: "1", WebURL: url}, nil
}

func (s *stubScraper) Crawl(ctx context.Context, username string, opts scraper.CrawlOptions) ([]models.VideoRecord, error) {
	s.crawlUser = username
	s.gotLimit = opts.Limit
	if s.crawl == nil {
		return nil, errors.New("crawl failed")
	}
	return s.crawl, nil
}

func (s *stubScraper) Close() {}

func newTestHandler(t *testing.T, s *stubScraper) (*Handler, *storage.Store) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := storage.New(t.TempDir(), logger)
	require.NoError(t, err)

	manager := jobs.NewManager(func() (jobs.Scraper, error) { return s, nil }, store, nil, nil, logger)
	manager.VideoDelay = 0

	defaults := config.ScraperConfig{VideoLimit: 10, MaxReviews: 20}
	return NewHandler(manager, store, defaults, logger), store
}

func doRequest(h *Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t, &stubScraper{})

	rec := doRequest(h, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}

func TestScrapeValidation(t *testing.T) {
	h, _ := newTestHandler(t, &stubScraper{})

	rec := doRequest(h, http.MethodPost, "/scrape", `{"video_limit": 5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(h, http.MethodPost, "/scrape", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScrapeRunsCrawl(t *testing.T) {
	s := &stubScraper{crawl: []models.VideoRecord{{ID: "1"}}}
	h, _ := newTestHandler(t, s)

	rec := doRequest(h, http.MethodPost, "/scrape", `{"username": "@creator", "video_limit": "7"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "@creator", s.crawlUser)
	assert.Equal(t, 7, s.gotLimit, "string limits are accepted")

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["output_file"])
}

func TestScrapeNonNumericLimitFallsBack(t *testing.T) {
	s := &stubScraper{crawl: []models.VideoRecord{}}
	h, _ := newTestHandler(t, s)

	rec := doRequest(h, http.MethodPost, "/scrape", `{"username": "creator", "video_limit": "lots"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, s.gotLimit)
}

func TestProcessStartsTask(t *testing.T) {
	h, _ := newTestHandler(t, &stubScraper{})

	rec := doRequest(h, http.MethodPost, "/process", `{"urls": ["https://www.tiktok.com/@c/video/1"]}`)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["task_id"])

	rec = doRequest(h, http.MethodGet, "/status/"+resp["task_id"], "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProcessRequiresURLs(t *testing.T) {
	h, _ := newTestHandler(t, &stubScraper{})

	rec := doRequest(h, http.MethodPost, "/process", `{"urls": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusUnknownTask(t *testing.T) {
	h, _ := newTestHandler(t, &stubScraper{})

	rec := doRequest(h, http.MethodGet, "/status/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryEndpoints(t *testing.T) {
	h, store := newTestHandler(t, &stubScraper{})

	name, err := store.SaveVideo(&models.VideoRecord{ID: "1"})
	require.NoError(t, err)

	rec := doRequest(h, http.MethodGet, "/history", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var history []storage.HistoryEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.Equal(t, name, history[0].Filename)

	rec = doRequest(h, http.MethodGet, "/history/"+name, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(h, http.MethodGet, "/history/missing.json", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCoerceLimit(t *testing.T) {
	assert.Equal(t, 5, coerceLimit(float64(5), 10))
	assert.Equal(t, 5, coerceLimit("5", 10))
	assert.Equal(t, 10, coerceLimit("lots", 10))
	assert.Equal(t, 10, coerceLimit(nil, 10))
	assert.Equal(t, 10, coerceLimit(float64(-1), 10))
}
