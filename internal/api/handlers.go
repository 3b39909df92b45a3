package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/tokscrape/tiktok-shop-scraper/internal/config"
	"github.com/tokscrape/tiktok-shop-scraper/internal/jobs"
	"github.com/tokscrape/tiktok-shop-scraper/internal/scraper"
	"github.com/tokscrape/tiktok-shop-scraper/internal/storage"
)

// Handler exposes the scraping pipeline over HTTP.
type Handler struct {
	manager  *jobs.Manager
	store    *storage.Store
	defaults config.ScraperConfig
	logger   *slog.Logger
}

func NewHandler(manager *jobs.Manager, store *storage.Store, defaults config.ScraperConfig, logger *slog.Logger) *Handler {
	return &Handler{
		manager:  manager,
		store:    store,
		defaults: defaults,
		logger:   logger.With("component", "api"),
	}
}

// Routes builds the router with the standard middleware stack.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", h.handleHealth)
	r.Post("/scrape", h.handleScrape)
	r.Post("/process", h.handleProcess)
	r.Get("/status/{taskID}", h.handleStatus)
	r.Get("/history", h.handleHistory)
	r.Get("/history/{filename}", h.handleHistoryFile)

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type scrapeRequest struct {
	Username   string `json:"username"`
	VideoLimit any    `json:"video_limit"`
	Reviews    bool   `json:"scrape_reviews"`
	Enrich     bool   `json:"enrich_details"`
}

// handleScrape runs a profile crawl synchronously; crawls are long but the
// caller asked for the answer, not a ticket.
func (h *Handler) handleScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" {
		respondError(w, http.StatusBadRequest, "username is required")
		return
	}

	opts := scraper.CrawlOptions{
		Limit:          coerceLimit(req.VideoLimit, h.defaults.VideoLimit),
		EnrichDetails:  req.Enrich,
		CollectReviews: req.Reviews,
		MaxReviews:     h.defaults.MaxReviews,
	}

	videos, outputFile, err := h.manager.ScrapeProfile(r.Context(), req.Username, opts)
	if err != nil {
		h.logger.Error("profile scrape failed", "username", req.Username, "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"username":    req.Username,
		"videos":      videos,
		"output_file": outputFile,
	})
}

type processRequest struct {
	URLs []string `json:"urls"`
}

func (h *Handler) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.URLs) == 0 {
		respondError(w, http.StatusBadRequest, "urls is required")
		return
	}

	taskID := h.manager.StartProcessTask(req.URLs)

	respondJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	progress, ok := h.manager.Status(taskID)
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("unknown task %s", taskID))
		return
	}

	respondJSON(w, http.StatusOK, progress)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.store.History()
	if err != nil {
		h.logger.Error("failed to list history", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list history")
		return
	}

	respondJSON(w, http.StatusOK, history)
}

func (h *Handler) handleHistoryFile(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	data, err := h.store.Read(filename)
	if err != nil {
		respondError(w, http.StatusNotFound, fmt.Sprintf("no results file %s", filename))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// coerceLimit accepts the limit as a JSON number or numeric string; anything
// else falls back to the configured default.
func coerceLimit(v any, fallback int) int {
	switch t := v.(type) {
	case float64:
		if t > 0 {
			return int(t)
		}
	case string:
		if n, err := strconv.Atoi(t); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
