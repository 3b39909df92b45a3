package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tokscrape/tiktok-shop-scraper/internal/events"
	"github.com/tokscrape/tiktok-shop-scraper/internal/models"
	"github.com/tokscrape/tiktok-shop-scraper/internal/scraper"
	"github.com/tokscrape/tiktok-shop-scraper/internal/storage"
)

// Task statuses exposed through the status endpoint.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// Progress is a point-in-time snapshot of a background task.
type Progress struct {
	Status       string               `json:"status"`
	CurrentVideo int                  `json:"current_video"`
	TotalVideos  int                  `json:"total_videos"`
	CurrentURL   string               `json:"current_url,omitempty"`
	Results      []models.VideoRecord `json:"results"`
	OutputFile   string               `json:"output_file,omitempty"`
	Error        string               `json:"error,omitempty"`
}

// Scraper is the slice of scraper.Service the manager drives. Tasks own
// their scraper instance for their whole lifetime and close it when done.
type Scraper interface {
	ProcessVideo(ctx context.Context, url string) (*models.VideoRecord, error)
	Crawl(ctx context.Context, username string, opts scraper.CrawlOptions) ([]models.VideoRecord, error)
	Close()
}

// Archiver is the optional database sink.
type Archiver interface {
	SaveTask(ctx context.Context, taskID, kind, status, outputFile string) error
	SaveProducts(ctx context.Context, videos []models.VideoRecord) error
}

// EventSink is the optional redis publisher.
type EventSink interface {
	PublishCrawlCompleted(ctx context.Context, event events.CrawlCompletedEvent) error
}

// Manager runs scrape work and tracks background task progress. Each task
// gets a fresh scraper from the factory so a crashed browser session never
// outlives its task.
type Manager struct {
	factory func() (Scraper, error)
	store   *storage.Store
	archive Archiver
	events  EventSink
	logger  *slog.Logger

	VideoDelay time.Duration

	mu    sync.RWMutex
	tasks map[string]*Progress
}

func NewManager(factory func() (Scraper, error), store *storage.Store, archive Archiver, sink EventSink, logger *slog.Logger) *Manager {
	return &Manager{
		factory:    factory,
		store:      store,
		archive:    archive,
		events:     sink,
		logger:     logger.With("component", "job_manager"),
		VideoDelay: 5 * time.Second,
		tasks:      make(map[string]*Progress),
	}
}

// StartProcessTask launches a background task that processes urls one by one
// and returns the task ID immediately.
func (m *Manager) StartProcessTask(urls []string) string {
	taskID := uuid.New().String()

	m.mu.Lock()
	m.tasks[taskID] = &Progress{
		Status:      StatusProcessing,
		TotalVideos: len(urls),
		Results:     []models.VideoRecord{},
	}
	m.mu.Unlock()

	m.logger.Info("process task started", "task_id", taskID, "urls", len(urls))

	go m.runProcessTask(taskID, urls)

	return taskID
}

// Status returns a copy of the task's progress snapshot.
func (m *Manager) Status(taskID string) (Progress, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.tasks[taskID]
	if !ok {
		return Progress{}, false
	}

	snapshot := *p
	snapshot.Results = append([]models.VideoRecord(nil), p.Results...)
	return snapshot, true
}

func (m *Manager) runProcessTask(taskID string, urls []string) {
	ctx := context.Background()

	m.saveTaskState(ctx, taskID, "process", StatusProcessing, "")

	s, err := m.factory()
	if err != nil {
		m.failTask(ctx, taskID, "process", fmt.Errorf("failed to start scraper: %w", err))
		return
	}
	defer s.Close()

	results := []models.VideoRecord{}

	for i, url := range urls {
		m.update(taskID, func(p *Progress) {
			p.CurrentVideo = i + 1
			p.CurrentURL = url
		})

		video, err := s.ProcessVideo(ctx, url)
		if err != nil {
			m.logger.Warn("skipping url after failed processing", "task_id", taskID, "url", url, "error", err)
		} else {
			results = append(results, *video)
			if _, err := m.store.SaveVideo(video); err != nil {
				m.logger.Error("failed to save video results", "task_id", taskID, "error", err)
			}
			m.update(taskID, func(p *Progress) {
				p.Results = append(p.Results, *video)
			})
		}

		if i < len(urls)-1 {
			time.Sleep(m.VideoDelay)
		}
	}

	outputFile := ""
	if len(results) > 0 {
		name, err := m.store.SaveCombined(results)
		if err != nil {
			m.logger.Error("failed to save combined results", "task_id", taskID, "error", err)
		} else {
			outputFile = name
		}
	}

	m.update(taskID, func(p *Progress) {
		p.Status = StatusCompleted
		p.CurrentURL = ""
		p.OutputFile = outputFile
	})

	m.saveTaskState(ctx, taskID, "process", StatusCompleted, outputFile)
	m.archiveProducts(ctx, results)
	m.publish(ctx, events.CrawlCompletedEvent{
		Type:       "process_completed",
		Videos:     len(results),
		Products:   countProducts(results),
		OutputFile: outputFile,
	})

	m.logger.Info("process task finished", "task_id", taskID, "videos", len(results))
}

// ScrapeProfile runs a profile crawl synchronously and returns the videos
// plus the stored result filename.
func (m *Manager) ScrapeProfile(ctx context.Context, username string, opts scraper.CrawlOptions) ([]models.VideoRecord, string, error) {
	s, err := m.factory()
	if err != nil {
		return nil, "", fmt.Errorf("failed to start scraper: %w", err)
	}
	defer s.Close()

	videos, err := s.Crawl(ctx, username, opts)
	if err != nil {
		return nil, "", err
	}

	name, err := m.store.SaveProfile(username, videos)
	if err != nil {
		return nil, "", fmt.Errorf("failed to save crawl results: %w", err)
	}

	m.archiveProducts(ctx, videos)
	m.publish(ctx, events.CrawlCompletedEvent{
		Type:       "crawl_completed",
		Username:   username,
		Videos:     len(videos),
		Products:   countProducts(videos),
		OutputFile: name,
	})

	return videos, name, nil
}

func (m *Manager) update(taskID string, fn func(*Progress)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.tasks[taskID]; ok {
		fn(p)
	}
}

func (m *Manager) failTask(ctx context.Context, taskID, kind string, err error) {
	m.logger.Error("task failed", "task_id", taskID, "error", err)

	m.update(taskID, func(p *Progress) {
		p.Status = StatusError
		p.Error = err.Error()
	})
	m.saveTaskState(ctx, taskID, kind, StatusError, "")
}

func (m *Manager) saveTaskState(ctx context.Context, taskID, kind, status, outputFile string) {
	if m.archive == nil {
		return
	}
	if err := m.archive.SaveTask(ctx, taskID, kind, status, outputFile); err != nil {
		m.logger.Warn("failed to archive task state", "task_id", taskID, "error", err)
	}
}

func (m *Manager) archiveProducts(ctx context.Context, videos []models.VideoRecord) {
	if m.archive == nil || len(videos) == 0 {
		return
	}
	if err := m.archive.SaveProducts(ctx, videos); err != nil {
		m.logger.Warn("failed to archive products", "error", err)
	}
}

func (m *Manager) publish(ctx context.Context, event events.CrawlCompletedEvent) {
	if m.events == nil {
		return
	}
	if err := m.events.PublishCrawlCompleted(ctx, event); err != nil {
		m.logger.Warn("failed to publish completion event", "error", err)
	}
}

func countProducts(videos []models.VideoRecord) int {
	total := 0
	for _, v := range videos {
		total += len(v.Products)
	}
	return total
}
