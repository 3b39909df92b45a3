package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tokscrape/tiktok-shop-scraper/internal/models"
)

const timestampLayout = "20060102_150405"

// Store persists scrape results as pretty-printed JSON files under a single
// output directory. Files are written to a temp name and renamed so readers
// never observe a partial document.
type Store struct {
	dir    string
	logger *slog.Logger
}

// HistoryEntry summarizes one stored result file.
type HistoryEntry struct {
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
	Videos    int       `json:"videos"`
	Products  int       `json:"products"`
}

func New(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Store{dir: dir, logger: logger.With("component", "storage")}, nil
}

// SaveVideo writes a single video's result file and returns its filename.
func (s *Store) SaveVideo(video *models.VideoRecord) (string, error) {
	name := fmt.Sprintf("video_%s_%s.json", sanitize(video.ID), time.Now().Format(timestampLayout))
	return name, s.write(name, video)
}

// SaveCombined writes one file holding every video from a multi-URL run.
func (s *Store) SaveCombined(videos []models.VideoRecord) (string, error) {
	name := fmt.Sprintf("all_products_%s.json", time.Now().Format(timestampLayout))
	return name, s.write(name, videos)
}

// SaveProfile writes a profile crawl's result file.
func (s *Store) SaveProfile(username string, videos []models.VideoRecord) (string, error) {
	name := fmt.Sprintf("products_%s_%s.json", sanitize(username), time.Now().Format(timestampLayout))
	return name, s.write(name, videos)
}

func (s *Store) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write results file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to finalize results file: %w", err)
	}

	s.logger.Info("results saved", "file", name, "bytes", len(data))
	return nil
}

// History lists stored result files, newest first, with video and product
// counts. Files that no longer parse are listed with zero counts rather than
// failing the whole listing.
func (s *Store) History() ([]HistoryEntry, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	history := []HistoryEntry{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		he := HistoryEntry{Filename: entry.Name(), CreatedAt: info.ModTime()}

		if videos, err := s.readVideos(entry.Name()); err == nil {
			he.Videos = len(videos)
			for _, v := range videos {
				he.Products += len(v.Products)
			}
		} else {
			s.logger.Warn("unreadable results file in history", "file", entry.Name(), "error", err)
		}

		history = append(history, he)
	}

	sort.Slice(history, func(i, j int) bool {
		return history[i].CreatedAt.After(history[j].CreatedAt)
	})

	return history, nil
}

// Read returns the raw contents of a stored result file. The name must be a
// bare filename; anything path-like is rejected.
func (s *Store) Read(name string) ([]byte, error) {
	if name != filepath.Base(name) || name == "." || name == ".." {
		return nil, fmt.Errorf("invalid results filename %q", name)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read results file: %w", err)
	}
	return data, nil
}

// readVideos loads a result file as a video list, accepting both the
// single-video and list layouts.
func (s *Store) readVideos(name string) ([]models.VideoRecord, error) {
	data, err := s.Read(name)
	if err != nil {
		return nil, err
	}

	var videos []models.VideoRecord
	if err := json.Unmarshal(data, &videos); err == nil {
		return videos, nil
	}

	var single models.VideoRecord
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, err
	}
	return []models.VideoRecord{single}, nil
}

// sanitize strips path separators and whitespace out of a filename fragment.
func sanitize(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_", " ", "_")
	fragment = replacer.Replace(fragment)
	if fragment == "" {
		fragment = "unknown"
	}
	return fragment
}
