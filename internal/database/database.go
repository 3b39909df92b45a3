package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tokscrape/tiktok-shop-scraper/internal/models"
)

// DB is the optional postgres archive. File storage remains the source of
// truth; the archive exists for querying scraped products across runs.
type DB struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func New(ctx context.Context, connString string, logger *slog.Logger) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool, logger: logger.With("component", "database")}, nil
}

// InitSchema creates the archive tables when they do not exist yet.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS scrape_tasks (
			task_id     TEXT PRIMARY KEY,
			kind        TEXT NOT NULL,
			status      TEXT NOT NULL,
			output_file TEXT,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS products (
			product_id  TEXT PRIMARY KEY,
			seller_id   TEXT,
			title       TEXT,
			price       DOUBLE PRECISION,
			currency    TEXT,
			source      TEXT,
			video_id    TEXT,
			video_url   TEXT,
			detail_url  TEXT,
			scraped_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS idx_products_seller ON products (seller_id);
		CREATE INDEX IF NOT EXISTS idx_products_video ON products (video_id);
	`

	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema ready")
	return nil
}

// SaveTask upserts a task's lifecycle row.
func (db *DB) SaveTask(ctx context.Context, taskID, kind, status, outputFile string) error {
	query := `
		INSERT INTO scrape_tasks (task_id, kind, status, output_file)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		ON CONFLICT (task_id) DO UPDATE SET
			status = EXCLUDED.status,
			output_file = COALESCE(EXCLUDED.output_file, scrape_tasks.output_file),
			updated_at = now()
	`

	if _, err := db.pool.Exec(ctx, query, taskID, kind, status, outputFile); err != nil {
		return fmt.Errorf("failed to save task %s: %w", taskID, err)
	}
	return nil
}

// SaveProducts archives every product in videos. A product seen again keeps
// its row but picks up the latest title, price and video linkage.
func (db *DB) SaveProducts(ctx context.Context, videos []models.VideoRecord) error {
	query := `
		INSERT INTO products (product_id, seller_id, title, price, currency, source, video_id, video_url, detail_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (product_id) DO UPDATE SET
			title = EXCLUDED.title,
			price = EXCLUDED.price,
			video_id = EXCLUDED.video_id,
			video_url = EXCLUDED.video_url,
			detail_url = EXCLUDED.detail_url,
			scraped_at = now()
	`

	saved := 0
	for _, video := range videos {
		for _, p := range video.Products {
			if p.ProductID == "" {
				continue
			}
			if _, err := db.pool.Exec(ctx, query,
				p.ProductID, p.SellerID, p.Title, p.Price, p.Currency, p.Source,
				video.ID, video.WebURL, p.DetailURL,
			); err != nil {
				return fmt.Errorf("failed to save product %s: %w", p.ProductID, err)
			}
			saved++
		}
	}

	db.logger.Info("products archived", "count", saved)
	return nil
}

func (db *DB) Close() {
	db.pool.Close()
}
