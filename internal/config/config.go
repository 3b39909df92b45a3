package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config carries every runtime setting. Values come from the environment
// with defaults suitable for local use.
type Config struct {
	Server   ServerConfig
	Scraper  ScraperConfig
	Storage  StorageConfig
	Database DatabaseConfig
	Redis    RedisConfig
}

type ServerConfig struct {
	Port int
}

type ScraperConfig struct {
	Headless      bool
	Timeout       int
	CrawlTimeout  int
	VideoLimit    int
	ScrapeReviews bool
	MaxReviews    int
}

type StorageConfig struct {
	OutputDir string
}

// DatabaseConfig is optional; an empty Host disables the archive.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// RedisConfig is optional; an empty Addr disables event publishing.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("PORT", 5000),
		},
		Scraper: ScraperConfig{
			Headless:      getEnvBool("SCRAPER_HEADLESS", true),
			Timeout:       getEnvInt("SCRAPER_TIMEOUT", 30),
			CrawlTimeout:  getEnvInt("SCRAPER_CRAWL_TIMEOUT", 300),
			VideoLimit:    getEnvInt("SCRAPER_VIDEO_LIMIT", 10),
			ScrapeReviews: getEnvBool("SCRAPER_REVIEWS", false),
			MaxReviews:    getEnvInt("SCRAPER_MAX_REVIEWS", 20),
		},
		Storage: StorageConfig{
			OutputDir: getEnv("OUTPUT_DIR", "product-jsons"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", ""),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "tiktok_scraper"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Channel:  getEnv("REDIS_CHANNEL", "scraper:events"),
		},
	}
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Scraper.VideoLimit <= 0 {
		return fmt.Errorf("video limit must be positive, got %d", c.Scraper.VideoLimit)
	}
	if c.Storage.OutputDir == "" {
		return fmt.Errorf("output directory must not be empty")
	}
	return nil
}

// DatabaseEnabled reports whether the optional postgres archive is configured.
func (c *Config) DatabaseEnabled() bool {
	return c.Database.Host != ""
}

// RedisEnabled reports whether the optional event publisher is configured.
func (c *Config) RedisEnabled() bool {
	return c.Redis.Addr != ""
}

// ConnString renders the postgres connection string.
func (c *DatabaseConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
