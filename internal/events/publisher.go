package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// CrawlCompletedEvent is published after a crawl or processing task finishes
// so downstream consumers can pick up the result file.
type CrawlCompletedEvent struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	Username   string    `json:"username,omitempty"`
	Videos     int       `json:"videos"`
	Products   int       `json:"products"`
	OutputFile string    `json:"output_file,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher fans scrape lifecycle events out on a redis channel.
type Publisher struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

func NewPublisher(addr, password string, db int, channel string, logger *slog.Logger) *Publisher {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &Publisher{
		client:  client,
		channel: channel,
		logger:  logger.With("component", "event_publisher"),
	}
}

// Ping verifies the redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// PublishCrawlCompleted assigns the event an ID and timestamp and publishes
// it. Delivery is fire-and-forget from the scraper's point of view; a publish
// failure is logged and returned but callers usually only log it too.
func (p *Publisher) PublishCrawlCompleted(ctx context.Context, event CrawlCompletedEvent) error {
	event.EventID = uuid.New().String()
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		p.logger.Error("failed to publish event", "channel", p.channel, "error", err)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info("event published", "channel", p.channel, "type", event.Type, "event_id", event.EventID)
	return nil
}

func (p *Publisher) Close() error {
	return p.client.Close()
}
