// Package redisqueue provides a Sender that hands rendered messages to a
// Redis stream. The actual SMTP/SMS/chat gateway consumes the stream
// out-of-process; an acknowledged XADD counts as a successful hand-off.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/hyperreach/cadence/pkg/models"
)

const defaultStream = "cadence.outbound"

// Sender enqueues outbound messages onto a Redis stream.
type Sender struct {
	Stream string

	client redis.UniversalClient
	logger *slog.Logger
}

// NewSender creates a Sender from a connection configuration map
// (addr, password, db, stream) and verifies the connection.
func NewSender(ctx context.Context, config map[string]any, logger *slog.Logger) (*Sender, error) {
	addr, _ := config["addr"].(string)
	if addr == "" {
		addr = "localhost:6379"
	}

	password, _ := config["password"].(string)

	db := 0
	if dbStr, ok := config["db"].(string); ok && dbStr != "" {
		if _, err := fmt.Sscanf(dbStr, "%d", &db); err != nil {
			return nil, fmt.Errorf("invalid db value: %w", err)
		}
	}

	stream, _ := config["stream"].(string)
	if stream == "" {
		stream = defaultStream
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	sender := &Sender{
		Stream: stream,
		client: client,
		logger: logger.With(
			"module", "redis_sender",
			"stream", stream,
		),
	}

	sender.logger.InfoContext(ctx, "Connected to Redis", "addr", addr, "db", db)

	return sender, nil
}

// Send enqueues the rendered content for the lead onto the stream and
// returns the stream entry ID as the delivery receipt.
func (s *Sender) Send(ctx context.Context, channel models.Channel, leadID string, content *models.RenderedContent) (*models.DeliveryReceipt, error) {
	if content == nil {
		return nil, errors.New("no content to send")
	}

	payload, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal content: %w", err)
	}

	entryID, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.Stream,
		Values: map[string]any{
			"channel": string(channel),
			"lead_id": leadID,
			"content": string(payload),
		},
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue message: %w", err)
	}

	s.logger.InfoContext(ctx, "Message enqueued",
		"channel", channel,
		"lead_id", leadID,
		"entry_id", entryID)

	return &models.DeliveryReceipt{
		ProviderID: entryID,
		SentAt:     time.Now().UTC(),
	}, nil
}

// Close releases the Redis connection.
func (s *Sender) Close() error {
	return s.client.Close()
}

// ConfigSchema is the JSON schema for the Redis sender configuration,
// validated by the delivery registry.
func ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"addr":     map[string]any{"type": "string"},
			"password": map[string]any{"type": "string"},
			"db":       map[string]any{"type": "string"},
			"stream":   map[string]any{"type": "string"},
		},
		"additionalProperties": false,
	}
}
