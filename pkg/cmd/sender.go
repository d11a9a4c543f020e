package cmd

import (
	"context"
	"log/slog"

	"github.com/hyperreach/cadence/pkg/delivery"
	"github.com/hyperreach/cadence/pkg/delivery/redisqueue"
	"github.com/hyperreach/cadence/pkg/models"
	"github.com/hyperreach/cadence/pkg/processor"
)

// NewSender builds the outbound delivery path: every channel is routed to
// the Redis outbound stream, where the per-channel gateways consume from.
func NewSender(ctx context.Context, logger *slog.Logger, redisAddr, stream string) (processor.Sender, error) {
	registry := delivery.NewRegistry(logger)

	factory := func(config map[string]any, logger *slog.Logger) (processor.Sender, error) {
		return redisqueue.NewSender(ctx, config, logger)
	}

	channels := []models.Channel{models.ChannelEmail, models.ChannelSMS, models.ChannelChat}
	for _, channel := range channels {
		registry.Register(channel, redisqueue.ConfigSchema(), factory)
	}

	config := map[string]any{}
	if redisAddr != "" {
		config["addr"] = redisAddr
	}

	if stream != "" {
		config["stream"] = stream
	}

	senders := make(map[models.Channel]processor.Sender, len(channels))

	for _, channel := range channels {
		sender, err := registry.CreateSender(channel, config)
		if err != nil {
			return nil, err
		}

		senders[channel] = sender
	}

	return delivery.NewMultiSender(senders), nil
}
