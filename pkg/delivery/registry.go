// Package delivery provides the default collaborator implementations for the
// processor: channel sender construction and communication recording.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/hyperreach/cadence/pkg/models"
	"github.com/hyperreach/cadence/pkg/processor"
)

// SenderFactory builds a Sender for one channel from its configuration map.
type SenderFactory func(config map[string]any, logger *slog.Logger) (processor.Sender, error)

// Registry maps channels to sender factories. Each channel's configuration
// is validated against the factory's JSON schema before construction.
type Registry struct {
	logger    *slog.Logger
	factories map[models.Channel]SenderFactory
	schemas   map[models.Channel]map[string]any
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger.With("module", "delivery_registry"),
		factories: make(map[models.Channel]SenderFactory),
		schemas:   make(map[models.Channel]map[string]any),
	}
}

// Register adds a sender factory for a channel, with the JSON schema its
// configuration must satisfy.
func (r *Registry) Register(channel models.Channel, schema map[string]any, factory SenderFactory) {
	r.factories[channel] = factory
	r.schemas[channel] = schema
}

// CreateSender validates the configuration against the channel's schema and
// builds the sender.
func (r *Registry) CreateSender(channel models.Channel, config map[string]any) (processor.Sender, error) {
	factory, ok := r.factories[channel]
	if !ok {
		return nil, fmt.Errorf("channel '%s' not registered", channel)
	}

	if schema, ok := r.schemas[channel]; ok {
		if err := validateConfig(config, schema); err != nil {
			return nil, fmt.Errorf("invalid config for channel '%s': %w", channel, err)
		}
	}

	return factory(config, r.logger)
}

// Channels returns the registered channel names.
func (r *Registry) Channels() []models.Channel {
	channels := make([]models.Channel, 0, len(r.factories))
	for channel := range r.factories {
		channels = append(channels, channel)
	}

	return channels
}

func validateConfig(config, schema map[string]any) error {
	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(config)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		var messages []string
		for _, resultError := range result.Errors() {
			messages = append(messages, resultError.String())
		}

		return fmt.Errorf("JSON schema validation failed: %s", strings.Join(messages, "; "))
	}

	return nil
}

// MultiSender routes each send to the sender registered for its channel.
type MultiSender struct {
	senders map[models.Channel]processor.Sender
}

// NewMultiSender builds a router over per-channel senders.
func NewMultiSender(senders map[models.Channel]processor.Sender) *MultiSender {
	return &MultiSender{senders: senders}
}

func (m *MultiSender) Send(ctx context.Context, channel models.Channel, leadID string, content *models.RenderedContent) (*models.DeliveryReceipt, error) {
	sender, ok := m.senders[channel]
	if !ok {
		return nil, fmt.Errorf("no sender configured for channel '%s'", channel)
	}

	return sender.Send(ctx, channel, leadID, content)
}
