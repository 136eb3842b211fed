package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/wayfarehq/wayfare-backend/internal/availability"
	"github.com/wayfarehq/wayfare-backend/pkg/config"
	"github.com/wayfarehq/wayfare-backend/pkg/enums"
	"github.com/wayfarehq/wayfare-backend/pkg/logger"
	"github.com/wayfarehq/wayfare-backend/pkg/outbox"
	"github.com/wayfarehq/wayfare-backend/pkg/outbox/payloads"
	"github.com/wayfarehq/wayfare-backend/pkg/outbox/registry"
)

const occupancyFeedConsumer = "occupancy-feed"

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer turns published occupancy events into cache refreshes and hub
// fan-out while honoring Redis idempotency.
type Consumer struct {
	hub          *Hub
	subscription *pubsub.Subscriber
	manager      idempotencyChecker
	cache        availability.Cache
	decoders     *registry.DecoderRegistry
	cfg          config.AvailabilityConfig
	logg         *logger.Logger
}

// NewConsumer builds an occupancy feed consumer.
func NewConsumer(hub *Hub, subscription *pubsub.Subscriber, manager idempotencyChecker, cache availability.Cache, cfg config.AvailabilityConfig, logg *logger.Logger) (*Consumer, error) {
	if hub == nil {
		return nil, fmt.Errorf("hub required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	decoders := registry.NewDecoderRegistry()
	decoders.Register(enums.EventOccupancyChanged, 1, func(payload json.RawMessage) (interface{}, error) {
		var event payloads.OccupancyChangedEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, err
		}
		return event, nil
	})
	return &Consumer{
		hub:          hub,
		subscription: subscription,
		manager:      manager,
		cache:        cache,
		decoders:     decoders,
		cfg:          cfg,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return fmt.Errorf("occupancy subscription required")
	}
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		eventType := enums.OutboxEventType(msg.Attributes["event_type"])

		var envelope outbox.PayloadEnvelope
		if err := json.Unmarshal(msg.Data, &envelope); err != nil {
			logCtx := c.logg.WithFields(ctx, map[string]any{"message_id": msg.ID})
			c.logg.Error(logCtx, "failed to decode envelope", err)
			msg.Ack()
			return
		}

		if err := c.Process(ctx, eventType, envelope); err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Process applies one occupancy event: dedup, cache refresh, hub fan-out.
func (c *Consumer) Process(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_id":   envelope.EventID,
		"event_type": eventType,
	})

	if eventType != enums.EventOccupancyChanged {
		c.logg.Info(logCtx, "event not handled by occupancy feed")
		return nil
	}

	if envelope.EventID == "" {
		return fmt.Errorf("event id missing")
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		return fmt.Errorf("parse event id: %w", err)
	}

	already, err := c.manager.CheckAndMarkProcessed(ctx, occupancyFeedConsumer, eventID)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return nil
	}

	decoded, err := c.decoders.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode occupancy payload", err)
		_ = c.manager.Delete(ctx, occupancyFeedConsumer, eventID)
		return err
	}
	event, ok := decoded.(payloads.OccupancyChangedEvent)
	if !ok {
		err := fmt.Errorf("unexpected payload type %T", decoded)
		_ = c.manager.Delete(ctx, occupancyFeedConsumer, eventID)
		return err
	}
	if event.ItemID == uuid.Nil {
		err := fmt.Errorf("item id missing")
		_ = c.manager.Delete(ctx, occupancyFeedConsumer, eventID)
		return err
	}

	c.refreshCache(ctx, event, logCtx)
	c.hub.Publish(ChangeEvent{
		ItemID:      event.ItemID,
		VisitDate:   event.VisitDate,
		BookedUnits: event.BookedUnits,
	})
	c.logg.Info(logCtx, "occupancy change fanned out")
	return nil
}

// refreshCache rewrites the summary entry so listing reads see the committed
// counts without waiting out the TTL. Cache failures are tolerated; the entry
// self-heals on the next availability read.
func (c *Consumer) refreshCache(ctx context.Context, event payloads.OccupancyChangedEvent, logCtx context.Context) {
	if c.cache == nil {
		return
	}
	threshold := c.cfg.LimitedThreshold
	if threshold <= 0 || threshold >= 1 {
		threshold = availability.DefaultLimitedThreshold
	}
	summary := availability.DateAvailability{
		Date:     event.VisitDate,
		Snapshot: availability.Calculate(event.Capacity, event.BookedUnits, threshold),
	}
	encoded, err := json.Marshal(summary)
	if err != nil {
		c.logg.Error(logCtx, "failed to encode availability summary", err)
		return
	}
	key := c.cache.OccupancySummaryKey(event.ItemID.String(), event.VisitDate)
	if err := c.cache.Set(ctx, key, string(encoded), c.cfg.CacheTTL); err != nil {
		c.logg.Warn(logCtx, "failed to refresh availability cache")
	}
}
