package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wayfarehq/wayfare-backend/pkg/config"
	"github.com/wayfarehq/wayfare-backend/pkg/db/models"
	"github.com/wayfarehq/wayfare-backend/pkg/enums"
	"github.com/wayfarehq/wayfare-backend/pkg/logger"
	"github.com/wayfarehq/wayfare-backend/pkg/outbox/registry"
)

const (
	publishTimeout = 15 * time.Second
	backoffCap     = 10 * time.Second
	jitterSpan     = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type topicClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type eventStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// publisherFor lets tests swap the Pub/Sub publisher per topic.
type publisherFor func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type RelayParams struct {
	Logger       *logger.Logger
	DB           txRunner
	PubSub       topicClient
	Store        eventStore
	Resolver     eventResolver
	DLQ          deadLetterStore
	PublisherFor publisherFor
	Outbox       config.OutboxConfig
}

// Relay drains committed outbox rows into their Pub/Sub topics. A row either
// publishes, stays queued for another attempt, or lands in the dead-letter
// table; poison rows never block the ones behind them.
type Relay struct {
	logg         *logger.Logger
	db           txRunner
	topics       topicClient
	store        eventStore
	resolver     eventResolver
	dlq          deadLetterStore
	publisherFor publisherFor
	batch        int
	maxAttempts  int
	poll         time.Duration
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case p.Store == nil:
		return nil, errors.New("outbox store is required")
	case p.Resolver == nil:
		return nil, errors.New("event resolver is required")
	case p.DLQ == nil:
		return nil, errors.New("dead letter store is required")
	}

	pf := p.PublisherFor
	if pf == nil {
		pf = gcpPublisherFor(p.PubSub)
	}

	batch := p.Outbox.BatchSize
	if batch <= 0 {
		batch = 50
	}
	attempts := p.Outbox.MaxAttempts
	if attempts <= 0 {
		attempts = 10
	}
	poll := time.Duration(p.Outbox.PollIntervalMS) * time.Millisecond
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}

	return &Relay{
		logg:         p.Logger,
		db:           p.DB,
		topics:       p.PubSub,
		store:        p.Store,
		resolver:     p.Resolver,
		dlq:          p.DLQ,
		publisherFor: pf,
		batch:        batch,
		maxAttempts:  attempts,
		poll:         poll,
	}, nil
}

// Run polls until the context is canceled. Batch errors back off
// exponentially; an empty queue just waits out the poll interval.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.checkDeps(ctx); err != nil {
		return err
	}

	streak := 0
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "outbox relay stopping")
			return err
		}

		drained, err := r.drainOnce(ctx)
		switch {
		case err != nil:
			streak++
			r.logg.Error(ctx, "outbox relay batch failed", err)
			if err := r.pause(ctx, backoffFor(r.poll, streak)); err != nil {
				return err
			}
		case drained:
			streak = 0
		default:
			streak = 0
			if err := r.pause(ctx, r.poll); err != nil {
				return err
			}
		}
	}
}

func (r *Relay) checkDeps(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := r.topics.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping failed: %w", err)
	}
	return nil
}

// drainOnce relays one batch inside a single transaction so the row locks
// taken by the fetch shield the batch from concurrent relay instances.
func (r *Relay) drainOnce(ctx context.Context) (bool, error) {
	drained := false
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.store.FetchUnpublishedForPublish(tx, r.batch, r.maxAttempts)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		drained = true
		for _, event := range events {
			if err := r.relayEvent(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return drained, err
}

func (r *Relay) relayEvent(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	resolved, err := r.resolver.Resolve(event)
	if err != nil {
		return r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	}

	logCtx := r.eventCtx(ctx, event, resolved)
	err = r.publish(ctx, event, resolved)
	if err == nil {
		if markErr := r.store.MarkPublishedTx(tx, event.ID); markErr != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, markErr)
		}
		r.logg.Info(logCtx, "outbox event relayed")
		return nil
	}

	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	}
	if event.AttemptCount+1 >= r.maxAttempts {
		terminal := fmt.Errorf("max publish attempts reached: %w", err)
		return r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, terminal)
	}

	r.logg.Warn(r.logg.WithField(logCtx, "error", err.Error()), "outbox publish failed, will retry")
	if markErr := r.store.MarkFailedTx(tx, event.ID, err); markErr != nil {
		return fmt.Errorf("mark failed %s: %w", event.ID, markErr)
	}
	return nil
}

func (r *Relay) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := r.publisherFor(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))
	}

	msg := &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	res := pub.Publish(pubCtx, msg)
	if res == nil {
		return registry.NewNonRetryableError(fmt.Errorf("nil publish result for topic %s", topic))
	}
	_, err := res.Get(pubCtx)
	return err
}

// deadLetter copies the row into outbox_dlq and marks the source terminal in
// the same transaction, so the queue and the DLQ can never disagree.
func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"outbox_id":    event.ID.String(),
		"event_type":   event.EventType,
		"error_reason": reason,
		"error":        cause.Error(),
	})
	r.logg.Warn(logCtx, "outbox event moved to dead letter")

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := r.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dead letter %s: %w", event.ID, err)
	}
	if err := r.store.MarkTerminalTx(tx, event.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func (r *Relay) eventCtx(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) context.Context {
	return r.logg.WithFields(ctx, map[string]any{
		"outbox_id":     event.ID.String(),
		"event_id":      resolved.Envelope.EventID,
		"event_type":    event.EventType,
		"aggregate_id":  event.AggregateID.String(),
		"topic":         resolved.Descriptor.Topic,
		"attempt_count": event.AttemptCount,
	})
}

func (r *Relay) pause(ctx context.Context, d time.Duration) error {
	d += time.Duration(rand.Int63n(int64(jitterSpan)))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func backoffFor(base time.Duration, streak int) time.Duration {
	d := base
	for i := 1; i < streak; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}
	return d
}

func gcpPublisherFor(client topicClient) publisherFor {
	return func(topic string) publisher {
		p := client.Publisher(topic)
		if p == nil {
			return nil
		}
		return gcpPublisher{p: p}
	}
}

type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return gcpResult{r: g.p.Publish(ctx, msg)}
}

type gcpResult struct {
	r *gcppubsub.PublishResult
}

func (g gcpResult) Get(ctx context.Context) (string, error) {
	return g.r.Get(ctx)
}
