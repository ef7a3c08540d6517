package worker

import (
	"context"
	"encoding/json"
	"time"

	"adspot/internal/events"
	"adspot/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	OutboxQueueKey      = "adspot:events"
	OutboxDeadLetterKey = "adspot:events:deadletter"
)

// outboxEnvelope is the wire form pushed to redis for downstream
// consumers (notification and billing services read this list).
type outboxEnvelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// OutboxWorker drains bus events into a redis list with backoff on
// delivery failures. Without a redis client events are dropped after
// logging; in-process subscribers have already seen them.
type OutboxWorker struct {
	redis       *redis.Client
	retryPolicy RetryPolicy
	queue       chan *events.Event
	logger      zerolog.Logger
}

func NewOutboxWorker(redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *OutboxWorker {
	return &OutboxWorker{
		redis:       redisClient,
		retryPolicy: retry.withDefaults(),
		queue:       make(chan *events.Event, models.OutboxQueueSize),
		logger:      logger.With().Str("component", "outbox").Logger(),
	}
}

// Attach subscribes the worker to every event on the bus.
func (w *OutboxWorker) Attach(bus *events.EventBus) {
	bus.SubscribeAll(func(event *events.Event) error {
		select {
		case w.queue <- event:
		default:
			w.logger.Warn().Str("event_type", event.Type).Msg("outbox queue full, event dropped")
		}
		return nil
	})
}

// Start consumes the queue until ctx is cancelled.
func (w *OutboxWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("outbox started")
	defer w.logger.Info().Msg("outbox stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-w.queue:
			w.deliver(ctx, event)
		}
	}
}

func (w *OutboxWorker) deliver(ctx context.Context, event *events.Event) {
	if w.redis == nil {
		w.logger.Debug().Str("event_type", event.Type).Msg("no redis client, event not exported")
		return
	}

	data, err := json.Marshal(outboxEnvelope{
		Type:      event.Type,
		Payload:   event.Payload,
		CreatedAt: event.CreatedAt,
	})
	if err != nil {
		w.logger.Error().Err(err).Str("event_type", event.Type).Msg("encode event error")
		return
	}

	var lastErr error
	for attempt := 1; attempt <= w.retryPolicy.MaxRetries; attempt++ {
		lastErr = w.redis.LPush(ctx, OutboxQueueKey, data).Err()
		if lastErr == nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.retryPolicy.NextDelay(attempt)):
		}
	}

	w.logger.Error().Err(lastErr).Str("event_type", event.Type).Msg("event delivery failed, moving to deadletter")
	if err := w.redis.LPush(ctx, OutboxDeadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Str("event_type", event.Type).Msg("deadletter push error")
	}
}
