// Package events implements the Redis Streams event bus shared by all
// pipeline services: named streams, consumer groups and at-least-once
// delivery with explicit acknowledgement.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cryptopulse/cryptopulse/internal/config"
	"github.com/cryptopulse/cryptopulse/internal/errs"
	"github.com/cryptopulse/cryptopulse/internal/metrics"
)

// readBlock bounds every stream read so the shutdown context is observed
// within about a second.
const readBlock = time.Second

// NewRedisClient builds the pooled stream-store client and verifies the
// connection with a ping.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr(),
		PoolSize:        cfg.MaxConnections,
		DialTimeout:     time.Duration(cfg.SocketConnectTimeout) * time.Second,
		ReadTimeout:     time.Duration(cfg.SocketTimeout) * time.Second,
		WriteTimeout:    time.Duration(cfg.SocketTimeout) * time.Second,
		ConnMaxIdleTime: 5 * time.Minute,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr(), err)
	}
	return rdb, nil
}

// Bus publishes and consumes events over Redis Streams.
type Bus struct {
	rdb     *redis.Client
	service string
	log     zerolog.Logger
}

// NewBus creates a bus bound to a service name for logging and metrics.
func NewBus(rdb *redis.Client, service string) *Bus {
	return &Bus{
		rdb:     rdb,
		service: service,
		log:     config.NewLogger("events").With().Str("service", service).Logger(),
	}
}

// Publish validates the payload, wraps it in the stream envelope and appends
// it to the event's stream. The entry is durable before Publish returns.
func (b *Bus) Publish(ctx context.Context, p Payload) error {
	event := p.EventName()

	if err := p.Validate(); err != nil {
		metrics.RecordError(b.service, errs.Kind(err))
		return fmt.Errorf("refusing to publish %s: %w", event, err)
	}

	data, err := json.Marshal(p)
	if err != nil {
		return &errs.EventPublishError{Event: event, Err: err}
	}

	err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey(event),
		Values: map[string]interface{}{
			"event":     event,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
			"data":      string(data),
		},
	}).Err()
	if err != nil {
		metrics.RecordError(b.service, "event_publish")
		return &errs.EventPublishError{Event: event, Err: err}
	}

	metrics.RecordEventPublished(b.service, event)
	b.log.Info().
		Str("event", event).
		Str("correlation_id", correlationFrom(data)).
		Msg("Published event")
	return nil
}

// Handler processes one consumed event. A nil return acknowledges the
// message; an error leaves it pending for redelivery.
type Handler func(ctx context.Context, event string, data []byte) error

// Subscribe consumes the named events as a member of group until ctx is
// cancelled. Consumer groups are created idempotently. Messages whose
// payload fails schema validation are logged and acknowledged so they do
// not loop forever; handler errors are logged and left unacknowledged.
func (b *Bus) Subscribe(ctx context.Context, eventNames []string, group, consumer string, handler Handler) error {
	if len(eventNames) == 0 {
		return errors.New("subscribe requires at least one event name")
	}

	streams := make([]string, 0, len(eventNames)*2)
	for _, name := range eventNames {
		key := StreamKey(name)
		err := b.rdb.XGroupCreateMkStream(ctx, key, group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("failed to create group %s on %s: %w", group, key, err)
		}
		streams = append(streams, key)
	}
	for range eventNames {
		streams = append(streams, ">")
	}

	b.log.Info().
		Strs("events", eventNames).
		Str("group", group).
		Str("consumer", consumer).
		Msg("Subscribed to event streams")

	for {
		if err := ctx.Err(); err != nil {
			b.log.Info().Str("group", group).Msg("Event subscription stopped")
			return nil
		}

		res, err := b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  streams,
			Count:    1,
			Block:    readBlock,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			if ctx.Err() != nil {
				b.log.Info().Str("group", group).Msg("Event subscription stopped")
				return nil
			}
			metrics.RecordError(b.service, "event_read")
			b.log.Warn().Err(err).Msg("Stream read failed, retrying")
			continue
		}

		for _, stream := range res {
			event := strings.TrimPrefix(stream.Stream, "events:")
			for _, msg := range stream.Messages {
				b.dispatch(ctx, event, group, stream.Stream, msg, handler)
			}
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, event, group, streamKey string, msg redis.XMessage, handler Handler) {
	raw, _ := msg.Values["data"].(string)
	data := []byte(raw)

	if err := ValidateRaw(event, data); err != nil {
		// Ack malformed messages so they never loop.
		metrics.RecordError(b.service, errs.Kind(err))
		b.log.Error().Err(err).
			Str("event", event).
			Str("message_id", msg.ID).
			Msg("Dropping event that failed validation")
		b.ack(ctx, streamKey, group, msg.ID)
		return
	}

	hctx := ctx
	if id := correlationFrom(data); id != "" {
		hctx = WithCorrelationID(ctx, id)
	}

	metrics.RecordEventConsumed(b.service, event)
	start := time.Now()
	if err := handler(hctx, event, data); err != nil {
		metrics.RecordError(b.service, errs.Kind(err))
		b.log.Error().Err(err).
			Str("event", event).
			Str("message_id", msg.ID).
			Msg("Handler failed, leaving message pending for redelivery")
		return
	}
	metrics.RecordProcessing(b.service, event, time.Since(start).Seconds())

	b.ack(ctx, streamKey, group, msg.ID)
}

func (b *Bus) ack(ctx context.Context, streamKey, group, id string) {
	if err := b.rdb.XAck(ctx, streamKey, group, id).Err(); err != nil {
		metrics.RecordError(b.service, "event_ack")
		b.log.Warn().Err(err).
			Str("stream", streamKey).
			Str("message_id", id).
			Msg("Failed to acknowledge message")
	}
}

func correlationFrom(data []byte) string {
	var probe struct {
		CorrelationID string `json:"correlation_id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ""
	}
	return probe.CorrelationID
}
