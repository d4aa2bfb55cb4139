package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/stratoserve/catalog-cache/internal/model"
)

const (
	initialReconnectBackoff = time.Second
	maxReconnectBackoff     = 30 * time.Second
)

// Handler consumes one invalidation event. Delivery is at-least-once and
// unordered across keys, so handlers must be idempotent.
type Handler func(event model.InvalidationEvent)

// RedisBus propagates cache invalidation events across replicas over a
// Redis pub/sub channel. Events from this replica's own writes are filtered
// out on receipt; the writing replica already evicted locally.
type RedisBus struct {
	client     *redis.Client
	channel    string
	instanceID string
	logger     *zap.Logger
}

// NewRedisBus creates a new invalidation bus
func NewRedisBus(client *redis.Client, channel, instanceID string, logger *zap.Logger) *RedisBus {
	return &RedisBus{
		client:     client,
		channel:    channel,
		instanceID: instanceID,
		logger:     logger,
	}
}

// InstanceID returns this replica's identity on the channel
func (b *RedisBus) InstanceID() string {
	return b.instanceID
}

// Publish sends one invalidation event for cacheKey, stamped with this
// replica's identity. It returns the number of subscribers the event
// reached.
func (b *RedisBus) Publish(ctx context.Context, cacheKey string) (int64, error) {
	event := model.InvalidationEvent{
		CacheKey:   cacheKey,
		Timestamp:  time.Now().UTC(),
		InstanceID: b.instanceID,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal invalidation event: %w", err)
	}

	receivers, err := b.client.Publish(ctx, b.channel, payload).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to publish invalidation event: %w", err)
	}
	return receivers, nil
}

// Subscribe starts the background subscriber and returns immediately. The
// subscriber lives until ctx is cancelled; a lost connection is retried
// with backoff rather than crashing the process. While the bus is down the
// replica keeps serving, bounded-stale, until entries hit their TTL.
func (b *RedisBus) Subscribe(ctx context.Context, handler Handler) {
	go b.run(ctx, handler)
}

func (b *RedisBus) run(ctx context.Context, handler Handler) {
	backoff := initialReconnectBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		sub := b.client.Subscribe(ctx, b.channel)
		if _, err := sub.Receive(ctx); err != nil {
			sub.Close()
			if ctx.Err() != nil {
				return
			}
			b.logger.Warn("Invalidation subscriber failed to connect, retrying",
				zap.String("channel", b.channel),
				zap.Duration("backoff", backoff),
				zap.Error(err))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			if backoff *= 2; backoff > maxReconnectBackoff {
				backoff = maxReconnectBackoff
			}
			continue
		}

		b.logger.Info("Invalidation subscriber connected",
			zap.String("channel", b.channel),
			zap.String("instance_id", b.instanceID))
		backoff = initialReconnectBackoff

		b.consume(ctx, sub.Channel(), sub.Close, handler)
		sub.Close()

		if ctx.Err() != nil {
			return
		}
		b.logger.Warn("Invalidation subscriber disconnected, reconnecting",
			zap.String("channel", b.channel))
	}
}

// consume drains msgs until the channel closes. The subscription ctx only
// covers dialing, so cancellation alone never unblocks the drain; a watcher
// calls closeSub when ctx is cancelled, which makes the producer close msgs
// and lets consume return promptly on shutdown.
func (b *RedisBus) consume(ctx context.Context, msgs <-chan *redis.Message, closeSub func() error, handler Handler) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			closeSub()
		case <-done:
		}
	}()
	defer close(done)

	for msg := range msgs {
		b.dispatch(msg.Payload, handler)
	}
}

// dispatch decodes one wire message and hands it to the handler unless this
// replica published it itself.
func (b *RedisBus) dispatch(payload string, handler Handler) {
	var event model.InvalidationEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		b.logger.Warn("Dropping malformed invalidation event",
			zap.String("payload", payload),
			zap.Error(err))
		return
	}

	if event.InstanceID == b.instanceID {
		// Own write; the local cache was already cleared before publish.
		return
	}

	handler(event)
}
