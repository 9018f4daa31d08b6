package relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"liveness/internal/liveness/models"
)

// DefaultRedisChannel is the Pub/Sub channel device relays publish to.
const DefaultRedisChannel = "liveness:outcomes"

// Redis relays outcomes published on a Redis Pub/Sub channel.
type Redis struct {
	client  redis.UniversalClient
	channel string
	sink    Sink
	logger  *slog.Logger
}

type RedisOption func(*Redis)

func WithRedisChannel(channel string) RedisOption {
	return func(r *Redis) {
		if channel != "" {
			r.channel = channel
		}
	}
}

func WithRedisLogger(logger *slog.Logger) RedisOption {
	return func(r *Redis) {
		r.logger = logger
	}
}

func NewRedis(client redis.UniversalClient, sink Sink, opts ...RedisOption) *Redis {
	r := &Redis{
		client:  client,
		channel: DefaultRedisChannel,
		sink:    sink,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) Channel() string { return r.channel }

// Run subscribes and forwards messages until ctx is done.
func (r *Redis) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	// Receive blocks until the subscription is confirmed.
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.logger.Info("redis outcome relay subscribed", "channel", r.channel)

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			forward(ctx, r.sink, r.logger, "redis", []byte(msg.Payload))
		}
	}
}

// Emit publishes evt on the channel. Used by device relays and tests.
func (r *Redis) Emit(ctx context.Context, evt models.OutcomeEvent) error {
	payload, err := Encode(evt)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish outcome to %s: %w", r.channel, err)
	}
	return nil
}
