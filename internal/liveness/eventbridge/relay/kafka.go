package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"liveness/internal/liveness/models"
)

// DefaultKafkaTopic is the topic device relays produce outcomes to.
const DefaultKafkaTopic = "liveness.outcomes"

// Kafka relays outcomes consumed from a Kafka topic. The client must be
// configured to consume the topic (see platform/kafka).
type Kafka struct {
	client *kgo.Client
	topic  string
	sink   Sink
	logger *slog.Logger
}

type KafkaOption func(*Kafka)

func WithKafkaTopic(topic string) KafkaOption {
	return func(k *Kafka) {
		if topic != "" {
			k.topic = topic
		}
	}
}

func WithKafkaLogger(logger *slog.Logger) KafkaOption {
	return func(k *Kafka) {
		k.logger = logger
	}
}

func NewKafka(client *kgo.Client, sink Sink, opts ...KafkaOption) *Kafka {
	k := &Kafka{
		client: client,
		topic:  DefaultKafkaTopic,
		sink:   sink,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

func (k *Kafka) Topic() string { return k.topic }

// Run polls and forwards records until ctx is done or the client is closed.
// Offsets are committed after each forwarded batch.
func (k *Kafka) Run(ctx context.Context) error {
	k.logger.Info("kafka outcome relay started", "topic", k.topic)
	for {
		fetches := k.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			k.logger.Warn("kafka fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})
		fetches.EachRecord(func(rec *kgo.Record) {
			if rec.Topic != k.topic {
				return
			}
			forward(ctx, k.sink, k.logger, "kafka", rec.Value)
		})
		if err := k.client.CommitUncommittedOffsets(ctx); err != nil && ctx.Err() == nil {
			k.logger.Warn("kafka offset commit failed", "error", err)
		}
	}
}

// Emit produces evt keyed by session id so one session's events stay on one
// partition.
func (k *Kafka) Emit(ctx context.Context, evt models.OutcomeEvent) error {
	payload, err := Encode(evt)
	if err != nil {
		return err
	}
	rec := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(evt.SessionID.String()),
		Value: payload,
	}
	if err := k.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce outcome to %s: %w", k.topic, err)
	}
	return nil
}
