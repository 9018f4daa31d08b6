//go:build integration

package relay_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"liveness/internal/liveness/eventbridge/relay"
	"liveness/internal/liveness/models"
	"liveness/internal/platform/config"
	platformkafka "liveness/internal/platform/kafka"
	"liveness/pkg/testutil"
	"liveness/pkg/testutil/containers"
)

type sinkRecorder struct {
	mu     sync.Mutex
	events []models.OutcomeEvent
}

func (s *sinkRecorder) PublishOutcome(_ context.Context, evt models.OutcomeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *sinkRecorder) received() []models.OutcomeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.OutcomeEvent(nil), s.events...)
}

type RedisRelaySuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestRedisRelaySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisRelaySuite))
}

func (s *RedisRelaySuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
}

func (s *RedisRelaySuite) TestForwardsPublishedOutcomes() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &sinkRecorder{}
	r := relay.NewRedis(s.redis.Client, sink,
		relay.WithRedisChannel("liveness:test"),
		relay.WithRedisLogger(testutil.DiscardLogger()),
	)
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	s.Require().Eventually(func() bool {
		counts, err := s.redis.Client.PubSubNumSub(ctx, r.Channel()).Result()
		return err == nil && counts[r.Channel()] == 1
	}, 10*time.Second, 50*time.Millisecond)

	s.Require().NoError(s.redis.Client.Publish(ctx, r.Channel(), "not an event").Err())
	s.Require().NoError(r.Emit(ctx, models.FailedEvent("sess-1", "camera denied")))

	s.Require().Eventually(func() bool { return len(sink.received()) == 1 }, 5*time.Second, 20*time.Millisecond)
	got := sink.received()[0]
	s.Equal(models.SessionID("sess-1"), got.SessionID)
	s.Equal(models.OutcomeFailed, got.Kind)
	s.Equal("camera denied", got.Message)

	cancel()
	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(5 * time.Second):
		s.Fail("redis relay did not stop")
	}
}

type KafkaRelaySuite struct {
	suite.Suite
	kafka *containers.KafkaContainer
}

func TestKafkaRelaySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaRelaySuite))
}

func (s *KafkaRelaySuite) SetupSuite() {
	s.kafka = containers.NewKafkaContainer(s.T())
}

func (s *KafkaRelaySuite) TestForwardsProducedOutcomes() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.KafkaConfig{
		Brokers:       s.kafka.Brokers,
		Topic:         "liveness.outcomes.test",
		ConsumerGroup: "liveness-relay-test",
	}
	producer, err := platformkafka.NewProducer(ctx, cfg)
	s.Require().NoError(err)
	defer producer.Close()
	consumer, err := platformkafka.NewConsumer(ctx, cfg)
	s.Require().NoError(err)
	defer consumer.Close()

	sink := &sinkRecorder{}
	in := relay.NewKafka(consumer, sink,
		relay.WithKafkaTopic(cfg.Topic),
		relay.WithKafkaLogger(testutil.DiscardLogger()),
	)
	out := relay.NewKafka(producer, nil, relay.WithKafkaTopic(cfg.Topic))

	done := make(chan error, 1)
	go func() { done <- in.Run(ctx) }()

	// The consumer starts at the log end, so keep producing until the group
	// has joined and one event comes through.
	s.Require().Eventually(func() bool {
		if err := out.Emit(ctx, models.CompleteEvent("sess-9")); err != nil {
			return false
		}
		return len(sink.received()) > 0
	}, 60*time.Second, 500*time.Millisecond)

	got := sink.received()[0]
	s.Equal(models.SessionID("sess-9"), got.SessionID)
	s.Equal(models.OutcomeComplete, got.Kind)

	cancel()
	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(10 * time.Second):
		s.Fail("kafka relay did not stop")
	}
}
