// Package eventbridge delivers terminal outcomes from the capture surface back
// into the flow that launched it. The surface runs outside any flow's call
// stack, so the only way back is publish/subscribe on a process-wide bridge.
package eventbridge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"liveness/internal/liveness/models"
	"liveness/pkg/platform/sentinel"
)

// Topic names match the events the capture surface emits.
type Topic string

const (
	TopicComplete Topic = "FaceLivenessComplete"
	TopicError    Topic = "FaceLivenessError"
)

// Topics lists every topic the bridge dispatches.
var Topics = []Topic{TopicComplete, TopicError}

// TopicFor maps an outcome kind to the topic it is published on.
func TopicFor(kind models.OutcomeKind) (Topic, error) {
	switch kind {
	case models.OutcomeComplete:
		return TopicComplete, nil
	case models.OutcomeFailed:
		return TopicError, nil
	default:
		return "", fmt.Errorf("unknown outcome kind %q", kind)
	}
}

// Handler receives one outcome. Handlers for a topic run sequentially on that
// topic's dispatcher and must not block for long.
type Handler func(ctx context.Context, evt models.OutcomeEvent)

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	id    uint64
	topic Topic
}

func (s Subscription) Topic() Topic { return s.topic }

type envelope struct {
	ctx context.Context
	evt models.OutcomeEvent
}

// Bridge is an in-process typed pub/sub bus. Delivery is ordered within a
// topic and unordered across topics.
type Bridge struct {
	logger    *slog.Logger
	buffer    int
	unclaimed func(models.OutcomeEvent)

	mu       sync.RWMutex
	nextID   uint64
	handlers map[Topic]map[uint64]Handler
	scopes   map[string]*Scope
	sessions map[models.SessionID]*Scope
	queues   map[Topic]chan envelope
	closed   bool

	wg sync.WaitGroup
}

type Option func(*Bridge)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithUnclaimedHook is called for every dispatched outcome whose session no
// armed scope claims.
func WithUnclaimedHook(fn func(models.OutcomeEvent)) Option {
	return func(b *Bridge) {
		b.unclaimed = fn
	}
}

// WithBuffer sets the per-topic queue depth. Publish blocks once it is full.
func WithBuffer(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// New starts one dispatcher goroutine per topic. Call Close to stop them.
func New(opts ...Option) *Bridge {
	b := &Bridge{
		logger:   slog.Default(),
		buffer:   64,
		handlers: make(map[Topic]map[uint64]Handler, len(Topics)),
		scopes:   make(map[string]*Scope),
		sessions: make(map[models.SessionID]*Scope),
		queues:   make(map[Topic]chan envelope, len(Topics)),
	}
	for _, opt := range opts {
		opt(b)
	}
	for _, topic := range Topics {
		b.handlers[topic] = make(map[uint64]Handler)
		q := make(chan envelope, b.buffer)
		b.queues[topic] = q
		b.wg.Add(1)
		go b.dispatch(topic, q)
	}
	return b
}

// Subscribe registers handler on topic.
func (b *Bridge) Subscribe(topic Topic, handler Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return Subscription{}, sentinel.ErrClosed
	}
	subs, ok := b.handlers[topic]
	if !ok {
		return Subscription{}, fmt.Errorf("unknown topic %q", topic)
	}
	b.nextID++
	subs[b.nextID] = handler
	return Subscription{id: b.nextID, topic: topic}, nil
}

// Unsubscribe removes a subscription. Unknown or already removed handles are
// ignored.
func (b *Bridge) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.handlers[sub.topic]; ok {
		delete(subs, sub.id)
	}
}

// Publish queues evt for delivery on topic. Handlers are resolved at dispatch
// time, so a subscription released before dispatch never fires.
func (b *Bridge) Publish(ctx context.Context, topic Topic, evt models.OutcomeEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return sentinel.ErrClosed
	}
	q, ok := b.queues[topic]
	if !ok {
		return fmt.Errorf("unknown topic %q", topic)
	}
	select {
	case q <- envelope{ctx: context.WithoutCancel(ctx), evt: evt}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishOutcome publishes evt on the topic matching its kind.
func (b *Bridge) PublishOutcome(ctx context.Context, evt models.OutcomeEvent) error {
	topic, err := TopicFor(evt.Kind)
	if err != nil {
		return err
	}
	return b.Publish(ctx, topic, evt)
}

// Close stops accepting events, drains queued ones and waits for the
// dispatchers to exit.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, q := range b.queues {
		close(q)
	}
	b.mu.Unlock()
	b.wg.Wait()
}

// SubscriberCount returns the number of live handlers on topic.
func (b *Bridge) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[topic])
}

func (b *Bridge) dispatch(topic Topic, q <-chan envelope) {
	defer b.wg.Done()
	for env := range q {
		if !b.claimed(env.evt.SessionID) {
			b.logger.Warn("unclaimed outcome dropped",
				"topic", string(topic),
				"session_id", env.evt.SessionID.String(),
			)
			if b.unclaimed != nil {
				b.unclaimed(env.evt)
			}
		}
		for _, h := range b.snapshot(topic) {
			b.deliver(topic, h, env)
		}
	}
}

func (b *Bridge) claimed(id models.SessionID) bool {
	if id.IsZero() {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sessions[id] != nil
}

func (b *Bridge) snapshot(topic Topic) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	subs := b.handlers[topic]
	ids := make([]uint64, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]Handler, 0, len(ids))
	for _, id := range ids {
		out = append(out, subs[id])
	}
	return out
}

func (b *Bridge) deliver(topic Topic, h Handler, env envelope) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"topic", string(topic),
				"session_id", env.evt.SessionID.String(),
				"panic", fmt.Sprint(r),
			)
		}
	}()
	h(env.ctx, env.evt)
}
