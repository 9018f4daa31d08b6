package eventbridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"liveness/internal/liveness/models"
	"liveness/pkg/platform/sentinel"
)

type BridgeSuite struct {
	suite.Suite
	bridge *Bridge
}

func TestBridgeSuite(t *testing.T) {
	suite.Run(t, new(BridgeSuite))
}

func (s *BridgeSuite) SetupTest() {
	s.bridge = New()
}

func (s *BridgeSuite) TearDownTest() {
	s.bridge.Close()
}

type recorder struct {
	mu   sync.Mutex
	got  []models.OutcomeEvent
	seen chan struct{}
}

func newRecorder() *recorder {
	return &recorder{seen: make(chan struct{}, 64)}
}

func (r *recorder) handle(_ context.Context, evt models.OutcomeEvent) {
	r.mu.Lock()
	r.got = append(r.got, evt)
	r.mu.Unlock()
	r.seen <- struct{}{}
}

func (r *recorder) events() []models.OutcomeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.OutcomeEvent(nil), r.got...)
}

func (r *recorder) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.seen:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d of %d", i+1, n)
		}
	}
}

func (s *BridgeSuite) TestPublishSubscribe() {
	s.Run("delivers in publish order within a topic", func() {
		rec := newRecorder()
		sub, err := s.bridge.Subscribe(TopicComplete, rec.handle)
		s.Require().NoError(err)
		defer s.bridge.Unsubscribe(sub)

		for _, id := range []models.SessionID{"s1", "s2", "s3"} {
			s.Require().NoError(s.bridge.Publish(context.Background(), TopicComplete, models.CompleteEvent(id)))
		}
		rec.wait(s.T(), 3)

		got := rec.events()
		s.Equal([]models.SessionID{"s1", "s2", "s3"},
			[]models.SessionID{got[0].SessionID, got[1].SessionID, got[2].SessionID})
	})

	s.Run("topics are isolated", func() {
		complete := newRecorder()
		failed := newRecorder()
		subC, err := s.bridge.Subscribe(TopicComplete, complete.handle)
		s.Require().NoError(err)
		subF, err := s.bridge.Subscribe(TopicError, failed.handle)
		s.Require().NoError(err)
		defer s.bridge.Unsubscribe(subC)
		defer s.bridge.Unsubscribe(subF)

		s.Require().NoError(s.bridge.PublishOutcome(context.Background(), models.FailedEvent("s1", "camera denied")))
		failed.wait(s.T(), 1)

		s.Empty(complete.events())
		s.Equal("camera denied", failed.events()[0].Message)
	})

	s.Run("unknown topic is rejected", func() {
		_, err := s.bridge.Subscribe(Topic("Other"), newRecorder().handle)
		s.Error(err)
		s.Error(s.bridge.Publish(context.Background(), Topic("Other"), models.CompleteEvent("s1")))
	})

	s.Run("unsubscribed handler never fires", func() {
		gone := newRecorder()
		kept := newRecorder()
		sub, err := s.bridge.Subscribe(TopicComplete, gone.handle)
		s.Require().NoError(err)
		keptSub, err := s.bridge.Subscribe(TopicComplete, kept.handle)
		s.Require().NoError(err)
		defer s.bridge.Unsubscribe(keptSub)

		s.bridge.Unsubscribe(sub)
		s.bridge.Unsubscribe(sub)
		s.Require().NoError(s.bridge.Publish(context.Background(), TopicComplete, models.CompleteEvent("s1")))
		kept.wait(s.T(), 1)

		s.Empty(gone.events())
	})
}

func (s *BridgeSuite) TestArm() {
	s.Run("arming again for an owner releases the previous scope", func() {
		first := newRecorder()
		second := newRecorder()

		scope1, err := s.bridge.Arm("user-1", "s2", Handlers{OnComplete: first.handle, OnFailed: first.handle})
		s.Require().NoError(err)
		scope2, err := s.bridge.Arm("user-1", "s2", Handlers{OnComplete: second.handle, OnFailed: second.handle})
		s.Require().NoError(err)
		defer scope2.Release()

		s.False(scope1.Armed())
		s.True(scope2.Armed())
		s.Equal(1, s.bridge.SubscriberCount(TopicComplete))
		s.Equal(1, s.bridge.SubscriberCount(TopicError))

		s.Require().NoError(s.bridge.PublishOutcome(context.Background(), models.CompleteEvent("s2")))
		second.wait(s.T(), 1)
		s.Empty(first.events())
	})

	s.Run("release is idempotent and clears subscriptions", func() {
		rec := newRecorder()
		scope, err := s.bridge.Arm("user-2", "s3", Handlers{OnComplete: rec.handle, OnFailed: rec.handle})
		s.Require().NoError(err)

		scope.Release()
		scope.Release()

		s.False(scope.Armed())
		s.Zero(s.bridge.SubscriberCount(TopicComplete))
		s.Zero(s.bridge.SubscriberCount(TopicError))
	})

	s.Run("releasing a stale scope keeps the newer one", func() {
		rec := newRecorder()
		old, err := s.bridge.Arm("user-3", "s4", Handlers{OnComplete: rec.handle, OnFailed: rec.handle})
		s.Require().NoError(err)
		current, err := s.bridge.Arm("user-3", "s4", Handlers{OnComplete: rec.handle, OnFailed: rec.handle})
		s.Require().NoError(err)
		defer current.Release()

		old.Release()
		s.True(current.Armed())
		s.Equal(1, s.bridge.SubscriberCount(TopicComplete))
	})

	s.Run("requires both handlers", func() {
		_, err := s.bridge.Arm("user-4", "s5", Handlers{OnComplete: newRecorder().handle})
		s.Error(err)
	})

	s.Run("requires a session id", func() {
		rec := newRecorder()
		_, err := s.bridge.Arm("user-5", "", Handlers{OnComplete: rec.handle, OnFailed: rec.handle})
		s.Error(err)
	})
}

func TestArmedScopesOnlySeeTheirSession(t *testing.T) {
	var (
		mu        sync.Mutex
		unclaimed []models.OutcomeEvent
	)
	b := New(WithUnclaimedHook(func(evt models.OutcomeEvent) {
		mu.Lock()
		unclaimed = append(unclaimed, evt)
		mu.Unlock()
	}))
	defer b.Close()

	alice, bob, carol := newRecorder(), newRecorder(), newRecorder()
	for owner, arm := range map[string]struct {
		session models.SessionID
		rec     *recorder
	}{
		"alice": {"sess-alice", alice},
		"bob":   {"sess-bob", bob},
		"carol": {"sess-carol", carol},
	} {
		scope, err := b.Arm(owner, arm.session, Handlers{OnComplete: arm.rec.handle, OnFailed: arm.rec.handle})
		require.NoError(t, err)
		defer scope.Release()
	}

	require.NoError(t, b.PublishOutcome(context.Background(), models.CompleteEvent("sess-alice")))
	require.NoError(t, b.PublishOutcome(context.Background(), models.FailedEvent("sess-bob", "camera denied")))
	alice.wait(t, 1)
	bob.wait(t, 1)

	require.NoError(t, b.PublishOutcome(context.Background(), models.CompleteEvent("sess-nobody")))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(unclaimed) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, models.SessionID("sess-alice"), alice.events()[0].SessionID)
	assert.Equal(t, models.SessionID("sess-bob"), bob.events()[0].SessionID)
	assert.Len(t, alice.events(), 1)
	assert.Len(t, bob.events(), 1)
	assert.Empty(t, carol.events())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, unclaimed, 1, "routed events are never reported as unclaimed")
	assert.Equal(t, models.SessionID("sess-nobody"), unclaimed[0].SessionID)
}

func TestReleasedSessionIsUnclaimed(t *testing.T) {
	hits := make(chan models.OutcomeEvent, 1)
	b := New(WithUnclaimedHook(func(evt models.OutcomeEvent) { hits <- evt }))
	defer b.Close()

	rec := newRecorder()
	scope, err := b.Arm("alice", "sess-1", Handlers{OnComplete: rec.handle, OnFailed: rec.handle})
	require.NoError(t, err)
	assert.Equal(t, models.SessionID("sess-1"), scope.SessionID())
	scope.Release()

	require.NoError(t, b.PublishOutcome(context.Background(), models.CompleteEvent("sess-1")))
	select {
	case evt := <-hits:
		assert.Equal(t, models.SessionID("sess-1"), evt.SessionID)
	case <-time.After(time.Second):
		t.Fatal("released session was not reported as unclaimed")
	}
	assert.Empty(t, rec.events())
}

func TestBridgeRecoversFromHandlerPanic(t *testing.T) {
	b := New()
	defer b.Close()

	rec := newRecorder()
	_, err := b.Subscribe(TopicComplete, func(context.Context, models.OutcomeEvent) { panic("boom") })
	require.NoError(t, err)
	_, err = b.Subscribe(TopicComplete, rec.handle)
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), TopicComplete, models.CompleteEvent("s1")))
	rec.wait(t, 1)
}

func TestBridgeClose(t *testing.T) {
	b := New()
	b.Close()
	b.Close()

	assert.ErrorIs(t, b.Publish(context.Background(), TopicComplete, models.CompleteEvent("s1")), sentinel.ErrClosed)
	_, err := b.Subscribe(TopicError, newRecorder().handle)
	assert.ErrorIs(t, err, sentinel.ErrClosed)
}

func TestTopicFor(t *testing.T) {
	topic, err := TopicFor(models.OutcomeComplete)
	require.NoError(t, err)
	assert.Equal(t, TopicComplete, topic)

	topic, err = TopicFor(models.OutcomeFailed)
	require.NoError(t, err)
	assert.Equal(t, TopicError, topic)

	_, err = TopicFor("cancelled")
	assert.Error(t, err)
}
