package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"liveness/internal/liveness/backend"
	"liveness/internal/liveness/eventbridge"
	"liveness/internal/liveness/metrics"
	"liveness/internal/liveness/models"
	"liveness/internal/liveness/store/attempt"
	"liveness/internal/liveness/surface"
	dErrors "liveness/pkg/domain-errors"
	"liveness/pkg/testutil"
)

var jpegBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type ServiceSuite struct {
	suite.Suite
	bridge   *eventbridge.Bridge
	backend  *backend.Fake
	surface  *surface.Simulated
	attempts *attempt.InMemoryStore
	metrics  *metrics.Metrics
	service  *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) build(script surface.Script, cfg Config, opts ...Option) {
	logger := testutil.DiscardLogger()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.bridge = eventbridge.New(
		eventbridge.WithLogger(logger),
		eventbridge.WithUnclaimedHook(func(models.OutcomeEvent) { s.metrics.IncrementUncorrelatedEvent() }),
	)
	s.backend = backend.NewFake()
	s.surface = surface.NewSimulated(s.bridge, script, logger)
	s.attempts = attempt.NewInMemoryStore()
	all := append([]Option{WithLogger(logger), WithAttempts(s.attempts), WithMetrics(s.metrics)}, opts...)
	s.service = New(s.backend, s.surface, s.bridge, cfg, all...)
}

func (s *ServiceSuite) SetupTest() {
	s.build(surface.AlwaysComplete(), Config{})
}

func (s *ServiceSuite) TearDownTest() {
	s.service.Close()
	s.surface.Wait()
	s.bridge.Close()
}

func (s *ServiceSuite) rebuild(script surface.Script, cfg Config, opts ...Option) {
	s.TearDownTest()
	s.build(script, cfg, opts...)
}

func (s *ServiceSuite) userCtx(userID string) context.Context {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-signing-key"))
	s.Require().NoError(err)
	return testutil.UserContext(userID, token)
}

func (s *ServiceSuite) waitStage(userID string, stage models.Stage) models.Snapshot {
	var snap models.Snapshot
	s.Require().Eventually(func() bool {
		var err error
		snap, err = s.service.State(context.Background(), userID)
		return err == nil && snap.Stage == stage
	}, 2*time.Second, 5*time.Millisecond, "never reached %s", stage)
	return snap
}

// awaitPendingScan waits until the capture is actually blocked on the inbox.
func (s *ServiceSuite) awaitPendingScan(userID string) {
	s.Require().Eventually(func() bool {
		uf, err := s.service.existing(userID)
		return err == nil && uf.inbox.Pending()
	}, 2*time.Second, 5*time.Millisecond)
}

func (s *ServiceSuite) TestFullFlow() {
	ctx := s.userCtx("alice")

	snap, err := s.service.StartCapture(ctx, "alice")
	s.Require().NoError(err)
	s.Equal(models.StageCapturing, snap.Stage)
	s.awaitPendingScan("alice")

	_, err = s.service.DeliverDocument(ctx, "alice", jpegBytes)
	s.Require().NoError(err)
	snap = s.waitStage("alice", models.StageAwaitingCredentials)
	s.False(snap.SessionID.IsZero())

	_, err = s.service.Submit(ctx, "alice")
	s.Require().NoError(err)
	snap = s.waitStage("alice", models.StageSucceeded)
	s.True(snap.Verdict.Succeeded())

	launches := s.surface.Launches()
	s.Require().Len(launches, 1)
	s.Equal(snap.SessionID, launches[0].SessionID)

	s.Require().Eventually(func() bool {
		list, err := s.service.Attempts(ctx, "alice")
		return err == nil && len(list) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func (s *ServiceSuite) TestAutoLaunchSurfaceFailure() {
	s.rebuild(surface.AlwaysFail("camera denied"), Config{AutoLaunch: true})
	ctx := s.userCtx("bob")

	_, err := s.service.StartCapture(ctx, "bob")
	s.Require().NoError(err)
	s.awaitPendingScan("bob")
	_, err = s.service.DeliverDocument(ctx, "bob", jpegBytes)
	s.Require().NoError(err)

	snap := s.waitStage("bob", models.StageFailed)
	s.Require().NotNil(snap.Error)
	s.Equal(models.ErrorExternalSurfaceFailed, snap.Error.Kind)
	s.Equal("camera denied", snap.Error.Message)
}

func (s *ServiceSuite) TestRejectedDocumentType() {
	ctx := s.userCtx("carol")
	_, err := s.service.StartCapture(ctx, "carol")
	s.Require().NoError(err)
	s.awaitPendingScan("carol")

	_, err = s.service.DeliverDocument(ctx, "carol", []byte("%PDF-1.7 not an image"))
	s.Require().NoError(err)
	snap := s.waitStage("carol", models.StageFailed)
	s.Equal(models.ErrorUploadFailed, snap.Error.Kind)
}

func (s *ServiceSuite) TestCancelCapture() {
	ctx := s.userCtx("dave")
	_, err := s.service.StartCapture(ctx, "dave")
	s.Require().NoError(err)
	s.awaitPendingScan("dave")

	_, err = s.service.CancelCapture(ctx, "dave")
	s.Require().NoError(err)
	s.Require().Eventually(func() bool {
		snap, _ := s.service.State(ctx, "dave")
		return snap.Stage == models.StageIdle && snap.Error != nil
	}, 2*time.Second, 5*time.Millisecond)

	_, err = s.service.CancelCapture(ctx, "dave")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *ServiceSuite) TestOperationsWithoutFlow() {
	ctx := s.userCtx("erin")

	_, err := s.service.DeliverDocument(ctx, "erin", jpegBytes)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.Submit(ctx, "erin")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	snap, err := s.service.State(ctx, "erin")
	s.Require().NoError(err)
	s.Equal(models.StageIdle, snap.Stage)
	s.Empty(snap.FlowID)

	_, err = s.service.State(ctx, "")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *ServiceSuite) TestSubmitWhileIdleIsInvalidState() {
	ctx := s.userCtx("frank")
	_, err := s.service.Reset(ctx, "frank")
	s.Require().NoError(err)

	_, err = s.service.Submit(ctx, "frank")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *ServiceSuite) TestFlowsAreIsolatedPerUser() {
	a, b := s.userCtx("alice"), s.userCtx("bob")
	_, err := s.service.StartCapture(a, "alice")
	s.Require().NoError(err)
	_, err = s.service.Reset(b, "bob")
	s.Require().NoError(err)

	alice, _ := s.service.State(a, "alice")
	bob, _ := s.service.State(b, "bob")
	s.Equal(models.StageCapturing, alice.Stage)
	s.Equal(models.StageIdle, bob.Stage)
	s.NotEqual(alice.FlowID, bob.FlowID)
}

func (s *ServiceSuite) TestOutcomeReachesOnlyItsOwner() {
	s.rebuild(surface.NeverRespond(), Config{AutoLaunch: true})
	users := []string{"alice", "bob", "carol"}
	sessions := make(map[string]models.SessionID, len(users))
	for _, user := range users {
		ctx := s.userCtx(user)
		_, err := s.service.StartCapture(ctx, user)
		s.Require().NoError(err)
		s.awaitPendingScan(user)
		_, err = s.service.DeliverDocument(ctx, user, jpegBytes)
		s.Require().NoError(err)
		sessions[user] = s.waitStage(user, models.StageAwaitingOutcome).SessionID
	}

	s.Require().NoError(s.surface.Emit(context.Background(), models.CompleteEvent(sessions["alice"])))
	s.waitStage("alice", models.StageSucceeded)

	for _, user := range []string{"bob", "carol"} {
		snap, err := s.service.State(context.Background(), user)
		s.Require().NoError(err)
		s.Equal(models.StageAwaitingOutcome, snap.Stage)
	}
	s.Zero(promtest.ToFloat64(s.metrics.UncorrelatedEvents))

	s.Require().NoError(s.surface.Emit(context.Background(), models.CompleteEvent("no-such-session")))
	s.Require().Eventually(func() bool {
		return promtest.ToFloat64(s.metrics.UncorrelatedEvents) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func (s *ServiceSuite) TestEvictIdle() {
	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s.rebuild(surface.AlwaysComplete(), Config{IdleFlowTTL: time.Minute}, WithClock(clk.Now))

	_, err := s.service.Reset(s.userCtx("idle"), "idle")
	s.Require().NoError(err)
	_, err = s.service.StartCapture(s.userCtx("busy"), "busy")
	s.Require().NoError(err)

	s.Zero(s.service.EvictIdle())
	clk.Advance(2 * time.Minute)
	s.Equal(1, s.service.EvictIdle(), "capturing flows are never evicted")

	snap, err := s.service.State(context.Background(), "idle")
	s.Require().NoError(err)
	s.Empty(snap.FlowID)
	busy, err := s.service.State(context.Background(), "busy")
	s.Require().NoError(err)
	s.Equal(models.StageCapturing, busy.Stage)
}

func (s *ServiceSuite) TestHeldFlowSurvivesEviction() {
	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s.rebuild(surface.AlwaysComplete(), Config{IdleFlowTTL: time.Minute}, WithClock(clk.Now))
	ctx := s.userCtx("idle")

	_, err := s.service.Reset(ctx, "idle")
	s.Require().NoError(err)
	clk.Advance(2 * time.Minute)

	held, err := s.service.flowFor(ctx, "idle")
	s.Require().NoError(err)
	s.Zero(s.service.EvictIdle(), "a flow handed to a request is fresh again")

	s.Require().NoError(held.machine.Reset(ctx))
	snap, err := s.service.StartCapture(ctx, "idle")
	s.Require().NoError(err)
	s.Equal(held.machine.FlowID(), snap.FlowID)
	s.Equal(models.StageCapturing, snap.Stage)
}

func (s *ServiceSuite) TestClosedServiceRefusesNewFlows() {
	s.service.Close()
	_, err := s.service.StartCapture(s.userCtx("late"), "late")
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func TestTranslate(t *testing.T) {
	assert.Nil(t, translate(nil))
	assert.True(t, dErrors.HasCode(translate(context.DeadlineExceeded), dErrors.CodeTimeout))
	orig := dErrors.New(dErrors.CodeInvalidState, "nope")
	require.Equal(t, orig, translate(orig))
}
