package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	jwttoken "liveness/internal/jwt_token"
	"liveness/internal/liveness/handler/mocks"
	"liveness/internal/liveness/models"
	"liveness/internal/platform/ratelimiter"
	dErrors "liveness/pkg/domain-errors"
	"liveness/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/service-mocks.go -package=mocks Service

const eventsSecret = "callback-secret"

type recordingSink struct {
	mu     sync.Mutex
	events []models.OutcomeEvent
	err    error
}

func (s *recordingSink) PublishOutcome(_ context.Context, evt models.OutcomeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, evt)
	return nil
}

func (s *recordingSink) received() []models.OutcomeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.OutcomeEvent(nil), s.events...)
}

type LivenessHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	sink    *recordingSink
	router  http.Handler
	token   string
}

func TestLivenessHandlerSuite(t *testing.T) {
	suite.Run(t, new(LivenessHandlerSuite))
}

func (s *LivenessHandlerSuite) SetupTest() {
	s.router = s.newRouter()
}

func (s *LivenessHandlerSuite) newRouter(opts ...Option) http.Handler {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.sink = &recordingSink{}

	jwtService := jwttoken.NewJWTService("test-signing-key", "liveness", "liveness-api")
	token, err := jwtService.GenerateAccessToken("user-1", time.Hour)
	s.Require().NoError(err)
	s.token = token

	opts = append([]Option{WithOutcomeSink(s.sink, eventsSecret), WithMaxDocumentBytes(1024)}, opts...)
	h := New(s.service, jwttoken.NewJWTServiceAdapter(jwtService), testutil.DiscardLogger(), opts...)
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func (s *LivenessHandlerSuite) authed(req *http.Request) *http.Request {
	return testutil.WithBearer(req, s.token)
}

func snapshotAt(stage models.Stage) models.Snapshot {
	return models.Snapshot{FlowID: "flow-1", Stage: stage, UpdatedAt: time.Now()}
}

func (s *LivenessHandlerSuite) TestRequiresBearerToken() {
	req := httptest.NewRequest(http.MethodPost, "/v1/liveness/capture", nil)
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")

	req = testutil.WithBearer(httptest.NewRequest(http.MethodGet, "/v1/liveness/state", nil), "not-a-jwt")
	rr = testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
}

func (s *LivenessHandlerSuite) TestStartCapture() {
	s.service.EXPECT().StartCapture(gomock.Any(), "user-1").Return(snapshotAt(models.StageCapturing), nil)

	rr := testutil.DoRequest(s.router, s.authed(httptest.NewRequest(http.MethodPost, "/v1/liveness/capture", nil)))

	testutil.AssertStatus(s.T(), rr, http.StatusAccepted)
	resp := testutil.UnmarshalResponse[SnapshotResponse](s.T(), rr)
	s.Equal("capturing", resp.Stage)
	s.Equal("document", resp.Screen)
	s.Equal("none", resp.PrimaryAction)
	s.Equal("flow-1", resp.FlowID)
	s.NotEmpty(rr.Header().Get("X-Request-ID"))
}

func (s *LivenessHandlerSuite) TestStartCaptureWhileBusyConflicts() {
	s.service.EXPECT().StartCapture(gomock.Any(), "user-1").
		Return(snapshotAt(models.StageUploading), dErrors.New(dErrors.CodeInvalidState, "cannot start capture while uploading"))

	rr := testutil.DoRequest(s.router, s.authed(httptest.NewRequest(http.MethodPost, "/v1/liveness/capture", nil)))

	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "invalid_state")
}

func (s *LivenessHandlerSuite) TestStartCaptureIsRateLimited() {
	router := s.newRouter(WithRateLimiter(ratelimiter.New(0.001, 1, time.Minute)))
	s.service.EXPECT().StartCapture(gomock.Any(), "user-1").Return(snapshotAt(models.StageCapturing), nil).Times(1)

	first := testutil.DoRequest(router, s.authed(httptest.NewRequest(http.MethodPost, "/v1/liveness/capture", nil)))
	second := testutil.DoRequest(router, s.authed(httptest.NewRequest(http.MethodPost, "/v1/liveness/capture", nil)))

	testutil.AssertStatus(s.T(), first, http.StatusAccepted)
	testutil.AssertStatusAndError(s.T(), second, http.StatusTooManyRequests, "too_many_requests")
	s.NotEmpty(second.Header().Get("Retry-After"))
}

func (s *LivenessHandlerSuite) TestDeliverDocument() {
	doc := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}
	s.service.EXPECT().DeliverDocument(gomock.Any(), "user-1", doc).Return(snapshotAt(models.StageCapturing), nil)

	req := testutil.NewBinaryRequest(s.T(), http.MethodPut, "/v1/liveness/capture/document", "image/jpeg", doc)
	rr := testutil.DoRequest(s.router, s.authed(req))

	testutil.AssertStatus(s.T(), rr, http.StatusAccepted)
}

func (s *LivenessHandlerSuite) TestDeliverDocumentTooLarge() {
	req := testutil.NewBinaryRequest(s.T(), http.MethodPut, "/v1/liveness/capture/document", "image/jpeg", bytes.Repeat([]byte{0xAB}, 2048))
	rr := testutil.DoRequest(s.router, s.authed(req))

	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	s.Contains(rr.Body.String(), "document exceeds")
}

func (s *LivenessHandlerSuite) TestDeliverDocumentWithoutPendingScan() {
	s.service.EXPECT().DeliverDocument(gomock.Any(), "user-1", gomock.Any()).
		Return(models.Snapshot{}, dErrors.New(dErrors.CodeNotFound, "no flow for user"))

	req := testutil.NewBinaryRequest(s.T(), http.MethodPut, "/v1/liveness/capture/document", "image/png", []byte("x"))
	rr := testutil.DoRequest(s.router, s.authed(req))

	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
}

func (s *LivenessHandlerSuite) TestCancelSubmitReset() {
	s.service.EXPECT().CancelCapture(gomock.Any(), "user-1").Return(snapshotAt(models.StageIdle), nil)
	s.service.EXPECT().Submit(gomock.Any(), "user-1").Return(models.Snapshot{Stage: models.StageAwaitingCredentials, Busy: true}, nil)
	s.service.EXPECT().Reset(gomock.Any(), "user-1").Return(snapshotAt(models.StageIdle), nil)

	rr := testutil.DoRequest(s.router, s.authed(httptest.NewRequest(http.MethodDelete, "/v1/liveness/capture", nil)))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	rr = testutil.DoRequest(s.router, s.authed(httptest.NewRequest(http.MethodPost, "/v1/liveness/submit", nil)))
	testutil.AssertStatus(s.T(), rr, http.StatusAccepted)
	submitted := testutil.UnmarshalResponse[SnapshotResponse](s.T(), rr)
	s.Equal("prepare", submitted.Screen)
	s.True(submitted.Loading)
	s.Equal("none", submitted.PrimaryAction)

	rr = testutil.DoRequest(s.router, s.authed(httptest.NewRequest(http.MethodPost, "/v1/liveness/reset", nil)))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	reset := testutil.UnmarshalResponse[SnapshotResponse](s.T(), rr)
	s.Equal("scan", reset.PrimaryAction)
}

func (s *LivenessHandlerSuite) TestStateRendersFailure() {
	snap := models.Snapshot{
		FlowID:    "flow-1",
		Stage:     models.StageFailed,
		SessionID: "sess-1",
		Error:     models.VerdictRejected(models.ReasonFaceMismatch),
		Verdict:   &models.VerificationVerdict{Status: models.VerdictFailure, Reason: models.ReasonFaceMismatch},
	}
	s.service.EXPECT().State(gomock.Any(), "user-1").Return(snap, nil)

	rr := testutil.DoRequest(s.router, s.authed(httptest.NewRequest(http.MethodGet, "/v1/liveness/state", nil)))

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[SnapshotResponse](s.T(), rr)
	s.Equal("result", resp.Screen)
	s.Equal("error", resp.Status)
	s.Equal("sess-1", resp.SessionID)
	s.Require().NotNil(resp.Error)
	s.Equal("verdict_rejected", resp.Error.Kind)
	s.Equal("face_mismatch", resp.Error.Reason)
	s.Equal("face mismatch", resp.Error.Message)
	s.Require().NotNil(resp.Verdict)
	s.Equal("failure", resp.Verdict.Status)
}

func (s *LivenessHandlerSuite) TestAttempts() {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.service.EXPECT().Attempts(gomock.Any(), "user-1").Return([]*models.Attempt{
		{ID: "a-2", FlowID: "flow-1", SessionID: "sess-2", FinalStage: models.StageSucceeded, StartedAt: started.Add(time.Hour), FinishedAt: started.Add(time.Hour + time.Minute)},
		{ID: "a-1", FlowID: "flow-1", FinalStage: models.StageUploading, StartedAt: started, Client: models.ClientInfo{Browser: "Firefox", Mobile: true}},
	}, nil)

	rr := testutil.DoRequest(s.router, s.authed(httptest.NewRequest(http.MethodGet, "/v1/liveness/attempts", nil)))

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[AttemptsResponse](s.T(), rr)
	s.Require().Len(resp.Attempts, 2)
	s.Equal("a-2", resp.Attempts[0].ID)
	s.False(resp.Attempts[0].Abandoned)
	s.NotNil(resp.Attempts[0].FinishedAt)
	s.True(resp.Attempts[1].Abandoned)
	s.Nil(resp.Attempts[1].FinishedAt)
	s.Equal("Firefox", resp.Attempts[1].Browser)
}

func (s *LivenessHandlerSuite) TestWatchStreamsSnapshots() {
	ch := make(chan models.Snapshot, 2)
	ch <- snapshotAt(models.StageCapturing)
	ch <- snapshotAt(models.StageUploading)
	close(ch)
	var updates <-chan models.Snapshot = ch
	var stopped atomic.Bool
	s.service.EXPECT().Watch(gomock.Any(), "user-1").Return(updates, func() { stopped.Store(true) }, nil)

	rr := testutil.DoRequest(s.router, s.authed(httptest.NewRequest(http.MethodGet, "/v1/liveness/state/stream", nil)))

	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.Equal("text/event-stream", rr.Header().Get("Content-Type"))
	body := rr.Body.String()
	s.Equal(2, strings.Count(body, "event: snapshot\n"))
	s.Contains(body, `"stage":"capturing"`)
	s.Contains(body, `"stage":"uploading"`)
	s.True(stopped.Load())
}

func (s *LivenessHandlerSuite) TestOutcomeEvents() {
	s.Run("rejects a missing secret", func() {
		req := httptest.NewRequest(http.MethodPost, "/v1/liveness/events", strings.NewReader(`{"session_id":"sess-1","type":"complete"}`))
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	})

	s.Run("rejects an unknown event type", func() {
		req := httptest.NewRequest(http.MethodPost, "/v1/liveness/events", strings.NewReader(`{"session_id":"sess-1","type":"progress"}`))
		req.Header.Set(EventsSecretHeader, eventsSecret)
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})

	s.Run("forwards a failed outcome", func() {
		req := httptest.NewRequest(http.MethodPost, "/v1/liveness/events", strings.NewReader(`{"session_id":"sess-1","type":"failed","message":"camera denied"}`))
		req.Header.Set(EventsSecretHeader, eventsSecret)
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusAccepted)

		got := s.sink.received()
		s.Require().Len(got, 1)
		s.Equal(models.SessionID("sess-1"), got[0].SessionID)
		s.Equal(models.OutcomeFailed, got[0].Kind)
		s.Equal("camera denied", got[0].Message)
	})

	s.Run("reports a closed bridge as unavailable", func() {
		s.sink.err = errors.New("bridge closed")
		defer func() { s.sink.err = nil }()
		req := httptest.NewRequest(http.MethodPost, "/v1/liveness/events", strings.NewReader(`{"session_id":"sess-1","type":"complete"}`))
		req.Header.Set(EventsSecretHeader, eventsSecret)
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusServiceUnavailable, "unavailable")
	})
}

func TestEventsRouteRequiresSink(t *testing.T) {
	ctrl := gomock.NewController(t)
	jwtService := jwttoken.NewJWTService("k", "liveness", "liveness-api")
	h := New(mocks.NewMockService(ctrl), jwttoken.NewJWTServiceAdapter(jwtService), testutil.DiscardLogger())
	r := chi.NewRouter()
	h.Register(r)

	req := httptest.NewRequest(http.MethodPost, "/v1/liveness/events", strings.NewReader(`{}`))
	req.Header.Set(EventsSecretHeader, eventsSecret)
	rr := testutil.DoRequest(r, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestToSnapshotResponseIdle(t *testing.T) {
	resp := toSnapshotResponse(models.Snapshot{Stage: models.StageIdle})
	require.Equal(t, "idle", resp.Stage)
	assert.Equal(t, "document", resp.Screen)
	assert.Equal(t, "scan", resp.PrimaryAction)
	assert.False(t, resp.Loading)
	assert.Empty(t, resp.Status)
	assert.Nil(t, resp.Error)
}
