package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"liveness/internal/platform/ratelimiter"
	"liveness/pkg/requestcontext"
	"liveness/pkg/testutil"
)

func ok() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRecovery(t *testing.T) {
	h := Recovery(testutil.DiscardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := testutil.DoRequest(h, httptest.NewRequest(http.MethodGet, "/", nil))
	testutil.AssertStatusAndError(t, rr, http.StatusInternalServerError, "internal_error")
}

func TestLoggerPassesStatusThrough(t *testing.T) {
	h := Logger(testutil.DiscardLogger())(ok())
	rr := testutil.DoRequest(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestRateLimitByUser(t *testing.T) {
	limiter := ratelimiter.New(0.001, 1, time.Minute)
	h := RateLimitByUser(limiter, testutil.DiscardLogger())(ok())

	request := func(user string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		return req.WithContext(requestcontext.WithUserID(req.Context(), user))
	}

	assert.Equal(t, http.StatusNoContent, testutil.DoRequest(h, request("u-1")).Code)

	rr := testutil.DoRequest(h, request("u-1"))
	testutil.AssertStatusAndError(t, rr, http.StatusTooManyRequests, "too_many_requests")
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusNoContent, testutil.DoRequest(h, request("u-2")).Code)
}
