package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liveness/internal/liveness/backend"
	"liveness/internal/liveness/eventbridge"
	"liveness/internal/liveness/surface"
	"liveness/internal/platform/config"
	auditmemory "liveness/pkg/platform/audit/store/memory"
	"liveness/pkg/testutil"
)

func TestHealthWithoutDependencies(t *testing.T) {
	rr := httptest.NewRecorder()
	healthHandler(nil, nil)(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{}}`, rr.Body.String())
}

func TestBackendSelection(t *testing.T) {
	logger := testutil.DiscardLogger()

	_, isFake := newBackend(config.Backend{}, logger).(*backend.Fake)
	assert.True(t, isFake, "empty URL selects the in-memory backend")

	cfg := config.Default().Backend
	cfg.URL = "https://backend.example.com/graphql"
	_, isClient := newBackend(cfg, logger).(*backend.Client)
	assert.True(t, isClient)
	assert.Equal(t, "graphql", backendKind(cfg))
}

func TestSurfaceSelection(t *testing.T) {
	logger := testutil.DiscardLogger()
	bridge := eventbridge.New()
	defer bridge.Close()

	_, simulated := newSurface(config.Surface{}, bridge, logger).(*surface.Simulated)
	assert.True(t, simulated)

	_, webhook := newSurface(config.Surface{WebhookURL: "https://relay.example.com/launch"}, bridge, logger).(*surface.Webhook)
	assert.True(t, webhook)
	assert.Equal(t, "webhook", surfaceKind(config.Surface{WebhookURL: "x"}))
}

func TestAttemptStoreDefaultsToMemory(t *testing.T) {
	store, err := attemptStore(t.Context(), nil)
	require.NoError(t, err)
	assert.NotNil(t, store)
	assert.Equal(t, "memory", attemptStoreKind(nil))
}

func TestAuditStoreDefaultsToMemory(t *testing.T) {
	store, err := auditStore(t.Context(), nil)
	require.NoError(t, err)
	_, memory := store.(*auditmemory.InMemoryStore)
	assert.True(t, memory)
}
