package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "us-east-1", cfg.Flow.Region)
	assert.True(t, cfg.Flow.DisableStartView)
	assert.Equal(t, 5*time.Minute, cfg.Flow.OutcomeTimeout)

	size, err := cfg.Flow.MaxDocumentBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(10*1024*1024), size)
}

func TestLoadEnvOverrides(t *testing.T) {
	cfg, err := load(envMap(map[string]string{
		"LIVENESS_ADDR":               ":9090",
		"LIVENESS_AUTO_LAUNCH":        "true",
		"LIVENESS_OUTCOME_TIMEOUT":    "0s",
		"LIVENESS_MAX_DOCUMENT_SIZE":  "512KiB",
		"LIVENESS_ALLOWED_MIME_TYPES": "image/jpeg, application/pdf",
		"LIVENESS_KAFKA_BROKERS":      "localhost:9092",
		"LIVENESS_RATE_LIMIT_RPS":     "2.5",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.True(t, cfg.Flow.AutoLaunch)
	assert.Zero(t, cfg.Flow.OutcomeTimeout)
	assert.Equal(t, []string{"image/jpeg", "application/pdf"}, cfg.Flow.AllowedMIMETypes)
	assert.True(t, cfg.Kafka.Enabled())
	assert.InDelta(t, 2.5, cfg.RateLimit.PerSecond, 0.001)

	size, err := cfg.Flow.MaxDocumentBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(512*1024), size)
}

func TestLoadNormalisesMIMETypes(t *testing.T) {
	cfg, err := load(envMap(map[string]string{
		"LIVENESS_ALLOWED_MIME_TYPES": "Image/PNG, image/png,, IMAGE/JPEG",
		"LIVENESS_JWT_ISSUER":         "idp.example.com",
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{"image/png", "image/jpeg"}, cfg.Flow.AllowedMIMETypes)
	assert.Equal(t, "idp.example.com", cfg.Server.JWTIssuer)
	assert.Equal(t, "liveness-api", cfg.Server.JWTAudience)
}

func TestLoadFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "liveness.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
flow:
  region: eu-west-1
  outcome_timeout: 2m
backend:
  url: https://backend.example.com/graphql
`), 0o600))

	cfg, err := load(envMap(map[string]string{
		EnvConfigFile:     path,
		"LIVENESS_REGION": "eu-central-1",
	}))
	require.NoError(t, err)

	assert.Equal(t, "eu-central-1", cfg.Flow.Region, "environment wins over file")
	assert.Equal(t, 2*time.Minute, cfg.Flow.OutcomeTimeout)
	assert.Equal(t, "https://backend.example.com/graphql", cfg.Backend.URL)
	assert.Equal(t, ":8080", cfg.Server.Addr, "unset keys keep defaults")
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]map[string]string{
		"bad duration":   {"LIVENESS_OUTCOME_TIMEOUT": "soon"},
		"bad bool":       {"LIVENESS_AUTO_LAUNCH": "maybe"},
		"bad size":       {"LIVENESS_MAX_DOCUMENT_SIZE": "huge"},
		"bad log level":  {"LIVENESS_LOG_LEVEL": "verbose"},
		"bad broker":     {"LIVENESS_KAFKA_BROKERS": "not a broker"},
		"negative burst": {"LIVENESS_RATE_LIMIT_BURST": "-1"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := load(envMap(env))
			assert.Error(t, err)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := load(envMap(map[string]string{EnvConfigFile: filepath.Join(t.TempDir(), "absent.yaml")}))
		assert.Error(t, err)
	})
}
