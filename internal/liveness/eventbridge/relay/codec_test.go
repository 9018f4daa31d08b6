package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liveness/internal/liveness/models"
	"liveness/pkg/testutil"
)

type captureSink struct {
	mu     sync.Mutex
	events []models.OutcomeEvent
	got    chan models.OutcomeEvent
}

func newCaptureSink() *captureSink {
	return &captureSink{got: make(chan models.OutcomeEvent, 16)}
}

func (s *captureSink) PublishOutcome(_ context.Context, evt models.OutcomeEvent) error {
	s.mu.Lock()
	s.events = append(s.events, evt)
	s.mu.Unlock()
	s.got <- evt
	return nil
}

func (s *captureSink) next(t *testing.T) models.OutcomeEvent {
	t.Helper()
	select {
	case evt := <-s.got:
		return evt
	case <-time.After(30 * time.Second):
		t.Fatal("timed out waiting for relayed event")
		return models.OutcomeEvent{}
	}
}

func TestCodec(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	t.Run("encodes the wire envelope", func(t *testing.T) {
		payload, err := Encode(models.OutcomeEvent{SessionID: "s1", Kind: models.OutcomeFailed, Message: "camera denied", At: at})
		require.NoError(t, err)
		assert.JSONEq(t, `{"session_id":"s1","type":"failed","message":"camera denied","at":"2026-03-04T05:06:07Z"}`, string(payload))
	})

	t.Run("decodes a complete event", func(t *testing.T) {
		evt, err := Decode([]byte(`{"session_id":"s9","type":"complete","at":"2026-03-04T05:06:07Z"}`))
		require.NoError(t, err)
		assert.Equal(t, models.SessionID("s9"), evt.SessionID)
		assert.Equal(t, models.OutcomeComplete, evt.Kind)
		assert.True(t, at.Equal(evt.At))
	})

	t.Run("stamps missing timestamp", func(t *testing.T) {
		evt, err := Decode([]byte(`{"session_id":"s9","type":"complete"}`))
		require.NoError(t, err)
		assert.False(t, evt.At.IsZero())
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		_, err := Decode([]byte(`{"session_id":"s9","type":"cancelled"}`))
		assert.ErrorIs(t, err, ErrMalformedEvent)
	})

	t.Run("rejects invalid json", func(t *testing.T) {
		_, err := Decode([]byte(`{`))
		assert.ErrorIs(t, err, ErrMalformedEvent)
	})

	t.Run("refuses to encode unknown kind", func(t *testing.T) {
		_, err := Encode(models.OutcomeEvent{SessionID: "s1", Kind: "other"})
		assert.ErrorIs(t, err, ErrMalformedEvent)
	})
}

func TestForwardSkipsMalformed(t *testing.T) {
	sink := newCaptureSink()
	logger := testutil.DiscardLogger()

	forward(context.Background(), sink, logger, "test", []byte(`not json`))
	forward(context.Background(), sink, logger, "test", []byte(`{"session_id":"s1","type":"complete"}`))

	evt := sink.next(t)
	assert.Equal(t, models.SessionID("s1"), evt.SessionID)
	assert.Len(t, sink.events, 1)
}
