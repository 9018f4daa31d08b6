// Package relay feeds outcomes from out-of-process capture surfaces into the
// event bridge. Every transport carries the same JSON envelope.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"liveness/internal/liveness/models"
)

// ErrMalformedEvent is returned for payloads that do not decode to an outcome.
var ErrMalformedEvent = errors.New("malformed outcome event")

// Sink receives decoded outcomes. *eventbridge.Bridge satisfies it.
type Sink interface {
	PublishOutcome(ctx context.Context, evt models.OutcomeEvent) error
}

type wireEvent struct {
	SessionID string    `json:"session_id"`
	Type      string    `json:"type"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

// Encode renders evt in the wire format.
func Encode(evt models.OutcomeEvent) ([]byte, error) {
	if !evt.Kind.IsValid() {
		return nil, fmt.Errorf("%w: kind %q", ErrMalformedEvent, evt.Kind)
	}
	return json.Marshal(wireEvent{
		SessionID: evt.SessionID.String(),
		Type:      string(evt.Kind),
		Message:   evt.Message,
		At:        evt.At.UTC(),
	})
}

// Decode parses one wire event. A missing timestamp is stamped with the
// receive time.
func Decode(payload []byte) (models.OutcomeEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(payload, &w); err != nil {
		return models.OutcomeEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	kind := models.OutcomeKind(w.Type)
	if !kind.IsValid() {
		return models.OutcomeEvent{}, fmt.Errorf("%w: type %q", ErrMalformedEvent, w.Type)
	}
	at := w.At
	if at.IsZero() {
		at = time.Now()
	}
	return models.OutcomeEvent{
		SessionID: models.SessionID(w.SessionID),
		Kind:      kind,
		Message:   w.Message,
		At:        at,
	}, nil
}

// forward decodes payload and publishes it. Malformed payloads are logged and
// skipped so one bad producer cannot stall a transport.
func forward(ctx context.Context, sink Sink, logger *slog.Logger, source string, payload []byte) {
	evt, err := Decode(payload)
	if err != nil {
		logger.Warn("dropping outcome event",
			"source", source,
			"error", err,
		)
		return
	}
	if err := sink.PublishOutcome(ctx, evt); err != nil {
		logger.Error("failed to publish outcome event",
			"source", source,
			"session_id", evt.SessionID.String(),
			"kind", string(evt.Kind),
			"error", err,
		)
	}
}
