// Package surface provides capture-surface hosts. A host is the capability
// handle the launcher invokes; how the surface later reports back is up to
// the host.
package surface

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"liveness/internal/liveness/models"
)

// Publisher is where a simulated surface reports its outcome.
// *eventbridge.Bridge satisfies it.
type Publisher interface {
	PublishOutcome(ctx context.Context, evt models.OutcomeEvent) error
}

// Behavior scripts one invocation of a simulated surface.
type Behavior struct {
	// InvokeErr fails the invocation itself; nothing is emitted.
	InvokeErr error
	// Silent accepts the invocation and never emits.
	Silent bool
	Kind   models.OutcomeKind
	// Message is the failure text for a Failed outcome.
	Message string
	Delay   time.Duration
}

// Script decides the behavior of each invocation.
type Script func(req models.LaunchRequest) Behavior

func AlwaysComplete() Script {
	return func(models.LaunchRequest) Behavior {
		return Behavior{Kind: models.OutcomeComplete}
	}
}

func AlwaysFail(message string) Script {
	return func(models.LaunchRequest) Behavior {
		return Behavior{Kind: models.OutcomeFailed, Message: message}
	}
}

func NeverRespond() Script {
	return func(models.LaunchRequest) Behavior {
		return Behavior{Silent: true}
	}
}

// Simulated is an in-process capture surface. It emits its scripted outcome
// asynchronously, after Invoke has returned, the way a real surface does.
type Simulated struct {
	publisher Publisher
	script    Script
	logger    *slog.Logger

	mu       sync.Mutex
	launches []models.LaunchRequest
	wg       sync.WaitGroup
}

func NewSimulated(publisher Publisher, script Script, logger *slog.Logger) *Simulated {
	if script == nil {
		script = AlwaysComplete()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulated{publisher: publisher, script: script, logger: logger}
}

func (s *Simulated) Invoke(ctx context.Context, req models.LaunchRequest) error {
	s.mu.Lock()
	s.launches = append(s.launches, req)
	s.mu.Unlock()

	b := s.script(req)
	if b.InvokeErr != nil {
		return b.InvokeErr
	}
	if b.Silent {
		return nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if b.Delay > 0 {
			time.Sleep(b.Delay)
		}
		evt := models.OutcomeEvent{SessionID: req.SessionID, Kind: b.Kind, Message: b.Message, At: time.Now()}
		if err := s.publisher.PublishOutcome(context.WithoutCancel(ctx), evt); err != nil {
			s.logger.Warn("simulated surface could not publish outcome",
				"session_id", req.SessionID.String(),
				"error", err,
			)
		}
	}()
	return nil
}

// Emit publishes an outcome as if the surface produced it. Used with
// NeverRespond to control timing from a test.
func (s *Simulated) Emit(ctx context.Context, evt models.OutcomeEvent) error {
	return s.publisher.PublishOutcome(ctx, evt)
}

// Launches returns every request received so far.
func (s *Simulated) Launches() []models.LaunchRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.LaunchRequest(nil), s.launches...)
}

// Wait blocks until every scheduled outcome has been published.
func (s *Simulated) Wait() {
	s.wg.Wait()
}
