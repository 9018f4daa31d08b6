package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"liveness/internal/liveness/models"
	"liveness/pkg/platform/audit"
	"liveness/pkg/requestcontext"
)

const attemptSaveTimeout = 5 * time.Second

// transition moves to the next stage and publishes a snapshot. Illegal moves
// are logged and ignored.
func (m *Machine) transition(to models.Stage) bool {
	from := m.st.stage
	if from == to {
		m.publish()
		return true
	}
	if !models.CanTransition(from, to) {
		m.logger.Error("illegal stage transition", "from", from, "to", to)
		return false
	}
	m.st.stage = to
	m.metrics.IncrementTransition(string(from), string(to))
	m.logger.Debug("stage transition", "from", from, "to", to, "epoch", m.st.epoch)
	m.publish()
	return true
}

// fail moves the flow to Failed with fe. Stage and error are published
// together.
func (m *Machine) fail(fe *models.FlowError) {
	if !models.CanTransition(m.st.stage, models.StageFailed) {
		m.logger.Warn("failure ignored", "stage", m.st.stage, "error_kind", fe.Kind)
		return
	}
	m.stopTimeout()
	m.disarm()
	m.st.busy = false
	m.st.err = fe
	m.transition(models.StageFailed)

	m.logger.Warn("flow failed",
		"error_kind", fe.Kind,
		"error", fe.Error(),
		"session_id", m.st.sessionID.String(),
	)
	m.audit(m.st.epochCtx, audit.EventFlowFailed)
	m.metrics.IncrementOutcome("failed", string(fe.Kind))
	m.finishAttempt(m.st.epochCtx)
}

func (m *Machine) disarm() {
	if m.st.scope != nil {
		m.st.scope.Release()
		m.st.scope = nil
	}
}

func (m *Machine) armTimeout(epoch uint64) {
	if m.outcomeTimeout <= 0 {
		return
	}
	timeout := m.outcomeTimeout
	m.st.timer = time.AfterFunc(timeout, func() {
		m.post(func() {
			if epoch != m.st.epoch {
				return
			}
			if m.st.stage != models.StageLaunched && m.st.stage != models.StageAwaitingOutcome {
				return
			}
			m.fail(&models.FlowError{
				Kind:    models.ErrorOutcomeTimedOut,
				Message: fmt.Sprintf("no outcome within %s", timeout),
			})
		})
	})
}

func (m *Machine) stopTimeout() {
	if m.st.timer != nil {
		m.st.timer.Stop()
		m.st.timer = nil
	}
}

func (m *Machine) beginAttempt(client models.ClientInfo) {
	m.st.attempt = &models.Attempt{
		ID:        uuid.NewString(),
		FlowID:    m.flowID,
		Owner:     m.owner,
		Epoch:     m.st.epoch,
		Client:    client,
		StartedAt: m.now(),
	}
}

// finishAttempt closes the open attempt with the current stage and error and
// hands it to the recorder.
func (m *Machine) finishAttempt(ctx context.Context) {
	a := m.st.attempt
	m.st.attempt = nil
	if a == nil {
		return
	}
	a.FinalStage = m.st.stage
	a.SessionID = m.st.sessionID
	if m.st.err != nil {
		a.ErrorKind = m.st.err.Kind
		a.Reason = m.st.err.Reason
	}
	a.FinishedAt = m.now()
	if m.attempts == nil {
		return
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), attemptSaveTimeout)
	defer cancel()
	if err := m.attempts.Save(saveCtx, a); err != nil {
		m.logger.Error("failed to record attempt", "attempt_id", a.ID, "error", err)
	}
}

func (m *Machine) audit(ctx context.Context, action audit.AuditEvent) {
	if m.auditor == nil {
		return
	}
	event := audit.Event{
		Category:  action.Category(),
		Timestamp: m.now(),
		UserID:    m.owner,
		FlowID:    m.flowID,
		SessionID: m.st.sessionID.String(),
		Action:    string(action),
		Stage:     string(m.st.stage),
		RequestID: requestcontext.RequestID(ctx),
	}
	if m.st.err != nil {
		event.ErrorKind = string(m.st.err.Kind)
		event.Reason = string(m.st.err.Reason)
	}
	if err := m.auditor.Emit(context.WithoutCancel(ctx), event); err != nil {
		m.logger.Warn("failed to emit audit event", "action", action, "error", err)
	}
}

// clientInfo derives the device description recorded with each attempt.
func clientInfo(ua string) models.ClientInfo {
	if ua == "" {
		return models.ClientInfo{}
	}
	parsed := useragent.New(ua)
	browser, _ := parsed.Browser()
	platform := parsed.OS()
	if platform == "" {
		platform = parsed.Platform()
	}
	return models.ClientInfo{
		Platform: platform,
		Browser:  browser,
		Mobile:   parsed.Mobile(),
	}
}
