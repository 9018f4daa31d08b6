package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"liveness/internal/liveness/eventbridge"
	"liveness/internal/liveness/models"
	"liveness/internal/liveness/ports"
	dErrors "liveness/pkg/domain-errors"
	"liveness/pkg/platform/audit"
	"liveness/pkg/requestcontext"
)

// StartCapture moves an idle flow into Capturing and asks the scanner for a
// document. The scan runs asynchronously; its result drives the upload.
func (m *Machine) StartCapture(ctx context.Context) error {
	client := clientInfo(requestcontext.UserAgent(ctx))
	return m.do(ctx, func() error {
		m.Touch()
		if m.st.stage != models.StageIdle {
			return invalidState("start capture", m.st.stage)
		}
		m.st.err = nil
		m.st.verdict = nil
		m.beginAttempt(client)
		m.transition(models.StageCapturing)
		m.audit(ctx, audit.EventCaptureStarted)

		spawn(m, "scan", m.deps.Scanner.Scan, m.onScanned)
		return nil
	})
}

// SubmitForVerification requests credentials and launches the capture
// surface. Only legal in AwaitingCredentials while no request is in flight.
func (m *Machine) SubmitForVerification(ctx context.Context) error {
	token := requestcontext.UserToken(ctx)
	return m.do(ctx, func() error {
		m.Touch()
		if m.st.stage != models.StageAwaitingCredentials || m.st.busy {
			return invalidState("submit for verification", m.st.stage)
		}
		if token == "" {
			token = m.deps.Tokens(ctx)
		}
		m.requestCredentials(token)
		return nil
	})
}

// Reset abandons whatever the flow is doing and returns it to Idle. It is
// legal from every stage. Outstanding results of the abandoned epoch are
// dropped when they arrive.
func (m *Machine) Reset(ctx context.Context) error {
	return m.do(ctx, func() error {
		m.Touch()
		from := m.st.stage

		m.stopTimeout()
		m.disarm()
		if m.st.attempt != nil {
			m.finishAttempt(ctx)
		}
		if from != models.StageIdle {
			m.audit(ctx, audit.EventFlowReset)
		}

		m.st.cancelEpoch()
		m.st.epoch++
		m.st.epochCtx, m.st.cancelEpoch = context.WithCancel(context.Background())
		m.deps.Launcher.Forget("")

		m.st.busy = false
		m.st.artifact = nil
		m.st.receipt = nil
		m.st.sessionID = ""
		m.st.err = nil
		m.st.verdict = nil
		m.st.launchedAt = time.Time{}
		m.transition(models.StageIdle)

		m.logger.InfoContext(ctx, "flow reset", "from", from, "epoch", m.st.epoch)
		return nil
	})
}

func (m *Machine) onScanned(artifact *models.DocumentArtifact, err error) {
	switch {
	case errors.Is(err, ports.ErrCaptureCancelled),
		errors.Is(err, models.ErrEmptyDocument),
		err == nil && artifact.IsEmpty():
		m.st.err = &models.FlowError{Kind: models.ErrorCaptureCancelled}
		m.transition(models.StageIdle)
		m.finishAttempt(m.st.epochCtx)
		m.logger.Info("capture cancelled")
	case err != nil:
		m.fail(models.NewFlowError(models.ErrorCaptureFailed, err))
	default:
		m.st.artifact = artifact
		if m.st.attempt != nil {
			m.st.attempt.DocumentBytes = artifact.SizeBytes()
		}
		m.transition(models.StageUploading)
		spawn(m, "upload_document", func(ctx context.Context) (*models.UploadReceipt, error) {
			return m.deps.Stager.Upload(ctx, artifact)
		}, m.onUploaded)
	}
}

func (m *Machine) onUploaded(receipt *models.UploadReceipt, err error) {
	if err != nil {
		m.fail(models.NewFlowError(models.ErrorUploadFailed, err))
		return
	}
	// The artifact is consumed by exactly one upload.
	m.st.artifact = nil
	m.st.receipt = receipt
	m.transition(models.StageAllocatingSession)
	spawn(m, "allocate_session", func(ctx context.Context) (models.SessionID, error) {
		return m.deps.Stager.Allocate(ctx, receipt)
	}, m.onAllocated)
}

func (m *Machine) onAllocated(id models.SessionID, err error) {
	if err == nil && id.IsZero() {
		err = errors.New("backend returned an empty session id")
	}
	if err != nil {
		m.fail(models.NewFlowError(models.ErrorAllocationFailed, err))
		return
	}
	m.st.receipt = nil
	m.st.sessionID = id
	if m.st.attempt != nil {
		m.st.attempt.SessionID = id
	}
	m.transition(models.StageAwaitingCredentials)
	m.audit(m.st.epochCtx, audit.EventSessionAllocated)
	m.logger.Info("liveness session allocated", "session_id", id.String())

	if m.autoLaunch {
		m.requestCredentials(m.deps.Tokens(m.st.epochCtx))
	}
}

func (m *Machine) requestCredentials(token string) {
	m.st.busy = true
	m.publish()
	spawn(m, "fetch_credentials", func(ctx context.Context) (*models.Credentials, error) {
		return m.deps.Credentials.Fetch(ctx, token)
	}, m.onCredentials)
}

// onCredentials arms the outcome listeners and launches. The credentials
// live only in the launch closure and are dropped once it returns.
func (m *Machine) onCredentials(creds *models.Credentials, err error) {
	m.st.busy = false
	if err != nil {
		m.fail(models.NewFlowError(models.ErrorCredentialFetchFailed, err))
		return
	}

	epoch := m.st.epoch
	scope, err := m.deps.Bridge.Arm(m.owner, m.st.sessionID, eventbridge.Handlers{
		OnComplete: m.outcomeHandler(epoch),
		OnFailed:   m.outcomeHandler(epoch),
	})
	if err != nil {
		m.fail(models.NewFlowError(models.ErrorLaunchFailed, err))
		return
	}
	m.st.scope = scope
	m.st.launchedAt = m.now()
	m.transition(models.StageLaunched)
	m.armTimeout(epoch)

	sessionID := m.st.sessionID
	spawn(m, "launch_surface", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.deps.Launcher.Launch(ctx, scope, sessionID, creds)
	}, m.onLaunched)
}

func (m *Machine) onLaunched(_ struct{}, err error) {
	awaiting := m.st.stage == models.StageLaunched || m.st.stage == models.StageAwaitingOutcome
	if err != nil {
		if awaiting {
			m.fail(models.NewFlowError(models.ErrorLaunchFailed, err))
		}
		return
	}
	m.audit(m.st.epochCtx, audit.EventSurfaceLaunched)
	if m.st.stage == models.StageLaunched {
		m.transition(models.StageAwaitingOutcome)
	}
}

// outcomeHandler runs on the bridge dispatcher and forwards to the loop.
func (m *Machine) outcomeHandler(epoch uint64) func(context.Context, models.OutcomeEvent) {
	return func(_ context.Context, evt models.OutcomeEvent) {
		m.post(func() {
			if epoch != m.st.epoch {
				m.metrics.IncrementStaleResult()
				m.logger.Debug("stale outcome dropped", "session_id", evt.SessionID.String())
				return
			}
			m.onOutcome(evt)
		})
	}
}

func (m *Machine) onOutcome(evt models.OutcomeEvent) {
	if m.st.stage != models.StageLaunched && m.st.stage != models.StageAwaitingOutcome {
		m.logger.Debug("outcome ignored", "stage", m.st.stage, "session_id", evt.SessionID.String())
		return
	}
	if evt.SessionID.IsZero() || evt.SessionID != m.st.sessionID || !m.deps.Launcher.IsCurrent(evt.SessionID) {
		m.metrics.IncrementUncorrelatedEvent()
		m.logger.Warn("uncorrelated outcome dropped",
			"event_session_id", evt.SessionID.String(),
			"session_id", m.st.sessionID.String(),
			"kind", evt.Kind,
		)
		return
	}

	// One outcome per session: stop listening before acting on it.
	m.stopTimeout()
	m.disarm()
	m.metrics.ObserveOutcomeWait(m.now().Sub(m.st.launchedAt))
	if m.st.stage == models.StageLaunched {
		m.transition(models.StageAwaitingOutcome)
	}
	m.audit(m.st.epochCtx, audit.EventOutcomeReceived)

	if evt.Kind != models.OutcomeComplete {
		m.fail(models.SurfaceFailed(evt.Message))
		return
	}
	m.transition(models.StagePolling)
	sessionID := m.st.sessionID
	spawn(m, "fetch_result", func(ctx context.Context) (*models.VerificationVerdict, error) {
		return m.deps.Results.Fetch(ctx, sessionID)
	}, m.onVerdict)
}

func (m *Machine) onVerdict(verdict *models.VerificationVerdict, err error) {
	if err != nil {
		m.fail(models.NewFlowError(models.ErrorResultLookupFailed, err))
		return
	}
	m.st.verdict = verdict
	if !verdict.Succeeded() {
		m.fail(models.VerdictRejected(verdict.Reason))
		m.audit(m.st.epochCtx, audit.EventVerdictIssued)
		return
	}
	m.transition(models.StageSucceeded)
	m.audit(m.st.epochCtx, audit.EventVerdictIssued)
	m.metrics.IncrementOutcome("succeeded", "")
	m.finishAttempt(m.st.epochCtx)
	m.logger.Info("liveness verified", "session_id", m.st.sessionID.String())
}

func invalidState(op string, stage models.Stage) error {
	return dErrors.New(dErrors.CodeInvalidState, fmt.Sprintf("cannot %s while %s", op, stage))
}
