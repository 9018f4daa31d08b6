// Package flow owns the liveness orchestration state machine. One Machine
// drives one user's flow; all of its state is confined to the goroutine
// running Run. Public operations and completions of asynchronous work are
// posted to that goroutine as closures, and every asynchronous result is
// tagged with the epoch it was started in so a reset can invalidate it.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"liveness/internal/liveness/eventbridge"
	"liveness/internal/liveness/launcher"
	"liveness/internal/liveness/metrics"
	"liveness/internal/liveness/models"
	"liveness/internal/liveness/ports"
	"liveness/pkg/platform/sentinel"
)

// ErrStopped is returned by operations on a machine whose loop has exited.
var ErrStopped = fmt.Errorf("flow stopped: %w", sentinel.ErrClosed)

// DefaultOutcomeTimeout bounds how long a launched session may wait for the
// capture surface to report back.
const DefaultOutcomeTimeout = 5 * time.Minute

// Stager uploads the captured document and allocates the liveness session.
type Stager interface {
	Upload(ctx context.Context, artifact *models.DocumentArtifact) (*models.UploadReceipt, error)
	Allocate(ctx context.Context, receipt *models.UploadReceipt) (models.SessionID, error)
}

// CredentialSource issues credentials for one launch.
type CredentialSource interface {
	Fetch(ctx context.Context, userToken string) (*models.Credentials, error)
}

// SurfaceLauncher hands a session to the capture surface.
type SurfaceLauncher interface {
	Launch(ctx context.Context, scope launcher.Armed, sessionID models.SessionID, creds *models.Credentials) error
	IsCurrent(id models.SessionID) bool
	Forget(id models.SessionID)
}

// ResultSource looks up and classifies the verdict of a finished session.
type ResultSource interface {
	Fetch(ctx context.Context, sessionID models.SessionID) (*models.VerificationVerdict, error)
}

// OutcomeArmer arms the outcome listeners for one owner's launched session.
type OutcomeArmer interface {
	Arm(owner string, sessionID models.SessionID, h eventbridge.Handlers) (*eventbridge.Scope, error)
}

// TokenFunc returns the freshest user token known for the flow's owner.
// It is consulted when credentials are requested without a request token.
type TokenFunc func(ctx context.Context) string

// Dependencies are the collaborators a Machine drives.
type Dependencies struct {
	Scanner     ports.DocumentScanner
	Stager      Stager
	Credentials CredentialSource
	Launcher    SurfaceLauncher
	Results     ResultSource
	Bridge      OutcomeArmer
	Tokens      TokenFunc
}

func (d Dependencies) validate() error {
	switch {
	case d.Scanner == nil:
		return fmt.Errorf("flow: scanner is required")
	case d.Stager == nil:
		return fmt.Errorf("flow: stager is required")
	case d.Credentials == nil:
		return fmt.Errorf("flow: credential source is required")
	case d.Launcher == nil:
		return fmt.Errorf("flow: launcher is required")
	case d.Results == nil:
		return fmt.Errorf("flow: result source is required")
	case d.Bridge == nil:
		return fmt.Errorf("flow: event bridge is required")
	}
	return nil
}

type Option func(*Machine)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Machine) {
		m.metrics = mt
	}
}

func WithAudit(p ports.AuditPublisher) Option {
	return func(m *Machine) {
		m.auditor = p
	}
}

func WithAttempts(r ports.AttemptRecorder) Option {
	return func(m *Machine) {
		m.attempts = r
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

// WithAutoLaunch requests credentials and launches as soon as a session is
// allocated, without waiting for SubmitForVerification.
func WithAutoLaunch(enabled bool) Option {
	return func(m *Machine) {
		m.autoLaunch = enabled
	}
}

// WithOutcomeTimeout overrides DefaultOutcomeTimeout. Zero disables it.
func WithOutcomeTimeout(d time.Duration) Option {
	return func(m *Machine) {
		if d >= 0 {
			m.outcomeTimeout = d
		}
	}
}

// Machine is the per-user orchestrator.
type Machine struct {
	owner  string
	flowID string
	deps   Dependencies

	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditor        ports.AuditPublisher
	attempts       ports.AttemptRecorder
	now            func() time.Time
	autoLaunch     bool
	outcomeTimeout time.Duration

	inbox   chan func()
	done    chan struct{}
	started atomic.Bool

	snap       atomic.Pointer[models.Snapshot]
	watchMu    sync.Mutex
	watchers   map[int]chan models.Snapshot
	nextWatch  int
	lastActive atomic.Int64

	// Loop-owned state. Only touched from the Run goroutine.
	st state
}

type state struct {
	stage       models.Stage
	epoch       uint64
	epochCtx    context.Context
	cancelEpoch context.CancelFunc
	busy        bool

	artifact  *models.DocumentArtifact
	receipt   *models.UploadReceipt
	sessionID models.SessionID
	scope     *eventbridge.Scope
	timer     *time.Timer
	err       *models.FlowError
	verdict   *models.VerificationVerdict

	attempt    *models.Attempt
	launchedAt time.Time
}

// New builds a Machine for owner. Run must be started before any operation.
func New(owner string, deps Dependencies, opts ...Option) (*Machine, error) {
	if owner == "" {
		return nil, fmt.Errorf("flow: owner is required")
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}
	m := &Machine{
		owner:          owner,
		flowID:         uuid.NewString(),
		deps:           deps,
		logger:         slog.Default(),
		now:            time.Now,
		outcomeTimeout: DefaultOutcomeTimeout,
		inbox:          make(chan func(), 16),
		done:           make(chan struct{}),
		watchers:       make(map[int]chan models.Snapshot),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.deps.Tokens == nil {
		m.deps.Tokens = func(context.Context) string { return "" }
	}
	m.logger = m.logger.With("flow_id", m.flowID, "user_id", owner)

	m.st.stage = models.StageIdle
	m.st.epochCtx, m.st.cancelEpoch = context.WithCancel(context.Background())
	m.Touch()
	m.publish()
	return m, nil
}

func (m *Machine) Owner() string  { return m.owner }
func (m *Machine) FlowID() string { return m.flowID }

// Run processes operations until ctx is done. It may be called once.
func (m *Machine) Run(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return fmt.Errorf("flow: machine already running")
	}
	defer m.teardown()
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-m.inbox:
			fn()
		}
	}
}

// Done is closed once Run has returned.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

// Snapshot returns the latest published state. Safe from any goroutine.
func (m *Machine) Snapshot() models.Snapshot {
	return *m.snap.Load()
}

// LastActive is the time of the most recent public operation.
func (m *Machine) LastActive() time.Time {
	return time.Unix(0, m.lastActive.Load())
}

// Watch streams snapshots. Slow readers only ever see the latest one. The
// returned func stops the stream and closes the channel.
func (m *Machine) Watch() (<-chan models.Snapshot, func()) {
	ch := make(chan models.Snapshot, 1)

	// publish stores the snapshot before taking watchMu, so loading it under
	// the lock and registering in the same critical section misses nothing.
	m.watchMu.Lock()
	ch <- m.Snapshot()
	select {
	case <-m.done:
		m.watchMu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}
	id := m.nextWatch
	m.nextWatch++
	m.watchers[id] = ch
	m.watchMu.Unlock()

	return ch, func() {
		m.watchMu.Lock()
		_, ok := m.watchers[id]
		delete(m.watchers, id)
		m.watchMu.Unlock()
		if ok {
			close(ch)
		}
	}
}

// do runs fn on the loop and waits for its result.
func (m *Machine) do(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	select {
	case m.inbox <- func() { res <- fn() }:
	case <-m.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-res:
		return err
	case <-m.done:
		return ErrStopped
	}
}

// post queues fn for the loop without waiting. It gives up once the loop
// has exited.
func (m *Machine) post(fn func()) {
	select {
	case m.inbox <- fn:
	case <-m.done:
	}
}

// spawn runs op off the loop within the current epoch and hands its result
// back to the loop. Results from an earlier epoch are counted and dropped.
func spawn[T any](m *Machine, call string, op func(ctx context.Context) (T, error), then func(T, error)) {
	epoch := m.st.epoch
	ctx := m.st.epochCtx
	go func() {
		start := time.Now()
		v, err := op(ctx)
		m.metrics.ObserveCall(call, time.Since(start), err)
		m.post(func() {
			if epoch != m.st.epoch {
				m.metrics.IncrementStaleResult()
				m.logger.Debug("stale result dropped",
					"call", call,
					"result_epoch", epoch,
					"epoch", m.st.epoch,
				)
				return
			}
			then(v, err)
		})
	}()
}

// Touch marks the flow as active now, deferring idle eviction.
func (m *Machine) Touch() {
	m.lastActive.Store(m.now().UnixNano())
}

func (m *Machine) publish() {
	s := &models.Snapshot{
		FlowID:    m.flowID,
		Epoch:     m.st.epoch,
		Stage:     m.st.stage,
		SessionID: m.st.sessionID,
		Busy:      m.st.busy,
		Error:     m.st.err,
		Verdict:   m.st.verdict,
		UpdatedAt: m.now(),
	}
	m.snap.Store(s)

	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	for _, ch := range m.watchers {
		select {
		case ch <- *s:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- *s:
			default:
			}
		}
	}
}

func (m *Machine) teardown() {
	m.stopTimeout()
	m.disarm()
	m.st.cancelEpoch()
	if m.st.attempt != nil {
		m.finishAttempt(context.Background())
	}
	m.watchMu.Lock()
	for id, ch := range m.watchers {
		delete(m.watchers, id)
		close(ch)
	}
	m.watchMu.Unlock()
}
