package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"liveness/internal/liveness/capture"
	"liveness/internal/liveness/credentials"
	"liveness/internal/liveness/eventbridge"
	"liveness/internal/liveness/flow"
	"liveness/internal/liveness/launcher"
	"liveness/internal/liveness/metrics"
	"liveness/internal/liveness/models"
	"liveness/internal/liveness/poller"
	"liveness/internal/liveness/ports"
	"liveness/internal/liveness/staging"
	dErrors "liveness/pkg/domain-errors"
	"liveness/pkg/requestcontext"
)

const (
	DefaultIdleFlowTTL = 30 * time.Minute
	evictionInterval   = time.Minute
)

// Config carries the flow settings shared by every user.
type Config struct {
	AutoLaunch            bool
	OutcomeTimeout        time.Duration
	MinCredentialValidity time.Duration
	MaxDocumentBytes      int64
	AllowedMIMETypes      []string
	Region                string
	UI                    models.UIOptions
	IdleFlowTTL           time.Duration
}

// Service keeps one flow per authenticated user. Flows are created on demand
// and evicted once they have sat idle or terminal for IdleFlowTTL.
type Service struct {
	cfg     Config
	bridge  *eventbridge.Bridge
	surface ports.SurfaceHost
	stager  *staging.Pipeline
	broker  *credentials.Broker
	results *poller.Poller

	logger   *slog.Logger
	metrics  *metrics.Metrics
	auditor  ports.AuditPublisher
	attempts ports.AttemptRecorder
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	flows  map[string]*userFlow
	closed bool
}

type userFlow struct {
	machine *flow.Machine
	inbox   *capture.Inbox
	stop    context.CancelFunc

	mu    sync.Mutex
	token string
}

func (u *userFlow) setToken(token string) {
	if token == "" {
		return
	}
	u.mu.Lock()
	u.token = token
	u.mu.Unlock()
}

func (u *userFlow) currentToken(context.Context) string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.token
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAudit(p ports.AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

func WithAttempts(r ports.AttemptRecorder) Option {
	return func(s *Service) {
		s.attempts = r
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(backend ports.Backend, surface ports.SurfaceHost, bridge *eventbridge.Bridge, cfg Config, opts ...Option) *Service {
	s := &Service{
		cfg:     cfg,
		bridge:  bridge,
		surface: surface,
		logger:  slog.Default(),
		now:     time.Now,
		flows:   make(map[string]*userFlow),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.IdleFlowTTL <= 0 {
		s.cfg.IdleFlowTTL = DefaultIdleFlowTTL
	}

	stagingOpts := []staging.Option{staging.WithLogger(s.logger)}
	if cfg.MaxDocumentBytes > 0 {
		stagingOpts = append(stagingOpts, staging.WithMaxDocumentBytes(cfg.MaxDocumentBytes))
	}
	if len(cfg.AllowedMIMETypes) > 0 {
		stagingOpts = append(stagingOpts, staging.WithAllowedMIMETypes(cfg.AllowedMIMETypes))
	}
	s.stager = staging.New(backend, backend, stagingOpts...)

	brokerOpts := []credentials.Option{credentials.WithLogger(s.logger), credentials.WithClock(s.now)}
	if cfg.MinCredentialValidity > 0 {
		brokerOpts = append(brokerOpts, credentials.WithMinValidity(cfg.MinCredentialValidity))
	}
	s.broker = credentials.New(backend, brokerOpts...)
	s.results = poller.New(backend, s.logger)

	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Run evicts stale flows until ctx is done, then stops every flow.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(evictionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Close()
			return nil
		case <-ticker.C:
			s.EvictIdle()
		}
	}
}

// Close stops every flow and waits for their loops to exit.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

func (s *Service) StartCapture(ctx context.Context, userID string) (models.Snapshot, error) {
	uf, err := s.flowFor(ctx, userID)
	if err != nil {
		return models.Snapshot{}, err
	}
	if err := uf.machine.StartCapture(ctx); err != nil {
		return uf.machine.Snapshot(), translate(err)
	}
	return uf.machine.Snapshot(), nil
}

// DeliverDocument feeds the pending capture of userID.
func (s *Service) DeliverDocument(ctx context.Context, userID string, data []byte) (models.Snapshot, error) {
	uf, err := s.existing(userID)
	if err != nil {
		return models.Snapshot{}, err
	}
	if err := uf.inbox.Deliver(data); err != nil {
		return uf.machine.Snapshot(), translate(err)
	}
	s.logger.InfoContext(ctx, "document received", "user_id", userID, "size_bytes", len(data))
	return uf.machine.Snapshot(), nil
}

func (s *Service) CancelCapture(_ context.Context, userID string) (models.Snapshot, error) {
	uf, err := s.existing(userID)
	if err != nil {
		return models.Snapshot{}, err
	}
	if err := uf.inbox.Cancel(); err != nil {
		return uf.machine.Snapshot(), translate(err)
	}
	return uf.machine.Snapshot(), nil
}

func (s *Service) Submit(ctx context.Context, userID string) (models.Snapshot, error) {
	uf, err := s.existing(userID)
	if err != nil {
		return models.Snapshot{}, err
	}
	uf.setToken(requestcontext.UserToken(ctx))
	if err := uf.machine.SubmitForVerification(ctx); err != nil {
		return uf.machine.Snapshot(), translate(err)
	}
	return uf.machine.Snapshot(), nil
}

func (s *Service) Reset(ctx context.Context, userID string) (models.Snapshot, error) {
	uf, err := s.flowFor(ctx, userID)
	if err != nil {
		return models.Snapshot{}, err
	}
	if err := uf.machine.Reset(ctx); err != nil {
		return uf.machine.Snapshot(), translate(err)
	}
	return uf.machine.Snapshot(), nil
}

// State returns the user's snapshot. A user without a flow is Idle.
func (s *Service) State(_ context.Context, userID string) (models.Snapshot, error) {
	if userID == "" {
		return models.Snapshot{}, dErrors.New(dErrors.CodeUnauthorized, "missing user")
	}
	s.mu.Lock()
	uf := s.flows[userID]
	s.mu.Unlock()
	if uf == nil {
		return models.Snapshot{Stage: models.StageIdle, UpdatedAt: s.now()}, nil
	}
	return uf.machine.Snapshot(), nil
}

// Attempts lists the user's finished attempts, newest first.
func (s *Service) Attempts(ctx context.Context, userID string) ([]*models.Attempt, error) {
	if s.attempts == nil {
		return nil, nil
	}
	list, err := s.attempts.ListByOwner(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list attempts")
	}
	return list, nil
}

// Watch streams the user's snapshots. The flow is created if needed.
func (s *Service) Watch(ctx context.Context, userID string) (<-chan models.Snapshot, func(), error) {
	uf, err := s.flowFor(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	ch, stop := uf.machine.Watch()
	return ch, stop, nil
}

// EvictIdle drops flows that are idle or terminal and untouched for longer
// than IdleFlowTTL.
func (s *Service) EvictIdle() int {
	cutoff := s.now().Add(-s.cfg.IdleFlowTTL)
	s.mu.Lock()
	var evicted []*userFlow
	for owner, uf := range s.flows {
		snap := uf.machine.Snapshot()
		if snap.Stage != models.StageIdle && !snap.Stage.IsTerminal() {
			continue
		}
		if uf.machine.LastActive().After(cutoff) {
			continue
		}
		delete(s.flows, owner)
		evicted = append(evicted, uf)
	}
	active := len(s.flows)
	s.mu.Unlock()

	for _, uf := range evicted {
		uf.stop()
		<-uf.machine.Done()
	}
	s.metrics.SetActiveFlows(active)
	if len(evicted) > 0 {
		s.logger.Info("evicted idle flows", "count", len(evicted), "active", active)
	}
	return len(evicted)
}

func (s *Service) existing(userID string) (*userFlow, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing user")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	uf := s.flows[userID]
	if uf == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "no liveness flow for user")
	}
	// Touched under s.mu so EvictIdle cannot take a flow a request holds.
	uf.machine.Touch()
	return uf, nil
}

func (s *Service) flowFor(ctx context.Context, userID string) (*userFlow, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing user")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, dErrors.New(dErrors.CodeUnavailable, "service is shutting down")
	}
	if uf := s.flows[userID]; uf != nil {
		uf.machine.Touch()
		uf.setToken(requestcontext.UserToken(ctx))
		return uf, nil
	}

	uf := &userFlow{inbox: capture.NewInbox(s.logger)}
	uf.setToken(requestcontext.UserToken(ctx))

	launcherOpts := []launcher.Option{launcher.WithLogger(s.logger), launcher.WithClock(s.now), launcher.WithUIOptions(s.cfg.UI)}
	if s.cfg.Region != "" {
		launcherOpts = append(launcherOpts, launcher.WithRegion(s.cfg.Region))
	}
	machine, err := flow.New(userID, flow.Dependencies{
		Scanner:     uf.inbox,
		Stager:      s.stager,
		Credentials: s.broker,
		Launcher:    launcher.New(s.surface, launcherOpts...),
		Results:     s.results,
		Bridge:      s.bridge,
		Tokens:      uf.currentToken,
	},
		flow.WithLogger(s.logger),
		flow.WithMetrics(s.metrics),
		flow.WithAudit(s.auditor),
		flow.WithAttempts(s.attempts),
		flow.WithClock(s.now),
		flow.WithAutoLaunch(s.cfg.AutoLaunch),
		flow.WithOutcomeTimeout(s.cfg.OutcomeTimeout),
	)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create flow")
	}
	uf.machine = machine

	runCtx, stop := context.WithCancel(s.ctx)
	uf.stop = stop
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = machine.Run(runCtx)
	}()

	s.flows[userID] = uf
	s.metrics.SetActiveFlows(len(s.flows))
	s.logger.InfoContext(ctx, "liveness flow created", "user_id", userID, "flow_id", machine.FlowID())
	return uf, nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, capture.ErrNoPendingScan), errors.Is(err, capture.ErrScanInProgress):
		return dErrors.Wrap(err, dErrors.CodeInvalidState, "no capture is waiting for a document")
	case errors.Is(err, flow.ErrStopped):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "liveness flow stopped")
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "request timed out")
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "liveness flow error")
}
