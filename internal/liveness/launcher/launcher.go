// Package launcher hands a session across the boundary to the capture
// surface. It never sees the outcome; that arrives through the event bridge.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"liveness/internal/liveness/models"
	"liveness/internal/liveness/ports"
)

var (
	ErrLaunchFailed = errors.New("capture surface launch failed")

	// ErrNotArmed is returned when no outcome listener is armed. Launching
	// without one would lose an outcome emitted before arming.
	ErrNotArmed = errors.New("outcome listeners are not armed")

	ErrCredentialsUnusable = errors.New("credentials are incomplete or expired")
)

const DefaultRegion = "us-east-1"

// Armed is satisfied by *eventbridge.Scope.
type Armed interface {
	Armed() bool
}

type Launcher struct {
	host   ports.SurfaceHost
	region string
	ui     models.UIOptions
	now    func() time.Time
	logger *slog.Logger

	mu      sync.Mutex
	current models.SessionID
}

type Option func(*Launcher)

func WithRegion(region string) Option {
	return func(l *Launcher) {
		if region != "" {
			l.region = region
		}
	}
}

func WithUIOptions(ui models.UIOptions) Option {
	return func(l *Launcher) {
		l.ui = ui
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Launcher) {
		l.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Launcher) {
		l.logger = logger
	}
}

func New(host ports.SurfaceHost, opts ...Option) *Launcher {
	l := &Launcher{
		host:   host,
		region: DefaultRegion,
		ui:     models.UIOptions{DisableStartView: true},
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Launch invokes the capture surface for sessionID. The session becomes the
// current one before the handoff, so an outcome racing the invocation still
// correlates. Any earlier session stops being current.
func (l *Launcher) Launch(ctx context.Context, scope Armed, sessionID models.SessionID, creds *models.Credentials) error {
	if scope == nil || !scope.Armed() {
		return fmt.Errorf("%w: %w", ErrLaunchFailed, ErrNotArmed)
	}
	if sessionID.IsZero() {
		return fmt.Errorf("%w: missing session id", ErrLaunchFailed)
	}
	if !creds.Complete() || creds.Expired(l.now()) {
		return fmt.Errorf("%w: %w", ErrLaunchFailed, ErrCredentialsUnusable)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}

	l.mu.Lock()
	l.current = sessionID
	l.mu.Unlock()

	req := models.LaunchRequest{
		SessionID:   sessionID,
		Credentials: *creds,
		Region:      l.region,
		UIOptions:   l.ui,
	}
	if err := l.host.Invoke(ctx, req); err != nil {
		l.Forget(sessionID)
		return fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}

	l.logger.InfoContext(ctx, "capture surface launched",
		"session_id", sessionID.String(),
		"region", l.region,
	)
	return nil
}

// IsCurrent reports whether id is the most recently launched session.
func (l *Launcher) IsCurrent(id models.SessionID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !id.IsZero() && id == l.current
}

// Forget clears the current session if it is id. An empty id clears any.
func (l *Launcher) Forget(id models.SessionID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id.IsZero() || l.current == id {
		l.current = ""
	}
}
