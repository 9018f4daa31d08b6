package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/docker/go-units"
	"github.com/go-chi/chi/v5"

	"liveness/internal/liveness/eventbridge/relay"
	"liveness/internal/liveness/models"
	"liveness/internal/platform/middleware"
	"liveness/internal/platform/ratelimiter"
	dErrors "liveness/pkg/domain-errors"
	"liveness/pkg/platform/httputil"
	authmw "liveness/pkg/platform/middleware/auth"
	"liveness/pkg/platform/middleware/metadata"
	"liveness/pkg/platform/middleware/requesttime"
	"liveness/pkg/requestcontext"
)

const (
	// EventsSecretHeader carries the shared secret on outcome callbacks.
	EventsSecretHeader = "X-Liveness-Events-Secret"

	defaultMaxDocumentBytes = 10 << 20
	maxEventBytes           = 64 << 10
	watchHeartbeat          = 15 * time.Second
)

// Service defines the flow operations exposed over HTTP.
type Service interface {
	StartCapture(ctx context.Context, userID string) (models.Snapshot, error)
	DeliverDocument(ctx context.Context, userID string, data []byte) (models.Snapshot, error)
	CancelCapture(ctx context.Context, userID string) (models.Snapshot, error)
	Submit(ctx context.Context, userID string) (models.Snapshot, error)
	Reset(ctx context.Context, userID string) (models.Snapshot, error)
	State(ctx context.Context, userID string) (models.Snapshot, error)
	Attempts(ctx context.Context, userID string) ([]*models.Attempt, error)
	Watch(ctx context.Context, userID string) (<-chan models.Snapshot, func(), error)
}

type Option func(*Handler)

// WithOutcomeSink enables POST /v1/liveness/events. Callers must present
// secret in EventsSecretHeader.
func WithOutcomeSink(sink relay.Sink, secret string) Option {
	return func(h *Handler) {
		h.sink = sink
		h.eventsSecret = secret
	}
}

// WithRateLimiter throttles capture starts per user.
func WithRateLimiter(l *ratelimiter.KeyedLimiter) Option {
	return func(h *Handler) {
		h.limiter = l
	}
}

func WithMaxDocumentBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxDocumentBytes = n
		}
	}
}

// Handler handles liveness flow endpoints.
type Handler struct {
	logger           *slog.Logger
	flows            Service
	jwtValidator     authmw.JWTValidator
	limiter          *ratelimiter.KeyedLimiter
	sink             relay.Sink
	eventsSecret     string
	maxDocumentBytes int64
}

// New creates a new liveness Handler.
func New(flows Service, jwtValidator authmw.JWTValidator, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		logger:           logger,
		flows:            flows,
		jwtValidator:     jwtValidator,
		maxDocumentBytes: defaultMaxDocumentBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the liveness routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	flowRouter := chi.NewRouter()
	flowRouter.Use(middleware.Recovery(h.logger))
	flowRouter.Use(metadata.RequestID)
	flowRouter.Use(requesttime.Middleware)
	flowRouter.Use(metadata.ClientMetadata)
	flowRouter.Use(middleware.Logger(h.logger))

	flowRouter.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(h.jwtValidator, h.logger))
		r.With(h.rateLimit).Post("/v1/liveness/capture", h.handleStartCapture)
		r.Put("/v1/liveness/capture/document", h.handleDeliverDocument)
		r.Delete("/v1/liveness/capture", h.handleCancelCapture)
		r.Post("/v1/liveness/submit", h.handleSubmit)
		r.Post("/v1/liveness/reset", h.handleReset)
		r.Get("/v1/liveness/state", h.handleState)
		r.Get("/v1/liveness/state/stream", h.handleWatch)
		r.Get("/v1/liveness/attempts", h.handleAttempts)
	})

	if h.sink != nil {
		flowRouter.Group(func(r chi.Router) {
			r.Use(authmw.RequireSharedSecret(EventsSecretHeader, h.eventsSecret, h.logger))
			r.Post("/v1/liveness/events", h.handleOutcomeEvent)
		})
	}

	r.Mount("/", flowRouter)
}

func (h *Handler) rateLimit(next http.Handler) http.Handler {
	if h.limiter == nil {
		return next
	}
	return middleware.RateLimitByUser(h.limiter, h.logger)(next)
}

func (h *Handler) handleStartCapture(w http.ResponseWriter, r *http.Request) {
	h.runOperation(w, r, "start capture", http.StatusAccepted, h.flows.StartCapture)
}

func (h *Handler) handleCancelCapture(w http.ResponseWriter, r *http.Request) {
	h.runOperation(w, r, "cancel capture", http.StatusOK, h.flows.CancelCapture)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.runOperation(w, r, "submit for verification", http.StatusAccepted, h.flows.Submit)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	h.runOperation(w, r, "reset", http.StatusOK, h.flows.Reset)
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	h.runOperation(w, r, "read state", http.StatusOK, h.flows.State)
}

// handleDeliverDocument accepts the raw document bytes for a pending capture.
func (h *Handler) handleDeliverDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxDocumentBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.WarnContext(ctx, "document too large",
				"request_id", requestID,
				"limit", units.HumanSize(float64(h.maxDocumentBytes)),
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest,
				fmt.Sprintf("document exceeds %s", units.HumanSize(float64(h.maxDocumentBytes)))))
			return
		}
		h.logger.WarnContext(ctx, "failed to read document",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	snap, err := h.flows.DeliverDocument(ctx, userID, data)
	if err != nil {
		h.logFailure(ctx, "deliver document", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, toSnapshotResponse(snap))
}

func (h *Handler) handleAttempts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	list, err := h.flows.Attempts(ctx, userID)
	if err != nil {
		h.logFailure(ctx, "list attempts", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAttemptsResponse(list))
}

// handleWatch streams snapshots as server-sent events until the client goes
// away or the flow stops.
func (h *Handler) handleWatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "streaming unsupported"))
		return
	}
	updates, stop, err := h.flows.Watch(ctx, userID)
	if err != nil {
		h.logFailure(ctx, "watch", err)
		httputil.WriteError(w, err)
		return
	}
	defer stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(watchHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case snap, open := <-updates:
			if !open {
				return
			}
			payload, err := json.Marshal(toSnapshotResponse(snap))
			if err != nil {
				h.logger.ErrorContext(ctx, "failed to encode snapshot", "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// handleOutcomeEvent accepts outcome callbacks from an out-of-process capture
// surface.
func (h *Handler) handleOutcomeEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	evt, err := relay.Decode(payload)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid outcome event",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid outcome event"))
		return
	}
	if err := h.sink.PublishOutcome(ctx, evt); err != nil {
		h.logger.ErrorContext(ctx, "failed to publish outcome event",
			"request_id", requestID,
			"session_id", evt.SessionID.String(),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "event bridge unavailable"))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type operation func(ctx context.Context, userID string) (models.Snapshot, error)

func (h *Handler) runOperation(w http.ResponseWriter, r *http.Request, name string, status int, op operation) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	snap, err := op(ctx, userID)
	if err != nil {
		h.logFailure(ctx, name, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, status, toSnapshotResponse(snap))
}

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)
	if userID == "" {
		// This should never happen if RequireAuth middleware is configured correctly
		h.logger.ErrorContext(ctx, "userID missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return "", false
	}
	return userID, true
}

func (h *Handler) logFailure(ctx context.Context, op string, err error) {
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, "liveness operation failed",
		"operation", op,
		"request_id", requestcontext.RequestID(ctx),
		"user_id", requestcontext.UserID(ctx),
		"error", err.Error(),
	)
}
