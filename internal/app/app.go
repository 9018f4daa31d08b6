// Package app wires the liveness service from configuration and runs it
// until the context is cancelled.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	jwttoken "liveness/internal/jwt_token"
	"liveness/internal/liveness/backend"
	"liveness/internal/liveness/eventbridge"
	"liveness/internal/liveness/eventbridge/relay"
	"liveness/internal/liveness/handler"
	"liveness/internal/liveness/metrics"
	"liveness/internal/liveness/models"
	"liveness/internal/liveness/ports"
	"liveness/internal/liveness/service"
	"liveness/internal/liveness/store/attempt"
	"liveness/internal/liveness/surface"
	"liveness/internal/platform/config"
	"liveness/internal/platform/httpserver"
	platformkafka "liveness/internal/platform/kafka"
	platformmetrics "liveness/internal/platform/metrics"
	"liveness/internal/platform/postgres"
	"liveness/internal/platform/ratelimiter"
	platformredis "liveness/internal/platform/redis"
	audit "liveness/pkg/platform/audit"
	"liveness/pkg/platform/audit/publisher"
	auditmemory "liveness/pkg/platform/audit/store/memory"
	auditpostgres "liveness/pkg/platform/audit/store/postgres"
	"liveness/pkg/platform/circuit"
	"liveness/pkg/platform/httputil"
)

// Run starts the HTTP API, the outcome relays and the flow service, and
// blocks until ctx is done or one of them fails.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	maxDocumentBytes, err := cfg.Flow.MaxDocumentBytes()
	if err != nil {
		return fmt.Errorf("max document size: %w", err)
	}

	reg := platformmetrics.NewRegistry()
	flowMetrics := metrics.New(reg)

	bridge := eventbridge.New(
		eventbridge.WithLogger(logger),
		eventbridge.WithUnclaimedHook(func(models.OutcomeEvent) { flowMetrics.IncrementUncorrelatedEvent() }),
	)
	defer bridge.Close()

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	attempts, err := attemptStore(ctx, db)
	if err != nil {
		return err
	}
	auditEvents, err := auditStore(ctx, db)
	if err != nil {
		return err
	}
	auditor := publisher.NewPublisher(auditEvents,
		publisher.WithAsyncBuffer(cfg.Audit.AsyncBuffer),
		publisher.WithLogger(logger),
	)
	defer auditor.Close()

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	kafkaClient, err := platformkafka.NewConsumer(ctx, cfg.Kafka)
	if err != nil {
		return err
	}
	if kafkaClient != nil {
		defer kafkaClient.Close()
	}

	svc := service.New(newBackend(cfg.Backend, logger), newSurface(cfg.Surface, bridge, logger), bridge,
		service.Config{
			AutoLaunch:            cfg.Flow.AutoLaunch,
			OutcomeTimeout:        cfg.Flow.OutcomeTimeout,
			MinCredentialValidity: cfg.Flow.MinCredentialValidity,
			MaxDocumentBytes:      maxDocumentBytes,
			AllowedMIMETypes:      cfg.Flow.AllowedMIMETypes,
			Region:                cfg.Flow.Region,
			UI: models.UIOptions{
				DisableStartView: cfg.Flow.DisableStartView,
				ColorScheme:      cfg.Flow.ColorScheme,
			},
			IdleFlowTTL: cfg.Flow.IdleFlowTTL,
		},
		service.WithLogger(logger),
		service.WithMetrics(flowMetrics),
		service.WithAudit(auditor),
		service.WithAttempts(attempts),
	)

	jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)
	handlerOpts := []handler.Option{
		handler.WithMaxDocumentBytes(maxDocumentBytes),
		handler.WithRateLimiter(ratelimiter.New(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst, cfg.RateLimit.IdleTTL)),
	}
	if cfg.Server.EventsSecret != "" {
		handlerOpts = append(handlerOpts, handler.WithOutcomeSink(bridge, cfg.Server.EventsSecret))
	} else {
		logger.Warn("outcome callback endpoint disabled: no events secret configured")
	}
	flowHandler := handler.New(svc, jwttoken.NewJWTServiceAdapter(jwtService), logger, handlerOpts...)

	r := chi.NewRouter()
	r.Get("/healthz", healthHandler(db, redisClient))
	r.Handle("/metrics", platformmetrics.Handler(reg))
	flowHandler.Register(r)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.Run(ctx)
	})
	g.Go(func() error {
		return httpserver.Serve(ctx, httpserver.New(cfg.Server.Addr, r), cfg.Server.ShutdownTimeout, logger)
	})
	if redisClient != nil {
		rr := relay.NewRedis(redisClient, bridge,
			relay.WithRedisChannel(cfg.Redis.Channel),
			relay.WithRedisLogger(logger),
		)
		g.Go(func() error { return rr.Run(ctx) })
	}
	if kafkaClient != nil {
		kr := relay.NewKafka(kafkaClient, bridge,
			relay.WithKafkaTopic(cfg.Kafka.Topic),
			relay.WithKafkaLogger(logger),
		)
		g.Go(func() error { return kr.Run(ctx) })
	}

	logger.Info("liveness service started",
		"addr", cfg.Server.Addr,
		"backend", backendKind(cfg.Backend),
		"surface", surfaceKind(cfg.Surface),
		"attempt_store", attemptStoreKind(db),
		"redis_relay", redisClient != nil,
		"kafka_relay", kafkaClient != nil,
	)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newBackend(cfg config.Backend, logger *slog.Logger) ports.Backend {
	if cfg.URL == "" {
		return backend.NewFake()
	}
	breaker := circuit.New("verification-backend",
		circuit.WithFailureThreshold(cfg.FailureThreshold),
		circuit.WithCooldown(cfg.Cooldown),
	)
	return backend.NewClient(cfg.URL,
		backend.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		backend.WithBreaker(breaker),
		backend.WithTracerProvider(otel.GetTracerProvider()),
		backend.WithLogger(logger),
	)
}

func newSurface(cfg config.Surface, bridge *eventbridge.Bridge, logger *slog.Logger) ports.SurfaceHost {
	if cfg.WebhookURL == "" {
		return surface.NewSimulated(bridge, surface.AlwaysComplete(), logger)
	}
	return surface.NewWebhook(cfg.WebhookURL, cfg.WebhookSecret, nil, logger)
}

func attemptStore(ctx context.Context, db *sql.DB) (ports.AttemptRecorder, error) {
	if db == nil {
		return attempt.NewInMemoryStore(), nil
	}
	store := attempt.NewPostgres(db)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("attempt schema: %w", err)
	}
	return store, nil
}

func auditStore(ctx context.Context, db *sql.DB) (audit.Store, error) {
	if db == nil {
		return auditmemory.NewInMemoryStore(), nil
	}
	store := auditpostgres.New(db)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("audit schema: %w", err)
	}
	return store, nil
}

func backendKind(cfg config.Backend) string {
	if cfg.URL == "" {
		return "fake"
	}
	return "graphql"
}

func surfaceKind(cfg config.Surface) string {
	if cfg.WebhookURL == "" {
		return "simulated"
	}
	return "webhook"
}

func attemptStoreKind(db *sql.DB) string {
	if db == nil {
		return "memory"
	}
	return "postgres"
}

func healthHandler(db *sql.DB, redisClient *platformredis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{}
		healthy := true
		if db != nil {
			checks["postgres"] = "ok"
			if err := db.PingContext(ctx); err != nil {
				checks["postgres"] = err.Error()
				healthy = false
			}
		}
		if redisClient != nil {
			checks["redis"] = "ok"
			if err := redisClient.Health(ctx); err != nil {
				checks["redis"] = err.Error()
				healthy = false
			}
		}

		status := http.StatusOK
		state := "ok"
		if !healthy {
			status = http.StatusServiceUnavailable
			state = "degraded"
		}
		httputil.WriteJSON(w, status, map[string]any{"status": state, "checks": checks})
	}
}
