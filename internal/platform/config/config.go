package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	pstrings "liveness/pkg/platform/strings"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `yaml:"addr" validate:"required"`
	JWTSigningKey   string        `yaml:"jwt_signing_key" validate:"required"`
	JWTIssuer       string        `yaml:"jwt_issuer" validate:"required"`
	JWTAudience     string        `yaml:"jwt_audience" validate:"required"`
	EventsSecret    string        `yaml:"events_secret"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	LogLevel        string        `yaml:"log_level" validate:"oneof=debug info warn error"`
}

// Flow tunes every liveness flow the service creates.
type Flow struct {
	Region                string        `yaml:"region" validate:"required"`
	DisableStartView      bool          `yaml:"disable_start_view"`
	ColorScheme           string        `yaml:"color_scheme" validate:"omitempty,oneof=light dark"`
	AutoLaunch            bool          `yaml:"auto_launch"`
	OutcomeTimeout        time.Duration `yaml:"outcome_timeout" validate:"gte=0"`
	MinCredentialValidity time.Duration `yaml:"min_credential_validity" validate:"gte=0"`
	MaxDocumentSize       string        `yaml:"max_document_size" validate:"required"`
	AllowedMIMETypes      []string      `yaml:"allowed_mime_types" validate:"min=1,dive,required"`
	IdleFlowTTL           time.Duration `yaml:"idle_flow_ttl" validate:"gte=0"`
}

// MaxDocumentBytes parses MaxDocumentSize ("10MiB", "512KB").
func (f Flow) MaxDocumentBytes() (int64, error) {
	return units.RAMInBytes(f.MaxDocumentSize)
}

// Backend points at the verification backend. An empty URL selects the
// in-memory backend.
type Backend struct {
	URL              string        `yaml:"url" validate:"omitempty,url"`
	Timeout          time.Duration `yaml:"timeout" validate:"gt=0"`
	FailureThreshold int           `yaml:"failure_threshold" validate:"gte=1"`
	Cooldown         time.Duration `yaml:"cooldown" validate:"gt=0"`
}

// Surface selects the capture-surface host. An empty webhook URL selects the
// simulated surface.
type Surface struct {
	WebhookURL    string `yaml:"webhook_url" validate:"omitempty,url"`
	WebhookSecret string `yaml:"webhook_secret"`
}

type RedisConfig struct {
	URL          string        `yaml:"url"`
	Channel      string        `yaml:"channel"`
	PoolSize     int           `yaml:"pool_size" validate:"gte=0"`
	MinIdleConns int           `yaml:"min_idle_conns" validate:"gte=0"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type KafkaConfig struct {
	Brokers       []string `yaml:"brokers" validate:"dive,hostname_port"`
	Topic         string   `yaml:"topic"`
	ConsumerGroup string   `yaml:"consumer_group"`
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

type PostgresConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns int    `yaml:"max_idle_conns" validate:"gte=0"`
}

type RateLimit struct {
	PerSecond float64       `yaml:"per_second" validate:"gte=0"`
	Burst     int           `yaml:"burst" validate:"gte=0"`
	IdleTTL   time.Duration `yaml:"idle_ttl" validate:"gte=0"`
}

type Audit struct {
	AsyncBuffer int `yaml:"async_buffer" validate:"gte=0"`
}

// Config is the full service configuration.
type Config struct {
	Server    Server         `yaml:"server"`
	Flow      Flow           `yaml:"flow"`
	Backend   Backend        `yaml:"backend"`
	Surface   Surface        `yaml:"surface"`
	Redis     RedisConfig    `yaml:"redis"`
	Kafka     KafkaConfig    `yaml:"kafka"`
	Postgres  PostgresConfig `yaml:"postgres"`
	RateLimit RateLimit      `yaml:"rate_limit"`
	Audit     Audit          `yaml:"audit"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: Server{
			Addr: ":8080",
			// Use a default for development - should be overridden in production
			JWTSigningKey:   "dev-secret-key-change-in-production",
			JWTIssuer:       "liveness",
			JWTAudience:     "liveness-api",
			ShutdownTimeout: 15 * time.Second,
			LogLevel:        "info",
		},
		Flow: Flow{
			Region:                "us-east-1",
			DisableStartView:      true,
			OutcomeTimeout:        5 * time.Minute,
			MinCredentialValidity: 30 * time.Second,
			MaxDocumentSize:       "10MiB",
			AllowedMIMETypes:      []string{"image/jpeg", "image/png"},
			IdleFlowTTL:           30 * time.Minute,
		},
		Backend: Backend{
			Timeout:          10 * time.Second,
			FailureThreshold: 5,
			Cooldown:         30 * time.Second,
		},
		Redis: RedisConfig{
			Channel:      "liveness:outcomes",
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Topic:         "liveness.outcomes",
			ConsumerGroup: "liveness-orchestrator",
		},
		Postgres: PostgresConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		RateLimit: RateLimit{
			PerSecond: 1,
			Burst:     5,
			IdleTTL:   10 * time.Minute,
		},
		Audit: Audit{
			AsyncBuffer: 256,
		},
	}
}

// EnvConfigFile names the optional YAML overlay.
const EnvConfigFile = "LIVENESS_CONFIG_FILE"

// Load builds the configuration from defaults, the optional YAML file named
// by LIVENESS_CONFIG_FILE, then LIVENESS_* environment variables, and
// validates the result.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(getenv(EnvConfigFile)); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}
	cfg.Flow.AllowedMIMETypes = pstrings.FoldList(cfg.Flow.AllowedMIMETypes)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field rules.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	size, err := cfg.Flow.MaxDocumentBytes()
	if err != nil {
		return fmt.Errorf("invalid config: max_document_size: %w", err)
	}
	if size <= 0 {
		return errors.New("invalid config: max_document_size must be positive")
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	integer := func(key string, dst *int) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	list := func(key string, dst *[]string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = pstrings.SplitList(v)
		}
	}

	str("LIVENESS_ADDR", &cfg.Server.Addr)
	str("LIVENESS_JWT_SIGNING_KEY", &cfg.Server.JWTSigningKey)
	str("LIVENESS_JWT_ISSUER", &cfg.Server.JWTIssuer)
	str("LIVENESS_JWT_AUDIENCE", &cfg.Server.JWTAudience)
	str("LIVENESS_EVENTS_SECRET", &cfg.Server.EventsSecret)
	duration("LIVENESS_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	str("LIVENESS_LOG_LEVEL", &cfg.Server.LogLevel)

	str("LIVENESS_REGION", &cfg.Flow.Region)
	boolean("LIVENESS_DISABLE_START_VIEW", &cfg.Flow.DisableStartView)
	str("LIVENESS_COLOR_SCHEME", &cfg.Flow.ColorScheme)
	boolean("LIVENESS_AUTO_LAUNCH", &cfg.Flow.AutoLaunch)
	duration("LIVENESS_OUTCOME_TIMEOUT", &cfg.Flow.OutcomeTimeout)
	duration("LIVENESS_MIN_CREDENTIAL_VALIDITY", &cfg.Flow.MinCredentialValidity)
	str("LIVENESS_MAX_DOCUMENT_SIZE", &cfg.Flow.MaxDocumentSize)
	list("LIVENESS_ALLOWED_MIME_TYPES", &cfg.Flow.AllowedMIMETypes)
	duration("LIVENESS_IDLE_FLOW_TTL", &cfg.Flow.IdleFlowTTL)

	str("LIVENESS_BACKEND_URL", &cfg.Backend.URL)
	duration("LIVENESS_BACKEND_TIMEOUT", &cfg.Backend.Timeout)

	str("LIVENESS_SURFACE_WEBHOOK_URL", &cfg.Surface.WebhookURL)
	str("LIVENESS_SURFACE_WEBHOOK_SECRET", &cfg.Surface.WebhookSecret)

	str("LIVENESS_REDIS_URL", &cfg.Redis.URL)
	str("LIVENESS_REDIS_CHANNEL", &cfg.Redis.Channel)
	list("LIVENESS_KAFKA_BROKERS", &cfg.Kafka.Brokers)
	str("LIVENESS_KAFKA_TOPIC", &cfg.Kafka.Topic)
	str("LIVENESS_KAFKA_GROUP", &cfg.Kafka.ConsumerGroup)
	str("LIVENESS_DATABASE_URL", &cfg.Postgres.URL)

	integer("LIVENESS_RATE_LIMIT_BURST", &cfg.RateLimit.Burst)
	if v := strings.TrimSpace(getenv("LIVENESS_RATE_LIMIT_RPS")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("LIVENESS_RATE_LIMIT_RPS: %w", err))
		} else {
			cfg.RateLimit.PerSecond = f
		}
	}
	integer("LIVENESS_AUDIT_BUFFER", &cfg.Audit.AsyncBuffer)

	return errors.Join(errs...)
}
