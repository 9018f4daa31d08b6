// Package credentials requests the short-lived keys the capture surface needs.
// Every call goes to the issuer; nothing is cached across sessions.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"liveness/internal/liveness/models"
	"liveness/internal/liveness/ports"
	"liveness/pkg/platform/sentinel"
)

var (
	// ErrUnauthorized means the user token was rejected, locally or by the issuer.
	ErrUnauthorized = fmt.Errorf("credentials: %w", sentinel.ErrUnauthorized)

	// ErrUnavailable covers every other issuer failure, including unusable
	// credentials.
	ErrUnavailable = fmt.Errorf("credentials: %w", sentinel.ErrUnavailable)
)

// DefaultMinValidity is the shortest remaining lifetime accepted from the issuer.
const DefaultMinValidity = 30 * time.Second

type Broker struct {
	issuer      ports.CredentialIssuer
	minValidity time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

type Option func(*Broker)

func WithMinValidity(d time.Duration) Option {
	return func(b *Broker) {
		if d >= 0 {
			b.minValidity = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Broker) {
		b.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) {
		b.logger = logger
	}
}

func New(issuer ports.CredentialIssuer, opts ...Option) *Broker {
	b := &Broker{
		issuer:      issuer,
		minValidity: DefaultMinValidity,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Fetch makes exactly one issuer call. The token is only inspected, not
// verified: authentication happened at the edge, and this check merely avoids
// a remote call for a token that is malformed or already expired.
func (b *Broker) Fetch(ctx context.Context, userToken string) (*models.Credentials, error) {
	subject, err := b.inspect(userToken)
	if err != nil {
		return nil, err
	}

	creds, err := b.issuer.FetchTemporaryCredentials(ctx, userToken)
	if err != nil {
		b.logger.WarnContext(ctx, "temporary credential request failed",
			"subject", subject,
			"error", err,
		)
		if errors.Is(err, sentinel.ErrUnauthorized) {
			return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	now := b.now()
	switch {
	case !creds.Complete():
		return nil, fmt.Errorf("%w: incomplete credentials", ErrUnavailable)
	case creds.Expiration.Before(now.Add(b.minValidity)):
		return nil, fmt.Errorf("%w: credentials expire at %s", ErrUnavailable, creds.Expiration.UTC().Format(time.RFC3339))
	}

	b.logger.DebugContext(ctx, "temporary credentials issued",
		"subject", subject,
		"expires_in", creds.Expiration.Sub(now).Round(time.Second).String(),
	)
	return creds, nil
}

func (b *Broker) inspect(userToken string) (string, error) {
	if userToken == "" {
		return "", fmt.Errorf("%w: missing user token", ErrUnauthorized)
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(userToken, claims); err != nil {
		return "", fmt.Errorf("%w: malformed user token", ErrUnauthorized)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return "", fmt.Errorf("%w: malformed expiry", ErrUnauthorized)
	}
	if exp != nil && !b.now().Before(exp.Time) {
		return "", fmt.Errorf("%w: user token expired", ErrUnauthorized)
	}
	subject, _ := claims.GetSubject()
	if subject == "" {
		if uid, ok := claims["user_id"].(string); ok {
			subject = uid
		}
	}
	return subject, nil
}
