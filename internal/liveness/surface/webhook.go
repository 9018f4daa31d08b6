package surface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"liveness/internal/liveness/models"
)

// SecretHeader carries the shared secret on launch intents.
const SecretHeader = "X-Surface-Secret"

type launchIntent struct {
	SessionID    string           `json:"session_id"`
	AccessKeyID  string           `json:"access_key_id"`
	SecretKey    string           `json:"secret_key"`
	SessionToken string           `json:"session_token"`
	Expiration   string           `json:"expiration"`
	Region       string           `json:"region"`
	UIOptions    models.UIOptions `json:"ui_options"`
}

// Webhook forwards launch intents to a device relay, which starts the
// capture surface on the user's device. The outcome comes back through one
// of the event relays.
type Webhook struct {
	url    string
	secret string
	client *http.Client
	logger *slog.Logger
}

func NewWebhook(url, secret string, client *http.Client, logger *slog.Logger) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{url: url, secret: secret, client: client, logger: logger}
}

func (w *Webhook) Invoke(ctx context.Context, req models.LaunchRequest) error {
	body, err := json.Marshal(launchIntent{
		SessionID:    req.SessionID.String(),
		AccessKeyID:  req.Credentials.AccessKeyID,
		SecretKey:    req.Credentials.SecretKey,
		SessionToken: req.Credentials.SessionToken,
		Expiration:   req.Credentials.Expiration.UTC().Format(time.RFC3339),
		Region:       req.Region,
		UIOptions:    req.UIOptions,
	})
	if err != nil {
		return fmt.Errorf("encode launch intent: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build launch request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if w.secret != "" {
		httpReq.Header.Set(SecretHeader, w.secret)
	}

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("deliver launch intent: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("device relay answered %d", resp.StatusCode)
	}
	w.logger.DebugContext(ctx, "launch intent delivered",
		"session_id", req.SessionID.String(),
		"status", resp.StatusCode,
	)
	return nil
}
