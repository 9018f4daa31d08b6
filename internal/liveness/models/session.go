package models

import (
	"log/slog"
	"time"
)

// SessionID identifies one liveness attempt on the backend. It is opaque and
// never reused.
type SessionID string

func (s SessionID) String() string { return string(s) }

func (s SessionID) IsZero() bool { return s == "" }

// UploadReceipt is the backend's acknowledgement of a document upload.
type UploadReceipt struct {
	ID         string
	UploadedAt time.Time
}

// Credentials are short-lived access keys scoped to one capture invocation.
// They are never persisted and never logged in clear.
type Credentials struct {
	AccessKeyID  string
	SecretKey    string
	SessionToken string
	Expiration   time.Time
}

// Complete reports whether every field the capture surface needs is present.
func (c *Credentials) Complete() bool {
	return c != nil &&
		c.AccessKeyID != "" &&
		c.SecretKey != "" &&
		c.SessionToken != "" &&
		!c.Expiration.IsZero()
}

// Expired reports whether the credentials can no longer be used at now.
func (c *Credentials) Expired(now time.Time) bool {
	return c == nil || !now.Before(c.Expiration)
}

// LogValue keeps secrets out of structured logs.
func (c *Credentials) LogValue() slog.Value {
	if c == nil {
		return slog.StringValue("<nil>")
	}
	return slog.GroupValue(
		slog.String("access_key_id", mask(c.AccessKeyID)),
		slog.Time("expiration", c.Expiration),
	)
}

func mask(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}

// UIOptions are passed through to the capture surface.
type UIOptions struct {
	DisableStartView bool   `json:"disable_start_view"`
	ColorScheme      string `json:"color_scheme,omitempty"`
}

// LaunchRequest is everything the capture surface receives at the boundary.
type LaunchRequest struct {
	SessionID   SessionID
	Credentials Credentials
	Region      string
	UIOptions   UIOptions
}
