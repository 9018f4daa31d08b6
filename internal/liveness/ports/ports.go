package ports

import (
	"context"
	"errors"

	"liveness/internal/liveness/models"
	"liveness/pkg/platform/audit"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks DocumentScanner,DocumentUploader,SessionAllocator,CredentialIssuer,ResultFetcher,SurfaceHost,AuditPublisher,AttemptRecorder

// ErrCaptureCancelled is returned by a scanner when the user dismissed the
// capture without producing a document.
var ErrCaptureCancelled = errors.New("capture cancelled")

// DocumentScanner acquires one identity document. Scan blocks until the user
// produces a document, cancels, or ctx is done.
type DocumentScanner interface {
	Scan(ctx context.Context) (*models.DocumentArtifact, error)
}

// DocumentUploader stores the captured document on the backend.
// Re-invoking creates a new server-side resource.
type DocumentUploader interface {
	UploadDocument(ctx context.Context, artifact *models.DocumentArtifact) (*models.UploadReceipt, error)
}

// SessionAllocator exchanges an upload receipt for a fresh liveness session.
type SessionAllocator interface {
	AllocateLivenessSession(ctx context.Context, receipt *models.UploadReceipt) (models.SessionID, error)
}

// CredentialIssuer issues short-lived credentials for the capture surface.
type CredentialIssuer interface {
	FetchTemporaryCredentials(ctx context.Context, userToken string) (*models.Credentials, error)
}

// ResultFetcher looks up the authoritative result of a finished session.
type ResultFetcher interface {
	FetchLivenessResult(ctx context.Context, sessionID models.SessionID) (*models.ResultRecord, error)
}

// Backend is the full set of remote calls a flow makes.
type Backend interface {
	DocumentUploader
	SessionAllocator
	CredentialIssuer
	ResultFetcher
}

// SurfaceHost is the active capture-surface host. Invoke hands the request
// across the boundary; the outcome only ever arrives through the event bridge.
// A nil return means the surface accepted the request, not that it finished.
type SurfaceHost interface {
	Invoke(ctx context.Context, req models.LaunchRequest) error
}

// AuditPublisher records audit events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// AttemptRecorder persists the history of finished attempts.
type AttemptRecorder interface {
	Save(ctx context.Context, attempt *models.Attempt) error
	ListByOwner(ctx context.Context, owner string) ([]*models.Attempt, error)
}
