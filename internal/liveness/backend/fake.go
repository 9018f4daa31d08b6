package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"liveness/internal/liveness/models"
	"liveness/pkg/platform/sentinel"
)

// DefaultCredentialTTL matches the lifetime of real temporary credentials.
const DefaultCredentialTTL = 900 * time.Second

// Fake is an in-memory backend. Sessions are only allocated for receipts it
// issued, and results default to success unless scripted.
type Fake struct {
	mu        sync.Mutex
	now       func() time.Time
	ttl       time.Duration
	receipts  map[string]int64
	sessions  map[models.SessionID]string
	results   map[models.SessionID]models.ResultRecord
	fallback  models.ResultRecord
	credCalls int
}

type FakeOption func(*Fake)

func WithFakeClock(now func() time.Time) FakeOption {
	return func(f *Fake) {
		f.now = now
	}
}

// WithDefaultResult sets the answer for sessions without a scripted result.
func WithDefaultResult(r models.ResultRecord) FakeOption {
	return func(f *Fake) {
		f.fallback = r
	}
}

func NewFake(opts ...FakeOption) *Fake {
	f := &Fake{
		now:      time.Now,
		ttl:      DefaultCredentialTTL,
		receipts: make(map[string]int64),
		sessions: make(map[models.SessionID]string),
		results:  make(map[models.SessionID]models.ResultRecord),
		fallback: models.ResultRecord{Status: string(models.VerdictSuccess)},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SetResult scripts the result for one session.
func (f *Fake) SetResult(id models.SessionID, r models.ResultRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[id] = r
}

func (f *Fake) UploadDocument(ctx context.Context, artifact *models.DocumentArtifact) (*models.UploadReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if artifact.IsEmpty() {
		return nil, models.ErrEmptyDocument
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.NewString()
	f.receipts[id] = artifact.SizeBytes()
	return &models.UploadReceipt{ID: id, UploadedAt: f.now()}, nil
}

func (f *Fake) AllocateLivenessSession(ctx context.Context, receipt *models.UploadReceipt) (models.SessionID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if receipt == nil {
		return "", fmt.Errorf("allocate session: missing receipt")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.receipts[receipt.ID]; !ok {
		return "", fmt.Errorf("allocate session for receipt %s: %w", receipt.ID, sentinel.ErrNotFound)
	}
	id := models.SessionID(uuid.NewString())
	f.sessions[id] = receipt.ID
	return id, nil
}

func (f *Fake) FetchTemporaryCredentials(ctx context.Context, userToken string) (*models.Credentials, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if userToken == "" {
		return nil, fmt.Errorf("temporary credentials: %w", sentinel.ErrUnauthorized)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credCalls++
	return &models.Credentials{
		AccessKeyID:  fmt.Sprintf("FAKEAKID%04d", f.credCalls),
		SecretKey:    uuid.NewString(),
		SessionToken: uuid.NewString(),
		Expiration:   f.now().Add(f.ttl),
	}, nil
}

func (f *Fake) FetchLivenessResult(ctx context.Context, sessionID models.SessionID) (*models.ResultRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("liveness result for %s: %w", sessionID, sentinel.ErrNotFound)
	}
	r, ok := f.results[sessionID]
	if !ok {
		r = f.fallback
	}
	return &r, nil
}
