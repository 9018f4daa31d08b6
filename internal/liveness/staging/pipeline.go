// Package staging turns a captured document into a liveness session: one
// upload, then one session allocation.
package staging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/docker/go-units"

	"liveness/internal/liveness/models"
	"liveness/internal/liveness/ports"
	pstrings "liveness/pkg/platform/strings"
)

var (
	ErrUploadFailed     = errors.New("document upload failed")
	ErrAllocationFailed = errors.New("liveness session allocation failed")

	// ErrInFlight is returned when the same artifact or receipt is already
	// being processed. Both steps create server-side resources, so they are
	// never re-entered.
	ErrInFlight = errors.New("staging step already in flight")
)

const DefaultMaxDocumentBytes int64 = 10 * 1024 * 1024

var DefaultAllowedMIMETypes = []string{"image/jpeg", "image/png"}

type Pipeline struct {
	uploader  ports.DocumentUploader
	allocator ports.SessionAllocator
	maxBytes  int64
	allowed   map[string]struct{}
	logger    *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

type Option func(*Pipeline)

func WithMaxDocumentBytes(n int64) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxBytes = n
		}
	}
}

// WithAllowedMIMETypes replaces the accepted document types. An empty list
// accepts any type.
func WithAllowedMIMETypes(types []string) Option {
	return func(p *Pipeline) {
		folded := pstrings.FoldList(types)
		p.allowed = make(map[string]struct{}, len(folded))
		for _, t := range folded {
			p.allowed[t] = struct{}{}
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

func New(uploader ports.DocumentUploader, allocator ports.SessionAllocator, opts ...Option) *Pipeline {
	p := &Pipeline{
		uploader:  uploader,
		allocator: allocator,
		maxBytes:  DefaultMaxDocumentBytes,
		logger:    slog.Default(),
		inflight:  make(map[string]struct{}),
	}
	WithAllowedMIMETypes(DefaultAllowedMIMETypes)(p)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Validate checks the artifact against the size and type limits.
func (p *Pipeline) Validate(artifact *models.DocumentArtifact) error {
	if artifact.IsEmpty() {
		return models.ErrEmptyDocument
	}
	if artifact.SizeBytes() > p.maxBytes {
		return fmt.Errorf("document is %s, limit is %s",
			units.HumanSize(float64(artifact.SizeBytes())),
			units.HumanSize(float64(p.maxBytes)))
	}
	if len(p.allowed) > 0 {
		if _, ok := p.allowed[artifact.MimeType()]; !ok {
			return fmt.Errorf("document type %s is not accepted", artifact.MimeType())
		}
	}
	return nil
}

// Upload validates and uploads the artifact. Every error wraps ErrUploadFailed.
func (p *Pipeline) Upload(ctx context.Context, artifact *models.DocumentArtifact) (*models.UploadReceipt, error) {
	if err := p.Validate(artifact); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	key := fmt.Sprintf("artifact:%p", artifact)
	release, err := p.acquire(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer release()

	receipt, err := p.uploader.UploadDocument(ctx, artifact)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if receipt == nil {
		return nil, fmt.Errorf("%w: empty receipt", ErrUploadFailed)
	}

	p.logger.InfoContext(ctx, "document uploaded",
		"receipt_id", receipt.ID,
		"mime_type", artifact.MimeType(),
		"size", units.HumanSize(float64(artifact.SizeBytes())),
	)
	return receipt, nil
}

// Allocate exchanges the receipt for a fresh session id. Every error wraps
// ErrAllocationFailed.
func (p *Pipeline) Allocate(ctx context.Context, receipt *models.UploadReceipt) (models.SessionID, error) {
	if receipt == nil {
		return "", fmt.Errorf("%w: missing receipt", ErrAllocationFailed)
	}

	release, err := p.acquire("receipt:" + receipt.ID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAllocationFailed, err)
	}
	defer release()

	sessionID, err := p.allocator.AllocateLivenessSession(ctx, receipt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAllocationFailed, err)
	}
	if sessionID.IsZero() {
		return "", fmt.Errorf("%w: backend returned an empty session id", ErrAllocationFailed)
	}

	p.logger.InfoContext(ctx, "liveness session allocated",
		"receipt_id", receipt.ID,
		"session_id", sessionID.String(),
	)
	return sessionID, nil
}

func (p *Pipeline) acquire(key string) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inflight[key]; busy {
		return nil, ErrInFlight
	}
	p.inflight[key] = struct{}{}
	return func() {
		p.mu.Lock()
		delete(p.inflight, key)
		p.mu.Unlock()
	}, nil
}
