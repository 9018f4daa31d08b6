// Package capture provides document scanners. Inbox is fed by the HTTP layer
// while a scan is pending; FileScanner reads a document from disk.
package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/gabriel-vasile/mimetype"

	"liveness/internal/liveness/models"
	"liveness/internal/liveness/ports"
)

var (
	// ErrNoPendingScan is returned when a document arrives while nothing is
	// waiting for one.
	ErrNoPendingScan = errors.New("no capture is waiting for a document")

	ErrScanInProgress = errors.New("a capture is already waiting for a document")
)

type delivery struct {
	artifact *models.DocumentArtifact
	err      error
}

// Inbox is a DocumentScanner whose Scan waits for Deliver or Cancel. A
// document delivered while no Scan is pending is refused, so nothing leaks
// into a later capture.
type Inbox struct {
	logger *slog.Logger

	mu      sync.Mutex
	waiting chan delivery
}

func NewInbox(logger *slog.Logger) *Inbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inbox{logger: logger}
}

func (i *Inbox) Scan(ctx context.Context) (*models.DocumentArtifact, error) {
	ch := make(chan delivery, 1)
	i.mu.Lock()
	if i.waiting != nil {
		i.mu.Unlock()
		return nil, ErrScanInProgress
	}
	i.waiting = ch
	i.mu.Unlock()

	defer func() {
		i.mu.Lock()
		if i.waiting == ch {
			i.waiting = nil
		}
		i.mu.Unlock()
	}()

	select {
	case d := <-ch:
		return d.artifact, d.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Deliver hands data to the pending scan. The media type is sniffed from the
// bytes; an empty document reaches the scan as ErrEmptyDocument.
func (i *Inbox) Deliver(data []byte) error {
	if len(data) == 0 {
		return i.send(delivery{err: models.ErrEmptyDocument})
	}
	mime := mimetype.Detect(data)
	artifact, err := models.NewDocumentArtifact(data, mime.String())
	if err != nil {
		return i.send(delivery{err: err})
	}
	i.logger.Debug("document delivered", "mime_type", artifact.MimeType(), "size_bytes", artifact.SizeBytes())
	return i.send(delivery{artifact: artifact})
}

// Cancel ends the pending scan as if the user dismissed the scanner.
func (i *Inbox) Cancel() error {
	return i.send(delivery{err: ports.ErrCaptureCancelled})
}

// Pending reports whether a scan is waiting.
func (i *Inbox) Pending() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.waiting != nil
}

func (i *Inbox) send(d delivery) error {
	i.mu.Lock()
	ch := i.waiting
	i.waiting = nil
	i.mu.Unlock()
	if ch == nil {
		return ErrNoPendingScan
	}
	ch <- d
	return nil
}
