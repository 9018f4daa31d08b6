package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/docker/go-units"
	"github.com/gabriel-vasile/mimetype"

	"liveness/internal/liveness/models"
)

// FileScanner reads one document from disk per Scan.
type FileScanner struct {
	path     string
	maxBytes int64
}

func NewFileScanner(path string, maxBytes int64) *FileScanner {
	return &FileScanner{path: path, maxBytes: maxBytes}
}

func (s *FileScanner) Scan(ctx context.Context) (*models.DocumentArtifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	r := io.Reader(f)
	if s.maxBytes > 0 {
		r = io.LimitReader(f, s.maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("document %s exceeds %s", s.path, units.HumanSize(float64(s.maxBytes)))
	}

	artifact, err := models.NewDocumentArtifact(data, mimetype.Detect(data).String())
	if errors.Is(err, models.ErrEmptyDocument) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return artifact, nil
}
