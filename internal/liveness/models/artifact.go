package models

import (
	"errors"
	"strings"
)

// ErrEmptyDocument is returned when a capture produced no bytes.
var ErrEmptyDocument = errors.New("document artifact is empty")

// DocumentArtifact is one captured identity document. It is created by the
// scanner, consumed exactly once by the upload, and never mutated.
type DocumentArtifact struct {
	bytes     []byte
	mimeType  string
	sizeBytes int64
}

// NewDocumentArtifact copies data so later mutation by the caller cannot leak
// into the upload.
func NewDocumentArtifact(data []byte, mimeType string) (*DocumentArtifact, error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return &DocumentArtifact{
		bytes:     buf,
		mimeType:  normalizeMIME(mimeType),
		sizeBytes: int64(len(buf)),
	}, nil
}

// Bytes returns a copy of the document contents.
func (a *DocumentArtifact) Bytes() []byte {
	if a == nil {
		return nil
	}
	out := make([]byte, len(a.bytes))
	copy(out, a.bytes)
	return out
}

func (a *DocumentArtifact) MimeType() string {
	if a == nil {
		return ""
	}
	return a.mimeType
}

func (a *DocumentArtifact) SizeBytes() int64 {
	if a == nil {
		return 0
	}
	return a.sizeBytes
}

// IsEmpty reports whether the artifact carries no document.
func (a *DocumentArtifact) IsEmpty() bool {
	return a == nil || a.sizeBytes == 0
}

func normalizeMIME(m string) string {
	m = strings.ToLower(strings.TrimSpace(m))
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = strings.TrimSpace(m[:i])
	}
	if m == "" {
		return "application/octet-stream"
	}
	return m
}
