// Package poller fetches and classifies the authoritative verdict of a
// finished liveness session.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"liveness/internal/liveness/models"
	"liveness/internal/liveness/ports"
)

var ErrLookupFailed = errors.New("liveness result lookup failed")

// reasonCodes maps backend status reasons to rejection categories. Anything
// else is unknown.
var reasonCodes = map[string]models.RejectionReason{
	"no_liveness_detected": models.ReasonNoLivenessDetected,
	"no_faces_equals":      models.ReasonFaceMismatch,
	"face_mismatch":        models.ReasonFaceMismatch,
}

type Poller struct {
	fetcher ports.ResultFetcher
	logger  *slog.Logger
}

func New(fetcher ports.ResultFetcher, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{fetcher: fetcher, logger: logger}
}

// Fetch makes one lookup for sessionID and classifies the answer.
func (p *Poller) Fetch(ctx context.Context, sessionID models.SessionID) (*models.VerificationVerdict, error) {
	if sessionID.IsZero() {
		return nil, fmt.Errorf("%w: missing session id", ErrLookupFailed)
	}
	record, err := p.fetcher.FetchLivenessResult(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	if record == nil {
		return nil, fmt.Errorf("%w: empty result", ErrLookupFailed)
	}

	verdict := Classify(*record)
	p.logger.InfoContext(ctx, "liveness verdict classified",
		"session_id", sessionID.String(),
		"status", string(verdict.Status),
		"reason", string(verdict.Reason),
		"raw_reason", verdict.RawReason,
	)
	return verdict, nil
}

// Classify maps a raw result to a verdict. Only an explicit success status is
// success; a failure never carries ReasonNone.
func Classify(record models.ResultRecord) *models.VerificationVerdict {
	raw := strings.TrimSpace(record.StatusReason)
	if strings.EqualFold(strings.TrimSpace(record.Status), string(models.VerdictSuccess)) {
		return &models.VerificationVerdict{Status: models.VerdictSuccess, RawReason: raw}
	}
	reason, ok := reasonCodes[strings.ToLower(raw)]
	if !ok {
		reason = models.ReasonUnknown
	}
	return &models.VerificationVerdict{
		Status:    models.VerdictFailure,
		Reason:    reason,
		RawReason: raw,
	}
}
