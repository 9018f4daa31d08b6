package attempt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"liveness/internal/liveness/models"
	"liveness/pkg/platform/sentinel"
	txcontext "liveness/pkg/platform/tx"
)

// Schema creates the attempts table. Applied by EnsureSchema at startup.
const Schema = `
CREATE TABLE IF NOT EXISTS liveness_attempts (
	id             TEXT PRIMARY KEY,
	flow_id        TEXT NOT NULL,
	owner          TEXT NOT NULL,
	epoch          BIGINT NOT NULL,
	session_id     TEXT UNIQUE,
	final_stage    TEXT NOT NULL,
	error_kind     TEXT NOT NULL DEFAULT '',
	reason         TEXT NOT NULL DEFAULT '',
	document_bytes BIGINT NOT NULL DEFAULT 0,
	client_platform TEXT NOT NULL DEFAULT '',
	client_browser  TEXT NOT NULL DEFAULT '',
	client_mobile   BOOLEAN NOT NULL DEFAULT FALSE,
	started_at     TIMESTAMPTZ NOT NULL,
	finished_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS liveness_attempts_owner_idx ON liveness_attempts (owner, started_at DESC);
`

const uniqueViolation = "23505"

// PostgresStore persists attempt history in PostgreSQL. Calls join the
// transaction carried by ctx, if any.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		_, err := txcontext.Use(ctx, s.db).ExecContext(ctx, Schema)
		return err
	})
	if err != nil {
		return fmt.Errorf("ensure attempts schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, a *models.Attempt) error {
	if a == nil {
		return fmt.Errorf("save attempt: nil attempt")
	}
	query := `
		INSERT INTO liveness_attempts (
			id, flow_id, owner, epoch, session_id, final_stage, error_kind, reason,
			document_bytes, client_platform, client_browser, client_mobile, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	var sessionID sql.NullString
	if !a.SessionID.IsZero() {
		sessionID = sql.NullString{String: a.SessionID.String(), Valid: true}
	}
	_, err := txcontext.Use(ctx, s.db).ExecContext(ctx, query,
		a.ID, a.FlowID, a.Owner, int64(a.Epoch), sessionID,
		string(a.FinalStage), string(a.ErrorKind), string(a.Reason),
		a.DocumentBytes, a.Client.Platform, a.Client.Browser, a.Client.Mobile,
		a.StartedAt, a.FinishedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("save attempt for session %s: %w", a.SessionID, sentinel.ErrConflict)
		}
		return fmt.Errorf("save attempt: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, owner string) ([]*models.Attempt, error) {
	query := `
		SELECT id, flow_id, owner, epoch, session_id, final_stage, error_kind, reason,
			document_bytes, client_platform, client_browser, client_mobile, started_at, finished_at
		FROM liveness_attempts
		WHERE owner = $1
		ORDER BY started_at DESC
	`
	rows, err := txcontext.Use(ctx, s.db).QueryContext(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []*models.Attempt
	for rows.Next() {
		var (
			a         models.Attempt
			epoch     int64
			sessionID sql.NullString
			stage     string
			kind      string
			reason    string
		)
		if err := rows.Scan(
			&a.ID, &a.FlowID, &a.Owner, &epoch, &sessionID, &stage, &kind, &reason,
			&a.DocumentBytes, &a.Client.Platform, &a.Client.Browser, &a.Client.Mobile,
			&a.StartedAt, &a.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Epoch = uint64(epoch)
		a.SessionID = models.SessionID(sessionID.String)
		a.FinalStage = models.Stage(stage)
		a.ErrorKind = models.ErrorKind(kind)
		a.Reason = models.RejectionReason(reason)
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return out, nil
}
