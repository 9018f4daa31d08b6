package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	audit "liveness/pkg/platform/audit"
	txcontext "liveness/pkg/platform/tx"
)

// Schema creates the audit table. Applied by EnsureSchema at startup.
const Schema = `
CREATE TABLE IF NOT EXISTS liveness_audit_events (
	id          UUID PRIMARY KEY,
	category    TEXT NOT NULL,
	action      TEXT NOT NULL,
	user_id     TEXT NOT NULL,
	flow_id     TEXT NOT NULL DEFAULT '',
	session_id  TEXT NOT NULL DEFAULT '',
	stage       TEXT NOT NULL DEFAULT '',
	error_kind  TEXT NOT NULL DEFAULT '',
	reason      TEXT NOT NULL DEFAULT '',
	request_id  TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS liveness_audit_events_user_idx ON liveness_audit_events (user_id, occurred_at);
`

// Store implements audit.Store on PostgreSQL. Appends join the transaction
// carried by ctx, if any.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		_, err := txcontext.Use(ctx, s.db).ExecContext(ctx, Schema)
		return err
	})
	if err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

// Append writes one event. The category is always derived from the action.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO liveness_audit_events (
			id, category, action, user_id, flow_id, session_id, stage, error_kind, reason, request_id, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	category := audit.AuditEvent(event.Action).Category()
	_, err := txcontext.Use(ctx, s.db).ExecContext(ctx, query,
		uuid.New(), string(category), event.Action, event.UserID,
		event.FlowID, event.SessionID, event.Stage, event.ErrorKind, event.Reason, event.RequestID,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// ListByUser returns the user's events, oldest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]audit.Event, error) {
	query := `
		SELECT category, action, user_id, flow_id, session_id, stage, error_kind, reason, request_id, occurred_at
		FROM liveness_audit_events
		WHERE user_id = $1
		ORDER BY occurred_at ASC, id ASC
	`
	rows, err := txcontext.Use(ctx, s.db).QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			e        audit.Event
			category string
		)
		if err := rows.Scan(&category, &e.Action, &e.UserID, &e.FlowID, &e.SessionID,
			&e.Stage, &e.ErrorKind, &e.Reason, &e.RequestID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = audit.EventCategory(category)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return out, nil
}
