//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	audit "liveness/pkg/platform/audit"
	"liveness/pkg/platform/audit/store/postgres"
	txcontext "liveness/pkg/platform/tx"
	"liveness/pkg/testutil/containers"
)

type AuditStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
}

func TestAuditStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(AuditStoreSuite))
}

func (s *AuditStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = postgres.New(s.postgres.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
	s.Require().NoError(s.store.EnsureSchema(context.Background()), "schema is idempotent")
}

func (s *AuditStoreSuite) SetupTest() {
	_, err := s.postgres.DB.ExecContext(context.Background(), `TRUNCATE liveness_audit_events`)
	s.Require().NoError(err)
}

func (s *AuditStoreSuite) TestAppendAndList() {
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Millisecond)

	s.Require().NoError(s.store.Append(ctx, audit.Event{
		UserID: "u1", FlowID: "f1", Action: string(audit.EventCaptureStarted),
		Stage: "capturing", Timestamp: at,
	}))
	s.Require().NoError(s.store.Append(ctx, audit.Event{
		UserID: "u1", FlowID: "f1", SessionID: "s1", Action: string(audit.EventVerdictIssued),
		Stage: "succeeded", Timestamp: at.Add(time.Second),
	}))
	s.Require().NoError(s.store.Append(ctx, audit.Event{UserID: "u2", Action: string(audit.EventFlowReset), Timestamp: at}))

	events, err := s.store.ListByUser(ctx, "u1")
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(string(audit.EventCaptureStarted), events[0].Action)
	s.Equal(audit.CategoryOperations, events[0].Category)
	s.Equal(audit.CategoryCompliance, events[1].Category)
	s.Equal("s1", events[1].SessionID)
	s.True(at.Add(time.Second).Equal(events[1].Timestamp))
}

func (s *AuditStoreSuite) TestAppendJoinsTransaction() {
	ctx := context.Background()
	rollback := errors.New("rollback")

	err := txcontext.Run(ctx, s.postgres.DB, func(ctx context.Context) error {
		s.Require().NoError(s.store.Append(ctx, audit.Event{
			UserID: "u1", Action: string(audit.EventFlowFailed), Timestamp: time.Now(),
		}))
		return rollback
	})
	s.ErrorIs(err, rollback)

	events, err := s.store.ListByUser(ctx, "u1")
	s.Require().NoError(err)
	s.Empty(events)
}
