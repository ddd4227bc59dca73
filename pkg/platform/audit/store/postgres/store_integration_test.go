//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	audit "verity/pkg/platform/audit"
	auditpostgres "verity/pkg/platform/audit/store/postgres"
	txcontext "verity/pkg/platform/tx"
	"verity/pkg/testutil/containers"
)

type StoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *auditpostgres.Store
	ctx      context.Context
}

func TestStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = auditpostgres.New(s.postgres.DB)
	s.ctx = context.Background()
}

func (s *StoreSuite) SetupTest() {
	s.postgres.Truncate(s.T(), "audit_events")
}

func (s *StoreSuite) TestAppendAndList() {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s.Require().NoError(s.store.Append(s.ctx, audit.Event{
		Timestamp:       base.Add(time.Minute),
		CaseID:          "case-1",
		ClientID:        "client-1",
		Action:          string(audit.EventCaseBulkApproved),
		Decision:        "approved",
		ActorID:         "reviewer-7",
		BulkOperationID: "01J0BULK",
		BatchSize:       3,
	}))
	s.Require().NoError(s.store.Append(s.ctx, audit.Event{
		Timestamp: base,
		CaseID:    "case-1",
		ClientID:  "client-1",
		Action:    string(audit.EventCaseCreated),
	}))

	events, err := s.store.ListByCase(s.ctx, "case-1")
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(string(audit.EventCaseCreated), events[0].Action)
	s.Equal(audit.CategoryOperations, events[0].Category)
	s.Equal(audit.CategoryCompliance, events[1].Category)
	s.Equal("01J0BULK", events[1].BulkOperationID)
	s.Equal(3, events[1].BatchSize)
	s.Equal("reviewer-7", events[1].ActorID)
}

func (s *StoreSuite) TestAppendJoinsCallerTransaction() {
	errRollback := errors.New("rollback")
	err := txcontext.Run(s.ctx, s.postgres.DB, func(ctx context.Context) error {
		if err := s.store.Append(ctx, audit.Event{
			Timestamp: time.Now().UTC(),
			CaseID:    "case-tx",
			Action:    string(audit.EventCaseApproved),
		}); err != nil {
			return err
		}
		return errRollback
	})
	s.Require().ErrorIs(err, errRollback)

	events, err := s.store.ListByCase(s.ctx, "case-tx")
	s.Require().NoError(err)
	s.Empty(events)
}
