//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"verity/internal/cases/models"
	"verity/internal/cases/store"
	"verity/pkg/platform/sentinel"
	"verity/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = store.NewPostgres(s.postgres.Pool(s.T()))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.postgres.Truncate(s.T(), "verification_cases")
}

func (s *PostgresStoreSuite) newCase(status models.Status, expires time.Time) *models.Case {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Case{
		ID:           uuid.NewString(),
		ClientID:     "client-1",
		DocumentType: models.DocumentNationalID,
		Status:       status,
		Customer:     models.Customer{Name: "Kagiso Molefe"},
		Metadata:     map[string]string{"channel": "web"},
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    expires.UTC().Truncate(time.Microsecond),
	}
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	c := s.newCase(models.StatusProcessing, time.Now().Add(time.Hour))
	s.Require().NoError(s.store.Create(ctx, c))

	overall := 88.2
	next := c.Clone()
	next.ApplyStatus(models.StatusPendingReview, models.Update{
		ExtractedData:     map[string]string{"id_number": "123456789"},
		FieldConfidence:   map[string]float64{"id_number": 88.2},
		OverallConfidence: &overall,
		Biometrics:        &models.BiometricSummary{LivenessScore: 0.97, SimilarityScore: 0.91, Passed: true},
	}, time.Now().UTC())
	s.Require().NoError(s.store.UpdateIfStatus(ctx, next, models.StatusProcessing))

	got, err := s.store.FindByID(ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPendingReview, got.Status)
	s.Equal("123456789", got.ExtractedData["id_number"])
	s.InDelta(88.2, got.OverallConfidence, 0.001)
	s.Require().NotNil(got.Biometrics)
	s.True(got.Biometrics.Passed)
	s.Equal("web", got.Metadata["channel"])
	s.Nil(got.CompletedAt)
}

func (s *PostgresStoreSuite) TestConcurrentDecisionsSingleWinner() {
	ctx := context.Background()
	c := s.newCase(models.StatusPendingReview, time.Now().Add(time.Hour))
	s.Require().NoError(s.store.Create(ctx, c))

	const goroutines = 25
	var wg sync.WaitGroup
	var wins, conflicts atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := c.Clone()
			next.ApplyStatus(models.StatusApproved, models.Update{}, time.Now().UTC())
			err := s.store.UpdateIfStatus(ctx, next, models.StatusPendingReview)
			if err == nil {
				wins.Add(1)
			} else if errors.Is(err, sentinel.ErrInvalidState) {
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
}

func (s *PostgresStoreSuite) TestListExpirableSkipsCompleted() {
	ctx := context.Background()
	now := time.Now().UTC()
	open := s.newCase(models.StatusCreated, now.Add(-time.Hour))
	done := s.newCase(models.StatusPendingReview, now.Add(-time.Hour))
	s.Require().NoError(s.store.Create(ctx, open))
	s.Require().NoError(s.store.Create(ctx, done))

	approved := done.Clone()
	approved.ApplyStatus(models.StatusApproved, models.Update{}, now)
	s.Require().NoError(s.store.UpdateIfStatus(ctx, approved, models.StatusPendingReview))

	got, err := s.store.ListExpirable(ctx, now, 10)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(open.ID, got[0].ID)
}
