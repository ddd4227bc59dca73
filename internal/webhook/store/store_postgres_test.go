package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verity/internal/webhook/models"
	"verity/pkg/platform/sentinel"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestPostgresStore_Append(t *testing.T) {
	now := time.Now().UTC()
	a := &models.Attempt{
		WebhookID: "01JNV7Q4", AttemptNumber: 1, CaseID: "8f14e45f-ceea-467f-a0e6-1c1f3b2d3e4f",
		ClientID: "client-1", EventType: "verification.approved", URL: "https://hooks.example.com",
		StatusCode: 200, DeliveredAt: &now, CreatedAt: now,
	}

	t.Run("inserts", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`INSERT INTO webhook_attempts`).
			WithArgs(a.WebhookID, 1, a.CaseID, a.ClientID, a.EventType, a.URL,
				pgxmock.AnyArg(), "", "", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), false, now).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, NewPostgres(mock).Append(context.Background(), a))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate attempt maps to conflict", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`INSERT INTO webhook_attempts`).
			WillReturnError(&pgconn.PgError{Code: "23505"})

		err := NewPostgres(mock).Append(context.Background(), a)
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})
}

func TestPostgresStore_ListByCase(t *testing.T) {
	now := time.Now().UTC()
	next := now.Add(time.Second)
	mock := newMock(t)
	rows := pgxmock.NewRows(attemptColumns).
		AddRow("wh-1", 1, "case-1", "client-1", "verification.approved", "https://hooks.example.com",
			ptr(503), "", "unavailable", (*time.Time)(nil), &now, &next, false, now).
		AddRow("wh-1", 2, "case-1", "client-1", "verification.approved", "https://hooks.example.com",
			(*int)(nil), "context deadline exceeded", "", (*time.Time)(nil), &next, (*time.Time)(nil), true, next)
	mock.ExpectQuery(`SELECT .* FROM webhook_attempts WHERE case_id = \$1 ORDER BY created_at, attempt_number`).
		WithArgs("case-1").
		WillReturnRows(rows)

	got, err := NewPostgres(mock).ListByCase(context.Background(), "case-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 503, got[0].StatusCode)
	assert.Equal(t, 0, got[1].StatusCode)
	assert.True(t, got[1].Abandoned)
	require.NoError(t, mock.ExpectationsWereMet())
}

func ptr[T any](v T) *T { return &v }
