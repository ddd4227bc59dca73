package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"verity/internal/platform/postgres"
	"verity/internal/webhook/models"
)

const attemptsTable = "webhook_attempts"

var attemptColumns = []string{
	"webhook_id", "attempt_number", "case_id", "client_id", "event_type", "url",
	"status_code", "error", "response_body", "delivered_at", "failed_at",
	"next_retry_at", "abandoned", "created_at",
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Querier is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock pools.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore persists attempts in PostgreSQL.
type PostgresStore struct {
	db Querier
}

func NewPostgres(db Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, a *models.Attempt) error {
	var statusCode *int
	if a.StatusCode != 0 {
		code := a.StatusCode
		statusCode = &code
	}
	query, args, err := psql.Insert(attemptsTable).Columns(attemptColumns...).Values(
		a.WebhookID, a.AttemptNumber, a.CaseID, a.ClientID, a.EventType, a.URL,
		statusCode, a.Error, a.ResponseBody, a.DeliveredAt, a.FailedAt,
		a.NextRetryAt, a.Abandoned, a.CreatedAt,
	).ToSql()
	if err != nil {
		return fmt.Errorf("build insert webhook attempt: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return postgres.MapError(err, "webhook attempt", fmt.Sprintf("%s/%d", a.WebhookID, a.AttemptNumber))
	}
	return nil
}

func (s *PostgresStore) ListByCase(ctx context.Context, caseID string) ([]models.Attempt, error) {
	query, args, err := psql.Select(attemptColumns...).
		From(attemptsTable).
		Where(sq.Eq{"case_id": caseID}).
		OrderBy("created_at", "attempt_number").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select webhook attempts: %w", err)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, postgres.MapError(err, "webhook attempts", caseID)
	}
	defer rows.Close()

	var out []models.Attempt
	for rows.Next() {
		var (
			a          models.Attempt
			statusCode *int
		)
		if err := rows.Scan(
			&a.WebhookID, &a.AttemptNumber, &a.CaseID, &a.ClientID, &a.EventType, &a.URL,
			&statusCode, &a.Error, &a.ResponseBody, &a.DeliveredAt, &a.FailedAt,
			&a.NextRetryAt, &a.Abandoned, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan webhook attempt: %w", err)
		}
		if statusCode != nil {
			a.StatusCode = *statusCode
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.MapError(err, "webhook attempts", caseID)
	}
	return out, nil
}
