package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"verity/internal/cases/models"
	"verity/internal/platform/postgres"
	"verity/pkg/platform/sentinel"
)

const casesTable = "verification_cases"

var caseColumns = []string{
	"id", "client_id", "document_type", "status", "customer",
	"extracted_data", "field_confidence", "overall_confidence", "biometrics",
	"rejection_reason", "rejection_code", "redirect_url", "webhook_url", "metadata",
	"created_at", "updated_at", "submitted_at", "completed_at", "expires_at",
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Querier is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock pools.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists cases in PostgreSQL. Map-valued fields are stored
// as JSONB.
type PostgresStore struct {
	db Querier
}

// NewPostgres constructs a PostgreSQL-backed case store.
func NewPostgres(db Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, c *models.Case) error {
	values, err := caseValues(c)
	if err != nil {
		return err
	}
	query, args, err := psql.Insert(casesTable).Columns(caseColumns...).Values(values...).ToSql()
	if err != nil {
		return fmt.Errorf("build insert case: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return postgres.MapError(err, "case", c.ID)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.Case, error) {
	query, args, err := psql.Select(caseColumns...).From(casesTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select case: %w", err)
	}
	c, err := scanCase(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, postgres.MapError(err, "case", id)
	}
	return c, nil
}

// UpdateIfStatus rewrites the mutable columns when the row still carries
// expected. A zero-row update is resolved into not-found or invalid-state.
func (s *PostgresStore) UpdateIfStatus(ctx context.Context, c *models.Case, expected models.Status) error {
	extracted, confidence, biometrics, err := encodeResults(c)
	if err != nil {
		return err
	}
	query, args, err := psql.Update(casesTable).
		Set("status", string(c.Status)).
		Set("extracted_data", extracted).
		Set("field_confidence", confidence).
		Set("overall_confidence", c.OverallConfidence).
		Set("biometrics", biometrics).
		Set("rejection_reason", c.RejectionReason).
		Set("rejection_code", c.RejectionCode).
		Set("updated_at", c.UpdatedAt).
		Set("submitted_at", c.SubmittedAt).
		Set("completed_at", c.CompletedAt).
		Where(sq.Eq{"id": c.ID, "status": string(expected)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update case: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return postgres.MapError(err, "case", c.ID)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current string
	err = s.db.QueryRow(ctx, "SELECT status FROM "+casesTable+" WHERE id = $1", c.ID).Scan(&current)
	if err != nil {
		return postgres.MapError(err, "case", c.ID)
	}
	return fmt.Errorf("case %s is %s, expected %s: %w", c.ID, current, expected, sentinel.ErrInvalidState)
}

func (s *PostgresStore) ListExpirable(ctx context.Context, now time.Time, limit int) ([]*models.Case, error) {
	builder := psql.Select(caseColumns...).From(casesTable).
		Where(sq.Eq{"completed_at": nil}).
		Where(sq.LtOrEq{"expires_at": now}).
		OrderBy("expires_at ASC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list expirable: %w", err)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, postgres.MapError(err, "case", "expirable")
	}
	defer rows.Close()

	var out []*models.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.MapError(err, "case", "expirable")
	}
	return out, nil
}

func caseValues(c *models.Case) ([]any, error) {
	customer, err := json.Marshal(c.Customer)
	if err != nil {
		return nil, fmt.Errorf("encode customer: %w", err)
	}
	metadata, err := json.Marshal(nonNilStrings(c.Metadata))
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	extracted, confidence, biometrics, err := encodeResults(c)
	if err != nil {
		return nil, err
	}
	return []any{
		c.ID, c.ClientID, string(c.DocumentType), string(c.Status), customer,
		extracted, confidence, c.OverallConfidence, biometrics,
		c.RejectionReason, c.RejectionCode, c.RedirectURL, c.WebhookURL, metadata,
		c.CreatedAt, c.UpdatedAt, c.SubmittedAt, c.CompletedAt, c.ExpiresAt,
	}, nil
}

func encodeResults(c *models.Case) (extracted, confidence, biometrics []byte, err error) {
	if extracted, err = json.Marshal(nonNilStrings(c.ExtractedData)); err != nil {
		return nil, nil, nil, fmt.Errorf("encode extracted data: %w", err)
	}
	fc := c.FieldConfidence
	if fc == nil {
		fc = map[string]float64{}
	}
	if confidence, err = json.Marshal(fc); err != nil {
		return nil, nil, nil, fmt.Errorf("encode field confidence: %w", err)
	}
	if c.Biometrics != nil {
		if biometrics, err = json.Marshal(c.Biometrics); err != nil {
			return nil, nil, nil, fmt.Errorf("encode biometrics: %w", err)
		}
	}
	return extracted, confidence, biometrics, nil
}

func nonNilStrings(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func scanCase(row pgx.Row) (*models.Case, error) {
	var (
		c                                                         models.Case
		documentType, status                                      string
		customer, extracted, confidence, biometrics, metadataJSON []byte
	)
	err := row.Scan(
		&c.ID, &c.ClientID, &documentType, &status, &customer,
		&extracted, &confidence, &c.OverallConfidence, &biometrics,
		&c.RejectionReason, &c.RejectionCode, &c.RedirectURL, &c.WebhookURL, &metadataJSON,
		&c.CreatedAt, &c.UpdatedAt, &c.SubmittedAt, &c.CompletedAt, &c.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	c.DocumentType = models.DocumentType(documentType)
	c.Status = models.Status(status)

	if err := decodeJSON(customer, &c.Customer); err != nil {
		return nil, fmt.Errorf("decode customer: %w", err)
	}
	if err := decodeJSON(extracted, &c.ExtractedData); err != nil {
		return nil, fmt.Errorf("decode extracted data: %w", err)
	}
	if err := decodeJSON(confidence, &c.FieldConfidence); err != nil {
		return nil, fmt.Errorf("decode field confidence: %w", err)
	}
	if err := decodeJSON(biometrics, &c.Biometrics); err != nil {
		return nil, fmt.Errorf("decode biometrics: %w", err)
	}
	if err := decodeJSON(metadataJSON, &c.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &c, nil
}

func decodeJSON(data []byte, dst any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}
