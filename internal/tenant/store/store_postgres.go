package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"verity/internal/platform/postgres"
	"verity/internal/tenant/models"
	"verity/pkg/platform/sentinel"
	"verity/pkg/platform/tx"
)

// PostgresStore persists clients through database/sql (lib/pq).
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed client store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) conn(ctx context.Context) execer {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

// Register writes the client, its webhook config and permissions in one
// transaction.
func (s *PostgresStore) Register(ctx context.Context, c *models.Client, cfg *models.WebhookConfig, permissions []string) error {
	return tx.Run(ctx, s.db, func(ctx context.Context) error {
		q := s.conn(ctx)
		_, err := q.ExecContext(ctx, `
			INSERT INTO clients (id, name, api_key_id, api_key_hash, active, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, c.ID, c.Name, c.APIKeyID, c.APIKeyHash, c.Active, c.CreatedAt)
		if err != nil {
			return postgres.MapError(err, "client", c.ID)
		}
		if cfg != nil {
			if err := upsertWebhook(ctx, q, c.ID, cfg); err != nil {
				return err
			}
		}
		if len(permissions) > 0 {
			_, err = q.ExecContext(ctx, `
				INSERT INTO client_permissions (client_id, permission)
				SELECT $1, unnest($2::text[])
				ON CONFLICT DO NOTHING
			`, c.ID, pq.Array(permissions))
			if err != nil {
				return postgres.MapError(err, "client permissions", c.ID)
			}
		}
		return nil
	})
}

func upsertWebhook(ctx context.Context, q execer, clientID string, cfg *models.WebhookConfig) error {
	events := cfg.Events
	if events == nil {
		events = []string{}
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO client_webhook_configs (client_id, url, secret, enabled, events)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (client_id) DO UPDATE SET
			url = EXCLUDED.url,
			secret = EXCLUDED.secret,
			enabled = EXCLUDED.enabled,
			events = EXCLUDED.events
	`, clientID, cfg.URL, cfg.Secret, cfg.Enabled, pq.Array(events))
	if err != nil {
		return postgres.MapError(err, "client webhook", clientID)
	}
	return nil
}

func (s *PostgresStore) FindByAPIKeyID(ctx context.Context, keyID string) (*models.Client, error) {
	var c models.Client
	err := s.conn(ctx).QueryRowContext(ctx, `
		SELECT id, name, api_key_id, api_key_hash, active, created_at
		FROM clients WHERE api_key_id = $1
	`, keyID).Scan(&c.ID, &c.Name, &c.APIKeyID, &c.APIKeyHash, &c.Active, &c.CreatedAt)
	if err != nil {
		return nil, postgres.MapError(err, "api key", keyID)
	}
	return &c, nil
}

// WebhookConfig returns an empty (disabled) config for a client that never
// configured one.
func (s *PostgresStore) WebhookConfig(ctx context.Context, clientID string) (*models.WebhookConfig, error) {
	var (
		cfg     models.WebhookConfig
		url     sql.NullString
		secret  sql.NullString
		enabled sql.NullBool
	)
	err := s.conn(ctx).QueryRowContext(ctx, `
		SELECT w.url, w.secret, w.enabled, COALESCE(w.events, '{}')
		FROM clients c
		LEFT JOIN client_webhook_configs w ON w.client_id = c.id
		WHERE c.id = $1
	`, clientID).Scan(&url, &secret, &enabled, pq.Array(&cfg.Events))
	if err != nil {
		return nil, postgres.MapError(err, "client", clientID)
	}
	cfg.URL = url.String
	cfg.Secret = secret.String
	cfg.Enabled = enabled.Bool
	return &cfg, nil
}

func (s *PostgresStore) UpdateWebhookConfig(ctx context.Context, clientID string, cfg *models.WebhookConfig) error {
	return upsertWebhook(ctx, s.conn(ctx), clientID, cfg)
}

func (s *PostgresStore) SetActive(ctx context.Context, clientID string, active bool) error {
	res, err := s.conn(ctx).ExecContext(ctx, `UPDATE clients SET active = $2 WHERE id = $1`, clientID, active)
	if err != nil {
		return postgres.MapError(err, "client", clientID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("client %s: %w", clientID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Permissions(ctx context.Context, clientID string) ([]string, error) {
	var exists bool
	if err := s.conn(ctx).QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM clients WHERE id = $1)`, clientID).Scan(&exists); err != nil {
		return nil, postgres.MapError(err, "client", clientID)
	}
	if !exists {
		return nil, fmt.Errorf("client %s: %w", clientID, sentinel.ErrNotFound)
	}

	rows, err := s.conn(ctx).QueryContext(ctx, `SELECT permission FROM client_permissions WHERE client_id = $1 ORDER BY permission`, clientID)
	if err != nil {
		return nil, postgres.MapError(err, "client permissions", clientID)
	}
	defer rows.Close()
	var perms []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}
