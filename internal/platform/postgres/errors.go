package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"verity/pkg/platform/sentinel"
)

// PostgreSQL error codes the stores care about.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeTooManyConnections  = "53300"
	codeCannotConnectNow    = "57P03"
	codeQueryCanceled       = "57014"
	codeInternalError       = "XX000"
)

// MapError translates driver errors into sentinel facts. Both pgx and lib/pq
// errors are understood so every store shares one mapping.
func MapError(err error, entity, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", entity, id, sentinel.ErrNotFound)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return sentinel.Transient(sentinel.TransientTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	code := ""
	var pgErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgErr):
		code = pgErr.Code
	case errors.As(err, &pqErr):
		code = string(pqErr.Code)
	}

	switch code {
	case codeUniqueViolation:
		return fmt.Errorf("%s %s: %w", entity, id, sentinel.ErrConflict)
	case codeForeignKeyViolation:
		return fmt.Errorf("%s %s: %w", entity, id, sentinel.ErrNotFound)
	case codeTooManyConnections:
		return sentinel.Transient(sentinel.TransientThrottling, err)
	case codeCannotConnectNow:
		return sentinel.Transient(sentinel.TransientServiceUnavailable, err)
	case codeQueryCanceled:
		return sentinel.Transient(sentinel.TransientTimeout, err)
	case codeInternalError:
		return sentinel.Transient(sentinel.TransientInternalError, err)
	}
	return err
}
