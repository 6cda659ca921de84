package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/koustreak/dbguard/internal/database"
	"github.com/koustreak/dbguard/internal/errs"
)

// PostgreSQL SQLSTATE error codes
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgErrInsufficientPrivilege = "42501"
	pgErrQueryCanceled         = "57014"
	pgErrAdminShutdown         = "57P01"
	pgErrTooManyConnections    = "53300"
)

// Classify maps a pgx error to an errs.ErrKind for logging and HTTP status
// selection. It never alters the error itself.
func Classify(err error) errs.ErrKind {
	if err == nil {
		return errs.ErrKindUnknown
	}

	if _, ok := database.AsTimeout(err); ok {
		return errs.ErrKindTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || pgconn.Timeout(err) {
		return errs.ErrKindTimeout
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.ErrKindNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifySQLState(pgErr.Code)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return errs.ErrKindConnectionFailed
	}

	return errs.ErrKindUnknown
}

func classifySQLState(code string) errs.ErrKind {
	switch {
	case code == pgErrInsufficientPrivilege:
		return errs.ErrKindPermissionDenied
	case code == pgErrQueryCanceled:
		return errs.ErrKindTimeout
	case code == pgErrAdminShutdown, code == pgErrTooManyConnections:
		return errs.ErrKindConnectionFailed
	case len(code) >= 2 && code[:2] == "08": // connection exception
		return errs.ErrKindConnectionFailed
	case len(code) >= 2 && code[:2] == "28": // invalid authorization
		return errs.ErrKindPermissionDenied
	default:
		return errs.ErrKindQueryFailed
	}
}
