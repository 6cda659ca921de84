package mysql

import (
	"context"
	"database/sql"
	"errors"
	"net"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/koustreak/dbguard/internal/database"
	"github.com/koustreak/dbguard/internal/errs"
)

// MySQL error numbers
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errDBAccessDenied    = 1044
	errAccessDenied      = 1045
	errNoDB              = 1046
	errUnknownDatabase   = 1049
	errTooManyConns      = 1040
	errUserConnLimit     = 1203
	errUnknownThread     = 1094
	errQueryInterrupted  = 1317
	errStatementTimeout  = 3024
	errSpecificAccess    = 1227
	errTableAccessDenied = 1142
)

// Classify maps a driver error to an errs.ErrKind for logging and HTTP
// status selection. It never alters the error itself.
func Classify(err error) errs.ErrKind {
	if err == nil {
		return errs.ErrKindUnknown
	}

	if _, ok := database.AsTimeout(err); ok {
		return errs.ErrKindTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.ErrKindTimeout
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errs.ErrKindNotFound
	}

	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return classifyMySQLCode(mysqlErr.Number)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, gomysql.ErrInvalidConn) || errors.Is(err, sql.ErrConnDone) {
		return errs.ErrKindConnectionFailed
	}

	return errs.ErrKindUnknown
}

// classifyMySQLCode maps MySQL error numbers to ErrKind.
func classifyMySQLCode(code uint16) errs.ErrKind {
	switch code {
	case errDBAccessDenied, errAccessDenied, errSpecificAccess, errTableAccessDenied:
		return errs.ErrKindPermissionDenied
	case errNoDB, errUnknownDatabase, errTooManyConns, errUserConnLimit:
		return errs.ErrKindConnectionFailed
	case errQueryInterrupted, errStatementTimeout:
		return errs.ErrKindTimeout
	case errUnknownThread:
		return errs.ErrKindNotFound
	default:
		return errs.ErrKindQueryFailed
	}
}
