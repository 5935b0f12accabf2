package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/lib/pq"
)

// SQLSTATE codes the repositories care about.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeTooManyConnections   = "53300"
	codeAdminShutdown        = "57P01"
	codeQueryCanceled        = "57014"
	classConnectionException = "08"
)

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeUniqueViolation
}

// ConstraintName returns the violated constraint, if the driver reported one.
func ConstraintName(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint
	}
	return ""
}

// IsRetryable reports whether err is a transient infrastructure failure:
// lost connections, pool or server exhaustion, lock contention, or an
// aborted context. Such failures never indicate a business rule outcome.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable,
			codeTooManyConnections, codeAdminShutdown, codeQueryCanceled:
			return true
		}
		return pqErr.Code.Class() == classConnectionException
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
