package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sentinel errors
// ─────────────────────────────────────────────────────────────────────────────

var (
	ErrNotFound            = errors.New("appointments/db: record not found")
	ErrDuplicateKey        = errors.New("appointments/db: duplicate key")
	ErrForeignKeyViolation = errors.New("appointments/db: foreign key violation")
	ErrDeadlock            = errors.New("appointments/db: deadlock detected")
	ErrTimeout             = errors.New("appointments/db: query timeout")
	ErrCheckViolation      = errors.New("appointments/db: check constraint violation")
	ErrNotNullViolation    = errors.New("appointments/db: not-null constraint violation")
	ErrConnectionFailed    = errors.New("appointments/db: connection failed")
)

func IsNotFound(err error) bool            { return errors.Is(err, ErrNotFound) }
func IsDuplicateKey(err error) bool        { return errors.Is(err, ErrDuplicateKey) }
func IsForeignKeyViolation(err error) bool { return errors.Is(err, ErrForeignKeyViolation) }
func IsDeadlock(err error) bool            { return errors.Is(err, ErrDeadlock) }
func IsTimeout(err error) bool             { return errors.Is(err, ErrTimeout) }
func IsCheckViolation(err error) bool      { return errors.Is(err, ErrCheckViolation) }
func IsConnectionFailed(err error) bool    { return errors.Is(err, ErrConnectionFailed) }

// IsTransient reports whether retrying the same operation may succeed.
func IsTransient(err error) bool {
	return IsDeadlock(err) || IsTimeout(err) || IsConnectionFailed(err)
}

// ─────────────────────────────────────────────────────────────────────────────
// DBError
// ─────────────────────────────────────────────────────────────────────────────

// DBError pairs a sentinel with the driver error it was derived from.
// errors.Is matches the sentinel; errors.As reaches the driver error
// (e.g. *pgconn.PgError) through Unwrap.
type DBError struct {
	Sentinel error
	Cause    error
	// Message is an optional hint, e.g. the violated constraint name.
	Message string
}

func (e *DBError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Sentinel, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (cause: %v)", e.Sentinel, e.Cause)
}

func (e *DBError) Is(target error) bool { return errors.Is(e.Sentinel, target) }
func (e *DBError) Unwrap() error        { return e.Cause }

// ─────────────────────────────────────────────────────────────────────────────
// ErrorMapper
// ─────────────────────────────────────────────────────────────────────────────

// ErrorMapper translates raw driver errors into the sentinels above.
// A mapper returns err unchanged when it does not recognise it.
type ErrorMapper interface {
	Map(err error) error
}

// ErrorMapperFunc adapts a plain function to ErrorMapper.
type ErrorMapperFunc func(error) error

func (f ErrorMapperFunc) Map(err error) error { return f(err) }

// DefaultErrorMapper understands database/sql, context, lib/pq, pgx, MySQL
// and SQLite errors.
func DefaultErrorMapper() ErrorMapper {
	return ErrorMapperFunc(func(err error) error {
		return mapWith(err, mapPQError, mapPgxError, mapMySQLError, mapSQLiteError)
	})
}

// mapWith handles the driver-independent cases, then tries each driver
// translator in turn.
func mapWith(err error, translators ...func(error) error) error {
	if err == nil {
		return nil
	}

	var dbe *DBError
	if errors.As(err, &dbe) {
		return err
	}

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return &DBError{Sentinel: ErrNotFound, Cause: err}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &DBError{Sentinel: ErrTimeout, Cause: err}
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return &DBError{Sentinel: ErrConnectionFailed, Cause: err}
	}

	for _, tr := range translators {
		if mapped := tr(err); mapped != nil {
			return mapped
		}
	}
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// PostgreSQL (lib/pq and pgx)
// ─────────────────────────────────────────────────────────────────────────────

func mapPQError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}
	return mapByPGCode(string(pqErr.Code), pqErr.Constraint, err)
}

func mapPgxError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapByPGCode(pgErr.Code, pgErr.ConstraintName, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return &DBError{Sentinel: ErrConnectionFailed, Cause: err}
	}
	return nil
}

// mapByPGCode maps PostgreSQL SQLSTATE codes (errcodes appendix).
func mapByPGCode(code, constraint string, cause error) error {
	var sentinel error
	switch {
	case code == "23505":
		sentinel = ErrDuplicateKey
	case code == "23503":
		sentinel = ErrForeignKeyViolation
	case code == "23514":
		sentinel = ErrCheckViolation
	case code == "23502":
		sentinel = ErrNotNullViolation
	case code == "40P01":
		sentinel = ErrDeadlock
	case code == "57014":
		sentinel = ErrTimeout
	case strings.HasPrefix(code, "08"):
		sentinel = ErrConnectionFailed
	default:
		return nil
	}
	return &DBError{Sentinel: sentinel, Cause: cause, Message: constraint}
}

// ─────────────────────────────────────────────────────────────────────────────
// MySQL
// ─────────────────────────────────────────────────────────────────────────────

func mapMySQLError(err error) error {
	if errors.Is(err, mysql.ErrInvalidConn) {
		return &DBError{Sentinel: ErrConnectionFailed, Cause: err}
	}
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return nil
	}
	var sentinel error
	switch me.Number {
	case 1062: // ER_DUP_ENTRY
		sentinel = ErrDuplicateKey
	case 1452, 1216, 1217:
		sentinel = ErrForeignKeyViolation
	case 3819: // ER_CHECK_CONSTRAINT_VIOLATED
		sentinel = ErrCheckViolation
	case 1048: // ER_BAD_NULL_ERROR
		sentinel = ErrNotNullViolation
	case 1213:
		sentinel = ErrDeadlock
	case 3024, 1205: // ER_QUERY_TIMEOUT, ER_LOCK_WAIT_TIMEOUT
		sentinel = ErrTimeout
	case 1045, 2002, 2003, 2006, 2013:
		sentinel = ErrConnectionFailed
	default:
		return nil
	}
	return &DBError{Sentinel: sentinel, Cause: err}
}

// ─────────────────────────────────────────────────────────────────────────────
// SQLite
// ─────────────────────────────────────────────────────────────────────────────

// mapSQLiteError matches on message text so that this package does not
// pull cgo into binaries that never open SQLite.
func mapSQLiteError(err error) error {
	s := err.Error()
	var sentinel error
	switch {
	case strings.Contains(s, "UNIQUE constraint failed"):
		sentinel = ErrDuplicateKey
	case strings.Contains(s, "FOREIGN KEY constraint failed"):
		sentinel = ErrForeignKeyViolation
	case strings.Contains(s, "CHECK constraint failed"):
		sentinel = ErrCheckViolation
	case strings.Contains(s, "NOT NULL constraint failed"):
		sentinel = ErrNotNullViolation
	case strings.Contains(s, "database is locked"):
		sentinel = ErrDeadlock
	default:
		return nil
	}
	return &DBError{Sentinel: sentinel, Cause: err}
}

// ─────────────────────────────────────────────────────────────────────────────
// ChainMapper
// ─────────────────────────────────────────────────────────────────────────────

// ChainMapper tries each mapper in order and returns the first result that
// differs from the input.
func ChainMapper(mappers ...ErrorMapper) ErrorMapper {
	return ErrorMapperFunc(func(err error) error {
		if err == nil {
			return nil
		}
		for _, m := range mappers {
			if mapped := m.Map(err); mapped != err {
				return mapped
			}
		}
		return err
	})
}
