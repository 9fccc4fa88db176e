package errors

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// MapDBError maps store and cache errors to AppError instances:
//   - no rows / no documents → NotFound
//   - unique violations and duplicate keys → Conflict
//   - check and NOT NULL violations → Validation
//   - connection failures → Unavailable
//   - context timeouts and cancellations → Timeout / Canceled
//
// Unrecognised errors are returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &AppError{Code: ErrCodeTimeout, Message: "operation timed out", Cause: err}
	case errors.Is(err, context.Canceled):
		return &AppError{Code: ErrCodeCanceled, Message: "operation was canceled", Cause: err}
	case errors.Is(err, pgx.ErrNoRows), errors.Is(err, sql.ErrNoRows), errors.Is(err, mongo.ErrNoDocuments),
		errors.Is(err, redis.Nil):
		return &AppError{Code: ErrCodeNotFound, Message: "resource not found", Cause: err}
	case mongo.IsDuplicateKeyError(err):
		return &AppError{Code: ErrCodeConflict, Message: "record already exists", Cause: err}
	case mongo.IsNetworkError(err), errors.Is(err, redis.ErrClosed), errors.Is(err, sql.ErrConnDone):
		return &AppError{Code: ErrCodeUnavailable, Message: "store unavailable", Cause: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return &AppError{Code: ErrCodeUnavailable, Message: "store unavailable", Cause: err}
	}
	return err
}

func mapPgError(pgErr *pgconn.PgError) error {
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return &AppError{Code: ErrCodeConflict, Message: "record already exists", Field: pgErr.ColumnName, Cause: pgErr}
	case pgerrcode.CheckViolation:
		return &AppError{Code: ErrCodeValidation, Message: "value violates " + pgErr.ConstraintName, Field: pgErr.ColumnName, Cause: pgErr}
	case pgerrcode.NotNullViolation:
		return &AppError{Code: ErrCodeValidation, Message: "field is required", Field: pgErr.ColumnName, Cause: pgErr}
	case pgerrcode.InvalidTextRepresentation:
		return &AppError{Code: ErrCodeNotFound, Message: "resource not found", Cause: pgErr}
	case pgerrcode.QueryCanceled:
		return &AppError{Code: ErrCodeTimeout, Message: "operation timed out", Cause: pgErr}
	}
	if pgerrcode.IsConnectionException(pgErr.Code) || pgerrcode.IsInsufficientResources(pgErr.Code) {
		return &AppError{Code: ErrCodeUnavailable, Message: "store unavailable", Cause: pgErr}
	}
	return &AppError{Code: ErrCodeInternal, Message: "database error", Cause: pgErr}
}
