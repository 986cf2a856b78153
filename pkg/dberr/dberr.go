// Package dberr maps driver-level failures onto the error taxonomy the
// services report. Callers compare with errors.Is; the original driver error
// stays wrapped underneath for logging.
package dberr

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	// ErrNotFound: a looked-up row does not exist (or is not owned by the caller).
	ErrNotFound = errors.New("not found")
	// ErrInvalidReference: a foreign key points at a missing row.
	ErrInvalidReference = errors.New("invalid reference")
	// ErrStorageUnavailable: the database itself could not be reached.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Postgres error classes (SQLSTATE prefixes / codes).
const (
	pgForeignKeyViolation = "23503"
	pgConnectionClass     = "08"
)

// Classify wraps err with the matching taxonomy sentinel. Unrecognized
// errors pass through unchanged so nothing is misreported as retryable.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgForeignKeyViolation {
			return fmt.Errorf("%w: %w", ErrInvalidReference, err)
		}
		if strings.HasPrefix(pgErr.Code, pgConnectionClass) {
			return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		}
		return err
	}

	// sqlite (tests) reports constraint violations as plain strings
	if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
		return fmt.Errorf("%w: %w", ErrInvalidReference, err)
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return err
}
