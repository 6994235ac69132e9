package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
)

// Sentinel errors for history operations. Check with errors.Is.
var (
	// ErrAlreadyExists indicates a record with the same ID already exists.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrTransactionConflict indicates concurrent writers touched the same
	// conversation, e.g. a background rename racing a message insert.
	ErrTransactionConflict = errors.New("transaction conflict")

	// ErrNotFound indicates the conversation does not exist.
	ErrNotFound = errors.New("record not found")
)

// wrapQueryError maps known SurrealDB query failures onto the sentinels.
// Other errors are returned unchanged.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if !errors.As(err, &queryErr) {
		return err
	}
	switch msg := queryErr.Message; {
	case strings.Contains(msg, "already exists"):
		return fmt.Errorf("%w: %s", ErrAlreadyExists, msg)
	case strings.Contains(msg, "Transaction conflict"), strings.Contains(msg, "transaction conflict"):
		return fmt.Errorf("%w: %s", ErrTransactionConflict, msg)
	}
	return err
}

// conflictAttempts bounds retries of a write that lost a transaction race.
const conflictAttempts = 3

// retryConflicts runs fn again when it fails with ErrTransactionConflict,
// waiting a little longer each time.
func retryConflicts(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= conflictAttempts; attempt++ {
		err = wrapQueryError(fn())
		if !errors.Is(err, ErrTransactionConflict) {
			return err
		}
		if attempt == conflictAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 25 * time.Millisecond):
		}
	}
	return err
}
