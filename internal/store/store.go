// Package store defines storage interfaces for persisting ticker-day rows
// and the run marker, and provides the SQLite and Parquet implementations.
package store

import (
	"context"

	"stocknet/internal/domain"
)

// InsertResult is the outcome of an idempotent row insert.
type InsertResult int

const (
	// Inserted means the row was written.
	Inserted InsertResult = iota
	// AlreadyExists means a row for (ticker, date) was already present; the
	// stored row is left untouched.
	AlreadyExists
	// Rejected means the row failed validation and nothing was written.
	Rejected
)

func (r InsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case AlreadyExists:
		return "already_exists"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// RowStore persists ticker-day rows. Uniqueness is enforced on
// (ticker, date).
type RowStore interface {
	// Insert writes row all-or-nothing. A duplicate key yields AlreadyExists
	// with a nil error; a schema violation yields Rejected with an error
	// wrapping domain.ErrSchemaMismatch.
	Insert(ctx context.Context, row domain.TickerRow) (InsertResult, error)

	// Exists reports whether a row for (ticker, date) is stored.
	Exists(ctx context.Context, ticker, date string) (bool, error)

	// ReadAll returns every stored row ordered by date then ticker.
	ReadAll(ctx context.Context) ([]domain.TickerRow, error)
}

// RunMarker persists the date of the last fully attempted run.
type RunMarker interface {
	// LastRunDate returns the stored date, or "" if no run has completed.
	LastRunDate(ctx context.Context) (string, error)

	// SetLastRunDate overwrites the stored date.
	SetLastRunDate(ctx context.Context, date string) error
}

// RunStore is the full persistence surface used by the pipeline.
type RunStore interface {
	RowStore
	RunMarker
}
