package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"loan-intake/internal/documents"
	"loan-intake/internal/extraction"
)

// ErrUnknownFamily is returned for a family outside the closed set.
var ErrUnknownFamily = errors.New("unknown document family")

// PersistenceError reports a record/table mismatch or a failed write. No row
// is written when it is returned.
type PersistenceError struct {
	Table  string
	Column string
	Err    error
}

func (e *PersistenceError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("persist %s: column %s: %v", e.Table, e.Column, e.Err)
	}
	return fmt.Sprintf("persist %s: %v", e.Table, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrMissingColumn is wrapped by PersistenceError when the table lacks a
// column the record carries.
var ErrMissingColumn = errors.New("no such column in table")

// Row is one stored record.
type Row struct {
	ID        int64              `json:"id"`
	CreatedAt time.Time          `json:"createdAt"`
	Fields    []extraction.Entry `json:"-"`
}

// Store appends records to per-family tables. Implementations serialize
// writers to the same table.
type Store interface {
	// Insert appends one row and returns its surrogate id.
	Insert(ctx context.Context, family documents.Family, fields []extraction.Entry) (int64, error)
	// List returns up to limit rows newest first, skipping offset rows. A
	// limit of zero or less yields no rows; a negative offset counts as zero.
	List(ctx context.Context, family documents.Family, limit, offset int) ([]Row, error)
}

// Persist flattens res and appends it to the table of t's family.
func Persist(ctx context.Context, store Store, t documents.Type, res extraction.Result) (int64, error) {
	if res == nil {
		return 0, &PersistenceError{Table: string(t.Family()), Err: errors.New("nil record")}
	}
	return store.Insert(ctx, t.Family(), res.Flatten())
}

func checkFamily(f documents.Family) error {
	if _, ok := documents.ParseFamily(string(f)); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFamily, string(f))
	}
	return nil
}

// page clamps List arguments so every store reads the same window.
func page(limit, offset int) (int, int, bool) {
	if limit <= 0 {
		return 0, 0, false
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset, true
}
