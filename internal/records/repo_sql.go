package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"loan-intake/internal/documents"
	"loan-intake/internal/extraction"
	"loan-intake/internal/shared/storage/db"
	"loan-intake/internal/shared/telemetry"
)

// SQLStore implements Store on a relational database. Tables are created on
// first write and their live column set is cached after one introspection.
type SQLStore struct {
	DB      *sql.DB
	dialect dialect

	mu      sync.Mutex
	locks   map[documents.Family]*sync.Mutex
	columns map[documents.Family]map[string]struct{}
}

// NewSQLStore constructs a SQLStore for the given dialect.
func NewSQLStore(database *sql.DB, d db.Dialect) (*SQLStore, error) {
	dl, err := dialectFor(d)
	if err != nil {
		return nil, err
	}
	return &SQLStore{
		DB:      database,
		dialect: dl,
		locks:   make(map[documents.Family]*sync.Mutex),
		columns: make(map[documents.Family]map[string]struct{}),
	}, nil
}

func (s *SQLStore) tableLock(f documents.Family) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[f]
	if !ok {
		l = &sync.Mutex{}
		s.locks[f] = l
	}
	return l
}

// Insert implements Store. Every field must have a matching column, checked
// before anything is written; the insert runs in its own transaction.
func (s *SQLStore) Insert(ctx context.Context, family documents.Family, fields []extraction.Entry) (int64, error) {
	if err := checkFamily(family); err != nil {
		return 0, err
	}
	table := string(family)
	if len(fields) == 0 {
		return 0, &PersistenceError{Table: table, Err: errors.New("record has no fields")}
	}

	lock := s.tableLock(family)
	lock.Lock()
	defer lock.Unlock()

	cols, err := s.ensureTable(ctx, family)
	if err != nil {
		return 0, &PersistenceError{Table: table, Err: err}
	}
	for _, f := range fields {
		if _, ok := cols[f.Name]; !ok {
			return 0, &PersistenceError{Table: table, Column: f.Name, Err: ErrMissingColumn}
		}
	}

	id, err := s.insertRow(ctx, table, fields)
	if err != nil {
		return 0, &PersistenceError{Table: table, Err: err}
	}
	telemetry.Info("records.insert", map[string]any{"table": table, "id": id, "fields": len(fields)})
	return id, nil
}

func (s *SQLStore) insertRow(ctx context.Context, table string, fields []extraction.Entry) (int64, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = f.Value
	}
	var id int64
	if err := tx.QueryRowContext(ctx, insertSQL(s.dialect, table, fields), args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// ensureTable creates the family table if needed and returns its columns.
// Callers hold the table lock.
func (s *SQLStore) ensureTable(ctx context.Context, family documents.Family) (map[string]struct{}, error) {
	s.mu.Lock()
	cached, ok := s.columns[family]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	fields, err := extraction.FamilyFields(family)
	if err != nil {
		return nil, err
	}
	if _, err := s.DB.ExecContext(ctx, createTableSQL(s.dialect, string(family), fields)); err != nil {
		return nil, fmt.Errorf("create table: %w", err)
	}
	cols, err := s.introspect(ctx, string(family))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.columns[family] = cols
	s.mu.Unlock()
	return cols, nil
}

func (s *SQLStore) introspect(ctx context.Context, table string) (map[string]struct{}, error) {
	rows, err := s.DB.QueryContext(ctx, s.dialect.columnsQuery(), table)
	if err != nil {
		return nil, fmt.Errorf("introspect columns: %w", err)
	}
	defer rows.Close()
	cols := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols[name] = struct{}{}
	}
	return cols, rows.Err()
}

// List implements Store. A table that does not exist yet yields no rows.
// Columns missing from an older table are skipped.
func (s *SQLStore) List(ctx context.Context, family documents.Family, limit, offset int) ([]Row, error) {
	if err := checkFamily(family); err != nil {
		return nil, err
	}
	limit, offset, ok := page(limit, offset)
	if !ok {
		return nil, nil
	}
	table := string(family)
	cols, err := s.introspect(ctx, table)
	if err != nil {
		return nil, &PersistenceError{Table: table, Err: err}
	}
	if len(cols) == 0 {
		return nil, nil
	}
	all, err := extraction.FamilyFields(family)
	if err != nil {
		return nil, err
	}
	fields := make([]extraction.Field, 0, len(all))
	for _, f := range all {
		if _, ok := cols[f.Name]; ok {
			fields = append(fields, f)
		}
	}

	rows, err := s.DB.QueryContext(ctx, selectSQL(s.dialect, table, fields), limit, offset)
	if err != nil {
		return nil, &PersistenceError{Table: table, Err: fmt.Errorf("select: %w", err)}
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			id        int64
			createdAt any
		)
		dest := []any{&id, &createdAt}
		holders := make([]any, len(fields))
		for i, f := range fields {
			if f.Type == extraction.Integer {
				holders[i] = &sql.NullInt64{}
			} else {
				holders[i] = &sql.NullString{}
			}
			dest = append(dest, holders[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, &PersistenceError{Table: table, Err: fmt.Errorf("scan: %w", err)}
		}
		row := Row{ID: id, CreatedAt: toTime(createdAt)}
		for i, f := range fields {
			row.Fields = append(row.Fields, extraction.Entry{Name: f.Name, Value: nullValue(holders[i])})
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Table: table, Err: err}
	}
	return out, nil
}

func nullValue(h any) extraction.Value {
	switch v := h.(type) {
	case *sql.NullInt64:
		if v.Valid {
			return v.Int64
		}
	case *sql.NullString:
		if v.Valid {
			return v.String
		}
	}
	return nil
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"}

func toTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case string:
		return parseTime(t)
	case []byte:
		return parseTime(string(t))
	}
	return time.Time{}
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

var _ Store = (*SQLStore)(nil)
