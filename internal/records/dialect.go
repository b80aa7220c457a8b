package records

import (
	"fmt"
	"strings"

	"loan-intake/internal/extraction"
	"loan-intake/internal/shared/storage/db"
)

// dialect holds the SQL that differs between Postgres and SQLite.
type dialect interface {
	columnType(t extraction.FieldType) string
	idColumn() string
	createdAtColumn() string
	placeholder(i int) string
	columnsQuery() string
}

type postgresDialect struct{}

func (postgresDialect) columnType(t extraction.FieldType) string {
	if t == extraction.Integer {
		return "BIGINT"
	}
	return "TEXT"
}
func (postgresDialect) idColumn() string        { return `"id" BIGSERIAL PRIMARY KEY` }
func (postgresDialect) createdAtColumn() string { return `"created_at" TIMESTAMPTZ NOT NULL DEFAULT now()` }
func (postgresDialect) placeholder(i int) string {
	return fmt.Sprintf("$%d", i)
}
func (postgresDialect) columnsQuery() string {
	return `SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1`
}

type sqliteDialect struct{}

func (sqliteDialect) columnType(t extraction.FieldType) string {
	if t == extraction.Integer {
		return "INTEGER"
	}
	return "TEXT"
}
func (sqliteDialect) idColumn() string        { return `"id" INTEGER PRIMARY KEY AUTOINCREMENT` }
func (sqliteDialect) createdAtColumn() string { return `"created_at" TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP` }
func (sqliteDialect) placeholder(int) string  { return "?" }
func (sqliteDialect) columnsQuery() string    { return `SELECT name FROM pragma_table_info(?)` }

func dialectFor(d db.Dialect) (dialect, error) {
	switch d {
	case db.Postgres:
		return postgresDialect{}, nil
	case db.SQLite:
		return sqliteDialect{}, nil
	default:
		return nil, fmt.Errorf("records: unsupported dialect %q", d)
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func createTableSQL(d dialect, table string, fields []extraction.Field) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n\t%s,\n\t%s", quoteIdent(table), d.idColumn(), d.createdAtColumn())
	for _, f := range fields {
		fmt.Fprintf(&b, ",\n\t%s %s", quoteIdent(f.Name), d.columnType(f.Type))
	}
	b.WriteString("\n)")
	return b.String()
}

func insertSQL(d dialect, table string, fields []extraction.Entry) string {
	cols := make([]string, len(fields))
	marks := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = quoteIdent(f.Name)
		marks[i] = d.placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		quoteIdent(table), strings.Join(cols, ", "), strings.Join(marks, ", "), quoteIdent("id"))
}

func selectSQL(d dialect, table string, fields []extraction.Field) string {
	cols := []string{quoteIdent("id"), quoteIdent("created_at")}
	for _, f := range fields {
		cols = append(cols, quoteIdent(f.Name))
	}
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s DESC LIMIT %s OFFSET %s",
		strings.Join(cols, ", "), quoteIdent(table), quoteIdent("id"), d.placeholder(1), d.placeholder(2))
}
