package datarecording

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// QueryParams narrows a Query. Where and OrderBy are SQL fragments without
// their keywords, e.g. Where: "Pattern = ?" with Args: []any{"4854"}.
// A zero Limit returns every row.
type QueryParams struct {
	Where   string
	Args    []any
	OrderBy string
	Limit   int
	Offset  int
}

func (p QueryParams) where() string {
	if p.Where == "" {
		return ""
	}
	return " WHERE " + p.Where
}

func (p QueryParams) page() string {
	var b strings.Builder
	if p.OrderBy != "" {
		b.WriteString(" ORDER BY " + p.OrderBy)
	}
	if p.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", p.Limit)
		if p.Offset > 0 {
			fmt.Fprintf(&b, " OFFSET %d", p.Offset)
		}
	}
	return b.String()
}

// DataReader reads back tables written by a DataRecorder. A table must be
// mapped to its entry type before it can be queried.
type DataReader interface {
	MapTable(tableName string, sampleEntry any)
	ListTables() []string

	// Query returns a pointer to a new entry per matching row, within the
	// page selected by params, and the number of rows matching params.Where.
	Query(ctx context.Context, tableName string, params QueryParams) (results []any, total int, err error)

	Close() error
}

type tableReader struct {
	db    *sql.DB
	types map[string]reflect.Type
}

// NewReader opens the database file dbFilename read-only.
func NewReader(dbFilename string) (DataReader, error) {
	db, err := sql.Open("sqlite3", "file:"+dbFilename+"?mode=ro")
	if err != nil {
		return nil, err
	}
	return NewReaderWithDB(db), nil
}

// NewReaderWithDB creates a DataReader over an open database.
func NewReaderWithDB(db *sql.DB) DataReader {
	return &tableReader{db: db, types: make(map[string]reflect.Type)}
}

func (r *tableReader) MapTable(tableName string, sampleEntry any) {
	r.types[tableName] = reflect.TypeOf(sampleEntry)
}

func (r *tableReader) ListTables() []string {
	tables := make([]string, 0, len(r.types))
	for t := range r.types {
		tables = append(tables, t)
	}
	slices.Sort(tables)
	return tables
}

func (r *tableReader) Query(ctx context.Context, tableName string, params QueryParams) ([]any, int, error) {
	typ, ok := r.types[tableName]
	if !ok {
		return nil, 0, fmt.Errorf("table %s is not mapped", tableName)
	}

	var total int
	countSQL := "SELECT COUNT(*) FROM " + tableName + params.where()
	if err := r.db.QueryRowContext(ctx, countSQL, params.Args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting %s: %w", tableName, err)
	}

	rows, err := r.db.QueryContext(ctx, "SELECT * FROM "+tableName+params.where()+params.page(), params.Args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying %s: %w", tableName, err)
	}
	defer rows.Close()

	results, err := scanEntries(rows, typ)
	if err != nil {
		return nil, 0, fmt.Errorf("reading %s: %w", tableName, err)
	}
	return results, total, nil
}

// scanEntries scans each row into a new value of typ, matching columns to
// fields by name. Columns with no matching field are dropped.
func scanEntries(rows *sql.Rows, typ reflect.Type) ([]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []any
	for rows.Next() {
		entry := reflect.New(typ)
		targets := make([]any, len(columns))
		for i, col := range columns {
			if f := entry.Elem().FieldByName(col); f.IsValid() {
				targets[i] = f.Addr().Interface()
			} else {
				targets[i] = new(any)
			}
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}
		results = append(results, entry.Interface())
	}
	return results, rows.Err()
}

func (r *tableReader) Close() error {
	return r.db.Close()
}
