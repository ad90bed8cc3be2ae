package postgres

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type call struct {
	sql  string
	args []any
}

// stubDB answers QueryRow and Query from queues; an empty queue yields
// pgx.ErrNoRows and an empty result set respectively.
type stubDB struct {
	execTag  pgconn.CommandTag
	execErr  error
	queryErr error

	rows    []pgx.Row
	results []pgx.Rows

	execs   []call
	queries []call
}

func (d *stubDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	d.execs = append(d.execs, call{sql: sql, args: args})
	return d.execTag, d.execErr
}

func (d *stubDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	d.queries = append(d.queries, call{sql: sql, args: args})
	if d.queryErr != nil {
		return nil, d.queryErr
	}
	if len(d.results) == 0 {
		return &stubRows{}, nil
	}
	r := d.results[0]
	d.results = d.results[1:]
	return r, nil
}

func (d *stubDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	d.queries = append(d.queries, call{sql: sql, args: args})
	if len(d.rows) == 0 {
		return &stubRow{err: pgx.ErrNoRows}
	}
	r := d.rows[0]
	d.rows = d.rows[1:]
	return r
}

type stubRow struct {
	vals []any
	err  error
}

func (r *stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.vals)
}

type stubRows struct {
	data [][]any
	pos  int
	err  error
}

func (r *stubRows) Close()                        {}
func (r *stubRows) Err() error                    { return r.err }
func (r *stubRows) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription {
	return nil
}
func (r *stubRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}
func (r *stubRows) Scan(dest ...any) error { return assign(dest, r.data[r.pos-1]) }
func (r *stubRows) Values() ([]any, error) { return r.data[r.pos-1], nil }
func (r *stubRows) RawValues() [][]byte    { return nil }
func (r *stubRows) Conn() *pgx.Conn        { return nil }

func assign(dest, vals []any) error {
	if len(dest) != len(vals) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(vals))
	}
	for i, v := range vals {
		target := reflect.ValueOf(dest[i]).Elem()
		val := reflect.ValueOf(v)
		if !val.Type().AssignableTo(target.Type()) {
			return fmt.Errorf("scan: column %d: cannot assign %T to %s", i, v, target.Type())
		}
		target.Set(val)
	}
	return nil
}

func row(vals ...any) pgx.Row { return &stubRow{vals: vals} }
