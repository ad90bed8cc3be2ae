package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/JonMunkholm/drupalmigrate/internal/core"
	"github.com/go-sql-driver/mysql"
)

// tablePlaceholder matches Drupal's {table} notation.
var tablePlaceholder = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// ExpandPrefix replaces {table} placeholders with prefixed table names, the
// way Drupal's db_prefix_tables does.
func ExpandPrefix(query, prefix string) string {
	return tablePlaceholder.ReplaceAllString(query, "`"+prefix+"$1`")
}

// Drupal reads records straight from a Drupal database.
type Drupal struct {
	db     *sql.DB
	prefix string
}

// OpenDrupal connects to the Drupal MySQL database at dsn and verifies the
// connection.
func OpenDrupal(ctx context.Context, dsn, prefix string) (*Drupal, error) {
	cfg, err := normalizeDSN(dsn)
	if err != nil {
		return nil, err
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("drupal source: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("drupal source: ping %s: %w", cfg.Addr, err)
	}
	return NewDrupal(db, prefix), nil
}

// NewDrupal wraps an open database handle.
func NewDrupal(db *sql.DB, prefix string) *Drupal {
	return &Drupal{db: db, prefix: prefix}
}

// normalizeDSN parses dsn. DATETIME columns must come back as text in the
// layout backends store, so parseTime is forced off.
func normalizeDSN(dsn string) (*mysql.Config, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("drupal source: invalid DSN: %w", err)
	}
	cfg.ParseTime = false
	return cfg, nil
}

// Query runs an importer query (with {table} placeholders) and returns its rows
// as records. Column aliases in the query become record columns.
func (d *Drupal) Query(ctx context.Context, query string) (*RowsReader, error) {
	rows, err := d.db.QueryContext(ctx, ExpandPrefix(query, d.prefix))
	if err != nil {
		return nil, fmt.Errorf("drupal source: query: %w", err)
	}
	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("drupal source: columns: %w", err)
	}
	return &RowsReader{rows: rows, columns: cols}, nil
}

// Close closes the database handle.
func (d *Drupal) Close() error {
	return d.db.Close()
}

// RowsReader adapts sql.Rows to core.RecordReader. NULL reads as "".
type RowsReader struct {
	rows    *sql.Rows
	columns []string
	line    int
}

// Read returns the next row. Record.Line is the 1-based row number.
func (r *RowsReader) Read() (core.Record, error) {
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return core.Record{}, fmt.Errorf("drupal source: %w", err)
		}
		return core.Record{}, io.EOF
	}

	raw := make([]sql.NullString, len(r.columns))
	dest := make([]any, len(raw))
	for i := range raw {
		dest[i] = &raw[i]
	}
	if err := r.rows.Scan(dest...); err != nil {
		return core.Record{}, fmt.Errorf("drupal source: scan: %w", err)
	}

	row := make([]string, len(raw))
	for i, v := range raw {
		row[i] = v.String
	}
	r.line++
	return core.NewRecord(r.line, r.columns, row), nil
}

// Close releases the result set.
func (r *RowsReader) Close() error {
	if err := r.rows.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return err
	}
	return nil
}
