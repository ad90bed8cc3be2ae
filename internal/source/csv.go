package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/JonMunkholm/drupalmigrate/internal/core"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrEmptyFile is returned when the input has no header row.
var ErrEmptyFile = errors.New("empty file: no header row")

// CSVReader reads a Drupal CSV export as core records. The first row is the
// header; every later row becomes one record keyed by header name.
type CSVReader struct {
	r      *csv.Reader
	header []string
}

// NewCSVReader reads the header row from r. A UTF-8 BOM is skipped and
// invalid UTF-8 is replaced with U+FFFD before parsing.
func NewCSVReader(r io.Reader) (*CSVReader, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1 // rows may be short; missing cells read as empty
	cr.LazyQuotes = true    // Drupal body HTML is full of stray quotes

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("invalid csv header: %w", err)
	}

	cleaned := make([]string, len(header))
	for i, h := range header {
		cleaned[i] = CleanHeader(h)
	}
	return &CSVReader{r: cr, header: cleaned}, nil
}

// Header returns the cleaned header row.
func (c *CSVReader) Header() []string {
	out := make([]string, len(c.header))
	copy(out, c.header)
	return out
}

// Read returns the next record. Record.Line is the line the row starts on,
// so multi-line HTML cells do not throw off failure reports.
func (c *CSVReader) Read() (core.Record, error) {
	row, err := c.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return core.Record{}, io.EOF
		}
		return core.Record{}, fmt.Errorf("invalid csv: %w", err)
	}

	line, _ := c.r.FieldPos(0)
	for i := range row {
		row[i] = CleanCell(row[i])
	}
	return core.NewRecord(line, c.header, row), nil
}
