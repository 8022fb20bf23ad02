package storage

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/maltedev/amazon-seller-scraper/internal/models"
)

// CSVSink writes UTF-8 CSV with a byte order mark and a header row.
type CSVSink struct {
	path    string
	columns []string
}

func NewCSVSink(path string, columns []string) *CSVSink {
	if len(columns) == 0 {
		columns = models.Columns()
	}
	return &CSVSink{path: path, columns: columns}
}

func (s *CSVSink) Persist(records []models.ProductRecord) error {
	return WriteCSV(s.path, TableFromRecords(s.columns, records))
}

// Table is a loaded tabular file: one header row and string cells.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Index returns the position of column, or -1.
func (t Table) Index(column string) int {
	for i, h := range t.Headers {
		if h == column {
			return i
		}
	}
	return -1
}

// Cell returns the value of column in row i, "" when the row is short.
func (t Table) Cell(i int, column string) string {
	idx := t.Index(column)
	if idx < 0 || idx >= len(t.Rows[i]) {
		return ""
	}
	return t.Rows[i][idx]
}

// Set writes value into column of row i, growing a short row. It reports
// false when the column does not exist.
func (t Table) Set(i int, column, value string) bool {
	idx := t.Index(column)
	if idx < 0 {
		return false
	}
	for len(t.Rows[i]) <= idx {
		t.Rows[i] = append(t.Rows[i], "")
	}
	t.Rows[i][idx] = value
	return true
}

// EnsureColumns appends the missing columns to the header.
func (t *Table) EnsureColumns(columns ...string) {
	for _, c := range columns {
		if t.Index(c) < 0 {
			t.Headers = append(t.Headers, c)
		}
	}
}

// Records converts every row into a record.
func (t Table) Records() []models.ProductRecord {
	out := make([]models.ProductRecord, 0, len(t.Rows))
	for _, row := range t.Rows {
		out = append(out, models.RecordFromRow(t.Headers, row))
	}
	return out
}

// TableFromRecords lays records out as rows. CRLF line breaks inside values
// become LF, which is what LoadCSV reads back.
func TableFromRecords(columns []string, records []models.ProductRecord) Table {
	t := Table{Headers: columns, Rows: make([][]string, 0, len(records))}
	for _, r := range records {
		row := r.Values(columns)
		for i, v := range row {
			row[i] = strings.ReplaceAll(v, "\r\n", "\n")
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// LoadCSV reads a CSV file with a header row. A leading byte order mark is
// tolerated; short rows are padded.
func LoadCSV(path string) (Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Table{}, err
	}
	b = bytes.TrimPrefix(b, utf8BOM)

	r := csv.NewReader(bytes.NewReader(b))
	r.FieldsPerRecord = -1

	headers, err := r.Read()
	if err != nil {
		return Table{}, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	t := Table{Headers: headers}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("failed to read %s: %w", path, err)
		}
		row := make([]string, len(headers))
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// WriteCSV atomically replaces path with t.
func WriteCSV(path string, t Table) error {
	return writeAtomic(path, func(w io.Writer) error {
		if _, err := w.Write(utf8BOM); err != nil {
			return err
		}
		cw := csv.NewWriter(w)
		if err := cw.Write(t.Headers); err != nil {
			return err
		}
		if err := cw.WriteAll(t.Rows); err != nil {
			return fmt.Errorf("failed to write csv: %w", err)
		}
		return nil
	})
}
