package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/maltedev/amazon-seller-scraper/internal/models"
)

var (
	ErrSameFile      = errors.New("derived file must not overwrite its input")
	ErrUnknownColumn = errors.New("unknown column")
	ErrUnknownFormat = errors.New("unknown output format")
)

// utf8BOM keeps spreadsheet applications from misreading Japanese text.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Sink persists the complete record set. Every call replaces what a
// previous call wrote.
type Sink interface {
	Persist(records []models.ProductRecord) error
}

// NewSink picks the format from the file extension. An empty columns list
// selects every column.
func NewSink(path string, columns []string) (Sink, error) {
	if len(columns) == 0 {
		columns = models.Columns()
	}
	if err := models.ValidateColumns(columns); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownColumn, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return &CSVSink{path: path, columns: columns}, nil
	case ".jsonl", ".ndjson":
		return &JSONLSink{path: path, columns: columns}, nil
	case ".sqlite", ".db":
		return &SQLiteSink{path: path, columns: columns, table: "products"}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
	}
}

// writeAtomic writes to a temporary file next to path and renames it into
// place, so readers only ever see a complete file.
func writeAtomic(path string, write func(w io.Writer) error) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}
