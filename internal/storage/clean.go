package storage

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Report counts rows through one post-processing stage.
type Report struct {
	Stage   string `json:"stage"`
	Input   int    `json:"input"`
	Output  int    `json:"output"`
	Removed int    `json:"removed"`
}

func newReport(stage string, in, out int) Report {
	return Report{Stage: stage, Input: in, Output: out, Removed: in - out}
}

// Deduplicate keeps the first row for every value of key, in original
// order. Rows with an empty key share the empty value like any other.
func Deduplicate(t Table, key string) (Table, Report, error) {
	idx := t.Index(key)
	if idx < 0 {
		return Table{}, Report{}, fmt.Errorf("%w: %q", ErrUnknownColumn, key)
	}

	seen := make(map[string]struct{}, len(t.Rows))
	out := Table{Headers: t.Headers, Rows: make([][]string, 0, len(t.Rows))}
	for _, row := range t.Rows {
		v := cell(row, idx)
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out.Rows = append(out.Rows, row)
	}
	return out, newReport("deduplicate:"+key, len(t.Rows), len(out.Rows)), nil
}

// Filter keeps the rows whose column equals value exactly.
func Filter(t Table, column, value string) (Table, Report, error) {
	idx := t.Index(column)
	if idx < 0 {
		return Table{}, Report{}, fmt.Errorf("%w: %q", ErrUnknownColumn, column)
	}

	out := Table{Headers: t.Headers, Rows: make([][]string, 0, len(t.Rows))}
	for _, row := range t.Rows {
		if cell(row, idx) == value {
			out.Rows = append(out.Rows, row)
		}
	}
	return out, newReport("filter:"+column+"="+value, len(t.Rows), len(out.Rows)), nil
}

func cell(row []string, idx int) string {
	if idx < len(row) {
		return row[idx]
	}
	return ""
}

// CleanOptions selects the post-processing stages. An empty KeyColumn skips
// deduplication, an empty FilterColumn skips filtering.
type CleanOptions struct {
	KeyColumn    string
	FilterColumn string
	FilterValue  string
}

// Clean runs deduplication then filtering.
func Clean(t Table, opts CleanOptions) (Table, []Report, error) {
	var reports []Report

	if opts.KeyColumn != "" {
		var r Report
		var err error
		if t, r, err = Deduplicate(t, opts.KeyColumn); err != nil {
			return Table{}, nil, err
		}
		reports = append(reports, r)
	}

	if opts.FilterColumn != "" {
		var r Report
		var err error
		if t, r, err = Filter(t, opts.FilterColumn, opts.FilterValue); err != nil {
			return Table{}, nil, err
		}
		reports = append(reports, r)
	}

	return t, reports, nil
}

// CleanFile loads in, cleans it and writes the derived table to out. The
// input file is never overwritten.
func CleanFile(in, out string, opts CleanOptions) ([]Report, error) {
	same, err := samePath(in, out)
	if err != nil {
		return nil, err
	}
	if same {
		return nil, ErrSameFile
	}

	t, err := LoadCSV(in)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", in, err)
	}

	cleaned, reports, err := Clean(t, opts)
	if err != nil {
		return nil, err
	}

	if err := WriteCSV(out, cleaned); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", out, err)
	}
	return reports, nil
}

// DerivedPath returns path with suffix inserted before the extension:
// "sellers.csv" -> "sellers_cleaned.csv".
func DerivedPath(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + suffix + ".csv"
}

func samePath(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	return absA == absB, nil
}
