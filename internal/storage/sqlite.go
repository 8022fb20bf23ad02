package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/maltedev/amazon-seller-scraper/internal/models"
)

// SQLiteSink writes the record set into a single-table SQLite file.
type SQLiteSink struct {
	path    string
	table   string
	columns []string
}

func (s *SQLiteSink) Persist(records []models.ProductRecord) error {
	if err := ensureDir(s.path); err != nil {
		return err
	}

	tmp := filepath.Join(filepath.Dir(s.path), "."+filepath.Base(s.path)+".tmp")
	_ = os.Remove(tmp)
	defer os.Remove(tmp)

	if err := s.write(tmp, records); err != nil {
		return err
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to rename sqlite file: %w", err)
	}
	return nil
}

func (s *SQLiteSink) write(path string, records []models.ProductRecord) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open sqlite: %w", err)
	}
	defer db.Close()

	defs := make([]string, 0, len(s.columns)+1)
	defs = append(defs, `"seq" INTEGER PRIMARY KEY`)
	quoted := make([]string, 0, len(s.columns))
	for _, c := range s.columns {
		defs = append(defs, fmt.Sprintf("%q TEXT NOT NULL", c))
		quoted = append(quoted, fmt.Sprintf("%q", c))
	}

	if _, err := db.Exec(fmt.Sprintf(`CREATE TABLE %q (%s)`, s.table, strings.Join(defs, ","))); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ph := strings.TrimRight(strings.Repeat("?,", len(s.columns)+1), ",")
	stmt, err := tx.Prepare(fmt.Sprintf(`INSERT INTO %q ("seq",%s) VALUES (%s)`, s.table, strings.Join(quoted, ","), ph))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		args := make([]any, 0, len(s.columns)+1)
		args = append(args, i+1)
		for _, v := range r.Values(s.columns) {
			args = append(args, v)
		}
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("failed to insert record %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// LoadSQLite reads records back in insertion order.
func LoadSQLite(path string) ([]models.ProductRecord, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT * FROM "products" ORDER BY "seq"`)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []models.ProductRecord
	for rows.Next() {
		vals := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		row := make([]string, len(cols))
		for i, v := range vals {
			row[i] = v.String
		}
		out = append(out, models.RecordFromRow(cols, row))
	}
	return out, rows.Err()
}
