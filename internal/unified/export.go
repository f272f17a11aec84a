package unified

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// ExportFormatVersion identifies the JSON export document layout.
const ExportFormatVersion = "1"

// ExportDoc is the self-describing JSON export: every core table's full row
// set, keyed by table name. Rows keep their own column sets, so imports
// stay forward-compatible with added columns.
type ExportDoc struct {
	FormatVersion string                      `json:"formatVersion"`
	ExportedAt    time.Time                   `json:"exportedAt"`
	Tables        map[string][]map[string]any `json:"tables"`
}

// columnName only admits identifier-shaped column names from imported
// documents; everything else is rejected before it reaches SQL.
var columnName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ExportJSON serializes every core table into one JSON document.
func (s *UnifiedStore) ExportJSON() ([]byte, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	doc := ExportDoc{
		FormatVersion: ExportFormatVersion,
		ExportedAt:    time.Now().UTC(),
		Tables:        make(map[string][]map[string]any, len(coreTables)),
	}
	for _, table := range coreTables {
		rows, err := db.QueryContext(context.Background(), "SELECT * FROM "+table)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", table, err)
		}
		recs, err := scanAll(rows)
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", table, err)
		}
		doc.Tables[table] = recs
	}
	return json.MarshalIndent(doc, "", "  ")
}

func scanAll(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []map[string]any{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(map[string]any, len(cols))
		for i, col := range cols {
			v := vals[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			rec[col] = v
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ExportSQLite checkpoints the WAL and returns the raw database file bytes.
func (s *UnifiedStore) ExportSQLite() ([]byte, error) {
	if _, err := s.handle(); err != nil {
		return nil, err
	}
	if err := s.Checkpoint(); err != nil {
		return nil, err
	}
	return os.ReadFile(s.Path())
}

// ImportJSON replaces the contents of every core table with the rows in the
// document, inside one transaction. Tables absent from the document are
// simply emptied; tables in the document that are not on the core list are
// ignored.
func (s *UnifiedStore) ImportJSON(data []byte) error {
	var doc ExportDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse import document: %w", err)
	}
	return s.Transaction(func(tx *sql.Tx) error {
		for _, table := range coreTables {
			if _, err := tx.Exec("DELETE FROM " + table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
			for _, rec := range doc.Tables[table] {
				if err := insertRecord(tx, table, rec); err != nil {
					return fmt.Errorf("import into %s: %w", table, err)
				}
			}
		}
		return nil
	})
}

// insertRecord builds an INSERT from the record's own column set. The table
// name comes from the fixed core list; column names are validated against
// an identifier pattern.
func insertRecord(tx *sql.Tx, table string, rec map[string]any) error {
	if len(rec) == 0 {
		return nil
	}
	cols := make([]string, 0, len(rec))
	args := make([]any, 0, len(rec))
	for col, val := range rec {
		if !columnName.MatchString(col) {
			return fmt.Errorf("invalid column name %q", col)
		}
		cols = append(cols, col)
		args = append(args, val)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), placeholders)
	_, err := tx.Exec(query, args...)
	return err
}

// ImportSQLite closes the store, overwrites the database file with the
// given bytes, and reinitializes.
func (s *UnifiedStore) ImportSQLite(data []byte) error {
	if _, err := s.handle(); err != nil {
		return err
	}
	if err := s.Close(); err != nil {
		return err
	}
	// Drop WAL/SHM leftovers so the imported file opens clean.
	_ = os.Remove(s.Path() + "-wal")
	_ = os.Remove(s.Path() + "-shm")
	if err := os.WriteFile(s.Path(), data, 0o644); err != nil {
		return fmt.Errorf("overwrite database: %w", err)
	}
	return s.Initialize()
}
