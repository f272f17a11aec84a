// Package unified implements the single SQLite-backed source of truth for
// drift data. One UnifiedStore owns the database handle; domain repositories
// share it and must never outlive it.
package unified

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // sqlite driver for database/sql

	"github.com/mehmetkoksal-w/driftwatch/internal/drift"
)

// DefaultDBFileName is the unified database file under the .drift directory.
const DefaultDBFileName = "drift.db"

// SchemaVersion is recorded into the meta table on initialize.
const SchemaVersion = "1"

//go:embed schema.sql
var schemaSQL string

// minimalSchema keeps the store bootable even if the full schema asset is
// ever broken: enough tables for the core domains to function.
const minimalSchema = `
CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT NOT NULL);
CREATE TABLE IF NOT EXISTS patterns (id TEXT PRIMARY KEY, name TEXT NOT NULL, category TEXT NOT NULL, status TEXT NOT NULL DEFAULT 'discovered', confidence REAL NOT NULL DEFAULT 0);
CREATE TABLE IF NOT EXISTS contracts (id TEXT PRIMARY KEY, method TEXT NOT NULL, endpoint TEXT NOT NULL, status TEXT NOT NULL DEFAULT 'discovered', confidence REAL NOT NULL DEFAULT 0);
CREATE TABLE IF NOT EXISTS constraints (id TEXT PRIMARY KEY, name TEXT NOT NULL, category TEXT NOT NULL, status TEXT NOT NULL DEFAULT 'discovered', confidence REAL NOT NULL DEFAULT 0);
`

// coreTables is the fixed, compile-time table list used by export/import
// and stats. Imported documents can only address tables on this list.
var coreTables = []string{
	"patterns",
	"pattern_locations",
	"pattern_outliers",
	"contracts",
	"constraints",
	"data_boundaries",
	"env_variables",
	"callgraph_functions",
	"callgraph_calls",
	"callgraph_data_access",
	"audit_log",
	"dna_profiles",
	"test_topology",
	"module_coupling",
	"error_handling",
	"history_snapshots",
}

// UnifiedStore owns the unified drift database for one project.
type UnifiedStore struct {
	dir  string // the .drift directory
	file string
	db   *sql.DB

	Patterns    *PatternRepo
	Contracts   *ContractRepo
	Constraints *ConstraintRepo
	Boundaries  *BoundaryRepo
	Environment *EnvRepo
	CallGraph   *CallGraphRepo
	Audit       *AuditRepo
	DNA         *DNARepo
	Topology    *TopologyRepo
}

// New creates a store rooted at the given .drift directory. The database is
// not opened until Initialize.
func New(driftDir string) *UnifiedStore {
	return &UnifiedStore{dir: driftDir, file: DefaultDBFileName}
}

// WithDBFileName overrides the database file name before Initialize.
func (s *UnifiedStore) WithDBFileName(name string) *UnifiedStore {
	s.file = name
	return s
}

// Path returns the database file path.
func (s *UnifiedStore) Path() string {
	return filepath.Join(s.dir, s.file)
}

// Initialize ensures the storage directory exists, opens the database,
// applies durability pragmas, and runs the idempotent schema. It may be
// called again after Close.
func (s *UnifiedStore) Initialize() error {
	if s.db != nil {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create drift dir: %w", err)
	}
	db, err := sql.Open("sqlite", s.Path())
	if err != nil {
		return fmt.Errorf("open unified db: %w", err)
	}
	for _, p := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA synchronous=NORMAL;",
	} {
		if _, err := db.ExecContext(context.Background(), p); err != nil {
			_ = db.Close()
			return fmt.Errorf("apply pragma %s: %w", p, err)
		}
	}
	schema := schemaSQL
	if strings.TrimSpace(schema) == "" {
		schema = minimalSchema
	}
	if err := execScript(db, schema); err != nil || !tableExists(db, "meta") {
		// The full schema asset is broken or incomplete; boot on the
		// minimal one rather than refusing to start.
		if err == nil {
			err = fmt.Errorf("schema produced no meta table")
		}
		if merr := execScript(db, minimalSchema); merr != nil {
			_ = db.Close()
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	if _, err := db.ExecContext(context.Background(),
		`INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', ?)`, SchemaVersion); err != nil {
		_ = db.Close()
		return fmt.Errorf("record schema version: %w", err)
	}
	s.db = db
	s.Patterns = &PatternRepo{s: s}
	s.Contracts = &ContractRepo{s: s}
	s.Constraints = &ConstraintRepo{s: s}
	s.Boundaries = &BoundaryRepo{s: s}
	s.Environment = &EnvRepo{s: s}
	s.CallGraph = &CallGraphRepo{s: s}
	s.Audit = &AuditRepo{s: s}
	s.DNA = &DNARepo{s: s}
	s.Topology = &TopologyRepo{s: s}
	return nil
}

func execScript(db *sql.DB, script string) error {
	for _, stmt := range strings.Split(stripSQLComments(script), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(context.Background(), stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

// stripSQLComments drops "--" comment lines so statement splitting sees
// only SQL. A comment line fused to the statement after it must not hide
// that statement.
func stripSQLComments(script string) string {
	var b strings.Builder
	for _, line := range strings.Split(script, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func tableExists(db *sql.DB, name string) bool {
	var n int
	err := db.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	return err == nil && n > 0
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Close releases the database handle. The store needs a fresh Initialize
// before reuse.
func (s *UnifiedStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.Patterns, s.Contracts, s.Constraints = nil, nil, nil
	s.Boundaries, s.Environment, s.CallGraph, s.Audit = nil, nil, nil, nil
	s.DNA, s.Topology = nil, nil
	return err
}

// handle returns the live database handle or ErrNotInitialized.
func (s *UnifiedStore) handle() (*sql.DB, error) {
	if s.db == nil {
		return nil, drift.ErrNotInitialized
	}
	return s.db, nil
}

// Transaction runs fn inside one native transaction: either every write in
// fn commits, or none do. The closure is synchronous; work must not escape
// the transaction's atomicity boundary.
func (s *UnifiedStore) Transaction(fn func(tx *sql.Tx) error) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// RunRaw executes a write statement. Escape hatch for domains whose upsert
// logic does not warrant a typed repository.
func (s *UnifiedStore) RunRaw(query string, args ...any) (sql.Result, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	return db.ExecContext(context.Background(), query, args...)
}

// QueryRaw executes a read statement.
func (s *UnifiedStore) QueryRaw(query string, args ...any) (*sql.Rows, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	return db.QueryContext(context.Background(), query, args...)
}

// Vacuum reclaims unused space in the database file.
func (s *UnifiedStore) Vacuum() error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(context.Background(), "VACUUM;")
	return err
}

// Checkpoint truncates the write-ahead log.
func (s *UnifiedStore) Checkpoint() error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(context.Background(), "PRAGMA wal_checkpoint(TRUNCATE);")
	return err
}

// StoreStats reports row counts per core table, file size, and the most
// recent recorded run.
type StoreStats struct {
	Tables    map[string]int `json:"tables"`
	FileSize  int64          `json:"fileSize"`
	LastRunAt time.Time      `json:"lastRunAt,omitzero"`
}

// GetStats returns row counts per core table, the database file size, and
// the timestamp of the most recent audit record.
func (s *UnifiedStore) GetStats() (*StoreStats, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	stats := &StoreStats{Tables: make(map[string]int, len(coreTables))}
	for _, table := range coreTables {
		var n int
		if err := db.QueryRowContext(context.Background(),
			"SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		stats.Tables[table] = n
	}
	if info, err := os.Stat(s.Path()); err == nil {
		stats.FileSize = info.Size()
	}
	var last sql.NullString
	err = db.QueryRowContext(context.Background(),
		`SELECT MAX(created_at) FROM audit_log`).Scan(&last)
	if err == nil && last.Valid {
		if ts, perr := time.Parse(time.RFC3339, last.String); perr == nil {
			stats.LastRunAt = ts
		}
	}
	return stats, nil
}
