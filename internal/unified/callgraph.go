package unified

import (
	"context"
	"database/sql"
	"fmt"
)

// FunctionRow is one function known to the call graph.
type FunctionRow struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Language string `json:"language,omitempty"`
}

// CallRow is one caller -> callee edge.
type CallRow struct {
	CallerID string `json:"callerId"`
	Callee   string `json:"callee"`
	File     string `json:"file,omitempty"`
	Line     int    `json:"line"`
}

// DataAccessRow is one function -> table access edge.
type DataAccessRow struct {
	FunctionID string `json:"functionId"`
	Table      string `json:"table"`
	AccessType string `json:"accessType"`
	Line       int    `json:"line"`
}

// CallSite is one resolved call for lookups.
type CallSite struct {
	CallerName string `json:"callerName,omitempty"`
	Callee     string `json:"callee"`
	File       string `json:"file"`
	Line       int    `json:"line"`
}

// CallGraphRepo persists the call graph synced from the lake database.
type CallGraphRepo struct {
	s *UnifiedStore
}

// UpsertFunction saves or replaces one function row.
func (r *CallGraphRepo) UpsertFunction(f FunctionRow) error {
	db, err := r.s.handle()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(context.Background(), `
		INSERT OR REPLACE INTO callgraph_functions (id, name, file, line, language)
		VALUES (?, ?, ?, ?, ?)
	`, f.ID, f.Name, f.File, f.Line, f.Language)
	if err != nil {
		return fmt.Errorf("upsert function %s: %w", f.ID, err)
	}
	return nil
}

// UpsertCall saves or replaces one call edge.
func (r *CallGraphRepo) UpsertCall(c CallRow) error {
	db, err := r.s.handle()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(context.Background(), `
		INSERT OR REPLACE INTO callgraph_calls (caller_id, callee, file, line)
		VALUES (?, ?, ?, ?)
	`, c.CallerID, c.Callee, c.File, c.Line)
	return err
}

// UpsertDataAccess saves or replaces one data-access edge.
func (r *CallGraphRepo) UpsertDataAccess(d DataAccessRow) error {
	db, err := r.s.handle()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(context.Background(), `
		INSERT OR REPLACE INTO callgraph_data_access (function_id, table_name, access_type, line)
		VALUES (?, ?, ?, ?)
	`, d.FunctionID, d.Table, d.AccessType, d.Line)
	return err
}

// IncomingCalls returns every call site whose callee matches name, either
// exactly or as a qualified suffix.
func (r *CallGraphRepo) IncomingCalls(name string) ([]CallSite, error) {
	db, err := r.s.handle()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(context.Background(), `
		SELECT f.name, c.callee, c.file, c.line
		FROM callgraph_calls c
		LEFT JOIN callgraph_functions f ON f.id = c.caller_id
		WHERE c.callee = ? OR c.callee LIKE ?
		ORDER BY c.file, c.line
	`, name, "%."+name)
	if err != nil {
		return nil, fmt.Errorf("query incoming calls: %w", err)
	}
	defer rows.Close()
	return scanCallSites(rows)
}

// OutgoingCalls returns every call made from the named function.
func (r *CallGraphRepo) OutgoingCalls(callerName string) ([]CallSite, error) {
	db, err := r.s.handle()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(context.Background(), `
		SELECT f.name, c.callee, c.file, c.line
		FROM callgraph_calls c
		JOIN callgraph_functions f ON f.id = c.caller_id
		WHERE f.name = ?
		ORDER BY c.line
	`, callerName)
	if err != nil {
		return nil, fmt.Errorf("query outgoing calls: %w", err)
	}
	defer rows.Close()
	return scanCallSites(rows)
}

func scanCallSites(rows *sql.Rows) ([]CallSite, error) {
	var out []CallSite
	for rows.Next() {
		var cs CallSite
		var caller sql.NullString
		if err := rows.Scan(&caller, &cs.Callee, &cs.File, &cs.Line); err != nil {
			return nil, err
		}
		cs.CallerName = caller.String
		out = append(out, cs)
	}
	return out, rows.Err()
}
