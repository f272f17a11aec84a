package unified

import (
	"context"
	"fmt"
	"time"
)

// BoundaryRow is one data-access point on a sensitive table.
type BoundaryRow struct {
	ID          string `json:"id"`
	Table       string `json:"table"`
	File        string `json:"file"`
	Line        int    `json:"line"`
	AccessType  string `json:"accessType"`
	Sensitivity string `json:"sensitivity"`
	Field       string `json:"field,omitempty"`
}

// BoundaryRepo persists data-boundary access points.
type BoundaryRepo struct {
	s *UnifiedStore
}

// Upsert saves or replaces one boundary row.
func (r *BoundaryRepo) Upsert(b BoundaryRow) error {
	db, err := r.s.handle()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(context.Background(), `
		INSERT OR REPLACE INTO data_boundaries (id, table_name, file, line, access_type, sensitivity, field)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, b.ID, b.Table, b.File, b.Line, b.AccessType, b.Sensitivity, b.Field)
	if err != nil {
		return fmt.Errorf("upsert boundary %s: %w", b.ID, err)
	}
	return nil
}

// ListByTable returns the access points recorded against one table.
func (r *BoundaryRepo) ListByTable(table string) ([]BoundaryRow, error) {
	db, err := r.s.handle()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(context.Background(), `
		SELECT id, table_name, file, line, access_type, sensitivity, field
		FROM data_boundaries WHERE table_name = ? ORDER BY file, line
	`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BoundaryRow
	for rows.Next() {
		var b BoundaryRow
		if err := rows.Scan(&b.ID, &b.Table, &b.File, &b.Line, &b.AccessType, &b.Sensitivity, &b.Field); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// EnvVarRow is one environment-variable access point.
type EnvVarRow struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	File        string `json:"file"`
	Line        int    `json:"line"`
	Required    bool   `json:"required"`
	Sensitivity string `json:"sensitivity"`
	Default     string `json:"default,omitempty"`
}

// EnvRepo persists environment-variable access points.
type EnvRepo struct {
	s *UnifiedStore
}

// Upsert saves or replaces one environment-variable row.
func (r *EnvRepo) Upsert(v EnvVarRow) error {
	db, err := r.s.handle()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(context.Background(), `
		INSERT OR REPLACE INTO env_variables (id, name, file, line, required, sensitivity, default_value)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, v.ID, v.Name, v.File, v.Line, boolInt(v.Required), v.Sensitivity, v.Default)
	if err != nil {
		return fmt.Errorf("upsert env var %s: %w", v.ID, err)
	}
	return nil
}

// ListByName returns every access point for one variable name.
func (r *EnvRepo) ListByName(name string) ([]EnvVarRow, error) {
	db, err := r.s.handle()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(context.Background(), `
		SELECT id, name, file, line, required, sensitivity, default_value
		FROM env_variables WHERE name = ? ORDER BY file, line
	`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EnvVarRow
	for rows.Next() {
		var v EnvVarRow
		var required int
		if err := rows.Scan(&v.ID, &v.Name, &v.File, &v.Line, &required, &v.Sensitivity, &v.Default); err != nil {
			return nil, err
		}
		v.Required = required != 0
		out = append(out, v)
	}
	return out, rows.Err()
}

// AuditRecord is one migration or sync run logged for later inspection.
type AuditRecord struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"` // "migrate", "sync", "snapshot"
	Domain    string    `json:"domain,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Records   int       `json:"records"`
	Errors    int       `json:"errors"`
	CreatedAt time.Time `json:"createdAt"`
}

// AuditRepo records every migration/sync run.
type AuditRepo struct {
	s *UnifiedStore
}

// Record appends one audit row.
func (r *AuditRepo) Record(rec AuditRecord) error {
	db, err := r.s.handle()
	if err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err = db.ExecContext(context.Background(), `
		INSERT OR REPLACE INTO audit_log (id, kind, domain, detail, records, errors, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Kind, rec.Domain, rec.Detail, rec.Records, rec.Errors, timeStr(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

// Recent returns the most recent audit records, newest first.
func (r *AuditRepo) Recent(limit int) ([]AuditRecord, error) {
	db, err := r.s.handle()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(context.Background(), `
		SELECT id, kind, domain, detail, records, errors, created_at
		FROM audit_log ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AuditRecord
	for rows.Next() {
		var rec AuditRecord
		var created string
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.Domain, &rec.Detail, &rec.Records, &rec.Errors, &created); err != nil {
			return nil, err
		}
		if ts, perr := time.Parse(time.RFC3339, created); perr == nil {
			rec.CreatedAt = ts
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
