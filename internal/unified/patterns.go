package unified

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mehmetkoksal-w/driftwatch/internal/drift"
)

// PatternRepo persists patterns, their locations, and their outliers.
type PatternRepo struct {
	s *UnifiedStore
}

// Upsert saves or replaces a pattern and rewrites its location and outlier
// rows, so repeated syncs of the same source are idempotent.
func (r *PatternRepo) Upsert(p *drift.Pattern) error {
	db, err := r.s.handle()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(context.Background(), `
		INSERT OR REPLACE INTO patterns (
			id, name, description, category, status,
			confidence, frequency, consistency, age, spread,
			severity, auto_fixable, first_seen, last_seen,
			approved_at, approved_by, source
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.Name, p.Description, string(p.Category), string(p.Status),
		p.Confidence.Score, p.Confidence.Frequency, p.Confidence.Consistency,
		p.Confidence.Age, p.Confidence.Spread,
		string(p.Severity), boolInt(p.AutoFixable),
		timeStr(p.Metadata.FirstSeen), timeStr(p.Metadata.LastSeen),
		timeStr(p.Metadata.ApprovedAt), p.Metadata.ApprovedBy, p.Metadata.Source,
	)
	if err != nil {
		return fmt.Errorf("upsert pattern %s: %w", p.ID, err)
	}

	if _, err := db.ExecContext(context.Background(),
		`DELETE FROM pattern_locations WHERE pattern_id = ?`, p.ID); err != nil {
		return err
	}
	for _, loc := range p.Locations {
		if _, err := db.ExecContext(context.Background(), `
			INSERT OR REPLACE INTO pattern_locations (pattern_id, file, line, col, end_line, end_column)
			VALUES (?, ?, ?, ?, ?, ?)
		`, p.ID, loc.File, loc.Line, loc.Column, loc.EndLine, loc.EndColumn); err != nil {
			return fmt.Errorf("upsert location for %s: %w", p.ID, err)
		}
	}

	if _, err := db.ExecContext(context.Background(),
		`DELETE FROM pattern_outliers WHERE pattern_id = ?`, p.ID); err != nil {
		return err
	}
	for _, o := range p.Outliers {
		if _, err := db.ExecContext(context.Background(), `
			INSERT OR REPLACE INTO pattern_outliers (pattern_id, file, line, reason, deviation_score)
			VALUES (?, ?, ?, ?, ?)
		`, p.ID, o.File, o.Line, o.Reason, o.DeviationScore); err != nil {
			return fmt.Errorf("upsert outlier for %s: %w", p.ID, err)
		}
	}
	return nil
}

// Get retrieves a pattern by ID, or nil if absent.
func (r *PatternRepo) Get(id string) (*drift.Pattern, error) {
	db, err := r.s.handle()
	if err != nil {
		return nil, err
	}
	row := db.QueryRowContext(context.Background(), `
		SELECT id, name, description, category, status,
			confidence, frequency, consistency, age, spread,
			severity, auto_fixable, first_seen, last_seen,
			approved_at, approved_by, source
		FROM patterns WHERE id = ?
	`, id)

	p := &drift.Pattern{}
	var category, status, severity string
	var autoFixable int
	var firstSeen, lastSeen, approvedAt sql.NullString
	err = row.Scan(
		&p.ID, &p.Name, &p.Description, &category, &status,
		&p.Confidence.Score, &p.Confidence.Frequency, &p.Confidence.Consistency,
		&p.Confidence.Age, &p.Confidence.Spread,
		&severity, &autoFixable, &firstSeen, &lastSeen,
		&approvedAt, &p.Metadata.ApprovedBy, &p.Metadata.Source,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pattern %s: %w", id, err)
	}
	p.Category = drift.Category(category)
	p.Status = drift.Status(status)
	p.Severity = drift.Severity(severity)
	p.AutoFixable = autoFixable != 0
	p.Confidence.Level = drift.LevelFor(p.Confidence.Score)
	p.Metadata.FirstSeen = parseTime(firstSeen)
	p.Metadata.LastSeen = parseTime(lastSeen)
	p.Metadata.ApprovedAt = parseTime(approvedAt)

	p.Locations, err = r.locations(id)
	if err != nil {
		return nil, err
	}
	p.Outliers, err = r.outliers(id)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PatternRepo) locations(id string) ([]drift.Location, error) {
	rows, err := r.s.db.QueryContext(context.Background(), `
		SELECT file, line, col, end_line, end_column
		FROM pattern_locations WHERE pattern_id = ? ORDER BY file, line
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []drift.Location
	for rows.Next() {
		var loc drift.Location
		if err := rows.Scan(&loc.File, &loc.Line, &loc.Column, &loc.EndLine, &loc.EndColumn); err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}

func (r *PatternRepo) outliers(id string) ([]drift.Outlier, error) {
	rows, err := r.s.db.QueryContext(context.Background(), `
		SELECT file, line, reason, deviation_score
		FROM pattern_outliers WHERE pattern_id = ? ORDER BY file, line
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []drift.Outlier
	for rows.Next() {
		var o drift.Outlier
		if err := rows.Scan(&o.File, &o.Line, &o.Reason, &o.DeviationScore); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// List returns patterns filtered by status and category; empty strings
// mean no filter.
func (r *PatternRepo) List(status drift.Status, category drift.Category) ([]*drift.Pattern, error) {
	db, err := r.s.handle()
	if err != nil {
		return nil, err
	}
	query := `SELECT id FROM patterns WHERE 1=1`
	var args []any
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	if category != "" {
		query += " AND category = ?"
		args = append(args, string(category))
	}
	query += " ORDER BY last_seen DESC"

	rows, err := db.QueryContext(context.Background(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*drift.Pattern, 0, len(ids))
	for _, id := range ids {
		p, err := r.Get(id)
		if err != nil {
			return nil, err
		}
		if p != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

// UpdateStatus changes a pattern's status; unlike the legacy file layout,
// the SQLite layout also allows category changes via Upsert.
func (r *PatternRepo) UpdateStatus(id string, status drift.Status) error {
	db, err := r.s.handle()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(context.Background(),
		`UPDATE patterns SET status = ?, last_seen = ? WHERE id = ?`,
		string(status), timeStr(time.Now().UTC()), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", id, drift.ErrNotFound)
	}
	return nil
}

// Delete removes a pattern and, through cascade, its locations and outliers.
func (r *PatternRepo) Delete(id string) error {
	db, err := r.s.handle()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(context.Background(), `DELETE FROM patterns WHERE id = ?`, id)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func timeStr(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
