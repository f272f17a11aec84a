package unified

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mehmetkoksal-w/driftwatch/internal/drift"
)

// ConstraintRepo persists constraints.
type ConstraintRepo struct {
	s *UnifiedStore
}

// Upsert saves or replaces a constraint row. The appliesTo globs are stored
// as a JSON array.
func (r *ConstraintRepo) Upsert(c *drift.Constraint) error {
	db, err := r.s.handle()
	if err != nil {
		return err
	}
	appliesTo, err := json.Marshal(c.AppliesTo)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(context.Background(), `
		INSERT OR REPLACE INTO constraints (
			id, name, description, category, status, confidence,
			applies_to, rule, severity, first_seen, last_seen
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.Name, c.Description, string(c.Category), string(c.Status),
		c.Confidence.Score, string(appliesTo), c.Rule, string(c.Severity),
		timeStr(c.Metadata.FirstSeen), timeStr(c.Metadata.LastSeen),
	)
	if err != nil {
		return fmt.Errorf("upsert constraint %s: %w", c.ID, err)
	}
	return nil
}

// Get retrieves a constraint by ID, or nil if absent.
func (r *ConstraintRepo) Get(id string) (*drift.Constraint, error) {
	db, err := r.s.handle()
	if err != nil {
		return nil, err
	}
	row := db.QueryRowContext(context.Background(), `
		SELECT id, name, description, category, status, confidence,
			applies_to, rule, severity, first_seen, last_seen
		FROM constraints WHERE id = ?
	`, id)

	c := &drift.Constraint{}
	var category, status, severity, appliesTo string
	var firstSeen, lastSeen sql.NullString
	err = row.Scan(
		&c.ID, &c.Name, &c.Description, &category, &status, &c.Confidence.Score,
		&appliesTo, &c.Rule, &severity, &firstSeen, &lastSeen,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get constraint %s: %w", id, err)
	}
	c.Category = drift.Category(category)
	c.Status = drift.Status(status)
	c.Severity = drift.Severity(severity)
	c.Confidence.Level = drift.LevelFor(c.Confidence.Score)
	c.Metadata.FirstSeen = parseTime(firstSeen)
	c.Metadata.LastSeen = parseTime(lastSeen)
	if appliesTo != "" {
		_ = json.Unmarshal([]byte(appliesTo), &c.AppliesTo)
	}
	return c, nil
}

// List returns every constraint, newest first.
func (r *ConstraintRepo) List() ([]*drift.Constraint, error) {
	db, err := r.s.handle()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(context.Background(),
		`SELECT id FROM constraints ORDER BY last_seen DESC`)
	if err != nil {
		return nil, fmt.Errorf("list constraints: %w", err)
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

	out := make([]*drift.Constraint, 0, len(ids))
	for _, id := range ids {
		c, err := r.Get(id)
		if err != nil {
			return nil, err
		}
		if c != nil {
			out = append(out, c)
		}
	}
	return out, nil
}
