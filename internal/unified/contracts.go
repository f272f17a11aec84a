package unified

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mehmetkoksal-w/driftwatch/internal/drift"
)

// ContractRepo persists contracts.
type ContractRepo struct {
	s *UnifiedStore
}

// Upsert saves or replaces a contract row.
func (r *ContractRepo) Upsert(c *drift.Contract) error {
	db, err := r.s.handle()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(context.Background(), `
		INSERT OR REPLACE INTO contracts (
			id, method, endpoint, category, status, confidence,
			mismatches, severity, first_seen, last_seen, verified_at, verified_by
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.Method, c.Endpoint, string(c.Category), string(c.Status),
		c.Confidence.Score, len(c.Mismatches), string(c.Severity),
		timeStr(c.Metadata.FirstSeen), timeStr(c.Metadata.LastSeen),
		timeStr(c.VerifiedAt), c.VerifiedBy,
	)
	if err != nil {
		return fmt.Errorf("upsert contract %s: %w", c.ID, err)
	}
	return nil
}

// Get retrieves a contract by ID, or nil if absent. Locations, outliers,
// and mismatch details live in the file store; the unified row keeps the
// reporting fields.
func (r *ContractRepo) Get(id string) (*drift.Contract, error) {
	db, err := r.s.handle()
	if err != nil {
		return nil, err
	}
	row := db.QueryRowContext(context.Background(), `
		SELECT id, method, endpoint, category, status, confidence,
			severity, first_seen, last_seen, verified_at, verified_by
		FROM contracts WHERE id = ?
	`, id)

	c := &drift.Contract{}
	var category, status, severity string
	var firstSeen, lastSeen, verifiedAt sql.NullString
	err = row.Scan(
		&c.ID, &c.Method, &c.Endpoint, &category, &status, &c.Confidence.Score,
		&severity, &firstSeen, &lastSeen, &verifiedAt, &c.VerifiedBy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get contract %s: %w", id, err)
	}
	c.Category = drift.Category(category)
	c.Status = drift.Status(status)
	c.Severity = drift.Severity(severity)
	c.Confidence.Level = drift.LevelFor(c.Confidence.Score)
	c.Metadata.FirstSeen = parseTime(firstSeen)
	c.Metadata.LastSeen = parseTime(lastSeen)
	c.VerifiedAt = parseTime(verifiedAt)
	return c, nil
}

// List returns contracts filtered by status; empty means all.
func (r *ContractRepo) List(status drift.Status) ([]*drift.Contract, error) {
	db, err := r.s.handle()
	if err != nil {
		return nil, err
	}
	query := `SELECT id FROM contracts WHERE 1=1`
	var args []any
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY last_seen DESC"

	rows, err := db.QueryContext(context.Background(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
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

	out := make([]*drift.Contract, 0, len(ids))
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

// Delete removes a contract row.
func (r *ContractRepo) Delete(id string) error {
	db, err := r.s.handle()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(context.Background(), `DELETE FROM contracts WHERE id = ?`, id)
	return err
}
