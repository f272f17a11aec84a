package unified

import (
	"context"
	"fmt"
	"time"
)

// DNAProfileRow is one styling/DNA profile document.
type DNAProfileRow struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Profile   string    `json:"profile"` // JSON document as produced upstream
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// DNARepo persists styling/DNA profiles.
type DNARepo struct {
	s *UnifiedStore
}

// Upsert saves or replaces one profile.
func (r *DNARepo) Upsert(p DNAProfileRow) error {
	db, err := r.s.handle()
	if err != nil {
		return err
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	_, err = db.ExecContext(context.Background(), `
		INSERT OR REPLACE INTO dna_profiles (id, name, kind, profile, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.Kind, p.Profile, timeStr(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert dna profile %s: %w", p.ID, err)
	}
	return nil
}

// TopologyRow links one test file to the subject it covers.
type TopologyRow struct {
	ID          string `json:"id"`
	TestFile    string `json:"testFile"`
	SubjectFile string `json:"subjectFile,omitempty"`
	Kind        string `json:"kind"`
	Cases       int    `json:"cases"`
}

// TopologyRepo persists the test topology.
type TopologyRepo struct {
	s *UnifiedStore
}

// Upsert saves or replaces one topology row.
func (r *TopologyRepo) Upsert(t TopologyRow) error {
	db, err := r.s.handle()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(context.Background(), `
		INSERT OR REPLACE INTO test_topology (id, test_file, subject_file, kind, cases)
		VALUES (?, ?, ?, ?, ?)
	`, t.ID, t.TestFile, t.SubjectFile, t.Kind, t.Cases)
	if err != nil {
		return fmt.Errorf("upsert topology row %s: %w", t.ID, err)
	}
	return nil
}
