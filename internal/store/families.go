package store

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/mehmetkoksal-w/driftwatch/internal/drift"
)

// DefaultDebounce is how long a mutation burst may grow before autosave.
const DefaultDebounce = 500 * time.Millisecond

// PatternStore holds detected patterns under <project>/.drift/patterns.
type PatternStore struct {
	*Store[*drift.Pattern]
}

// NewPatternStore creates the pattern store for a project root.
func NewPatternStore(driftDir string) *PatternStore {
	return &PatternStore{Store: New(Options[*drift.Pattern]{
		Dir:         filepath.Join(driftDir, "patterns"),
		Transitions: drift.PatternTransitions,
		Debounce:    DefaultDebounce,
		Accessors: Accessors[*drift.Pattern]{
			Text:       func(p *drift.Pattern) string { return p.Name },
			Confidence: func(p *drift.Pattern) float64 { return p.Confidence.Score },
			Compare:    comparePatterns,
		},
	})}
}

// Approve moves a discovered or ignored pattern to approved, stamping the
// approval metadata.
func (s *PatternStore) Approve(id, by string) (*drift.Pattern, error) {
	if _, err := s.Transition(id, drift.StatusApproved); err != nil {
		return nil, err
	}
	return s.Update(id, func(p *drift.Pattern) {
		p.Metadata.ApprovedAt = time.Now().UTC()
		p.Metadata.ApprovedBy = by
	})
}

// Ignore moves a pattern to ignored.
func (s *PatternStore) Ignore(id string) (*drift.Pattern, error) {
	return s.Transition(id, drift.StatusIgnored)
}

func comparePatterns(a, b *drift.Pattern, field string) int {
	switch field {
	case "name":
		return strings.Compare(a.Name, b.Name)
	case "category":
		return strings.Compare(string(a.Category), string(b.Category))
	case "confidence":
		return compareFloat(a.Confidence.Score, b.Confidence.Score)
	case "lastSeen":
		return a.Metadata.LastSeen.Compare(b.Metadata.LastSeen)
	case "outliers":
		return len(a.Outliers) - len(b.Outliers)
	}
	return 0
}

// ContractStore holds detected contracts under <project>/.drift/contracts.
// All categories share one contracts.json per status.
type ContractStore struct {
	*Store[*drift.Contract]
}

// NewContractStore creates the contract store for a project root.
func NewContractStore(driftDir string) *ContractStore {
	return &ContractStore{Store: New(Options[*drift.Contract]{
		Dir:         filepath.Join(driftDir, "contracts"),
		Transitions: drift.ContractTransitions,
		FileBase:    "contracts",
		Debounce:    DefaultDebounce,
		Accessors: Accessors[*drift.Contract]{
			Text:       func(c *drift.Contract) string { return c.Endpoint },
			Confidence: func(c *drift.Contract) float64 { return c.Confidence.Score },
			Method:     func(c *drift.Contract) string { return c.Method },
			Mismatches: func(c *drift.Contract) int { return len(c.Mismatches) },
			Compare:    compareContracts,
		},
	})}
}

// Verify moves a contract to verified and records who verified it.
func (s *ContractStore) Verify(id, by string) (*drift.Contract, error) {
	if _, err := s.Transition(id, drift.StatusVerified); err != nil {
		return nil, err
	}
	return s.Update(id, func(c *drift.Contract) {
		c.VerifiedBy = by
	})
}

// MarkMismatch moves a contract to mismatch.
func (s *ContractStore) MarkMismatch(id string) (*drift.Contract, error) {
	return s.Transition(id, drift.StatusMismatch)
}

// Ignore moves a contract to ignored.
func (s *ContractStore) Ignore(id string) (*drift.Contract, error) {
	return s.Transition(id, drift.StatusIgnored)
}

func compareContracts(a, b *drift.Contract, field string) int {
	switch field {
	case "endpoint":
		return strings.Compare(a.Endpoint, b.Endpoint)
	case "method":
		return strings.Compare(a.Method, b.Method)
	case "confidence":
		return compareFloat(a.Confidence.Score, b.Confidence.Score)
	case "lastSeen":
		return a.Metadata.LastSeen.Compare(b.Metadata.LastSeen)
	case "mismatches":
		return len(a.Mismatches) - len(b.Mismatches)
	}
	return 0
}

// ConstraintStore holds constraints under <project>/.drift/constraints.
type ConstraintStore struct {
	*Store[*drift.Constraint]
}

// NewConstraintStore creates the constraint store for a project root.
func NewConstraintStore(driftDir string) *ConstraintStore {
	return &ConstraintStore{Store: New(Options[*drift.Constraint]{
		Dir:         filepath.Join(driftDir, "constraints"),
		Transitions: drift.PatternTransitions,
		Debounce:    DefaultDebounce,
		Accessors: Accessors[*drift.Constraint]{
			Text:       func(c *drift.Constraint) string { return c.Name },
			Confidence: func(c *drift.Constraint) float64 { return c.Confidence.Score },
			Compare: func(a, b *drift.Constraint, field string) int {
				switch field {
				case "name":
					return strings.Compare(a.Name, b.Name)
				case "confidence":
					return compareFloat(a.Confidence.Score, b.Confidence.Score)
				}
				return 0
			},
		},
	})}
}

// Approve moves a constraint to approved.
func (s *ConstraintStore) Approve(id string) (*drift.Constraint, error) {
	return s.Transition(id, drift.StatusApproved)
}

// Ignore moves a constraint to ignored.
func (s *ConstraintStore) Ignore(id string) (*drift.Constraint, error) {
	return s.Transition(id, drift.StatusIgnored)
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Stats summarizes one entity family.
type Stats struct {
	Total         int                    `json:"total"`
	ByStatus      map[drift.Status]int   `json:"byStatus"`
	ByCategory    map[drift.Category]int `json:"byCategory"`
	AvgConfidence float64                `json:"avgConfidence"`
}

// Stats computes counts by status and category plus average confidence.
func (s *Store[T]) Stats() Stats {
	items := s.All()
	st := Stats{
		ByStatus:   make(map[drift.Status]int),
		ByCategory: make(map[drift.Category]int),
	}
	var sum float64
	for _, ent := range items {
		status, category := ent.Partition()
		st.Total++
		st.ByStatus[status]++
		st.ByCategory[category]++
		if s.opts.Accessors.Confidence != nil {
			sum += s.opts.Accessors.Confidence(ent)
		}
	}
	if st.Total > 0 {
		st.AvgConfidence = sum / float64(st.Total)
	}
	return st
}
