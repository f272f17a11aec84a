package drift

import (
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Location is a place in the codebase where a pattern holds.
type Location struct {
	File      string `json:"file"`
	Line      int    `json:"line"`
	Column    int    `json:"column,omitempty"`
	EndLine   int    `json:"endLine,omitempty"`
	EndColumn int    `json:"endColumn,omitempty"`
}

// Outlier is a location that violates an otherwise-established pattern.
type Outlier struct {
	Location
	Reason         string  `json:"reason"`
	DeviationScore float64 `json:"deviationScore,omitempty"`
}

// Confidence is a structured confidence value with component signals.
type Confidence struct {
	Score       float64         `json:"score"` // 0.0-1.0
	Frequency   float64         `json:"frequency,omitempty"`
	Consistency float64         `json:"consistency,omitempty"`
	Age         float64         `json:"age,omitempty"`
	Spread      float64         `json:"spread,omitempty"`
	Level       ConfidenceLevel `json:"level,omitempty"`
}

// NewConfidence builds a Confidence from a score, clamping into [0,1]
// and deriving the level.
func NewConfidence(score float64) Confidence {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return Confidence{Score: score, Level: LevelFor(score)}
}

// Metadata carries bookkeeping shared by every entity family.
type Metadata struct {
	FirstSeen  time.Time `json:"firstSeen"`
	LastSeen   time.Time `json:"lastSeen"`
	ApprovedAt time.Time `json:"approvedAt,omitzero"`
	ApprovedBy string    `json:"approvedBy,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	Source     string    `json:"source,omitempty"`
}

// touch refreshes lastSeen, keeping firstSeen <= lastSeen.
func (m *Metadata) touch(now time.Time) {
	if m.FirstSeen.IsZero() || m.FirstSeen.After(now) {
		m.FirstSeen = now
	}
	if now.After(m.LastSeen) {
		m.LastSeen = now
	}
}

// Pattern is a detected, recurring code convention.
type Pattern struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Category    Category   `json:"category"`
	Status      Status     `json:"status"`
	Confidence  Confidence `json:"confidence"`
	Locations   []Location `json:"locations,omitempty"`
	Outliers    []Outlier  `json:"outliers,omitempty"`
	Metadata    Metadata   `json:"metadata"`
	Severity    Severity   `json:"severity,omitempty"`
	AutoFixable bool       `json:"autoFixable,omitempty"`
}

// NewPattern creates a pattern in status discovered.
func NewPattern(name string, category Category, score float64) *Pattern {
	now := time.Now().UTC()
	return &Pattern{
		ID:         NewID("pat"),
		Name:       name,
		Category:   category,
		Status:     StatusDiscovered,
		Confidence: NewConfidence(score),
		Severity:   SeverityInfo,
		Metadata:   Metadata{FirstSeen: now, LastSeen: now},
	}
}

// ComplianceRate is locations / (locations + outliers), and 1 when both
// are zero: a pattern nobody violates is fully complied with.
func (p *Pattern) ComplianceRate() float64 {
	total := len(p.Locations) + len(p.Outliers)
	if total == 0 {
		return 1
	}
	return float64(len(p.Locations)) / float64(total)
}

// Mismatch records one field-level disagreement on a contract.
type Mismatch struct {
	FieldPath   string   `json:"fieldPath"`
	Expected    string   `json:"expected,omitempty"`
	Actual      string   `json:"actual,omitempty"`
	Severity    Severity `json:"severity,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Contract is a detected API contract between a producer and its consumers.
type Contract struct {
	ID         string     `json:"id"`
	Method     string     `json:"method"`
	Endpoint   string     `json:"endpoint"`
	Category   Category   `json:"category"`
	Status     Status     `json:"status"`
	Confidence Confidence `json:"confidence"`
	Locations  []Location `json:"locations,omitempty"`
	Outliers   []Outlier  `json:"outliers,omitempty"`
	Mismatches []Mismatch `json:"mismatches,omitempty"`
	Metadata   Metadata   `json:"metadata"`
	VerifiedAt time.Time  `json:"verifiedAt,omitzero"`
	VerifiedBy string     `json:"verifiedBy,omitempty"`
	Severity   Severity   `json:"severity,omitempty"`
}

// NewContract creates a contract in status discovered.
func NewContract(method, endpoint string, score float64) *Contract {
	now := time.Now().UTC()
	return &Contract{
		ID:         NewID("ct"),
		Method:     method,
		Endpoint:   endpoint,
		Category:   CategoryAPI,
		Status:     StatusDiscovered,
		Confidence: NewConfidence(score),
		Severity:   SeverityInfo,
		Metadata:   Metadata{FirstSeen: now, LastSeen: now},
	}
}

// Constraint is an enforced rule scoped to a set of file globs.
type Constraint struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Category    Category   `json:"category"`
	Status      Status     `json:"status"`
	Confidence  Confidence `json:"confidence"`
	AppliesTo   []string   `json:"appliesTo,omitempty"` // doublestar globs
	Rule        string     `json:"rule,omitempty"`
	Locations   []Location `json:"locations,omitempty"`
	Outliers    []Outlier  `json:"outliers,omitempty"`
	Metadata    Metadata   `json:"metadata"`
	Severity    Severity   `json:"severity,omitempty"`
}

// AppliesToFile reports whether any of the constraint's globs match path.
// A constraint with no globs applies everywhere.
func (c *Constraint) AppliesToFile(path string) bool {
	if len(c.AppliesTo) == 0 {
		return true
	}
	for _, glob := range c.AppliesTo {
		if ok, err := doublestar.Match(glob, path); err == nil && ok {
			return true
		}
	}
	return false
}
