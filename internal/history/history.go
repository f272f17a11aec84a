// Package history persists daily snapshots of the pattern population
// and derives trends between them.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mehmetkoksal-w/driftwatch/internal/drift"
	"github.com/mehmetkoksal-w/driftwatch/internal/fsutil"
	"github.com/mehmetkoksal-w/driftwatch/internal/validate"
	"github.com/mehmetkoksal-w/driftwatch/schemas"
)

// DefaultRetention is how many daily snapshots are kept before the
// oldest are pruned.
const DefaultRetention = 90

// DateFormat keys snapshot files; one snapshot per calendar day.
const DateFormat = "2006-01-02"

// PatternSnapshot is one pattern's state at snapshot time.
type PatternSnapshot struct {
	Name           string         `json:"name"`
	Category       drift.Category `json:"category"`
	Status         drift.Status   `json:"status"`
	Confidence     float64        `json:"confidence"`
	LocationCount  int            `json:"locationCount"`
	OutlierCount   int            `json:"outlierCount"`
	ComplianceRate float64        `json:"complianceRate"`
}

// Summary aggregates a group of patterns, either one category or the
// whole project.
type Summary struct {
	Patterns       int     `json:"patterns"`
	AvgConfidence  float64 `json:"avgConfidence"`
	Locations      int     `json:"locations"`
	Outliers       int     `json:"outliers"`
	ComplianceRate float64 `json:"complianceRate"`
}

// Snapshot is one day's recorded state.
type Snapshot struct {
	Date       string                     `json:"date"`
	CreatedAt  time.Time                  `json:"createdAt"`
	Project    Summary                    `json:"project"`
	Categories map[drift.Category]Summary `json:"categories"`
	Patterns   map[string]PatternSnapshot `json:"patterns"`
}

// Engine owns the snapshot directory for one project.
type Engine struct {
	dir       string
	retention int
}

// New returns an engine rooted under a project's .drift directory.
// A non-positive retention falls back to DefaultRetention.
func New(driftDir string, retention int) *Engine {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Engine{
		dir:       filepath.Join(driftDir, "history", "snapshots"),
		retention: retention,
	}
}

// CreateSnapshot records today's state and prunes old snapshots. A
// snapshot already written today is overwritten.
func (e *Engine) CreateSnapshot(patterns []*drift.Pattern) (*Snapshot, error) {
	return e.createSnapshotAt(patterns, time.Now().UTC())
}

func (e *Engine) createSnapshotAt(patterns []*drift.Pattern, now time.Time) (*Snapshot, error) {
	snap := Build(patterns, now)
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, err
	}
	path := filepath.Join(e.dir, snap.Date+".json")
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write snapshot %s: %w", snap.Date, err)
	}
	if err := e.prune(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Build computes a snapshot without persisting it.
func Build(patterns []*drift.Pattern, now time.Time) *Snapshot {
	snap := &Snapshot{
		Date:       now.Format(DateFormat),
		CreatedAt:  now,
		Categories: map[drift.Category]Summary{},
		Patterns:   make(map[string]PatternSnapshot, len(patterns)),
	}
	type agg struct {
		count      int
		confidence float64
		locations  int
		outliers   int
	}
	byCategory := map[drift.Category]*agg{}
	total := &agg{}
	for _, p := range patterns {
		ps := PatternSnapshot{
			Name:           p.Name,
			Category:       p.Category,
			Status:         p.Status,
			Confidence:     p.Confidence.Score,
			LocationCount:  len(p.Locations),
			OutlierCount:   len(p.Outliers),
			ComplianceRate: p.ComplianceRate(),
		}
		snap.Patterns[p.ID] = ps

		ca := byCategory[p.Category]
		if ca == nil {
			ca = &agg{}
			byCategory[p.Category] = ca
		}
		for _, a := range []*agg{total, ca} {
			a.count++
			a.confidence += ps.Confidence
			a.locations += ps.LocationCount
			a.outliers += ps.OutlierCount
		}
	}
	for cat, a := range byCategory {
		snap.Categories[cat] = summarize(a.count, a.confidence, a.locations, a.outliers)
	}
	snap.Project = summarize(total.count, total.confidence, total.locations, total.outliers)
	return snap
}

func summarize(count int, confidence float64, locations, outliers int) Summary {
	s := Summary{
		Patterns:       count,
		Locations:      locations,
		Outliers:       outliers,
		ComplianceRate: 1,
	}
	if count > 0 {
		s.AvgConfidence = confidence / float64(count)
	}
	if locations+outliers > 0 {
		s.ComplianceRate = float64(locations) / float64(locations+outliers)
	}
	return s
}

// prune deletes the oldest snapshots beyond the retention count. Date
// file names sort lexically in chronological order.
func (e *Engine) prune() error {
	dates, err := e.Dates()
	if err != nil {
		return err
	}
	for len(dates) > e.retention {
		if err := os.Remove(filepath.Join(e.dir, dates[0]+".json")); err != nil {
			return err
		}
		dates = dates[1:]
	}
	return nil
}

// Dates lists available snapshot dates, oldest first.
func (e *Engine) Dates() ([]string, error) {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var dates []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		date := strings.TrimSuffix(name, ".json")
		if _, err := time.Parse(DateFormat, date); err != nil {
			continue
		}
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates, nil
}

// Load reads and validates one snapshot by date. Unknown fields in
// the file are tolerated.
func (e *Engine) Load(date string) (*Snapshot, error) {
	path := filepath.Join(e.dir, date+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", date, err)
	}
	if err := validate.Bytes(data, schemas.Snapshot, path); err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", date, err)
	}
	return &snap, nil
}

// Latest returns the newest snapshot, or nil if none exist.
func (e *Engine) Latest() (*Snapshot, error) {
	dates, err := e.Dates()
	if err != nil || len(dates) == 0 {
		return nil, err
	}
	return e.Load(dates[len(dates)-1])
}

// onOrBefore returns the newest snapshot dated on or before cutoff,
// or nil when history does not reach back that far.
func (e *Engine) onOrBefore(cutoff string) (*Snapshot, error) {
	dates, err := e.Dates()
	if err != nil {
		return nil, err
	}
	for i := len(dates) - 1; i >= 0; i-- {
		if dates[i] <= cutoff {
			return e.Load(dates[i])
		}
	}
	return nil, nil
}
