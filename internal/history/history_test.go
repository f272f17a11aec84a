package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mehmetkoksal-w/driftwatch/internal/drift"
)

func testPattern(id, name string, cat drift.Category, score float64, locations, outliers int) *drift.Pattern {
	p := drift.NewPattern(name, cat, score)
	p.ID = id
	for i := 0; i < locations; i++ {
		p.Locations = append(p.Locations, drift.Location{File: "f.go", Line: i + 1})
	}
	for i := 0; i < outliers; i++ {
		p.Outliers = append(p.Outliers, drift.Outlier{Location: drift.Location{File: "o.go", Line: i + 1}, Reason: "off"})
	}
	return p
}

func TestBuildAggregates(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	snap := Build([]*drift.Pattern{
		testPattern("pat_a", "a", drift.CategoryAPI, 0.8, 8, 2),
		testPattern("pat_b", "b", drift.CategoryAPI, 0.6, 4, 0),
		testPattern("pat_c", "c", drift.CategoryLogging, 0.4, 0, 0),
	}, now)

	if snap.Date != "2026-08-28" {
		t.Errorf("date = %s", snap.Date)
	}
	if snap.Patterns["pat_a"].ComplianceRate != 0.8 {
		t.Errorf("pat_a compliance = %f", snap.Patterns["pat_a"].ComplianceRate)
	}
	if snap.Patterns["pat_c"].ComplianceRate != 1 {
		t.Error("no locations means fully compliant")
	}

	api := snap.Categories[drift.CategoryAPI]
	if api.Patterns != 2 || api.Locations != 12 || api.Outliers != 2 {
		t.Errorf("api summary = %+v", api)
	}
	if diff := api.AvgConfidence - 0.7; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("api avg confidence = %f", api.AvgConfidence)
	}

	proj := snap.Project
	if proj.Patterns != 3 {
		t.Errorf("project count = %d", proj.Patterns)
	}
	want := 12.0 / 14.0
	if diff := proj.ComplianceRate - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("project compliance = %f, want %f", proj.ComplianceRate, want)
	}
}

func TestCreateSnapshotOverwritesSameDay(t *testing.T) {
	e := New(t.TempDir(), 0)
	now := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)

	if _, err := e.createSnapshotAt([]*drift.Pattern{testPattern("pat_a", "a", drift.CategoryAPI, 0.5, 1, 0)}, now); err != nil {
		t.Fatal(err)
	}
	later := now.Add(4 * time.Hour)
	if _, err := e.createSnapshotAt([]*drift.Pattern{
		testPattern("pat_a", "a", drift.CategoryAPI, 0.5, 1, 0),
		testPattern("pat_b", "b", drift.CategoryAPI, 0.9, 2, 0),
	}, later); err != nil {
		t.Fatal(err)
	}

	dates, err := e.Dates()
	if err != nil || len(dates) != 1 {
		t.Fatalf("dates = %v, %v", dates, err)
	}
	snap, err := e.Load(dates[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Patterns) != 2 {
		t.Errorf("same-day snapshot not overwritten: %d patterns", len(snap.Patterns))
	}
}

func TestRetentionPrunesOldest(t *testing.T) {
	e := New(t.TempDir(), 3)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for day := 0; day < 5; day++ {
		if _, err := e.createSnapshotAt(nil, base.AddDate(0, 0, day)); err != nil {
			t.Fatal(err)
		}
	}
	dates, err := e.Dates()
	if err != nil {
		t.Fatal(err)
	}
	if len(dates) != 3 {
		t.Fatalf("dates = %v", dates)
	}
	if dates[0] != "2026-08-03" {
		t.Errorf("oldest kept = %s, want 2026-08-03", dates[0])
	}
}

func TestLoadValidatesShape(t *testing.T) {
	driftDir := t.TempDir()
	e := New(driftDir, 0)
	dir := filepath.Join(driftDir, "history", "snapshots")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	// Unknown fields are tolerated.
	good := `{"date": "2026-08-20", "patterns": {}, "futureField": 1}`
	if err := os.WriteFile(filepath.Join(dir, "2026-08-20.json"), []byte(good), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Load("2026-08-20"); err != nil {
		t.Errorf("valid snapshot rejected: %v", err)
	}

	bad := `{"patterns": {}}`
	if err := os.WriteFile(filepath.Join(dir, "2026-08-21.json"), []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Load("2026-08-21"); err == nil {
		t.Error("snapshot without date should fail validation")
	}
}

func TestCalculateTrendsThresholds(t *testing.T) {
	prev := &Snapshot{Date: "2026-08-01", Patterns: map[string]PatternSnapshot{
		"pat_conf_drop":  {Name: "conf drop", Confidence: 0.80, ComplianceRate: 1},
		"pat_conf_crash": {Name: "conf crash", Confidence: 0.80, ComplianceRate: 1},
		"pat_conf_gain":  {Name: "conf gain", Confidence: 0.60, ComplianceRate: 1},
		"pat_noise":      {Name: "noise", Confidence: 0.60, ComplianceRate: 1},
		"pat_compliance": {Name: "compliance", Confidence: 0.5, ComplianceRate: 0.90},
		"pat_outliers":   {Name: "outliers", Confidence: 0.5, ComplianceRate: 1, OutlierCount: 1},
		"pat_outburst":   {Name: "outburst", Confidence: 0.5, ComplianceRate: 1, OutlierCount: 0},
	}}
	cur := &Snapshot{Date: "2026-08-28", Patterns: map[string]PatternSnapshot{
		"pat_conf_drop":  {Name: "conf drop", Confidence: 0.75, ComplianceRate: 1},
		"pat_conf_crash": {Name: "conf crash", Confidence: 0.60, ComplianceRate: 1},
		"pat_conf_gain":  {Name: "conf gain", Confidence: 0.70, ComplianceRate: 1},
		"pat_noise":      {Name: "noise", Confidence: 0.64, ComplianceRate: 1},
		"pat_compliance": {Name: "compliance", Confidence: 0.5, ComplianceRate: 0.78},
		"pat_outliers":   {Name: "outliers", Confidence: 0.5, ComplianceRate: 1, OutlierCount: 4},
		"pat_outburst":   {Name: "outburst", Confidence: 0.5, ComplianceRate: 1, OutlierCount: 12},
		"pat_new":        {Name: "new", Confidence: 0.1, ComplianceRate: 0.1},
	}}

	byKey := map[string]Trend{}
	for _, tr := range CalculateTrends(cur, prev) {
		byKey[tr.PatternID+"/"+string(tr.Metric)] = tr
	}

	tests := []struct {
		key      string
		kind     Kind
		severity drift.Severity
	}{
		{"pat_conf_drop/confidence", Regression, drift.SeverityWarning},
		{"pat_conf_crash/confidence", Regression, drift.SeverityCritical},
		{"pat_conf_gain/confidence", Improvement, drift.SeverityInfo},
		{"pat_compliance/compliance", Regression, drift.SeverityWarning},
		{"pat_outliers/outliers", Regression, drift.SeverityWarning},
		{"pat_outburst/outliers", Regression, drift.SeverityCritical},
	}
	for _, tt := range tests {
		tr, ok := byKey[tt.key]
		if !ok {
			t.Errorf("%s: not flagged", tt.key)
			continue
		}
		if tr.Kind != tt.kind || tr.Severity != tt.severity {
			t.Errorf("%s: kind=%s severity=%s, want %s/%s", tt.key, tr.Kind, tr.Severity, tt.kind, tt.severity)
		}
	}

	if _, ok := byKey["pat_noise/confidence"]; ok {
		t.Error("sub-threshold confidence delta flagged")
	}
	for key := range byKey {
		if key == "pat_new/confidence" || key == "pat_new/compliance" {
			t.Error("pattern absent from previous snapshot must not trend")
		}
	}
	if len(CalculateTrends(cur, nil)) != 0 {
		t.Error("nil previous snapshot should yield no trends")
	}
}

func TestTrendSummary(t *testing.T) {
	e := New(t.TempDir(), 0)
	older := []*drift.Pattern{
		testPattern("pat_a", "a", drift.CategoryAPI, 0.50, 10, 0),
		testPattern("pat_b", "b", drift.CategoryLogging, 0.70, 5, 5),
	}
	newer := []*drift.Pattern{
		testPattern("pat_a", "a", drift.CategoryAPI, 0.80, 10, 0),
		testPattern("pat_b", "b", drift.CategoryLogging, 0.70, 10, 0),
	}
	now := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	if _, err := e.createSnapshotAt(older, now.AddDate(0, 0, -10)); err != nil {
		t.Fatal(err)
	}
	if _, err := e.createSnapshotAt(newer, now); err != nil {
		t.Fatal(err)
	}

	report, err := e.trendSummaryAt("7d", now)
	if err != nil {
		t.Fatalf("trendSummaryAt failed: %v", err)
	}
	if report == nil {
		t.Fatal("expected a report")
	}
	if report.From != "2026-08-18" || report.To != "2026-08-28" {
		t.Errorf("window = %s..%s", report.From, report.To)
	}
	if len(report.Improvements) != 2 || len(report.Regressions) != 0 {
		t.Errorf("improvements=%d regressions=%d", len(report.Improvements), len(report.Regressions))
	}
	// pat_a improved confidence; pat_b improved compliance; none stable.
	if report.Stable != 0 {
		t.Errorf("stable = %d", report.Stable)
	}
	if report.Categories[drift.CategoryAPI] != Improving {
		t.Errorf("api direction = %s", report.Categories[drift.CategoryAPI])
	}
	if report.Categories[drift.CategoryLogging] != Stable {
		t.Errorf("logging direction = %s", report.Categories[drift.CategoryLogging])
	}
	if report.ProjectTrend != Improving {
		t.Errorf("project trend = %s, healthDelta = %f", report.ProjectTrend, report.HealthDelta)
	}
}

func TestTrendSummaryNeedsHistory(t *testing.T) {
	e := New(t.TempDir(), 0)
	now := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

	report, err := e.trendSummaryAt("30d", now)
	if err != nil || report != nil {
		t.Errorf("empty history: report=%v err=%v", report, err)
	}

	// A single snapshot is still not enough.
	if _, err := e.createSnapshotAt(nil, now); err != nil {
		t.Fatal(err)
	}
	report, err = e.trendSummaryAt("30d", now)
	if err != nil || report != nil {
		t.Errorf("single snapshot: report=%v err=%v", report, err)
	}

	if _, err := e.trendSummaryAt("14d", now); err == nil {
		t.Error("unknown period should error")
	}
}
