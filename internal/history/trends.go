package history

import (
	"fmt"
	"time"

	"github.com/mehmetkoksal-w/driftwatch/internal/drift"
)

// Metric names the quantity a trend entry tracks.
type Metric string

const (
	MetricConfidence Metric = "confidence"
	MetricCompliance Metric = "compliance"
	MetricOutliers   Metric = "outliers"
)

// Kind classifies a trend entry.
type Kind string

const (
	Regression  Kind = "regression"
	Improvement Kind = "improvement"
)

// Flagging thresholds. A delta below its threshold is noise and
// produces no trend entry.
const (
	confidenceThreshold = 0.05
	confidenceCritical  = -0.15
	complianceThreshold = 0.10
	complianceCritical  = -0.20
	outlierThreshold    = 3
	outlierCritical     = 10
)

// Trend is one flagged change in one pattern between two snapshots.
type Trend struct {
	PatternID   string         `json:"patternId"`
	PatternName string         `json:"patternName"`
	Metric      Metric         `json:"metric"`
	Kind        Kind           `json:"kind"`
	Severity    drift.Severity `json:"severity"`
	Before      float64        `json:"before"`
	After       float64        `json:"after"`
	Delta       float64        `json:"delta"`
}

// CalculateTrends compares two snapshots pattern by pattern. Patterns
// present in only one snapshot are not trended. Each pattern can
// contribute up to three entries, one per metric.
func CalculateTrends(current, previous *Snapshot) []Trend {
	if current == nil || previous == nil {
		return nil
	}
	var trends []Trend
	for id, cur := range current.Patterns {
		prev, ok := previous.Patterns[id]
		if !ok {
			continue
		}

		if delta := cur.Confidence - prev.Confidence; abs(delta) >= confidenceThreshold {
			t := Trend{
				PatternID:   id,
				PatternName: cur.Name,
				Metric:      MetricConfidence,
				Kind:        Improvement,
				Severity:    drift.SeverityInfo,
				Before:      prev.Confidence,
				After:       cur.Confidence,
				Delta:       delta,
			}
			if delta < 0 {
				t.Kind = Regression
				t.Severity = drift.SeverityWarning
				if delta <= confidenceCritical {
					t.Severity = drift.SeverityCritical
				}
			}
			trends = append(trends, t)
		}

		if delta := cur.ComplianceRate - prev.ComplianceRate; abs(delta) >= complianceThreshold {
			t := Trend{
				PatternID:   id,
				PatternName: cur.Name,
				Metric:      MetricCompliance,
				Kind:        Improvement,
				Severity:    drift.SeverityInfo,
				Before:      prev.ComplianceRate,
				After:       cur.ComplianceRate,
				Delta:       delta,
			}
			if delta < 0 {
				t.Kind = Regression
				t.Severity = drift.SeverityWarning
				if delta <= complianceCritical {
					t.Severity = drift.SeverityCritical
				}
			}
			trends = append(trends, t)
		}

		if increase := cur.OutlierCount - prev.OutlierCount; increase >= outlierThreshold {
			t := Trend{
				PatternID:   id,
				PatternName: cur.Name,
				Metric:      MetricOutliers,
				Kind:        Regression,
				Severity:    drift.SeverityWarning,
				Before:      float64(prev.OutlierCount),
				After:       float64(cur.OutlierCount),
				Delta:       float64(increase),
			}
			if increase >= outlierCritical {
				t.Severity = drift.SeverityCritical
			}
			trends = append(trends, t)
		}
	}
	return trends
}

// Direction summarizes where a category or the project is heading.
type Direction string

const (
	Improving Direction = "improving"
	Declining Direction = "declining"
	Stable    Direction = "stable"
)

// directionThreshold is the dead band around zero for direction calls.
const directionThreshold = 0.02

// TrendReport is the answer to "how has the project changed over the
// last N days".
type TrendReport struct {
	Period       string                       `json:"period"`
	From         string                       `json:"from"`
	To           string                       `json:"to"`
	Regressions  []Trend                      `json:"regressions,omitempty"`
	Improvements []Trend                      `json:"improvements,omitempty"`
	Stable       int                          `json:"stable"`
	Categories   map[drift.Category]Direction `json:"categories"`
	ProjectTrend Direction                    `json:"projectTrend"`
	HealthDelta  float64                      `json:"healthDelta"`
}

// periods maps the accepted period names to their lookback window.
var periods = map[string]time.Duration{
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"90d": 90 * 24 * time.Hour,
}

// TrendSummary reports trends over one of the fixed periods. It
// returns nil without error when history is not deep enough yet.
func (e *Engine) TrendSummary(period string) (*TrendReport, error) {
	return e.trendSummaryAt(period, time.Now().UTC())
}

func (e *Engine) trendSummaryAt(period string, now time.Time) (*TrendReport, error) {
	window, ok := periods[period]
	if !ok {
		return nil, fmt.Errorf("unknown period %q (want 7d, 30d, or 90d)", period)
	}
	current, err := e.Latest()
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}
	cutoff := now.Add(-window).Format(DateFormat)
	previous, err := e.onOrBefore(cutoff)
	if err != nil {
		return nil, err
	}
	if previous == nil || previous.Date == current.Date {
		return nil, nil
	}

	report := &TrendReport{
		Period:     period,
		From:       previous.Date,
		To:         current.Date,
		Categories: map[drift.Category]Direction{},
	}

	trended := map[string]bool{}
	for _, t := range CalculateTrends(current, previous) {
		trended[t.PatternID] = true
		if t.Kind == Regression {
			report.Regressions = append(report.Regressions, t)
		} else {
			report.Improvements = append(report.Improvements, t)
		}
	}
	for id := range current.Patterns {
		if !trended[id] {
			report.Stable++
		}
	}

	for cat, cur := range current.Categories {
		prev, ok := previous.Categories[cat]
		if !ok {
			report.Categories[cat] = Stable
			continue
		}
		report.Categories[cat] = direction(cur.AvgConfidence - prev.AvgConfidence)
	}

	report.HealthDelta = current.Project.ComplianceRate - previous.Project.ComplianceRate
	report.ProjectTrend = direction(report.HealthDelta)
	return report, nil
}

func direction(delta float64) Direction {
	switch {
	case delta > directionThreshold:
		return Improving
	case delta < -directionThreshold:
		return Declining
	default:
		return Stable
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
