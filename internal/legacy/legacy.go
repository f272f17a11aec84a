// Package legacy decodes the JSON files written by earlier releases.
//
// Producers of those files disagreed on field naming (camelCase,
// snake_case, and a few outright synonyms), so every record is decoded
// through an alias table tried in priority order, and enumerated fields
// pass through an explicit allow-list. The decoded output is always a
// typed struct; untyped maps never leave this package.
package legacy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mehmetkoksal-w/driftwatch/internal/drift"
)

// Envelope is the sniffable outer shape of a legacy category file.
// Files in the unified format carry a "2.x" version and per-record
// statuses; the older status-subdirectory format has no version field
// and derives the status from the directory name.
type Envelope struct {
	Version  string            `json:"version"`
	Status   string            `json:"status"`
	Category string            `json:"category"`
	Entities []json.RawMessage `json:"entities"`
}

// IsUnified reports whether a version string marks the unified
// one-file-per-category format.
func IsUnified(version string) bool {
	return strings.HasPrefix(version, "2.")
}

// Records extracts the raw entity list from a legacy file. Both the
// enveloped shapes and a bare top-level array are accepted; entity
// arrays may live under "entities" or a per-domain key.
func Records(data []byte, domainKeys ...string) ([]json.RawMessage, *Envelope, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var recs []json.RawMessage
		if err := json.Unmarshal(data, &recs); err != nil {
			return nil, nil, err
		}
		return recs, &Envelope{}, nil
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, err
	}
	if env.Entities != nil {
		return env.Entities, &env, nil
	}
	var byKey map[string]json.RawMessage
	if err := json.Unmarshal(data, &byKey); err != nil {
		return nil, nil, err
	}
	for _, key := range domainKeys {
		if raw, ok := byKey[key]; ok {
			var recs []json.RawMessage
			if err := json.Unmarshal(raw, &recs); err != nil {
				return nil, nil, fmt.Errorf("decode %q array: %w", key, err)
			}
			return recs, &env, nil
		}
	}
	return nil, &env, nil
}

// Fields is one decoded record, pre-split for alias lookup.
type Fields map[string]json.RawMessage

func ParseFields(raw json.RawMessage) (Fields, error) {
	var f Fields
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	return f, nil
}

// Str returns the first alias present as a string.
func (f Fields) Str(aliases ...string) string {
	for _, a := range aliases {
		raw, ok := f[a]
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return s
		}
	}
	return ""
}

// Int returns the first alias present as an integer.
func (f Fields) Int(aliases ...string) int {
	for _, a := range aliases {
		raw, ok := f[a]
		if !ok {
			continue
		}
		var n int
		if json.Unmarshal(raw, &n) == nil {
			return n
		}
		var fl float64
		if json.Unmarshal(raw, &fl) == nil {
			return int(fl)
		}
	}
	return 0
}

// Bool returns the first alias present as a bool.
func (f Fields) Bool(aliases ...string) bool {
	for _, a := range aliases {
		raw, ok := f[a]
		if !ok {
			continue
		}
		var b bool
		if json.Unmarshal(raw, &b) == nil {
			return b
		}
	}
	return false
}

// Confidence returns the first alias present as a score in [0, 1].
// Old producers wrote either a bare number or an object with a
// "score" field; an absent or unreadable value defaults to zero.
func (f Fields) Confidence(aliases ...string) float64 {
	for _, a := range aliases {
		raw, ok := f[a]
		if !ok {
			continue
		}
		var n float64
		if json.Unmarshal(raw, &n) == nil {
			return clamp01(n)
		}
		var obj struct {
			Score float64 `json:"score"`
		}
		if json.Unmarshal(raw, &obj) == nil {
			return clamp01(obj.Score)
		}
	}
	return 0
}

func clamp01(n float64) float64 {
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}

// sensitivityMap is the allow-list for external sensitivity labels.
// Unknown labels become "custom" rather than failing the record.
var sensitivityMap = map[string]string{
	"auth":        "auth",
	"credentials": "auth",
	"secret":      "auth",
	"token":       "auth",
	"pii":         "pii",
	"personal":    "pii",
	"financial":   "financial",
	"payment":     "financial",
	"health":      "health",
	"medical":     "health",
	"internal":    "internal",
	"public":      "public",
	"custom":      "custom",
}

// NormalizeSensitivity maps a producer's sensitivity label onto the
// stored enum. Empty input stays empty.
func NormalizeSensitivity(s string) string {
	if s == "" {
		return ""
	}
	if mapped, ok := sensitivityMap[strings.ToLower(s)]; ok {
		return mapped
	}
	return "custom"
}

// AccessPoint is one normalized data-access or env-variable site.
type AccessPoint struct {
	ID          string
	Table       string
	Name        string
	File        string
	Line        int
	AccessType  string
	Sensitivity string
	Field       string
	Required    bool
	Default     string
}

// DecodeAccessPoint normalizes one raw access-point record.
func DecodeAccessPoint(raw json.RawMessage) (AccessPoint, error) {
	f, err := ParseFields(raw)
	if err != nil {
		return AccessPoint{}, err
	}
	return AccessPoint{
		ID:          f.Str("id"),
		Table:       f.Str("table", "tableName", "table_name"),
		Name:        f.Str("name", "variable", "variableName", "variable_name"),
		File:        f.Str("file", "filePath", "file_path", "path"),
		Line:        f.Int("line", "lineNumber", "line_number"),
		AccessType:  f.Str("accessType", "access_type", "type", "operation"),
		Sensitivity: NormalizeSensitivity(f.Str("sensitivity", "sensitivityType", "sensitivity_type")),
		Field:       f.Str("field", "column", "fieldName", "field_name"),
		Required:    f.Bool("required", "isRequired", "is_required"),
		Default:     f.Str("default", "defaultValue", "default_value"),
	}, nil
}

// AccessMap is a decoded boundaries or environment source file.
type AccessMap struct {
	Points []AccessPoint
	Bad    int // records dropped for shape errors
}

// DecodeAccessMap accepts the three top-level shapes producers used:
// a bare array of access points, an "accessPoints"/"variables" array,
// or a "tables" map keyed by table name.
func DecodeAccessMap(data []byte) (AccessMap, error) {
	var out AccessMap
	add := func(raws []json.RawMessage, table string) {
		for _, raw := range raws {
			p, err := DecodeAccessPoint(raw)
			if err != nil {
				out.Bad++
				continue
			}
			if p.Table == "" {
				p.Table = table
			}
			out.Points = append(out.Points, p)
		}
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var raws []json.RawMessage
		if err := json.Unmarshal(data, &raws); err != nil {
			return out, err
		}
		add(raws, "")
		return out, nil
	}

	var doc struct {
		AccessPoints []json.RawMessage `json:"accessPoints"`
		Variables    []json.RawMessage `json:"variables"`
		Tables       map[string]struct {
			AccessPoints []json.RawMessage `json:"accessPoints"`
		} `json:"tables"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return out, err
	}
	add(doc.AccessPoints, "")
	add(doc.Variables, "")
	for table, group := range doc.Tables {
		add(group.AccessPoints, table)
	}
	return out, nil
}

// DecodePattern rebuilds a pattern entity from a legacy record,
// filling defaults for absent optional fields. The fallback status is
// used when the record itself names none (status-subdirectory files).
func DecodePattern(raw json.RawMessage, fallback drift.Status) (*drift.Pattern, error) {
	f, err := ParseFields(raw)
	if err != nil {
		return nil, err
	}
	p := &drift.Pattern{
		ID:          f.Str("id"),
		Name:        f.Str("name", "pattern", "patternName", "pattern_name"),
		Description: f.Str("description", "desc"),
		Category:    normalizeCategory(f.Str("category")),
		Status:      normalizeStatus(f.Str("status"), fallback),
		Confidence:  drift.NewConfidence(f.Confidence("confidence", "score")),
		Severity:    normalizeSeverity(f.Str("severity")),
	}
	if p.Name == "" {
		return nil, fmt.Errorf("pattern record has no name")
	}
	if p.ID == "" {
		p.ID = drift.NewID("pat")
	}
	p.Locations = decodeLocations(f, "locations")
	p.Outliers = decodeOutliers(f)
	decodeMetadata(f, &p.Metadata)
	return p, nil
}

// DecodeContract rebuilds a contract entity from a legacy record.
func DecodeContract(raw json.RawMessage, fallback drift.Status) (*drift.Contract, error) {
	f, err := ParseFields(raw)
	if err != nil {
		return nil, err
	}
	c := &drift.Contract{
		ID:         f.Str("id"),
		Method:     f.Str("method", "httpMethod", "http_method"),
		Endpoint:   f.Str("endpoint", "path", "route", "url"),
		Category:   drift.CategoryAPI,
		Status:     normalizeStatus(f.Str("status"), fallback),
		Confidence: drift.NewConfidence(f.Confidence("confidence", "score")),
		Severity:   normalizeSeverity(f.Str("severity")),
	}
	if c.Endpoint == "" {
		return nil, fmt.Errorf("contract record has no endpoint")
	}
	if c.ID == "" {
		c.ID = drift.NewID("ct")
	}
	if rawMis, ok := f["mismatches"]; ok {
		_ = json.Unmarshal(rawMis, &c.Mismatches)
	}
	decodeMetadata(f, &c.Metadata)
	return c, nil
}

// DecodeConstraint rebuilds a constraint entity from a legacy record.
func DecodeConstraint(raw json.RawMessage, fallback drift.Status) (*drift.Constraint, error) {
	f, err := ParseFields(raw)
	if err != nil {
		return nil, err
	}
	cn := &drift.Constraint{
		ID:          f.Str("id"),
		Name:        f.Str("name", "constraint", "constraintName", "constraint_name"),
		Description: f.Str("description", "desc"),
		Category:    normalizeCategory(f.Str("category")),
		Status:      normalizeStatus(f.Str("status"), fallback),
		Confidence:  drift.NewConfidence(f.Confidence("confidence", "score")),
		Severity:    normalizeSeverity(f.Str("severity")),
		Rule:        f.Str("rule", "expression"),
	}
	if cn.Name == "" {
		return nil, fmt.Errorf("constraint record has no name")
	}
	if cn.ID == "" {
		cn.ID = drift.NewID("cn")
	}
	if rawGlobs, ok := f["appliesTo"]; ok {
		_ = json.Unmarshal(rawGlobs, &cn.AppliesTo)
	} else if rawGlobs, ok := f["applies_to"]; ok {
		_ = json.Unmarshal(rawGlobs, &cn.AppliesTo)
	}
	cn.Locations = decodeLocations(f, "locations")
	decodeMetadata(f, &cn.Metadata)
	return cn, nil
}

func decodeLocations(f Fields, key string) []drift.Location {
	raw, ok := f[key]
	if !ok {
		return nil
	}
	var raws []json.RawMessage
	if json.Unmarshal(raw, &raws) != nil {
		return nil
	}
	var out []drift.Location
	for _, r := range raws {
		lf, err := ParseFields(r)
		if err != nil {
			continue
		}
		loc := drift.Location{
			File:   lf.Str("file", "filePath", "file_path", "path"),
			Line:   lf.Int("line", "lineNumber", "line_number"),
			Column: lf.Int("column", "col"),
		}
		if loc.File == "" {
			continue
		}
		out = append(out, loc)
	}
	return out
}

func decodeOutliers(f Fields) []drift.Outlier {
	raw, ok := f["outliers"]
	if !ok {
		return nil
	}
	var raws []json.RawMessage
	if json.Unmarshal(raw, &raws) != nil {
		return nil
	}
	var out []drift.Outlier
	for _, r := range raws {
		of, err := ParseFields(r)
		if err != nil {
			continue
		}
		o := drift.Outlier{
			Location: drift.Location{
				File:   of.Str("file", "filePath", "file_path", "path"),
				Line:   of.Int("line", "lineNumber", "line_number"),
				Column: of.Int("column", "col"),
			},
			Reason:         of.Str("reason", "message"),
			DeviationScore: of.Confidence("deviationScore", "deviation_score", "deviation"),
		}
		if o.File == "" {
			continue
		}
		out = append(out, o)
	}
	return out
}

func decodeMetadata(f Fields, m *drift.Metadata) {
	if rawMeta, ok := f["metadata"]; ok {
		_ = json.Unmarshal(rawMeta, m)
	}
}

func normalizeStatus(s string, fallback drift.Status) drift.Status {
	if s == "" {
		if fallback != "" {
			return fallback
		}
		return drift.StatusDiscovered
	}
	st := drift.Status(strings.ToLower(s))
	if drift.ValidStatus(st) {
		return st
	}
	if fallback != "" {
		return fallback
	}
	return drift.StatusDiscovered
}

func normalizeCategory(s string) drift.Category {
	if s == "" {
		return drift.CategoryStructural
	}
	c := drift.Category(strings.ToLower(s))
	if drift.ValidCategory(c) {
		return c
	}
	return drift.CategoryStructural
}

func normalizeSeverity(s string) drift.Severity {
	switch strings.ToLower(s) {
	case string(drift.SeverityWarning):
		return drift.SeverityWarning
	case string(drift.SeverityCritical):
		return drift.SeverityCritical
	default:
		return drift.SeverityInfo
	}
}
