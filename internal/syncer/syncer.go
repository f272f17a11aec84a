// Package syncer reconciles legacy outputs into the unified store.
//
// Unlike migration, sync runs repeatedly: every write is an idempotent
// upsert, a missing source means "nothing to sync yet" rather than an
// error, and any other read or parse failure propagates because it
// indicates corruption, not absence. Each domain is its own unit of
// work; one domain failing does not stop the others.
package syncer

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mehmetkoksal-w/driftwatch/internal/drift"
	"github.com/mehmetkoksal-w/driftwatch/internal/legacy"
	"github.com/mehmetkoksal-w/driftwatch/internal/unified"
)

// Domains lists every sync domain in execution order.
var Domains = []string{
	"boundaries",
	"environment",
	"callgraph",
	"audit",
	"dna",
	"topology",
	"contracts",
	"constraints",
	"history",
	"coupling",
	"errors",
}

// DomainResult is the outcome of one domain's sync.
type DomainResult struct {
	Domain  string `json:"domain"`
	Synced  int    `json:"synced"`
	Skipped int    `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Result aggregates a SyncAll run.
type Result struct {
	Domains []DomainResult `json:"domains"`
	Synced  int            `json:"synced"`
	Skipped int            `json:"skipped"`
	Errors  []string       `json:"errors,omitempty"`
	Success bool           `json:"success"`
}

// Syncer reads one project's legacy sources and upserts them.
type Syncer struct {
	driftDir string
	store    *unified.UnifiedStore
}

// New returns a syncer for a project's .drift directory. The store
// must already be initialized.
func New(driftDir string, store *unified.UnifiedStore) *Syncer {
	return &Syncer{driftDir: driftDir, store: store}
}

// SyncAll runs every domain in order and aggregates the outcome. A
// non-empty subset restricts the run to the named domains, preserving
// the fixed order. Per-domain failures are recorded, not propagated;
// Success is false only if at least one domain errored.
func (s *Syncer) SyncAll(subset ...string) *Result {
	want := map[string]bool{}
	for _, d := range subset {
		want[strings.ToLower(d)] = true
	}

	res := &Result{Success: true}
	for _, domain := range Domains {
		if len(want) > 0 && !want[domain] {
			continue
		}
		synced, skipped, err := s.syncDomain(domain)
		dr := DomainResult{Domain: domain, Synced: synced, Skipped: skipped}
		if err != nil {
			dr.Error = err.Error()
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", domain, err))
			res.Success = false
		}
		res.Domains = append(res.Domains, dr)
		res.Synced += synced
		res.Skipped += skipped
	}

	if err := s.store.Audit.Record(unified.AuditRecord{
		ID:      drift.NewID("audit"),
		Kind:    "sync",
		Detail:  fmt.Sprintf("%d domains", len(res.Domains)),
		Records: res.Synced,
		Errors:  len(res.Errors),
	}); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("audit: record sync run: %v", err))
		res.Success = false
	}
	return res
}

func (s *Syncer) syncDomain(domain string) (synced, skipped int, err error) {
	switch domain {
	case "boundaries":
		return s.SyncBoundaries()
	case "environment":
		return s.SyncEnvironment()
	case "callgraph":
		return s.SyncCallGraph()
	case "audit":
		return s.SyncAudit()
	case "dna":
		return s.SyncDNA()
	case "topology":
		return s.SyncTestTopology()
	case "contracts":
		return s.SyncContracts()
	case "constraints":
		return s.SyncConstraints()
	case "history":
		return s.SyncHistory()
	case "coupling":
		return s.SyncCoupling()
	case "errors":
		return s.SyncErrorHandling()
	default:
		return 0, 0, fmt.Errorf("unknown sync domain %q", domain)
	}
}

// SyncBoundaries upserts the data-boundary access map.
func (s *Syncer) SyncBoundaries() (int, int, error) {
	data, ok, err := s.readFirst("boundaries", "access-map.json")
	if err != nil || !ok {
		return 0, 0, err
	}
	am, err := legacy.DecodeAccessMap(data)
	if err != nil {
		return 0, 0, fmt.Errorf("parse boundaries access map: %w", err)
	}
	synced, skipped := 0, am.Bad
	for _, p := range am.Points {
		if p.File == "" || p.Table == "" {
			skipped++
			continue
		}
		row := unified.BoundaryRow{
			ID:          p.ID,
			Table:       p.Table,
			File:        p.File,
			Line:        p.Line,
			AccessType:  p.AccessType,
			Sensitivity: p.Sensitivity,
			Field:       p.Field,
		}
		if row.ID == "" {
			row.ID = boundaryKey(row)
		}
		if err := s.store.Boundaries.Upsert(row); err != nil {
			return synced, skipped, err
		}
		synced++
	}
	return synced, skipped, nil
}

// boundaryKey derives a stable ID so re-syncing the same access point
// replaces rather than duplicates it.
func boundaryKey(b unified.BoundaryRow) string {
	return fmt.Sprintf("db_%s_%s_%d", b.Table, filepath.Base(b.File), b.Line)
}

// SyncEnvironment upserts environment-variable access points.
func (s *Syncer) SyncEnvironment() (int, int, error) {
	data, ok, err := s.readFirst("environment", "variables.json", "access-map.json")
	if err != nil || !ok {
		return 0, 0, err
	}
	am, err := legacy.DecodeAccessMap(data)
	if err != nil {
		return 0, 0, fmt.Errorf("parse environment variables: %w", err)
	}
	synced, skipped := 0, am.Bad
	for _, p := range am.Points {
		if p.File == "" || p.Name == "" {
			skipped++
			continue
		}
		row := unified.EnvVarRow{
			ID:          p.ID,
			Name:        p.Name,
			File:        p.File,
			Line:        p.Line,
			Required:    p.Required,
			Sensitivity: p.Sensitivity,
			Default:     p.Default,
		}
		if row.ID == "" {
			row.ID = fmt.Sprintf("env_%s_%s_%d", row.Name, filepath.Base(row.File), row.Line)
		}
		if err := s.store.Environment.Upsert(row); err != nil {
			return synced, skipped, err
		}
		synced++
	}
	return synced, skipped, nil
}

// SyncCallGraph copies the externally-built call graph database into
// the unified tables. The source lives at lake/callgraph/callgraph.db
// and is written by a separate process; it is opened read-only here.
func (s *Syncer) SyncCallGraph() (int, int, error) {
	path := filepath.Join(s.driftDir, "lake", "callgraph", "callgraph.db")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return 0, 0, nil
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return 0, 0, fmt.Errorf("open callgraph db: %w", err)
	}
	defer db.Close()

	synced := 0
	n, err := s.copyFunctions(db)
	synced += n
	if err != nil {
		return synced, 0, err
	}
	n, err = s.copyCalls(db)
	synced += n
	if err != nil {
		return synced, 0, err
	}
	n, err = s.copyDataAccess(db)
	synced += n
	return synced, 0, err
}

// missingTable reports the "no such table" case, which sync treats the
// same as a missing source file.
func missingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

func (s *Syncer) copyFunctions(db *sql.DB) (int, error) {
	rows, err := db.Query(`SELECT id, name, file, line, COALESCE(language, '') FROM functions`)
	if err != nil {
		if missingTable(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read callgraph functions: %w", err)
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		var fn unified.FunctionRow
		if err := rows.Scan(&fn.ID, &fn.Name, &fn.File, &fn.Line, &fn.Language); err != nil {
			return n, err
		}
		if err := s.store.CallGraph.UpsertFunction(fn); err != nil {
			return n, err
		}
		n++
	}
	return n, rows.Err()
}

func (s *Syncer) copyCalls(db *sql.DB) (int, error) {
	rows, err := db.Query(`SELECT caller_id, callee, COALESCE(file, ''), COALESCE(line, 0) FROM calls`)
	if err != nil {
		if missingTable(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read callgraph calls: %w", err)
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		var c unified.CallRow
		if err := rows.Scan(&c.CallerID, &c.Callee, &c.File, &c.Line); err != nil {
			return n, err
		}
		if err := s.store.CallGraph.UpsertCall(c); err != nil {
			return n, err
		}
		n++
	}
	return n, rows.Err()
}

func (s *Syncer) copyDataAccess(db *sql.DB) (int, error) {
	rows, err := db.Query(`SELECT function_id, table_name, COALESCE(access_type, 'read'), COALESCE(line, 0) FROM data_access`)
	if err != nil {
		if missingTable(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read callgraph data access: %w", err)
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		var da unified.DataAccessRow
		if err := rows.Scan(&da.FunctionID, &da.Table, &da.AccessType, &da.Line); err != nil {
			return n, err
		}
		if err := s.store.CallGraph.UpsertDataAccess(da); err != nil {
			return n, err
		}
		n++
	}
	return n, rows.Err()
}

// SyncAudit imports audit entries left behind by older tooling.
func (s *Syncer) SyncAudit() (int, int, error) {
	data, ok, err := s.readFirst("audit", "log.json", "audit-log.json")
	if err != nil || !ok {
		return 0, 0, err
	}
	recs, _, err := legacy.Records(data, "entries", "runs", "log")
	if err != nil {
		return 0, 0, fmt.Errorf("parse audit log: %w", err)
	}
	synced, skipped := 0, 0
	for _, raw := range recs {
		f, err := legacy.ParseFields(raw)
		if err != nil {
			skipped++
			continue
		}
		rec := unified.AuditRecord{
			ID:      f.Str("id"),
			Kind:    f.Str("kind", "type", "operation"),
			Domain:  f.Str("domain", "scope"),
			Detail:  f.Str("detail", "message", "description"),
			Records: f.Int("records", "count", "recordCount", "record_count"),
			Errors:  f.Int("errors", "errorCount", "error_count"),
		}
		if ts := f.Str("createdAt", "created_at", "timestamp"); ts != "" {
			if parsed, perr := time.Parse(time.RFC3339, ts); perr == nil {
				rec.CreatedAt = parsed
			}
		}
		if rec.Kind == "" {
			skipped++
			continue
		}
		if rec.ID == "" {
			rec.ID = auditKey(rec)
		}
		if err := s.store.Audit.Record(rec); err != nil {
			return synced, skipped, err
		}
		synced++
	}
	return synced, skipped, nil
}

// auditKey derives a stable ID from the record content, since legacy
// audit entries carry none. Re-syncing an unchanged log must replace
// rather than duplicate.
func auditKey(rec unified.AuditRecord) string {
	h := fnv.New64a()
	for _, part := range []string{rec.Kind, rec.Domain, rec.Detail, rec.CreatedAt.UTC().Format(time.RFC3339)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("audit_%016x", h.Sum64())
}

// SyncDNA imports styling/DNA profile documents.
func (s *Syncer) SyncDNA() (int, int, error) {
	data, ok, err := s.readFirst("dna", "profiles.json")
	if err != nil || !ok {
		return 0, 0, err
	}
	recs, _, err := legacy.Records(data, "profiles")
	if err != nil {
		return 0, 0, fmt.Errorf("parse dna profiles: %w", err)
	}
	synced, skipped := 0, 0
	for _, raw := range recs {
		f, err := legacy.ParseFields(raw)
		if err != nil {
			skipped++
			continue
		}
		row := unified.DNAProfileRow{
			ID:   f.Str("id"),
			Name: f.Str("name", "profileName", "profile_name"),
			Kind: f.Str("kind", "type", "category"),
		}
		if row.Name == "" {
			skipped++
			continue
		}
		if row.ID == "" {
			row.ID = "dna_" + row.Name
		}
		if row.Kind == "" {
			row.Kind = "styling"
		}
		if body, bodyOK := f["profile"]; bodyOK {
			row.Profile = string(body)
		} else {
			row.Profile = string(raw)
		}
		if err := s.store.DNA.Upsert(row); err != nil {
			return synced, skipped, err
		}
		synced++
	}
	return synced, skipped, nil
}

// SyncTestTopology imports test-to-subject links.
func (s *Syncer) SyncTestTopology() (int, int, error) {
	data, ok, err := s.readFirst("testing", "topology.json")
	if err != nil || !ok {
		return 0, 0, err
	}
	recs, _, err := legacy.Records(data, "tests", "topology")
	if err != nil {
		return 0, 0, fmt.Errorf("parse test topology: %w", err)
	}
	synced, skipped := 0, 0
	for _, raw := range recs {
		f, err := legacy.ParseFields(raw)
		if err != nil {
			skipped++
			continue
		}
		row := unified.TopologyRow{
			ID:          f.Str("id"),
			TestFile:    f.Str("testFile", "test_file", "file"),
			SubjectFile: f.Str("subjectFile", "subject_file", "subject", "covers"),
			Kind:        f.Str("kind", "type"),
			Cases:       f.Int("cases", "caseCount", "case_count", "testCount", "test_count"),
		}
		if row.TestFile == "" {
			skipped++
			continue
		}
		if row.ID == "" {
			row.ID = fmt.Sprintf("tt_%s", filepath.Base(row.TestFile))
		}
		if row.Kind == "" {
			row.Kind = "unit"
		}
		if err := s.store.Topology.Upsert(row); err != nil {
			return synced, skipped, err
		}
		synced++
	}
	return synced, skipped, nil
}

// SyncContracts upserts contracts from the legacy JSON tree.
func (s *Syncer) SyncContracts() (int, int, error) {
	return s.syncEntityTree("contracts", func(raw json.RawMessage, fallback drift.Status) error {
		c, err := legacy.DecodeContract(raw, fallback)
		if err != nil {
			return errSkip
		}
		return s.store.Contracts.Upsert(c)
	})
}

// SyncConstraints upserts constraints from the legacy JSON tree.
func (s *Syncer) SyncConstraints() (int, int, error) {
	return s.syncEntityTree("constraints", func(raw json.RawMessage, fallback drift.Status) error {
		cn, err := legacy.DecodeConstraint(raw, fallback)
		if err != nil {
			return errSkip
		}
		return s.store.Constraints.Upsert(cn)
	})
}

var errSkip = fmt.Errorf("record skipped")

// syncEntityTree walks <driftDir>/<name> in both legacy layouts and
// feeds each record to upsert. Parse errors propagate; individually
// malformed records are skipped and counted.
func (s *Syncer) syncEntityTree(name string, upsert func(raw json.RawMessage, fallback drift.Status) error) (int, int, error) {
	dir := filepath.Join(s.driftDir, name)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, err
	}
	synced, skipped := 0, 0
	feed := func(path string, fallback drift.Status) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		recs, env, err := legacy.Records(data, "entities", name)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if fallback == "" && env.Status != "" {
			fallback = drift.Status(env.Status)
		}
		for _, raw := range recs {
			switch err := upsert(raw, fallback); err {
			case nil:
				synced++
			case errSkip:
				skipped++
			default:
				return err
			}
		}
		return nil
	}
	for _, entry := range entries {
		if entry.Name()[0] == '.' {
			continue
		}
		if entry.IsDir() {
			status := drift.Status(entry.Name())
			if !drift.ValidStatus(status) {
				continue
			}
			sub, err := os.ReadDir(filepath.Join(dir, entry.Name()))
			if err != nil {
				return synced, skipped, err
			}
			for _, f := range sub {
				if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
					continue
				}
				if err := feed(filepath.Join(dir, entry.Name(), f.Name()), status); err != nil {
					return synced, skipped, err
				}
			}
			continue
		}
		if filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		if err := feed(filepath.Join(dir, entry.Name()), ""); err != nil {
			return synced, skipped, err
		}
	}
	return synced, skipped, nil
}

// SyncHistory mirrors snapshot files into the history_snapshots table
// so the dashboard can read trends without touching the filesystem.
func (s *Syncer) SyncHistory() (int, int, error) {
	dir := filepath.Join(s.driftDir, "history", "snapshots")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	synced, skipped := 0, 0
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return synced, skipped, err
		}
		if !json.Valid(data) {
			skipped++
			continue
		}
		date := strings.TrimSuffix(name, ".json")
		if _, err := s.store.RunRaw(
			`INSERT OR REPLACE INTO history_snapshots (date, snapshot, created_at) VALUES (?, ?, ?)`,
			date, string(data), time.Now().UTC().Format(time.RFC3339)); err != nil {
			return synced, skipped, err
		}
		synced++
	}
	return synced, skipped, nil
}

// SyncCoupling imports module-coupling edges.
func (s *Syncer) SyncCoupling() (int, int, error) {
	data, ok, err := s.readFirst("coupling", "modules.json", "coupling.json")
	if err != nil || !ok {
		return 0, 0, err
	}
	recs, _, err := legacy.Records(data, "edges", "modules")
	if err != nil {
		return 0, 0, fmt.Errorf("parse coupling edges: %w", err)
	}
	synced, skipped := 0, 0
	for _, raw := range recs {
		f, err := legacy.ParseFields(raw)
		if err != nil {
			skipped++
			continue
		}
		source := f.Str("source", "from", "sourceModule", "source_module")
		target := f.Str("target", "to", "targetModule", "target_module")
		if source == "" || target == "" {
			skipped++
			continue
		}
		weight := f.Confidence("weight", "strength", "score")
		if _, err := s.store.RunRaw(
			`INSERT OR REPLACE INTO module_coupling (source, target, weight) VALUES (?, ?, ?)`,
			source, target, weight); err != nil {
			return synced, skipped, err
		}
		synced++
	}
	return synced, skipped, nil
}

// SyncErrorHandling imports error-handling boundary records.
func (s *Syncer) SyncErrorHandling() (int, int, error) {
	data, ok, err := s.readFirst("errors", "boundaries.json", "error-handling.json")
	if err != nil || !ok {
		return 0, 0, err
	}
	recs, _, err := legacy.Records(data, "boundaries", "handlers")
	if err != nil {
		return 0, 0, fmt.Errorf("parse error-handling boundaries: %w", err)
	}
	synced, skipped := 0, 0
	for _, raw := range recs {
		f, err := legacy.ParseFields(raw)
		if err != nil {
			skipped++
			continue
		}
		file := f.Str("file", "filePath", "file_path", "path")
		if file == "" {
			skipped++
			continue
		}
		id := f.Str("id")
		line := f.Int("line", "lineNumber", "line_number")
		if id == "" {
			id = fmt.Sprintf("eh_%s_%d", filepath.Base(file), line)
		}
		if _, err := s.store.RunRaw(
			`INSERT OR REPLACE INTO error_handling (id, file, line, boundary, strategy) VALUES (?, ?, ?, ?, ?)`,
			id, file, line,
			f.Str("boundary", "name", "scope"),
			f.Str("strategy", "type", "handling")); err != nil {
			return synced, skipped, err
		}
		synced++
	}
	return synced, skipped, nil
}

// readFirst returns the first existing source file under dir. The
// second return is false when no candidate exists.
func (s *Syncer) readFirst(dir string, names ...string) ([]byte, bool, error) {
	for _, name := range names {
		path := filepath.Join(s.driftDir, dir, name)
		data, err := os.ReadFile(path)
		if err == nil {
			return data, true, nil
		}
		if !os.IsNotExist(err) {
			return nil, false, fmt.Errorf("read %s: %w", path, err)
		}
	}
	return nil, false, nil
}
