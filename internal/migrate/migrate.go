// Package migrate moves legacy JSON trees into the unified store.
//
// Migration is one-shot and explicitly invoked. It is best-effort: a
// malformed file is recorded in the result's error list and the run
// continues with the next file. Only an engine-level failure, such as
// a missing project directory, marks the run unsuccessful.
package migrate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mehmetkoksal-w/driftwatch/internal/drift"
	"github.com/mehmetkoksal-w/driftwatch/internal/fsutil"
	"github.com/mehmetkoksal-w/driftwatch/internal/legacy"
	"github.com/mehmetkoksal-w/driftwatch/internal/unified"
)

// Options controls a migration run.
type Options struct {
	DryRun       bool // read and count, write nothing
	DeleteLegacy bool // remove legacy trees after a successful backup
}

// Result reports what one migration run did.
type Result struct {
	Patterns    int      `json:"patterns"`
	Contracts   int      `json:"contracts"`
	Constraints int      `json:"constraints"`
	Boundaries  int      `json:"boundaries"`
	Environment int      `json:"environment"`
	Errors      []string `json:"errors,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	BackupDir   string   `json:"backupDir,omitempty"`
	Success     bool     `json:"success"`
}

// Total returns the number of records imported across all domains.
func (r *Result) Total() int {
	return r.Patterns + r.Contracts + r.Constraints + r.Boundaries + r.Environment
}

// Engine migrates one project's legacy trees into its unified store.
type Engine struct {
	driftDir string
	store    *unified.UnifiedStore
	opts     Options
}

// New returns an engine rooted at a project's .drift directory. The
// store must already be initialized unless DryRun is set.
func New(driftDir string, store *unified.UnifiedStore, opts Options) *Engine {
	return &Engine{driftDir: driftDir, store: store, opts: opts}
}

// legacyDirs are the trees a migration consumes, in run order.
var legacyDirs = []string{"patterns", "contracts", "constraints", "boundaries", "environment"}

// Run migrates all five legacy domains.
func (e *Engine) Run() (*Result, error) {
	res := &Result{Success: true}

	if _, err := os.Stat(e.driftDir); err != nil {
		res.Success = false
		return res, fmt.Errorf("drift directory %s: %w", e.driftDir, err)
	}

	res.Patterns = e.migratePatterns(res)
	res.Contracts = e.migrateContracts(res)
	res.Constraints = e.migrateConstraints(res)
	res.Boundaries = e.migrateBoundaries(res)
	res.Environment = e.migrateEnvironment(res)

	if e.opts.DeleteLegacy && !e.opts.DryRun {
		if err := e.removeLegacy(res); err != nil {
			res.Success = false
			return res, err
		}
	}
	return res, nil
}

// migratePatterns walks .drift/patterns. Files directly under the
// directory are sniffed for the unified "2.x" format; subdirectories
// named after a status hold the older per-status category files.
func (e *Engine) migratePatterns(res *Result) int {
	count := 0
	e.walkEntityFiles(filepath.Join(e.driftDir, "patterns"), res, func(raw json.RawMessage, fallback drift.Status, file string) {
		p, err := legacy.DecodePattern(raw, fallback)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", file, err))
			return
		}
		if e.opts.DryRun {
			count++
			return
		}
		if err := e.store.Patterns.Upsert(p); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: store pattern %s: %v", file, p.ID, err))
			return
		}
		count++
	})
	return count
}

func (e *Engine) migrateContracts(res *Result) int {
	count := 0
	e.walkEntityFiles(filepath.Join(e.driftDir, "contracts"), res, func(raw json.RawMessage, fallback drift.Status, file string) {
		c, err := legacy.DecodeContract(raw, fallback)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", file, err))
			return
		}
		if e.opts.DryRun {
			count++
			return
		}
		if err := e.store.Contracts.Upsert(c); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: store contract %s: %v", file, c.ID, err))
			return
		}
		count++
	})
	return count
}

func (e *Engine) migrateConstraints(res *Result) int {
	count := 0
	e.walkEntityFiles(filepath.Join(e.driftDir, "constraints"), res, func(raw json.RawMessage, fallback drift.Status, file string) {
		cn, err := legacy.DecodeConstraint(raw, fallback)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", file, err))
			return
		}
		if e.opts.DryRun {
			count++
			return
		}
		if err := e.store.Constraints.Upsert(cn); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: store constraint %s: %v", file, cn.ID, err))
			return
		}
		count++
	})
	return count
}

// walkEntityFiles feeds every record found under dir to fn. A missing
// directory means nothing to migrate; a bad file is one error entry.
func (e *Engine) walkEntityFiles(dir string, res *Result, fn func(raw json.RawMessage, fallback drift.Status, file string)) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			res.Errors = append(res.Errors, fmt.Sprintf("read %s: %v", dir, err))
		}
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if name[0] == '.' {
			continue
		}
		if entry.IsDir() {
			status := drift.Status(name)
			if !drift.ValidStatus(status) {
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s: unknown status directory", filepath.Join(dir, name)))
				continue
			}
			sub, err := os.ReadDir(filepath.Join(dir, name))
			if err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("read %s: %v", filepath.Join(dir, name), err))
				continue
			}
			for _, f := range sub {
				if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
					continue
				}
				e.feedFile(filepath.Join(dir, name, f.Name()), status, res, fn)
			}
			continue
		}
		if filepath.Ext(name) != ".json" {
			continue
		}
		e.feedFile(filepath.Join(dir, name), "", res, fn)
	}
}

func (e *Engine) feedFile(path string, fallback drift.Status, res *Result, fn func(raw json.RawMessage, fallback drift.Status, file string)) {
	data, err := os.ReadFile(path)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("read %s: %v", path, err))
		return
	}
	recs, env, err := legacy.Records(data, "entities", "patterns", "contracts", "constraints")
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("parse %s: %v", path, err))
		return
	}
	if fallback == "" && env.Status != "" && !legacy.IsUnified(env.Version) {
		fallback = drift.Status(env.Status)
	}
	for _, raw := range recs {
		fn(raw, fallback, path)
	}
}

func (e *Engine) migrateBoundaries(res *Result) int {
	return e.migrateAccessMap(res, filepath.Join(e.driftDir, "boundaries"), []string{"access-map.json"}, func(p legacy.AccessPoint) error {
		if p.File == "" || p.Table == "" {
			return errSkip
		}
		if p.ID == "" {
			p.ID = drift.NewID("db")
		}
		if e.opts.DryRun {
			return nil
		}
		return e.store.Boundaries.Upsert(unified.BoundaryRow{
			ID:          p.ID,
			Table:       p.Table,
			File:        p.File,
			Line:        p.Line,
			AccessType:  p.AccessType,
			Sensitivity: p.Sensitivity,
			Field:       p.Field,
		})
	})
}

func (e *Engine) migrateEnvironment(res *Result) int {
	return e.migrateAccessMap(res, filepath.Join(e.driftDir, "environment"), []string{"variables.json", "access-map.json"}, func(p legacy.AccessPoint) error {
		if p.File == "" || p.Name == "" {
			return errSkip
		}
		if p.ID == "" {
			p.ID = drift.NewID("env")
		}
		if e.opts.DryRun {
			return nil
		}
		return e.store.Environment.Upsert(unified.EnvVarRow{
			ID:          p.ID,
			Name:        p.Name,
			File:        p.File,
			Line:        p.Line,
			Required:    p.Required,
			Sensitivity: p.Sensitivity,
			Default:     p.Default,
		})
	})
}

var errSkip = fmt.Errorf("record skipped")

// migrateAccessMap reads the first source file present under dir and
// upserts each well-formed access point.
func (e *Engine) migrateAccessMap(res *Result, dir string, names []string, upsert func(legacy.AccessPoint) error) int {
	var path string
	for _, name := range names {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
			break
		}
	}
	if path == "" {
		return 0
	}
	data, err := os.ReadFile(path)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("read %s: %v", path, err))
		return 0
	}
	am, err := legacy.DecodeAccessMap(data)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("parse %s: %v", path, err))
		return 0
	}
	if am.Bad > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %d malformed records skipped", path, am.Bad))
	}
	count := 0
	for _, p := range am.Points {
		switch err := upsert(p); err {
		case nil:
			count++
		case errSkip:
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: record missing mandatory fields", path))
		default:
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", path, err))
		}
	}
	return count
}

// removeLegacy backs up the legacy trees into one timestamped
// directory, then deletes them. Deletion never happens for a tree
// whose backup failed.
func (e *Engine) removeLegacy(res *Result) error {
	stamp := time.Now().UTC().Format("20060102-150405")
	backupDir := filepath.Join(e.driftDir, ".backups", "migration-"+stamp)
	for _, name := range legacyDirs {
		src := filepath.Join(e.driftDir, name)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		dst := filepath.Join(backupDir, name)
		if err := fsutil.CopyTree(src, dst); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("backup %s: %v", src, err))
			continue
		}
		if err := os.RemoveAll(src); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("remove %s: %v", src, err))
		}
	}
	res.BackupDir = backupDir
	return nil
}
