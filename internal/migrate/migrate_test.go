package migrate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mehmetkoksal-w/driftwatch/internal/drift"
	"github.com/mehmetkoksal-w/driftwatch/internal/unified"
)

func newTestEnv(t *testing.T, opts Options) (string, *unified.UnifiedStore, *Engine) {
	t.Helper()
	driftDir := filepath.Join(t.TempDir(), ".drift")
	if err := os.MkdirAll(driftDir, 0o755); err != nil {
		t.Fatal(err)
	}
	s := unified.New(driftDir)
	if err := s.Initialize(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return driftDir, s, New(driftDir, s, opts)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestMigrateStatusSubdirFormat(t *testing.T) {
	driftDir, s, eng := newTestEnv(t, Options{})
	writeFile(t, filepath.Join(driftDir, "patterns", "approved", "api.json"), `{
		"status": "approved",
		"entities": [
			{"id": "pat_aaa", "name": "REST handlers", "category": "api", "confidence": 0.9},
			{"id": "pat_bbb", "name": "typed routes", "category": "api", "confidence": {"score": 0.7}}
		]
	}`)
	writeFile(t, filepath.Join(driftDir, "patterns", "discovered", "naming.json"), `[
		{"id": "pat_ccc", "name": "camelCase vars", "category": "naming"}
	]`)

	res, err := eng.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Success || res.Patterns != 3 {
		t.Fatalf("result = %+v", res)
	}

	p, err := s.Patterns.Get("pat_aaa")
	if err != nil || p == nil {
		t.Fatalf("Get pat_aaa = %v, %v", p, err)
	}
	if p.Status != drift.StatusApproved {
		t.Errorf("status from directory = %s, want approved", p.Status)
	}
	if p.Confidence.Score != 0.9 {
		t.Errorf("confidence = %f", p.Confidence.Score)
	}

	// Object-shaped confidence is accepted too.
	p2, _ := s.Patterns.Get("pat_bbb")
	if p2.Confidence.Score != 0.7 {
		t.Errorf("object confidence = %f", p2.Confidence.Score)
	}

	// Missing confidence defaults to zero, missing severity to info.
	p3, _ := s.Patterns.Get("pat_ccc")
	if p3.Confidence.Score != 0 || p3.Severity != drift.SeverityInfo {
		t.Errorf("defaults: confidence=%f severity=%s", p3.Confidence.Score, p3.Severity)
	}
	if p3.Status != drift.StatusDiscovered {
		t.Errorf("bare-array status = %s", p3.Status)
	}
}

func TestMigrateUnifiedFormat(t *testing.T) {
	driftDir, s, eng := newTestEnv(t, Options{})
	writeFile(t, filepath.Join(driftDir, "patterns", "api.json"), `{
		"version": "2.0",
		"category": "api",
		"entities": [
			{"id": "pat_u1", "name": "REST handlers", "category": "api", "status": "ignored", "confidence": 0.8}
		]
	}`)

	res, err := eng.Run()
	if err != nil {
		t.Fatal(err)
	}
	if res.Patterns != 1 {
		t.Fatalf("patterns = %d", res.Patterns)
	}
	p, _ := s.Patterns.Get("pat_u1")
	if p.Status != drift.StatusIgnored {
		t.Errorf("per-record status = %s, want ignored", p.Status)
	}
}

func TestMigrateToleratesMalformedFile(t *testing.T) {
	driftDir, _, eng := newTestEnv(t, Options{})
	writeFile(t, filepath.Join(driftDir, "patterns", "discovered", "good.json"),
		`[{"id": "pat_ok", "name": "good", "category": "api"}]`)
	writeFile(t, filepath.Join(driftDir, "patterns", "discovered", "bad.json"), `{not json`)

	res, err := eng.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Success {
		t.Error("per-file failure must not flip success")
	}
	if res.Patterns != 1 {
		t.Errorf("patterns = %d, want 1", res.Patterns)
	}
	if len(res.Errors) != 1 {
		t.Errorf("errors = %v, want exactly one", res.Errors)
	}
}

func TestMigrateContractsConstraintsAndMaps(t *testing.T) {
	driftDir, s, eng := newTestEnv(t, Options{})
	writeFile(t, filepath.Join(driftDir, "contracts", "verified", "contracts.json"),
		`{"entities": [{"id": "ct_1", "method": "GET", "endpoint": "/api/users", "confidence": 0.95}]}`)
	writeFile(t, filepath.Join(driftDir, "constraints", "approved", "logging.json"),
		`[{"id": "cn_1", "name": "no raw prints", "category": "logging", "appliesTo": ["internal/**"]}]`)
	writeFile(t, filepath.Join(driftDir, "boundaries", "access-map.json"), `{
		"tables": {
			"users": {"accessPoints": [
				{"file_path": "db/users.go", "line_number": 12, "access_type": "read", "sensitivityType": "credentials"},
				{"access_type": "write"}
			]}
		}
	}`)
	writeFile(t, filepath.Join(driftDir, "environment", "variables.json"),
		`{"variables": [{"name": "DATABASE_URL", "file": "config.go", "line": 4, "required": true, "sensitivity": "secret"}]}`)

	res, err := eng.Run()
	if err != nil {
		t.Fatal(err)
	}
	if res.Contracts != 1 || res.Constraints != 1 || res.Environment != 1 {
		t.Fatalf("counts = %+v", res)
	}
	if res.Boundaries != 1 {
		t.Errorf("boundaries = %d, want 1 (fileless record skipped)", res.Boundaries)
	}
	if len(res.Warnings) == 0 {
		t.Error("skipped record should produce a warning")
	}

	c, _ := s.Contracts.Get("ct_1")
	if c == nil || c.Status != drift.StatusVerified {
		t.Errorf("contract = %+v", c)
	}
	bs, _ := s.Boundaries.ListByTable("users")
	if len(bs) != 1 || bs[0].Sensitivity != "auth" {
		t.Errorf("boundary sensitivity allow-list: %+v", bs)
	}
	if bs[0].File != "db/users.go" || bs[0].Line != 12 {
		t.Errorf("snake_case aliases not applied: %+v", bs[0])
	}
	vs, _ := s.Environment.ListByName("DATABASE_URL")
	if len(vs) != 1 || vs[0].Sensitivity != "auth" || !vs[0].Required {
		t.Errorf("env var = %+v", vs)
	}
}

func TestMigrateDryRunWritesNothing(t *testing.T) {
	driftDir, s, eng := newTestEnv(t, Options{DryRun: true})
	writeFile(t, filepath.Join(driftDir, "patterns", "discovered", "api.json"),
		`[{"id": "pat_dry", "name": "x", "category": "api"}]`)

	res, err := eng.Run()
	if err != nil {
		t.Fatal(err)
	}
	if res.Patterns != 1 {
		t.Errorf("dry run still counts, got %d", res.Patterns)
	}
	p, err := s.Patterns.Get("pat_dry")
	if err != nil {
		t.Fatal(err)
	}
	if p != nil {
		t.Error("dry run must not write")
	}
}

func TestMigrateDeleteLegacyBacksUpFirst(t *testing.T) {
	driftDir, _, eng := newTestEnv(t, Options{DeleteLegacy: true})
	src := filepath.Join(driftDir, "patterns", "discovered", "api.json")
	writeFile(t, src, `[{"id": "pat_del", "name": "x", "category": "api"}]`)

	res, err := eng.Run()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("legacy tree should be removed")
	}
	if res.BackupDir == "" {
		t.Fatal("backup dir not reported")
	}
	backed := filepath.Join(res.BackupDir, "patterns", "discovered", "api.json")
	if _, err := os.Stat(backed); err != nil {
		t.Errorf("backup copy missing: %v", err)
	}
}

func TestMigrateMissingDriftDirFails(t *testing.T) {
	s := unified.New(t.TempDir())
	if err := s.Initialize(); err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	eng := New(filepath.Join(t.TempDir(), "nope", ".drift"), s, Options{})
	res, err := eng.Run()
	if err == nil {
		t.Fatal("expected engine-level error")
	}
	if res.Success {
		t.Error("success should be false on engine-level failure")
	}
}
