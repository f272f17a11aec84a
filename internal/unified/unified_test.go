package unified

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mehmetkoksal-w/driftwatch/internal/drift"
)

func newTestStore(t *testing.T) *UnifiedStore {
	t.Helper()
	s := New(t.TempDir())
	if err := s.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInitializeCreatesFullSchema(t *testing.T) {
	s := newTestStore(t)

	// Leading comment lines in the schema script must not swallow the
	// statement they precede; meta is the first table in the script.
	if !tableExists(s.db, "meta") {
		t.Fatal("meta table missing after Initialize")
	}
	var version string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version)
	if err != nil {
		t.Fatalf("read schema_version: %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("schema_version = %q, want %q", version, SchemaVersion)
	}
	for _, table := range coreTables {
		if !tableExists(s.db, table) {
			t.Errorf("table %s missing after Initialize", table)
		}
	}
}

func TestStripSQLComments(t *testing.T) {
	script := "-- header\n-- more header\nCREATE TABLE a (x);\n-- between\nCREATE TABLE b (y);\n"
	got := stripSQLComments(script)
	if strings.Contains(got, "--") {
		t.Errorf("comments survived: %q", got)
	}
	stmts := 0
	for _, stmt := range strings.Split(got, ";") {
		if strings.TrimSpace(stmt) != "" {
			stmts++
		}
	}
	if stmts != 2 {
		t.Errorf("got %d statements, want 2", stmts)
	}
}

func TestInitializeIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Initialize(); err != nil {
		t.Errorf("second Initialize should be a no-op, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Reuse after Close requires a fresh Initialize.
	if _, err := s.GetStats(); !errors.Is(err, drift.ErrNotInitialized) {
		t.Errorf("GetStats after Close = %v, want ErrNotInitialized", err)
	}
	if err := s.Initialize(); err != nil {
		t.Fatalf("re-Initialize failed: %v", err)
	}
}

func TestPatternRepoRoundTrip(t *testing.T) {
	s := newTestStore(t)

	p := drift.NewPattern("repository interfaces", drift.CategoryDataAccess, 0.82)
	p.Description = "data access goes through repository types"
	p.Locations = []drift.Location{
		{File: "internal/db/users.go", Line: 14, Column: 1},
		{File: "internal/db/orders.go", Line: 9},
	}
	p.Outliers = []drift.Outlier{
		{Location: drift.Location{File: "cmd/main.go", Line: 44}, Reason: "raw sql in main", DeviationScore: 0.7},
	}
	if err := s.Patterns.Upsert(p); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := s.Patterns.Get(p.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil {
		t.Fatal("Get returned nil for existing pattern")
	}
	if got.Name != p.Name || got.Category != p.Category || got.Status != p.Status {
		t.Errorf("core fields mismatch: %+v", got)
	}
	if len(got.Locations) != 2 || len(got.Outliers) != 1 {
		t.Errorf("locations/outliers = %d/%d, want 2/1", len(got.Locations), len(got.Outliers))
	}
	if got.Outliers[0].Reason != "raw sql in main" {
		t.Errorf("outlier reason = %q", got.Outliers[0].Reason)
	}
	if got.Confidence.Level != drift.LevelMedium {
		t.Errorf("confidence level = %s, want medium", got.Confidence.Level)
	}

	// Upserting the same pattern twice must not duplicate rows.
	if err := s.Patterns.Upsert(p); err != nil {
		t.Fatal(err)
	}
	again, _ := s.Patterns.Get(p.ID)
	if len(again.Locations) != 2 {
		t.Errorf("idempotent upsert produced %d locations", len(again.Locations))
	}

	missing, err := s.Patterns.Get("pat_missing")
	if err != nil || missing != nil {
		t.Errorf("missing pattern = %v, %v, want nil, nil", missing, err)
	}
}

func TestPatternRepoUpdateStatus(t *testing.T) {
	s := newTestStore(t)
	p := drift.NewPattern("x", drift.CategoryAPI, 0.5)
	if err := s.Patterns.Upsert(p); err != nil {
		t.Fatal(err)
	}
	if err := s.Patterns.UpdateStatus(p.ID, drift.StatusApproved); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	got, _ := s.Patterns.Get(p.ID)
	if got.Status != drift.StatusApproved {
		t.Errorf("status = %s", got.Status)
	}
	if err := s.Patterns.UpdateStatus("pat_ghost", drift.StatusApproved); !errors.Is(err, drift.ErrNotFound) {
		t.Errorf("UpdateStatus missing = %v, want ErrNotFound", err)
	}
}

func TestContractAndConstraintRepos(t *testing.T) {
	s := newTestStore(t)

	c := drift.NewContract("POST", "/api/orders", 0.9)
	c.Mismatches = []drift.Mismatch{{FieldPath: "order.total"}}
	if err := s.Contracts.Upsert(c); err != nil {
		t.Fatal(err)
	}
	gotC, err := s.Contracts.Get(c.ID)
	if err != nil || gotC == nil {
		t.Fatalf("contract Get = %v, %v", gotC, err)
	}
	if gotC.Method != "POST" || gotC.Endpoint != "/api/orders" {
		t.Errorf("contract fields: %+v", gotC)
	}

	cn := &drift.Constraint{
		ID:         drift.NewID("cn"),
		Name:       "no fmt.Println",
		Category:   drift.CategoryLogging,
		Status:     drift.StatusApproved,
		Confidence: drift.NewConfidence(1),
		AppliesTo:  []string{"internal/**"},
		Rule:       "forbid fmt.Println",
	}
	if err := s.Constraints.Upsert(cn); err != nil {
		t.Fatal(err)
	}
	gotCn, err := s.Constraints.Get(cn.ID)
	if err != nil || gotCn == nil {
		t.Fatalf("constraint Get = %v, %v", gotCn, err)
	}
	if len(gotCn.AppliesTo) != 1 || gotCn.AppliesTo[0] != "internal/**" {
		t.Errorf("appliesTo round trip broken: %v", gotCn.AppliesTo)
	}

	list, err := s.Constraints.List()
	if err != nil || len(list) != 1 {
		t.Errorf("List = %d, %v", len(list), err)
	}
}

func TestTransactionRollsBack(t *testing.T) {
	s := newTestStore(t)
	sentinel := errors.New("boom")
	err := s.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			`INSERT INTO patterns (id, name, category, status, confidence) VALUES ('pat_tx', 'n', 'api', 'discovered', 0.5)`); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Transaction error = %v", err)
	}
	got, err := s.Patterns.Get("pat_tx")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("write should have rolled back")
	}
}

func TestRawSQLIdempotentUpsert(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 2; i++ {
		if _, err := s.RunRaw(
			`INSERT OR REPLACE INTO module_coupling (source, target, weight) VALUES (?, ?, ?)`,
			"internal/a", "internal/b", 0.4); err != nil {
			t.Fatal(err)
		}
	}
	rows, err := s.QueryRaw(`SELECT COUNT(*) FROM module_coupling`)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()
	rows.Next()
	var n int
	if err := rows.Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("coupling rows = %d, want 1", n)
	}
}

func TestExportImportJSONRoundTrip(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 3; i++ {
		p := drift.NewPattern(fmt.Sprintf("p%d", i), drift.CategoryAPI, 0.6)
		p.Locations = []drift.Location{{File: "f.go", Line: i + 1}}
		if err := s.Patterns.Upsert(p); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Boundaries.Upsert(BoundaryRow{ID: "b1", Table: "users", File: "db.go", Line: 3, AccessType: "read", Sensitivity: "pii"}); err != nil {
		t.Fatal(err)
	}

	data, err := s.ExportJSON()
	if err != nil {
		t.Fatalf("ExportJSON failed: %v", err)
	}

	fresh := New(t.TempDir())
	if err := fresh.Initialize(); err != nil {
		t.Fatal(err)
	}
	defer fresh.Close()
	if err := fresh.ImportJSON(data); err != nil {
		t.Fatalf("ImportJSON failed: %v", err)
	}

	want, _ := s.GetStats()
	got, _ := fresh.GetStats()
	for _, table := range coreTables {
		if got.Tables[table] != want.Tables[table] {
			t.Errorf("table %s rows = %d, want %d", table, got.Tables[table], want.Tables[table])
		}
	}
}

func TestImportJSONRejectsBadColumns(t *testing.T) {
	s := newTestStore(t)
	bad := []byte(`{"formatVersion":"1","tables":{"patterns":[{"id; DROP TABLE patterns":"x"}]}}`)
	if err := s.ImportJSON(bad); err == nil {
		t.Error("expected error for malformed column name")
	}
}

func TestGetStatsAndAudit(t *testing.T) {
	s := newTestStore(t)
	rec := AuditRecord{ID: "audit_1", Kind: "sync", Domain: "boundaries", Records: 7}
	if err := s.Audit.Record(rec); err != nil {
		t.Fatal(err)
	}
	stats, err := s.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Tables["audit_log"] != 1 {
		t.Errorf("audit_log rows = %d", stats.Tables["audit_log"])
	}
	if stats.FileSize <= 0 {
		t.Error("file size should be positive")
	}
	if stats.LastRunAt.IsZero() {
		t.Error("LastRunAt should be set from the audit log")
	}
	if time.Since(stats.LastRunAt) > time.Minute {
		t.Errorf("LastRunAt too old: %v", stats.LastRunAt)
	}

	recent, err := s.Audit.Recent(5)
	if err != nil || len(recent) != 1 {
		t.Fatalf("Recent = %d, %v", len(recent), err)
	}
	if recent[0].Domain != "boundaries" || recent[0].Records != 7 {
		t.Errorf("audit record round trip: %+v", recent[0])
	}
}

func TestCallGraphQueries(t *testing.T) {
	s := newTestStore(t)
	if err := s.CallGraph.UpsertFunction(FunctionRow{ID: "fn1", Name: "main", File: "main.go", Line: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.CallGraph.UpsertFunction(FunctionRow{ID: "fn2", Name: "helper", File: "main.go", Line: 11}); err != nil {
		t.Fatal(err)
	}
	if err := s.CallGraph.UpsertCall(CallRow{CallerID: "fn1", Callee: "helper", File: "main.go", Line: 5}); err != nil {
		t.Fatal(err)
	}
	if err := s.CallGraph.UpsertCall(CallRow{CallerID: "fn2", Callee: "lib.Func", File: "main.go", Line: 15}); err != nil {
		t.Fatal(err)
	}

	in, err := s.CallGraph.IncomingCalls("helper")
	if err != nil {
		t.Fatalf("IncomingCalls failed: %v", err)
	}
	if len(in) != 1 || in[0].CallerName != "main" {
		t.Errorf("incoming calls = %+v", in)
	}

	out, err := s.CallGraph.OutgoingCalls("helper")
	if err != nil {
		t.Fatalf("OutgoingCalls failed: %v", err)
	}
	if len(out) != 1 || out[0].Callee != "lib.Func" {
		t.Errorf("outgoing calls = %+v", out)
	}
}

func TestVacuumAndCheckpoint(t *testing.T) {
	s := newTestStore(t)
	if err := s.Vacuum(); err != nil {
		t.Errorf("Vacuum failed: %v", err)
	}
	if err := s.Checkpoint(); err != nil {
		t.Errorf("Checkpoint failed: %v", err)
	}
}
