package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mehmetkoksal-w/driftwatch/internal/drift"
)

func newTestPatternStore(t *testing.T) (*PatternStore, string) {
	t.Helper()
	dir := t.TempDir()
	s := NewPatternStore(dir)
	s.opts.Debounce = 0 // tests flush explicitly
	if err := s.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, dir
}

func TestAddGetDelete(t *testing.T) {
	s, _ := newTestPatternStore(t)

	p := drift.NewPattern("slog only", drift.CategoryLogging, 0.9)
	if err := s.Add(p); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := s.Add(p.Clone()); !errors.Is(err, drift.ErrAlreadyExists) {
		t.Errorf("duplicate Add = %v, want ErrAlreadyExists", err)
	}

	got, err := s.Get(p.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "slog only" {
		t.Errorf("got name %q", got.Name)
	}

	// Mutating the returned copy must not affect the store.
	got.Name = "mutated"
	again, _ := s.Get(p.ID)
	if again.Name != "slog only" {
		t.Error("Get must return a copy, not the internal entity")
	}

	if _, err := s.Get("pat_missing"); !errors.Is(err, drift.ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}

	if !s.Delete(p.ID) {
		t.Error("Delete should report true for existing entity")
	}
	if s.Delete(p.ID) {
		t.Error("Delete should report false for missing entity")
	}
}

func TestTransitions(t *testing.T) {
	s, _ := newTestPatternStore(t)
	p := drift.NewPattern("ctx first arg", drift.CategoryAPI, 0.8)
	if err := s.Add(p); err != nil {
		t.Fatal(err)
	}

	t.Run("Approve", func(t *testing.T) {
		got, err := s.Approve(p.ID, "reviewer")
		if err != nil {
			t.Fatalf("Approve failed: %v", err)
		}
		if got.Status != drift.StatusApproved {
			t.Errorf("status = %s, want approved", got.Status)
		}
		if got.Metadata.ApprovedBy != "reviewer" || got.Metadata.ApprovedAt.IsZero() {
			t.Error("approval metadata not stamped")
		}
	})

	t.Run("InvalidTransition", func(t *testing.T) {
		_, err := s.Transition(p.ID, drift.StatusDiscovered)
		var ite *drift.InvalidTransitionError
		if !errors.As(err, &ite) {
			t.Fatalf("expected InvalidTransitionError, got %v", err)
		}
		if ite.From != drift.StatusApproved || ite.To != drift.StatusDiscovered {
			t.Errorf("error endpoints = %s -> %s", ite.From, ite.To)
		}
		// Status must be unchanged after a rejected move.
		got, _ := s.Get(p.ID)
		if got.Status != drift.StatusApproved {
			t.Errorf("status changed to %s after rejected transition", got.Status)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := s.Transition("pat_nope", drift.StatusIgnored); !errors.Is(err, drift.ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
	})
}

func TestTransitionClosure(t *testing.T) {
	// For every pair in the table the move succeeds; for every pair not in
	// the table it fails and leaves the status unchanged.
	dir := t.TempDir()
	s := NewContractStore(dir)
	s.opts.Debounce = 0
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	statuses := drift.ContractTransitions.Statuses()
	for _, from := range statuses {
		for _, to := range statuses {
			if from == to {
				continue
			}
			c := drift.NewContract("GET", "/api/users", 0.7)
			c.Status = from
			if err := s.Add(c); err != nil {
				t.Fatal(err)
			}
			_, err := s.Transition(c.ID, to)
			if drift.ContractTransitions.Allows(from, to) {
				if err != nil {
					t.Errorf("%s -> %s should succeed, got %v", from, to, err)
				}
				got, _ := s.Get(c.ID)
				if got.Status != to {
					t.Errorf("%s -> %s left status %s", from, to, got.Status)
				}
			} else {
				if !drift.IsInvalidTransition(err) {
					t.Errorf("%s -> %s should be invalid, got %v", from, to, err)
				}
				got, _ := s.Get(c.ID)
				if got.Status != from {
					t.Errorf("rejected %s -> %s changed status to %s", from, to, got.Status)
				}
			}
			s.Delete(c.ID)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewPatternStore(dir)
	s.opts.Debounce = 0
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}

	want := map[string]*drift.Pattern{}
	add := func(name string, cat drift.Category, status drift.Status) {
		p := drift.NewPattern(name, cat, 0.75)
		p.Status = status
		p.Locations = []drift.Location{{File: name + ".go", Line: 3, Column: 1}}
		if err := s.Add(p); err != nil {
			t.Fatal(err)
		}
		want[p.ID] = p
	}
	add("a", drift.CategoryAPI, drift.StatusDiscovered)
	add("b", drift.CategoryAPI, drift.StatusApproved)
	add("c", drift.CategoryStyling, drift.StatusDiscovered)
	add("d", drift.CategorySecurity, drift.StatusIgnored)

	if err := s.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reloaded := NewPatternStore(dir)
	reloaded.opts.Debounce = 0
	if err := reloaded.Load(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	defer reloaded.Close()

	all := reloaded.All()
	if len(all) != len(want) {
		t.Fatalf("reloaded %d entities, want %d", len(all), len(want))
	}
	for _, got := range all {
		orig, ok := want[got.ID]
		if !ok {
			t.Errorf("unexpected entity %s", got.ID)
			continue
		}
		if got.Name != orig.Name || got.Category != orig.Category || got.Status != orig.Status {
			t.Errorf("entity %s mismatch: %+v vs %+v", got.ID, got, orig)
		}
		if len(got.Locations) != 1 || got.Locations[0].File != orig.Locations[0].File {
			t.Errorf("entity %s locations not preserved", got.ID)
		}
	}
}

func TestPartitionFilesFollowStatus(t *testing.T) {
	dir := t.TempDir()
	s := NewPatternStore(dir)
	s.opts.Debounce = 0
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	p := drift.NewPattern("kebab-case files", drift.CategoryNaming, 0.8)
	if err := s.Add(p); err != nil {
		t.Fatal(err)
	}
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}

	discovered := filepath.Join(dir, "patterns", "discovered", "naming.json")
	if _, err := os.Stat(discovered); err != nil {
		t.Fatalf("expected partition file %s: %v", discovered, err)
	}

	if _, err := s.Approve(p.ID, "me"); err != nil {
		t.Fatal(err)
	}
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}

	// The discovered bucket emptied, so its file must be gone.
	if _, err := os.Stat(discovered); !os.IsNotExist(err) {
		t.Errorf("empty partition file should be deleted, stat err = %v", err)
	}
	approved := filepath.Join(dir, "patterns", "approved", "naming.json")
	if _, err := os.Stat(approved); err != nil {
		t.Errorf("expected approved partition file: %v", err)
	}
}

func TestDebouncedAutosave(t *testing.T) {
	dir := t.TempDir()
	s := NewPatternStore(dir)
	s.opts.Debounce = 20 * time.Millisecond
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	for i := 0; i < 5; i++ {
		if err := s.Add(drift.NewPattern("p", drift.CategoryAPI, 0.5)); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	target := filepath.Join(dir, "patterns", "discovered", "api.json")
	for {
		if _, err := os.Stat(target); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("autosave never wrote the partition file")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNotInitialized(t *testing.T) {
	s := NewPatternStore(t.TempDir())
	if err := s.Add(drift.NewPattern("x", drift.CategoryAPI, 0.5)); !errors.Is(err, drift.ErrNotInitialized) {
		t.Errorf("Add before Load = %v, want ErrNotInitialized", err)
	}
	if err := s.Flush(); !errors.Is(err, drift.ErrNotInitialized) {
		t.Errorf("Flush before Load = %v, want ErrNotInitialized", err)
	}
	if _, err := s.Count(); !errors.Is(err, drift.ErrNotInitialized) {
		t.Errorf("Count before Load = %v, want ErrNotInitialized", err)
	}
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if n, err := s.Count(); err != nil || n != 0 {
		t.Errorf("Count after Load = %d, %v", n, err)
	}
}

func TestObserverEvents(t *testing.T) {
	s, _ := newTestPatternStore(t)
	var events []EventType
	s.Subscribe(ObserverFunc(func(ev Event) {
		events = append(events, ev.Type)
	}))

	p := drift.NewPattern("observed", drift.CategoryAPI, 0.6)
	if err := s.Add(p); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Transition(p.ID, drift.StatusIgnored); err != nil {
		t.Fatal(err)
	}
	s.Delete(p.ID)

	want := []EventType{EventCreated, EventTransition, EventDeleted}
	if len(events) != len(want) {
		t.Fatalf("got %d events %v, want %v", len(events), events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, events[i], want[i])
		}
	}
}

func TestBackupsRotated(t *testing.T) {
	dir := t.TempDir()
	s := NewPatternStore(dir)
	s.opts.Debounce = 0
	s.opts.Backups = 2
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	p := drift.NewPattern("rotate", drift.CategoryAPI, 0.5)
	if err := s.Add(p); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if _, err := s.Update(p.ID, func(p *drift.Pattern) { p.Description = "v" }); err != nil {
			t.Fatal(err)
		}
		if err := s.Flush(); err != nil {
			t.Fatal(err)
		}
	}

	backups, err := os.ReadDir(filepath.Join(dir, "patterns", ".backups", "discovered"))
	if err != nil {
		t.Fatalf("no backup dir: %v", err)
	}
	if len(backups) > 2 {
		t.Errorf("expected at most 2 backups, got %d", len(backups))
	}
}

func TestBackupsKeptPerPartition(t *testing.T) {
	dir := t.TempDir()
	s := NewContractStore(dir)
	s.opts.Debounce = 0
	s.opts.Backups = 2
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	open := drift.NewContract("GET", "/open", 0.5)
	done := drift.NewContract("GET", "/done", 0.9)
	for _, c := range []*drift.Contract{open, done} {
		if err := s.Add(c); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Transition(done.ID, drift.StatusVerified); err != nil {
		t.Fatal(err)
	}
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}

	// Both partitions share the contracts.json base name. A burst of
	// saves must not let one status's backups evict the other's.
	for i := 0; i < 4; i++ {
		if _, err := s.Update(open.ID, func(c *drift.Contract) { c.Confidence.Score = 0.5 }); err != nil {
			t.Fatal(err)
		}
		if err := s.Flush(); err != nil {
			t.Fatal(err)
		}
	}

	for _, status := range []string{"discovered", "verified"} {
		entries, err := os.ReadDir(filepath.Join(dir, "contracts", ".backups", status))
		if err != nil {
			t.Fatalf("no %s backup dir: %v", status, err)
		}
		if len(entries) == 0 || len(entries) > 2 {
			t.Errorf("%s backups = %d, want 1..2", status, len(entries))
		}
	}
}
