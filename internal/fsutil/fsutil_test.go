package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "data.json")
	if err := WriteFileAtomic(path, []byte(`{"ok":true}`), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back failed: %v", err)
	}
	if string(got) != `{"ok":true}` {
		t.Errorf("unexpected content: %s", got)
	}
	// No temp files left behind.
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected 1 entry, got %d", len(entries))
	}
}

func TestBackupFileAndPrune(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "api.json")
	backups := filepath.Join(dir, "backups")
	if err := os.WriteFile(src, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		if err := BackupFile(src, backups, 3); err != nil {
			t.Fatalf("BackupFile failed: %v", err)
		}
	}
	entries, err := os.ReadDir(backups)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("expected 3 retained backups, got %d", len(entries))
	}
}

func TestBackupFileMissingSource(t *testing.T) {
	dir := t.TempDir()
	if err := BackupFile(filepath.Join(dir, "absent.json"), dir, 3); err != nil {
		t.Errorf("missing source should not error, got %v", err)
	}
}

func TestCopyTree(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "copy")
	if err := os.MkdirAll(filepath.Join(src, "a/b"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "a/b/c.json"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := CopyTree(src, dst); err != nil {
		t.Fatalf("CopyTree failed: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dst, "a/b/c.json"))
	if err != nil || string(got) != "x" {
		t.Errorf("copied content mismatch: %s, %v", got, err)
	}
}

func TestHashBytes(t *testing.T) {
	if HashBytes([]byte("a")) == HashBytes([]byte("b")) {
		t.Error("different inputs should hash differently")
	}
	if len(HashBytes(nil)) != 64 {
		t.Error("expected 64 hex chars")
	}
}
