package jsonc

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name: "removes single-line comments",
			input: `{
				// project root
				"project": "."
			}`,
		},
		{
			name:  "removes block comments",
			input: `{"project": /* default */ "."}`,
		},
		{
			name:  "plain JSON passes through",
			input: `{"project": "."}`,
		},
		{
			name: "removes trailing comma in object",
			input: `{
				"project": ".",
			}`,
		},
		{
			name:  "removes trailing comma in array",
			input: `{"project": ".", "ignore": ["vendor/**",]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dest map[string]any
			if err := json.Unmarshal(Clean([]byte(tt.input)), &dest); err != nil {
				t.Fatalf("Clean() produced invalid JSON: %v", err)
			}
			if dest["project"] != "." {
				t.Errorf("project = %v, want %q", dest["project"], ".")
			}
		})
	}
}

func TestCleanPreservesCommasInStrings(t *testing.T) {
	clean := Clean([]byte(`{"detail": "a,}", "note": "b,]",}`))
	var dest map[string]string
	if err := json.Unmarshal(clean, &dest); err != nil {
		t.Fatalf("Clean() produced invalid JSON: %v\n%s", err, clean)
	}
	if dest["detail"] != "a,}" || dest["note"] != "b,]" {
		t.Errorf("string contents altered: %+v", dest)
	}
}

func TestDecodeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "driftwatch.jsonc")
	content := `{
		// snapshots kept before pruning
		"historyRetention": 30,
		"dbFileName": "drift.db"
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	var dest struct {
		HistoryRetention int    `json:"historyRetention"`
		DBFileName       string `json:"dbFileName"`
	}
	if err := DecodeFile(path, &dest); err != nil {
		t.Fatalf("DecodeFile() error = %v", err)
	}
	if dest.HistoryRetention != 30 || dest.DBFileName != "drift.db" {
		t.Errorf("decoded = %+v", dest)
	}

	if err := DecodeFile(filepath.Join(t.TempDir(), "missing.jsonc"), &dest); err == nil {
		t.Error("expected error for missing file")
	}
}
