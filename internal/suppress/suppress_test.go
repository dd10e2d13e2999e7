package suppress

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ignore")
	content := `# permanently ignored
PYSEC-2021-0001

GHSA-aaaa-bbbb-cccc
  CVE-2020-12345
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	set, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got, want := set.Len(), 3; got != want {
		t.Errorf("Len() = %d, want %d", got, want)
	}

	tests := []struct {
		id   string
		want bool
	}{
		{"PYSEC-2021-0001", true},
		{"GHSA-aaaa-bbbb-cccc", true},
		{"CVE-2020-12345", true},
		{"# permanently ignored", false},
		{"PYSEC-2021-0002", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := set.Contains(tt.id); got != tt.want {
			t.Errorf("Contains(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	set, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("Load() error = %v, want nil for a missing file", err)
	}
	if set.Len() != 0 {
		t.Errorf("Len() = %d, want 0", set.Len())
	}
}

func TestContainsAny(t *testing.T) {
	set := NewSet("PYSEC-2021-0001", "CVE-2020-12345")

	tests := []struct {
		name string
		ids  []string
		want bool
	}{
		{"primary id", []string{"PYSEC-2021-0001"}, true},
		{"alias only", []string{"GHSA-x", "CVE-2020-12345"}, true},
		{"no overlap", []string{"GHSA-x", "CVE-2099-0001"}, false},
		{"empty", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := set.ContainsAny(tt.ids); got != tt.want {
				t.Errorf("ContainsAny(%v) = %v, want %v", tt.ids, got, tt.want)
			}
		})
	}
}

func TestLoadLists(t *testing.T) {
	dir := t.TempDir()
	ignorePath := filepath.Join(dir, "ignore")
	if err := os.WriteFile(ignorePath, []byte("PYSEC-2021-0001\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	lists, err := LoadLists(ignorePath, filepath.Join(dir, "reported"))
	if err != nil {
		t.Fatalf("LoadLists() error = %v", err)
	}
	if !lists.Ignore.Contains("PYSEC-2021-0001") {
		t.Error("Ignore missing PYSEC-2021-0001")
	}
	if lists.Reported.Len() != 0 {
		t.Errorf("Reported.Len() = %d, want 0", lists.Reported.Len())
	}
}
