package ports

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestSplitVersionedName(t *testing.T) {
	tests := []struct {
		name          string
		versionedName string
		wantName      string
		wantVersion   string
	}{
		{
			name:          "plain version",
			versionedName: "py39-requests-2.28.1",
			wantName:      "py39-requests",
			wantVersion:   "2.28.1",
		},
		{
			name:          "port revision stripped",
			versionedName: "py39-rencode-1.0.6_1",
			wantName:      "py39-rencode",
			wantVersion:   "1.0.6",
		},
		{
			name:          "port epoch stripped",
			versionedName: "py38-pillow-9.2.0,1",
			wantName:      "py38-pillow",
			wantVersion:   "9.2.0",
		},
		{
			name:          "revision and epoch stripped",
			versionedName: "py310-lxml-4.9.1_2,1",
			wantName:      "py310-lxml",
			wantVersion:   "4.9.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, version := SplitVersionedName(tt.versionedName)
			if name != tt.wantName {
				t.Errorf("SplitVersionedName() name = %q, want %q", name, tt.wantName)
			}
			if version != tt.wantVersion {
				t.Errorf("SplitVersionedName() version = %q, want %q", version, tt.wantVersion)
			}
		})
	}
}

func writeTestIndex(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "INDEX-13")
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func indexLine(versionedName, dir string) string {
	// 13 pipe-separated fields, only the first two matter here
	return versionedName + "|" + dir + "|||||||||||\n"
}

func TestReadIndex(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	path := writeTestIndex(t,
		indexLine("py39-requests-2.28.1", "/usr/ports/www/py-requests")+
			"short|line\n"+
			indexLine("rust-1.64.0", "/usr/ports/lang/rust"))

	entries, err := ReadIndex(path, logger)
	if err != nil {
		t.Fatalf("ReadIndex() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("ReadIndex() returned %d entries, want 2 (short line skipped)", len(entries))
	}
	if entries[0].VersionedName != "py39-requests-2.28.1" {
		t.Errorf("entry name = %q", entries[0].VersionedName)
	}

	flavored := SelectFlavored(entries)
	if len(flavored) != 1 {
		t.Fatalf("SelectFlavored() kept %d entries, want 1", len(flavored))
	}
}

func TestLoadCatalog(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	portDir := t.TempDir()
	makefile := `# $FreeBSD$
PORTNAME=	requests
PORTVERSION=	2.28.1
MAINTAINER=	ports@example.org
WWW=		https://requests.readthedocs.io/
COMMENT=	HTTP library for Python
`
	if err := os.WriteFile(filepath.Join(portDir, "Makefile"), []byte(makefile), 0o644); err != nil {
		t.Fatal(err)
	}

	path := writeTestIndex(t,
		indexLine("py39-requests-2.28.1_1", portDir)+
			indexLine("py38-requests-2.28.1_1", portDir)+
			indexLine("py39-noport-1.0", filepath.Join(portDir, "missing")))

	records, err := LoadCatalog(path, logger, nil)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("LoadCatalog() returned %d records, want 3", len(records))
	}

	first := records[0]
	if first.CanonicalName != "requests" {
		t.Errorf("CanonicalName = %q, want %q", first.CanonicalName, "requests")
	}
	if first.Flavor.String() != "py39" {
		t.Errorf("Flavor = %q, want %q", first.Flavor.String(), "py39")
	}
	if first.Version != "2.28.1" {
		t.Errorf("Version = %q, want %q", first.Version, "2.28.1")
	}
	if first.Maintainer != "ports@example.org" {
		t.Errorf("Maintainer = %q", first.Maintainer)
	}
	if first.WWW != "https://requests.readthedocs.io" {
		t.Errorf("WWW = %q, trailing slash should be trimmed", first.WWW)
	}
	if first.PortVersion != "2.28.1_1" {
		t.Errorf("PortVersion = %q, want %q", first.PortVersion, "2.28.1_1")
	}

	// No makefile: name and version fall back to the versioned catalog name
	last := records[2]
	if last.CanonicalName != "noport" || last.Version != "1.0" {
		t.Errorf("fallback record = %+v", last)
	}

	names := CanonicalNames(records)
	if len(names) != 2 {
		t.Errorf("CanonicalNames() = %v, want 2 distinct names", names)
	}
	grouped := ByCanonicalName(records)
	if len(grouped["requests"]) != 2 {
		t.Errorf("ByCanonicalName()[requests] has %d records, want 2", len(grouped["requests"]))
	}
}

func TestLoadCatalogDuplicateFlavor(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	path := writeTestIndex(t,
		indexLine("py39-requests-2.28.1", "/nonexistent/a")+
			indexLine("py39-requests-2.27.0", "/nonexistent/b"))

	records, err := LoadCatalog(path, logger, nil)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("duplicate (canonical, flavor) should keep first record only, got %d", len(records))
	}
	if records[0].Version != "2.28.1" {
		t.Errorf("kept record version = %q, want the first one", records[0].Version)
	}
}
