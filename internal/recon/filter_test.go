package recon

import (
	"log/slog"
	"testing"

	"github.com/freebsd-sec/pysec2vuxml/internal/ports"
	"github.com/freebsd-sec/pysec2vuxml/internal/suppress"
	"github.com/freebsd-sec/pysec2vuxml/internal/vuxml"
)

// fakeIndex maps CVE identifiers and URLs to the package names existing
// entries cover, flavored or canonical
type fakeIndex struct {
	byCVE map[string][]string
	byURL map[string][]string
}

func (f *fakeIndex) CoveredNames(cves []string, link string) map[string]bool {
	covered := make(map[string]bool)
	if len(cves) > 0 {
		for _, cve := range cves {
			for _, name := range f.byCVE[cve] {
				covered[name] = true
			}
		}
		return covered
	}
	for _, name := range f.byURL[link] {
		covered[name] = true
	}
	return covered
}

func candidateFor(id string, vuln Vulnerability, names ...string) *CandidateEntry {
	c := &CandidateEntry{ID: id, Vuln: vuln}
	for _, name := range names {
		c.Packages = append(c.Packages, ports.PackageRecord{
			CanonicalName: name,
			Flavor:        ports.Flavor{Major: 3, Minor: 9},
		})
	}
	return c
}

func TestClassify(t *testing.T) {
	lists := &suppress.Lists{
		Ignore:   suppress.NewSet("PYSEC-2021-0001", "CVE-2020-11111"),
		Reported: suppress.NewSet("PYSEC-2022-0002"),
	}
	index := &fakeIndex{
		byCVE: map[string][]string{
			"CVE-2023-32681": {"requests"},
		},
		byURL: map[string][]string{
			"https://example.org/advisories/pyyaml": {"yaml"},
		},
	}
	f := NewFilter(slog.New(slog.DiscardHandler), lists, index)

	tests := []struct {
		name     string
		cand     *CandidateEntry
		want     Classification
		wantKeep bool
	}{
		{
			name:     "withdrawn dropped",
			cand:     candidateFor("PYSEC-2023-1", Vulnerability{ID: "PYSEC-2023-1", Withdrawn: true}, "requests"),
			wantKeep: false,
		},
		{
			name:     "ignored by primary id",
			cand:     candidateFor("PYSEC-2021-0001", Vulnerability{ID: "PYSEC-2021-0001"}, "requests"),
			want:     ClassificationSuppressedIgnored,
			wantKeep: true,
		},
		{
			name: "ignored by alias",
			cand: candidateFor("GHSA-xxxx", Vulnerability{
				ID:      "GHSA-xxxx",
				Aliases: []string{"CVE-2020-11111"},
			}, "requests"),
			want:     ClassificationSuppressedIgnored,
			wantKeep: true,
		},
		{
			name:     "already reported",
			cand:     candidateFor("PYSEC-2022-0002", Vulnerability{ID: "PYSEC-2022-0002"}, "requests"),
			want:     ClassificationSuppressedReported,
			wantKeep: true,
		},
		{
			name: "ignore wins over reported and coverage",
			cand: candidateFor("PYSEC-2021-0001", Vulnerability{
				ID:      "PYSEC-2021-0001",
				Aliases: []string{"CVE-2023-32681"},
			}, "requests"),
			want:     ClassificationSuppressedIgnored,
			wantKeep: true,
		},
		{
			name: "duplicate of existing entry",
			cand: candidateFor("PYSEC-2023-74", Vulnerability{
				ID:      "PYSEC-2023-74",
				Aliases: []string{"CVE-2023-32681"},
			}, "requests"),
			want:     ClassificationDuplicate,
			wantKeep: true,
		},
		{
			name: "partially covered is modified",
			cand: candidateFor("PYSEC-2023-74", Vulnerability{
				ID:      "PYSEC-2023-74",
				Aliases: []string{"CVE-2023-32681"},
			}, "requests", "requests-toolbelt"),
			want:     ClassificationModified,
			wantKeep: true,
		},
		{
			name: "covered by url without cve",
			cand: candidateFor("PYSEC-2020-176", Vulnerability{
				ID:   "PYSEC-2020-176",
				Link: "https://example.org/advisories/pyyaml",
			}, "yaml"),
			want:     ClassificationDuplicate,
			wantKeep: true,
		},
		{
			name:     "uncovered is new",
			cand:     candidateFor("PYSEC-2024-9", Vulnerability{ID: "PYSEC-2024-9"}, "urllib3"),
			want:     ClassificationNew,
			wantKeep: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, keep := f.Classify(tt.cand)
			if keep != tt.wantKeep {
				t.Fatalf("Classify() keep = %v, want %v", keep, tt.wantKeep)
			}
			if !keep && got != ClassificationNone {
				t.Errorf("Classify() = %v, want none for a dropped candidate", got)
			}
			if keep && got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyRecordsMissingNames(t *testing.T) {
	index := &fakeIndex{byCVE: map[string][]string{"CVE-2023-32681": {"requests"}}}
	lists := &suppress.Lists{Ignore: suppress.NewSet(), Reported: suppress.NewSet()}
	f := NewFilter(slog.New(slog.DiscardHandler), lists, index)

	cand := candidateFor("PYSEC-2023-74", Vulnerability{
		ID:      "PYSEC-2023-74",
		Aliases: []string{"CVE-2023-32681"},
	}, "requests", "requests-toolbelt")

	if got, keep := f.Classify(cand); !keep || got != ClassificationModified {
		t.Fatalf("Classify() = %v, %v, want modified, true", got, keep)
	}
	if len(cand.MissingNames) != 1 || cand.MissingNames[0] != "py39-requests-toolbelt" {
		t.Errorf("MissingNames = %v, want [py39-requests-toolbelt]", cand.MissingNames)
	}
}

const partialCoverageDocument = `<?xml version="1.0" encoding="utf-8"?>
<vuxml xmlns="http://www.vuxml.org/apps/vuxml-1">
  <vuln vid="33333333-3333-3333-3333-333333333333">
    <topic>py-pkga -- denial of service</topic>
    <affects>
      <package>
        <name>py37-pkga</name>
        <range><lt>1.2.0</lt></range>
      </package>
    </affects>
    <references>
      <url>http://x</url>
    </references>
  </vuln>
</vuxml>
`

// An existing entry that lists only one flavor must not absorb a candidate
// affecting more of them: the remaining flavors make it a modification of
// that entry, not a duplicate.
func TestClassifyFlavorPartialCoverage(t *testing.T) {
	snap, err := vuxml.Parse([]byte(partialCoverageDocument), slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	lists := &suppress.Lists{Ignore: suppress.NewSet(), Reported: suppress.NewSet()}
	f := NewFilter(slog.New(slog.DiscardHandler), lists, snap)

	vuln := Vulnerability{ID: "PYSEC-2024-100", Link: "http://x"}

	cand := &CandidateEntry{ID: "PYSEC-2024-100", Vuln: vuln}
	cand.Packages = []ports.PackageRecord{
		pkg("pkga", ports.Flavor{Major: 3, Minor: 7}, "1.1.0"),
		pkg("pkga", py38, "1.1.0"),
	}

	got, keep := f.Classify(cand)
	if !keep || got != ClassificationModified {
		t.Fatalf("Classify() = %v, %v, want modified, true", got, keep)
	}
	if len(cand.MissingNames) != 1 || cand.MissingNames[0] != "py38-pkga" {
		t.Errorf("MissingNames = %v, want [py38-pkga]", cand.MissingNames)
	}

	// With every affected flavor published the candidate is a duplicate
	onlyCovered := &CandidateEntry{ID: "PYSEC-2024-100", Vuln: vuln}
	onlyCovered.Packages = []ports.PackageRecord{
		pkg("pkga", ports.Flavor{Major: 3, Minor: 7}, "1.1.0"),
	}
	if got, keep := f.Classify(onlyCovered); !keep || got != ClassificationDuplicate {
		t.Errorf("Classify() = %v, %v, want duplicate, true", got, keep)
	}
}
