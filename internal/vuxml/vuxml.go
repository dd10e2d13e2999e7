// Package vuxml loads a snapshot of the ports vulnerability database and
// answers coverage queries against it: which package names are already
// covered for a given vulnerability.
package vuxml

import (
	"encoding/xml"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/freebsd-sec/pysec2vuxml/internal/errors"
)

// Entry is one published vulnerability entry, reduced to the fields the
// coverage queries need
type Entry struct {
	Vid          string
	Topic        string
	CVENames     []string
	URLs         []string
	PackageNames []string
}

// Snapshot is an indexed, read-only view of the vulnerability database
type Snapshot struct {
	entries []Entry
	byCVE   map[string][]*Entry
	byURL   map[string][]*Entry
}

type xmlDocument struct {
	XMLName xml.Name  `xml:"vuxml"`
	Vulns   []xmlVuln `xml:"vuln"`
}

type xmlVuln struct {
	Vid        string        `xml:"vid,attr"`
	Topic      string        `xml:"topic"`
	Affects    xmlAffects    `xml:"affects"`
	References xmlReferences `xml:"references"`
}

type xmlAffects struct {
	Packages []xmlPackage `xml:"package"`
}

type xmlPackage struct {
	Names []string `xml:"name"`
}

type xmlReferences struct {
	CVENames []string `xml:"cvename"`
	URLs     []string `xml:"url"`
}

// Load parses a vulnerability-database snapshot. Any failure here is fatal
// for the pass: without the snapshot every candidate would look new and the
// output would be full of duplicates.
func Load(path string, logger *slog.Logger) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w: %v", path, errors.ErrSnapshotLoad, err)
	}
	return Parse(data, logger)
}

// Parse builds a snapshot from raw document bytes
func Parse(data []byte, logger *slog.Logger) (*Snapshot, error) {
	var doc xmlDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w: %v", errors.ErrSnapshotLoad, err)
	}

	snap := &Snapshot{
		byCVE: make(map[string][]*Entry),
		byURL: make(map[string][]*Entry),
	}
	snap.entries = make([]Entry, 0, len(doc.Vulns))

	for _, vuln := range doc.Vulns {
		entry := Entry{
			Vid:      vuln.Vid,
			Topic:    vuln.Topic,
			CVENames: vuln.References.CVENames,
		}
		for _, url := range vuln.References.URLs {
			entry.URLs = append(entry.URLs, normalizeURL(url))
		}
		for _, pkg := range vuln.Affects.Packages {
			entry.PackageNames = append(entry.PackageNames, pkg.Names...)
		}
		snap.entries = append(snap.entries, entry)
	}

	for i := range snap.entries {
		entry := &snap.entries[i]
		for _, cve := range entry.CVENames {
			snap.byCVE[cve] = append(snap.byCVE[cve], entry)
		}
		for _, url := range entry.URLs {
			snap.byURL[url] = append(snap.byURL[url], entry)
		}
	}

	logger.Info("loaded vulnerability-database snapshot",
		"entries", len(snap.entries),
		"cve_references", len(snap.byCVE))
	return snap, nil
}

// Len returns the number of entries in the snapshot
func (s *Snapshot) Len() int {
	return len(s.entries)
}

// CoveredNames returns the package names already covered for a
// vulnerability. Flavored names stay as published, so an entry listing only
// py37-pkga covers that one flavor and not its siblings; the generic py-
// spelling reduces to the canonical name and covers every flavor. Matching
// goes by CVE identifier when the record carries one; only identifier-less
// records fall back to exact source-URL equality, so an unrelated entry
// citing the same advisory page never hides a record that has its own CVE.
func (s *Snapshot) CoveredNames(cves []string, link string) map[string]bool {
	covered := make(map[string]bool)

	var matched []*Entry
	if len(cves) > 0 {
		for _, cve := range cves {
			matched = append(matched, s.byCVE[cve]...)
		}
	} else if link != "" {
		matched = s.byURL[normalizeURL(link)]
	}

	for _, entry := range matched {
		for _, name := range entry.PackageNames {
			covered[NormalizeName(name)] = true
		}
	}
	return covered
}

// unflavoredPrefix is the generic spelling that stands for every flavor of
// a package
var unflavoredPrefix = regexp.MustCompile(`^py-`)

// NormalizeName maps a published package name to its coverage key: flavored
// names are kept verbatim, the generic py- prefix is stripped down to the
// canonical name
func NormalizeName(packageName string) string {
	return unflavoredPrefix.ReplaceAllString(packageName, "")
}

// normalizeURL trims the one cosmetic difference that shows up between
// otherwise identical references. No other rewriting happens, matching is
// exact equality.
func normalizeURL(url string) string {
	return strings.TrimSuffix(strings.TrimSpace(url), "/")
}
