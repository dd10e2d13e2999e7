// Package recon implements the reconciliation core: matching vulnerability
// records against installed package versions, filtering out suppressed and
// already-reported records, aggregating matches into candidate entries and
// rendering them as VuXML skeletons.
package recon

import (
	"strings"
	"time"

	"github.com/freebsd-sec/pysec2vuxml/internal/ports"
)

// BoundKind is the kind of an affected-version bound
type BoundKind int

const (
	// BoundLessThan matches versions strictly below the bound
	BoundLessThan BoundKind = iota
	// BoundLessOrEqual matches versions at or below the bound
	BoundLessOrEqual
	// BoundUnbounded matches every version; only emitted when the feed
	// explicitly signals an open-ended range
	BoundUnbounded
)

// String returns the VuXML element name for the bound kind
func (k BoundKind) String() string {
	switch k {
	case BoundLessThan:
		return "lt"
	case BoundLessOrEqual:
		return "le"
	case BoundUnbounded:
		return "unbounded"
	}
	return "unknown"
}

// VersionSpec is one affected-version specification. Specifications within
// one vulnerability are OR-ed by the matcher.
type VersionSpec struct {
	Kind    BoundKind
	Version string // empty for BoundUnbounded
}

// Vulnerability is one record from the vulnerability feed, immutable once
// fetched
type Vulnerability struct {
	ID        string
	Aliases   []string
	Summary   string
	Details   string
	Specs     []VersionSpec
	Link      string // source URL
	Published time.Time
	Withdrawn bool
}

// CVEs gathers the CVE-style identifiers carried by the record: the ID
// itself when it is one, plus any CVE aliases, deduplicated in order.
func (v Vulnerability) CVEs() []string {
	var cves []string
	seen := make(map[string]bool)

	add := func(id string) {
		if strings.HasPrefix(id, "CVE-") && !seen[id] {
			seen[id] = true
			cves = append(cves, id)
		}
	}

	add(v.ID)
	for _, alias := range v.Aliases {
		add(alias)
	}
	return cves
}

// IDs returns the record's identifier and all aliases, for suppression-list
// membership checks
func (v Vulnerability) IDs() []string {
	return append([]string{v.ID}, v.Aliases...)
}

// Classification tags a candidate entry after aggregation completes
type Classification int

const (
	// ClassificationNone is the zero value, held only by candidates dropped
	// before classification
	ClassificationNone Classification = iota
	// ClassificationNew means no existing entry covers any affected package
	ClassificationNew
	// ClassificationModified means an existing entry covers some but not
	// all affected packages
	ClassificationModified
	// ClassificationDuplicate means an existing entry covers every
	// affected package
	ClassificationDuplicate
	// ClassificationSuppressedIgnored means the ID is on the ignore list
	ClassificationSuppressedIgnored
	// ClassificationSuppressedReported means the ID is on the
	// reported-but-uncommitted list
	ClassificationSuppressedReported
)

// String returns the classification label used in logs and metrics
func (c Classification) String() string {
	switch c {
	case ClassificationNone:
		return "none"
	case ClassificationNew:
		return "new"
	case ClassificationModified:
		return "modified"
	case ClassificationDuplicate:
		return "duplicate"
	case ClassificationSuppressedIgnored:
		return "suppressed-ignored"
	case ClassificationSuppressedReported:
		return "suppressed-reported"
	}
	return "unknown"
}

// CandidateEntry aggregates every matched (package, vulnerability) pair for
// one vulnerability identifier. Built incrementally by the Aggregator,
// classified once complete, consumed exactly once by the Renderer.
type CandidateEntry struct {
	ID   string
	Vuln Vulnerability

	// Packages holds every affected flavor, sorted by canonical name then
	// flavor after finalization
	Packages []ports.PackageRecord

	// Bound is the merged upper bound across all affected flavors
	Bound VersionSpec

	// BoundSpread classifies how far the observed upper bounds disagree:
	// 0 none, 1 patch, 2 minor, 3 major
	BoundSpread int

	// UpperBounds is the number of distinct upper bounds observed
	UpperBounds int

	Classification Classification
	NeedsReview    bool
	ReviewReason   string

	// MissingNames are the flavored port names an existing entry does not
	// yet cover, set for modified candidates
	MissingNames []string
}

// CanonicalNames returns the distinct canonical names the candidate spans,
// in package order
func (c *CandidateEntry) CanonicalNames() []string {
	var names []string
	seen := make(map[string]bool)
	for _, pkg := range c.Packages {
		if !seen[pkg.CanonicalName] {
			seen[pkg.CanonicalName] = true
			names = append(names, pkg.CanonicalName)
		}
	}
	return names
}

// Summary is the numeric outcome of one reconciliation pass
type Summary struct {
	PackagesChecked    int
	PackagesNotFound   int
	PackagesVulnerable int
	New                int
	Modified           int
	Duplicates         int
	Ignored            int
	AlreadyReported    int
}
