package recon

import (
	"log/slog"
	"sort"

	"github.com/freebsd-sec/pysec2vuxml/internal/suppress"
)

// ExistingIndex answers coverage queries against the already-published
// security-entry snapshot. CoveredNames returns the package names existing
// entries already cover for a vulnerability identified either by one of its
// CVE identifiers or, when it carries none, by its source URL. Flavored
// names cover one flavor; a canonical name covers every flavor.
type ExistingIndex interface {
	CoveredNames(cves []string, link string) map[string]bool
}

// Filter classifies aggregated candidates against the suppression lists and
// the existing-entry snapshot. Rules apply in order: withdrawal first, then
// the ignore list, then the reported list, then snapshot coverage.
type Filter struct {
	logger   *slog.Logger
	lists    *suppress.Lists
	existing ExistingIndex
}

// NewFilter creates a candidate filter
func NewFilter(logger *slog.Logger, lists *suppress.Lists, existing ExistingIndex) *Filter {
	return &Filter{
		logger:   logger.With("component", "filter"),
		lists:    lists,
		existing: existing,
	}
}

// Classify returns the candidate's classification and whether it should be
// kept at all. Withdrawn records are dropped outright, everything else is
// kept under some classification so the summary can account for it.
func (f *Filter) Classify(c *CandidateEntry) (Classification, bool) {
	if c.Vuln.Withdrawn {
		f.logger.Debug("dropping withdrawn record", "vuln_id", c.ID)
		return ClassificationNone, false
	}

	if f.lists.Ignore.ContainsAny(c.Vuln.IDs()) {
		return ClassificationSuppressedIgnored, true
	}
	if f.lists.Reported.ContainsAny(c.Vuln.IDs()) {
		return ClassificationSuppressedReported, true
	}

	covered := f.existing.CoveredNames(c.Vuln.CVEs(), c.Vuln.Link)
	if len(covered) == 0 {
		return ClassificationNew, true
	}

	// Coverage is per flavor: an entry listing only py37-pkga leaves the
	// py38 flavor uncovered even though the canonical name matches
	var missing []string
	seen := make(map[string]bool)
	for _, pkg := range c.Packages {
		flavored := pkg.Flavor.Prefix() + pkg.CanonicalName
		if covered[flavored] || covered[pkg.CanonicalName] {
			continue
		}
		if !seen[flavored] {
			seen[flavored] = true
			missing = append(missing, flavored)
		}
	}
	if len(missing) == 0 {
		return ClassificationDuplicate, true
	}

	sort.Strings(missing)
	c.MissingNames = missing
	return ClassificationModified, true
}
