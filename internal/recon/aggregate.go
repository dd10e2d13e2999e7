package recon

import (
	"log/slog"
	"sort"

	"github.com/Masterminds/semver/v3"
	pep440 "github.com/aquasecurity/go-pep440-version"

	"github.com/freebsd-sec/pysec2vuxml/internal/ports"
)

// Aggregator folds matched (package, vulnerability) pairs into candidate
// entries keyed by vulnerability identifier. The fold is order-insensitive:
// packages and bounds are kept in sets and sorted at finalization, so any
// arrival order yields the same candidates.
type Aggregator struct {
	logger     *slog.Logger
	candidates map[string]*candidateState
}

type candidateState struct {
	vuln     Vulnerability
	packages map[string]ports.PackageRecord // keyed canonical|flavor
	specs    map[VersionSpec]bool
}

// NewAggregator creates an empty aggregator
func NewAggregator(logger *slog.Logger) *Aggregator {
	return &Aggregator{
		logger:     logger.With("component", "aggregator"),
		candidates: make(map[string]*candidateState),
	}
}

// Add records that pkg matched vuln. Repeated additions of the same pair
// are idempotent.
func (a *Aggregator) Add(pkg ports.PackageRecord, vuln Vulnerability) {
	state, ok := a.candidates[vuln.ID]
	if !ok {
		state = &candidateState{
			vuln:     vuln,
			packages: make(map[string]ports.PackageRecord),
			specs:    make(map[VersionSpec]bool),
		}
		state.vuln.Aliases = append([]string(nil), vuln.Aliases...)
		a.candidates[vuln.ID] = state
	}

	key := pkg.CanonicalName + "|" + pkg.Flavor.String()
	if _, dup := state.packages[key]; !dup {
		state.packages[key] = pkg
	}
	for _, spec := range vuln.Specs {
		state.specs[spec] = true
	}
	for _, alias := range vuln.Aliases {
		if !contains(state.vuln.Aliases, alias) {
			state.vuln.Aliases = append(state.vuln.Aliases, alias)
		}
	}
	if vuln.Withdrawn {
		state.vuln.Withdrawn = true
	}
}

// Candidates finalizes the fold and returns the candidate entries sorted by
// vulnerability identifier. Each candidate carries its merged upper bound
// and the spread between the bounds observed across flavors.
func (a *Aggregator) Candidates() []*CandidateEntry {
	ids := make([]string, 0, len(a.candidates))
	for id := range a.candidates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	entries := make([]*CandidateEntry, 0, len(ids))
	for _, id := range ids {
		state := a.candidates[id]

		pkgs := make([]ports.PackageRecord, 0, len(state.packages))
		for _, pkg := range state.packages {
			pkgs = append(pkgs, pkg)
		}
		sort.Slice(pkgs, func(i, j int) bool {
			if pkgs[i].CanonicalName != pkgs[j].CanonicalName {
				return pkgs[i].CanonicalName < pkgs[j].CanonicalName
			}
			return pkgs[i].Flavor.Before(pkgs[j].Flavor)
		})

		sort.Strings(state.vuln.Aliases)

		// The record's spec list is replaced by the merged set so the
		// candidate carries every bound observed, not just the first
		// arrival's
		merged := make([]VersionSpec, 0, len(state.specs))
		for spec := range state.specs {
			merged = append(merged, spec)
		}
		sort.Slice(merged, func(i, j int) bool {
			if merged[i].Kind != merged[j].Kind {
				return merged[i].Kind < merged[j].Kind
			}
			return merged[i].Version < merged[j].Version
		})
		state.vuln.Specs = merged

		entry := &CandidateEntry{
			ID:       id,
			Vuln:     state.vuln,
			Packages: pkgs,
		}
		entry.Bound, entry.BoundSpread = a.mergeBounds(id, state, pkgs)
		entry.UpperBounds = len(upperBounds(state))
		entries = append(entries, entry)
	}
	return entries
}

// mergeBounds picks the tightest upper bound among those observed and
// classifies how far the bounds disagree. When the feed gave no fixed or
// last-affected version at all, the lowest installed version stands in as
// an inclusive bound, matching what the published entries do for open-ended
// ranges.
func (a *Aggregator) mergeBounds(id string, state *candidateState, pkgs []ports.PackageRecord) (VersionSpec, int) {
	bounds := upperBounds(state)
	if len(bounds) == 0 {
		lowest := lowestInstalled(pkgs)
		if lowest == "" {
			return VersionSpec{Kind: BoundUnbounded}, 0
		}
		return VersionSpec{Kind: BoundLessOrEqual, Version: lowest}, 0
	}

	sort.Slice(bounds, func(i, j int) bool {
		cmp, err := CompareVersions(bounds[i].Version, bounds[j].Version)
		if err != nil {
			return bounds[i].Version < bounds[j].Version
		}
		if cmp != 0 {
			return cmp < 0
		}
		return bounds[i].Kind == BoundLessThan && bounds[j].Kind == BoundLessOrEqual
	})

	spread := boundSpread(bounds)
	if spread > 0 {
		a.logger.Debug("upper bounds disagree across flavors",
			"vuln_id", id,
			"tightest", bounds[0].Version,
			"loosest", bounds[len(bounds)-1].Version,
			"spread", spread)
	}
	return bounds[0], spread
}

// upperBounds extracts the distinct parseable upper bounds from the merged
// specification set
func upperBounds(state *candidateState) []VersionSpec {
	var bounds []VersionSpec
	seen := make(map[VersionSpec]bool)
	for spec := range state.specs {
		if spec.Kind == BoundUnbounded {
			continue
		}
		if _, err := pep440.Parse(spec.Version); err != nil {
			continue
		}
		if !seen[spec] {
			seen[spec] = true
			bounds = append(bounds, spec)
		}
	}
	return bounds
}

// boundSpread classifies the disagreement between the tightest and loosest
// bound: 0 identical, 1 patch level, 2 minor, 3 major. Bounds that do not
// coerce to a semantic version count as a major disagreement so the review
// policy sees them.
func boundSpread(bounds []VersionSpec) int {
	if len(bounds) < 2 {
		return 0
	}

	lo, err := semver.NewVersion(bounds[0].Version)
	if err != nil {
		return 3
	}
	hi, err := semver.NewVersion(bounds[len(bounds)-1].Version)
	if err != nil {
		return 3
	}

	switch {
	case lo.Major() != hi.Major():
		return 3
	case lo.Minor() != hi.Minor():
		return 2
	case lo.Patch() != hi.Patch():
		return 1
	case lo.Equal(hi):
		return 0
	default:
		return 1
	}
}

// lowestInstalled returns the lowest installed version among the affected
// packages under PEP 440 ordering, falling back to lexical order when a
// version fails to parse
func lowestInstalled(pkgs []ports.PackageRecord) string {
	lowest := ""
	for _, pkg := range pkgs {
		if pkg.Version == "" {
			continue
		}
		if lowest == "" {
			lowest = pkg.Version
			continue
		}
		cmp, err := CompareVersions(pkg.Version, lowest)
		if err != nil {
			if pkg.Version < lowest {
				lowest = pkg.Version
			}
			continue
		}
		if cmp < 0 {
			lowest = pkg.Version
		}
	}
	return lowest
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
