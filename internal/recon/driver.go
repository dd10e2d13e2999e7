package recon

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/freebsd-sec/pysec2vuxml/internal/observability"
	"github.com/freebsd-sec/pysec2vuxml/internal/policy"
	"github.com/freebsd-sec/pysec2vuxml/internal/ports"
)

// FeedClient looks up the vulnerability records published for one canonical
// package name
type FeedClient interface {
	Lookup(ctx context.Context, name string) ([]Vulnerability, error)
}

// CVEDater resolves the publication date of a CVE identifier in YYYY-MM-DD
// form, empty when unknown
type CVEDater interface {
	PublicationDate(ctx context.Context, cve string) (string, error)
}

// ReviewPolicy decides whether a candidate needs a human look before
// submission
type ReviewPolicy interface {
	Evaluate(ctx context.Context, vulnID string, facts policy.Facts) (policy.Decision, error)
}

// Config bounds the reconciliation pass
type Config struct {
	Concurrency int
}

// DefaultConfig returns the default driver configuration
func DefaultConfig() Config {
	return Config{Concurrency: 8}
}

// Result is the complete outcome of one reconciliation pass
type Result struct {
	Summary         Summary
	Candidates      []*CandidateEntry
	NewEntries      []Entry
	ModifiedEntries []Entry
}

// Driver runs one reconciliation pass: feed lookups fan out across a
// bounded worker pool, everything downstream of the network runs on a
// single goroutine so aggregation needs no locking.
type Driver struct {
	feed     FeedClient
	dater    CVEDater
	matcher  *Matcher
	filter   *Filter
	policy   ReviewPolicy
	renderer *Renderer
	config   Config
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewDriver wires a reconciliation driver
func NewDriver(
	feed FeedClient,
	dater CVEDater,
	matcher *Matcher,
	filter *Filter,
	reviewPolicy ReviewPolicy,
	renderer *Renderer,
	config Config,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Driver {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &Driver{
		feed:     feed,
		dater:    dater,
		matcher:  matcher,
		filter:   filter,
		policy:   reviewPolicy,
		renderer: renderer,
		config:   config,
		logger:   logger.With("component", "driver"),
		metrics:  metrics,
	}
}

type lookupResult struct {
	name  string
	vulns []Vulnerability
	err   error
}

// Run reconciles the given catalog records against the feed. Per-package
// failures are logged and counted, never fatal. Returns an error only when
// the context is canceled.
func (d *Driver) Run(ctx context.Context, records []ports.PackageRecord) (*Result, error) {
	byName := ports.ByCanonicalName(records)
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	d.logger.Info("starting reconciliation pass",
		"packages", len(names),
		"concurrency", d.config.Concurrency)

	jobs := make(chan string)
	results := make(chan lookupResult)

	var wg sync.WaitGroup
	for i := 0; i < d.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range jobs {
				vulns, err := d.feed.Lookup(ctx, name)
				select {
				case results <- lookupResult{name: name, vulns: vulns, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, name := range names {
			select {
			case jobs <- name:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	agg := NewAggregator(d.logger)
	summary := Summary{PackagesChecked: len(names)}

	for res := range results {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if res.err != nil {
			d.logger.Warn("feed lookup failed",
				"package", res.name,
				"error", res.err)
			summary.PackagesNotFound++
			d.metrics.PackagesNotFound.Inc()
			continue
		}
		d.metrics.PackagesChecked.Inc()
		d.collect(agg, byName[res.name], res.vulns)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{Summary: summary}
	d.classify(ctx, agg, result)

	d.logger.Info("reconciliation pass complete",
		"vulnerable_packages", result.Summary.PackagesVulnerable,
		"new", result.Summary.New,
		"modified", result.Summary.Modified,
		"duplicates", result.Summary.Duplicates,
		"ignored", result.Summary.Ignored,
		"already_reported", result.Summary.AlreadyReported)

	return result, nil
}

// collect matches one package's feed records against its installed flavors
// and folds the hits into the aggregator
func (d *Driver) collect(agg *Aggregator, records []ports.PackageRecord, vulns []Vulnerability) {
	for _, vuln := range vulns {
		for _, rec := range records {
			matched, err := d.matcher.Matches(rec.Version, vuln.Specs)
			if err != nil {
				d.logger.Warn("skipping version comparison",
					"package", rec.CanonicalName,
					"flavor", rec.Flavor.String(),
					"error", err)
				continue
			}
			if matched {
				agg.Add(rec, vuln)
			}
		}
	}
}

// classify finalizes the aggregation, applies the suppression filter and
// review policy, and renders new and modified entry skeletons
func (d *Driver) classify(ctx context.Context, agg *Aggregator, result *Result) {
	vulnerable := make(map[string]bool)

	for _, cand := range agg.Candidates() {
		classification, keep := d.filter.Classify(cand)
		if !keep {
			continue
		}
		cand.Classification = classification
		d.metrics.Candidates.WithLabelValues(classification.String()).Inc()

		for _, name := range cand.CanonicalNames() {
			vulnerable[name] = true
		}

		switch classification {
		case ClassificationSuppressedIgnored:
			result.Summary.Ignored++
		case ClassificationSuppressedReported:
			result.Summary.AlreadyReported++
		case ClassificationDuplicate:
			result.Summary.Duplicates++
		case ClassificationNew, ClassificationModified:
			d.review(ctx, cand)
			entry := d.renderer.Render(cand, d.discoveryDate(ctx, cand))
			if classification == ClassificationNew {
				result.Summary.New++
				result.NewEntries = append(result.NewEntries, entry)
			} else {
				result.Summary.Modified++
				result.ModifiedEntries = append(result.ModifiedEntries, entry)
			}
		}

		result.Candidates = append(result.Candidates, cand)
	}

	result.Summary.PackagesVulnerable = len(vulnerable)
	d.metrics.PackagesVulnerable.Add(float64(len(vulnerable)))
}

// review runs the policy against the candidate's aggregation facts
func (d *Driver) review(ctx context.Context, cand *CandidateEntry) {
	flavors := make(map[string]bool)
	for _, pkg := range cand.Packages {
		flavors[pkg.Flavor.String()] = true
	}

	facts := policy.Facts{
		BoundSpread:  cand.BoundSpread,
		UpperBounds:  cand.UpperBounds,
		FlavorCount:  len(flavors),
		PackageCount: len(cand.Packages),
		HasCVE:       len(cand.Vuln.CVEs()) > 0,
	}

	decision, err := d.policy.Evaluate(ctx, cand.ID, facts)
	if err != nil {
		d.logger.Warn("review policy evaluation failed, flagging candidate",
			"vuln_id", cand.ID,
			"error", err)
		cand.NeedsReview = true
		cand.ReviewReason = "policy evaluation failed"
		d.metrics.ReviewFlagged.Inc()
		return
	}
	if decision.NeedsReview {
		cand.NeedsReview = true
		cand.ReviewReason = decision.Reason
		d.metrics.ReviewFlagged.Inc()
	}
}

// discoveryDate resolves the earliest publication date among the
// candidate's CVE identifiers, falling back to the feed's own publication
// timestamp
func (d *Driver) discoveryDate(ctx context.Context, cand *CandidateEntry) string {
	earliest := ""
	for _, cve := range cand.Vuln.CVEs() {
		date, err := d.dater.PublicationDate(ctx, cve)
		if err != nil {
			d.logger.Warn("publication date lookup failed",
				"cve", cve,
				"error", err)
			continue
		}
		if date == "" {
			continue
		}
		if earliest == "" || date < earliest {
			earliest = date
		}
	}
	if earliest == "" && !cand.Vuln.Published.IsZero() {
		earliest = cand.Vuln.Published.UTC().Format("2006-01-02")
	}
	return earliest
}
