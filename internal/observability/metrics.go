package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for a reconciliation run
type Metrics struct {
	// Catalog metrics
	PortsParsed    prometheus.Counter
	PortsMalformed prometheus.Counter

	// Feed metrics
	FeedRequests  prometheus.Counter
	FeedErrors    prometheus.Counter
	FeedCacheHits prometheus.Counter

	// Reconciliation metrics
	PackagesChecked    prometheus.Counter
	PackagesNotFound   prometheus.Counter
	PackagesVulnerable prometheus.Counter
	VersionsUnparsable prometheus.Counter

	// Candidate metrics by classification (new, modified, duplicate,
	// suppressed-ignored, suppressed-reported)
	Candidates *prometheus.CounterVec

	// Review policy metrics
	ReviewFlagged prometheus.Counter
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the singleton metrics instance
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = newMetrics(prometheus.DefaultRegisterer)
	})
	return metricsInstance
}

// NewMetricsWith creates a metrics set registered on a caller-provided
// registry, for tests that need isolation from the default registry
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PortsParsed: factory.NewCounter(prometheus.CounterOpts{
			Name: "pysec2vuxml_ports_parsed_total",
			Help: "Total number of catalog entries parsed from the ports index",
		}),
		PortsMalformed: factory.NewCounter(prometheus.CounterOpts{
			Name: "pysec2vuxml_ports_malformed_total",
			Help: "Total number of catalog entries skipped as malformed",
		}),
		FeedRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "pysec2vuxml_feed_requests_total",
			Help: "Total number of vulnerability feed lookups issued",
		}),
		FeedErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "pysec2vuxml_feed_errors_total",
			Help: "Total number of vulnerability feed lookups that failed",
		}),
		FeedCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "pysec2vuxml_feed_cache_hits_total",
			Help: "Total number of feed lookups served from the cache",
		}),
		PackagesChecked: factory.NewCounter(prometheus.CounterOpts{
			Name: "pysec2vuxml_packages_checked_total",
			Help: "Total number of canonical package names checked",
		}),
		PackagesNotFound: factory.NewCounter(prometheus.CounterOpts{
			Name: "pysec2vuxml_packages_not_found_total",
			Help: "Total number of packages with no usable feed answer",
		}),
		PackagesVulnerable: factory.NewCounter(prometheus.CounterOpts{
			Name: "pysec2vuxml_packages_vulnerable_total",
			Help: "Total number of packages with at least one matching vulnerability",
		}),
		VersionsUnparsable: factory.NewCounter(prometheus.CounterOpts{
			Name: "pysec2vuxml_versions_unparsable_total",
			Help: "Total number of version comparisons skipped as unparsable",
		}),
		Candidates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pysec2vuxml_candidates_total",
			Help: "Total number of candidate entries by classification",
		}, []string{"classification"}),
		ReviewFlagged: factory.NewCounter(prometheus.CounterOpts{
			Name: "pysec2vuxml_review_flagged_total",
			Help: "Total number of candidates flagged for manual review",
		}),
	}
}

// WriteTextfile dumps the default registry into a node-exporter
// textfile-collector file. The process is one-shot, so this replaces the
// scrape endpoint a long-running service would expose.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
