// Package feed fetches vulnerability records for Python packages from the
// OSV service and publication dates from the CVE registry, caching both so
// repeated passes stay cheap and reproducible.
package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/osv-scanner/pkg/models"

	"github.com/freebsd-sec/pysec2vuxml/internal/cache"
	"github.com/freebsd-sec/pysec2vuxml/internal/errors"
	"github.com/freebsd-sec/pysec2vuxml/internal/observability"
	"github.com/freebsd-sec/pysec2vuxml/internal/recon"
)

// DefaultEndpoint is the OSV query endpoint
const DefaultEndpoint = "https://api.osv.dev/v1/query"

// Config tunes the feed client
type Config struct {
	Endpoint      string
	Timeout       time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
	CacheTTL      time.Duration
}

// DefaultConfig returns the default feed-client configuration
func DefaultConfig() Config {
	return Config{
		Endpoint:      DefaultEndpoint,
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RetryBackoff:  2 * time.Second,
		CacheTTL:      24 * time.Hour,
	}
}

// Client queries the OSV service for the vulnerability records of one
// package at a time. Responses are cached under a per-package key so a
// rerun within the TTL touches the network only for packages it has not
// seen.
type Client struct {
	httpClient *http.Client
	config     Config
	store      cache.Store
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a feed client backed by the given cache store
func NewClient(config Config, store cache.Store, logger *slog.Logger, metrics *observability.Metrics) *Client {
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	return &Client{
		httpClient: &http.Client{Timeout: config.Timeout},
		config:     config,
		store:      store,
		logger:     logger.With("component", "feed"),
		metrics:    metrics,
	}
}

type osvQuery struct {
	Package osvPackage `json:"package"`
}

type osvPackage struct {
	Name      string `json:"name"`
	Ecosystem string `json:"ecosystem"`
}

type osvResponse struct {
	Vulns []models.Vulnerability `json:"vulns"`
}

// Lookup returns the vulnerability records published for a canonical
// package name, from cache when fresh
func (c *Client) Lookup(ctx context.Context, name string) ([]recon.Vulnerability, error) {
	key := "osv:PyPI:" + name

	if data, ok, err := c.store.Get(ctx, key); err != nil {
		c.logger.Warn("cache read failed", "package", name, "error", err)
	} else if ok {
		c.metrics.FeedCacheHits.Inc()
		return c.decode(name, data)
	}

	data, err := c.query(ctx, name)
	if err != nil {
		return nil, err
	}

	if err := c.store.Put(ctx, key, data, c.config.CacheTTL); err != nil {
		c.logger.Warn("cache write failed", "package", name, "error", err)
	}
	return c.decode(name, data)
}

// query posts the package query, retrying with exponential backoff as long
// as the taxonomy classifies the failure as transient
func (c *Client) query(ctx context.Context, name string) ([]byte, error) {
	body, err := json.Marshal(osvQuery{
		Package: osvPackage{Name: name, Ecosystem: string(models.EcosystemPyPI)},
	})
	if err != nil {
		return nil, errors.NewPermanentf("marshal feed query for %s: %v", name, err)
	}

	var data []byte
	operation := func() error {
		err := c.fetch(ctx, name, body, &data)
		if err != nil && !errors.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(c.retryPolicy(), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		if errors.IsTransient(err) || errors.IsPermanent(err) {
			return nil, err
		}
		return nil, errors.NewTransient(fmt.Errorf("%w: query %s: %v", errors.ErrFeedUnavailable, name, err))
	}
	return data, nil
}

// fetch performs one query attempt, classifying every failure so the retry
// loop can tell retryable conditions from final ones
func (c *Client) fetch(ctx context.Context, name string, body []byte, data *[]byte) error {
	c.metrics.FeedRequests.Inc()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.NewPermanentf("build query for %s: %v", name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.FeedErrors.Inc()
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("%w: query %s: %v", errors.ErrTimeout, name, err)
		}
		return fmt.Errorf("%w: query %s: %v", errors.ErrFeedUnavailable, name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.FeedErrors.Inc()
		io.Copy(io.Discard, resp.Body)
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: query %s", errors.ErrRateLimit, name)
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return errors.NewPermanent(fmt.Errorf("%w: query %s: status %d", errors.ErrFeedUnavailable, name, resp.StatusCode))
		default:
			return fmt.Errorf("%w: query %s: status %d", errors.ErrFeedUnavailable, name, resp.StatusCode)
		}
	}

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.FeedErrors.Inc()
		return fmt.Errorf("%w: read response for %s: %v", errors.ErrFeedUnavailable, name, err)
	}
	*data = buf
	return nil
}

func (c *Client) retryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.RetryBackoff
	return backoff.WithMaxRetries(b, uint64(c.config.RetryAttempts))
}

// decode unmarshals a cached or fresh response body and converts it to the
// reconciliation model
func (c *Client) decode(name string, data []byte) ([]recon.Vulnerability, error) {
	var resp osvResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, errors.NewPermanentf("decode feed response for %s: %v", name, err)
	}

	vulns := make([]recon.Vulnerability, 0, len(resp.Vulns))
	for _, v := range resp.Vulns {
		vulns = append(vulns, Convert(name, v))
	}
	return vulns, nil
}

// Convert reduces a feed record to the reconciliation model: identifier,
// aliases, description text, upper-bound version specifications and a
// source URL
func Convert(name string, v models.Vulnerability) recon.Vulnerability {
	return recon.Vulnerability{
		ID:        v.ID,
		Aliases:   append([]string(nil), v.Aliases...),
		Summary:   v.Summary,
		Details:   v.Details,
		Specs:     convertSpecs(name, v.Affected),
		Link:      referenceLink(v),
		Published: v.Published,
		Withdrawn: !v.Withdrawn.IsZero(),
	}
}

// convertSpecs extracts affected-version specifications for the queried
// package. A fixed event becomes a strict upper bound, a last-affected
// event an inclusive one. A range that opens with an introduced event and
// never closes explicitly signals that every later version is affected.
func convertSpecs(name string, affected []models.Affected) []recon.VersionSpec {
	var specs []recon.VersionSpec
	for _, aff := range affected {
		if aff.Package.Ecosystem != models.EcosystemPyPI {
			continue
		}
		if !samePackage(aff.Package.Name, name) {
			continue
		}
		for _, r := range aff.Ranges {
			if r.Type != models.RangeEcosystem && r.Type != models.RangeSemVer {
				continue
			}
			closed := false
			opened := false
			for _, event := range r.Events {
				if event.Introduced != "" {
					opened = true
				}
				if event.Fixed != "" {
					specs = append(specs, recon.VersionSpec{Kind: recon.BoundLessThan, Version: event.Fixed})
					closed = true
				}
				if event.LastAffected != "" {
					specs = append(specs, recon.VersionSpec{Kind: recon.BoundLessOrEqual, Version: event.LastAffected})
					closed = true
				}
				if event.Limit != "" {
					closed = true
				}
			}
			if opened && !closed {
				specs = append(specs, recon.VersionSpec{Kind: recon.BoundUnbounded})
			}
		}
	}
	return specs
}

// samePackage compares package names under PyPI normalization rules, where
// case and the separators - _ . are equivalent
func samePackage(a, b string) bool {
	return normalizePyPI(a) == normalizePyPI(b)
}

func normalizePyPI(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "_", "-")
	name = strings.ReplaceAll(name, ".", "-")
	return name
}

// referenceLink picks the source URL for an entry: the first advisory
// reference when one exists, otherwise the first reference of any type,
// otherwise the record's own feed page
func referenceLink(v models.Vulnerability) string {
	for _, ref := range v.References {
		if ref.Type == models.ReferenceAdvisory && ref.URL != "" {
			return ref.URL
		}
	}
	for _, ref := range v.References {
		if ref.URL != "" {
			return ref.URL
		}
	}
	return "https://osv.dev/vulnerability/" + v.ID
}
