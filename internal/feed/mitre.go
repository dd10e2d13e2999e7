package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/freebsd-sec/pysec2vuxml/internal/cache"
	"github.com/freebsd-sec/pysec2vuxml/internal/errors"
)

// DefaultCVEEndpoint is the CVE registry record endpoint
const DefaultCVEEndpoint = "https://cveawg.mitre.org/api/cve"

// CVEClient resolves CVE publication dates from the registry. Publication
// dates never change once assigned, so responses are cached without expiry,
// including negative ones for identifiers the registry does not know.
type CVEClient struct {
	httpClient *http.Client
	endpoint   string
	store      cache.Store
	logger     *slog.Logger
}

// NewCVEClient creates a publication-date client backed by the given cache
// store
func NewCVEClient(endpoint string, timeout time.Duration, store cache.Store, logger *slog.Logger) *CVEClient {
	if endpoint == "" {
		endpoint = DefaultCVEEndpoint
	}
	return &CVEClient{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		store:      store,
		logger:     logger.With("component", "cve"),
	}
}

type cveRecord struct {
	CVEMetadata struct {
		DatePublished string `json:"datePublished"`
	} `json:"cveMetadata"`
}

// PublicationDate returns the registry publication date of a CVE in
// YYYY-MM-DD form, or empty when the registry has no record
func (c *CVEClient) PublicationDate(ctx context.Context, cve string) (string, error) {
	key := "cve:" + cve

	if data, ok, err := c.store.Get(ctx, key); err != nil {
		c.logger.Warn("cache read failed", "cve", cve, "error", err)
	} else if ok {
		return datePart(string(data)), nil
	}

	published, err := c.fetch(ctx, cve)
	if errors.Is(err, errors.ErrNotFound) {
		// The registry will keep not knowing this identifier; cache the
		// negative answer so reruns skip the round trip
		c.put(ctx, key, "")
		return "", nil
	}
	if err != nil {
		return "", err
	}

	c.put(ctx, key, published)
	return datePart(published), nil
}

// fetch retrieves one registry record, reporting unknown identifiers as
// ErrNotFound
func (c *CVEClient) fetch(ctx context.Context, cve string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/"+cve, nil)
	if err != nil {
		return "", errors.NewPermanentf("build registry request for %s: %v", cve, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: fetch %s: %v", errors.ErrFeedUnavailable, cve, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%w: no registry record for %s", errors.ErrNotFound, cve)
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%w: fetch %s: status %d", errors.ErrFeedUnavailable, cve, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read record for %s: %v", errors.ErrFeedUnavailable, cve, err)
	}

	var record cveRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return "", errors.NewPermanentf("decode record for %s: %v", cve, err)
	}
	return record.CVEMetadata.DatePublished, nil
}

func (c *CVEClient) put(ctx context.Context, key, value string) {
	if err := c.store.Put(ctx, key, []byte(value), 0); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

// datePart reduces an RFC 3339 timestamp to its date
func datePart(timestamp string) string {
	if timestamp == "" {
		return ""
	}
	if i := strings.IndexByte(timestamp, 'T'); i > 0 {
		return timestamp[:i]
	}
	return timestamp
}
