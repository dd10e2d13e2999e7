package recon

import (
	"log/slog"

	pep440 "github.com/aquasecurity/go-pep440-version"

	"github.com/freebsd-sec/pysec2vuxml/internal/errors"
	"github.com/freebsd-sec/pysec2vuxml/internal/observability"
)

// Matcher decides whether an installed version falls inside a
// vulnerability's affected range using PEP 440 ordering
type Matcher struct {
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewMatcher creates a version matcher
func NewMatcher(logger *slog.Logger, metrics *observability.Metrics) *Matcher {
	return &Matcher{
		logger:  logger.With("component", "matcher"),
		metrics: metrics,
	}
}

// Matches reports whether installed satisfies at least one of the given
// specifications. An empty specification list never matches: it means the
// feed carried no version information, not that every version is affected.
// An unparsable installed version returns ErrUnparsableVersion so the caller
// can skip the package without failing the pass. Unparsable bound versions
// skip only the affected specification.
func (m *Matcher) Matches(installed string, specs []VersionSpec) (bool, error) {
	if len(specs) == 0 {
		return false, nil
	}

	var version pep440.Version
	parsed := false
	for _, spec := range specs {
		if spec.Kind == BoundUnbounded {
			return true, nil
		}

		if !parsed {
			v, err := pep440.Parse(installed)
			if err != nil {
				m.metrics.VersionsUnparsable.Inc()
				return false, errors.NewPermanentf("parse installed version %q: %w: %v",
					installed, errors.ErrUnparsableVersion, err)
			}
			version = v
			parsed = true
		}

		bound, err := pep440.Parse(spec.Version)
		if err != nil {
			m.logger.Warn("skipping unparsable bound version",
				"bound", spec.Version,
				"kind", spec.Kind.String())
			m.metrics.VersionsUnparsable.Inc()
			continue
		}

		switch spec.Kind {
		case BoundLessThan:
			if version.LessThan(bound) {
				return true, nil
			}
		case BoundLessOrEqual:
			if version.LessThan(bound) || version.Equal(bound) {
				return true, nil
			}
		}
	}

	return false, nil
}

// CompareVersions orders two version strings under PEP 440. Returns a
// negative value when a sorts before b, zero when equal, positive when
// after, and an error when either side fails to parse.
func CompareVersions(a, b string) (int, error) {
	va, err := pep440.Parse(a)
	if err != nil {
		return 0, errors.NewPermanentf("parse version %q: %w: %v", a, errors.ErrUnparsableVersion, err)
	}
	vb, err := pep440.Parse(b)
	if err != nil {
		return 0, errors.NewPermanentf("parse version %q: %w: %v", b, errors.ErrUnparsableVersion, err)
	}
	switch {
	case va.LessThan(vb):
		return -1, nil
	case va.Equal(vb):
		return 0, nil
	default:
		return 1, nil
	}
}
