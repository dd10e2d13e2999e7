package ports

import (
	"log/slog"
	"strings"

	"github.com/freebsd-sec/pysec2vuxml/internal/observability"
)

// PackageRecord is one installed flavor of a canonical package. Immutable
// once built; the (CanonicalName, Flavor) pair is unique within one run.
type PackageRecord struct {
	CanonicalName string
	Flavor        Flavor
	Version       string // upstream package version, PEP 440 shaped
	Origin        string // port directory relative to the ports tree
	PortName      string // flavored name without version, e.g. "py39-requests"
	PortVersion   string // port version including revision/epoch suffixes
	Maintainer    string
	WWW           string
	Comment       string
}

// LoadCatalog builds the package catalog from the ports INDEX, enriching
// each flavored entry from its port Makefile. Malformed identifiers are
// logged and skipped: a single bad line must never abort the pass.
func LoadCatalog(indexPath string, logger *slog.Logger, metrics *observability.Metrics) ([]PackageRecord, error) {
	entries, err := ReadIndex(indexPath, logger)
	if err != nil {
		return nil, err
	}

	return buildRecords(SelectFlavored(entries), logger, metrics), nil
}

func buildRecords(entries []IndexEntry, logger *slog.Logger, metrics *observability.Metrics) []PackageRecord {
	var records []PackageRecord
	seen := make(map[string]bool)

	for _, entry := range entries {
		record, err := buildRecord(entry)
		if err != nil {
			logger.Warn("skipping malformed catalog entry",
				"versioned_name", entry.VersionedName,
				"error", err.Error())
			if metrics != nil {
				metrics.PortsMalformed.Inc()
			}
			continue
		}

		key := record.CanonicalName + "|" + record.Flavor.String()
		if seen[key] {
			logger.Warn("duplicate (canonical name, flavor) pair in catalog, keeping first",
				"canonical_name", record.CanonicalName,
				"flavor", record.Flavor.String())
			continue
		}
		seen[key] = true

		records = append(records, record)
		if metrics != nil {
			metrics.PortsParsed.Inc()
		}
	}

	return records
}

func buildRecord(entry IndexEntry) (PackageRecord, error) {
	portName, portVersion := SplitVersionedName(entry.VersionedName)

	flavor, canonical, err := SplitFlavor(portName)
	if err != nil {
		return PackageRecord{}, err
	}

	record := PackageRecord{
		CanonicalName: canonical,
		Flavor:        flavor,
		Version:       portVersion,
		Origin:        strings.TrimPrefix(entry.Dir, "/usr/ports/"),
		PortName:      portName,
		PortVersion:   portVersionSuffix(entry.VersionedName, portName),
	}

	meta := readPortMakefile(entry.Dir)
	if usable(meta.Name) && usable(meta.Version) {
		record.CanonicalName = meta.Name
		record.Version = meta.Version
	}
	record.Maintainer = meta.Maintainer
	record.WWW = meta.WWW
	record.Comment = meta.Comment

	return record, nil
}

// portVersionSuffix keeps the full port version including PORTREVISION and
// PORTEPOCH, for the <le> fallback bound and the report table
func portVersionSuffix(versionedName, portName string) string {
	return strings.TrimPrefix(strings.TrimPrefix(versionedName, portName), "-")
}

// usable rejects empty values and unexpanded make variables
func usable(value string) bool {
	return value != "" && !strings.Contains(value, "$")
}

// CanonicalNames returns the distinct canonical names across all flavors,
// in first-seen order
func CanonicalNames(records []PackageRecord) []string {
	var names []string
	seen := make(map[string]bool)
	for _, record := range records {
		if !seen[record.CanonicalName] {
			seen[record.CanonicalName] = true
			names = append(names, record.CanonicalName)
		}
	}
	return names
}

// ByCanonicalName groups records by canonical name, preserving flavor order
// within each group
func ByCanonicalName(records []PackageRecord) map[string][]PackageRecord {
	grouped := make(map[string][]PackageRecord)
	for _, record := range records {
		grouped[record.CanonicalName] = append(grouped[record.CanonicalName], record)
	}
	return grouped
}
