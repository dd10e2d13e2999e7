package ports

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// indexFieldCount is the column count of the ports INDEX format
// (https://wiki.freebsd.org/Ports/INDEX)
const indexFieldCount = 13

// IndexEntry is one raw line of the ports INDEX
type IndexEntry struct {
	VersionedName string // e.g. "py39-requests-2.28.1_1,2"
	Dir           string // port directory, e.g. "/usr/ports/www/py-requests"
}

// ReadIndex loads the ports INDEX file. Lines with the wrong field count are
// logged and skipped; they must not abort the pass.
func ReadIndex(path string, logger *slog.Logger) ([]IndexEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ports index %s: %w", path, err)
	}
	defer file.Close()

	var entries []IndexEntry

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		fields := strings.Split(line, "|")
		if len(fields) != indexFieldCount {
			logger.Warn("ports index line does not have 13 fields, skipping",
				"line", line)
			continue
		}

		entries = append(entries, IndexEntry{
			VersionedName: fields[0],
			Dir:           fields[1],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ports index %s: %w", path, err)
	}

	return entries, nil
}

// SelectFlavored keeps only the entries whose name carries a flavor prefix
func SelectFlavored(entries []IndexEntry) []IndexEntry {
	var selected []IndexEntry
	for _, entry := range entries {
		if IsFlavored(entry.VersionedName) {
			selected = append(selected, entry)
		}
	}
	return selected
}

var (
	portEpoch    = regexp.MustCompile(`,[0-9]*$`)
	portRevision = regexp.MustCompile(`_[0-9]*$`)
	versionTail  = regexp.MustCompile(`-[0-9.pg+]+$`)
)

// SplitVersionedName splits a versioned catalog name into the flavored port
// name and the port version, after stripping PORTEPOCH (",N") and
// PORTREVISION ("_N") suffixes.
func SplitVersionedName(versionedName string) (name, version string) {
	simplified := portEpoch.ReplaceAllString(versionedName, "")
	simplified = portRevision.ReplaceAllString(simplified, "")

	name = versionTail.ReplaceAllString(simplified, "")
	version = strings.TrimPrefix(simplified, name)
	version = strings.TrimPrefix(version, "-")
	return name, version
}
