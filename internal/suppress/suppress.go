// Package suppress loads the operator-maintained suppression lists: the
// identifiers to ignore permanently and the ones already reported upstream
// but not yet committed.
package suppress

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/freebsd-sec/pysec2vuxml/internal/errors"
)

// Set is one suppression list, a membership set of vulnerability
// identifiers
type Set struct {
	ids map[string]bool
}

// NewSet builds a set from explicit identifiers, mainly for tests
func NewSet(ids ...string) *Set {
	set := &Set{ids: make(map[string]bool, len(ids))}
	for _, id := range ids {
		set.ids[id] = true
	}
	return set
}

// Load reads a suppression list: one identifier per line, blank lines and
// lines starting with # skipped. A missing file yields an empty set, an
// unreadable one is fatal because running without a configured list would
// silently resurface suppressed records.
func Load(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewSet(), nil
		}
		return nil, fmt.Errorf("open suppression list %s: %w: %v", path, errors.ErrSnapshotLoad, err)
	}
	defer f.Close()

	set := NewSet()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		set.ids[line] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read suppression list %s: %w: %v", path, errors.ErrSnapshotLoad, err)
	}
	return set, nil
}

// Contains reports membership of a single identifier
func (s *Set) Contains(id string) bool {
	return s.ids[id]
}

// ContainsAny reports whether any of the identifiers is in the set, so a
// record is suppressed whether the list names its primary identifier or an
// alias
func (s *Set) ContainsAny(ids []string) bool {
	for _, id := range ids {
		if s.ids[id] {
			return true
		}
	}
	return false
}

// Len returns the number of identifiers in the set
func (s *Set) Len() int {
	return len(s.ids)
}

// Lists bundles the two suppression lists. They cover disjoint situations:
// ignored records stay suppressed forever, reported ones only until the
// corresponding entry lands in the database.
type Lists struct {
	Ignore   *Set
	Reported *Set
}

// LoadLists reads both suppression lists
func LoadLists(ignorePath, reportedPath string) (*Lists, error) {
	ignore, err := Load(ignorePath)
	if err != nil {
		return nil, err
	}
	reported, err := Load(reportedPath)
	if err != nil {
		return nil, err
	}
	return &Lists{Ignore: ignore, Reported: reported}, nil
}
