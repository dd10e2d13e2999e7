// Package ports loads the FreeBSD ports catalog and normalizes
// flavor-qualified port names into canonical package identities.
package ports

import (
	"fmt"
	"regexp"

	"github.com/freebsd-sec/pysec2vuxml/internal/errors"
)

// Flavor identifies the Python runtime variant a port is built for
type Flavor struct {
	Major int
	Minor int
}

// String returns the flavor tag, e.g. "py39"
func (f Flavor) String() string {
	return fmt.Sprintf("py%d%d", f.Major, f.Minor)
}

// Prefix returns the catalog name prefix for this flavor, e.g. "py39-"
func (f Flavor) Prefix() string {
	return f.String() + "-"
}

// Before orders flavors by runtime version
func (f Flavor) Before(other Flavor) bool {
	if f.Major != other.Major {
		return f.Major < other.Major
	}
	return f.Minor < other.Minor
}

// FlavorRange is the fixed flavor enumeration entries are expanded against
type FlavorRange struct {
	Major      int
	FirstMinor int
	LastMinor  int
}

// Flavors enumerates the range in ascending minor order
func (r FlavorRange) Flavors() []Flavor {
	var flavors []Flavor
	for minor := r.FirstMinor; minor <= r.LastMinor; minor++ {
		flavors = append(flavors, Flavor{Major: r.Major, Minor: minor})
	}
	return flavors
}

// Contains reports whether f falls inside the enumeration
func (r FlavorRange) Contains(f Flavor) bool {
	return f.Major == r.Major && f.Minor >= r.FirstMinor && f.Minor <= r.LastMinor
}

// flavorPrefix is the complete flavor-prefix grammar. The canonical name is
// everything after the prefix, taken as one exact token: "py39-sqlalchemy14"
// normalizes to canonical name "sqlalchemy14", which stays distinct from
// "sqlalchemy". Substring matching against canonical names is deliberately
// never used anywhere in this package.
var flavorPrefix = regexp.MustCompile(`^py([23])([0-9]{1,2})-(.+)$`)

// SplitFlavor parses a flavor-qualified port name into its flavor tag and
// canonical package name. The input must not carry a version suffix.
func SplitFlavor(portName string) (Flavor, string, error) {
	m := flavorPrefix.FindStringSubmatch(portName)
	if m == nil {
		return Flavor{}, "", fmt.Errorf("%w: %q does not match the flavor-prefix grammar", errors.ErrMalformedIdentifier, portName)
	}

	major := int(m[1][0] - '0')
	minor := 0
	for _, c := range m[2] {
		minor = minor*10 + int(c-'0')
	}

	return Flavor{Major: major, Minor: minor}, m[3], nil
}

var flavoredName = regexp.MustCompile(`^py[23][0-9]+-`)

// IsFlavored reports whether the versioned name carries a flavor prefix
func IsFlavored(versionedName string) bool {
	return flavoredName.MatchString(versionedName)
}
