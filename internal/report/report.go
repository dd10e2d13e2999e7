// Package report writes the human-facing output of a reconciliation pass:
// the vulnerable-package table, the related-ports listing, the run summary
// and the generated entry skeletons.
package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/freebsd-sec/pysec2vuxml/internal/ports"
	"github.com/freebsd-sec/pysec2vuxml/internal/recon"
)

// Writer renders pass results to an output stream
type Writer struct {
	out io.Writer
}

// NewWriter creates a report writer
func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

type tableRow struct {
	vulns       int
	canonical   string
	origin      string
	portName    string
	portVersion string
	maintainer  string
}

// WriteTable prints one aligned row per affected port, sorted by canonical
// name then flavor, with the number of retained vulnerability records each
// one matched
func (w *Writer) WriteTable(candidates []*recon.CandidateEntry) error {
	type key struct{ canonical, portName string }
	rows := make(map[key]*tableRow)

	for _, cand := range candidates {
		for _, pkg := range cand.Packages {
			k := key{canonical: pkg.CanonicalName, portName: pkg.PortName}
			row, ok := rows[k]
			if !ok {
				row = &tableRow{
					canonical:   pkg.CanonicalName,
					origin:      pkg.Origin,
					portName:    pkg.PortName,
					portVersion: pkg.PortVersion,
					maintainer:  pkg.Maintainer,
				}
				rows[k] = row
			}
			row.vulns++
		}
	}

	sorted := make([]*tableRow, 0, len(rows))
	for _, row := range rows {
		sorted = append(sorted, row)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].canonical != sorted[j].canonical {
			return sorted[i].canonical < sorted[j].canonical
		}
		return sorted[i].portName < sorted[j].portName
	})

	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Vulns\tPackage\tPort path\tPort name\tPort version\tMaintainer")
	for _, row := range sorted {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			row.vulns, row.canonical, row.origin, row.portName, row.portVersion, row.maintainer)
	}
	return tw.Flush()
}

// WriteRelated prints, for each vulnerable package, the catalog ports whose
// name starts with the same canonical name and that share its WWW site
// and/or comment. Other flavors and forks of a vulnerable port usually need
// the same entry; the (=W) and (=C) markers say why a port made the list.
func (w *Writer) WriteRelated(candidates []*recon.CandidateEntry, catalog []ports.PackageRecord) error {
	bases := make(map[string]ports.PackageRecord)
	for _, cand := range candidates {
		for _, pkg := range cand.Packages {
			if _, ok := bases[pkg.CanonicalName]; !ok {
				bases[pkg.CanonicalName] = pkg
			}
		}
	}

	names := make([]string, 0, len(bases))
	for name := range bases {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		base := bases[name]
		var lines []string
		for _, rec := range catalog {
			if !strings.HasPrefix(rec.CanonicalName, name) {
				continue
			}
			sameWWW := base.WWW != "" && rec.WWW == base.WWW
			sameComment := base.Comment != "" && rec.Comment == base.Comment
			if !sameWWW && !sameComment {
				continue
			}
			line := "  " + rec.PortName
			if sameWWW {
				line += " (=W)"
			}
			if sameComment {
				line += " (=C)"
			}
			lines = append(lines, line)
		}
		if len(lines) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w.out,
			"\nPorts similar to %s, (=W) same WWW site, (=C) same comment:\n", base.PortName); err != nil {
			return err
		}
		for _, line := range lines {
			if _, err := fmt.Fprintln(w.out, line); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteSummary prints the numeric outcome of the pass
func (w *Writer) WriteSummary(s recon.Summary) error {
	_, err := fmt.Fprintf(w.out,
		"\n%d packages checked, %d not found, %d vulnerable\n"+
			"%d new entries, %d modified, %d duplicates, %d ignored, %d already reported\n",
		s.PackagesChecked, s.PackagesNotFound, s.PackagesVulnerable,
		s.New, s.Modified, s.Duplicates, s.Ignored, s.AlreadyReported)
	return err
}

// WriteEntries renders entry skeletons one after another
func (w *Writer) WriteEntries(entries []recon.Entry) error {
	for _, entry := range entries {
		if _, err := io.WriteString(w.out, entry.VuXML()); err != nil {
			return err
		}
	}
	return nil
}

// WriteEntriesFile writes entry skeletons to a file, leaving no file behind
// when there is nothing to write
func WriteEntriesFile(path string, entries []recon.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create entries file %s: %w", path, err)
	}
	defer f.Close()

	if err := NewWriter(f).WriteEntries(entries); err != nil {
		return fmt.Errorf("write entries file %s: %w", path, err)
	}
	return f.Close()
}
