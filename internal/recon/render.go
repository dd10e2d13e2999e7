package recon

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Placeholders left in generated entries for the committer to fill in
const (
	placeholderSummary = "INSERT_VULNERABILITY_SUMMARY_HERE"
	placeholderSource  = "INSERT_SOURCE_NAME_HERE"
	placeholderVersion = "INSERT_VULNERABLE_VERSION_HERE"
	placeholderDate    = "INSERT_YEAR-MONTH-DAY"
)

// Entry is a rendered security-entry skeleton ready to be pasted into the
// ports vulnerability database
type Entry struct {
	Vid          string
	Topic        string
	Packages     []EntryPackage
	Link         string
	Description  string
	CVENames     []string
	ReferenceURL string
	Discovery    string
	EntryDate    string
}

// EntryPackage is one affected package block: every affected flavor of one
// canonical name, sharing a single version range
type EntryPackage struct {
	Names []string
	Bound VersionSpec
}

// Renderer turns classified candidates into entry skeletons. The identifier
// generator and clock are injectable so rendering stays deterministic under
// test.
type Renderer struct {
	NewID func() string
	Now   func() time.Time
}

// NewRenderer creates a renderer with random entry identifiers and the wall
// clock
func NewRenderer() *Renderer {
	return &Renderer{
		NewID: uuid.NewString,
		Now:   time.Now,
	}
}

// Render builds the entry skeleton for one candidate. discovery is the
// earliest known publication date in YYYY-MM-DD form, empty when unknown.
// Consuming a candidate does not mutate it, so rendering twice yields
// equivalent entries apart from the generated identifier.
func (r *Renderer) Render(c *CandidateEntry, discovery string) Entry {
	entry := Entry{
		Vid:          r.NewID(),
		Topic:        topicFor(c),
		Link:         c.Vuln.Link,
		Description:  descriptionFor(c.Vuln),
		CVENames:     c.Vuln.CVEs(),
		ReferenceURL: c.Vuln.Link,
		Discovery:    discovery,
		EntryDate:    r.Now().UTC().Format("2006-01-02"),
	}
	if entry.Discovery == "" {
		entry.Discovery = placeholderDate
	}

	for _, name := range c.CanonicalNames() {
		pkg := EntryPackage{Bound: c.Bound}
		for _, rec := range c.Packages {
			if rec.CanonicalName == name {
				pkg.Names = append(pkg.Names, rec.Flavor.Prefix()+name)
			}
		}
		entry.Packages = append(entry.Packages, pkg)
	}
	return entry
}

// topicFor builds the entry topic from the first affected canonical name
// and the feed summary, leaving a placeholder when the feed gave none
func topicFor(c *CandidateEntry) string {
	summary := strings.TrimSpace(c.Vuln.Summary)
	if summary == "" {
		summary = placeholderSummary
	}
	names := c.CanonicalNames()
	name := ""
	if len(names) > 0 {
		name = names[0]
	}
	return fmt.Sprintf("py-%s -- %s", name, summary)
}

// descriptionFor prefers the detailed feed text over the one-line summary
func descriptionFor(v Vulnerability) string {
	if details := strings.TrimSpace(v.Details); details != "" {
		return details
	}
	return strings.TrimSpace(v.Summary)
}

// escapeXML escapes the characters VuXML text content cannot carry
// verbatim. Ampersands go first so the other escapes stay intact.
func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// VuXML renders the entry as a vulnerability-database fragment
func (e Entry) VuXML() string {
	var b strings.Builder

	fmt.Fprintf(&b, "  <vuln vid=\"%s\">\n", e.Vid)
	fmt.Fprintf(&b, "    <topic>%s</topic>\n", escapeXML(e.Topic))
	b.WriteString("    <affects>\n")
	for _, pkg := range e.Packages {
		b.WriteString("      <package>\n")
		for _, name := range pkg.Names {
			fmt.Fprintf(&b, "        <name>%s</name>\n", escapeXML(name))
		}
		fmt.Fprintf(&b, "        <range>%s</range>\n", pkg.Bound.vuxml())
		b.WriteString("      </package>\n")
	}
	b.WriteString("    </affects>\n")
	b.WriteString("    <description>\n")
	b.WriteString("      <body xmlns=\"http://www.w3.org/1999/xhtml\">\n")
	fmt.Fprintf(&b, "        <p>%s reports:</p>\n", placeholderSource)
	fmt.Fprintf(&b, "        <blockquote cite=\"%s\">\n", escapeXML(e.Link))
	fmt.Fprintf(&b, "          <p>%s</p>\n", escapeXML(e.Description))
	b.WriteString("        </blockquote>\n")
	b.WriteString("      </body>\n")
	b.WriteString("    </description>\n")
	b.WriteString("    <references>\n")
	for _, cve := range e.CVENames {
		fmt.Fprintf(&b, "      <cvename>%s</cvename>\n", escapeXML(cve))
	}
	if e.ReferenceURL != "" {
		fmt.Fprintf(&b, "      <url>%s</url>\n", escapeXML(e.ReferenceURL))
	}
	b.WriteString("    </references>\n")
	b.WriteString("    <dates>\n")
	fmt.Fprintf(&b, "      <discovery>%s</discovery>\n", e.Discovery)
	fmt.Fprintf(&b, "      <entry>%s</entry>\n", e.EntryDate)
	b.WriteString("    </dates>\n")
	b.WriteString("  </vuln>\n")

	return b.String()
}

// vuxml renders the version bound as a range element
func (s VersionSpec) vuxml() string {
	switch s.Kind {
	case BoundLessThan:
		return fmt.Sprintf("<lt>%s</lt>", escapeXML(s.Version))
	case BoundLessOrEqual:
		return fmt.Sprintf("<le>%s</le>", escapeXML(s.Version))
	default:
		return fmt.Sprintf("<le>%s</le>", placeholderVersion)
	}
}
