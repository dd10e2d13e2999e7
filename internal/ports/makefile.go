package ports

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// makefileVars are the port Makefile variables the catalog cares about
var (
	makefileComment = regexp.MustCompile(`[ \t]*#.*`)
	makefileAssign  = regexp.MustCompile(`^([A-Z_]+)=[ \t]*(.*)$`)
)

// portMetadata is the information extracted from one port's Makefile
type portMetadata struct {
	Name       string
	Version    string
	Maintainer string
	WWW        string
	Comment    string
}

// readPortMakefile extracts PORTNAME, PORTVERSION/DISTVERSION, MAINTAINER,
// WWW and COMMENT from a port directory's Makefile. A missing Makefile is
// not an error: the caller falls back to deriving name and version from the
// versioned catalog name.
func readPortMakefile(dir string) portMetadata {
	var meta portMetadata

	file, err := os.Open(filepath.Join(dir, "Makefile"))
	if err != nil {
		return meta
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := makefileComment.ReplaceAllString(scanner.Text(), "")
		m := makefileAssign.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		switch m[1] {
		case "PORTNAME":
			meta.Name = m[2]
		case "PORTVERSION", "DISTVERSION":
			meta.Version = m[2]
		case "MAINTAINER":
			meta.Maintainer = m[2]
		case "WWW":
			meta.WWW = m[2]
		case "COMMENT":
			meta.Comment = m[2]
		}
	}

	meta.WWW = cleanWWW(meta.WWW)
	return meta
}

// cleanWWW normalizes the WWW value: unexpanded make variables are dropped,
// line continuations and trailing slashes trimmed.
func cleanWWW(www string) string {
	if strings.Contains(www, "$") {
		return ""
	}
	www = strings.TrimSuffix(www, "\\")
	www = strings.TrimSpace(www)
	www = strings.TrimSuffix(www, "/")
	return www
}
