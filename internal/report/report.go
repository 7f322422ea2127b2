// Package report turns checker findings into the lines stored as a
// commit's error report.
package report

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hochfrequenz/pep8bot/internal/domain"
)

// DefaultBaseURL is the web root of the hosting service
const DefaultBaseURL = "https://github.com"

// Target identifies where findings link to
type Target struct {
	BaseURL string
	Owner   string
	Repo    string
	SHA     string
	// Root is stripped from finding paths
	Root string
}

// Format renders one line per finding:
//
//	<a href='{base}/{owner}/{repo}/blob/{sha}/{path}#L{line}'>{path}:{row}</a>:{col}: {code} {text}
//
// where row includes the result's line offset and col is 1-based.
func Format(result *domain.AnalysisResult, t Target) []string {
	if result == nil {
		return nil
	}
	base := strings.TrimRight(t.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}

	lines := make([]string, 0, len(result.Findings))
	for _, f := range result.Findings {
		path := relPath(t.Root, f.Filename)
		lines = append(lines, fmt.Sprintf("<a href='%s/%s/%s/blob/%s/%s#L%d'>%s:%d</a>:%d: %s %s",
			base, t.Owner, t.Repo, t.SHA, path, f.Line,
			path, result.LineOffset+f.Line,
			f.Column+1, f.Code, f.Message))
	}
	return lines
}

// Join concatenates formatted lines into a stored report
func Join(lines []string) string {
	return strings.Join(lines, "\n")
}

func relPath(root, name string) string {
	if root != "" && filepath.IsAbs(name) {
		if rel, err := filepath.Rel(root, name); err == nil && !strings.HasPrefix(rel, "..") {
			name = rel
		}
	}
	name = filepath.ToSlash(filepath.Clean(name))
	return strings.TrimPrefix(name, "./")
}
