package index

import (
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var headingPattern = regexp.MustCompile(`^#{1,6}\s+(.+)$`)
var frontmatterDelim = regexp.MustCompile(`^---\s*$`)

type frontmatter struct {
	Title string `yaml:"title"`
}

// deriveTitle implements §4.5 step 2's title derivation: frontmatter
// title field, else first heading, else basename.
func deriveTitle(path string, body []byte) string {
	text := string(body)
	lines := strings.Split(text, "\n")

	if len(lines) > 0 && frontmatterDelim.MatchString(strings.TrimRight(lines[0], "\r")) {
		for i := 1; i < len(lines); i++ {
			if frontmatterDelim.MatchString(strings.TrimRight(lines[i], "\r")) {
				var fm frontmatter
				block := strings.Join(lines[1:i], "\n")
				if err := yaml.Unmarshal([]byte(block), &fm); err == nil && fm.Title != "" {
					return fm.Title
				}
				lines = lines[i+1:]
				break
			}
		}
	}

	for _, line := range lines {
		if m := headingPattern.FindStringSubmatch(strings.TrimRight(line, "\r")); m != nil {
			return strings.TrimSpace(m[1])
		}
	}

	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
