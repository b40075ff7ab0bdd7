package pipeline

import (
	"fmt"
	"regexp"
	"strings"
)

// placeholderFormat is written under a synthesized secondary heading when the
// agent output never reached that section.
const placeholderFormat = "- Model output did not include the %s section."

func headingPattern(heading string) *regexp.Regexp {
	return regexp.MustCompile(`(?im)^#{1,6}\s*` + regexp.QuoteMeta(heading) + `\s*$`)
}

// EnsureHeading guarantees content carries heading as a markdown heading line.
// Content that already has the heading (any level, any case) is only trimmed.
func EnsureHeading(content, heading string) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return "# " + heading
	}
	if headingPattern(heading).MatchString(content) {
		return content
	}
	return "# " + heading + "\n\n" + content
}

// Placeholder returns the stand-in artifact used when a section is missing.
func Placeholder(heading string) string {
	return "# " + heading + "\n\n" + fmt.Sprintf(placeholderFormat, heading)
}

// SplitSections splits combined agent output at the secondary heading.
// Text before the heading becomes the primary section and text from the heading
// onward the secondary one. Both are normalized with EnsureHeading. When the
// secondary heading is absent the secondary section is a placeholder, never empty.
func SplitSections(content, primaryHeading, secondaryHeading string) (primary, secondary string) {
	loc := headingPattern(secondaryHeading).FindStringIndex(content)
	if loc == nil {
		return EnsureHeading(content, primaryHeading), Placeholder(secondaryHeading)
	}

	primary = EnsureHeading(content[:loc[0]], primaryHeading)
	secondary = EnsureHeading(content[loc[0]:], secondaryHeading)
	return primary, secondary
}
