// Package hints derives the output length hint of a run from its idea text
// and creation options.
package hints

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	MinMaxChars = 500
	MaxMaxChars = 20000

	// BriefMaxChars applies when the idea asks for a short document, and caps fast mode.
	BriefMaxChars = 5000

	// MaxIdeaLength is the longest idea accepted at submission.
	MaxIdeaLength = 1000
)

var explicitPatterns = []struct {
	re         *regexp.Regexp
	multiplier int
}{
	{regexp.MustCompile(`(?:within|under|less than|<=)\s*(\d{3,6})\s*(?:characters|chars)?`), 1},
	{regexp.MustCompile(`(\d{3,6})\s*(?:characters|chars)`), 1},
	{regexp.MustCompile(`(\d{1,3})\s*k\s*(?:characters|chars)?`), 1000},
}

var briefPhrases = []string{
	"short document",
	"short doc",
	"keep it short",
	"concise",
	"brief",
	"short version",
}

// Clamp bounds a length hint to [MinMaxChars, MaxMaxChars].
func Clamp(n int) int {
	if n < MinMaxChars {
		return MinMaxChars
	}
	if n > MaxMaxChars {
		return MaxMaxChars
	}
	return n
}

// InferMaxChars reads a length hint from free text. Explicit limits such as
// "under 2000 characters" or "5k chars" win and are clamped; otherwise a
// brevity phrase yields BriefMaxChars. Zero means no hint.
func InferMaxChars(idea string) int {
	text := strings.ReplaceAll(strings.ToLower(idea), ",", "")
	if text == "" {
		return 0
	}

	for _, p := range explicitPatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		return Clamp(n * p.multiplier)
	}

	for _, phrase := range briefPhrases {
		if strings.Contains(text, phrase) {
			return BriefMaxChars
		}
	}
	return 0
}

// ResolveMaxChars combines an explicit request, the inferred hint and fast
// mode. An explicit value wins over inference; fast mode caps the result at
// BriefMaxChars and sets it when nothing else did.
func ResolveMaxChars(idea string, explicit int, fastMode bool) int {
	maxChars := explicit
	if maxChars <= 0 {
		maxChars = InferMaxChars(idea)
	}
	if fastMode && (maxChars == 0 || maxChars > BriefMaxChars) {
		maxChars = BriefMaxChars
	}
	return maxChars
}
