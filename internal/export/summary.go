package export

import (
	"strings"

	"github.com/dyluth/teamflow/internal/pipeline"
	"github.com/dyluth/teamflow/pkg/runstore"
)

const summaryHeader = "You are an engineering agent working inside an IDE. " +
	"Use the summarized requirements below to start implementation. " +
	"For full context, open " + IDEPromptFilename + "."

// compression levels tried in order until the summary fits.
var compressionLevels = []struct {
	maxBullets int
	maxChars   int
}{
	{12, 220},
	{10, 180},
	{8, 150},
	{6, 120},
}

var summarySections = []struct {
	title    string
	artifact string
}{
	{pipeline.HeadingPRD, runstore.ArtifactPRD},
	{pipeline.HeadingArch, runstore.ArtifactArch},
	{pipeline.HeadingAPI, runstore.ArtifactAPI},
	{pipeline.HeadingTest, runstore.ArtifactTest},
	{pipeline.HeadingRisk, runstore.ArtifactRisk},
	{pipeline.HeadingStack, runstore.ArtifactStack},
}

// Summary builds a compressed bullet summary of the stage artifacts, using
// progressively tighter compression until it fits within limit characters.
// The tightest attempt is returned even when it is still too long.
func Summary(artifacts map[string]string, limit int) string {
	var candidate string
	for _, level := range compressionLevels {
		sections := []string{summaryHeader}
		for _, s := range summarySections {
			sections = append(sections, summarizeSection(s.title, artifacts[s.artifact], level.maxBullets, level.maxChars))
		}
		candidate = strings.Join(sections, pipeline.CompositeSeparator)
		if len([]rune(candidate)) <= limit {
			return candidate
		}
	}
	return candidate
}

func summarizeSection(title, content string, maxBullets, maxChars int) string {
	content = stripMatchingHeading(content, title)
	if content == "" {
		return "## " + title + "\n- (not available)"
	}
	compressed := CompressMarkdown(content, maxBullets, maxChars)
	if !strings.HasPrefix(compressed, "#") {
		compressed = "## " + title + "\n" + compressed
	}
	return compressed
}

// CompressMarkdown keeps headings, the first maxBullets bullets under each
// heading and the prose preceding them, clipping every kept line to maxChars.
func CompressMarkdown(md string, maxBullets, maxChars int) string {
	if md == "" {
		return ""
	}

	var out []string
	bulletsSeen := 0
	inSection := false
	for _, raw := range strings.Split(normalizeEOL(md), "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
		case strings.HasPrefix(line, "#"):
			out = append(out, line)
			bulletsSeen = 0
			inSection = true
		case strings.HasPrefix(line, "-") || strings.HasPrefix(line, "*"):
			if bulletsSeen < maxBullets {
				out = append(out, clip(line, maxChars))
			} else if bulletsSeen == maxBullets {
				out = append(out, "- (more in full document)")
			}
			bulletsSeen++
		case inSection && bulletsSeen == 0:
			out = append(out, clip(line, maxChars))
		}
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func stripMatchingHeading(content, title string) string {
	if content == "" {
		return ""
	}
	lowerTitle := strings.ToLower(title)
	var kept []string
	for _, raw := range strings.Split(normalizeEOL(content), "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "#") && strings.Contains(strings.ToLower(line), lowerTitle) {
			continue
		}
		kept = append(kept, raw)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// clip shortens text to limit runes, marking the cut with an ellipsis.
func clip(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	if limit < 1 {
		limit = 1
	}
	return strings.TrimRight(string(runes[:limit-1]), " \t") + "…"
}
