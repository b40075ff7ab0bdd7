// Package export renders a finished run into the document formats offered to
// clients: the plain final document, an IDE-agent prompt, a cursor-friendly
// variant without API details, and a size-bounded summary.
package export

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dyluth/teamflow/internal/pipeline"
	"github.com/dyluth/teamflow/pkg/runstore"
)

// Format selects an export rendering.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatIDE      Format = "ide"
	FormatCursor   Format = "cursor"
	FormatSummary  Format = "summary"
)

// IDEPromptFilename is the attachment name of the IDE export.
const IDEPromptFilename = "teamflow_ide_prompt.md"

// DefaultSummaryLimit bounds the summary export in characters.
const DefaultSummaryLimit = 5200

// ParseFormat validates a format name. An empty name means markdown.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case "":
		return FormatMarkdown, nil
	case FormatMarkdown, FormatIDE, FormatCursor, FormatSummary:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format %q (use md, ide, cursor or summary)", name)
	}
}

// Document is a rendered export.
type Document struct {
	Format      Format
	Content     string
	ContentType string
	// Filename is set when the export should be downloaded as an attachment.
	Filename string
}

// Source supplies everything an export may need.
type Source struct {
	Final     string
	Artifacts map[string]string
	// IDEPrompt is the instruction header of IDE-oriented exports.
	IDEPrompt string
}

// Options tunes renderings.
type Options struct {
	SummaryLimit int
}

// Render produces the export of src in format f.
func Render(f Format, src Source, opts Options) (Document, error) {
	doc := Document{Format: f, ContentType: "text/markdown; charset=utf-8"}

	switch f {
	case FormatMarkdown:
		doc.Content = src.Final
	case FormatIDE:
		doc.Content = ideDocument(src)
		doc.Filename = IDEPromptFilename
	case FormatCursor:
		doc.Content = MinimizeNewlines(StripAPIDesign(src.Final))
	case FormatSummary:
		limit := opts.SummaryLimit
		if limit <= 0 {
			limit = DefaultSummaryLimit
		}
		doc.Content = Summary(src.Artifacts, limit)
	default:
		return Document{}, fmt.Errorf("unsupported export format %q", f)
	}
	return doc, nil
}

// ideArtifacts are the stage outputs handed to an IDE agent. Review notes are left out.
var ideArtifacts = []string{
	runstore.ArtifactPRD, runstore.ArtifactArch, runstore.ArtifactAPI,
	runstore.ArtifactTest, runstore.ArtifactRisk, runstore.ArtifactStack,
}

func ideDocument(src Source) string {
	parts := []string{strings.TrimSpace(src.IDEPrompt)}
	for _, name := range ideArtifacts {
		if content := strings.TrimSpace(src.Artifacts[name]); content != "" {
			parts = append(parts, content)
		}
	}
	return strings.Join(parts, pipeline.CompositeSeparator)
}

// StripAPIDesign replaces every API Design section with a pointer to the IDE export.
func StripAPIDesign(content string) string {
	if content == "" {
		return ""
	}

	var out []string
	skipping, inserted := false, false
	for _, raw := range strings.Split(normalizeEOL(content), "\n") {
		stripped := strings.TrimSpace(raw)
		if strings.HasPrefix(stripped, "#") {
			heading := strings.ToLower(strings.TrimSpace(strings.TrimLeft(stripped, "#")))
			if strings.HasPrefix(heading, "api design") {
				if !inserted {
					out = append(out, "## API Design", "- Refer to "+IDEPromptFilename+" for API details.")
					inserted = true
				}
				skipping = true
				continue
			}
			skipping = false
			out = append(out, raw)
			continue
		}
		if skipping {
			continue
		}
		out = append(out, raw)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

var blankRuns = regexp.MustCompile(`\n{2,}`)

// MinimizeNewlines collapses blank lines.
func MinimizeNewlines(content string) string {
	return strings.TrimSpace(blankRuns.ReplaceAllString(normalizeEOL(content), "\n"))
}

func normalizeEOL(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
