package export

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSource() Source {
	artifacts := map[string]string{
		"prd":    "# Product Requirements (PRD)\n\n- users add todos\n- users complete todos",
		"arch":   "# System Architecture\n\nA Go service backed by Postgres.",
		"api":    "# API Design\n\n- POST /todos\n- GET /todos",
		"test":   "# Test Plan\n- unit tests",
		"risk":   "# Risk Analysis\n- data loss",
		"stack":  "# Tech Stack Recommendation\n- Go",
		"review": "# Review Notes\n- fine",
	}
	var parts []string
	for _, name := range []string{"prd", "arch", "api", "test", "risk", "stack", "review"} {
		parts = append(parts, artifacts[name])
	}
	return Source{
		Final:     strings.Join(parts, "\n\n---\n\n"),
		Artifacts: artifacts,
		IDEPrompt: "# IDE Agent Instructions\n\nBuild it.\n",
	}
}

func TestParseFormat(t *testing.T) {
	for name, want := range map[string]Format{"": FormatMarkdown, "md": FormatMarkdown, "IDE": FormatIDE, "cursor": FormatCursor, "summary": FormatSummary} {
		got, err := ParseFormat(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got)
	}

	_, err := ParseFormat("pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdf")
}

func TestRenderMarkdown(t *testing.T) {
	src := testSource()
	doc, err := Render(FormatMarkdown, src, Options{})
	require.NoError(t, err)
	assert.Equal(t, src.Final, doc.Content)
	assert.Empty(t, doc.Filename)
	assert.Equal(t, "text/markdown; charset=utf-8", doc.ContentType)
}

func TestRenderIDE(t *testing.T) {
	doc, err := Render(FormatIDE, testSource(), Options{})
	require.NoError(t, err)

	assert.Equal(t, IDEPromptFilename, doc.Filename)
	parts := strings.Split(doc.Content, "\n\n---\n\n")
	require.Len(t, parts, 7)
	assert.Equal(t, "# IDE Agent Instructions\n\nBuild it.", parts[0])
	assert.True(t, strings.HasPrefix(parts[3], "# API Design"))
	assert.NotContains(t, doc.Content, "Review Notes")
}

func TestRenderCursor(t *testing.T) {
	doc, err := Render(FormatCursor, testSource(), Options{})
	require.NoError(t, err)

	assert.NotContains(t, doc.Content, "POST /todos")
	assert.Contains(t, doc.Content, "## API Design\n- Refer to teamflow_ide_prompt.md for API details.")
	assert.Contains(t, doc.Content, "# Test Plan")
	assert.NotContains(t, doc.Content, "\n\n")
}

func TestStripAPIDesign(t *testing.T) {
	in := "# Arch\nbody\n### api design v2\n- GET /\n# Test Plan\n- t\n## API Design (cont)\n- PUT /"
	out := StripAPIDesign(in)
	assert.Equal(t, "# Arch\nbody\n## API Design\n- Refer to teamflow_ide_prompt.md for API details.\n# Test Plan\n- t", out)
	assert.Equal(t, "", StripAPIDesign(""))
}

func TestMinimizeNewlines(t *testing.T) {
	assert.Equal(t, "a\nb\nc", MinimizeNewlines("\r\na\r\n\r\n\r\nb\n\nc\n\n"))
}

func TestCompressMarkdown(t *testing.T) {
	md := "# Heading\nIntro line\n- one\n- two\n- three\nTrailing prose\n## Next\n* four"
	out := CompressMarkdown(md, 2, 100)
	assert.Equal(t, "# Heading\nIntro line\n- one\n- two\n- (more in full document)\n## Next\n* four", out)

	assert.Equal(t, "# H\n- abcd…", CompressMarkdown("# H\n- abcdefghij", 5, 7))
}

func TestSummary(t *testing.T) {
	t.Run("fits at the first level", func(t *testing.T) {
		out := Summary(testSource().Artifacts, DefaultSummaryLimit)
		assert.True(t, strings.HasPrefix(out, summaryHeader))
		assert.Contains(t, out, "## Product Requirements (PRD)\n- users add todos")
		assert.NotContains(t, out, "Review Notes")
	})

	t.Run("missing sections are marked", func(t *testing.T) {
		out := Summary(map[string]string{}, DefaultSummaryLimit)
		assert.Contains(t, out, "## Test Plan\n- (not available)")
	})

	t.Run("compresses harder for tight limits", func(t *testing.T) {
		var bullets []string
		for i := 0; i < 20; i++ {
			bullets = append(bullets, fmt.Sprintf("- requirement %d %s", i, strings.Repeat("x", 200)))
		}
		artifacts := map[string]string{"prd": "# Product Requirements (PRD)\n" + strings.Join(bullets, "\n")}

		loose := Summary(artifacts, 1<<20)
		tight := Summary(artifacts, 1500)
		assert.Less(t, len(tight), len(loose))
		assert.Contains(t, loose, "requirement 11")
		assert.NotContains(t, tight, "requirement 6 ")
	})
}

func TestRenderSummaryUsesDefaultLimit(t *testing.T) {
	doc, err := Render(FormatSummary, testSource(), Options{})
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(doc.Content)), DefaultSummaryLimit)
}
