package pipeline

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

//go:embed prompts/*.md
var defaultTemplates embed.FS

// Prompts loads stage prompt templates. Templates found in the override
// directory win over the embedded defaults.
type Prompts struct {
	dir string
}

// NewPrompts returns a loader reading overrides from dir. An empty dir uses
// only the embedded templates.
func NewPrompts(dir string) *Prompts {
	return &Prompts{dir: dir}
}

// Load returns the raw template called name (without the .md extension).
func (p *Prompts) Load(name string) (string, error) {
	file := name + ".md"
	if p != nil && p.dir != "" {
		data, err := os.ReadFile(filepath.Join(p.dir, file))
		if err == nil {
			return string(data), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to read prompt %s: %w", name, err)
		}
	}

	data, err := defaultTemplates.ReadFile("prompts/" + file)
	if err != nil {
		return "", fmt.Errorf("unknown prompt template %q", name)
	}
	return string(data), nil
}

// TemplateNames lists the embedded templates, sorted, without extensions.
func TemplateNames() []string {
	entries, err := defaultTemplates.ReadDir("prompts")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".md"))
	}
	sort.Strings(names)
	return names
}

var placeholder = regexp.MustCompile(`\$([A-Za-z_]+)`)

// Render substitutes $name placeholders with values from vars.
// Placeholders without a value are left in place and returned, sorted and
// de-duplicated, so callers can warn about them. Substituted values are never
// re-scanned.
func Render(template string, vars map[string]string) (string, []string) {
	missing := make(map[string]struct{})
	rendered := placeholder.ReplaceAllStringFunc(template, func(match string) string {
		name := match[1:]
		if value, ok := vars[name]; ok {
			return value
		}
		missing[name] = struct{}{}
		return match
	})

	var unresolved []string
	for name := range missing {
		unresolved = append(unresolved, name)
	}
	sort.Strings(unresolved)
	return rendered, unresolved
}
