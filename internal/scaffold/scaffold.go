// Package scaffold writes a starter teamflow project into a directory.
package scaffold

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/teamflow/internal/config"
	"github.com/dyluth/teamflow/internal/pipeline"
)

//go:embed templates/*
var templatesFS embed.FS

// fileInfo is a file to be created during initialization
type fileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Options controls Initialize.
type Options struct {
	// Force overwrites existing files.
	Force bool
	// Prompts also writes editable copies of the built-in prompt templates to prompts/.
	Prompts bool
}

// Initialize writes teamflow.yml and an example agent into dir and returns the
// created paths relative to dir. Existing files are an error unless Force is set.
func Initialize(dir string, opts Options) ([]string, error) {
	files, err := templateFiles(opts.Prompts)
	if err != nil {
		return nil, err
	}

	if !opts.Force {
		if err := checkExisting(dir, files); err != nil {
			return nil, err
		}
	}

	created := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f.Path)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", f.Path, err)
		}
		if err := os.WriteFile(path, f.Content, f.Permissions); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", f.Path, err)
		}
		created = append(created, f.Path)
	}

	// The generated config must load cleanly.
	if _, err := config.Load(filepath.Join(dir, config.DefaultPath)); err != nil {
		return nil, fmt.Errorf("created %s is invalid: %w", config.DefaultPath, err)
	}

	return created, nil
}

func templateFiles(withPrompts bool) ([]fileInfo, error) {
	cfg, err := templatesFS.ReadFile("templates/teamflow.yml.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read config template: %w", err)
	}
	script, err := templatesFS.ReadFile("templates/generate.sh.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read agent template: %w", err)
	}

	files := []fileInfo{
		{Path: config.DefaultPath, Content: cfg, Permissions: 0644},
		{Path: filepath.Join("agents", "generate.sh"), Content: script, Permissions: 0755},
	}
	if !withPrompts {
		return files, nil
	}

	prompts := pipeline.NewPrompts("")
	for _, name := range pipeline.TemplateNames() {
		content, err := prompts.Load(name)
		if err != nil {
			return nil, err
		}
		files = append(files, fileInfo{
			Path:        filepath.Join("prompts", name+".md"),
			Content:     []byte(content),
			Permissions: 0644,
		})
	}
	return files, nil
}

// checkExisting fails when any file Initialize would write is already present.
func checkExisting(dir string, files []fileInfo) error {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(filepath.Join(dir, f.Path)); err == nil {
			existing = append(existing, f.Path)
		}
	}
	if len(existing) == 0 {
		return nil
	}

	msg := "project already initialized\n\nFound existing"
	if len(existing) == 1 {
		msg += fmt.Sprintf(": %s\n", existing[0])
	} else {
		msg += " files:\n"
		for _, path := range existing {
			msg += fmt.Sprintf("  - %s\n", path)
		}
	}
	msg += "\nUse 'teamflow init --force' to overwrite them"
	return fmt.Errorf("%s", msg)
}
