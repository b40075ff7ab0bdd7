// Package format renders runs and their events for the terminal.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dyluth/teamflow/internal/printer"
	"github.com/dyluth/teamflow/internal/service"
	"github.com/dyluth/teamflow/pkg/runstore"
)

// Output selects a rendering.
type Output string

const (
	OutputDefault Output = "default"
	OutputJSON    Output = "json"
)

// ParseOutput validates an output name. Empty means default.
func ParseOutput(name string) (Output, error) {
	switch Output(strings.ToLower(name)) {
	case "", OutputDefault:
		return OutputDefault, nil
	case OutputJSON, "jsonl":
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unsupported output format %q (valid: default, json)", name)
}

// RunTable writes a run's status followed by a table of its stages.
func RunTable(w io.Writer, view *service.RunView, now time.Time) {
	fmt.Fprintf(w, "Run %s: %s\n", view.ID, printer.Status(string(view.Status)))
	fmt.Fprintf(w, "Created %s, updated %s\n", formatAge(view.CreatedAt, now), formatAge(view.UpdatedAt, now))
	if view.MaxChars > 0 || view.FastMode {
		fmt.Fprintf(w, "Length limit %d chars, fast mode %t\n", view.MaxChars, view.FastMode)
	}

	fmt.Fprintf(w, "\n%-14s %s\n", "STEP", "STATUS")
	fmt.Fprintf(w, "%-14s %s\n", "--------------", "----------")
	for _, step := range view.Steps {
		fmt.Fprintf(w, "%-14s %s\n", step.Name, printer.Status(string(step.Status)))
	}

	present := make([]string, 0, len(view.Artifacts))
	for name, ok := range view.Artifacts {
		if ok {
			present = append(present, name)
		}
	}
	sort.Strings(present)
	if len(present) == 0 {
		fmt.Fprintf(w, "\nNo artifacts yet\n")
		return
	}
	fmt.Fprintf(w, "\nArtifacts: %s\n", strings.Join(present, ", "))
}

// RunJSON writes a run as indented JSON.
func RunJSON(w io.Writer, view *service.RunView) error {
	data, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run to JSON: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

// Event writes one event record in the chosen rendering.
// JSON output is one object per line, suitable for jq.
func Event(w io.Writer, rec runstore.EventRecord, out Output) error {
	if out == OutputJSON {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal event to JSON: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	}

	_, err := fmt.Fprintf(w, "[%s] #%-3d %s\n", formatClock(rec.Event.Timestamp), rec.ID, describe(rec.Event))
	return err
}

func describe(e runstore.Event) string {
	switch e.Type {
	case runstore.EventRunStarted:
		if e.StartStep != "" {
			return fmt.Sprintf("run resumed at %s", e.StartStep)
		}
		return "run started"
	case runstore.EventRunCompleted:
		return printer.Status("completed") + " run"
	case runstore.EventRunCancelled:
		return printer.Status("cancelled") + " run"
	case runstore.EventRevisionStarted, runstore.EventRevisionCompleted:
		return fmt.Sprintf("%s %s (iteration %d)", e.Type, e.Step, e.Iteration)
	case runstore.EventStepFailed:
		return fmt.Sprintf("%s %s: %s", printer.Status("failed"), e.Step, e.Error)
	case runstore.EventStepRegenerate:
		return fmt.Sprintf("regenerate from %s", e.Step)
	}
	if e.Step != "" {
		return fmt.Sprintf("%s %s", e.Type, e.Step)
	}
	return string(e.Type)
}

func formatClock(unix int64) string {
	if unix == 0 {
		return "--:--:--"
	}
	return time.Unix(unix, 0).Format("15:04:05")
}

// formatAge renders a Unix timestamp relative to now, "-" when unset.
func formatAge(unix int64, now time.Time) string {
	if unix == 0 {
		return "-"
	}
	diff := now.Sub(time.Unix(unix, 0))
	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}
