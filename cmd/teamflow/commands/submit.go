package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dyluth/teamflow/internal/printer"
	"github.com/dyluth/teamflow/internal/service"
	"github.com/dyluth/teamflow/internal/watch"
	"github.com/dyluth/teamflow/pkg/runstore"
	"github.com/spf13/cobra"
)

var (
	submitMaxChars int
	submitFast     bool
	submitWait     bool
	submitTimeout  time.Duration
)

var submitCmd = &cobra.Command{
	Use:   "submit <idea>",
	Short: "Create a run for an idea",
	Long: `Create a run and queue it for a worker.

The idea may mention a length, e.g. "under 3000 characters" or "keep it short";
--max-chars overrides that hint.

Examples:
  teamflow submit "A habit tracker for teams"
  teamflow submit --fast --wait "CLI for rotating TLS certificates"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().IntVar(&submitMaxChars, "max-chars", 0, "Output length limit per stage (500-20000)")
	submitCmd.Flags().BoolVar(&submitFast, "fast", false, "Fast mode: cap outputs at 5000 characters")
	submitCmd.Flags().BoolVarP(&submitWait, "wait", "w", false, "Block until the run finishes")
	submitCmd.Flags().DurationVar(&submitTimeout, "timeout", 30*time.Minute, "Maximum time to wait with --wait")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	idea := strings.Join(args, " ")
	ref, err := a.service.Create(ctx, idea, service.CreateOptions{MaxChars: submitMaxChars, FastMode: submitFast})
	if err != nil {
		return serviceError(err, "")
	}
	printer.Success("Run %s queued", ref.ID)

	if !submitWait {
		printer.Info("\nFollow progress with:\n  teamflow watch %s", ref.ID)
		return nil
	}

	printer.Step("Waiting for %s (timeout %v)", ref.ID, submitTimeout)
	status, err := watch.PollForTerminal(ctx, a.client, ref.ID, time.Second, submitTimeout)
	if err != nil {
		return printer.Error("wait failed", err.Error(),
			fmt.Sprintf("Check the run with:\n  teamflow status %s", ref.ID))
	}

	switch status {
	case runstore.RunStatusCompleted:
		printer.Success("Run %s completed", ref.ID)
		printer.Info("\nExport it with:\n  teamflow export %s", ref.ID)
		return nil
	default:
		return printer.Error(
			fmt.Sprintf("run %s %s", ref.ID, status),
			"The run did not complete.",
			fmt.Sprintf("Inspect its events with:\n  teamflow watch %s", ref.ID),
		)
	}
}
