package commands

import (
	"context"

	"github.com/dyluth/teamflow/internal/printer"
	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <run-id>",
	Short: "Cancel a run",
	Long: `Cancel a run. A worker executing it stops at its next checkpoint;
stages that already completed keep their artifacts. Cancelling a finished
run is a no-op and reports its status.`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ref, err := a.service.Cancel(ctx, args[0])
	if err != nil {
		return serviceError(err, args[0])
	}
	printer.Success("Run %s is %s", ref.ID, printer.Status(string(ref.Status)))
	return nil
}
