package commands

import (
	"context"
	"time"

	"github.com/dyluth/teamflow/internal/format"
	"github.com/dyluth/teamflow/internal/printer"
	"github.com/spf13/cobra"
)

var statusOutput string

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show a run's status, stages and artifacts",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "default", "Output format (default or json)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	out, err := format.ParseOutput(statusOutput)
	if err != nil {
		return printer.Error("invalid output format", err.Error(), "Valid formats: default, json")
	}

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	view, err := a.service.Status(ctx, args[0])
	if err != nil {
		return serviceError(err, args[0])
	}

	if out == format.OutputJSON {
		return format.RunJSON(cmd.OutOrStdout(), view)
	}
	format.RunTable(cmd.OutOrStdout(), view, time.Now())
	return nil
}
