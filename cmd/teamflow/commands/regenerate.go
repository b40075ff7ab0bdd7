package commands

import (
	"context"
	"strings"

	"github.com/dyluth/teamflow/internal/pipeline"
	"github.com/dyluth/teamflow/internal/printer"
	"github.com/spf13/cobra"
)

var regenerateCmd = &cobra.Command{
	Use:   "regenerate <run-id> <step>",
	Short: "Re-run a stage and every stage after it",
	Long: `Clear a stage's artifacts and those of all later stages, then queue the
run again starting at that stage. Earlier stages are kept.

Steps: ` + stageNames(),
	Args: cobra.ExactArgs(2),
	RunE: runRegenerate,
}

func init() {
	rootCmd.AddCommand(regenerateCmd)
}

func stageNames() string {
	names := make([]string, 0, len(pipeline.Stages()))
	for _, s := range pipeline.Stages() {
		names = append(names, s.String())
	}
	return strings.Join(names, ", ")
}

func runRegenerate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ref, err := a.service.Regenerate(ctx, args[0], args[1])
	if err != nil {
		return serviceError(err, args[0])
	}
	printer.Success("Run %s queued from %s", ref.ID, ref.Step)
	return nil
}
