package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dyluth/teamflow/pkg/runstore"
	"github.com/spf13/cobra"
)

var artifactCmd = &cobra.Command{
	Use:   "artifact <run-id> <name>",
	Short: "Print one artifact of a run",
	Long: fmt.Sprintf(`Print a single stage output of a run, even before the run is finalized.

Names: %s`, strings.Join(runstore.ArtifactNames(), ", ")),
	Args: cobra.ExactArgs(2),
	RunE: runArtifact,
}

func init() {
	rootCmd.AddCommand(artifactCmd)
}

func runArtifact(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	content, err := a.service.Artifact(ctx, args[0], args[1])
	if err != nil {
		return serviceError(err, args[0])
	}
	_, err = io.WriteString(cmd.OutOrStdout(), strings.TrimRight(content, "\n")+"\n")
	return err
}
